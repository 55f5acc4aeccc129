// Command livereload runs a hot-reloadable artifact and generates the C glue
// artifacts need to be loadable.
package main

import (
	"context"
	"fmt"
	"os"
)

// version is set at build time with -ldflags "-X main.version=...".
var version = "dev"

func main() {
	os.Exit(mainWithArgs(context.Background(), os.Args[1:]))
}

// mainWithArgs runs the command tree and maps the outcome to an exit code.
func mainWithArgs(ctx context.Context, args []string) int {
	root := NewRootCommand()
	if len(args) == 0 {
		_ = root.Usage()
		return 2
	}
	root.SetArgs(args)
	if err := root.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(root.ErrOrStderr(), "error:", err)
		return 1
	}
	return 0
}
