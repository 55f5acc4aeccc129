package main

import (
	"fmt"
	"runtime"

	"github.com/spf13/cobra"

	"livereload/internal/abi"
)

func newVersionCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version and ABI information",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "livereload %s (abi v%d, %s/%s)\n", version, abi.Version, runtime.GOOS, runtime.GOARCH)
		},
	}
}
