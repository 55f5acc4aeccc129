package main

import (
	"github.com/spf13/cobra"
)

type rootOptions struct {
	configPath string
	logLevel   string
}

// NewRootCommand builds the livereload command tree.
func NewRootCommand() *cobra.Command {
	opts := &rootOptions{}
	root := &cobra.Command{
		Use:           "livereload",
		Short:         "Hot-reload a native artifact while its state stays in the host",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVarP(&opts.configPath, "config", "c", "", "Config file (.yaml, .yml, .json, .toml)")
	root.PersistentFlags().StringVar(&opts.logLevel, "log-level", "", "Log level: debug|info|warn|error (overrides config)")

	root.AddCommand(newRunCommand(opts, &runOptions{}), newGenCommand(), newVersionCommand())
	return root
}
