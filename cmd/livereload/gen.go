package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"livereload/internal/codegen"
)

func newGenCommand() *cobra.Command {
	var manifest, out string
	cmd := &cobra.Command{
		Use:     "gen",
		Short:   "Generate the export table and header for an artifact",
		Example: "  livereload gen --manifest game.yaml --out ./build/gen",
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			m, err := codegen.LoadManifest(manifest)
			if err != nil {
				return err
			}
			paths, err := codegen.WriteFiles(m, out)
			if err != nil {
				return err
			}
			for _, p := range paths {
				fmt.Fprintln(cmd.OutOrStdout(), p)
			}
			return nil
		},
	}
	cmd.Flags().StringVarP(&manifest, "manifest", "m", "", "Manifest file (YAML)")
	cmd.Flags().StringVarP(&out, "out", "o", ".", "Output directory")
	_ = cmd.MarkFlagRequired("manifest")
	return cmd
}
