// Package main provides the diffuse CLI: a thin cobra front end over
// package pipeline, following this codebase's cmd/cmd.go NewCLI()
// construction (a SUPPLEMENTED surface — the core engine itself defines no
// CLI, spec.md §4.F).
package main

import (
	"log"

	"github.com/spf13/cobra"
)

func newCLI() *cobra.Command {
	log.SetFlags(log.LstdFlags | log.Lshortfile)

	rootCmd := &cobra.Command{
		Use:   "diffuse",
		Short: "Run Stable Diffusion pipelines from ONNX-compiled models",
		CompletionOptions: cobra.CompletionOptions{
			DisableDefaultCmd: true,
		},
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			cmd.SilenceUsage = true
		},
	}

	cobra.EnableCommandSorting = false

	rootCmd.AddCommand(
		newGenerateCmd(),
		newBatchCmd(),
		newServeCmd(),
		newInfoCmd(),
	)

	return rootCmd
}

func main() {
	if err := newCLI().Execute(); err != nil {
		log.Fatal(err)
	}
}
