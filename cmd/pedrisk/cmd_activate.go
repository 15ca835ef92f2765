package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/ayemaqu/pedrisk/internal/artifact"
)

var activateCmd = &cobra.Command{
	Use:   "activate <root> <version>",
	Short: "Point a versioned artifact root at one of its versions",
	Long: `Writes <root>/state.json so that <root>/<version> becomes the current
version. The version directory must hold a pipeline and its metadata. The
previously current version is kept for rollback.`,
	Args: cobra.ExactArgs(2),
	RunE: runActivate,
}

func runActivate(cmd *cobra.Command, args []string) error {
	state, err := artifact.Activate(args[0], args[1])
	if err != nil {
		return err
	}
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "current:  %s\n", state.CurrentVersion)
	if state.PreviousVersion != "" {
		fmt.Fprintf(out, "previous: %s\n", state.PreviousVersion)
	}
	return nil
}
