package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var version = "dev"

var rootCmd = &cobra.Command{
	Use:     "descbench",
	Short:   "Compare LLM classifications from short vs. full company descriptions",
	Version: version,
	Long: `descbench runs the same classification prompt over a company dataset
under two conditions (short description only, and short plus long
description), tracks the asynchronous batch jobs to completion, and
reports how often the two conditions agree.`,
	SilenceUsage: true,
}

func main() {
	rootCmd.AddCommand(prepareCmd, submitCmd, watchCmd, statusCmd, collectCmd, resubmitCmd, compareCmd)
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}
