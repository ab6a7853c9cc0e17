package main

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"descbench/internal/app"
	"descbench/internal/config"
	"descbench/internal/domain"
)

func newApp() (*app.App, error) {
	return app.New(config.LoadConfig())
}

func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
}

// resolveRun reads the shared --run / --condition flags and resolves the
// run to operate on.
func resolveRun(a *app.App, cmd *cobra.Command) (domain.Run, error) {
	runID, _ := cmd.Flags().GetString("run")
	cond, _ := cmd.Flags().GetString("condition")
	return a.ResolveRun(runID, cond)
}

func addRunFlags(cmd *cobra.Command) {
	cmd.Flags().String("run", "", "run id (default: latest run for --condition)")
	cmd.Flags().String("condition", "", "condition to pick the latest run of: short or both")
}

// --- prepare ---

var prepareCmd = &cobra.Command{
	Use:   "prepare",
	Short: "Filter the raw dataset to records with both descriptions",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp()
		if err != nil {
			return err
		}
		defer a.Close()
		return a.Prepare()
	},
}

// --- submit ---

var submitCmd = &cobra.Command{
	Use:   "submit",
	Short: "Create a run for one condition and submit its batches",
	Long: `Create a run for one condition and submit its batches.

Examples:
  descbench submit --condition both
  descbench submit --condition short
  descbench submit --run 1b4e28ba-...   # resume an interrupted submission`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cond, _ := cmd.Flags().GetString("condition")
		runID, _ := cmd.Flags().GetString("run")
		if cond == "" && runID == "" {
			return fmt.Errorf("either --condition or --run is required")
		}

		a, err := newApp()
		if err != nil {
			return err
		}
		defer a.Close()

		ctx, stop := signalContext()
		defer stop()

		run, err := a.Submit(ctx, cond, runID)
		if err != nil {
			return err
		}
		fmt.Printf("run %s (%s) submitted; track it with: descbench watch --run %s\n", run.ID, run.Condition, run.ID)
		return nil
	},
}

func init() {
	submitCmd.Flags().String("condition", "", "experimental condition: short or both")
	submitCmd.Flags().String("run", "", "existing run id to resume submitting")
}

// --- watch ---

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Poll a run until every batch is terminal, collecting as it goes",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp()
		if err != nil {
			return err
		}
		defer a.Close()

		run, err := resolveRun(a, cmd)
		if err != nil {
			return err
		}

		ctx, stop := signalContext()
		defer stop()
		return a.Watch(ctx, run)
	},
}

func init() { addRunFlags(watchCmd) }

// --- status ---

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Poll a run once and print batch counts by state",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp()
		if err != nil {
			return err
		}
		defer a.Close()

		run, err := resolveRun(a, cmd)
		if err != nil {
			return err
		}

		ctx, stop := signalContext()
		defer stop()

		summary, err := a.Status(ctx, run)
		if err != nil {
			return err
		}
		fmt.Printf("run %s (%s): %s\n", run.ID, run.Condition, summary)
		return nil
	},
}

func init() { addRunFlags(statusCmd) }

// --- collect ---

var collectCmd = &cobra.Command{
	Use:   "collect",
	Short: "Fetch results for completed batches not yet collected",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp()
		if err != nil {
			return err
		}
		defer a.Close()

		run, err := resolveRun(a, cmd)
		if err != nil {
			return err
		}

		ctx, stop := signalContext()
		defer stop()
		return a.Collect(ctx, run)
	},
}

func init() { addRunFlags(collectCmd) }

// --- resubmit ---

var resubmitCmd = &cobra.Command{
	Use:   "resubmit",
	Short: "Replace failed batches with fresh ones and submit them",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp()
		if err != nil {
			return err
		}
		defer a.Close()

		run, err := resolveRun(a, cmd)
		if err != nil {
			return err
		}

		ctx, stop := signalContext()
		defer stop()
		return a.Resubmit(ctx, run)
	},
}

func init() { addRunFlags(resubmitCmd) }

// --- compare ---

var compareCmd = &cobra.Command{
	Use:   "compare",
	Short: "Compare the two result files and write the report",
	RunE: func(cmd *cobra.Command, args []string) error {
		baseline, _ := cmd.Flags().GetString("baseline")
		optimized, _ := cmd.Flags().GetString("optimized")

		a, err := newApp()
		if err != nil {
			return err
		}
		defer a.Close()

		path, err := a.Compare(baseline, optimized)
		if err != nil {
			return err
		}
		fmt.Printf("report written to %s\n", path)
		return nil
	},
}

func init() {
	compareCmd.Flags().String("baseline", "", "baseline result file (default: results dir, both condition)")
	compareCmd.Flags().String("optimized", "", "optimized result file (default: results dir, short condition)")
}
