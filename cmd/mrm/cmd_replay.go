package main

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/danielpatrickdp/mrm-sim/internal/logging"
	"github.com/danielpatrickdp/mrm-sim/internal/replay"
)

func newReplayCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "replay <fixture.json>",
		Short: "Re-run a fixture twice and check it against its expectations",
		Long: `Execute a replay fixture twice with identical seeds. The replay passes
when both executions agree and match the fixture's pinned actions and
mean return. With --pin, the first outcome is written as a new fixture.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			f, err := replay.LoadFixture(args[0])
			if err != nil {
				return err
			}
			level, _ := cmd.Flags().GetString("log-level")
			logger := logging.NewLogger(level, cmd.ErrOrStderr())
			ctx, stop := signalContext(cmd.Context())
			defer stop()

			report, err := replay.Replay(ctx, f, logger)
			if err != nil {
				return err
			}

			if pinPath, _ := cmd.Flags().GetString("pin"); pinPath != "" {
				tolerance, _ := cmd.Flags().GetFloat64("tolerance")
				pinned := replay.Pin(*f, report.First, tolerance)
				if err := replay.WriteFixture(pinPath, &pinned); err != nil {
					return err
				}
			}

			out := cmd.OutOrStdout()
			if jsonOut, _ := cmd.Flags().GetBool("json"); jsonOut {
				if err := json.NewEncoder(out).Encode(map[string]any{
					"passed":           report.Passed,
					"deterministic":    report.Deterministic,
					"actions_match":    report.ActionsMatch,
					"within_tolerance": report.WithinTolerance,
					"mean_return":      finiteOrZero(report.First.MeanReturn),
					"actions":          report.First.Actions,
					"reason":           report.Reason,
				}); err != nil {
					return err
				}
			} else {
				fmt.Fprintf(out, "fixture:       %s\n", f.Description)
				fmt.Fprintf(out, "epochs:        %d\n", f.Epochs)
				fmt.Fprintf(out, "actions:       %v\n", report.First.Actions)
				fmt.Fprintf(out, "mean return:   %.6f\n", report.First.MeanReturn)
				fmt.Fprintf(out, "deterministic: %t\n", report.Deterministic)
				fmt.Fprintf(out, "result:        %s\n", report.Reason)
			}
			if !report.Passed {
				return fmt.Errorf("replay failed: %s", report.Reason)
			}
			return nil
		},
	}
	cmd.Flags().String("pin", "", "write the fixture with the observed outcome pinned to this path")
	cmd.Flags().Float64("tolerance", 1e-6, "mean return tolerance used with --pin")
	return cmd
}
