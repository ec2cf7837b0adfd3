package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"
	"gonum.org/v1/gonum/stat"

	"github.com/danielpatrickdp/mrm-sim/internal/planner"
	"github.com/danielpatrickdp/mrm-sim/internal/replay"
	"github.com/danielpatrickdp/mrm-sim/internal/store"
)

func newRunsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "runs",
		Short: "Inspect recorded runs",
	}
	cmd.AddCommand(newRunsListCmd(), newRunsShowCmd(), newRunsExportCmd())
	return cmd
}

// #region list
func newRunsListCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List the most recent runs",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			s, err := openStore(cfg)
			if err != nil {
				return err
			}
			defer s.Close()

			limit, _ := cmd.Flags().GetInt("limit")
			runs, err := s.ListRuns(limit)
			if err != nil {
				return err
			}

			if jsonOut, _ := cmd.Flags().GetBool("json"); jsonOut {
				type row struct {
					RunID     string `json:"run_id"`
					Kind      string `json:"kind"`
					Status    string `json:"status"`
					CreatedAt string `json:"created_at"`
				}
				rows := make([]row, len(runs))
				for i, r := range runs {
					rows[i] = row{r.RunID, r.Kind, r.Status, r.CreatedAt.Format("2006-01-02T15:04:05Z07:00")}
				}
				return json.NewEncoder(cmd.OutOrStdout()).Encode(rows)
			}

			if len(runs) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "No runs recorded.")
				return nil
			}
			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
			fmt.Fprintln(w, "RUN\tKIND\tSTATUS\tCREATED")
			for _, r := range runs {
				fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", r.RunID, r.Kind, r.Status, r.CreatedAt.Format("2006-01-02 15:04:05"))
			}
			return w.Flush()
		},
	}
	cmd.Flags().Int("limit", 20, "maximum number of runs to list")
	return cmd
}

// #endregion list

// #region show
func newRunsShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show <run-id>",
		Short: "Show a run and its epochs",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			s, err := openStore(cfg)
			if err != nil {
				return err
			}
			defer s.Close()

			run, err := s.GetRun(args[0])
			if err != nil {
				return err
			}
			epochs, err := s.ListEpochs(run.RunID)
			if err != nil {
				return err
			}

			if jsonOut, _ := cmd.Flags().GetBool("json"); jsonOut {
				type epochRow struct {
					Epoch     int     `json:"epoch"`
					Action    string  `json:"action"`
					Reason    string  `json:"reason"`
					Candidate float64 `json:"candidate_return"`
					Best      float64 `json:"best_return"`
					ElapsedMs int64   `json:"elapsed_ms"`
				}
				rows := make([]epochRow, len(epochs))
				for i, e := range epochs {
					rows[i] = epochRow{e.Epoch, e.Action, e.Reason, finiteOrZero(e.CandidateReturn), finiteOrZero(e.BestReturn), e.ElapsedMs}
				}
				return json.NewEncoder(cmd.OutOrStdout()).Encode(map[string]any{
					"run_id": run.RunID,
					"kind":   run.Kind,
					"status": run.Status,
					"config": json.RawMessage(run.ConfigJSON),
					"epochs": rows,
				})
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "run:     %s\nkind:    %s\nstatus:  %s\ncreated: %s\n\n",
				run.RunID, run.Kind, run.Status, run.CreatedAt.Format("2006-01-02 15:04:05"))
			w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
			fmt.Fprintln(w, "EPOCH\tACTION\tCANDIDATE\tBEST\tMS\tREASON")
			for _, e := range epochs {
				fmt.Fprintf(w, "%d\t%s\t%.4f\t%.4f\t%d\t%s\n", e.Epoch, e.Action, e.CandidateReturn, e.BestReturn, e.ElapsedMs, e.Reason)
			}
			if err := w.Flush(); err != nil {
				return err
			}
			if best, err := s.BestEpoch(run.RunID); err == nil {
				fmt.Fprintf(out, "\nbest epoch: %d (return %.4f)\n", best.Epoch, best.BestReturn)
			} else if !errors.Is(err, store.ErrNotFound) {
				return err
			}
			return nil
		},
	}
}

// #endregion show

// #region export
func newRunsExportCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "export-fixture <run-id>",
		Short: "Export a finished run as a replay fixture",
		Long: `Write a replay fixture that pins the run's configuration, seeds and
starting parameters, with the recorded per-epoch actions and final mean
return as expectations.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			outPath, _ := cmd.Flags().GetString("out")
			if outPath == "" {
				return fmt.Errorf("--out is required")
			}
			tolerance, _ := cmd.Flags().GetFloat64("tolerance")

			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			s, err := openStore(cfg)
			if err != nil {
				return err
			}
			defer s.Close()

			f, err := exportFixture(s, args[0], tolerance)
			if err != nil {
				return err
			}
			if err := replay.WriteFixture(outPath, f); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "fixture written to %s (%d epochs)\n", outPath, f.Epochs)
			return nil
		},
	}
	cmd.Flags().String("out", "", "output fixture JSON path")
	cmd.Flags().Float64("tolerance", 1e-6, "allowed mean return drift on replay")
	return cmd
}

// exportFixture rebuilds a replay fixture from a stored run.
func exportFixture(s *store.Store, runID string, tolerance float64) (*replay.Fixture, error) {
	run, err := s.GetRun(runID)
	if err != nil {
		return nil, err
	}
	if run.Status != store.StatusFinished {
		return nil, fmt.Errorf("run %s is %s, not finished", run.RunID, run.Status)
	}
	if run.PolicyJSON == "" {
		return nil, fmt.Errorf("run %s used a remote policy and cannot be replayed", run.RunID)
	}
	epochs, err := s.ListEpochs(run.RunID)
	if err != nil {
		return nil, err
	}
	if len(epochs) == 0 {
		return nil, fmt.Errorf("run %s has no epochs", run.RunID)
	}

	f := replay.Fixture{
		Description: fmt.Sprintf("exported from run %s", run.RunID),
		Params:      run.InitialParams,
		Epochs:      len(epochs),
	}
	if err := json.Unmarshal([]byte(run.ConfigJSON), &f.Planner); err != nil {
		return nil, fmt.Errorf("parse planner config: %w", err)
	}
	if err := json.Unmarshal([]byte(run.NavigationJSON), &f.Navigation); err != nil {
		return nil, fmt.Errorf("parse navigation config: %w", err)
	}
	if err := json.Unmarshal([]byte(run.PolicyJSON), &f.Policy); err != nil {
		return nil, fmt.Errorf("parse policy config: %w", err)
	}

	outcome := replay.Outcome{}
	returns := make([]float64, len(epochs))
	for i, e := range epochs {
		outcome.Actions = append(outcome.Actions, e.Action)
		returns[i] = e.CandidateReturn
	}
	switch f.Planner.Kind {
	case planner.KindEvaluate:
		outcome.MeanReturn = stat.Mean(returns, nil)
	default:
		outcome.MeanReturn = epochs[len(epochs)-1].BestReturn
	}
	pinned := replay.Pin(f, outcome, tolerance)
	return &pinned, nil
}

// #endregion export
