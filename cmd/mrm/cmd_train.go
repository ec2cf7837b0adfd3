package main

import (
	"encoding/json"
	"fmt"
	"math"

	"github.com/spf13/cobra"

	"github.com/danielpatrickdp/mrm-sim/internal/config"
	"github.com/danielpatrickdp/mrm-sim/internal/logging"
	"github.com/danielpatrickdp/mrm-sim/internal/planner"
	"github.com/danielpatrickdp/mrm-sim/internal/store"
)

func newTrainCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "train",
		Short: "Run a planner and record every epoch",
		Long: `Build the configured planner, run it for the configured number of
epochs and record the run, its epochs and a provenance row per decision
in the run database.

A random_search planner needs the local linear policy; evaluate also
works against a remote policy service.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			if kind, _ := cmd.Flags().GetString("kind"); kind != "" {
				cfg.Planner.Kind = planner.Kind(kind)
				if err := cfg.Validate(); err != nil {
					return fmt.Errorf("invalid config: %w", err)
				}
			}
			logger := newLogger(cmd, cfg)
			ctx, stop := signalContext(cmd.Context())
			defer stop()
			defer setupTelemetry(ctx, cfg, logger)()

			c, err := buildComponents(cfg)
			if err != nil {
				return err
			}
			defer c.close()

			p, err := planner.New(cfg.Planner, planner.Deps{Model: c.nav, Policy: c.policy, Logger: logger})
			if err != nil {
				return err
			}

			s, err := openStore(cfg)
			if err != nil {
				return err
			}
			defer s.Close()

			run, err := createRun(s, p, cfg, c)
			if err != nil {
				return err
			}
			logger = logger.With("run_id", run.RunID)
			logger.Info("run started", "kind", p.Kind(), "epochs", cfg.Epochs)

			callbacks := planner.Callbacks{
				planner.EventEpochEnd: {func(r planner.EpochResult) error {
					return recordEpoch(s, run.RunID, cfg.Planner, r)
				}},
			}

			err = p.Build(ctx)
			if err == nil {
				_, err = p.Run(ctx, cfg.Epochs, callbacks)
			}
			status := store.StatusFinished
			if err != nil {
				status = store.StatusFailed
			}
			if ferr := s.FinishRun(run.RunID, status); ferr != nil {
				logger.Warn("finish run", "error", ferr)
			}
			if err != nil {
				return fmt.Errorf("run %s: %w", run.RunID, err)
			}
			logger.Info("run finished")

			if jsonOut, _ := cmd.Flags().GetBool("json"); jsonOut {
				return json.NewEncoder(cmd.OutOrStdout()).Encode(map[string]string{"run_id": run.RunID, "status": status})
			}
			fmt.Fprintf(cmd.OutOrStdout(), "run %s %s\n", run.RunID, status)
			return p.Summary(cmd.OutOrStdout())
		},
	}

	cmd.Flags().String("kind", "", "planner kind: random_search or evaluate (overrides config)")
	cmd.Flags().Int("epochs", 0, "number of epochs (overrides config)")
	cmd.Flags().Int("batch", 0, "batch size (overrides config)")
	cmd.Flags().Int("horizon", 0, "rollout horizon (overrides config)")
	cmd.Flags().String("policy-addr", "", "query a remote policy service at this address")
	return cmd
}

// createRun stores the run header with everything needed to reproduce it.
func createRun(s *store.Store, p planner.Planner, cfg *config.Config, c *components) (store.Run, error) {
	plannerJSON, err := p.MarshalConfig()
	if err != nil {
		return store.Run{}, fmt.Errorf("marshal planner config: %w", err)
	}
	navJSON, err := json.Marshal(cfg.Navigation)
	if err != nil {
		return store.Run{}, fmt.Errorf("marshal navigation config: %w", err)
	}
	run := store.Run{
		Kind:           string(p.Kind()),
		ConfigJSON:     string(plannerJSON),
		NavigationJSON: string(navJSON),
	}
	if c.linear != nil {
		polJSON, err := json.Marshal(cfg.Policy)
		if err != nil {
			return store.Run{}, fmt.Errorf("marshal policy config: %w", err)
		}
		run.PolicyJSON = string(polJSON)
		run.InitialParams = c.linear.Params()
	}
	return s.CreateRun(run)
}

// recordEpoch writes the epoch row and its provenance entry.
func recordEpoch(s *store.Store, runID string, cfg planner.Config, r planner.EpochResult) error {
	delta := math.NaN()
	if r.UpdateMetrics != nil {
		delta = r.UpdateMetrics.DeltaNorm
	}
	err := s.RecordEpoch(store.Epoch{
		RunID:           runID,
		Epoch:           r.Epoch,
		Action:          r.Action,
		Reason:          r.Reason,
		CandidateReturn: r.Candidate.MeanReturn,
		BestReturn:      r.Best.MeanReturn,
		MeanLogProb:     r.Candidate.MeanLogProb,
		DeltaNorm:       delta,
		Params:          r.Params,
		ElapsedMs:       r.Elapsed.Milliseconds(),
	})
	if err != nil {
		return err
	}
	entry, err := planner.Provenance(runID, cfg, r)
	if err != nil {
		return err
	}
	return logging.LogDecision(s.DB(), entry)
}
