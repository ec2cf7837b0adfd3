package main

import (
	"encoding/json"
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/danielpatrickdp/mrm-sim/internal/eval"
	"github.com/danielpatrickdp/mrm-sim/internal/mrm"
)

// simulateOutput is the JSON shape of a simulate result.
type simulateOutput struct {
	Batch              int               `json:"batch"`
	Horizon            int               `json:"horizon"`
	Reparameterization string            `json:"reparameterization"`
	Returns            []float64         `json:"returns"`
	Summary            eval.Summary      `json:"summary"`
	Passed             bool              `json:"passed"`
	Reason             string            `json:"reason"`
	Metrics            []eval.EvalMetric `json:"metrics"`
}

func newSimulateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "simulate",
		Short: "Run one batched rollout and print its returns",
		Long: `Unroll the configured policy through the navigation model for one
horizon and report per-row total returns with the eval checks.

With --policy-addr (or MRM_POLICY_ADDR) the policy is queried over gRPC.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			logger := newLogger(cmd, cfg)
			ctx, stop := signalContext(cmd.Context())
			defer stop()
			defer setupTelemetry(ctx, cfg, logger)()

			reparam, err := mrm.ParseReparameterization(cfg.Planner.Reparameterization)
			if err != nil {
				return err
			}
			if r, _ := cmd.Flags().GetString("reparam"); r != "" {
				if reparam, err = mrm.ParseReparameterization(r); err != nil {
					return err
				}
			}

			c, err := buildComponents(cfg)
			if err != nil {
				return err
			}
			defer c.close()

			model, err := mrm.NewModel(c.nav, c.policy, cfg.Planner.Batch)
			if err != nil {
				return err
			}
			rollout, err := model.Describe(cfg.Planner.Horizon, reparam)
			if err != nil {
				return err
			}
			initial, err := model.Cell().InitialState()
			if err != nil {
				return err
			}
			tr, err := model.Execute(ctx, rollout, initial)
			if err != nil {
				return err
			}
			rtg, err := model.RewardToGo(tr.Rewards)
			if err != nil {
				return err
			}
			result := eval.NewEvalHarness(cfg.Planner.Eval).Run(tr, rtg)
			logger.Info("simulated", "batch", result.Summary.Batch, "horizon", result.Summary.Horizon,
				"mean_return", result.Summary.MeanReturn, "passed", result.Passed)

			out := simulateOutput{
				Batch:              cfg.Planner.Batch,
				Horizon:            cfg.Planner.Horizon,
				Reparameterization: reparam.String(),
				Returns:            tr.TotalReturn().Data(),
				Summary:            result.Summary,
				Passed:             result.Passed,
				Reason:             result.Reason,
				Metrics:            result.Metrics,
			}
			if jsonOut, _ := cmd.Flags().GetBool("json"); jsonOut {
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				return enc.Encode(out)
			}
			return printSimulation(cmd, out)
		},
	}

	cmd.Flags().Int("batch", 0, "batch size (overrides config)")
	cmd.Flags().Int("horizon", 0, "rollout horizon (overrides config)")
	cmd.Flags().String("reparam", "", "fully_reparameterized or not_reparameterized")
	cmd.Flags().String("policy-addr", "", "query a remote policy service at this address")
	return cmd
}

func printSimulation(cmd *cobra.Command, out simulateOutput) error {
	w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
	fmt.Fprintf(w, "batch:\t%d\n", out.Batch)
	fmt.Fprintf(w, "horizon:\t%d\n", out.Horizon)
	fmt.Fprintf(w, "reparameterization:\t%s\n", out.Reparameterization)
	fmt.Fprintf(w, "mean return:\t%.4f ± %.4f\n", out.Summary.MeanReturn, out.Summary.StdReturn)
	fmt.Fprintf(w, "mean log prob:\t%.4f\n", out.Summary.MeanLogProb)
	fmt.Fprintf(w, "eval:\t%s\n", out.Reason)
	for _, m := range out.Metrics {
		status := "ok"
		if !m.Pass {
			status = "FAIL"
		}
		fmt.Fprintf(w, "  %s\t%.6g\t%s\n", m.Name, m.Value, status)
	}
	return w.Flush()
}
