package main

import (
	"fmt"
	"net"

	"github.com/spf13/cobra"

	"github.com/danielpatrickdp/mrm-sim/internal/config"
	"github.com/danielpatrickdp/mrm-sim/internal/policy"
	"github.com/danielpatrickdp/mrm-sim/internal/remote"
)

func newServePolicyCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve-policy",
		Short: "Serve the linear policy over gRPC",
		Long: `Expose the configured linear policy as a PolicyService so that other
processes can roll out against it with --policy-addr.

With --run, the policy is loaded with the best parameters of that run.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			logger := newLogger(cmd, cfg)
			ctx, stop := signalContext(cmd.Context())
			defer stop()
			defer setupTelemetry(ctx, cfg, logger)()

			cfg.Remote.Addr = ""
			c, err := buildComponents(cfg)
			if err != nil {
				return err
			}
			if runID, _ := cmd.Flags().GetString("run"); runID != "" {
				if err := loadRunParams(cfg, runID, c.linear); err != nil {
					return err
				}
			}

			addr, _ := cmd.Flags().GetString("addr")
			lis, err := net.Listen("tcp", addr)
			if err != nil {
				return fmt.Errorf("listen %s: %w", addr, err)
			}
			srv := remote.NewGRPCServer(remote.NewServer(c.linear, logger))

			errCh := make(chan error, 1)
			go func() { errCh <- srv.Serve(lis) }()
			logger.Info("policy service listening", "addr", lis.Addr().String(), "params", c.linear.NumParams())
			fmt.Fprintf(cmd.OutOrStdout(), "policy service listening on %s\n", lis.Addr())

			select {
			case <-ctx.Done():
				logger.Info("shutting down policy service")
				srv.GracefulStop()
				return nil
			case err := <-errCh:
				return err
			}
		},
	}
	cmd.Flags().String("addr", "localhost:7070", "listen address")
	cmd.Flags().String("run", "", "load the best parameters of this run")
	return cmd
}

// loadRunParams sets the policy to the incumbent parameters of the run's best epoch.
func loadRunParams(cfg *config.Config, runID string, p *policy.Linear) error {
	s, err := openStore(cfg)
	if err != nil {
		return err
	}
	defer s.Close()

	best, err := s.BestEpoch(runID)
	if err != nil {
		return err
	}
	if len(best.Params) == 0 {
		return fmt.Errorf("run %s epoch %d has no parameters", runID, best.Epoch)
	}
	if err := p.SetParams(best.Params); err != nil {
		return fmt.Errorf("run %s: %w", runID, err)
	}
	return nil
}
