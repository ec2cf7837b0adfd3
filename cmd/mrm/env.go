package main

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/danielpatrickdp/mrm-sim/internal/config"
	"github.com/danielpatrickdp/mrm-sim/internal/logging"
	"github.com/danielpatrickdp/mrm-sim/internal/mrm"
	"github.com/danielpatrickdp/mrm-sim/internal/navigation"
	"github.com/danielpatrickdp/mrm-sim/internal/policy"
	"github.com/danielpatrickdp/mrm-sim/internal/remote"
	"github.com/danielpatrickdp/mrm-sim/internal/store"
	"github.com/danielpatrickdp/mrm-sim/internal/telemetry"
)

// #region config
// loadConfig reads --config, applies environment and flag overrides and validates.
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	path, _ := cmd.Flags().GetString("config")
	cfg, err := config.Load(path)
	if err != nil {
		return nil, err
	}
	if db, _ := cmd.Flags().GetString("db"); db != "" {
		cfg.Store.Path = db
	}
	if level, _ := cmd.Flags().GetString("log-level"); level != "" {
		cfg.Logging.Level = level
	}
	if f := cmd.Flags().Lookup("epochs"); f != nil && f.Changed {
		cfg.Epochs, _ = cmd.Flags().GetInt("epochs")
	}
	if f := cmd.Flags().Lookup("batch"); f != nil && f.Changed {
		cfg.Planner.Batch, _ = cmd.Flags().GetInt("batch")
	}
	if f := cmd.Flags().Lookup("horizon"); f != nil && f.Changed {
		cfg.Planner.Horizon, _ = cmd.Flags().GetInt("horizon")
		cfg.Policy.Horizon = cfg.Planner.Horizon
	}
	if f := cmd.Flags().Lookup("policy-addr"); f != nil && f.Changed {
		cfg.Remote.Addr, _ = cmd.Flags().GetString("policy-addr")
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

func newLogger(cmd *cobra.Command, cfg *config.Config) *slog.Logger {
	return logging.NewLogger(cfg.Logging.Level, cmd.ErrOrStderr())
}

// signalContext is cancelled on SIGINT or SIGTERM.
func signalContext(parent context.Context) (context.Context, context.CancelFunc) {
	return signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
}

// setupTelemetry starts tracing when an endpoint is configured.
func setupTelemetry(ctx context.Context, cfg *config.Config, logger *slog.Logger) func() {
	shutdown, err := telemetry.Setup(ctx, cfg.Telemetry.ServiceName, cfg.Telemetry.Endpoint)
	if err != nil {
		logger.Warn("telemetry disabled", "error", err)
	}
	return func() {
		if err := shutdown(context.Background()); err != nil {
			logger.Warn("telemetry shutdown", "error", err)
		}
	}
}

// #endregion config

// #region components
// components are the collaborators a command simulates with.
type components struct {
	nav    *navigation.Model
	linear *policy.Linear // nil when the policy is remote
	policy mrm.Policy
	close  func() error
}

// buildComponents creates the navigation model and either the local linear
// policy or a client for the configured policy service.
func buildComponents(cfg *config.Config) (*components, error) {
	nav, err := navigation.NewModel(cfg.Navigation)
	if err != nil {
		return nil, err
	}
	c := &components{nav: nav, close: func() error { return nil }}

	if cfg.Remote.Addr != "" {
		client, err := remote.Dial(cfg.Remote.Addr)
		if err != nil {
			return nil, err
		}
		client.Timeout = cfg.Remote.Timeout
		c.policy = client
		c.close = client.Close
		return c, nil
	}

	c.linear, err = policy.NewLinear(nav.StateSize(), nav.ActionSize(), cfg.Policy)
	if err != nil {
		return nil, err
	}
	c.policy = c.linear
	return c, nil
}

func openStore(cfg *config.Config) (*store.Store, error) {
	s, err := store.NewStore(cfg.Store.Path)
	if err != nil {
		return nil, fmt.Errorf("open store %s: %w", cfg.Store.Path, err)
	}
	return s, nil
}

// #endregion components

func finiteOrZero(x float64) float64 {
	if math.IsNaN(x) || math.IsInf(x, 0) {
		return 0
	}
	return x
}
