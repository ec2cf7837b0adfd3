// Package planner optimizes or evaluates a policy by repeatedly unrolling
// the Markov recurrent model.
package planner

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"

	"github.com/danielpatrickdp/mrm-sim/internal/eval"
	"github.com/danielpatrickdp/mrm-sim/internal/mrm"
)

// #region planner
// Planner is a policy optimization procedure over a Markov recurrent model.
type Planner interface {
	Kind() Kind
	// Build wires the model and evaluates the starting policy.
	Build(ctx context.Context) error
	// Run executes epochs, firing callbacks per event.
	Run(ctx context.Context, epochs int, callbacks Callbacks) ([]EpochResult, error)
	// Summary writes a human-readable description of the planner.
	Summary(w io.Writer) error
	// MarshalConfig serializes the planner configuration as JSON.
	MarshalConfig() ([]byte, error)
}

// New instantiates the variant tagged by cfg.Kind.
func New(cfg Config, deps Deps) (Planner, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if deps.Model == nil || deps.Policy == nil {
		return nil, fmt.Errorf("%w: model and policy are required", ErrConfig)
	}
	if deps.Logger == nil {
		deps.Logger = slog.New(slog.DiscardHandler)
	}
	b := &base{cfg: cfg, deps: deps}
	switch cfg.Kind {
	case KindRandomSearch:
		tunable, ok := deps.Policy.(Tunable)
		if !ok {
			return nil, fmt.Errorf("%w: %T", ErrNotTunable, deps.Policy)
		}
		return &RandomSearch{base: b, policy: tunable}, nil
	case KindEvaluate:
		return &Evaluate{base: b}, nil
	}
	return nil, fmt.Errorf("%w: %q", ErrUnknownKind, cfg.Kind)
}

// FromConfig decodes a JSON planner config and instantiates it. An empty
// kind in data is filled from kind; a conflicting one is an error.
func FromConfig(kind Kind, data []byte, deps Deps) (Planner, error) {
	cfg := DefaultConfig(kind)
	if err := json.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse planner config: %w", err)
	}
	if cfg.Kind == "" {
		cfg.Kind = kind
	}
	if kind != "" && cfg.Kind != kind {
		return nil, fmt.Errorf("%w: config kind %q, requested %q", ErrConfig, cfg.Kind, kind)
	}
	return New(cfg, deps)
}

// #endregion planner

// #region base
// base holds what every variant shares: the model, the rollout
// description and the eval harness.
type base struct {
	cfg     Config
	deps    Deps
	model   *mrm.Model
	rollout mrm.Rollout
	harness *eval.EvalHarness
}

func (b *base) build() error {
	reparam, err := mrm.ParseReparameterization(b.cfg.Reparameterization)
	if err != nil {
		return err
	}
	model, err := mrm.NewModel(b.deps.Model, b.deps.Policy, b.cfg.Batch)
	if err != nil {
		return fmt.Errorf("build model: %w", err)
	}
	rollout, err := model.Describe(b.cfg.Horizon, reparam)
	if err != nil {
		return fmt.Errorf("describe rollout: %w", err)
	}
	b.model = model
	b.rollout = rollout
	b.harness = eval.NewEvalHarness(b.cfg.Eval)
	return nil
}

// simulate unrolls the model once from its initial state and validates the result.
func (b *base) simulate(ctx context.Context) (mrm.Trajectory, eval.EvalResult, error) {
	initial, err := b.model.Cell().InitialState()
	if err != nil {
		return mrm.Trajectory{}, eval.EvalResult{}, fmt.Errorf("initial state: %w", err)
	}
	tr, err := b.model.Execute(ctx, b.rollout, initial)
	if err != nil {
		return mrm.Trajectory{}, eval.EvalResult{}, err
	}
	rtg, err := b.model.RewardToGo(tr.Rewards)
	if err != nil {
		return mrm.Trajectory{}, eval.EvalResult{}, fmt.Errorf("reward to go: %w", err)
	}
	return tr, b.harness.Run(tr, rtg), nil
}

func (b *base) checkRun(epochs int) error {
	if b.model == nil {
		return ErrNotBuilt
	}
	if epochs <= 0 {
		return fmt.Errorf("%w: got %d", ErrInvalidEpochs, epochs)
	}
	return nil
}

// Model returns the built model, or nil before Build.
func (b *base) Model() *mrm.Model { return b.model }

// MarshalConfig serializes the planner configuration as JSON.
func (b *base) MarshalConfig() ([]byte, error) {
	return json.MarshalIndent(b.cfg, "", "  ")
}

func (b *base) summaryHeader(w io.Writer) error {
	_, err := fmt.Fprintf(w, "planner:            %s\nbatch:              %d\nhorizon:            %d\nreparameterization: %s\n",
		b.cfg.Kind, b.cfg.Batch, b.cfg.Horizon, b.cfg.Reparameterization)
	if err != nil {
		return err
	}
	if b.model != nil {
		size := b.model.OutputSize()
		_, err = fmt.Fprintf(w, "state size:         %v\naction size:        %v\ninterm size:        %v\n",
			size.State, size.Action, size.Interm)
	}
	return err
}

// #endregion base
