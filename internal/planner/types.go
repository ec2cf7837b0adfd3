package planner

import (
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/danielpatrickdp/mrm-sim/internal/eval"
	"github.com/danielpatrickdp/mrm-sim/internal/gate"
	"github.com/danielpatrickdp/mrm-sim/internal/mrm"
	"github.com/danielpatrickdp/mrm-sim/internal/update"
)

var (
	ErrUnknownKind   = errors.New("planner: unknown kind")
	ErrNotBuilt      = errors.New("planner: not built")
	ErrInvalidEpochs = errors.New("planner: epochs must be positive")
	ErrNotTunable    = errors.New("planner: policy has no tunable parameters")
	ErrConfig        = errors.New("planner: invalid config")
)

// #region kind
// Kind tags a planner variant.
type Kind string

const (
	KindRandomSearch Kind = "random_search"
	KindEvaluate     Kind = "evaluate"
)

// #endregion kind

// #region events
// Callback events.
const (
	EventEpochStart = "epoch_start"
	EventEpochEnd   = "epoch_end"
)

// Callback observes one epoch. A non-nil error stops Run.
type Callback func(EpochResult) error

// Callbacks maps an event name to the callbacks fired for it.
type Callbacks map[string][]Callback

func (c Callbacks) fire(event string, r EpochResult) error {
	for i, cb := range c[event] {
		if err := cb(r); err != nil {
			return fmt.Errorf("%s callback %d: %w", event, i, err)
		}
	}
	return nil
}

// #endregion events

// #region config
// Config is the serialized planner configuration.
type Config struct {
	Kind               Kind            `json:"kind" yaml:"kind"`
	Batch              int             `json:"batch" yaml:"batch"`
	Horizon            int             `json:"horizon" yaml:"horizon"`
	Reparameterization string          `json:"reparameterization" yaml:"reparameterization"`
	Seed               uint64          `json:"seed" yaml:"seed"` // proposal noise seed
	Update             update.Config   `json:"update" yaml:"update"`
	Gate               gate.GateConfig `json:"gate" yaml:"gate"`
	Eval               eval.EvalConfig `json:"eval" yaml:"eval"`
}

// DefaultConfig returns a config for the given kind.
func DefaultConfig(kind Kind) Config {
	return Config{
		Kind:               kind,
		Batch:              64,
		Horizon:            40,
		Reparameterization: mrm.FullyReparameterized.String(),
		Seed:               11,
		Update:             update.DefaultConfig(),
		Gate:               gate.DefaultGateConfig(),
		Eval:               eval.DefaultEvalConfig(),
	}
}

// Validate checks dimensions and enum values.
func (c Config) Validate() error {
	if c.Kind != KindRandomSearch && c.Kind != KindEvaluate {
		return fmt.Errorf("%w: %q", ErrUnknownKind, c.Kind)
	}
	if c.Batch <= 0 {
		return fmt.Errorf("%w: batch %d", ErrConfig, c.Batch)
	}
	if c.Horizon <= 0 {
		return fmt.Errorf("%w: horizon %d", ErrConfig, c.Horizon)
	}
	if _, err := mrm.ParseReparameterization(c.Reparameterization); err != nil {
		return fmt.Errorf("%w: %v", ErrConfig, err)
	}
	return nil
}

// #endregion config

// #region deps
// Tunable is a policy whose parameters random search can perturb.
type Tunable interface {
	mrm.Policy
	Params() []float64
	SetParams([]float64) error
	Blocks() []int
}

// Deps are the collaborators a planner is built from.
type Deps struct {
	Model  mrm.TransitionModel
	Policy mrm.Policy
	Logger *slog.Logger
}

// #endregion deps

// #region epoch-result
// EpochResult captures the outcome of one epoch.
type EpochResult struct {
	Epoch  int
	Action string // "commit" | "gate_reject" | "eval_rollback" | "evaluate"
	Reason string

	Candidate eval.Summary // rollout statistics for this epoch's policy
	Best      eval.Summary // incumbent after this epoch

	UpdateMetrics *update.Metrics
	GateDecision  *gate.GateDecision
	EvalResult    *eval.EvalResult

	Params  []float64 // incumbent parameters after this epoch, nil for fixed policies
	Elapsed time.Duration
}

// #endregion epoch-result
