// Package replay re-executes pinned planner runs and checks that they are
// deterministic and still match their recorded expectations.
package replay

import (
	"context"
	"fmt"
	"log/slog"
	"math"

	"github.com/danielpatrickdp/mrm-sim/internal/navigation"
	"github.com/danielpatrickdp/mrm-sim/internal/planner"
	"github.com/danielpatrickdp/mrm-sim/internal/policy"
)

// #region types
// Outcome is the result of one execution of a fixture.
type Outcome struct {
	Results    []planner.EpochResult
	Actions    []string
	MeanReturn float64   // incumbent (random search) or overall (evaluate) mean return
	Params     []float64 // final policy parameters
}

// Report compares two executions of a fixture with each other and with
// the fixture's expectations.
type Report struct {
	First, Second   Outcome
	Deterministic   bool
	ActionsMatch    bool
	WithinTolerance bool
	Passed          bool
	Reason          string
}

// #endregion types

// #region replay
// Execute runs a fixture once with freshly seeded components.
func Execute(ctx context.Context, f *Fixture, logger *slog.Logger) (Outcome, error) {
	if err := f.Validate(); err != nil {
		return Outcome{}, err
	}
	nav, err := navigation.NewModel(f.Navigation)
	if err != nil {
		return Outcome{}, err
	}
	pol, err := policy.NewLinear(nav.StateSize(), nav.ActionSize(), f.Policy)
	if err != nil {
		return Outcome{}, err
	}
	if len(f.Params) > 0 {
		if err := pol.SetParams(f.Params); err != nil {
			return Outcome{}, fmt.Errorf("fixture params: %w", err)
		}
	}

	p, err := planner.New(f.Planner, planner.Deps{Model: nav, Policy: pol, Logger: logger})
	if err != nil {
		return Outcome{}, err
	}
	if err := p.Build(ctx); err != nil {
		return Outcome{}, err
	}
	results, err := p.Run(ctx, f.Epochs, nil)
	if err != nil {
		return Outcome{}, err
	}

	out := Outcome{Results: results, Params: pol.Params()}
	for _, r := range results {
		out.Actions = append(out.Actions, r.Action)
	}
	switch v := p.(type) {
	case *planner.RandomSearch:
		out.MeanReturn = v.Best().MeanReturn
	case *planner.Evaluate:
		out.MeanReturn, _ = v.Overall()
	}
	return out, nil
}

// Replay executes the fixture twice and checks determinism and expectations.
func Replay(ctx context.Context, f *Fixture, logger *slog.Logger) (Report, error) {
	first, err := Execute(ctx, f, logger)
	if err != nil {
		return Report{}, fmt.Errorf("first run: %w", err)
	}
	second, err := Execute(ctx, f, logger)
	if err != nil {
		return Report{}, fmt.Errorf("second run: %w", err)
	}

	r := Report{
		First:           first,
		Second:          second,
		Deterministic:   sameOutcome(first, second),
		ActionsMatch:    true,
		WithinTolerance: true,
	}
	if want := f.Expected.Actions; len(want) > 0 {
		for i := range want {
			if first.Actions[i] != want[i] {
				r.ActionsMatch = false
				break
			}
		}
	}
	if want := f.Expected.MeanReturn; want != nil {
		r.WithinTolerance = math.Abs(first.MeanReturn-*want) <= f.Expected.Tolerance
	}

	switch {
	case !r.Deterministic:
		r.Reason = "runs diverged under identical seeds"
	case !r.ActionsMatch:
		r.Reason = fmt.Sprintf("actions %v, expected %v", first.Actions, f.Expected.Actions)
	case !r.WithinTolerance:
		r.Reason = fmt.Sprintf("mean return %.6f, expected %.6f ± %g", first.MeanReturn, *f.Expected.MeanReturn, f.Expected.Tolerance)
	default:
		r.Passed = true
		r.Reason = "deterministic and matches expectations"
	}
	return r, nil
}

// Pin returns a copy of f whose expectations are the outcome o.
func Pin(f Fixture, o Outcome, tolerance float64) Fixture {
	mean := o.MeanReturn
	f.Expected = FixtureExpected{
		MeanReturn: &mean,
		Tolerance:  tolerance,
		Actions:    append([]string(nil), o.Actions...),
	}
	return f
}

func sameOutcome(a, b Outcome) bool {
	if len(a.Results) != len(b.Results) || len(a.Params) != len(b.Params) {
		return false
	}
	for i := range a.Results {
		ra, rb := a.Results[i], b.Results[i]
		if ra.Action != rb.Action || ra.Candidate != rb.Candidate || ra.Best != rb.Best {
			return false
		}
	}
	for i := range a.Params {
		if a.Params[i] != b.Params[i] {
			return false
		}
	}
	return a.MeanReturn == b.MeanReturn
}

// #endregion replay
