package replay

import (
	"context"
	"testing"

	"github.com/danielpatrickdp/mrm-sim/internal/planner"
)

// helper: small fixture so each replay stays fast.
func smallFixture(kind planner.Kind) Fixture {
	f := DefaultFixture()
	f.Planner.Kind = kind
	f.Planner.Batch = 4
	f.Planner.Horizon = 8
	f.Policy.Horizon = 8
	f.Epochs = 3
	return f
}

// 1. Determinism: two executions of the same fixture agree bit for bit.
func TestReplay_Deterministic(t *testing.T) {
	f := smallFixture(planner.KindRandomSearch)
	report, err := Replay(context.Background(), &f, nil)
	if err != nil {
		t.Fatalf("Replay: %v", err)
	}
	if !report.Deterministic {
		t.Fatal("expected deterministic replay")
	}
	if !report.Passed {
		t.Fatalf("expected pass without expectations, got %s", report.Reason)
	}
}

// 2. Pinning: an outcome pinned into the fixture replays as a pass.
func TestReplay_PinnedExpectations(t *testing.T) {
	f := smallFixture(planner.KindRandomSearch)
	out, err := Execute(context.Background(), &f, nil)
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}

	pinned := Pin(f, out, 1e-12)
	report, err := Replay(context.Background(), &pinned, nil)
	if err != nil {
		t.Fatalf("Replay: %v", err)
	}
	if !report.Passed {
		t.Fatalf("expected pinned fixture to pass: %s", report.Reason)
	}
}

// 3. Action drift: a wrong expected action is reported.
func TestReplay_ActionMismatch(t *testing.T) {
	f := smallFixture(planner.KindEvaluate)
	f.Expected.Actions = []string{"evaluate", "commit", "evaluate"}

	report, err := Replay(context.Background(), &f, nil)
	if err != nil {
		t.Fatalf("Replay: %v", err)
	}
	if report.ActionsMatch || report.Passed {
		t.Fatalf("expected action mismatch, got %+v", report)
	}
}

// 4. Return drift: a wrong expected mean return is reported.
func TestReplay_ReturnOutOfTolerance(t *testing.T) {
	f := smallFixture(planner.KindEvaluate)
	wrong := 12345.0
	f.Expected.MeanReturn = &wrong

	report, err := Replay(context.Background(), &f, nil)
	if err != nil {
		t.Fatalf("Replay: %v", err)
	}
	if report.WithinTolerance || report.Passed {
		t.Fatalf("expected tolerance failure, got %+v", report)
	}
}

// 5. Starting params: fixture params are loaded into the policy.
func TestExecute_StartingParams(t *testing.T) {
	f := smallFixture(planner.KindEvaluate)
	out, err := Execute(context.Background(), &f, nil)
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}

	f.Params = make([]float64, len(out.Params))
	zeroed, err := Execute(context.Background(), &f, nil)
	if err != nil {
		t.Fatalf("Execute with params: %v", err)
	}
	for i, v := range zeroed.Params {
		if v != 0 {
			t.Fatalf("param %d: expected 0, got %v", i, v)
		}
	}

	f.Params = []float64{1, 2}
	if _, err := Execute(context.Background(), &f, nil); err == nil {
		t.Fatal("expected error for wrong param count")
	}
}

// 6. Validation: non-positive epochs and mismatched expectations are rejected.
func TestExecute_InvalidFixture(t *testing.T) {
	f := smallFixture(planner.KindEvaluate)
	f.Epochs = 0
	if _, err := Execute(context.Background(), &f, nil); err == nil {
		t.Fatal("expected error for zero epochs")
	}

	f = smallFixture(planner.KindEvaluate)
	f.Expected.Actions = []string{"evaluate"}
	if _, err := Execute(context.Background(), &f, nil); err == nil {
		t.Fatal("expected error for short expected actions")
	}
}
