package mrm

import (
	"context"
	"errors"
	"math"
	"testing"

	"github.com/danielpatrickdp/mrm-sim/internal/tensor"
)

func newTestModel(t *testing.T, model TransitionModel, batch int) *Model {
	t.Helper()
	m, err := NewModel(model, echoPolicy{}, batch)
	if err != nil {
		t.Fatalf("NewModel: %v", err)
	}
	return m
}

func TestTimesteps(t *testing.T) {
	batch, horizon := 4, 40
	m := newTestModel(t, newWalkModel(0, 1), batch)

	ts, err := m.Timesteps(horizon)
	if err != nil {
		t.Fatalf("Timesteps: %v", err)
	}
	if !tensor.SameShape(ts.Shape(), []int{batch, horizon, 1}) {
		t.Fatalf("expected [%d %d 1], got %v", batch, horizon, ts.Shape())
	}
	for b := 0; b < batch; b++ {
		for i := 0; i < horizon; i++ {
			if got := ts.At(b, i, 0); got != float64(horizon-1-i) {
				t.Fatalf("row %d step %d: expected %d, got %v", b, i, horizon-1-i, got)
			}
		}
	}
}

func TestInvalidHorizon(t *testing.T) {
	m := newTestModel(t, newWalkModel(0, 1), 2)
	if _, err := m.Timesteps(0); !errors.Is(err, ErrInvalidHorizon) {
		t.Fatalf("expected ErrInvalidHorizon, got %v", err)
	}
	if _, err := m.StopFlags(-1, FullyReparameterized); !errors.Is(err, ErrInvalidHorizon) {
		t.Fatalf("expected ErrInvalidHorizon, got %v", err)
	}
	if _, err := m.Describe(0, NotReparameterized); !errors.Is(err, ErrInvalidHorizon) {
		t.Fatalf("expected ErrInvalidHorizon, got %v", err)
	}
}

func TestStopFlags(t *testing.T) {
	batch, horizon := 3, 10
	m := newTestModel(t, newWalkModel(0, 1), batch)

	cases := []struct {
		reparam ReparameterizationType
		want    float64
	}{
		{FullyReparameterized, 0},
		{NotReparameterized, 1},
	}
	for _, tc := range cases {
		flags, err := m.StopFlags(horizon, tc.reparam)
		if err != nil {
			t.Fatalf("StopFlags(%s): %v", tc.reparam, err)
		}
		if !tensor.SameShape(flags.Shape(), []int{batch, horizon, 1}) {
			t.Fatalf("%s: unexpected shape %v", tc.reparam, flags.Shape())
		}
		for _, v := range flags.Data() {
			if v != tc.want {
				t.Fatalf("%s: expected all %v, got %v", tc.reparam, tc.want, v)
			}
		}
	}
}

func TestInputs(t *testing.T) {
	batch, horizon := 3, 12
	m := newTestModel(t, newWalkModel(0, 1), batch)
	ts, _ := m.Timesteps(horizon)

	for _, reparam := range []ReparameterizationType{FullyReparameterized, NotReparameterized} {
		flags, _ := m.StopFlags(horizon, reparam)
		in, err := m.Inputs(ts, flags)
		if err != nil {
			t.Fatalf("Inputs(%s): %v", reparam, err)
		}
		if !tensor.SameShape(in.Shape(), []int{batch, horizon, 2}) {
			t.Fatalf("%s: unexpected shape %v", reparam, in.Shape())
		}
		for b := 0; b < batch; b++ {
			for i := 0; i < horizon; i++ {
				if in.At(b, i, 0) != ts.At(b, i, 0) {
					t.Fatalf("%s: channel 0 mismatch at (%d,%d)", reparam, b, i)
				}
				if in.At(b, i, 1) != reparam.StopFlag() {
					t.Fatalf("%s: channel 1 mismatch at (%d,%d)", reparam, b, i)
				}
			}
		}
	}
}

func TestInputsShapeMismatch(t *testing.T) {
	m := newTestModel(t, newWalkModel(0, 1), 2)
	ts, _ := m.Timesteps(5)
	flags, _ := m.StopFlags(6, FullyReparameterized)
	if _, err := m.Inputs(ts, flags); !errors.Is(err, ErrShapeMismatch) {
		t.Fatalf("expected ErrShapeMismatch, got %v", err)
	}
}

func runTrajectory(t *testing.T, m *Model, horizon int, reparam ReparameterizationType) Trajectory {
	t.Helper()
	r, err := m.Describe(horizon, reparam)
	if err != nil {
		t.Fatalf("Describe: %v", err)
	}
	initial, err := m.Cell().InitialState()
	if err != nil {
		t.Fatalf("InitialState: %v", err)
	}
	tr, err := m.Execute(context.Background(), r, initial)
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	return tr
}

func TestTrajectoryShapes(t *testing.T) {
	batch, horizon := 6, 15
	for _, reparam := range []ReparameterizationType{FullyReparameterized, NotReparameterized} {
		m := newTestModel(t, newWalkModel(0.1, 3), batch)
		tr := runTrajectory(t, m, horizon, reparam)
		size := m.OutputSize()

		check := func(what string, ts []*tensor.Tensor, sizes Sizes) {
			if len(ts) != len(sizes) {
				t.Fatalf("%s %s: expected %d tensors, got %d", reparam, what, len(sizes), len(ts))
			}
			for i, x := range ts {
				want := append([]int{batch, horizon}, sizes[i]...)
				if len(sizes[i]) == 0 {
					want = []int{batch, horizon, 1}
				}
				if !tensor.SameShape(x.Shape(), want) {
					t.Fatalf("%s %s[%d]: expected %v, got %v", reparam, what, i, want, x.Shape())
				}
			}
		}
		check("states", tr.States, size.State)
		check("interms", tr.Interms, size.Interm)
		check("actions", tr.Actions, size.Action)

		if !tensor.SameShape(tr.Rewards.Shape(), []int{batch, horizon, size.Reward}) {
			t.Fatalf("%s rewards: %v", reparam, tr.Rewards.Shape())
		}
		if !tensor.SameShape(tr.LogProbs.Shape(), []int{batch, horizon, size.LogProb}) {
			t.Fatalf("%s log probs: %v", reparam, tr.LogProbs.Shape())
		}
		if len(tr.InitialState) != len(size.State) {
			t.Fatalf("%s: initial state not carried", reparam)
		}
		if tr.Horizon() != horizon {
			t.Fatalf("%s: expected horizon %d, got %d", reparam, horizon, tr.Horizon())
		}
	}
}

func TestTrajectoryThreadsStateInOrder(t *testing.T) {
	batch, horizon := 2, 5
	m := newTestModel(t, newWalkModel(0, 1), batch)
	tr := runTrajectory(t, m, horizon, NotReparameterized)

	// The echo policy moves by (timestep, stop flag): position x after step t
	// is the running sum of horizon-1 .. horizon-1-t.
	var x float64
	for i := 0; i < horizon; i++ {
		x += float64(horizon - 1 - i)
		if got := tr.Actions[0].At(0, i, 0); got != float64(horizon-1-i) {
			t.Fatalf("step %d: action saw timestep %v", i, got)
		}
		if got := tr.States[0].At(1, i, 0); got != x {
			t.Fatalf("step %d: expected x=%v, got %v", i, x, got)
		}
		if got := tr.States[0].At(1, i, 1); got != float64(i+1) {
			t.Fatalf("step %d: expected y=%d from stop flags, got %v", i, i+1, got)
		}
		if got := tr.States[1].At(0, i, 0); got != float64(i+1) {
			t.Fatalf("step %d: expected step count %d, got %v", i, i+1, got)
		}
	}
}

func TestRewardToGo(t *testing.T) {
	batch, horizon := 4, 9
	m := newTestModel(t, newWalkModel(0.3, 11), batch)
	tr := runTrajectory(t, m, horizon, NotReparameterized)

	q, err := m.RewardToGo(tr.Rewards)
	if err != nil {
		t.Fatalf("RewardToGo: %v", err)
	}
	if q.DType() != tr.Rewards.DType() || !tensor.SameShape(q.Shape(), tr.Rewards.Shape()) {
		t.Fatalf("reward to go changed dtype/shape: %s %v", q.DType(), q.Shape())
	}

	total := tr.TotalReturn()
	for b := 0; b < batch; b++ {
		if q.At(b, horizon-1, 0) != tr.Rewards.At(b, horizon-1, 0) {
			t.Fatalf("row %d: last reward-to-go differs from last reward", b)
		}
		if math.Abs(q.At(b, 0, 0)-total.At(b, 0)) > 1e-9 {
			t.Fatalf("row %d: first reward-to-go %v, total %v", b, q.At(b, 0, 0), total.At(b, 0))
		}
		for i := 0; i < horizon-1; i++ {
			want := tr.Rewards.At(b, i, 0) + q.At(b, i+1, 0)
			if math.Abs(q.At(b, i, 0)-want) > 1e-9 {
				t.Fatalf("row %d step %d: recurrence broken: %v vs %v", b, i, q.At(b, i, 0), want)
			}
		}
	}
}

func TestTrajectoryDeterministicWithSeed(t *testing.T) {
	batch, horizon := 8, 20
	a := runTrajectory(t, newTestModel(t, newWalkModel(0.5, 42), batch), horizon, NotReparameterized)
	b := runTrajectory(t, newTestModel(t, newWalkModel(0.5, 42), batch), horizon, NotReparameterized)

	if !tensor.Equal(a.Rewards, b.Rewards) {
		t.Fatal("rewards differ between identically seeded rollouts")
	}
	if !tensor.Equal(a.LogProbs, b.LogProbs) {
		t.Fatal("log probs differ between identically seeded rollouts")
	}

	c := runTrajectory(t, newTestModel(t, newWalkModel(0.5, 43), batch), horizon, NotReparameterized)
	if tensor.Equal(a.Rewards, c.Rewards) {
		t.Fatal("expected a different seed to change rewards")
	}
}

func TestTrajectoryCancelled(t *testing.T) {
	m := newTestModel(t, newWalkModel(0, 1), 2)
	r, _ := m.Describe(5, FullyReparameterized)
	initial, _ := m.Cell().InitialState()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	tr, err := m.Execute(ctx, r, initial)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	if tr.Rewards != nil {
		t.Fatal("expected no partial trajectory")
	}
}

func TestTrajectoryMalformedInputs(t *testing.T) {
	m := newTestModel(t, newWalkModel(0, 1), 2)
	initial, _ := m.Cell().InitialState()
	bad := tensor.Zeros(tensor.Float32, 2, 5, 3)
	if _, err := m.Trajectory(context.Background(), initial, bad); !errors.Is(err, ErrMalformedInput) {
		t.Fatalf("expected ErrMalformedInput, got %v", err)
	}
}

func TestParseReparameterization(t *testing.T) {
	for _, r := range []ReparameterizationType{FullyReparameterized, NotReparameterized} {
		got, err := ParseReparameterization(r.String())
		if err != nil || got != r {
			t.Fatalf("round trip %s: got %v, %v", r, got, err)
		}
	}
	if _, err := ParseReparameterization("sometimes"); err == nil {
		t.Fatal("expected error for unknown type")
	}
}
