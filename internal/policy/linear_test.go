package policy

import (
	"errors"
	"math"
	"testing"

	"github.com/danielpatrickdp/mrm-sim/internal/mrm"
	"github.com/danielpatrickdp/mrm-sim/internal/tensor"
)

func newTestPolicy(t *testing.T, cfg Config) *Linear {
	t.Helper()
	p, err := NewLinear(mrm.Sizes{{2}}, mrm.Sizes{{2}, {}}, cfg)
	if err != nil {
		t.Fatalf("NewLinear: %v", err)
	}
	return p
}

func testInputs(batch int) ([]*tensor.Tensor, *tensor.Tensor) {
	state := tensor.Full(tensor.Float32, 1, batch, 2)
	input := tensor.Full(tensor.Float32, 3, batch, 2)
	return []*tensor.Tensor{state}, input
}

func TestNumParams(t *testing.T) {
	p := newTestPolicy(t, DefaultConfig())
	// 3 outputs x (2 state + 2 input) weights, plus 3 biases.
	if p.NumParams() != 15 {
		t.Fatalf("expected 15 params, got %d", p.NumParams())
	}
	blocks := p.Blocks()
	if len(blocks) != 2 || blocks[0] != 12 || blocks[1] != 3 {
		t.Fatalf("unexpected blocks %v", blocks)
	}
	if len(p.Params()) != 15 {
		t.Fatalf("expected 15 values from Params, got %d", len(p.Params()))
	}
}

func TestActShapes(t *testing.T) {
	batch := 5
	p := newTestPolicy(t, DefaultConfig())
	state, input := testInputs(batch)

	actions, err := p.Act(state, input)
	if err != nil {
		t.Fatalf("Act: %v", err)
	}
	if len(actions) != 2 {
		t.Fatalf("expected 2 action tensors, got %d", len(actions))
	}
	if !tensor.SameShape(actions[0].Shape(), []int{batch, 2}) {
		t.Fatalf("action 0: %v", actions[0].Shape())
	}
	if !tensor.SameShape(actions[1].Shape(), []int{batch, 1}) {
		t.Fatalf("action 1: %v", actions[1].Shape())
	}
}

func TestActBounded(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Bound = 2
	p := newTestPolicy(t, cfg)
	params := p.Params()
	for i := range params {
		params[i] = 100
	}
	if err := p.SetParams(params); err != nil {
		t.Fatalf("SetParams: %v", err)
	}

	state, input := testInputs(3)
	actions, _ := p.Act(state, input)
	for _, a := range actions {
		for _, v := range a.Data() {
			if math.Abs(v) > cfg.Bound {
				t.Fatalf("action %v exceeds bound %v", v, cfg.Bound)
			}
		}
	}
}

func TestZeroParamsGiveZeroActions(t *testing.T) {
	p := newTestPolicy(t, DefaultConfig())
	if err := p.SetParams(make([]float64, p.NumParams())); err != nil {
		t.Fatalf("SetParams: %v", err)
	}
	state, input := testInputs(2)
	actions, _ := p.Act(state, input)
	for _, a := range actions {
		if a.Sum() != 0 {
			t.Fatalf("expected zero action, got %v", a)
		}
	}
}

func TestSetParamsRoundTrip(t *testing.T) {
	p := newTestPolicy(t, DefaultConfig())
	want := make([]float64, p.NumParams())
	for i := range want {
		want[i] = float64(i) / 10
	}
	if err := p.SetParams(want); err != nil {
		t.Fatalf("SetParams: %v", err)
	}
	got := p.Params()
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("param %d: expected %v, got %v", i, want[i], got[i])
		}
	}

	if err := p.SetParams(want[:3]); !errors.Is(err, ErrParams) {
		t.Fatalf("expected ErrParams, got %v", err)
	}
}

func TestCloneIsIndependent(t *testing.T) {
	p := newTestPolicy(t, DefaultConfig())
	c := p.Clone()
	if err := c.SetParams(make([]float64, c.NumParams())); err != nil {
		t.Fatalf("SetParams: %v", err)
	}
	var sum float64
	for _, v := range p.Params() {
		sum += math.Abs(v)
	}
	if sum == 0 {
		t.Fatal("clone mutation leaked into original")
	}
}

func TestSeededInitDeterministic(t *testing.T) {
	a := newTestPolicy(t, DefaultConfig()).Params()
	b := newTestPolicy(t, DefaultConfig()).Params()
	for i := range a {
		if a[i] != b[i] {
			t.Fatalf("param %d differs: %v vs %v", i, a[i], b[i])
		}
	}
}

func TestNewLinearRejectsBadConfig(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Bound = 0
	if _, err := NewLinear(mrm.Sizes{{2}}, mrm.Sizes{{2}}, cfg); err == nil {
		t.Fatal("expected error for zero bound")
	}
	if _, err := NewLinear(mrm.Sizes{{2}}, nil, DefaultConfig()); err == nil {
		t.Fatal("expected error for no actions")
	}
}
