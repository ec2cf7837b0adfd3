// Package fluent holds named, possibly stochastic, per-step quantities and
// the scope that maps fluent names to their current values.
package fluent

import (
	"errors"
	"fmt"
	"sort"

	"github.com/danielpatrickdp/mrm-sim/internal/tensor"
)

// Reserved scope keys the simulation cell binds before sampling.
const (
	Timestep = "__timestep__"
	StopFlag = "__stop_flag__"
)

// ErrMissing is returned when a scope lookup names an unbound fluent.
var ErrMissing = errors.New("fluent: missing scope entry")

// #region triple
// Triple is a named fluent value plus the log-probability of the draw that
// produced it. LogProb is nil for deterministic fluents.
type Triple struct {
	Name    string
	Value   *tensor.Tensor
	LogProb *tensor.Tensor
}

// Stochastic reports whether the fluent carries a log-probability.
func (f Triple) Stochastic() bool {
	return f.LogProb != nil
}

// #endregion triple

// #region scope
// Scope maps fluent names to values.
type Scope map[string]*tensor.Tensor

// Lookup returns the value bound to name.
func (s Scope) Lookup(name string) (*tensor.Tensor, error) {
	v, ok := s[name]
	if !ok || v == nil {
		return nil, fmt.Errorf("%w: %q", ErrMissing, name)
	}
	return v, nil
}

// Update binds every triple's value under its name, replacing existing entries.
func (s Scope) Update(fluents []Triple) {
	for _, f := range fluents {
		s[f.Name] = f.Value
	}
}

// Names returns the bound names in sorted order.
func (s Scope) Names() []string {
	names := make([]string, 0, len(s))
	for k := range s {
		names = append(names, k)
	}
	sort.Strings(names)
	return names
}

// #endregion scope
