// Package trigger builds the trigger specification armed for one capture run.
package trigger

import (
	"chipscope/internal/codec"
	"chipscope/internal/common"
	"chipscope/internal/ila"
	"chipscope/internal/probe"
	"chipscope/internal/tsm"
)

type Kind int

const (
	KindMatch Kind = iota
	KindAnd
	KindOr
)

// Cond is a basic trigger expression. Each Match leaf consumes one
// hardware match unit.
type Cond struct {
	Kind Kind             `cbor:"1,keyasint"`
	Cmp  codec.Comparator `cbor:"2,keyasint,omitempty"`
	Args []*Cond          `cbor:"3,keyasint,omitempty"`
}

// Match wraps a bound comparator as a leaf.
func Match(cmp codec.Comparator) *Cond { return &Cond{Kind: KindMatch, Cmp: cmp} }

func And(args ...*Cond) *Cond { return &Cond{Kind: KindAnd, Args: args} }

func Or(args ...*Cond) *Cond { return &Cond{Kind: KindOr, Args: args} }

// Clause encodes value for the named probe and returns a bound leaf.
func Clause(m *probe.Map, name, value string, op ila.Operator) (*Cond, error) {
	p, err := m.Probe(name)
	if err != nil {
		return nil, err
	}
	cmp, err := codec.EncodeMatch(p, value, op)
	if err != nil {
		return nil, err
	}
	if cmp, err = cmp.Bind(m); err != nil {
		return nil, err
	}
	return Match(cmp), nil
}

// Clauses returns the flattened number of match leaves.
func (c *Cond) Clauses() int {
	if c == nil {
		return 0
	}
	if c.Kind == KindMatch {
		return 1
	}
	n := 0
	for _, a := range c.Args {
		n += a.Clauses()
	}
	return n
}

// Eval evaluates the expression on a sample. prev is nil for the first one.
func (c *Cond) Eval(prev, cur []byte) bool {
	switch c.Kind {
	case KindMatch:
		return c.Cmp.Match(prev, cur)
	case KindAnd:
		for _, a := range c.Args {
			if !a.Eval(prev, cur) {
				return false
			}
		}
		return true
	case KindOr:
		for _, a := range c.Args {
			if a.Eval(prev, cur) {
				return true
			}
		}
	}
	return false
}

func (c *Cond) validate() error {
	if c == nil {
		return common.Errorf(ila.ErrInvalidParam, "nil trigger condition")
	}
	switch c.Kind {
	case KindMatch:
		if len(c.Cmp.Bits) != c.Cmp.Width || c.Cmp.Width == 0 {
			return common.ProbeError(ila.ErrInvalidParam, c.Cmp.Probe, "comparator is not bound to the probe map")
		}
	case KindAnd, KindOr:
		if len(c.Args) == 0 {
			return common.Errorf(ila.ErrInvalidParam, "empty AND/OR group")
		}
		for _, a := range c.Args {
			if err := a.validate(); err != nil {
				return err
			}
		}
	default:
		return common.Errorf(ila.ErrInvalidParam, "unknown condition kind %d", c.Kind)
	}
	return nil
}

func (c *Cond) check(dataWidth int) error {
	if c.Kind == KindMatch {
		return c.Cmp.Check(dataWidth)
	}
	for _, a := range c.Args {
		if err := a.check(dataWidth); err != nil {
			return err
		}
	}
	return nil
}

func (c *Cond) probes(seen map[string]bool, out []string) []string {
	if c == nil {
		return out
	}
	if c.Kind == KindMatch && !seen[c.Cmp.Probe] {
		seen[c.Cmp.Probe] = true
		out = append(out, c.Cmp.Probe)
	}
	for _, a := range c.Args {
		out = a.probes(seen, out)
	}
	return out
}

// Spec is the trigger armed for a run. Exactly one of Basic or Program is
// set for the basic and advanced modes; immediate specs carry neither.
type Spec struct {
	Mode    ila.TriggerMode `cbor:"1,keyasint"`
	Basic   *Cond           `cbor:"2,keyasint,omitempty"`
	Program *tsm.Program    `cbor:"3,keyasint,omitempty"`
}

// BuildImmediate returns a spec that triggers on the first sample after arm.
func BuildImmediate() *Spec { return &Spec{Mode: ila.TriggerImmediate} }

// BuildBasic checks the expression against the core's match unit budget.
func BuildBasic(cond *Cond, g ila.Geometry) (*Spec, error) {
	if err := cond.validate(); err != nil {
		return nil, err
	}
	if n := cond.Clauses(); n > g.MatchUnits {
		return nil, common.Errorf(ila.ErrTooManyMatchUnits, "condition uses %d match units, the core has %d", n, g.MatchUnits)
	}
	return &Spec{Mode: ila.TriggerBasic, Basic: cond}, nil
}

// BuildAdvanced arms a compiled state machine program. A result with errors,
// or one produced in compile-only mode, is rejected.
func BuildAdvanced(res *tsm.Result, g ila.Geometry) (*Spec, error) {
	if res == nil || !res.OK() || res.Program == nil {
		if res != nil && !res.OK() {
			return nil, res.Err()
		}
		return nil, common.Errorf(ila.ErrTsmNotCompiled, "no compiled state machine program")
	}
	if !g.AdvancedTrigger {
		return nil, common.Errorf(ila.ErrAdvancedUnsupported, "core has no trigger state machine")
	}
	return &Spec{Mode: ila.TriggerAdvanced, Program: res.Program}, nil
}

// Eval reports whether a sample satisfies an immediate or basic trigger.
// Advanced specs are stateful and evaluated with tsm.Simulator.
func (s *Spec) Eval(prev, cur []byte) bool {
	switch s.Mode {
	case ila.TriggerImmediate:
		return true
	case ila.TriggerBasic:
		return s.Basic != nil && s.Basic.Eval(prev, cur)
	}
	return false
}

// Probes returns the probes the trigger depends on.
func (s *Spec) Probes() []string {
	switch s.Mode {
	case ila.TriggerBasic:
		return s.Basic.probes(map[string]bool{}, nil)
	case ila.TriggerAdvanced:
		return s.Program.Probes()
	}
	return nil
}

// Validate checks that the spec is armable on a core with geometry g and
// capture rows of dataWidth bits. Specs that crossed a wire are checked in
// full, so that evaluating them cannot index outside the core's resources.
func (s *Spec) Validate(g ila.Geometry, dataWidth int) error {
	if s == nil {
		return common.Errorf(ila.ErrTsmNotCompiled, "no trigger spec")
	}
	switch s.Mode {
	case ila.TriggerImmediate:
		return nil
	case ila.TriggerBasic:
		if err := s.Basic.validate(); err != nil {
			return err
		}
		if err := s.Basic.check(dataWidth); err != nil {
			return err
		}
		if n := s.Basic.Clauses(); n > g.MatchUnits {
			return common.Errorf(ila.ErrTooManyMatchUnits, "condition uses %d match units, the core has %d", n, g.MatchUnits)
		}
		return nil
	case ila.TriggerAdvanced:
		if s.Program == nil {
			return common.Errorf(ila.ErrTsmNotCompiled, "advanced trigger without a program")
		}
		if !g.AdvancedTrigger {
			return common.Errorf(ila.ErrAdvancedUnsupported, "core has no trigger state machine")
		}
		return s.Program.Check(g, dataWidth)
	}
	return common.Errorf(ila.ErrInvalidParam, "unknown trigger mode %d", s.Mode)
}
