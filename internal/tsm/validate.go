package tsm

import (
	"fmt"

	"github.com/pkg/errors"

	"chipscope/internal/codec"
	"chipscope/internal/common"
	"chipscope/internal/ila"
	"chipscope/internal/probe"
)

// checker resolves names in a parsed program and reports every semantic
// error it finds.
type checker struct {
	m     *probe.Map
	g     ila.Geometry
	diags []Diagnostic
}

func (c *checker) errorf(pos Pos, format string, args ...any) {
	c.diags = append(c.diags, Diagnostic{Pos: pos, Msg: fmt.Sprintf(format, args...)})
}

func (c *checker) check(prog *Program) {
	if len(prog.States) == 0 {
		c.errorf(Pos{Line: 1, Col: 1}, "Program declares no states.")
		return
	}
	seen := map[string]bool{}
	for i, s := range prog.States {
		if s.Name == "" {
			continue
		}
		if seen[s.Name] {
			c.errorf(s.Pos, "Duplicate state %q.", s.Name)
		}
		seen[s.Name] = true
		if c.g.TsmStates > 0 && i == c.g.TsmStates {
			c.errorf(s.Pos, "Too many states: the core supports %d.", c.g.TsmStates)
		}
	}

	for si := range prog.States {
		st := &prog.States[si]
		for bi := range st.Branches {
			b := &st.Branches[bi]
			if b.Cond != nil {
				c.cond(b.Cond)
			}
			c.actions(prog, b.Actions)
		}
	}
}

func (c *checker) actions(prog *Program, acts []Action) {
	gotos := 0
	for i := range acts {
		a := &acts[i]
		switch a.Kind {
		case ActGoto:
			gotos++
			if gotos == 2 {
				c.errorf(a.Pos, "Multiple goto actions in one branch.")
			}
			a.Index = prog.StateIndex(a.Target)
			if a.Index < 0 {
				c.errorf(a.Pos, "Unknown state %q.", a.Target)
			}
		case ActSetFlag, ActClearFlag:
			if a.Index >= c.g.Flags {
				c.errorf(a.Pos, "Flag $flag%d out of range: the core has %d flag(s).", a.Index, c.g.Flags)
			}
		case ActResetCounter, ActIncrementCounter:
			if a.Index >= c.g.Counters {
				c.errorf(a.Pos, "Counter $counter%d out of range: the core has %d counter(s).", a.Index, c.g.Counters)
			}
		}
	}
}

func (c *checker) cond(cd *Cond) {
	switch cd.Kind {
	case CondAnd, CondOr:
		for _, a := range cd.Args {
			c.cond(a)
		}
	case CondProbe:
		c.probeCond(cd)
	case CondCounter:
		c.counterCond(cd)
	}
}

func (c *checker) probeCond(cd *Cond) {
	p, err := c.m.Probe(cd.name)
	if err != nil {
		c.errorf(cd.Pos, "Undefined probe: %q", cd.name)
		return
	}
	lit, err := codec.ParseLiteral(cd.literal)
	if err != nil {
		c.errorf(cd.Pos, "Invalid value for probe %q: %v.", cd.name, err)
		return
	}
	syms, err := lit.Fit(p.Width)
	if err != nil {
		c.errorf(cd.Pos, "Width mismatch for probe %q: %v.", cd.name, err)
		return
	}
	if cd.Op.IsRelational() && lit.HasWildcard() {
		c.errorf(cd.Pos, "Don't-care bits are not allowed with operator %s.", cd.Op)
		return
	}
	cmp, err := codec.Comparator{Probe: p.Name, Width: p.Width, Op: cd.Op, Symbols: syms}.Bind(c.m)
	if err != nil {
		c.errorf(cd.Pos, "%v", err)
		return
	}
	cd.Match = cmp
}

func (c *checker) counterCond(cd *Cond) {
	if cd.Index >= c.g.Counters {
		c.errorf(cd.Pos, "Counter %s out of range: the core has %d counter(s).", cd.name, c.g.Counters)
		return
	}
	lit, err := codec.ParseLiteral(cd.literal)
	if err != nil {
		c.errorf(cd.Pos, "Invalid value for counter %s: %v.", cd.name, err)
		return
	}
	if lit.HasWildcard() {
		c.errorf(cd.Pos, "Counter %s cannot be compared against don't-care bits.", cd.name)
		return
	}
	if _, err := lit.Fit(c.g.CounterWidth); err != nil {
		c.errorf(cd.Pos, "Width mismatch for counter %s: %v.", cd.name, err)
		return
	}
	cd.Value = lit.Value.Uint64()
}

// Check verifies a compiled program, typically one received from a client,
// against the core it is about to run on. Compile output always passes.
func (p *Program) Check(g ila.Geometry, dataWidth int) error {
	if len(p.States) == 0 {
		return common.Errorf(ila.ErrTsmNotCompiled, "program declares no states")
	}
	if g.TsmStates > 0 && len(p.States) > g.TsmStates {
		return common.Errorf(ila.ErrInvalidParam, "program has %d states, the core supports %d", len(p.States), g.TsmStates)
	}
	for _, s := range p.States {
		for _, b := range s.Branches {
			if b.Cond != nil {
				if err := checkCond(b.Cond, g, dataWidth); err != nil {
					return errors.WithMessagef(err, "state %s", s.Name)
				}
			}
			for _, a := range b.Actions {
				if err := p.checkAction(a, g); err != nil {
					return errors.WithMessagef(err, "state %s", s.Name)
				}
			}
		}
	}
	return nil
}

func (p *Program) checkAction(a Action, g ila.Geometry) error {
	limit := 0
	switch a.Kind {
	case ActTrigger:
		return nil
	case ActGoto:
		limit = len(p.States)
	case ActSetFlag, ActClearFlag:
		limit = g.Flags
	case ActResetCounter, ActIncrementCounter:
		limit = g.Counters
	default:
		return common.Errorf(ila.ErrInvalidParam, "unknown action %s", a.Kind)
	}
	if a.Index < 0 || a.Index >= limit {
		return common.Errorf(ila.ErrInvalidParam, "%s index %d out of range [0,%d)", a.Kind, a.Index, limit)
	}
	return nil
}

func checkCond(c *Cond, g ila.Geometry, dataWidth int) error {
	switch c.Kind {
	case CondAnd, CondOr:
		if len(c.Args) == 0 {
			return common.Errorf(ila.ErrInvalidParam, "empty %s condition", c.Kind)
		}
		for _, a := range c.Args {
			if a == nil {
				return common.Errorf(ila.ErrInvalidParam, "nil %s operand", c.Kind)
			}
			if err := checkCond(a, g, dataWidth); err != nil {
				return err
			}
		}
		return nil
	case CondProbe:
		return c.Match.Check(dataWidth)
	case CondCounter:
		if c.Index < 0 || c.Index >= g.Counters {
			return common.Errorf(ila.ErrInvalidParam, "counter index %d out of range [0,%d)", c.Index, g.Counters)
		}
		if c.Op > ila.OpGE {
			return common.Errorf(ila.ErrInvalidParam, "operator %s cannot compare a counter", c.Op)
		}
		return nil
	}
	return common.Errorf(ila.ErrInvalidParam, "unknown condition %s", c.Kind)
}
