package tsm

import (
	"chipscope/internal/ila"
)

// Step records one evaluated sample.
type Step struct {
	Sample    int
	State     string   // state the sample was evaluated in
	Next      string   // state after the sample
	Counters  []uint64 // counter values seen by the conditions
	Flags     []bool
	Triggered bool // a trigger action fired on this sample
}

// Simulator executes a compiled program one sample at a time, the way the
// capture core does. Counter and flag updates take effect after the sample
// that caused them.
type Simulator struct {
	prog     *Program
	max      uint64
	state    int
	sample   int
	counters []uint64
	flags    []bool
	fired    bool
}

// NewSimulator returns a simulator in the program's initial state.
func NewSimulator(p *Program, g ila.Geometry) *Simulator {
	s := &Simulator{
		prog:     p,
		max:      g.CounterMax(),
		counters: make([]uint64, g.Counters),
		flags:    make([]bool, g.Flags),
	}
	return s
}

// Reset returns to the initial state and clears counters and flags.
func (s *Simulator) Reset() {
	s.state = 0
	s.sample = 0
	s.fired = false
	clear(s.counters)
	clear(s.flags)
}

// State returns the current state name.
func (s *Simulator) State() string { return s.prog.States[s.state].Name }

// Counters returns a copy of the counter values.
func (s *Simulator) Counters() []uint64 { return append([]uint64(nil), s.counters...) }

// Flags returns a copy of the flag values.
func (s *Simulator) Flags() []bool { return append([]bool(nil), s.flags...) }

// Triggered returns true once any trigger action has fired since Reset.
func (s *Simulator) Triggered() bool { return s.fired }

// Step evaluates one sample. prev is the previous row or nil.
func (s *Simulator) Step(prev, cur []byte) Step {
	st := &s.prog.States[s.state]
	out := Step{
		Sample:   s.sample,
		State:    st.Name,
		Counters: s.Counters(),
		Flags:    s.Flags(),
	}
	s.sample++

	next := s.state
	for _, b := range st.Branches {
		if b.Cond != nil && !s.eval(b.Cond, prev, cur) {
			continue
		}
		for _, a := range b.Actions {
			switch a.Kind {
			case ActGoto:
				next = a.Index
			case ActTrigger:
				out.Triggered = true
			case ActSetFlag:
				s.flags[a.Index] = true
			case ActClearFlag:
				s.flags[a.Index] = false
			case ActResetCounter:
				s.counters[a.Index] = 0
			case ActIncrementCounter:
				if s.counters[a.Index] < s.max {
					s.counters[a.Index]++
				}
			}
		}
		break
	}
	s.state = next
	s.fired = s.fired || out.Triggered
	out.Next = s.prog.States[next].Name
	return out
}

// Run resets the simulator and evaluates every row in order.
func (s *Simulator) Run(rows [][]byte) []Step {
	s.Reset()
	steps := make([]Step, 0, len(rows))
	var prev []byte
	for _, row := range rows {
		steps = append(steps, s.Step(prev, row))
		prev = row
	}
	return steps
}

func (s *Simulator) eval(c *Cond, prev, cur []byte) bool {
	switch c.Kind {
	case CondAnd:
		for _, a := range c.Args {
			if !s.eval(a, prev, cur) {
				return false
			}
		}
		return true
	case CondOr:
		for _, a := range c.Args {
			if s.eval(a, prev, cur) {
				return true
			}
		}
		return false
	case CondProbe:
		return c.Match.Match(prev, cur)
	case CondCounter:
		v := s.counters[c.Index]
		switch c.Op {
		case ila.OpEQ:
			return v == c.Value
		case ila.OpNE:
			return v != c.Value
		case ila.OpLT:
			return v < c.Value
		case ila.OpLE:
			return v <= c.Value
		case ila.OpGT:
			return v > c.Value
		case ila.OpGE:
			return v >= c.Value
		}
	}
	return false
}
