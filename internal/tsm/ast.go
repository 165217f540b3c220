// Package tsm compiles trigger state machine programs into a validated
// program the capture core can run, and simulates them against capture rows.
package tsm

import (
	"fmt"
	"strings"

	"chipscope/internal/codec"
	"chipscope/internal/ila"
)

// Program is a compiled state machine. The first state is the initial state.
type Program struct {
	States []State `cbor:"1,keyasint"`
}

// State is a named state and its branches. Branches are evaluated in order
// and the first whose condition holds fires.
type State struct {
	Name     string   `cbor:"1,keyasint"`
	Branches []Branch `cbor:"2,keyasint"`
	Pos      Pos      `cbor:"3,keyasint"`
}

// Branch is one arm of an if/elseif/else chain. A nil Cond always fires,
// which covers both else arms and unconditional state bodies.
type Branch struct {
	Cond    *Cond    `cbor:"1,keyasint,omitempty"`
	Actions []Action `cbor:"2,keyasint"`
	Pos     Pos      `cbor:"3,keyasint"`
}

type CondKind int

const (
	CondAnd CondKind = iota
	CondOr
	CondProbe
	CondCounter
)

func (k CondKind) String() string {
	switch k {
	case CondAnd:
		return "and"
	case CondOr:
		return "or"
	case CondProbe:
		return "probe"
	case CondCounter:
		return "counter"
	}
	return fmt.Sprintf("cond(%d)", int(k))
}

// Cond is a condition tree node. And/Or nodes use Args. Probe nodes hold a
// bound comparator. Counter nodes compare counter Index against Value.
type Cond struct {
	Kind  CondKind         `cbor:"1,keyasint"`
	Args  []*Cond          `cbor:"2,keyasint,omitempty"`
	Match codec.Comparator `cbor:"3,keyasint,omitempty"`
	Index int              `cbor:"4,keyasint,omitempty"`
	Op    ila.Operator     `cbor:"5,keyasint,omitempty"`
	Value uint64           `cbor:"6,keyasint,omitempty"`
	Pos   Pos              `cbor:"7,keyasint"`

	name    string // probe name or counter token text, as written
	literal string
}

type ActionKind int

const (
	ActGoto ActionKind = iota
	ActTrigger
	ActSetFlag
	ActClearFlag
	ActResetCounter
	ActIncrementCounter
)

var actionNames = [...]string{
	ActGoto:             "goto",
	ActTrigger:          "trigger",
	ActSetFlag:          "set_flag",
	ActClearFlag:        "clear_flag",
	ActResetCounter:     "reset_counter",
	ActIncrementCounter: "increment_counter",
}

func (k ActionKind) String() string {
	if k >= 0 && int(k) < len(actionNames) {
		return actionNames[k]
	}
	return fmt.Sprintf("action(%d)", int(k))
}

// Action is one statement of a branch. Goto actions carry the target state
// name and its index in Program.States. Flag and counter actions use Index.
type Action struct {
	Kind   ActionKind `cbor:"1,keyasint"`
	Target string     `cbor:"2,keyasint,omitempty"`
	Index  int        `cbor:"3,keyasint"`
	Pos    Pos        `cbor:"4,keyasint"`
}

// StateIndex returns the index of the named state or -1.
func (p *Program) StateIndex(name string) int {
	for i := range p.States {
		if p.States[i].Name == name {
			return i
		}
	}
	return -1
}

// Probes returns the distinct probe names referenced by the program.
func (p *Program) Probes() []string {
	seen := map[string]bool{}
	var names []string
	var walk func(c *Cond)
	walk = func(c *Cond) {
		if c == nil {
			return
		}
		if c.Kind == CondProbe && !seen[c.Match.Probe] {
			seen[c.Match.Probe] = true
			names = append(names, c.Match.Probe)
		}
		for _, a := range c.Args {
			walk(a)
		}
	}
	for _, s := range p.States {
		for _, b := range s.Branches {
			walk(b.Cond)
		}
	}
	return names
}

func (c *Cond) String() string {
	switch c.Kind {
	case CondAnd, CondOr:
		sep := " && "
		if c.Kind == CondOr {
			sep = " || "
		}
		parts := make([]string, len(c.Args))
		for i, a := range c.Args {
			parts[i] = a.String()
		}
		return "(" + strings.Join(parts, sep) + ")"
	case CondProbe:
		return fmt.Sprintf("%s %s %d'b%s", c.Match.Probe, c.Match.Op, c.Match.Width, c.Match.Symbols)
	case CondCounter:
		return fmt.Sprintf("$counter%d %s %d", c.Index, c.Op, c.Value)
	}
	return "?"
}

func (a Action) String() string {
	switch a.Kind {
	case ActGoto:
		return "goto " + a.Target
	case ActTrigger:
		return "trigger"
	case ActSetFlag, ActClearFlag:
		return fmt.Sprintf("%s $flag%d", a.Kind, a.Index)
	default:
		return fmt.Sprintf("%s $counter%d", a.Kind, a.Index)
	}
}

// Dump writes a readable listing of the program.
func (p *Program) Dump() string {
	var sb strings.Builder
	for i, s := range p.States {
		fmt.Fprintf(&sb, "state %d %s:\n", i, s.Name)
		for _, b := range s.Branches {
			cond := "always"
			if b.Cond != nil {
				cond = b.Cond.String()
			}
			acts := make([]string, len(b.Actions))
			for j, a := range b.Actions {
				acts[j] = a.String()
			}
			fmt.Fprintf(&sb, "  %s -> %s\n", cond, strings.Join(acts, "; "))
		}
	}
	return sb.String()
}
