package run

import (
	"fmt"

	"chipscope/internal/ila"
)

// RunStatus is a status snapshot. It is either a BasicStatus or, for
// advanced trigger runs, an AdvancedStatus carrying the state machine view.
type RunStatus interface {
	Basic() BasicStatus
	isRunStatus()
}

// BasicStatus is the status common to all trigger modes. Err holds the last
// remote failure when State is StateError.
type BasicStatus struct {
	State           ila.RunState
	SamplesCaptured int
	WindowsCaptured int
	Err             error
}

func (s BasicStatus) Basic() BasicStatus { return s }
func (BasicStatus) isRunStatus()         {}

func (s BasicStatus) String() string {
	str := fmt.Sprintf("%s samples=%d windows=%d", s.State, s.SamplesCaptured, s.WindowsCaptured)
	if s.Err != nil {
		str += " err=" + s.Err.Error()
	}
	return str
}

// AdvancedStatus adds the trigger state machine's live state.
type AdvancedStatus struct {
	BasicStatus
	TsmState string
	Counters []uint64
	Flags    []bool
}

func (s AdvancedStatus) String() string {
	return fmt.Sprintf("%s tsm=%s counters=%v flags=%v", s.BasicStatus, s.TsmState, s.Counters, s.Flags)
}
