// Package engine defines the logical request/response contract between a run
// session and the remote capture engine that owns the hardware.
package engine

import (
	"context"

	"chipscope/internal/common"
	"chipscope/internal/ila"
	"chipscope/internal/trigger"
)

// ArmRequest configures one capture run.
type ArmRequest struct {
	Trigger         *trigger.Spec `cbor:"1,keyasint"`
	WindowCount     int           `cbor:"2,keyasint"`
	WindowSize      int           `cbor:"3,keyasint"`
	TriggerPosition int           `cbor:"4,keyasint"`
}

// Depth returns the number of rows the run captures.
func (r ArmRequest) Depth() int { return r.WindowCount * r.WindowSize }

// StatusReport is a live status snapshot. The TSM fields are only filled
// for advanced trigger runs.
type StatusReport struct {
	State           ila.RunState `cbor:"1,keyasint"`
	SamplesCaptured int          `cbor:"2,keyasint"`
	WindowsCaptured int          `cbor:"3,keyasint"`
	Advanced        bool         `cbor:"4,keyasint"`
	TsmState        string       `cbor:"5,keyasint,omitempty"`
	Counters        []uint64     `cbor:"6,keyasint,omitempty"`
	Flags           []bool       `cbor:"7,keyasint,omitempty"`
}

// Capture is the raw content of the capture memory after a run. Rows are
// ordered window by window; TriggerRows holds the row index of each window's
// trigger sample, relative to the window. A run ended by Stop is Stopped:
// its last window may be short and windows that never triggered are -1.
type Capture struct {
	DataWidth       int      `cbor:"1,keyasint"`
	WindowCount     int      `cbor:"2,keyasint"`
	WindowSize      int      `cbor:"3,keyasint"`
	TriggerPosition int      `cbor:"4,keyasint"`
	Rows            [][]byte `cbor:"5,keyasint"`
	TriggerRows     []int    `cbor:"6,keyasint"`
	Stopped         bool     `cbor:"7,keyasint,omitempty"`
}

// Engine is the remote capture engine for one ILA instance.
type Engine interface {
	Arm(ctx context.Context, req ArmRequest) error
	Status(ctx context.Context) (StatusReport, error)
	Upload(ctx context.Context) (*Capture, error)
}

// Stopper is implemented by engines that can abort a capture in progress.
type Stopper interface {
	Stop(ctx context.Context) error
}

// Check validates the window parameters against the core geometry.
func (r ArmRequest) Check(g ila.Geometry) error {
	count, size, pos := r.WindowCount, r.WindowSize, r.TriggerPosition
	switch {
	case count <= 0 || size <= 0:
		return common.Errorf(ila.ErrInvalidWindowGeometry, "window count %d and size %d must be positive", count, size)
	case !ila.IsPow2(size):
		return common.Errorf(ila.ErrInvalidWindowGeometry, "window size %d is not a power of two", size)
	case pos < 0 || pos >= size:
		return common.Errorf(ila.ErrInvalidWindowGeometry, "trigger position %d outside window of %d samples", pos, size)
	case size > g.WindowLimit():
		return common.Errorf(ila.ErrInvalidWindowGeometry, "window size %d exceeds the core limit %d", size, g.WindowLimit())
	case count > g.DataDepth/size:
		return common.Errorf(ila.ErrInvalidWindowGeometry, "%d windows of %d samples exceed the data depth %d", count, size, g.DataDepth)
	}
	return nil
}
