package ila

import "fmt"

// Geometry is the static per-instance capacity of an ILA core, as reported by
// the probe definition source.
type Geometry struct {
	DataDepth       int // sample depth capacity in rows
	MatchUnits      int // basic trigger comparator budget
	MaxWindowSize   int // 0 means DataDepth
	AdvancedTrigger bool
	Counters        int
	CounterWidth    int
	Flags           int
	TsmStates       int // 0 means unlimited
}

// DefaultGeometry mirrors a core generated with the default IP options.
func DefaultGeometry() Geometry {
	return Geometry{
		DataDepth:       1024,
		MatchUnits:      4,
		AdvancedTrigger: true,
		Counters:        4,
		CounterWidth:    16,
		Flags:           4,
		TsmStates:       16,
	}
}

// WindowLimit returns the largest window size accepted by the core.
func (g Geometry) WindowLimit() int {
	if g.MaxWindowSize > 0 && g.MaxWindowSize < g.DataDepth {
		return g.MaxWindowSize
	}
	return g.DataDepth
}

// CounterMax returns the largest value a TSM counter can hold.
func (g Geometry) CounterMax() uint64 {
	if g.CounterWidth <= 0 || g.CounterWidth >= 64 {
		return ^uint64(0)
	}
	return (uint64(1) << g.CounterWidth) - 1
}

// Validate checks that the geometry is self consistent.
func (g Geometry) Validate() error {
	if g.DataDepth <= 0 {
		return fmt.Errorf("data depth %d must be positive", g.DataDepth)
	}
	if g.MatchUnits < 0 || g.Counters < 0 || g.Flags < 0 || g.TsmStates < 0 {
		return fmt.Errorf("negative resource count in geometry")
	}
	if g.Counters > 0 && g.CounterWidth <= 0 {
		return fmt.Errorf("counter width %d must be positive", g.CounterWidth)
	}
	if g.MaxWindowSize < 0 {
		return fmt.Errorf("max window size %d must not be negative", g.MaxWindowSize)
	}
	return nil
}

// IsPow2 returns true if n is a positive power of two.
func IsPow2(n int) bool { return n > 0 && n&(n-1) == 0 }
