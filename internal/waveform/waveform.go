// Package waveform stores uploaded capture data and projects decoded probe
// columns out of it.
package waveform

import (
	"math/big"

	"chipscope/internal/codec"
	"chipscope/internal/common"
	"chipscope/internal/engine"
	"chipscope/internal/ila"
	"chipscope/internal/probe"
)

// Waveform is an immutable uploaded capture bound to the probe map it was
// taken with.
type Waveform struct {
	m           *probe.Map
	windowCount int
	windowSize  int
	triggerPos  int
	stopped     bool
	rows        [][]byte
	trigger     []bool
}

// New validates a raw capture against the probe map and takes a private
// copy of its rows. A complete capture has WindowCount full windows, each
// with one trigger row. A stopped capture may end in a short window and marks
// windows that never triggered with -1, or carries no trigger rows at all.
func New(m *probe.Map, c *engine.Capture) (*Waveform, error) {
	if c == nil {
		return nil, common.Errorf(ila.ErrInvalidParam, "no capture data")
	}
	if c.DataWidth != m.DataWidth() {
		return nil, common.Errorf(ila.ErrInvalidParam, "capture data width %d, probe map %s is %d bits", c.DataWidth, m.Name(), m.DataWidth())
	}
	if err := checkShape(c); err != nil {
		return nil, err
	}
	w := &Waveform{
		m:           m,
		windowCount: c.WindowCount,
		windowSize:  c.WindowSize,
		triggerPos:  c.TriggerPosition,
		stopped:     c.Stopped,
		rows:        make([][]byte, len(c.Rows)),
		trigger:     make([]bool, len(c.Rows)),
	}
	n := m.RowBytes()
	for i, r := range c.Rows {
		if len(r) < n {
			return nil, common.Errorf(ila.ErrInvalidParam, "row %d has %d bytes, need %d", i, len(r), n)
		}
		w.rows[i] = append([]byte(nil), r[:n]...)
	}
	for win, tr := range c.TriggerRows {
		if tr == -1 && c.Stopped {
			continue
		}
		if tr < 0 || tr >= c.WindowSize || win*c.WindowSize+tr >= len(c.Rows) {
			return nil, common.Errorf(ila.ErrInvalidParam, "window %d trigger row %d outside window", win, tr)
		}
		w.trigger[win*c.WindowSize+tr] = true
	}
	return w, nil
}

func checkShape(c *engine.Capture) error {
	count, size, rows := c.WindowCount, c.WindowSize, len(c.Rows)
	if size <= 0 || count < 0 || (count == 0 && !c.Stopped) {
		return common.Errorf(ila.ErrInvalidParam, "capture has %d windows of %d", count, size)
	}
	full := count > 0 && rows%size == 0 && rows/size == count
	if !c.Stopped {
		if !full {
			return common.Errorf(ila.ErrInvalidParam, "capture has %d rows for %d windows of %d", rows, count, size)
		}
		if len(c.TriggerRows) != count {
			return common.Errorf(ila.ErrInvalidParam, "capture has %d trigger marks for %d windows", len(c.TriggerRows), count)
		}
		return nil
	}
	if windows := (rows + size - 1) / size; windows != count {
		return common.Errorf(ila.ErrInvalidParam, "stopped capture has %d rows for %d windows of %d", rows, count, size)
	}
	if len(c.TriggerRows) != 0 && len(c.TriggerRows) != count {
		return common.Errorf(ila.ErrInvalidParam, "capture has %d trigger marks for %d windows", len(c.TriggerRows), count)
	}
	return nil
}

func (w *Waveform) Map() *probe.Map      { return w.m }
func (w *Waveform) Len() int             { return len(w.rows) }
func (w *Waveform) WindowCount() int     { return w.windowCount }
func (w *Waveform) WindowSize() int      { return w.windowSize }
func (w *Waveform) TriggerPosition() int { return w.triggerPos }

// Stopped reports whether the run was stopped before every window filled.
func (w *Waveform) Stopped() bool { return w.stopped }

// Row returns a copy of raw row i.
func (w *Waveform) Row(i int) []byte { return append([]byte(nil), w.rows[i]...) }

// IsTrigger reports whether row i is a window's trigger sample.
func (w *Waveform) IsTrigger(i int) bool { return w.trigger[i] }

// Options selects the optional columns of GetData.
type Options struct {
	Trigger    bool
	SampleInfo bool
	Activity   bool
}

// Column is one decoded probe. Activity is only filled when requested.
type Column struct {
	Name     string
	Width    int
	Values   []*big.Int
	Activity []string
}

// Data holds row-aligned columns. Optional columns are nil when not requested.
type Data struct {
	Name              string
	Probes            []Column
	Trigger           []bool
	SampleIndex       []int
	WindowIndex       []int
	WindowSampleIndex []int
}

// Len returns the number of rows.
func (d *Data) Len() int {
	if len(d.Probes) > 0 {
		return len(d.Probes[0].Values)
	}
	return len(d.SampleIndex)
}

// Column returns the named probe column.
func (d *Data) Column(name string) (*Column, bool) {
	for i := range d.Probes {
		if d.Probes[i].Name == name {
			return &d.Probes[i], true
		}
	}
	return nil, false
}

// GetData decodes the named probes, in the order given, into row-aligned
// columns. No names selects every probe. It does not modify the waveform.
func (w *Waveform) GetData(names []string, opts Options) (*Data, error) {
	if len(names) == 0 {
		names = w.m.Names()
	}
	bits := make([][]int, len(names))
	for i, name := range names {
		b, err := w.m.RowBits(name)
		if err != nil {
			return nil, err
		}
		bits[i] = b
	}

	n := len(w.rows)
	d := &Data{Name: w.m.Name(), Probes: make([]Column, len(names))}
	for i, name := range names {
		col := Column{Name: name, Width: len(bits[i]), Values: make([]*big.Int, n)}
		if opts.Activity {
			col.Activity = make([]string, n)
		}
		for r, row := range w.rows {
			col.Values[r] = codec.BitsValue(row, bits[i])
			if opts.Activity {
				col.Activity[r] = codec.BitsActivity(w.prev(r), row, bits[i])
			}
		}
		d.Probes[i] = col
	}
	if opts.Trigger {
		d.Trigger = append([]bool(nil), w.trigger...)
	}
	if opts.SampleInfo {
		d.SampleIndex = make([]int, n)
		d.WindowIndex = make([]int, n)
		d.WindowSampleIndex = make([]int, n)
		for r := 0; r < n; r++ {
			d.SampleIndex[r] = r
			d.WindowIndex[r] = r / w.windowSize
			d.WindowSampleIndex[r] = r % w.windowSize
		}
	}
	return d, nil
}

// prev returns the row before r in the same window, or nil at a window start.
func (w *Waveform) prev(r int) []byte {
	if r%w.windowSize == 0 {
		return nil
	}
	return w.rows[r-1]
}
