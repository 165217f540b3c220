// Package simcore is an in-memory capture core. It evaluates triggers over a
// stream of sample rows the way the hardware does and serves the engine
// contract, so sessions and transports can be exercised without a board.
package simcore

import (
	"context"
	"sync"

	"chipscope/internal/common"
	"chipscope/internal/engine"
	"chipscope/internal/ila"
	"chipscope/internal/probe"
	"chipscope/internal/tsm"
)

// Source yields sample rows. ok is false once the source is exhausted.
type Source interface {
	Next() (row []byte, ok bool)
}

// Rows replays a fixed list of rows, optionally looping.
type Rows struct {
	rows [][]byte
	loop bool
	i    int
}

func NewRows(rows [][]byte, loop bool) *Rows { return &Rows{rows: rows, loop: loop} }

func (r *Rows) Next() ([]byte, bool) {
	if r.i >= len(r.rows) {
		if !r.loop || len(r.rows) == 0 {
			return nil, false
		}
		r.i = 0
	}
	row := r.rows[r.i]
	r.i++
	return row, true
}

// Func generates row n on the n-th call.
type Func func(n int) []byte

// FuncSource adapts a generator to Source. It never runs dry.
func FuncSource(f Func) Source { return &funcSource{f: f} }

type funcSource struct {
	f Func
	n int
}

func (s *funcSource) Next() ([]byte, bool) {
	row := s.f(s.n)
	s.n++
	return row, true
}

// Options tunes the simulated core.
type Options struct {
	// SamplesPerPoll is the number of samples clocked in per Status call.
	SamplesPerPoll int
	Log            common.Logger
}

const defaultSamplesPerPoll = 64

// Core is a simulated ILA instance.
type Core struct {
	mu   sync.Mutex
	m    *probe.Map
	g    ila.Geometry
	src  Source
	opts Options
	log  common.Logger

	state   ila.RunState
	req     engine.ArmRequest
	sim     *tsm.Simulator
	prev    []byte
	pre     [][]byte // pre-trigger history of the current window
	window  [][]byte // rows of the current window once triggered
	rows    [][]byte
	windows int
	fails   int
	capture *engine.Capture
}

var (
	_ engine.Engine  = (*Core)(nil)
	_ engine.Stopper = (*Core)(nil)
)

func New(m *probe.Map, g ila.Geometry, src Source, opts Options) *Core {
	if opts.SamplesPerPoll <= 0 {
		opts.SamplesPerPoll = defaultSamplesPerPoll
	}
	return &Core{m: m, g: g, src: src, opts: opts, log: common.OrNoOp(opts.Log)}
}

// Fail makes the next n Status calls fail with a remote error.
func (c *Core) Fail(n int) {
	c.mu.Lock()
	c.fails = n
	c.mu.Unlock()
}

// State returns the core state without clocking samples.
func (c *Core) State() ila.RunState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

func (c *Core) Arm(ctx context.Context, req engine.ArmRequest) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state.IsActive() {
		return common.Errorf(ila.ErrAlreadyArmed, "core %s is already armed", c.m.Name())
	}
	if err := req.Check(c.g); err != nil {
		return err
	}
	if err := req.Trigger.Validate(c.g, c.m.DataWidth()); err != nil {
		return err
	}
	c.sim = nil
	if req.Trigger.Mode == ila.TriggerAdvanced {
		c.sim = tsm.NewSimulator(req.Trigger.Program, c.g)
	}
	c.req = req
	c.state = ila.StateArmed
	c.pre = c.pre[:0]
	c.window = nil
	c.rows = nil
	c.windows = 0
	c.capture = nil
	c.log.Logf(common.SeverityInfo, "simcore: armed %s trigger, %d x %d, position %d",
		req.Trigger.Mode, req.WindowCount, req.WindowSize, req.TriggerPosition)
	return nil
}

func (c *Core) Status(ctx context.Context) (engine.StatusReport, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.fails > 0 {
		c.fails--
		return engine.StatusReport{}, common.Errorf(ila.ErrRemote, "simulated link fault")
	}
	for i := 0; i < c.opts.SamplesPerPoll && c.state.IsActive(); i++ {
		row, ok := c.src.Next()
		if !ok {
			break
		}
		c.clock(append([]byte(nil), row...))
	}
	return c.report(), nil
}

func (c *Core) report() engine.StatusReport {
	st := engine.StatusReport{
		State:           c.state,
		SamplesCaptured: len(c.rows) + len(c.window),
		WindowsCaptured: c.windows,
	}
	if c.sim != nil {
		st.Advanced = true
		st.TsmState = c.sim.State()
		st.Counters = c.sim.Counters()
		st.Flags = c.sim.Flags()
	}
	return st
}

// clock feeds one sample into the trigger logic and capture memory.
func (c *Core) clock(row []byte) {
	prev := c.prev
	c.prev = row

	if c.window != nil {
		c.window = append(c.window, row)
		c.closeWindow()
		return
	}

	triggered := false
	if c.sim != nil {
		triggered = c.sim.Step(prev, row).Triggered
	} else {
		triggered = c.req.Trigger.Eval(prev, row)
	}
	// The trigger is only honoured once the pre-trigger history is full.
	if triggered && len(c.pre) == c.req.TriggerPosition {
		c.window = append(append(make([][]byte, 0, c.req.WindowSize), c.pre...), row)
		c.pre = c.pre[:0]
		c.state = ila.StateCapturing
		c.closeWindow()
		return
	}
	if c.req.TriggerPosition == 0 {
		return
	}
	if len(c.pre) == c.req.TriggerPosition {
		c.pre = append(c.pre[:0], c.pre[1:]...)
	}
	c.pre = append(c.pre, row)
}

func (c *Core) closeWindow() {
	if len(c.window) < c.req.WindowSize {
		return
	}
	c.rows = append(c.rows, c.window...)
	c.window = nil
	c.windows++
	if c.sim != nil {
		c.sim.Reset()
	}
	if c.windows < c.req.WindowCount {
		return
	}
	triggers := make([]int, c.req.WindowCount)
	for i := range triggers {
		triggers[i] = c.req.TriggerPosition
	}
	c.capture = &engine.Capture{
		DataWidth:       c.m.DataWidth(),
		WindowCount:     c.req.WindowCount,
		WindowSize:      c.req.WindowSize,
		TriggerPosition: c.req.TriggerPosition,
		Rows:            c.rows,
		TriggerRows:     triggers,
	}
	c.state = ila.StateDone
	c.log.Logf(common.SeverityInfo, "simcore: capture done, %d rows", len(c.rows))
}

func (c *Core) Upload(ctx context.Context) (*engine.Capture, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state != ila.StateDone || c.capture == nil {
		return nil, common.Errorf(ila.ErrNothingToUpload, "core %s is %s", c.m.Name(), c.state)
	}
	out := *c.capture
	out.Rows = make([][]byte, len(c.capture.Rows))
	for i, r := range c.capture.Rows {
		out.Rows[i] = append([]byte(nil), r...)
	}
	out.TriggerRows = append([]int(nil), c.capture.TriggerRows...)
	return &out, nil
}

// Stop ends an active capture early. The run finishes as done with the
// rows captured so far: whole windows, then the window being filled. Before
// the first trigger the pre-trigger history forms one untriggered window.
func (c *Core) Stop(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.state.IsActive() {
		return nil
	}
	rows := c.rows
	triggers := make([]int, c.windows, c.windows+1)
	for i := range triggers {
		triggers[i] = c.req.TriggerPosition
	}
	switch {
	case c.window != nil:
		rows = append(rows, c.window...)
		triggers = append(triggers, c.req.TriggerPosition)
	case len(c.pre) > 0:
		rows = append(rows, c.pre...)
		triggers = append(triggers, -1)
	}
	c.capture = &engine.Capture{
		DataWidth:       c.m.DataWidth(),
		WindowCount:     len(triggers),
		WindowSize:      c.req.WindowSize,
		TriggerPosition: c.req.TriggerPosition,
		Rows:            rows,
		TriggerRows:     triggers,
		Stopped:         true,
	}
	c.rows = rows
	c.window = nil
	c.pre = c.pre[:0]
	c.state = ila.StateDone
	c.log.Logf(common.SeverityInfo, "simcore: capture stopped, %d rows in %d window(s)", len(rows), len(triggers))
	return nil
}
