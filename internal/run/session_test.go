package run

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"chipscope/internal/engine"
	"chipscope/internal/ila"
	"chipscope/internal/probe"
	"chipscope/internal/simcore"
	"chipscope/internal/trigger"
	"chipscope/internal/tsm"
	"chipscope/internal/waveform"
)

func testMap(t *testing.T) *probe.Map {
	t.Helper()
	m, err := probe.NewMap("ila_run",
		[]probe.Port{{Index: 0, Width: 8}, {Index: 1, Width: 1}},
		[]probe.Probe{
			{Name: "data", Width: 8, Fragments: []probe.Fragment{{Port: 0, BusLeft: 7}}},
			{Name: "strobe", Width: 1, Fragments: []probe.Fragment{{Port: 1}}},
		})
	if err != nil {
		t.Fatalf("NewMap: %v", err)
	}
	return m
}

// counting produces data = n and strobe on every odd sample.
func counting(n int) []byte { return []byte{byte(n), byte(n & 1)} }

func testConfig() Config {
	return Config{
		PollInterval: time.Millisecond,
		MaxRetries:   3,
		RetryBackoff: time.Millisecond,
		MaxBackoff:   2 * time.Millisecond,
		DefaultWait:  5 * time.Second,
	}
}

// countingEngine records how often each remote call is made.
type countingEngine struct {
	engine.Engine
	arms, statuses, uploads atomic.Int32
}

func (c *countingEngine) Arm(ctx context.Context, req engine.ArmRequest) error {
	c.arms.Add(1)
	return c.Engine.Arm(ctx, req)
}

func (c *countingEngine) Status(ctx context.Context) (engine.StatusReport, error) {
	c.statuses.Add(1)
	return c.Engine.Status(ctx)
}

func (c *countingEngine) Upload(ctx context.Context) (*engine.Capture, error) {
	c.uploads.Add(1)
	return c.Engine.Upload(ctx)
}

func (c *countingEngine) Stop(ctx context.Context) error {
	return c.Engine.(engine.Stopper).Stop(ctx)
}

func newSession(t *testing.T, src simcore.Source, g ila.Geometry) (*Session, *simcore.Core, *countingEngine) {
	t.Helper()
	m := testMap(t)
	core := simcore.New(m, g, src, simcore.Options{SamplesPerPoll: 4})
	ce := &countingEngine{Engine: core}
	return NewSession(ce, m, g, testConfig()), core, ce
}

func TestImmediateWindowScenario(t *testing.T) {
	ctx := context.Background()
	s, _, _ := newSession(t, simcore.FuncSource(counting), ila.DefaultGeometry())

	if err := s.Run(ctx, trigger.BuildImmediate(), 1, 8, 0); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if s.State() != ila.StateArmed {
		t.Errorf("state after Run = %v", s.State())
	}
	st := s.WaitTillDone(ctx, 0)
	if st.Basic().State != ila.StateDone {
		t.Fatalf("WaitTillDone = %v", st)
	}
	if _, ok := st.(BasicStatus); !ok {
		t.Errorf("immediate run returned %T", st)
	}
	w, err := s.Upload(ctx)
	if err != nil {
		t.Fatalf("Upload: %v", err)
	}
	d, err := w.GetData([]string{"data"}, waveform.Options{Trigger: true, SampleInfo: true})
	if err != nil {
		t.Fatal(err)
	}
	if d.Len() != 8 || w.WindowCount() != 1 {
		t.Fatalf("rows = %d windows = %d", d.Len(), w.WindowCount())
	}
	if diff := cmp.Diff([]bool{true, false, false, false, false, false, false, false}, d.Trigger); diff != "" {
		t.Errorf("trigger column mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff(make([]int, 8), d.WindowIndex); diff != "" {
		t.Errorf("window index mismatch (-want +got):\n%s", diff)
	}
}

func TestRunTwiceFailsAlreadyArmed(t *testing.T) {
	ctx := context.Background()
	s, _, ce := newSession(t, simcore.NewRows(nil, false), ila.DefaultGeometry())

	if err := s.Run(ctx, trigger.BuildImmediate(), 1, 8, 0); err != nil {
		t.Fatal(err)
	}
	err := s.Run(ctx, trigger.BuildImmediate(), 1, 8, 0)
	if !errors.Is(err, ila.ErrAlreadyArmed) {
		t.Fatalf("second Run = %v, want AlreadyArmed", err)
	}
	if n := ce.arms.Load(); n != 1 {
		t.Errorf("engine armed %d times", n)
	}
	if err := s.Reset(); !errors.Is(err, ila.ErrAlreadyArmed) {
		t.Errorf("Reset while armed = %v", err)
	}
	if err := s.Stop(ctx); err != nil || s.State() != ila.StateDone {
		t.Errorf("Stop: %v state=%v", err, s.State())
	}
	if w, err := s.Upload(ctx); err != nil || w.Len() != 0 || !w.Stopped() {
		t.Errorf("Upload of an empty stopped run: %v", err)
	}
	if err := s.Run(ctx, trigger.BuildImmediate(), 1, 8, 0); err != nil {
		t.Errorf("Run after Stop: %v", err)
	}
}

func TestRunValidation(t *testing.T) {
	ctx := context.Background()
	g := ila.DefaultGeometry()
	g.MaxWindowSize = 256
	imm := trigger.BuildImmediate()
	tests := []struct {
		name             string
		spec             *trigger.Spec
		count, size, pos int
		want             ila.Err
	}{
		{"trigger at window end", imm, 1, 8, 8, ila.ErrInvalidWindowGeometry},
		{"negative position", imm, 1, 8, -1, ila.ErrInvalidWindowGeometry},
		{"too deep", imm, 8, 256, 0, ila.ErrInvalidWindowGeometry},
		{"not power of two", imm, 1, 12, 0, ila.ErrInvalidWindowGeometry},
		{"over window limit", imm, 1, 512, 0, ila.ErrInvalidWindowGeometry},
		{"no windows", imm, 0, 8, 0, ila.ErrInvalidWindowGeometry},
		{"nil spec", nil, 1, 8, 0, ila.ErrTsmNotCompiled},
		{"empty program", &trigger.Spec{Mode: ila.TriggerAdvanced}, 1, 8, 0, ila.ErrTsmNotCompiled},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			s, _, ce := newSession(t, simcore.FuncSource(counting), g)
			err := s.Run(ctx, tc.spec, tc.count, tc.size, tc.pos)
			if !errors.Is(err, tc.want) {
				t.Errorf("Run = %v, want %v", err, tc.want)
			}
			if ce.arms.Load() != 0 || s.State() != ila.StateIdle {
				t.Errorf("rejected run reached the engine: arms=%d state=%v", ce.arms.Load(), s.State())
			}
		})
	}

	g.AdvancedTrigger = false
	m := testMap(t)
	res := tsm.CompileString("state a:\n trigger;\n", m, ila.DefaultGeometry(), tsm.Options{})
	spec, err := trigger.BuildAdvanced(res, ila.DefaultGeometry())
	if err != nil {
		t.Fatal(err)
	}
	s, _, _ := newSession(t, simcore.FuncSource(counting), g)
	if err := s.Run(ctx, spec, 1, 8, 0); !errors.Is(err, ila.ErrAdvancedUnsupported) {
		t.Errorf("advanced on a core without tsm: %v", err)
	}
}

func TestStatusRetries(t *testing.T) {
	ctx := context.Background()
	s, core, ce := newSession(t, simcore.NewRows(nil, false), ila.DefaultGeometry())
	if err := s.Run(ctx, trigger.BuildImmediate(), 1, 8, 0); err != nil {
		t.Fatal(err)
	}

	core.Fail(3)
	st := s.Status(ctx)
	if st.Basic().State != ila.StateArmed || st.Basic().Err != nil {
		t.Errorf("status after 3 transient faults = %v", st)
	}
	if n := ce.statuses.Load(); n != 4 {
		t.Errorf("status calls = %d, want 4", n)
	}

	core.Fail(100)
	st = s.Status(ctx)
	if st.Basic().State != ila.StateError || !errors.Is(st.Basic().Err, ila.ErrRemote) {
		t.Errorf("status after exhausted retries = %v", st)
	}
	if n := ce.statuses.Load(); n != 8 {
		t.Errorf("status calls = %d, want 8", n)
	}
	if s.State() != ila.StateError {
		t.Errorf("session state = %v", s.State())
	}
	s.Status(ctx)
	if n := ce.statuses.Load(); n != 8 {
		t.Errorf("terminal session polled the engine again: %d calls", n)
	}
	if err := s.Reset(); err != nil || s.State() != ila.StateIdle {
		t.Errorf("Reset after error: %v", err)
	}
}

func TestUploadOnceAndCached(t *testing.T) {
	ctx := context.Background()
	s, _, ce := newSession(t, simcore.FuncSource(counting), ila.DefaultGeometry())

	if _, err := s.Upload(ctx); !errors.Is(err, ila.ErrNothingToUpload) {
		t.Errorf("Upload while idle = %v", err)
	}
	if err := s.Run(ctx, trigger.BuildImmediate(), 2, 4, 1); err != nil {
		t.Fatal(err)
	}
	if _, err := s.Upload(ctx); !errors.Is(err, ila.ErrNothingToUpload) {
		t.Errorf("Upload while armed = %v", err)
	}
	if st := s.WaitTillDone(ctx, time.Second); st.Basic().State != ila.StateDone {
		t.Fatalf("WaitTillDone = %v", st)
	}
	w1, err := s.Upload(ctx)
	if err != nil {
		t.Fatal(err)
	}
	w2, err := s.Upload(ctx)
	if err != nil || w1 != w2 {
		t.Errorf("second Upload returned a different waveform: %v", err)
	}
	if n := ce.uploads.Load(); n != 1 {
		t.Errorf("engine uploads = %d", n)
	}
	if w1.Len() != 8 || !w1.IsTrigger(1) || !w1.IsTrigger(5) {
		t.Errorf("waveform len=%d", w1.Len())
	}

	if err := s.Run(ctx, trigger.BuildImmediate(), 1, 4, 0); err != nil {
		t.Fatalf("Run after upload: %v", err)
	}
	if _, err := s.Upload(ctx); !errors.Is(err, ila.ErrNothingToUpload) {
		t.Errorf("new run kept the old waveform: %v", err)
	}
}

func TestWaitTillDoneTimeout(t *testing.T) {
	ctx := context.Background()
	s, _, _ := newSession(t, simcore.NewRows(nil, false), ila.DefaultGeometry())
	if err := s.Run(ctx, trigger.BuildImmediate(), 1, 8, 0); err != nil {
		t.Fatal(err)
	}
	st := s.WaitTillDone(ctx, 20*time.Millisecond)
	if st.Basic().State != ila.StateArmed || s.State() != ila.StateArmed {
		t.Errorf("after timeout: status=%v session=%v", st, s.State())
	}
}

const strobeCounter = `state count:
  if ($counter0 == 'u3 && strobe == 1'b1) then
    goto fire;
  elseif (strobe == 1'b1) then
    increment_counter $counter0;
  endif
state fire:
  trigger;
`

func TestMonitorStatusAdvanced(t *testing.T) {
	ctx := context.Background()
	g := ila.DefaultGeometry()
	s, _, _ := newSession(t, simcore.FuncSource(counting), g)
	res := tsm.CompileString(strobeCounter, testMap(t), g, tsm.Options{})
	spec, err := trigger.BuildAdvanced(res, g)
	if err != nil {
		t.Fatalf("BuildAdvanced: %v\n%s", err, res.Report())
	}
	if err := s.Run(ctx, spec, 1, 4, 0); err != nil {
		t.Fatal(err)
	}

	var mu sync.Mutex
	var progress []RunStatus
	var doneCalls int
	f := s.MonitorStatus(ctx, time.Second, func(st RunStatus) {
		mu.Lock()
		progress = append(progress, st)
		mu.Unlock()
	}, func(st RunStatus) {
		mu.Lock()
		doneCalls++
		mu.Unlock()
	})
	final := f.Wait()

	mu.Lock()
	defer mu.Unlock()
	if final.Basic().State != ila.StateDone || doneCalls != 1 {
		t.Fatalf("final=%v doneCalls=%d", final, doneCalls)
	}
	first, ok := progress[0].(AdvancedStatus)
	if !ok {
		t.Fatalf("progress[0] is %T", progress[0])
	}
	// Four samples per poll: strobes at 1 and 3 have been counted.
	if first.TsmState != "count" || first.Counters[0] != 2 {
		t.Errorf("first progress = %v", first)
	}

	w, err := s.Upload(ctx)
	if err != nil {
		t.Fatal(err)
	}
	d, _ := w.GetData([]string{"data"}, waveform.Options{})
	// Strobes at 1, 3, 5 are counted, the one at 7 moves to fire, and the
	// trigger fires on sample 8.
	if got := d.Probes[0].Values[0].Int64(); got != 8 {
		t.Errorf("trigger sample data = %d, want 8", got)
	}
}

func TestMonitorStatusCancel(t *testing.T) {
	ctx := context.Background()
	s, _, _ := newSession(t, simcore.NewRows(nil, false), ila.DefaultGeometry())
	if err := s.Run(ctx, trigger.BuildImmediate(), 1, 8, 0); err != nil {
		t.Fatal(err)
	}
	var progressCalls, doneCalls atomic.Int32
	f := s.MonitorStatus(ctx, 0, func(RunStatus) { progressCalls.Add(1) }, func(RunStatus) { doneCalls.Add(1) })
	time.Sleep(10 * time.Millisecond)
	f.Cancel()

	select {
	case <-f.Done():
	case <-time.After(time.Second):
		t.Fatal("monitor did not stop after Cancel")
	}
	if !f.Cancelled() || doneCalls.Load() != 0 || progressCalls.Load() == 0 {
		t.Errorf("cancelled=%v done=%d progress=%d", f.Cancelled(), doneCalls.Load(), progressCalls.Load())
	}
	if f.Wait().Basic().State != ila.StateArmed || s.State() != ila.StateArmed {
		t.Errorf("cancel changed the run: %v", f.Status())
	}
}

func TestBackoff(t *testing.T) {
	b := newBackoff(Config{RetryBackoff: time.Millisecond, MaxBackoff: 3 * time.Millisecond})
	var got []time.Duration
	for i := 0; i < 4; i++ {
		got = append(got, b.next)
		if err := b.wait(context.Background()); err != nil {
			t.Fatal(err)
		}
	}
	want := []time.Duration{time.Millisecond, 2 * time.Millisecond, 3 * time.Millisecond, 3 * time.Millisecond}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("backoff mismatch (-want +got):\n%s", diff)
	}
}

func TestUploadAfterStop(t *testing.T) {
	ctx := context.Background()
	s, _, _ := newSession(t, simcore.FuncSource(counting), ila.DefaultGeometry())
	if err := s.Run(ctx, trigger.BuildImmediate(), 2, 64, 0); err != nil {
		t.Fatal(err)
	}
	if st := s.Status(ctx); st.Basic().State != ila.StateCapturing || st.Basic().SamplesCaptured != 4 {
		t.Fatalf("Status = %+v", st)
	}
	if _, err := s.Upload(ctx); !errors.Is(err, ila.ErrNothingToUpload) {
		t.Errorf("Upload while capturing: %v", err)
	}
	if err := s.Stop(ctx); err != nil {
		t.Fatalf("Stop: %v", err)
	}
	if st := s.Last().Basic(); st.State != ila.StateDone || st.SamplesCaptured != 4 {
		t.Errorf("Last after Stop = %+v", st)
	}
	w, err := s.Upload(ctx)
	if err != nil {
		t.Fatalf("Upload after Stop: %v", err)
	}
	d, err := w.GetData([]string{"data"}, waveform.Options{Trigger: true})
	if err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff([]bool{true, false, false, false}, d.Trigger); diff != "" {
		t.Errorf("trigger column mismatch (-want +got):\n%s", diff)
	}
	if !w.Stopped() || w.WindowCount() != 1 {
		t.Errorf("stopped=%v windows=%d", w.Stopped(), w.WindowCount())
	}
}

// stallingEngine accepts an arm and never answers a status request.
type stallingEngine struct {
	engine.Engine
}

func (stallingEngine) Arm(ctx context.Context, req engine.ArmRequest) error { return nil }

func (stallingEngine) Status(ctx context.Context) (engine.StatusReport, error) {
	<-ctx.Done()
	return engine.StatusReport{}, ctx.Err()
}

func TestWaitBoundsStalledStatus(t *testing.T) {
	m := testMap(t)
	cfg := testConfig()
	cfg.DefaultWait = time.Hour
	s := NewSession(stallingEngine{}, m, ila.DefaultGeometry(), cfg)
	ctx := context.Background()
	if err := s.Run(ctx, trigger.BuildImmediate(), 1, 8, 0); err != nil {
		t.Fatal(err)
	}

	start := time.Now()
	st := s.WaitTillDone(ctx, 50*time.Millisecond)
	if elapsed := time.Since(start); elapsed > time.Second {
		t.Errorf("WaitTillDone took %v with a 50ms limit", elapsed)
	}
	if st.Basic().State != ila.StateArmed || s.State() != ila.StateArmed {
		t.Errorf("after timeout: status %v, session %v", st.Basic().State, s.State())
	}

	f := s.MonitorStatus(ctx, 50*time.Millisecond, nil, func(RunStatus) {
		t.Error("done called for a run that never finished")
	})
	select {
	case <-f.Done():
	case <-time.After(time.Second):
		t.Fatal("MonitorStatus did not give up on a stalled status call")
	}
	if st := f.Status(); st.Basic().State != ila.StateArmed {
		t.Errorf("monitor status = %v", st.Basic().State)
	}
}
