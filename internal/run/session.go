// Package run drives capture sessions on one ILA instance: arming, status
// polling, completion waits and upload.
package run

import (
	"context"
	"sync"
	"time"

	"github.com/pkg/errors"

	"chipscope/internal/common"
	"chipscope/internal/engine"
	"chipscope/internal/ila"
	"chipscope/internal/probe"
	"chipscope/internal/trigger"
	"chipscope/internal/waveform"
)

// Config controls polling and retries.
type Config struct {
	PollInterval time.Duration
	MaxRetries   int           // extra attempts after a failed remote call
	RetryBackoff time.Duration // first retry delay, doubled per retry
	MaxBackoff   time.Duration
	DefaultWait  time.Duration // used when a wait is given no limit
	Log          common.Logger
}

func DefaultConfig() Config {
	return Config{
		PollInterval: 100 * time.Millisecond,
		MaxRetries:   3,
		RetryBackoff: 50 * time.Millisecond,
		MaxBackoff:   time.Second,
		DefaultWait:  time.Minute,
	}
}

// Session is the run state machine of one ILA instance. At most one run is
// armed at a time.
type Session struct {
	mu   sync.Mutex
	e    engine.Engine
	m    *probe.Map
	g    ila.Geometry
	cfg  Config
	log  common.Logger
	st   ila.RunState
	mode ila.TriggerMode
	last RunStatus
	wave *waveform.Waveform
}

func NewSession(e engine.Engine, m *probe.Map, g ila.Geometry, cfg Config) *Session {
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = DefaultConfig().PollInterval
	}
	if cfg.MaxRetries < 0 {
		cfg.MaxRetries = 0
	}
	return &Session{
		e:    e,
		m:    m,
		g:    g,
		cfg:  cfg,
		log:  common.PrefixLogger{Prefix: m.Name(), Next: common.OrNoOp(cfg.Log)},
		st:   ila.StateIdle,
		last: BasicStatus{State: ila.StateIdle},
	}
}

// State returns the local session state without contacting the engine.
func (s *Session) State() ila.RunState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.st
}

// Last returns the most recent status without polling.
func (s *Session) Last() RunStatus {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.last
}

// Run validates the trigger and window geometry and arms the engine. All
// checks happen before the engine is contacted.
func (s *Session) Run(ctx context.Context, spec *trigger.Spec, windowCount, windowSize, triggerPosition int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.st.IsActive() {
		return common.Errorf(ila.ErrAlreadyArmed, "%s already has a run %s", s.m.Name(), s.st)
	}
	if err := spec.Validate(s.g, s.m.DataWidth()); err != nil {
		return err
	}
	req := engine.ArmRequest{
		Trigger:         spec,
		WindowCount:     windowCount,
		WindowSize:      windowSize,
		TriggerPosition: triggerPosition,
	}
	if err := req.Check(s.g); err != nil {
		return err
	}
	if err := s.e.Arm(ctx, req); err != nil {
		s.log.Error(err)
		return err
	}
	s.st = ila.StateArmed
	s.mode = spec.Mode
	s.wave = nil
	s.last = s.snapshot(engine.StatusReport{State: ila.StateArmed})
	s.log.Logf(common.SeverityInfo, "armed %s trigger, %d window(s) of %d, trigger at %d",
		spec.Mode, windowCount, windowSize, triggerPosition)
	return nil
}

// Status polls the engine once, retrying transient failures with backoff.
// When retries run out the session moves to StateError. Outside an active
// run the last known status is returned without a remote call.
func (s *Session) Status(ctx context.Context) RunStatus {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.poll(ctx)
}

func (s *Session) poll(ctx context.Context) RunStatus {
	if !s.st.IsActive() || ctx.Err() != nil {
		return s.last
	}
	var rep engine.StatusReport
	err := withRetry(ctx, s.cfg, s.log, "status", func() error {
		var err error
		rep, err = s.e.Status(ctx)
		return err
	})
	if err != nil {
		if ctx.Err() != nil {
			return s.last
		}
		s.log.Error(err)
		s.st = ila.StateError
		s.last = BasicStatus{State: ila.StateError, Err: err}
		return s.last
	}
	switch rep.State {
	case ila.StateArmed, ila.StateCapturing, ila.StateDone, ila.StateError, ila.StateIdle:
		if rep.State != s.st {
			s.log.Logf(common.SeverityDebug, "state %s -> %s", s.st, rep.State)
		}
		s.st = rep.State
	}
	s.last = s.snapshot(rep)
	return s.last
}

func (s *Session) snapshot(rep engine.StatusReport) RunStatus {
	b := BasicStatus{State: rep.State, SamplesCaptured: rep.SamplesCaptured, WindowsCaptured: rep.WindowsCaptured}
	if s.mode != ila.TriggerAdvanced {
		return b
	}
	return AdvancedStatus{
		BasicStatus: b,
		TsmState:    rep.TsmState,
		Counters:    append([]uint64(nil), rep.Counters...),
		Flags:       append([]bool(nil), rep.Flags...),
	}
}

// WaitTillDone polls until the run reaches a terminal state, maxWait passes
// or ctx is done, and returns the last status. maxWait also bounds a status
// call in flight. A timeout is not an error and does not cancel the capture;
// callers check the returned state.
func (s *Session) WaitTillDone(ctx context.Context, maxWait time.Duration) RunStatus {
	if maxWait <= 0 {
		maxWait = s.cfg.DefaultWait
	}
	if maxWait > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, maxWait)
		defer cancel()
	}
	tick := time.NewTicker(s.cfg.PollInterval)
	defer tick.Stop()
	for {
		st := s.Status(ctx)
		if !st.Basic().State.IsActive() {
			return st
		}
		select {
		case <-ctx.Done():
			if errors.Is(ctx.Err(), context.DeadlineExceeded) {
				s.log.Logf(common.SeverityInfo, "wait timed out in state %s", st.Basic().State)
			}
			return st
		case <-tick.C:
		}
	}
}

// Upload fetches the capture once the run is done. Later calls return the
// same waveform without contacting the engine.
func (s *Session) Upload(ctx context.Context) (*waveform.Waveform, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.wave != nil {
		return s.wave, nil
	}
	if s.st != ila.StateDone {
		return nil, common.Errorf(ila.ErrNothingToUpload, "%s is %s", s.m.Name(), s.st)
	}
	var capt *engine.Capture
	err := withRetry(ctx, s.cfg, s.log, "upload", func() error {
		var err error
		capt, err = s.e.Upload(ctx)
		return err
	})
	if err != nil {
		return nil, err
	}
	w, err := waveform.New(s.m, capt)
	if err != nil {
		return nil, err
	}
	s.wave = w
	s.log.Logf(common.SeverityInfo, "uploaded %d samples", w.Len())
	return w, nil
}

// Stop asks the engine to end an active run early. The run finishes as
// done, and Upload returns whatever the core captured, with no trigger row
// in windows that never triggered. Engines that cannot stop report
// ErrInvalidParam.
func (s *Session) Stop(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.st.IsActive() {
		return nil
	}
	st, ok := s.e.(engine.Stopper)
	if !ok {
		return common.Errorf(ila.ErrInvalidParam, "engine for %s cannot stop a capture", s.m.Name())
	}
	if err := st.Stop(ctx); err != nil {
		return err
	}
	last := s.last.Basic()
	s.st = ila.StateDone
	s.wave = nil
	s.last = s.snapshot(engine.StatusReport{
		State:           ila.StateDone,
		SamplesCaptured: last.SamplesCaptured,
		WindowsCaptured: last.WindowsCaptured,
	})
	s.log.Info("run stopped")
	return nil
}

// Reset returns a finished or failed session to idle and drops any cached
// waveform. It fails while a run is active.
func (s *Session) Reset() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.st.IsActive() {
		return common.Errorf(ila.ErrAlreadyArmed, "%s has an active run", s.m.Name())
	}
	s.st = ila.StateIdle
	s.last = BasicStatus{State: ila.StateIdle}
	s.wave = nil
	return nil
}
