package run

import (
	"context"
	"sync"
	"time"
)

// Future is a background status monitor started by MonitorStatus.
type Future struct {
	cancel context.CancelFunc
	done   chan struct{}

	mu        sync.Mutex
	status    RunStatus
	cancelled bool
}

// Cancel stops polling at the next poll cycle. It does not stop the capture.
func (f *Future) Cancel() {
	f.mu.Lock()
	f.cancelled = true
	f.mu.Unlock()
	f.cancel()
}

// Cancelled reports whether Cancel was called.
func (f *Future) Cancelled() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.cancelled
}

// Done is closed when monitoring ends for any reason.
func (f *Future) Done() <-chan struct{} { return f.done }

// Wait blocks until monitoring ends and returns the last status.
func (f *Future) Wait() RunStatus {
	<-f.done
	return f.Status()
}

// Status returns the most recent snapshot.
func (f *Future) Status() RunStatus {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.status
}

func (f *Future) set(st RunStatus) {
	f.mu.Lock()
	f.status = st
	f.mu.Unlock()
}

// MonitorStatus polls in the background at the configured interval. progress
// receives every snapshot; done is called exactly once if the run reaches a
// terminal state. Monitoring also ends on Cancel, ctx or after maxWait, in
// which case done is not called. Either callback may be nil.
func (s *Session) MonitorStatus(ctx context.Context, maxWait time.Duration, progress, done func(RunStatus)) *Future {
	if maxWait <= 0 {
		maxWait = s.cfg.DefaultWait
	}
	var cctx context.Context
	var cancel context.CancelFunc
	if maxWait > 0 {
		cctx, cancel = context.WithTimeout(ctx, maxWait)
	} else {
		cctx, cancel = context.WithCancel(ctx)
	}
	f := &Future{cancel: cancel, done: make(chan struct{}), status: s.Last()}
	var once sync.Once

	go func() {
		defer close(f.done)
		defer cancel()
		tick := time.NewTicker(s.cfg.PollInterval)
		defer tick.Stop()
		for {
			if cctx.Err() != nil {
				return
			}
			st := s.Status(cctx)
			f.set(st)
			if cctx.Err() != nil {
				return
			}
			if progress != nil {
				progress(st)
			}
			if !st.Basic().State.IsActive() {
				if st.Basic().State.IsTerminal() && done != nil {
					once.Do(func() { done(st) })
				}
				return
			}
			select {
			case <-cctx.Done():
				return
			case <-tick.C:
			}
		}
	}()
	return f
}
