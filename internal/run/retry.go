package run

import (
	"context"
	"time"

	"chipscope/internal/common"
	"chipscope/internal/ila"
)

// backoff doubles its delay on every wait, up to max.
type backoff struct {
	next time.Duration
	max  time.Duration
}

func newBackoff(cfg Config) *backoff {
	return &backoff{next: cfg.RetryBackoff, max: cfg.MaxBackoff}
}

func (b *backoff) wait(ctx context.Context) error {
	d := b.next
	if b.next *= 2; b.max > 0 && b.next > b.max {
		b.next = b.max
	}
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// retryable reports whether err may be a transient remote fault. Errors the
// caller has to fix, and cancellation, are never retried.
func retryable(ctx context.Context, err error) bool {
	if ctx.Err() != nil {
		return false
	}
	code := common.CodeOf(err)
	return !ila.IsConfigErr(code) && code != ila.ErrAlreadyArmed && code != ila.ErrNothingToUpload
}

// withRetry calls fn until it succeeds, fails permanently or has been tried
// cfg.MaxRetries+1 times.
func withRetry(ctx context.Context, cfg Config, log common.Logger, what string, fn func() error) error {
	b := newBackoff(cfg)
	var err error
	for attempt := 0; ; attempt++ {
		if err = fn(); err == nil {
			return nil
		}
		if !retryable(ctx, err) || attempt >= cfg.MaxRetries {
			return err
		}
		log.Logf(common.SeverityWarning, "%s failed (attempt %d of %d): %v", what, attempt+1, cfg.MaxRetries+1, err)
		if werr := b.wait(ctx); werr != nil {
			return err
		}
	}
}
