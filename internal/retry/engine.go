// Package retry implements the two-tier backoff every web-service
// round trip (OAuth2 token fetch, license request) runs under (spec
// §4.E): retryable failures are retried until a single shared
// deadline expires, non-retryable failures abort immediately, and the
// sleep between attempts is cooperatively cancellable so a pending
// Deactivate is never blocked behind a long backoff.
package retry

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"github.com/fpga-edge/drm-agent-go/internal/drmerr"
)

// Periods configures the two backoff tiers. ShortPeriod of zero
// disables retrying altogether — the first failure is terminal.
type Periods struct {
	ShortPeriod time.Duration
	LongPeriod  time.Duration
}

// Do runs fn repeatedly until it succeeds, returns a non-retryable
// error, or deadline elapses. fn reports retryability itself by
// returning a *drmerr.Error of kind WebServiceRetryable; any other
// error is treated as terminal and returned immediately. Do sleeps
// between attempts using the long period while more than LongPeriod
// remains before deadline, and the short period otherwise — mirroring
// the original's attempt-spacing rule exactly.
//
// ctx cancellation aborts the wait and returns a drmerr.Exit error,
// never the caller's underlying failure, so callers can distinguish
// cooperative shutdown from a real timeout.
func Do(ctx context.Context, log zerolog.Logger, periods Periods, deadline time.Time, fn func() error) error {
	attempt := 0
	for {
		attempt++
		err := fn()
		if err == nil {
			return nil
		}
		if !drmerr.Is(err, drmerr.WebServiceRetryable) {
			return err
		}
		now := time.Now()
		if !now.Before(deadline) {
			return drmerr.Wrap(drmerr.WebServiceError, err, "timed out after %d attempts", attempt)
		}
		if periods.ShortPeriod <= 0 {
			return drmerr.Wrap(drmerr.WebServiceError, err, "failed after %d attempts, retry disabled", attempt)
		}
		wait := periods.ShortPeriod
		if deadline.Sub(now) > periods.LongPeriod {
			wait = periods.LongPeriod
		}
		if wait > deadline.Sub(now) {
			wait = deadline.Sub(now)
		}
		log.Debug().Int("attempt", attempt).Dur("wait", wait).Err(err).Msg("web service call failed, retrying")
		if err := sleepOrExit(ctx, wait); err != nil {
			return err
		}
	}
}

// Sleep blocks for d or until ctx is cancelled, whichever comes
// first — the cooperative-cancellable sleep the original's condition
// variable wait_for provided. Exported so internal/session's
// background worker can use the same primitive for its own
// between-poll waits and frequency-detection sampling window.
func Sleep(ctx context.Context, d time.Duration) error {
	return sleepOrExit(ctx, d)
}

func sleepOrExit(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return drmerr.New(drmerr.Exit, "retry wait interrupted")
	}
}
