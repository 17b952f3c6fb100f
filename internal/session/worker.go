package session

import (
	"context"
	"math"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/fpga-edge/drm-agent-go/internal/drmerr"
	"github.com/fpga-edge/drm-agent-go/internal/retry"
)

// spawnWorker starts the background worker if one is not already
// running. At most one worker per Session is ever live — enforced by
// checking cancelWorker rather than trusting callers, since the state
// machine alone shouldn't be the only thing standing between this and
// a leaked goroutine.
func (s *Session) spawnWorker() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cancelWorker != nil {
		return
	}
	ctx, cancel := context.WithCancel(context.Background())
	g, gctx := errgroup.WithContext(ctx)
	s.cancelWorker = cancel
	s.workerGroup = g
	g.Go(func() error { return s.runWorker(gctx) })
}

// haltWorker cancels the worker's context and joins it, leaving no
// worker running by the time it returns. Safe to call when no worker
// is running.
func (s *Session) haltWorker() {
	s.mu.Lock()
	cancel := s.cancelWorker
	group := s.workerGroup
	s.cancelWorker = nil
	s.workerGroup = nil
	s.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	if group != nil {
		_ = group.Wait()
	}
}

// runWorker is the license continuity loop (spec §4.G): one frequency
// auto-detection pass for metered sessions, then poll the controller's
// timer state and request a fresh license whenever it is ready for
// one, sleeping for the remaining license time in between.
func (s *Session) runWorker(ctx context.Context) error {
	if !s.nodeLocked && s.frequencyMHz > 0 {
		if err := s.detectFrequency(ctx); err != nil {
			s.reportWorkerError(err)
			return err
		}
	}

	for {
		if ctx.Err() != nil {
			return nil
		}

		ready, err := s.readyForNewLicense()
		if err != nil {
			s.reportWorkerError(err)
			return err
		}
		if !ready {
			left, err := s.currentLicenseTimeLeft()
			if err != nil {
				s.reportWorkerError(err)
				return err
			}
			if err := retry.Sleep(ctx, left+time.Second); err != nil {
				return nil
			}
			continue
		}

		req, err := s.builder.Running()
		if err != nil {
			s.reportWorkerError(err)
			return err
		}
		iteration := uuid.New().String()
		deadline := time.Now().Add(s.LicenseDuration())
		s.log.Debug().Str("iteration_id", iteration).Msg("worker requesting license renewal")
		if err := s.fetchAndInstall(ctx, req, deadline); err != nil {
			if drmerr.Is(err, drmerr.Exit) {
				return nil
			}
			s.reportWorkerError(err)
			return err
		}
	}
}

func (s *Session) reportWorkerError(err error) {
	s.onAsyncError(err)
	s.onEvent(Event{Kind: EventWorkerError, SessionID: s.builder.SessionID(), State: s.State()})
}

// currentLicenseTimeLeft converts the controller's raw licensing
// clock-cycle counter into a duration, at the configured frequency —
// grounded in the original's getCurrentLicenseTimeLeft.
func (s *Session) currentLicenseTimeLeft() (time.Duration, error) {
	counter, err := s.ctrl.SampleTimerCounter()
	if err != nil {
		return 0, err
	}
	if s.frequencyMHz <= 0 {
		return 0, nil
	}
	seconds := math.Ceil(float64(counter) / (float64(s.frequencyMHz) * 1e6))
	return time.Duration(seconds * float64(time.Second)), nil
}

// detectFrequency samples the controller's free-running counter twice
// to measure its actual clock frequency and compares it against the
// configured one, raising BadFrequency if they diverge by more than
// the configured threshold (spec supplement, grounded in the
// original's detectDrmFrequency). It retries up to three times if the
// counter is observed to increase between samples — a sign the
// license timer itself reloaded mid-measurement, not a frequency
// mismatch.
func (s *Session) detectFrequency(ctx context.Context) error {
	const maxAttempts = 3
	for attempt := 0; attempt < maxAttempts; attempt++ {
		c0, t0, err := s.waitForDecrement(ctx)
		if err != nil {
			return err
		}
		if err := retry.Sleep(ctx, s.freqDetectPeriod); err != nil {
			return err
		}
		c1, err := s.ctrl.SampleTimerCounter()
		if err != nil {
			return err
		}
		elapsed := time.Since(t0).Seconds()
		if c1 == 0 {
			return drmerr.New(drmerr.ControllerError, "frequency auto-detection: timer counter read zero")
		}
		if c1 > c0 {
			continue // timer reloaded mid-sample; restart
		}
		measuredMHz := math.Ceil(float64(c0-c1) / elapsed / 1e6)
		precisionError := 100 * math.Abs(measuredMHz-float64(s.frequencyMHz)) / float64(s.frequencyMHz)
		s.setCurrentFrequencyMHz(int(measuredMHz))
		if precisionError >= s.freqDetectThresh {
			return drmerr.New(drmerr.BadFrequency,
				"measured controller frequency %.0fMHz differs from configured %dMHz by %.1f%%", measuredMHz, s.frequencyMHz, precisionError)
		}
		s.log.Debug().Float64("measured_mhz", measuredMHz).Int("configured_mhz", s.frequencyMHz).Msg("frequency auto-detection passed")
		return nil
	}
	return drmerr.New(drmerr.ControllerError, "frequency auto-detection: counter did not decrement after %d attempts", maxAttempts)
}

// waitForDecrement busy-waits, yielding between samples, until the
// timer counter is observed decrementing from its first reading — the
// controller might have just loaded the timer, in which case a sample
// taken immediately could be stale. It returns the lower reading and
// the time it was taken, which becomes the baseline for the
// measurement window (original's detectDrmFrequency inner while(1)
// loop, drm_manager.cpp:1132-1138).
func (s *Session) waitForDecrement(ctx context.Context) (uint64, time.Time, error) {
	baseline, err := s.ctrl.SampleTimerCounter()
	if err != nil {
		return 0, time.Time{}, err
	}
	for {
		if err := retry.Sleep(ctx, time.Millisecond); err != nil {
			return 0, time.Time{}, err
		}
		next, err := s.ctrl.SampleTimerCounter()
		if err != nil {
			return 0, time.Time{}, err
		}
		if next < baseline {
			return next, time.Now(), nil
		}
	}
}
