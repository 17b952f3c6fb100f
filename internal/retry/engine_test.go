package retry

import (
	"context"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/fpga-edge/drm-agent-go/internal/drmerr"
)

func TestDoSucceedsWithoutRetry(t *testing.T) {
	calls := 0
	err := Do(context.Background(), zerolog.Nop(), Periods{ShortPeriod: time.Millisecond, LongPeriod: time.Second}, time.Now().Add(time.Second), func() error {
		calls++
		return nil
	})
	if err != nil {
		t.Fatalf("Do() = %v, want nil", err)
	}
	if calls != 1 {
		t.Fatalf("calls = %d, want 1", calls)
	}
}

func TestDoReturnsNonRetryableErrorImmediately(t *testing.T) {
	calls := 0
	want := drmerr.New(drmerr.BadArgument, "boom")
	err := Do(context.Background(), zerolog.Nop(), Periods{ShortPeriod: time.Millisecond, LongPeriod: time.Second}, time.Now().Add(time.Second), func() error {
		calls++
		return want
	})
	if err != want {
		t.Fatalf("Do() = %v, want %v", err, want)
	}
	if calls != 1 {
		t.Fatalf("calls = %d, want 1 (non-retryable must not retry)", calls)
	}
}

func TestDoRetriesUntilSuccess(t *testing.T) {
	calls := 0
	err := Do(context.Background(), zerolog.Nop(), Periods{ShortPeriod: time.Millisecond, LongPeriod: time.Millisecond}, time.Now().Add(time.Second), func() error {
		calls++
		if calls < 3 {
			return drmerr.New(drmerr.WebServiceRetryable, "transient")
		}
		return nil
	})
	if err != nil {
		t.Fatalf("Do() = %v, want nil", err)
	}
	if calls != 3 {
		t.Fatalf("calls = %d, want 3", calls)
	}
}

func TestDoReturnsTerminalErrorAfterDeadline(t *testing.T) {
	deadline := time.Now().Add(5 * time.Millisecond)
	err := Do(context.Background(), zerolog.Nop(), Periods{ShortPeriod: time.Millisecond, LongPeriod: time.Millisecond}, deadline, func() error {
		return drmerr.New(drmerr.WebServiceRetryable, "transient")
	})
	if err == nil {
		t.Fatal("Do() = nil, want WebServiceError after deadline elapses")
	}
	if kind, ok := drmerr.KindOf(err); !ok || kind != drmerr.WebServiceError {
		t.Fatalf("kind = %v, want WebServiceError", kind)
	}
}

func TestDoWithZeroShortPeriodDisablesRetry(t *testing.T) {
	calls := 0
	err := Do(context.Background(), zerolog.Nop(), Periods{ShortPeriod: 0, LongPeriod: time.Second}, time.Now().Add(time.Second), func() error {
		calls++
		return drmerr.New(drmerr.WebServiceRetryable, "transient")
	})
	if err == nil {
		t.Fatal("Do() = nil, want error when retry disabled")
	}
	if calls != 1 {
		t.Fatalf("calls = %d, want 1", calls)
	}
}

func TestDoRespectsContextCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := Do(ctx, zerolog.Nop(), Periods{ShortPeriod: time.Hour, LongPeriod: time.Hour}, time.Now().Add(time.Hour), func() error {
		return drmerr.New(drmerr.WebServiceRetryable, "transient")
	})
	if kind, ok := drmerr.KindOf(err); !ok || kind != drmerr.Exit {
		t.Fatalf("kind = %v, want Exit", kind)
	}
}
