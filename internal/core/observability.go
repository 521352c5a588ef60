package core

import (
	"context"
	"time"
)

// MetricsRecorder observes the outcome and duration of pipeline stages.
type MetricsRecorder interface {
	Observe(ctx context.Context, stage string, success bool, duration time.Duration)
}

// TokenObserver is implemented by recorders that also track the gap
// classification of the most recent run.
type TokenObserver interface {
	ObserveTokens(ctx context.Context, counts TokenCounts)
}

// TokenCounts summarizes how reported gene tokens were classified.
type TokenCounts struct {
	Synonym       int `json:"synonym"`
	Established   int `json:"established"`
	Unestablished int `json:"unestablished"`
}

// Tracer starts spans around pipeline stages.
type Tracer interface {
	Start(ctx context.Context, stage string) (context.Context, TraceSpan)
}

// TraceSpan is finished exactly once with the stage error, if any.
type TraceSpan interface {
	End(err error)
}

// Clock supplies run timestamps.
type Clock interface {
	Now() time.Time
}

// ClockFunc adapts a function to Clock. A nil ClockFunc reports the system time.
type ClockFunc func() time.Time

// Now returns the current time in UTC.
func (f ClockFunc) Now() time.Time {
	if f == nil {
		return time.Now().UTC()
	}
	return f().UTC()
}

type noopMetrics struct{}

func (noopMetrics) Observe(context.Context, string, bool, time.Duration) {}

type noopTracer struct{}

func (noopTracer) Start(ctx context.Context, _ string) (context.Context, TraceSpan) {
	return ctx, noopSpan{}
}

type noopSpan struct{}

func (noopSpan) End(error) {}
