package core

import (
	"go.uber.org/zap"

	"cpgcore/internal/disease"
	"cpgcore/internal/gap"
	"cpgcore/internal/runlog"
)

// Option configures a Service.
type Option func(*serviceOptions)

type serviceOptions struct {
	clock       Clock
	logger      *zap.Logger
	metrics     MetricsRecorder
	tracer      Tracer
	runs        runlog.Store
	workers     int
	filterClass string
	policy      gap.TokenPolicy
	suggestions bool
}

func defaultServiceOptions() serviceOptions {
	return serviceOptions{
		clock:       ClockFunc(nil),
		logger:      zap.NewNop(),
		metrics:     noopMetrics{},
		tracer:      noopTracer{},
		runs:        runlog.NewMemoryStore(),
		workers:     1,
		filterClass: disease.DefaultFilterClass,
		policy:      gap.DecimalPolicy,
		suggestions: true,
	}
}

// WithLogger sets the structured logger. Nil keeps the no-op logger.
func WithLogger(logger *zap.Logger) Option {
	return func(o *serviceOptions) {
		if logger != nil {
			o.logger = logger
		}
	}
}

// WithClock overrides the clock used for run timestamps.
func WithClock(clock Clock) Option {
	return func(o *serviceOptions) {
		if clock != nil {
			o.clock = clock
		}
	}
}

// WithMetrics installs a stage metrics recorder.
func WithMetrics(recorder MetricsRecorder) Option {
	return func(o *serviceOptions) {
		if recorder != nil {
			o.metrics = recorder
		}
	}
}

// WithTracer installs a stage tracer.
func WithTracer(tracer Tracer) Option {
	return func(o *serviceOptions) {
		if tracer != nil {
			o.tracer = tracer
		}
	}
}

// WithRunStore sets where run records are kept.
func WithRunStore(store runlog.Store) Option {
	return func(o *serviceOptions) {
		if store != nil {
			o.runs = store
		}
	}
}

// WithWorkers bounds the per-row annotation fan-out. Values below one mean
// sequential processing.
func WithWorkers(n int) Option {
	return func(o *serviceOptions) {
		o.workers = max(n, 1)
	}
}

// WithFilterClass sets the disease classification used by filtered mode.
func WithFilterClass(class string) Option {
	return func(o *serviceOptions) {
		if class != "" {
			o.filterClass = class
		}
	}
}

// WithTokenPolicy replaces the unestablished-token heuristic.
func WithTokenPolicy(policy gap.TokenPolicy) Option {
	return func(o *serviceOptions) {
		if policy != nil {
			o.policy = policy
		}
	}
}

// WithSuggestions toggles closest-symbol hints on the gap ledger.
func WithSuggestions(enabled bool) Option {
	return func(o *serviceOptions) {
		o.suggestions = enabled
	}
}
