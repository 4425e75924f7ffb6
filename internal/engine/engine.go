// Package engine is the experimentation engine: it assigns sessions to
// experiment variants, tracks conversions, analyzes results and folds variant
// overrides into page configurations.
//
// An Engine holds no authoritative state. The store is the source of truth;
// the engine only keeps an in-process singleflight group so concurrent
// first-time requests for one (experiment, session) pair share one storage
// round trip.
package engine

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/headline-goat/variant-goat/internal/events"
	"github.com/headline-goat/variant-goat/internal/metrics"
	"github.com/headline-goat/variant-goat/internal/stats"
	"github.com/headline-goat/variant-goat/internal/store"
)

type Engine struct {
	store     store.Store
	now       func() time.Time
	newID     func() string
	publisher events.Publisher
	metrics   *metrics.Metrics
	log       *zap.Logger
	flight    singleflight.Group
}

type Option func(*Engine)

func WithClock(now func() time.Time) Option {
	return func(e *Engine) { e.now = now }
}

func WithPublisher(p events.Publisher) Option {
	return func(e *Engine) { e.publisher = p }
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(e *Engine) { e.metrics = m }
}

func WithLogger(log *zap.Logger) Option {
	return func(e *Engine) { e.log = log }
}

func New(s store.Store, opts ...Option) *Engine {
	e := &Engine{
		store:     s,
		now:       time.Now,
		newID:     uuid.NewString,
		publisher: events.Nop{},
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.log == nil {
		e.log = zap.NewNop()
	}
	if e.metrics == nil {
		e.metrics = metrics.New(nil)
	}
	return e
}

// GetResults aggregates every assignment of an experiment and compares each
// variant with the control. Results are recomputed on every call.
func (e *Engine) GetResults(ctx context.Context, experimentID string) (*stats.Result, error) {
	exp, err := e.store.LoadExperiment(ctx, experimentID)
	if err != nil {
		return nil, err
	}

	assignments, err := e.store.ListAssignments(ctx, experimentID)
	if err != nil {
		return nil, fmt.Errorf("failed to list assignments: %w", err)
	}

	return stats.Analyze(exp, assignments), nil
}

// publish hands an event to the bus. Failures are logged and counted, never
// returned.
func (e *Engine) publish(ctx context.Context, ev events.Event) {
	if err := e.publisher.Publish(ctx, ev); err != nil {
		e.metrics.PublishFailures.Inc()
		e.log.Warn("failed to publish event",
			zap.String("event_type", ev.EventType),
			zap.String("experiment_id", ev.ExperimentID),
			zap.Error(err),
		)
	}
}
