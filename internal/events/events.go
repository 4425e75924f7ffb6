// Package events publishes assignment and conversion notifications to
// external subscribers. Publishing is fire-and-forget from the engine's point
// of view: callers log failures and carry on.
package events

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"
)

const (
	TypeAssignment = "assignment"
	TypeConversion = "conversion"
)

type Event struct {
	EventType       string             `json:"event_type"`
	ExperimentID    string             `json:"experiment_id"`
	SessionID       string             `json:"session_id"`
	VariantID       string             `json:"variant_id"`
	VariantName     string             `json:"variant_name"`
	UserID          string             `json:"user_id,omitempty"`
	ConversionValue *float64           `json:"conversion_value,omitempty"`
	Metrics         map[string]float64 `json:"metrics,omitempty"`
	OccurredAt      time.Time          `json:"occurred_at"`
}

type Publisher interface {
	Publish(ctx context.Context, e Event) error
	Close() error
}

// Nop discards every event.
type Nop struct{}

func (Nop) Publish(context.Context, Event) error { return nil }
func (Nop) Close() error                         { return nil }

// LogPublisher writes events to a zap logger.
type LogPublisher struct {
	log *zap.Logger
}

func NewLogPublisher(log *zap.Logger) *LogPublisher {
	if log == nil {
		log = zap.NewNop()
	}
	return &LogPublisher{log: log.Named("events")}
}

func (p *LogPublisher) Publish(_ context.Context, e Event) error {
	p.log.Info("experiment event",
		zap.String("event_type", e.EventType),
		zap.String("experiment_id", e.ExperimentID),
		zap.String("session_id", e.SessionID),
		zap.String("variant_id", e.VariantID),
		zap.Time("occurred_at", e.OccurredAt),
	)
	return nil
}

func (p *LogPublisher) Close() error { return nil }

// Multi fans an event out to every publisher and joins their errors.
type Multi []Publisher

func (m Multi) Publish(ctx context.Context, e Event) error {
	var errs []error
	for _, p := range m {
		if err := p.Publish(ctx, e); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (m Multi) Close() error {
	var errs []error
	for _, p := range m {
		if err := p.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
