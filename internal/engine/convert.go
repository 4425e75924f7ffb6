package engine

import (
	"context"
	"fmt"

	"github.com/headline-goat/variant-goat/internal/events"
	"github.com/headline-goat/variant-goat/internal/store"
)

type ConversionResult struct {
	AlreadyConverted bool
	Assignment       *store.Assignment
}

// TrackConversion marks an assigned session as converted. Only the first call
// for a pair records a value and timestamp; later calls report
// AlreadyConverted and change nothing.
func (e *Engine) TrackConversion(ctx context.Context, experimentID, sessionID string, value *float64, metrics map[string]float64) (ConversionResult, error) {
	a, err := e.store.FindAssignment(ctx, experimentID, sessionID)
	if err != nil {
		return ConversionResult{}, err
	}
	if a.Converted {
		e.metrics.Conversions.WithLabelValues("already_converted").Inc()
		return ConversionResult{AlreadyConverted: true, Assignment: a}, nil
	}

	now := e.now()
	update := &store.Assignment{
		ExperimentID: experimentID,
		SessionID:    sessionID,
		Converted:    true,
		ConvertedAt:  &now,
		Metrics:      metrics,
	}
	if value != nil {
		v := *value
		update.ConversionValue = &v
	}

	won, err := e.store.MarkConverted(ctx, update)
	if err != nil {
		return ConversionResult{}, err
	}

	current, err := e.store.FindAssignment(ctx, experimentID, sessionID)
	if err != nil {
		return ConversionResult{}, err
	}
	if !won {
		e.metrics.Conversions.WithLabelValues("already_converted").Inc()
		return ConversionResult{AlreadyConverted: true, Assignment: current}, nil
	}

	e.metrics.Conversions.WithLabelValues("converted").Inc()
	e.publish(ctx, events.Event{
		EventType:       events.TypeConversion,
		ExperimentID:    experimentID,
		SessionID:       sessionID,
		VariantID:       current.VariantID,
		VariantName:     current.VariantName,
		UserID:          current.UserID,
		ConversionValue: update.ConversionValue,
		Metrics:         metrics,
		OccurredAt:      now,
	})

	return ConversionResult{Assignment: current}, nil
}

// TrackMetric records one custom metric on an assignment without touching its
// conversion state. The last write for a name wins; other names are kept.
func (e *Engine) TrackMetric(ctx context.Context, experimentID, sessionID, name string, value float64) error {
	if name == "" {
		return fmt.Errorf("metric name is required")
	}
	return e.store.MergeMetrics(ctx, experimentID, sessionID, map[string]float64{name: value})
}
