package engine

import (
	"context"

	"go.uber.org/zap"

	"github.com/headline-goat/variant-goat/internal/store"
)

// CreateExperiment stores a new experiment, generating an id when none is set.
func (e *Engine) CreateExperiment(ctx context.Context, exp *store.Experiment) error {
	if exp.ID == "" {
		exp.ID = e.newID()
	}
	if err := e.store.CreateExperiment(ctx, exp); err != nil {
		return err
	}
	e.log.Info("experiment created", zap.String("experiment_id", exp.ID), zap.String("status", string(exp.Status)))
	return nil
}

func (e *Engine) Start(ctx context.Context, experimentID string) (*store.Experiment, error) {
	return e.transition(ctx, experimentID, func(exp *store.Experiment) error {
		return exp.Start(e.now())
	})
}

func (e *Engine) Pause(ctx context.Context, experimentID string) (*store.Experiment, error) {
	return e.transition(ctx, experimentID, func(exp *store.Experiment) error {
		return exp.Pause()
	})
}

// Complete ends an experiment. winnerID may be nil when no winner is declared.
func (e *Engine) Complete(ctx context.Context, experimentID string, winnerID *string) (*store.Experiment, error) {
	return e.transition(ctx, experimentID, func(exp *store.Experiment) error {
		return exp.Complete(e.now(), winnerID)
	})
}

func (e *Engine) Archive(ctx context.Context, experimentID string) (*store.Experiment, error) {
	return e.transition(ctx, experimentID, func(exp *store.Experiment) error {
		exp.Archive()
		return nil
	})
}

func (e *Engine) transition(ctx context.Context, experimentID string, apply func(*store.Experiment) error) (*store.Experiment, error) {
	exp, err := e.store.LoadExperiment(ctx, experimentID)
	if err != nil {
		return nil, err
	}

	from := exp.Status
	if err := apply(exp); err != nil {
		return nil, err
	}
	if err := e.store.UpdateExperiment(ctx, exp); err != nil {
		return nil, err
	}

	e.log.Info("experiment status changed",
		zap.String("experiment_id", exp.ID),
		zap.String("from", string(from)),
		zap.String("to", string(exp.Status)),
	)
	return exp, nil
}
