package engine

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/headline-goat/variant-goat/internal/allocation"
	"github.com/headline-goat/variant-goat/internal/events"
	"github.com/headline-goat/variant-goat/internal/store"
)

// GetAssignment decides which variant of an experiment a session sees. An
// existing assignment is returned as is, whatever the experiment's current
// rules. Otherwise the session must pass traffic allocation and targeting, a
// variant is selected and persisted once. Concurrent first-time callers for
// the same pair all observe the stored winner.
func (e *Engine) GetAssignment(ctx context.Context, experimentID, sessionID string, vctx allocation.VisitorContext) (Decision, error) {
	key := pairKey(experimentID, sessionID)
	if d, ok := cachedDecision(ctx, key); ok {
		return d, nil
	}

	exp, err := e.store.LoadExperiment(ctx, experimentID)
	if err != nil {
		return Decision{}, err
	}
	return e.assign(ctx, exp, sessionID, vctx)
}

func (e *Engine) assign(ctx context.Context, exp *store.Experiment, sessionID string, vctx allocation.VisitorContext) (Decision, error) {
	key := pairKey(exp.ID, sessionID)
	if d, ok := cachedDecision(ctx, key); ok {
		return d, nil
	}

	v, err, _ := e.flight.Do(key, func() (any, error) {
		return e.decide(ctx, exp, sessionID, vctx)
	})
	if err != nil {
		return Decision{}, err
	}

	d := v.(Decision)
	cacheDecision(ctx, key, d)
	return d, nil
}

func (e *Engine) decide(ctx context.Context, exp *store.Experiment, sessionID string, vctx allocation.VisitorContext) (Decision, error) {
	existing, err := e.store.FindAssignment(ctx, exp.ID, sessionID)
	if err == nil {
		e.metrics.Assignments.WithLabelValues("existing").Inc()
		return assignedDecision(exp, existing), nil
	}
	if !errors.Is(err, store.ErrAssignmentNotFound) {
		return Decision{}, err
	}

	if exp.Status != store.StatusRunning {
		e.metrics.Assignments.WithLabelValues("control_fallback").Inc()
		d := Decision{Outcome: OutcomeControlFallback, IsControl: true}
		if control, ok := exp.Control(); ok {
			d.VariantID, d.VariantName, d.VariantConfig = control.ID, control.Name, control.Config
		}
		return d, nil
	}

	if len(exp.Variants) == 0 {
		return Decision{}, fmt.Errorf("%w: running experiment %s has no variants", store.ErrInvalidExperimentState, exp.ID)
	}

	if allocation.TrafficHash(sessionID) > exp.TrafficAllocation || !allocation.Matches(exp.Targeting, vctx) {
		e.metrics.Assignments.WithLabelValues("excluded").Inc()
		return Decision{Outcome: OutcomeExcluded}, nil
	}

	variant, _ := allocation.Select(exp.Variants, allocation.VariantHash(sessionID, exp.ID))

	stored, created, err := e.store.CreateAssignmentIfAbsent(ctx, &store.Assignment{
		ID:           e.newID(),
		ExperimentID: exp.ID,
		SessionID:    sessionID,
		VariantID:    variant.ID,
		VariantName:  variant.Name,
		UserID:       vctx.UserID,
		Context:      vctx.Metadata(),
		Metrics:      map[string]float64{},
		CreatedAt:    e.now(),
	})
	if err != nil {
		return Decision{}, err
	}

	if !created {
		// Another caller persisted first; its variant wins.
		e.metrics.Assignments.WithLabelValues("existing").Inc()
		return assignedDecision(exp, stored), nil
	}

	e.metrics.Assignments.WithLabelValues("assigned").Inc()
	e.log.Debug("assigned session",
		zap.String("experiment_id", exp.ID),
		zap.String("session_id", sessionID),
		zap.String("variant_id", stored.VariantID),
	)
	e.publish(ctx, events.Event{
		EventType:    events.TypeAssignment,
		ExperimentID: exp.ID,
		SessionID:    sessionID,
		VariantID:    stored.VariantID,
		VariantName:  stored.VariantName,
		UserID:       stored.UserID,
		OccurredAt:   stored.CreatedAt,
	})

	return assignedDecision(exp, stored), nil
}

func assignedDecision(exp *store.Experiment, a *store.Assignment) Decision {
	d := Decision{
		Outcome:     OutcomeAssigned,
		VariantID:   a.VariantID,
		VariantName: a.VariantName,
	}
	if v, ok := exp.Variant(a.VariantID); ok {
		d.VariantConfig = v.Config
	}
	if control, ok := exp.Control(); ok {
		d.IsControl = control.ID == a.VariantID
	}
	return d
}

// GetActiveForPage lists running experiments of a scope that are inside their
// date window and target pageType.
func (e *Engine) GetActiveForPage(ctx context.Context, scopeID, pageType string) ([]*store.Experiment, error) {
	candidates, err := e.store.ListActiveExperiments(ctx, scopeID, pageType)
	if err != nil {
		return nil, err
	}

	now := e.now()
	var active []*store.Experiment
	for _, exp := range candidates {
		if exp.Status != store.StatusRunning {
			continue
		}
		if exp.StartDate != nil && exp.StartDate.After(now) {
			continue
		}
		if exp.EndDate != nil && exp.EndDate.Before(now) {
			continue
		}
		if !allocation.PageMatches(exp.Targeting, pageType) {
			continue
		}
		active = append(active, exp)
	}
	return active, nil
}
