package engine

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/headline-goat/variant-goat/internal/allocation"
	"github.com/headline-goat/variant-goat/internal/pageconfig"
	"github.com/headline-goat/variant-goat/internal/store"
)

// ExperimentDecision pairs an experiment with the decision made for a session.
type ExperimentDecision struct {
	Experiment *store.Experiment
	Decision   Decision
}

// Decide resolves every active experiment on a page for one session and
// returns the base page configuration with the chosen variants applied.
func (e *Engine) Decide(ctx context.Context, scopeID, pageType, sessionID string, vctx allocation.VisitorContext) (*pageconfig.Config, []AppliedVariant, error) {
	ctx = WithRequestCache(ctx)

	raw, err := e.store.GetPageConfig(ctx, scopeID, pageType)
	if err != nil {
		return nil, nil, err
	}
	base, err := pageconfig.Parse(raw)
	if err != nil {
		return nil, nil, fmt.Errorf("page config %s/%s: %w", scopeID, pageType, err)
	}

	experiments, err := e.GetActiveForPage(ctx, scopeID, pageType)
	if err != nil {
		return nil, nil, err
	}

	decisions := make([]ExperimentDecision, 0, len(experiments))
	applied := make([]AppliedVariant, 0, len(experiments))
	for _, exp := range experiments {
		d, err := e.assign(ctx, exp, sessionID, vctx)
		if err != nil {
			return nil, nil, err
		}
		decisions = append(decisions, ExperimentDecision{Experiment: exp, Decision: d})
		if d.Outcome == OutcomeAssigned {
			applied = append(applied, AppliedVariant{
				ExperimentID:   exp.ID,
				ExperimentName: exp.Name,
				VariantID:      d.VariantID,
				VariantName:    d.VariantName,
				IsControl:      d.IsControl,
			})
		}
	}

	return e.Merge(base, decisions), applied, nil
}

// Merge applies variant overrides to a copy of base in the given order.
// Excluded sessions and control variants change nothing. Sections of a
// variant payload that cannot be interpreted are skipped.
func (e *Engine) Merge(base *pageconfig.Config, decisions []ExperimentDecision) *pageconfig.Config {
	cfg := base.Clone()

	for _, ed := range decisions {
		d := ed.Decision
		if d.Outcome != OutcomeAssigned || d.IsControl {
			continue
		}

		vc, ignored := pageconfig.ParseVariantConfig(d.VariantConfig)
		if len(ignored) > 0 {
			e.log.Warn("ignored variant config sections",
				zap.String("experiment_id", ed.Experiment.ID),
				zap.String("variant_id", d.VariantID),
				zap.Strings("sections", ignored),
			)
		}
		if err := cfg.Apply(vc); err != nil {
			e.log.Warn("skipped variant config section",
				zap.String("experiment_id", ed.Experiment.ID),
				zap.String("variant_id", d.VariantID),
				zap.Error(err),
			)
		}
	}
	return cfg
}
