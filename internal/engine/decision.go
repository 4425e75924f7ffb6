package engine

import (
	"context"
	"encoding/json"
	"sync"
)

type Outcome string

const (
	// OutcomeAssigned means the session is in the experiment on VariantID.
	OutcomeAssigned Outcome = "assigned"
	// OutcomeExcluded means traffic allocation or targeting kept the session out.
	OutcomeExcluded Outcome = "excluded"
	// OutcomeControlFallback means the experiment is not running and the
	// control experience applies. Nothing is persisted.
	OutcomeControlFallback Outcome = "control_fallback"
)

type Decision struct {
	Outcome       Outcome         `json:"outcome"`
	VariantID     string          `json:"variant_id,omitempty"`
	VariantName   string          `json:"variant_name,omitempty"`
	VariantConfig json.RawMessage `json:"variant_config,omitempty"`
	IsControl     bool            `json:"is_control"`
}

// AppliedVariant reports a variant a session was placed in while deciding a page.
type AppliedVariant struct {
	ExperimentID   string `json:"experiment_id"`
	ExperimentName string `json:"experiment_name"`
	VariantID      string `json:"variant_id"`
	VariantName    string `json:"variant_name"`
	IsControl      bool   `json:"is_control"`
}

type requestCacheKey struct{}

type requestCache struct {
	mu        sync.Mutex
	decisions map[string]Decision
}

// WithRequestCache attaches a decision cache that lives as long as ctx. It is
// meant for one request and never outlives it; the store stays authoritative.
func WithRequestCache(ctx context.Context) context.Context {
	if _, ok := ctx.Value(requestCacheKey{}).(*requestCache); ok {
		return ctx
	}
	return context.WithValue(ctx, requestCacheKey{}, &requestCache{decisions: map[string]Decision{}})
}

func cachedDecision(ctx context.Context, key string) (Decision, bool) {
	c, ok := ctx.Value(requestCacheKey{}).(*requestCache)
	if !ok {
		return Decision{}, false
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	d, ok := c.decisions[key]
	return d, ok
}

func cacheDecision(ctx context.Context, key string, d Decision) {
	c, ok := ctx.Value(requestCacheKey{}).(*requestCache)
	if !ok {
		return
	}
	c.mu.Lock()
	c.decisions[key] = d
	c.mu.Unlock()
}

func pairKey(experimentID, sessionID string) string {
	return experimentID + "\x00" + sessionID
}
