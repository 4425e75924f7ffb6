package store

import (
	"context"
	"encoding/json"
)

// Store defines the persistence operations the experimentation engine relies on
type Store interface {
	// Experiment operations
	CreateExperiment(ctx context.Context, exp *Experiment) error
	LoadExperiment(ctx context.Context, id string) (*Experiment, error)
	ListExperiments(ctx context.Context) ([]*Experiment, error)
	ListActiveExperiments(ctx context.Context, scopeID, pageType string) ([]*Experiment, error)
	UpdateExperiment(ctx context.Context, exp *Experiment) error

	// Assignment operations
	FindAssignment(ctx context.Context, experimentID, sessionID string) (*Assignment, error)
	CreateAssignmentIfAbsent(ctx context.Context, a *Assignment) (*Assignment, bool, error)
	UpdateAssignment(ctx context.Context, a *Assignment) error
	MergeMetrics(ctx context.Context, experimentID, sessionID string, metrics map[string]float64) error
	MarkConverted(ctx context.Context, a *Assignment) (bool, error)
	ListAssignments(ctx context.Context, experimentID string) ([]*Assignment, error)

	// Base page configurations
	GetPageConfig(ctx context.Context, scopeID, pageType string) (json.RawMessage, error)
	SavePageConfig(ctx context.Context, scopeID, pageType string, config json.RawMessage) error

	// Lifecycle
	Ping(ctx context.Context) error
	Close() error
}
