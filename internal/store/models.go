package store

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

var (
	ErrNotFound               = errors.New("not found")
	ErrAssignmentNotFound     = errors.New("assignment not found")
	ErrInvalidStateTransition = errors.New("invalid state transition")
	ErrInvalidExperimentState = errors.New("invalid experiment state")
)

type Status string

const (
	StatusDraft     Status = "draft"
	StatusRunning   Status = "running"
	StatusPaused    Status = "paused"
	StatusCompleted Status = "completed"
	StatusArchived  Status = "archived"
)

const DefaultConfidenceLevel = 0.95

type Experiment struct {
	ID                string
	ScopeID           string
	Name              string
	Status            Status
	Variants          []Variant
	TrafficAllocation float64
	Targeting         *TargetingRules // nil matches everything
	PrimaryMetric     string
	MinSampleSize     int
	ConfidenceLevel   float64
	StartDate         *time.Time
	EndDate           *time.Time
	WinnerVariantID   *string
	CreatedAt         time.Time
	UpdatedAt         time.Time
}

type Variant struct {
	ID        string          `json:"id"`
	Name      string          `json:"name"`
	Weight    float64         `json:"weight"`
	IsControl bool            `json:"is_control"`
	Config    json.RawMessage `json:"config,omitempty"` // Opaque override payload
}

// TargetingRules restricts which visitors may enter an experiment.
// Every predicate is optional and they are AND-combined.
type TargetingRules struct {
	Devices         []string `json:"devices,omitempty"`
	Countries       []string `json:"countries,omitempty"`
	NewVisitorsOnly bool     `json:"new_visitors_only,omitempty"`
	Pages           []string `json:"pages,omitempty"`
	Segments        []string `json:"segments,omitempty"`
}

type Assignment struct {
	ID              string
	ExperimentID    string
	SessionID       string
	VariantID       string
	VariantName     string
	UserID          string
	Context         map[string]string // Device/context metadata at assignment time
	Converted       bool
	ConvertedAt     *time.Time
	ConversionValue *float64
	Metrics         map[string]float64
	CreatedAt       time.Time
}

// Control returns the flagged control variant, or the first variant when none
// is flagged. ok is false for an experiment without variants.
func (e *Experiment) Control() (v Variant, ok bool) {
	if len(e.Variants) == 0 {
		return Variant{}, false
	}
	for _, v := range e.Variants {
		if v.IsControl {
			return v, true
		}
	}
	return e.Variants[0], true
}

// Variant looks a variant up by id.
func (e *Experiment) Variant(id string) (Variant, bool) {
	for _, v := range e.Variants {
		if v.ID == id {
			return v, true
		}
	}
	return Variant{}, false
}

// Start moves a draft or paused experiment to running.
func (e *Experiment) Start(now time.Time) error {
	if e.Status != StatusDraft && e.Status != StatusPaused {
		return transitionError(e.Status, StatusRunning)
	}
	if len(e.Variants) == 0 {
		return fmt.Errorf("%w: experiment %s has no variants", ErrInvalidExperimentState, e.ID)
	}
	e.Status = StatusRunning
	if e.StartDate == nil {
		e.StartDate = &now
	}
	return nil
}

func (e *Experiment) Pause() error {
	if e.Status != StatusRunning {
		return transitionError(e.Status, StatusPaused)
	}
	e.Status = StatusPaused
	return nil
}

// Complete finishes a running or paused experiment, optionally recording a winner.
func (e *Experiment) Complete(now time.Time, winnerID *string) error {
	if e.Status != StatusRunning && e.Status != StatusPaused {
		return transitionError(e.Status, StatusCompleted)
	}
	if winnerID != nil {
		if _, ok := e.Variant(*winnerID); !ok {
			return fmt.Errorf("%w: unknown winner variant %q", ErrInvalidExperimentState, *winnerID)
		}
		w := *winnerID
		e.WinnerVariantID = &w
	}
	e.Status = StatusCompleted
	e.EndDate = &now
	return nil
}

func (e *Experiment) Archive() {
	e.Status = StatusArchived
}

// Validate checks an experiment definition and fills defaults in place.
func (e *Experiment) Validate() error {
	if e.ID == "" {
		return errors.New("experiment id is required")
	}
	if e.Name == "" {
		return errors.New("experiment name is required")
	}
	if e.Status == "" {
		e.Status = StatusDraft
	}
	if e.TrafficAllocation < 0 || e.TrafficAllocation > 1 {
		return fmt.Errorf("traffic allocation %v out of range [0,1]", e.TrafficAllocation)
	}
	if e.ConfidenceLevel == 0 {
		e.ConfidenceLevel = DefaultConfidenceLevel
	}
	if e.ConfidenceLevel <= 0 || e.ConfidenceLevel >= 1 {
		return fmt.Errorf("confidence level %v out of range (0,1)", e.ConfidenceLevel)
	}
	if e.MinSampleSize < 0 {
		return fmt.Errorf("min sample size %d must not be negative", e.MinSampleSize)
	}

	seen := make(map[string]bool, len(e.Variants))
	controls := 0
	for i := range e.Variants {
		v := &e.Variants[i]
		if v.ID == "" {
			return fmt.Errorf("variant %d has no id", i)
		}
		if seen[v.ID] {
			return fmt.Errorf("duplicate variant id %q", v.ID)
		}
		seen[v.ID] = true
		if v.Weight == 0 {
			v.Weight = 1
		}
		if v.Weight < 0 {
			return fmt.Errorf("variant %q has negative weight", v.ID)
		}
		if v.IsControl {
			controls++
		}
	}
	if controls > 1 {
		return errors.New("at most one variant may be flagged as control")
	}
	if e.Status == StatusRunning && len(e.Variants) == 0 {
		return fmt.Errorf("%w: running experiment needs variants", ErrInvalidExperimentState)
	}
	return nil
}

func transitionError(from, to Status) error {
	return fmt.Errorf("%w: %s -> %s", ErrInvalidStateTransition, from, to)
}
