package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	_ "modernc.org/sqlite"
)

type SQLiteStore struct {
	db *sql.DB
}

const schema = `
CREATE TABLE IF NOT EXISTS experiments (
    id TEXT PRIMARY KEY,
    scope_id TEXT NOT NULL,
    name TEXT NOT NULL,
    status TEXT NOT NULL DEFAULT 'draft',
    variants TEXT NOT NULL,
    traffic_allocation REAL NOT NULL DEFAULT 1,
    targeting TEXT,
    primary_metric TEXT NOT NULL DEFAULT '',
    min_sample_size INTEGER NOT NULL DEFAULT 0,
    confidence_level REAL NOT NULL DEFAULT 0.95,
    start_date INTEGER,
    end_date INTEGER,
    winner_variant_id TEXT,
    created_at INTEGER NOT NULL DEFAULT (unixepoch()),
    updated_at INTEGER NOT NULL DEFAULT (unixepoch())
);

CREATE INDEX IF NOT EXISTS idx_experiments_scope_status ON experiments(scope_id, status);

CREATE TABLE IF NOT EXISTS assignments (
    id TEXT PRIMARY KEY,
    experiment_id TEXT NOT NULL,
    session_id TEXT NOT NULL,
    variant_id TEXT NOT NULL,
    variant_name TEXT NOT NULL,
    user_id TEXT NOT NULL DEFAULT '',
    context TEXT,
    converted INTEGER NOT NULL DEFAULT 0,
    converted_at INTEGER,
    conversion_value REAL,
    metrics TEXT,
    created_at INTEGER NOT NULL DEFAULT (unixepoch()),
    FOREIGN KEY (experiment_id) REFERENCES experiments(id)
);

CREATE UNIQUE INDEX IF NOT EXISTS idx_assignments_pair ON assignments(experiment_id, session_id);
CREATE INDEX IF NOT EXISTS idx_assignments_variant ON assignments(experiment_id, variant_id);

CREATE TABLE IF NOT EXISTS page_configs (
    scope_id TEXT NOT NULL,
    page_type TEXT NOT NULL,
    config TEXT NOT NULL,
    updated_at INTEGER NOT NULL DEFAULT (unixepoch()),
    PRIMARY KEY (scope_id, page_type)
);
`

const experimentColumns = `id, scope_id, name, status, variants, traffic_allocation, targeting, primary_metric,
	min_sample_size, confidence_level, start_date, end_date, winner_variant_id, created_at, updated_at`

const assignmentColumns = `id, experiment_id, session_id, variant_id, variant_name, user_id, context,
	converted, converted_at, conversion_value, metrics, created_at`

func Open(dbPath string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// A single connection serializes writers so concurrent inserts for the same
	// pair resolve through the unique index instead of SQLITE_BUSY.
	db.SetMaxOpenConns(1)

	// Enable WAL mode
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to enable WAL mode: %w", err)
	}
	if _, err := db.Exec("PRAGMA busy_timeout=5000"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to set busy timeout: %w", err)
	}

	// Apply schema
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to apply schema: %w", err)
	}

	return &SQLiteStore{db: db}, nil
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) CreateExperiment(ctx context.Context, exp *Experiment) error {
	if err := exp.Validate(); err != nil {
		return err
	}

	variantsJSON, targetingJSON, err := encodeExperiment(exp)
	if err != nil {
		return err
	}

	now := time.Now()
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO experiments (`+experimentColumns+`)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		exp.ID, exp.ScopeID, exp.Name, string(exp.Status), variantsJSON, exp.TrafficAllocation,
		targetingJSON, exp.PrimaryMetric, exp.MinSampleSize, exp.ConfidenceLevel,
		nullableTime(exp.StartDate), nullableTime(exp.EndDate), nullableString(exp.WinnerVariantID),
		now.Unix(), now.Unix(),
	)
	if err != nil {
		return fmt.Errorf("failed to insert experiment: %w", err)
	}

	exp.CreatedAt = time.Unix(now.Unix(), 0)
	exp.UpdatedAt = exp.CreatedAt
	return nil
}

func (s *SQLiteStore) LoadExperiment(ctx context.Context, id string) (*Experiment, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+experimentColumns+` FROM experiments WHERE id = ?`, id)

	exp, err := scanExperiment(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("experiment %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get experiment: %w", err)
	}
	return exp, nil
}

func (s *SQLiteStore) ListExperiments(ctx context.Context) ([]*Experiment, error) {
	return s.queryExperiments(ctx,
		`SELECT `+experimentColumns+` FROM experiments ORDER BY created_at DESC, id`)
}

// ListActiveExperiments returns running experiments of a scope whose page
// targeting is empty or names pageType, in creation order. Date windows are
// left to the caller, which owns the clock.
func (s *SQLiteStore) ListActiveExperiments(ctx context.Context, scopeID, pageType string) ([]*Experiment, error) {
	all, err := s.queryExperiments(ctx,
		`SELECT `+experimentColumns+` FROM experiments
		 WHERE scope_id = ? AND status = ? ORDER BY created_at, id`,
		scopeID, string(StatusRunning))
	if err != nil {
		return nil, err
	}

	var active []*Experiment
	for _, exp := range all {
		if exp.Targeting == nil || len(exp.Targeting.Pages) == 0 || contains(exp.Targeting.Pages, pageType) {
			active = append(active, exp)
		}
	}
	return active, nil
}

func (s *SQLiteStore) UpdateExperiment(ctx context.Context, exp *Experiment) error {
	variantsJSON, targetingJSON, err := encodeExperiment(exp)
	if err != nil {
		return err
	}

	now := time.Now().Unix()
	result, err := s.db.ExecContext(ctx,
		`UPDATE experiments SET scope_id = ?, name = ?, status = ?, variants = ?, traffic_allocation = ?,
		 targeting = ?, primary_metric = ?, min_sample_size = ?, confidence_level = ?, start_date = ?,
		 end_date = ?, winner_variant_id = ?, updated_at = ? WHERE id = ?`,
		exp.ScopeID, exp.Name, string(exp.Status), variantsJSON, exp.TrafficAllocation,
		targetingJSON, exp.PrimaryMetric, exp.MinSampleSize, exp.ConfidenceLevel,
		nullableTime(exp.StartDate), nullableTime(exp.EndDate), nullableString(exp.WinnerVariantID),
		now, exp.ID,
	)
	if err != nil {
		return fmt.Errorf("failed to update experiment: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return fmt.Errorf("experiment %s: %w", exp.ID, ErrNotFound)
	}

	exp.UpdatedAt = time.Unix(now, 0)
	return nil
}

// FindAssignment returns ErrAssignmentNotFound when the pair was never assigned.
func (s *SQLiteStore) FindAssignment(ctx context.Context, experimentID, sessionID string) (*Assignment, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+assignmentColumns+` FROM assignments WHERE experiment_id = ? AND session_id = ?`,
		experimentID, sessionID)

	a, err := scanAssignment(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrAssignmentNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get assignment: %w", err)
	}
	return a, nil
}

// CreateAssignmentIfAbsent inserts a unless the pair already exists. It returns
// the stored record and whether this call created it.
func (s *SQLiteStore) CreateAssignmentIfAbsent(ctx context.Context, a *Assignment) (*Assignment, bool, error) {
	contextJSON, metricsJSON, err := encodeAssignment(a)
	if err != nil {
		return nil, false, err
	}
	if a.CreatedAt.IsZero() {
		a.CreatedAt = time.Now()
	}

	// Deduplication via the unique (experiment_id, session_id) index
	result, err := s.db.ExecContext(ctx,
		`INSERT INTO assignments (`+assignmentColumns+`)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT (experiment_id, session_id) DO NOTHING`,
		a.ID, a.ExperimentID, a.SessionID, a.VariantID, a.VariantName, a.UserID, contextJSON,
		boolToInt(a.Converted), nullableTime(a.ConvertedAt), nullableFloat(a.ConversionValue),
		metricsJSON, a.CreatedAt.Unix(),
	)
	if err != nil {
		return nil, false, fmt.Errorf("failed to insert assignment: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return nil, false, fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rowsAffected == 1 {
		return a, true, nil
	}

	existing, err := s.FindAssignment(ctx, a.ExperimentID, a.SessionID)
	if err != nil {
		return nil, false, err
	}
	return existing, false, nil
}

// UpdateAssignment persists an assignment's user id and context. Metrics go
// through MergeMetrics and conversion fields through MarkConverted, so neither
// can be rolled back by a stale copy written here.
func (s *SQLiteStore) UpdateAssignment(ctx context.Context, a *Assignment) error {
	contextJSON, _, err := encodeAssignment(a)
	if err != nil {
		return err
	}

	result, err := s.db.ExecContext(ctx,
		`UPDATE assignments SET user_id = ?, context = ? WHERE experiment_id = ? AND session_id = ?`,
		a.UserID, contextJSON, a.ExperimentID, a.SessionID,
	)
	if err != nil {
		return fmt.Errorf("failed to update assignment: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return ErrAssignmentNotFound
	}
	return nil
}

// MergeMetrics adds or overwrites the given metric keys on an assignment in a
// single statement. Keys not named in metrics are left alone.
func (s *SQLiteStore) MergeMetrics(ctx context.Context, experimentID, sessionID string, metrics map[string]float64) error {
	patch, err := encodeMetricsPatch(metrics)
	if err != nil {
		return err
	}

	result, err := s.db.ExecContext(ctx,
		`UPDATE assignments SET metrics = json_patch(COALESCE(metrics, '{}'), ?)
		 WHERE experiment_id = ? AND session_id = ?`,
		patch, experimentID, sessionID,
	)
	if err != nil {
		return fmt.Errorf("failed to merge metrics: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return ErrAssignmentNotFound
	}
	return nil
}

// MarkConverted writes the conversion fields of a only if the stored record is
// not converted yet, merging a.Metrics into the stored metrics. It reports
// whether the write happened.
func (s *SQLiteStore) MarkConverted(ctx context.Context, a *Assignment) (bool, error) {
	patch, err := encodeMetricsPatch(a.Metrics)
	if err != nil {
		return false, err
	}

	result, err := s.db.ExecContext(ctx,
		`UPDATE assignments SET converted = 1, converted_at = ?, conversion_value = ?,
		 metrics = json_patch(COALESCE(metrics, '{}'), ?)
		 WHERE experiment_id = ? AND session_id = ? AND converted = 0`,
		nullableTime(a.ConvertedAt), nullableFloat(a.ConversionValue), patch,
		a.ExperimentID, a.SessionID,
	)
	if err != nil {
		return false, fmt.Errorf("failed to mark conversion: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to get rows affected: %w", err)
	}
	return rowsAffected == 1, nil
}

func (s *SQLiteStore) ListAssignments(ctx context.Context, experimentID string) ([]*Assignment, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+assignmentColumns+` FROM assignments WHERE experiment_id = ? ORDER BY created_at, id`,
		experimentID)
	if err != nil {
		return nil, fmt.Errorf("failed to list assignments: %w", err)
	}
	defer rows.Close()

	var assignments []*Assignment
	for rows.Next() {
		a, err := scanAssignment(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan assignment: %w", err)
		}
		assignments = append(assignments, a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to list assignments: %w", err)
	}

	return assignments, nil
}

// GetPageConfig returns the stored base configuration, or nil when none was saved.
func (s *SQLiteStore) GetPageConfig(ctx context.Context, scopeID, pageType string) (json.RawMessage, error) {
	var config string
	err := s.db.QueryRowContext(ctx,
		`SELECT config FROM page_configs WHERE scope_id = ? AND page_type = ?`, scopeID, pageType,
	).Scan(&config)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get page config: %w", err)
	}
	return json.RawMessage(config), nil
}

func (s *SQLiteStore) SavePageConfig(ctx context.Context, scopeID, pageType string, config json.RawMessage) error {
	if !json.Valid(config) {
		return errors.New("page config is not valid JSON")
	}

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO page_configs (scope_id, page_type, config, updated_at) VALUES (?, ?, ?, ?)
		 ON CONFLICT (scope_id, page_type) DO UPDATE SET config = excluded.config, updated_at = excluded.updated_at`,
		scopeID, pageType, string(config), time.Now().Unix(),
	)
	if err != nil {
		return fmt.Errorf("failed to save page config: %w", err)
	}
	return nil
}

// Ping checks that the database is reachable, for health checks.
func (s *SQLiteStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func (s *SQLiteStore) queryExperiments(ctx context.Context, query string, args ...any) ([]*Experiment, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list experiments: %w", err)
	}
	defer rows.Close()

	var experiments []*Experiment
	for rows.Next() {
		exp, err := scanExperiment(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan experiment: %w", err)
		}
		experiments = append(experiments, exp)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to list experiments: %w", err)
	}

	return experiments, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanExperiment(row rowScanner) (*Experiment, error) {
	var exp Experiment
	var status, variantsJSON string
	var targetingJSON, winner sql.NullString
	var startDate, endDate sql.NullInt64
	var createdAt, updatedAt int64

	err := row.Scan(&exp.ID, &exp.ScopeID, &exp.Name, &status, &variantsJSON, &exp.TrafficAllocation,
		&targetingJSON, &exp.PrimaryMetric, &exp.MinSampleSize, &exp.ConfidenceLevel,
		&startDate, &endDate, &winner, &createdAt, &updatedAt)
	if err != nil {
		return nil, err
	}

	exp.Status = Status(status)
	if err := json.Unmarshal([]byte(variantsJSON), &exp.Variants); err != nil {
		return nil, fmt.Errorf("failed to unmarshal variants: %w", err)
	}
	if targetingJSON.Valid && targetingJSON.String != "" {
		exp.Targeting = &TargetingRules{}
		if err := json.Unmarshal([]byte(targetingJSON.String), exp.Targeting); err != nil {
			return nil, fmt.Errorf("failed to unmarshal targeting: %w", err)
		}
	}
	exp.StartDate = timeFromNull(startDate)
	exp.EndDate = timeFromNull(endDate)
	if winner.Valid {
		w := winner.String
		exp.WinnerVariantID = &w
	}
	exp.CreatedAt = time.Unix(createdAt, 0)
	exp.UpdatedAt = time.Unix(updatedAt, 0)

	return &exp, nil
}

func scanAssignment(row rowScanner) (*Assignment, error) {
	var a Assignment
	var contextJSON, metricsJSON sql.NullString
	var converted int
	var convertedAt, createdAt sql.NullInt64
	var value sql.NullFloat64

	err := row.Scan(&a.ID, &a.ExperimentID, &a.SessionID, &a.VariantID, &a.VariantName, &a.UserID,
		&contextJSON, &converted, &convertedAt, &value, &metricsJSON, &createdAt)
	if err != nil {
		return nil, err
	}

	a.Converted = converted != 0
	a.ConvertedAt = timeFromNull(convertedAt)
	if value.Valid {
		v := value.Float64
		a.ConversionValue = &v
	}
	if contextJSON.Valid && contextJSON.String != "" {
		if err := json.Unmarshal([]byte(contextJSON.String), &a.Context); err != nil {
			return nil, fmt.Errorf("failed to unmarshal context: %w", err)
		}
	}
	a.Metrics = map[string]float64{}
	if metricsJSON.Valid && metricsJSON.String != "" {
		if err := json.Unmarshal([]byte(metricsJSON.String), &a.Metrics); err != nil {
			return nil, fmt.Errorf("failed to unmarshal metrics: %w", err)
		}
	}
	a.CreatedAt = time.Unix(createdAt.Int64, 0)

	return &a, nil
}

func encodeExperiment(exp *Experiment) (variants string, targeting sql.NullString, err error) {
	variantsJSON, err := json.Marshal(exp.Variants)
	if err != nil {
		return "", sql.NullString{}, fmt.Errorf("failed to marshal variants: %w", err)
	}
	if exp.Targeting != nil {
		b, err := json.Marshal(exp.Targeting)
		if err != nil {
			return "", sql.NullString{}, fmt.Errorf("failed to marshal targeting: %w", err)
		}
		targeting = sql.NullString{String: string(b), Valid: true}
	}
	return string(variantsJSON), targeting, nil
}

func encodeAssignment(a *Assignment) (contextJSON, metricsJSON sql.NullString, err error) {
	if len(a.Context) > 0 {
		b, err := json.Marshal(a.Context)
		if err != nil {
			return sql.NullString{}, sql.NullString{}, fmt.Errorf("failed to marshal context: %w", err)
		}
		contextJSON = sql.NullString{String: string(b), Valid: true}
	}
	if len(a.Metrics) > 0 {
		b, err := json.Marshal(a.Metrics)
		if err != nil {
			return sql.NullString{}, sql.NullString{}, fmt.Errorf("failed to marshal metrics: %w", err)
		}
		metricsJSON = sql.NullString{String: string(b), Valid: true}
	}
	return contextJSON, metricsJSON, nil
}

func encodeMetricsPatch(metrics map[string]float64) (string, error) {
	if len(metrics) == 0 {
		return "{}", nil
	}
	b, err := json.Marshal(metrics)
	if err != nil {
		return "", fmt.Errorf("failed to marshal metrics: %w", err)
	}
	return string(b), nil
}

func nullableString(s *string) sql.NullString {
	if s == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: *s, Valid: true}
}

func nullableTime(t *time.Time) sql.NullInt64 {
	if t == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: t.Unix(), Valid: true}
}

func nullableFloat(f *float64) sql.NullFloat64 {
	if f == nil {
		return sql.NullFloat64{}
	}
	return sql.NullFloat64{Float64: *f, Valid: true}
}

func timeFromNull(n sql.NullInt64) *time.Time {
	if !n.Valid {
		return nil
	}
	t := time.Unix(n.Int64, 0)
	return &t
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func contains(list []string, s string) bool {
	for _, item := range list {
		if item == s {
			return true
		}
	}
	return false
}
