package history

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

const (
	defaultHistoryLimit = 50
	maxHistoryLimit     = 500

	// timeLayout is fixed-width so recorded_at sorts lexically.
	timeLayout = "2006-01-02T15:04:05.000Z07:00"
)

// ErrVariableRequired is returned when a sample or query names no variable.
var ErrVariableRequired = errors.New("history: variable name is required")

// Sample is one recorded refresh of a process variable.
type Sample struct {
	ID int64 `json:"id"`

	// Variable is the configured variable name.
	Variable string `json:"variable"`

	// EventKey is the bound event key, "source.name".
	EventKey string `json:"event_key"`

	// Param is the parameter name, empty for whole-event variables.
	Param string `json:"param,omitempty"`

	// EventID is the ID of the event that produced the refresh.
	EventID string `json:"event_id"`

	// Value holds the raw parameter values (or the whole parameter set) as JSON.
	Value json.RawMessage `json:"value"`

	// Numeric is set when the first value is a number or boolean.
	Numeric *float64 `json:"numeric,omitempty"`

	// Source is the refresh source reported by the variable.
	Source string `json:"source"`

	RecordedAt time.Time `json:"recorded_at"`
}

// Repository stores and retrieves refresh samples.
//
// Implementations must be thread-safe and use UTC timestamps.
type Repository interface {
	// RecordSample inserts a sample. A zero RecordedAt means now.
	RecordSample(ctx context.Context, s Sample) error

	// GetHistory returns the newest samples for a variable, newest first.
	// limit <= 0 selects the default; large limits are clamped.
	GetHistory(ctx context.Context, variable string, limit int) ([]Sample, error)

	// PruneHistory deletes samples older than now-olderThan and returns
	// the number of rows removed.
	PruneHistory(ctx context.Context, olderThan time.Duration) (int64, error)
}

// SQLiteRepository implements Repository on the pv_history table.
type SQLiteRepository struct {
	db  *sql.DB
	now func() time.Time
}

// NewSQLiteRepository creates a repository on an open, migrated database.
func NewSQLiteRepository(db *sql.DB) *SQLiteRepository {
	return &SQLiteRepository{db: db, now: time.Now}
}

// RecordSample inserts one sample.
func (r *SQLiteRepository) RecordSample(ctx context.Context, s Sample) error {
	if s.Variable == "" {
		return ErrVariableRequired
	}
	if len(s.Value) == 0 {
		s.Value = json.RawMessage("null")
	}
	if s.RecordedAt.IsZero() {
		s.RecordedAt = r.now()
	}

	var numeric sql.NullFloat64
	if s.Numeric != nil {
		numeric = sql.NullFloat64{Float64: *s.Numeric, Valid: true}
	}

	_, err := r.db.ExecContext(ctx,
		`INSERT INTO pv_history
		 (variable, event_key, param, event_id, value_json, numeric_value, source, recorded_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		s.Variable,
		s.EventKey,
		s.Param,
		s.EventID,
		string(s.Value),
		numeric,
		s.Source,
		s.RecordedAt.UTC().Format(timeLayout),
	)
	if err != nil {
		return fmt.Errorf("inserting pv history: %w", err)
	}
	return nil
}

// GetHistory returns samples ordered by recorded_at DESC.
func (r *SQLiteRepository) GetHistory(ctx context.Context, variable string, limit int) ([]Sample, error) {
	if variable == "" {
		return nil, ErrVariableRequired
	}
	if limit <= 0 {
		limit = defaultHistoryLimit
	}
	if limit > maxHistoryLimit {
		limit = maxHistoryLimit
	}

	rows, err := r.db.QueryContext(ctx,
		`SELECT id, variable, event_key, param, event_id, value_json, numeric_value, source, recorded_at
		 FROM pv_history
		 WHERE variable = ?
		 ORDER BY recorded_at DESC, id DESC
		 LIMIT ?`,
		variable,
		limit,
	)
	if err != nil {
		return nil, fmt.Errorf("querying pv history: %w", err)
	}
	defer rows.Close()

	samples := make([]Sample, 0, limit)
	for rows.Next() {
		var (
			s          Sample
			value      string
			numeric    sql.NullFloat64
			recordedAt string
		)
		if err := rows.Scan(&s.ID, &s.Variable, &s.EventKey, &s.Param, &s.EventID,
			&value, &numeric, &s.Source, &recordedAt); err != nil {
			return nil, fmt.Errorf("scanning pv history: %w", err)
		}
		s.Value = json.RawMessage(value)
		if numeric.Valid {
			n := numeric.Float64
			s.Numeric = &n
		}
		if s.RecordedAt, err = time.Parse(time.RFC3339, recordedAt); err != nil {
			return nil, fmt.Errorf("parsing recorded_at: %w", err)
		}
		samples = append(samples, s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating pv history: %w", err)
	}
	return samples, nil
}

// PruneHistory deletes samples older than the retention window.
func (r *SQLiteRepository) PruneHistory(ctx context.Context, olderThan time.Duration) (int64, error) {
	if olderThan <= 0 {
		return 0, fmt.Errorf("olderThan must be positive")
	}

	cutoff := r.now().UTC().Add(-olderThan).Format(timeLayout)
	result, err := r.db.ExecContext(ctx, "DELETE FROM pv_history WHERE recorded_at < ?", cutoff)
	if err != nil {
		return 0, fmt.Errorf("deleting pv history: %w", err)
	}

	n, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("checking rows affected: %w", err)
	}
	return n, nil
}
