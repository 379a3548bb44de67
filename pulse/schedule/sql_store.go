package schedule

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/buzzsnip/buzzsnip/db"
	"github.com/buzzsnip/buzzsnip/errors"
	"github.com/buzzsnip/buzzsnip/pulse/cadence"
)

const sequenceName = "schedule"

// SQLStore persists schedules in the schedules table.
type SQLStore struct {
	db *sql.DB
}

// NewSQLStore creates a schedule store backed by a migrated database
func NewSQLStore(conn *sql.DB) *SQLStore {
	return &SQLStore{db: conn}
}

const scheduleColumns = `id, name, persona_id, cadence, time_of_day, weekdays, platforms,
	theme, duration, auto_post, status, next_run, last_run, total_runs,
	successful_runs, success_rate, created_at, updated_at`

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanSchedule(row rowScanner) (*Schedule, error) {
	var s Schedule
	var cad, weekdays, platforms, nextRun, createdAt, updatedAt string
	var lastRun sql.NullString

	err := row.Scan(
		&s.ID,
		&s.Name,
		&s.PersonaID,
		&cad,
		&s.TimeOfDay,
		&weekdays,
		&platforms,
		&s.Theme,
		&s.Duration,
		&s.AutoPost,
		&s.Status,
		&nextRun,
		&lastRun,
		&s.TotalRuns,
		&s.SuccessfulRuns,
		&s.SuccessRate,
		&createdAt,
		&updatedAt,
	)
	if err != nil {
		return nil, err
	}
	s.Cadence = cadence.Cadence(cad)

	if err := json.Unmarshal([]byte(weekdays), &s.Weekdays); err != nil {
		return nil, errors.Wrapf(err, "weekdays for schedule %s", s.ID)
	}
	if err := json.Unmarshal([]byte(platforms), &s.Platforms); err != nil {
		return nil, errors.Wrapf(err, "platforms for schedule %s", s.ID)
	}
	if s.NextRun, err = db.ParseTime(nextRun); err != nil {
		return nil, errors.Wrapf(err, "next_run for schedule %s", s.ID)
	}
	if s.LastRun, err = db.ParseNullTime(lastRun); err != nil {
		return nil, errors.Wrapf(err, "last_run for schedule %s", s.ID)
	}
	if s.CreatedAt, err = db.ParseTime(createdAt); err != nil {
		return nil, errors.Wrapf(err, "created_at for schedule %s", s.ID)
	}
	if s.UpdatedAt, err = db.ParseTime(updatedAt); err != nil {
		return nil, errors.Wrapf(err, "updated_at for schedule %s", s.ID)
	}
	if s.Weekdays == nil {
		s.Weekdays = []string{}
	}
	if s.Platforms == nil {
		s.Platforms = []string{}
	}
	return &s, nil
}

func scanSchedules(rows *sql.Rows) ([]*Schedule, error) {
	var out []*Schedule
	for rows.Next() {
		s, err := scanSchedule(rows)
		if err != nil {
			return nil, errors.MarkStore(err, "failed to scan schedule")
		}
		out = append(out, s)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.MarkStore(err, "error iterating schedules")
	}
	return out, nil
}

// scheduleValues returns column values in scheduleColumns order
func scheduleValues(s *Schedule) ([]interface{}, error) {
	weekdays, err := json.Marshal(nonNil(s.Weekdays))
	if err != nil {
		return nil, errors.Wrap(err, "failed to marshal weekdays")
	}
	platforms, err := json.Marshal(nonNil(s.Platforms))
	if err != nil {
		return nil, errors.Wrap(err, "failed to marshal platforms")
	}
	return []interface{}{
		s.ID,
		s.Name,
		s.PersonaID,
		string(s.Cadence),
		s.TimeOfDay,
		string(weekdays),
		string(platforms),
		s.Theme,
		s.Duration,
		s.AutoPost,
		string(s.Status),
		db.FormatTime(s.NextRun),
		db.NullTime(s.LastRun),
		s.TotalRuns,
		s.SuccessfulRuns,
		s.SuccessRate,
		db.FormatTime(s.CreatedAt),
		db.FormatTime(s.UpdatedAt),
	}, nil
}

func nonNil(v []string) []string {
	if v == nil {
		return []string{}
	}
	return v
}

// NextID advances the schedule sequence and returns the new id
func (st *SQLStore) NextID(ctx context.Context) (string, error) {
	var n int64
	err := st.db.QueryRowContext(ctx, `
		INSERT INTO id_sequences (name, value) VALUES (?, 1)
		ON CONFLICT(name) DO UPDATE SET value = value + 1
		RETURNING value`, sequenceName).Scan(&n)
	if err != nil {
		return "", errors.MarkStore(err, "failed to allocate schedule id")
	}
	return FormatID(n), nil
}

// Create inserts a schedule and advances the sequence past its id
func (st *SQLStore) Create(ctx context.Context, s *Schedule) error {
	values, err := scheduleValues(s)
	if err != nil {
		return err
	}

	tx, err := st.db.BeginTx(ctx, nil)
	if err != nil {
		return errors.MarkStore(err, "failed to begin schedule insert")
	}
	defer tx.Rollback()

	query := `INSERT INTO schedules (` + scheduleColumns + `)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`
	if _, err := tx.ExecContext(ctx, query, values...); err != nil {
		err = errors.MarkStore(err, "failed to create schedule")
		return errors.WithDetail(err, fmt.Sprintf("Schedule ID: %s", s.ID))
	}

	if n, ok := idSequence(s.ID); ok {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO id_sequences (name, value) VALUES (?, ?)
			ON CONFLICT(name) DO UPDATE SET value = MAX(value, excluded.value)`,
			sequenceName, n)
		if err != nil {
			return errors.MarkStore(err, "failed to advance schedule sequence")
		}
	}

	if err := tx.Commit(); err != nil {
		return errors.MarkStore(err, "failed to commit schedule insert")
	}
	return nil
}

// Get retrieves a schedule by ID
func (st *SQLStore) Get(ctx context.Context, id string) (*Schedule, error) {
	s, err := scanSchedule(st.db.QueryRowContext(ctx, `SELECT `+scheduleColumns+` FROM schedules WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, errors.NewNotFoundError("schedule %s", id)
	}
	if err != nil {
		return nil, errors.MarkStore(err, "failed to get schedule")
	}
	return s, nil
}

// List returns all schedules oldest first
func (st *SQLStore) List(ctx context.Context) ([]*Schedule, error) {
	rows, err := st.db.QueryContext(ctx, `SELECT `+scheduleColumns+` FROM schedules ORDER BY created_at, id`)
	if err != nil {
		return nil, errors.MarkStore(err, "failed to list schedules")
	}
	defer rows.Close()
	return scanSchedules(rows)
}

// ListDue returns active schedules whose next_run has arrived
func (st *SQLStore) ListDue(ctx context.Context, now time.Time) ([]*Schedule, error) {
	query := `SELECT ` + scheduleColumns + `
		FROM schedules
		WHERE status = 'active'
		  AND next_run <= ?
		ORDER BY next_run, id`

	rows, err := st.db.QueryContext(ctx, query, db.FormatTime(now))
	if err != nil {
		return nil, errors.MarkStore(err, "failed to list due schedules")
	}
	defer rows.Close()
	return scanSchedules(rows)
}

// Update runs fn against the stored schedule inside an immediate transaction
func (st *SQLStore) Update(ctx context.Context, id string, fn func(*Schedule) error) (*Schedule, error) {
	tx, err := st.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, errors.MarkStore(err, "failed to begin schedule update")
	}
	defer tx.Rollback()

	s, err := scanSchedule(tx.QueryRowContext(ctx, `SELECT `+scheduleColumns+` FROM schedules WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, errors.NewNotFoundError("schedule %s", id)
	}
	if err != nil {
		return nil, errors.MarkStore(err, "failed to load schedule for update")
	}

	if err := fn(s); err != nil {
		return nil, err
	}
	s.ID = id

	values, err := scheduleValues(s)
	if err != nil {
		return nil, err
	}
	// Drop the id; it is the WHERE argument below
	_, err = tx.ExecContext(ctx, `
		UPDATE schedules
		SET name = ?, persona_id = ?, cadence = ?, time_of_day = ?, weekdays = ?,
		    platforms = ?, theme = ?, duration = ?, auto_post = ?, status = ?,
		    next_run = ?, last_run = ?, total_runs = ?, successful_runs = ?,
		    success_rate = ?, created_at = ?, updated_at = ?
		WHERE id = ?`,
		append(values[1:], id)...,
	)
	if err != nil {
		err = errors.MarkStore(err, "failed to update schedule")
		return nil, errors.WithDetail(err, fmt.Sprintf("Schedule ID: %s", id))
	}

	if err := tx.Commit(); err != nil {
		return nil, errors.MarkStore(err, "failed to commit schedule update")
	}
	return s, nil
}

// Delete removes a schedule
func (st *SQLStore) Delete(ctx context.Context, id string) error {
	result, err := st.db.ExecContext(ctx, `DELETE FROM schedules WHERE id = ?`, id)
	if err != nil {
		return errors.MarkStore(err, "failed to delete schedule")
	}
	n, err := result.RowsAffected()
	if err != nil {
		return errors.MarkStore(err, "failed to get rows affected")
	}
	if n == 0 {
		return errors.NewNotFoundError("schedule %s", id)
	}
	return nil
}
