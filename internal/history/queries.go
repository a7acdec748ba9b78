package history

import (
	"database/sql"
	"fmt"
	"strconv"
	"strings"
	"sync"

	"github.com/lucasnoah/rvstage/internal/pipeline"
)

// Run represents a row in the pipeline_runs table.
type Run struct {
	RunID       string
	Pipeline    string
	WorkDir     string
	State       string
	FailedStage string
	Error       string
	StartedAt   string
	FinishedAt  string
}

// StageEvent represents a row in the stage_events table.
type StageEvent struct {
	ID        int
	RunID     string
	Stage     string
	Index     int
	From      string
	To        string
	Error     string
	Timestamp string
}

// timeLayout is fixed width so stored timestamps sort as text.
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

// rebind rewrites ? placeholders as $n for PostgreSQL.
func (d *DB) rebind(query string) string {
	if d.dialect != postgres {
		return query
	}
	var b strings.Builder
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

func errString(err error) sql.NullString {
	if err == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: err.Error(), Valid: true}
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

// RecordRun inserts or updates the row for a finished run.
func (d *DB) RecordRun(res *pipeline.Result) error {
	var finished sql.NullString
	if !res.FinishedAt.IsZero() {
		finished = nullString(res.FinishedAt.UTC().Format(timeLayout))
	}
	_, err := d.conn.Exec(d.rebind(
		`INSERT INTO pipeline_runs (run_id, pipeline, workdir, state, failed_stage, error, started_at, finished_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT (run_id) DO UPDATE SET
		   state = excluded.state,
		   failed_stage = excluded.failed_stage,
		   error = excluded.error,
		   finished_at = excluded.finished_at`),
		res.RunID, res.Pipeline, res.WorkDir, string(res.State),
		nullString(res.FailedStage), errString(res.Err),
		res.StartedAt.UTC().Format(timeLayout), finished,
	)
	if err != nil {
		return fmt.Errorf("record run: %w", err)
	}
	return nil
}

// LogStageEvent inserts one stage transition.
func (d *DB) LogStageEvent(t pipeline.Transition) error {
	_, err := d.conn.Exec(d.rebind(
		`INSERT INTO stage_events (run_id, stage, stage_index, from_state, to_state, error, timestamp)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`),
		t.RunID, t.Stage, t.Index, string(t.From), string(t.To),
		errString(t.Err), t.At.UTC().Format(timeLayout),
	)
	if err != nil {
		return fmt.Errorf("log stage event: %w", err)
	}
	return nil
}

// GetRun returns one run, or nil if it does not exist.
func (d *DB) GetRun(runID string) (*Run, error) {
	row := d.conn.QueryRow(d.rebind(
		`SELECT run_id, pipeline, workdir, state, failed_stage, error, started_at, finished_at
		 FROM pipeline_runs WHERE run_id = ?`),
		runID,
	)
	r, err := scanRun(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get run: %w", err)
	}
	return r, nil
}

// ListRuns returns the most recent runs, newest first. An empty pipeline
// name lists every pipeline; a limit of zero or less means no limit.
func (d *DB) ListRuns(pipelineName string, limit int) ([]Run, error) {
	query := `SELECT run_id, pipeline, workdir, state, failed_stage, error, started_at, finished_at
		FROM pipeline_runs`
	var args []any
	if pipelineName != "" {
		query += ` WHERE pipeline = ?`
		args = append(args, pipelineName)
	}
	query += ` ORDER BY started_at DESC, run_id`
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}

	rows, err := d.conn.Query(d.rebind(query), args...)
	if err != nil {
		return nil, fmt.Errorf("list runs: %w", err)
	}
	defer rows.Close()

	var runs []Run
	for rows.Next() {
		r, err := scanRun(rows)
		if err != nil {
			return nil, fmt.Errorf("scan run: %w", err)
		}
		runs = append(runs, *r)
	}
	return runs, rows.Err()
}

// StageEvents returns the transitions of a run in the order they happened.
func (d *DB) StageEvents(runID string) ([]StageEvent, error) {
	rows, err := d.conn.Query(d.rebind(
		`SELECT id, run_id, stage, stage_index, from_state, to_state, error, timestamp
		 FROM stage_events WHERE run_id = ? ORDER BY id ASC`),
		runID,
	)
	if err != nil {
		return nil, fmt.Errorf("get stage events: %w", err)
	}
	defer rows.Close()

	var events []StageEvent
	for rows.Next() {
		var e StageEvent
		var msg sql.NullString
		if err := rows.Scan(&e.ID, &e.RunID, &e.Stage, &e.Index, &e.From, &e.To, &msg, &e.Timestamp); err != nil {
			return nil, fmt.Errorf("scan stage event: %w", err)
		}
		e.Error = msg.String
		events = append(events, e)
	}
	return events, rows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRun(s scanner) (*Run, error) {
	var r Run
	var failed, msg, finished sql.NullString
	if err := s.Scan(&r.RunID, &r.Pipeline, &r.WorkDir, &r.State, &failed, &msg, &r.StartedAt, &finished); err != nil {
		return nil, err
	}
	r.FailedStage = failed.String
	r.Error = msg.String
	r.FinishedAt = finished.String
	return &r, nil
}

// Recorder is a pipeline.Observer that writes every transition to the
// stage_events table. Observers cannot fail a run, so the first write error
// is kept and reported by Err.
type Recorder struct {
	db *DB

	mu  sync.Mutex
	err error
}

// NewRecorder returns a Recorder writing to db.
func NewRecorder(db *DB) *Recorder {
	return &Recorder{db: db}
}

// StageTransition implements pipeline.Observer.
func (r *Recorder) StageTransition(t pipeline.Transition) {
	err := r.db.LogStageEvent(t)
	r.mu.Lock()
	defer r.mu.Unlock()
	if err != nil && r.err == nil {
		r.err = err
	}
}

// Err returns the first write error, if any.
func (r *Recorder) Err() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.err
}
