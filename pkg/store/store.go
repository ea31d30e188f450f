// Package store implements the Job Store (C4): a single-process embedded
// relational database persisting each job's state machine, keyed by job
// id, with timeout queries driving the scheduler's two sweeps.
package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	sqlite3 "github.com/mattn/go-sqlite3"

	"github.com/ebi-gdp/vattid/pkg/jobstate"
	"github.com/ebi-gdp/vattid/pkg/log"
	"github.com/ebi-gdp/vattid/pkg/notify"
	"github.com/ebi-gdp/vattid/pkg/resources"
	"github.com/ebi-gdp/vattid/pkg/statemachine"
)

// ErrDuplicateID is returned by Insert when a job with the same id already
// exists.
var ErrDuplicateID = errors.New("store: duplicate job id")

// ErrNotFound is returned by Load when no row matches the given id.
var ErrNotFound = errors.New("store: job not found")

const schema = `
CREATE TABLE IF NOT EXISTS jobs (
	id TEXT PRIMARY KEY,
	job BLOB NOT NULL,
	created_at TEXT DEFAULT CURRENT_TIMESTAMP,
	updated_at TEXT DEFAULT CURRENT_TIMESTAMP,
	state TEXT CHECK(state IN ('Requested', 'Created', 'Deployed', 'Failed', 'Succeeded')) NOT NULL
);

CREATE TRIGGER IF NOT EXISTS update_timestamp
AFTER UPDATE ON jobs
FOR EACH ROW
BEGIN
	UPDATE jobs SET updated_at = CURRENT_TIMESTAMP WHERE id = OLD.id;
END;
`

// jobRecord is the explicit, versioned blob persisted in the job column.
// Per DESIGN NOTES §9 this replaces wholesale object serialisation: it is
// just enough state to reconstruct an identical statemachine.Job given a
// live ResourceHandler and NotifyFunc supplied by the caller at load time.
type jobRecord struct {
	Version   int                   `json:"version"`
	ID        string                `json:"id"`
	State     jobstate.State        `json:"state"`
	TraceName string                `json:"trace_name,omitempty"`
	TraceExit *int                  `json:"trace_exit,omitempty"`
	Handler   resources.HandlerState `json:"handler"`
}

const recordVersion = 1

func toRecord(j *statemachine.Job) jobRecord {
	return jobRecord{
		Version:   recordVersion,
		ID:        j.ID,
		State:     j.State,
		TraceName: j.TraceName,
		TraceExit: j.TraceExit,
		Handler:   j.Handler.State(),
	}
}

// HandlerFactory reconstructs a live resources.Handler for a job reloaded
// from the store, given the job id and its persisted handler flags. It is
// supplied by main (or tests), per the "pass a context object" design
// note: the store never constructs a cloud client itself.
type HandlerFactory func(jobID string, state resources.HandlerState) resources.Handler

// Store persists job state machines in an embedded sqlite database.
type Store struct {
	db             *sql.DB
	newHandler     HandlerFactory
	notify         func(notify.Message)
}

// Open opens (creating if necessary) the sqlite database at path.
func Open(path string, newHandler HandlerFactory, notifyFunc func(notify.Message)) (*Store, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("store: open %s: %w", path, err)
	}
	db.SetMaxOpenConns(1) // sqlite tolerates one writer; avoid SQLITE_BUSY
	return &Store{db: db, newHandler: newHandler, notify: notifyFunc}, nil
}

// Create installs the schema and update trigger; it is idempotent.
func (s *Store) Create(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("store: create schema: %w", err)
	}
	return nil
}

// Close closes the underlying database handle.
func (s *Store) Close() error {
	return s.db.Close()
}

// Insert persists a new job. It fails with ErrDuplicateID if a row with
// the same id already exists.
func (s *Store) Insert(ctx context.Context, job *statemachine.Job) error {
	blob, err := json.Marshal(toRecord(job))
	if err != nil {
		return fmt.Errorf("store: marshal job %s: %w", job.ID, err)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("store: begin insert tx: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx,
		`INSERT INTO jobs(id, job, state) VALUES (?, ?, ?)`,
		job.ID, blob, string(job.State))
	if err != nil {
		var sqliteErr sqlite3.Error
		if errors.As(err, &sqliteErr) && sqliteErr.Code == sqlite3.ErrConstraint {
			return fmt.Errorf("%w: %s", ErrDuplicateID, job.ID)
		}
		return fmt.Errorf("store: insert job %s: %w", job.ID, err)
	}

	return tx.Commit()
}

// Update re-serialises and overwrites an existing job row.
func (s *Store) Update(ctx context.Context, job *statemachine.Job) error {
	blob, err := json.Marshal(toRecord(job))
	if err != nil {
		return fmt.Errorf("store: marshal job %s: %w", job.ID, err)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("store: begin update tx: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx,
		`UPDATE jobs SET job = ?, state = ? WHERE id = ?`,
		blob, string(job.State), job.ID); err != nil {
		return fmt.Errorf("store: update job %s: %w", job.ID, err)
	}

	return tx.Commit()
}

// Load deserialises a job and reconstructs its live handler and notify
// hook. It returns ErrNotFound if no row matches id.
func (s *Store) Load(ctx context.Context, id string) (*statemachine.Job, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("store: begin load tx: %w", err)
	}
	defer tx.Rollback()

	var blob []byte
	err = tx.QueryRowContext(ctx, `SELECT job FROM jobs WHERE id = ?`, id).Scan(&blob)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("store: load job %s: %w", id, err)
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("store: commit load tx: %w", err)
	}

	var rec jobRecord
	if err := json.Unmarshal(blob, &rec); err != nil {
		return nil, fmt.Errorf("store: unmarshal job %s: %w", id, err)
	}

	handler := s.newHandler(rec.ID, rec.Handler)
	job := statemachine.New(rec.ID, handler, s.notify)
	job.State = rec.State
	job.TraceName = rec.TraceName
	job.TraceExit = rec.TraceExit
	return job, nil
}

// ActiveJobIDs returns the ids of all non-terminal jobs.
func (s *Store) ActiveJobIDs(ctx context.Context) ([]string, error) {
	return s.queryIDs(ctx, `SELECT id FROM jobs WHERE state NOT IN ('Failed', 'Succeeded')`)
}

// ActiveJobCount returns how many jobs are currently non-terminal, for the
// consumer's back-pressure check.
func (s *Store) ActiveJobCount(ctx context.Context) (int, error) {
	var count int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM jobs WHERE state NOT IN ('Failed', 'Succeeded')`).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("store: count active jobs: %w", err)
	}
	return count, nil
}

func (s *Store) queryIDs(ctx context.Context, query string, args ...any) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("store: query: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("store: scan id: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// TimeoutJobs errors any Requested/Created job whose created_at predates
// now - thresholdSeconds, publishing a Failed notification for each via
// the state machine's own error trigger.
func (s *Store) TimeoutJobs(ctx context.Context, thresholdSeconds int) error {
	return s.timeoutSweep(ctx,
		`SELECT id FROM jobs WHERE state NOT IN ('Failed', 'Deployed', 'Succeeded') AND created_at <= datetime('now', ? || ' seconds')`,
		thresholdSeconds)
}

// TimeoutDeployedJobs errors any Deployed job whose created_at predates
// now - thresholdSeconds (typically a much larger threshold than
// TimeoutJobs).
func (s *Store) TimeoutDeployedJobs(ctx context.Context, thresholdSeconds int) error {
	return s.timeoutSweep(ctx,
		`SELECT id FROM jobs WHERE state = 'Deployed' AND created_at <= datetime('now', ? || ' seconds')`,
		thresholdSeconds)
}

func (s *Store) timeoutSweep(ctx context.Context, query string, thresholdSeconds int) error {
	ids, err := s.queryIDs(ctx, query, fmt.Sprintf("-%d", thresholdSeconds))
	if err != nil {
		return fmt.Errorf("store: timeout sweep query: %w", err)
	}

	for _, id := range ids {
		job, err := s.Load(ctx, id)
		if err != nil {
			log.WithJobID(id).Error().Err(err).Msg("timeout sweep: load failed")
			continue
		}
		if err := job.Fire(ctx, jobstate.TriggerError, nil); err != nil {
			log.WithJobID(id).Error().Err(err).Msg("timeout sweep: error trigger failed")
			continue
		}
		if err := s.Update(ctx, job); err != nil {
			log.WithJobID(id).Error().Err(err).Msg("timeout sweep: persist failed")
		}
	}
	return nil
}
