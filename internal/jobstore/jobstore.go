// Package jobstore persists job records (the durable half of a Job: its ID,
// creation time, and spec) and resolves the short ID prefixes the CLI
// accepts.
//
// Grounded on original_source/memsql_loader/api/job.py (Job.save,
// get_job_by_id_prefix, get_all_jobs) and loader_db/jobs.py.
package jobstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/memsql/memsql-loader/internal/types"
)

// ErrNotFound is returned when a job ID (or prefix) matches no row.
var ErrNotFound = errors.New("job not found")

// ErrAmbiguous is returned when a job ID prefix matches more than one row.
type ErrAmbiguous struct {
	Prefix  string
	Matches []string
}

func (e *ErrAmbiguous) Error() string {
	return fmt.Sprintf("job id prefix %q matches multiple jobs: %s", e.Prefix, strings.Join(e.Matches, ", "))
}

type execer interface {
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error)
}

// Store persists Job rows.
type Store struct {
	db execer
}

// New wraps db (from store.Store.Cursor or store.Store.Transaction) as a
// Store.
func New(db execer) *Store { return &Store{db: db} }

// Create inserts a new job with a fresh UUID, mirroring Job.save() for a
// not-yet-persisted job.
func (s *Store) Create(ctx context.Context, spec types.JobSpec) (*types.Job, error) {
	rawSpec, err := types.MarshalSpec(spec)
	if err != nil {
		return nil, fmt.Errorf("marshal job spec: %w", err)
	}
	job := &types.Job{
		ID:      uuid.NewString(),
		Created: time.Now(),
		Spec:    spec,
	}
	_, err = s.db.ExecContext(ctx, `INSERT INTO jobs (id, created, spec) VALUES (?, ?, ?)`,
		job.ID, job.Created.UTC().Format(time.RFC3339Nano), rawSpec)
	if err != nil {
		return nil, fmt.Errorf("insert job: %w", err)
	}
	return job, nil
}

// Get resolves prefix (a full job ID or any unambiguous prefix of one) to
// its job, mirroring get_job_by_id_prefix. Returns ErrNotFound or
// *ErrAmbiguous as appropriate.
func (s *Store) Get(ctx context.Context, prefix string) (*types.Job, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id, created, spec FROM jobs WHERE id LIKE ? || '%'`, prefix)
	if err != nil {
		return nil, fmt.Errorf("query job: %w", err)
	}
	defer rows.Close()

	var jobs []*types.Job
	for rows.Next() {
		j, err := scanJob(rows)
		if err != nil {
			return nil, err
		}
		jobs = append(jobs, j)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	switch len(jobs) {
	case 0:
		return nil, ErrNotFound
	case 1:
		return jobs[0], nil
	default:
		ids := make([]string, len(jobs))
		for i, j := range jobs {
			ids[i] = j.ID
		}
		return nil, &ErrAmbiguous{Prefix: prefix, Matches: ids}
	}
}

// All lists every job, newest first, mirroring get_all_jobs.
func (s *Store) All(ctx context.Context) ([]*types.Job, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id, created, spec FROM jobs ORDER BY created DESC`)
	if err != nil {
		return nil, fmt.Errorf("list jobs: %w", err)
	}
	defer rows.Close()

	var out []*types.Job
	for rows.Next() {
		j, err := scanJob(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, j)
	}
	return out, rows.Err()
}

// QueryTarget lists jobs whose spec targets the given host/port/database/
// table, used to serialize dedup-by-reload deletes across jobs that share a
// destination table (spec.md §4.G step 6).
func (s *Store) QueryTarget(ctx context.Context, host string, port int, database, table string) ([]*types.Job, error) {
	all, err := s.All(ctx)
	if err != nil {
		return nil, err
	}
	var out []*types.Job
	for _, j := range all {
		c, t := j.Spec.Connection, j.Spec.Target
		if c.Host == host && c.Port == port && t.Database == database && t.Table == table {
			out = append(out, j)
		}
	}
	return out, nil
}

// Delete removes a job record. Callers are responsible for bulk-finishing
// or otherwise reconciling its tasks first.
func (s *Store) Delete(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM jobs WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete job: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

func scanJob(rows *sql.Rows) (*types.Job, error) {
	var (
		j       types.Job
		created string
		rawSpec string
	)
	if err := rows.Scan(&j.ID, &created, &rawSpec); err != nil {
		return nil, err
	}
	t, err := time.Parse(time.RFC3339Nano, created)
	if err != nil {
		return nil, fmt.Errorf("parse created: %w", err)
	}
	j.Created = t
	spec, err := types.UnmarshalSpec(rawSpec)
	if err != nil {
		return nil, fmt.Errorf("parse spec: %w", err)
	}
	j.Spec = spec
	return &j, nil
}
