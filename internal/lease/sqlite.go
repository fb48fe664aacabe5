package lease

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	_ "modernc.org/sqlite"

	"github.com/kairo-crm/intake/internal/model"
)

// SQLiteStore is a single-host lease backend. SQLite serializes writers, so
// each claim runs in an IMMEDIATE transaction that holds the write lock from
// the first read.
type SQLiteStore struct {
	db  *sql.DB
	now func() time.Time
}

// NewSQLiteStore opens the database at path.
func NewSQLiteStore(path string) (*SQLiteStore, error) {
	dsn := "file:" + path + "?_pragma=busy_timeout(10000)&_pragma=journal_mode(WAL)&_txlock=immediate"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, eris.Wrap(err, "lease: sqlite open")
	}
	db.SetMaxOpenConns(1)
	return &SQLiteStore{db: db, now: time.Now}, nil
}

// DB exposes the handle for schema setup and seeding.
func (s *SQLiteStore) DB() *sql.DB {
	return s.db
}

// Close closes the database.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// Migrate creates the job table for q.
func (s *SQLiteStore) Migrate(ctx context.Context, q Queue) error {
	_, err := s.db.ExecContext(ctx, fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
		id            TEXT PRIMARY KEY,
		user_id       TEXT NOT NULL DEFAULT '',
		status        TEXT NOT NULL,
		attempts      INTEGER NOT NULL DEFAULT 0,
		error_message TEXT,
		leased_by     TEXT,
		leased_at     INTEGER,
		created_at    INTEGER NOT NULL,
		updated_at    INTEGER NOT NULL
	)`, q.Table))
	return eris.Wrapf(err, "lease: sqlite migrate %s", q.Table)
}

// Enqueue inserts a job row with the given status.
func (s *SQLiteStore) Enqueue(ctx context.Context, q Queue, id, userID string, status model.JobStatus, createdAt time.Time) error {
	_, err := s.db.ExecContext(ctx,
		fmt.Sprintf(`INSERT INTO %s (id, user_id, status, created_at, updated_at) VALUES (?, ?, ?, ?, ?)`, q.Table),
		id, userID, string(status), createdAt.UnixNano(), createdAt.UnixNano())
	return eris.Wrapf(err, "lease: sqlite enqueue %s", id)
}

func placeholders(n int) string {
	return strings.TrimSuffix(strings.Repeat("?, ", n), ", ")
}

// Claim implements Store.
func (s *SQLiteStore) Claim(ctx context.Context, q Queue, workerID string) (*Job, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, eris.Wrapf(err, "lease: sqlite begin claim on %s", q.Table)
	}
	defer func() { _ = tx.Rollback() }()

	now := s.now().UTC()
	statuses := q.eligible()
	args := make([]any, 0, len(statuses)+1)
	for _, st := range statuses {
		args = append(args, st)
	}
	args = append(args, now.Add(-q.timeout()).UnixNano())

	var (
		job       Job
		status    string
		createdAt int64
	)
	err = tx.QueryRowContext(ctx, fmt.Sprintf(`SELECT id, user_id, status, attempts, created_at FROM %s
		WHERE status IN (%s) AND (leased_by IS NULL OR leased_at < ?)
		ORDER BY created_at, id LIMIT 1`, q.Table, placeholders(len(statuses))), args...).
		Scan(&job.ID, &job.UserID, &status, &job.Attempts, &createdAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrapf(err, "lease: sqlite select from %s", q.Table)
	}

	job.Queue = q.Kind
	job.Status = q.claimTarget(q.releaseTarget(model.JobStatus(status)))
	job.Attempts++
	job.LeasedBy = workerID
	job.CreatedAt = time.Unix(0, createdAt).UTC()

	if _, err := tx.ExecContext(ctx,
		fmt.Sprintf(`UPDATE %s SET status = ?, leased_by = ?, leased_at = ?, attempts = attempts + 1, updated_at = ? WHERE id = ?`, q.Table),
		string(job.Status), workerID, now.UnixNano(), now.UnixNano(), job.ID); err != nil {
		return nil, eris.Wrapf(err, "lease: sqlite stamp %s", job.ID)
	}
	if err := tx.Commit(); err != nil {
		return nil, eris.Wrapf(err, "lease: sqlite commit claim on %s", q.Table)
	}
	return &job, nil
}

// Renew implements Store.
func (s *SQLiteStore) Renew(ctx context.Context, q Queue, job *Job) error {
	res, err := s.db.ExecContext(ctx,
		fmt.Sprintf(`UPDATE %s SET leased_at = ? WHERE id = ? AND leased_by = ?`, q.Table),
		s.now().UTC().UnixNano(), job.ID, job.LeasedBy)
	return checkLeased(res, err, "renew", job.ID)
}

// Release implements Store.
func (s *SQLiteStore) Release(ctx context.Context, q Queue, job *Job) error {
	res, err := s.db.ExecContext(ctx,
		fmt.Sprintf(`UPDATE %s SET status = ?, leased_by = NULL, leased_at = NULL, updated_at = ? WHERE id = ? AND leased_by = ?`, q.Table),
		string(q.releaseTarget(job.Status)), s.now().UnixNano(), job.ID, job.LeasedBy)
	return checkLeased(res, err, "release", job.ID)
}

// Fail implements Store.
func (s *SQLiteStore) Fail(ctx context.Context, q Queue, job *Job, reason string) error {
	res, err := s.db.ExecContext(ctx,
		fmt.Sprintf(`UPDATE %s SET status = ?, error_message = ?, leased_by = NULL, leased_at = NULL, updated_at = ? WHERE id = ? AND leased_by = ?`, q.Table),
		string(model.StatusFailed), reason, s.now().UnixNano(), job.ID, job.LeasedBy)
	return checkLeased(res, err, "fail", job.ID)
}

func checkLeased(res sql.Result, err error, op, id string) error {
	if err != nil {
		return eris.Wrapf(err, "lease: sqlite %s %s", op, id)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return eris.Wrapf(err, "lease: sqlite %s %s", op, id)
	}
	if n == 0 {
		return eris.Wrapf(ErrLeaseLost, "lease: sqlite %s %s", op, id)
	}
	return nil
}
