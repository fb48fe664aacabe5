package lease

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/kairo-crm/intake/internal/db"
	"github.com/kairo-crm/intake/internal/model"
)

// PostgresStore claims jobs with SELECT ... FOR UPDATE SKIP LOCKED.
type PostgresStore struct {
	pool db.Pool
	now  func() time.Time
}

// NewPostgresStore creates a lease store over pool.
func NewPostgresStore(pool db.Pool) *PostgresStore {
	return &PostgresStore{pool: pool, now: time.Now}
}

func claimSelectSQL(q Queue) string {
	return fmt.Sprintf(`SELECT id, user_id, status, attempts, created_at
		FROM %s
		WHERE status = ANY($1) AND (leased_by IS NULL OR leased_at < $2)
		ORDER BY created_at, id
		LIMIT 1
		FOR UPDATE SKIP LOCKED`, pgx.Identifier{q.Table}.Sanitize())
}

func claimUpdateSQL(q Queue) string {
	return fmt.Sprintf(`UPDATE %s
		SET status = $1, leased_by = $2, leased_at = $3, attempts = attempts + 1, updated_at = $3
		WHERE id = $4`, pgx.Identifier{q.Table}.Sanitize())
}

// Claim implements Store.
func (s *PostgresStore) Claim(ctx context.Context, q Queue, workerID string) (*Job, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, eris.Wrapf(err, "lease: begin claim on %s", q.Table)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	now := s.now().UTC()
	var (
		job    Job
		status string
	)
	err = tx.QueryRow(ctx, claimSelectSQL(q), q.eligible(), now.Add(-q.timeout())).
		Scan(&job.ID, &job.UserID, &status, &job.Attempts, &job.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrapf(err, "lease: select from %s", q.Table)
	}

	job.Queue = q.Kind
	job.Status = q.claimTarget(q.releaseTarget(model.JobStatus(status)))
	job.Attempts++
	job.LeasedBy = workerID

	if _, err := tx.Exec(ctx, claimUpdateSQL(q), string(job.Status), workerID, now, job.ID); err != nil {
		return nil, eris.Wrapf(err, "lease: stamp %s %s", q.Table, job.ID)
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, eris.Wrapf(err, "lease: commit claim on %s", q.Table)
	}

	zap.L().Debug("lease: claimed",
		zap.String("queue", string(q.Kind)),
		zap.String("job_id", job.ID),
		zap.String("status", string(job.Status)),
		zap.Int("attempts", job.Attempts),
	)
	return &job, nil
}

// Renew implements Store.
func (s *PostgresStore) Renew(ctx context.Context, q Queue, job *Job) error {
	sql := fmt.Sprintf(`UPDATE %s SET leased_at = now() WHERE id = $1 AND leased_by = $2`, pgx.Identifier{q.Table}.Sanitize())
	tag, err := s.pool.Exec(ctx, sql, job.ID, job.LeasedBy)
	if err != nil {
		return eris.Wrapf(err, "lease: renew %s %s", q.Table, job.ID)
	}
	if tag.RowsAffected() == 0 {
		return eris.Wrapf(ErrLeaseLost, "lease: renew %s %s", q.Table, job.ID)
	}
	return nil
}

// Release implements Store.
func (s *PostgresStore) Release(ctx context.Context, q Queue, job *Job) error {
	sql := fmt.Sprintf(`UPDATE %s SET status = $1, leased_by = NULL, leased_at = NULL, updated_at = now()
		WHERE id = $2 AND leased_by = $3`, pgx.Identifier{q.Table}.Sanitize())
	tag, err := s.pool.Exec(ctx, sql, string(q.releaseTarget(job.Status)), job.ID, job.LeasedBy)
	if err != nil {
		return eris.Wrapf(err, "lease: release %s %s", q.Table, job.ID)
	}
	if tag.RowsAffected() == 0 {
		return eris.Wrapf(ErrLeaseLost, "lease: release %s %s", q.Table, job.ID)
	}
	return nil
}

// Fail implements Store.
func (s *PostgresStore) Fail(ctx context.Context, q Queue, job *Job, reason string) error {
	sql := fmt.Sprintf(`UPDATE %s SET status = $1, error_message = $2, leased_by = NULL, leased_at = NULL, updated_at = now()
		WHERE id = $3 AND leased_by = $4`, pgx.Identifier{q.Table}.Sanitize())
	tag, err := s.pool.Exec(ctx, sql, string(model.StatusFailed), reason, job.ID, job.LeasedBy)
	if err != nil {
		return eris.Wrapf(err, "lease: fail %s %s", q.Table, job.ID)
	}
	if tag.RowsAffected() == 0 {
		return eris.Wrapf(ErrLeaseLost, "lease: fail %s %s", q.Table, job.ID)
	}
	return nil
}
