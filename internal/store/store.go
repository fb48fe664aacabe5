// Package store persists contacts, documents and import jobs in Postgres.
// Writes that finish a queue job are guarded by the job's lease: they only
// apply while the caller still owns the row, and they clear the lease.
package store

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rotisserie/eris"

	"github.com/kairo-crm/intake/internal/config"
	"github.com/kairo-crm/intake/internal/db"
	"github.com/kairo-crm/intake/internal/lease"
	"github.com/kairo-crm/intake/internal/model"
	"github.com/kairo-crm/intake/internal/reconcile"
)

var _ reconcile.RowStore = (*PostgresStore)(nil)

// PostgresStore implements the worker's persistence over a pgx pool.
type PostgresStore struct {
	pool    db.Pool
	closeFn func()
}

// NewPostgres creates a PostgresStore with a connection pool.
func NewPostgres(ctx context.Context, cfg config.StoreConfig) (*PostgresStore, error) {
	pgxCfg, err := pgxpool.ParseConfig(cfg.DatabaseURL)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: parse config")
	}

	maxConns := int32(5)
	minConns := int32(1)
	if cfg.MaxConns > 0 {
		maxConns = cfg.MaxConns
	}
	if cfg.MinConns > 0 {
		minConns = cfg.MinConns
	}
	pgxCfg.MaxConns = maxConns
	pgxCfg.MinConns = minConns
	pgxCfg.MaxConnLifetime = 30 * time.Minute
	pgxCfg.MaxConnIdleTime = 5 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, pgxCfg)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: create pool")
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, eris.Wrap(err, "postgres: ping")
	}
	return &PostgresStore{pool: pool, closeFn: pool.Close}, nil
}

// NewWithPool wraps an existing pool.
func NewWithPool(pool db.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

// Pool returns the underlying pool, shared with the lease store.
func (s *PostgresStore) Pool() db.Pool {
	return s.pool
}

// Ping checks connectivity.
func (s *PostgresStore) Ping(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, "SELECT 1")
	return eris.Wrap(err, "postgres: ping")
}

// Migrate applies the schema. It is idempotent.
func (s *PostgresStore) Migrate(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, postgresMigration)
	return eris.Wrap(err, "postgres: migrate")
}

// Close releases the pool.
func (s *PostgresStore) Close() error {
	if s.closeFn != nil {
		s.closeFn()
	}
	return nil
}

// finishJob writes a terminal or next-phase status on a leased queue row and
// clears the lease. extra adds assignments before the status. job is left
// untouched; callers move job.Status once the write is committed.
func finishJob(ctx context.Context, q db.Querier, table string, job *lease.Job, status model.JobStatus, extra func(*db.Update)) error {
	return guardedStatus(ctx, q, table, job, status, true, extra)
}

// advanceJob writes status while the caller keeps the lease.
func advanceJob(ctx context.Context, q db.Querier, table string, job *lease.Job, status model.JobStatus, extra func(*db.Update)) error {
	return guardedStatus(ctx, q, table, job, status, false, extra)
}

func guardedStatus(ctx context.Context, q db.Querier, table string, job *lease.Job, status model.JobStatus, release bool, extra func(*db.Update)) error {
	u := db.NewUpdate(table)
	if extra != nil {
		extra(u)
	}
	u.Set("status", string(status)).SetExpr("error_message", "NULL")
	if release {
		u.SetExpr("leased_by", "NULL").SetExpr("leased_at", "NULL")
	}
	u.SetExpr("updated_at", "now()").
		Where("id", job.ID).
		Where("leased_by", job.LeasedBy)

	sql, args := u.Build()
	tag, err := q.Exec(ctx, sql, args...)
	if err != nil {
		return eris.Wrapf(err, "postgres: set %s %s to %s", table, job.ID, status)
	}
	if tag.RowsAffected() == 0 {
		return eris.Wrapf(lease.ErrLeaseLost, "postgres: set %s %s to %s", table, job.ID, status)
	}
	return nil
}

// commitStatus commits tx and only then records status on job, so a failed
// commit leaves the job in the status the poller releases it to.
func commitStatus(ctx context.Context, tx pgx.Tx, job *lease.Job, status model.JobStatus, op string) error {
	if err := tx.Commit(ctx); err != nil {
		return eris.Wrapf(err, "postgres: commit %s", op)
	}
	job.Status = status
	return nil
}

// nullString maps "" to SQL NULL.
func nullString(s string) any {
	if s == "" {
		return nil
	}
	return s
}
