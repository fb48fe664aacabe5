package store

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/rotisserie/eris"

	"github.com/kairo-crm/intake/internal/db"
	"github.com/kairo-crm/intake/internal/lease"
	"github.com/kairo-crm/intake/internal/model"
	"github.com/kairo-crm/intake/internal/reconcile"
)

const importRowsTable = "contact_import_rows"

var importRowColumns = []string{
	"id", "job_id", "row_number", "raw_data", "mapped_data", "status",
	"matched_contact_id", "match_confidence", "conflicts",
}

// LoadImportJob reads a claimed contact_import_jobs row.
func (s *PostgresStore) LoadImportJob(ctx context.Context, jobID string) (*model.ImportJob, error) {
	var (
		j      model.ImportJob
		status string
		mode   string
	)
	err := s.pool.QueryRow(ctx,
		`SELECT id, user_id, status, mode, file_url, file_name, column_mapping, headers,
			COALESCE(stats, '{}'::jsonb), COALESCE(error_message, ''), attempts, created_at
		FROM contact_import_jobs WHERE id = $1`,
		jobID,
	).Scan(&j.ID, &j.UserID, &status, &mode, &j.FileURL, &j.FileName, &j.ColumnMapping,
		&j.Headers, &j.Stats, &j.ErrorMessage, &j.Attempts, &j.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, eris.Wrapf(ErrNotFound, "postgres: import job %s", jobID)
	}
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: load import job %s", jobID)
	}
	j.Status = model.JobStatus(status)
	j.Mode = model.ImportMode(mode)
	return &j, nil
}

// SaveMapping persists the column mapping and headers of a leased import job.
// The lease is kept.
func (s *PostgresStore) SaveMapping(ctx context.Context, job *lease.Job, mapping reconcile.Mapping, headers []string) error {
	m, err := json.Marshal(mapping)
	if err != nil {
		return eris.Wrap(err, "postgres: marshal column mapping")
	}
	h, err := json.Marshal(headers)
	if err != nil {
		return eris.Wrap(err, "postgres: marshal headers")
	}

	sql, args := db.NewUpdate("contact_import_jobs").
		Set("column_mapping", m).
		Set("headers", h).
		SetExpr("updated_at", "now()").
		Where("id", job.ID).
		Where("leased_by", job.LeasedBy).
		Build()
	tag, err := s.pool.Exec(ctx, sql, args...)
	if err != nil {
		return eris.Wrapf(err, "postgres: save mapping of %s", job.ID)
	}
	if tag.RowsAffected() == 0 {
		return eris.Wrapf(lease.ErrLeaseLost, "postgres: save mapping of %s", job.ID)
	}
	return nil
}

// SaveAnalysis replaces the job's rows and writes the routed status with its
// stats in one transaction. A job routed to processing keeps its lease so the
// caller can execute it right away; any other status releases it.
func (s *PostgresStore) SaveAnalysis(ctx context.Context, job *lease.Job, rows []model.ImportRow, status model.JobStatus, stats model.ImportStats) error {
	copyRows, err := importRowValues(job.ID, rows)
	if err != nil {
		return err
	}
	statsJSON, err := json.Marshal(stats)
	if err != nil {
		return eris.Wrap(err, "postgres: marshal stats")
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return eris.Wrap(err, "postgres: begin save analysis")
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if _, err := tx.Exec(ctx, `DELETE FROM contact_import_rows WHERE job_id = $1`, job.ID); err != nil {
		return eris.Wrapf(err, "postgres: clear rows of %s", job.ID)
	}
	if _, err := db.CopyFrom(ctx, tx, importRowsTable, importRowColumns, copyRows); err != nil {
		return eris.Wrapf(err, "postgres: copy rows of %s", job.ID)
	}

	withStats := func(u *db.Update) { u.Set("stats", statsJSON) }
	if status == model.StatusProcessing {
		err = advanceJob(ctx, tx, lease.ImportQueue.Table, job, status, withStats)
	} else {
		err = finishJob(ctx, tx, lease.ImportQueue.Table, job, status, withStats)
	}
	if err != nil {
		return err
	}
	return commitStatus(ctx, tx, job, status, "save analysis")
}

// importRowValues renders rows for COPY, assigning ids to rows without one.
func importRowValues(jobID string, rows []model.ImportRow) ([][]any, error) {
	out := make([][]any, 0, len(rows))
	for i := range rows {
		r := &rows[i]
		if r.ID == "" {
			r.ID = uuid.New().String()
		}
		r.JobID = jobID
		raw, err := json.Marshal(r.RawData)
		if err != nil {
			return nil, eris.Wrapf(err, "postgres: marshal raw data of row %d", r.RowNumber)
		}
		var mapped, conflicts []byte
		if r.MappedData != nil {
			if mapped, err = json.Marshal(r.MappedData); err != nil {
				return nil, eris.Wrapf(err, "postgres: marshal mapped data of row %d", r.RowNumber)
			}
		}
		if len(r.Conflicts) > 0 {
			if conflicts, err = json.Marshal(r.Conflicts); err != nil {
				return nil, eris.Wrapf(err, "postgres: marshal conflicts of row %d", r.RowNumber)
			}
		}
		var confidence any
		if r.MatchedContactID != "" {
			confidence = r.MatchConfidence
		}
		out = append(out, []any{
			r.ID, jobID, r.RowNumber, raw, mapped, string(r.Disposition),
			nullString(r.MatchedContactID), confidence, conflicts,
		})
	}
	return out, nil
}

// CompleteImport finishes a leased import job with its final stats.
func (s *PostgresStore) CompleteImport(ctx context.Context, job *lease.Job, stats model.ImportStats) error {
	statsJSON, err := json.Marshal(stats)
	if err != nil {
		return eris.Wrap(err, "postgres: marshal stats")
	}
	if err := finishJob(ctx, s.pool, lease.ImportQueue.Table, job, model.StatusCompleted, func(u *db.Update) {
		u.Set("stats", statsJSON)
	}); err != nil {
		return err
	}
	job.Status = model.StatusCompleted
	return nil
}

// PendingRows implements reconcile.RowStore.
func (s *PostgresStore) PendingRows(ctx context.Context, jobID string) ([]model.ImportRow, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, job_id, row_number, raw_data, mapped_data, status,
			COALESCE(matched_contact_id, ''), COALESCE(match_confidence, 0)::float8,
			conflicts, COALESCE(decision, ''), overwrite_fields
		FROM contact_import_rows
		WHERE job_id = $1 AND result_status IS NULL
		ORDER BY row_number`,
		jobID,
	)
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: pending rows of %s", jobID)
	}
	defer rows.Close()

	var out []model.ImportRow
	for rows.Next() {
		var (
			r           model.ImportRow
			disposition string
			decision    string
		)
		if err := rows.Scan(&r.ID, &r.JobID, &r.RowNumber, &r.RawData, &r.MappedData,
			&disposition, &r.MatchedContactID, &r.MatchConfidence, &r.Conflicts,
			&decision, &r.OverwriteFields); err != nil {
			return nil, eris.Wrap(err, "postgres: scan import row")
		}
		r.Disposition = model.Disposition(disposition)
		r.Decision = model.Decision(decision)
		out = append(out, r)
	}
	return out, eris.Wrap(rows.Err(), "postgres: iterate import rows")
}

// Tally implements reconcile.RowStore.
func (s *PostgresStore) Tally(ctx context.Context, jobID string) (model.ExecStats, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT result_action, count(*)
		FROM contact_import_rows
		WHERE job_id = $1 AND result_action IS NOT NULL
		GROUP BY result_action`,
		jobID,
	)
	if err != nil {
		return model.ExecStats{}, eris.Wrapf(err, "postgres: tally rows of %s", jobID)
	}
	defer rows.Close()

	var stats model.ExecStats
	for rows.Next() {
		var (
			action string
			n      int
		)
		if err := rows.Scan(&action, &n); err != nil {
			return model.ExecStats{}, eris.Wrap(err, "postgres: scan tally")
		}
		stats.AddN(model.Action(action), n)
	}
	return stats, eris.Wrap(rows.Err(), "postgres: iterate tally")
}

// WithinRow implements reconcile.RowStore.
func (s *PostgresStore) WithinRow(ctx context.Context, fn func(ctx context.Context, tx reconcile.RowTx) error) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return eris.Wrap(err, "postgres: begin row")
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if err := fn(ctx, &pgRowTx{q: tx}); err != nil {
		return err
	}
	return eris.Wrap(tx.Commit(ctx), "postgres: commit row")
}

// RecordError implements reconcile.RowStore.
func (s *PostgresStore) RecordError(ctx context.Context, rowID, msg string) error {
	return recordResult(ctx, s.pool, rowID, model.RowOutcome{
		Status: model.ResultSkipped,
		Action: model.ActionError,
		Error:  msg,
	})
}

func recordResult(ctx context.Context, q db.Querier, rowID string, o model.RowOutcome) error {
	tag, err := q.Exec(ctx,
		`UPDATE contact_import_rows
		SET result_status = $1, result_action = $2, result_contact_id = $3, error_message = $4, processed_at = now()
		WHERE id = $5 AND result_status IS NULL`,
		string(o.Status), string(o.Action), nullString(o.ContactID), nullString(o.Error), rowID,
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: record result of row %s", rowID)
	}
	if tag.RowsAffected() == 0 {
		return eris.Wrapf(reconcile.ErrRowSettled, "postgres: record result of row %s", rowID)
	}
	return nil
}

// pgRowTx runs row writes inside one pgx transaction.
type pgRowTx struct {
	q db.Querier
}

func (t *pgRowTx) CreateContact(ctx context.Context, userID string, fields *model.ContactFields) (string, error) {
	return insertContact(ctx, t.q, userID, fields)
}

func (t *pgRowTx) UpdateContact(ctx context.Context, userID, contactID string, fields *model.ContactFields, overwrite []model.Field) error {
	return updateContact(ctx, t.q, userID, contactID, fields, overwrite)
}

func (t *pgRowTx) RecordResult(ctx context.Context, rowID string, outcome model.RowOutcome) error {
	return recordResult(ctx, t.q, rowID, outcome)
}
