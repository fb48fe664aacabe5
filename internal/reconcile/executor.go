package reconcile

import (
	"context"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/kairo-crm/intake/internal/model"
)

// ErrRowSettled is returned by RecordResult when the row already carries a
// result. The row transaction then rolls back, so its contact write is undone.
var ErrRowSettled = eris.New("reconcile: row already has a result")

// RowTx is the write surface available while executing one row. Everything
// written through it commits or rolls back together.
type RowTx interface {
	CreateContact(ctx context.Context, userID string, fields *model.ContactFields) (string, error)
	// UpdateContact fills empty fields of the contact when overwrite is empty,
	// or replaces exactly the listed fields otherwise.
	UpdateContact(ctx context.Context, userID, contactID string, fields *model.ContactFields, overwrite []model.Field) error
	RecordResult(ctx context.Context, rowID string, outcome model.RowOutcome) error
}

// RowStore loads import rows and runs per-row transactions.
type RowStore interface {
	// PendingRows returns the job's rows that have no recorded result, in row order.
	PendingRows(ctx context.Context, jobID string) ([]model.ImportRow, error)
	// Tally counts the outcomes already recorded for the job.
	Tally(ctx context.Context, jobID string) (model.ExecStats, error)
	WithinRow(ctx context.Context, fn func(ctx context.Context, tx RowTx) error) error
	// RecordError marks a row skipped with msg outside any row transaction.
	RecordError(ctx context.Context, rowID, msg string) error
}

// Executor applies analyzed rows to the contact store.
type Executor struct {
	store RowStore
}

// NewExecutor creates an executor over store.
func NewExecutor(store RowStore) *Executor {
	return &Executor{store: store}
}

// plan is the action chosen for one row.
type plan struct {
	action    model.Action
	contactID string
	overwrite []model.Field
}

// planRow decides what to do with a row without touching any store.
// Unrecognized decisions skip the row, except in turbo mode where they fall
// back to the automatic default: create new rows, enrich matched ones.
func planRow(row *model.ImportRow, mode model.ImportMode) plan {
	if row.MappedData == nil || len(row.MappedData.Present()) == 0 {
		return plan{action: model.ActionSkipped}
	}
	switch row.Decision {
	case model.DecisionNone, model.DecisionCreate, model.DecisionUpdate:
	case model.DecisionSkip:
		return plan{action: model.ActionSkipped}
	default:
		if mode != model.ModeTurbo {
			return plan{action: model.ActionSkipped}
		}
		if row.Disposition == model.DispositionNew || row.MatchedContactID == "" {
			return plan{action: model.ActionCreated}
		}
		return plan{action: model.ActionUpdated, contactID: row.MatchedContactID}
	}
	if row.Disposition == model.DispositionNew || row.Decision == model.DecisionCreate || row.MatchedContactID == "" {
		return plan{action: model.ActionCreated}
	}
	var overwrite []model.Field
	for _, f := range row.OverwriteFields {
		if f.IsCanonical() {
			overwrite = append(overwrite, f)
		}
	}
	return plan{action: model.ActionUpdated, contactID: row.MatchedContactID, overwrite: overwrite}
}

// Execute runs every row of job that has no recorded result yet. Each row
// commits on its own; a failing row is recorded and counted as an error.
// The returned counters include rows recorded by earlier attempts.
func (e *Executor) Execute(ctx context.Context, job *model.ImportJob) (model.ExecStats, error) {
	stats, err := e.store.Tally(ctx, job.ID)
	if err != nil {
		return model.ExecStats{}, eris.Wrap(err, "reconcile: tally recorded rows")
	}
	rows, err := e.store.PendingRows(ctx, job.ID)
	if err != nil {
		return stats, eris.Wrap(err, "reconcile: load pending rows")
	}

	log := zap.L().With(zap.String("job_id", job.ID))
	log.Info("reconcile: executing import",
		zap.Int("pending_rows", len(rows)),
		zap.Int("already_recorded", stats.Created+stats.Updated+stats.Skipped+stats.Errors),
	)

	for i := range rows {
		if err := ctx.Err(); err != nil {
			return stats, eris.Wrap(err, "reconcile: execution interrupted")
		}
		row := &rows[i]
		action, err := e.executeRow(ctx, job.UserID, job.Mode, row)
		if eris.Is(err, ErrRowSettled) {
			log.Warn("reconcile: row already settled by another run, skipping", zap.Int("row", row.RowNumber))
			continue
		}
		if err != nil {
			log.Warn("reconcile: row failed",
				zap.Int("row", row.RowNumber),
				zap.Error(err),
			)
			if rerr := e.store.RecordError(ctx, row.ID, err.Error()); rerr != nil {
				log.Error("reconcile: record row error", zap.Int("row", row.RowNumber), zap.Error(rerr))
			}
			action = model.ActionError
		}
		stats.Add(action)
	}

	log.Info("reconcile: import executed",
		zap.Int("created", stats.Created),
		zap.Int("updated", stats.Updated),
		zap.Int("skipped", stats.Skipped),
		zap.Int("errors", stats.Errors),
	)
	return stats, nil
}

func (e *Executor) executeRow(ctx context.Context, userID string, mode model.ImportMode, row *model.ImportRow) (model.Action, error) {
	p := planRow(row, mode)
	err := e.store.WithinRow(ctx, func(ctx context.Context, tx RowTx) error {
		outcome := model.RowOutcome{Status: model.ResultImported, Action: p.action}
		switch p.action {
		case model.ActionCreated:
			id, err := tx.CreateContact(ctx, userID, row.MappedData)
			if err != nil {
				return err
			}
			outcome.ContactID = id
		case model.ActionUpdated:
			if err := tx.UpdateContact(ctx, userID, p.contactID, row.MappedData, p.overwrite); err != nil {
				return err
			}
			outcome.ContactID = p.contactID
		default:
			outcome.Status = model.ResultSkipped
		}
		return tx.RecordResult(ctx, row.ID, outcome)
	})
	if err != nil {
		return model.ActionError, eris.Wrapf(err, "reconcile: row %d", row.RowNumber)
	}
	return p.action, nil
}
