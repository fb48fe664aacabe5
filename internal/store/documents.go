package store

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/rotisserie/eris"

	"github.com/kairo-crm/intake/internal/db"
	"github.com/kairo-crm/intake/internal/lease"
	"github.com/kairo-crm/intake/internal/model"
)

// ErrNotFound is returned when a queue row or its document does not exist.
var ErrNotFound = eris.New("store: not found")

// TriggerOCRCompleted marks labeling jobs enqueued by a finished OCR job.
const TriggerOCRCompleted = "ocr_completed"

// LoadOCRJob reads a claimed ocr_queue row joined with its document.
func (s *PostgresStore) LoadOCRJob(ctx context.Context, queueID string) (*model.OCRJob, error) {
	var j model.OCRJob
	err := s.pool.QueryRow(ctx,
		`SELECT q.id, q.document_id, q.user_id, d.file_url, d.file_type
		FROM ocr_queue q JOIN documents d ON d.id = q.document_id
		WHERE q.id = $1`,
		queueID,
	).Scan(&j.QueueID, &j.DocumentID, &j.UserID, &j.FileURL, &j.FileType)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, eris.Wrapf(ErrNotFound, "postgres: ocr job %s", queueID)
	}
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: load ocr job %s", queueID)
	}
	return &j, nil
}

// LoadLabelJob reads a claimed ai_labeling_queue row joined with its
// document's OCR text.
func (s *PostgresStore) LoadLabelJob(ctx context.Context, queueID string) (*model.LabelJob, error) {
	var j model.LabelJob
	err := s.pool.QueryRow(ctx,
		`SELECT q.id, q.document_id, q.user_id, COALESCE(d.ocr_text, ''), q.trigger_type
		FROM ai_labeling_queue q JOIN documents d ON d.id = q.document_id
		WHERE q.id = $1`,
		queueID,
	).Scan(&j.QueueID, &j.DocumentID, &j.UserID, &j.OCRText, &j.TriggerType)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, eris.Wrapf(ErrNotFound, "postgres: labeling job %s", queueID)
	}
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: load labeling job %s", queueID)
	}
	return &j, nil
}

// SetOCRStatus records the document-side OCR state.
func (s *PostgresStore) SetOCRStatus(ctx context.Context, documentID string, status model.JobStatus) error {
	_, err := s.pool.Exec(ctx,
		`UPDATE documents SET ocr_status = $1 WHERE id = $2`,
		string(status), documentID,
	)
	return eris.Wrapf(err, "postgres: set ocr status of %s", documentID)
}

// CompleteOCR stores the extracted text, completes the queue row and, when
// enqueueLabeling is set, queues the document for labeling. All of it
// commits together.
func (s *PostgresStore) CompleteOCR(ctx context.Context, job *lease.Job, documentID, text string, pages int, enqueueLabeling bool) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return eris.Wrap(err, "postgres: begin complete ocr")
	}
	defer func() { _ = tx.Rollback(ctx) }()

	tag, err := tx.Exec(ctx,
		`UPDATE documents
		SET ocr_text = $1, ocr_page_count = $2, ocr_status = $3, ocr_processed_at = now()
		WHERE id = $4`,
		text, pages, string(model.StatusCompleted), documentID,
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: store ocr text of %s", documentID)
	}
	if tag.RowsAffected() == 0 {
		return eris.Wrapf(ErrNotFound, "postgres: document %s", documentID)
	}

	if err := finishJob(ctx, tx, lease.OCRQueue.Table, job, model.StatusCompleted, nil); err != nil {
		return err
	}

	if enqueueLabeling {
		if _, err := tx.Exec(ctx,
			`INSERT INTO ai_labeling_queue (document_id, user_id, trigger_type, status)
			VALUES ($1, $2, $3, $4)`,
			documentID, job.UserID, TriggerOCRCompleted, string(model.StatusPending),
		); err != nil {
			return eris.Wrapf(err, "postgres: enqueue labeling of %s", documentID)
		}
	}

	return commitStatus(ctx, tx, job, model.StatusCompleted, "complete ocr")
}

// CompleteLabeling writes the labels onto the document and completes the
// queue row in one transaction. Nil label fields leave columns untouched.
func (s *PostgresStore) CompleteLabeling(ctx context.Context, job *lease.Job, documentID string, labels *model.DocumentLabels) error {
	u := db.NewUpdate("documents").
		Set("category", labels.Category).
		Set("importance_score", labels.ImportanceScore).
		Set("has_signature", labels.HasSignature).
		SetExpr("ai_labeled_at", "now()")
	if labels.ExtractedNames != nil {
		names, err := json.Marshal(labels.ExtractedNames)
		if err != nil {
			return eris.Wrap(err, "postgres: marshal extracted names")
		}
		u.Set("extracted_names", names)
	}
	if labels.ExtractedAddresses != nil {
		addrs, err := json.Marshal(labels.ExtractedAddresses)
		if err != nil {
			return eris.Wrap(err, "postgres: marshal extracted addresses")
		}
		u.Set("extracted_addresses", addrs)
	}
	optional := []struct {
		col string
		val *string
	}{
		{"extracted_date_of_birth", labels.DateOfBirth},
		{"extracted_place_of_birth", labels.PlaceOfBirth},
		{"document_date", labels.DocumentDate},
		{"due_date", labels.DueDate},
		{"description", labels.Description},
	}
	for _, o := range optional {
		if o.val != nil {
			u.Set(o.col, *o.val)
		}
	}
	if avg, ok := labels.AverageConfidence(); ok {
		u.Set("ai_confidence", avg)
	}
	if len(labels.Raw) > 0 {
		meta, err := json.Marshal(map[string]any{
			"confidence":   labels.Confidence,
			"raw_response": labels.Raw,
		})
		if err != nil {
			return eris.Wrap(err, "postgres: marshal ai metadata")
		}
		u.Set("ai_metadata", meta)
	}
	u.Where("id", documentID)

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return eris.Wrap(err, "postgres: begin complete labeling")
	}
	defer func() { _ = tx.Rollback(ctx) }()

	sql, args := u.Build()
	tag, err := tx.Exec(ctx, sql, args...)
	if err != nil {
		return eris.Wrapf(err, "postgres: store labels of %s", documentID)
	}
	if tag.RowsAffected() == 0 {
		return eris.Wrapf(ErrNotFound, "postgres: document %s", documentID)
	}

	if err := finishJob(ctx, tx, lease.LabelingQueue.Table, job, model.StatusCompleted, nil); err != nil {
		return err
	}
	return commitStatus(ctx, tx, job, model.StatusCompleted, "complete labeling")
}

// LinkContact associates a document with a contact. Existing links are kept.
func (s *PostgresStore) LinkContact(ctx context.Context, documentID, contactID string) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO document_contacts (document_id, contact_id) VALUES ($1, $2)
		ON CONFLICT (document_id, contact_id) DO NOTHING`,
		documentID, contactID,
	)
	return eris.Wrapf(err, "postgres: link document %s to contact %s", documentID, contactID)
}
