package worker

import (
	"context"
	"strings"

	"go.uber.org/zap"

	"github.com/kairo-crm/intake/internal/lease"
	"github.com/kairo-crm/intake/internal/model"
	"github.com/kairo-crm/intake/internal/ocr"
	"github.com/kairo-crm/intake/internal/resilience"
)

// OCRStore is the persistence the OCR handler needs.
type OCRStore interface {
	LoadOCRJob(ctx context.Context, queueID string) (*model.OCRJob, error)
	SetOCRStatus(ctx context.Context, documentID string, status model.JobStatus) error
	CompleteOCR(ctx context.Context, job *lease.Job, documentID, text string, pages int, enqueueLabeling bool) error
}

// OCRHandler extracts text from uploaded documents.
type OCRHandler struct {
	store           OCRStore
	files           FileSource
	extractor       ocr.Extractor
	enqueueLabeling bool
}

// NewOCRHandler wires an OCR handler. With enqueueLabeling set, every
// finished document is queued for labeling.
func NewOCRHandler(store OCRStore, files FileSource, extractor ocr.Extractor, enqueueLabeling bool) *OCRHandler {
	return &OCRHandler{store: store, files: files, extractor: extractor, enqueueLabeling: enqueueLabeling}
}

// Handle implements poller.Handler.
func (h *OCRHandler) Handle(ctx context.Context, job *lease.Job) error {
	oj, err := h.store.LoadOCRJob(ctx, job.ID)
	if err != nil {
		return err
	}
	log := zap.L().With(zap.String("queue_id", oj.QueueID), zap.String("document_id", oj.DocumentID))

	if err := h.store.SetOCRStatus(ctx, oj.DocumentID, model.StatusProcessing); err != nil {
		return err
	}

	res, err := h.extract(ctx, oj)
	if err != nil {
		if !resilience.IsTransient(err) {
			if serr := h.store.SetOCRStatus(ctx, oj.DocumentID, model.StatusFailed); serr != nil {
				log.Error("worker: mark document ocr failed", zap.Error(serr))
			}
		}
		return err
	}

	if err := h.store.CompleteOCR(ctx, job, oj.DocumentID, res.Text, res.Pages, h.enqueueLabeling); err != nil {
		return err
	}
	log.Info("worker: ocr completed",
		zap.Int("chars", len(res.Text)),
		zap.Int("pages", res.Pages),
		zap.Bool("labeling_queued", h.enqueueLabeling),
	)
	return nil
}

func (h *OCRHandler) extract(ctx context.Context, oj *model.OCRJob) (*ocr.Result, error) {
	data, err := download(ctx, h.files, oj.FileURL)
	if err != nil {
		return nil, err
	}
	res, err := h.extractor.Extract(ctx, data, oj.FileType)
	if err != nil {
		return nil, err
	}
	if res == nil || strings.TrimSpace(res.Text) == "" {
		return nil, ErrEmptyOCR
	}
	return res, nil
}
