package worker

import (
	"context"

	"go.uber.org/zap"

	"github.com/kairo-crm/intake/internal/labeling"
	"github.com/kairo-crm/intake/internal/lease"
	"github.com/kairo-crm/intake/internal/model"
)

// LabelStore is the persistence the labeling handler needs.
type LabelStore interface {
	LoadLabelJob(ctx context.Context, queueID string) (*model.LabelJob, error)
	CompleteLabeling(ctx context.Context, job *lease.Job, documentID string, labels *model.DocumentLabels) error
}

// Labeler extracts document metadata from OCR text.
type Labeler interface {
	Label(ctx context.Context, text string) (*model.DocumentLabels, error)
}

// NameLinker links names found in a document to contacts.
type NameLinker interface {
	LinkNames(ctx context.Context, userID, documentID string, names []string, dc labeling.DocumentContext) []string
}

// LabelHandler labels documents and links the contacts they name.
type LabelHandler struct {
	store   LabelStore
	labeler Labeler
	linker  NameLinker
}

// NewLabelHandler wires a labeling handler. linker may be nil to skip
// contact matching.
func NewLabelHandler(store LabelStore, labeler Labeler, linker NameLinker) *LabelHandler {
	return &LabelHandler{store: store, labeler: labeler, linker: linker}
}

// Handle implements poller.Handler.
func (h *LabelHandler) Handle(ctx context.Context, job *lease.Job) error {
	lj, err := h.store.LoadLabelJob(ctx, job.ID)
	if err != nil {
		return err
	}

	labels, err := h.labeler.Label(ctx, lj.OCRText)
	if err != nil {
		return err
	}

	var linked []string
	if h.linker != nil {
		linked = h.linker.LinkNames(ctx, lj.UserID, lj.DocumentID, labels.ExtractedNames, labeling.ContextOf(labels))
	}

	if err := h.store.CompleteLabeling(ctx, job, lj.DocumentID, labels); err != nil {
		return err
	}
	zap.L().Info("worker: document labeled",
		zap.String("document_id", lj.DocumentID),
		zap.String("trigger", lj.TriggerType),
		zap.String("category", labels.Category),
		zap.Int("importance", labels.ImportanceScore),
		zap.Int("linked_contacts", len(linked)),
	)
	return nil
}
