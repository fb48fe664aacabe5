package worker

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kairo-crm/intake/internal/labeling"
	"github.com/kairo-crm/intake/internal/lease"
	"github.com/kairo-crm/intake/internal/llm"
	"github.com/kairo-crm/intake/internal/model"
)

type fakeLinker struct {
	userID, documentID string
	names              []string
	dc                 labeling.DocumentContext
	calls              int
}

func (f *fakeLinker) LinkNames(_ context.Context, userID, documentID string, names []string, dc labeling.DocumentContext) []string {
	f.calls++
	f.userID, f.documentID, f.names, f.dc = userID, documentID, names, dc
	return names
}

func labelFixture(text string) (*memDocs, *lease.Job) {
	docs := &memDocs{labelJob: &model.LabelJob{
		QueueID: "l1", DocumentID: "d1", UserID: "u1", OCRText: text, TriggerType: "ocr_completed",
	}}
	job := &lease.Job{ID: "l1", Queue: model.QueueLabeling, UserID: "u1", Status: model.StatusProcessing, LeasedBy: "vps-01"}
	return docs, job
}

func TestLabelHandler_LabelsAndLinks(t *testing.T) {
	docs, job := labelFixture("DOCUMENTO NACIONAL DE IDENTIDAD ANA GOMEZ")
	completer := llm.CompleterFunc(func(context.Context, llm.Request) (string, error) {
		return `{"category": "DNI", "extracted_names": ["Ana Gomez"], "extracted_place_of_birth": "Sevilla",
			"has_signature": false, "confidence": {"category": 0.9}}`, nil
	})
	linker := &fakeLinker{}

	h := NewLabelHandler(docs, labeling.NewLabeler(completer), linker)
	require.NoError(t, h.Handle(context.Background(), job))

	require.NotNil(t, docs.labels)
	assert.Equal(t, "DNI", docs.labels.Category)
	assert.Equal(t, 10, docs.labels.ImportanceScore)
	assert.Equal(t, 1, linker.calls)
	assert.Equal(t, "u1", linker.userID)
	assert.Equal(t, "d1", linker.documentID)
	assert.Equal(t, []string{"Ana Gomez"}, linker.names)
	assert.Equal(t, "Sevilla", linker.dc.PlaceOfBirth)
}

func TestLabelHandler_EmptyText(t *testing.T) {
	docs, job := labelFixture("   ")
	completer := llm.CompleterFunc(func(context.Context, llm.Request) (string, error) {
		t.Fatal("completion must not be requested")
		return "", nil
	})

	err := NewLabelHandler(docs, labeling.NewLabeler(completer), nil).Handle(context.Background(), job)
	require.Error(t, err)
	assert.ErrorIs(t, err, labeling.ErrNoText)
	assert.Contains(t, err.Error(), "No OCR text available for AI labeling")
	assert.Nil(t, docs.labels)
}

func TestLabelHandler_WithoutLinker(t *testing.T) {
	docs, job := labelFixture("FACTURA LUZ")
	completer := llm.CompleterFunc(func(context.Context, llm.Request) (string, error) {
		return `{"category": "Utility Bills"}`, nil
	})

	require.NoError(t, NewLabelHandler(docs, labeling.NewLabeler(completer), nil).Handle(context.Background(), job))
	assert.Equal(t, 3, docs.labels.ImportanceScore)
}
