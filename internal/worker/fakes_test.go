package worker

import (
	"context"
	"fmt"

	"github.com/kairo-crm/intake/internal/fetcher"
	"github.com/kairo-crm/intake/internal/lease"
	"github.com/kairo-crm/intake/internal/model"
	"github.com/kairo-crm/intake/internal/reconcile"
)

// memFiles serves downloads from a map.
type memFiles map[string][]byte

func (f memFiles) Fetch(_ context.Context, rawURL string) ([]byte, error) {
	data, ok := f[rawURL]
	if !ok {
		return nil, fetcher.ErrNotFound
	}
	return data, nil
}

// errFiles fails every download with err.
type errFiles struct{ err error }

func (f errFiles) Fetch(context.Context, string) ([]byte, error) { return nil, f.err }

// memImports is an in-memory ImportStore.
type memImports struct {
	job       *model.ImportJob
	contacts  []model.Contact
	rows      []model.ImportRow
	mapping   reconcile.Mapping
	headers   []string
	analyzed  model.JobStatus
	completed *model.ImportStats
	created   []model.ContactFields
	updated   map[string]*model.ContactFields
	nextID    int
}

func newMemImports(job *model.ImportJob, contacts ...model.Contact) *memImports {
	return &memImports{job: job, contacts: contacts, updated: map[string]*model.ContactFields{}}
}

func (m *memImports) LoadImportJob(_ context.Context, id string) (*model.ImportJob, error) {
	if m.job == nil || m.job.ID != id {
		return nil, fmt.Errorf("import job %s not found", id)
	}
	j := *m.job
	return &j, nil
}

func (m *memImports) SaveMapping(_ context.Context, _ *lease.Job, mapping reconcile.Mapping, headers []string) error {
	m.mapping, m.headers = mapping, headers
	return nil
}

func (m *memImports) ListContacts(context.Context, string) ([]model.Contact, error) {
	return m.contacts, nil
}

func (m *memImports) SaveAnalysis(_ context.Context, job *lease.Job, rows []model.ImportRow, status model.JobStatus, stats model.ImportStats) error {
	for i := range rows {
		rows[i].ID = fmt.Sprintf("r%d", rows[i].RowNumber)
	}
	m.rows = append([]model.ImportRow(nil), rows...)
	m.analyzed = status
	m.job.Stats = stats
	job.Status = status
	return nil
}

func (m *memImports) CompleteImport(_ context.Context, job *lease.Job, stats model.ImportStats) error {
	m.completed = &stats
	job.Status = model.StatusCompleted
	return nil
}

func (m *memImports) PendingRows(context.Context, string) ([]model.ImportRow, error) {
	var out []model.ImportRow
	for _, r := range m.rows {
		if r.ResultStatus == "" {
			out = append(out, r)
		}
	}
	return out, nil
}

func (m *memImports) Tally(context.Context, string) (model.ExecStats, error) {
	var s model.ExecStats
	for _, r := range m.rows {
		if r.ResultStatus == model.ResultImported && r.ResultContactID != "" {
			s.Add(model.ActionCreated)
		}
	}
	return s, nil
}

func (m *memImports) WithinRow(ctx context.Context, fn func(ctx context.Context, tx reconcile.RowTx) error) error {
	return fn(ctx, m)
}

func (m *memImports) RecordError(_ context.Context, rowID, msg string) error {
	return m.RecordResult(context.Background(), rowID, model.RowOutcome{Status: model.ResultSkipped, Action: model.ActionError, Error: msg})
}

func (m *memImports) CreateContact(_ context.Context, _ string, f *model.ContactFields) (string, error) {
	m.nextID++
	m.created = append(m.created, *f)
	return fmt.Sprintf("new-%d", m.nextID), nil
}

func (m *memImports) UpdateContact(_ context.Context, _, contactID string, f *model.ContactFields, _ []model.Field) error {
	m.updated[contactID] = f
	return nil
}

func (m *memImports) RecordResult(_ context.Context, rowID string, o model.RowOutcome) error {
	for i := range m.rows {
		if m.rows[i].ID == rowID {
			m.rows[i].ResultStatus = o.Status
			m.rows[i].ResultContactID = o.ContactID
			m.rows[i].Error = o.Error
		}
	}
	return nil
}

// memDocs is an in-memory OCRStore and LabelStore.
type memDocs struct {
	ocrJob     *model.OCRJob
	labelJob   *model.LabelJob
	ocrStatus  []model.JobStatus
	text       string
	pages      int
	enqueued   bool
	labels     *model.DocumentLabels
	completeEr error
}

func (m *memDocs) LoadOCRJob(context.Context, string) (*model.OCRJob, error) { return m.ocrJob, nil }

func (m *memDocs) SetOCRStatus(_ context.Context, _ string, s model.JobStatus) error {
	m.ocrStatus = append(m.ocrStatus, s)
	return nil
}

func (m *memDocs) CompleteOCR(_ context.Context, _ *lease.Job, _ string, text string, pages int, enqueue bool) error {
	if m.completeEr != nil {
		return m.completeEr
	}
	m.text, m.pages, m.enqueued = text, pages, enqueue
	return nil
}

func (m *memDocs) LoadLabelJob(context.Context, string) (*model.LabelJob, error) {
	return m.labelJob, nil
}

func (m *memDocs) CompleteLabeling(_ context.Context, _ *lease.Job, _ string, labels *model.DocumentLabels) error {
	if m.completeEr != nil {
		return m.completeEr
	}
	m.labels = labels
	return nil
}
