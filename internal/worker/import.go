package worker

import (
	"context"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/kairo-crm/intake/internal/fetcher"
	"github.com/kairo-crm/intake/internal/lease"
	"github.com/kairo-crm/intake/internal/model"
	"github.com/kairo-crm/intake/internal/reconcile"
)

// ImportStore is the persistence the import handler needs.
type ImportStore interface {
	reconcile.RowStore
	LoadImportJob(ctx context.Context, jobID string) (*model.ImportJob, error)
	SaveMapping(ctx context.Context, job *lease.Job, mapping reconcile.Mapping, headers []string) error
	ListContacts(ctx context.Context, userID string) ([]model.Contact, error)
	SaveAnalysis(ctx context.Context, job *lease.Job, rows []model.ImportRow, status model.JobStatus, stats model.ImportStats) error
	CompleteImport(ctx context.Context, job *lease.Job, stats model.ImportStats) error
}

// ImportHandler runs the analysis and execution phases of contact imports.
type ImportHandler struct {
	store      ImportStore
	files      FileSource
	mapper     *reconcile.ColumnMapper
	analyzer   *reconcile.Analyzer
	executor   *reconcile.Executor
	sampleRows int
}

// NewImportHandler wires an import handler.
func NewImportHandler(store ImportStore, files FileSource, mapper *reconcile.ColumnMapper, analyzer *reconcile.Analyzer, sampleRows int) *ImportHandler {
	if sampleRows <= 0 {
		sampleRows = 5
	}
	return &ImportHandler{
		store:      store,
		files:      files,
		mapper:     mapper,
		analyzer:   analyzer,
		executor:   reconcile.NewExecutor(store),
		sampleRows: sampleRows,
	}
}

// Handle implements poller.Handler.
func (h *ImportHandler) Handle(ctx context.Context, job *lease.Job) error {
	ij, err := h.store.LoadImportJob(ctx, job.ID)
	if err != nil {
		return err
	}

	switch job.Status {
	case model.StatusAnalyzing:
		if err := h.analyze(ctx, job, ij); err != nil {
			return err
		}
		if job.Status != model.StatusProcessing {
			return nil
		}
		return h.execute(ctx, job, ij)
	case model.StatusProcessing:
		return h.execute(ctx, job, ij)
	default:
		return eris.Errorf("worker: import job %s in unexpected status %q", job.ID, job.Status)
	}
}

func (h *ImportHandler) analyze(ctx context.Context, job *lease.Job, ij *model.ImportJob) error {
	log := zap.L().With(zap.String("job_id", ij.ID), zap.String("file", ij.FileName))

	data, err := download(ctx, h.files, ij.FileURL)
	if err != nil {
		return err
	}

	table, err := fetcher.Parse(ij.FileName, data)
	if err != nil {
		log.Warn("worker: parse import file failed", zap.Error(err))
		return ErrEmptyFile
	}
	if len(table.Rows) == 0 {
		return ErrEmptyFile
	}
	log.Info("worker: import file parsed",
		zap.Int("columns", len(table.Headers)),
		zap.Int("rows", len(table.Rows)),
	)

	mapping := h.mapper.Map(ctx, table.Headers, table.Samples(h.sampleRows))
	if err := h.store.SaveMapping(ctx, job, mapping, table.Headers); err != nil {
		return err
	}
	if !mapping.Has(model.FieldFirstName) || !mapping.Has(model.FieldLastName) {
		return ErrRequiredColumns
	}

	contacts, err := h.store.ListContacts(ctx, ij.UserID)
	if err != nil {
		return err
	}
	index := reconcile.NewMatchingIndex(contacts)

	analysis := h.analyzer.Analyze(ctx, table.Rows, mapping, index)
	status := reconcile.Route(ij.Mode, analysis.Stats)

	if err := h.store.SaveAnalysis(ctx, job, analysis.Rows, status, analysis.Stats); err != nil {
		return err
	}
	ij.Stats = analysis.Stats
	ij.Status = status

	log.Info("worker: import analyzed",
		zap.String("mode", string(ij.Mode)),
		zap.String("status", string(status)),
		zap.Int("total", analysis.Stats.TotalRows),
		zap.Int("new", analysis.Stats.NewCount),
		zap.Int("duplicates", analysis.Stats.DuplicateCount),
		zap.Int("conflicts", analysis.Stats.ConflictCount),
	)
	return nil
}

func (h *ImportHandler) execute(ctx context.Context, job *lease.Job, ij *model.ImportJob) error {
	exec, err := h.executor.Execute(ctx, ij)
	if err != nil {
		return err
	}
	stats := ij.Stats.WithExec(exec)
	if err := h.store.CompleteImport(ctx, job, stats); err != nil {
		return err
	}
	zap.L().Info("worker: import completed",
		zap.String("job_id", ij.ID),
		zap.Int("created", exec.Created),
		zap.Int("updated", exec.Updated),
		zap.Int("skipped", exec.Skipped),
		zap.Int("errors", exec.Errors),
	)
	return nil
}
