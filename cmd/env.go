package main

import (
	"context"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/kairo-crm/intake/internal/config"
	"github.com/kairo-crm/intake/internal/fetcher"
	"github.com/kairo-crm/intake/internal/labeling"
	"github.com/kairo-crm/intake/internal/lease"
	"github.com/kairo-crm/intake/internal/llm"
	"github.com/kairo-crm/intake/internal/model"
	"github.com/kairo-crm/intake/internal/ocr"
	"github.com/kairo-crm/intake/internal/poller"
	"github.com/kairo-crm/intake/internal/reconcile"
	"github.com/kairo-crm/intake/internal/resilience"
	"github.com/kairo-crm/intake/internal/store"
	"github.com/kairo-crm/intake/internal/worker"
)

// workerEnv holds the store, clients and handlers shared by the serve and
// stats commands.
type workerEnv struct {
	Store    *store.PostgresStore
	Leases   lease.Store
	LLM      llm.Completer // may be nil
	Breakers *resilience.ServiceBreakers
	Queues   []lease.Queue
}

// Close releases resources held by the environment.
func (e *workerEnv) Close() {
	if e.Store != nil {
		_ = e.Store.Close()
	}
}

// initStore opens the data store. Leases live on the same tables, so only
// postgres is accepted here; the sqlite lease backend is embedded-only.
func initStore(ctx context.Context, c config.StoreConfig) (*store.PostgresStore, error) {
	switch c.Driver {
	case "postgres", "":
		return store.NewPostgres(ctx, c)
	case "sqlite":
		return nil, eris.New("store driver sqlite cannot hold the import, ocr and labeling tables; use postgres")
	default:
		return nil, eris.Errorf("unsupported store driver: %s", c.Driver)
	}
}

// configuredQueues resolves worker.queues to queue definitions carrying the
// configured lease timeout.
func configuredQueues(w config.WorkerConfig) ([]lease.Queue, error) {
	seen := make(map[model.QueueKind]bool)
	var out []lease.Queue
	for _, name := range w.Queues {
		q, err := lease.QueueFor(model.QueueKind(name))
		if err != nil {
			return nil, err
		}
		if seen[q.Kind] {
			continue
		}
		seen[q.Kind] = true
		out = append(out, q.WithTimeout(w.LeaseTimeout()))
	}
	return out, nil
}

func hasQueue(queues []lease.Queue, kind model.QueueKind) bool {
	for _, q := range queues {
		if q.Kind == kind {
			return true
		}
	}
	return false
}

// initEnv connects the store and builds the completion client.
func initEnv(ctx context.Context) (*workerEnv, error) {
	queues, err := configuredQueues(cfg.Worker)
	if err != nil {
		return nil, err
	}

	st, err := initStore(ctx, cfg.Store)
	if err != nil {
		return nil, err
	}

	breakers := resilience.NewServiceBreakers(resilience.FromCircuitConfig(cfg.LLM.BreakerThreshold, cfg.LLM.BreakerResetSecs))
	completer, err := llm.New(cfg.LLM, breakers)
	if err != nil {
		_ = st.Close()
		return nil, err
	}

	return &workerEnv{
		Store:    st,
		Leases:   lease.NewPostgresStore(st.Pool()),
		LLM:      completer,
		Breakers: breakers,
		Queues:   queues,
	}, nil
}

// handlerFor builds the handler of one queue.
func (e *workerEnv) handlerFor(q lease.Queue, files worker.FileSource) (poller.Handler, error) {
	switch q.Kind {
	case model.QueueOCR:
		extractor, err := ocr.NewExtractor(cfg.OCR)
		if err != nil {
			return nil, err
		}
		return worker.NewOCRHandler(e.Store, files, extractor, hasQueue(e.Queues, model.QueueLabeling)), nil

	case model.QueueLabeling:
		if e.LLM == nil {
			return nil, eris.New("labeling queue requires llm.provider and llm.key")
		}
		return worker.NewLabelHandler(e.Store,
			labeling.NewLabeler(e.LLM),
			labeling.NewMatcher(e.LLM, e.Store),
		), nil

	case model.QueueImport:
		mapper, analyzer, err := buildReconciler(cfg.Import, e.LLM)
		if err != nil {
			return nil, err
		}
		return worker.NewImportHandler(e.Store, files, mapper, analyzer, cfg.Import.SampleRows), nil
	}
	return nil, eris.Errorf("no handler for queue %s", q.Kind)
}

// buildReconciler builds the column mapper and row analyzer. completer may be nil.
func buildReconciler(c config.ImportConfig, completer llm.Completer) (*reconcile.ColumnMapper, *reconcile.Analyzer, error) {
	keywords, err := reconcile.LoadKeywords(c.KeywordsPath)
	if err != nil {
		return nil, nil, err
	}
	if c.KeywordsPath != "" {
		zap.L().Info("loaded column keyword table", zap.String("path", c.KeywordsPath), zap.Int("fields", len(keywords)))
	}
	mapper := reconcile.NewColumnMapper(keywords, completer)
	analyzer := reconcile.NewAnalyzer(reconcile.NewRoleDeducer(completer, c.RoleBatchSize))
	return mapper, analyzer, nil
}

// buildPollers creates one poller per configured queue.
func (e *workerEnv) buildPollers() ([]*poller.Poller, error) {
	files := fetcher.NewFileStore(fetcher.OptionsFromConfig(cfg.Fetch))
	backoff := poller.FromSeconds(cfg.Worker.PollIntervalSecs, cfg.Worker.ErrorBackoffSecs, cfg.Worker.LongBackoffSecs, cfg.Worker.ErrorThreshold)

	pollers := make([]*poller.Poller, 0, len(e.Queues))
	for _, q := range e.Queues {
		h, err := e.handlerFor(q, files)
		if err != nil {
			return nil, eris.Wrapf(err, "build %s handler", q.Kind)
		}
		pollers = append(pollers, poller.New(q, e.Leases, h, cfg.Worker.InstanceID,
			poller.WithBackoff(backoff),
			poller.WithMaxAttempts(cfg.Worker.MaxAttempts),
		))
	}
	return pollers, nil
}
