// Package poller runs one claim/dispatch loop per queue. Each iteration
// claims at most one job through the lease store, hands it to the queue's
// handler and sleeps according to a Backoff policy. A failing job is marked
// failed without stopping the loop.
package poller

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/kairo-crm/intake/internal/lease"
	"github.com/kairo-crm/intake/internal/resilience"
)

// Handler processes one claimed job. A transient error (see
// resilience.IsTransient) gives the job back to the queue; any other error
// marks it failed with the error text.
type Handler interface {
	Handle(ctx context.Context, job *lease.Job) error
}

// HandlerFunc adapts a function to Handler.
type HandlerFunc func(ctx context.Context, job *lease.Job) error

// Handle implements Handler.
func (f HandlerFunc) Handle(ctx context.Context, job *lease.Job) error {
	return f(ctx, job)
}

// ErrMaxAttempts is recorded on jobs claimed more often than allowed.
var ErrMaxAttempts = eris.New("exceeded max attempts")

// Poller drives one queue.
type Poller struct {
	queue       lease.Queue
	store       lease.Store
	handler     Handler
	workerID    string
	backoff     Backoff
	maxAttempts int
	renewEvery  time.Duration
	sleep       func(ctx context.Context, d time.Duration) error
}

// Option configures a Poller.
type Option func(*Poller)

// WithBackoff overrides the default sleep policy.
func WithBackoff(b Backoff) Option {
	return func(p *Poller) { p.backoff = b }
}

// WithMaxAttempts fails jobs whose claim count exceeds n. Zero disables the check.
func WithMaxAttempts(n int) Option {
	return func(p *Poller) { p.maxAttempts = n }
}

// WithRenewInterval overrides how often a running job's lease is renewed.
// The default is a third of the queue's lease timeout.
func WithRenewInterval(d time.Duration) Option {
	return func(p *Poller) { p.renewEvery = d }
}

// New creates a Poller for q.
func New(q lease.Queue, store lease.Store, handler Handler, workerID string, opts ...Option) *Poller {
	p := &Poller{
		queue:    q,
		store:    store,
		handler:  handler,
		workerID: workerID,
		backoff:  DefaultBackoff(),
		sleep:    sleepCtx,
	}
	for _, o := range opts {
		o(p)
	}
	return p
}

// Run loops until ctx is cancelled. Cancellation interrupts sleeps
// immediately; a job already handed to the handler runs to completion.
func (p *Poller) Run(ctx context.Context) error {
	log := zap.L().With(zap.String("queue", string(p.queue.Kind)), zap.String("worker", p.workerID))
	log.Info("poller: started")
	defer log.Info("poller: stopped")

	consecutive := 0
	for ctx.Err() == nil {
		worked, err := p.step(ctx)

		var delay time.Duration
		switch {
		case err != nil:
			if ctx.Err() != nil {
				return nil
			}
			consecutive++
			var reset bool
			delay, reset = p.backoff.OnError(consecutive)
			log.Error("poller: iteration failed",
				zap.Int("consecutive_errors", consecutive),
				zap.Duration("backoff", delay),
				zap.Error(err),
			)
			if reset {
				consecutive = 0
			}
		case worked:
			consecutive = 0
			continue
		default:
			delay = p.backoff.Interval
		}

		if p.sleep(ctx, delay) != nil {
			return nil
		}
	}
	return nil
}

// step claims and dispatches at most one job.
func (p *Poller) step(ctx context.Context) (bool, error) {
	job, err := p.store.Claim(ctx, p.queue, p.workerID)
	if err != nil {
		return false, eris.Wrap(err, "poller: claim")
	}
	if job == nil {
		return false, nil
	}
	return true, p.dispatch(ctx, job)
}

// dispatch runs the handler on a context that survives shutdown so the job
// finishes, then settles the lease when the handler did not. The lease is
// renewed while the handler runs; if another worker takes the row over, the
// handler context is cancelled and the job is left to its new owner.
func (p *Poller) dispatch(ctx context.Context, job *lease.Job) error {
	baseCtx := context.WithoutCancel(ctx)
	log := zap.L().With(
		zap.String("queue", string(p.queue.Kind)),
		zap.String("job_id", job.ID),
		zap.String("status", string(job.Status)),
		zap.Int("attempt", job.Attempts),
	)

	if p.maxAttempts > 0 && job.Attempts > p.maxAttempts {
		log.Warn("poller: giving up on job")
		return p.fail(baseCtx, job, ErrMaxAttempts.Error())
	}

	runCtx, cancel := context.WithCancel(baseCtx)
	defer cancel()
	hb := p.startHeartbeat(runCtx, cancel, job, log)

	log.Info("poller: processing job")
	start := time.Now()
	err := p.safeHandle(runCtx, job)
	lost := hb.stop()

	// A nil error means the handler's final lease-guarded write went through;
	// a renewal racing with it may still see the cleared lease.
	if err == nil {
		log.Info("poller: job done", zap.Duration("elapsed", time.Since(start)))
		return nil
	}
	if lost {
		log.Warn("poller: lease lost while processing, leaving job to its new owner", zap.Error(err))
		return eris.Wrapf(lease.ErrLeaseLost, "poller: job %s", job.ID)
	}

	if resilience.IsTransient(err) {
		log.Warn("poller: transient failure, releasing job", zap.Error(err))
		if rerr := p.store.Release(baseCtx, p.queue, job); rerr != nil {
			log.Error("poller: release failed", zap.Error(rerr))
		}
		return err
	}

	log.Error("poller: job failed", zap.Error(err))
	return p.fail(baseCtx, job, err.Error())
}

// heartbeat renews one job's lease until stopped.
type heartbeat struct {
	done chan struct{}
	exit chan struct{}
	lost atomic.Bool
}

func (p *Poller) startHeartbeat(ctx context.Context, cancel context.CancelFunc, job *lease.Job, log *zap.Logger) *heartbeat {
	hb := &heartbeat{done: make(chan struct{}), exit: make(chan struct{})}
	every := p.renewEvery
	if every <= 0 {
		every = p.queue.RenewInterval()
	}

	go func() {
		defer close(hb.exit)
		ticker := time.NewTicker(every)
		defer ticker.Stop()
		for {
			select {
			case <-hb.done:
				return
			case <-ticker.C:
			}
			err := p.store.Renew(ctx, p.queue, job)
			switch {
			case err == nil:
			case eris.Is(err, lease.ErrLeaseLost):
				hb.lost.Store(true)
				cancel()
				return
			default:
				log.Warn("poller: lease renewal failed", zap.Error(err))
			}
		}
	}()
	return hb
}

// stop ends the renewals and reports whether the lease was lost.
func (hb *heartbeat) stop() bool {
	close(hb.done)
	<-hb.exit
	return hb.lost.Load()
}

func (p *Poller) fail(ctx context.Context, job *lease.Job, reason string) error {
	if err := p.store.Fail(ctx, p.queue, job, reason); err != nil {
		return eris.Wrapf(err, "poller: mark %s failed", job.ID)
	}
	return nil
}

func (p *Poller) safeHandle(ctx context.Context, job *lease.Job) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = eris.Errorf("panic: %v", r)
		}
	}()
	return p.handler.Handle(ctx, job)
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
