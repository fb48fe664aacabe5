// Package lease implements the at-most-once claim protocol over durable job
// tables. A claim picks the oldest eligible row, stamps it with the worker's
// lease and writes its in-progress status in one atomic unit, so concurrent
// workers on any number of hosts never receive the same job.
package lease

import (
	"context"
	"time"

	"github.com/rotisserie/eris"

	"github.com/kairo-crm/intake/internal/model"
)

// ErrLeaseLost is returned when a lease-guarded write finds the row no
// longer owned by the caller.
var ErrLeaseLost = eris.New("lease: lease lost")

// DefaultLeaseTimeout bounds how long a lease is honored before another
// worker may reclaim the row.
const DefaultLeaseTimeout = 15 * time.Minute

// Queue describes one job table and its claim transitions.
type Queue struct {
	Kind  model.QueueKind
	Table string
	// Claimable lists statuses a worker may pick up.
	Claimable []model.JobStatus
	// Transitions maps a claimable status to the status written on claim.
	// Statuses absent from the map are kept as is.
	Transitions  map[model.JobStatus]model.JobStatus
	LeaseTimeout time.Duration
}

// Queues used by the worker.
var (
	OCRQueue = Queue{
		Kind:        model.QueueOCR,
		Table:       "ocr_queue",
		Claimable:   []model.JobStatus{model.StatusPending},
		Transitions: map[model.JobStatus]model.JobStatus{model.StatusPending: model.StatusProcessing},
	}
	LabelingQueue = Queue{
		Kind:        model.QueueLabeling,
		Table:       "ai_labeling_queue",
		Claimable:   []model.JobStatus{model.StatusPending},
		Transitions: map[model.JobStatus]model.JobStatus{model.StatusPending: model.StatusProcessing},
	}
	// ImportQueue jobs keep their phase status; the lease alone marks ownership.
	ImportQueue = Queue{
		Kind:      model.QueueImport,
		Table:     "contact_import_jobs",
		Claimable: []model.JobStatus{model.StatusAnalyzing, model.StatusProcessing},
	}
)

// QueueFor returns the queue definition for kind.
func QueueFor(kind model.QueueKind) (Queue, error) {
	switch kind {
	case model.QueueOCR:
		return OCRQueue, nil
	case model.QueueLabeling:
		return LabelingQueue, nil
	case model.QueueImport:
		return ImportQueue, nil
	}
	return Queue{}, eris.Errorf("lease: unknown queue %q", kind)
}

// WithTimeout returns a copy of q using d as its lease timeout.
func (q Queue) WithTimeout(d time.Duration) Queue {
	q.LeaseTimeout = d
	return q
}

func (q Queue) timeout() time.Duration {
	if q.LeaseTimeout <= 0 {
		return DefaultLeaseTimeout
	}
	return q.LeaseTimeout
}

// RenewInterval is how often a holder refreshes its lease. Three renewals fit
// in one timeout, so a single missed heartbeat does not expose the row.
func (q Queue) RenewInterval() time.Duration {
	return q.timeout() / 3
}

// claimTarget is the status written when a row in status s is claimed.
func (q Queue) claimTarget(s model.JobStatus) model.JobStatus {
	if t, ok := q.Transitions[s]; ok {
		return t
	}
	return s
}

// releaseTarget is the claimable status a leased row returns to.
func (q Queue) releaseTarget(s model.JobStatus) model.JobStatus {
	for from, to := range q.Transitions {
		if to == s {
			return from
		}
	}
	return s
}

// eligible lists every status a claim may select: claimable statuses plus
// in-progress statuses whose lease went stale.
func (q Queue) eligible() []string {
	seen := make(map[model.JobStatus]bool)
	var out []string
	add := func(s model.JobStatus) {
		if !seen[s] {
			seen[s] = true
			out = append(out, string(s))
		}
	}
	for _, s := range q.Claimable {
		add(s)
		add(q.claimTarget(s))
	}
	return out
}

// Job is a claimed row.
type Job struct {
	ID        string
	Queue     model.QueueKind
	UserID    string
	Status    model.JobStatus
	Attempts  int
	LeasedBy  string
	CreatedAt time.Time
}

// Store is a durable lease backend.
type Store interface {
	// Claim leases the oldest eligible job, or returns nil when the queue is empty.
	Claim(ctx context.Context, q Queue, workerID string) (*Job, error)
	// Renew refreshes the lease of a job still being worked on. It returns
	// ErrLeaseLost when the caller no longer owns the row.
	Renew(ctx context.Context, q Queue, job *Job) error
	// Release gives a leased job back to the queue without recording a failure.
	Release(ctx context.Context, q Queue, job *Job) error
	// Fail marks a leased job failed with reason and clears the lease.
	Fail(ctx context.Context, q Queue, job *Job, reason string) error
}
