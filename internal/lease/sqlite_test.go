package lease

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kairo-crm/intake/internal/model"
)

func openSQLite(t *testing.T, path string) *SQLiteStore {
	t.Helper()
	s, err := NewSQLiteStore(path)
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func seed(t *testing.T, s *SQLiteStore, q Queue, n int) {
	t.Helper()
	ctx := context.Background()
	require.NoError(t, s.Migrate(ctx, q))
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	for i := range n {
		require.NoError(t, s.Enqueue(ctx, q, fmt.Sprintf("job-%03d", i), "u1", model.StatusPending, base.Add(time.Duration(i)*time.Second)))
	}
}

func TestSQLiteClaim_OldestFirst(t *testing.T) {
	s := openSQLite(t, filepath.Join(t.TempDir(), "jobs.db"))
	seed(t, s, OCRQueue, 3)

	job, err := s.Claim(context.Background(), OCRQueue, "w1")
	require.NoError(t, err)
	require.NotNil(t, job)
	assert.Equal(t, "job-000", job.ID)
	assert.Equal(t, model.StatusProcessing, job.Status)
	assert.Equal(t, 1, job.Attempts)

	var status, leasedBy string
	require.NoError(t, s.DB().QueryRow(`SELECT status, leased_by FROM ocr_queue WHERE id = 'job-000'`).Scan(&status, &leasedBy))
	assert.Equal(t, "processing", status)
	assert.Equal(t, "w1", leasedBy)
}

func TestSQLiteClaim_EmptyQueue(t *testing.T) {
	s := openSQLite(t, filepath.Join(t.TempDir(), "jobs.db"))
	seed(t, s, OCRQueue, 0)

	job, err := s.Claim(context.Background(), OCRQueue, "w1")
	require.NoError(t, err)
	assert.Nil(t, job)
}

// Several handles on one file stand in for several worker processes.
func TestSQLiteClaim_AtMostOnceUnderContention(t *testing.T) {
	path := filepath.Join(t.TempDir(), "jobs.db")
	const jobs = 40
	seed(t, openSQLite(t, path), LabelingQueue, jobs)

	const workers = 4
	var (
		mu      sync.Mutex
		claimed = make(map[string]string)
		dupes   []string
		wg      sync.WaitGroup
	)
	for w := range workers {
		store := openSQLite(t, path)
		workerID := fmt.Sprintf("w%d", w)
		wg.Add(1)
		go func() {
			defer wg.Done()
			failures := 0
			for {
				job, err := store.Claim(context.Background(), LabelingQueue, workerID)
				if err != nil {
					failures++
					if failures > 50 {
						return
					}
					time.Sleep(5 * time.Millisecond)
					continue
				}
				if job == nil {
					return
				}
				mu.Lock()
				if _, seen := claimed[job.ID]; seen {
					dupes = append(dupes, job.ID)
				}
				claimed[job.ID] = workerID
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	assert.Empty(t, dupes)
	assert.Len(t, claimed, jobs)
}

func TestSQLiteClaim_ReclaimsStaleLease(t *testing.T) {
	s := openSQLite(t, filepath.Join(t.TempDir(), "jobs.db"))
	seed(t, s, OCRQueue, 1)
	ctx := context.Background()
	q := OCRQueue.WithTimeout(15 * time.Minute)

	t0 := time.Date(2026, 2, 1, 9, 0, 0, 0, time.UTC)
	s.now = func() time.Time { return t0 }
	first, err := s.Claim(ctx, q, "crashed")
	require.NoError(t, err)
	require.NotNil(t, first)

	s.now = func() time.Time { return t0.Add(5 * time.Minute) }
	none, err := s.Claim(ctx, q, "w2")
	require.NoError(t, err)
	assert.Nil(t, none, "live lease must not be reclaimed")

	s.now = func() time.Time { return t0.Add(16 * time.Minute) }
	second, err := s.Claim(ctx, q, "w2")
	require.NoError(t, err)
	require.NotNil(t, second)
	assert.Equal(t, first.ID, second.ID)
	assert.Equal(t, 2, second.Attempts)
	assert.Equal(t, model.StatusProcessing, second.Status)

	err = s.Fail(ctx, q, first, "late write")
	assert.ErrorIs(t, err, ErrLeaseLost)
}

func TestSQLiteRenew_KeepsLiveLease(t *testing.T) {
	s := openSQLite(t, filepath.Join(t.TempDir(), "jobs.db"))
	seed(t, s, ImportQueue, 0)
	ctx := context.Background()
	q := ImportQueue.WithTimeout(15 * time.Minute)

	t0 := time.Date(2026, 2, 1, 9, 0, 0, 0, time.UTC)
	require.NoError(t, s.Enqueue(ctx, q, "import-1", "u1", model.StatusProcessing, t0))

	s.now = func() time.Time { return t0 }
	holder, err := s.Claim(ctx, q, "w1")
	require.NoError(t, err)
	require.NotNil(t, holder)

	// Heartbeats every 10 minutes keep a 40 minute job owned.
	for m := 10; m <= 40; m += 10 {
		s.now = func() time.Time { return t0.Add(time.Duration(m) * time.Minute) }
		require.NoError(t, s.Renew(ctx, q, holder))

		other, err := s.Claim(ctx, q, "w2")
		require.NoError(t, err)
		assert.Nil(t, other, "renewed lease must not be reclaimed at minute %d", m)
	}

	// Once the heartbeat stops, the lease goes stale and the renewal of the
	// old holder is refused.
	s.now = func() time.Time { return t0.Add(56 * time.Minute) }
	second, err := s.Claim(ctx, q, "w2")
	require.NoError(t, err)
	require.NotNil(t, second)
	assert.ErrorIs(t, s.Renew(ctx, q, holder), ErrLeaseLost)
}

func TestSQLiteReleaseAndFail(t *testing.T) {
	s := openSQLite(t, filepath.Join(t.TempDir(), "jobs.db"))
	seed(t, s, OCRQueue, 1)
	ctx := context.Background()

	job, err := s.Claim(ctx, OCRQueue, "w1")
	require.NoError(t, err)
	require.NoError(t, s.Release(ctx, OCRQueue, job))

	var status string
	require.NoError(t, s.DB().QueryRow(`SELECT status FROM ocr_queue WHERE id = ?`, job.ID).Scan(&status))
	assert.Equal(t, "pending", status)

	job, err = s.Claim(ctx, OCRQueue, "w1")
	require.NoError(t, err)
	require.NotNil(t, job)
	assert.Equal(t, 2, job.Attempts)
	require.NoError(t, s.Fail(ctx, OCRQueue, job, "OCR returned empty text"))

	var msg string
	require.NoError(t, s.DB().QueryRow(`SELECT status, error_message FROM ocr_queue WHERE id = ?`, job.ID).Scan(&status, &msg))
	assert.Equal(t, "failed", status)
	assert.Equal(t, "OCR returned empty text", msg)

	next, err := s.Claim(ctx, OCRQueue, "w1")
	require.NoError(t, err)
	assert.Nil(t, next)
}
