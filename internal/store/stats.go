package store

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/rotisserie/eris"

	"github.com/kairo-crm/intake/internal/lease"
	"github.com/kairo-crm/intake/internal/model"
)

func queueStatsSQL(q lease.Queue) string {
	return fmt.Sprintf(`SELECT
		count(*) FILTER (WHERE status = ANY($1) AND leased_by IS NULL),
		count(*) FILTER (WHERE leased_by IS NOT NULL),
		count(*) FILTER (WHERE status = $2 AND updated_at > now() - interval '24 hours'),
		count(*) FILTER (WHERE status = $3)
	FROM %s`, pgx.Identifier{q.Table}.Sanitize())
}

// QueueStats counts jobs per state for each queue.
func (s *PostgresStore) QueueStats(ctx context.Context, queues []lease.Queue) ([]model.QueueStats, error) {
	out := make([]model.QueueStats, 0, len(queues))
	for _, q := range queues {
		claimable := make([]string, len(q.Claimable))
		for i, st := range q.Claimable {
			claimable[i] = string(st)
		}
		st := model.QueueStats{Queue: q.Kind}
		err := s.pool.QueryRow(ctx, queueStatsSQL(q),
			claimable, string(model.StatusCompleted), string(model.StatusFailed),
		).Scan(&st.Pending, &st.Processing, &st.CompletedToday, &st.Failed)
		if err != nil {
			return nil, eris.Wrapf(err, "postgres: stats of %s", q.Table)
		}
		out = append(out, st)
	}
	return out, nil
}
