package postgres

import (
	"context"
	"time"

	"github.com/jackc/pgx/v4/pgxpool"

	"deckreview-pipeline/internal/domain"
)

// IdleTransaction describes one backend sitting idle inside a transaction.
type IdleTransaction struct {
	PID     int
	Usename string
	AppName string
	IdleFor time.Duration
	Query   string
}

// Maintenance exposes the pg_stat_activity repairs the health monitor runs
// against the task store's own database.
type Maintenance struct {
	pool *pgxpool.Pool
}

func NewMaintenance(pool *pgxpool.Pool) *Maintenance {
	return &Maintenance{pool: pool}
}

// ListIdleTransactions returns backends idle-in-transaction longer than idleFor.
func (m *Maintenance) ListIdleTransactions(ctx context.Context, idleFor time.Duration) ([]IdleTransaction, error) {
	const q = `
SELECT pid, COALESCE(usename,''), COALESCE(application_name,''),
       now() - state_change AS idle_for, COALESCE(query,'')
FROM pg_stat_activity
WHERE state = 'idle in transaction'
  AND state_change < now() - $1::interval
ORDER BY state_change ASC;`
	rows, err := m.pool.Query(ctx, q, idleFor)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []IdleTransaction
	for rows.Next() {
		var it IdleTransaction
		if err := rows.Scan(&it.PID, &it.Usename, &it.AppName, &it.IdleFor, &it.Query); err != nil {
			return nil, domain.ErrReadDatabaseRow
		}
		out = append(out, it)
	}
	return out, rows.Err()
}

// TerminateIdleTransactions kills backends idle-in-transaction longer than
// idleFor and returns how many were terminated. The orchestrator's own
// backend is excluded.
func (m *Maintenance) TerminateIdleTransactions(ctx context.Context, idleFor time.Duration) (int, error) {
	const q = `
SELECT COUNT(*) FROM (
  SELECT pg_terminate_backend(pid)
  FROM pg_stat_activity
  WHERE state = 'idle in transaction'
    AND state_change < now() - $1::interval
    AND pid <> pg_backend_pid()
) t;`
	var n int
	if err := m.pool.QueryRow(ctx, q, idleFor).Scan(&n); err != nil {
		return 0, err
	}
	return n, nil
}
