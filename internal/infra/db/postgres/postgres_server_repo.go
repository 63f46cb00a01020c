package postgres

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v4"
	"github.com/jackc/pgx/v4/pgxpool"

	"deckreview-pipeline/internal/domain"
	"deckreview-pipeline/internal/domain/model"
	"deckreview-pipeline/internal/domain/ports/repository"
)

var _ repository.ServerRepository = (*serverRepo)(nil)

type serverRepo struct {
	pool *pgxpool.Pool
}

func NewServerRepo(pool *pgxpool.Pool) *serverRepo {
	return &serverRepo{pool: pool}
}

func (r *serverRepo) Heartbeat(ctx context.Context, tx repository.Tx, srv *model.WorkerServer) error {
	if srv.ServerID == "" {
		return domain.ErrInvalidArgument
	}
	if srv.ServerType == "" {
		srv.ServerType = model.ServerTypeGPU
	}
	// The scheduler's increment/decrement owns current_load. A heartbeat only
	// seeds it on first registration; overwriting on update would erase a
	// slot admitted between the worker sampling its load and posting the
	// beat. The row reports the authoritative value back.
	const q = `
INSERT INTO worker_servers (server_id, server_type, status, current_load, max_concurrent_tasks, last_heartbeat)
VALUES ($1,$2,'available',$3,$4,now())
ON CONFLICT (server_id) DO UPDATE SET
  server_type = EXCLUDED.server_type,
  status = 'available',
  max_concurrent_tasks = EXCLUDED.max_concurrent_tasks,
  last_heartbeat = now()
RETURNING current_load, last_heartbeat;`
	row, err := pickRow(ctx, r.pool, tx, q, srv.ServerID, srv.ServerType, srv.CurrentLoad, srv.MaxConcurrentTasks)
	if err != nil {
		return err
	}
	if err := row.Scan(&srv.CurrentLoad, &srv.LastHeartbeat); err != nil {
		return domain.ErrReadDatabaseRow
	}
	srv.Status = model.ServerStatusAvailable
	return nil
}

func (r *serverRepo) FindByID(ctx context.Context, tx repository.Tx, serverID string) (*model.WorkerServer, error) {
	const q = `
SELECT server_id, server_type, status, current_load, max_concurrent_tasks, last_heartbeat
FROM worker_servers WHERE server_id=$1;`
	row, err := pickRow(ctx, r.pool, tx, q, serverID)
	if err != nil {
		return nil, err
	}
	return scanServer(row)
}

func (r *serverRepo) ListAvailable(ctx context.Context, tx repository.Tx, serverType string) ([]*model.WorkerServer, error) {
	const q = `
SELECT server_id, server_type, status, current_load, max_concurrent_tasks, last_heartbeat
FROM worker_servers
WHERE server_type=$1 AND status='available'
ORDER BY current_load ASC, last_heartbeat DESC;`
	rows, err := pickRows(ctx, r.pool, tx, q, serverType)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*model.WorkerServer
	for rows.Next() {
		srv, err := scanServer(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, srv)
	}
	return out, rows.Err()
}

func (r *serverRepo) IncrementLoad(ctx context.Context, tx repository.Tx, serverID string) error {
	const q = `
UPDATE worker_servers SET current_load = current_load + 1
WHERE server_id=$1 AND current_load < max_concurrent_tasks;`
	tag, err := execSQL(ctx, r.pool, tx, q, serverID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrWorkerUnavailable
	}
	return nil
}

func (r *serverRepo) DecrementLoad(ctx context.Context, tx repository.Tx, serverID string) error {
	const q = `
UPDATE worker_servers SET current_load = GREATEST(current_load - 1, 0)
WHERE server_id=$1;`
	_, err := execSQL(ctx, r.pool, tx, q, serverID)
	return err
}

func (r *serverRepo) MarkDead(ctx context.Context, tx repository.Tx, heartbeatBefore time.Time) (int, error) {
	const q = `
UPDATE worker_servers
SET status='unavailable', current_load=0
WHERE status='available' AND last_heartbeat < $1;`
	tag, err := execSQL(ctx, r.pool, tx, q, heartbeatBefore)
	if err != nil {
		return 0, err
	}
	return int(tag.RowsAffected()), nil
}

func scanServer(row pgx.Row) (*model.WorkerServer, error) {
	var srv model.WorkerServer
	var status string
	if err := row.Scan(&srv.ServerID, &srv.ServerType, &status, &srv.CurrentLoad, &srv.MaxConcurrentTasks, &srv.LastHeartbeat); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, domain.ErrReadDatabaseRow
	}
	srv.Status = model.ServerStatus(status)
	return &srv, nil
}
