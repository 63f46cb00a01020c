package repository

import (
	"context"
	"time"

	"deckreview-pipeline/internal/domain/model"
)

// ServerRepository is the worker server registry. Workers write their own
// rows via Heartbeat; the health monitor marks silent workers dead.
type ServerRepository interface {
	// Heartbeat upserts the server row and stamps last_heartbeat=now().
	Heartbeat(ctx context.Context, tx Tx, srv *model.WorkerServer) error

	FindByID(ctx context.Context, tx Tx, serverID string) (*model.WorkerServer, error)

	// ListAvailable returns servers of the given type with status=available,
	// least loaded first.
	ListAvailable(ctx context.Context, tx Tx, serverType string) ([]*model.WorkerServer, error)

	IncrementLoad(ctx context.Context, tx Tx, serverID string) error
	DecrementLoad(ctx context.Context, tx Tx, serverID string) error

	// MarkDead flags servers whose last heartbeat is older than the cutoff
	// as unavailable and returns how many were flagged.
	MarkDead(ctx context.Context, tx Tx, heartbeatBefore time.Time) (int, error)
}
