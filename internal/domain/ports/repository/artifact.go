package repository

import (
	"context"

	"deckreview-pipeline/internal/domain/model"
)

// ArtifactRepository stores per-phase result payloads keyed by document.
// Because artifacts are keyed by document and not by attempt, a reprocess
// must clear them all before phase one restarts.
type ArtifactRepository interface {
	SavePhaseResult(ctx context.Context, tx Tx, documentID string, phase model.Phase, payload []byte) error

	// ClearForDocument removes every cached phase artifact for the document
	// and returns the number of rows deleted.
	ClearForDocument(ctx context.Context, tx Tx, documentID string) (int64, error)

	// CountForDocument counts cached artifact rows across all phase tables.
	CountForDocument(ctx context.Context, tx Tx, documentID string) (int, error)
}
