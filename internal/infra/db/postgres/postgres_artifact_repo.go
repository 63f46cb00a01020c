package postgres

import (
	"context"

	"github.com/jackc/pgx/v4/pgxpool"

	"deckreview-pipeline/internal/domain"
	"deckreview-pipeline/internal/domain/model"
	"deckreview-pipeline/internal/domain/ports/repository"
)

var _ repository.ArtifactRepository = (*artifactRepo)(nil)

// artifactRepo persists per-phase result payloads. Each phase writes into its
// own table, all keyed by document_id, which is why a reprocess clears them
// wholesale instead of trying to resume mid-pipeline.
type artifactRepo struct {
	pool *pgxpool.Pool
}

func NewArtifactRepo(pool *pgxpool.Pool) *artifactRepo {
	return &artifactRepo{pool: pool}
}

var phaseTables = map[model.Phase]string{
	model.PhaseVisualAnalysis:      "visual_analysis_cache",
	model.PhaseDataExtraction:      "extraction_results",
	model.PhaseTemplateProcessing:  "template_scores",
	model.PhaseSpecializedAnalysis: "specialized_results",
}

func (r *artifactRepo) SavePhaseResult(ctx context.Context, tx repository.Tx, documentID string, phase model.Phase, payload []byte) error {
	table, ok := phaseTables[phase]
	if !ok {
		return domain.ErrInvalidArgument
	}
	// Table names come from the fixed map above, never from input.
	q := `
INSERT INTO ` + table + ` (document_id, payload, created_at)
VALUES ($1,$2,now())
ON CONFLICT (document_id) DO UPDATE SET payload=EXCLUDED.payload, created_at=now();`
	_, err := execSQL(ctx, r.pool, tx, q, documentID, payload)
	return err
}

func (r *artifactRepo) ClearForDocument(ctx context.Context, tx repository.Tx, documentID string) (int64, error) {
	var total int64
	for _, phase := range model.Phases() {
		table := phaseTables[phase]
		tag, err := execSQL(ctx, r.pool, tx, `DELETE FROM `+table+` WHERE document_id=$1;`, documentID)
		if err != nil {
			return total, err
		}
		total += tag.RowsAffected()
	}
	return total, nil
}

func (r *artifactRepo) CountForDocument(ctx context.Context, tx repository.Tx, documentID string) (int, error) {
	var total int
	for _, phase := range model.Phases() {
		table := phaseTables[phase]
		row, err := pickRow(ctx, r.pool, tx, `SELECT COUNT(*) FROM `+table+` WHERE document_id=$1;`, documentID)
		if err != nil {
			return 0, err
		}
		var n int
		if err := row.Scan(&n); err != nil {
			return 0, domain.ErrReadDatabaseRow
		}
		total += n
	}
	return total, nil
}
