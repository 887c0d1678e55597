package regime

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
)

// Repository persists detector snapshots to PostgreSQL so bookkeeping
// survives restarts. One row per (symbol, timeframe) pipeline.
type Repository struct {
	db *sqlx.DB
}

// NewRepository creates new snapshot repository
func NewRepository(db *sqlx.DB) *Repository {
	return &Repository{db: db}
}

// SaveSnapshot upserts the snapshot for a pipeline
func (r *Repository) SaveSnapshot(ctx context.Context, symbol, timeframe string, snapshot map[string]interface{}) error {
	payload, err := json.Marshal(snapshot)
	if err != nil {
		return fmt.Errorf("failed to marshal snapshot: %w", err)
	}

	query := `
		INSERT INTO hmm_snapshots (symbol, timeframe, snapshot, updated_at)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (symbol, timeframe)
		DO UPDATE SET snapshot = EXCLUDED.snapshot, updated_at = EXCLUDED.updated_at
	`

	if _, err := r.db.ExecContext(ctx, query, symbol, timeframe, payload, time.Now()); err != nil {
		return fmt.Errorf("failed to save snapshot: %w", err)
	}

	return nil
}

// LoadSnapshot fetches the latest snapshot for a pipeline. A missing row is
// not an error: it returns (nil, nil) so callers can start fresh.
func (r *Repository) LoadSnapshot(ctx context.Context, symbol, timeframe string) (map[string]interface{}, error) {
	query := `
		SELECT snapshot FROM hmm_snapshots
		WHERE symbol = $1 AND timeframe = $2
	`

	var payload []byte
	err := r.db.QueryRowContext(ctx, query, symbol, timeframe).Scan(&payload)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load snapshot: %w", err)
	}

	var snapshot map[string]interface{}
	if err := json.Unmarshal(payload, &snapshot); err != nil {
		// malformed persisted state is defaulted, never fatal
		return nil, nil
	}

	return snapshot, nil
}

// DeleteSnapshot removes the stored snapshot for a pipeline
func (r *Repository) DeleteSnapshot(ctx context.Context, symbol, timeframe string) error {
	query := `DELETE FROM hmm_snapshots WHERE symbol = $1 AND timeframe = $2`
	if _, err := r.db.ExecContext(ctx, query, symbol, timeframe); err != nil {
		return fmt.Errorf("failed to delete snapshot: %w", err)
	}
	return nil
}
