package report

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Archive records every dispatch outcome in Postgres for operator review.
// Optional: the gateway runs without it when no DSN is configured.
type Archive struct {
	pool *pgxpool.Pool
}

const archiveSchema = `
CREATE TABLE IF NOT EXISTS report_outcomes (
	id           UUID PRIMARY KEY,
	session_id   TEXT NOT NULL,
	delivered    BOOLEAN NOT NULL,
	attempts     INT NOT NULL,
	persisted    BOOLEAN NOT NULL,
	payload      JSONB NOT NULL,
	recorded_at  TIMESTAMPTZ NOT NULL
)`

// NewArchive connects to Postgres and ensures the outcome table exists.
func NewArchive(ctx context.Context, dsn string) (*Archive, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("connecting to archive database: %w", err)
	}
	if _, err := pool.Exec(ctx, archiveSchema); err != nil {
		pool.Close()
		return nil, fmt.Errorf("preparing archive schema: %w", err)
	}
	return &Archive{pool: pool}, nil
}

// Record inserts one dispatch outcome row.
func (a *Archive) Record(ctx context.Context, payload Payload, outcome Outcome) error {
	raw, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("encoding payload for archive: %w", err)
	}
	_, err = a.pool.Exec(ctx,
		`INSERT INTO report_outcomes (id, session_id, delivered, attempts, persisted, payload, recorded_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		uuid.NewString(), payload.SessionID, outcome.Delivered, outcome.Attempts,
		outcome.PersistedLocally, raw, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("inserting archive row: %w", err)
	}
	return nil
}

// Close releases the connection pool.
func (a *Archive) Close() {
	a.pool.Close()
}
