// Package pgprovider gives documents durable storage: a pgxpool-backed
// key-value table mapping document ID to its latest Save() blob.
package pgprovider

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Store persists each document's latest Save() blob, keyed by its own
// chosen document ID (e.g. its root CollabID or an application-level
// name).
type Store struct {
	pool *pgxpool.Pool
}

// New opens a connection pool against dsn.
func New(ctx context.Context, dsn string) (*Store, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, err
	}
	return &Store{pool: pool}, nil
}

// EnsureSchema creates the documents table if it does not already exist.
func (s *Store) EnsureSchema(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS documents (
			doc_id     TEXT PRIMARY KEY,
			state      BYTEA NOT NULL,
			updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
		)
	`)
	return err
}

// SaveState upserts docID's serialized state.
func (s *Store) SaveState(ctx context.Context, docID string, state []byte) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO documents (doc_id, state, updated_at)
		VALUES ($1, $2, now())
		ON CONFLICT (doc_id) DO UPDATE SET state = EXCLUDED.state, updated_at = now()
	`, docID, state)
	return err
}

// LoadState returns docID's most recently saved state, or ok=false if the
// document has never been saved.
func (s *Store) LoadState(ctx context.Context, docID string) (state []byte, ok bool, err error) {
	err = s.pool.QueryRow(ctx, `SELECT state FROM documents WHERE doc_id = $1`, docID).Scan(&state)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, false, nil
		}
		return nil, false, err
	}
	return state, true, nil
}

// Close releases the pool.
func (s *Store) Close() {
	s.pool.Close()
}
