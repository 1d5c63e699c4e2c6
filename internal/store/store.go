// Package store provides the keyed report-context store backed by
// PostgreSQL. Each authenticated subject owns at most one context row,
// guarded by optimistic versioning.
package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/allyant/audit-reporter/internal/types"
)

// ErrNotFound indicates no context row exists for the subject.
var ErrNotFound = errors.New("report context not found")

// VersionConflictError indicates a concurrent writer updated the row
// between the caller's read and write.
type VersionConflictError struct {
	OwnerID  string
	Expected int64
	Actual   int64
}

func (e *VersionConflictError) Error() string {
	return fmt.Sprintf("report context for %s changed: expected version %d, found %d",
		e.OwnerID, e.Expected, e.Actual)
}

// Store wraps a PostgreSQL connection pool.
type Store struct {
	pool *pgxpool.Pool
}

// Connect establishes a connection pool to the database.
func Connect(ctx context.Context, databaseURL string) (*Store, error) {
	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	// Verify connection
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return &Store{pool: pool}, nil
}

// Close closes the connection pool.
func (s *Store) Close() {
	if s.pool != nil {
		s.pool.Close()
	}
}

// EnsureSchema creates the report_contexts table if it does not exist.
func (s *Store) EnsureSchema(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS report_contexts (
			owner_id   TEXT PRIMARY KEY,
			content    JSONB NOT NULL,
			version    BIGINT NOT NULL DEFAULT 1,
			updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)`)
	if err != nil {
		return fmt.Errorf("failed to ensure report_contexts schema: %w", err)
	}
	return nil
}

// Get loads the subject's report context and its current version.
// Returns ErrNotFound when the subject has no stored context.
func (s *Store) Get(ctx context.Context, ownerID string) (*types.ReportContext, int64, error) {
	var content []byte
	var version int64
	err := s.pool.QueryRow(ctx,
		`SELECT content, version FROM report_contexts WHERE owner_id = $1`,
		ownerID,
	).Scan(&content, &version)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, 0, ErrNotFound
		}
		return nil, 0, fmt.Errorf("failed to get report context: %w", err)
	}

	var rc types.ReportContext
	if err := json.Unmarshal(content, &rc); err != nil {
		return nil, 0, fmt.Errorf("failed to unmarshal report context: %w", err)
	}
	return &rc, version, nil
}

// Put writes the subject's report context. expectedVersion must match the
// stored version (0 for a row the caller believes does not exist yet);
// otherwise a *VersionConflictError is returned and nothing is written.
// Returns the new version.
func (s *Store) Put(ctx context.Context, ownerID string, rc *types.ReportContext, expectedVersion int64) (int64, error) {
	content, err := json.Marshal(rc)
	if err != nil {
		return 0, fmt.Errorf("failed to marshal report context: %w", err)
	}

	var newVersion int64
	if expectedVersion == 0 {
		err = s.pool.QueryRow(ctx,
			`INSERT INTO report_contexts (owner_id, content)
			 VALUES ($1, $2)
			 ON CONFLICT (owner_id) DO NOTHING
			 RETURNING version`,
			ownerID, content,
		).Scan(&newVersion)
		if errors.Is(err, pgx.ErrNoRows) {
			// Row appeared since the caller's read.
			return 0, s.conflict(ctx, ownerID, expectedVersion)
		}
	} else {
		err = s.pool.QueryRow(ctx,
			`UPDATE report_contexts
			 SET content = $2, version = version + 1, updated_at = NOW()
			 WHERE owner_id = $1 AND version = $3
			 RETURNING version`,
			ownerID, content, expectedVersion,
		).Scan(&newVersion)
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, s.conflict(ctx, ownerID, expectedVersion)
		}
	}
	if err != nil {
		return 0, fmt.Errorf("failed to put report context: %w", err)
	}
	return newVersion, nil
}

// Delete removes the subject's report context. Deleting a missing row is
// not an error; document creation destroys the context best-effort.
func (s *Store) Delete(ctx context.Context, ownerID string) error {
	_, err := s.pool.Exec(ctx, `DELETE FROM report_contexts WHERE owner_id = $1`, ownerID)
	if err != nil {
		return fmt.Errorf("failed to delete report context: %w", err)
	}
	return nil
}

// conflict builds a VersionConflictError with the row's actual version.
func (s *Store) conflict(ctx context.Context, ownerID string, expected int64) error {
	var actual int64
	err := s.pool.QueryRow(ctx,
		`SELECT version FROM report_contexts WHERE owner_id = $1`, ownerID,
	).Scan(&actual)
	if err != nil && !errors.Is(err, pgx.ErrNoRows) {
		return fmt.Errorf("failed to read conflicting version: %w", err)
	}
	return &VersionConflictError{OwnerID: ownerID, Expected: expected, Actual: actual}
}
