package database

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/kamilpajak/fring/internal/healing"
)

// CacheStore persists healing decisions keyed by fingerprint. It
// implements healing.Store; the orchestrator's cache treats any error
// here as a miss.
type CacheStore struct {
	db *DB
}

// Cache returns the persistent healing cache backed by this database.
func (db *DB) Cache() *CacheStore {
	return &CacheStore{db: db}
}

// GetEntry retrieves a cached decision, or nil when absent.
func (s *CacheStore) GetEntry(ctx context.Context, fingerprint string) (*healing.Entry, error) {
	row := s.db.pool.QueryRow(ctx,
		`SELECT fingerprint, spec_version, decision, created_at, expires_at
		 FROM healing_cache WHERE fingerprint = $1`,
		fingerprint,
	)

	var e healing.Entry
	var decisionJSON []byte
	err := row.Scan(&e.Fingerprint, &e.SpecVersion, &decisionJSON, &e.CreatedAt, &e.ExpiresAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal(decisionJSON, &e.Decision); err != nil {
		return nil, err
	}
	return &e, nil
}

// PutEntry upserts a cached decision.
func (s *CacheStore) PutEntry(ctx context.Context, e *healing.Entry) error {
	decisionJSON, err := json.Marshal(e.Decision)
	if err != nil {
		return err
	}

	_, err = s.db.pool.Exec(ctx,
		`INSERT INTO healing_cache (fingerprint, spec_version, decision, created_at, expires_at)
		 VALUES ($1, $2, $3, $4, $5)
		 ON CONFLICT (fingerprint) DO UPDATE
		 SET spec_version = EXCLUDED.spec_version,
		     decision = EXCLUDED.decision,
		     created_at = EXCLUDED.created_at,
		     expires_at = EXCLUDED.expires_at`,
		e.Fingerprint, e.SpecVersion, decisionJSON, e.CreatedAt, e.ExpiresAt,
	)
	return err
}

// DeleteSpecVersion removes every decision made against the given spec
// version.
func (s *CacheStore) DeleteSpecVersion(ctx context.Context, specVersion string) error {
	_, err := s.db.pool.Exec(ctx,
		`DELETE FROM healing_cache WHERE spec_version = $1`,
		specVersion,
	)
	return err
}

// DeleteExpired removes entries past their TTL.
func (s *CacheStore) DeleteExpired(ctx context.Context) error {
	_, err := s.db.pool.Exec(ctx,
		`DELETE FROM healing_cache WHERE expires_at < $1`,
		time.Now(),
	)
	return err
}
