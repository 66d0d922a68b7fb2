package database

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/pgvector/pgvector-go"

	"github.com/kamilpajak/fring/internal/failure"
)

// FailureSignature is an embedded failure stored for similarity lookup:
// when a test breaks, previously healed failures that look alike hint at
// the repair that worked.
type FailureSignature struct {
	ID          uuid.UUID
	TestRef     string
	FailureType failure.Type
	Signature   string
	CreatedAt   time.Time
}

// SimilarSignature is a lookup result with its distance to the query
// embedding (smaller is closer).
type SimilarSignature struct {
	FailureSignature
	Distance float64
}

// SaveSignature stores a failure signature with its embedding vector.
func (db *DB) SaveSignature(ctx context.Context, testRef string, failureType failure.Type, signature string, embedding []float32) error {
	_, err := db.pool.Exec(ctx,
		`INSERT INTO failure_signatures (test_ref, failure_type, signature, embedding)
		 VALUES ($1, $2, $3, $4)`,
		testRef, string(failureType), signature, pgvector.NewVector(embedding),
	)
	return err
}

// SimilarSignatures returns the stored failures closest to the given
// embedding, nearest first.
func (db *DB) SimilarSignatures(ctx context.Context, embedding []float32, limit int) ([]SimilarSignature, error) {
	if limit <= 0 {
		limit = 5
	}

	rows, err := db.pool.Query(ctx,
		`SELECT id, test_ref, failure_type, signature, created_at, embedding <-> $1 AS distance
		 FROM failure_signatures
		 ORDER BY embedding <-> $1
		 LIMIT $2`,
		pgvector.NewVector(embedding), limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []SimilarSignature
	for rows.Next() {
		var s SimilarSignature
		var failureType string
		if err := rows.Scan(&s.ID, &s.TestRef, &failureType, &s.Signature, &s.CreatedAt, &s.Distance); err != nil {
			return nil, err
		}
		s.FailureType = failure.Type(failureType)
		out = append(out, s)
	}
	return out, rows.Err()
}
