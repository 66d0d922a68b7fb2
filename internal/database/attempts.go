package database

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/kamilpajak/fring/internal/failure"
	"github.com/kamilpajak/fring/internal/healing"
)

// attemptColumns is the standard column list for healing attempt queries.
const attemptColumns = `id, test_ref, strategy, state, start_time, end_time, success, tokens_used, estimated_cost, cache_hit, failure_type, reason`

// SaveAttempt appends one healing attempt to the history.
func (db *DB) SaveAttempt(ctx context.Context, a *healing.Attempt) error {
	_, err := db.pool.Exec(ctx,
		`INSERT INTO healing_attempts (`+attemptColumns+`)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`,
		a.ID, a.TestRef, string(a.Strategy), string(a.State), a.StartTime, a.EndTime,
		a.Success, a.TokensUsed, a.EstimatedCost, a.CacheHit, string(a.FailureType), a.Reason,
	)
	return err
}

// GetAttempt retrieves one attempt by ID, or nil when absent.
func (db *DB) GetAttempt(ctx context.Context, id string) (*healing.Attempt, error) {
	row := db.pool.QueryRow(ctx,
		`SELECT `+attemptColumns+` FROM healing_attempts WHERE id = $1`,
		id,
	)
	return scanAttempt(row)
}

// ListAttemptsParams filters the healing history.
type ListAttemptsParams struct {
	TestRef string
	Since   time.Time
	Limit   int
}

// ListAttempts returns healing attempts, newest first.
func (db *DB) ListAttempts(ctx context.Context, params ListAttemptsParams) ([]healing.Attempt, error) {
	if params.Limit <= 0 {
		params.Limit = 50
	}

	var rows pgx.Rows
	var err error
	if params.TestRef != "" {
		rows, err = db.pool.Query(ctx,
			`SELECT `+attemptColumns+` FROM healing_attempts
			 WHERE test_ref = $1 AND start_time >= $2
			 ORDER BY start_time DESC
			 LIMIT $3`,
			params.TestRef, params.Since, params.Limit,
		)
	} else {
		rows, err = db.pool.Query(ctx,
			`SELECT `+attemptColumns+` FROM healing_attempts
			 WHERE start_time >= $1
			 ORDER BY start_time DESC
			 LIMIT $2`,
			params.Since, params.Limit,
		)
	}
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var attempts []healing.Attempt
	for rows.Next() {
		var a healing.Attempt
		var strategy, state, failureType string
		if err := rows.Scan(
			&a.ID, &a.TestRef, &strategy, &state, &a.StartTime, &a.EndTime,
			&a.Success, &a.TokensUsed, &a.EstimatedCost, &a.CacheHit, &failureType, &a.Reason,
		); err != nil {
			return nil, err
		}
		a.Strategy = healing.Strategy(strategy)
		a.State = healing.State(state)
		a.FailureType = failure.Type(failureType)
		attempts = append(attempts, a)
	}
	return attempts, rows.Err()
}

// CountAttemptsSince returns how many attempts were recorded since the
// given time, split by success.
func (db *DB) CountAttemptsSince(ctx context.Context, since time.Time) (healed, failed int, err error) {
	err = db.pool.QueryRow(ctx,
		`SELECT
		   COUNT(*) FILTER (WHERE success),
		   COUNT(*) FILTER (WHERE NOT success)
		 FROM healing_attempts WHERE start_time >= $1`,
		since,
	).Scan(&healed, &failed)
	return healed, failed, err
}

func scanAttempt(row pgx.Row) (*healing.Attempt, error) {
	var a healing.Attempt
	var strategy, state, failureType string
	err := row.Scan(
		&a.ID, &a.TestRef, &strategy, &state, &a.StartTime, &a.EndTime,
		&a.Success, &a.TokensUsed, &a.EstimatedCost, &a.CacheHit, &failureType, &a.Reason,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	a.Strategy = healing.Strategy(strategy)
	a.State = healing.State(state)
	a.FailureType = failure.Type(failureType)
	return &a, nil
}
