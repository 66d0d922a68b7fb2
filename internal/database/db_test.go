package database

import (
	"context"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/kamilpajak/fring/internal/failure"
	"github.com/kamilpajak/fring/internal/healing"
)

var (
	pgOnce sync.Once
	pgURL  string
	pgErr  error
)

// databaseURL returns DATABASE_URL when set, otherwise starts a shared
// pgvector container for the package. Skips when neither is available.
func databaseURL(t *testing.T) string {
	t.Helper()
	if url := os.Getenv("DATABASE_URL"); url != "" {
		return url
	}

	pgOnce.Do(func() {
		ctx := context.Background()
		ctr, err := postgres.Run(ctx, "pgvector/pgvector:pg16",
			postgres.WithDatabase("fring"),
			postgres.WithUsername("fring"),
			postgres.WithPassword("fring"),
			testcontainers.WithWaitStrategy(
				wait.ForLog("database system is ready to accept connections").
					WithOccurrence(2).
					WithStartupTimeout(time.Minute)),
		)
		if err != nil {
			pgErr = err
			return
		}
		pgURL, pgErr = ctr.ConnectionString(ctx, "sslmode=disable")
	})
	if pgErr != nil {
		t.Skipf("DATABASE_URL not set and postgres container unavailable: %v", pgErr)
	}
	return pgURL
}

// testDB returns a migrated, connected DB.
func testDB(t *testing.T) *DB {
	t.Helper()
	url := databaseURL(t)
	require.NoError(t, Migrate(url))

	db, err := New(context.Background(), url)
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	return db
}

func TestMigrations(t *testing.T) {
	url := databaseURL(t)

	// Migrations must be idempotent.
	require.NoError(t, Migrate(url))
	require.NoError(t, Migrate(url))
}

func TestCacheStore_RoundTrip(t *testing.T) {
	db := testDB(t)
	store := db.Cache()
	ctx := context.Background()

	fp := "fp_" + uuid.New().String()
	now := time.Now()
	entry := &healing.Entry{
		Fingerprint: fp,
		SpecVersion: "v2",
		Decision: healing.Decision{
			Strategy: healing.StrategyRuleBased,
			Healable: true,
			Reason:   "field renamed",
			Patch: &healing.Patch{
				Summary: "rename product_name to productName",
				Edits:   []healing.Edit{{Find: "product_name", Replace: "productName"}},
			},
		},
		CreatedAt: now,
		ExpiresAt: now.Add(time.Hour),
	}
	require.NoError(t, store.PutEntry(ctx, entry))

	got, err := store.GetEntry(ctx, fp)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, fp, got.Fingerprint)
	assert.Equal(t, "v2", got.SpecVersion)
	assert.Equal(t, healing.StrategyRuleBased, got.Decision.Strategy)
	assert.True(t, got.Decision.Healable)
	require.NotNil(t, got.Decision.Patch)
	assert.Equal(t, entry.Decision.Patch.Edits, got.Decision.Patch.Edits)
	assert.WithinDuration(t, entry.ExpiresAt, got.ExpiresAt, time.Millisecond)
}

func TestCacheStore_MissReturnsNil(t *testing.T) {
	db := testDB(t)

	got, err := db.Cache().GetEntry(context.Background(), "no_such_fingerprint")
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestCacheStore_Upsert(t *testing.T) {
	db := testDB(t)
	store := db.Cache()
	ctx := context.Background()

	fp := "fp_" + uuid.New().String()
	now := time.Now()
	entry := &healing.Entry{
		Fingerprint: fp,
		SpecVersion: "v1",
		Decision:    healing.Decision{Strategy: healing.StrategyFallback, Healable: true},
		CreatedAt:   now,
		ExpiresAt:   now.Add(time.Hour),
	}
	require.NoError(t, store.PutEntry(ctx, entry))

	entry.SpecVersion = "v2"
	entry.Decision.Strategy = healing.StrategyAIPowered
	require.NoError(t, store.PutEntry(ctx, entry))

	got, err := store.GetEntry(ctx, fp)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "v2", got.SpecVersion)
	assert.Equal(t, healing.StrategyAIPowered, got.Decision.Strategy)
}

func TestCacheStore_DeleteSpecVersion(t *testing.T) {
	db := testDB(t)
	store := db.Cache()
	ctx := context.Background()

	version := "spec_" + uuid.New().String()[:8]
	now := time.Now()
	keep := &healing.Entry{
		Fingerprint: "fp_" + uuid.New().String(),
		SpecVersion: version + "_other",
		Decision:    healing.Decision{Strategy: healing.StrategyRuleBased, Healable: true},
		CreatedAt:   now,
		ExpiresAt:   now.Add(time.Hour),
	}
	drop := &healing.Entry{
		Fingerprint: "fp_" + uuid.New().String(),
		SpecVersion: version,
		Decision:    healing.Decision{Strategy: healing.StrategyRuleBased, Healable: true},
		CreatedAt:   now,
		ExpiresAt:   now.Add(time.Hour),
	}
	require.NoError(t, store.PutEntry(ctx, keep))
	require.NoError(t, store.PutEntry(ctx, drop))

	require.NoError(t, store.DeleteSpecVersion(ctx, version))

	got, err := store.GetEntry(ctx, drop.Fingerprint)
	require.NoError(t, err)
	assert.Nil(t, got)

	got, err = store.GetEntry(ctx, keep.Fingerprint)
	require.NoError(t, err)
	assert.NotNil(t, got)
}

func TestCacheStore_DeleteExpired(t *testing.T) {
	db := testDB(t)
	store := db.Cache()
	ctx := context.Background()

	now := time.Now()
	expired := &healing.Entry{
		Fingerprint: "fp_" + uuid.New().String(),
		SpecVersion: "v1",
		Decision:    healing.Decision{Strategy: healing.StrategyRuleBased, Healable: true},
		CreatedAt:   now.Add(-2 * time.Hour),
		ExpiresAt:   now.Add(-time.Hour),
	}
	fresh := &healing.Entry{
		Fingerprint: "fp_" + uuid.New().String(),
		SpecVersion: "v1",
		Decision:    healing.Decision{Strategy: healing.StrategyRuleBased, Healable: true},
		CreatedAt:   now,
		ExpiresAt:   now.Add(time.Hour),
	}
	require.NoError(t, store.PutEntry(ctx, expired))
	require.NoError(t, store.PutEntry(ctx, fresh))

	require.NoError(t, store.DeleteExpired(ctx))

	got, err := store.GetEntry(ctx, expired.Fingerprint)
	require.NoError(t, err)
	assert.Nil(t, got)

	got, err = store.GetEntry(ctx, fresh.Fingerprint)
	require.NoError(t, err)
	assert.NotNil(t, got)
}

func TestAttemptHistory(t *testing.T) {
	db := testDB(t)
	ctx := context.Background()

	ref := "tests/products.spec.ts::" + uuid.New().String()[:8]
	since := time.Now().Add(-time.Second)

	first := &healing.Attempt{
		ID:            uuid.New().String(),
		TestRef:       ref,
		Strategy:      healing.StrategyAIPowered,
		State:         healing.StateHealed,
		StartTime:     time.Now(),
		EndTime:       time.Now().Add(2 * time.Second),
		Success:       true,
		TokensUsed:    1500,
		EstimatedCost: 0.0009,
		FailureType:   failure.TypeAssertion,
		Reason:        "ai patch validated",
	}
	require.NoError(t, db.SaveAttempt(ctx, first))

	second := &healing.Attempt{
		ID:          uuid.New().String(),
		TestRef:     ref,
		Strategy:    healing.StrategyRuleBased,
		State:       healing.StateFailed,
		StartTime:   time.Now().Add(10 * time.Millisecond),
		EndTime:     time.Now().Add(20 * time.Millisecond),
		CacheHit:    true,
		FailureType: failure.TypeTimeout,
		Reason:      "patched test still fails",
	}
	require.NoError(t, db.SaveAttempt(ctx, second))

	got, err := db.GetAttempt(ctx, first.ID)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, ref, got.TestRef)
	assert.Equal(t, healing.StrategyAIPowered, got.Strategy)
	assert.Equal(t, healing.StateHealed, got.State)
	assert.True(t, got.Success)
	assert.Equal(t, 1500, got.TokensUsed)
	assert.InDelta(t, 0.0009, got.EstimatedCost, 1e-9)
	assert.Equal(t, failure.TypeAssertion, got.FailureType)

	missing, err := db.GetAttempt(ctx, uuid.New().String())
	require.NoError(t, err)
	assert.Nil(t, missing)

	attempts, err := db.ListAttempts(ctx, ListAttemptsParams{TestRef: ref, Since: since})
	require.NoError(t, err)
	require.Len(t, attempts, 2)
	// Newest first.
	assert.Equal(t, second.ID, attempts[0].ID)
	assert.Equal(t, first.ID, attempts[1].ID)
	assert.True(t, attempts[0].CacheHit)

	limited, err := db.ListAttempts(ctx, ListAttemptsParams{TestRef: ref, Since: since, Limit: 1})
	require.NoError(t, err)
	require.Len(t, limited, 1)
	assert.Equal(t, second.ID, limited[0].ID)

	none, err := db.ListAttempts(ctx, ListAttemptsParams{TestRef: ref + "_missing", Since: since})
	require.NoError(t, err)
	assert.Empty(t, none)
}

func TestCountAttemptsSince(t *testing.T) {
	db := testDB(t)
	ctx := context.Background()

	since := time.Now()
	base := time.Now().Add(time.Millisecond)
	for i, success := range []bool{true, true, false} {
		a := &healing.Attempt{
			ID:          uuid.New().String(),
			TestRef:     "tests/orders.spec.ts::" + uuid.New().String()[:8],
			Strategy:    healing.StrategyRuleBased,
			State:       healing.StateHealed,
			StartTime:   base.Add(time.Duration(i) * time.Millisecond),
			EndTime:     base.Add(time.Duration(i+1) * time.Millisecond),
			Success:     success,
			FailureType: failure.TypeAssertion,
		}
		if !success {
			a.State = healing.StateFailed
		}
		require.NoError(t, db.SaveAttempt(ctx, a))
	}

	healed, failed, err := db.CountAttemptsSince(ctx, since)
	require.NoError(t, err)
	assert.Equal(t, 2, healed)
	assert.Equal(t, 1, failed)
}

func TestSignatureSimilarity(t *testing.T) {
	db := testDB(t)
	ctx := context.Background()

	// Distance ordering is global, so start from a clean table.
	_, err := db.Pool().Exec(ctx, `TRUNCATE failure_signatures`)
	require.NoError(t, err)

	// Basis vectors far apart, plus one close to the first.
	exact := unitVector(0)
	near := unitVector(0)
	near[1] = 0.1
	far := unitVector(400)

	require.NoError(t, db.SaveSignature(ctx, "tests/a.spec.ts::get product", failure.TypeAssertion, "expected # received #", exact))
	require.NoError(t, db.SaveSignature(ctx, "tests/b.spec.ts::get product", failure.TypeAssertion, "expected # received #", near))
	require.NoError(t, db.SaveSignature(ctx, "tests/c.spec.ts::timeout", failure.TypeTimeout, "timeout #ms exceeded", far))

	similar, err := db.SimilarSignatures(ctx, exact, 2)
	require.NoError(t, err)
	require.Len(t, similar, 2)
	assert.Equal(t, "tests/a.spec.ts::get product", similar[0].TestRef)
	assert.InDelta(t, 0, similar[0].Distance, 1e-6)
	assert.Equal(t, "tests/b.spec.ts::get product", similar[1].TestRef)
	assert.LessOrEqual(t, similar[0].Distance, similar[1].Distance)
	assert.Equal(t, failure.TypeAssertion, similar[1].FailureType)
	assert.NotEqual(t, uuid.Nil, similar[0].ID)
}

func unitVector(dim int) []float32 {
	v := make([]float32, 768)
	v[dim] = 1
	return v
}
