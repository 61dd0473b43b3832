package db

import (
	"context"
	"os"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIntegrationMigrateConcurrently(t *testing.T) {
	url := os.Getenv("SEQLOG_TEST_DATABASE_URL")
	if url == "" {
		t.Skip("SEQLOG_TEST_DATABASE_URL not set")
	}
	ctx := context.Background()
	pool, err := Open(ctx, url, Options{MaxConns: 10})
	require.NoError(t, err)
	t.Cleanup(pool.Close)

	const runs = 6
	errs := make([]error, runs)
	var wg sync.WaitGroup
	for i := 0; i < runs; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			errs[i] = Migrate(ctx, pool)
		}(i)
	}
	wg.Wait()
	for _, err := range errs {
		assert.NoError(t, err)
	}

	// The lock is released once every run returned.
	conn, err := pool.Acquire(ctx)
	require.NoError(t, err)
	defer conn.Release()
	var got bool
	require.NoError(t, conn.QueryRow(ctx, `SELECT pg_try_advisory_lock($1, $2)`, MigrationLockNamespace, migrationLockKey).Scan(&got))
	assert.True(t, got)
	_, err = conn.Exec(ctx, `SELECT pg_advisory_unlock($1, $2)`, MigrationLockNamespace, migrationLockKey)
	require.NoError(t, err)
}
