package db

import (
	"context"
	_ "embed"
	"fmt"
)

//go:embed schema.sql
var schemaSQL string

// Session advisory lock held while the schema is applied. Namespaces 1-5
// belong to the event store.
const (
	MigrationLockNamespace int32 = 6
	migrationLockKey       int32 = 0
)

// Migrate applies the schema. It is idempotent and safe to run from several
// processes at once: concurrent callers apply the schema one after another.
func Migrate(ctx context.Context, pool *Pool) error {
	conn, err := pool.Acquire(ctx)
	if err != nil {
		return fmt.Errorf("acquire migration connection: %w", err)
	}
	defer conn.Release()

	if _, err := conn.Exec(ctx, `SELECT pg_advisory_lock($1, $2)`, MigrationLockNamespace, migrationLockKey); err != nil {
		return fmt.Errorf("acquire migration lock: %w", err)
	}
	defer func() {
		if _, err := conn.Exec(context.Background(), `SELECT pg_advisory_unlock($1, $2)`, MigrationLockNamespace, migrationLockKey); err != nil {
			// A session lock dies with its connection; never hand it back to the pool.
			_ = conn.Conn().Close(context.Background())
		}
	}()

	if _, err := conn.Exec(ctx, schemaSQL); err != nil {
		return fmt.Errorf("apply schema: %w", err)
	}
	return nil
}
