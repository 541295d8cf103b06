package migrations

import (
	"context"
	"fmt"

	"raydium-swap-ingest/internal/storage/postgres"
)

// RunPostgres applies all embedded PostgreSQL files in lexical order and
// returns their names. Migrations are idempotent.
func RunPostgres(ctx context.Context, pool *postgres.Pool) ([]string, error) {
	ms, err := load(PostgresFS, "postgres")
	if err != nil {
		return nil, err
	}

	for _, m := range ms {
		if _, err := pool.Exec(ctx, m.sql); err != nil {
			return nil, fmt.Errorf("apply migration %s: %w", m.name, err)
		}
	}
	return names(ms), nil
}
