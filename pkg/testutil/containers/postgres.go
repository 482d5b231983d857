//go:build integration

package containers

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"visitproof/internal/platform/config"
	"visitproof/internal/platform/database"
)

// PostgresContainer is a migrated Postgres reached through the same pool
// the server uses.
type PostgresContainer struct {
	Container testcontainers.Container
	DSN       string
	Pool      *database.Pool
	DB        *sql.DB
}

func startPostgres(ctx context.Context) (*PostgresContainer, error) {
	container, err := postgres.Run(ctx,
		"postgres:18-alpine",
		postgres.WithDatabase("visitproof_test"),
		postgres.WithUsername("visitproof"),
		postgres.WithPassword("visitproof_test_password"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(60*time.Second),
		),
	)
	if err != nil {
		return nil, fmt.Errorf("run postgres: %w", err)
	}

	dsn, err := container.ConnectionString(ctx, "sslmode=disable")
	if err != nil {
		_ = container.Terminate(ctx)
		return nil, fmt.Errorf("postgres connection string: %w", err)
	}

	pool, err := database.New(config.DatabaseConfig{
		URL:             dsn,
		MaxOpenConns:    20,
		MaxIdleConns:    5,
		ConnMaxLifetime: time.Minute,
	})
	if err != nil {
		_ = container.Terminate(ctx)
		return nil, err
	}
	if err := database.Migrate(ctx, pool.DB()); err != nil {
		_ = pool.Close()
		_ = container.Terminate(ctx)
		return nil, fmt.Errorf("migrate: %w", err)
	}

	return &PostgresContainer{
		Container: container,
		DSN:       dsn,
		Pool:      pool,
		DB:        pool.DB(),
	}, nil
}

// Reset empties the stamp tables between tests.
func (p *PostgresContainer) Reset(ctx context.Context) error {
	if _, err := p.DB.ExecContext(ctx, "TRUNCATE TABLE issued_credentials, stamp_locations CASCADE"); err != nil {
		return fmt.Errorf("reset stamp tables: %w", err)
	}
	return nil
}
