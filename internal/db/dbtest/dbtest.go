// Package dbtest connects tests to a real PostgreSQL. Tests are skipped unless
// DB_HOST_TEST is set. Rows are never truncated: every helper creates rows with
// fresh ids so packages can share one database concurrently.
package dbtest

import (
	"context"
	"os"
	"path/filepath"
	"runtime"
	"testing"
	"time"

	"github.com/gofrs/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/require"
	"github.com/vasiliy-maslov/online-shop/internal/config"
	"github.com/vasiliy-maslov/online-shop/internal/db"
)

func Config() config.PostgresConfig {
	return config.PostgresConfig{
		Host:            os.Getenv("DB_HOST_TEST"),
		Port:            env("DB_PORT_TEST", "5432"),
		User:            env("DB_USER_TEST", "postgres"),
		Password:        env("DB_PASSWORD_TEST", "123456"),
		DBName:          env("DB_NAME_TEST", "shop_test"),
		SSLMode:         env("DB_SSLMODE_TEST", "disable"),
		MaxConns:        5,
		MinConns:        1,
		MaxConnLifetime: time.Minute,
		MigrationsPath:  migrationsDir(),
	}
}

// Open returns a migrated database or skips the test.
func Open(t *testing.T) *db.Postgres {
	t.Helper()

	cfg := Config()
	if cfg.Host == "" {
		t.Skip("DB_HOST_TEST is not set")
	}

	require.NoError(t, db.ApplyMigrations(cfg), "failed to migrate test database")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	pg, err := db.New(ctx, cfg)
	require.NoError(t, err, "failed to connect to test database")
	t.Cleanup(pg.Close)

	return pg
}

func CreateProduct(t *testing.T, pool *pgxpool.Pool, name, price string, amount int) uuid.UUID {
	t.Helper()

	id := uuid.Must(uuid.NewV4())
	_, err := pool.Exec(context.Background(),
		`INSERT INTO products (id, name, price, amount_remaining) VALUES ($1, $2, $3::numeric, $4)`,
		id, name, price, amount)
	require.NoError(t, err)

	return id
}

func ProductStock(t *testing.T, pool *pgxpool.Pool, id uuid.UUID) int {
	t.Helper()

	var amount int
	err := pool.QueryRow(context.Background(), `SELECT amount_remaining FROM products WHERE id = $1`, id).Scan(&amount)
	require.NoError(t, err)

	return amount
}

// CreateUser inserts a user authenticating with the returned API token.
func CreateUser(t *testing.T, pool *pgxpool.Pool, isStaff bool) (uuid.UUID, string) {
	t.Helper()

	id := uuid.Must(uuid.NewV4())
	token := uuid.Must(uuid.NewV4()).String()
	_, err := pool.Exec(context.Background(),
		`INSERT INTO users (id, username, email, password_hash, api_token, is_staff) VALUES ($1, $2, $3, '', $4, $5)`,
		id, "user-"+id.String(), id.String()[:8]+"@example.com", token, isStaff)
	require.NoError(t, err)

	return id, token
}

func migrationsDir() string {
	_, file, _, _ := runtime.Caller(0)
	return filepath.Join(filepath.Dir(file), "..", "..", "..", "migrations")
}

func env(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
