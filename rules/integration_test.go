//go:build integration
// +build integration

package rules_test

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/liamcoop/rulepack/rules"

	_ "github.com/lib/pq"
)

// setupTestDB starts a PostgreSQL container, applies the migrations and returns a connection
func setupTestDB(t *testing.T) *sql.DB {
	ctx := context.Background()

	req := testcontainers.ContainerRequest{
		Image:        "postgres:15-alpine",
		ExposedPorts: []string{"5432/tcp"},
		Env: map[string]string{
			"POSTGRES_USER":     "test",
			"POSTGRES_PASSWORD": "test",
			"POSTGRES_DB":       "rulepack_test",
		},
		WaitingFor: wait.ForLog("database system is ready to accept connections").
			WithOccurrence(2).
			WithStartupTimeout(60 * time.Second),
	}

	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	require.NoError(t, err, "failed to start PostgreSQL container")
	t.Cleanup(func() { _ = container.Terminate(ctx) })

	host, err := container.Host(ctx)
	require.NoError(t, err)
	port, err := container.MappedPort(ctx, "5432")
	require.NoError(t, err)

	databaseURL := fmt.Sprintf("postgres://test:test@%s:%s/rulepack_test?sslmode=disable", host, port.Port())

	// Wait for connection to be available
	var db *sql.DB
	for i := 0; i < 30; i++ {
		db, err = sql.Open("postgres", databaseURL)
		if err == nil {
			if err = db.Ping(); err == nil {
				break
			}
		}
		time.Sleep(time.Second)
	}
	require.NoError(t, err, "failed to connect to database")
	t.Cleanup(func() { db.Close() })

	migrationsPath, err := filepath.Abs(filepath.Join("..", "migrations"))
	require.NoError(t, err)

	m, err := migrate.New("file://"+migrationsPath, databaseURL)
	require.NoError(t, err)
	defer m.Close()
	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		t.Fatalf("failed to run migrations: %v", err)
	}

	return db
}

func TestPostgresPackStore_BasicCRUD(t *testing.T) {
	ctx := context.Background()
	store := rules.NewPostgresPackStore(setupTestDB(t))

	require.NoError(t, store.Add(ctx, "core", "R1\npattern=foo"))

	content, err := store.Get(ctx, "core")
	require.NoError(t, err)
	assert.Equal(t, "R1\npattern=foo", content)

	require.NoError(t, store.Update(ctx, "core", "R1\npattern=bar"))
	content, err = store.Get(ctx, "core")
	require.NoError(t, err)
	assert.Equal(t, "R1\npattern=bar", content)

	require.NoError(t, store.Delete(ctx, "core"))
	_, err = store.Get(ctx, "core")
	assert.ErrorIs(t, err, rules.ErrPackNotFound)
}

func TestPostgresPackStore_Duplicate(t *testing.T) {
	ctx := context.Background()
	store := rules.NewPostgresPackStore(setupTestDB(t))

	require.NoError(t, store.Add(ctx, "core", "R1"))
	assert.Error(t, store.Add(ctx, "core", "R2"))
}

func TestPostgresPackStore_MissingPacks(t *testing.T) {
	ctx := context.Background()
	store := rules.NewPostgresPackStore(setupTestDB(t))

	assert.ErrorIs(t, store.Update(ctx, "nope", "R1"), rules.ErrPackNotFound)
	assert.ErrorIs(t, store.Delete(ctx, "nope"), rules.ErrPackNotFound)
}

func TestPostgresPackStore_ListOrdering(t *testing.T) {
	ctx := context.Background()
	store := rules.NewPostgresPackStore(setupTestDB(t))

	for _, name := range []string{"zeta", "alpha", "mid"} {
		require.NoError(t, store.Add(ctx, name, "R1"))
	}

	names, err := store.List(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"alpha", "mid", "zeta"}, names)
}

func TestPipeline_WithPostgresNamedStore(t *testing.T) {
	ctx := context.Background()
	store := rules.NewPostgresPackStore(setupTestDB(t))
	require.NoError(t, store.Add(ctx, "core", "R1\npattern=foo\n\nR2\npattern=bar"))

	resolver := rules.NewResolver(rules.ResolverConfig{Named: store, Timeout: 5 * time.Second})
	p := rules.NewPipeline(resolver, nil)

	out, err := p.ResolveAndProcess(ctx, "core", "name", "summarize")
	require.NoError(t, err)
	assert.Equal(t, "Processed rule pack: core [name] 2 rules: R1, R2", out)

	_, err = p.ResolveAndProcess(ctx, "missing", "name", "summarize")
	assert.ErrorIs(t, err, rules.ErrSourceNotFound)
}
