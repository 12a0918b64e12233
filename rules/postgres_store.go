package rules

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "github.com/lib/pq"
)

// PostgresPackStore implements PackStore backed by a caller-owned rule_packs table
type PostgresPackStore struct {
	db *sql.DB
}

// NewPostgresPackStore creates a PostgreSQL-backed PackStore
func NewPostgresPackStore(db *sql.DB) *PostgresPackStore {
	return &PostgresPackStore{db: db}
}

// OpenPostgresPackStore opens a connection to databaseURL and verifies it
func OpenPostgresPackStore(ctx context.Context, databaseURL string) (*PostgresPackStore, error) {
	db, err := sql.Open("postgres", databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return NewPostgresPackStore(db), nil
}

// Close releases the underlying connection pool
func (s *PostgresPackStore) Close() error {
	return s.db.Close()
}

// Get retrieves a pack's raw content by name
func (s *PostgresPackStore) Get(ctx context.Context, name string) (string, error) {
	var content string
	err := s.db.QueryRowContext(ctx, `
		SELECT content
		FROM rule_packs
		WHERE name = $1
	`, name).Scan(&content)

	if errors.Is(err, sql.ErrNoRows) {
		return "", fmt.Errorf("%w: %s", ErrPackNotFound, name)
	}
	if err != nil {
		return "", fmt.Errorf("failed to get rule pack: %w", err)
	}

	return content, nil
}

// List returns all pack names ordered by name
func (s *PostgresPackStore) List(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT name
		FROM rule_packs
		ORDER BY name ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to list rule packs: %w", err)
	}
	defer rows.Close()

	var names []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, fmt.Errorf("failed to scan rule pack: %w", err)
		}
		names = append(names, name)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating rule packs: %w", err)
	}

	return names, nil
}

// Add inserts a new pack
func (s *PostgresPackStore) Add(ctx context.Context, name, content string) error {
	var exists bool
	err := s.db.QueryRowContext(ctx, `
		SELECT EXISTS(SELECT 1 FROM rule_packs WHERE name = $1)
	`, name).Scan(&exists)
	if err != nil {
		return fmt.Errorf("failed to check rule pack existence: %w", err)
	}
	if exists {
		return fmt.Errorf("rule pack %s already exists", name)
	}

	now := time.Now()
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO rule_packs (name, content, created_at, updated_at)
		VALUES ($1, $2, $3, $4)
	`, name, content, now, now)
	if err != nil {
		return fmt.Errorf("failed to insert rule pack: %w", err)
	}

	return nil
}

// Update replaces the content of an existing pack
func (s *PostgresPackStore) Update(ctx context.Context, name, content string) error {
	result, err := s.db.ExecContext(ctx, `
		UPDATE rule_packs
		SET content = $1, updated_at = $2
		WHERE name = $3
	`, content, time.Now(), name)
	if err != nil {
		return fmt.Errorf("failed to update rule pack: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return fmt.Errorf("%w: %s", ErrPackNotFound, name)
	}

	return nil
}

// Delete removes a pack
func (s *PostgresPackStore) Delete(ctx context.Context, name string) error {
	result, err := s.db.ExecContext(ctx, `
		DELETE FROM rule_packs
		WHERE name = $1
	`, name)
	if err != nil {
		return fmt.Errorf("failed to delete rule pack: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return fmt.Errorf("%w: %s", ErrPackNotFound, name)
	}

	return nil
}
