package profile

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
)

// PgPool is the part of *pgxpool.Pool the store uses.
type PgPool interface {
	Begin(ctx context.Context) (pgx.Tx, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// PostgresSchema creates the profiles table. cmd/migrate applies it.
const PostgresSchema = `CREATE TABLE IF NOT EXISTS profiles (
	id         TEXT PRIMARY KEY,
	doc        JSONB NOT NULL,
	updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
)`

// PostgresStore persists profile documents as JSONB rows.
type PostgresStore struct {
	pg PgPool
}

func NewPostgresStore(pg PgPool) *PostgresStore {
	return &PostgresStore{pg: pg}
}

func (s *PostgresStore) Get(ctx context.Context, id string) (Document, error) {
	var raw []byte
	err := s.pg.QueryRow(ctx, `SELECT doc FROM profiles WHERE id = $1`, id).Scan(&raw)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get profile %s: %w", id, err)
	}
	return Decode(raw)
}

// Upsert locks the row for the merge so concurrent writers of the same id
// apply one after the other. An absent id is first inserted as an empty
// document so there is always a row to lock.
func (s *PostgresStore) Upsert(ctx context.Context, id string, merge MergeFunc) error {
	tx, err := s.pg.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin upsert: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	_, err = tx.Exec(ctx, `
		INSERT INTO profiles (id, doc, updated_at) VALUES ($1, '{}'::jsonb, NOW())
		ON CONFLICT (id) DO NOTHING
	`, id)
	if err != nil {
		return fmt.Errorf("failed to reserve profile %s: %w", id, err)
	}

	var raw []byte
	if err := tx.QueryRow(ctx, `SELECT doc FROM profiles WHERE id = $1 FOR UPDATE`, id).Scan(&raw); err != nil {
		return fmt.Errorf("failed to read profile %s: %w", id, err)
	}
	existing, err := Decode(raw)
	if err != nil {
		return err
	}

	data, err := merge(existing).Encode()
	if err != nil {
		return err
	}
	_, err = tx.Exec(ctx, `UPDATE profiles SET doc = $2::jsonb, updated_at = NOW() WHERE id = $1`, id, string(data))
	if err != nil {
		return fmt.Errorf("failed to write profile %s: %w", id, err)
	}
	return tx.Commit(ctx)
}
