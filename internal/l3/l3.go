// Copyright (c) 2026 Nlaak Studios (https://nlaak.com)
// Author: Andrew Donelson (https://www.linkedin.com/in/andrew-donelson/)
//
// l3.go -- PostgreSQL persistence tier for per-user video state: one JSONB
// document per (user, block) pair, upserted on save and read back on cache
// miss, with an idempotent schema migration.

// Package l3 provides the PostgreSQL persistence tier adapter.
package l3

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// Table holds one row per (user_id, block_id).
const Table = "video_user_state"

// ErrNotFound is returned when no row matches.
var ErrNotFound = errors.New("l3: not found")

// DBTX is the subset of pgxpool.Pool used by Store; pgxmock pools satisfy it.
type DBTX interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Ping(ctx context.Context) error
	Close()
}

// Row is a stored state document.
type Row struct {
	UserID    string
	BlockID   string
	State     []byte
	UpdatedAt time.Time
}

// Store is the L3 PostgreSQL adapter.
type Store struct {
	db      DBTX
	replica DBTX
}

// New creates a Store. replica may be nil.
func New(db DBTX, replica DBTX) *Store {
	return &Store{db: db, replica: replica}
}

func (s *Store) readDB() DBTX {
	if s.replica != nil {
		return s.replica
	}
	return s.db
}

const migrateSQL = `CREATE TABLE IF NOT EXISTS ` + Table + ` (
	user_id    TEXT        NOT NULL,
	block_id   TEXT        NOT NULL,
	state      JSONB       NOT NULL DEFAULT '{}'::jsonb,
	updated_at TIMESTAMPTZ NOT NULL DEFAULT now(),
	PRIMARY KEY (user_id, block_id)
)`

// Migrate creates the state table if it does not exist.
func (s *Store) Migrate(ctx context.Context) error {
	if _, err := s.db.Exec(ctx, migrateSQL); err != nil {
		return fmt.Errorf("l3 migrate %s: %w", Table, err)
	}
	return nil
}

// Ping verifies the primary is reachable.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.Ping(ctx)
}

// Upsert writes the state document for a (user, block) pair.
func (s *Store) Upsert(ctx context.Context, r Row) error {
	_, err := s.db.Exec(ctx,
		`INSERT INTO `+Table+` (user_id, block_id, state, updated_at) VALUES ($1, $2, $3, $4)
		 ON CONFLICT (user_id, block_id) DO UPDATE SET state = EXCLUDED.state, updated_at = EXCLUDED.updated_at`,
		r.UserID, r.BlockID, r.State, r.UpdatedAt)
	if err != nil {
		return fmt.Errorf("l3 upsert %s/%s: %w", r.UserID, r.BlockID, err)
	}
	return nil
}

// Get reads one row, or returns ErrNotFound.
func (s *Store) Get(ctx context.Context, userID, blockID string) (Row, error) {
	r := Row{UserID: userID, BlockID: blockID}
	err := s.readDB().QueryRow(ctx,
		`SELECT state, updated_at FROM `+Table+` WHERE user_id = $1 AND block_id = $2`,
		userID, blockID).Scan(&r.State, &r.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return Row{}, ErrNotFound
	}
	if err != nil {
		return Row{}, fmt.Errorf("l3 get %s/%s: %w", userID, blockID, err)
	}
	return r, nil
}

// ListByUser returns every row stored for userID, ordered by block.
func (s *Store) ListByUser(ctx context.Context, userID string) ([]Row, error) {
	rows, err := s.readDB().Query(ctx,
		`SELECT block_id, state, updated_at FROM `+Table+` WHERE user_id = $1 ORDER BY block_id`,
		userID)
	if err != nil {
		return nil, fmt.Errorf("l3 list %s: %w", userID, err)
	}
	defer rows.Close()

	var out []Row
	for rows.Next() {
		r := Row{UserID: userID}
		if err := rows.Scan(&r.BlockID, &r.State, &r.UpdatedAt); err != nil {
			return nil, fmt.Errorf("l3 list scan: %w", err)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// Delete removes one row. Deleting a missing row is not an error.
func (s *Store) Delete(ctx context.Context, userID, blockID string) error {
	_, err := s.db.Exec(ctx, `DELETE FROM `+Table+` WHERE user_id = $1 AND block_id = $2`, userID, blockID)
	if err != nil {
		return fmt.Errorf("l3 delete %s/%s: %w", userID, blockID, err)
	}
	return nil
}

// Close shuts down the primary and replica pools.
func (s *Store) Close() {
	s.db.Close()
	if s.replica != nil {
		s.replica.Close()
	}
}
