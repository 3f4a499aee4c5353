// SPDX-License-Identifier: MIT

// Package store is the durable relational layer. All cross-entity invariants
// (uniqueness pairs, soft-delete visibility, stage-row serialization) are
// enforced here, not via object identity.
package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/ManuGH/mediaflow/internal/clock"
	"github.com/ManuGH/mediaflow/internal/model"
	"github.com/ManuGH/mediaflow/internal/persistence/sqlite"
)

// Store wraps the SQLite database.
type Store struct {
	db  *sql.DB
	clk clock.Clock
}

// Open opens (or creates) the database at dbPath and applies migrations.
func Open(dbPath string, clk clock.Clock) (*Store, error) {
	db, err := sqlite.Open(dbPath, sqlite.DefaultConfig())
	if err != nil {
		return nil, err
	}
	s := &Store{db: db, clk: clk}
	if err := s.migrate(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("store: migration failed: %w", err)
	}
	return s, nil
}

// Close releases the underlying pool.
func (s *Store) Close() error { return s.db.Close() }

// DB exposes the raw handle for read-only diagnostics.
func (s *Store) DB() *sql.DB { return s.db }

func (s *Store) now() time.Time { return s.clk.Now() }

// Now exposes the store's clock so callers stamping rows stay consistent
// with the store's own timestamps.
func (s *Store) Now() time.Time { return s.now() }

// withTx runs fn inside a transaction, rolling back on error.
func (s *Store) withTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()
	if err := fn(tx); err != nil {
		return err
	}
	return tx.Commit()
}

// isUniqueViolation detects SQLite uniqueness errors so callers can surface
// them as model.Conflict.
func isUniqueViolation(err error) bool {
	return err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed")
}

// --- column codec helpers ---

func encJSON(m model.JSON) (string, error) {
	if m == nil {
		return "{}", nil
	}
	b, err := json.Marshal(m)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

func decJSON(s string) (model.JSON, error) {
	if s == "" || s == "null" {
		return model.JSON{}, nil
	}
	var m model.JSON
	if err := json.Unmarshal([]byte(s), &m); err != nil {
		return nil, err
	}
	return m, nil
}

func encTime(t time.Time) string { return t.UTC().Format(time.RFC3339Nano) }

func encTimePtr(t *time.Time) any {
	if t == nil {
		return nil
	}
	return encTime(*t)
}

func decTime(s string) (time.Time, error) {
	return time.Parse(time.RFC3339Nano, s)
}

func decTimePtr(ns sql.NullString) (*time.Time, error) {
	if !ns.Valid || ns.String == "" {
		return nil, nil
	}
	t, err := decTime(ns.String)
	if err != nil {
		return nil, err
	}
	return &t, nil
}

func encInt64Ptr(n *int64) any {
	if n == nil {
		return nil
	}
	return *n
}

func decInt64Ptr(nn sql.NullInt64) *int64 {
	if !nn.Valid {
		return nil
	}
	v := nn.Int64
	return &v
}

func encIDList(ids []int64) (string, error) {
	b, err := json.Marshal(ids)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

func decIDList(s string) ([]int64, error) {
	if s == "" || s == "null" {
		return nil, nil
	}
	var ids []int64
	if err := json.Unmarshal([]byte(s), &ids); err != nil {
		return nil, err
	}
	return ids, nil
}
