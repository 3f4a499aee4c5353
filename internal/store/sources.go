// SPDX-License-Identifier: MIT

package store

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/ManuGH/mediaflow/internal/model"
)

// CreateInputSource registers a named source binding.
func (s *Store) CreateInputSource(ctx context.Context, src *model.InputSource) error {
	cfg, err := encJSON(src.Config)
	if err != nil {
		return err
	}
	src.CreatedAt = s.now()
	res, err := s.db.ExecContext(ctx, `
		INSERT INTO input_sources (user_id, name, source_type, credential_handle, config, created_at)
		VALUES (?, ?, ?, ?, ?, ?)`,
		src.UserID, src.Name, src.SourceType, src.CredentialHandle, cfg, encTime(src.CreatedAt))
	if isUniqueViolation(err) {
		return model.Conflict("input source already exists")
	}
	if err != nil {
		return err
	}
	src.ID, err = res.LastInsertId()
	return err
}

// GetInputSource loads one source scoped to its owner.
func (s *Store) GetInputSource(ctx context.Context, userID string, id int64) (*model.InputSource, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, user_id, name, source_type, credential_handle, config, last_sync_at, last_sync_error, created_at
		FROM input_sources WHERE id = ? AND user_id = ?`, id, userID)
	return scanInputSource(row)
}

// ListInputSources returns all source bindings of a user.
func (s *Store) ListInputSources(ctx context.Context, userID string) ([]*model.InputSource, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, user_id, name, source_type, credential_handle, config, last_sync_at, last_sync_error, created_at
		FROM input_sources WHERE user_id = ? ORDER BY id`, userID)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var out []*model.InputSource
	for rows.Next() {
		src, err := scanInputSource(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, src)
	}
	return out, rows.Err()
}

// RecordSyncResult stamps last_sync_at and the last sync error on a source.
// Discovery itself never mutates other recordings through this path.
func (s *Store) RecordSyncResult(ctx context.Context, sourceID int64, at time.Time, syncErr string) error {
	_, err := s.db.ExecContext(ctx,
		"UPDATE input_sources SET last_sync_at = ?, last_sync_error = ? WHERE id = ?",
		encTime(at), syncErr, sourceID)
	return err
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanInputSource(row rowScanner) (*model.InputSource, error) {
	var src model.InputSource
	var cfg, createdAt string
	var lastSync sql.NullString
	err := row.Scan(&src.ID, &src.UserID, &src.Name, &src.SourceType, &src.CredentialHandle,
		&cfg, &lastSync, &src.LastSyncError, &createdAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, model.NotFound("input source not found")
	}
	if err != nil {
		return nil, err
	}
	if src.Config, err = decJSON(cfg); err != nil {
		return nil, err
	}
	if src.LastSyncAt, err = decTimePtr(lastSync); err != nil {
		return nil, err
	}
	if src.CreatedAt, err = decTime(createdAt); err != nil {
		return nil, err
	}
	return &src, nil
}
