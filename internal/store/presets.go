// SPDX-License-Identifier: MIT

package store

import (
	"context"
	"database/sql"
	"errors"

	"github.com/ManuGH/mediaflow/internal/model"
)

// CreateOutputPreset registers a named target binding, unique by (user, name).
func (s *Store) CreateOutputPreset(ctx context.Context, p *model.OutputPreset) error {
	meta, err := encJSON(p.Metadata)
	if err != nil {
		return err
	}
	p.CreatedAt = s.now()
	res, err := s.db.ExecContext(ctx, `
		INSERT INTO output_presets (user_id, name, platform, credential_handle, metadata, created_at)
		VALUES (?, ?, ?, ?, ?, ?)`,
		p.UserID, p.Name, p.Platform, p.CredentialHandle, meta, encTime(p.CreatedAt))
	if isUniqueViolation(err) {
		return model.Conflict("output preset name already exists")
	}
	if err != nil {
		return err
	}
	p.ID, err = res.LastInsertId()
	return err
}

// GetOutputPreset loads one preset scoped to its owner.
func (s *Store) GetOutputPreset(ctx context.Context, userID string, id int64) (*model.OutputPreset, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, user_id, name, platform, credential_handle, metadata, created_at
		FROM output_presets WHERE id = ? AND user_id = ?`, id, userID)
	return scanPreset(row)
}

// ListOutputPresets returns all presets of a user.
func (s *Store) ListOutputPresets(ctx context.Context, userID string) ([]*model.OutputPreset, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, user_id, name, platform, credential_handle, metadata, created_at
		FROM output_presets WHERE user_id = ? ORDER BY id`, userID)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var out []*model.OutputPreset
	for rows.Next() {
		p, err := scanPreset(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

func scanPreset(row rowScanner) (*model.OutputPreset, error) {
	var p model.OutputPreset
	var meta, createdAt string
	err := row.Scan(&p.ID, &p.UserID, &p.Name, &p.Platform, &p.CredentialHandle, &meta, &createdAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, model.NotFound("output preset not found")
	}
	if err != nil {
		return nil, err
	}
	if p.Metadata, err = decJSON(meta); err != nil {
		return nil, err
	}
	if p.CreatedAt, err = decTime(createdAt); err != nil {
		return nil, err
	}
	return &p, nil
}
