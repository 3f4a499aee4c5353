// SPDX-License-Identifier: MIT

package store

import (
	"context"
	"database/sql"
	"errors"

	"github.com/ManuGH/mediaflow/internal/model"
)

// EnsureTarget creates the target row for (recording, platform) if missing.
func (s *Store) EnsureTarget(ctx context.Context, recordingID string, platform model.Platform, presetID *int64) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO output_targets (recording_id, target_type, preset_id, state)
		VALUES (?, ?, ?, ?)
		ON CONFLICT (recording_id, target_type) DO NOTHING`,
		recordingID, platform, encInt64Ptr(presetID), model.TargetNotUploaded)
	return err
}

// GetTarget loads one target row.
func (s *Store) GetTarget(ctx context.Context, recordingID string, platform model.Platform) (*model.OutputTarget, error) {
	row := s.db.QueryRowContext(ctx, targetSelect+" WHERE recording_id = ? AND target_type = ?",
		recordingID, platform)
	return scanTarget(row)
}

// ListTargets returns all target rows of a recording.
func (s *Store) ListTargets(ctx context.Context, recordingID string) ([]*model.OutputTarget, error) {
	rows, err := s.db.QueryContext(ctx, targetSelect+" WHERE recording_id = ? ORDER BY id", recordingID)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var out []*model.OutputTarget
	for rows.Next() {
		t, err := scanTarget(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

// BeginTargetUpload flips a target to UPLOADING and counts the attempt.
// A target already UPLOADED is left alone (idempotent).
func (s *Store) BeginTargetUpload(ctx context.Context, recordingID string, platform model.Platform) (bool, error) {
	res, err := s.db.ExecContext(ctx, `
		UPDATE output_targets
		SET state = ?, attempts = attempts + 1
		WHERE recording_id = ? AND target_type = ? AND state IN (?, ?)`,
		model.TargetUploading, recordingID, platform, model.TargetNotUploaded, model.TargetFailed)
	if err != nil {
		return false, err
	}
	n, _ := res.RowsAffected()
	return n == 1, nil
}

// FinishTargetUpload finalizes a target row after an upload attempt.
func (s *Store) FinishTargetUpload(ctx context.Context, recordingID string, platform model.Platform,
	state model.TargetState, remoteID, remoteURL string, meta model.JSON) error {

	metaStr, err := encJSON(meta)
	if err != nil {
		return err
	}
	res, err := s.db.ExecContext(ctx, `
		UPDATE output_targets
		SET state = ?, remote_id = ?, remote_url = ?, meta = ?
		WHERE recording_id = ? AND target_type = ?`,
		state, remoteID, remoteURL, metaStr, recordingID, platform)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return model.NotFound("output target not found")
	}
	return nil
}

const targetSelect = `
	SELECT id, recording_id, target_type, preset_id, state, remote_id, remote_url, attempts, meta
	FROM output_targets`

func scanTarget(row rowScanner) (*model.OutputTarget, error) {
	var t model.OutputTarget
	var presetID sql.NullInt64
	var meta string
	err := row.Scan(&t.ID, &t.RecordingID, &t.TargetType, &presetID, &t.State,
		&t.RemoteID, &t.RemoteURL, &t.Attempts, &meta)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, model.NotFound("output target not found")
	}
	if err != nil {
		return nil, err
	}
	t.PresetID = decInt64Ptr(presetID)
	if t.Meta, err = decJSON(meta); err != nil {
		return nil, err
	}
	return &t, nil
}
