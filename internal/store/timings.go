// SPDX-License-Identifier: MIT

package store

import (
	"context"
	"database/sql"
	"time"

	"github.com/ManuGH/mediaflow/internal/model"
)

// AppendStageTiming opens a timing row for one attempt. Timing rows are
// append-only analytics; they are finalized once and never rewritten after.
func (s *Store) AppendStageTiming(ctx context.Context, t *model.StageTiming) error {
	meta, err := encJSON(t.Meta)
	if err != nil {
		return err
	}
	res, err := s.db.ExecContext(ctx, `
		INSERT INTO stage_timings
			(recording_id, stage_type, substep, attempt, started_at, status, error_message, meta)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		t.RecordingID, t.Stage, t.Substep, t.Attempt, encTime(t.StartedAt), t.Status, t.ErrorMessage, meta)
	if err != nil {
		return err
	}
	t.ID, err = res.LastInsertId()
	return err
}

// FinalizeStageTiming closes a timing row with its outcome. A row already
// finalized is left untouched.
func (s *Store) FinalizeStageTiming(ctx context.Context, id int64, completedAt time.Time,
	status model.StageState, errorMessage string) error {

	duration := 0.0
	var startedStr string
	if err := s.db.QueryRowContext(ctx,
		"SELECT started_at FROM stage_timings WHERE id = ?", id).Scan(&startedStr); err != nil {
		return err
	}
	if started, err := decTime(startedStr); err == nil {
		duration = completedAt.Sub(started).Seconds()
	}
	_, err := s.db.ExecContext(ctx, `
		UPDATE stage_timings
		SET completed_at = ?, duration_seconds = ?, status = ?, error_message = ?
		WHERE id = ? AND completed_at IS NULL`,
		encTime(completedAt), duration, status, errorMessage, id)
	return err
}

// ListStageTimings returns the attempt log of one recording.
func (s *Store) ListStageTimings(ctx context.Context, recordingID string) ([]*model.StageTiming, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, recording_id, stage_type, substep, attempt, started_at, completed_at,
			duration_seconds, status, error_message, meta
		FROM stage_timings WHERE recording_id = ? ORDER BY id`, recordingID)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var out []*model.StageTiming
	for rows.Next() {
		var t model.StageTiming
		var started, meta string
		var completed sql.NullString
		var duration sql.NullFloat64
		if err := rows.Scan(&t.ID, &t.RecordingID, &t.Stage, &t.Substep, &t.Attempt,
			&started, &completed, &duration, &t.Status, &t.ErrorMessage, &meta); err != nil {
			return nil, err
		}
		if t.StartedAt, err = decTime(started); err != nil {
			return nil, err
		}
		if t.CompletedAt, err = decTimePtr(completed); err != nil {
			return nil, err
		}
		if duration.Valid {
			d := duration.Float64
			t.DurationSecs = &d
		}
		if t.Meta, err = decJSON(meta); err != nil {
			return nil, err
		}
		out = append(out, &t)
	}
	return out, rows.Err()
}
