// SPDX-License-Identifier: MIT

package store

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/ManuGH/mediaflow/internal/clock"
	"github.com/ManuGH/mediaflow/internal/model"
)

// CreateRecording inserts a recording plus its source metadata in one
// transaction. It enforces the per-user (source_type, source_key) uniqueness
// across non-hard-deleted recordings.
func (s *Store) CreateRecording(ctx context.Context, rec *model.Recording, meta *model.SourceMetadata) error {
	if rec.ID == "" {
		rec.ID = clock.NewID(s.clk)
	}
	if rec.Status == "" {
		rec.Status = model.StatusInitialized
	}
	rec.DeleteState = model.DeleteActive
	rec.RetryCount = 0
	now := s.now()
	rec.CreatedAt = now
	rec.UpdatedAt = now

	prefs, err := encJSON(rec.Preferences)
	if err != nil {
		return err
	}
	output, err := encJSON(rec.Output)
	if err != nil {
		return err
	}

	return s.withTx(ctx, func(tx *sql.Tx) error {
		if meta != nil {
			var n int
			err := tx.QueryRowContext(ctx, `
				SELECT COUNT(*)
				FROM source_metadata m
				JOIN recordings r ON r.id = m.recording_id
				WHERE r.user_id = ? AND m.source_type = ? AND m.source_key = ?
					AND r.delete_state != ?`,
				rec.UserID, meta.SourceType, meta.SourceKey, model.DeleteHardDeleted).Scan(&n)
			if err != nil {
				return err
			}
			if n > 0 {
				return model.Conflict("recording already exists for this source key")
			}
		}

		_, err := tx.ExecContext(ctx, `
			INSERT INTO recordings
				(id, user_id, input_source_id, template_id, display_name, start_time, duration_seconds,
				 status, is_mapped, blank_record, delete_state, preferences, output_config,
				 created_at, updated_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			rec.ID, rec.UserID, encInt64Ptr(rec.InputSourceID), encInt64Ptr(rec.TemplateID),
			rec.DisplayName, encTime(rec.StartTime), rec.DurationSecs,
			rec.Status, rec.IsMapped, rec.BlankRecord, rec.DeleteState, prefs, output,
			encTime(rec.CreatedAt), encTime(rec.UpdatedAt))
		if err != nil {
			return err
		}

		if meta != nil {
			raw, err := encJSON(meta.Raw)
			if err != nil {
				return err
			}
			res, err := tx.ExecContext(ctx, `
				INSERT INTO source_metadata (recording_id, source_type, source_key, raw)
				VALUES (?, ?, ?, ?)`,
				rec.ID, meta.SourceType, meta.SourceKey, raw)
			if err != nil {
				return err
			}
			meta.RecordingID = rec.ID
			meta.ID, _ = res.LastInsertId()
		}
		return nil
	})
}

// GetRecording loads a recording. Hard-deleted rows are never returned here.
func (s *Store) GetRecording(ctx context.Context, id string) (*model.Recording, error) {
	row := s.db.QueryRowContext(ctx, recordingSelect+" WHERE id = ? AND delete_state != ?",
		id, model.DeleteHardDeleted)
	return scanRecording(row)
}

// GetRecordingAdmin loads a recording including hard-deleted rows.
func (s *Store) GetRecordingAdmin(ctx context.Context, id string) (*model.Recording, error) {
	row := s.db.QueryRowContext(ctx, recordingSelect+" WHERE id = ?", id)
	return scanRecording(row)
}

// FindBySourceKey resolves the recording owning (source_type, source_key) for
// a user, regardless of delete state; discovery decides what a hard-deleted
// hit means.
func (s *Store) FindBySourceKey(ctx context.Context, userID string, st model.SourceType, key string) (*model.Recording, error) {
	row := s.db.QueryRowContext(ctx, recordingSelect+`
		WHERE id = (
			SELECT m.recording_id FROM source_metadata m
			JOIN recordings r ON r.id = m.recording_id
			WHERE r.user_id = ? AND m.source_type = ? AND m.source_key = ?
			ORDER BY r.created_at DESC LIMIT 1
		)`, userID, st, key)
	rec, err := scanRecording(row)
	if model.IsKind(err, model.KindNotFound) {
		return nil, model.NotFound("no recording for source key")
	}
	return rec, err
}

// UpdateRecording applies mutate inside a transaction using read-modify-write.
// The aggregate status must be rederived by the caller before writing; the
// store persists whatever the mutated struct carries.
func (s *Store) UpdateRecording(ctx context.Context, id string, mutate func(*model.Recording) error) (*model.Recording, error) {
	var out *model.Recording
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		row := tx.QueryRowContext(ctx, recordingSelect+" WHERE id = ? AND delete_state != ?",
			id, model.DeleteHardDeleted)
		rec, err := scanRecording(row)
		if err != nil {
			return err
		}
		if err := mutate(rec); err != nil {
			return err
		}
		rec.UpdatedAt = s.now()

		prefs, err := encJSON(rec.Preferences)
		if err != nil {
			return err
		}
		output, err := encJSON(rec.Output)
		if err != nil {
			return err
		}
		_, err = tx.ExecContext(ctx, `
			UPDATE recordings SET
				input_source_id = ?, template_id = ?, display_name = ?, start_time = ?,
				duration_seconds = ?, status = ?, is_mapped = ?, blank_record = ?,
				delete_state = ?, soft_deleted_at = ?, hard_delete_at = ?, deletion_reason = ?,
				expire_at = ?, on_pause = ?, pause_requested_at = ?,
				local_video_path = ?, processed_video_path = ?, processed_audio_path = ?,
				transcription_dir = ?, failed = ?, failed_reason = ?, failed_at_stage = ?,
				retry_count = ?, pipeline_started_at = ?, pipeline_completed_at = ?,
				pipeline_duration_seconds = ?, preferences = ?, output_config = ?, updated_at = ?
			WHERE id = ?`,
			encInt64Ptr(rec.InputSourceID), encInt64Ptr(rec.TemplateID), rec.DisplayName,
			encTime(rec.StartTime), rec.DurationSecs, rec.Status, rec.IsMapped, rec.BlankRecord,
			rec.DeleteState, encTimePtr(rec.SoftDeletedAt), encTimePtr(rec.HardDeleteAt),
			rec.DeletionReason, encTimePtr(rec.ExpireAt), rec.OnPause, encTimePtr(rec.PauseRequestedAt),
			rec.LocalVideoPath, rec.ProcessedVideoPath, rec.ProcessedAudioPath, rec.TranscriptionDir,
			rec.Failed, rec.FailedReason, rec.FailedAtStage, rec.RetryCount,
			encTimePtr(rec.PipelineStartedAt), encTimePtr(rec.PipelineCompletedAt),
			rec.PipelineDurationSecs, prefs, output, encTime(rec.UpdatedAt), rec.ID)
		if err != nil {
			return err
		}
		out = rec
		return nil
	})
	return out, err
}

// MarkFailure records a stage failure on the recording and rolls the status
// back to the given value. A paused recording is unpaused so the failure is
// visible as the stopping reason. Rolling back to a terminal status closes
// the pipeline timing.
func (s *Store) MarkFailure(ctx context.Context, id, reason, atStage string, rollbackTo model.RecordingStatus) error {
	now := s.now()
	_, err := s.UpdateRecording(ctx, id, func(rec *model.Recording) error {
		rec.Failed = true
		rec.FailedReason = reason
		rec.FailedAtStage = atStage
		rec.Status = rollbackTo
		rec.OnPause = false
		rec.PauseRequestedAt = nil
		if rollbackTo.IsTerminal() {
			rec.PipelineCompletedAt = &now
			if rec.PipelineStartedAt != nil {
				rec.PipelineDurationSecs = now.Sub(*rec.PipelineStartedAt).Seconds()
			}
		}
		return nil
	})
	return err
}

// SoftDeleteRecording marks a recording soft-deleted and schedules the hard
// delete. Files are purged by the janitor, not inline.
func (s *Store) SoftDeleteRecording(ctx context.Context, id, reason string, ttl time.Duration) error {
	now := s.now()
	hardAt := now.Add(ttl)
	_, err := s.UpdateRecording(ctx, id, func(rec *model.Recording) error {
		if rec.DeleteState == model.DeleteSoftDeleted {
			return nil // idempotent
		}
		rec.DeleteState = model.DeleteSoftDeleted
		rec.SoftDeletedAt = &now
		rec.HardDeleteAt = &hardAt
		rec.DeletionReason = reason
		return nil
	})
	return err
}

// MarkHardDeleted flips a soft-deleted recording to hard_deleted after its
// files are purged. The row itself is removed later by PurgeHardDeletedRows.
func (s *Store) MarkHardDeleted(ctx context.Context, id string) error {
	_, err := s.db.ExecContext(ctx,
		"UPDATE recordings SET delete_state = ?, updated_at = ? WHERE id = ?",
		model.DeleteHardDeleted, encTime(s.now()), id)
	return err
}

// PurgeHardDeletedRows physically removes hard-deleted rows and their owned
// children (stages, targets, metadata, timings cascade).
func (s *Store) PurgeHardDeletedRows(ctx context.Context, before time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx,
		"DELETE FROM recordings WHERE delete_state = ? AND updated_at <= ?",
		model.DeleteHardDeleted, encTime(before))
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// ListActiveForOrchestration returns active, unpaused recordings whose
// aggregate status still has pipeline work ahead of it.
func (s *Store) ListActiveForOrchestration(ctx context.Context, limit int) ([]*model.Recording, error) {
	rows, err := s.db.QueryContext(ctx, recordingSelect+`
		WHERE delete_state = ? AND on_pause = 0 AND failed = 0
			AND status IN (?, ?, ?, ?, ?, ?)
		ORDER BY created_at LIMIT ?`,
		model.DeleteActive,
		model.StatusInitialized, model.StatusDownloading, model.StatusDownloaded,
		model.StatusProcessing, model.StatusProcessed, model.StatusUploading,
		limit)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()
	return collectRecordings(rows)
}

// ListSoftDeletedDue returns soft-deleted recordings whose hard_delete_at has
// passed.
func (s *Store) ListSoftDeletedDue(ctx context.Context, now time.Time) ([]*model.Recording, error) {
	rows, err := s.db.QueryContext(ctx, recordingSelect+`
		WHERE delete_state = ? AND hard_delete_at IS NOT NULL AND hard_delete_at <= ?`,
		model.DeleteSoftDeleted, encTime(now))
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()
	return collectRecordings(rows)
}

// ListInitializedBefore returns idle INITIALIZED recordings created before the
// cutoff, for TTL expiry.
func (s *Store) ListInitializedBefore(ctx context.Context, cutoff time.Time) ([]*model.Recording, error) {
	rows, err := s.db.QueryContext(ctx, recordingSelect+`
		WHERE delete_state = ? AND status = ? AND created_at < ?`,
		model.DeleteActive, model.StatusInitialized, encTime(cutoff))
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()
	return collectRecordings(rows)
}

// ListRecordingsByUser returns a user's non-hard-deleted recordings.
func (s *Store) ListRecordingsByUser(ctx context.Context, userID string) ([]*model.Recording, error) {
	rows, err := s.db.QueryContext(ctx, recordingSelect+`
		WHERE user_id = ? AND delete_state != ? ORDER BY created_at DESC`,
		userID, model.DeleteHardDeleted)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()
	return collectRecordings(rows)
}

// GetSourceMetadata loads the adapter identity of a recording.
func (s *Store) GetSourceMetadata(ctx context.Context, recordingID string) (*model.SourceMetadata, error) {
	row := s.db.QueryRowContext(ctx,
		"SELECT id, recording_id, source_type, source_key, raw FROM source_metadata WHERE recording_id = ?",
		recordingID)
	var m model.SourceMetadata
	var raw string
	err := row.Scan(&m.ID, &m.RecordingID, &m.SourceType, &m.SourceKey, &raw)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, model.NotFound("source metadata not found")
	}
	if err != nil {
		return nil, err
	}
	if m.Raw, err = decJSON(raw); err != nil {
		return nil, err
	}
	return &m, nil
}

const recordingSelect = `
	SELECT id, user_id, input_source_id, template_id, display_name, start_time, duration_seconds,
		status, is_mapped, blank_record, delete_state, soft_deleted_at, hard_delete_at,
		deletion_reason, expire_at, on_pause, pause_requested_at,
		local_video_path, processed_video_path, processed_audio_path, transcription_dir,
		failed, failed_reason, failed_at_stage, retry_count,
		pipeline_started_at, pipeline_completed_at, pipeline_duration_seconds,
		preferences, output_config, created_at, updated_at
	FROM recordings`

func scanRecording(row rowScanner) (*model.Recording, error) {
	var rec model.Recording
	var inputSourceID, templateID sql.NullInt64
	var startTime, createdAt, updatedAt, prefs, output string
	var softDeletedAt, hardDeleteAt, expireAt, pauseRequestedAt, pipeStarted, pipeCompleted sql.NullString

	err := row.Scan(&rec.ID, &rec.UserID, &inputSourceID, &templateID, &rec.DisplayName,
		&startTime, &rec.DurationSecs, &rec.Status, &rec.IsMapped, &rec.BlankRecord,
		&rec.DeleteState, &softDeletedAt, &hardDeleteAt, &rec.DeletionReason, &expireAt,
		&rec.OnPause, &pauseRequestedAt,
		&rec.LocalVideoPath, &rec.ProcessedVideoPath, &rec.ProcessedAudioPath, &rec.TranscriptionDir,
		&rec.Failed, &rec.FailedReason, &rec.FailedAtStage, &rec.RetryCount,
		&pipeStarted, &pipeCompleted, &rec.PipelineDurationSecs,
		&prefs, &output, &createdAt, &updatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, model.NotFound("recording not found")
	}
	if err != nil {
		return nil, err
	}

	rec.InputSourceID = decInt64Ptr(inputSourceID)
	rec.TemplateID = decInt64Ptr(templateID)
	if rec.StartTime, err = decTime(startTime); err != nil {
		return nil, err
	}
	if rec.SoftDeletedAt, err = decTimePtr(softDeletedAt); err != nil {
		return nil, err
	}
	if rec.HardDeleteAt, err = decTimePtr(hardDeleteAt); err != nil {
		return nil, err
	}
	if rec.ExpireAt, err = decTimePtr(expireAt); err != nil {
		return nil, err
	}
	if rec.PauseRequestedAt, err = decTimePtr(pauseRequestedAt); err != nil {
		return nil, err
	}
	if rec.PipelineStartedAt, err = decTimePtr(pipeStarted); err != nil {
		return nil, err
	}
	if rec.PipelineCompletedAt, err = decTimePtr(pipeCompleted); err != nil {
		return nil, err
	}
	if rec.Preferences, err = decJSON(prefs); err != nil {
		return nil, err
	}
	if rec.Output, err = decJSON(output); err != nil {
		return nil, err
	}
	if rec.CreatedAt, err = decTime(createdAt); err != nil {
		return nil, err
	}
	if rec.UpdatedAt, err = decTime(updatedAt); err != nil {
		return nil, err
	}
	return &rec, nil
}

func collectRecordings(rows *sql.Rows) ([]*model.Recording, error) {
	var out []*model.Recording
	for rows.Next() {
		rec, err := scanRecording(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}
