// SPDX-License-Identifier: MIT

package store

import (
	"context"
	"database/sql"
	"errors"

	"github.com/ManuGH/mediaflow/internal/model"
)

// ErrStageDone reports idempotent success: the stage already completed.
var ErrStageDone = errors.New("stage already completed")

// BeginStage is the serialization point of the pipeline. In one transaction it
//   - creates the stage row if missing (unique on recording+type),
//   - refuses a second runner while the row is IN_PROGRESS,
//   - refuses further retries past maxRetries,
//   - checks the concurrent-task quota and bumps the gauge,
//   - flips the row to IN_PROGRESS with started_at and retry_count+1.
//
// Admission and the gauge increment commit atomically with the state flip.
func (s *Store) BeginStage(ctx context.Context, userID, recordingID string, stage model.StageType,
	maxRetries int, concurrent model.Limit) (*model.ProcessingStage, error) {

	now := s.now()
	var out *model.ProcessingStage
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO processing_stages (recording_id, stage_type, state)
			VALUES (?, ?, ?)
			ON CONFLICT (recording_id, stage_type) DO NOTHING`,
			recordingID, stage, model.StagePending); err != nil {
			return err
		}

		row := tx.QueryRowContext(ctx, stageSelect+" WHERE recording_id = ? AND stage_type = ?",
			recordingID, stage)
		st, err := scanStage(row)
		if err != nil {
			return err
		}

		switch st.State {
		case model.StageCompleted, model.StageSkipped:
			out = st
			return ErrStageDone
		case model.StageInProgress:
			return model.Conflict("concurrent-stage: already in progress")
		case model.StageFailed:
			if maxRetries > 0 && st.RetryCount >= maxRetries {
				return model.FatalExternal("retries exhausted", nil)
			}
		}

		if !concurrent.Unlimited {
			var gauge int
			err := tx.QueryRowContext(ctx,
				"SELECT concurrent_tasks FROM quota_gauges WHERE user_id = ?", userID).Scan(&gauge)
			if err != nil && !errors.Is(err, sql.ErrNoRows) {
				return err
			}
			if !concurrent.Allows(gauge) {
				return model.QuotaDenied("concurrent task limit reached")
			}
		}
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO quota_gauges (user_id, concurrent_tasks, updated_at)
			VALUES (?, 1, ?)
			ON CONFLICT (user_id) DO UPDATE SET
				concurrent_tasks = concurrent_tasks + 1,
				updated_at = excluded.updated_at`,
			userID, encTime(now)); err != nil {
			return err
		}

		res, err := tx.ExecContext(ctx, `
			UPDATE processing_stages
			SET state = ?, started_at = ?, completed_at = NULL, retry_count = retry_count + 1
			WHERE recording_id = ? AND stage_type = ? AND state IN (?, ?)`,
			model.StageInProgress, encTime(now), recordingID, stage,
			model.StagePending, model.StageFailed)
		if err != nil {
			return err
		}
		if n, _ := res.RowsAffected(); n != 1 {
			return model.Invariant("stage row vanished during begin")
		}

		st.State = model.StageInProgress
		st.StartedAt = &now
		st.CompletedAt = nil
		st.RetryCount++
		out = st
		return nil
	})
	if errors.Is(err, ErrStageDone) {
		return out, ErrStageDone
	}
	if err != nil {
		return nil, err
	}
	return out, nil
}

// FinishStage finalizes a stage row and decrements the owner's gauge.
// The decrement always happens, even when the stage failed.
func (s *Store) FinishStage(ctx context.Context, userID, recordingID string, stage model.StageType,
	state model.StageState, failedReason, skipReason string, meta model.JSON) error {

	if !state.IsTerminal() {
		return model.Invariant("FinishStage requires a terminal stage state")
	}
	now := s.now()
	metaStr, err := encJSON(meta)
	if err != nil {
		return err
	}
	return s.withTx(ctx, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx, `
			UPDATE processing_stages
			SET state = ?, completed_at = ?, failed_reason = ?, skip_reason = ?, meta = ?
			WHERE recording_id = ? AND stage_type = ? AND state = ?`,
			state, encTime(now), failedReason, skipReason, metaStr,
			recordingID, stage, model.StageInProgress)
		if err != nil {
			return err
		}
		if n, _ := res.RowsAffected(); n != 1 {
			return model.Invariant("FinishStage on a stage that is not in progress")
		}
		_, err = tx.ExecContext(ctx, `
			UPDATE quota_gauges
			SET concurrent_tasks = MAX(0, concurrent_tasks - 1), updated_at = ?
			WHERE user_id = ?`, encTime(now), userID)
		return err
	})
}

// MarkStageSkipped records an admission-time skip without ever running the
// stage. No gauge was incremented, so none is released.
func (s *Store) MarkStageSkipped(ctx context.Context, recordingID string, stage model.StageType, reason string) error {
	now := s.now()
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO processing_stages (recording_id, stage_type, state, completed_at, skip_reason)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT (recording_id, stage_type) DO UPDATE SET
			state = excluded.state,
			completed_at = excluded.completed_at,
			skip_reason = excluded.skip_reason
		WHERE processing_stages.state IN (?, ?)`,
		recordingID, stage, model.StageSkipped, encTime(now), reason,
		model.StagePending, model.StageFailed)
	return err
}

// ResetStage rewinds a FAILED or SKIPPED stage row to PENDING with a fresh
// retry budget. Manual retry only; the pipeline never resets its own counters.
func (s *Store) ResetStage(ctx context.Context, recordingID string, stage model.StageType) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE processing_stages
		SET state = ?, retry_count = 0, started_at = NULL, completed_at = NULL,
			failed_reason = '', skip_reason = ''
		WHERE recording_id = ? AND stage_type = ? AND state IN (?, ?)`,
		model.StagePending, recordingID, stage, model.StageFailed, model.StageSkipped)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return model.NotFound("no failed stage to reset")
	}
	return nil
}

// GetStage loads one stage row.
func (s *Store) GetStage(ctx context.Context, recordingID string, stage model.StageType) (*model.ProcessingStage, error) {
	row := s.db.QueryRowContext(ctx, stageSelect+" WHERE recording_id = ? AND stage_type = ?",
		recordingID, stage)
	return scanStage(row)
}

// ListStages returns all stage rows of a recording in canonical order.
func (s *Store) ListStages(ctx context.Context, recordingID string) ([]*model.ProcessingStage, error) {
	rows, err := s.db.QueryContext(ctx, stageSelect+" WHERE recording_id = ?", recordingID)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	byType := make(map[model.StageType]*model.ProcessingStage)
	for rows.Next() {
		st, err := scanStage(rows)
		if err != nil {
			return nil, err
		}
		byType[st.Type] = st
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	out := make([]*model.ProcessingStage, 0, len(byType))
	for _, t := range model.StageOrder {
		if st, ok := byType[t]; ok {
			out = append(out, st)
		}
	}
	return out, nil
}

const stageSelect = `
	SELECT id, recording_id, stage_type, state, started_at, completed_at, retry_count,
		skip_reason, failed_reason, meta
	FROM processing_stages`

func scanStage(row rowScanner) (*model.ProcessingStage, error) {
	var st model.ProcessingStage
	var started, completed sql.NullString
	var meta string
	err := row.Scan(&st.ID, &st.RecordingID, &st.Type, &st.State, &started, &completed,
		&st.RetryCount, &st.SkipReason, &st.FailedReason, &meta)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, model.NotFound("stage not found")
	}
	if err != nil {
		return nil, err
	}
	if st.StartedAt, err = decTimePtr(started); err != nil {
		return nil, err
	}
	if st.CompletedAt, err = decTimePtr(completed); err != nil {
		return nil, err
	}
	if st.Meta, err = decJSON(meta); err != nil {
		return nil, err
	}
	return &st, nil
}
