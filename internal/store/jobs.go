// SPDX-License-Identifier: MIT

package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"time"

	"github.com/ManuGH/mediaflow/internal/model"
)

// CreateJob stores an automation job. The caller validates the schedule
// against the effective minimum interval before reaching the store.
func (s *Store) CreateJob(ctx context.Context, j *model.AutomationJob) error {
	cols, err := encJobBlobs(j)
	if err != nil {
		return err
	}
	j.CreatedAt = s.now()
	res, err := s.db.ExecContext(ctx, `
		INSERT INTO automation_jobs
			(user_id, name, template_ids, schedule, sync_config, filters, processing_override,
			 is_active, next_run_at, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		j.UserID, j.Name, cols.templateIDs, cols.schedule, cols.sync, cols.filters, cols.override,
		j.IsActive, encTimePtr(j.NextRunAt), encTime(j.CreatedAt))
	if isUniqueViolation(err) {
		return model.Conflict("job name already exists")
	}
	if err != nil {
		return err
	}
	j.ID, err = res.LastInsertId()
	return err
}

// UpdateJob rewrites a job row and its schedule projection.
func (s *Store) UpdateJob(ctx context.Context, j *model.AutomationJob) error {
	cols, err := encJobBlobs(j)
	if err != nil {
		return err
	}
	res, err := s.db.ExecContext(ctx, `
		UPDATE automation_jobs
		SET name = ?, template_ids = ?, schedule = ?, sync_config = ?, filters = ?,
			processing_override = ?, is_active = ?, next_run_at = ?
		WHERE id = ? AND user_id = ?`,
		j.Name, cols.templateIDs, cols.schedule, cols.sync, cols.filters, cols.override,
		j.IsActive, encTimePtr(j.NextRunAt), j.ID, j.UserID)
	if isUniqueViolation(err) {
		return model.Conflict("job name already exists")
	}
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return model.NotFound("job not found")
	}
	return nil
}

// DeleteJob removes the scheduling row.
func (s *Store) DeleteJob(ctx context.Context, userID string, id int64) error {
	res, err := s.db.ExecContext(ctx,
		"DELETE FROM automation_jobs WHERE id = ? AND user_id = ?", id, userID)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return model.NotFound("job not found")
	}
	return nil
}

// GetJob loads one job scoped to its owner.
func (s *Store) GetJob(ctx context.Context, userID string, id int64) (*model.AutomationJob, error) {
	row := s.db.QueryRowContext(ctx, jobSelect+" WHERE id = ? AND user_id = ?", id, userID)
	return scanJob(row)
}

// GetJobByID loads a job regardless of owner (scheduler internal).
func (s *Store) GetJobByID(ctx context.Context, id int64) (*model.AutomationJob, error) {
	row := s.db.QueryRowContext(ctx, jobSelect+" WHERE id = ?", id)
	return scanJob(row)
}

// ListJobs returns all jobs of a user.
func (s *Store) ListJobs(ctx context.Context, userID string) ([]*model.AutomationJob, error) {
	rows, err := s.db.QueryContext(ctx, jobSelect+" WHERE user_id = ? ORDER BY id", userID)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()
	return collectJobs(rows)
}

// ListDueJobs returns active jobs whose next_run_at has passed.
func (s *Store) ListDueJobs(ctx context.Context, now time.Time) ([]*model.AutomationJob, error) {
	rows, err := s.db.QueryContext(ctx, jobSelect+`
		WHERE is_active = 1 AND next_run_at IS NOT NULL AND next_run_at <= ?
		ORDER BY next_run_at`, encTime(now))
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()
	return collectJobs(rows)
}

// NextWakeTime returns the minimum next_run_at across active jobs, if any.
func (s *Store) NextWakeTime(ctx context.Context) (*time.Time, error) {
	var ns sql.NullString
	err := s.db.QueryRowContext(ctx,
		"SELECT MIN(next_run_at) FROM automation_jobs WHERE is_active = 1 AND next_run_at IS NOT NULL").Scan(&ns)
	if err != nil {
		return nil, err
	}
	return decTimePtr(ns)
}

// MarkJobRun stamps the enqueue bookkeeping: last_run_at, run_count and the
// recomputed next_run_at. The scheduler is the single writer of these fields.
func (s *Store) MarkJobRun(ctx context.Context, jobID int64, lastRun time.Time, nextRun *time.Time) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE automation_jobs
		SET last_run_at = ?, run_count = run_count + 1, next_run_at = ?
		WHERE id = ?`,
		encTime(lastRun), encTimePtr(nextRun), jobID)
	return err
}

// SetJobNextRun rewrites only next_run_at (skip paths).
func (s *Store) SetJobNextRun(ctx context.Context, jobID int64, nextRun *time.Time) error {
	_, err := s.db.ExecContext(ctx,
		"UPDATE automation_jobs SET next_run_at = ? WHERE id = ?", encTimePtr(nextRun), jobID)
	return err
}

type jobBlobs struct {
	templateIDs, schedule, sync, filters, override string
}

func encJobBlobs(j *model.AutomationJob) (jobBlobs, error) {
	var cols jobBlobs
	var err error
	if cols.templateIDs, err = encIDList(j.TemplateIDs); err != nil {
		return cols, err
	}
	b, err := json.Marshal(j.Schedule)
	if err != nil {
		return cols, err
	}
	cols.schedule = string(b)
	if b, err = json.Marshal(j.Sync); err != nil {
		return cols, err
	}
	cols.sync = string(b)
	if cols.filters, err = encJSON(j.Filters); err != nil {
		return cols, err
	}
	cols.override, err = encJSON(j.ProcessingOverride)
	return cols, err
}

const jobSelect = `
	SELECT id, user_id, name, template_ids, schedule, sync_config, filters, processing_override,
		is_active, last_run_at, next_run_at, run_count, created_at
	FROM automation_jobs`

func scanJob(row rowScanner) (*model.AutomationJob, error) {
	var j model.AutomationJob
	var templateIDs, schedule, syncCfg, filters, override, createdAt string
	var lastRun, nextRun sql.NullString
	err := row.Scan(&j.ID, &j.UserID, &j.Name, &templateIDs, &schedule, &syncCfg, &filters,
		&override, &j.IsActive, &lastRun, &nextRun, &j.RunCount, &createdAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, model.NotFound("job not found")
	}
	if err != nil {
		return nil, err
	}
	if j.TemplateIDs, err = decIDList(templateIDs); err != nil {
		return nil, err
	}
	if err = json.Unmarshal([]byte(schedule), &j.Schedule); err != nil {
		return nil, err
	}
	if err = json.Unmarshal([]byte(syncCfg), &j.Sync); err != nil {
		return nil, err
	}
	if j.Filters, err = decJSON(filters); err != nil {
		return nil, err
	}
	if j.ProcessingOverride, err = decJSON(override); err != nil {
		return nil, err
	}
	if j.LastRunAt, err = decTimePtr(lastRun); err != nil {
		return nil, err
	}
	if j.NextRunAt, err = decTimePtr(nextRun); err != nil {
		return nil, err
	}
	if j.CreatedAt, err = decTime(createdAt); err != nil {
		return nil, err
	}
	return &j, nil
}

func collectJobs(rows *sql.Rows) ([]*model.AutomationJob, error) {
	var out []*model.AutomationJob
	for rows.Next() {
		j, err := scanJob(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, j)
	}
	return out, rows.Err()
}
