// SPDX-License-Identifier: MIT

package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"

	"github.com/ManuGH/mediaflow/internal/model"
)

func encQuotaSet(q model.QuotaSet) (string, error) {
	b, err := json.Marshal(q)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

func decQuotaSet(s string) (model.QuotaSet, error) {
	var q model.QuotaSet
	if s == "" || s == "null" {
		return q, nil
	}
	err := json.Unmarshal([]byte(s), &q)
	return q, err
}

// GetUsage returns the counter row for (user, period). A missing row reads as
// zero; rows are created lazily on first increment.
func (s *Store) GetUsage(ctx context.Context, userID string, period int) (*model.QuotaUsage, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT user_id, period, recordings_count, overage_cost_cents, updated_at
		FROM quota_usage WHERE user_id = ? AND period = ?`, userID, period)
	var u model.QuotaUsage
	var updatedAt string
	err := row.Scan(&u.UserID, &u.Period, &u.RecordingsCount, &u.OverageCostCents, &updatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return &model.QuotaUsage{UserID: userID, Period: period}, nil
	}
	if err != nil {
		return nil, err
	}
	if u.UpdatedAt, err = decTime(updatedAt); err != nil {
		return nil, err
	}
	return &u, nil
}

// TrackRecordingCreated atomically adds one to the current period row,
// creating it if absent. Two concurrent increments observe monotonic results.
func (s *Store) TrackRecordingCreated(ctx context.Context, userID string, period int) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO quota_usage (user_id, period, recordings_count, updated_at)
		VALUES (?, ?, 1, ?)
		ON CONFLICT (user_id, period) DO UPDATE SET
			recordings_count = recordings_count + 1,
			updated_at = excluded.updated_at`,
		userID, period, encTime(s.now()))
	return err
}

// ConcurrentTasks reads the per-user gauge. Missing rows read as zero.
func (s *Store) ConcurrentTasks(ctx context.Context, userID string) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx,
		"SELECT concurrent_tasks FROM quota_gauges WHERE user_id = ?", userID).Scan(&n)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, nil
	}
	return n, err
}

// AdjustConcurrentTasks atomically applies a delta to the gauge, clamping at
// zero. The gauge is keyed per user only; concurrency is a here-and-now
// quantity and must not reset across period boundaries.
func (s *Store) AdjustConcurrentTasks(ctx context.Context, userID string, delta int) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx, `
		INSERT INTO quota_gauges (user_id, concurrent_tasks, updated_at)
		VALUES (?, MAX(0, ?), ?)
		ON CONFLICT (user_id) DO UPDATE SET
			concurrent_tasks = MAX(0, concurrent_tasks + ?),
			updated_at = excluded.updated_at
		RETURNING concurrent_tasks`,
		userID, delta, encTime(s.now()), delta).Scan(&n)
	return n, err
}

// SetConcurrentTasks writes an absolute gauge value, clamped at zero.
func (s *Store) SetConcurrentTasks(ctx context.Context, userID string, n int) error {
	if n < 0 {
		n = 0
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO quota_gauges (user_id, concurrent_tasks, updated_at)
		VALUES (?, ?, ?)
		ON CONFLICT (user_id) DO UPDATE SET
			concurrent_tasks = excluded.concurrent_tasks,
			updated_at = excluded.updated_at`,
		userID, n, encTime(s.now()))
	return err
}

// AddOverageCost accrues overage cents on the given period row.
func (s *Store) AddOverageCost(ctx context.Context, userID string, period int, cents int64) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO quota_usage (user_id, period, overage_cost_cents, updated_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT (user_id, period) DO UPDATE SET
			overage_cost_cents = overage_cost_cents + excluded.overage_cost_cents,
			updated_at = excluded.updated_at`,
		userID, period, cents, encTime(s.now()))
	return err
}

// CountActiveJobs counts a user's active automation jobs, for quota admission.
func (s *Store) CountActiveJobs(ctx context.Context, userID string) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM automation_jobs WHERE user_id = ? AND is_active = 1", userID).Scan(&n)
	return n, err
}
