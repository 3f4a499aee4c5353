// SPDX-License-Identifier: MIT

package store

import (
	"context"
	"database/sql"
	"errors"

	"github.com/ManuGH/mediaflow/internal/clock"
	"github.com/ManuGH/mediaflow/internal/model"
)

// CreateUser registers a tenant, allocating its ULID and durable slug.
// Slugs are monotonic and never reused.
func (s *Store) CreateUser(ctx context.Context, u *model.User) error {
	if u.ID == "" {
		u.ID = clock.NewID(s.clk)
	}
	if u.Timezone == "" {
		u.Timezone = "UTC"
	}
	if u.Role == "" {
		u.Role = "user"
	}
	u.CreatedAt = s.now()

	return s.withTx(ctx, func(tx *sql.Tx) error {
		slug, err := nextSlug(ctx, tx)
		if err != nil {
			return err
		}
		u.Slug = slug
		_, err = tx.ExecContext(ctx, `
			INSERT INTO users (id, slug, name, timezone, role, can_transcribe, can_upload, is_active, created_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			u.ID, u.Slug, u.Name, u.Timezone, u.Role, u.CanTranscribe, u.CanUpload, true, encTime(u.CreatedAt))
		if isUniqueViolation(err) {
			return model.Conflict("user already exists")
		}
		if err != nil {
			return err
		}
		u.IsActive = true
		return nil
	})
}

func nextSlug(ctx context.Context, tx *sql.Tx) (int64, error) {
	var slug int64
	if err := tx.QueryRowContext(ctx,
		"UPDATE slug_seq SET next_slug = next_slug + 1 WHERE id = 1 RETURNING next_slug - 1").Scan(&slug); err != nil {
		return 0, err
	}
	return slug, nil
}

// GetUser loads a tenant by ID.
func (s *Store) GetUser(ctx context.Context, id string) (*model.User, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, slug, name, timezone, role, can_transcribe, can_upload, is_active, created_at
		FROM users WHERE id = ?`, id)
	var u model.User
	var createdAt string
	err := row.Scan(&u.ID, &u.Slug, &u.Name, &u.Timezone, &u.Role, &u.CanTranscribe, &u.CanUpload, &u.IsActive, &createdAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, model.NotFound("user not found")
	}
	if err != nil {
		return nil, err
	}
	if u.CreatedAt, err = decTime(createdAt); err != nil {
		return nil, err
	}
	return &u, nil
}

// DeactivateUser flips is_active off. Users are never destroyed.
func (s *Store) DeactivateUser(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, "UPDATE users SET is_active = 0 WHERE id = ?", id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return model.NotFound("user not found")
	}
	return nil
}

// CreatePlan registers a subscription tier.
func (s *Store) CreatePlan(ctx context.Context, p *model.SubscriptionPlan) error {
	quotas, err := encQuotaSet(p.Quotas)
	if err != nil {
		return err
	}
	p.CreatedAt = s.now()
	res, err := s.db.ExecContext(ctx,
		"INSERT INTO subscription_plans (name, quotas, created_at) VALUES (?, ?, ?)",
		p.Name, quotas, encTime(p.CreatedAt))
	if isUniqueViolation(err) {
		return model.Conflict("plan name already exists")
	}
	if err != nil {
		return err
	}
	p.ID, err = res.LastInsertId()
	return err
}

// GetPlan loads a tier by ID.
func (s *Store) GetPlan(ctx context.Context, id int64) (*model.SubscriptionPlan, error) {
	row := s.db.QueryRowContext(ctx,
		"SELECT id, name, quotas, created_at FROM subscription_plans WHERE id = ?", id)
	var p model.SubscriptionPlan
	var quotas, createdAt string
	err := row.Scan(&p.ID, &p.Name, &quotas, &createdAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, model.NotFound("plan not found")
	}
	if err != nil {
		return nil, err
	}
	if p.Quotas, err = decQuotaSet(quotas); err != nil {
		return nil, err
	}
	if p.CreatedAt, err = decTime(createdAt); err != nil {
		return nil, err
	}
	return &p, nil
}

// SetSubscription binds a user to a plan (unique per user), replacing any
// previous binding and its custom overrides.
func (s *Store) SetSubscription(ctx context.Context, sub *model.UserSubscription) error {
	custom, err := encQuotaSet(sub.Custom)
	if err != nil {
		return err
	}
	sub.CreatedAt = s.now()
	res, err := s.db.ExecContext(ctx, `
		INSERT INTO user_subscriptions (user_id, plan_id, custom, created_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT (user_id) DO UPDATE SET plan_id = excluded.plan_id, custom = excluded.custom`,
		sub.UserID, sub.PlanID, custom, encTime(sub.CreatedAt))
	if err != nil {
		return err
	}
	if id, err := res.LastInsertId(); err == nil {
		sub.ID = id
	}
	return nil
}

// GetSubscription loads a user's plan binding, or NotFound.
func (s *Store) GetSubscription(ctx context.Context, userID string) (*model.UserSubscription, error) {
	row := s.db.QueryRowContext(ctx,
		"SELECT id, user_id, plan_id, custom, created_at FROM user_subscriptions WHERE user_id = ?", userID)
	var sub model.UserSubscription
	var custom, createdAt string
	err := row.Scan(&sub.ID, &sub.UserID, &sub.PlanID, &custom, &createdAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, model.NotFound("subscription not found")
	}
	if err != nil {
		return nil, err
	}
	if sub.Custom, err = decQuotaSet(custom); err != nil {
		return nil, err
	}
	if sub.CreatedAt, err = decTime(createdAt); err != nil {
		return nil, err
	}
	return &sub, nil
}
