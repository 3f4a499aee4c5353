// SPDX-License-Identifier: MIT

package store

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/ManuGH/mediaflow/internal/model"
)

// IssueRefreshToken stores an opaque session token.
func (s *Store) IssueRefreshToken(ctx context.Context, userID, token string, expiresAt time.Time) (*model.RefreshToken, error) {
	now := s.now()
	res, err := s.db.ExecContext(ctx, `
		INSERT INTO refresh_tokens (user_id, token, expires_at, created_at)
		VALUES (?, ?, ?, ?)`,
		userID, token, encTime(expiresAt), encTime(now))
	if isUniqueViolation(err) {
		return nil, model.Conflict("token already issued")
	}
	if err != nil {
		return nil, err
	}
	id, _ := res.LastInsertId()
	return &model.RefreshToken{
		ID: id, UserID: userID, Token: token,
		ExpiresAt: expiresAt.UTC(), CreatedAt: now,
	}, nil
}

// ValidateRefreshToken resolves a live token to its user.
func (s *Store) ValidateRefreshToken(ctx context.Context, token string) (*model.RefreshToken, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, user_id, token, expires_at, is_revoked, created_at
		FROM refresh_tokens WHERE token = ?`, token)
	var t model.RefreshToken
	var expiresAt, createdAt string
	err := row.Scan(&t.ID, &t.UserID, &t.Token, &expiresAt, &t.IsRevoked, &createdAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, model.NotFound("token not found")
	}
	if err != nil {
		return nil, err
	}
	if t.ExpiresAt, err = decTime(expiresAt); err != nil {
		return nil, err
	}
	if t.CreatedAt, err = decTime(createdAt); err != nil {
		return nil, err
	}
	if t.IsRevoked {
		return nil, model.Validation("token revoked")
	}
	if !t.ExpiresAt.After(s.now()) {
		return nil, model.Validation("token expired")
	}
	return &t, nil
}

// RevokeRefreshToken marks a token revoked. Revoking twice is a no-op.
func (s *Store) RevokeRefreshToken(ctx context.Context, token string) error {
	_, err := s.db.ExecContext(ctx,
		"UPDATE refresh_tokens SET is_revoked = 1 WHERE token = ?", token)
	return err
}

// DeleteExpiredTokens drops tokens past their expiry.
func (s *Store) DeleteExpiredTokens(ctx context.Context, now time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx,
		"DELETE FROM refresh_tokens WHERE expires_at <= ?", encTime(now))
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}
