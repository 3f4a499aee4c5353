// SPDX-License-Identifier: MIT

package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"regexp"
	"time"

	"github.com/ManuGH/mediaflow/internal/model"
)

// CreateTemplate stores a matching+processing template. Patterns are compiled
// at write time; a non-draft template must carry at least one populated rule.
func (s *Store) CreateTemplate(ctx context.Context, t *model.RecordingTemplate) error {
	if err := validateTemplate(t); err != nil {
		return err
	}
	rules, processing, metadata, output, err := encTemplateBlobs(t)
	if err != nil {
		return err
	}
	t.CreatedAt = s.now()
	res, err := s.db.ExecContext(ctx, `
		INSERT INTO recording_templates
			(user_id, name, rules, processing_config, metadata_config, output_config, is_draft, is_active, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		t.UserID, t.Name, rules, processing, metadata, output, t.IsDraft, t.IsActive, encTime(t.CreatedAt))
	if isUniqueViolation(err) {
		return model.Conflict("template name already exists")
	}
	if err != nil {
		return err
	}
	t.ID, err = res.LastInsertId()
	return err
}

// UpdateTemplate rewrites a template's rules and configs under the same
// validation as create.
func (s *Store) UpdateTemplate(ctx context.Context, t *model.RecordingTemplate) error {
	if err := validateTemplate(t); err != nil {
		return err
	}
	rules, processing, metadata, output, err := encTemplateBlobs(t)
	if err != nil {
		return err
	}
	res, err := s.db.ExecContext(ctx, `
		UPDATE recording_templates
		SET name = ?, rules = ?, processing_config = ?, metadata_config = ?, output_config = ?,
			is_draft = ?, is_active = ?
		WHERE id = ? AND user_id = ?`,
		t.Name, rules, processing, metadata, output, t.IsDraft, t.IsActive, t.ID, t.UserID)
	if isUniqueViolation(err) {
		return model.Conflict("template name already exists")
	}
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return model.NotFound("template not found")
	}
	return nil
}

// GetTemplate loads one template scoped to its owner.
func (s *Store) GetTemplate(ctx context.Context, userID string, id int64) (*model.RecordingTemplate, error) {
	row := s.db.QueryRowContext(ctx, templateSelect+" WHERE id = ? AND user_id = ?", id, userID)
	return scanTemplate(row)
}

// ListTemplatesRanked returns a user's templates in matcher selection order:
// published before drafts, active before inactive, then most used, then oldest.
func (s *Store) ListTemplatesRanked(ctx context.Context, userID string) ([]*model.RecordingTemplate, error) {
	rows, err := s.db.QueryContext(ctx, templateSelect+`
		WHERE user_id = ?
		ORDER BY is_draft ASC, is_active DESC, used_count DESC, created_at ASC, id ASC`, userID)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var out []*model.RecordingTemplate
	for rows.Next() {
		t, err := scanTemplate(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

// TouchTemplateUsage increments used_count and stamps last_used_at after a
// successful match.
func (s *Store) TouchTemplateUsage(ctx context.Context, id int64, at time.Time) error {
	_, err := s.db.ExecContext(ctx,
		"UPDATE recording_templates SET used_count = used_count + 1, last_used_at = ? WHERE id = ?",
		encTime(at), id)
	return err
}

// DeleteTemplate removes a template. Recordings keep their frozen config; the
// recordings.template_id reference is SET NULL by the schema.
func (s *Store) DeleteTemplate(ctx context.Context, userID string, id int64) error {
	res, err := s.db.ExecContext(ctx,
		"DELETE FROM recording_templates WHERE id = ? AND user_id = ?", id, userID)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return model.NotFound("template not found")
	}
	return nil
}

func validateTemplate(t *model.RecordingTemplate) error {
	if t.Name == "" {
		return model.Validation("template name is required")
	}
	if !t.IsDraft && t.Rules.Empty() {
		return model.Validation("a published template needs at least one matching rule")
	}
	for _, p := range t.Rules.Patterns {
		if _, err := regexp.Compile(p); err != nil {
			return model.Validation("invalid pattern " + p)
		}
	}
	return nil
}

func encTemplateBlobs(t *model.RecordingTemplate) (rules, processing, metadata, output string, err error) {
	b, err := json.Marshal(t.Rules)
	if err != nil {
		return "", "", "", "", err
	}
	rules = string(b)
	if processing, err = encJSON(t.ProcessingConfig); err != nil {
		return
	}
	if metadata, err = encJSON(t.MetadataConfig); err != nil {
		return
	}
	output, err = encJSON(t.OutputConfig)
	return
}

const templateSelect = `
	SELECT id, user_id, name, rules, processing_config, metadata_config, output_config,
		is_draft, is_active, used_count, last_used_at, created_at
	FROM recording_templates`

func scanTemplate(row rowScanner) (*model.RecordingTemplate, error) {
	var t model.RecordingTemplate
	var rules, processing, metadata, output, createdAt string
	var lastUsed sql.NullString
	err := row.Scan(&t.ID, &t.UserID, &t.Name, &rules, &processing, &metadata, &output,
		&t.IsDraft, &t.IsActive, &t.UsedCount, &lastUsed, &createdAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, model.NotFound("template not found")
	}
	if err != nil {
		return nil, err
	}
	if err = json.Unmarshal([]byte(rules), &t.Rules); err != nil {
		return nil, err
	}
	if t.ProcessingConfig, err = decJSON(processing); err != nil {
		return nil, err
	}
	if t.MetadataConfig, err = decJSON(metadata); err != nil {
		return nil, err
	}
	if t.OutputConfig, err = decJSON(output); err != nil {
		return nil, err
	}
	if t.LastUsedAt, err = decTimePtr(lastUsed); err != nil {
		return nil, err
	}
	if t.CreatedAt, err = decTime(createdAt); err != nil {
		return nil, err
	}
	return &t, nil
}
