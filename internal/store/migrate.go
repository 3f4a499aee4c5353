// SPDX-License-Identifier: MIT

package store

import "fmt"

const schemaVersion = 1

// migrate applies the schema via PRAGMA user_version gating. Enum values are
// additive and never removed; migrations apply in numeric order.
func (s *Store) migrate() error {
	var current int
	if err := s.db.QueryRow("PRAGMA user_version").Scan(&current); err != nil {
		return err
	}
	if current >= schemaVersion {
		return nil
	}

	tx, err := s.db.Begin()
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	schema := `
	CREATE TABLE IF NOT EXISTS users (
		id TEXT PRIMARY KEY,
		slug INTEGER NOT NULL UNIQUE,
		name TEXT NOT NULL DEFAULT '',
		timezone TEXT NOT NULL DEFAULT 'UTC',
		role TEXT NOT NULL DEFAULT 'user',
		can_transcribe BOOLEAN NOT NULL DEFAULT 1,
		can_upload BOOLEAN NOT NULL DEFAULT 1,
		is_active BOOLEAN NOT NULL DEFAULT 1,
		created_at TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS slug_seq (
		id INTEGER PRIMARY KEY CHECK (id = 1),
		next_slug INTEGER NOT NULL
	);
	INSERT OR IGNORE INTO slug_seq (id, next_slug) VALUES (1, 1);

	CREATE TABLE IF NOT EXISTS subscription_plans (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		name TEXT NOT NULL UNIQUE,
		quotas TEXT NOT NULL DEFAULT '{}',
		created_at TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS user_subscriptions (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		user_id TEXT NOT NULL UNIQUE REFERENCES users(id),
		plan_id INTEGER NOT NULL REFERENCES subscription_plans(id),
		custom TEXT NOT NULL DEFAULT '{}',
		created_at TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS quota_usage (
		user_id TEXT NOT NULL REFERENCES users(id),
		period INTEGER NOT NULL,
		recordings_count INTEGER NOT NULL DEFAULT 0,
		overage_cost_cents INTEGER NOT NULL DEFAULT 0,
		updated_at TEXT NOT NULL,
		PRIMARY KEY (user_id, period)
	);

	CREATE TABLE IF NOT EXISTS quota_gauges (
		user_id TEXT PRIMARY KEY REFERENCES users(id),
		concurrent_tasks INTEGER NOT NULL DEFAULT 0 CHECK (concurrent_tasks >= 0),
		updated_at TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS input_sources (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		user_id TEXT NOT NULL REFERENCES users(id),
		name TEXT NOT NULL,
		source_type TEXT NOT NULL,
		credential_handle TEXT NOT NULL DEFAULT '',
		config TEXT NOT NULL DEFAULT '{}',
		last_sync_at TEXT,
		last_sync_error TEXT NOT NULL DEFAULT '',
		created_at TEXT NOT NULL,
		UNIQUE (user_id, name, source_type, credential_handle)
	);

	CREATE TABLE IF NOT EXISTS output_presets (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		user_id TEXT NOT NULL REFERENCES users(id),
		name TEXT NOT NULL,
		platform TEXT NOT NULL,
		credential_handle TEXT NOT NULL DEFAULT '',
		metadata TEXT NOT NULL DEFAULT '{}',
		created_at TEXT NOT NULL,
		UNIQUE (user_id, name)
	);

	CREATE TABLE IF NOT EXISTS recording_templates (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		user_id TEXT NOT NULL REFERENCES users(id),
		name TEXT NOT NULL,
		rules TEXT NOT NULL DEFAULT '{}',
		processing_config TEXT NOT NULL DEFAULT '{}',
		metadata_config TEXT NOT NULL DEFAULT '{}',
		output_config TEXT NOT NULL DEFAULT '{}',
		is_draft BOOLEAN NOT NULL DEFAULT 0,
		is_active BOOLEAN NOT NULL DEFAULT 1,
		used_count INTEGER NOT NULL DEFAULT 0,
		last_used_at TEXT,
		created_at TEXT NOT NULL,
		UNIQUE (user_id, name)
	);

	CREATE TABLE IF NOT EXISTS automation_jobs (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		user_id TEXT NOT NULL REFERENCES users(id),
		name TEXT NOT NULL,
		template_ids TEXT NOT NULL DEFAULT '[]',
		schedule TEXT NOT NULL,
		sync_config TEXT NOT NULL DEFAULT '{}',
		filters TEXT NOT NULL DEFAULT '{}',
		processing_override TEXT NOT NULL DEFAULT '{}',
		is_active BOOLEAN NOT NULL DEFAULT 1,
		last_run_at TEXT,
		next_run_at TEXT,
		run_count INTEGER NOT NULL DEFAULT 0,
		created_at TEXT NOT NULL,
		UNIQUE (user_id, name)
	);
	CREATE INDEX IF NOT EXISTS idx_jobs_due ON automation_jobs(is_active, next_run_at);

	CREATE TABLE IF NOT EXISTS recordings (
		id TEXT PRIMARY KEY,
		user_id TEXT NOT NULL REFERENCES users(id),
		input_source_id INTEGER REFERENCES input_sources(id) ON DELETE SET NULL,
		template_id INTEGER REFERENCES recording_templates(id) ON DELETE SET NULL,
		display_name TEXT NOT NULL DEFAULT '',
		start_time TEXT NOT NULL,
		duration_seconds REAL NOT NULL DEFAULT 0,
		status TEXT NOT NULL,
		is_mapped BOOLEAN NOT NULL DEFAULT 0,
		blank_record BOOLEAN NOT NULL DEFAULT 0,
		delete_state TEXT NOT NULL DEFAULT 'active',
		soft_deleted_at TEXT,
		hard_delete_at TEXT,
		deletion_reason TEXT NOT NULL DEFAULT '',
		expire_at TEXT,
		on_pause BOOLEAN NOT NULL DEFAULT 0,
		pause_requested_at TEXT,
		local_video_path TEXT NOT NULL DEFAULT '',
		processed_video_path TEXT NOT NULL DEFAULT '',
		processed_audio_path TEXT NOT NULL DEFAULT '',
		transcription_dir TEXT NOT NULL DEFAULT '',
		failed BOOLEAN NOT NULL DEFAULT 0,
		failed_reason TEXT NOT NULL DEFAULT '',
		failed_at_stage TEXT NOT NULL DEFAULT '',
		retry_count INTEGER NOT NULL DEFAULT 0,
		pipeline_started_at TEXT,
		pipeline_completed_at TEXT,
		pipeline_duration_seconds REAL NOT NULL DEFAULT 0,
		preferences TEXT NOT NULL DEFAULT '{}',
		output_config TEXT NOT NULL DEFAULT '{}',
		created_at TEXT NOT NULL,
		updated_at TEXT NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_recordings_user ON recordings(user_id, delete_state);
	CREATE INDEX IF NOT EXISTS idx_recordings_status ON recordings(status, delete_state);
	CREATE INDEX IF NOT EXISTS idx_recordings_hard_delete ON recordings(delete_state, hard_delete_at);

	CREATE TABLE IF NOT EXISTS processing_stages (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		recording_id TEXT NOT NULL REFERENCES recordings(id) ON DELETE CASCADE,
		stage_type TEXT NOT NULL,
		state TEXT NOT NULL DEFAULT 'PENDING',
		started_at TEXT,
		completed_at TEXT,
		retry_count INTEGER NOT NULL DEFAULT 0,
		skip_reason TEXT NOT NULL DEFAULT '',
		failed_reason TEXT NOT NULL DEFAULT '',
		meta TEXT NOT NULL DEFAULT '{}',
		UNIQUE (recording_id, stage_type)
	);

	CREATE TABLE IF NOT EXISTS output_targets (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		recording_id TEXT NOT NULL REFERENCES recordings(id) ON DELETE CASCADE,
		target_type TEXT NOT NULL,
		preset_id INTEGER REFERENCES output_presets(id) ON DELETE SET NULL,
		state TEXT NOT NULL DEFAULT 'NOT_UPLOADED',
		remote_id TEXT NOT NULL DEFAULT '',
		remote_url TEXT NOT NULL DEFAULT '',
		attempts INTEGER NOT NULL DEFAULT 0,
		meta TEXT NOT NULL DEFAULT '{}',
		UNIQUE (recording_id, target_type)
	);

	CREATE TABLE IF NOT EXISTS source_metadata (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		recording_id TEXT NOT NULL UNIQUE REFERENCES recordings(id) ON DELETE CASCADE,
		source_type TEXT NOT NULL,
		source_key TEXT NOT NULL,
		raw TEXT NOT NULL DEFAULT '{}',
		UNIQUE (source_type, source_key, recording_id)
	);
	CREATE INDEX IF NOT EXISTS idx_source_metadata_key ON source_metadata(source_type, source_key);

	CREATE TABLE IF NOT EXISTS stage_timings (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		recording_id TEXT NOT NULL REFERENCES recordings(id) ON DELETE CASCADE,
		stage_type TEXT NOT NULL,
		substep TEXT NOT NULL DEFAULT '',
		attempt INTEGER NOT NULL DEFAULT 1,
		started_at TEXT NOT NULL,
		completed_at TEXT,
		duration_seconds REAL,
		status TEXT NOT NULL,
		error_message TEXT NOT NULL DEFAULT '',
		meta TEXT NOT NULL DEFAULT '{}'
	);
	CREATE INDEX IF NOT EXISTS idx_stage_timings_recording ON stage_timings(recording_id, stage_type);

	CREATE TABLE IF NOT EXISTS refresh_tokens (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		user_id TEXT NOT NULL REFERENCES users(id),
		token TEXT NOT NULL UNIQUE,
		expires_at TEXT NOT NULL,
		is_revoked BOOLEAN NOT NULL DEFAULT 0,
		created_at TEXT NOT NULL
	);
	`

	if _, err := tx.Exec(schema); err != nil {
		return err
	}
	if _, err := tx.Exec(fmt.Sprintf("PRAGMA user_version = %d", schemaVersion)); err != nil {
		return err
	}
	return tx.Commit()
}
