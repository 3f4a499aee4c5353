// SPDX-License-Identifier: MIT

package log

// Canonical field name constants for structured logging.
const (
	// Identity fields
	FieldCorrelationID = "correlation_id"
	FieldJobID         = "job_id"
	FieldRecordingID   = "recording_id"
	FieldUserID        = "user_id"
	FieldTemplateID    = "template_id"
	FieldSourceID      = "source_id"
	FieldTargetID      = "target_id"

	// Process / pipeline fields
	FieldComponent = "component"
	FieldStage     = "stage"
	FieldAttempt   = "attempt"
	FieldReason    = "reason"

	// State fields
	FieldOldState = "old_state"
	FieldNewState = "new_state"

	// Path fields
	FieldPath = "path"
)
