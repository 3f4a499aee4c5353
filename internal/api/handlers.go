// SPDX-License-Identifier: MIT

package api

import (
	"encoding/json"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/ManuGH/mediaflow/internal/model"
)

func decodeJSON(r *http.Request, v any) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return model.Validation("invalid request body: " + err.Error())
	}
	return nil
}

func jobID(r *http.Request) (int64, error) {
	id, err := strconv.ParseInt(chi.URLParam(r, "jobID"), 10, 64)
	if err != nil {
		return 0, model.Validation("job id must be an integer")
	}
	return id, nil
}

// --- jobs ---

func (s *Server) handleListJobs(w http.ResponseWriter, r *http.Request) {
	jobs, err := s.svc.ListJobs(r.Context(), UserIDFromContext(r.Context()))
	if err != nil {
		writeError(w, r, err)
		return
	}
	out := make([]jobResponse, 0, len(jobs))
	for _, j := range jobs {
		out = append(out, toJobResponse(j))
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleCreateJob(w http.ResponseWriter, r *http.Request) {
	var req jobRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	job := req.toModel(UserIDFromContext(r.Context()))
	if err := s.svc.CreateJob(r.Context(), job); err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, toJobResponse(job))
}

func (s *Server) handleGetJob(w http.ResponseWriter, r *http.Request) {
	id, err := jobID(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	job, err := s.svc.GetJob(r.Context(), UserIDFromContext(r.Context()), id)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toJobResponse(job))
}

func (s *Server) handleUpdateJob(w http.ResponseWriter, r *http.Request) {
	id, err := jobID(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	userID := UserIDFromContext(r.Context())
	// Ownership check before the write; update is scoped to the user anyway.
	if _, err := s.svc.GetJob(r.Context(), userID, id); err != nil {
		writeError(w, r, err)
		return
	}
	var req jobRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	job := req.toModel(userID)
	job.ID = id
	if err := s.svc.UpdateJob(r.Context(), job); err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toJobResponse(job))
}

func (s *Server) handleDeleteJob(w http.ResponseWriter, r *http.Request) {
	id, err := jobID(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if err := s.svc.DeleteJob(r.Context(), UserIDFromContext(r.Context()), id); err != nil {
		writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleTriggerJob(w http.ResponseWriter, r *http.Request) {
	id, err := jobID(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if err := s.svc.TriggerJob(r.Context(), UserIDFromContext(r.Context()), id); err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]string{"status": "triggered"})
}

func (s *Server) handleDryRunJob(w http.ResponseWriter, r *http.Request) {
	id, err := jobID(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	rep, err := s.svc.DryRunJob(r.Context(), UserIDFromContext(r.Context()), id)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toSyncReportResponse(rep))
}

// --- recordings ---

func (s *Server) handleListRecordings(w http.ResponseWriter, r *http.Request) {
	recs, err := s.svc.ListRecordings(r.Context(), UserIDFromContext(r.Context()))
	if err != nil {
		writeError(w, r, err)
		return
	}
	out := make([]recordingResponse, 0, len(recs))
	for _, rec := range recs {
		out = append(out, toRecordingResponse(rec))
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleGetRecording(w http.ResponseWriter, r *http.Request) {
	rec, err := s.svc.GetRecording(r.Context(), UserIDFromContext(r.Context()), chi.URLParam(r, "recordingID"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toRecordingResponse(rec))
}

func (s *Server) handlePatchRecordingConfig(w http.ResponseWriter, r *http.Request) {
	var patch model.JSON
	if err := decodeJSON(r, &patch); err != nil {
		writeError(w, r, err)
		return
	}
	rec, err := s.svc.UpdateRecordingConfig(r.Context(), UserIDFromContext(r.Context()),
		chi.URLParam(r, "recordingID"), patch)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toRecordingResponse(rec))
}

func (s *Server) handlePauseRecording(w http.ResponseWriter, r *http.Request) {
	err := s.svc.PauseRecording(r.Context(), UserIDFromContext(r.Context()), chi.URLParam(r, "recordingID"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "paused"})
}

func (s *Server) handleResumeRecording(w http.ResponseWriter, r *http.Request) {
	err := s.svc.ResumeRecording(r.Context(), UserIDFromContext(r.Context()), chi.URLParam(r, "recordingID"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "resumed"})
}

func (s *Server) handleRetryRecording(w http.ResponseWriter, r *http.Request) {
	err := s.svc.RetryRecording(r.Context(), UserIDFromContext(r.Context()), chi.URLParam(r, "recordingID"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]string{"status": "retrying"})
}

func (s *Server) handleDeleteRecording(w http.ResponseWriter, r *http.Request) {
	reason := r.URL.Query().Get("reason")
	if reason == "" {
		reason = "user request"
	}
	err := s.svc.DeleteRecording(r.Context(), UserIDFromContext(r.Context()),
		chi.URLParam(r, "recordingID"), reason)
	if err != nil {
		writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleListStages(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "recordingID")
	// Ownership check: stage rows carry no user column.
	if _, err := s.svc.GetRecording(r.Context(), UserIDFromContext(r.Context()), id); err != nil {
		writeError(w, r, err)
		return
	}
	stages, err := s.store.ListStages(r.Context(), id)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toStageResponses(stages))
}

// --- quota and auth ---

func (s *Server) handleQuotaStatus(w http.ResponseWriter, r *http.Request) {
	status, err := s.svc.QuotaStatus(r.Context(), UserIDFromContext(r.Context()))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toQuotaResponse(status))
}

func (s *Server) handleRevokeToken(w http.ResponseWriter, r *http.Request) {
	raw := r.Header.Get("Authorization")
	token, ok := strings.CutPrefix(raw, "Bearer ")
	if !ok {
		writeUnauthorized(w)
		return
	}
	if err := s.store.RevokeRefreshToken(r.Context(), token); err != nil {
		writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
