// SPDX-License-Identifier: MIT

package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/ManuGH/mediaflow/internal/log"
	"github.com/ManuGH/mediaflow/internal/model"
)

// writeJSON writes a JSON response with the given status code.
func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

type errorBody struct {
	Error  string `json:"error"`
	Reason string `json:"reason,omitempty"`
}

// writeError maps the tagged error taxonomy to HTTP status codes. Untagged
// errors never leak their message to the client.
func writeError(w http.ResponseWriter, r *http.Request, err error) {
	kind := model.KindOf(err)
	code := statusFor(kind)
	if code >= http.StatusInternalServerError {
		logger := log.WithComponentFromContext(r.Context(), "api")
		logger.Error().
			Err(err).
			Str(log.FieldPath, r.URL.Path).
			Msg("request failed")
		writeJSON(w, code, errorBody{Error: string(model.KindInvariant)})
		return
	}
	var tagged *model.Error
	reason := ""
	if errors.As(err, &tagged) {
		reason = tagged.Reason
	}
	writeJSON(w, code, errorBody{Error: string(kind), Reason: reason})
}

func statusFor(kind model.Kind) int {
	switch kind {
	case model.KindValidation:
		return http.StatusBadRequest
	case model.KindNotFound:
		return http.StatusNotFound
	case model.KindConflict:
		return http.StatusConflict
	case model.KindQuotaDenied:
		return http.StatusTooManyRequests
	case model.KindRetryableIO:
		return http.StatusServiceUnavailable
	case model.KindFatalExternal:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func writeUnauthorized(w http.ResponseWriter) {
	writeJSON(w, http.StatusUnauthorized, errorBody{Error: "unauthorized"})
}

func badRequest(w http.ResponseWriter, reason string) {
	writeJSON(w, http.StatusBadRequest, errorBody{Error: string(model.KindValidation), Reason: reason})
}
