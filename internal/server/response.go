// Copyright (c) 2025 Northbound System
// Author: Nicholas Skitch

// Package server implements the HTTP surface of spec.md §6 over
// net/http.ServeMux. Generalized from the teacher's per-handler
// `{"error": "..."}` JSON bodies (internal/server/chat_handler.go et al.)
// into the single error-taxonomy response shape of spec.md §7, and from
// its ungrouped `mux.HandleFunc` calls (cmd/hive-server/main.go's routes
// function) into one Dependencies-driven router.
package server

import (
	"encoding/json"
	"net/http"

	"github.com/northbound/ragvault/internal/apperror"
	"github.com/northbound/ragvault/internal/logger"
)

// errorBody is the `{error, message, detail?}` shape spec.md §6/§7 mandate.
type errorBody struct {
	Error      string `json:"error"`
	Message    string `json:"message"`
	Detail     string `json:"detail,omitempty"`
	Correlation string `json:"correlation_id,omitempty"`
}

var statusByKind = map[apperror.Kind]int{
	apperror.Validation:       http.StatusBadRequest,
	apperror.Unauthorized:     http.StatusUnauthorized,
	apperror.Forbidden:        http.StatusForbidden,
	apperror.NotFound:         http.StatusNotFound,
	apperror.Conflict:         http.StatusConflict,
	apperror.DependencyFailed: http.StatusBadGateway,
	apperror.Timeout:          http.StatusGatewayTimeout,
	apperror.Internal:         http.StatusInternalServerError,
}

func statusFor(kind apperror.Kind) int {
	if code, ok := statusByKind[kind]; ok {
		return code
	}
	return http.StatusInternalServerError
}

// writeJSON encodes v as the response body with the given status code.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// writeError maps err through the apperror taxonomy into the §7 response
// shape, logging internal-kind errors with full detail (tagged with the
// correlation id) since those never reach the client body.
func writeError(w http.ResponseWriter, r *http.Request, log *logger.Logger, err error) {
	kind := apperror.KindOf(err)
	status := statusFor(kind)
	correlationID, _ := r.Context().Value(ctxKeyCorrelationID).(string)

	message := err.Error()
	detail := ""
	var appErr *apperror.Error
	if apperror.As(err, &appErr) {
		message = appErr.Message
		detail = appErr.Detail
	} else {
		message = "an internal error occurred"
	}

	if kind == apperror.Internal && log != nil {
		log.Errorf("[%s] internal error on %s %s: %v", correlationID, r.Method, r.URL.Path, err)
	}

	writeJSON(w, status, errorBody{
		Error:       string(kind),
		Message:     message,
		Detail:      detail,
		Correlation: correlationID,
	})
}

func decodeJSON(r *http.Request, v any) error {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		return apperror.Validationf("invalid JSON body: %v", err)
	}
	return nil
}

// jsonMarshalCompact is the SSE writer's encoder: no HTML-escaping
// surprises, no pretty-printing, one object per data: line.
func jsonMarshalCompact(v any) ([]byte, error) {
	return json.Marshal(v)
}
