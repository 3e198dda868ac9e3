// Package api implements the Read API (C6) and Mutation API (C7):
// the go-chi-routed HTTP surface dashboards and operators use, plus
// the auth-gate middleware spec.md §9 asks to be centralised in one
// place. The response envelope (`{success, data|..., message?,
// count?}`) follows spec.md §6.3 exactly; it is the same shape the
// teacher's own handlers build ad hoc with a `map[string]interface{}`,
// expressed here as a reusable type instead.
package api

import (
	"encoding/json"
	"net/http"

	"github.com/rs/zerolog/log"

	"github.com/dcops/pdumonitor/internal/apierr"
)

type envelope struct {
	Success bool        `json:"success"`
	Data    interface{} `json:"data,omitempty"`
	Message string      `json:"message,omitempty"`
	Count   *int        `json:"count,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		log.Error().Err(err).Msg("failed to encode response body")
	}
}

// writeData writes a 200 envelope carrying data and no count;
// writeDataCount below adds the count list endpoints carry (spec.md §6.3).
func writeData(w http.ResponseWriter, data interface{}) {
	writeJSON(w, http.StatusOK, envelope{Success: true, Data: data})
}

func writeDataCount(w http.ResponseWriter, data interface{}, count int) {
	writeJSON(w, http.StatusOK, envelope{Success: true, Data: data, Count: &count})
}

// writeError translates a categorised apierr.Error (or any other
// error, treated as an opaque storage failure) into the envelope's
// error shape at the edge — the only place this translation happens,
// per spec.md §9's "handlers translate at the edge only".
func writeError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	message := "internal error"

	if apiErr, ok := apierr.As(err); ok {
		message = apiErr.Message
		switch apiErr.Code {
		case apierr.CodeNotFound:
			status = http.StatusNotFound
		case apierr.CodeInvalidInput:
			status = http.StatusBadRequest
		case apierr.CodeConflict:
			status = http.StatusConflict
		case apierr.CodeForbidden:
			status = http.StatusForbidden
		case apierr.CodeUpstream:
			status = http.StatusBadGateway
		case apierr.CodeStorage:
			status = http.StatusInternalServerError
		}
	}

	if status == http.StatusInternalServerError {
		log.Error().Err(err).Msg("unhandled error reaching HTTP edge")
	}
	writeJSON(w, status, envelope{Success: false, Message: message})
}

func writeMessage(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, envelope{Success: status < 300, Message: message})
}
