package api

import (
	"encoding/json"
	"net/http"

	"github.com/rs/zerolog"

	"github.com/xtrntr/p2pex/internal/apperr"
)

// statusFor maps the error taxonomy to HTTP statuses. Kinds are stable and
// machine readable; clients switch on the kind, not the message.
func statusFor(kind apperr.Kind) int {
	switch kind {
	case apperr.KindInvalidInput:
		return http.StatusBadRequest
	case apperr.KindNotFound:
		return http.StatusNotFound
	case apperr.KindInvalidTransition, apperr.KindConflict:
		return http.StatusConflict
	case apperr.KindPolicyViolation:
		return http.StatusForbidden
	case apperr.KindInsufficientFunds:
		return http.StatusUnprocessableEntity
	default:
		return http.StatusInternalServerError
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// writeError renders a failure. Invariant violations are always bugs: they
// are logged in full and surfaced as opaque 500s, never retried.
func writeError(w http.ResponseWriter, log zerolog.Logger, err error) {
	kind := apperr.KindOf(err)
	status := statusFor(kind)

	msg := err.Error()
	if status == http.StatusInternalServerError {
		log.Error().Err(err).Msg("internal error")
		msg = "internal error"
	}
	writeJSON(w, status, map[string]string{
		"error": msg,
		"kind":  string(kind),
	})
}
