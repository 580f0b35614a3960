package handler

import (
	"encoding/json"
	"net/http"

	"kart-orders/internal/model"

	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"
)

// writeJSON writes a JSON response with the given status code.
func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	// The status line is already sent, so an encode failure is dropped.
	_ = json.NewEncoder(w).Encode(data)
}

// writeError writes an error response with the given status code.
func writeError(w http.ResponseWriter, r *http.Request, status int, code, message string) {
	writeJSON(w, status, model.ErrorResponse{
		Error:         code,
		Message:       message,
		CorrelationID: chimw.GetReqID(r.Context()),
	})
}

// statusFor maps a domain error to its HTTP status.
func statusFor(de *model.DomainError) int {
	switch de.Kind {
	case model.KindValidation, model.KindInsufficientStock, model.KindAlreadyPaid:
		return http.StatusBadRequest
	case model.KindProductNotFound, model.KindOrderNotFound:
		return http.StatusNotFound
	case model.KindNotAuthorized:
		if de.Code == model.ErrCodeUnauthorised {
			return http.StatusUnauthorized
		}
		return http.StatusForbidden
	case model.KindInvalidTransition, model.KindConflict:
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

// writeDomainError classifies err once. Domain errors keep their message;
// anything else is a storage failure whose details stay in the log.
func writeDomainError(w http.ResponseWriter, r *http.Request, err error, logger zerolog.Logger) {
	if de, ok := model.AsDomainError(err); ok {
		status := statusFor(de)
		logger.Debug().
			Str("kind", de.Kind.String()).
			Str("code", de.Code).
			Int("status", status).
			Msg(de.Message)
		writeError(w, r, status, de.Code, de.Message)
		return
	}

	logger.Error().
		Err(err).
		Str("request_id", chimw.GetReqID(r.Context())).
		Str("path", r.URL.Path).
		Msg("request failed")
	writeError(w, r, http.StatusInternalServerError, model.ErrCodeInternalError, "internal server error")
}
