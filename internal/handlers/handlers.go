package handlers

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/coinwork/backend/internal/middleware"
	"github.com/coinwork/backend/internal/models"
	"github.com/coinwork/backend/internal/services"
)

const maxBodyBytes = 1 << 20

// SchemaValidator checks a raw request body against a named JSON schema.
type SchemaValidator interface {
	Validate(schema string, body []byte) error
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

// errorStatus maps domain errors to a status and a client-safe message.
// ok is false for errors that must not be shown to the client.
func errorStatus(err error) (status int, msg string, ok bool) {
	switch {
	case errors.Is(err, services.ErrValidation):
		return http.StatusUnprocessableEntity, err.Error(), true
	case errors.Is(err, models.ErrInsufficientFunds):
		return http.StatusPaymentRequired, "insufficient funds", true
	case errors.Is(err, models.ErrPaymentFailed):
		return http.StatusPaymentRequired, "payment failed", true
	case errors.Is(err, models.ErrInvalidAmount),
		errors.Is(err, models.ErrInvalidInput),
		errors.Is(err, models.ErrInvalidRole),
		errors.Is(err, models.ErrUnknownPlan):
		return http.StatusBadRequest, err.Error(), true
	case errors.Is(err, models.ErrNotFound):
		return http.StatusNotFound, err.Error(), true
	case errors.Is(err, models.ErrNotOwner):
		return http.StatusForbidden, "not owner", true
	case errors.Is(err, models.ErrAlreadyFinalized),
		errors.Is(err, models.ErrAlreadyApproved),
		errors.Is(err, models.ErrNoSlotsAvailable),
		errors.Is(err, models.ErrDuplicateEmail):
		return http.StatusConflict, err.Error(), true
	}
	return http.StatusInternalServerError, "internal error", false
}

// writeServiceError writes the mapped error and logs anything unexpected.
func writeServiceError(w http.ResponseWriter, log *slog.Logger, op string, err error) {
	status, msg, known := errorStatus(err)
	if !known {
		log.Error(op, "error", err)
	}
	writeError(w, status, msg)
}

// decodeBody reads the body, validates it against schema when a validator is
// set, and unmarshals it into dst. It writes the error response and returns
// false on failure. An empty body is treated as {}.
func decodeBody(w http.ResponseWriter, r *http.Request, v SchemaValidator, schema string, dst any) bool {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxBodyBytes))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid body")
		return false
	}
	if len(body) == 0 {
		body = []byte("{}")
	}
	if v != nil {
		if err := v.Validate(schema, body); err != nil {
			if errors.Is(err, services.ErrValidation) {
				writeError(w, http.StatusUnprocessableEntity, err.Error())
				return false
			}
			writeError(w, http.StatusInternalServerError, "internal error")
			return false
		}
	}
	if err := json.Unmarshal(body, dst); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return false
	}
	return true
}

// session returns the authenticated session or writes 401.
func session(w http.ResponseWriter, r *http.Request) (*middleware.Session, bool) {
	sess := middleware.SessionFromCtx(r.Context())
	if sess == nil {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return nil, false
	}
	return sess, true
}

// pathID parses the {id} URL parameter or writes 400.
func pathID(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid id")
		return uuid.Nil, false
	}
	return id, true
}
