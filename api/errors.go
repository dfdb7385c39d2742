package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"givevault/asset"
	"givevault/service"

	log "github.com/sirupsen/logrus"
)

var errMissingCaller = errors.New("missing " + CallerHeader + " header")

type errorResponse struct {
	Error string `json:"error"`
}

// statusFor maps ledger errors onto HTTP statuses
func statusFor(err error) int {
	switch {
	case errors.Is(err, errMissingCaller):
		return http.StatusUnauthorized
	case errors.Is(err, service.ErrUnauthorized):
		return http.StatusForbidden
	case errors.Is(err, service.ErrVaultNotFound):
		return http.StatusNotFound
	case errors.Is(err, service.ErrPaused),
		errors.Is(err, service.ErrReentrantCall),
		errors.Is(err, service.ErrConflict),
		errors.Is(err, service.ErrVaultInsolvent):
		return http.StatusConflict
	case errors.Is(err, service.ErrBusy):
		return http.StatusServiceUnavailable
	case service.IsValidationError(err),
		errors.Is(err, asset.ErrInvalidAmount),
		errors.Is(err, asset.ErrInvalidParty):
		return http.StatusBadRequest
	case service.IsCollaboratorError(err):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func writeLedgerError(w http.ResponseWriter, r *http.Request, err error) {
	status := statusFor(err)
	fields := log.Fields{
		"method": r.Method,
		"path":   r.URL.Path,
		"status": status,
		"error":  err,
	}
	if status >= http.StatusInternalServerError {
		log.WithFields(fields).Error("Ledger request failed")
	} else {
		log.WithFields(fields).Debug("Ledger request rejected")
	}

	message := err.Error()
	if status == http.StatusInternalServerError {
		message = "internal error"
	}
	writeError(w, status, message)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, errorResponse{Error: message})
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		log.WithError(err).Warn("Failed to encode response")
	}
}
