package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/htol/locallib/logger"
	"github.com/htol/locallib/repo"
	"github.com/htol/locallib/service"
	"github.com/htol/locallib/validator"
)

func respondJSON(w http.ResponseWriter, statusCode int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logger.Error("Failed to encode response", "error", err)
	}
}

// respondWithError logs an error and sends an HTTP error response as JSON
func respondWithError(w http.ResponseWriter, message string, err error, statusCode int) {
	logger.Error(message, "error", err, "status", statusCode)
	respondJSON(w, statusCode, map[string]any{
		"error": message,
	})
}

// respondWithValidationError sends the per-field errors of a rejected form as JSON
func respondWithValidationError(w http.ResponseWriter, errs validator.Errors) {
	logger.Warn("Validation error", "errors", errs.Error())
	respondJSON(w, http.StatusBadRequest, map[string]any{
		"error":  "validation failed",
		"errors": errs,
	})
}

// respondWithServiceError maps a service error onto a status code
func respondWithServiceError(w http.ResponseWriter, message string, err error) {
	var (
		verrs validator.Errors
		nf    *service.NotFoundError
	)
	switch {
	case errors.As(err, &verrs):
		respondWithValidationError(w, verrs)
	case errors.As(err, &nf):
		logger.Debug("Not found", "kind", nf.Kind, "id", nf.ID)
		respondJSON(w, http.StatusNotFound, map[string]any{"error": nf.Error()})
	case errors.Is(err, repo.ErrDuplicate):
		respondWithError(w, message, err, http.StatusConflict)
	default:
		respondWithError(w, message, err, http.StatusInternalServerError)
	}
}

// redirect sends the client on to target after a write or a delete
func redirect(w http.ResponseWriter, r *http.Request, target string) {
	http.Redirect(w, r, target, http.StatusSeeOther)
}

func withCORS(h http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
		w.Header().Set("Access-Control-Expose-Headers", "Location")
		if r.Method == http.MethodOptions {
			return
		}
		h.ServeHTTP(w, r)
	})
}
