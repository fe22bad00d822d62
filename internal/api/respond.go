package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"

	"github.com/finsim/ledger-engine/internal/academy"
	"github.com/finsim/ledger-engine/internal/identity"
	"github.com/finsim/ledger-engine/internal/ledger"
	"github.com/finsim/ledger-engine/internal/progress"
	"github.com/finsim/ledger-engine/internal/quote"
	"github.com/finsim/ledger-engine/internal/sip"
	"github.com/finsim/ledger-engine/internal/store"
)

var errBadRequest = errors.New("invalid request")

const maxBodyBytes = 1 << 20

// decodeJSON reads a JSON body into dst, rejecting unknown fields.
func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		if errors.Is(err, io.EOF) {
			return fmt.Errorf("%w: empty body", errBadRequest)
		}
		return fmt.Errorf("%w: %v", errBadRequest, err)
	}
	return nil
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// writeError writes a JSON error response.
func writeError(w http.ResponseWriter, message string, status int) {
	writeJSON(w, status, map[string]string{"error": message})
}

// statusFor maps domain errors to HTTP status codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, errBadRequest),
		errors.Is(err, ledger.ErrInvalidInput),
		errors.Is(err, sip.ErrInvalidInput),
		errors.Is(err, quote.ErrInvalidSymbol),
		errors.Is(err, quote.ErrInvalidExchange):
		return http.StatusBadRequest

	case errors.Is(err, identity.ErrUnauthenticated):
		return http.StatusUnauthorized

	case errors.Is(err, ledger.ErrUserNotFound),
		errors.Is(err, progress.ErrUserNotFound),
		errors.Is(err, academy.ErrUserNotFound),
		errors.Is(err, sip.ErrUserNotFound),
		errors.Is(err, progress.ErrChallengeNotFound),
		errors.Is(err, academy.ErrQuizNotFound),
		errors.Is(err, academy.ErrLessonNotFound),
		errors.Is(err, quote.ErrUnknownSymbol),
		errors.Is(err, store.ErrNotFound):
		return http.StatusNotFound

	case errors.Is(err, ledger.ErrInsufficientFunds),
		errors.Is(err, ledger.ErrInsufficientHoldings),
		errors.Is(err, progress.ErrChallengeAlreadyCompleted),
		errors.Is(err, store.ErrConflict):
		return http.StatusConflict
	}
	return http.StatusInternalServerError
}

// writeDomainError maps err to a status. Internal errors are logged and
// reported with a generic message.
func writeDomainError(w http.ResponseWriter, r *http.Request, log *slog.Logger, err error) {
	status := statusFor(err)
	if status == http.StatusInternalServerError {
		log.Error("request failed", "method", r.Method, "path", r.URL.Path, "err", err)
		writeError(w, "internal error", status)
		return
	}
	writeError(w, err.Error(), status)
}
