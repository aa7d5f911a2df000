package httpapi

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/cockroachdb/errors"
	zlog "github.com/rs/zerolog/log"

	"github.com/osa030/muser/internal/domain/failure"
)

// Error kinds produced by the HTTP layer itself.
const (
	KindInvalidRequest   = "invalid_request"
	KindInvalidGenre     = "invalid_genre"
	KindUnauthorized     = "unauthorized"
	KindRouteNotFound    = "route_not_found"
	KindMethodNotAllowed = "method_not_allowed"
	KindTimeout          = "timeout"
)

// ErrorResponse is the body of every error response.
type ErrorResponse struct {
	Error ErrorDetail `json:"error"`
}

// ErrorDetail describes an error for clients.
type ErrorDetail struct {
	Kind      string `json:"kind"`
	Message   string `json:"message"`
	Retryable bool   `json:"retryable"` // repeating the request may succeed
}

// statusFor maps a failure kind to an HTTP status.
func statusFor(kind failure.Kind) int {
	switch kind {
	case failure.KindUpstream:
		return http.StatusBadGateway
	case failure.KindNotFound,
		failure.KindNoTracksAvailable,
		failure.KindNoNewTracks,
		failure.KindNoReadableTracks,
		failure.KindNotConfigured:
		return http.StatusNotFound
	default:
		return http.StatusInternalServerError
	}
}

// messageFor returns the user-facing message of a failure kind.
// Upstream error text never reaches clients.
func messageFor(kind failure.Kind) string {
	switch kind {
	case failure.KindUpstream:
		return "The music catalog is unavailable. Try again later."
	case failure.KindNotFound:
		return "Nothing matched your search."
	case failure.KindNoTracksAvailable:
		return "No tracks available for this selection."
	case failure.KindNoNewTracks:
		return "No new tracks available. Try again."
	case failure.KindNoReadableTracks:
		return "No playable track found. Try again later."
	case failure.KindNotConfigured:
		return "This challenge is not configured."
	default:
		return "Internal server error."
	}
}

// writeError classifies err and writes the matching error response.
func writeError(w http.ResponseWriter, r *http.Request, err error) {
	if errors.Is(err, context.DeadlineExceeded) && failure.KindOf(err) == failure.KindInternal {
		zlog.Warn().Msgf("request timed out: method=%s path=%s", r.Method, r.URL.Path)
		writeJSON(w, http.StatusGatewayTimeout, ErrorResponse{Error: ErrorDetail{
			Kind:      KindTimeout,
			Message:   "The request took too long. Try again.",
			Retryable: true,
		}})
		return
	}

	kind := failure.KindOf(err)
	status := statusFor(kind)
	if status >= http.StatusInternalServerError {
		zlog.Error().Err(err).Msgf("request failed: method=%s path=%s kind=%s", r.Method, r.URL.Path, kind)
	} else {
		zlog.Debug().Msgf("request rejected: method=%s path=%s kind=%s error=%v", r.Method, r.URL.Path, kind, err)
	}
	writeJSON(w, status, ErrorResponse{Error: ErrorDetail{
		Kind:      kind.String(),
		Message:   messageFor(kind),
		Retryable: !kind.Terminal(),
	}})
}

// writeErrorResponse writes an error body with the given status.
func writeErrorResponse(w http.ResponseWriter, status int, kind, message string) {
	writeJSON(w, status, ErrorResponse{Error: ErrorDetail{Kind: kind, Message: message}})
}

// writeJSON writes v as a JSON body.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		zlog.Error().Err(err).Msg("failed to encode response")
	}
}
