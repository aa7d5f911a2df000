// Package httpapi provides the JSON HTTP API.
package httpapi

import (
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"github.com/osa030/muser/internal/infra/metrics"
)

// Config represents HTTP API configuration.
type Config struct {
	AdminToken     string
	RequestTimeout time.Duration
	CORSOrigins    []string
}

// Server routes requests to the handlers.
type Server struct {
	handler http.Handler
}

// NewServer creates the API and its routes.
func NewServer(cfg Config, h *Handlers) *Server {
	router := mux.NewRouter()

	timeout := cfg.RequestTimeout
	if timeout <= 0 {
		timeout = 20 * time.Second
	}
	router.Use(metrics.Middleware(routeTemplate), Timeout(timeout))

	// Free play; the literal routes are registered before /pool/{genre}
	router.HandleFunc("/pool/artist", h.NextArtist).Methods(http.MethodGet)
	router.HandleFunc("/pool/main", h.NextMain).Methods(http.MethodGet)
	router.HandleFunc("/pool/{genre}", h.NextGenre).Methods(http.MethodGet)

	// Daily challenge
	router.HandleFunc("/daily/{context}", h.Daily).Methods(http.MethodGet)
	router.Handle("/rotate", AdminAuth(cfg.AdminToken)(http.HandlerFunc(h.Rotate))).Methods(http.MethodPost)

	// Game support
	router.HandleFunc("/genres", h.Genres).Methods(http.MethodGet)
	router.HandleFunc("/album/{id}/tracks", h.AlbumTracks).Methods(http.MethodGet)
	router.HandleFunc("/validate", h.Validate).Methods(http.MethodGet)
	router.HandleFunc("/guess", h.Guess).Methods(http.MethodPost)

	// Operations
	router.HandleFunc("/healthz", h.Health).Methods(http.MethodGet)
	router.Handle("/metrics", metrics.Handler()).Methods(http.MethodGet)

	router.NotFoundHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeErrorResponse(w, http.StatusNotFound, KindRouteNotFound, "endpoint not found")
	})
	router.MethodNotAllowedHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeErrorResponse(w, http.StatusMethodNotAllowed, KindMethodNotAllowed, "method not allowed")
	})

	// CORS sits outside the router so preflight requests never reach method matching
	chain := Chain(Recovery, RequestID, Logging, CORS(cfg.CORSOrigins))

	return &Server{handler: chain(router)}
}

// Handler returns the http.Handler for the server.
func (s *Server) Handler() http.Handler {
	return s.handler
}
