package httpapi

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"

	"github.com/gorilla/mux"
	zlog "github.com/rs/zerolog/log"

	"github.com/osa030/muser/internal/app/guess"
	"github.com/osa030/muser/internal/app/rotation"
	"github.com/osa030/muser/internal/domain/pool"
	"github.com/osa030/muser/internal/domain/track"
)

// Selector serves free-play tracks.
type Selector interface {
	Next(ctx context.Context, key pool.Key) (*track.Track, error)
}

// Daily serves and rotates daily challenges.
type Daily interface {
	Current(ctx context.Context, key pool.Key) (*track.Track, error)
	RotateAll(ctx context.Context) rotation.Summary
}

// Catalog provides the catalog lookups used directly by handlers.
type Catalog interface {
	GetTrack(ctx context.Context, id track.ID) (*track.Track, error)
	GetAlbumTracks(ctx context.Context, album string) ([]track.Track, error)
	SearchTracks(ctx context.Context, artist, title string) ([]track.Track, error)
}

// Scorer scores guesses.
type Scorer interface {
	Match(guess string, t track.Track) guess.Result
}

// Handlers implements the HTTP endpoints.
type Handlers struct {
	selector Selector
	daily    Daily
	catalog  Catalog
	scorer   Scorer
	genres   []string
}

// NewHandlers creates handlers. genres lists the configured genre names in order.
func NewHandlers(selector Selector, daily Daily, catalog Catalog, scorer Scorer, genres []string) *Handlers {
	return &Handlers{
		selector: selector,
		daily:    daily,
		catalog:  catalog,
		scorer:   scorer,
		genres:   genres,
	}
}

func (h *Handlers) isGenre(name string) bool {
	for _, g := range h.genres {
		if g == name {
			return true
		}
	}
	return false
}

// NextMain serves a free-play track from the main pool.
func (h *Handlers) NextMain(w http.ResponseWriter, r *http.Request) {
	h.next(w, r, pool.Main())
}

// NextGenre serves a free-play track from a genre pool.
func (h *Handlers) NextGenre(w http.ResponseWriter, r *http.Request) {
	genre := mux.Vars(r)["genre"]
	if !h.isGenre(genre) {
		writeErrorResponse(w, http.StatusBadRequest, KindInvalidGenre, "Invalid genre selected.")
		return
	}
	h.next(w, r, pool.Genre(genre))
}

// NextArtist serves a free-play track from an artist's top tracks.
func (h *Handlers) NextArtist(w http.ResponseWriter, r *http.Request) {
	name := strings.TrimSpace(r.URL.Query().Get("name"))
	if name == "" {
		writeErrorResponse(w, http.StatusBadRequest, KindInvalidRequest, "Artist name is required.")
		return
	}
	h.next(w, r, pool.Artist(name))
}

func (h *Handlers) next(w http.ResponseWriter, r *http.Request, key pool.Key) {
	t, err := h.selector.Next(r.Context(), key)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, newTrackBody(t))
}

// Daily serves the current daily challenge of a context: "main" or a genre.
func (h *Handlers) Daily(w http.ResponseWriter, r *http.Request) {
	name := mux.Vars(r)["context"]

	key := pool.Main()
	if name != "main" {
		if !h.isGenre(name) {
			writeErrorResponse(w, http.StatusBadRequest, KindInvalidGenre, "Invalid genre selected.")
			return
		}
		key = pool.Genre(name)
	}

	t, err := h.daily.Current(r.Context(), key)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, newTrackBody(t))
}

// Rotate runs a rotation pass synchronously and returns its summary.
// The pass is detached from the request, so a client disconnect cannot
// leave it half done.
func (h *Handlers) Rotate(w http.ResponseWriter, r *http.Request) {
	zlog.Info().Msgf("manual rotation requested: remote=%s", r.RemoteAddr)
	summary := h.daily.RotateAll(context.WithoutCancel(r.Context()))

	status := http.StatusOK
	if !summary.OK() {
		status = http.StatusMultiStatus
	}
	writeJSON(w, status, newRotationResponse(summary))
}

// Genres lists the configured genres in config order.
func (h *Handlers) Genres(w http.ResponseWriter, r *http.Request) {
	genres := append([]string{}, h.genres...)
	writeJSON(w, http.StatusOK, GenresResponse{Genres: genres})
}

// AlbumTracks lists the titles and previews of an album.
func (h *Handlers) AlbumTracks(w http.ResponseWriter, r *http.Request) {
	tracks, err := h.catalog.GetAlbumTracks(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		writeError(w, r, err)
		return
	}

	out := make([]AlbumTrackBody, 0, len(tracks))
	for _, t := range tracks {
		out = append(out, AlbumTrackBody{Title: t.Title, Preview: t.Preview})
	}
	writeJSON(w, http.StatusOK, out)
}

// Validate reports whether a song by an artist exists in the catalog.
func (h *Handlers) Validate(w http.ResponseWriter, r *http.Request) {
	artist := r.URL.Query().Get("artist")
	song := r.URL.Query().Get("song")
	if artist == "" || song == "" {
		writeErrorResponse(w, http.StatusBadRequest, KindInvalidRequest, "Artist and song name are required.")
		return
	}

	results, err := h.catalog.SearchTracks(r.Context(), artist, song)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, ValidateResponse{Match: guess.MatchesSong(results, artist, song)})
}

// Guess scores a guess against a track.
func (h *Handlers) Guess(w http.ResponseWriter, r *http.Request) {
	var req GuessRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<16)).Decode(&req); err != nil {
		writeErrorResponse(w, http.StatusBadRequest, KindInvalidRequest, "Invalid request body.")
		return
	}
	if req.TrackID <= 0 || strings.TrimSpace(req.Guess) == "" {
		writeErrorResponse(w, http.StatusBadRequest, KindInvalidRequest, "track_id and guess are required.")
		return
	}

	t, err := h.catalog.GetTrack(r.Context(), track.ID(req.TrackID))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, newGuessResponse(h.scorer.Match(req.Guess, *t)))
}

// Health reports liveness.
func (h *Handlers) Health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
