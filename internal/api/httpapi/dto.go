package httpapi

import (
	"time"

	"github.com/osa030/muser/internal/app/guess"
	"github.com/osa030/muser/internal/app/rotation"
	"github.com/osa030/muser/internal/domain/failure"
	"github.com/osa030/muser/internal/domain/track"
)

// ArtistBody is the artist part of a track body.
type ArtistBody struct {
	ID      int64  `json:"id"`
	Name    string `json:"name"`
	Picture string `json:"picture,omitempty"`
}

// AlbumBody is the album part of a track body.
type AlbumBody struct {
	ID        int64  `json:"id"`
	Title     string `json:"title"`
	Cover     string `json:"cover,omitempty"`
	Tracklist string `json:"tracklist,omitempty"`
}

// ContributorBody is a credited contributor.
type ContributorBody struct {
	ID   int64  `json:"id"`
	Name string `json:"name"`
	Role string `json:"role,omitempty"`
}

// TrackBody is the display form of a track.
type TrackBody struct {
	ID           int64             `json:"id"`
	Title        string            `json:"title"`
	TitleShort   string            `json:"title_short"`
	Preview      string            `json:"preview"`
	Artist       ArtistBody        `json:"artist"`
	Album        AlbumBody         `json:"album"`
	Contributors []ContributorBody `json:"contributors"`
}

func newTrackBody(t *track.Track) TrackBody {
	contributors := make([]ContributorBody, 0, len(t.Contributors))
	for _, c := range t.Contributors {
		contributors = append(contributors, ContributorBody{ID: c.ID, Name: c.Name, Role: c.Role})
	}
	return TrackBody{
		ID:         int64(t.ID),
		Title:      t.Title,
		TitleShort: t.DisplayTitle(),
		Preview:    t.Preview,
		Artist: ArtistBody{
			ID:      t.Artist.ID,
			Name:    t.Artist.Name,
			Picture: t.Artist.Picture,
		},
		Album: AlbumBody{
			ID:        t.Album.ID,
			Title:     t.Album.Title,
			Cover:     t.Album.Cover,
			Tracklist: t.Album.Tracklist,
		},
		Contributors: contributors,
	}
}

// AlbumTrackBody is an album track title with its preview.
type AlbumTrackBody struct {
	Title   string `json:"title"`
	Preview string `json:"preview"`
}

// GenresResponse lists the configured genres.
type GenresResponse struct {
	Genres []string `json:"genres"`
}

// ValidateResponse reports whether a song exists for an artist.
type ValidateResponse struct {
	Match bool `json:"match"`
}

// GuessRequest is the body of a guess.
type GuessRequest struct {
	TrackID int64  `json:"track_id"`
	Guess   string `json:"guess"`
}

// GuessResponse scores a guess.
type GuessResponse struct {
	Correct bool    `json:"correct"`
	Title   bool    `json:"title"`
	Artist  bool    `json:"artist"`
	Album   bool    `json:"album"`
	Score   float64 `json:"score"`
}

func newGuessResponse(r guess.Result) GuessResponse {
	return GuessResponse{
		Correct: r.Correct(),
		Title:   r.Title,
		Artist:  r.Artist,
		Album:   r.Album,
		Score:   r.Score,
	}
}

// RotationResultBody is the outcome of one context.
type RotationResultBody struct {
	Context   string           `json:"context"`
	Outcome   rotation.Outcome `json:"outcome"`
	TrackID   *int64           `json:"track_id,omitempty"`
	ErrorKind string           `json:"error_kind,omitempty"`
}

// RotationResponse summarizes a rotation run.
type RotationResponse struct {
	OK         bool                 `json:"ok"`
	StartedAt  time.Time            `json:"started_at"`
	DurationMS int64                `json:"duration_ms"`
	Results    []RotationResultBody `json:"results"`
}

func newRotationResponse(s rotation.Summary) RotationResponse {
	results := make([]RotationResultBody, 0, len(s.Results))
	for _, r := range s.Results {
		body := RotationResultBody{Context: r.Key.String(), Outcome: r.Outcome}
		if r.TrackID != nil {
			id := int64(*r.TrackID)
			body.TrackID = &id
		}
		if r.Err != nil {
			body.ErrorKind = failure.KindOf(r.Err).String()
		}
		results = append(results, body)
	}
	return RotationResponse{
		OK:         s.OK(),
		StartedAt:  s.StartedAt,
		DurationMS: s.Duration.Milliseconds(),
		Results:    results,
	}
}
