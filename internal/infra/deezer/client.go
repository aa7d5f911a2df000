// Package deezer provides a client for the Deezer catalog API.
package deezer

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/cockroachdb/errors"
	zlog "github.com/rs/zerolog/log"

	"github.com/osa030/muser/internal/domain/failure"
	"github.com/osa030/muser/internal/domain/playlist"
	"github.com/osa030/muser/internal/domain/track"
)

const (
	// DefaultBaseURL is the public Deezer API endpoint.
	DefaultBaseURL = "https://api.deezer.com"

	// Deezer error codes.
	codeQuota  = 4
	codeNoData = 800

	// maxPlaylistPages bounds pagination of a single playlist.
	maxPlaylistPages = 20
)

// Client is a Deezer API client. It holds no state between calls.
type Client struct {
	baseURL    string
	httpClient *http.Client
	maxRetries int
	retryDelay time.Duration
}

// Config represents Deezer client configuration.
type Config struct {
	BaseURL    string
	Timeout    time.Duration
	MaxRetries int
	RetryDelay time.Duration
}

// APIError is an error status or error payload returned by the API.
type APIError struct {
	Status  int    // HTTP status, 200 when the error came in the payload
	Code    int    // Deezer error code, 0 for plain HTTP errors
	Type    string // Deezer error type
	Message string
}

func (e *APIError) Error() string {
	if e.Code != 0 {
		return fmt.Sprintf("deezer API error %d (%s): %s", e.Code, e.Type, e.Message)
	}
	return fmt.Sprintf("deezer API status %d: %s", e.Status, e.Message)
}

// Retryable reports whether the request may succeed if repeated.
func (e *APIError) Retryable() bool {
	return e.Code == codeQuota || e.Status == http.StatusTooManyRequests || e.Status >= 500
}

// errorEnvelope is the error payload Deezer returns with HTTP 200.
type errorEnvelope struct {
	Error *struct {
		Type    string `json:"type"`
		Message string `json:"message"`
		Code    int    `json:"code"`
	} `json:"error"`
}

type apiArtist struct {
	ID        int64  `json:"id"`
	Name      string `json:"name"`
	Picture   string `json:"picture_big"`
	Tracklist string `json:"tracklist"`
	Role      string `json:"role"` // contributors only
}

type apiAlbum struct {
	ID        int64  `json:"id"`
	Title     string `json:"title"`
	Cover     string `json:"cover_big"`
	Tracklist string `json:"tracklist"`
}

type apiTrack struct {
	ID           int64       `json:"id"`
	Readable     bool        `json:"readable"`
	Title        string      `json:"title"`
	TitleShort   string      `json:"title_short"`
	Duration     int         `json:"duration"`
	Preview      string      `json:"preview"`
	Artist       apiArtist   `json:"artist"`
	Album        apiAlbum    `json:"album"`
	Contributors []apiArtist `json:"contributors"`
}

type trackPage struct {
	Data  []apiTrack `json:"data"`
	Total int        `json:"total"`
	Next  string     `json:"next"`
}

type playlistResponse struct {
	ID     int64     `json:"id"`
	Title  string    `json:"title"`
	Tracks trackPage `json:"tracks"`
}

type artistSearchResponse struct {
	Data  []apiArtist `json:"data"`
	Total int         `json:"total"`
}

// New creates a new Deezer client.
func New(cfg Config) *Client {
	baseURL := strings.TrimRight(cfg.BaseURL, "/")
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	maxRetries := cfg.MaxRetries
	if maxRetries <= 0 {
		maxRetries = 3
	}

	return &Client{
		baseURL:    baseURL,
		httpClient: &http.Client{Timeout: timeout},
		maxRetries: maxRetries,
		retryDelay: cfg.RetryDelay,
	}
}

// WithoutRetry returns a client that sends each request exactly once.
// It shares the HTTP transport of c.
func (c *Client) WithoutRetry() *Client {
	clone := *c
	clone.maxRetries = 1
	return &clone
}

// GetTrack retrieves full track metadata, including the readable flag.
// Reference: https://developers.deezer.com/api/track
func (c *Client) GetTrack(ctx context.Context, id track.ID) (*track.Track, error) {
	var t apiTrack
	if err := c.get(ctx, c.baseURL+"/track/"+id.String(), &t); err != nil {
		return nil, classify(err, fmt.Sprintf("failed to get track %s", id))
	}
	if t.ID == 0 {
		return nil, failure.Mark(nil, failure.ErrNotFound, fmt.Sprintf("track %s not found", id))
	}
	return convertTrack(&t), nil
}

// GetPlaylist retrieves a playlist and all of its track ids, following pagination.
// Reference: https://developers.deezer.com/api/playlist
func (c *Client) GetPlaylist(ctx context.Context, playlistID int64) (*playlist.Playlist, error) {
	var resp playlistResponse
	reqURL := c.baseURL + "/playlist/" + strconv.FormatInt(playlistID, 10)
	if err := c.get(ctx, reqURL, &resp); err != nil {
		return nil, classify(err, fmt.Sprintf("failed to get playlist %d", playlistID))
	}

	p := &playlist.Playlist{
		ID:       resp.ID,
		Title:    resp.Title,
		TrackIDs: make([]track.ID, 0, len(resp.Tracks.Data)),
	}
	p.TrackIDs = appendIDs(p.TrackIDs, resp.Tracks.Data)

	next := resp.Tracks.Next
	for page := 0; next != "" && page < maxPlaylistPages; page++ {
		var tp trackPage
		if err := c.get(ctx, next, &tp); err != nil {
			return nil, classify(err, fmt.Sprintf("failed to get playlist %d page %d", playlistID, page+2))
		}
		p.TrackIDs = appendIDs(p.TrackIDs, tp.Data)
		next = tp.Next
	}

	zlog.Debug().Msgf("playlist fetched: id=%d title=%q entries=%d", p.ID, p.Title, p.Len())
	return p, nil
}

// GetPlaylistTrackIDs retrieves the track ids of a playlist without repeats.
func (c *Client) GetPlaylistTrackIDs(ctx context.Context, playlistID int64) ([]track.ID, error) {
	p, err := c.GetPlaylist(ctx, playlistID)
	if err != nil {
		return nil, err
	}
	return playlist.Union(*p), nil
}

// SearchArtist returns the best match for an artist name.
// Returns failure.ErrNotFound when the search yields nothing.
// Reference: https://developers.deezer.com/api/search
func (c *Client) SearchArtist(ctx context.Context, name string) (*track.ArtistRef, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, failure.Mark(nil, failure.ErrNotFound, "artist name is required")
	}

	params := url.Values{}
	params.Set("q", name)

	var resp artistSearchResponse
	if err := c.get(ctx, c.baseURL+"/search/artist?"+params.Encode(), &resp); err != nil {
		return nil, classify(err, "failed to search artist")
	}
	if len(resp.Data) == 0 {
		return nil, failure.Mark(nil, failure.ErrNotFound, fmt.Sprintf("no artist found for %q", name))
	}

	a := resp.Data[0]
	return &track.ArtistRef{ID: a.ID, Name: a.Name, Picture: a.Picture, Tracklist: a.Tracklist}, nil
}

// GetArtistTopTrackIDs retrieves the ids of an artist's top tracks.
// Reference: https://developers.deezer.com/api/artist/top
func (c *Client) GetArtistTopTrackIDs(ctx context.Context, artistID int64, limit int) ([]track.ID, error) {
	if limit <= 0 {
		limit = 50
	}
	if limit > 100 {
		limit = 100
	}

	params := url.Values{}
	params.Set("limit", strconv.Itoa(limit))
	reqURL := fmt.Sprintf("%s/artist/%d/top?%s", c.baseURL, artistID, params.Encode())

	var page trackPage
	if err := c.get(ctx, reqURL, &page); err != nil {
		return nil, classify(err, fmt.Sprintf("failed to get top tracks of artist %d", artistID))
	}
	return appendIDs(make([]track.ID, 0, len(page.Data)), page.Data), nil
}

// GetAlbumTracks retrieves the tracks of an album. The album may be given as
// an id or as a tracklist URL.
// Reference: https://developers.deezer.com/api/album/tracks
func (c *Client) GetAlbumTracks(ctx context.Context, album string) ([]track.Track, error) {
	albumID := extractAlbumID(album)
	if albumID == "" {
		return nil, failure.Mark(nil, failure.ErrNotFound, "invalid album reference")
	}

	var page trackPage
	if err := c.get(ctx, c.baseURL+"/album/"+albumID+"/tracks", &page); err != nil {
		return nil, classify(err, fmt.Sprintf("failed to get album %s tracks", albumID))
	}

	tracks := make([]track.Track, 0, len(page.Data))
	for i := range page.Data {
		tracks = append(tracks, *convertTrack(&page.Data[i]))
	}
	return tracks, nil
}

// SearchTracks searches tracks by artist and title.
func (c *Client) SearchTracks(ctx context.Context, artist, title string) ([]track.Track, error) {
	if artist == "" || title == "" {
		return nil, errors.New("artist and title are required")
	}

	params := url.Values{}
	params.Set("q", fmt.Sprintf("artist:%q track:%q", artist, title))

	var page trackPage
	if err := c.get(ctx, c.baseURL+"/search?"+params.Encode(), &page); err != nil {
		return nil, classify(err, "failed to search tracks")
	}

	tracks := make([]track.Track, 0, len(page.Data))
	for i := range page.Data {
		tracks = append(tracks, *convertTrack(&page.Data[i]))
	}
	return tracks, nil
}

// get performs a GET with retries and decodes the JSON body into out.
func (c *Client) get(ctx context.Context, reqURL string, out any) error {
	return c.retry(ctx, func() error {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
		if err != nil {
			return errors.Wrap(err, "failed to create request")
		}
		req.Header.Set("Accept", "application/json")

		resp, err := c.httpClient.Do(req)
		if err != nil {
			return errors.Wrap(err, "failed to send request")
		}
		defer resp.Body.Close()

		body, err := io.ReadAll(resp.Body)
		if err != nil {
			return errors.Wrap(err, "failed to read response body")
		}

		if resp.StatusCode < 200 || resp.StatusCode >= 300 {
			return &APIError{Status: resp.StatusCode, Message: http.StatusText(resp.StatusCode)}
		}

		// Deezer reports most errors with HTTP 200 and an error object
		var env errorEnvelope
		if err := json.Unmarshal(body, &env); err == nil && env.Error != nil {
			return &APIError{
				Status:  resp.StatusCode,
				Code:    env.Error.Code,
				Type:    env.Error.Type,
				Message: env.Error.Message,
			}
		}

		if err := json.Unmarshal(body, out); err != nil {
			return errors.Wrap(err, "failed to parse response")
		}
		return nil
	})
}

// retry retries an operation with linear backoff.
func (c *Client) retry(ctx context.Context, fn func() error) error {
	var lastErr error
	for i := 0; i < c.maxRetries; i++ {
		err := fn()
		if err == nil {
			return nil
		}
		lastErr = err

		if !isRetryable(err) {
			return err
		}

		if i < c.maxRetries-1 {
			zlog.Debug().Msgf("retrying deezer request: attempt=%d/%d error=%v", i+1, c.maxRetries, err)
			select {
			case <-ctx.Done():
				return errors.Wrap(ctx.Err(), lastErr.Error())
			case <-time.After(c.retryDelay * time.Duration(i+1)):
			}
		}
	}
	return errors.Wrap(lastErr, "max retries exceeded")
}

// isRetryable checks if an error is retryable.
func isRetryable(err error) bool {
	if err == nil {
		return false
	}
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.Retryable()
	}
	// Transport errors
	errStr := strings.ToLower(err.Error())
	return strings.Contains(errStr, "timeout") ||
		strings.Contains(errStr, "connection reset") ||
		strings.Contains(errStr, "connection refused") ||
		strings.Contains(errStr, "eof")
}

// classify marks a client error with its failure kind.
// "No data" payloads are NotFound; everything else is an upstream failure.
func classify(err error, msg string) error {
	var apiErr *APIError
	if errors.As(err, &apiErr) && apiErr.Code == codeNoData {
		return failure.Mark(err, failure.ErrNotFound, msg)
	}
	return failure.Mark(err, failure.ErrUpstream, msg)
}

func appendIDs(ids []track.ID, tracks []apiTrack) []track.ID {
	for _, t := range tracks {
		if t.ID != 0 {
			ids = append(ids, track.ID(t.ID))
		}
	}
	return ids
}

// convertTrack converts an API track to the domain Track.
func convertTrack(t *apiTrack) *track.Track {
	contributors := make([]track.ContributorRef, 0, len(t.Contributors))
	for _, c := range t.Contributors {
		contributors = append(contributors, track.ContributorRef{ID: c.ID, Name: c.Name, Role: c.Role})
	}

	return &track.Track{
		ID:         track.ID(t.ID),
		Title:      t.Title,
		TitleShort: t.TitleShort,
		Preview:    t.Preview,
		Duration:   time.Duration(t.Duration) * time.Second,
		Artist: track.ArtistRef{
			ID:        t.Artist.ID,
			Name:      t.Artist.Name,
			Picture:   t.Artist.Picture,
			Tracklist: t.Artist.Tracklist,
		},
		Album: track.AlbumRef{
			ID:        t.Album.ID,
			Title:     t.Album.Title,
			Cover:     t.Album.Cover,
			Tracklist: t.Album.Tracklist,
		},
		Contributors: contributors,
		Readable:     t.Readable,
	}
}

// extractAlbumID extracts the album ID from a Deezer album or tracklist URL.
func extractAlbumID(input string) string {
	input = strings.TrimSpace(input)
	if input == "" {
		return ""
	}

	// Handle URL format: https://api.deezer.com/album/302127/tracks or https://www.deezer.com/en/album/302127
	if strings.Contains(input, "/album/") {
		parts := strings.Split(input, "/album/")
		id := strings.Split(parts[len(parts)-1], "?")[0]
		id = strings.Split(id, "/")[0]
		input = id
	}

	// Assume it's already an album ID
	if _, err := strconv.ParseInt(input, 10, 64); err != nil {
		return ""
	}
	return input
}
