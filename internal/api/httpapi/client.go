package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/cockroachdb/errors"
)

// ClientError is an error response returned by the API.
type ClientError struct {
	Status    int
	Kind      string
	Message   string
	Retryable bool
}

func (e *ClientError) Error() string {
	return fmt.Sprintf("%s (status=%d kind=%s)", e.Message, e.Status, e.Kind)
}

// Client calls the API. It is used by the command-line tools.
type Client struct {
	baseURL    string
	adminToken string
	httpClient *http.Client
}

// NewClient creates a client for the server at baseURL.
func NewClient(baseURL, adminToken string) *Client {
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		adminToken: adminToken,
		httpClient: &http.Client{Timeout: 2 * time.Minute},
	}
}

// NextTrack returns a free-play track. pool is "main", a genre name, or
// "artist" together with a non-empty artist name.
func (c *Client) NextTrack(ctx context.Context, poolName, artist string) (*TrackBody, error) {
	path := "/pool/" + url.PathEscape(poolName)
	if poolName == "artist" {
		path = "/pool/artist?name=" + url.QueryEscape(artist)
	}
	var out TrackBody
	if err := c.do(ctx, http.MethodGet, path, nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Daily returns the current daily challenge of a context.
func (c *Client) Daily(ctx context.Context, name string) (*TrackBody, error) {
	var out TrackBody
	if err := c.do(ctx, http.MethodGet, "/daily/"+url.PathEscape(name), nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Rotate triggers a rotation pass. A partial failure still returns the summary.
func (c *Client) Rotate(ctx context.Context) (*RotationResponse, error) {
	var out RotationResponse
	if err := c.do(ctx, http.MethodPost, "/rotate", nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Genres lists the configured genres.
func (c *Client) Genres(ctx context.Context) ([]string, error) {
	var out GenresResponse
	if err := c.do(ctx, http.MethodGet, "/genres", nil, &out); err != nil {
		return nil, err
	}
	return out.Genres, nil
}

// Guess scores a guess against a track.
func (c *Client) Guess(ctx context.Context, trackID int64, guess string) (*GuessResponse, error) {
	var out GuessResponse
	if err := c.do(ctx, http.MethodPost, "/guess", GuessRequest{TrackID: trackID, Guess: guess}, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Validate reports whether a song exists for an artist.
func (c *Client) Validate(ctx context.Context, artist, song string) (bool, error) {
	q := url.Values{"artist": {artist}, "song": {song}}
	var out ValidateResponse
	if err := c.do(ctx, http.MethodGet, "/validate?"+q.Encode(), nil, &out); err != nil {
		return false, err
	}
	return out.Match, nil
}

func (c *Client) do(ctx context.Context, method, path string, in, out any) error {
	var body io.Reader
	if in != nil {
		data, err := json.Marshal(in)
		if err != nil {
			return errors.Wrap(err, "failed to encode request")
		}
		body = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return errors.Wrap(err, "failed to create request")
	}
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.adminToken != "" {
		req.Header.Set(AdminTokenHeader, c.adminToken)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return errors.Wrapf(err, "%s %s", method, path)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusBadRequest {
		var er ErrorResponse
		if err := json.NewDecoder(resp.Body).Decode(&er); err != nil {
			return &ClientError{Status: resp.StatusCode, Kind: "unknown", Message: resp.Status}
		}
		return &ClientError{Status: resp.StatusCode, Kind: er.Error.Kind, Message: er.Error.Message, Retryable: er.Error.Retryable}
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return errors.Wrap(err, "failed to decode response")
	}
	return nil
}
