// Package track provides the Track domain entity.
package track

import (
	"strconv"
	"time"
)

// ID is a Deezer track identifier.
type ID int64

// String returns the decimal form of the id.
func (id ID) String() string {
	return strconv.FormatInt(int64(id), 10)
}

// ArtistRef is the artist summary embedded in catalog payloads.
type ArtistRef struct {
	ID      int64  `json:"id"`
	Name    string `json:"name"`
	Picture string `json:"picture,omitempty"`
	// Tracklist is the catalog URL of the artist's top tracks.
	Tracklist string `json:"tracklist,omitempty"`
}

// AlbumRef is the album summary embedded in catalog payloads.
type AlbumRef struct {
	ID        int64  `json:"id"`
	Title     string `json:"title"`
	Cover     string `json:"cover,omitempty"`
	Tracklist string `json:"tracklist,omitempty"`
}

// ContributorRef is a credited contributor of a track.
type ContributorRef struct {
	ID   int64  `json:"id"`
	Name string `json:"name"`
	Role string `json:"role,omitempty"`
}

// Track represents a catalog track.
// Everything but Readable is immutable once fetched; Readable mirrors upstream
// availability and must be re-checked rather than cached.
type Track struct {
	ID           ID               `json:"id"`
	Title        string           `json:"title"`
	TitleShort   string           `json:"title_short"`
	Preview      string           `json:"preview"`
	Duration     time.Duration    `json:"duration"`
	Artist       ArtistRef        `json:"artist"`
	Album        AlbumRef         `json:"album"`
	Contributors []ContributorRef `json:"contributors"`
	Readable     bool             `json:"readable"`
}

// IsPlayable reports whether the track can be served as a game round.
// A readable track without a preview URL has nothing to play.
func (t *Track) IsPlayable() bool {
	return t.Readable && t.Preview != ""
}

// DisplayTitle returns the short title when present.
func (t *Track) DisplayTitle() string {
	if t.TitleShort != "" {
		return t.TitleShort
	}
	return t.Title
}

// Dedup returns ids with duplicates removed, preserving first-seen order.
func Dedup(ids []ID) []ID {
	seen := make(map[ID]struct{}, len(ids))
	result := make([]ID, 0, len(ids))
	for _, id := range ids {
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		result = append(result, id)
	}
	return result
}

// Without returns the ids not contained in excluded, preserving order.
func Without(ids []ID, excluded map[ID]struct{}) []ID {
	result := make([]ID, 0, len(ids))
	for _, id := range ids {
		if _, ok := excluded[id]; !ok {
			result = append(result, id)
		}
	}
	return result
}

// SetOf builds a membership set from ids.
func SetOf(ids []ID) map[ID]struct{} {
	set := make(map[ID]struct{}, len(ids))
	for _, id := range ids {
		set[id] = struct{}{}
	}
	return set
}
