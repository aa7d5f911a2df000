// Package playlist provides the Playlist domain entity.
package playlist

import "github.com/osa030/muser/internal/domain/track"

// Playlist represents a catalog playlist reduced to what pool building needs.
type Playlist struct {
	ID       int64      // Deezer playlist ID
	Title    string     // Playlist title
	TrackIDs []track.ID // Track IDs in playlist order, possibly with repeats
}

// Union merges the track ids of several playlists into one deduplicated list.
// Order follows the first playlist that contains each id.
func Union(playlists ...Playlist) []track.ID {
	var all []track.ID
	for _, p := range playlists {
		all = append(all, p.TrackIDs...)
	}
	return track.Dedup(all)
}

// Len returns the number of entries, repeats included.
func (p *Playlist) Len() int {
	return len(p.TrackIDs)
}
