// Package challenge provides the persisted daily-challenge row.
package challenge

import (
	"time"

	"github.com/osa030/muser/internal/domain/pool"
	"github.com/osa030/muser/internal/domain/track"
)

// Type is the row type.
type Type string

const (
	TypeDaily Type = "daily" // Main context, genre is empty
	TypeGenre Type = "genre"
)

// Row represents one daily-challenge context.
// PreviousIDs only grows, or resets to empty on exhaustion.
type Row struct {
	ID             string       // Row ID (UUID)
	Type           Type         // daily or genre
	Genre          string       // Genre name, empty for daily
	CurrentTrackID *track.ID    // Currently served track, nil until the first rotation
	PreviousIDs    []track.ID   // Served history, append-only
	LastUpdated    time.Time    // Last rotation or reset
	Snapshot       *track.Track // Metadata captured when CurrentTrackID was chosen
}

// Update carries the fields written back by a rotation.
type Update struct {
	CurrentTrackID *track.ID
	PreviousIDs    []track.ID
	LastUpdated    time.Time
	Snapshot       *track.Track
}

// TypeFor returns the row coordinates of a rotating pool key.
func TypeFor(key pool.Key) (Type, string) {
	if key.Kind == pool.KindGenre {
		return TypeGenre, key.Name
	}
	return TypeDaily, ""
}

// NewRow creates an empty row for a rotating pool key.
func NewRow(id string, key pool.Key) *Row {
	typ, genre := TypeFor(key)
	return &Row{
		ID:          id,
		Type:        typ,
		Genre:       genre,
		PreviousIDs: []track.ID{},
	}
}

// Served returns the history as a membership set.
func (r *Row) Served() map[track.ID]struct{} {
	return track.SetOf(r.PreviousIDs)
}

// Advance makes t the current track and appends it to the history.
func (r *Row) Advance(t track.Track, now time.Time) Update {
	id := t.ID
	previous := make([]track.ID, 0, len(r.PreviousIDs)+1)
	previous = append(previous, r.PreviousIDs...)
	previous = append(previous, id)

	snapshot := t
	r.CurrentTrackID = &id
	r.PreviousIDs = previous
	r.LastUpdated = now
	r.Snapshot = &snapshot

	return r.update()
}

// ResetHistory empties the history and leaves the current track in place.
func (r *Row) ResetHistory(now time.Time) Update {
	r.PreviousIDs = []track.ID{}
	r.LastUpdated = now
	return r.update()
}

// Apply copies an update into the row.
func (r *Row) Apply(u Update) {
	r.CurrentTrackID = u.CurrentTrackID
	r.PreviousIDs = append([]track.ID{}, u.PreviousIDs...)
	r.LastUpdated = u.LastUpdated
	r.Snapshot = u.Snapshot
}

// Clone returns a deep copy of the row.
func (r *Row) Clone() *Row {
	c := *r
	if r.CurrentTrackID != nil {
		id := *r.CurrentTrackID
		c.CurrentTrackID = &id
	}
	c.PreviousIDs = append([]track.ID{}, r.PreviousIDs...)
	if r.Snapshot != nil {
		s := *r.Snapshot
		s.Contributors = append([]track.ContributorRef(nil), r.Snapshot.Contributors...)
		c.Snapshot = &s
	}
	return &c
}

func (r *Row) update() Update {
	return Update{
		CurrentTrackID: r.CurrentTrackID,
		PreviousIDs:    append([]track.ID{}, r.PreviousIDs...),
		LastUpdated:    r.LastUpdated,
		Snapshot:       r.Snapshot,
	}
}
