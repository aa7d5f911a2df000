package store

import (
	"time"

	"github.com/osa030/muser/internal/domain/challenge"
	"github.com/osa030/muser/internal/domain/track"
)

// record is the serialized form of a row, shared by the Redis and SQL stores.
type record struct {
	ID             string       `json:"id" gorm:"primaryKey;type:varchar(36)"`
	Type           string       `json:"type" gorm:"type:varchar(16);not null;uniqueIndex:idx_challenge_context"`
	Genre          string       `json:"genre" gorm:"type:varchar(128);not null;default:'';uniqueIndex:idx_challenge_context"`
	CurrentTrackID *int64       `json:"current_track_id"`
	PreviousIDs    []int64      `json:"previous_ids" gorm:"serializer:json"`
	LastUpdated    time.Time    `json:"last_updated"`
	Snapshot       *track.Track `json:"snapshot,omitempty" gorm:"serializer:json"`
}

// TableName sets the SQL table name.
func (record) TableName() string {
	return "challenge_rows"
}

func toRecord(row *challenge.Row) *record {
	r := &record{
		ID:          row.ID,
		Type:        string(row.Type),
		Genre:       row.Genre,
		PreviousIDs: make([]int64, len(row.PreviousIDs)),
		LastUpdated: row.LastUpdated,
		Snapshot:    row.Snapshot,
	}
	if row.CurrentTrackID != nil {
		id := int64(*row.CurrentTrackID)
		r.CurrentTrackID = &id
	}
	for i, id := range row.PreviousIDs {
		r.PreviousIDs[i] = int64(id)
	}
	return r
}

func (r *record) toRow() *challenge.Row {
	row := &challenge.Row{
		ID:          r.ID,
		Type:        challenge.Type(r.Type),
		Genre:       r.Genre,
		PreviousIDs: make([]track.ID, len(r.PreviousIDs)),
		LastUpdated: r.LastUpdated,
		Snapshot:    r.Snapshot,
	}
	if r.CurrentTrackID != nil {
		id := track.ID(*r.CurrentTrackID)
		row.CurrentTrackID = &id
	}
	for i, id := range r.PreviousIDs {
		row.PreviousIDs[i] = track.ID(id)
	}
	return row
}

// apply copies an update into the record.
func (r *record) apply(u challenge.Update) {
	row := r.toRow()
	row.Apply(u)
	*r = *toRecord(row)
}
