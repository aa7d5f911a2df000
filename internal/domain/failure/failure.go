// Package failure defines the error taxonomy shared by the selection core.
//
// Producers attach a kind to an underlying cause with errors.Mark, so the
// cause chain stays available for logging while callers classify with
// errors.Is or KindOf.
package failure

import (
	"github.com/cockroachdb/errors"
)

var (
	// ErrUpstream reports that the catalog API was unreachable or returned an error status.
	ErrUpstream = errors.New("upstream catalog unavailable")
	// ErrNotFound reports that a search produced no results.
	ErrNotFound = errors.New("not found")
	// ErrNoTracksAvailable reports that a pool build produced zero track ids.
	ErrNoTracksAvailable = errors.New("no tracks available")
	// ErrNoNewTracks reports that every track in a pool had been served.
	// The exclusions are cleared before this is returned.
	ErrNoNewTracks = errors.New("no new tracks available")
	// ErrNoReadableTracks reports that the probe budget ran out.
	ErrNoReadableTracks = errors.New("no readable tracks")
	// ErrNotConfigured reports a missing or unset daily row, or an unknown context.
	ErrNotConfigured = errors.New("not configured")
)

// Kind classifies an error for callers and the HTTP surface.
type Kind int

const (
	KindInternal Kind = iota
	KindUpstream
	KindNotFound
	KindNoTracksAvailable
	KindNoNewTracks
	KindNoReadableTracks
	KindNotConfigured
)

// String returns the wire name of the kind.
func (k Kind) String() string {
	switch k {
	case KindUpstream:
		return "upstream"
	case KindNotFound:
		return "not_found"
	case KindNoTracksAvailable:
		return "no_tracks_available"
	case KindNoNewTracks:
		return "no_new_tracks"
	case KindNoReadableTracks:
		return "no_readable_tracks"
	case KindNotConfigured:
		return "not_configured"
	default:
		return "internal"
	}
}

// Terminal reports whether retrying the same request immediately is pointless.
// NoNewTracks heals itself on retry, and upstream failures are transient.
func (k Kind) Terminal() bool {
	switch k {
	case KindNoNewTracks, KindUpstream:
		return false
	default:
		return true
	}
}

// KindOf returns the kind of err. Errors carrying several marks resolve in the
// order below, so the most specific kind wins.
func KindOf(err error) Kind {
	switch {
	case err == nil:
		return KindInternal
	case errors.Is(err, ErrNoNewTracks):
		return KindNoNewTracks
	case errors.Is(err, ErrNoReadableTracks):
		return KindNoReadableTracks
	case errors.Is(err, ErrNoTracksAvailable):
		return KindNoTracksAvailable
	case errors.Is(err, ErrNotConfigured):
		return KindNotConfigured
	case errors.Is(err, ErrNotFound):
		return KindNotFound
	case errors.Is(err, ErrUpstream):
		return KindUpstream
	default:
		return KindInternal
	}
}

// Mark tags cause with the given kind sentinel and a message.
func Mark(cause error, kind error, msg string) error {
	if cause == nil {
		return errors.Wrap(kind, msg)
	}
	return errors.Mark(errors.Wrap(cause, msg), kind)
}
