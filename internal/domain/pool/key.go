// Package pool provides the PoolKey that identifies a track universe.
package pool

import (
	"strings"
)

// Kind discriminates pool keys.
type Kind int

const (
	KindMain   Kind = iota // Daily challenge main pool
	KindGenre              // Genre pool
	KindArtist             // Artist top-tracks pool
)

// String returns the string representation of the kind.
func (k Kind) String() string {
	switch k {
	case KindMain:
		return "main"
	case KindGenre:
		return "genre"
	case KindArtist:
		return "artist"
	default:
		return "unknown"
	}
}

// Key identifies a pool. The zero value is the Main key.
type Key struct {
	Kind Kind
	Name string // Genre name as configured, or normalized artist name
}

// Main returns the main pool key.
func Main() Key {
	return Key{Kind: KindMain}
}

// Genre returns the key of a configured genre. Genre names are matched exactly.
func Genre(name string) Key {
	return Key{Kind: KindGenre, Name: name}
}

// Artist returns the key for an artist. The name is trimmed and case-folded,
// so " Drake" and "drake" share one entry.
func Artist(name string) Key {
	return Key{Kind: KindArtist, Name: NormalizeArtist(name)}
}

// NormalizeArtist trims and lowercases an artist name.
func NormalizeArtist(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}

// String returns the cache key form: "main", "genre:<name>" or "artist:<name>".
func (k Key) String() string {
	if k.Kind == KindMain {
		return "main"
	}
	return k.Kind.String() + ":" + k.Name
}

// IsRotating reports whether the key has a persisted daily-challenge row.
func (k Key) IsRotating() bool {
	return k.Kind == KindMain || k.Kind == KindGenre
}
