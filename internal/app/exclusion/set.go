// Package exclusion tracks the tracks already served in free play.
package exclusion

import (
	"sync"

	"github.com/osa030/muser/internal/domain/pool"
	"github.com/osa030/muser/internal/domain/track"
)

// Scope selects how keys share exclusions.
type Scope int

const (
	ScopePerKey Scope = iota // One set per pool key
	ScopeGlobal              // One set shared by every key
)

// ParseScope converts a config value to a Scope. Unknown values map to ScopePerKey.
func ParseScope(s string) Scope {
	if s == "global" {
		return ScopeGlobal
	}
	return ScopePerKey
}

type bucket struct {
	mu   sync.Mutex
	seen map[track.ID]struct{}
}

// Set is a process-local record of served track ids.
// Each bucket has its own lock, so different keys never contend.
type Set struct {
	scope Scope

	mu      sync.Mutex
	buckets map[pool.Key]*bucket
}

// New creates an empty set.
func New(scope Scope) *Set {
	return &Set{
		scope:   scope,
		buckets: make(map[pool.Key]*bucket),
	}
}

func (s *Set) bucket(key pool.Key) *bucket {
	if s.scope == ScopeGlobal {
		key = pool.Key{}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	b, ok := s.buckets[key]
	if !ok {
		b = &bucket{seen: make(map[track.ID]struct{})}
		s.buckets[key] = b
	}
	return b
}

// Seen returns a snapshot of the served ids of key.
func (s *Set) Seen(key pool.Key) map[track.ID]struct{} {
	b := s.bucket(key)
	b.mu.Lock()
	defer b.mu.Unlock()

	out := make(map[track.ID]struct{}, len(b.seen))
	for id := range b.seen {
		out[id] = struct{}{}
	}
	return out
}

// Claim marks id as served and reports whether it was unseen.
// Of two concurrent claims for the same id, exactly one succeeds.
func (s *Set) Claim(key pool.Key, id track.ID) bool {
	b := s.bucket(key)
	b.mu.Lock()
	defer b.mu.Unlock()

	if _, ok := b.seen[id]; ok {
		return false
	}
	b.seen[id] = struct{}{}
	return true
}

// Clear forgets the served ids of key.
func (s *Set) Clear(key pool.Key) {
	b := s.bucket(key)
	b.mu.Lock()
	defer b.mu.Unlock()
	b.seen = make(map[track.ID]struct{})
}

// Len returns the number of served ids of key.
func (s *Set) Len(key pool.Key) int {
	b := s.bucket(key)
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.seen)
}
