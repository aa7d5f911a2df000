package rotation

import (
	"time"

	"github.com/cockroachdb/errors"

	"github.com/osa030/muser/internal/domain/pool"
	"github.com/osa030/muser/internal/domain/track"
)

// Outcome is the result of rotating one context.
type Outcome int

const (
	OutcomeRotated Outcome = iota // A new track became current
	OutcomeReset                  // No readable unseen track; history emptied
	OutcomeSkipped                // No row provisioned for the context
	OutcomeFailed                 // Pool, store or context error
)

// String returns the string representation of the outcome.
func (o Outcome) String() string {
	switch o {
	case OutcomeRotated:
		return "rotated"
	case OutcomeReset:
		return "reset"
	case OutcomeSkipped:
		return "skipped"
	case OutcomeFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// MarshalText encodes the outcome by name.
func (o Outcome) MarshalText() ([]byte, error) {
	return []byte(o.String()), nil
}

// UnmarshalText decodes an outcome name.
func (o *Outcome) UnmarshalText(text []byte) error {
	for _, c := range []Outcome{OutcomeRotated, OutcomeReset, OutcomeSkipped, OutcomeFailed} {
		if c.String() == string(text) {
			*o = c
			return nil
		}
	}
	return errors.Newf("unknown rotation outcome: %q", text)
}

// Result is the rotation result of one context.
type Result struct {
	Key     pool.Key
	Outcome Outcome
	TrackID *track.ID // Set when rotated
	Err     error     // Set when failed
}

// Summary collects the results of one RotateAll run in context order.
type Summary struct {
	StartedAt time.Time
	Duration  time.Duration
	Results   []Result
}

// Count returns the number of contexts with the given outcome.
func (s *Summary) Count(o Outcome) int {
	n := 0
	for _, r := range s.Results {
		if r.Outcome == o {
			n++
		}
	}
	return n
}

// OK reports whether no context failed.
func (s *Summary) OK() bool {
	return s.Count(OutcomeFailed) == 0
}
