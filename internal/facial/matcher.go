// Package facial wraps the external biometric matchers consumed by the
// punch gate: a remote face-recognition service and the enrolled
// fingerprint template comparison.
package facial

import (
	"context"
	"errors"
)

// Match is the matcher verdict for one submitted sample.
type Match struct {
	EmployeeID int64
	Similarity float64
	Recognized bool
}

// Matcher resolves a photo to an enrolled employee. Implementations
// must bound their own latency; a timeout or transport failure is
// ErrUnavailable, distinct from a clean non-match.
type Matcher interface {
	Recognize(ctx context.Context, photo []byte, threshold float64) (Match, error)
}

// ErrUnavailable means the matcher could not be reached or timed out.
// The punch attempt is retryable by the client.
var ErrUnavailable = errors.New("facial: matcher unavailable")
