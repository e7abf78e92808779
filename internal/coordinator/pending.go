package coordinator

import (
	"log"
	"time"

	"github.com/google/uuid"
	"golang.org/x/exp/slices"

	"github.com/dreamware/arbor/internal/cluster"
)

// DefaultRequestTimeout is how long a request may stay unacknowledged before
// it is reported as timed out.
const DefaultRequestTimeout = 5 * time.Second

// PendingRequest is a request that has been sent but not yet acknowledged.
type PendingRequest struct {
	cluster.Message
	RequestID uuid.UUID // Correlates log lines for the same request
}

// matches reports whether a reply of the given kind for id acknowledges p.
// Create replies are keyed by the new child, so a pending Create also
// matches on its Aux field.
func (p PendingRequest) matches(kind cluster.Kind, id cluster.NodeID) bool {
	if p.Kind != kind {
		return false
	}
	if p.ID == id {
		return true
	}
	return kind == cluster.KindCreate && cluster.NodeID(p.Aux) == id
}

// PendingTracker records outstanding requests, matches replies against them
// and expires the ones nobody answered.
//
// Entries are kept in insertion order so expired requests are reported in the
// order they were issued. At most one entry per (kind, id) is expected to be
// live at a time; when several overlap, Resolve removes the oldest.
//
// PendingTracker is owned by the dispatch loop and is not safe for concurrent use.
type PendingTracker struct {
	logger  *log.Logger
	entries []PendingRequest
	timeout time.Duration
}

// NewPendingTracker creates an empty tracker that expires requests older than timeout.
// A non-positive timeout falls back to DefaultRequestTimeout.
func NewPendingTracker(timeout time.Duration) *PendingTracker {
	if timeout <= 0 {
		timeout = DefaultRequestTimeout
	}
	return &PendingTracker{
		timeout: timeout,
		logger:  log.Default(),
	}
}

// SetLogger replaces the logger used for request lifecycle events.
func (p *PendingTracker) SetLogger(l *log.Logger) {
	p.logger = l
}

// Timeout returns the configured expiry threshold.
func (p *PendingTracker) Timeout() time.Duration {
	return p.timeout
}

// Track appends msg to the pending set with SentAt = now.
// Sending the message is the caller's job.
//
// Returns:
//   - The stored entry, including its generated request id
func (p *PendingTracker) Track(msg cluster.Message, now time.Time) PendingRequest {
	msg.SentAt = now
	req := PendingRequest{Message: msg, RequestID: uuid.New()}
	p.entries = append(p.entries, req)
	p.logger.Printf("pending %s: tracking %s for node %d", req.RequestID, msg.Kind, msg.ID)
	return req
}

// Resolve removes the first entry acknowledged by a reply of kind for id.
//
// Unsolicited replies (stale duplicates, second answers to a broadcast) find
// no match; that is not an error and leaves the tracker untouched.
//
// Returns:
//   - The removed entry and true, or a zero entry and false when nothing matched
func (p *PendingTracker) Resolve(kind cluster.Kind, id cluster.NodeID) (PendingRequest, bool) {
	idx := slices.IndexFunc(p.entries, func(e PendingRequest) bool { return e.matches(kind, id) })
	if idx < 0 {
		return PendingRequest{}, false
	}
	req := p.entries[idx]
	p.entries = slices.Delete(p.entries, idx, idx+1)
	p.logger.Printf("pending %s: resolved %s for node %d", req.RequestID, kind, id)
	return req, true
}

// SweepExpired removes and returns, in insertion order, every entry whose
// age exceeds the timeout. Expired entries are gone for good; nothing is retried.
//
// Parameters:
//   - now: Evaluation time; an entry exactly timeout old is kept
func (p *PendingTracker) SweepExpired(now time.Time) []PendingRequest {
	var expired []PendingRequest
	kept := p.entries[:0]
	for _, e := range p.entries {
		if now.Sub(e.SentAt) > p.timeout {
			expired = append(expired, e)
			p.logger.Printf("pending %s: %s for node %d timed out after %v",
				e.RequestID, e.Kind, e.ID, now.Sub(e.SentAt))
			continue
		}
		kept = append(kept, e)
	}
	// Clear the tail so dropped entries are not retained by the backing array
	clear(p.entries[len(kept):])
	p.entries = kept
	return expired
}

// Len returns the number of outstanding requests.
func (p *PendingTracker) Len() int {
	return len(p.entries)
}

// Snapshot returns a copy of the outstanding requests in insertion order.
func (p *PendingTracker) Snapshot() []PendingRequest {
	return slices.Clone(p.entries)
}
