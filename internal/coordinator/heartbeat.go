package coordinator

import (
	"log"
	"sort"
	"time"

	"github.com/dreamware/arbor/internal/cluster"
)

// DefaultSilenceFactor is the number of heartbeat intervals a node may stay
// quiet before it is reported as silent.
const DefaultSilenceFactor = 4

// HeartbeatMonitor tracks when each node last proved it was alive and flags
// nodes that stay quiet for longer than the silence window.
//
// Liveness is only inferred from creation acknowledgments and explicit
// heartbeat messages, never from ordinary replies. The alarm is
// level-triggered and self-resetting: a silent node is reported once per
// window for as long as the silence lasts.
//
// HeartbeatMonitor is owned by the dispatch loop and is not safe for concurrent use.
type HeartbeatMonitor struct {
	lastSeen map[cluster.NodeID]time.Time // Last liveness signal per node
	logger   *log.Logger
	interval time.Duration // Zero means monitoring is disabled
	factor   int           // Silence window = factor * interval
}

// NewHeartbeatMonitor creates a disabled monitor.
//
// Parameters:
//   - factor: Intervals of silence tolerated; non-positive selects DefaultSilenceFactor
func NewHeartbeatMonitor(factor int) *HeartbeatMonitor {
	if factor <= 0 {
		factor = DefaultSilenceFactor
	}
	return &HeartbeatMonitor{
		lastSeen: make(map[cluster.NodeID]time.Time),
		factor:   factor,
		logger:   log.Default(),
	}
}

// SetLogger replaces the logger used for monitor events.
func (h *HeartbeatMonitor) SetLogger(l *log.Logger) {
	h.logger = l
}

// Enable sets the monitoring interval and resets every record to now, so a
// node that was quiet while monitoring was off is not reported straight away.
// A non-positive interval disables monitoring.
//
// Returns:
//   - The heartbeat configuration message to broadcast to all direct children
//
// Example:
//
//	msg := monitor.Enable(time.Second, time.Now())
//	for _, c := range registry.Children() {
//	    c.Channel.Send(msg)
//	}
func (h *HeartbeatMonitor) Enable(interval time.Duration, now time.Time) cluster.Message {
	if interval < 0 {
		interval = 0
	}
	h.interval = interval
	for id := range h.lastSeen {
		h.lastSeen[id] = now
	}
	if interval == 0 {
		h.logger.Printf("heartbeat monitoring disabled")
	} else {
		h.logger.Printf("heartbeat monitoring every %v (silence window %v)", interval, h.Window())
	}
	return cluster.NewHeartbeatConfig(interval)
}

// Enabled reports whether an interval is set.
func (h *HeartbeatMonitor) Enabled() bool {
	return h.interval > 0
}

// Interval returns the current interval; zero when disabled.
func (h *HeartbeatMonitor) Interval() time.Duration {
	return h.interval
}

// Window returns the maximum tolerated gap between liveness signals.
func (h *HeartbeatMonitor) Window() time.Duration {
	return time.Duration(h.factor) * h.interval
}

// Touch records a liveness signal from id.
func (h *HeartbeatMonitor) Touch(id cluster.NodeID, now time.Time) {
	h.lastSeen[id] = now
}

// LastSeen returns the last liveness signal recorded for id.
func (h *HeartbeatMonitor) LastSeen(id cluster.NodeID) (time.Time, bool) {
	t, ok := h.lastSeen[id]
	return t, ok
}

// CheckSilence returns, in ascending id order, every node whose last signal
// is older than the silence window, and resets those records to now so the
// same silence is not reported again until another full window passes.
//
// The dispatch loop only calls this while monitoring is enabled; on a
// disabled monitor it reports nothing.
func (h *HeartbeatMonitor) CheckSilence(now time.Time) []cluster.NodeID {
	if !h.Enabled() {
		return nil
	}
	window := h.Window()
	var silent []cluster.NodeID
	for id, seen := range h.lastSeen {
		if now.Sub(seen) > window {
			silent = append(silent, id)
			h.lastSeen[id] = now
		}
	}
	sort.Slice(silent, func(i, j int) bool { return silent[i] < silent[j] })
	return silent
}
