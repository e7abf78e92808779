package coordinator

import (
	"io"
	"log"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dreamware/arbor/internal/cluster"
)

func newQuietMonitor() *HeartbeatMonitor {
	h := NewHeartbeatMonitor(DefaultSilenceFactor)
	h.SetLogger(log.New(io.Discard, "", 0))
	return h
}

// TestNewHeartbeatMonitor verifies the monitor starts disabled.
func TestNewHeartbeatMonitor(t *testing.T) {
	h := newQuietMonitor()
	assert.False(t, h.Enabled())
	assert.Zero(t, h.Interval())
	assert.Nil(t, h.CheckSilence(time.Now()))

	// Fallback factor
	h = NewHeartbeatMonitor(0)
	h.SetLogger(log.New(io.Discard, "", 0))
	h.Enable(time.Second, time.Now())
	assert.Equal(t, 4*time.Second, h.Window())
}

// TestEnable covers the returned broadcast and the reset of stale records.
func TestEnable(t *testing.T) {
	start := time.Unix(1000, 0)
	h := newQuietMonitor()
	h.Touch(1, start)
	h.Touch(2, start.Add(-time.Hour))

	later := start.Add(10 * time.Minute)
	msg := h.Enable(time.Second, later)

	assert.True(t, h.Enabled())
	assert.Equal(t, cluster.KindHeartbeat, msg.Kind)
	assert.Equal(t, cluster.ControllerID, msg.ID)
	assert.Equal(t, 1000, msg.Value)

	for _, id := range []cluster.NodeID{1, 2} {
		seen, ok := h.LastSeen(id)
		require.True(t, ok)
		assert.Equal(t, later, seen, "node %d should be reset", id)
	}
	assert.Empty(t, h.CheckSilence(later))

	t.Run("non-positive interval disables", func(t *testing.T) {
		msg := h.Enable(-5*time.Millisecond, later)
		assert.False(t, h.Enabled())
		assert.Equal(t, 0, msg.Value)
		assert.Nil(t, h.CheckSilence(later.Add(time.Hour)))
	})
}

// TestCheckSilenceWindow checks the strict 4x interval boundary and self reset.
func TestCheckSilenceWindow(t *testing.T) {
	start := time.Unix(1000, 0)
	h := newQuietMonitor()
	h.Touch(1, start)
	h.Enable(time.Second, start)

	assert.Empty(t, h.CheckSilence(start.Add(4*time.Second)), "exactly one window is tolerated")

	now := start.Add(4*time.Second + time.Millisecond)
	assert.Equal(t, []cluster.NodeID{1}, h.CheckSilence(now))

	seen, _ := h.LastSeen(1)
	assert.Equal(t, now, seen)
	assert.Empty(t, h.CheckSilence(now), "same instant must not re-report")
}

// TestCheckSilenceScenario replays a node silent across two windows.
func TestCheckSilenceScenario(t *testing.T) {
	start := time.Unix(1000, 0)
	h := newQuietMonitor()
	h.Touch(1, start)
	h.Enable(1000*time.Millisecond, start)

	at := func(ms int) time.Time { return start.Add(time.Duration(ms) * time.Millisecond) }

	assert.Empty(t, h.CheckSilence(at(4400)))
	assert.Equal(t, []cluster.NodeID{1}, h.CheckSilence(at(4600)))
	assert.Empty(t, h.CheckSilence(at(8500)))
	assert.Equal(t, []cluster.NodeID{1}, h.CheckSilence(at(9100)))
}

// TestTouchKeepsNodeAlive verifies heartbeats postpone the alarm.
func TestTouchKeepsNodeAlive(t *testing.T) {
	start := time.Unix(1000, 0)
	h := newQuietMonitor()
	h.Touch(1, start)
	h.Touch(2, start)
	h.Enable(time.Second, start)

	h.Touch(2, start.Add(3*time.Second))

	silent := h.CheckSilence(start.Add(5 * time.Second))
	assert.Equal(t, []cluster.NodeID{1}, silent)
}

// TestCheckSilenceOrdering returns silent nodes in ascending id order.
func TestCheckSilenceOrdering(t *testing.T) {
	start := time.Unix(1000, 0)
	h := newQuietMonitor()
	for _, id := range []cluster.NodeID{9, 3, 5, 1} {
		h.Touch(id, start)
	}
	h.Enable(10*time.Millisecond, start)

	assert.Equal(t, []cluster.NodeID{1, 3, 5, 9}, h.CheckSilence(start.Add(time.Second)))
}
