package broadcast

import (
	"sync"
	"time"
)

const historySize = 50

// PlaybackState tracks what a station is playing right now and how it got
// there.
type PlaybackState struct {
	mu sync.RWMutex

	currentTrackID string
	startInstant   time.Time
	cursor         int
	history        []string // ring buffer, oldest first
}

func newPlaybackState() *PlaybackState {
	return &PlaybackState{history: make([]string, 0, historySize)}
}

// advance moves to trackID at position cursor, resetting the elapsed-time
// clock to now.
func (p *PlaybackState) advance(trackID string, cursor int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.currentTrackID = trackID
	p.cursor = cursor
	p.startInstant = time.Now()
	p.history = append(p.history, trackID)
	if len(p.history) > historySize {
		p.history = p.history[len(p.history)-historySize:]
	}
}

// Snapshot returns the current track id, its start instant, and the cursor.
func (p *PlaybackState) Snapshot() (trackID string, startInstant time.Time, cursor int) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.currentTrackID, p.startInstant, p.cursor
}

// Elapsed returns how long the current track has been playing, computed
// from the wall clock rather than any listener-local state, which is what
// gives every listener the same answer.
func (p *PlaybackState) Elapsed() time.Duration {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.startInstant.IsZero() {
		return 0
	}
	return time.Since(p.startInstant)
}

// History returns the most recent track ids played, oldest first.
func (p *PlaybackState) History() []string {
	p.mu.RLock()
	defer p.mu.RUnlock()
	out := make([]string, len(p.history))
	copy(out, p.history)
	return out
}
