// Package player abstracts the video playback position a replay session
// follows. The engine only ever asks "where is the playhead right now", so
// any player integration reduces to one method.
package player

import "sync"

// PositionSource reports the current playback position in milliseconds
// since the start of the video. ok is false while no position is known,
// e.g. before playback has started.
type PositionSource interface {
	Position() (ms int64, ok bool)
}

// Fixed is a manually driven position, useful for seek-style queries and
// tests. The zero value reports no position until the first Set.
type Fixed struct {
	mu  sync.RWMutex
	ms  int64
	set bool
}

// Set moves the playhead to ms.
func (f *Fixed) Set(ms int64) {
	f.mu.Lock()
	f.ms, f.set = ms, true
	f.mu.Unlock()
}

func (f *Fixed) Position() (int64, bool) {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.ms, f.set
}
