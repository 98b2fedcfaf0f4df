package chat

import "time"

// Spam throttle defaults: K messages inside W trip an automatic mute.
const (
	SpamWindow       = 15 * time.Second
	SpamThreshold    = 10
	SpamMuteDuration = 10 * time.Minute
)

type throttleKey struct {
	roomID   string
	username string
}

// Throttle is a per (room, identity) sliding window of send timestamps. Not
// concurrency-safe; the owning engine serializes access.
type Throttle struct {
	window    time.Duration
	threshold int
	hits      map[throttleKey][]time.Time
}

func NewThrottle(window time.Duration, threshold int) *Throttle {
	if window <= 0 {
		window = SpamWindow
	}
	if threshold <= 0 {
		threshold = SpamThreshold
	}
	return &Throttle{
		window:    window,
		threshold: threshold,
		hits:      make(map[throttleKey][]time.Time),
	}
}

// Observe records one send at the given instant after pruning entries older
// than the window. It returns true when the pruned-and-updated count reaches
// the threshold; the window for that key is reset as part of tripping.
func (t *Throttle) Observe(roomID, username string, now time.Time) bool {
	key := throttleKey{roomID: roomID, username: username}
	hits := t.hits[key]

	cutoff := now.Add(-t.window)
	kept := hits[:0]
	for _, ts := range hits {
		if ts.After(cutoff) {
			kept = append(kept, ts)
		}
	}
	kept = append(kept, now)

	if len(kept) >= t.threshold {
		delete(t.hits, key)
		return true
	}
	t.hits[key] = kept
	return false
}

// Forget drops all windows for username across rooms.
func (t *Throttle) Forget(username string) {
	for key := range t.hits {
		if key.username == username {
			delete(t.hits, key)
		}
	}
}

// Rename rewrites window keys from old to new.
func (t *Throttle) Rename(old, new string) {
	for key, hits := range t.hits {
		if key.username == old {
			delete(t.hits, key)
			t.hits[throttleKey{roomID: key.roomID, username: new}] = hits
		}
	}
}
