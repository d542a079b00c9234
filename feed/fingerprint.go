package feed

import "sync"

// Fingerprints is the bounded set of processed message ids. When the cap is
// exceeded the whole set is cleared — an approximation, not exact LRU; a
// cleared id seen again is reprocessed, which viewers tolerate because they
// render idempotent snapshots.
type Fingerprints struct {
	mu   sync.Mutex
	cap  int
	seen map[string]struct{}
}

func NewFingerprints(cap int) *Fingerprints {
	if cap <= 0 {
		cap = 2048
	}
	return &Fingerprints{cap: cap, seen: make(map[string]struct{}, cap)}
}

// MarkSeen records id and reports whether it had been seen before. Ids are
// recorded unconditionally, including for messages that later fail parsing,
// so malformed input is never reprocessed.
func (f *Fingerprints) MarkSeen(id string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.seen[id]; ok {
		return true
	}
	if len(f.seen) >= f.cap {
		f.seen = make(map[string]struct{}, f.cap)
	}
	f.seen[id] = struct{}{}
	return false
}

// Len returns the current cache size.
func (f *Fingerprints) Len() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.seen)
}
