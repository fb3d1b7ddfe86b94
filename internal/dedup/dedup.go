// Package dedup drops retried webhook deliveries of the same message.
//
// WeCom redelivers a callback when the endpoint does not answer fast
// enough, so the same (sender, content) pair can arrive several times
// within a few seconds. The guard admits a pair once and releases it
// after a fixed window regardless of how the handling went.
package dedup

import (
	"crypto/md5"
	"encoding/hex"
	"sync"
	"time"
)

// DefaultWindow is how long an admitted delivery blocks duplicates.
const DefaultWindow = 10 * time.Second

// Guard tracks recently admitted deliveries in memory.
type Guard struct {
	mu      sync.Mutex
	entries map[string]time.Time

	window time.Duration
	now    func() time.Time

	// timers is false when a fake clock is injected; entries then expire
	// lazily on the next Admit instead of via time.AfterFunc.
	timers bool
}

// New creates a guard with the given window (0 uses DefaultWindow).
func New(window time.Duration) *Guard {
	g := newGuard(window, time.Now)
	g.timers = true
	return g
}

// NewWithClock creates a guard using the supplied clock. Entries expire
// lazily, which keeps tests free of real sleeps.
func NewWithClock(window time.Duration, now func() time.Time) *Guard {
	return newGuard(window, now)
}

func newGuard(window time.Duration, now func() time.Time) *Guard {
	if window <= 0 {
		window = DefaultWindow
	}
	return &Guard{
		entries: make(map[string]time.Time),
		window:  window,
		now:     now,
	}
}

// key hashes sender and content into the dedup key.
func key(sender, content string) string {
	sum := md5.Sum([]byte(sender + "|" + content))
	return hex.EncodeToString(sum[:])
}

// Admit reports whether this delivery is the first within the window.
// An admitted delivery is released automatically once the window has
// elapsed; the release does not depend on the handling outcome.
func (g *Guard) Admit(sender, content string) bool {
	k := key(sender, content)
	now := g.now()

	g.mu.Lock()
	defer g.mu.Unlock()

	if admitted, ok := g.entries[k]; ok && now.Sub(admitted) < g.window {
		return false
	}

	g.entries[k] = now
	if g.timers {
		time.AfterFunc(g.window, func() { g.release(k) })
	}
	return true
}

func (g *Guard) release(k string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	delete(g.entries, k)
}

// Len returns the number of tracked entries.
func (g *Guard) Len() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.entries)
}
