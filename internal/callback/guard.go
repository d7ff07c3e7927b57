// Package callback guards session-code exchange against duplicate delivery.
// The same physical URL can reach the app through three channels: a live
// URL-opened event, the cold-start initial URL, and a hash fragment re-read
// on mount. The identity provider exchanges a code exactly once, so a second
// attempt must be absorbed silently rather than surfaced as an error.
package callback

import (
	"sync"
	"time"

	"github.com/cespare/xxhash/v2"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const (
	// Capacity bounds the processed-hash history. Oldest entries evict
	// first; the set is deliberately ephemeral since cold-start URLs are
	// fresh per process lifetime.
	Capacity = 20

	// ProcessingTimeout is the policy window callers race an exchange
	// against. The guard does not run timers itself; a caller whose
	// exchange has not completed within this window treats it as
	// abandoned rather than blocking indefinitely.
	ProcessingTimeout = 12 * time.Second
)

var duplicatesSuppressed = promauto.NewCounter(prometheus.CounterOpts{
	Name: "linkgate_callback_duplicates_suppressed_total",
	Help: "Auth callback URLs skipped because their hash was already processed",
})

// Guard tracks which URLs have been exchanged and whether an exchange is
// actively running.
type Guard struct {
	mu         sync.Mutex
	hashes     []uint64 // FIFO, newest last
	processing bool
}

func NewGuard() *Guard {
	return &Guard{hashes: make([]uint64, 0, Capacity)}
}

// WasProcessed reports whether this exact URL string was already exchanged.
// A hash collision reads as a false "already processed"; the worst case is a
// skipped re-exchange, which is accepted.
func (g *Guard) WasProcessed(url string) bool {
	h := xxhash.Sum64String(url)
	g.mu.Lock()
	defer g.mu.Unlock()
	for _, seen := range g.hashes {
		if seen == h {
			duplicatesSuppressed.Inc()
			return true
		}
	}
	return false
}

// MarkProcessed records the URL's hash, evicting the oldest entry at
// capacity. Recording the same URL twice is a no-op.
func (g *Guard) MarkProcessed(url string) {
	h := xxhash.Sum64String(url)
	g.mu.Lock()
	defer g.mu.Unlock()
	for _, seen := range g.hashes {
		if seen == h {
			return
		}
	}
	if len(g.hashes) == Capacity {
		g.hashes = g.hashes[1:]
	}
	g.hashes = append(g.hashes, h)
}

// IsProcessing reports whether an exchange is actively running. Distinct
// from the hash set: it covers URLs not yet hashed, so the gate can hold
// back a competing redirect mid-exchange.
func (g *Guard) IsProcessing() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.processing
}

// SetProcessing flips the busy flag.
func (g *Guard) SetProcessing(v bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.processing = v
}
