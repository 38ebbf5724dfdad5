package session

import (
	"math/rand"
	"sync"
	"time"
)

// Interjector decides whether commentary is interposed between two tracks.
// Implementations must be safe for use from orchestrator callbacks.
type Interjector interface {
	ShouldInterject(chance float64) bool
}

type randomInterjector struct {
	mu  sync.Mutex
	rnd *rand.Rand
}

func newRandomInterjector() *randomInterjector {
	return &randomInterjector{
		rnd: rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

func (r *randomInterjector) ShouldInterject(chance float64) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.rnd.Float64() < chance
}
