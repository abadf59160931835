package fleet

import (
	"math/rand"
	"sync"
	"time"
)

// Rand is the source of randomness used for seeding and value generation
type Rand interface {
	Float64() float64
}

// Uniform draws from [lo, hi)
func Uniform(r Rand, lo, hi float64) float64 {
	return lo + r.Float64()*(hi-lo)
}

// LockedRand is a math/rand source safe for use from several goroutines
type LockedRand struct {
	mu  sync.Mutex
	rng *rand.Rand
}

// NewLockedRand creates a source seeded with seed
func NewLockedRand(seed int64) *LockedRand {
	return &LockedRand{rng: rand.New(rand.NewSource(seed))}
}

// NewTimeSeededRand creates a source seeded from the clock
func NewTimeSeededRand() *LockedRand {
	return NewLockedRand(time.Now().UnixNano())
}

// Float64 returns a pseudo-random number in [0.0, 1.0)
func (r *LockedRand) Float64() float64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.rng.Float64()
}
