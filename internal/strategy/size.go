package strategy

import (
	"math"
	"math/big"
	"math/rand/v2"
	"sync"
)

// SizeSource draws trade sizes. Strategies take it as a dependency so tests
// can pin the draw.
type SizeSource interface {
	// Draw returns a value uniformly distributed in [min, max].
	Draw(min, max *big.Int) *big.Int
}

// RandomSize is the production SizeSource.
type RandomSize struct {
	mu  sync.Mutex
	rng *rand.Rand
}

// NewRandomSize seeds a PCG generator.
func NewRandomSize(seed uint64) *RandomSize {
	return &RandomSize{rng: rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))}
}

// Draw implements SizeSource.
func (r *RandomSize) Draw(min, max *big.Int) *big.Int {
	if max.Cmp(min) <= 0 {
		return new(big.Int).Set(min)
	}
	span := new(big.Int).Sub(max, min)
	span.Add(span, big.NewInt(1))
	limit := int64(math.MaxInt64)
	if span.IsInt64() {
		limit = span.Int64()
	}

	r.mu.Lock()
	offset := r.rng.Int64N(limit)
	r.mu.Unlock()

	return new(big.Int).Add(min, big.NewInt(offset))
}

// FixedSize always returns the same value clamped to the requested range.
type FixedSize struct {
	Value *big.Int
}

// Draw implements SizeSource.
func (f FixedSize) Draw(min, max *big.Int) *big.Int {
	switch {
	case f.Value == nil || f.Value.Cmp(min) < 0:
		return new(big.Int).Set(min)
	case f.Value.Cmp(max) > 0:
		return new(big.Int).Set(max)
	default:
		return new(big.Int).Set(f.Value)
	}
}
