// Package rng is the injectable randomness source for yield draws.
package rng

import (
	"fmt"
	"math/rand/v2"
	"time"
)

// Source draws uniformly from closed integer ranges. Hosts inject one; tests
// substitute a fixed sequence.
type Source interface {
	// IntBetween returns a uniform draw from [low, high]. Panics when
	// low > high; that is a content validation failure upstream.
	IntBetween(low, high int) int
}

type pcgSource struct {
	r *rand.Rand
}

// NewPCG returns a deterministic Source seeded from the two words.
func NewPCG(seed1, seed2 uint64) Source {
	return &pcgSource{r: rand.New(rand.NewPCG(seed1, seed2))}
}

// Seeded returns a Source seeded from the wall clock, for interactive play.
func Seeded() Source {
	now := uint64(time.Now().UnixNano())
	return NewPCG(now, now>>32|1)
}

func (s *pcgSource) IntBetween(low, high int) int {
	if low > high {
		panic(fmt.Sprintf("rng: inverted range [%d,%d]", low, high))
	}
	return low + s.r.IntN(high-low+1)
}

// Fixed is a test Source that replays a scripted sequence of draws and
// panics when the sequence is exhausted.
type Fixed struct {
	vals []int
	i    int
}

func NewFixed(vals ...int) *Fixed {
	return &Fixed{vals: vals}
}

func (f *Fixed) IntBetween(low, high int) int {
	if low > high {
		panic(fmt.Sprintf("rng: inverted range [%d,%d]", low, high))
	}
	if f.i >= len(f.vals) {
		panic("rng: fixed source exhausted")
	}
	v := f.vals[f.i]
	f.i++
	if v < low || v > high {
		panic(fmt.Sprintf("rng: scripted draw %d outside [%d,%d]", v, low, high))
	}
	return v
}

// Remaining reports how many scripted draws are left, so tests can assert
// every expected draw was consumed.
func (f *Fixed) Remaining() int { return len(f.vals) - f.i }
