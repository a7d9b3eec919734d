// Package xp maps cumulative experience to levels and back.
//
// The curve is a pure function: level is always derived from experience,
// never stored, so the two cannot drift.
package xp

import (
	"errors"
	"fmt"
	"math"
)

// ErrInvalidExperience is returned for negative experience. Negative values
// are a content or programmer error and are never clamped.
var ErrInvalidExperience = errors.New("xp: negative experience")

// Curve is a polynomial growth law: the cumulative experience threshold for
// level n is ceil(base * (n-1)^exponent), with level 1 at 0.
type Curve struct {
	base     float64
	exponent float64
}

func New(base, exponent float64) (*Curve, error) {
	if base < 1 {
		return nil, fmt.Errorf("xp: curve base %v < 1", base)
	}
	if exponent < 1 {
		return nil, fmt.Errorf("xp: curve exponent %v < 1", exponent)
	}
	return &Curve{base: base, exponent: exponent}, nil
}

// Threshold returns the cumulative experience required to hold the given
// level. Level 1 requires 0.
func (c *Curve) Threshold(level int) (int, error) {
	if level < 1 {
		return 0, fmt.Errorf("xp: level %d < 1", level)
	}
	if level == 1 {
		return 0, nil
	}
	// Ceil so float rounding never makes a threshold easier to reach.
	t := math.Ceil(c.base * math.Pow(float64(level-1), c.exponent))
	// Saturate rather than wrap on conversion; no reachable experience
	// total exceeds a saturated threshold.
	if t >= float64(math.MaxInt) {
		return math.MaxInt, nil
	}
	return int(t), nil
}

// Level returns the greatest level whose threshold does not exceed the given
// cumulative experience.
func (c *Curve) Level(experience int) (int, error) {
	if experience < 0 {
		return 0, fmt.Errorf("%w: %d", ErrInvalidExperience, experience)
	}

	// Exponential search for an upper bound, then binary search. The curve
	// has no level cap.
	lo, hi := 1, 2
	for {
		t, err := c.Threshold(hi)
		if err != nil {
			return 0, err
		}
		// The saturation check terminates the search even at
		// experience == MaxInt.
		if t > experience || t == math.MaxInt {
			break
		}
		lo = hi
		hi *= 2
	}
	for lo+1 < hi {
		mid := lo + (hi-lo)/2
		t, err := c.Threshold(mid)
		if err != nil {
			return 0, err
		}
		if t <= experience {
			lo = mid
		} else {
			hi = mid
		}
	}
	return lo, nil
}

// ToNext returns the experience remaining until the next level.
func (c *Curve) ToNext(experience int) (int, error) {
	lvl, err := c.Level(experience)
	if err != nil {
		return 0, err
	}
	next, err := c.Threshold(lvl + 1)
	if err != nil {
		return 0, err
	}
	return next - experience, nil
}
