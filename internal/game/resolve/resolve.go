// Package resolve computes the outcome of performing an action: experience
// gained and the inventory deltas, before anything is applied. Resolving is
// a pure function of the action definition and the randomness source; it
// never reads or writes character state.
package resolve

import (
	"math"

	"idlescape.quest/internal/game/content"
	"idlescape.quest/internal/game/rng"
)

// Outcome is the computed effect of one performance of an action. Deltas are
// net per item: yields positive, costs negative, an item on both sides nets.
type Outcome struct {
	ActionID string
	XP       int
	Deltas   map[string]int
}

// Zero reports whether applying the outcome would change nothing.
func (o Outcome) Zero() bool {
	if o.XP != 0 {
		return false
	}
	for _, d := range o.Deltas {
		if d != 0 {
			return false
		}
	}
	return true
}

type Resolver struct {
	src    rng.Source
	xpMult float64
}

func New(src rng.Source, xpMultiplier float64) *Resolver {
	return &Resolver{src: src, xpMult: xpMultiplier}
}

// Resolve draws each range-valued yield independently from the source.
// Fixed yields never consume a draw, so a [2,2] range is exactly 2 under
// any source.
func (r *Resolver) Resolve(action content.ActionDef) Outcome {
	out := Outcome{
		ActionID: action.ID,
		XP:       r.scaleXP(r.draw(action.XP)),
		Deltas:   map[string]int{},
	}
	for _, y := range action.Yields {
		out.Deltas[y.Item] += r.draw(y.Count)
	}
	for _, c := range action.Costs {
		out.Deltas[c.Item] -= c.Count
	}
	return out
}

func (r *Resolver) draw(y content.Yield) int {
	if y.Fixed() {
		return y.Min
	}
	return r.src.IntBetween(y.Min, y.Max)
}

func (r *Resolver) scaleXP(base int) int {
	if r.xpMult == 1.0 {
		return base
	}
	return int(math.Round(float64(base) * r.xpMult))
}
