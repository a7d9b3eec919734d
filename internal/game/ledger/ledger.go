// Package ledger is the authoritative in-memory state of one character:
// cumulative experience per skill and the item inventory. All mutation goes
// through Apply, which is atomic: either the whole outcome commits or none
// of it does.
package ledger

import (
	"errors"
	"fmt"
	"sort"

	"idlescape.quest/internal/game/resolve"
	"idlescape.quest/internal/game/xp"
)

// ErrNegativeXP guards the monotonicity invariant: experience never
// decreases through the apply path.
var ErrNegativeXP = errors.New("ledger: negative experience gain")

// InsufficientError reports a debit that would drive an item total below
// zero. The apply carrying it is rejected in full.
type InsufficientError struct {
	Item    string
	Deficit int
}

func (e *InsufficientError) Error() string {
	return fmt.Sprintf("ledger: insufficient %s (short %d)", e.Item, e.Deficit)
}

// Applied reports the result of a committed outcome.
type Applied struct {
	Skill     string
	XPGained  int
	NewXP     int
	NewLevel  int
	LeveledUp bool
	Inventory map[string]int
}

type Ledger struct {
	curve  *xp.Curve
	skills map[string]int // cumulative xp, absent = 0
	items  map[string]int // held quantity, absent = 0
}

// New returns an empty ledger: every skill at 0 xp (level 1), no items.
func New(curve *xp.Curve) *Ledger {
	return &Ledger{
		curve:  curve,
		skills: map[string]int{},
		items:  map[string]int{},
	}
}

// FromState restores a ledger from persisted totals. Negative values are a
// corrupt snapshot and rejected.
func FromState(curve *xp.Curve, skills, items map[string]int) (*Ledger, error) {
	l := New(curve)
	for id, v := range skills {
		if v < 0 {
			return nil, fmt.Errorf("ledger: skill %q has negative experience %d", id, v)
		}
		if v > 0 {
			l.skills[id] = v
		}
	}
	for id, v := range items {
		if v < 0 {
			return nil, fmt.Errorf("ledger: item %q has negative quantity %d", id, v)
		}
		if v > 0 {
			l.items[id] = v
		}
	}
	return l, nil
}

func (l *Ledger) SkillXP(skillID string) int { return l.skills[skillID] }

// SkillLevel derives the level from experience through the curve. Skills the
// character never trained are level 1.
func (l *Ledger) SkillLevel(skillID string) int {
	return l.mustLevel(l.skills[skillID])
}

func (l *Ledger) ItemCount(itemID string) int { return l.items[itemID] }

// Skills returns the trained skill ids in sorted order.
func (l *Ledger) Skills() []string {
	ids := make([]string, 0, len(l.skills))
	for id := range l.skills {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Experience returns a copy of the per-skill cumulative experience.
func (l *Ledger) Experience() map[string]int {
	out := make(map[string]int, len(l.skills))
	for id, v := range l.skills {
		out[id] = v
	}
	return out
}

// Inventory returns a copy of the held items.
func (l *Ledger) Inventory() map[string]int {
	out := make(map[string]int, len(l.items))
	for id, n := range l.items {
		out[id] = n
	}
	return out
}

// Apply credits the outcome's experience to the skill and applies every item
// delta, all-or-nothing. Debits are validated against current totals before
// anything is written, so a failed apply leaves the ledger untouched.
func (l *Ledger) Apply(skillID string, out resolve.Outcome) (Applied, error) {
	if out.XP < 0 {
		return Applied{}, fmt.Errorf("%w: %d", ErrNegativeXP, out.XP)
	}
	for _, item := range sortedKeys(out.Deltas) {
		d := out.Deltas[item]
		if d < 0 && l.items[item]+d < 0 {
			return Applied{}, &InsufficientError{Item: item, Deficit: -(l.items[item] + d)}
		}
	}

	before := l.mustLevel(l.skills[skillID])
	newXP := l.skills[skillID] + out.XP
	if out.XP > 0 {
		l.skills[skillID] = newXP
	}
	for item, d := range out.Deltas {
		if d == 0 {
			continue
		}
		n := l.items[item] + d
		if n == 0 {
			delete(l.items, item)
		} else {
			l.items[item] = n
		}
	}

	after := l.mustLevel(newXP)
	return Applied{
		Skill:     skillID,
		XPGained:  out.XP,
		NewXP:     newXP,
		NewLevel:  after,
		LeveledUp: after > before,
		Inventory: l.Inventory(),
	}, nil
}

func (l *Ledger) mustLevel(experience int) int {
	lvl, err := l.curve.Level(experience)
	if err != nil {
		// Experience is guarded non-negative everywhere; reaching this is
		// a bug, not a game state.
		panic(err)
	}
	return lvl
}

func sortedKeys(m map[string]int) []string {
	ks := make([]string, 0, len(m))
	for k := range m {
		ks = append(ks, k)
	}
	sort.Strings(ks)
	return ks
}
