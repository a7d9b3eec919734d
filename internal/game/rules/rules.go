// Package rules decides whether a character may perform an action. The
// evaluator is side-effect free and reports every unmet requirement, not
// just the first, so the presentation layer can show the full picture.
package rules

import (
	"fmt"

	"idlescape.quest/internal/game/content"
)

// StateView is the read-only slice of ledger state requirements are checked
// against. Skills the character never trained report level 1.
type StateView interface {
	SkillLevel(skillID string) int
	ItemCount(itemID string) int
}

// Unmet describes a single failed requirement.
type Unmet struct {
	Requirement content.Requirement
	Reason      string
}

type Evaluator struct {
	cats *content.Catalogs
}

func NewEvaluator(cats *content.Catalogs) *Evaluator {
	return &Evaluator{cats: cats}
}

// checker evaluates one requirement kind. Kinds are dispatched through a map
// so new kinds (quests, later) add an entry without touching callers.
type checker func(e *Evaluator, r content.Requirement, view StateView) *Unmet

var checkDispatch = map[string]checker{
	content.ReqSkill: (*Evaluator).checkSkill,
	content.ReqItem:  (*Evaluator).checkItem,
}

// Evaluate returns every unmet requirement of the action. An empty result
// means the character is eligible; an action with no requirements is always
// eligible.
func (e *Evaluator) Evaluate(action content.ActionDef, view StateView) []Unmet {
	var unmet []Unmet
	for _, r := range action.Requires {
		check := checkDispatch[r.Kind]
		if check == nil {
			// Content validation keeps this out of shipped catalogs;
			// never panic on it regardless.
			unmet = append(unmet, Unmet{
				Requirement: r,
				Reason:      fmt.Sprintf("unsupported requirement kind %q", r.Kind),
			})
			continue
		}
		if u := check(e, r, view); u != nil {
			unmet = append(unmet, *u)
		}
	}
	return unmet
}

func (e *Evaluator) checkSkill(r content.Requirement, view StateView) *Unmet {
	have := view.SkillLevel(r.Skill)
	if have >= r.MinLevel {
		return nil
	}
	return &Unmet{
		Requirement: r,
		Reason:      fmt.Sprintf("%s level %d required, have %d", e.skillName(r.Skill), r.MinLevel, have),
	}
}

func (e *Evaluator) checkItem(r content.Requirement, view StateView) *Unmet {
	have := view.ItemCount(r.Item)
	if have >= r.Count {
		return nil
	}
	return &Unmet{
		Requirement: r,
		Reason:      fmt.Sprintf("requires %d x %s, have %d", r.Count, e.itemName(r.Item), have),
	}
}

func (e *Evaluator) skillName(id string) string {
	if s, ok := e.cats.Skills.ByID[id]; ok && s.Name != "" {
		return s.Name
	}
	return id
}

func (e *Evaluator) itemName(id string) string {
	if it, ok := e.cats.Items.ByID[id]; ok && it.Name != "" {
		return it.Name
	}
	return id
}

// Reasons flattens unmet requirements to their display strings.
func Reasons(unmet []Unmet) []string {
	if len(unmet) == 0 {
		return nil
	}
	out := make([]string, len(unmet))
	for i, u := range unmet {
		out[i] = u.Reason
	}
	return out
}
