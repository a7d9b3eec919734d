package main

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/agnivade/levenshtein"

	"idlescape.quest/internal/game/content"
	"idlescape.quest/internal/game/session"
	"idlescape.quest/internal/persistence/store"
)

// suggest returns a " (did you mean X?)" suffix when a candidate is close
// enough to the unknown name.
func suggest(name string, candidates []string) string {
	best, bestDist := "", 4
	for _, c := range candidates {
		if d := levenshtein.ComputeDistance(strings.ToLower(name), strings.ToLower(c)); d < bestDist {
			best, bestDist = c, d
		}
	}
	if best == "" {
		return ""
	}
	return fmt.Sprintf(" (did you mean %q?)", best)
}

func renderResult(g *game, res session.Result) {
	if res.Rejected() {
		fmt.Printf("Rejected: %s\n", strings.Join(res.Reasons, "; "))
		return
	}

	a := res.Applied
	label := g.actionName(res.Action)
	if res.Completed > 1 {
		label = fmt.Sprintf("%s x%d", label, res.Completed)
	}
	fmt.Printf("Applied: %s\n", label)
	if a != nil {
		skillName := res.Action
		if s, ok := g.cats.Skills.ByID[a.Skill]; ok {
			skillName = s.Name
		}
		fmt.Printf("  %s: Lvl %d - %dxp\n", skillName, a.NewLevel, a.NewXP)
		if a.LeveledUp {
			fmt.Printf("  Level up! %s is now level %d.\n", skillName, a.NewLevel)
		}
		renderInventory(g, a.Inventory, "  ")
	}
	if res.Code == session.ErrPersistence {
		logger.Printf("save failed; progress is applied in memory only: %s", strings.Join(res.Reasons, "; "))
	}
}

func renderCharacter(g *game, c store.Character, sess *session.Session) {
	fmt.Printf("Name: %s\n", c.Name)
	fmt.Printf("Created: %s (%s ago)\n", c.CreatedAt.Format(time.RFC3339), fmtDuration(time.Since(c.CreatedAt)))

	if act := sess.Activity(); act != nil {
		fmt.Printf("Current Activity: %s, started %s ago\n",
			g.actionName(act.Action), fmtDuration(time.Since(act.StartedAt)))
	} else {
		fmt.Println("Current Activity: None")
	}

	led := sess.Ledger()
	fmt.Println("Skills:")
	for _, sid := range g.cats.Skills.Order {
		exp := led.SkillXP(sid)
		lvl := led.SkillLevel(sid)
		toNext, err := g.curve.ToNext(exp)
		if err != nil {
			fatal("curve: %v", err)
		}
		fmt.Printf("  %s: Lvl %d - %dxp (%d to next)\n", g.cats.Skills.ByID[sid].Name, lvl, exp, toNext)
	}

	fmt.Println("Items:")
	renderInventory(g, led.Inventory(), "  ")
}

func renderInventory(g *game, inv map[string]int, indent string) {
	if len(inv) == 0 {
		fmt.Printf("%s(empty)\n", indent)
		return
	}
	ids := make([]string, 0, len(inv))
	for id := range inv {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	for _, id := range ids {
		name := id
		if it, ok := g.cats.Items.ByID[id]; ok {
			name = it.Name
		}
		fmt.Printf("%s%s: %d\n", indent, name, inv[id])
	}
}

func describeAction(g *game, a content.ActionDef) string {
	parts := []string{fmt.Sprintf("%s xp", yieldString(a.XP))}
	for _, y := range a.Yields {
		parts = append(parts, fmt.Sprintf("+%s %s", yieldString(y.Count), itemName(g, y.Item)))
	}
	for _, c := range a.Costs {
		parts = append(parts, fmt.Sprintf("-%d %s", c.Count, itemName(g, c.Item)))
	}
	parts = append(parts, fmt.Sprintf("%ds", a.TimeSeconds))
	return strings.Join(parts, ", ")
}

func describeRequirements(g *game, a content.ActionDef) string {
	if len(a.Requires) == 0 {
		return ""
	}
	var parts []string
	for _, r := range a.Requires {
		switch r.Kind {
		case content.ReqSkill:
			name := r.Skill
			if s, ok := g.cats.Skills.ByID[r.Skill]; ok {
				name = s.Name
			}
			parts = append(parts, fmt.Sprintf("%s %d", name, r.MinLevel))
		case content.ReqItem:
			parts = append(parts, fmt.Sprintf("%d x %s", r.Count, itemName(g, r.Item)))
		}
	}
	return fmt.Sprintf(" [requires %s]", strings.Join(parts, ", "))
}

func itemName(g *game, id string) string {
	if it, ok := g.cats.Items.ByID[id]; ok && it.Name != "" {
		return it.Name
	}
	return id
}

func yieldString(y content.Yield) string {
	if y.Fixed() {
		return fmt.Sprintf("%d", y.Min)
	}
	return fmt.Sprintf("%d-%d", y.Min, y.Max)
}
