// Package content loads the immutable game catalog: skills, the actions that
// belong to them, and the items actions consume and produce. Content is
// read-only configuration loaded once at startup; character state never
// lives here.
package content

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
)

const (
	// Requirement kinds. QUEST is reserved in the schema but rejected by
	// Load until a quest system exists.
	ReqSkill = "SKILL"
	ReqItem  = "ITEM"
	ReqQuest = "QUEST"
)

type Catalogs struct {
	Skills SkillCatalog
	Items  ItemCatalog

	Actions ActionCatalog
}

type SkillCatalog struct {
	Order  []string
	ByID   map[string]SkillDef
	Digest string
}

type SkillDef struct {
	ID      string   `json:"id"`
	Name    string   `json:"name"`
	Actions []string `json:"actions"`
}

type ItemCatalog struct {
	Order  []string
	ByID   map[string]ItemDef
	Digest string
}

type ItemDef struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

type ActionCatalog struct {
	ByID   map[string]ActionDef
	Digest string
}

type ActionDef struct {
	ID          string        `json:"id"`
	Skill       string        `json:"skill"`
	Name        string        `json:"name"`
	XP          Yield         `json:"xp"`
	Yields      []ItemYield   `json:"yields,omitempty"`
	Costs       []ItemCount   `json:"costs,omitempty"`
	Requires    []Requirement `json:"requires,omitempty"`
	TimeSeconds int           `json:"time_seconds"`
}

type ItemYield struct {
	Item  string `json:"item"`
	Count Yield  `json:"count"`
}

type ItemCount struct {
	Item  string `json:"item"`
	Count int    `json:"count"`
}

// Requirement is a tagged variant: SKILL uses Skill/MinLevel, ITEM uses
// Item/Count (held, not consumed). Quest is parsed for forward
// compatibility; Load rejects the QUEST kind until quests exist.
type Requirement struct {
	Kind     string `json:"kind"`
	Skill    string `json:"skill,omitempty"`
	MinLevel int    `json:"min_level,omitempty"`
	Item     string `json:"item,omitempty"`
	Count    int    `json:"count,omitempty"`
	Quest    string `json:"quest,omitempty"`
}

// Yield is a fixed scalar or a closed integer range. JSON accepts a bare
// number or a [min,max] pair.
type Yield struct {
	Min int
	Max int
}

func FixedYield(n int) Yield { return Yield{Min: n, Max: n} }

func (y Yield) Fixed() bool { return y.Min == y.Max }

func (y *Yield) UnmarshalJSON(b []byte) error {
	var n int
	if err := json.Unmarshal(b, &n); err == nil {
		y.Min, y.Max = n, n
		return nil
	}
	var pair [2]int
	if err := json.Unmarshal(b, &pair); err != nil {
		return fmt.Errorf("yield must be a number or [min,max]: %s", b)
	}
	y.Min, y.Max = pair[0], pair[1]
	return nil
}

func (y Yield) MarshalJSON() ([]byte, error) {
	if y.Fixed() {
		return json.Marshal(y.Min)
	}
	return json.Marshal([2]int{y.Min, y.Max})
}

func Load(configDir string) (*Catalogs, error) {
	var c Catalogs

	if err := loadSkills(filepath.Join(configDir, "skills.json"), &c.Skills); err != nil {
		return nil, err
	}
	if err := loadItems(filepath.Join(configDir, "items.json"), &c.Items); err != nil {
		return nil, err
	}
	if err := loadActions(filepath.Join(configDir, "actions.json"), &c.Actions); err != nil {
		return nil, err
	}
	if err := c.validate(); err != nil {
		return nil, err
	}
	return &c, nil
}

func sha256Hex(b []byte) string {
	sum := sha256.Sum256(b)
	return hex.EncodeToString(sum[:])
}

func loadSkills(path string, out *SkillCatalog) error {
	raw, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	out.Digest = sha256Hex(raw)

	var defs []SkillDef
	if err := json.Unmarshal(raw, &defs); err != nil {
		return fmt.Errorf("skills.json: %w", err)
	}
	out.ByID = map[string]SkillDef{}
	for _, d := range defs {
		if d.ID == "" {
			return fmt.Errorf("skills.json: empty id")
		}
		if _, dup := out.ByID[d.ID]; dup {
			return fmt.Errorf("skills.json: duplicate id %q", d.ID)
		}
		out.ByID[d.ID] = d
		out.Order = append(out.Order, d.ID)
	}
	return nil
}

func loadItems(path string, out *ItemCatalog) error {
	raw, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	out.Digest = sha256Hex(raw)

	var defs []ItemDef
	if err := json.Unmarshal(raw, &defs); err != nil {
		return fmt.Errorf("items.json: %w", err)
	}
	out.ByID = map[string]ItemDef{}
	for _, d := range defs {
		if d.ID == "" {
			return fmt.Errorf("items.json: empty id")
		}
		if _, dup := out.ByID[d.ID]; dup {
			return fmt.Errorf("items.json: duplicate id %q", d.ID)
		}
		out.ByID[d.ID] = d
	}
	ids := make([]string, 0, len(out.ByID))
	for id := range out.ByID {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	out.Order = ids
	return nil
}

func loadActions(path string, out *ActionCatalog) error {
	raw, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	out.Digest = sha256Hex(raw)

	var defs []ActionDef
	if err := json.Unmarshal(raw, &defs); err != nil {
		return fmt.Errorf("actions.json: %w", err)
	}
	out.ByID = map[string]ActionDef{}
	for _, d := range defs {
		if d.ID == "" {
			return fmt.Errorf("actions.json: empty id")
		}
		if _, dup := out.ByID[d.ID]; dup {
			return fmt.Errorf("actions.json: duplicate id %q", d.ID)
		}
		out.ByID[d.ID] = d
	}
	return nil
}

// validate cross-checks the three catalogs so the engine can trust content
// at runtime: unknown references, inverted ranges and unsupported
// requirement kinds all fail the load.
func (c *Catalogs) validate() error {
	ownedBy := map[string]string{}
	for _, sid := range c.Skills.Order {
		s := c.Skills.ByID[sid]
		seen := map[string]bool{}
		for _, aid := range s.Actions {
			a, ok := c.Actions.ByID[aid]
			if !ok {
				return fmt.Errorf("skill %q lists unknown action %q", sid, aid)
			}
			if a.Skill != sid {
				return fmt.Errorf("skill %q lists action %q owned by %q", sid, aid, a.Skill)
			}
			if seen[aid] {
				return fmt.Errorf("skill %q lists action %q twice", sid, aid)
			}
			seen[aid] = true
			ownedBy[aid] = sid
		}
	}

	for id, a := range c.Actions.ByID {
		if _, ok := c.Skills.ByID[a.Skill]; !ok {
			return fmt.Errorf("action %q references unknown skill %q", id, a.Skill)
		}
		if ownedBy[id] != a.Skill {
			return fmt.Errorf("action %q missing from skill %q action list", id, a.Skill)
		}
		if err := validYield(a.XP); err != nil {
			return fmt.Errorf("action %q xp: %w", id, err)
		}
		for _, y := range a.Yields {
			if _, ok := c.Items.ByID[y.Item]; !ok {
				return fmt.Errorf("action %q yields unknown item %q", id, y.Item)
			}
			if err := validYield(y.Count); err != nil {
				return fmt.Errorf("action %q yield %q: %w", id, y.Item, err)
			}
		}
		for _, cost := range a.Costs {
			if _, ok := c.Items.ByID[cost.Item]; !ok {
				return fmt.Errorf("action %q costs unknown item %q", id, cost.Item)
			}
			if cost.Count < 1 {
				return fmt.Errorf("action %q cost %q: count %d < 1", id, cost.Item, cost.Count)
			}
		}
		for _, r := range a.Requires {
			switch r.Kind {
			case ReqSkill:
				if _, ok := c.Skills.ByID[r.Skill]; !ok {
					return fmt.Errorf("action %q requires unknown skill %q", id, r.Skill)
				}
				if r.MinLevel < 1 {
					return fmt.Errorf("action %q skill requirement %q: min_level %d < 1", id, r.Skill, r.MinLevel)
				}
			case ReqItem:
				if _, ok := c.Items.ByID[r.Item]; !ok {
					return fmt.Errorf("action %q requires unknown item %q", id, r.Item)
				}
				if r.Count < 1 {
					return fmt.Errorf("action %q item requirement %q: count %d < 1", id, r.Item, r.Count)
				}
			case ReqQuest:
				return fmt.Errorf("action %q: quest requirements are not supported yet", id)
			default:
				return fmt.Errorf("action %q: unknown requirement kind %q", id, r.Kind)
			}
		}
		if a.TimeSeconds < 1 {
			return fmt.Errorf("action %q: time_seconds %d < 1", id, a.TimeSeconds)
		}
	}
	return nil
}

func validYield(y Yield) error {
	if y.Min < 0 {
		return fmt.Errorf("min %d < 0", y.Min)
	}
	if y.Min > y.Max {
		return fmt.Errorf("inverted range [%d,%d]", y.Min, y.Max)
	}
	return nil
}
