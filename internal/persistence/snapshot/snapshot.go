// Package snapshot defines the versioned full-ledger snapshot: the unit of
// persistence. The core never issues partial writes; a gateway stores or
// loads a whole LedgerV1 at a time.
package snapshot

import (
	"sort"
	"time"
)

const Version = 1

type Header struct {
	Version     int       `json:"version"`
	CharacterID string    `json:"character_id"`
	SavedAt     time.Time `json:"saved_at"`
}

type LedgerV1 struct {
	Header Header `json:"header"`

	Skills   []SkillRowV1   `json:"skills"`
	Items    []ItemRowV1    `json:"items"`
	Activity *ActivityRowV1 `json:"activity,omitempty"`
}

type SkillRowV1 struct {
	Skill      string `json:"skill"`
	Experience int    `json:"experience"`
}

type ItemRowV1 struct {
	Item     string `json:"item"`
	Quantity int    `json:"quantity"`
}

// ActivityRowV1 records a running timed activity; completed repetitions are
// settled when the character collects.
type ActivityRowV1 struct {
	Action    string    `json:"action"`
	StartedAt time.Time `json:"started_at"`
}

// FromState builds a deterministically ordered snapshot from ledger totals.
func FromState(characterID string, skills, items map[string]int, activity *ActivityRowV1, now time.Time) LedgerV1 {
	s := LedgerV1{
		Header: Header{Version: Version, CharacterID: characterID, SavedAt: now.UTC()},
	}
	for _, id := range sortedKeys(skills) {
		s.Skills = append(s.Skills, SkillRowV1{Skill: id, Experience: skills[id]})
	}
	for _, id := range sortedKeys(items) {
		s.Items = append(s.Items, ItemRowV1{Item: id, Quantity: items[id]})
	}
	s.Activity = activity
	return s
}

// SkillMap flattens the skill rows back to totals.
func (s LedgerV1) SkillMap() map[string]int {
	out := make(map[string]int, len(s.Skills))
	for _, r := range s.Skills {
		out[r.Skill] = r.Experience
	}
	return out
}

// ItemMap flattens the item rows back to totals.
func (s LedgerV1) ItemMap() map[string]int {
	out := make(map[string]int, len(s.Items))
	for _, r := range s.Items {
		out[r.Item] = r.Quantity
	}
	return out
}

func sortedKeys(m map[string]int) []string {
	ks := make([]string, 0, len(m))
	for k := range m {
		ks = append(ks, k)
	}
	sort.Strings(ks)
	return ks
}
