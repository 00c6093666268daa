// Package gamedata holds the static lookup tables (species, skills, elements,
// work types, trust thresholds, map points) the builders consult. Tables are
// loaded once and read-only afterwards.
package gamedata

import (
	"context"
	"sort"
	"strings"
)

// Scaling is a species' per-level stat growth.
type Scaling struct {
	HP      float64 `yaml:"hp"`
	Attack  float64 `yaml:"attack"`
	Defense float64 `yaml:"defense"`
}

// Friendship is a species' trust bonus per trust level, in percent.
type Friendship struct {
	HP         float64 `yaml:"hp"`
	ShotAttack float64 `yaml:"shot_attack"`
	Defense    float64 `yaml:"defense"`
	CraftSpeed float64 `yaml:"craft_speed"`
}

// Species is the static description of one pal species.
//
// Precondition: ID must be non-empty after loading.
type Species struct {
	ID              string         `yaml:"id"`
	Name            string         `yaml:"name"`
	Elements        []string       `yaml:"elements"`
	WorkSuitability map[string]int `yaml:"work_suitability"`
	// MaxFullStomach is the stomach capacity; 0 means the default.
	MaxFullStomach float64    `yaml:"max_full_stomach"`
	Scaling        Scaling    `yaml:"scaling"`
	Friendship     Friendship `yaml:"friendship"`
}

// PassiveSkill is one passive skill.
type PassiveSkill struct {
	ID          string `yaml:"id"`
	Name        string `yaml:"name"`
	Description string `yaml:"description"`
	Rank        int    `yaml:"rank"`
}

// Element is one element type.
type Element struct {
	ID    string `yaml:"id"`
	Name  string `yaml:"name"`
	Color string `yaml:"color"`
}

// WorkType is one base work category.
type WorkType struct {
	ID   string `yaml:"id"`
	Name string `yaml:"name"`
}

// TrustThreshold is the friendship points required to reach a trust level.
type TrustThreshold struct {
	Level  int   `yaml:"level"`
	Points int64 `yaml:"points"`
}

// Map point kinds.
const (
	PointFastTravel = "fast_travel"
	PointAlphaPal   = "alpha_pal"
)

// MapPoint is one static map marker.
type MapPoint struct {
	ID        string  `yaml:"id"`
	Kind      string  `yaml:"kind"`
	Name      string  `yaml:"name"`
	X         float64 `yaml:"x"`
	Y         float64 `yaml:"y"`
	SpeciesID string  `yaml:"species_id"`
	Level     int     `yaml:"level"`
}

// DefaultMaxFullStomach is the stomach capacity used when a species does not
// declare one.
const DefaultMaxFullStomach = 150.0

// Lookup table names understood by Tables.Lookup.
const (
	TableSpecies  = "species"
	TablePassive  = "passive"
	TableElement  = "element"
	TableWorkType = "work"
)

// Tables is the read-only lookup dictionary.
type Tables struct {
	Species         map[string]*Species
	Passives        map[string]*PassiveSkill
	Elements        map[string]*Element
	WorkTypes       map[string]*WorkType
	TrustThresholds []TrustThreshold
	MapPoints       []MapPoint
}

// Source produces lookup tables.
type Source interface {
	LoadTables(ctx context.Context) (*Tables, error)
}

// NewTables returns empty tables.
func NewTables() *Tables {
	return &Tables{
		Species:   make(map[string]*Species),
		Passives:  make(map[string]*PassiveSkill),
		Elements:  make(map[string]*Element),
		WorkTypes: make(map[string]*WorkType),
	}
}

// SpeciesKey strips the alpha prefixes from a character id.
func SpeciesKey(characterID string) string {
	for _, p := range []string{"BOSS_", "Boss_"} {
		if s, ok := strings.CutPrefix(characterID, p); ok {
			return s
		}
	}
	return characterID
}

// IsAlpha reports whether characterID carries an alpha prefix.
func IsAlpha(characterID string) bool {
	return SpeciesKey(characterID) != characterID
}

// SpeciesFor resolves a save character id to its species, ignoring alpha
// prefixes and, as a fallback, letter case.
func (t *Tables) SpeciesFor(characterID string) (*Species, bool) {
	key := SpeciesKey(characterID)
	if s, ok := t.Species[key]; ok {
		return s, true
	}
	for id, s := range t.Species {
		if strings.EqualFold(id, key) {
			return s, true
		}
	}
	return nil, false
}

// PassiveName returns the display name of a passive skill, or id itself.
func (t *Tables) PassiveName(id string) string {
	if p, ok := t.Passives[id]; ok && p.Name != "" {
		return p.Name
	}
	return id
}

// TrustLevel returns the highest trust level whose threshold points does
// not exceed points.
//
// Postcondition: Returns 0 when no threshold is met.
func (t *Tables) TrustLevel(points int64) int {
	level := 0
	for _, th := range t.TrustThresholds {
		if points >= th.Points && th.Level > level {
			level = th.Level
		}
	}
	return level
}

// Lookup returns the display name for key in the named table.
func (t *Tables) Lookup(table, key string) (string, bool) {
	switch table {
	case TableSpecies:
		if s, ok := t.SpeciesFor(key); ok {
			return s.Name, true
		}
	case TablePassive:
		if p, ok := t.Passives[key]; ok {
			return p.Name, true
		}
	case TableElement:
		if e, ok := t.Elements[key]; ok {
			return e.Name, true
		}
	case TableWorkType:
		if w, ok := t.WorkTypes[key]; ok {
			return w.Name, true
		}
	}
	return "", false
}

// Counts returns the size of every table, keyed by table name.
func (t *Tables) Counts() map[string]int {
	return map[string]int{
		TableSpecies:       len(t.Species),
		TablePassive:       len(t.Passives),
		TableElement:       len(t.Elements),
		TableWorkType:      len(t.WorkTypes),
		"trust_thresholds": len(t.TrustThresholds),
		"map_points":       len(t.MapPoints),
	}
}

func (t *Tables) sortThresholds() {
	sort.Slice(t.TrustThresholds, func(i, j int) bool {
		return t.TrustThresholds[i].Points < t.TrustThresholds[j].Points
	})
}
