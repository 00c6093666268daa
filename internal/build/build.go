// Package build turns extracted attribute maps into validated domain
// entities. Builders never fail on missing optional data; the schema
// defaults cover it. They fail only when a required identity is absent.
package build

import (
	"errors"
	"fmt"
	"math"
	"regexp"
	"strings"

	"github.com/cory-johannsen/palworld-lens/internal/gamedata"
	"github.com/cory-johannsen/palworld-lens/internal/gvas"
	"github.com/cory-johannsen/palworld-lens/internal/model"
	"github.com/cory-johannsen/palworld-lens/internal/schema"
)

// ErrMissingRequired is wrapped by every builder error caused by an absent
// required attribute.
var ErrMissingRequired = errors.New("missing required attribute")

// ErrEmptyGuild is returned for guild groups with no members.
var ErrEmptyGuild = errors.New("guild has no members")

func missing(entity, attr string) error {
	return fmt.Errorf("%s: %w %q", entity, ErrMissingRequired, attr)
}

// playerMaxStat is the raw scale of player hunger and sanity.
const playerMaxStat = 100.0

// PlayerSave is the identity and location data read from Players/<uid>.sav.
type PlayerSave struct {
	UID        string
	InstanceID string
	Location   *model.Location
	Containers []string
}

var hex32 = regexp.MustCompile(`^[0-9a-fA-F]{32}$`)

// FileUID converts a player save file name (32 hex digits, optionally with
// the .sav extension) to the canonical dashed lower-case uid.
func FileUID(name string) (string, bool) {
	uid, err := gvas.UIDFromFileName(strings.TrimSuffix(name, ".sav"))
	if err != nil {
		return "", false
	}
	return uid, true
}

// BuildPlayerSave builds the identity of one player save. The save's own
// PlayerUId wins; fileUID, derived from the file name, is the fallback.
//
// Precondition: attrs come from the player_save schema.
// Postcondition: Returns an error wrapping ErrMissingRequired when no
// instance id or no uid can be found.
func BuildPlayerSave(attrs schema.Attrs, fileUID string) (*PlayerSave, error) {
	inst := attrs.String("instanceId")
	if inst == "" {
		return nil, missing("player save", "instanceId")
	}
	uid := attrs.String("playerUid")
	if uid == "" {
		uid = fileUID
	}
	if uid == "" {
		return nil, missing("player save", "playerUid")
	}
	ps := &PlayerSave{UID: uid, InstanceID: inst}
	if attrs.Has("x") && attrs.Has("y") {
		ps.Location = &model.Location{X: attrs.Float("x"), Y: attrs.Float("y"), Z: attrs.Float("z")}
	}
	for _, key := range []string{"otomoContainerId", "palStorageContainerId"} {
		if id := attrs.String(key); id != "" {
			ps.Containers = append(ps.Containers, id)
		}
	}
	return ps, nil
}

// BuildPlayer builds a player from its character attributes (instanceId,
// playerUid), its player-schema attributes, and its save file when one
// exists.
//
// Precondition: char must come from the character schema; save may be nil.
// Postcondition: uid comes from the character key, then the save file; an
// error wrapping ErrMissingRequired is returned when neither has one.
func BuildPlayer(char, attrs schema.Attrs, save *PlayerSave) (*model.Player, error) {
	inst := char.String("instanceId")
	if inst == "" {
		return nil, missing("player", "instanceId")
	}
	uid := char.String("playerUid")
	if uid == "" && save != nil {
		uid = save.UID
	}
	if uid == "" {
		return nil, missing("player", "uid")
	}
	p := &model.Player{
		UID:                uid,
		InstanceID:         inst,
		Name:               attrs.String("name"),
		Level:              attrs.Int("level"),
		Exp:                attrs.Int("exp"),
		HP:                 attrs.Int("hp"),
		MaxHP:              attrs.Int("maxHp"),
		Hunger:             clamp(attrs.Float("fullStomach")/playerMaxStat*100, 0, 100),
		Sanity:             sanity(attrs.Float("sanity")),
		GuildStatus:        model.GuildNone,
		StatusPoints:       attrs.IntMap("statusPoints"),
		UnusedStatusPoints: attrs.Int("unusedStatusPoints"),
	}
	if save != nil {
		p.Location = save.Location
		p.Containers = save.Containers
	}
	return p, nil
}

func sanity(v float64) float64 {
	if math.IsNaN(v) {
		return 100
	}
	return clamp(v, 0, 100)
}

// optional maps the empty string and the enum "None" to nil.
func optional(s string) *string {
	if s == "" || s == "None" {
		return nil
	}
	return &s
}

func gender(s string) string {
	switch s {
	case "Male", "Female":
		return s
	}
	return "Unknown"
}

// BuildPal builds a pal from its character and pal-schema attributes,
// resolving species data through tables.
//
// Precondition: tables must be non-nil.
// Postcondition: Returns an error wrapping ErrMissingRequired when
// instanceId or characterId is absent. Work suitability keeps only positive
// levels. Unknown species keep their character id as name and get zero
// computed stats.
func BuildPal(char, attrs schema.Attrs, tables *gamedata.Tables) (*model.Pal, error) {
	inst := char.String("instanceId")
	if inst == "" {
		return nil, missing("pal", "instanceId")
	}
	charID := attrs.String("characterId")
	if charID == "" {
		return nil, missing("pal", "characterId")
	}
	species, known := tables.SpeciesFor(charID)

	p := &model.Pal{
		InstanceID:      inst,
		CharacterID:     charID,
		Name:            gamedata.SpeciesKey(charID),
		Level:           attrs.Int("level"),
		Exp:             attrs.Int("exp"),
		HP:              attrs.Int("hp"),
		Sanity:          sanity(attrs.Float("sanity")),
		Gender:          gender(attrs.String("gender")),
		OwnerUID:        attrs.String("ownerUid"),
		OwnerStatus:     model.OwnerNone,
		ContainerID:     attrs.String("containerId"),
		ElementTypes:    []string{},
		ActiveSkills:    attrs.Strings("activeSkills"),
		WorkSuitability: map[string]int{},
		Rank:            attrs.Int("rank"),
		TalentHP:        attrs.Int("talentHp"),
		TalentMelee:     attrs.Int("talentMelee"),
		TalentShot:      attrs.Int("talentShot"),
		TalentDefense:   attrs.Int("talentDefense"),
		IsLucky:         attrs.Bool("isLucky"),
		Condition:       optional(attrs.String("workerSick")),
		HungerType:      optional(attrs.String("hungerType")),
		Friendship:      attrs.Int("friendshipPoints"),
	}
	if nick := attrs.String("nickname"); nick != "" {
		p.Nickname = &nick
	}
	p.IsAlpha = gamedata.IsAlpha(charID) && !p.IsLucky
	p.TrustLevel = tables.TrustLevel(p.Friendship)

	capacity := gamedata.DefaultMaxFullStomach
	if known {
		p.Name = species.Name
		p.ElementTypes = append(p.ElementTypes, species.Elements...)
		for work, level := range species.WorkSuitability {
			if level > 0 {
				p.WorkSuitability[work] = level
			}
		}
		if species.MaxFullStomach > 0 {
			capacity = species.MaxFullStomach
		}
	}
	p.Hunger = Hunger(attrs.Float("fullStomach"), capacity)

	passives := attrs.Strings("passiveSkills")
	p.PassiveSkills = make([]model.Skill, 0, len(passives))
	for _, id := range passives {
		sk := model.Skill{ID: id, Name: tables.PassiveName(id)}
		if def, ok := tables.Passives[id]; ok {
			sk.Description = def.Description
			sk.Rank = def.Rank
		}
		p.PassiveSkills = append(p.PassiveSkills, sk)
	}

	p.Stats = CalculateStats(species, StatInput{
		Level:         p.Level,
		TalentHP:      p.TalentHP,
		TalentMelee:   p.TalentMelee,
		TalentShot:    p.TalentShot,
		TalentDefense: p.TalentDefense,
		Rank:          p.Rank,
		TrustLevel:    p.TrustLevel,
		Alpha:         gamedata.IsAlpha(charID),
	})
	p.MaxHP = p.Stats.HP
	return p, nil
}

// guildName applies the fallback naming for unnamed guilds and guilds whose
// stored name is a raw 32-hex id.
func guildName(attrs schema.Attrs, guildID string, members int) string {
	name := attrs.String("guildName")
	if name == "" {
		name = attrs.String("groupName")
	}
	if hex32.MatchString(name) {
		name = ""
	}
	if name != "" {
		return name
	}
	if admin := attrs.String("adminUid"); admin != "" {
		return fmt.Sprintf("%s's Guild (%d members)", admin[:min(8, len(admin))], members)
	}
	return fmt.Sprintf("Guild %s (%d members)", guildID[:min(8, len(guildID))], members)
}

// BuildGuild builds a guild from guild-schema attributes. Base locations are
// attached by the relationship resolver.
//
// Postcondition: Returns an error wrapping ErrMissingRequired without a
// guildId, and ErrEmptyGuild when the member list is empty.
func BuildGuild(attrs schema.Attrs) (*model.Guild, error) {
	id := attrs.String("guildId")
	if id == "" {
		return nil, missing("guild", "guildId")
	}
	members := attrs.Strings("memberInstanceIds")
	if len(members) == 0 {
		return nil, fmt.Errorf("guild %s: %w", id, ErrEmptyGuild)
	}
	g := &model.Guild{
		GuildID:           id,
		GuildName:         guildName(attrs, id, len(members)),
		AdminUID:          attrs.String("adminUid"),
		MemberInstanceIDs: members,
		MemberUIDs:        []string{},
		BaseIDs:           attrs.Strings("baseIds"),
		BaseLocations:     []model.BaseLocation{},
		BaseCampLevel:     attrs.Int("baseCampLevel"),
	}
	roster := attrs.Maps("players")
	g.Players = make([]model.GuildPlayer, 0, len(roster))
	for _, p := range roster {
		if p.String("uid") == "" {
			continue
		}
		g.Players = append(g.Players, model.GuildPlayer{
			UID:        p.String("uid"),
			Name:       p.String("name"),
			LastOnline: p.Int("lastOnline"),
		})
	}
	return g, nil
}

// BuildBase builds a base camp from base-schema attributes. A base without
// coordinates is not placeable and is rejected.
//
// Postcondition: Returns an error wrapping ErrMissingRequired for a missing
// baseId, x, or y.
func BuildBase(attrs schema.Attrs) (*model.Base, error) {
	id := attrs.String("baseId")
	if id == "" {
		return nil, missing("base", "baseId")
	}
	if !attrs.Has("x") || !attrs.Has("y") {
		return nil, missing("base "+id, "coordinates")
	}
	return &model.Base{
		BaseID:            id,
		BaseName:          attrs.String("name"),
		GuildID:           attrs.String("guildId"),
		X:                 attrs.Float("x"),
		Y:                 attrs.Float("y"),
		Z:                 attrs.Float("z"),
		AreaRange:         attrs.Float("areaRange"),
		WorkerContainerID: attrs.String("workerContainerId"),
		PalInstanceIDs:    []string{},
	}, nil
}

// BuildMapObject builds one placed map object.
func BuildMapObject(attrs schema.Attrs) (*model.MapObject, error) {
	id := attrs.String("instanceId")
	if id == "" {
		return nil, missing("map object", "instanceId")
	}
	return &model.MapObject{
		InstanceID:  id,
		MapObjectID: attrs.String("mapObjectId"),
		BaseCampID:  attrs.String("baseCampId"),
		GroupID:     attrs.String("groupId"),
		HP:          attrs.Int("hp"),
		MaxHP:       attrs.Int("maxHp"),
		X:           attrs.Float("x"),
		Y:           attrs.Float("y"),
		Z:           attrs.Float("z"),
	}, nil
}

// MapPoints converts the static map markers of tables.
func MapPoints(tables *gamedata.Tables) []model.MapPoint {
	out := make([]model.MapPoint, 0, len(tables.MapPoints))
	for _, mp := range tables.MapPoints {
		out = append(out, model.MapPoint{
			ID:        mp.ID,
			Kind:      mp.Kind,
			Name:      mp.Name,
			X:         mp.X,
			Y:         mp.Y,
			SpeciesID: mp.SpeciesID,
			Level:     mp.Level,
		})
	}
	return out
}
