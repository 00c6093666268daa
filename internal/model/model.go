// Package model defines the domain entities of a parsed save and the
// immutable Snapshot that holds them.
package model

// OwnerStatus records how a pal's owner reference resolved.
type OwnerStatus string

const (
	// OwnerNone means the pal carries no owner reference (wild or base-born).
	OwnerNone OwnerStatus = "none"
	// OwnerResolved means the owner uid matches a known player.
	OwnerResolved OwnerStatus = "resolved"
	// OwnerUnresolved means the owner uid matches no known player.
	OwnerUnresolved OwnerStatus = "unresolved"
)

// GuildStatus records how a player's guild membership resolved.
type GuildStatus string

const (
	GuildNone       GuildStatus = "none"
	GuildResolved   GuildStatus = "resolved"
	GuildUnresolved GuildStatus = "unresolved"
)

// Location is a world-space position.
type Location struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
	Z float64 `json:"z"`
}

// Player is one player character.
type Player struct {
	UID                string           `json:"uid"`
	InstanceID         string           `json:"instanceId"`
	Name               string           `json:"name"`
	Level              int64            `json:"level"`
	Exp                int64            `json:"exp"`
	HP                 int64            `json:"hp"`
	MaxHP              int64            `json:"maxHp"`
	Hunger             float64          `json:"hunger"`
	Sanity             float64          `json:"sanity"`
	GuildID            string           `json:"guildId,omitempty"`
	GuildStatus        GuildStatus      `json:"guildStatus"`
	Location           *Location        `json:"location,omitempty"`
	StatusPoints       map[string]int64 `json:"statusPoints"`
	UnusedStatusPoints int64            `json:"unusedStatusPoints"`
	// LastOnline is the guild roster's last-online tick count, 0 when unknown.
	LastOnline int64 `json:"lastOnline"`
	// Containers are the character containers the player's save names
	// (party and pal box).
	Containers []string `json:"-"`
}

// Skill is a skill id with its display name.
type Skill struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
	Rank        int    `json:"rank,omitempty"`
}

// Stats are computed combat stats.
type Stats struct {
	HP        int64 `json:"hp"`
	Attack    int64 `json:"attack"`
	Defense   int64 `json:"defense"`
	WorkSpeed int64 `json:"workSpeed"`
}

// Pal is one non-player character.
type Pal struct {
	InstanceID      string         `json:"instanceId"`
	CharacterID     string         `json:"characterId"`
	Name            string         `json:"name"`
	Nickname        *string        `json:"nickname"`
	Level           int64          `json:"level"`
	Exp             int64          `json:"exp"`
	HP              int64          `json:"hp"`
	MaxHP           int64          `json:"maxHp"`
	Hunger          float64        `json:"hunger"`
	Sanity          float64        `json:"sanity"`
	Gender          string         `json:"gender"`
	OwnerUID        string         `json:"ownerUid,omitempty"`
	OwnerName       string         `json:"ownerName,omitempty"`
	OwnerStatus     OwnerStatus    `json:"ownerStatus"`
	GuildID         string         `json:"guildId,omitempty"`
	BaseID          string         `json:"baseId,omitempty"`
	BaseName        string         `json:"baseName,omitempty"`
	ContainerID     string         `json:"containerId,omitempty"`
	ElementTypes    []string       `json:"elementTypes"`
	PassiveSkills   []Skill        `json:"passiveSkills"`
	ActiveSkills    []string       `json:"activeSkills"`
	WorkSuitability map[string]int `json:"workSuitability"`
	Rank            int64          `json:"rank"`
	TalentHP        int64          `json:"talentHp"`
	TalentMelee     int64          `json:"talentMelee"`
	TalentShot      int64          `json:"talentShot"`
	TalentDefense   int64          `json:"talentDefense"`
	IsLucky         bool           `json:"isLucky"`
	IsAlpha         bool           `json:"isAlpha"`
	Condition       *string        `json:"condition"`
	HungerType      *string        `json:"hungerType"`
	Stats           Stats          `json:"stats"`
	Friendship      int64          `json:"friendshipPoints"`
	TrustLevel      int            `json:"trustLevel"`
}

// BaseLocation is a guild base's position.
type BaseLocation struct {
	BaseID   string  `json:"baseId"`
	BaseName string  `json:"baseName"`
	X        float64 `json:"x"`
	Y        float64 `json:"y"`
}

// GuildPlayer is one entry of a guild roster.
type GuildPlayer struct {
	UID        string `json:"uid"`
	Name       string `json:"name"`
	LastOnline int64  `json:"lastOnline"`
}

// Guild is one player guild.
type Guild struct {
	GuildID   string `json:"guildId"`
	GuildName string `json:"guildName"`
	AdminUID  string `json:"adminUid,omitempty"`
	// MemberInstanceIDs are character instance ids, not player uids.
	MemberInstanceIDs []string       `json:"memberInstanceIds"`
	MemberUIDs        []string       `json:"memberUids"`
	Players           []GuildPlayer  `json:"players"`
	// BaseIDs are the base camps the guild record claims.
	BaseIDs           []string       `json:"baseIds"`
	BaseLocations     []BaseLocation `json:"baseLocations"`
	BaseCampLevel     int64          `json:"baseCampLevel"`
}

// Base is a guild base with the pals currently assigned to it.
type Base struct {
	BaseID            string   `json:"baseId"`
	BaseName          string   `json:"baseName"`
	GuildID           string   `json:"guildId"`
	X                 float64  `json:"x"`
	Y                 float64  `json:"y"`
	Z                 float64  `json:"z"`
	AreaRange         float64  `json:"areaRange"`
	WorkerContainerID string   `json:"-"`
	PalInstanceIDs    []string `json:"palInstanceIds"`
}

// MapObject is one placed map object.
type MapObject struct {
	InstanceID  string  `json:"instanceId"`
	MapObjectID string  `json:"mapObjectId"`
	BaseCampID  string  `json:"baseCampId,omitempty"`
	GroupID     string  `json:"groupId,omitempty"`
	HP          int64   `json:"hp"`
	MaxHP       int64   `json:"maxHp"`
	X           float64 `json:"x"`
	Y           float64 `json:"y"`
	Z           float64 `json:"z"`
}

// MapPoint is a static map marker (fast travel point or alpha spawn).
type MapPoint struct {
	ID        string  `json:"id"`
	Kind      string  `json:"kind"`
	Name      string  `json:"name"`
	X         float64 `json:"x"`
	Y         float64 `json:"y"`
	SpeciesID string  `json:"speciesId,omitempty"`
	Level     int     `json:"level,omitempty"`
}
