package model

import "time"

// ParseStats counts what one parse pass produced and skipped.
type ParseStats struct {
	Characters         int `json:"characters"`
	SkippedCharacters  int `json:"skippedCharacters"`
	SkippedGuilds      int `json:"skippedGuilds"`
	PlayerFiles        int `json:"playerFiles"`
	SkippedPlayerFiles int `json:"skippedPlayerFiles"`
	UnresolvedOwners   int `json:"unresolvedOwners"`
}

// Index holds the cross-entity lookups built by the relationship resolver.
// Slices and maps are shared with the Snapshot and must not be mutated.
type Index struct {
	// InstanceToUID maps a player's character instance id to the player uid.
	InstanceToUID map[string]string
	// UIDToGuild maps a player uid to its guild id.
	UIDToGuild map[string]string
	// OwnerPals groups pals by a resolved owner uid.
	OwnerPals map[string][]*Pal
	// Unowned lists pals whose owner uid matches no player.
	Unowned []*Pal
	// BasePals groups pals by base id. Every known base has an entry.
	BasePals map[string][]*Pal
	// GuildBases groups bases by guild id.
	GuildBases map[string][]*Base
}

// Snapshot is the complete result of one parse pass. It is never mutated
// after the loader publishes it.
type Snapshot struct {
	LoadedAt   time.Time    `json:"loadedAt"`
	WorldName  string       `json:"worldName"`
	Players    []*Player    `json:"players"`
	Pals       []*Pal       `json:"pals"`
	Guilds     []*Guild     `json:"guilds"`
	Bases      []*Base      `json:"bases"`
	MapObjects []*MapObject `json:"mapObjects"`
	MapPoints  []MapPoint   `json:"mapPoints"`
	Stats      ParseStats   `json:"stats"`

	Index *Index `json:"-"`

	players map[string]*Player
	pals    map[string]*Pal
	guilds  map[string]*Guild
}

// Seal builds the id lookups. The loader calls it once before publishing.
func (s *Snapshot) Seal() *Snapshot {
	s.players = make(map[string]*Player, len(s.Players))
	for _, p := range s.Players {
		s.players[p.UID] = p
	}
	s.pals = make(map[string]*Pal, len(s.Pals))
	for _, p := range s.Pals {
		s.pals[p.InstanceID] = p
	}
	s.guilds = make(map[string]*Guild, len(s.Guilds))
	for _, g := range s.Guilds {
		s.guilds[g.GuildID] = g
	}
	if s.Index == nil {
		s.Index = &Index{}
	}
	return s
}

// Player returns the player with uid.
func (s *Snapshot) Player(uid string) (*Player, bool) {
	p, ok := s.players[uid]
	return p, ok
}

// Pal returns the pal with instanceID.
func (s *Snapshot) Pal(instanceID string) (*Pal, bool) {
	p, ok := s.pals[instanceID]
	return p, ok
}

// Guild returns the guild with guildID.
func (s *Snapshot) Guild(guildID string) (*Guild, bool) {
	g, ok := s.guilds[guildID]
	return g, ok
}

// PalsOwnedBy returns the pals whose owner resolved to uid.
func (s *Snapshot) PalsOwnedBy(uid string) []*Pal {
	return s.Index.OwnerPals[uid]
}

// BasesOf returns the bases of guildID.
func (s *Snapshot) BasesOf(guildID string) []*Base {
	return s.Index.GuildBases[guildID]
}

// Counts summarizes the entity counts.
func (s *Snapshot) Counts() map[string]int {
	return map[string]int{
		"players":    len(s.Players),
		"pals":       len(s.Pals),
		"guilds":     len(s.Guilds),
		"bases":      len(s.Bases),
		"mapObjects": len(s.MapObjects),
	}
}
