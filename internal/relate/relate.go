// Package relate joins the entities of one parse pass: it resolves player
// identities, guild membership, pal ownership and base occupancy, and builds
// the snapshot index.
package relate

import (
	"fmt"
	"strings"

	"github.com/cory-johannsen/palworld-lens/internal/model"
)

// templateBaseName is the placeholder the game stores for bases the player
// never renamed.
const templateBaseName = "新規生成拠点テンプレート名"

const zeroGUID = "00000000-0000-0000-0000-000000000000"

// Input is everything the resolver joins. The entities are mutated in place:
// relationship fields (GuildID, OwnerStatus, BaseID, ...) are filled in.
type Input struct {
	Players []*model.Player
	Pals    []*model.Pal
	Guilds  []*model.Guild
	Bases   []*model.Base
	// Containers maps a character container id to the instance ids in its
	// slots.
	Containers map[string][]string
	// CharacterGroups maps a character instance id to the group id stored in
	// its RawData.
	CharacterGroups map[string]string
}

// Resolve fills the relationship fields of every entity in in and returns the
// index over them.
//
// Postcondition: Every pal with an owner uid is either in exactly one
// OwnerPals bucket (OwnerResolved) or in Unowned (OwnerUnresolved). Every
// base has a BasePals entry, possibly empty. Guild membership is matched
// through character instance ids only.
func Resolve(in Input) *model.Index {
	idx := &model.Index{
		InstanceToUID: make(map[string]string, len(in.Players)),
		UIDToGuild:    make(map[string]string),
		OwnerPals:     make(map[string][]*model.Pal),
		Unowned:       []*model.Pal{},
		BasePals:      make(map[string][]*model.Pal, len(in.Bases)),
		GuildBases:    make(map[string][]*model.Base, len(in.Guilds)),
	}
	players := make(map[string]*model.Player, len(in.Players))
	for _, p := range in.Players {
		idx.InstanceToUID[p.InstanceID] = p.UID
		players[p.UID] = p
	}

	resolveGuilds(in, idx, players)
	resolveBases(in, idx)
	resolveOwners(in, idx, players)
	assignBases(in, idx)
	return idx
}

// resolveGuilds maps member instance ids to player uids and marks each
// player's guild status.
func resolveGuilds(in Input, idx *model.Index, players map[string]*model.Player) {
	guildIDs := make(map[string]bool, len(in.Guilds))
	for _, g := range in.Guilds {
		guildIDs[g.GuildID] = true
		g.MemberUIDs = g.MemberUIDs[:0]
		for _, inst := range g.MemberInstanceIDs {
			uid, ok := idx.InstanceToUID[inst]
			if !ok {
				continue
			}
			g.MemberUIDs = append(g.MemberUIDs, uid)
			if _, taken := idx.UIDToGuild[uid]; !taken {
				idx.UIDToGuild[uid] = g.GuildID
			}
		}
		for _, gp := range g.Players {
			if p, ok := players[gp.UID]; ok && gp.LastOnline > p.LastOnline {
				p.LastOnline = gp.LastOnline
			}
		}
	}

	for _, p := range in.Players {
		if gid, ok := idx.UIDToGuild[p.UID]; ok {
			p.GuildID = gid
			p.GuildStatus = model.GuildResolved
			continue
		}
		// The character still points at a group that no guild claims.
		if group := in.CharacterGroups[p.InstanceID]; group != "" && group != zeroGUID && !guildIDs[group] {
			p.GuildStatus = model.GuildUnresolved
			continue
		}
		p.GuildStatus = model.GuildNone
	}
}

func isPlaceholderName(name string) bool {
	name = strings.TrimSpace(name)
	return name == "" || strings.Contains(name, templateBaseName) || strings.HasPrefix(name, "Base ")
}

// resolveBases attaches bases to their guilds, numbers unnamed bases within
// each guild and builds the guild base index.
func resolveBases(in Input, idx *model.Index) {
	guilds := make(map[string]*model.Guild, len(in.Guilds))
	claimed := make(map[string]string)
	for _, g := range in.Guilds {
		guilds[g.GuildID] = g
		g.BaseLocations = g.BaseLocations[:0]
		for _, id := range g.BaseIDs {
			if _, ok := claimed[id]; !ok {
				claimed[id] = g.GuildID
			}
		}
	}

	ordinal := make(map[string]int)
	for _, b := range in.Bases {
		if _, seen := idx.BasePals[b.BaseID]; seen {
			continue
		}
		idx.BasePals[b.BaseID] = []*model.Pal{}
		if b.GuildID == "" {
			b.GuildID = claimed[b.BaseID]
		}
		if b.GuildID != "" {
			ordinal[b.GuildID]++
		}
		if isPlaceholderName(b.BaseName) {
			if b.GuildID != "" {
				b.BaseName = fmt.Sprintf("Base %d", ordinal[b.GuildID])
			} else {
				b.BaseName = "Base " + b.BaseID[:min(8, len(b.BaseID))]
			}
		}
		g, ok := guilds[b.GuildID]
		if !ok {
			continue
		}
		idx.GuildBases[g.GuildID] = append(idx.GuildBases[g.GuildID], b)
		g.BaseLocations = append(g.BaseLocations, model.BaseLocation{
			BaseID:   b.BaseID,
			BaseName: b.BaseName,
			X:        b.X,
			Y:        b.Y,
		})
	}
}

// resolveOwners decides each pal's owner. OwnerPlayerUId wins; pals without
// one are owned by the player whose party or pal box holds them.
func resolveOwners(in Input, idx *model.Index, players map[string]*model.Player) {
	containerOwner := make(map[string]string)
	for _, p := range in.Players {
		for _, c := range p.Containers {
			containerOwner[c] = p.UID
		}
	}
	slotContainer := make(map[string]string)
	for cid, insts := range in.Containers {
		for _, inst := range insts {
			slotContainer[inst] = cid
		}
	}

	for _, pal := range in.Pals {
		if pal.ContainerID == "" {
			pal.ContainerID = slotContainer[pal.InstanceID]
		}
		if pal.OwnerUID == "" || pal.OwnerUID == zeroGUID {
			pal.OwnerUID = containerOwner[pal.ContainerID]
		}
		if pal.OwnerUID == "" {
			pal.OwnerStatus = model.OwnerNone
			continue
		}
		owner, ok := players[pal.OwnerUID]
		if !ok {
			pal.OwnerStatus = model.OwnerUnresolved
			idx.Unowned = append(idx.Unowned, pal)
			continue
		}
		pal.OwnerStatus = model.OwnerResolved
		pal.OwnerName = owner.Name
		pal.GuildID = owner.GuildID
		idx.OwnerPals[owner.UID] = append(idx.OwnerPals[owner.UID], pal)
	}
}

// assignBases places pals whose container is a base worker container.
func assignBases(in Input, idx *model.Index) {
	workerBase := make(map[string]*model.Base, len(in.Bases))
	for _, b := range in.Bases {
		if b.WorkerContainerID != "" {
			workerBase[b.WorkerContainerID] = b
		}
	}
	for _, pal := range in.Pals {
		b, ok := workerBase[pal.ContainerID]
		if !ok {
			continue
		}
		pal.BaseID = b.BaseID
		pal.BaseName = b.BaseName
		if pal.GuildID == "" {
			pal.GuildID = b.GuildID
		}
		b.PalInstanceIDs = append(b.PalInstanceIDs, pal.InstanceID)
		idx.BasePals[b.BaseID] = append(idx.BasePals[b.BaseID], pal)
	}
}
