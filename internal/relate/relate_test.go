package relate_test

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"

	"github.com/cory-johannsen/palworld-lens/internal/model"
	"github.com/cory-johannsen/palworld-lens/internal/relate"
)

func player(uid, inst, name string) *model.Player {
	return &model.Player{UID: uid, InstanceID: inst, Name: name, GuildStatus: model.GuildNone}
}

func pal(inst, owner string) *model.Pal {
	return &model.Pal{InstanceID: inst, CharacterID: "PinkCat", OwnerUID: owner, OwnerStatus: model.OwnerNone}
}

func guild(id string, members ...string) *model.Guild {
	return &model.Guild{
		GuildID:           id,
		GuildName:         id,
		MemberInstanceIDs: members,
		MemberUIDs:        []string{},
		BaseLocations:     []model.BaseLocation{},
	}
}

func TestResolve_OwnedPalWithoutGuild(t *testing.T) {
	ash := player("P1", "inst-1", "Ash")
	cat := pal("pal-1", "P1")
	idx := relate.Resolve(relate.Input{Players: []*model.Player{ash}, Pals: []*model.Pal{cat}})

	assert.Equal(t, model.OwnerResolved, cat.OwnerStatus)
	assert.Equal(t, "Ash", cat.OwnerName)
	assert.Equal(t, []*model.Pal{cat}, idx.OwnerPals["P1"])
	assert.Empty(t, idx.Unowned)
	assert.Equal(t, model.GuildNone, ash.GuildStatus)
	assert.Empty(t, idx.UIDToGuild)
}

func TestResolve_GuildMembershipGoesThroughInstanceIDs(t *testing.T) {
	ash := player("P1", "inst-1", "Ash")
	g := guild("G1", "inst-1")
	idx := relate.Resolve(relate.Input{Players: []*model.Player{ash}, Guilds: []*model.Guild{g}})

	assert.Equal(t, map[string]string{"P1": "G1"}, idx.UIDToGuild)
	assert.NotContains(t, idx.UIDToGuild, "inst-1")
	assert.Equal(t, map[string]string{"inst-1": "P1"}, idx.InstanceToUID)
	assert.Equal(t, []string{"P1"}, g.MemberUIDs)
	assert.Equal(t, "G1", ash.GuildID)
	assert.Equal(t, model.GuildResolved, ash.GuildStatus)
}

func TestResolve_GuildReferencedByUIDDoesNotMatch(t *testing.T) {
	ash := player("P1", "inst-1", "Ash")
	g := guild("G1", "P1")
	idx := relate.Resolve(relate.Input{
		Players:         []*model.Player{ash},
		Guilds:          []*model.Guild{g},
		CharacterGroups: map[string]string{"inst-1": "G-gone"},
	})
	assert.Empty(t, idx.UIDToGuild)
	assert.Empty(t, g.MemberUIDs)
	assert.Equal(t, model.GuildUnresolved, ash.GuildStatus)
	assert.Empty(t, ash.GuildID)
}

func TestResolve_UnresolvedOwnerIsKept(t *testing.T) {
	stray := pal("pal-1", "P-removed")
	wild := pal("pal-2", "")
	idx := relate.Resolve(relate.Input{Pals: []*model.Pal{stray, wild}})

	assert.Equal(t, model.OwnerUnresolved, stray.OwnerStatus)
	assert.Equal(t, "P-removed", stray.OwnerUID)
	assert.Equal(t, []*model.Pal{stray}, idx.Unowned)
	assert.Equal(t, model.OwnerNone, wild.OwnerStatus)
	assert.Empty(t, idx.OwnerPals)
}

func TestResolve_OwnerFromPlayerContainers(t *testing.T) {
	ash := player("P1", "inst-1", "Ash")
	ash.Containers = []string{"party-1", "box-1"}
	inParty := pal("pal-1", "")
	inParty.ContainerID = "party-1"
	inBox := pal("pal-2", "00000000-0000-0000-0000-000000000000")
	slotOnly := pal("pal-3", "")

	relate.Resolve(relate.Input{
		Players:    []*model.Player{ash},
		Pals:       []*model.Pal{inParty, inBox, slotOnly},
		Containers: map[string][]string{"box-1": {"pal-2", "pal-3"}},
	})

	for _, p := range []*model.Pal{inParty, inBox, slotOnly} {
		assert.Equal(t, "P1", p.OwnerUID, p.InstanceID)
		assert.Equal(t, model.OwnerResolved, p.OwnerStatus, p.InstanceID)
	}
	assert.Equal(t, "box-1", slotOnly.ContainerID)
}

func TestResolve_BasesAndOccupancy(t *testing.T) {
	ash := player("P1", "inst-1", "Ash")
	g := guild("G1", "inst-1")
	g.BaseIDs = []string{"B2"}
	named := &model.Base{BaseID: "B1", BaseName: "Cliffside", GuildID: "G1", X: 1, Y: 2, WorkerContainerID: "w-1", PalInstanceIDs: []string{}}
	claimed := &model.Base{BaseID: "B2", BaseName: "新規生成拠点テンプレート名", X: 3, Y: 4, WorkerContainerID: "w-2", PalInstanceIDs: []string{}}
	orphan := &model.Base{BaseID: "B3abcdef99", BaseName: "", PalInstanceIDs: []string{}}
	worker := pal("pal-1", "P1")
	worker.ContainerID = "w-1"
	wildWorker := pal("pal-2", "")
	wildWorker.ContainerID = "w-1"

	idx := relate.Resolve(relate.Input{
		Players: []*model.Player{ash},
		Pals:    []*model.Pal{worker, wildWorker},
		Guilds:  []*model.Guild{g},
		Bases:   []*model.Base{named, claimed, orphan},
	})

	assert.Equal(t, "Cliffside", named.BaseName)
	assert.Equal(t, "G1", claimed.GuildID)
	assert.Equal(t, "Base 2", claimed.BaseName)
	assert.Equal(t, "Base B3abcdef", orphan.BaseName)

	assert.Equal(t, []*model.Base{named, claimed}, idx.GuildBases["G1"])
	assert.Equal(t, []model.BaseLocation{
		{BaseID: "B1", BaseName: "Cliffside", X: 1, Y: 2},
		{BaseID: "B2", BaseName: "Base 2", X: 3, Y: 4},
	}, g.BaseLocations)

	require.Contains(t, idx.BasePals, "B2")
	assert.Empty(t, idx.BasePals["B2"])
	assert.Empty(t, idx.BasePals["B3abcdef99"])
	assert.Equal(t, []*model.Pal{worker, wildWorker}, idx.BasePals["B1"])
	assert.Equal(t, []string{"pal-1", "pal-2"}, named.PalInstanceIDs)
	assert.Equal(t, "Cliffside", worker.BaseName)
	assert.Equal(t, "G1", wildWorker.GuildID)
}

func TestResolve_BaseNumberingIsPerGuild(t *testing.T) {
	g1, g2 := guild("G1", "x"), guild("G2", "y")
	bases := []*model.Base{
		{BaseID: "a", GuildID: "G1", BaseName: "Base 7"},
		{BaseID: "b", GuildID: "G2", BaseName: ""},
		{BaseID: "c", GuildID: "G1", BaseName: " "},
	}
	relate.Resolve(relate.Input{Guilds: []*model.Guild{g1, g2}, Bases: bases})
	assert.Equal(t, "Base 1", bases[0].BaseName)
	assert.Equal(t, "Base 1", bases[1].BaseName)
	assert.Equal(t, "Base 2", bases[2].BaseName)
}

func TestResolve_LastOnlineFromRoster(t *testing.T) {
	ash := player("P1", "inst-1", "Ash")
	g := guild("G1", "inst-1")
	g.Players = []model.GuildPlayer{{UID: "P1", Name: "Ash", LastOnline: 4200}, {UID: "P9", LastOnline: 1}}
	relate.Resolve(relate.Input{Players: []*model.Player{ash}, Guilds: []*model.Guild{g}})
	assert.Equal(t, int64(4200), ash.LastOnline)
}

// genWorld draws a random population of players, pals, guilds and bases.
func genWorld(t *rapid.T) relate.Input {
	nPlayers := rapid.IntRange(0, 5).Draw(t, "players")
	var in relate.Input
	for i := range nPlayers {
		in.Players = append(in.Players, player(fmt.Sprintf("P%d", i), fmt.Sprintf("inst-%d", i), fmt.Sprintf("name-%d", i)))
	}
	nGuilds := rapid.IntRange(0, 3).Draw(t, "guilds")
	for i := range nGuilds {
		g := guild(fmt.Sprintf("G%d", i))
		for _, m := range rapid.SliceOfN(rapid.IntRange(0, 7), 1, 4).Draw(t, fmt.Sprintf("members-%d", i)) {
			g.MemberInstanceIDs = append(g.MemberInstanceIDs, fmt.Sprintf("inst-%d", m))
		}
		in.Guilds = append(in.Guilds, g)
	}
	nBases := rapid.IntRange(0, 6).Draw(t, "bases")
	for i := range nBases {
		gid := ""
		if nGuilds > 0 && rapid.Bool().Draw(t, fmt.Sprintf("owned-%d", i)) {
			gid = fmt.Sprintf("G%d", rapid.IntRange(0, nGuilds-1).Draw(t, fmt.Sprintf("guild-%d", i)))
		}
		in.Bases = append(in.Bases, &model.Base{
			BaseID:            fmt.Sprintf("B%d", i),
			GuildID:           gid,
			WorkerContainerID: fmt.Sprintf("w-%d", i),
			PalInstanceIDs:    []string{},
		})
	}
	nPals := rapid.IntRange(0, 20).Draw(t, "pals")
	for i := range nPals {
		owner := ""
		if rapid.Bool().Draw(t, fmt.Sprintf("hasOwner-%d", i)) {
			owner = fmt.Sprintf("P%d", rapid.IntRange(0, 8).Draw(t, fmt.Sprintf("owner-%d", i)))
		}
		p := pal(fmt.Sprintf("pal-%d", i), owner)
		p.ContainerID = fmt.Sprintf("w-%d", rapid.IntRange(0, 8).Draw(t, fmt.Sprintf("container-%d", i)))
		in.Pals = append(in.Pals, p)
	}
	return in
}

func TestProperty_OwnershipPartition(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		in := genWorld(t)
		idx := relate.Resolve(in)

		placed := make(map[*model.Pal]int)
		for uid, pals := range idx.OwnerPals {
			for _, p := range pals {
				placed[p]++
				if p.OwnerUID != uid || p.OwnerStatus != model.OwnerResolved {
					t.Fatalf("pal %s in bucket %s with owner %s/%s", p.InstanceID, uid, p.OwnerUID, p.OwnerStatus)
				}
			}
		}
		for _, p := range idx.Unowned {
			placed[p]++
			if p.OwnerStatus != model.OwnerUnresolved {
				t.Fatalf("unowned pal %s has status %s", p.InstanceID, p.OwnerStatus)
			}
		}
		for _, p := range in.Pals {
			want := 1
			if p.OwnerUID == "" {
				want = 0
			}
			if placed[p] != want {
				t.Fatalf("pal %s (owner %q) placed %d times", p.InstanceID, p.OwnerUID, placed[p])
			}
		}
	})
}

func TestProperty_BaseLocationsIndexedOnce(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		in := genWorld(t)
		idx := relate.Resolve(in)

		for _, b := range in.Bases {
			if _, ok := idx.BasePals[b.BaseID]; !ok {
				t.Fatalf("base %s missing from index", b.BaseID)
			}
		}
		for _, g := range in.Guilds {
			seen := make(map[string]int)
			for _, loc := range g.BaseLocations {
				seen[loc.BaseID]++
				if _, ok := idx.BasePals[loc.BaseID]; !ok {
					t.Fatalf("guild %s location %s missing from base index", g.GuildID, loc.BaseID)
				}
			}
			for id, n := range seen {
				if n != 1 {
					t.Fatalf("guild %s lists base %s %d times", g.GuildID, id, n)
				}
			}
			if len(g.BaseLocations) != len(idx.GuildBases[g.GuildID]) {
				t.Fatalf("guild %s: %d locations, %d indexed bases", g.GuildID, len(g.BaseLocations), len(idx.GuildBases[g.GuildID]))
			}
		}
		total := 0
		for _, pals := range idx.BasePals {
			total += len(pals)
		}
		occupied := 0
		for _, p := range in.Pals {
			if p.BaseID != "" {
				occupied++
			}
		}
		if total != occupied {
			t.Fatalf("%d pals indexed at bases, %d pals carry a base id", total, occupied)
		}
	})
}
