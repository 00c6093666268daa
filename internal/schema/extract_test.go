package schema_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"

	"github.com/cory-johannsen/palworld-lens/internal/gvas"
	"github.com/cory-johannsen/palworld-lens/internal/rawnode"
	"github.com/cory-johannsen/palworld-lens/internal/schema"
	"github.com/cory-johannsen/palworld-lens/internal/testutil"
)

const (
	playerUID   = "11111111-0000-0000-0000-000000000001"
	playerInst  = "aaaaaaaa-0000-0000-0000-000000000001"
	palInst     = "bbbbbbbb-0000-0000-0000-000000000001"
	barePalInst = "bbbbbbbb-0000-0000-0000-000000000002"
	guildID     = "99999999-0000-0000-0000-000000000001"
	baseID      = "cccccccc-0000-0000-0000-000000000001"
	containerID = "dddddddd-0000-0000-0000-000000000001"
)

func sampleWorld() testutil.World {
	return testutil.World{
		Players: []testutil.PlayerSpec{{
			UID: playerUID, InstanceID: playerInst, Name: "Ash", Level: 20,
			HPMilli: 545000, FullStomach: 80, Sanity: 95,
		}},
		Pals: []testutil.PalSpec{
			{
				InstanceID: palInst, CharacterID: "PinkCat", Nickname: "  Mittens ", OwnerUID: playerUID,
				ContainerID: containerID, Gender: "Female", Level: 7, HPMilli: 300500, FullStomach: 120,
				Passives: []string{"Swift", "", "None", "Nimble"}, Waza: []string{"EPalWazaID::AirCanon"},
				TalentHP: 50, Rank: 2, IsRare: true, WorkerSick: "Cold",
			},
			{InstanceID: barePalInst, CharacterID: "BOSS_Kitsunebi", Level: 1},
		},
		Guilds: []gvas.GuildGroup{{
			GroupID:  guildID,
			Name:     "Night Owls",
			AdminUID: playerUID,
			Members:  []gvas.GuildMember{{PlayerUID: playerUID, InstanceID: playerInst}},
			BaseIDs:  []string{baseID},
			Players:  []gvas.GuildPlayer{{UID: playerUID, Name: "Ash", LastOnline: 1000}},
		}},
		Bases: []testutil.BaseSpec{{
			ID: baseID, Name: "Cliffside", GuildID: guildID, X: 100, Y: -200, Z: 300, WorkerContainerID: containerID,
		}},
		Containers: []testutil.ContainerSpec{{ID: containerID, InstanceIDs: []string{palInst}}},
		MapObjects: []testutil.MapObjectSpec{{
			InstanceID: "eeeeeeee-0000-0000-0000-000000000001", MapObjectID: "PalBoxV2", BaseCampID: baseID,
			GroupID: guildID, HP: 50, MaxHP: 100, X: 1, Y: 2, Z: 3,
		}},
		GroupIDs: map[string]string{playerInst: guildID},
	}
}

func mustSchema(t *testing.T, set *schema.Set, kind string) *schema.EntitySchema {
	t.Helper()
	es, ok := set.Schema(kind)
	require.True(t, ok, "kind %s", kind)
	return es
}

func TestCollect_Characters(t *testing.T) {
	set := shippedSet(t)
	root := sampleWorld().File().Properties

	records := mustSchema(t, set, schema.KindCharacter).Collect(root)
	require.Len(t, records, 3)

	assert.Equal(t, playerInst, records[0].Key)
	assert.Equal(t, playerInst, records[0].Attrs.String("instanceId"))
	assert.Equal(t, playerUID, records[0].Attrs.String("playerUid"))
	assert.True(t, records[0].Attrs.Bool("isPlayer"))
	assert.Equal(t, guildID, records[0].Attrs.String("groupId"))

	assert.Equal(t, palInst, records[1].Key)
	assert.False(t, records[1].Attrs.Bool("isPlayer"))
	assert.False(t, records[1].Attrs.Has("playerUid"), "zero uid is absent")
	assert.False(t, records[1].Attrs.Has("groupId"))
}

func TestExtract_Player(t *testing.T) {
	set := shippedSet(t)
	records := mustSchema(t, set, schema.KindCharacter).Collect(sampleWorld().File().Properties)
	require.NotEmpty(t, records)

	attrs := mustSchema(t, set, schema.KindPlayer).Extract(records[0].Node, records[0].Entry)
	assert.Equal(t, "Ash", attrs.String("name"))
	assert.Equal(t, int64(20), attrs.Int("level"))
	assert.Equal(t, int64(545), attrs.Int("hp"))
	assert.InDelta(t, 80.0, attrs.Float("fullStomach"), 1e-6)
	assert.InDelta(t, 95.0, attrs.Float("sanity"), 1e-6)
	assert.Equal(t, int64(0), attrs.Int("exp"), "missing Exp takes its default")
	assert.Empty(t, attrs.IntMap("statusPoints"))
}

func TestExtract_PalTransforms(t *testing.T) {
	set := shippedSet(t)
	records := mustSchema(t, set, schema.KindCharacter).Collect(sampleWorld().File().Properties)
	require.Len(t, records, 3)

	attrs := mustSchema(t, set, schema.KindPal).Extract(records[1].Node, records[1].Entry)
	assert.Equal(t, "PinkCat", attrs.String("characterId"))
	assert.Equal(t, "Mittens", attrs.String("nickname"))
	assert.Equal(t, int64(300), attrs.Int("hp"))
	assert.Equal(t, playerUID, attrs.String("ownerUid"))
	assert.Equal(t, "Female", attrs.String("gender"))
	assert.Equal(t, []string{"Swift", "Nimble"}, attrs.Strings("passiveSkills"))
	assert.Equal(t, []string{"AirCanon"}, attrs.Strings("activeSkills"))
	assert.Equal(t, int64(50), attrs.Int("talentHp"))
	assert.Equal(t, int64(2), attrs.Int("rank"))
	assert.True(t, attrs.Bool("isLucky"))
	assert.Equal(t, containerID, attrs.String("containerId"))
	assert.Equal(t, "Cold", attrs.String("workerSick"))
}

func TestExtract_PalDefaults(t *testing.T) {
	set := shippedSet(t)
	records := mustSchema(t, set, schema.KindCharacter).Collect(sampleWorld().File().Properties)
	require.Len(t, records, 3)

	pal := mustSchema(t, set, schema.KindPal)
	attrs := pal.Extract(records[2].Node, records[2].Entry)
	require.Len(t, attrs, len(pal.Fields))
	assert.Nil(t, attrs["nickname"])
	assert.Nil(t, attrs["ownerUid"])
	assert.Equal(t, int64(1), attrs["rank"])
	assert.Equal(t, []string{}, attrs["passiveSkills"])
	// FullStomach is present (zero), so the value wins over the default.
	assert.InDelta(t, 0.0, attrs.Float("fullStomach"), 1e-9)
	assert.InDelta(t, 100.0, attrs.Float("sanity"), 1e-9)
	assert.False(t, attrs.Bool("isLucky"))
}

func TestCollect_GuildFilterAndScriptedPlayers(t *testing.T) {
	set := shippedSet(t)
	f := sampleWorld().File()
	groups := rawnode.GetOr(f.Properties, "worldSaveData.GroupSaveDataMap", nil)
	require.NotNil(t, groups)
	neutral := gvas.MapEntry(rawnode.Ref("Guid", "99999999-0000-0000-0000-000000000002"), gvas.Props(
		rawnode.F("GroupType", gvas.EnumProp("EPalGroupType", "EPalGroupType::Neutral")),
		rawnode.F("RawData", gvas.ByteArrayProp(nil)),
	))
	groups.Items = append(groups.Items, neutral)

	records := mustSchema(t, set, schema.KindGuild).Collect(f.Properties)
	require.Len(t, records, 1)
	g := records[0].Attrs
	assert.Equal(t, guildID, records[0].Key)
	assert.Equal(t, guildID, g.String("guildId"))
	assert.Equal(t, "Night Owls", g.String("guildName"))
	assert.Equal(t, playerUID, g.String("adminUid"))
	assert.Equal(t, []string{playerInst}, g.Strings("memberInstanceIds"))
	assert.Equal(t, []string{baseID}, g.Strings("baseIds"))

	players := g.Maps("players")
	require.Len(t, players, 1)
	assert.Equal(t, playerUID, players[0].String("uid"))
	assert.Equal(t, "Ash", players[0].String("name"))
	assert.Equal(t, int64(1000), players[0].Int("lastOnline"))
}

func TestCollect_BasesContainersMapObjects(t *testing.T) {
	set := shippedSet(t)
	root := sampleWorld().File().Properties

	bases := mustSchema(t, set, schema.KindBase).Collect(root)
	require.Len(t, bases, 1)
	assert.Equal(t, baseID, bases[0].Key)
	assert.Equal(t, "Cliffside", bases[0].Attrs.String("name"))
	assert.Equal(t, guildID, bases[0].Attrs.String("guildId"))
	assert.InDelta(t, -200.0, bases[0].Attrs.Float("y"), 1e-9)
	assert.Equal(t, containerID, bases[0].Attrs.String("workerContainerId"))

	containers := mustSchema(t, set, schema.KindContainer).Collect(root)
	require.Len(t, containers, 1)
	assert.Equal(t, containerID, containers[0].Key)
	assert.Equal(t, []string{palInst}, containers[0].Attrs.Strings("instanceIds"))

	objs := mustSchema(t, set, schema.KindMapObject).Collect(root)
	require.Len(t, objs, 1)
	assert.Equal(t, "PalBoxV2", objs[0].Attrs.String("mapObjectId"))
	assert.Equal(t, int64(50), objs[0].Attrs.Int("hp"))
	assert.Equal(t, baseID, objs[0].Attrs.String("baseCampId"))
}

func TestExtract_RootKinds(t *testing.T) {
	set := shippedSet(t)

	ps := testutil.PlayerSave{
		UID: playerUID, InstanceID: playerInst, X: 10, Y: 20, Z: 30,
		OtomoContainerID: containerID,
	}
	attrs := mustSchema(t, set, schema.KindPlayerSave).Extract(ps.File().Properties, nil)
	assert.Equal(t, playerUID, attrs.String("playerUid"))
	assert.Equal(t, playerInst, attrs.String("instanceId"))
	assert.InDelta(t, 20.0, attrs.Float("y"), 1e-9)
	assert.Equal(t, containerID, attrs.String("otomoContainerId"))
	assert.False(t, attrs.Has("palStorageContainerId"))

	meta := mustSchema(t, set, schema.KindWorldMeta).Extract(testutil.MetaFile("Palpagos").Properties, nil)
	assert.Equal(t, "Palpagos", meta.String("worldName"))
}

func TestCollect_MissingSourceYieldsNothing(t *testing.T) {
	set := shippedSet(t)
	assert.Empty(t, mustSchema(t, set, schema.KindGuild).Collect(rawnode.NewMap()))
	assert.Nil(t, mustSchema(t, set, schema.KindPlayer).Collect(rawnode.NewMap()))
}

// genNode draws a small arbitrary tree.
func genNode(t *rapid.T, depth int) *rawnode.Node {
	kinds := []string{"int", "str", "bool", "ref"}
	if depth < 3 {
		kinds = append(kinds, "map", "array")
	}
	switch rapid.SampledFrom(kinds).Draw(t, "kind") {
	case "int":
		return rawnode.Int(rapid.Int64().Draw(t, "i"))
	case "str":
		return rawnode.String(rapid.String().Draw(t, "s"))
	case "bool":
		return rawnode.Bool(rapid.Bool().Draw(t, "b"))
	case "ref":
		return rawnode.Ref("Guid", rapid.StringMatching(`[0-9a-f]{8}`).Draw(t, "id"))
	case "map":
		n := rapid.IntRange(0, 4).Draw(t, "n")
		m := rawnode.NewMap()
		for i := 0; i < n; i++ {
			key := rapid.SampledFrom([]string{"Level", "NickName", "Hp", "Value", "value", "CharacterID", "x"}).Draw(t, "key")
			m.Set(key, genNode(t, depth+1))
		}
		return m
	default:
		n := rapid.IntRange(0, 3).Draw(t, "n")
		items := make([]*rawnode.Node, 0, n)
		for i := 0; i < n; i++ {
			items = append(items, genNode(t, depth+1))
		}
		return rawnode.NewArray("Any", items...)
	}
}

func TestProperty_ExtractYieldsEveryTarget(t *testing.T) {
	set := shippedSet(t)
	pal := mustSchema(t, set, schema.KindPal)
	player := mustSchema(t, set, schema.KindPlayer)
	rapid.Check(t, func(rt *rapid.T) {
		node := genNode(rt, 0)
		for _, es := range []*schema.EntitySchema{pal, player} {
			attrs := es.Extract(node, nil)
			if len(attrs) != len(es.Fields) {
				rt.Fatalf("%s: %d attrs for %d fields", es.Kind, len(attrs), len(es.Fields))
			}
			for _, f := range es.Fields {
				if _, ok := attrs[f.Target]; !ok {
					rt.Fatalf("%s: target %s missing", es.Kind, f.Target)
				}
			}
		}
	})
}
