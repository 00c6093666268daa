package testutil

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/cory-johannsen/palworld-lens/internal/gvas"
	"github.com/cory-johannsen/palworld-lens/internal/rawnode"
)

// PlayerSpec describes one player character in a synthetic world.
type PlayerSpec struct {
	UID        string
	InstanceID string
	Name       string
	Level      int32
	// HPMilli is the raw fixed-point HP value.
	HPMilli     int64
	FullStomach float32
	Sanity      float32
}

// PalSpec describes one pal character in a synthetic world.
type PalSpec struct {
	InstanceID  string
	CharacterID string
	Nickname    string
	OwnerUID    string
	ContainerID string
	Gender      string
	Level       int32
	HPMilli     int64
	FullStomach float32
	Passives    []string
	Waza        []string
	TalentHP    int32
	TalentMelee int32
	TalentShot  int32
	TalentDef   int32
	Rank        int32
	Friendship  int32
	IsRare      bool
	WorkerSick  string
}

// BaseSpec describes one base camp.
type BaseSpec struct {
	ID                string
	Name              string
	GuildID           string
	X, Y, Z           float64
	WorkerContainerID string
}

// ContainerSpec describes one character container and the instances in its
// slots.
type ContainerSpec struct {
	ID          string
	InstanceIDs []string
}

// MapObjectSpec describes one placed map object.
type MapObjectSpec struct {
	InstanceID  string
	MapObjectID string
	BaseCampID  string
	GroupID     string
	HP, MaxHP   int32
	X, Y, Z     float64
}

// World is a synthetic Level.sav.
type World struct {
	Players    []PlayerSpec
	Pals       []PalSpec
	Guilds     []gvas.GuildGroup
	Bases      []BaseSpec
	Containers []ContainerSpec
	MapObjects []MapObjectSpec
	// GroupIDs assigns character instance ids to a group id in their
	// RawData.
	GroupIDs map[string]string
}

// PlayerSave is a synthetic Players/<uid>.sav.
type PlayerSave struct {
	UID                   string
	InstanceID            string
	X, Y, Z               float64
	OtomoContainerID      string
	PalStorageContainerID string
}

func orZero(id string) string {
	if id == "" {
		return rawnode.ZeroGUID
	}
	return id
}

func characterEntry(uid, instanceID, groupID string, params *rawnode.Node) *rawnode.Node {
	key := gvas.Props(
		rawnode.F("PlayerUId", gvas.GuidProp(orZero(uid))),
		rawnode.F("InstanceId", gvas.GuidProp(instanceID)),
		rawnode.F("DebugName", gvas.StrProp("")),
	)
	object := gvas.Props(rawnode.F("SaveParameter", gvas.StructProp("PalIndividualCharacterSaveParameter", params)))
	value := gvas.Props(rawnode.F("RawData",
		gvas.CustomProp(gvas.PathCharacterRawData, gvas.RawDataProp(gvas.CharacterRawData(object, orZero(groupID))))))
	return gvas.MapEntry(key, value)
}

func fixedPoint(v int64) *rawnode.Node {
	return gvas.StructProp("FixedPoint64", gvas.Props(rawnode.F("Value", gvas.Int64Prop(v))))
}

func playerParams(p PlayerSpec) *rawnode.Node {
	return gvas.Props(
		rawnode.F("Level", gvas.IntProp(p.Level)),
		rawnode.F("NickName", gvas.StrProp(p.Name)),
		rawnode.F("IsPlayer", gvas.BoolProp(true)),
		rawnode.F("Hp", fixedPoint(p.HPMilli)),
		rawnode.F("FullStomach", gvas.FloatProp(p.FullStomach)),
		rawnode.F("SanityValue", gvas.FloatProp(p.Sanity)),
	)
}

func stringItems(ss []string) []*rawnode.Node {
	out := make([]*rawnode.Node, 0, len(ss))
	for _, s := range ss {
		out = append(out, rawnode.String(s))
	}
	return out
}

func palParams(p PalSpec) *rawnode.Node {
	params := gvas.Props(
		rawnode.F("CharacterID", gvas.NameProp(p.CharacterID)),
		rawnode.F("Level", gvas.IntProp(p.Level)),
		rawnode.F("Hp", fixedPoint(p.HPMilli)),
		rawnode.F("FullStomach", gvas.FloatProp(p.FullStomach)),
		rawnode.F("Talent_HP", gvas.IntProp(p.TalentHP)),
		rawnode.F("Talent_Melee", gvas.IntProp(p.TalentMelee)),
		rawnode.F("Talent_Shot", gvas.IntProp(p.TalentShot)),
		rawnode.F("Talent_Defense", gvas.IntProp(p.TalentDef)),
	)
	if p.Nickname != "" {
		params.Set("NickName", gvas.StrProp(p.Nickname))
	}
	if p.OwnerUID != "" {
		params.Set("OwnerPlayerUId", gvas.GuidProp(p.OwnerUID))
	}
	if p.Gender != "" {
		params.Set("Gender", gvas.EnumProp("EPalGenderType", "EPalGenderType::"+p.Gender))
	}
	if len(p.Passives) > 0 {
		params.Set("PassiveSkillList", gvas.ArrayProp("NameProperty", stringItems(p.Passives)...))
	}
	if len(p.Waza) > 0 {
		params.Set("EquipWaza", gvas.ArrayProp("EnumProperty", stringItems(p.Waza)...))
	}
	if p.Rank > 0 {
		params.Set("Rank", gvas.IntProp(p.Rank))
	}
	if p.Friendship > 0 {
		params.Set("FriendshipPoint", gvas.IntProp(p.Friendship))
	}
	if p.IsRare {
		params.Set("IsRarePal", gvas.BoolProp(true))
	}
	if p.WorkerSick != "" {
		params.Set("WorkerSick", gvas.EnumProp("EPalBaseCampWorkerSickType", "EPalBaseCampWorkerSickType::"+p.WorkerSick))
	}
	if p.ContainerID != "" {
		params.Set("SlotID", gvas.StructProp("PalCharacterSlotId", gvas.Props(
			rawnode.F("ContainerId", gvas.StructProp("PalContainerId", gvas.Props(
				rawnode.F("ID", gvas.GuidProp(p.ContainerID)),
			))),
			rawnode.F("SlotIndex", gvas.IntProp(0)),
		)))
	}
	return params
}

// File builds the decoded form of the world.
func (w World) File() *gvas.File {
	chars := make([]*rawnode.Node, 0, len(w.Players)+len(w.Pals))
	for _, p := range w.Players {
		chars = append(chars, characterEntry(p.UID, p.InstanceID, w.GroupIDs[p.InstanceID], playerParams(p)))
	}
	for _, p := range w.Pals {
		chars = append(chars, characterEntry("", p.InstanceID, w.GroupIDs[p.InstanceID], palParams(p)))
	}
	world := gvas.Props(rawnode.F("CharacterSaveParameterMap",
		gvas.MapProp("StructProperty", "StructProperty", "StructProperty", "StructProperty", chars...)))

	if len(w.Guilds) > 0 {
		groups := make([]*rawnode.Node, 0, len(w.Guilds))
		for _, g := range w.Guilds {
			groups = append(groups, gvas.GroupEntry(g))
		}
		world.Set("GroupSaveDataMap", gvas.GroupMapProp(groups...))
	}
	if len(w.Bases) > 0 {
		bases := make([]*rawnode.Node, 0, len(w.Bases))
		for _, b := range w.Bases {
			value := gvas.Props(
				rawnode.F("RawData", gvas.CustomProp(gvas.PathBaseCampRawData,
					gvas.RawDataProp(gvas.BaseCampRawData(b.ID, b.Name, orZero(b.GuildID), b.X, b.Y, b.Z)))),
				rawnode.F("WorkerDirector", gvas.StructProp("PalBaseCampSaveData_WorkerDirector", gvas.Props(
					rawnode.F("RawData", gvas.CustomProp(gvas.PathWorkerDirectorRawData,
						gvas.RawDataProp(gvas.WorkerDirectorRawData(b.ID, orZero(b.WorkerContainerID))))),
				))),
			)
			bases = append(bases, gvas.MapEntry(rawnode.Ref("Guid", b.ID), value))
		}
		world.Set("BaseCampSaveData", gvas.MapProp("StructProperty", "StructProperty", "Guid", "StructProperty", bases...))
	}
	if len(w.Containers) > 0 {
		containers := make([]*rawnode.Node, 0, len(w.Containers))
		for _, c := range w.Containers {
			slots := make([]*rawnode.Node, 0, len(c.InstanceIDs))
			for i, inst := range c.InstanceIDs {
				slots = append(slots, gvas.Props(
					rawnode.F("SlotIndex", gvas.IntProp(int32(i))),
					rawnode.F("RawData", gvas.CustomProp(gvas.PathContainerSlotRawData,
						gvas.RawDataProp(gvas.ContainerSlotRawData(rawnode.ZeroGUID, inst)))),
				))
			}
			value := gvas.Props(rawnode.F("Slots", gvas.StructArrayProp("Slots", "CharacterContainerSlotSaveData", slots...)))
			key := gvas.Props(rawnode.F("ID", gvas.GuidProp(c.ID)))
			containers = append(containers, gvas.MapEntry(key, value))
		}
		world.Set("CharacterContainerSaveData",
			gvas.MapProp("StructProperty", "StructProperty", "StructProperty", "StructProperty", containers...))
	}
	if len(w.MapObjects) > 0 {
		objs := make([]*rawnode.Node, 0, len(w.MapObjects))
		for _, m := range w.MapObjects {
			model := gvas.MapModelRawData(m.InstanceID, orZero(m.BaseCampID), orZero(m.GroupID), m.HP, m.MaxHP, m.X, m.Y, m.Z)
			objs = append(objs, gvas.Props(
				rawnode.F("MapObjectId", gvas.NameProp(m.MapObjectID)),
				rawnode.F("Model", gvas.StructProp("PalMapObjectModelSaveData", gvas.Props(
					rawnode.F("RawData", gvas.CustomProp(gvas.PathMapModelRawData, gvas.RawDataProp(model))),
				))),
			))
		}
		world.Set("MapObjectSaveData", gvas.StructArrayProp("MapObjectSaveData", "PalMapObjectSaveData", objs...))
	}

	return &gvas.File{
		Header:     gvas.PalworldHeader(),
		Properties: gvas.Props(rawnode.F("worldSaveData", gvas.StructProp("PalWorldSaveData", world))),
		Trailer:    []byte{0, 0, 0, 0},
	}
}

// File builds the decoded form of the player save.
func (p PlayerSave) File() *gvas.File {
	container := func(id string) *rawnode.Node {
		return gvas.StructProp("PalContainerId", gvas.Props(rawnode.F("ID", gvas.GuidProp(orZero(id)))))
	}
	transform := gvas.Props(
		rawnode.F("Rotation", gvas.StructProp("Quat", rawnode.NewMap(
			rawnode.F("x", rawnode.Float(0)),
			rawnode.F("y", rawnode.Float(0)),
			rawnode.F("z", rawnode.Float(0)),
			rawnode.F("w", rawnode.Float(1)),
		))),
		rawnode.F("Translation", gvas.StructProp("Vector", gvas.VectorValue(p.X, p.Y, p.Z))),
		rawnode.F("Scale3D", gvas.StructProp("Vector", gvas.VectorValue(1, 1, 1))),
	)
	data := gvas.Props(
		rawnode.F("PlayerUId", gvas.GuidProp(orZero(p.UID))),
		rawnode.F("IndividualId", gvas.StructProp("PalInstanceID", gvas.Props(
			rawnode.F("PlayerUId", gvas.GuidProp(orZero(p.UID))),
			rawnode.F("InstanceId", gvas.GuidProp(orZero(p.InstanceID))),
		))),
		rawnode.F("LastTransform", gvas.StructProp("Transform", transform)),
		rawnode.F("OtomoCharacterContainerId", container(p.OtomoContainerID)),
		rawnode.F("PalStorageContainerId", container(p.PalStorageContainerID)),
	)
	return &gvas.File{
		Header:     gvas.PalworldHeader(),
		Properties: gvas.Props(rawnode.F("SaveData", gvas.StructProp("PalPlayerSaveData", data))),
		Trailer:    []byte{0, 0, 0, 0},
	}
}

// MetaFile builds a LevelMeta.sav carrying the world name.
func MetaFile(worldName string) *gvas.File {
	return &gvas.File{
		Header: gvas.PalworldHeader(),
		Properties: gvas.Props(rawnode.F("SaveData", gvas.StructProp("PalWorldMetaSaveData", gvas.Props(
			rawnode.F("WorldName", gvas.StrProp(worldName)),
			rawnode.F("HostPlayerName", gvas.StrProp("")),
			rawnode.F("InGameDay", gvas.IntProp(1)),
		)))),
		Trailer: []byte{0, 0, 0, 0},
	}
}

// EncodeSave compresses f into .sav bytes or fails the test.
func EncodeSave(t testing.TB, f *gvas.File) []byte {
	t.Helper()
	b, err := gvas.EncodeSave(f, gvas.PalworldOptions(), gvas.SaveTypeDoubleZlib)
	if err != nil {
		t.Fatalf("encoding save: %v", err)
	}
	return b
}

// SaveDir is a synthetic save directory on disk.
type SaveDir struct {
	Dir string
	t   testing.TB
}

// NewSaveDir writes Level.sav, LevelMeta.sav and Players/<UID>.sav files
// into a fresh temp directory.
//
// Postcondition: Returns a populated directory or fails the test.
func NewSaveDir(t testing.TB, w World, worldName string, players ...PlayerSave) *SaveDir {
	t.Helper()
	sd := &SaveDir{Dir: t.TempDir(), t: t}
	sd.WriteLevel(w)
	sd.write("LevelMeta.sav", EncodeSave(t, MetaFile(worldName)))
	for _, p := range players {
		sd.WritePlayer(p)
	}
	return sd
}

// WriteLevel replaces Level.sav.
func (sd *SaveDir) WriteLevel(w World) {
	sd.t.Helper()
	sd.write("Level.sav", EncodeSave(sd.t, w.File()))
}

// WritePlayer writes Players/<UID>.sav, naming the file the way the game
// does: upper-case hex without dashes.
func (sd *SaveDir) WritePlayer(p PlayerSave) {
	sd.t.Helper()
	name := strings.ToUpper(strings.ReplaceAll(p.UID, "-", "")) + ".sav"
	sd.write(filepath.Join("Players", name), EncodeSave(sd.t, p.File()))
}

// Corrupt overwrites Level.sav with bytes that are not a save container.
func (sd *SaveDir) Corrupt() {
	sd.t.Helper()
	sd.write("Level.sav", []byte("not a save file"))
}

func (sd *SaveDir) write(rel string, data []byte) {
	sd.t.Helper()
	path := filepath.Join(sd.Dir, rel)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		sd.t.Fatalf("creating %s: %v", filepath.Dir(path), err)
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		sd.t.Fatalf("writing %s: %v", path, err)
	}
	if err := os.Rename(tmp, path); err != nil {
		sd.t.Fatalf("renaming %s: %v", path, err)
	}
}

// RepoRoot walks up from the working directory to the directory holding
// go.mod.
func RepoRoot(t testing.TB) string {
	t.Helper()
	wd, err := os.Getwd()
	if err != nil {
		t.Fatalf("getwd: %v", err)
	}
	root := wd
	for {
		if _, err := os.Stat(filepath.Join(root, "go.mod")); err == nil {
			return root
		}
		parent := filepath.Dir(root)
		if parent == root {
			t.Fatalf("could not find repo root from %s", wd)
		}
		root = parent
	}
}
