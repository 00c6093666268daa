package gvas

import "github.com/cory-johannsen/palworld-lens/internal/rawnode"

// GuildMember is one character handle of a group record.
type GuildMember struct {
	PlayerUID  string
	InstanceID string
}

// GuildPlayer is one entry of a guild's player list.
type GuildPlayer struct {
	UID        string
	Name       string
	LastOnline int64
}

// GuildGroup describes an EPalGroupType::Guild record.
type GuildGroup struct {
	GroupID  string
	Name     string
	AdminUID string
	Members  []GuildMember
	BaseIDs  []string
	Players  []GuildPlayer
}

func guidArray(ids []string) *rawnode.Node {
	items := make([]*rawnode.Node, 0, len(ids))
	for _, id := range ids {
		items = append(items, rawnode.Ref("Guid", id))
	}
	return rawnode.NewArray("Guid", items...)
}

// GuildRawData builds the decoded RawData value of a guild group, in the
// field order the group codec produces.
func GuildRawData(g GuildGroup) *rawnode.Node {
	handles := make([]*rawnode.Node, 0, len(g.Members))
	for _, m := range g.Members {
		handles = append(handles, rawnode.NewMap(
			rawnode.F("guid", rawnode.Ref("Guid", m.PlayerUID)),
			rawnode.F("instance_id", rawnode.Ref("Guid", m.InstanceID)),
		))
	}
	players := make([]*rawnode.Node, 0, len(g.Players))
	for _, p := range g.Players {
		players = append(players, rawnode.NewMap(
			rawnode.F("player_uid", rawnode.Ref("Guid", p.UID)),
			rawnode.F("player_info", rawnode.NewMap(
				rawnode.F("last_online_real_time", rawnode.Int(p.LastOnline)),
				rawnode.F("player_name", rawnode.String(p.Name)),
			)),
		))
	}
	return rawnode.NewMap(
		rawnode.F("group_type", rawnode.String(GroupTypeGuild)),
		rawnode.F("group_id", rawnode.Ref("Guid", g.GroupID)),
		rawnode.F("group_name", rawnode.String(g.Name)),
		rawnode.F("individual_character_handle_ids", rawnode.NewArray("Handle", handles...)),
		rawnode.F("org_type", rawnode.Int(0)),
		rawnode.F("base_ids", guidArray(g.BaseIDs)),
		rawnode.F("base_camp_level", rawnode.Int(1)),
		rawnode.F("map_object_instance_ids_base_camp_points", guidArray(nil)),
		rawnode.F("guild_name", rawnode.String(g.Name)),
		rawnode.F("admin_player_uid", rawnode.Ref("Guid", g.AdminUID)),
		rawnode.F("players", rawnode.NewArray("GuildPlayer", players...)),
	)
}

// GroupEntry builds one GroupSaveDataMap entry holding a decoded guild.
func GroupEntry(g GuildGroup) *rawnode.Node {
	return MapEntry(rawnode.Ref("Guid", g.GroupID), Props(
		rawnode.F("GroupType", EnumProp("EPalGroupType", GroupTypeGuild)),
		rawnode.F("RawData", RawDataProp(GuildRawData(g))),
	))
}

// GroupMapProp builds the GroupSaveDataMap property.
func GroupMapProp(entries ...*rawnode.Node) *rawnode.Node {
	return CustomProp(PathGroupMap, MapProp("StructProperty", "StructProperty", "Guid", "StructProperty", entries...))
}

// BaseCampRawData builds the decoded RawData of a base camp.
func BaseCampRawData(id, name, groupID string, x, y, z float64) *rawnode.Node {
	return rawnode.NewMap(
		rawnode.F("id", rawnode.Ref("Guid", id)),
		rawnode.F("name", rawnode.String(name)),
		rawnode.F("state", rawnode.Int(0)),
		rawnode.F("transform", TransformValue(x, y, z)),
		rawnode.F("area_range", rawnode.Float(3500)),
		rawnode.F("group_id_belong_to", rawnode.Ref("Guid", groupID)),
		rawnode.F("fast_travel_local_transform", TransformValue(0, 0, 0)),
		rawnode.F("owner_map_object_instance_id", rawnode.Ref("Guid", rawnode.ZeroGUID)),
	)
}

// WorkerDirectorRawData builds the decoded RawData of a base worker director.
func WorkerDirectorRawData(id, containerID string) *rawnode.Node {
	return rawnode.NewMap(
		rawnode.F("id", rawnode.Ref("Guid", id)),
		rawnode.F("spawn_transform", TransformValue(0, 0, 0)),
		rawnode.F("current_order_type", rawnode.Int(0)),
		rawnode.F("current_battle_type", rawnode.Int(0)),
		rawnode.F("container_id", rawnode.Ref("Guid", containerID)),
	)
}

// ContainerSlotRawData builds the decoded RawData of a character container slot.
func ContainerSlotRawData(playerUID, instanceID string) *rawnode.Node {
	return rawnode.NewMap(
		rawnode.F("player_uid", rawnode.Ref("Guid", playerUID)),
		rawnode.F("instance_id", rawnode.Ref("Guid", instanceID)),
		rawnode.F("permission_tribe_id", rawnode.Int(0)),
	)
}

// MapModelRawData builds the decoded RawData of a map object model.
func MapModelRawData(instanceID, baseCampID, groupID string, hp, maxHP int32, x, y, z float64) *rawnode.Node {
	return rawnode.NewMap(
		rawnode.F("instance_id", rawnode.Ref("Guid", instanceID)),
		rawnode.F("concrete_model_instance_id", rawnode.Ref("Guid", rawnode.ZeroGUID)),
		rawnode.F("base_camp_id_belong_to", rawnode.Ref("Guid", baseCampID)),
		rawnode.F("group_id_belong_to", rawnode.Ref("Guid", groupID)),
		rawnode.F("hp", rawnode.NewMap(
			rawnode.F("current", rawnode.Int(int64(hp))),
			rawnode.F("max", rawnode.Int(int64(maxHP))),
		)),
		rawnode.F("initital_transform_cache", TransformValue(x, y, z)),
	)
}
