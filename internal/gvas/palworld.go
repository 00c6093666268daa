package gvas

import (
	"context"
	"errors"
	"fmt"

	"github.com/cory-johannsen/palworld-lens/internal/rawnode"
)

// Palworld group types carried in GroupSaveDataMap.
const (
	GroupTypeGuild            = "EPalGroupType::Guild"
	GroupTypeIndependentGuild = "EPalGroupType::IndependentGuild"
	GroupTypeOrganization     = "EPalGroupType::Organization"
)

// Property paths of the Palworld RawData blobs with a structured layout.
const (
	PathGroupMap              = ".worldSaveData.GroupSaveDataMap"
	PathCharacterRawData      = ".worldSaveData.CharacterSaveParameterMap.Value.RawData"
	PathBaseCampRawData       = ".worldSaveData.BaseCampSaveData.Value.RawData"
	PathWorkerDirectorRawData = ".worldSaveData.BaseCampSaveData.Value.WorkerDirector.RawData"
	PathContainerSlotRawData  = ".worldSaveData.CharacterContainerSaveData.Value.Slots.Slots.RawData"
	PathMapModelRawData       = ".worldSaveData.MapObjectSaveData.MapObjectSaveData.Model.RawData"
)

// codec turns a generically decoded property into a structured one and back.
// Decode mutates the freshly decoded node; Encode must not mutate its input.
type codec struct {
	decode func(d *decoder, plain *rawnode.Node) error
	encode func(e *encoder, custom *rawnode.Node) *rawnode.Node
}

// palworldCodecs is keyed by property path. It is filled in init because the
// codecs recurse into the decoder that consults this table.
var palworldCodecs map[string]codec

func init() {
	palworldCodecs = map[string]codec{
		PathGroupMap:              {decode: decodeGroupMap, encode: encodeGroupMap},
		PathCharacterRawData:      {decode: decodeCharacter, encode: encodeCharacter},
		PathBaseCampRawData:       blobCodec(baseCampLayout),
		PathWorkerDirectorRawData: blobCodec(workerDirectorLayout),
		PathContainerSlotRawData:  blobCodec(containerSlotLayout),
		PathMapModelRawData:       blobCodec(mapModelLayout),
	}
}

func isCancel(err error) bool {
	return errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}

// custom decodes a property generically and then hands it to c. A blob the
// codec cannot interpret is kept as the generic byte array; codecs only
// mutate plain on success.
func (d *decoder) custom(c codec, typeName string, size uint64, path string) (*rawnode.Node, error) {
	plain, err := d.property(typeName, size, path, true)
	if err != nil {
		return nil, err
	}
	if err := c.decode(d, plain); err != nil {
		if isCancel(err) {
			return nil, err
		}
		return plain, nil
	}
	plain.Set(keyCustom, rawnode.String(path))
	return plain, nil
}

// byteArrayPayload returns the bytes of a ByteProperty array node.
func byteArrayPayload(prop *rawnode.Node) ([]byte, error) {
	v, ok := prop.Lookup(keyValue)
	if !ok {
		return nil, fmt.Errorf("%w: property has no value", ErrMalformedTree)
	}
	vals, ok := v.Lookup(keyValues)
	if !ok || vals.Kind != rawnode.KindScalar {
		return nil, fmt.Errorf("%w: not a byte array", ErrMalformedTree)
	}
	b, ok := vals.Value.([]byte)
	if !ok {
		return nil, fmt.Errorf("%w: not a byte array", ErrMalformedTree)
	}
	return b, nil
}

// withPayload returns a shallow copy of a custom property node whose value is
// the byte array payload and which no longer carries the custom marker.
func withPayload(custom *rawnode.Node, payload []byte) *rawnode.Node {
	out := rawnode.NewMap()
	for _, f := range custom.Fields {
		switch f.Key {
		case keyCustom:
		case keyValue:
			out.Fields = append(out.Fields, rawnode.F(keyValue, rawnode.NewMap(rawnode.F(keyValues, rawnode.Bytes(payload)))))
		default:
			out.Fields = append(out.Fields, f)
		}
	}
	return out
}

func decodeCharacter(d *decoder, plain *rawnode.Node) error {
	payload, err := byteArrayPayload(plain)
	if err != nil {
		return err
	}
	sd := d.sub(payload)
	obj, err := sd.propertiesUntilEnd("")
	if err != nil {
		return err
	}
	m := rawnode.NewMap(
		rawnode.F("object", obj),
		rawnode.F("unknown_bytes", rawnode.Bytes(sd.r.bytes(4))),
		rawnode.F("group_id", rawnode.Ref("Guid", sd.r.guid())),
	)
	if sd.r.err != nil {
		return sd.r.err
	}
	if !sd.r.eof() {
		m.Set("trailing", rawnode.Bytes(sd.r.rest()))
	}
	plain.Set(keyValue, m)
	return nil
}

func encodeCharacter(e *encoder, custom *rawnode.Node) *rawnode.Node {
	v := e.field(custom, keyValue)
	se := e.sub()
	se.properties(e.field(v, "object"))
	se.w.raw(e.bytesOf(e.field(v, "unknown_bytes")))
	se.w.guid(e.ref(e.field(v, "group_id")))
	if t, ok := v.Lookup("trailing"); ok {
		se.w.raw(e.bytesOf(t))
	}
	e.absorb(se)
	return withPayload(custom, se.w.buf)
}

func readGUIDArray(r *reader) *rawnode.Node {
	n := r.count(16)
	items := make([]*rawnode.Node, 0, n)
	for i := 0; i < n; i++ {
		items = append(items, rawnode.Ref("Guid", r.guid()))
	}
	return rawnode.NewArray("Guid", items...)
}

func readPlayerInfo(r *reader) *rawnode.Node {
	return rawnode.NewMap(
		rawnode.F("last_online_real_time", rawnode.Int(r.i64())),
		rawnode.F("player_name", rawnode.String(r.fstring())),
	)
}

func decodeGroupBytes(r *reader, groupType string) (*rawnode.Node, error) {
	m := rawnode.NewMap(
		rawnode.F("group_type", rawnode.String(groupType)),
		rawnode.F("group_id", rawnode.Ref("Guid", r.guid())),
		rawnode.F("group_name", rawnode.String(r.fstring())),
	)
	n := r.count(32)
	handles := make([]*rawnode.Node, 0, n)
	for i := 0; i < n; i++ {
		handles = append(handles, rawnode.NewMap(
			rawnode.F("guid", rawnode.Ref("Guid", r.guid())),
			rawnode.F("instance_id", rawnode.Ref("Guid", r.guid())),
		))
	}
	m.Set("individual_character_handle_ids", rawnode.NewArray("Handle", handles...))

	switch groupType {
	case GroupTypeGuild, GroupTypeIndependentGuild, GroupTypeOrganization:
		m.Set("org_type", rawnode.Int(int64(r.u8())))
		m.Set("base_ids", readGUIDArray(r))
	}
	switch groupType {
	case GroupTypeGuild, GroupTypeIndependentGuild:
		m.Set("base_camp_level", rawnode.Int(int64(r.i32())))
		m.Set("map_object_instance_ids_base_camp_points", readGUIDArray(r))
		m.Set("guild_name", rawnode.String(r.fstring()))
	}
	switch groupType {
	case GroupTypeIndependentGuild:
		m.Set("player_uid", rawnode.Ref("Guid", r.guid()))
		m.Set("guild_name_2", rawnode.String(r.fstring()))
		m.Set("player_info", readPlayerInfo(r))
	case GroupTypeGuild:
		m.Set("admin_player_uid", rawnode.Ref("Guid", r.guid()))
		count := r.i32()
		if count < 0 || int(count)*24 > r.remaining() {
			return nil, fmt.Errorf("%w: guild player count %d", ErrTruncated, count)
		}
		players := make([]*rawnode.Node, 0, count)
		for i := 0; i < int(count); i++ {
			players = append(players, rawnode.NewMap(
				rawnode.F("player_uid", rawnode.Ref("Guid", r.guid())),
				rawnode.F("player_info", readPlayerInfo(r)),
			))
		}
		m.Set("players", rawnode.NewArray("GuildPlayer", players...))
	}
	if r.err != nil {
		return nil, r.err
	}
	if !r.eof() {
		m.Set("trailing", rawnode.Bytes(r.rest()))
	}
	return m, nil
}

func decodeGroupMap(d *decoder, plain *rawnode.Node) error {
	for _, entry := range rawnode.List(plain) {
		value, ok := entry.Lookup(keyValue)
		if !ok {
			continue
		}
		rawProp, ok := value.Lookup("RawData")
		if !ok {
			continue
		}
		payload, err := byteArrayPayload(rawProp)
		if err != nil {
			continue
		}
		if err := d.ctx.Err(); err != nil {
			return err
		}
		g, err := decodeGroupBytes(newReader(payload), rawnode.GetString(value, "GroupType", ""))
		if err != nil {
			// Unknown layouts from other game versions stay as bytes.
			continue
		}
		rawProp.Set(keyValue, g)
	}
	return nil
}

func (e *encoder) guidArray(n *rawnode.Node) {
	e.w.u32(uint32(len(n.Items)))
	for _, it := range n.Items {
		e.w.guid(e.ref(it))
	}
}

func (e *encoder) playerInfo(n *rawnode.Node) {
	e.w.i64(e.i64(e.field(n, "last_online_real_time")))
	e.w.fstring(e.str(e.field(n, "player_name")))
}

func encodeGroupBytes(e *encoder, g *rawnode.Node) []byte {
	se := e.sub()
	groupType := e.str(e.field(g, "group_type"))
	se.w.guid(e.ref(e.field(g, "group_id")))
	se.w.fstring(e.str(e.field(g, "group_name")))
	handles := e.field(g, "individual_character_handle_ids").Items
	se.w.u32(uint32(len(handles)))
	for _, h := range handles {
		se.w.guid(e.ref(e.field(h, "guid")))
		se.w.guid(e.ref(e.field(h, "instance_id")))
	}
	switch groupType {
	case GroupTypeGuild, GroupTypeIndependentGuild, GroupTypeOrganization:
		se.w.u8(byte(e.i64(e.field(g, "org_type"))))
		se.guidArray(e.field(g, "base_ids"))
	}
	switch groupType {
	case GroupTypeGuild, GroupTypeIndependentGuild:
		se.w.i32(int32(e.i64(e.field(g, "base_camp_level"))))
		se.guidArray(e.field(g, "map_object_instance_ids_base_camp_points"))
		se.w.fstring(e.str(e.field(g, "guild_name")))
	}
	switch groupType {
	case GroupTypeIndependentGuild:
		se.w.guid(e.ref(e.field(g, "player_uid")))
		se.w.fstring(e.str(e.field(g, "guild_name_2")))
		se.playerInfo(e.field(g, "player_info"))
	case GroupTypeGuild:
		se.w.guid(e.ref(e.field(g, "admin_player_uid")))
		players := e.field(g, "players").Items
		se.w.i32(int32(len(players)))
		for _, p := range players {
			se.w.guid(e.ref(e.field(p, "player_uid")))
			se.playerInfo(e.field(p, "player_info"))
		}
	}
	if t, ok := g.Lookup("trailing"); ok {
		se.w.raw(e.bytesOf(t))
	}
	e.absorb(se)
	return se.w.buf
}

func encodeGroupMap(e *encoder, custom *rawnode.Node) *rawnode.Node {
	out := rawnode.NewMap()
	for _, f := range custom.Fields {
		switch f.Key {
		case keyCustom:
			continue
		case keyValue:
			entries := make([]*rawnode.Node, 0, len(f.Value.Items))
			for _, entry := range f.Value.Items {
				entries = append(entries, encodeGroupEntry(e, entry))
			}
			out.Fields = append(out.Fields, rawnode.F(keyValue, rawnode.NewArray(f.Value.Type, entries...)))
		default:
			out.Fields = append(out.Fields, f)
		}
	}
	return out
}

func encodeGroupEntry(e *encoder, entry *rawnode.Node) *rawnode.Node {
	value, ok := entry.Lookup(keyValue)
	if !ok {
		return entry
	}
	rawProp, ok := value.Lookup("RawData")
	if !ok {
		return entry
	}
	if _, err := byteArrayPayload(rawProp); err == nil {
		return entry
	}
	g := e.field(rawProp, keyValue)
	newRaw := withPayload(rawProp, encodeGroupBytes(e, g))
	newValue := rawnode.NewMap()
	for _, f := range value.Fields {
		if f.Key == "RawData" {
			f = rawnode.F("RawData", newRaw)
		}
		newValue.Fields = append(newValue.Fields, f)
	}
	key, _ := entry.Lookup("key")
	return MapEntry(key, newValue)
}

// blobKind is the wire type of one fixed-layout RawData field.
type blobKind uint8

const (
	blobGUID blobKind = iota
	blobString
	blobU8
	blobI32
	blobF32
	blobTransform
	blobHP
)

type blobField struct {
	name string
	kind blobKind
}

var baseCampLayout = []blobField{
	{"id", blobGUID},
	{"name", blobString},
	{"state", blobU8},
	{"transform", blobTransform},
	{"area_range", blobF32},
	{"group_id_belong_to", blobGUID},
	{"fast_travel_local_transform", blobTransform},
	{"owner_map_object_instance_id", blobGUID},
}

var workerDirectorLayout = []blobField{
	{"id", blobGUID},
	{"spawn_transform", blobTransform},
	{"current_order_type", blobU8},
	{"current_battle_type", blobU8},
	{"container_id", blobGUID},
}

var containerSlotLayout = []blobField{
	{"player_uid", blobGUID},
	{"instance_id", blobGUID},
	{"permission_tribe_id", blobU8},
}

var mapModelLayout = []blobField{
	{"instance_id", blobGUID},
	{"concrete_model_instance_id", blobGUID},
	{"base_camp_id_belong_to", blobGUID},
	{"group_id_belong_to", blobGUID},
	{"hp", blobHP},
	{"initital_transform_cache", blobTransform},
}

func (r *reader) transform() *rawnode.Node {
	rot := rawnode.NewMap(
		rawnode.F("x", rawnode.Float(r.f64())),
		rawnode.F("y", rawnode.Float(r.f64())),
		rawnode.F("z", rawnode.Float(r.f64())),
		rawnode.F("w", rawnode.Float(r.f64())),
	)
	return rawnode.NewMap(
		rawnode.F("rotation", rot),
		rawnode.F("translation", VectorValue(r.f64(), r.f64(), r.f64())),
		rawnode.F("scale3d", VectorValue(r.f64(), r.f64(), r.f64())),
	)
}

func blobCodec(layout []blobField) codec {
	return codec{
		decode: func(_ *decoder, plain *rawnode.Node) error {
			payload, err := byteArrayPayload(plain)
			if err != nil {
				return err
			}
			r := newReader(payload)
			m := rawnode.NewMap()
			for _, f := range layout {
				var v *rawnode.Node
				switch f.kind {
				case blobGUID:
					v = rawnode.Ref("Guid", r.guid())
				case blobString:
					v = rawnode.String(r.fstring())
				case blobU8:
					v = rawnode.Int(int64(r.u8()))
				case blobI32:
					v = rawnode.Int(int64(r.i32()))
				case blobF32:
					v = rawnode.Float(float64(r.f32()))
				case blobTransform:
					v = r.transform()
				case blobHP:
					v = rawnode.NewMap(
						rawnode.F("current", rawnode.Int(int64(r.i32()))),
						rawnode.F("max", rawnode.Int(int64(r.i32()))),
					)
				}
				m.Fields = append(m.Fields, rawnode.F(f.name, v))
			}
			if r.err != nil {
				return r.err
			}
			if !r.eof() {
				m.Set("trailing", rawnode.Bytes(r.rest()))
			}
			plain.Set(keyValue, m)
			return nil
		},
		encode: func(e *encoder, custom *rawnode.Node) *rawnode.Node {
			v := e.field(custom, keyValue)
			se := e.sub()
			for _, f := range layout {
				n := e.field(v, f.name)
				switch f.kind {
				case blobGUID:
					se.w.guid(e.ref(n))
				case blobString:
					se.w.fstring(e.str(n))
				case blobU8:
					se.w.u8(byte(e.i64(n)))
				case blobI32:
					se.w.i32(int32(e.i64(n)))
				case blobF32:
					se.w.f32(float32(e.f64(n)))
				case blobTransform:
					se.transform(n)
				case blobHP:
					se.w.i32(int32(e.i64(e.field(n, "current"))))
					se.w.i32(int32(e.i64(e.field(n, "max"))))
				}
			}
			if t, ok := v.Lookup("trailing"); ok {
				se.w.raw(e.bytesOf(t))
			}
			e.absorb(se)
			return withPayload(custom, se.w.buf)
		},
	}
}

func (e *encoder) transform(n *rawnode.Node) {
	rot := e.field(n, "rotation")
	for _, k := range []string{"x", "y", "z", "w"} {
		e.w.f64(e.f64(e.field(rot, k)))
	}
	for _, part := range []string{"translation", "scale3d"} {
		vec := e.field(n, part)
		for _, k := range []string{"x", "y", "z"} {
			e.w.f64(e.f64(e.field(vec, k)))
		}
	}
}
