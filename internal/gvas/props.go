package gvas

import (
	"github.com/cory-johannsen/palworld-lens/internal/rawnode"
)

// Node keys used by decoded property containers.
const (
	keyType        = "type"
	keyID          = "id"
	keyValue       = "value"
	keyValues      = "values"
	keyStructType  = "struct_type"
	keyStructID    = "struct_id"
	keyArrayType   = "array_type"
	keyKeyType     = "key_type"
	keyValueType   = "value_type"
	keyKeyStruct   = "key_struct_type"
	keyValueStruct = "value_struct_type"
	keyRemoved     = "removed"
	keySetType     = "set_type"
	keyOpaque      = "opaque"
	keyCustom      = "custom_type"
	keyPropName    = "prop_name"
	keyPropType    = "prop_type"
	keyTypeName    = "type_name"
	keyElemID      = "elem_id"
	keyCount       = "count"
)

func optID(id string, ok bool) *rawnode.Node {
	if !ok {
		return rawnode.Null()
	}
	return rawnode.Ref("Guid", id)
}

func scalarProp(typeName string, v *rawnode.Node) *rawnode.Node {
	return rawnode.NewMap(
		rawnode.F(keyType, rawnode.String(typeName)),
		rawnode.F(keyID, rawnode.Null()),
		rawnode.F(keyValue, v),
	)
}

// IntProp builds an IntProperty node.
func IntProp(v int32) *rawnode.Node { return scalarProp("IntProperty", rawnode.Int(int64(v))) }

// Int64Prop builds an Int64Property node.
func Int64Prop(v int64) *rawnode.Node { return scalarProp("Int64Property", rawnode.Int(v)) }

// FloatProp builds a FloatProperty node.
func FloatProp(v float32) *rawnode.Node {
	return scalarProp("FloatProperty", rawnode.Float(float64(v)))
}

// StrProp builds a StrProperty node.
func StrProp(s string) *rawnode.Node { return scalarProp("StrProperty", rawnode.String(s)) }

// NameProp builds a NameProperty node.
func NameProp(s string) *rawnode.Node { return scalarProp("NameProperty", rawnode.String(s)) }

// BoolProp builds a BoolProperty node.
func BoolProp(b bool) *rawnode.Node { return scalarProp("BoolProperty", rawnode.Bool(b)) }

// EnumProp builds an EnumProperty node.
func EnumProp(enumType, value string) *rawnode.Node {
	return scalarProp("EnumProperty", rawnode.NewMap(
		rawnode.F(keyType, rawnode.String(enumType)),
		rawnode.F(keyValue, rawnode.String(value)),
	))
}

// ByteProp builds an unlabelled ByteProperty node.
func ByteProp(v byte) *rawnode.Node {
	return scalarProp("ByteProperty", rawnode.NewMap(
		rawnode.F(keyType, rawnode.String("None")),
		rawnode.F(keyValue, rawnode.Int(int64(v))),
	))
}

// StructProp builds a StructProperty node with a zero struct id.
func StructProp(structType string, value *rawnode.Node) *rawnode.Node {
	return rawnode.NewMap(
		rawnode.F(keyType, rawnode.String("StructProperty")),
		rawnode.F(keyStructType, rawnode.String(structType)),
		rawnode.F(keyStructID, rawnode.Ref("Guid", rawnode.ZeroGUID)),
		rawnode.F(keyID, rawnode.Null()),
		rawnode.F(keyValue, value),
	)
}

// GuidProp builds a Guid-typed StructProperty node.
func GuidProp(id string) *rawnode.Node {
	return StructProp("Guid", rawnode.Ref("Guid", id))
}

// VectorValue builds a Vector struct value.
func VectorValue(x, y, z float64) *rawnode.Node {
	return rawnode.NewMap(
		rawnode.F("x", rawnode.Float(x)),
		rawnode.F("y", rawnode.Float(y)),
		rawnode.F("z", rawnode.Float(z)),
	)
}

// Props builds a property list (the value of a generic struct).
func Props(fields ...rawnode.Field) *rawnode.Node { return rawnode.NewMap(fields...) }

// ArrayProp builds an ArrayProperty of primitive elements.
func ArrayProp(arrayType string, items ...*rawnode.Node) *rawnode.Node {
	return rawnode.NewMap(
		rawnode.F(keyType, rawnode.String("ArrayProperty")),
		rawnode.F(keyArrayType, rawnode.String(arrayType)),
		rawnode.F(keyID, rawnode.Null()),
		rawnode.F(keyValue, rawnode.NewMap(rawnode.F(keyValues, rawnode.NewArray(arrayType, items...)))),
	)
}

// ByteArrayProp builds an ArrayProperty of raw bytes.
func ByteArrayProp(b []byte) *rawnode.Node {
	return rawnode.NewMap(
		rawnode.F(keyType, rawnode.String("ArrayProperty")),
		rawnode.F(keyArrayType, rawnode.String("ByteProperty")),
		rawnode.F(keyID, rawnode.Null()),
		rawnode.F(keyValue, rawnode.NewMap(rawnode.F(keyValues, rawnode.Bytes(b)))),
	)
}

// StructArrayProp builds an ArrayProperty of structs of typeName.
func StructArrayProp(propName, typeName string, items ...*rawnode.Node) *rawnode.Node {
	return rawnode.NewMap(
		rawnode.F(keyType, rawnode.String("ArrayProperty")),
		rawnode.F(keyArrayType, rawnode.String("StructProperty")),
		rawnode.F(keyID, rawnode.Null()),
		rawnode.F(keyValue, rawnode.NewMap(
			rawnode.F(keyPropName, rawnode.String(propName)),
			rawnode.F(keyPropType, rawnode.String("StructProperty")),
			rawnode.F(keyTypeName, rawnode.String(typeName)),
			rawnode.F(keyID, rawnode.Ref("Guid", rawnode.ZeroGUID)),
			rawnode.F(keyElemID, rawnode.Null()),
			rawnode.F(keyValues, rawnode.NewArray(typeName, items...)),
		)),
	)
}

// MapEntry builds one entry of a MapProperty.
func MapEntry(key, value *rawnode.Node) *rawnode.Node {
	return rawnode.NewMap(rawnode.F("key", key), rawnode.F(keyValue, value))
}

// MapProp builds a MapProperty. keyStruct and valueStruct name the struct
// types of StructProperty keys and values and are ignored otherwise.
func MapProp(kt, vt, keyStruct, valueStruct string, entries ...*rawnode.Node) *rawnode.Node {
	return rawnode.NewMap(
		rawnode.F(keyType, rawnode.String("MapProperty")),
		rawnode.F(keyKeyType, rawnode.String(kt)),
		rawnode.F(keyValueType, rawnode.String(vt)),
		rawnode.F(keyKeyStruct, optString(kt == "StructProperty", keyStruct)),
		rawnode.F(keyValueStruct, optString(vt == "StructProperty", valueStruct)),
		rawnode.F(keyID, rawnode.Null()),
		rawnode.F(keyRemoved, rawnode.Uint(0)),
		rawnode.F(keyValue, rawnode.NewArray("MapEntry", entries...)),
	)
}

func optString(ok bool, s string) *rawnode.Node {
	if !ok {
		return rawnode.Null()
	}
	return rawnode.String(s)
}

// RawDataProp builds a RawData byte-array property whose payload has already
// been interpreted into value.
func RawDataProp(value *rawnode.Node) *rawnode.Node {
	return rawnode.NewMap(
		rawnode.F(keyType, rawnode.String("ArrayProperty")),
		rawnode.F(keyArrayType, rawnode.String("ByteProperty")),
		rawnode.F(keyID, rawnode.Null()),
		rawnode.F(keyValue, value),
	)
}

// CustomProp marks prop as handled by the codec registered at path, which
// the encoder uses to turn its value back into bytes.
func CustomProp(path string, prop *rawnode.Node) *rawnode.Node {
	prop.Set(keyCustom, rawnode.String(path))
	return prop
}

// CharacterRawData builds the decoded value of a character RawData blob.
func CharacterRawData(object *rawnode.Node, groupID string) *rawnode.Node {
	return rawnode.NewMap(
		rawnode.F("object", object),
		rawnode.F("unknown_bytes", rawnode.Bytes([]byte{0, 0, 0, 0})),
		rawnode.F("group_id", rawnode.Ref("Guid", groupID)),
	)
}

// TransformValue builds a blob transform with identity rotation and scale.
func TransformValue(x, y, z float64) *rawnode.Node {
	return rawnode.NewMap(
		rawnode.F("rotation", rawnode.NewMap(
			rawnode.F("x", rawnode.Float(0)),
			rawnode.F("y", rawnode.Float(0)),
			rawnode.F("z", rawnode.Float(0)),
			rawnode.F("w", rawnode.Float(1)),
		)),
		rawnode.F("translation", VectorValue(x, y, z)),
		rawnode.F("scale3d", VectorValue(1, 1, 1)),
	)
}

// PalworldHeader returns a header shaped like the one the game writes.
func PalworldHeader() Header {
	return Header{
		SaveGameVersion:       3,
		PackageFileVersionUE4: 522,
		PackageFileVersionUE5: 1009,
		EngineVersionMajor:    5,
		EngineVersionMinor:    1,
		EngineVersionPatch:    1,
		EngineVersionBranch:   "++UE5+Release-5.1",
		CustomVersionFormat:   3,
		SaveGameClassName:     "/Script/Pal.PalWorldSaveGame",
	}
}
