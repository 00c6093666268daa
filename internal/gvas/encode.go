package gvas

import (
	"fmt"

	"github.com/cory-johannsen/palworld-lens/internal/rawnode"
)

type encoder struct {
	w    *writer
	opts Options
}

// Encode serializes a File back into an uncompressed GVAS stream.
//
// Precondition: f.Properties must have the shape produced by Decode.
// Postcondition: For canonical input, Encode(Decode(b)) == b.
func Encode(f *File, opts Options) ([]byte, error) {
	e := &encoder{w: &writer{}, opts: opts}
	e.header(f.Header)
	e.properties(f.Properties)
	e.w.raw(f.Trailer)
	if e.w.err != nil {
		return nil, fmt.Errorf("encoding gvas: %w", e.w.err)
	}
	return e.w.buf, nil
}

// EncodeSave serializes and compresses a File into a .sav container.
func EncodeSave(f *File, opts Options, saveType SaveType) ([]byte, error) {
	raw, err := Encode(f, opts)
	if err != nil {
		return nil, err
	}
	return Compress(raw, saveType)
}

func (e *encoder) sub() *encoder {
	return &encoder{w: &writer{}, opts: e.opts}
}

// absorb carries a sub-encoder's failure into e.
func (e *encoder) absorb(se *encoder) {
	if se.w.err != nil {
		e.w.fail(se.w.err)
	}
}

func (e *encoder) malformed(format string, args ...any) {
	e.w.fail(fmt.Errorf("%w: %s", ErrMalformedTree, fmt.Sprintf(format, args...)))
}

func (e *encoder) field(n *rawnode.Node, key string) *rawnode.Node {
	v, ok := n.Lookup(key)
	if !ok {
		e.malformed("missing field %q", key)
		return rawnode.Null()
	}
	return v
}

func (e *encoder) str(n *rawnode.Node) string {
	if n.Kind == rawnode.KindScalar {
		if s, ok := n.Value.(string); ok {
			return s
		}
	}
	e.malformed("want string, got %s", n.Kind)
	return ""
}

func (e *encoder) ref(n *rawnode.Node) string {
	if n.Kind == rawnode.KindStructRef {
		return n.ID
	}
	e.malformed("want struct reference, got %s", n.Kind)
	return rawnode.ZeroGUID
}

func (e *encoder) optRef(n *rawnode.Node) (string, bool) {
	if n.IsNull() {
		return "", false
	}
	return e.ref(n), true
}

func (e *encoder) i64(n *rawnode.Node) int64 {
	if n.Kind == rawnode.KindScalar {
		switch v := n.Value.(type) {
		case int64:
			return v
		case uint64:
			return int64(v)
		}
	}
	e.malformed("want integer, got %s %T", n.Kind, n.Value)
	return 0
}

func (e *encoder) u64(n *rawnode.Node) uint64 {
	if n.Kind == rawnode.KindScalar {
		switch v := n.Value.(type) {
		case uint64:
			return v
		case int64:
			return uint64(v)
		}
	}
	e.malformed("want integer, got %s %T", n.Kind, n.Value)
	return 0
}

func (e *encoder) f64(n *rawnode.Node) float64 {
	if n.Kind == rawnode.KindScalar {
		if v, ok := n.Value.(float64); ok {
			return v
		}
	}
	e.malformed("want float, got %s %T", n.Kind, n.Value)
	return 0
}

func (e *encoder) boolean(n *rawnode.Node) bool {
	if n.Kind == rawnode.KindScalar {
		if v, ok := n.Value.(bool); ok {
			return v
		}
	}
	e.malformed("want bool, got %s %T", n.Kind, n.Value)
	return false
}

func (e *encoder) bytesOf(n *rawnode.Node) []byte {
	if n.Kind == rawnode.KindScalar {
		if v, ok := n.Value.([]byte); ok {
			return v
		}
	}
	e.malformed("want bytes, got %s %T", n.Kind, n.Value)
	return nil
}

func (e *encoder) header(h Header) {
	e.w.i32(gvasMagic)
	e.w.i32(h.SaveGameVersion)
	e.w.i32(h.PackageFileVersionUE4)
	if h.SaveGameVersion >= 3 {
		e.w.i32(h.PackageFileVersionUE5)
	}
	e.w.u16(h.EngineVersionMajor)
	e.w.u16(h.EngineVersionMinor)
	e.w.u16(h.EngineVersionPatch)
	e.w.u32(h.EngineVersionChangelist)
	e.w.fstring(h.EngineVersionBranch)
	e.w.i32(h.CustomVersionFormat)
	e.w.u32(uint32(len(h.CustomVersions)))
	for _, cv := range h.CustomVersions {
		e.w.guid(cv.ID)
		e.w.i32(cv.Version)
	}
	e.w.fstring(h.SaveGameClassName)
}

func (e *encoder) properties(props *rawnode.Node) {
	if props == nil || props.Kind != rawnode.KindMap {
		e.malformed("property list must be a map")
		return
	}
	for _, f := range props.Fields {
		if e.w.err != nil {
			return
		}
		e.property(f.Key, f.Value)
	}
	e.w.fstring("None")
}

func (e *encoder) property(name string, p *rawnode.Node) {
	if c, ok := p.Lookup(keyCustom); ok {
		path := e.str(c)
		cd, ok := palworldCodecs[path]
		if !ok {
			e.malformed("no codec for %q", path)
			return
		}
		p = cd.encode(e, p)
	}
	typeName := e.str(e.field(p, keyType))
	e.w.fstring(name)
	e.w.fstring(typeName)
	sizePos := e.w.reserveU64()
	start := e.propertyBody(typeName, p)
	e.w.patchU64(sizePos, uint64(e.w.len()-start))
}

// propertyBody writes the type-specific tag and the value, returning the
// offset where the size-counted value begins.
func (e *encoder) propertyBody(typeName string, p *rawnode.Node) int {
	id := func() { e.w.optionalGUID(e.optRef(e.field(p, keyID))) }
	_, opaque := p.Lookup(keyOpaque)

	switch typeName {
	case "StructProperty":
		st := e.str(e.field(p, keyStructType))
		e.w.fstring(st)
		e.w.guid(e.ref(e.field(p, keyStructID)))
		id()
		start := e.w.len()
		e.structValue(st, e.field(p, keyValue))
		return start
	case "IntProperty", "Int8Property", "Int16Property", "UInt16Property", "UInt32Property",
		"Int64Property", "UInt64Property", "FloatProperty", "DoubleProperty", "StrProperty", "NameProperty":
		id()
		start := e.w.len()
		e.primitive(typeName, e.field(p, keyValue))
		return start
	case "EnumProperty":
		v := e.field(p, keyValue)
		e.w.fstring(e.str(e.field(v, keyType)))
		id()
		start := e.w.len()
		e.w.fstring(e.str(e.field(v, keyValue)))
		return start
	case "BoolProperty":
		e.w.boolean(e.boolean(e.field(p, keyValue)))
		id()
		return e.w.len()
	case "ByteProperty":
		v := e.field(p, keyValue)
		enumType := e.str(e.field(v, keyType))
		e.w.fstring(enumType)
		id()
		start := e.w.len()
		if enumType == "None" {
			e.w.u8(byte(e.i64(e.field(v, keyValue))))
		} else {
			e.w.fstring(e.str(e.field(v, keyValue)))
		}
		return start
	case "ArrayProperty":
		at := e.str(e.field(p, keyArrayType))
		e.w.fstring(at)
		id()
		start := e.w.len()
		e.arrayBody(at, e.field(p, keyValue))
		return start
	case "MapProperty":
		kt := e.str(e.field(p, keyKeyType))
		vt := e.str(e.field(p, keyValueType))
		e.w.fstring(kt)
		e.w.fstring(vt)
		id()
		start := e.w.len()
		if opaque {
			e.w.raw(e.bytesOf(e.field(p, keyValue)))
			return start
		}
		keyStruct, valueStruct := e.structName(p, keyKeyStruct), e.structName(p, keyValueStruct)
		e.w.u32(uint32(e.u64(e.field(p, keyRemoved))))
		entries := e.field(p, keyValue).Items
		e.w.u32(uint32(len(entries)))
		for _, entry := range entries {
			e.elemValue(kt, keyStruct, e.field(entry, "key"))
			e.elemValue(vt, valueStruct, e.field(entry, keyValue))
		}
		return start
	case "SetProperty":
		st := e.str(e.field(p, keySetType))
		e.w.fstring(st)
		id()
		start := e.w.len()
		if opaque {
			e.w.raw(e.bytesOf(e.field(p, keyValue)))
			return start
		}
		structType := e.structName(p, keyValueStruct)
		e.w.u32(uint32(e.u64(e.field(p, keyRemoved))))
		items := e.field(p, keyValue).Items
		e.w.u32(uint32(len(items)))
		for _, it := range items {
			e.elemValue(st, structType, it)
		}
		return start
	default:
		id()
		start := e.w.len()
		e.w.raw(e.bytesOf(e.field(p, keyValue)))
		return start
	}
}

func (e *encoder) structName(p *rawnode.Node, key string) string {
	n := e.field(p, key)
	if n.IsNull() {
		return ""
	}
	return e.str(n)
}

func (e *encoder) primitive(typeName string, n *rawnode.Node) {
	switch typeName {
	case "IntProperty":
		e.w.i32(int32(e.i64(n)))
	case "Int8Property", "ByteProperty":
		e.w.u8(byte(e.i64(n)))
	case "Int16Property":
		e.w.u16(uint16(e.i64(n)))
	case "UInt16Property":
		e.w.u16(uint16(e.u64(n)))
	case "UInt32Property":
		e.w.u32(uint32(e.u64(n)))
	case "Int64Property":
		e.w.i64(e.i64(n))
	case "UInt64Property":
		e.w.u64(e.u64(n))
	case "FloatProperty":
		e.w.f32(float32(e.f64(n)))
	case "DoubleProperty":
		e.w.f64(e.f64(n))
	case "BoolProperty":
		e.w.boolean(e.boolean(n))
	case "StrProperty", "NameProperty", "EnumProperty":
		e.w.fstring(e.str(n))
	default:
		e.malformed("unsupported primitive %q", typeName)
	}
}

func (e *encoder) elemValue(typeName, structType string, n *rawnode.Node) {
	if typeName == "StructProperty" {
		e.structValue(structType, n)
		return
	}
	e.primitive(typeName, n)
}

func (e *encoder) floats(n *rawnode.Node, keys ...string) {
	for _, k := range keys {
		e.w.f64(e.f64(e.field(n, k)))
	}
}

func (e *encoder) structValue(structType string, n *rawnode.Node) {
	switch structType {
	case "Vector":
		e.floats(n, "x", "y", "z")
	case "Vector2D":
		e.floats(n, "x", "y")
	case "Rotator":
		e.floats(n, "pitch", "yaw", "roll")
	case "Quat":
		e.floats(n, "x", "y", "z", "w")
	case "LinearColor":
		for _, k := range []string{"r", "g", "b", "a"} {
			e.w.f32(float32(e.f64(e.field(n, k))))
		}
	case "DateTime":
		e.w.u64(e.u64(n))
	case "Guid":
		e.w.guid(e.ref(n))
	default:
		e.properties(n)
	}
}

func (e *encoder) arrayBody(arrayType string, v *rawnode.Node) {
	if op, ok := v.Lookup(keyOpaque); ok {
		e.w.u32(uint32(e.u64(e.field(v, keyCount))))
		e.w.raw(e.bytesOf(op))
		return
	}
	values := e.field(v, keyValues)
	switch {
	case arrayType == "StructProperty":
		e.w.u32(uint32(len(values.Items)))
		e.w.fstring(e.str(e.field(v, keyPropName)))
		e.w.fstring(e.str(e.field(v, keyPropType)))
		sizePos := e.w.reserveU64()
		typeName := e.str(e.field(v, keyTypeName))
		e.w.fstring(typeName)
		e.w.guid(e.ref(e.field(v, keyID)))
		e.w.optionalGUID(e.optRef(e.field(v, keyElemID)))
		start := e.w.len()
		for _, it := range values.Items {
			e.structValue(typeName, it)
		}
		e.w.patchU64(sizePos, uint64(e.w.len()-start))
	case values.Kind == rawnode.KindScalar:
		b := e.bytesOf(values)
		e.w.u32(uint32(len(b)))
		e.w.raw(b)
	default:
		e.w.u32(uint32(len(values.Items)))
		for _, it := range values.Items {
			e.primitive(arrayType, it)
		}
	}
}
