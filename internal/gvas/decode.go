package gvas

import (
	"context"
	"errors"
	"fmt"

	"github.com/cory-johannsen/palworld-lens/internal/rawnode"
)

const gvasMagic = 0x53415647

// cancelCheckInterval is how many properties are decoded between context checks.
const cancelCheckInterval = 1024

// Header is the GVAS file header.
type Header struct {
	SaveGameVersion         int32
	PackageFileVersionUE4   int32
	PackageFileVersionUE5   int32
	EngineVersionMajor      uint16
	EngineVersionMinor      uint16
	EngineVersionPatch      uint16
	EngineVersionChangelist uint32
	EngineVersionBranch     string
	CustomVersionFormat     int32
	CustomVersions          []CustomVersion
	SaveGameClassName       string
}

// CustomVersion is one entry of the header's custom version table.
type CustomVersion struct {
	ID      string
	Version int32
}

// File is a decoded GVAS stream.
type File struct {
	Header Header
	// Properties is the root property list (a map node).
	Properties *rawnode.Node
	// Trailer holds any bytes after the root "None" terminator.
	Trailer []byte
}

// Options controls decoding and encoding.
type Options struct {
	// Hints resolves struct types of ambiguous map keys and values.
	Hints *TypeHints
	// HintFallback decodes unhinted struct map keys as Guid and values as
	// property lists instead of failing with ErrMissingTypeHint.
	HintFallback bool
	// SkipCodecs leaves Palworld RawData byte arrays undecoded.
	SkipCodecs bool
}

// PalworldOptions returns the options used for Palworld save files.
func PalworldOptions() Options {
	return Options{Hints: PalworldTypeHints()}
}

type decoder struct {
	ctx  context.Context
	r    *reader
	opts Options
	ops  int
}

// DecodeSave decompresses a .sav container and decodes its GVAS stream.
//
// Precondition: ctx must be non-nil.
// Postcondition: Returns the decoded File or an error; decode failures are *DecodeError.
func DecodeSave(ctx context.Context, sav []byte, opts Options) (*File, error) {
	raw, _, err := Decompress(sav)
	if err != nil {
		return nil, err
	}
	return Decode(ctx, raw, opts)
}

// Decode decodes an uncompressed GVAS stream.
//
// Precondition: ctx must be non-nil.
// Postcondition: Returns the decoded File or an error. Cancellation of ctx
// aborts decoding with ctx.Err().
func Decode(ctx context.Context, raw []byte, opts Options) (*File, error) {
	d := &decoder{ctx: ctx, r: newReader(raw), opts: opts}
	hdr, err := d.header()
	if err != nil {
		return nil, err
	}
	props, err := d.propertiesUntilEnd("")
	if err != nil {
		return nil, err
	}
	return &File{Header: hdr, Properties: props, Trailer: d.r.rest()}, nil
}

// sub returns a decoder over an embedded blob sharing this decoder's options.
func (d *decoder) sub(data []byte) *decoder {
	return &decoder{ctx: d.ctx, r: newReader(data), opts: d.opts}
}

func (d *decoder) fail(path string, err error) error {
	var de *DecodeError
	if errors.As(err, &de) || errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	return &DecodeError{Offset: d.r.pos, Path: path, Err: err}
}

// check converts the reader's sticky error into a DecodeError.
func (d *decoder) check(path string) error {
	if d.r.err != nil {
		return d.fail(path, d.r.err)
	}
	return nil
}

func (d *decoder) header() (Header, error) {
	var h Header
	if magic := d.r.i32(); d.r.err == nil && magic != gvasMagic {
		return h, &DecodeError{Offset: 0, Err: fmt.Errorf("%w: GVAS header 0x%08x", ErrBadMagic, uint32(magic))}
	}
	h.SaveGameVersion = d.r.i32()
	h.PackageFileVersionUE4 = d.r.i32()
	if h.SaveGameVersion >= 3 {
		h.PackageFileVersionUE5 = d.r.i32()
	}
	h.EngineVersionMajor = d.r.u16()
	h.EngineVersionMinor = d.r.u16()
	h.EngineVersionPatch = d.r.u16()
	h.EngineVersionChangelist = d.r.u32()
	h.EngineVersionBranch = d.r.fstring()
	h.CustomVersionFormat = d.r.i32()
	n := d.r.count(20)
	for i := 0; i < n && d.r.err == nil; i++ {
		h.CustomVersions = append(h.CustomVersions, CustomVersion{ID: d.r.guid(), Version: d.r.i32()})
	}
	h.SaveGameClassName = d.r.fstring()
	return h, d.check("header")
}

func (d *decoder) propertiesUntilEnd(path string) (*rawnode.Node, error) {
	props := rawnode.NewMap()
	for {
		d.ops++
		if d.ops%cancelCheckInterval == 0 {
			if err := d.ctx.Err(); err != nil {
				return nil, err
			}
		}
		name := d.r.fstring()
		if err := d.check(path); err != nil {
			return nil, err
		}
		if name == "None" {
			return props, nil
		}
		typeName := d.r.fstring()
		size := d.r.u64()
		if err := d.check(path + "." + name); err != nil {
			return nil, err
		}
		p, err := d.property(typeName, size, path+"."+name, false)
		if err != nil {
			return nil, err
		}
		props.Fields = append(props.Fields, rawnode.F(name, p))
	}
}

func (d *decoder) hint(path, fallback string) (string, error) {
	if t, ok := d.opts.Hints.Lookup(path); ok {
		return t, nil
	}
	if d.opts.HintFallback {
		return fallback, nil
	}
	return "", d.fail(path, fmt.Errorf("%w: %s", ErrMissingTypeHint, path))
}

func (d *decoder) property(typeName string, size uint64, path string, nested bool) (*rawnode.Node, error) {
	if !nested && !d.opts.SkipCodecs {
		if c, ok := palworldCodecs[path]; ok {
			return d.custom(c, typeName, size, path)
		}
	}
	var fields []rawnode.Field
	add := func(k string, v *rawnode.Node) { fields = append(fields, rawnode.F(k, v)) }
	add(keyType, rawnode.String(typeName))

	switch typeName {
	case "StructProperty":
		structType := d.r.fstring()
		structID := d.r.guid()
		id, ok := d.r.optionalGUID()
		if err := d.check(path); err != nil {
			return nil, err
		}
		value, err := d.structValue(structType, path)
		if err != nil {
			return nil, err
		}
		add(keyStructType, rawnode.String(structType))
		add(keyStructID, rawnode.Ref("Guid", structID))
		add(keyID, optID(id, ok))
		add(keyValue, value)
	case "IntProperty", "Int8Property", "Int16Property", "UInt16Property", "UInt32Property",
		"Int64Property", "UInt64Property", "FloatProperty", "DoubleProperty", "StrProperty", "NameProperty":
		id, ok := d.r.optionalGUID()
		add(keyID, optID(id, ok))
		add(keyValue, d.primitive(typeName))
	case "EnumProperty":
		enumType := d.r.fstring()
		id, ok := d.r.optionalGUID()
		add(keyID, optID(id, ok))
		add(keyValue, rawnode.NewMap(
			rawnode.F(keyType, rawnode.String(enumType)),
			rawnode.F(keyValue, rawnode.String(d.r.fstring())),
		))
	case "BoolProperty":
		b := d.r.boolean()
		id, ok := d.r.optionalGUID()
		add(keyID, optID(id, ok))
		add(keyValue, rawnode.Bool(b))
	case "ByteProperty":
		enumType := d.r.fstring()
		id, ok := d.r.optionalGUID()
		add(keyID, optID(id, ok))
		var v *rawnode.Node
		if enumType == "None" {
			v = rawnode.Int(int64(d.r.u8()))
		} else {
			v = rawnode.String(d.r.fstring())
		}
		add(keyValue, rawnode.NewMap(rawnode.F(keyType, rawnode.String(enumType)), rawnode.F(keyValue, v)))
	case "ArrayProperty":
		arrayType := d.r.fstring()
		id, ok := d.r.optionalGUID()
		if err := d.check(path); err != nil {
			return nil, err
		}
		if size < 4 {
			return nil, d.fail(path, fmt.Errorf("%w: array size %d", ErrTruncated, size))
		}
		value, err := d.arrayProperty(arrayType, int(size-4), path)
		if err != nil {
			return nil, err
		}
		add(keyArrayType, rawnode.String(arrayType))
		add(keyID, optID(id, ok))
		add(keyValue, value)
	case "MapProperty":
		return d.mapProperty(fields, size, path)
	case "SetProperty":
		return d.setProperty(fields, size, path)
	default:
		// Unknown or unmodelled types (TextProperty, SoftObjectProperty, ...)
		// keep their payload as opaque bytes.
		id, ok := d.r.optionalGUID()
		add(keyID, optID(id, ok))
		add(keyOpaque, rawnode.Bool(true))
		add(keyValue, rawnode.Bytes(d.r.bytes(int(size))))
	}
	if err := d.check(path); err != nil {
		return nil, err
	}
	return rawnode.NewMap(fields...), nil
}

// primitive reads one unwrapped value of a primitive property type.
func (d *decoder) primitive(typeName string) *rawnode.Node {
	switch typeName {
	case "IntProperty":
		return rawnode.Int(int64(d.r.i32()))
	case "Int8Property":
		return rawnode.Int(int64(int8(d.r.u8())))
	case "Int16Property":
		return rawnode.Int(int64(int16(d.r.u16())))
	case "UInt16Property":
		return rawnode.Uint(uint64(d.r.u16()))
	case "UInt32Property":
		return rawnode.Uint(uint64(d.r.u32()))
	case "Int64Property":
		return rawnode.Int(d.r.i64())
	case "UInt64Property":
		return rawnode.Uint(d.r.u64())
	case "FloatProperty":
		return rawnode.Float(float64(d.r.f32()))
	case "DoubleProperty":
		return rawnode.Float(d.r.f64())
	case "BoolProperty":
		return rawnode.Bool(d.r.boolean())
	case "ByteProperty":
		return rawnode.Int(int64(d.r.u8()))
	case "StrProperty", "NameProperty", "EnumProperty":
		return rawnode.String(d.r.fstring())
	}
	return nil
}

func isPrimitive(typeName string) bool {
	switch typeName {
	case "IntProperty", "Int8Property", "Int16Property", "UInt16Property", "UInt32Property",
		"Int64Property", "UInt64Property", "FloatProperty", "DoubleProperty", "BoolProperty",
		"ByteProperty", "StrProperty", "NameProperty", "EnumProperty":
		return true
	}
	return false
}

func (d *decoder) structValue(structType, path string) (*rawnode.Node, error) {
	var n *rawnode.Node
	switch structType {
	case "Vector":
		n = VectorValue(d.r.f64(), d.r.f64(), d.r.f64())
	case "Vector2D":
		n = rawnode.NewMap(rawnode.F("x", rawnode.Float(d.r.f64())), rawnode.F("y", rawnode.Float(d.r.f64())))
	case "Rotator":
		n = rawnode.NewMap(
			rawnode.F("pitch", rawnode.Float(d.r.f64())),
			rawnode.F("yaw", rawnode.Float(d.r.f64())),
			rawnode.F("roll", rawnode.Float(d.r.f64())),
		)
	case "Quat":
		n = d.quat()
	case "LinearColor":
		n = rawnode.NewMap(
			rawnode.F("r", rawnode.Float(float64(d.r.f32()))),
			rawnode.F("g", rawnode.Float(float64(d.r.f32()))),
			rawnode.F("b", rawnode.Float(float64(d.r.f32()))),
			rawnode.F("a", rawnode.Float(float64(d.r.f32()))),
		)
	case "DateTime":
		n = rawnode.Uint(d.r.u64())
	case "Guid":
		n = rawnode.Ref("Guid", d.r.guid())
	default:
		return d.propertiesUntilEnd(path)
	}
	return n, d.check(path)
}

func (d *decoder) quat() *rawnode.Node {
	return rawnode.NewMap(
		rawnode.F("x", rawnode.Float(d.r.f64())),
		rawnode.F("y", rawnode.Float(d.r.f64())),
		rawnode.F("z", rawnode.Float(d.r.f64())),
		rawnode.F("w", rawnode.Float(d.r.f64())),
	)
}

// arrayProperty decodes the body of an ArrayProperty; size excludes the
// element count.
func (d *decoder) arrayProperty(arrayType string, size int, path string) (*rawnode.Node, error) {
	count := d.r.count(0)
	if err := d.check(path); err != nil {
		return nil, err
	}
	switch {
	case arrayType == "StructProperty":
		propName := d.r.fstring()
		propType := d.r.fstring()
		d.r.u64()
		typeName := d.r.fstring()
		id := d.r.guid()
		elemID, elemOK := d.r.optionalGUID()
		if err := d.check(path); err != nil {
			return nil, err
		}
		items := make([]*rawnode.Node, 0, min(count, d.r.remaining()))
		for i := 0; i < count; i++ {
			v, err := d.structValue(typeName, path+"."+propName)
			if err != nil {
				return nil, err
			}
			items = append(items, v)
		}
		return rawnode.NewMap(
			rawnode.F(keyPropName, rawnode.String(propName)),
			rawnode.F(keyPropType, rawnode.String(propType)),
			rawnode.F(keyTypeName, rawnode.String(typeName)),
			rawnode.F(keyID, rawnode.Ref("Guid", id)),
			rawnode.F(keyElemID, optID(elemID, elemOK)),
			rawnode.F(keyValues, rawnode.NewArray(typeName, items...)),
		), nil
	case arrayType == "ByteProperty" && size == count:
		b := d.r.bytes(count)
		return rawnode.NewMap(rawnode.F(keyValues, rawnode.Bytes(b))), d.check(path)
	case isPrimitive(arrayType) && arrayType != "ByteProperty":
		if count > d.r.remaining() {
			return nil, d.fail(path, fmt.Errorf("%w: %d elements exceed remaining %d bytes", ErrTruncated, count, d.r.remaining()))
		}
		items := make([]*rawnode.Node, 0, count)
		for i := 0; i < count && d.r.err == nil; i++ {
			items = append(items, d.primitive(arrayType))
		}
		return rawnode.NewMap(rawnode.F(keyValues, rawnode.NewArray(arrayType, items...))), d.check(path)
	default:
		b := d.r.bytes(size)
		return rawnode.NewMap(
			rawnode.F(keyCount, rawnode.Uint(uint64(count))),
			rawnode.F(keyOpaque, rawnode.Bytes(b)),
		), d.check(path)
	}
}

// elemValue reads one map key, map value or set element.
func (d *decoder) elemValue(typeName, structType, path string) (*rawnode.Node, error) {
	if typeName == "StructProperty" {
		return d.structValue(structType, path)
	}
	v := d.primitive(typeName)
	return v, d.check(path)
}

func (d *decoder) mapProperty(fields []rawnode.Field, size uint64, path string) (*rawnode.Node, error) {
	keyT := d.r.fstring()
	valueT := d.r.fstring()
	id, ok := d.r.optionalGUID()
	if err := d.check(path); err != nil {
		return nil, err
	}
	fields = append(fields,
		rawnode.F(keyKeyType, rawnode.String(keyT)),
		rawnode.F(keyValueType, rawnode.String(valueT)),
	)
	if !elemSupported(keyT) || !elemSupported(valueT) {
		fields = append(fields,
			rawnode.F(keyID, optID(id, ok)),
			rawnode.F(keyOpaque, rawnode.Bool(true)),
			rawnode.F(keyValue, rawnode.Bytes(d.r.bytes(int(size)))),
		)
		return rawnode.NewMap(fields...), d.check(path)
	}

	var keyStruct, valueStruct string
	var err error
	if keyT == "StructProperty" {
		if keyStruct, err = d.hint(path+".Key", "Guid"); err != nil {
			return nil, err
		}
	}
	if valueT == "StructProperty" {
		if valueStruct, err = d.hint(path+".Value", "StructProperty"); err != nil {
			return nil, err
		}
	}
	removed := d.r.u32()
	count := d.r.count(1)
	if err := d.check(path); err != nil {
		return nil, err
	}
	entries := make([]*rawnode.Node, 0, count)
	for i := 0; i < count; i++ {
		k, err := d.elemValue(keyT, keyStruct, path+".Key")
		if err != nil {
			return nil, err
		}
		v, err := d.elemValue(valueT, valueStruct, path+".Value")
		if err != nil {
			return nil, err
		}
		entries = append(entries, MapEntry(k, v))
	}
	fields = append(fields,
		rawnode.F(keyKeyStruct, optString(keyT == "StructProperty", keyStruct)),
		rawnode.F(keyValueStruct, optString(valueT == "StructProperty", valueStruct)),
		rawnode.F(keyID, optID(id, ok)),
		rawnode.F(keyRemoved, rawnode.Uint(uint64(removed))),
		rawnode.F(keyValue, rawnode.NewArray("MapEntry", entries...)),
	)
	return rawnode.NewMap(fields...), nil
}

func (d *decoder) setProperty(fields []rawnode.Field, size uint64, path string) (*rawnode.Node, error) {
	setT := d.r.fstring()
	id, ok := d.r.optionalGUID()
	if err := d.check(path); err != nil {
		return nil, err
	}
	fields = append(fields, rawnode.F(keySetType, rawnode.String(setT)))
	if !elemSupported(setT) {
		fields = append(fields,
			rawnode.F(keyID, optID(id, ok)),
			rawnode.F(keyOpaque, rawnode.Bool(true)),
			rawnode.F(keyValue, rawnode.Bytes(d.r.bytes(int(size)))),
		)
		return rawnode.NewMap(fields...), d.check(path)
	}
	var structType string
	if setT == "StructProperty" {
		var err error
		if structType, err = d.hint(path+".Value", "Guid"); err != nil {
			return nil, err
		}
	}
	removed := d.r.u32()
	count := d.r.count(1)
	if err := d.check(path); err != nil {
		return nil, err
	}
	items := make([]*rawnode.Node, 0, count)
	for i := 0; i < count; i++ {
		v, err := d.elemValue(setT, structType, path+".Value")
		if err != nil {
			return nil, err
		}
		items = append(items, v)
	}
	fields = append(fields,
		rawnode.F(keyValueStruct, optString(setT == "StructProperty", structType)),
		rawnode.F(keyID, optID(id, ok)),
		rawnode.F(keyRemoved, rawnode.Uint(uint64(removed))),
		rawnode.F(keyValue, rawnode.NewArray(setT, items...)),
	)
	return rawnode.NewMap(fields...), nil
}

func elemSupported(typeName string) bool {
	return typeName == "StructProperty" || isPrimitive(typeName)
}
