package schema

import (
	"fmt"
	"sort"
	"strings"

	"github.com/cory-johannsen/palworld-lens/internal/rawnode"
)

// TransformFunc normalizes a resolved source node. ok is false when the node
// cannot be interpreted, in which case the field takes its default.
type TransformFunc func(n *rawnode.Node) (v any, ok bool)

// Caller invokes a named script function on a plain Go value.
type Caller interface {
	Has(fn string) bool
	Call(fn string, arg any) (any, error)
}

// luaPrefix marks a transform implemented by a script function.
const luaPrefix = "lua:"

// Transforms resolves transform names to functions.
type Transforms struct {
	builtin map[string]TransformFunc
	scripts Caller
}

// NewTransforms returns the built-in transforms, with lua:<fn> transforms
// served by scripts. scripts may be nil, in which case lua transforms fail
// to resolve.
func NewTransforms(scripts Caller) *Transforms {
	return &Transforms{
		scripts: scripts,
		builtin: map[string]TransformFunc{
			"":                    identity,
			"guid":                guid,
			"guid_list":           guidList,
			"milli":               milli,
			"strip_enum":          stripEnum,
			"strip_enum_list":     stripEnumList,
			"string_list":         stringList,
			"int":                 toInt,
			"float":               toFloat,
			"bool":                toBool,
			"string":              toString,
			"handle_instance_ids": handleInstanceIDs,
			"slot_instance_ids":   slotInstanceIDs,
			"status_points":       statusPoints,
		},
	}
}

// Names returns the built-in transform names in sorted order.
func (t *Transforms) Names() []string {
	names := make([]string, 0, len(t.builtin))
	for n := range t.builtin {
		if n != "" {
			names = append(names, n)
		}
	}
	sort.Strings(names)
	return names
}

// Resolve returns the function for name.
//
// Postcondition: Returns an error for unknown built-ins and for lua
// transforms whose function is not loaded.
func (t *Transforms) Resolve(name string) (TransformFunc, error) {
	if fn, ok := strings.CutPrefix(name, luaPrefix); ok {
		if fn == "" {
			return nil, fmt.Errorf("transform %q: empty function name", name)
		}
		if t.scripts == nil || !t.scripts.Has(fn) {
			return nil, fmt.Errorf("transform %q: lua function %q not loaded", name, fn)
		}
		return t.script(fn), nil
	}
	if fn, ok := t.builtin[name]; ok {
		return fn, nil
	}
	return nil, fmt.Errorf("unknown transform %q", name)
}

func (t *Transforms) script(fn string) TransformFunc {
	return func(n *rawnode.Node) (any, bool) {
		v, err := t.scripts.Call(fn, rawnode.Simplify(n))
		if err != nil || v == nil {
			return nil, false
		}
		return v, true
	}
}

// identity simplifies scalars and leaves structure to Simplify.
func identity(n *rawnode.Node) (any, bool) {
	v := rawnode.Simplify(n)
	return v, v != nil
}

func guid(n *rawnode.Node) (any, bool) {
	id, ok := rawnode.GUID(n)
	return id, ok
}

func guidList(n *rawnode.Node) (any, bool) {
	items := rawnode.List(n)
	out := make([]string, 0, len(items))
	for _, it := range items {
		if id, ok := rawnode.GUID(it); ok {
			out = append(out, id)
		}
	}
	return out, true
}

// milli converts the game's fixed-point thousandths to whole units.
func milli(n *rawnode.Node) (any, bool) {
	v, ok := rawnode.AsInt(n)
	if !ok {
		return nil, false
	}
	return v / 1000, true
}

func lastEnumPart(s string) string {
	if i := strings.LastIndex(s, "::"); i >= 0 {
		return s[i+2:]
	}
	return s
}

func stripEnum(n *rawnode.Node) (any, bool) {
	s, ok := rawnode.AsString(n)
	if !ok {
		return nil, false
	}
	return lastEnumPart(s), true
}

func stripEnumList(n *rawnode.Node) (any, bool) {
	items := rawnode.List(n)
	out := make([]string, 0, len(items))
	for _, it := range items {
		if s, ok := rawnode.AsString(it); ok {
			out = append(out, lastEnumPart(s))
		}
	}
	return out, true
}

func stringList(n *rawnode.Node) (any, bool) {
	items := rawnode.List(n)
	out := make([]string, 0, len(items))
	for _, it := range items {
		if s, ok := rawnode.AsString(it); ok && s != "" && s != "None" {
			out = append(out, s)
		}
	}
	return out, true
}

func toInt(n *rawnode.Node) (any, bool) {
	v, ok := rawnode.AsInt(n)
	return v, ok
}

func toFloat(n *rawnode.Node) (any, bool) {
	v, ok := rawnode.AsFloat(n)
	return v, ok
}

func toBool(n *rawnode.Node) (any, bool) {
	n = rawnode.Unwrap(n)
	if n == nil || n.Kind != rawnode.KindScalar {
		return nil, false
	}
	b, ok := n.Value.(bool)
	return b, ok
}

func toString(n *rawnode.Node) (any, bool) {
	s, ok := rawnode.AsString(n)
	return s, ok
}

// handleInstanceIDs reads the instance ids of a group's character handles.
func handleInstanceIDs(n *rawnode.Node) (any, bool) {
	return idsAt(n, "instance_id"), true
}

// slotInstanceIDs reads the instance ids held by a character container's
// slots, skipping empty slots.
func slotInstanceIDs(n *rawnode.Node) (any, bool) {
	return idsAt(n, "RawData.instance_id"), true
}

func idsAt(n *rawnode.Node, path string) []string {
	items := rawnode.List(n)
	out := make([]string, 0, len(items))
	for _, it := range items {
		if id, ok := rawnode.GUID(rawnode.GetOr(it, path, nil)); ok {
			out = append(out, id)
		}
	}
	return out
}

// statusPoints folds a GotStatusPointList into name -> points.
func statusPoints(n *rawnode.Node) (any, bool) {
	out := make(map[string]int64)
	for _, it := range rawnode.List(n) {
		name := rawnode.GetString(it, "StatusName", "")
		if name == "" {
			continue
		}
		out[name] = rawnode.GetInt(it, "StatusPoint", 0)
	}
	return out, true
}
