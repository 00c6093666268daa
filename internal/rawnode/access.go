package rawnode

import (
	"math"
	"strconv"
	"strings"
)

// ZeroGUID is the canonical form of an all-zero identifier; the format uses it
// as an empty reference.
const ZeroGUID = "00000000-0000-0000-0000-000000000000"

// maxUnwrap is the deepest value-container nesting the format produces.
const maxUnwrap = 2

// isContainer reports whether n is a value container: a map carrying a "value"
// field. Map-property entries carry both "key" and "value" and are not
// containers.
func isContainer(n *Node) bool {
	if n == nil || n.Kind != KindMap {
		return false
	}
	if _, ok := n.Lookup("key"); ok {
		return false
	}
	_, ok := n.Lookup("value")
	return ok
}

// Unwrap strips up to two levels of value container from n.
//
// Postcondition: Returns n itself when it is not a container; nil stays nil.
func Unwrap(n *Node) *Node {
	for i := 0; i < maxUnwrap && isContainer(n); i++ {
		n, _ = n.Lookup("value")
	}
	return n
}

// Get walks a dotted path from n. Each hop looks up a map key or an array
// index and then unwraps value containers. A "value" segment on a node that
// has already been unwrapped is skipped.
//
// Postcondition: ok is false when any hop is missing or type-mismatched; Get
// never panics.
func Get(n *Node, path string) (*Node, bool) {
	if n == nil {
		return nil, false
	}
	if path == "" {
		return n, true
	}
	cur := n
	for _, seg := range strings.Split(path, ".") {
		if seg == "" {
			return nil, false
		}
		next, ok := hop(cur, seg)
		if !ok {
			if seg == "value" {
				continue
			}
			return nil, false
		}
		cur = Unwrap(next)
		if cur == nil {
			return nil, false
		}
	}
	return cur, true
}

func hop(cur *Node, seg string) (*Node, bool) {
	switch cur.Kind {
	case KindMap:
		if v, ok := cur.Lookup(seg); ok {
			return v, true
		}
		if items := List(cur); items != nil {
			return index(items, seg)
		}
		return nil, false
	case KindArray:
		return index(cur.Items, seg)
	default:
		return nil, false
	}
}

func index(items []*Node, seg string) (*Node, bool) {
	i, err := strconv.Atoi(seg)
	if err != nil || i < 0 || i >= len(items) {
		return nil, false
	}
	return items[i], true
}

// GetOr returns the node at path, or def when the path does not resolve.
func GetOr(n *Node, path string, def *Node) *Node {
	if v, ok := Get(n, path); ok {
		return v
	}
	return def
}

// GetString returns the string at path, or def.
func GetString(n *Node, path, def string) string {
	v, ok := Get(n, path)
	if !ok {
		return def
	}
	if s, ok := AsString(v); ok {
		return s
	}
	return def
}

// GetInt returns the integer at path, or def.
func GetInt(n *Node, path string, def int64) int64 {
	v, ok := Get(n, path)
	if !ok {
		return def
	}
	if i, ok := AsInt(v); ok {
		return i
	}
	return def
}

// GetFloat returns the number at path as float64, or def.
func GetFloat(n *Node, path string, def float64) float64 {
	v, ok := Get(n, path)
	if !ok {
		return def
	}
	if f, ok := AsFloat(v); ok {
		return f
	}
	return def
}

// GetBool returns the bool at path, or def.
func GetBool(n *Node, path string, def bool) bool {
	v, ok := Get(n, path)
	if !ok || v.Kind != KindScalar {
		return def
	}
	if b, ok := v.Value.(bool); ok {
		return b
	}
	return def
}

// AsString converts a scalar string or struct reference to a string.
func AsString(n *Node) (string, bool) {
	n = Unwrap(n)
	if n == nil {
		return "", false
	}
	switch n.Kind {
	case KindScalar:
		s, ok := n.Value.(string)
		return s, ok
	case KindStructRef:
		return n.ID, true
	}
	return "", false
}

// AsInt converts a numeric scalar to int64. Floats are truncated.
func AsInt(n *Node) (int64, bool) {
	n = Unwrap(n)
	if n == nil || n.Kind != KindScalar {
		return 0, false
	}
	switch v := n.Value.(type) {
	case int64:
		return v, true
	case uint64:
		if v > math.MaxInt64 {
			return 0, false
		}
		return int64(v), true
	case float64:
		return int64(v), true
	}
	return 0, false
}

// AsFloat converts a numeric scalar to float64.
func AsFloat(n *Node) (float64, bool) {
	n = Unwrap(n)
	if n == nil || n.Kind != KindScalar {
		return 0, false
	}
	switch v := n.Value.(type) {
	case int64:
		return float64(v), true
	case uint64:
		return float64(v), true
	case float64:
		return v, true
	}
	return 0, false
}

// GUID extracts the canonical identifier from a struct reference, a wrapped
// struct reference, or a plain string.
//
// Postcondition: ok is false for the all-zero identifier and for non-identity
// nodes.
func GUID(n *Node) (string, bool) {
	n = Unwrap(n)
	if n == nil {
		return "", false
	}
	var id string
	switch n.Kind {
	case KindStructRef:
		id = n.ID
	case KindScalar:
		s, ok := n.Value.(string)
		if !ok {
			return "", false
		}
		id = s
	default:
		return "", false
	}
	id = strings.ToLower(id)
	if id == "" || id == ZeroGUID {
		return "", false
	}
	return id, true
}

// List returns the ordered elements of an array node. Containers of the form
// {"values": [...]} produced by array properties are looked through.
//
// Postcondition: Returns an empty (non-nil) slice when n holds no sequence.
func List(n *Node) []*Node {
	n = Unwrap(n)
	if n == nil {
		return []*Node{}
	}
	switch n.Kind {
	case KindArray:
		return n.Items
	case KindMap:
		if v, ok := n.Lookup("values"); ok && v.Kind == KindArray {
			return v.Items
		}
	}
	return []*Node{}
}

// Simplify converts a tree into plain Go values (map[string]any, []any,
// scalars), unwrapping value containers on the way. Struct references become
// their identifier string.
func Simplify(n *Node) any {
	n = Unwrap(n)
	if n == nil {
		return nil
	}
	switch n.Kind {
	case KindScalar:
		return n.Value
	case KindStructRef:
		return n.ID
	case KindArray:
		out := make([]any, len(n.Items))
		for i, it := range n.Items {
			out[i] = Simplify(it)
		}
		return out
	case KindMap:
		out := make(map[string]any, len(n.Fields))
		for _, f := range n.Fields {
			out[f.Key] = Simplify(f.Value)
		}
		return out
	}
	return nil
}
