// Package rawnode defines the generic tree produced by the save decoder and
// the accessor helpers every downstream consumer uses to read it.
package rawnode

import "fmt"

// Kind identifies the variant carried by a Node.
type Kind uint8

const (
	// KindScalar holds a string, integer, float, bool, byte slice, or nil.
	KindScalar Kind = iota
	// KindMap holds ordered key/value fields.
	KindMap
	// KindArray holds an ordered, typed sequence of nodes.
	KindArray
	// KindStructRef holds a type tag plus an identifier (e.g. a GUID).
	KindStructRef
)

// String returns the lower-case variant name.
func (k Kind) String() string {
	switch k {
	case KindScalar:
		return "scalar"
	case KindMap:
		return "map"
	case KindArray:
		return "array"
	case KindStructRef:
		return "structref"
	default:
		return fmt.Sprintf("kind(%d)", uint8(k))
	}
}

// Field is one ordered entry of a map node.
type Field struct {
	Key   string
	Value *Node
}

// Node is one element of a decoded save tree.
//
// Only the fields relevant to Kind are populated:
//   - KindMap: Fields
//   - KindArray: Type (element type) and Items
//   - KindScalar: Value
//   - KindStructRef: Type (tag) and ID
type Node struct {
	Kind   Kind
	Type   string
	Fields []Field
	Items  []*Node
	Value  any
	ID     string
}

// NewMap returns a map node holding fields in the given order.
func NewMap(fields ...Field) *Node {
	return &Node{Kind: KindMap, Fields: fields}
}

// NewArray returns an array node with elemType and items.
func NewArray(elemType string, items ...*Node) *Node {
	if items == nil {
		items = []*Node{}
	}
	return &Node{Kind: KindArray, Type: elemType, Items: items}
}

// Ref returns a struct reference node.
func Ref(tag, id string) *Node {
	return &Node{Kind: KindStructRef, Type: tag, ID: id}
}

// Null returns a scalar node holding nil.
func Null() *Node { return &Node{Kind: KindScalar} }

// String returns a scalar string node.
func String(s string) *Node { return &Node{Kind: KindScalar, Value: s} }

// Int returns a scalar signed integer node.
func Int(i int64) *Node { return &Node{Kind: KindScalar, Value: i} }

// Uint returns a scalar unsigned integer node.
func Uint(u uint64) *Node { return &Node{Kind: KindScalar, Value: u} }

// Float returns a scalar float node.
func Float(f float64) *Node { return &Node{Kind: KindScalar, Value: f} }

// Bool returns a scalar bool node.
func Bool(b bool) *Node { return &Node{Kind: KindScalar, Value: b} }

// Bytes returns a scalar node holding an opaque byte payload.
func Bytes(b []byte) *Node {
	if b == nil {
		b = []byte{}
	}
	return &Node{Kind: KindScalar, Value: b}
}

// F is shorthand for constructing a Field.
func F(key string, value *Node) Field { return Field{Key: key, Value: value} }

// IsNull reports whether n is nil or a nil scalar.
func (n *Node) IsNull() bool {
	return n == nil || (n.Kind == KindScalar && n.Value == nil)
}

// Lookup returns the value stored under key in a map node.
//
// Postcondition: ok is false when n is nil, not a map, or lacks key.
func (n *Node) Lookup(key string) (*Node, bool) {
	if n == nil || n.Kind != KindMap {
		return nil, false
	}
	for i := range n.Fields {
		if n.Fields[i].Key == key {
			return n.Fields[i].Value, true
		}
	}
	return nil, false
}

// Set replaces the value under key, appending a new field when absent.
//
// Precondition: n must be a map node.
func (n *Node) Set(key string, value *Node) {
	for i := range n.Fields {
		if n.Fields[i].Key == key {
			n.Fields[i].Value = value
			return
		}
	}
	n.Fields = append(n.Fields, Field{Key: key, Value: value})
}

// Keys returns the map keys in order, or nil for non-map nodes.
func (n *Node) Keys() []string {
	if n == nil || n.Kind != KindMap {
		return nil
	}
	keys := make([]string, len(n.Fields))
	for i, f := range n.Fields {
		keys[i] = f.Key
	}
	return keys
}
