package schema

import (
	"github.com/cory-johannsen/palworld-lens/internal/rawnode"
)

// Record is one element of a collection with its extracted attributes.
type Record struct {
	Key   string
	Attrs Attrs
	// Node and Entry are kept so follow-up schemas can be applied to the
	// same element.
	Node  *rawnode.Node
	Entry *rawnode.Node
}

// Extract projects node through es. Every field resolves its source against
// node (or entry for scope entry), applies its transform and otherwise takes
// its default.
//
// Postcondition: The result holds exactly one value per field target; Extract
// never fails.
func (es *EntitySchema) Extract(node, entry *rawnode.Node) Attrs {
	out := make(Attrs, len(es.Fields))
	for i := range es.Fields {
		f := &es.Fields[i]
		out[f.Target] = f.resolve(node, entry)
	}
	return out
}

func (f *FieldSchema) resolve(node, entry *rawnode.Node) any {
	base := node
	if f.Scope == ScopeEntry {
		base = entry
	}
	src, ok := rawnode.Get(base, f.Source)
	if !ok || src.IsNull() {
		return f.Default
	}
	fn := f.fn
	if fn == nil {
		fn = identity
	}
	v, ok := fn(src)
	if !ok {
		return f.Default
	}
	return v
}

// Collect extracts one record per element of the collection es declares.
// Elements rejected by the filter, or whose record node does not resolve, are
// skipped.
//
// Precondition: es must declare a collection.
// Postcondition: Returns records in collection order; a missing collection
// source yields no records.
func (es *EntitySchema) Collect(root *rawnode.Node) []Record {
	c := es.Collection
	if c == nil {
		return nil
	}
	src, ok := rawnode.Get(root, c.Source)
	if !ok {
		return nil
	}
	items := rawnode.List(src)
	records := make([]Record, 0, len(items))
	for _, entry := range items {
		node := entry
		if c.Node != "" {
			if node, ok = rawnode.Get(entry, c.Node); !ok {
				continue
			}
		}
		if !c.Filter.accepts(node, entry) {
			continue
		}
		var key string
		if c.Key != "" {
			k, _ := rawnode.Get(entry, c.Key)
			if id, ok := rawnode.GUID(k); ok {
				key = id
			} else {
				key, _ = rawnode.AsString(k)
			}
		}
		records = append(records, Record{
			Key:   key,
			Attrs: es.Extract(node, entry),
			Node:  node,
			Entry: entry,
		})
	}
	return records
}

func (f *Filter) accepts(node, entry *rawnode.Node) bool {
	if f == nil {
		return true
	}
	base := node
	if f.Scope == ScopeEntry {
		base = entry
	}
	return rawnode.GetString(base, f.Source, "") == f.Equals
}
