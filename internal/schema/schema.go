// Package schema loads declarative field-mapping files and projects decoded
// save nodes into flat attribute maps.
package schema

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"
)

// Scope selects which node a field's source path is resolved against.
type Scope string

const (
	// ScopeNode resolves against the record node (the default).
	ScopeNode Scope = "node"
	// ScopeEntry resolves against the collection element the node came from.
	ScopeEntry Scope = "entry"
)

// Entity kinds shipped in schemas/.
const (
	KindCharacter  = "character"
	KindPlayer     = "player"
	KindPal        = "pal"
	KindGuild      = "guild"
	KindBase       = "base"
	KindPlayerSave = "player_save"
	KindContainer  = "container"
	KindMapObject  = "map_object"
	KindWorldMeta  = "world_meta"
)

// FieldSchema maps one source path onto one target attribute.
type FieldSchema struct {
	Target    string `yaml:"target"`
	Source    string `yaml:"source"`
	Scope     Scope  `yaml:"scope"`
	Transform string `yaml:"transform"`
	Default   any    `yaml:"default"`

	fn TransformFunc
}

// Filter keeps only collection elements whose source value equals Equals.
type Filter struct {
	Source string `yaml:"source"`
	Scope  Scope  `yaml:"scope"`
	Equals string `yaml:"equals"`
}

// Collection locates the repeated records of a kind in a decoded tree.
type Collection struct {
	// Source is the dotted path of the array or map from the tree root.
	Source string `yaml:"source"`
	// Key is the path, relative to each element, of the record key.
	Key string `yaml:"key"`
	// Node is the path, relative to each element, of the record node. Empty
	// means the element itself.
	Node   string  `yaml:"node"`
	Filter *Filter `yaml:"filter"`
}

// EntitySchema is the ordered field mapping of one entity kind.
type EntitySchema struct {
	Kind       string        `yaml:"kind"`
	Collection *Collection   `yaml:"collection"`
	Fields     []FieldSchema `yaml:"fields"`

	// File is the path the schema was loaded from.
	File string `yaml:"-"`
}

// SchemaError reports every problem found in one schema file.
type SchemaError struct {
	File     string
	Kind     string
	Problems []string
}

// Error implements error.
func (e *SchemaError) Error() string {
	return fmt.Sprintf("schema %s (kind %q): %s", e.File, e.Kind, strings.Join(e.Problems, "; "))
}

// Set is the validated collection of entity schemas, keyed by kind.
type Set struct {
	byKind map[string]*EntitySchema
}

// Schema returns the schema for kind.
func (s *Set) Schema(kind string) (*EntitySchema, bool) {
	es, ok := s.byKind[kind]
	return es, ok
}

// Kinds returns the loaded kinds in sorted order.
func (s *Set) Kinds() []string {
	kinds := make([]string, 0, len(s.byKind))
	for k := range s.byKind {
		kinds = append(kinds, k)
	}
	sort.Strings(kinds)
	return kinds
}

// Require returns a SchemaError naming every kind that is not loaded.
func (s *Set) Require(kinds ...string) error {
	var missing []string
	for _, k := range kinds {
		if _, ok := s.byKind[k]; !ok {
			missing = append(missing, fmt.Sprintf("missing required kind %q", k))
		}
	}
	if len(missing) > 0 {
		return &SchemaError{File: "(set)", Problems: missing}
	}
	return nil
}

// Load reads every *.yaml file in dir as one EntitySchema, validates it and
// resolves its transforms.
//
// Precondition: dir must be a readable directory; transforms must be non-nil.
// Postcondition: Returns a Set or an error; validation failures are *SchemaError.
func Load(dir string, transforms *Transforms) (*Set, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("reading schema dir %q: %w", dir, err)
	}
	set := &Set{byKind: make(map[string]*EntitySchema)}
	for _, e := range entries {
		if e.IsDir() || (filepath.Ext(e.Name()) != ".yaml" && filepath.Ext(e.Name()) != ".yml") {
			continue
		}
		path := filepath.Join(dir, e.Name())
		es, err := LoadFile(path, transforms)
		if err != nil {
			return nil, err
		}
		if prev, dup := set.byKind[es.Kind]; dup {
			return nil, &SchemaError{File: path, Kind: es.Kind, Problems: []string{"kind already defined in " + prev.File}}
		}
		set.byKind[es.Kind] = es
	}
	if len(set.byKind) == 0 {
		return nil, &SchemaError{File: dir, Problems: []string{"no schema files"}}
	}
	return set, nil
}

// LoadFile parses and validates one schema file.
//
// Precondition: transforms must be non-nil.
// Postcondition: Returns a schema whose every field has a resolved transform,
// or an error.
func LoadFile(path string, transforms *Transforms) (*EntitySchema, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading schema %q: %w", path, err)
	}
	var es EntitySchema
	if err := yaml.Unmarshal(data, &es); err != nil {
		return nil, &SchemaError{File: path, Problems: []string{"parsing: " + err.Error()}}
	}
	es.File = path
	if err := es.validate(transforms); err != nil {
		return nil, err
	}
	return &es, nil
}

func validScope(s Scope) bool {
	return s == "" || s == ScopeNode || s == ScopeEntry
}

func (es *EntitySchema) validate(transforms *Transforms) error {
	var problems []string
	if es.Kind == "" {
		problems = append(problems, "kind must not be empty")
	}
	if c := es.Collection; c != nil {
		if c.Source == "" {
			problems = append(problems, "collection.source must not be empty")
		}
		if f := c.Filter; f != nil {
			if f.Source == "" {
				problems = append(problems, "collection.filter.source must not be empty")
			}
			if !validScope(f.Scope) {
				problems = append(problems, fmt.Sprintf("collection.filter: unknown scope %q", f.Scope))
			}
		}
	}
	if len(es.Fields) == 0 {
		problems = append(problems, "fields must not be empty")
	}
	seen := make(map[string]bool, len(es.Fields))
	for i := range es.Fields {
		f := &es.Fields[i]
		label := fmt.Sprintf("fields[%d]", i)
		if f.Target == "" {
			problems = append(problems, label+": target must not be empty")
		} else {
			label = fmt.Sprintf("fields[%d] %q", i, f.Target)
		}
		if f.Target != "" && seen[f.Target] {
			problems = append(problems, label+": duplicate target")
		}
		seen[f.Target] = true
		if f.Source == "" {
			problems = append(problems, label+": source must not be empty")
		}
		switch {
		case !validScope(f.Scope):
			problems = append(problems, fmt.Sprintf("%s: unknown scope %q", label, f.Scope))
		case f.Scope == ScopeEntry && es.Collection == nil:
			problems = append(problems, label+": scope entry requires a collection")
		}
		f.Default = normalizeDefault(f.Default)
		fn, err := transforms.Resolve(f.Transform)
		if err != nil {
			problems = append(problems, fmt.Sprintf("%s: %v", label, err))
			continue
		}
		f.fn = fn
	}
	if len(problems) > 0 {
		return &SchemaError{File: es.File, Kind: es.Kind, Problems: problems}
	}
	return nil
}
