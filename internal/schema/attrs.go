package schema

import "math"

// Attrs is the flat attribute map produced by Extract.
type Attrs map[string]any

// Has reports whether key holds a non-nil value.
func (a Attrs) Has(key string) bool {
	v, ok := a[key]
	return ok && v != nil
}

// String returns the string at key, or "".
func (a Attrs) String(key string) string {
	s, _ := a[key].(string)
	return s
}

// Int returns the integer at key, truncating floats, or 0.
func (a Attrs) Int(key string) int64 {
	switch v := a[key].(type) {
	case int:
		return int64(v)
	case int64:
		return v
	case uint64:
		if v > math.MaxInt64 {
			return math.MaxInt64
		}
		return int64(v)
	case float64:
		return int64(v)
	}
	return 0
}

// Float returns the number at key, or 0.
func (a Attrs) Float(key string) float64 {
	switch v := a[key].(type) {
	case int:
		return float64(v)
	case int64:
		return float64(v)
	case uint64:
		return float64(v)
	case float64:
		return v
	}
	return 0
}

// Bool returns the bool at key, or false.
func (a Attrs) Bool(key string) bool {
	b, _ := a[key].(bool)
	return b
}

// Strings returns the string list at key. Lists produced by scripts are
// accepted when every element is a string.
//
// Postcondition: Never returns nil.
func (a Attrs) Strings(key string) []string {
	switch v := a[key].(type) {
	case []string:
		return v
	case []any:
		out := make([]string, 0, len(v))
		for _, it := range v {
			if s, ok := it.(string); ok {
				out = append(out, s)
			}
		}
		return out
	}
	return []string{}
}

// IntMap returns the name -> integer map at key.
//
// Postcondition: Never returns nil.
func (a Attrs) IntMap(key string) map[string]int64 {
	switch v := a[key].(type) {
	case map[string]int64:
		return v
	case map[string]any:
		out := make(map[string]int64, len(v))
		for k := range v {
			out[k] = Attrs(v).Int(k)
		}
		return out
	}
	return map[string]int64{}
}

// Maps returns the list of objects at key, as produced by scripts.
//
// Postcondition: Never returns nil.
func (a Attrs) Maps(key string) []Attrs {
	list, _ := a[key].([]any)
	out := make([]Attrs, 0, len(list))
	for _, it := range list {
		if m, ok := it.(map[string]any); ok {
			out = append(out, Attrs(m))
		}
	}
	return out
}

// normalizeDefault converts YAML-decoded defaults to the types transforms
// produce.
func normalizeDefault(v any) any {
	switch x := v.(type) {
	case int:
		return int64(x)
	case []any:
		strs := make([]string, 0, len(x))
		for _, it := range x {
			s, ok := it.(string)
			if !ok {
				return x
			}
			strs = append(strs, s)
		}
		return strs
	}
	return v
}
