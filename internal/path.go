package internal

import (
	"sort"
	"strconv"

	"github.com/mahino/scalar"
)

// Path traversal over parsed JSON values. Paths are array-erased: a
// segment addressing an array applies to every element, so one path can
// resolve to many occurrences. Occurrences are visited in document
// order, with object keys iterated sorted for determinism.

// CollectAtPath returns every value found at path, in document order.
func CollectAtPath(value any, path scalar.EntityPath) []any {
	var out []any
	walkPath(value, path.Segments(), func(parent map[string]any, key string) {
		out = append(out, parent[key])
	})
	return out
}

// SetAtPath overwrites every occurrence of path with a deep copy of
// newValue. Returns the number of occurrences written.
func SetAtPath(value any, path scalar.EntityPath, newValue any) int {
	count := 0
	walkPath(value, path.Segments(), func(parent map[string]any, key string) {
		parent[key] = scalar.CopyValue(newValue)
		count++
	})
	return count
}

// RemoveFieldAtPath deletes field from every object found at path. When
// the path addresses an array, the field is removed from each element;
// when it addresses an object, from that object itself. Returns the
// number of removals.
func RemoveFieldAtPath(value any, path scalar.EntityPath, field string) int {
	count := 0
	walkPath(value, path.Segments(), func(parent map[string]any, key string) {
		switch target := parent[key].(type) {
		case []any:
			for _, elem := range target {
				if obj, ok := elem.(map[string]any); ok {
					if _, exists := obj[field]; exists {
						delete(obj, field)
						count++
					}
				}
			}
		case map[string]any:
			if _, exists := target[field]; exists {
				delete(target, field)
				count++
			}
		}
	})
	return count
}

// TransformArraysAtPath replaces each array found at path with fn's
// result. Non-array values at the path are left alone. Returns the
// number of arrays transformed.
func TransformArraysAtPath(value any, path scalar.EntityPath, fn func([]any) []any) int {
	count := 0
	walkPath(value, path.Segments(), func(parent map[string]any, key string) {
		if arr, ok := parent[key].([]any); ok {
			parent[key] = fn(arr)
			count++
		}
	})
	return count
}

// PathBlocked reports whether traversing path through value runs into a
// scalar before the final segment, which makes the path untraversable
// rather than merely absent.
func PathBlocked(value any, path scalar.EntityPath) bool {
	segments := path.Segments()
	return pathBlocked(value, segments)
}

func pathBlocked(value any, segments []string) bool {
	if len(segments) == 0 {
		return false
	}
	switch v := value.(type) {
	case map[string]any:
		child, ok := v[segments[0]]
		if !ok {
			return false
		}
		if len(segments) == 1 {
			return false
		}
		return pathBlocked(child, segments[1:])
	case []any:
		for _, elem := range v {
			if pathBlocked(elem, segments) {
				return true
			}
		}
		return false
	default:
		return true
	}
}

// walkPath visits every occurrence of the segment chain, calling apply
// with the owning object and final key so callers can read or mutate in
// place. Arrays encountered mid-path fan out over every element.
func walkPath(value any, segments []string, apply func(parent map[string]any, key string)) {
	if len(segments) == 0 {
		return
	}
	switch v := value.(type) {
	case map[string]any:
		child, ok := v[segments[0]]
		if !ok {
			return
		}
		if len(segments) == 1 {
			apply(v, segments[0])
			return
		}
		walkPath(child, segments[1:], apply)
	case []any:
		for _, elem := range v {
			walkPath(elem, segments, apply)
		}
	}
}

// sortedKeys returns the keys of an object sorted for deterministic
// iteration.
func sortedKeys(obj map[string]any) []string {
	keys := MapKeys(obj)
	sort.Strings(keys)
	return keys
}

// toString renders a leaf value the way rule comparisons expect:
// integral numbers without a decimal point, everything else via the
// default formatting of strconv/fmt.
func toString(value any) string {
	switch v := value.(type) {
	case string:
		return v
	case float64:
		if v == float64(int64(v)) {
			return strconv.FormatInt(int64(v), 10)
		}
		return strconv.FormatFloat(v, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(v)
	case int:
		return strconv.Itoa(v)
	case int64:
		return strconv.FormatInt(v, 10)
	case nil:
		return ""
	default:
		return ""
	}
}
