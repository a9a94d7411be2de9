package internal

import (
	"github.com/mahino/scalar"
)

// Discover walks a document and records every array as a scalable
// entity: its array-erased path, its current length, and a deep copy of
// its first element as a structural sample (nil for empty arrays, which
// are still recorded). For non-empty arrays only element [0] is explored
// for nested entities; siblings are assumed structurally identical.
//
// Running Discover twice on the same document yields identical results;
// object keys are iterated sorted. Each path appears at most once:
// directly nested arrays erase to their parent's path and are folded
// into that entity.
func Discover(doc scalar.Document) []scalar.ScalableEntity {
	return DiscoverExcluding(doc, nil)
}

// DiscoverExcluding runs discovery but drops entities whose path matches
// one of the excluded paths. The blueprint policy uses this to hide
// arrays that must never be scaled.
func DiscoverExcluding(doc scalar.Document, exclude []scalar.EntityPath) []scalar.ScalableEntity {
	excluded := NewSet[string]()
	for _, p := range exclude {
		excluded.Add(p.String())
	}

	var entities []scalar.ScalableEntity
	discoverValue(doc, scalar.EntityPath{}, excluded, NewSet[string](), &entities)
	return entities
}

func discoverValue(value any, path scalar.EntityPath, excluded, recorded *Set[string], out *[]scalar.ScalableEntity) {
	switch v := value.(type) {
	case map[string]any:
		for _, key := range sortedKeys(v) {
			discoverValue(v[key], path.Child(key), excluded, recorded, out)
		}
	case []any:
		if excluded.Contains(path.String()) {
			return
		}
		// An array nested directly inside an array erases to the same
		// path; only the outermost level becomes an entity.
		if !recorded.Contains(path.String()) {
			recorded.Add(path.String())
			entity := scalar.ScalableEntity{
				Path:         path,
				CurrentCount: len(v),
			}
			if len(v) > 0 {
				entity.Sample = scalar.CopyValue(v[0])
			}
			*out = append(*out, entity)
		}
		if len(v) > 0 {
			discoverValue(v[0], path, excluded, recorded, out)
		}
	}
}
