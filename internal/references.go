package internal

import (
	"fmt"

	"github.com/mahino/scalar"
)

// ResolveReferenceMapping rewrites every occurrence of the mapping's
// target path with a value collected from its source path. Candidates
// are gathered across the whole document in document order; targets are
// then visited in document order and assigned by strategy:
//
//   - FirstOnly: every target gets the first candidate.
//   - OneToOne: target i gets candidate i, clamped to the last candidate
//     when targets outnumber candidates.
//   - RoundRobin: target i gets candidate i mod len(candidates).
func ResolveReferenceMapping(doc scalar.Document, mapping scalar.ReferenceMappingRule) []scalar.Warning {
	candidates := CollectAtPath(doc, mapping.SourcePath)
	if len(candidates) == 0 {
		return []scalar.Warning{{
			Type:    scalar.WarningRuleSkipped,
			Path:    mapping.SourcePath.String(),
			Message: "reference mapping skipped: no values at source path",
		}}
	}

	index := 0
	count := RewriteAtPath(doc, mapping.TargetPath, func(any) any {
		var chosen any
		switch mapping.MappingType {
		case scalar.MappingFirstOnly:
			chosen = candidates[0]
		case scalar.MappingOneToOne:
			i := index
			if i >= len(candidates) {
				i = len(candidates) - 1
			}
			chosen = candidates[i]
		case scalar.MappingRoundRobin:
			chosen = candidates[index%len(candidates)]
		default:
			chosen = candidates[0]
		}
		index++
		return scalar.CopyValue(chosen)
	})
	if count == 0 {
		return []scalar.Warning{{
			Type:    scalar.WarningRuleSkipped,
			Path:    mapping.TargetPath.String(),
			Message: "reference mapping skipped: no occurrences of target path",
		}}
	}
	return nil
}

// RewriteAtPath replaces every occurrence of path with fn's result,
// visiting occurrences in document order. Returns the occurrence count.
func RewriteAtPath(doc scalar.Document, path scalar.EntityPath, fn func(old any) any) int {
	count := 0
	walkPath(doc, path.Segments(), func(parent map[string]any, key string) {
		parent[key] = fn(parent[key])
		count++
	})
	return count
}

// RegenerateUUIDs walks the document and replaces the value of every
// identifier field holding a UUID-shaped string with a fresh UUID,
// except fields whose path is in covered (already handled by an explicit
// reference mapping). The returned map records old to new values; every
// other occurrence of an old UUID anywhere in the document is rewritten
// to the same new value, keeping cross-references consistent.
func RegenerateUUIDs(doc scalar.Document, gen *IDGenerator, covered *Set[string]) map[string]string {
	if covered == nil {
		covered = NewSet[string]()
	}
	replaced := make(map[string]string)
	collectUUIDReplacements(doc, scalar.EntityPath{}, gen, covered, replaced)
	if len(replaced) > 0 {
		rewriteReplacedUUIDs(doc, replaced)
	}
	return replaced
}

func collectUUIDReplacements(value any, path scalar.EntityPath, gen *IDGenerator, covered *Set[string], replaced map[string]string) {
	switch v := value.(type) {
	case map[string]any:
		for _, key := range sortedKeys(v) {
			childPath := path.Child(key)
			child := v[key]
			if str, ok := child.(string); ok && IsIDField(key) && LooksLikeUUID(str) && !covered.Contains(childPath.String()) {
				if _, seen := replaced[str]; !seen {
					replaced[str] = gen.NewUUID()
				}
				continue
			}
			collectUUIDReplacements(child, childPath, gen, covered, replaced)
		}
	case []any:
		for _, elem := range v {
			collectUUIDReplacements(elem, path, gen, covered, replaced)
		}
	}
}

func rewriteReplacedUUIDs(value any, replaced map[string]string) {
	switch v := value.(type) {
	case map[string]any:
		for _, key := range sortedKeys(v) {
			if str, ok := v[key].(string); ok {
				if newValue, found := replaced[str]; found {
					v[key] = newValue
					continue
				}
			}
			rewriteReplacedUUIDs(v[key], replaced)
		}
	case []any:
		for i, elem := range v {
			if str, ok := elem.(string); ok {
				if newValue, found := replaced[str]; found {
					v[i] = newValue
				}
				continue
			}
			rewriteReplacedUUIDs(elem, replaced)
		}
	}
}

// CollectReferenceSummary reports, for debugging and the analyze
// surface, how many occurrences each mapping's source and target paths
// have in a document.
func CollectReferenceSummary(doc scalar.Document, mappings []scalar.ReferenceMappingRule) map[string]string {
	summary := make(map[string]string, len(mappings))
	for _, m := range mappings {
		sources := len(CollectAtPath(doc, m.SourcePath))
		targets := len(CollectAtPath(doc, m.TargetPath))
		summary[m.TargetPath.String()] = fmt.Sprintf("%d sources, %d targets, %s", sources, targets, m.MappingType)
	}
	return summary
}
