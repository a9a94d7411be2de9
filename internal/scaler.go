package internal

import (
	"fmt"
	"sort"

	"go.uber.org/zap"

	"github.com/mahino/scalar"
)

// Scaler resizes every array of a document to the counts the caller
// requested. Scaling is bottom-up: nested arrays are resized before
// their parents, so duplicated parents carry already-scaled children and
// fabricated elements can be re-identified before anything references
// them.
type Scaler struct {
	gen           *IDGenerator
	regenerateIDs bool
	suffixNames   bool
	logger        *zap.SugaredLogger
}

// NewScaler creates a scaler. gen supplies replacement identifiers for
// duplicated elements.
func NewScaler(gen *IDGenerator, cfg scalar.PipelineConfig, logger *zap.SugaredLogger) *Scaler {
	if logger == nil {
		logger = zap.S()
	}
	return &Scaler{
		gen:           gen,
		regenerateIDs: cfg.RegenerateIDs,
		suffixNames:   cfg.SuffixNames,
		logger:        logger,
	}
}

// Scale returns a new document where every array addressed by counts has
// the requested length. Arrays absent from the count map keep their
// length. Count entries whose path does not resolve to an array produce
// an invalid-path warning; growing an empty array produces a
// degenerate-scale warning and leaves the array empty. Arrays nested
// directly inside arrays erase to the same path and share its count
// entry at every nesting level.
func (s *Scaler) Scale(doc scalar.Document, counts scalar.EntityCountMap) (scalar.Document, []scalar.Warning) {
	working := scalar.CopyDocument(doc)
	var warnings []scalar.Warning

	seen := NewSet[string]()
	s.scaleValue(working, scalar.EntityPath{}, counts, seen, &warnings)

	countKeys := MapKeys(counts)
	sort.Strings(countKeys)
	for _, key := range countKeys {
		if !seen.Contains(key) {
			warnings = append(warnings, scalar.Warning{
				Type:    scalar.WarningInvalidPath,
				Path:    key,
				Message: "count entry does not address an array in the document",
			})
		}
	}
	return working, warnings
}

func (s *Scaler) scaleValue(value any, path scalar.EntityPath, counts scalar.EntityCountMap, seen *Set[string], warnings *[]scalar.Warning) any {
	switch v := value.(type) {
	case map[string]any:
		for _, key := range sortedKeys(v) {
			v[key] = s.scaleValue(v[key], path.Child(key), counts, seen, warnings)
		}
		return v
	case []any:
		seen.Add(path.String())
		// Children first so duplicated parents carry scaled subtrees.
		for i := range v {
			v[i] = s.scaleValue(v[i], path, counts, seen, warnings)
		}
		return s.resize(v, path, counts, warnings)
	default:
		return v
	}
}

func (s *Scaler) resize(arr []any, path scalar.EntityPath, counts scalar.EntityCountMap, warnings *[]scalar.Warning) []any {
	n := counts.CountFor(path, len(arr))
	switch {
	case n < 0:
		*warnings = append(*warnings, scalar.Warning{
			Type:    scalar.WarningInvalidPath,
			Path:    path.String(),
			Message: fmt.Sprintf("requested count %d is negative", n),
		})
		return arr
	case n == 0:
		return []any{}
	case n == len(arr):
		return arr
	case n < len(arr):
		s.logger.Debugw("truncating array", "path", path.String(), "from", len(arr), "to", n)
		return arr[:n]
	case len(arr) == 0:
		// No template element exists; the request cannot be honored.
		*warnings = append(*warnings, scalar.Warning{
			Type:    scalar.WarningDegenerateScale,
			Path:    path.String(),
			Message: fmt.Sprintf("cannot grow empty array to %d elements: no template element", n),
		})
		return arr
	default:
		s.logger.Debugw("growing array", "path", path.String(), "from", len(arr), "to", n)
		template := arr[len(arr)-1]
		for i := len(arr); i < n; i++ {
			copied := scalar.CopyValue(template)
			s.reidentify(copied, i)
			arr = append(arr, copied)
		}
		return arr
	}
}

// reidentify rewrites identifier fields (and suffixes name fields)
// throughout one fabricated element so duplicates are distinguishable
// from their template and from each other.
func (s *Scaler) reidentify(value any, index int) {
	if !s.regenerateIDs && !s.suffixNames {
		return
	}
	switch v := value.(type) {
	case map[string]any:
		for _, key := range sortedKeys(v) {
			child := v[key]
			name, stringName := child.(string)
			switch {
			case s.regenerateIDs && IsIDField(key) && isScalar(child):
				v[key] = s.gen.Regenerate(child, index)
			case s.suffixNames && key == "name" && stringName:
				v[key] = fmt.Sprintf("%s_%d", name, index+1)
			default:
				s.reidentify(child, index)
			}
		}
	case []any:
		for _, elem := range v {
			s.reidentify(elem, index)
		}
	}
}

func isScalar(value any) bool {
	switch value.(type) {
	case map[string]any, []any:
		return false
	default:
		return true
	}
}
