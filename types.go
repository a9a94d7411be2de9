package scalar

import (
	"encoding/json"
	"sort"
	"strings"
)

// Document is a parsed JSON payload. Objects are map[string]any, arrays
// are []any, leaves are string/float64/bool/nil as produced by
// encoding/json. Serialization is canonical (sorted keys), so two
// structurally equal documents marshal to identical bytes.
type Document = map[string]any

// EntityPath addresses a location in a nested document as an ordered
// sequence of field names. Array indices are erased: every element of an
// array shares the array's path. Equality is by the dotted string form.
type EntityPath struct {
	segments []string
}

// ParsePath parses a dotted path string such as
// "spec.resources.service_definition_list".
func ParsePath(s string) (EntityPath, error) {
	if s == "" {
		return EntityPath{}, NewInvalidPathError(s, "path is empty")
	}
	segments := strings.Split(s, ".")
	for _, seg := range segments {
		if seg == "" {
			return EntityPath{}, NewInvalidPathError(s, "path contains an empty segment")
		}
	}
	return EntityPath{segments: segments}, nil
}

// MustParsePath parses a path and panics on failure. For constants and tests.
func MustParsePath(s string) EntityPath {
	p, err := ParsePath(s)
	if err != nil {
		panic(err)
	}
	return p
}

// NewPath builds a path directly from segments.
func NewPath(segments ...string) EntityPath {
	copied := make([]string, len(segments))
	copy(copied, segments)
	return EntityPath{segments: copied}
}

// String returns the dotted form of the path.
func (p EntityPath) String() string {
	return strings.Join(p.segments, ".")
}

// Segments returns a copy of the path segments.
func (p EntityPath) Segments() []string {
	copied := make([]string, len(p.segments))
	copy(copied, p.segments)
	return copied
}

// Depth returns the number of segments.
func (p EntityPath) Depth() int {
	return len(p.segments)
}

// IsZero reports whether the path has no segments.
func (p EntityPath) IsZero() bool {
	return len(p.segments) == 0
}

// Child returns the path extended by one segment.
func (p EntityPath) Child(segment string) EntityPath {
	segments := make([]string, 0, len(p.segments)+1)
	segments = append(segments, p.segments...)
	segments = append(segments, segment)
	return EntityPath{segments: segments}
}

// Parent returns the path with the last segment removed. The parent of a
// single-segment path is the zero path.
func (p EntityPath) Parent() EntityPath {
	if len(p.segments) <= 1 {
		return EntityPath{}
	}
	return EntityPath{segments: p.segments[:len(p.segments)-1]}
}

// Leaf returns the last segment, or "" for the zero path.
func (p EntityPath) Leaf() string {
	if len(p.segments) == 0 {
		return ""
	}
	return p.segments[len(p.segments)-1]
}

// Equal reports whether both paths have the same dotted form.
func (p EntityPath) Equal(other EntityPath) bool {
	return p.String() == other.String()
}

// HasPrefix reports whether prefix is an ancestor of (or equal to) p.
func (p EntityPath) HasPrefix(prefix EntityPath) bool {
	if len(prefix.segments) > len(p.segments) {
		return false
	}
	for i, seg := range prefix.segments {
		if p.segments[i] != seg {
			return false
		}
	}
	return true
}

// MarshalJSON encodes the path as its dotted string form.
func (p EntityPath) MarshalJSON() ([]byte, error) {
	return json.Marshal(p.String())
}

// UnmarshalJSON decodes a dotted string into a path.
func (p *EntityPath) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	parsed, err := ParsePath(s)
	if err != nil {
		return err
	}
	*p = parsed
	return nil
}

// ScalableEntity describes one array discovered in a document: where it
// is, how many elements it currently has, and a structural sample (the
// first element, or nil when the array is empty). Sibling elements are
// assumed structurally identical to the sample; discovery never inspects
// them individually.
type ScalableEntity struct {
	Path         EntityPath `json:"path"`
	CurrentCount int        `json:"current_count"`
	Sample       any        `json:"sample"`
}

// EntityCountMap maps dotted path strings to desired element counts.
// Paths absent from the map keep their discovered count. A count of 0
// empties the array.
type EntityCountMap map[string]int

// CountFor returns the desired count for path, or fallback when the path
// is not present.
func (m EntityCountMap) CountFor(path EntityPath, fallback int) int {
	if n, ok := m[path.String()]; ok {
		return n
	}
	return fallback
}

// SortEntitiesByDepth orders entities parent-before-child (ascending
// segment count), stable for equal depth. Callers rendering a tree or
// resolving count dependencies need this order; discovery itself does
// not guarantee one.
func SortEntitiesByDepth(entities []ScalableEntity) {
	sort.SliceStable(entities, func(i, j int) bool {
		return entities[i].Path.Depth() < entities[j].Path.Depth()
	})
}

// WarningType categorizes non-fatal pipeline conditions.
type WarningType string

const (
	WarningInvalidPath     WarningType = "invalid_path"
	WarningDegenerateScale WarningType = "degenerate_scale"
	WarningRuleSkipped     WarningType = "rule_skipped"
	WarningCloneNoMatch    WarningType = "clone_no_match"
	WarningCountIgnored    WarningType = "count_ignored"
)

// Warning records a recoverable condition encountered during a pipeline
// run. Warnings accompany results; they never abort the run.
type Warning struct {
	Type    WarningType `json:"type"`
	Path    string      `json:"path,omitempty"`
	Message string      `json:"message"`
}

// PipelineResult is what a full pipeline run returns: the generated
// document plus every warning collected along the way.
type PipelineResult struct {
	Document Document  `json:"document"`
	Warnings []Warning `json:"warnings"`
}

// RuleSetDocument is the persisted record for one payload template,
// keyed by an opaque identifier (historically the target API URL).
type RuleSetDocument struct {
	ID               string           `json:"id"`
	APIType          string           `json:"api_type,omitempty"`
	Rules            RuleSet          `json:"rules"`
	ScalableEntities []ScalableEntity `json:"scalable_entities,omitempty"`
	PayloadTemplate  Document         `json:"payload_template,omitempty"`
	TaskExecution    bool             `json:"task_execution,omitempty"`
	CreatedAt        int64            `json:"created_at"`
	UpdatedAt        int64            `json:"updated_at"`
}

// GenerationRecord is one archived pipeline response.
type GenerationRecord struct {
	ID        string    `json:"id"`
	RuleSetID string    `json:"ruleset_id"`
	Document  Document  `json:"document"`
	Warnings  []Warning `json:"warnings,omitempty"`
	CreatedAt int64     `json:"created_at"`
}

// ReferenceItem is one live entity returned by a reference provider.
type ReferenceItem struct {
	UUID string `json:"uuid"`
	Name string `json:"name"`
}

// CopyValue deep-copies any JSON-compatible value. Scalars are returned
// as-is; maps and slices are copied recursively.
func CopyValue(value any) any {
	switch v := value.(type) {
	case map[string]any:
		copied := make(map[string]any, len(v))
		for key, val := range v {
			copied[key] = CopyValue(val)
		}
		return copied
	case []any:
		copied := make([]any, len(v))
		for i, val := range v {
			copied[i] = CopyValue(val)
		}
		return copied
	default:
		return v
	}
}

// CopyDocument deep-copies a document.
func CopyDocument(doc Document) Document {
	if doc == nil {
		return nil
	}
	return CopyValue(doc).(map[string]any)
}

// CanonicalJSON marshals a value with encoding/json's sorted-key object
// encoding, giving a stable byte form for equality checks and history.
func CanonicalJSON(value any) ([]byte, error) {
	return json.Marshal(value)
}
