package scalar

import (
	"encoding/json"
	"fmt"
	"sort"
)

// RuleKind identifies one transformation rule variant.
type RuleKind string

const (
	RuleKindFilter           RuleKind = "filter"
	RuleKindClone            RuleKind = "clone"
	RuleKindSetValue         RuleKind = "set_value"
	RuleKindRemoveField      RuleKind = "remove_field"
	RuleKindKeepFirst        RuleKind = "keep_first"
	RuleKindReferenceMapping RuleKind = "reference_mapping"
	RuleKindUseSingle        RuleKind = "use_single"
)

// Precedence returns the application order of a rule kind. Filter and
// Clone change array membership and run before anything else touching
// the same array; ReferenceMapping runs after membership is final;
// UseSingle is an absolute length-1 cap and always runs last, so it
// always wins. Lower values run first.
func (k RuleKind) Precedence() int {
	switch k {
	case RuleKindFilter:
		return 0
	case RuleKindClone:
		return 1
	case RuleKindSetValue:
		return 2
	case RuleKindRemoveField:
		return 3
	case RuleKindKeepFirst:
		return 4
	case RuleKindReferenceMapping:
		return 5
	case RuleKindUseSingle:
		return 6
	default:
		return 7
	}
}

// MappingType selects how a ReferenceMapping assigns source values to
// target occurrences.
type MappingType string

const (
	// MappingFirstOnly gives every target the first source value.
	MappingFirstOnly MappingType = "first_only"
	// MappingOneToOne gives target i source value i, clamped to the last
	// source value when targets outnumber sources.
	MappingOneToOne MappingType = "one_to_one"
	// MappingRoundRobin gives target i source value i mod len(sources).
	MappingRoundRobin MappingType = "round_robin"
)

// Rule is one typed transformation applied to a document after
// structural scaling. Rules are pure: applying one never mutates the
// input document.
type Rule interface {
	Kind() RuleKind
	Validate() error
}

// FilterRule keeps only array elements whose FilterField value is one of
// AllowedValues. Elements missing the field are dropped.
type FilterRule struct {
	TargetPath    EntityPath `json:"target_path"`
	FilterField   string     `json:"filter_field"`
	AllowedValues []string   `json:"allowed_values"`
}

func (r FilterRule) Kind() RuleKind { return RuleKindFilter }

func (r FilterRule) Validate() error {
	if r.TargetPath.IsZero() {
		return NewRuleValidationError(RuleKindFilter, "target_path is required")
	}
	if r.FilterField == "" {
		return NewRuleValidationError(RuleKindFilter, "filter_field is required")
	}
	return nil
}

// CloneRule finds the first element where SourceField equals SourceValue
// and appends one deep copy per entry in CloneValues, overwriting
// SourceField on each copy. No matching element makes the rule a no-op
// with a warning.
type CloneRule struct {
	TargetPath  EntityPath `json:"target_path"`
	SourceField string     `json:"source_field"`
	SourceValue string     `json:"source_value"`
	CloneValues []string   `json:"clone_values"`
}

func (r CloneRule) Kind() RuleKind { return RuleKindClone }

func (r CloneRule) Validate() error {
	if r.TargetPath.IsZero() {
		return NewRuleValidationError(RuleKindClone, "target_path is required")
	}
	if r.SourceField == "" {
		return NewRuleValidationError(RuleKindClone, "source_field is required")
	}
	return nil
}

// UseSingleRule truncates the named array entity to length 1 regardless
// of any requested count.
type UseSingleRule struct {
	SourceEntity EntityPath `json:"source_entity"`
}

func (r UseSingleRule) Kind() RuleKind { return RuleKindUseSingle }

func (r UseSingleRule) Validate() error {
	if r.SourceEntity.IsZero() {
		return NewRuleValidationError(RuleKindUseSingle, "source_entity is required")
	}
	return nil
}

// ReferenceMappingRule rewrites values at TargetPath to reference values
// found at SourcePath, by strategy.
type ReferenceMappingRule struct {
	SourcePath  EntityPath  `json:"source_path"`
	TargetPath  EntityPath  `json:"target_path"`
	MappingType MappingType `json:"mapping_type"`
}

func (r ReferenceMappingRule) Kind() RuleKind { return RuleKindReferenceMapping }

func (r ReferenceMappingRule) Validate() error {
	if r.SourcePath.IsZero() || r.TargetPath.IsZero() {
		return NewRuleValidationError(RuleKindReferenceMapping, "source_path and target_path are required")
	}
	switch r.MappingType {
	case MappingFirstOnly, MappingOneToOne, MappingRoundRobin:
		return nil
	default:
		return NewRuleValidationError(RuleKindReferenceMapping,
			fmt.Sprintf("unknown mapping_type %q", r.MappingType))
	}
}

// KeepFirstRule truncates the array at TargetPath to its first KeepCount
// elements. Shorter arrays are left alone.
type KeepFirstRule struct {
	TargetPath EntityPath `json:"target_path"`
	KeepCount  int        `json:"keep_count"`
}

func (r KeepFirstRule) Kind() RuleKind { return RuleKindKeepFirst }

func (r KeepFirstRule) Validate() error {
	if r.TargetPath.IsZero() {
		return NewRuleValidationError(RuleKindKeepFirst, "target_path is required")
	}
	if r.KeepCount < 1 {
		return NewRuleValidationError(RuleKindKeepFirst, "keep_count must be at least 1")
	}
	return nil
}

// SetValueRule unconditionally overwrites the value at TargetPath.
type SetValueRule struct {
	TargetPath EntityPath `json:"target_path"`
	NewValue   any        `json:"new_value"`
}

func (r SetValueRule) Kind() RuleKind { return RuleKindSetValue }

func (r SetValueRule) Validate() error {
	if r.TargetPath.IsZero() {
		return NewRuleValidationError(RuleKindSetValue, "target_path is required")
	}
	return nil
}

// RemoveFieldRule deletes FieldToRemove from every object found at
// TargetPath, or from the object itself when the target is not an array.
type RemoveFieldRule struct {
	TargetPath    EntityPath `json:"target_path"`
	FieldToRemove string     `json:"field_to_remove"`
}

func (r RemoveFieldRule) Kind() RuleKind { return RuleKindRemoveField }

func (r RemoveFieldRule) Validate() error {
	if r.TargetPath.IsZero() {
		return NewRuleValidationError(RuleKindRemoveField, "target_path is required")
	}
	if r.FieldToRemove == "" {
		return NewRuleValidationError(RuleKindRemoveField, "field_to_remove is required")
	}
	return nil
}

// UnmarshalRule decodes one rule from its JSON envelope. The variant is
// selected by the "type" field.
func UnmarshalRule(data []byte) (Rule, error) {
	var probe struct {
		Type RuleKind `json:"type"`
	}
	if err := json.Unmarshal(data, &probe); err != nil {
		return nil, fmt.Errorf("failed to probe rule type: %w", err)
	}

	var rule Rule
	switch probe.Type {
	case RuleKindFilter:
		var r FilterRule
		if err := json.Unmarshal(data, &r); err != nil {
			return nil, err
		}
		rule = r
	case RuleKindClone:
		var r CloneRule
		if err := json.Unmarshal(data, &r); err != nil {
			return nil, err
		}
		rule = r
	case RuleKindUseSingle:
		var r UseSingleRule
		if err := json.Unmarshal(data, &r); err != nil {
			return nil, err
		}
		rule = r
	case RuleKindReferenceMapping:
		var r ReferenceMappingRule
		if err := json.Unmarshal(data, &r); err != nil {
			return nil, err
		}
		rule = r
	case RuleKindKeepFirst:
		var r KeepFirstRule
		if err := json.Unmarshal(data, &r); err != nil {
			return nil, err
		}
		rule = r
	case RuleKindSetValue:
		var r SetValueRule
		if err := json.Unmarshal(data, &r); err != nil {
			return nil, err
		}
		rule = r
	case RuleKindRemoveField:
		var r RemoveFieldRule
		if err := json.Unmarshal(data, &r); err != nil {
			return nil, err
		}
		rule = r
	default:
		return nil, fmt.Errorf("unknown rule type %q", probe.Type)
	}
	return rule, rule.Validate()
}

// MarshalRule encodes one rule into its JSON envelope, adding the "type"
// discriminator.
func MarshalRule(rule Rule) ([]byte, error) {
	body, err := json.Marshal(rule)
	if err != nil {
		return nil, err
	}
	var envelope map[string]any
	if err := json.Unmarshal(body, &envelope); err != nil {
		return nil, err
	}
	envelope["type"] = string(rule.Kind())
	return json.Marshal(envelope)
}

// RuleList is an ordered list of rules with envelope-aware JSON coding.
type RuleList []Rule

// UnmarshalJSON decodes a JSON array of rule envelopes.
func (l *RuleList) UnmarshalJSON(data []byte) error {
	var raw []json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	rules := make([]Rule, 0, len(raw))
	for i, entry := range raw {
		rule, err := UnmarshalRule(entry)
		if err != nil {
			return fmt.Errorf("rule %d: %w", i, err)
		}
		rules = append(rules, rule)
	}
	*l = rules
	return nil
}

// MarshalJSON encodes the list as a JSON array of rule envelopes.
func (l RuleList) MarshalJSON() ([]byte, error) {
	raw := make([]json.RawMessage, 0, len(l))
	for _, rule := range l {
		entry, err := MarshalRule(rule)
		if err != nil {
			return nil, err
		}
		raw = append(raw, entry)
	}
	return json.Marshal(raw)
}

// RuleSet holds the builtin rules for a document family plus rules the
// caller supplied, applied defaults-first.
type RuleSet struct {
	Defaults RuleList `json:"defaults,omitempty"`
	Custom   RuleList `json:"custom,omitempty"`
}

// Merged returns one ordered list, defaults before custom.
func (s RuleSet) Merged() []Rule {
	merged := make([]Rule, 0, len(s.Defaults)+len(s.Custom))
	merged = append(merged, s.Defaults...)
	merged = append(merged, s.Custom...)
	return merged
}

// Len returns the total number of rules in the set.
func (s RuleSet) Len() int {
	return len(s.Defaults) + len(s.Custom)
}

// Validate validates every rule in the set.
func (s RuleSet) Validate() error {
	for _, rule := range s.Merged() {
		if err := rule.Validate(); err != nil {
			return err
		}
	}
	return nil
}

// SortRulesByPrecedence orders rules by kind precedence, keeping list
// order among rules of the same kind.
func SortRulesByPrecedence(rules []Rule) {
	sort.SliceStable(rules, func(i, j int) bool {
		return rules[i].Kind().Precedence() < rules[j].Kind().Precedence()
	})
}
