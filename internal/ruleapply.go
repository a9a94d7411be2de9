package internal

import (
	"fmt"

	"go.uber.org/zap"

	"github.com/mahino/scalar"
)

// RuleApplier applies an ordered rule list to a document. Kinds run in
// precedence order (membership-changing rules first, UseSingle last);
// rules of the same kind keep their list order. A rule whose target
// cannot be traversed is skipped with a warning; one bad rule never
// aborts the run.
type RuleApplier struct {
	logger *zap.SugaredLogger
}

// NewRuleApplier creates a rule applier.
func NewRuleApplier(logger *zap.SugaredLogger) *RuleApplier {
	if logger == nil {
		logger = zap.S()
	}
	return &RuleApplier{logger: logger}
}

// Apply runs every rule against a copy of doc and returns the new
// document plus warnings for skipped or degenerate rules.
func (a *RuleApplier) Apply(doc scalar.Document, rules []scalar.Rule) (scalar.Document, []scalar.Warning) {
	working := scalar.CopyDocument(doc)
	var warnings []scalar.Warning

	ordered := make([]scalar.Rule, len(rules))
	copy(ordered, rules)
	scalar.SortRulesByPrecedence(ordered)

	for _, rule := range ordered {
		warnings = append(warnings, a.applyOne(working, rule)...)
	}
	return working, warnings
}

func (a *RuleApplier) applyOne(doc scalar.Document, rule scalar.Rule) []scalar.Warning {
	if err := rule.Validate(); err != nil {
		return []scalar.Warning{{
			Type:    scalar.WarningRuleSkipped,
			Message: fmt.Sprintf("skipping invalid %s rule: %v", rule.Kind(), err),
		}}
	}

	switch r := rule.(type) {
	case scalar.FilterRule:
		return a.applyFilter(doc, r)
	case scalar.CloneRule:
		return a.applyClone(doc, r)
	case scalar.SetValueRule:
		return a.applySetValue(doc, r)
	case scalar.RemoveFieldRule:
		return a.applyRemoveField(doc, r)
	case scalar.KeepFirstRule:
		return a.applyKeepFirst(doc, r)
	case scalar.ReferenceMappingRule:
		return ResolveReferenceMapping(doc, r)
	case scalar.UseSingleRule:
		return a.applyUseSingle(doc, r)
	default:
		return []scalar.Warning{{
			Type:    scalar.WarningRuleSkipped,
			Message: fmt.Sprintf("skipping rule of unknown kind %q", rule.Kind()),
		}}
	}
}

func (a *RuleApplier) checkTarget(doc scalar.Document, kind scalar.RuleKind, path scalar.EntityPath) []scalar.Warning {
	if PathBlocked(doc, path) {
		return []scalar.Warning{{
			Type:    scalar.WarningRuleSkipped,
			Path:    path.String(),
			Message: fmt.Sprintf("skipping %s rule: path traverses a scalar", kind),
		}}
	}
	return nil
}

func (a *RuleApplier) applyFilter(doc scalar.Document, r scalar.FilterRule) []scalar.Warning {
	if w := a.checkTarget(doc, r.Kind(), r.TargetPath); w != nil {
		return w
	}
	allowed := NewSet(r.AllowedValues...)
	TransformArraysAtPath(doc, r.TargetPath, func(arr []any) []any {
		kept := make([]any, 0, len(arr))
		for _, elem := range arr {
			obj, ok := elem.(map[string]any)
			if !ok {
				continue
			}
			value, exists := obj[r.FilterField]
			if !exists {
				continue
			}
			if allowed.Contains(toString(value)) {
				kept = append(kept, elem)
			}
		}
		return kept
	})
	return nil
}

func (a *RuleApplier) applyClone(doc scalar.Document, r scalar.CloneRule) []scalar.Warning {
	if w := a.checkTarget(doc, r.Kind(), r.TargetPath); w != nil {
		return w
	}
	matched := false
	TransformArraysAtPath(doc, r.TargetPath, func(arr []any) []any {
		var source map[string]any
		for _, elem := range arr {
			if obj, ok := elem.(map[string]any); ok {
				if value, exists := obj[r.SourceField]; exists && toString(value) == r.SourceValue {
					source = obj
					break
				}
			}
		}
		if source == nil {
			return arr
		}
		matched = true
		for _, cloneValue := range r.CloneValues {
			copied := scalar.CopyValue(source).(map[string]any)
			copied[r.SourceField] = cloneValue
			arr = append(arr, copied)
		}
		return arr
	})
	if !matched {
		return []scalar.Warning{{
			Type:    scalar.WarningCloneNoMatch,
			Path:    r.TargetPath.String(),
			Message: fmt.Sprintf("clone rule matched no element with %s=%q", r.SourceField, r.SourceValue),
		}}
	}
	return nil
}

func (a *RuleApplier) applySetValue(doc scalar.Document, r scalar.SetValueRule) []scalar.Warning {
	if w := a.checkTarget(doc, r.Kind(), r.TargetPath); w != nil {
		return w
	}
	// Absent targets are a silent no-op.
	SetAtPath(doc, r.TargetPath, r.NewValue)
	return nil
}

func (a *RuleApplier) applyRemoveField(doc scalar.Document, r scalar.RemoveFieldRule) []scalar.Warning {
	if w := a.checkTarget(doc, r.Kind(), r.TargetPath); w != nil {
		return w
	}
	RemoveFieldAtPath(doc, r.TargetPath, r.FieldToRemove)
	return nil
}

func (a *RuleApplier) applyKeepFirst(doc scalar.Document, r scalar.KeepFirstRule) []scalar.Warning {
	if w := a.checkTarget(doc, r.Kind(), r.TargetPath); w != nil {
		return w
	}
	TransformArraysAtPath(doc, r.TargetPath, func(arr []any) []any {
		if len(arr) <= r.KeepCount {
			return arr
		}
		return arr[:r.KeepCount]
	})
	return nil
}

func (a *RuleApplier) applyUseSingle(doc scalar.Document, r scalar.UseSingleRule) []scalar.Warning {
	if w := a.checkTarget(doc, r.Kind(), r.SourceEntity); w != nil {
		return w
	}
	a.logger.Debugw("capping entity to a single element", "path", r.SourceEntity.String())
	TransformArraysAtPath(doc, r.SourceEntity, func(arr []any) []any {
		if len(arr) <= 1 {
			return arr
		}
		return arr[:1]
	})
	return nil
}
