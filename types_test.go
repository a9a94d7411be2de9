package scalar

import (
	"encoding/json"
	"reflect"
	"testing"
)

func TestParsePath(t *testing.T) {
	p, err := ParsePath("spec.resources.service_definition_list")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got := p.String(); got != "spec.resources.service_definition_list" {
		t.Errorf("String() = %q", got)
	}
	if got := p.Depth(); got != 3 {
		t.Errorf("Depth() = %d, want 3", got)
	}
	if got := p.Leaf(); got != "service_definition_list" {
		t.Errorf("Leaf() = %q", got)
	}
}

func TestParsePathErrors(t *testing.T) {
	for _, input := range []string{"", "a..b", ".a", "a."} {
		if _, err := ParsePath(input); err == nil {
			t.Errorf("ParsePath(%q) expected error", input)
		}
	}
}

func TestPathChildParent(t *testing.T) {
	p := MustParsePath("spec.resources")
	child := p.Child("service_definition_list")
	if got := child.String(); got != "spec.resources.service_definition_list" {
		t.Errorf("Child() = %q", got)
	}
	// Child must not alias the parent's segments.
	if got := p.String(); got != "spec.resources" {
		t.Errorf("parent mutated by Child(): %q", got)
	}
	if got := child.Parent().String(); got != "spec.resources" {
		t.Errorf("Parent() = %q", got)
	}
	if got := MustParsePath("spec").Parent(); !got.IsZero() {
		t.Errorf("Parent() of single segment = %q, want zero", got.String())
	}
}

func TestPathHasPrefix(t *testing.T) {
	p := MustParsePath("spec.resources.substrate_definition_list")
	if !p.HasPrefix(MustParsePath("spec.resources")) {
		t.Error("expected prefix match")
	}
	if !p.HasPrefix(p) {
		t.Error("path should be its own prefix")
	}
	if p.HasPrefix(MustParsePath("spec.other")) {
		t.Error("unexpected prefix match")
	}
	if p.HasPrefix(MustParsePath("spec.resources.substrate_definition_list.extra")) {
		t.Error("longer path cannot be a prefix")
	}
}

func TestPathJSONRoundTrip(t *testing.T) {
	original := MustParsePath("spec.resources.app_profile_list")
	data, err := json.Marshal(original)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	if string(data) != `"spec.resources.app_profile_list"` {
		t.Errorf("marshaled form = %s", data)
	}
	var decoded EntityPath
	if err := json.Unmarshal(data, &decoded); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if !decoded.Equal(original) {
		t.Errorf("round trip changed path: %q", decoded.String())
	}
}

func TestEntityCountMapCountFor(t *testing.T) {
	counts := EntityCountMap{"spec.users": 5}
	if got := counts.CountFor(MustParsePath("spec.users"), 2); got != 5 {
		t.Errorf("CountFor = %d, want 5", got)
	}
	if got := counts.CountFor(MustParsePath("spec.groups"), 2); got != 2 {
		t.Errorf("CountFor fallback = %d, want 2", got)
	}
}

func TestSortEntitiesByDepth(t *testing.T) {
	entities := []ScalableEntity{
		{Path: MustParsePath("a.b.c")},
		{Path: MustParsePath("a")},
		{Path: MustParsePath("a.b")},
		{Path: MustParsePath("x")},
	}
	SortEntitiesByDepth(entities)

	got := make([]string, len(entities))
	for i, e := range entities {
		got[i] = e.Path.String()
	}
	want := []string{"a", "x", "a.b", "a.b.c"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("sorted order = %v, want %v", got, want)
	}
}

func TestCopyDocumentIndependence(t *testing.T) {
	original := Document{
		"metadata": map[string]any{"name": "bp"},
		"items":    []any{map[string]any{"uuid": "u1"}},
	}
	copied := CopyDocument(original)
	if !reflect.DeepEqual(original, copied) {
		t.Fatal("copy differs from original")
	}

	copied["metadata"].(map[string]any)["name"] = "changed"
	copied["items"].([]any)[0].(map[string]any)["uuid"] = "u2"

	if original["metadata"].(map[string]any)["name"] != "bp" {
		t.Error("mutating copy changed original metadata")
	}
	if original["items"].([]any)[0].(map[string]any)["uuid"] != "u1" {
		t.Error("mutating copy changed original items")
	}
}
