package internal

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mahino/scalar"
)

func referenceDoc(targets int) scalar.Document {
	subnets := []any{
		map[string]any{"uuid": "sub-a"},
		map[string]any{"uuid": "sub-b"},
		map[string]any{"uuid": "sub-c"},
	}
	vms := make([]any, targets)
	for i := range vms {
		vms[i] = map[string]any{
			"nic_list": []any{map[string]any{"subnet_uuid": "stale"}},
		}
	}
	return scalar.Document{
		"subnets": subnets,
		"vms":     vms,
	}
}

func subnetAssignments(doc scalar.Document) []any {
	return CollectAtPath(doc, scalar.MustParsePath("vms.nic_list.subnet_uuid"))
}

func TestReferenceMappingFirstOnly(t *testing.T) {
	doc := referenceDoc(4)

	warnings := ResolveReferenceMapping(doc, scalar.ReferenceMappingRule{
		SourcePath:  scalar.MustParsePath("subnets.uuid"),
		TargetPath:  scalar.MustParsePath("vms.nic_list.subnet_uuid"),
		MappingType: scalar.MappingFirstOnly,
	})
	assert.Empty(t, warnings)
	assert.Equal(t, []any{"sub-a", "sub-a", "sub-a", "sub-a"}, subnetAssignments(doc))
}

func TestReferenceMappingOneToOneClamps(t *testing.T) {
	doc := referenceDoc(5)

	warnings := ResolveReferenceMapping(doc, scalar.ReferenceMappingRule{
		SourcePath:  scalar.MustParsePath("subnets.uuid"),
		TargetPath:  scalar.MustParsePath("vms.nic_list.subnet_uuid"),
		MappingType: scalar.MappingOneToOne,
	})
	assert.Empty(t, warnings)
	// Targets beyond the source list reuse the last source value.
	assert.Equal(t, []any{"sub-a", "sub-b", "sub-c", "sub-c", "sub-c"}, subnetAssignments(doc))
}

func TestReferenceMappingRoundRobin(t *testing.T) {
	doc := referenceDoc(7)

	warnings := ResolveReferenceMapping(doc, scalar.ReferenceMappingRule{
		SourcePath:  scalar.MustParsePath("subnets.uuid"),
		TargetPath:  scalar.MustParsePath("vms.nic_list.subnet_uuid"),
		MappingType: scalar.MappingRoundRobin,
	})
	assert.Empty(t, warnings)
	assert.Equal(t, []any{"sub-a", "sub-b", "sub-c", "sub-a", "sub-b", "sub-c", "sub-a"}, subnetAssignments(doc))
}

func TestReferenceMappingNoSourcesWarns(t *testing.T) {
	doc := scalar.Document{"vms": []any{map[string]any{"subnet_uuid": "stale"}}}

	warnings := ResolveReferenceMapping(doc, scalar.ReferenceMappingRule{
		SourcePath:  scalar.MustParsePath("absent.uuid"),
		TargetPath:  scalar.MustParsePath("vms.subnet_uuid"),
		MappingType: scalar.MappingFirstOnly,
	})
	require.Len(t, warnings, 1)
	assert.Equal(t, scalar.WarningRuleSkipped, warnings[0].Type)
	assert.Equal(t, "stale", doc["vms"].([]any)[0].(map[string]any)["subnet_uuid"])
}

func TestReferenceMappingNoTargetsWarns(t *testing.T) {
	doc := scalar.Document{"subnets": []any{map[string]any{"uuid": "sub-a"}}}

	warnings := ResolveReferenceMapping(doc, scalar.ReferenceMappingRule{
		SourcePath:  scalar.MustParsePath("subnets.uuid"),
		TargetPath:  scalar.MustParsePath("vms.subnet_uuid"),
		MappingType: scalar.MappingFirstOnly,
	})
	require.Len(t, warnings, 1)
	assert.Equal(t, scalar.WarningRuleSkipped, warnings[0].Type)
}

func TestRegenerateUUIDsKeepsCrossReferencesConsistent(t *testing.T) {
	const networkUUID = "f47ac10b-58cc-4372-a567-0e02b2c3d479"
	doc := scalar.Document{
		"networks": []any{
			map[string]any{"uuid": networkUUID, "name": "net"},
		},
		"vms": []any{
			map[string]any{"network_uuid": networkUUID},
			map[string]any{"network_uuid": networkUUID},
		},
	}

	replaced := RegenerateUUIDs(doc, NewIDGenerator(), nil)
	require.Len(t, replaced, 1)

	fresh := replaced[networkUUID]
	require.True(t, LooksLikeUUID(fresh))
	assert.NotEqual(t, networkUUID, fresh)

	// Every occurrence of the old value is rewritten to the same new one.
	assert.Equal(t, fresh, doc["networks"].([]any)[0].(map[string]any)["uuid"])
	for _, vm := range doc["vms"].([]any) {
		assert.Equal(t, fresh, vm.(map[string]any)["network_uuid"])
	}
}

func TestRegenerateUUIDsSkipsCoveredPaths(t *testing.T) {
	const subnetUUID = "f47ac10b-58cc-4372-a567-0e02b2c3d479"
	doc := scalar.Document{
		"vms": []any{
			map[string]any{"subnet_uuid": subnetUUID},
		},
	}

	covered := NewSet("vms.subnet_uuid")
	replaced := RegenerateUUIDs(doc, NewIDGenerator(), covered)
	assert.Empty(t, replaced)
	assert.Equal(t, subnetUUID, doc["vms"].([]any)[0].(map[string]any)["subnet_uuid"])
}

func TestRegenerateUUIDsIgnoresNonUUIDValues(t *testing.T) {
	doc := scalar.Document{
		"items": []any{
			map[string]any{"id": "item-1", "name": "a"},
		},
	}

	replaced := RegenerateUUIDs(doc, NewIDGenerator(), nil)
	assert.Empty(t, replaced)
	assert.Equal(t, "item-1", doc["items"].([]any)[0].(map[string]any)["id"])
}

func TestCollectReferenceSummary(t *testing.T) {
	doc := referenceDoc(2)

	summary := CollectReferenceSummary(doc, []scalar.ReferenceMappingRule{{
		SourcePath:  scalar.MustParsePath("subnets.uuid"),
		TargetPath:  scalar.MustParsePath("vms.nic_list.subnet_uuid"),
		MappingType: scalar.MappingRoundRobin,
	}})
	assert.Equal(t, "3 sources, 2 targets, round_robin", summary["vms.nic_list.subnet_uuid"])
}
