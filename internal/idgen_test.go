package internal

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestIsIDField(t *testing.T) {
	for _, name := range []string{"id", "uuid", "UUID", "subnet_uuid", "row_id", "api_key", "Guid"} {
		assert.True(t, IsIDField(name), name)
	}
	for _, name := range []string{"name", "identity", "keyboard", "idempotent", "uuid_count"} {
		assert.False(t, IsIDField(name), name)
	}
}

func TestLooksLikeUUID(t *testing.T) {
	assert.True(t, LooksLikeUUID("f47ac10b-58cc-4372-a567-0e02b2c3d479"))
	assert.False(t, LooksLikeUUID("f47ac10b-58cc-4372-a567"))
	assert.False(t, LooksLikeUUID("not-a-uuid"))
}

func TestRegenerateByShape(t *testing.T) {
	gen := NewIDGenerator()

	fresh := gen.Regenerate("f47ac10b-58cc-4372-a567-0e02b2c3d479", 3).(string)
	assert.True(t, LooksLikeUUID(fresh))
	assert.NotEqual(t, "f47ac10b-58cc-4372-a567-0e02b2c3d479", fresh)

	assert.Equal(t, "45", gen.Regenerate("42", 3))
	assert.Equal(t, float64(10), gen.Regenerate(float64(7), 3))
	assert.Equal(t, "worker_4", gen.Regenerate("worker", 3))
	assert.Equal(t, true, gen.Regenerate(true, 3))
}

func TestNextIsMonotonic(t *testing.T) {
	gen := NewIDGenerator()
	a := gen.Next()
	b := gen.Next()
	assert.Greater(t, b, a)
}
