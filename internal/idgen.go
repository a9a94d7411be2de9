package internal

import (
	"fmt"
	"regexp"
	"strconv"
	"sync/atomic"

	"github.com/google/uuid"
)

var (
	idFieldPattern   = regexp.MustCompile(`(?i)^(.*_)?(id|uuid|guid|key)$`)
	uuidShapePattern = regexp.MustCompile(`^[0-9a-fA-F]{8}-[0-9a-fA-F]{4}-[0-9a-fA-F]{4}-[0-9a-fA-F]{4}-[0-9a-fA-F]{12}$`)
)

// IsIDField reports whether a field name looks like an identifier field:
// a trailing id/uuid/guid/key component, case-insensitive.
func IsIDField(name string) bool {
	return idFieldPattern.MatchString(name)
}

// LooksLikeUUID reports whether a string has canonical UUID shape.
func LooksLikeUUID(s string) bool {
	return uuidShapePattern.MatchString(s)
}

// IDGenerator produces per-element replacement identifiers during
// scaling. Each pipeline run owns its own generator; the counter is
// atomic so concurrent runs sharing one (they should not) still never
// collide.
type IDGenerator struct {
	counter atomic.Int64
}

// NewIDGenerator creates a fresh generator.
func NewIDGenerator() *IDGenerator {
	return &IDGenerator{}
}

// Next returns a process-locally unique sequence number.
func (g *IDGenerator) Next() int64 {
	return g.counter.Add(1)
}

// NewUUID returns a new random UUID string.
func (g *IDGenerator) NewUUID() string {
	return uuid.New().String()
}

// Regenerate derives a replacement identifier from an existing value and
// the element's duplication index. The shape of the original value is
// preserved:
//   - UUID-shaped strings become fresh UUIDs
//   - numbers are offset by the index
//   - digit strings are incremented by the index
//   - other strings get an index suffix
//
// Values of any other type are returned unchanged.
func (g *IDGenerator) Regenerate(value any, index int) any {
	switch v := value.(type) {
	case string:
		if LooksLikeUUID(v) {
			return g.NewUUID()
		}
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			return strconv.FormatInt(n+int64(index), 10)
		}
		return fmt.Sprintf("%s_%d", v, index+1)
	case float64:
		return v + float64(index)
	case int:
		return v + index
	case int64:
		return v + int64(index)
	default:
		return v
	}
}
