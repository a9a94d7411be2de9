package scalar

import (
	"encoding/json"
	"sync"

	"github.com/google/jsonschema-go/jsonschema"
)

// ruleSetDocumentSchema constrains persisted rule-set documents at the
// storage boundary. Rule bodies are validated separately by
// UnmarshalRule; the schema guards the envelope shape.
const ruleSetDocumentSchema = `{
	"type": "object",
	"required": ["id", "rules"],
	"properties": {
		"id": {"type": "string", "minLength": 1},
		"api_type": {"type": "string"},
		"rules": {
			"type": "object",
			"properties": {
				"defaults": {"type": "array", "items": {"type": "object", "required": ["type"]}},
				"custom": {"type": "array", "items": {"type": "object", "required": ["type"]}}
			}
		},
		"scalable_entities": {
			"type": "array",
			"items": {
				"type": "object",
				"required": ["path", "current_count"],
				"properties": {
					"path": {"type": "string", "minLength": 1},
					"current_count": {"type": "integer", "minimum": 0}
				}
			}
		},
		"payload_template": {"type": "object"},
		"task_execution": {"type": "boolean"},
		"created_at": {"type": "integer"},
		"updated_at": {"type": "integer"}
	}
}`

// scaleRequestSchema constrains incoming preview/generate requests.
const scaleRequestSchema = `{
	"type": "object",
	"required": ["payload"],
	"properties": {
		"payload": {"type": "object"},
		"counts": {
			"type": "object",
			"additionalProperties": {"type": "integer", "minimum": 0}
		},
		"rules": {"type": "object"}
	}
}`

var (
	schemaOnce    sync.Once
	ruleSetSchema *jsonschema.Resolved
	requestSchema *jsonschema.Resolved
	schemaInitErr error
)

func resolveSchemas() {
	schemaOnce.Do(func() {
		ruleSetSchema, schemaInitErr = resolveSchema(ruleSetDocumentSchema)
		if schemaInitErr != nil {
			return
		}
		requestSchema, schemaInitErr = resolveSchema(scaleRequestSchema)
	})
}

func resolveSchema(text string) (*jsonschema.Resolved, error) {
	var schema jsonschema.Schema
	if err := json.Unmarshal([]byte(text), &schema); err != nil {
		return nil, err
	}
	return schema.Resolve(&jsonschema.ResolveOptions{})
}

// ValidateRuleSetDocument checks a raw stored document against the
// rule-set envelope schema before it is decoded.
func ValidateRuleSetDocument(data []byte) error {
	resolveSchemas()
	if schemaInitErr != nil {
		return NewInternalError("failed to resolve rule set schema", schemaInitErr)
	}
	var value any
	if err := json.Unmarshal(data, &value); err != nil {
		return NewMalformedDocumentError("rule set document is not valid JSON", err)
	}
	if err := ruleSetSchema.Validate(value); err != nil {
		return NewScalarError(ErrorTypeValidation, ErrCodeSchemaInvalid, "rule set document failed schema validation").WithCause(err)
	}
	return nil
}

// ValidateScaleRequest checks a raw preview/generate request body
// against the request schema.
func ValidateScaleRequest(data []byte) error {
	resolveSchemas()
	if schemaInitErr != nil {
		return NewInternalError("failed to resolve request schema", schemaInitErr)
	}
	var value any
	if err := json.Unmarshal(data, &value); err != nil {
		return NewMalformedDocumentError("request body is not valid JSON", err)
	}
	if err := requestSchema.Validate(value); err != nil {
		return NewScalarError(ErrorTypeValidation, ErrCodeSchemaInvalid, "request failed schema validation").WithCause(err)
	}
	return nil
}
