package services

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/archivus/docflow/internal/infrastructure/database/models"
)

// AttributeType is the value type an attribute schema entry accepts.
type AttributeType string

const (
	AttributeString  AttributeType = "string"
	AttributeNumber  AttributeType = "number"
	AttributeBoolean AttributeType = "boolean"
	AttributeDate    AttributeType = "date"
)

// AttributeSpec describes one attribute of a document type.
type AttributeSpec struct {
	Type     AttributeType `json:"type"`
	Required bool          `json:"required"`
}

// AttributeSchema maps attribute names to their specs.
type AttributeSchema map[string]AttributeSpec

// ParseAttributeSchema reads a stored schema. A malformed schema is a data
// integrity problem with the document type, not with the caller's input.
func ParseAttributeSchema(raw models.JSONB) (AttributeSchema, error) {
	schema := make(AttributeSchema, len(raw))
	for name, entry := range raw {
		if strings.TrimSpace(name) == "" {
			return nil, fmt.Errorf("empty attribute name")
		}
		fields, ok := entry.(map[string]interface{})
		if !ok {
			return nil, fmt.Errorf("attribute %q: expected an object", name)
		}
		typeName, _ := fields["type"].(string)
		spec := AttributeSpec{Type: AttributeType(typeName)}
		switch spec.Type {
		case AttributeString, AttributeNumber, AttributeBoolean, AttributeDate:
		default:
			return nil, fmt.Errorf("attribute %q: unknown type %q", name, typeName)
		}
		if req, present := fields["required"]; present {
			b, ok := req.(bool)
			if !ok {
				return nil, fmt.Errorf("attribute %q: required must be a boolean", name)
			}
			spec.Required = b
		}
		schema[name] = spec
	}
	return schema, nil
}

// JSONB renders the schema in its stored form.
func (s AttributeSchema) JSONB() models.JSONB {
	out := make(models.JSONB, len(s))
	for name, spec := range s {
		out[name] = map[string]interface{}{
			"type":     string(spec.Type),
			"required": spec.Required,
		}
	}
	return out
}

// Validate checks attrs against the schema and returns the first problem found,
// in attribute name order so messages are stable.
func (s AttributeSchema) Validate(attrs map[string]interface{}) error {
	names := make([]string, 0, len(s)+len(attrs))
	for name := range s {
		names = append(names, name)
	}
	for name := range attrs {
		if _, known := s[name]; !known {
			names = append(names, name)
		}
	}
	sort.Strings(names)

	for _, name := range names {
		spec, known := s[name]
		value, present := attrs[name]
		if !known {
			return fmt.Errorf("unknown attribute %q", name)
		}
		if !present || value == nil {
			if spec.Required {
				return fmt.Errorf("attribute %q is required", name)
			}
			continue
		}
		if !spec.Type.accepts(value) {
			return fmt.Errorf("attribute %q must be a %s", name, spec.Type)
		}
	}
	return nil
}

func (t AttributeType) accepts(value interface{}) bool {
	switch t {
	case AttributeString:
		_, ok := value.(string)
		return ok
	case AttributeBoolean:
		_, ok := value.(bool)
		return ok
	case AttributeNumber:
		switch v := value.(type) {
		case float64, float32, int, int32, int64:
			return true
		case json.Number:
			_, err := v.Float64()
			return err == nil
		}
		return false
	case AttributeDate:
		str, ok := value.(string)
		if !ok {
			return false
		}
		if _, err := time.Parse(time.RFC3339, str); err == nil {
			return true
		}
		_, err := time.Parse(time.DateOnly, str)
		return err == nil
	}
	return false
}
