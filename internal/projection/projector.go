package projection

import (
	"fmt"

	"github.com/rpattn/extmodels/internal/domain"
)

// Kind is the type tag of a projected field.
type Kind string

const (
	KindString  Kind = "string"
	KindNumber  Kind = "number"
	KindInteger Kind = "integer"
	KindBoolean Kind = "boolean"
	KindArray   Kind = "array"
	KindObject  Kind = "object"
)

// FieldDescriptor describes one schema property in a shape any form or
// serializer collaborator can turn into a concrete field. The projector has
// no rendering knowledge; it only reports shape and constraints.
type FieldDescriptor struct {
	Name     string `json:"name"`
	Kind     Kind   `json:"kind"`
	Required bool   `json:"required"`
	Label    string `json:"label"`
	HelpText string `json:"help_text,omitempty"`
	Format   string `json:"format,omitempty"`

	Enum      []any    `json:"enum,omitempty"`
	Pattern   string   `json:"pattern,omitempty"`
	MinLength *int     `json:"min_length,omitempty"`
	MaxLength *int     `json:"max_length,omitempty"`
	Minimum   *float64 `json:"minimum,omitempty"`
	Maximum   *float64 `json:"maximum,omitempty"`

	MinItems *int  `json:"min_items,omitempty"`
	ItemKind Kind  `json:"item_kind,omitempty"`
	ItemEnum []any `json:"item_enum,omitempty"`
}

// Project derives the ordered field descriptor set for a schema document.
// Order follows the schema body's declared property order, so two calls on
// the same document always yield the same sequence.
func Project(schema domain.SchemaDocument) ([]FieldDescriptor, error) {
	names, err := schema.PropertyNames()
	if err != nil {
		return nil, fmt.Errorf("failed to read property order: %w", err)
	}
	properties, err := schema.Properties()
	if err != nil {
		return nil, err
	}
	required, err := schema.RequiredFields()
	if err != nil {
		return nil, err
	}

	requiredSet := make(map[string]struct{}, len(required))
	for _, name := range required {
		requiredSet[name] = struct{}{}
	}

	descriptors := make([]FieldDescriptor, 0, len(names))
	for _, name := range names {
		prop := properties[name]
		if prop == nil {
			continue
		}
		_, isRequired := requiredSet[name]
		descriptors = append(descriptors, describe(name, prop, isRequired))
	}
	return descriptors, nil
}

func describe(name string, prop map[string]any, required bool) FieldDescriptor {
	desc := FieldDescriptor{
		Name:     name,
		Kind:     kindOf(prop),
		Required: required,
		Label:    name,
	}
	if title, ok := prop["title"].(string); ok && title != "" {
		desc.Label = title
	}
	if help, ok := prop["description"].(string); ok {
		desc.HelpText = help
	}
	if format, ok := prop["format"].(string); ok {
		desc.Format = format
	}
	if enum, ok := prop["enum"].([]any); ok {
		desc.Enum = enum
	}
	if pattern, ok := prop["pattern"].(string); ok {
		desc.Pattern = pattern
	}
	desc.MinLength = intConstraint(prop, "minLength")
	desc.MaxLength = intConstraint(prop, "maxLength")
	desc.Minimum = floatConstraint(prop, "minimum")
	desc.Maximum = floatConstraint(prop, "maximum")
	desc.MinItems = intConstraint(prop, "minItems")

	if items, ok := prop["items"].(map[string]any); ok {
		desc.ItemKind = kindOf(items)
		if itemEnum, ok := items["enum"].([]any); ok {
			desc.ItemEnum = itemEnum
		}
	}
	return desc
}

func kindOf(prop map[string]any) Kind {
	typ, _ := prop["type"].(string)
	switch typ {
	case "number":
		return KindNumber
	case "integer":
		return KindInteger
	case "boolean":
		return KindBoolean
	case "array":
		return KindArray
	case "object":
		return KindObject
	default:
		return KindString
	}
}

func intConstraint(prop map[string]any, key string) *int {
	// JSON numbers decode as float64.
	raw, ok := prop[key].(float64)
	if !ok {
		return nil
	}
	value := int(raw)
	return &value
}

func floatConstraint(prop map[string]any, key string) *float64 {
	raw, ok := prop[key].(float64)
	if !ok {
		return nil
	}
	value := raw
	return &value
}
