package validation

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/xeipuuv/gojsonschema"

	"github.com/rpattn/extmodels/internal/domain"
)

// Mode selects how strictly a bag is validated.
type Mode int

const (
	// Creation relaxes required and minItems so partially-specified bags
	// are accepted while the record is still being assembled.
	Creation Mode = iota
	// Update enforces the full schema.
	Update
)

func (m Mode) String() string {
	if m == Creation {
		return "creation"
	}
	return "update"
}

var (
	dateLayouts = []string{"2006-01-02"}
	timeLayouts = []string{"15:04:05", "15:04"}
	dateTimeLayouts = []string{
		time.RFC3339,
		time.RFC3339Nano,
		"2006-01-02T15:04:05",
		"2006-01-02 15:04:05",
	}

	truthyTokens = map[string]struct{}{
		"true": {},
		"1":    {},
		"yes":  {},
		"on":   {},
	}
)

// Engine validates and coerces attribute bags against extension schemas.
type Engine struct{}

// NewEngine creates a new validation engine.
func NewEngine() *Engine {
	return &Engine{}
}

// Validate coerces raw bag values toward the schema's declared types, then
// validates the coerced bag against the schema (relaxed in Creation mode).
// On success it returns the normalized bag, serialized with JSON-primitive
// values only; on failure it returns *domain.ExtendedDataValidationError.
// The input bag is never mutated.
func (e *Engine) Validate(raw map[string]any, schema domain.SchemaDocument, mode Mode) (map[string]any, error) {
	def, err := schema.Definition()
	if err != nil {
		return nil, err
	}
	if mode == Creation {
		def = relaxed(def)
	}

	properties, _ := def["properties"].(map[string]any)

	coerced := make(map[string]any, len(raw))
	var violations []domain.FieldViolation
	for key, value := range raw {
		prop, ok := properties[key].(map[string]any)
		if !ok {
			// Not governed by the schema; validated as-is below.
			coerced[key] = value
			continue
		}
		out, violation := coerceValue(key, value, prop)
		if violation != nil {
			violations = append(violations, *violation)
			continue
		}
		coerced[key] = out
	}
	if len(violations) > 0 {
		return nil, &domain.ExtendedDataValidationError{Violations: violations}
	}

	result, err := gojsonschema.Validate(
		gojsonschema.NewGoLoader(def),
		gojsonschema.NewGoLoader(coerced),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to validate attribute bag: %w", err)
	}
	if !result.Valid() {
		for _, re := range result.Errors() {
			violations = append(violations, domain.FieldViolation{
				Field:   violationField(re),
				Message: re.Description(),
			})
		}
		return nil, &domain.ExtendedDataValidationError{Violations: violations}
	}

	return coerced, nil
}

// relaxed returns a working copy of the schema definition with required and
// per-property minItems stripped.
func relaxed(def map[string]any) map[string]any {
	working := make(map[string]any, len(def))
	for k, v := range def {
		if k == "required" {
			continue
		}
		working[k] = v
	}

	properties, ok := def["properties"].(map[string]any)
	if !ok {
		return working
	}
	relaxedProps := make(map[string]any, len(properties))
	for name, raw := range properties {
		prop, ok := raw.(map[string]any)
		if !ok {
			relaxedProps[name] = raw
			continue
		}
		next := make(map[string]any, len(prop))
		for k, v := range prop {
			if k == "minItems" {
				continue
			}
			next[k] = v
		}
		relaxedProps[name] = next
	}
	working["properties"] = relaxedProps
	return working
}

// coerceValue coerces one bag value toward its property's declared type.
func coerceValue(field string, value any, prop map[string]any) (any, *domain.FieldViolation) {
	propType, _ := prop["type"].(string)

	switch propType {
	case "string":
		format, _ := prop["format"].(string)
		switch format {
		case "date", "time", "date-time":
			return coerceTemporal(field, value, format)
		}
		return value, nil
	case "number":
		return coerceNumber(field, value)
	case "integer":
		return coerceInteger(field, value)
	case "boolean":
		return coerceBoolean(value), nil
	case "array":
		return coerceArray(value), nil
	default:
		return value, nil
	}
}

// coerceTemporal parses a temporal value and re-serializes it to the
// canonical ISO-8601 form so stored bags stay JSON-primitive safe.
func coerceTemporal(field string, value any, format string) (any, *domain.FieldViolation) {
	var layouts []string
	var canonical string
	switch format {
	case "date":
		layouts, canonical = dateLayouts, "2006-01-02"
	case "time":
		layouts, canonical = timeLayouts, "15:04:05"
	default:
		layouts, canonical = dateTimeLayouts, time.RFC3339
	}

	switch v := value.(type) {
	case time.Time:
		return v.Format(canonical), nil
	case string:
		trimmed := strings.TrimSpace(v)
		for _, layout := range layouts {
			if parsed, err := time.Parse(layout, trimmed); err == nil {
				return parsed.Format(canonical), nil
			}
		}
		return nil, &domain.FieldViolation{
			Field:   field,
			Message: fmt.Sprintf("invalid %s value %q", format, v),
		}
	default:
		return nil, &domain.FieldViolation{
			Field:   field,
			Message: fmt.Sprintf("expected a %s string, got %T", format, value),
		}
	}
}

func coerceNumber(field string, value any) (any, *domain.FieldViolation) {
	switch v := value.(type) {
	case float64:
		return v, nil
	case float32:
		return float64(v), nil
	case int:
		return float64(v), nil
	case int32:
		return float64(v), nil
	case int64:
		return float64(v), nil
	case json.Number:
		parsed, err := v.Float64()
		if err != nil {
			return nil, &domain.FieldViolation{Field: field, Message: fmt.Sprintf("invalid number literal %q", v.String())}
		}
		return parsed, nil
	case string:
		parsed, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
		if err != nil {
			return nil, &domain.FieldViolation{Field: field, Message: fmt.Sprintf("invalid number literal %q", v)}
		}
		return parsed, nil
	default:
		return nil, &domain.FieldViolation{Field: field, Message: fmt.Sprintf("expected a number, got %T", value)}
	}
}

func coerceInteger(field string, value any) (any, *domain.FieldViolation) {
	switch v := value.(type) {
	case int:
		return int64(v), nil
	case int32:
		return int64(v), nil
	case int64:
		return v, nil
	case float64:
		if v != math.Trunc(v) {
			return nil, &domain.FieldViolation{Field: field, Message: fmt.Sprintf("value %v is not an integer", v)}
		}
		return int64(v), nil
	case json.Number:
		parsed, err := v.Int64()
		if err != nil {
			return nil, &domain.FieldViolation{Field: field, Message: fmt.Sprintf("invalid integer literal %q", v.String())}
		}
		return parsed, nil
	case string:
		parsed, err := strconv.ParseInt(strings.TrimSpace(v), 10, 64)
		if err != nil {
			return nil, &domain.FieldViolation{Field: field, Message: fmt.Sprintf("invalid integer literal %q", v)}
		}
		return parsed, nil
	default:
		return nil, &domain.FieldViolation{Field: field, Message: fmt.Sprintf("expected an integer, got %T", value)}
	}
}

// coerceBoolean maps textual truthy tokens to true and everything else
// textual to false; non-textual input follows standard truthiness.
func coerceBoolean(value any) bool {
	switch v := value.(type) {
	case bool:
		return v
	case string:
		_, ok := truthyTokens[strings.ToLower(strings.TrimSpace(v))]
		return ok
	case nil:
		return false
	case float64:
		return v != 0
	case float32:
		return v != 0
	case int:
		return v != 0
	case int64:
		return v != 0
	case json.Number:
		parsed, err := v.Float64()
		return err == nil && parsed != 0
	case []any:
		return len(v) > 0
	case map[string]any:
		return len(v) > 0
	default:
		return true
	}
}

// coerceArray normalizes multi-select input: JSON arrays pass through, a
// JSON-encoded array string is parsed, a delimited string is split on
// commas and trimmed, any other scalar is wrapped into a single element.
func coerceArray(value any) []any {
	switch v := value.(type) {
	case []any:
		return v
	case []string:
		items := make([]any, len(v))
		for i, item := range v {
			items[i] = item
		}
		return items
	case string:
		trimmed := strings.TrimSpace(v)
		if trimmed == "" {
			return []any{}
		}
		if strings.HasPrefix(trimmed, "[") {
			var parsed []any
			if err := json.Unmarshal([]byte(trimmed), &parsed); err == nil {
				return parsed
			}
		}
		parts := strings.Split(trimmed, ",")
		items := make([]any, 0, len(parts))
		for _, part := range parts {
			if part = strings.TrimSpace(part); part != "" {
				items = append(items, part)
			}
		}
		return items
	default:
		return []any{value}
	}
}

// violationField extracts the offending field name from a schema violation.
func violationField(re gojsonschema.ResultError) string {
	field := re.Field()
	if field != "(root)" {
		return field
	}
	if prop, ok := re.Details()["property"].(string); ok {
		return prop
	}
	return ""
}
