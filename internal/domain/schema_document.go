package domain

import (
	"bytes"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// SchemaDocument is one immutable version of a tenant's extension schema for
// an entity kind. Rows are append-only: a content change publishes a new
// version, nothing is mutated or deleted in place.
type SchemaDocument struct {
	ID         uuid.UUID       `json:"id"`
	TenantID   uuid.UUID       `json:"tenant_id"`
	EntityKind string          `json:"entity_kind"`
	Version    int             `json:"version"`
	Body       json.RawMessage `json:"body"`
	IsActive   bool            `json:"is_active"`
	CreatedAt  time.Time       `json:"created_at"`
}

// NewSchemaDocument creates a schema document pending version assignment.
// The registry assigns Version on publish; it is never client-supplied.
func NewSchemaDocument(tenantID uuid.UUID, entityKind string, body json.RawMessage) SchemaDocument {
	return SchemaDocument{
		ID:         uuid.New(),
		TenantID:   tenantID,
		EntityKind: entityKind,
		Body:       append(json.RawMessage(nil), body...),
		IsActive:   true,
		CreatedAt:  time.Now(),
	}
}

// Definition unmarshals the schema body into a generic document.
func (s SchemaDocument) Definition() (map[string]any, error) {
	var def map[string]any
	if err := json.Unmarshal(s.Body, &def); err != nil {
		return nil, fmt.Errorf("failed to unmarshal schema body: %w", err)
	}
	return def, nil
}

// Properties returns the per-property sub-schemas of the body.
func (s SchemaDocument) Properties() (map[string]map[string]any, error) {
	var parsed struct {
		Properties map[string]map[string]any `json:"properties"`
	}
	if err := json.Unmarshal(s.Body, &parsed); err != nil {
		return nil, fmt.Errorf("failed to unmarshal schema properties: %w", err)
	}
	return parsed.Properties, nil
}

// RequiredFields returns the body's top-level required list.
func (s SchemaDocument) RequiredFields() ([]string, error) {
	var parsed struct {
		Required []string `json:"required"`
	}
	if err := json.Unmarshal(s.Body, &parsed); err != nil {
		return nil, fmt.Errorf("failed to unmarshal schema required list: %w", err)
	}
	return parsed.Required, nil
}

// PropertyNames returns the property names in declared order. A plain map
// unmarshal loses ordering, so the body is token-walked instead.
func (s SchemaDocument) PropertyNames() ([]string, error) {
	dec := json.NewDecoder(bytes.NewReader(s.Body))

	tok, err := dec.Token()
	if err != nil {
		return nil, fmt.Errorf("failed to read schema body: %w", err)
	}
	if d, ok := tok.(json.Delim); !ok || d != '{' {
		return nil, fmt.Errorf("schema body is not a JSON object")
	}

	for dec.More() {
		keyTok, err := dec.Token()
		if err != nil {
			return nil, fmt.Errorf("failed to read schema body: %w", err)
		}
		key, ok := keyTok.(string)
		if !ok {
			return nil, fmt.Errorf("unexpected token in schema body: %v", keyTok)
		}
		if key == "properties" {
			return readObjectKeys(dec)
		}
		if err := skipJSONValue(dec); err != nil {
			return nil, fmt.Errorf("failed to read schema body: %w", err)
		}
	}

	return nil, nil
}

// readObjectKeys consumes one JSON object from the decoder and returns its
// keys in stream order.
func readObjectKeys(dec *json.Decoder) ([]string, error) {
	tok, err := dec.Token()
	if err != nil {
		return nil, err
	}
	if d, ok := tok.(json.Delim); !ok || d != '{' {
		return nil, fmt.Errorf("schema properties is not a JSON object")
	}

	var names []string
	for dec.More() {
		keyTok, err := dec.Token()
		if err != nil {
			return nil, err
		}
		key, ok := keyTok.(string)
		if !ok {
			return nil, fmt.Errorf("unexpected token in schema properties: %v", keyTok)
		}
		names = append(names, key)
		if err := skipJSONValue(dec); err != nil {
			return nil, err
		}
	}

	// Consume the closing brace.
	if _, err := dec.Token(); err != nil {
		return nil, err
	}
	return names, nil
}

// skipJSONValue consumes one complete JSON value, nested or scalar.
func skipJSONValue(dec *json.Decoder) error {
	tok, err := dec.Token()
	if err != nil {
		return err
	}
	if d, ok := tok.(json.Delim); ok && (d == '{' || d == '[') {
		for dec.More() {
			if err := skipJSONValue(dec); err != nil {
				return err
			}
		}
		_, err := dec.Token()
		return err
	}
	return nil
}
