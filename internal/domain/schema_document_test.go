package domain

import (
	"encoding/json"
	"reflect"
	"testing"

	"github.com/google/uuid"
)

func TestPropertyNames_DeclaredOrder(t *testing.T) {
	schema := SchemaDocument{Body: json.RawMessage(`{
		"title": "Contact extensions",
		"type": "object",
		"properties": {
			"zeta": {"type": "string"},
			"alpha": {"type": "number"},
			"mid": {"type": "object", "properties": {"nested": {"type": "string"}}}
		},
		"required": ["zeta"]
	}`)}

	names, err := schema.PropertyNames()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !reflect.DeepEqual(names, []string{"zeta", "alpha", "mid"}) {
		t.Fatalf("expected declared order, got %v", names)
	}
}

func TestPropertyNames_NoProperties(t *testing.T) {
	schema := SchemaDocument{Body: json.RawMessage(`{"type":"object"}`)}

	names, err := schema.PropertyNames()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(names) != 0 {
		t.Fatalf("expected no names, got %v", names)
	}
}

func TestPropertyNames_NonObjectBody(t *testing.T) {
	schema := SchemaDocument{Body: json.RawMessage(`[1,2,3]`)}

	if _, err := schema.PropertyNames(); err == nil {
		t.Fatalf("expected error for non-object schema body")
	}
}

func TestRequiredFields(t *testing.T) {
	schema := SchemaDocument{Body: json.RawMessage(`{
		"type": "object",
		"properties": {"a": {"type": "string"}, "b": {"type": "string"}},
		"required": ["a", "b"]
	}`)}

	required, err := schema.RequiredFields()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !reflect.DeepEqual(required, []string{"a", "b"}) {
		t.Fatalf("expected required list, got %v", required)
	}
}

func TestNewSchemaDocument_CopiesBody(t *testing.T) {
	body := json.RawMessage(`{"type":"object"}`)
	doc := NewSchemaDocument(uuid.New(), "contact", body)

	body[1] = 'x'
	if string(doc.Body) != `{"type":"object"}` {
		t.Fatalf("schema body aliases the caller's buffer: %s", doc.Body)
	}
}

func TestRecordCapability(t *testing.T) {
	tenantID := uuid.New()
	record := NewRecord(tenantID, "contact", "Ada", map[string]any{"x": 1})

	if record.Tenant() != tenantID {
		t.Fatalf("expected tenant capability to report the tenant id")
	}
	if record.Kind() != "contact" {
		t.Fatalf("expected kind capability to report the entity kind")
	}
	if record.IsPersisted() {
		t.Fatalf("new records must not report a stored identity")
	}
}

func TestRecordWithHelpersDoNotAlias(t *testing.T) {
	record := NewRecord(uuid.New(), "contact", "Ada", map[string]any{"a": 1})

	updated := record.WithAttribute("b", 2)
	if _, ok := record.Attributes["b"]; ok {
		t.Fatalf("WithAttribute mutated the receiver")
	}
	if updated.Attributes["a"] != 1 || updated.Attributes["b"] != 2 {
		t.Fatalf("unexpected updated bag: %v", updated.Attributes)
	}

	cleared := updated.WithoutAttribute("a")
	if _, ok := updated.Attributes["a"]; !ok {
		t.Fatalf("WithoutAttribute mutated the receiver")
	}
	if _, ok := cleared.Attributes["a"]; ok {
		t.Fatalf("WithoutAttribute kept the removed key")
	}
}
