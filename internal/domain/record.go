package domain

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// Record is an extensible domain entity instance: a handful of declared
// fields plus an open-ended attribute bag governed by the tenant's
// extension schema for the record's entity kind.
type Record struct {
	ID         uuid.UUID      `json:"id"`
	TenantID   uuid.UUID      `json:"tenant_id"`
	EntityKind string         `json:"entity_kind"`
	Name       string         `json:"name"`
	Attributes map[string]any `json:"attributes"`
	// SchemaVersion records which schema version validated the bag at last
	// save. Unset while no schema exists for the tenant/kind.
	SchemaVersion *int      `json:"schema_version,omitempty"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
}

// NewRecord creates a new record with immutable pattern. The zero ID marks
// it as not yet persisted; the store assigns identity on first save.
func NewRecord(tenantID uuid.UUID, entityKind, name string, attributes map[string]any) Record {
	now := time.Now()
	return Record{
		TenantID:   tenantID,
		EntityKind: entityKind,
		Name:       name,
		Attributes: copyAttributes(attributes),
		CreatedAt:  now,
		UpdatedAt:  now,
	}
}

// IsPersisted reports whether the record already has a stored identity.
func (r Record) IsPersisted() bool {
	return r.ID != uuid.Nil
}

// Tenant reports which tenant the record belongs to. Entity types declare
// their tenant relation explicitly through this capability rather than
// having it discovered by field scanning.
func (r Record) Tenant() uuid.UUID {
	return r.TenantID
}

// Kind reports the record's stable entity kind tag.
func (r Record) Kind() string {
	return r.EntityKind
}

// WithAttribute returns a new record with an added/updated bag entry
func (r Record) WithAttribute(key string, value any) Record {
	next := r
	next.Attributes = copyAttributes(r.Attributes)
	next.Attributes[key] = value
	next.UpdatedAt = time.Now()
	return next
}

// WithoutAttribute returns a new record without the named bag entry
func (r Record) WithoutAttribute(key string) Record {
	next := r
	next.Attributes = copyAttributes(r.Attributes)
	delete(next.Attributes, key)
	next.UpdatedAt = time.Now()
	return next
}

// WithAttributes returns a new record with the bag replaced
func (r Record) WithAttributes(attributes map[string]any) Record {
	next := r
	next.Attributes = copyAttributes(attributes)
	next.UpdatedAt = time.Now()
	return next
}

// WithName returns a new record with an updated declared name
func (r Record) WithName(name string) Record {
	next := r
	next.Name = name
	next.UpdatedAt = time.Now()
	return next
}

// WithSchemaVersion returns a new record pinned to a schema version
func (r Record) WithSchemaVersion(version int) Record {
	next := r
	v := version
	next.SchemaVersion = &v
	return next
}

// GetAttributesAsJSONB returns the bag as JSONB for database storage
func (r *Record) GetAttributesAsJSONB() (json.RawMessage, error) {
	if r.Attributes == nil {
		r.Attributes = make(map[string]any)
	}
	return json.Marshal(r.Attributes)
}

// FromJSONBAttributes creates an attribute bag from JSONB data
func FromJSONBAttributes(attributesJSON json.RawMessage) (map[string]any, error) {
	var attributes map[string]any
	err := json.Unmarshal(attributesJSON, &attributes)
	return attributes, err
}

// copyAttributes shallow-copies the bag so With* helpers never alias
func copyAttributes(attributes map[string]any) map[string]any {
	next := make(map[string]any, len(attributes))
	for k, v := range attributes {
		next[k] = v
	}
	return next
}
