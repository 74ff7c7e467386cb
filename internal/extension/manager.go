package extension

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/rpattn/extmodels/internal/domain"
	"github.com/rpattn/extmodels/internal/registry"
	"github.com/rpattn/extmodels/internal/repository"
	"github.com/rpattn/extmodels/internal/validation"
)

// Extensible is the capability an entity type implements once: it reports
// its tenant and entity kind explicitly. domain.Record satisfies it.
type Extensible interface {
	Tenant() uuid.UUID
	Kind() string
}

// Manager ties the extension pieces together for record persistence:
// resolve the applicable schema, validate and coerce the bag, then persist
// record, bag and version marker as one write.
type Manager struct {
	registry *registry.Registry
	records  repository.RecordRepository
	engine   *validation.Engine
}

// NewManager creates a new extension manager.
func NewManager(reg *registry.Registry, records repository.RecordRepository) *Manager {
	return &Manager{
		registry: reg,
		records:  records,
		engine:   validation.NewEngine(),
	}
}

// ResolveSchema returns the latest schema governing an extensible entity,
// or nil when its tenant/kind pair has no published schema.
func (m *Manager) ResolveSchema(ctx context.Context, entity Extensible) (*domain.SchemaDocument, error) {
	if entity.Tenant() == uuid.Nil {
		return nil, domain.ErrTenantNotFound
	}
	return m.registry.Latest(ctx, entity.Tenant(), entity.Kind())
}

// ResolveTenant follows the stored tenant relation of a persisted record.
func (m *Manager) ResolveTenant(ctx context.Context, recordID uuid.UUID) (uuid.UUID, error) {
	return m.records.ResolveTenant(ctx, recordID)
}

// Save persists a record under the extension contract. When a schema
// resolves, the bag is validated in Creation mode for new records and
// Update mode for existing ones; a validation failure aborts the save with
// nothing written. On success the record's schema version marker is set to
// the version that actually validated the bag. When no schema exists the
// bag is stored as free-form JSON and the marker stays unset.
func (m *Manager) Save(ctx context.Context, record domain.Record) (domain.Record, error) {
	schema, err := m.ResolveSchema(ctx, record)
	if err != nil {
		return domain.Record{}, err
	}

	if schema == nil {
		if _, err := record.GetAttributesAsJSONB(); err != nil {
			return domain.Record{}, fmt.Errorf("attribute bag is not JSON-serializable: %w", err)
		}
		return m.persist(ctx, record)
	}

	mode := validation.Creation
	if record.IsPersisted() {
		mode = validation.Update
	}

	normalized, err := m.engine.Validate(record.Attributes, *schema, mode)
	if err != nil {
		return domain.Record{}, err
	}

	if record.IsPersisted() {
		// Update overlays the normalized bag onto whatever is already
		// stored; unrelated keys survive.
		existing, err := m.records.GetByID(ctx, record.ID)
		if err != nil {
			return domain.Record{}, err
		}
		merged := make(map[string]any, len(existing.Attributes)+len(normalized))
		for k, v := range existing.Attributes {
			merged[k] = v
		}
		for k, v := range normalized {
			merged[k] = v
		}
		normalized = merged
	}

	record = record.WithAttributes(normalized).WithSchemaVersion(schema.Version)
	return m.persist(ctx, record)
}

// UpdateToLatestSchema re-validates a stored record's bag against the
// current latest schema and moves its version marker forward. Records whose
// tenant/kind pair has no schema are returned unchanged.
func (m *Manager) UpdateToLatestSchema(ctx context.Context, recordID uuid.UUID) (domain.Record, error) {
	record, err := m.records.GetByID(ctx, recordID)
	if err != nil {
		return domain.Record{}, err
	}

	tenantID, err := m.records.ResolveTenant(ctx, recordID)
	if err != nil {
		return domain.Record{}, err
	}

	schema, err := m.registry.Latest(ctx, tenantID, record.EntityKind)
	if err != nil {
		return domain.Record{}, err
	}
	if schema == nil {
		return record, nil
	}
	if record.SchemaVersion != nil && *record.SchemaVersion == schema.Version {
		return record, nil
	}

	normalized, err := m.engine.Validate(record.Attributes, *schema, validation.Update)
	if err != nil {
		return domain.Record{}, err
	}

	record = record.WithAttributes(normalized).WithSchemaVersion(schema.Version)
	return m.records.Update(ctx, record)
}

// Validate runs the engine against an arbitrary bag without persisting,
// for collaborators that stage input before a save (forms, serializers).
func (m *Manager) Validate(ctx context.Context, entity Extensible, raw map[string]any, mode validation.Mode) (map[string]any, error) {
	schema, err := m.ResolveSchema(ctx, entity)
	if err != nil {
		return nil, err
	}
	if schema == nil {
		return raw, nil
	}
	return m.engine.Validate(raw, *schema, mode)
}

func (m *Manager) persist(ctx context.Context, record domain.Record) (domain.Record, error) {
	if record.IsPersisted() {
		return m.records.Update(ctx, record)
	}
	return m.records.Insert(ctx, record)
}
