package registry

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/google/uuid"
	"github.com/xeipuuv/gojsonschema"

	"github.com/rpattn/extmodels/internal/domain"
	"github.com/rpattn/extmodels/internal/repository"
)

// Registry is the durable store of extension schemas, keyed by tenant and
// entity kind and versioned monotonically. Versions are assigned here,
// never by callers.
type Registry struct {
	schemas repository.SchemaRepository
}

// New creates a schema registry over the given storage.
func New(schemas repository.SchemaRepository) *Registry {
	return &Registry{schemas: schemas}
}

// Publish validates that body is well-formed JSON Schema, then persists it
// as the next version for the tenant/kind pair. A publish race is retried
// once: the storage layer recomputes max(version)+1 under the fresh
// attempt, so the retry lands on the slot the winner left free.
func (r *Registry) Publish(ctx context.Context, tenantID uuid.UUID, entityKind string, body json.RawMessage) (domain.SchemaDocument, error) {
	if err := checkSchema(body); err != nil {
		return domain.SchemaDocument{}, err
	}

	doc := domain.NewSchemaDocument(tenantID, entityKind, body)
	published, err := r.schemas.Insert(ctx, doc)
	if errors.Is(err, domain.ErrSchemaVersionConflict) {
		published, err = r.schemas.Insert(ctx, doc)
	}
	if err != nil {
		return domain.SchemaDocument{}, err
	}
	return published, nil
}

// Latest returns the highest active schema version for the tenant/kind
// pair, or nil when none was ever published. Unconfigured pairs are legal;
// validation is a no-op for them.
func (r *Registry) Latest(ctx context.Context, tenantID uuid.UUID, entityKind string) (*domain.SchemaDocument, error) {
	return r.schemas.Latest(ctx, tenantID, entityKind)
}

// AtVersion returns the schema at an exact version, or nil when absent.
// Used when re-validating records saved under an older schema.
func (r *Registry) AtVersion(ctx context.Context, tenantID uuid.UUID, entityKind string, version int) (*domain.SchemaDocument, error) {
	return r.schemas.AtVersion(ctx, tenantID, entityKind, version)
}

// Versions lists the full publish history for the tenant/kind pair.
func (r *Registry) Versions(ctx context.Context, tenantID uuid.UUID, entityKind string) ([]domain.SchemaDocument, error) {
	return r.schemas.ListVersions(ctx, tenantID, entityKind)
}

// Deactivate retires a schema version from Latest selection while keeping
// it available to AtVersion and Versions.
func (r *Registry) Deactivate(ctx context.Context, id uuid.UUID) error {
	return r.schemas.Deactivate(ctx, id)
}

// checkSchema compiles the body against the JSON Schema metaschema.
func checkSchema(body json.RawMessage) error {
	loader := gojsonschema.NewSchemaLoader()
	loader.Draft = gojsonschema.Draft7
	loader.Validate = true
	if _, err := loader.Compile(gojsonschema.NewBytesLoader(body)); err != nil {
		return &domain.SchemaInvalidError{Detail: err.Error()}
	}
	return nil
}
