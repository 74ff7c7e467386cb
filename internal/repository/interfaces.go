package repository

import (
	"context"

	"github.com/rpattn/extmodels/internal/domain"

	"github.com/google/uuid"
)

// TenantRepository defines the interface for tenant operations
type TenantRepository interface {
	Create(ctx context.Context, tenant domain.Tenant) (domain.Tenant, error)
	GetByID(ctx context.Context, id uuid.UUID) (domain.Tenant, error)
	GetByName(ctx context.Context, name string) (domain.Tenant, error)
	List(ctx context.Context) ([]domain.Tenant, error)
}

// SchemaRepository defines the interface for extension schema storage.
// Rows are append-only; Insert assigns the next version atomically and
// reports domain.ErrSchemaVersionConflict when a concurrent publish won
// the same version slot.
type SchemaRepository interface {
	Insert(ctx context.Context, schema domain.SchemaDocument) (domain.SchemaDocument, error)
	Latest(ctx context.Context, tenantID uuid.UUID, entityKind string) (*domain.SchemaDocument, error)
	AtVersion(ctx context.Context, tenantID uuid.UUID, entityKind string, version int) (*domain.SchemaDocument, error)
	ListVersions(ctx context.Context, tenantID uuid.UUID, entityKind string) ([]domain.SchemaDocument, error)
	Deactivate(ctx context.Context, id uuid.UUID) error
}

// RecordRepository defines the interface for extensible record storage
type RecordRepository interface {
	Insert(ctx context.Context, record domain.Record) (domain.Record, error)
	Update(ctx context.Context, record domain.Record) (domain.Record, error)
	GetByID(ctx context.Context, id uuid.UUID) (domain.Record, error)
	ListByKind(ctx context.Context, tenantID uuid.UUID, entityKind string) ([]domain.Record, error)
	ResolveTenant(ctx context.Context, recordID uuid.UUID) (uuid.UUID, error)
}
