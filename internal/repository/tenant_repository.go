package repository

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"

	"github.com/rpattn/extmodels/internal/db"
	"github.com/rpattn/extmodels/internal/domain"
)

// tenantRepository implements TenantRepository on Postgres
type tenantRepository struct {
	conn *db.Connection
}

// NewTenantRepository creates a new tenant repository
func NewTenantRepository(conn *db.Connection) TenantRepository {
	return &tenantRepository{conn: conn}
}

// Create creates a new tenant
func (r *tenantRepository) Create(ctx context.Context, tenant domain.Tenant) (domain.Tenant, error) {
	row := r.conn.Pool.QueryRow(ctx, `
		INSERT INTO tenants (id, name, description, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id, name, description, created_at, updated_at`,
		tenant.ID, tenant.Name,
		pgtype.Text{String: tenant.Description, Valid: tenant.Description != ""},
		tenant.CreatedAt, tenant.UpdatedAt,
	)

	created, err := scanTenantRow(row)
	if err != nil {
		return domain.Tenant{}, fmt.Errorf("failed to create tenant: %w", err)
	}
	return created, nil
}

// GetByID retrieves a tenant by ID
func (r *tenantRepository) GetByID(ctx context.Context, id uuid.UUID) (domain.Tenant, error) {
	row := r.conn.Pool.QueryRow(ctx, `
		SELECT id, name, description, created_at, updated_at
		FROM tenants WHERE id = $1`,
		id,
	)

	tenant, err := scanTenantRow(row)
	if err != nil {
		return domain.Tenant{}, fmt.Errorf("failed to get tenant: %w", err)
	}
	return tenant, nil
}

// GetByName retrieves a tenant by name
func (r *tenantRepository) GetByName(ctx context.Context, name string) (domain.Tenant, error) {
	row := r.conn.Pool.QueryRow(ctx, `
		SELECT id, name, description, created_at, updated_at
		FROM tenants WHERE name = $1`,
		name,
	)

	tenant, err := scanTenantRow(row)
	if err != nil {
		return domain.Tenant{}, fmt.Errorf("failed to get tenant by name: %w", err)
	}
	return tenant, nil
}

// List retrieves all tenants
func (r *tenantRepository) List(ctx context.Context) ([]domain.Tenant, error) {
	rows, err := r.conn.Pool.Query(ctx, `
		SELECT id, name, description, created_at, updated_at
		FROM tenants ORDER BY name ASC`,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list tenants: %w", err)
	}
	defer rows.Close()

	var result []domain.Tenant
	for rows.Next() {
		tenant, err := scanTenantRow(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan tenant row: %w", err)
		}
		result = append(result, tenant)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read tenant rows: %w", err)
	}
	return result, nil
}

func scanTenantRow(row pgx.Row) (domain.Tenant, error) {
	var (
		tenant      domain.Tenant
		description pgtype.Text
	)
	if err := row.Scan(&tenant.ID, &tenant.Name, &description, &tenant.CreatedAt, &tenant.UpdatedAt); err != nil {
		return domain.Tenant{}, err
	}
	tenant.Description = description.String
	return tenant, nil
}
