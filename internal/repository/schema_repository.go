package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/rpattn/extmodels/internal/db"
	"github.com/rpattn/extmodels/internal/domain"
)

const uniqueViolationCode = "23505"

// schemaRepository implements SchemaRepository on Postgres
type schemaRepository struct {
	conn *db.Connection
}

// NewSchemaRepository creates a new extension schema repository
func NewSchemaRepository(conn *db.Connection) SchemaRepository {
	return &schemaRepository{conn: conn}
}

// Insert persists a new schema version. The version is computed inside the
// insert itself (max+1 over the tenant/kind pair), and the unique index on
// (tenant_id, entity_kind, version) turns a concurrent publish race into
// domain.ErrSchemaVersionConflict for the loser.
func (r *schemaRepository) Insert(ctx context.Context, schema domain.SchemaDocument) (domain.SchemaDocument, error) {
	row := r.conn.Pool.QueryRow(ctx, `
		INSERT INTO extension_schemas (id, tenant_id, entity_kind, version, body, is_active, created_at)
		SELECT $1, $2, $3, COALESCE(MAX(version), 0) + 1, $4, $5, $6
		FROM extension_schemas
		WHERE tenant_id = $2 AND entity_kind = $3
		RETURNING version, created_at`,
		schema.ID, schema.TenantID, schema.EntityKind, []byte(schema.Body), schema.IsActive, schema.CreatedAt,
	)

	inserted := schema
	if err := row.Scan(&inserted.Version, &inserted.CreatedAt); err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolationCode {
			return domain.SchemaDocument{}, fmt.Errorf("failed to insert extension schema: %w", domain.ErrSchemaVersionConflict)
		}
		return domain.SchemaDocument{}, fmt.Errorf("failed to insert extension schema: %w", err)
	}

	return inserted, nil
}

// Latest returns the highest active version for the tenant/kind pair, or
// nil when the pair never had a schema published. Inactive versions are
// history only.
func (r *schemaRepository) Latest(ctx context.Context, tenantID uuid.UUID, entityKind string) (*domain.SchemaDocument, error) {
	row := r.conn.Pool.QueryRow(ctx, `
		SELECT id, tenant_id, entity_kind, version, body, is_active, created_at
		FROM extension_schemas
		WHERE tenant_id = $1 AND entity_kind = $2 AND is_active
		ORDER BY version DESC
		LIMIT 1`,
		tenantID, entityKind,
	)

	schema, err := scanSchemaRow(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get latest extension schema: %w", err)
	}
	return &schema, nil
}

// AtVersion is a point lookup for pinned/historical validation. It ignores
// is_active so records saved under a retired version can still re-validate.
func (r *schemaRepository) AtVersion(ctx context.Context, tenantID uuid.UUID, entityKind string, version int) (*domain.SchemaDocument, error) {
	row := r.conn.Pool.QueryRow(ctx, `
		SELECT id, tenant_id, entity_kind, version, body, is_active, created_at
		FROM extension_schemas
		WHERE tenant_id = $1 AND entity_kind = $2 AND version = $3`,
		tenantID, entityKind, version,
	)

	schema, err := scanSchemaRow(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get extension schema at version %d: %w", version, err)
	}
	return &schema, nil
}

// ListVersions returns every version for the tenant/kind pair, oldest first
func (r *schemaRepository) ListVersions(ctx context.Context, tenantID uuid.UUID, entityKind string) ([]domain.SchemaDocument, error) {
	rows, err := r.conn.Pool.Query(ctx, `
		SELECT id, tenant_id, entity_kind, version, body, is_active, created_at
		FROM extension_schemas
		WHERE tenant_id = $1 AND entity_kind = $2
		ORDER BY version ASC`,
		tenantID, entityKind,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list extension schema versions: %w", err)
	}
	defer rows.Close()

	var result []domain.SchemaDocument
	for rows.Next() {
		schema, err := scanSchemaRow(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan extension schema row: %w", err)
		}
		result = append(result, schema)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read extension schema rows: %w", err)
	}
	return result, nil
}

// Deactivate retires a schema version from latest selection. The row is
// kept for history and AtVersion lookups.
func (r *schemaRepository) Deactivate(ctx context.Context, id uuid.UUID) error {
	tag, err := r.conn.Pool.Exec(ctx, `
		UPDATE extension_schemas SET is_active = FALSE WHERE id = $1`,
		id,
	)
	if err != nil {
		return fmt.Errorf("failed to deactivate extension schema: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("failed to deactivate extension schema %s: %w", id, domain.ErrSchemaNotFound)
	}
	return nil
}

func scanSchemaRow(row pgx.Row) (domain.SchemaDocument, error) {
	var (
		schema    domain.SchemaDocument
		body      []byte
		createdAt time.Time
	)
	if err := row.Scan(&schema.ID, &schema.TenantID, &schema.EntityKind, &schema.Version, &body, &schema.IsActive, &createdAt); err != nil {
		return domain.SchemaDocument{}, err
	}
	schema.Body = json.RawMessage(body)
	schema.CreatedAt = createdAt
	return schema, nil
}
