package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"

	"github.com/rpattn/extmodels/internal/config"
	"github.com/rpattn/extmodels/internal/db"
	"github.com/rpattn/extmodels/internal/domain"
)

// recordRepository implements RecordRepository on Postgres. The tenant
// table and the record column relating a record to its tenant are supplied
// by configuration, mirroring how host applications name their tenant
// concept.
type recordRepository struct {
	conn           *db.Connection
	tenantTable    string
	tenantRelation string
}

// NewRecordRepository creates a new extensible record repository
func NewRecordRepository(conn *db.Connection, extension config.ExtensionConfig) RecordRepository {
	return &recordRepository{
		conn:           conn,
		tenantTable:    pgx.Identifier{extension.TenantTable}.Sanitize(),
		tenantRelation: pgx.Identifier{extension.TenantRelation}.Sanitize(),
	}
}

// Insert persists a new record. Identity is assigned here when the caller
// did not set one; the row carries the bag and version marker together so
// the save is all-or-nothing.
func (r *recordRepository) Insert(ctx context.Context, record domain.Record) (domain.Record, error) {
	if record.ID == uuid.Nil {
		record.ID = uuid.New()
	}
	attributesJSON, err := record.GetAttributesAsJSONB()
	if err != nil {
		return domain.Record{}, fmt.Errorf("failed to marshal attribute bag: %w", err)
	}

	query := fmt.Sprintf(`
		INSERT INTO records (id, %s, entity_kind, name, attributes, schema_version, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING id, %s, entity_kind, name, attributes, schema_version, created_at, updated_at`,
		r.tenantRelation, r.tenantRelation,
	)
	row := r.conn.Pool.QueryRow(ctx, query,
		record.ID, record.TenantID, record.EntityKind, record.Name,
		attributesJSON, record.SchemaVersion, record.CreatedAt, record.UpdatedAt,
	)

	inserted, err := scanRecordRow(row)
	if err != nil {
		return domain.Record{}, fmt.Errorf("failed to insert record: %w", err)
	}
	return inserted, nil
}

// Update replaces a record's declared fields, bag and version marker
func (r *recordRepository) Update(ctx context.Context, record domain.Record) (domain.Record, error) {
	attributesJSON, err := record.GetAttributesAsJSONB()
	if err != nil {
		return domain.Record{}, fmt.Errorf("failed to marshal attribute bag: %w", err)
	}

	query := fmt.Sprintf(`
		UPDATE records
		SET name = $2, attributes = $3, schema_version = $4, updated_at = NOW()
		WHERE id = $1
		RETURNING id, %s, entity_kind, name, attributes, schema_version, created_at, updated_at`,
		r.tenantRelation,
	)
	row := r.conn.Pool.QueryRow(ctx, query,
		record.ID, record.Name, attributesJSON, record.SchemaVersion,
	)

	updated, err := scanRecordRow(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.Record{}, fmt.Errorf("failed to update record %s: %w", record.ID, domain.ErrRecordNotFound)
		}
		return domain.Record{}, fmt.Errorf("failed to update record: %w", err)
	}
	return updated, nil
}

// GetByID retrieves a record by ID
func (r *recordRepository) GetByID(ctx context.Context, id uuid.UUID) (domain.Record, error) {
	query := fmt.Sprintf(`
		SELECT id, %s, entity_kind, name, attributes, schema_version, created_at, updated_at
		FROM records WHERE id = $1`,
		r.tenantRelation,
	)
	row := r.conn.Pool.QueryRow(ctx, query, id)

	record, err := scanRecordRow(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.Record{}, fmt.Errorf("failed to get record %s: %w", id, domain.ErrRecordNotFound)
		}
		return domain.Record{}, fmt.Errorf("failed to get record: %w", err)
	}
	return record, nil
}

// ListByKind retrieves all records of an entity kind for a tenant
func (r *recordRepository) ListByKind(ctx context.Context, tenantID uuid.UUID, entityKind string) ([]domain.Record, error) {
	query := fmt.Sprintf(`
		SELECT id, %s, entity_kind, name, attributes, schema_version, created_at, updated_at
		FROM records
		WHERE %s = $1 AND entity_kind = $2
		ORDER BY created_at ASC`,
		r.tenantRelation, r.tenantRelation,
	)
	rows, err := r.conn.Pool.Query(ctx, query, tenantID, entityKind)
	if err != nil {
		return nil, fmt.Errorf("failed to list records: %w", err)
	}
	defer rows.Close()

	var result []domain.Record
	for rows.Next() {
		record, err := scanRecordRow(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan record row: %w", err)
		}
		result = append(result, record)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read record rows: %w", err)
	}
	return result, nil
}

// ResolveTenant follows the configured tenant relation from a record row to
// its tenant. A miss means the relation is miswired for this deployment,
// which is a configuration defect rather than bad input.
func (r *recordRepository) ResolveTenant(ctx context.Context, recordID uuid.UUID) (uuid.UUID, error) {
	query := fmt.Sprintf(`
		SELECT t.id FROM records rec
		JOIN %s t ON t.id = rec.%s
		WHERE rec.id = $1`,
		r.tenantTable, r.tenantRelation,
	)

	var tenantID uuid.UUID
	if err := r.conn.Pool.QueryRow(ctx, query, recordID).Scan(&tenantID); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return uuid.Nil, fmt.Errorf("failed to resolve tenant for record %s: %w", recordID, domain.ErrTenantNotFound)
		}
		return uuid.Nil, fmt.Errorf("failed to resolve tenant: %w", err)
	}
	return tenantID, nil
}

func scanRecordRow(row pgx.Row) (domain.Record, error) {
	var (
		record         domain.Record
		attributesJSON []byte
		schemaVersion  pgtype.Int4
	)
	if err := row.Scan(&record.ID, &record.TenantID, &record.EntityKind, &record.Name,
		&attributesJSON, &schemaVersion, &record.CreatedAt, &record.UpdatedAt); err != nil {
		return domain.Record{}, err
	}

	attributes, err := domain.FromJSONBAttributes(attributesJSON)
	if err != nil {
		return domain.Record{}, fmt.Errorf("failed to unmarshal attribute bag: %w", err)
	}
	record.Attributes = attributes
	if schemaVersion.Valid {
		version := int(schemaVersion.Int32)
		record.SchemaVersion = &version
	}
	return record, nil
}
