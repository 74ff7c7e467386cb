package export

import (
	"context"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"strconv"

	"github.com/google/uuid"
	"github.com/xuri/excelize/v2"

	"github.com/rpattn/extmodels/internal/projection"
	"github.com/rpattn/extmodels/internal/registry"
	"github.com/rpattn/extmodels/internal/repository"
	"github.com/rpattn/extmodels/internal/serializer"
)

const sheetName = "Records"

// Service exports a tenant's records of one entity kind as a flat table:
// declared fields first, then the extension columns in projector order.
type Service struct {
	registry *registry.Registry
	records  repository.RecordRepository
}

// NewService creates a new export service.
func NewService(reg *registry.Registry, records repository.RecordRepository) *Service {
	return &Service{registry: reg, records: records}
}

// header builds the column list. Extension columns follow the latest
// schema's declared property order so repeated exports line up.
func (s *Service) header(ctx context.Context, tenantID uuid.UUID, entityKind string) ([]string, error) {
	columns := []string{"id", "name", "schema_version"}

	schema, err := s.registry.Latest(ctx, tenantID, entityKind)
	if err != nil {
		return nil, err
	}
	if schema == nil {
		return columns, nil
	}

	descriptors, err := projection.Project(*schema)
	if err != nil {
		return nil, err
	}
	for _, desc := range descriptors {
		columns = append(columns, desc.Name)
	}
	return columns, nil
}

func (s *Service) rows(ctx context.Context, tenantID uuid.UUID, entityKind string, columns []string) ([][]string, error) {
	records, err := s.records.ListByKind(ctx, tenantID, entityKind)
	if err != nil {
		return nil, err
	}

	rows := make([][]string, 0, len(records))
	for _, record := range records {
		flat := serializer.Flatten(record)
		row := make([]string, len(columns))
		for i, column := range columns {
			row[i] = cellValue(flat[column])
		}
		rows = append(rows, row)
	}
	return rows, nil
}

// WriteCSV writes the export as CSV.
func (s *Service) WriteCSV(ctx context.Context, tenantID uuid.UUID, entityKind string, w io.Writer) error {
	columns, err := s.header(ctx, tenantID, entityKind)
	if err != nil {
		return err
	}
	rows, err := s.rows(ctx, tenantID, entityKind, columns)
	if err != nil {
		return err
	}

	writer := csv.NewWriter(w)
	if err := writer.Write(columns); err != nil {
		return fmt.Errorf("failed to write csv header: %w", err)
	}
	for _, row := range rows {
		if err := writer.Write(row); err != nil {
			return fmt.Errorf("failed to write csv row: %w", err)
		}
	}
	writer.Flush()
	if err := writer.Error(); err != nil {
		return fmt.Errorf("failed to flush csv: %w", err)
	}
	return nil
}

// WriteXLSX writes the export as an Excel workbook.
func (s *Service) WriteXLSX(ctx context.Context, tenantID uuid.UUID, entityKind string, w io.Writer) error {
	columns, err := s.header(ctx, tenantID, entityKind)
	if err != nil {
		return err
	}
	rows, err := s.rows(ctx, tenantID, entityKind, columns)
	if err != nil {
		return err
	}

	f := excelize.NewFile()
	defer func() { _ = f.Close() }()

	if err := f.SetSheetName("Sheet1", sheetName); err != nil {
		return fmt.Errorf("failed to name export sheet: %w", err)
	}

	if err := writeRow(f, 1, columns); err != nil {
		return err
	}
	for i, row := range rows {
		if err := writeRow(f, i+2, row); err != nil {
			return err
		}
	}

	if err := f.Write(w); err != nil {
		return fmt.Errorf("failed to write xlsx: %w", err)
	}
	return nil
}

func writeRow(f *excelize.File, rowIndex int, values []string) error {
	for col, value := range values {
		cell, err := excelize.CoordinatesToCellName(col+1, rowIndex)
		if err != nil {
			return fmt.Errorf("failed to compute cell name: %w", err)
		}
		if err := f.SetCellValue(sheetName, cell, value); err != nil {
			return fmt.Errorf("failed to write cell %s: %w", cell, err)
		}
	}
	return nil
}

// cellValue renders any bag value into a single cell. Composite values are
// JSON-encoded so nothing is lost in the flat table.
func cellValue(value any) string {
	switch v := value.(type) {
	case nil:
		return ""
	case string:
		return v
	case bool:
		return strconv.FormatBool(v)
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	case int:
		return strconv.Itoa(v)
	case int64:
		return strconv.FormatInt(v, 10)
	default:
		encoded, err := json.Marshal(v)
		if err != nil {
			return fmt.Sprintf("%v", v)
		}
		return string(encoded)
	}
}
