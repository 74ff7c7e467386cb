package ingestion

import (
	"bufio"
	"bytes"
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
	"github.com/xuri/excelize/v2"

	"github.com/rpattn/extmodels/internal/domain"
	"github.com/rpattn/extmodels/internal/extension"
	"github.com/rpattn/extmodels/internal/registry"
	"github.com/rpattn/extmodels/internal/serializer"
)

// ErrUnsupportedFormat is returned when an uploaded file is not supported.
var ErrUnsupportedFormat = errors.New("unsupported file format")

var byteOrderMark = []byte{0xEF, 0xBB, 0xBF}

// Service ingests tabular data into extensible records. Every cell arrives
// textual, so rows exercise the full coercion path of the save contract.
type Service struct {
	manager  *extension.Manager
	registry *registry.Registry
}

// NewService creates a new ingestion service.
func NewService(manager *extension.Manager, reg *registry.Registry) *Service {
	return &Service{manager: manager, registry: reg}
}

// RowError describes one rejected row. Row numbers are 1-based file rows.
type RowError struct {
	Row     int    `json:"row"`
	Message string `json:"message"`
}

// Report summarizes an ingestion run.
type Report struct {
	Created   int        `json:"created"`
	Failed    int        `json:"failed"`
	RowErrors []RowError `json:"row_errors,omitempty"`
}

// Ingest reads a CSV or XLSX file and saves one record per data row. The
// first non-empty row names the columns; a "name" column feeds the declared
// name field and the rest are routed into the attribute bag by the tenant's
// schema property names. Bad rows are reported, not fatal.
func (s *Service) Ingest(ctx context.Context, tenantID uuid.UUID, entityKind, fileName string, data io.Reader) (Report, error) {
	payload, err := io.ReadAll(data)
	if err != nil {
		return Report{}, fmt.Errorf("failed to read upload: %w", err)
	}

	headers, rows, headerRow, err := parseTable(fileName, payload)
	if err != nil {
		return Report{}, err
	}

	schema, err := s.registry.Latest(ctx, tenantID, entityKind)
	if err != nil {
		return Report{}, err
	}

	var report Report
	for i, row := range rows {
		fileRow := headerRow + i + 2

		cells := make(map[string]any, len(headers))
		for j, header := range headers {
			if header == "" || j >= len(row) {
				continue
			}
			if value := strings.TrimSpace(row[j]); value != "" {
				cells[header] = value
			}
		}
		if len(cells) == 0 {
			continue
		}

		declared, bag, err := serializer.Split(cells, schema)
		if err != nil {
			return report, err
		}
		name, _ := declared["name"].(string)

		record := domain.NewRecord(tenantID, entityKind, name, bag)
		if _, err := s.manager.Save(ctx, record); err != nil {
			report.Failed++
			report.RowErrors = append(report.RowErrors, RowError{Row: fileRow, Message: err.Error()})
			continue
		}
		report.Created++
	}

	return report, nil
}

// parseTable returns normalized headers, the data rows and the 0-based
// index of the header row.
func parseTable(fileName string, payload []byte) ([]string, [][]string, int, error) {
	ext := strings.ToLower(filepath.Ext(fileName))
	switch ext {
	case ".csv":
		return normalizeTable(readCSV(payload))
	case ".xlsx":
		rows, err := readExcel(payload)
		if err != nil {
			return nil, nil, 0, err
		}
		return normalizeTable(rows, nil)
	default:
		return nil, nil, 0, fmt.Errorf("%w: %s", ErrUnsupportedFormat, ext)
	}
}

func readCSV(payload []byte) ([][]string, error) {
	reader := bufio.NewReader(bytes.NewReader(payload))
	if prefix, err := reader.Peek(len(byteOrderMark)); err == nil && bytes.Equal(prefix, byteOrderMark) {
		_, _ = reader.Discard(len(byteOrderMark))
	}

	csvReader := csv.NewReader(reader)
	csvReader.TrimLeadingSpace = true
	csvReader.FieldsPerRecord = -1

	records, err := csvReader.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("failed to read csv: %w", err)
	}
	return records, nil
}

func readExcel(payload []byte) ([][]string, error) {
	f, err := excelize.OpenReader(bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("failed to open xlsx: %w", err)
	}
	defer func() { _ = f.Close() }()

	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return nil, errors.New("excel file has no sheets")
	}

	rows, err := f.GetRows(sheets[0])
	if err != nil {
		return nil, fmt.Errorf("failed to read rows from xlsx: %w", err)
	}
	return rows, nil
}

func normalizeTable(records [][]string, err error) ([]string, [][]string, int, error) {
	if err != nil {
		return nil, nil, 0, err
	}

	var headers []string
	var dataRows [][]string
	headerIndex := -1

	for idx, row := range records {
		if emptyRow(row) {
			continue
		}
		if headers == nil {
			headers = sanitizeHeaders(row)
			headerIndex = idx
			continue
		}
		dataRows = append(dataRows, row)
	}

	if headers == nil {
		return nil, nil, 0, errors.New("header row could not be detected")
	}
	return headers, dataRows, headerIndex, nil
}

func sanitizeHeaders(row []string) []string {
	headers := make([]string, len(row))
	for i, cell := range row {
		header := strings.TrimSpace(cell)
		header = strings.ToLower(header)
		header = strings.ReplaceAll(header, " ", "_")
		headers[i] = header
	}
	return headers
}

func emptyRow(row []string) bool {
	for _, cell := range row {
		if strings.TrimSpace(cell) != "" {
			return false
		}
	}
	return true
}
