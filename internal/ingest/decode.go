package ingest

import (
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"

	"dbtlineage/pkg/domain"
)

// DecodeJSON reads a JSON array of rows.
func DecodeJSON(r io.Reader) ([]Row, error) {
	var rows []Row
	if err := json.NewDecoder(r).Decode(&rows); err != nil {
		return nil, fmt.Errorf("%w: decode rows: %w", domain.ErrInvalidInput, err)
	}
	if rows == nil {
		rows = []Row{}
	}
	return rows, nil
}

// DecodeCSV reads rows from CSV with a header line. Known columns map onto Row
// fields; any other non-empty column is kept in LabConditions.
func DecodeCSV(r io.Reader) ([]Row, error) {
	reader := csv.NewReader(r)
	reader.TrimLeadingSpace = true
	reader.FieldsPerRecord = -1

	header, err := reader.Read()
	if errors.Is(err, io.EOF) {
		return []Row{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("%w: read csv header: %w", domain.ErrInvalidInput, err)
	}
	for i := range header {
		header[i] = strings.ToLower(strings.TrimSpace(header[i]))
	}

	rows := []Row{}
	for {
		record, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("%w: read csv: %w", domain.ErrInvalidInput, err)
		}
		var row Row
		for i, cell := range record {
			if i >= len(header) {
				break
			}
			assignColumn(&row, header[i], strings.TrimSpace(cell))
		}
		rows = append(rows, row)
	}
	return rows, nil
}

func assignColumn(row *Row, column, value string) {
	switch column {
	case "name":
		row.Name = value
	case "alias":
		row.Alias = value
	case "sequence":
		row.Sequence = value
	case "mutations":
		row.Mutations = value
	case "result_value":
		row.ResultValue = Value(value)
	case "result_unit":
		row.ResultUnit = value
	case "result_type":
		row.ResultType = value
	case "test_type":
		row.TestType = value
	case "assay_name":
		row.AssayName = value
	case "protocol":
		row.Protocol = value
	case "technician":
		row.Technician = value
	default:
		if column == "" || value == "" {
			return
		}
		if row.LabConditions == nil {
			row.LabConditions = make(map[string]any)
		}
		row.LabConditions[column] = value
	}
}
