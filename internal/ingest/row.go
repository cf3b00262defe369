package ingest

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"dbtlineage/internal/matching"
	"dbtlineage/pkg/domain"
)

// Value is a raw numeric cell. It decodes from JSON numbers, strings and null
// so malformed values surface as per-row errors instead of failing the whole
// document.
type Value string

// UnmarshalJSON implements json.Unmarshaler.
func (v *Value) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	switch {
	case bytes.Equal(data, []byte("null")):
		*v = ""
	case len(data) > 0 && data[0] == '"':
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*v = Value(s)
	default:
		*v = Value(data)
	}
	return nil
}

// Float parses the value. An empty value is absent and yields nil.
func (v Value) Float() (*float64, error) {
	raw := strings.TrimSpace(string(v))
	if raw == "" {
		return nil, nil
	}
	f, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return nil, fmt.Errorf("%w: result_value %q is not numeric", domain.ErrInvalidInput, raw)
	}
	return &f, nil
}

// Row is one incoming experimental result. Missing optional fields are absent,
// not errors.
type Row struct {
	Name          string         `json:"name,omitempty"`
	Alias         string         `json:"alias,omitempty"`
	Sequence      string         `json:"sequence,omitempty"`
	Mutations     string         `json:"mutations,omitempty"`
	ResultValue   Value          `json:"result_value,omitempty"`
	ResultUnit    string         `json:"result_unit,omitempty"`
	ResultType    string         `json:"result_type,omitempty"`
	TestType      string         `json:"test_type,omitempty"`
	AssayName     string         `json:"assay_name,omitempty"`
	Protocol      string         `json:"protocol,omitempty"`
	Technician    string         `json:"technician,omitempty"`
	LabConditions map[string]any `json:"lab_conditions,omitempty"`
}

// Query returns the identifying fields the matcher consumes.
func (r Row) Query() matching.Row {
	return matching.Row{Sequence: r.Sequence, Mutations: r.Mutations, Alias: r.Alias}
}

// Test builds the test record for a matched row. The match metadata is copied
// from res and is fixed from here on.
func (r Row) Test(res matching.MatchResult) (domain.Test, error) {
	value, err := r.ResultValue.Float()
	if err != nil {
		return domain.Test{}, err
	}
	name := r.Name
	if name == "" {
		name = r.Alias
	}
	var conditions map[string]any
	if len(r.LabConditions) > 0 {
		conditions = make(map[string]any, len(r.LabConditions))
		for k, v := range r.LabConditions {
			conditions[k] = v
		}
	}
	return domain.Test{
		Name:            name,
		Alias:           r.Alias,
		TestType:        r.TestType,
		AssayName:       r.AssayName,
		Protocol:        r.Protocol,
		ResultValue:     value,
		ResultUnit:      r.ResultUnit,
		ResultType:      r.ResultType,
		DesignID:        copyID(res.DesignID),
		BuildID:         copyID(res.BuildID),
		MatchConfidence: res.Confidence,
		MatchMethod:     res.Method,
		MatchScore:      res.Score,
		Technician:      r.Technician,
		LabConditions:   conditions,
	}, nil
}

func copyID(id *string) *string {
	if id == nil {
		return nil
	}
	v := *id
	return &v
}
