// Package table reads user input tables (CSV or XLSX) into the rows the map
// pipeline consumes: a location identifier, a numeric measure, and an
// optional significance value.
package table

import (
	"math"
	"strconv"
	"strings"

	"github.com/rotisserie/eris"

	"github.com/sells-group/ratemap/internal/fips"
)

// Columns names the input columns. Zero values fall back to the conventional
// names; matching is case-insensitive.
type Columns struct {
	ID    string // location identifier column (default "location")
	Value string // measure column (default "value")
	Hatch string // optional significance column (default "pvalue")
}

func (c *Columns) defaults() {
	if c.ID == "" {
		c.ID = "location"
	}
	if c.Value == "" {
		c.Value = "value"
	}
	if c.Hatch == "" {
		c.Hatch = "pvalue"
	}
}

// Row is one parsed input observation. Value is NaN when the measure cell is
// missing; Hatch is nil when the significance column is absent or empty.
type Row struct {
	ID    string
	Value float64
	Hatch *float64
}

// NormalizeID fixes identifiers that lost their leading zeros on the way in
// (numeric spreadsheet cells, integer-typed CSV columns). Digit strings of a
// non-standard width are zero-padded to the width their magnitude implies;
// everything else passes through untouched.
func NormalizeID(raw string) string {
	s := strings.TrimSpace(raw)
	if s == "" {
		return s
	}

	// Spreadsheets render integer cells as floats ("6.0").
	s = strings.TrimSuffix(s, ".0")

	n, err := strconv.ParseInt(s, 10, 64)
	if err != nil || n < 0 {
		return s
	}

	switch len(s) {
	case 2, 3, 5, 11:
		return s
	default:
		return fips.Pad(n, fips.InferWidth(n))
	}
}

// missing value tokens accepted in measure cells alongside the empty string.
var missingTokens = map[string]bool{"na": true, "n/a": true, ".": true, "-": true, "null": true}

func parseValue(raw string) (float64, error) {
	s := strings.TrimSpace(raw)
	if s == "" || missingTokens[strings.ToLower(s)] {
		return math.NaN(), nil
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, eris.Wrapf(err, "table: parse value %q", raw)
	}
	return v, nil
}

func parseHatch(raw string) (*float64, error) {
	v, err := parseValue(raw)
	if err != nil {
		return nil, err
	}
	if math.IsNaN(v) {
		return nil, nil
	}
	return &v, nil
}

// columnIndexes resolves configured column names against a header row.
// The identifier and measure columns are required; the hatch column is
// optional (-1 when absent).
func columnIndexes(header []string, cols Columns) (idIdx, valueIdx, hatchIdx int, err error) {
	idIdx, valueIdx, hatchIdx = -1, -1, -1
	for i, h := range header {
		switch strings.ToLower(strings.TrimSpace(h)) {
		case strings.ToLower(cols.ID):
			idIdx = i
		case strings.ToLower(cols.Value):
			valueIdx = i
		case strings.ToLower(cols.Hatch):
			hatchIdx = i
		}
	}
	if idIdx < 0 {
		return 0, 0, 0, eris.Errorf("table: identifier column %q not found in header %v", cols.ID, header)
	}
	if valueIdx < 0 {
		return 0, 0, 0, eris.Errorf("table: value column %q not found in header %v", cols.Value, header)
	}
	return idIdx, valueIdx, hatchIdx, nil
}

func buildRow(cells []string, idIdx, valueIdx, hatchIdx, line int) (Row, error) {
	get := func(i int) string {
		if i >= 0 && i < len(cells) {
			return cells[i]
		}
		return ""
	}

	id := NormalizeID(get(idIdx))
	if id == "" {
		return Row{}, eris.Errorf("table: empty identifier at row %d", line)
	}

	value, err := parseValue(get(valueIdx))
	if err != nil {
		return Row{}, eris.Wrapf(err, "table: row %d", line)
	}

	row := Row{ID: id, Value: value}
	if hatchIdx >= 0 {
		row.Hatch, err = parseHatch(get(hatchIdx))
		if err != nil {
			return Row{}, eris.Wrapf(err, "table: row %d", line)
		}
	}
	return row, nil
}
