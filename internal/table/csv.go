package table

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"

	"github.com/jszwec/csvutil"
	"github.com/rotisserie/eris"
)

// record is the canonical shape rows decode into after the configured column
// names are mapped onto the header.
type record struct {
	ID    string `csv:"id"`
	Value string `csv:"value"`
	Hatch string `csv:"hatch"`
}

// ReadCSV parses a CSV input table. The first row must be a header
// containing the configured identifier and value columns.
func ReadCSV(r io.Reader, cols Columns) ([]Row, error) {
	cols.defaults()

	cr := csv.NewReader(r)
	cr.TrimLeadingSpace = true

	header, err := cr.Read()
	if err == io.EOF {
		return nil, eris.New("table: empty CSV input")
	}
	if err != nil {
		return nil, eris.Wrap(err, "table: read CSV header")
	}

	idIdx, valueIdx, hatchIdx, err := columnIndexes(header, cols)
	if err != nil {
		return nil, err
	}

	// Rewrite the header to the canonical field names so the decoder maps
	// the configured columns; the rest keep unique placeholder names and
	// are ignored.
	canonical := make([]string, len(header))
	for i := range header {
		canonical[i] = fmt.Sprintf("_col%d", i)
	}
	canonical[idIdx] = "id"
	canonical[valueIdx] = "value"
	if hatchIdx >= 0 {
		canonical[hatchIdx] = "hatch"
	}

	dec, err := csvutil.NewDecoder(cr, canonical...)
	if err != nil {
		return nil, eris.Wrap(err, "table: create CSV decoder")
	}

	var rows []Row
	line := 1
	for {
		var rec record
		err := dec.Decode(&rec)
		if err == io.EOF {
			break
		}
		line++
		if err != nil {
			return nil, eris.Wrapf(err, "table: decode CSV row %d", line)
		}

		id := NormalizeID(rec.ID)
		if id == "" {
			return nil, eris.Errorf("table: empty identifier at row %d", line)
		}
		value, err := parseValue(rec.Value)
		if err != nil {
			return nil, eris.Wrapf(err, "table: row %d", line)
		}

		row := Row{ID: id, Value: value}
		if hatchIdx >= 0 {
			if row.Hatch, err = parseHatch(rec.Hatch); err != nil {
				return nil, eris.Wrapf(err, "table: row %d", line)
			}
		}
		rows = append(rows, row)
	}

	if len(rows) == 0 {
		return nil, eris.New("table: CSV input has no data rows")
	}
	return rows, nil
}

// ReadCSVFile parses a CSV input table from a file.
func ReadCSVFile(path string, cols Columns) ([]Row, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, eris.Wrapf(err, "table: open %s", path)
	}
	defer f.Close() //nolint:errcheck
	return ReadCSV(f, cols)
}
