package table

import (
	"github.com/rotisserie/eris"
	"github.com/tealeg/xlsx/v2"
)

// XLSXOptions selects the sheet to read. The zero value reads the first
// sheet.
type XLSXOptions struct {
	SheetIndex int
	SheetName  string // overrides SheetIndex when set
}

// ReadXLSX parses an XLSX input table. The first row of the selected sheet
// must be a header containing the configured identifier and value columns.
func ReadXLSX(path string, cols Columns, opts XLSXOptions) ([]Row, error) {
	cols.defaults()

	f, err := xlsx.OpenFile(path)
	if err != nil {
		return nil, eris.Wrapf(err, "table: open %s", path)
	}

	sheet, err := pickSheet(f, opts)
	if err != nil {
		return nil, err
	}
	if len(sheet.Rows) == 0 {
		return nil, eris.New("table: empty XLSX sheet")
	}

	header := rowToStrings(sheet.Rows[0])
	idIdx, valueIdx, hatchIdx, err := columnIndexes(header, cols)
	if err != nil {
		return nil, err
	}

	var rows []Row
	for i, r := range sheet.Rows[1:] {
		cells := rowToStrings(r)
		if blank(cells) {
			continue
		}
		row, err := buildRow(cells, idIdx, valueIdx, hatchIdx, i+2)
		if err != nil {
			return nil, err
		}
		rows = append(rows, row)
	}

	if len(rows) == 0 {
		return nil, eris.New("table: XLSX input has no data rows")
	}
	return rows, nil
}

func pickSheet(f *xlsx.File, opts XLSXOptions) (*xlsx.Sheet, error) {
	if opts.SheetName != "" {
		sheet, ok := f.Sheet[opts.SheetName]
		if !ok {
			return nil, eris.Errorf("table: sheet %q not found", opts.SheetName)
		}
		return sheet, nil
	}
	if opts.SheetIndex >= len(f.Sheets) {
		return nil, eris.Errorf("table: sheet index %d out of range (file has %d sheets)",
			opts.SheetIndex, len(f.Sheets))
	}
	return f.Sheets[opts.SheetIndex], nil
}

func rowToStrings(row *xlsx.Row) []string {
	cells := make([]string, len(row.Cells))
	for i, c := range row.Cells {
		cells[i] = c.String()
	}
	return cells
}

func blank(cells []string) bool {
	for _, c := range cells {
		if c != "" {
			return false
		}
	}
	return true
}
