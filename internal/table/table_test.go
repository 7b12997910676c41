package table

import (
	"math"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tealeg/xlsx/v2"
)

func TestNormalizeID(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{in: "06", want: "06"},
		{in: "6", want: "06"},
		{in: "6.0", want: "06"},
		{in: "6037", want: "06037"},
		{in: "06037", want: "06037"},
		{in: "6037123456", want: "06037123456"},
		{in: "06037123456", want: "06037123456"},
		{in: "018", want: "018"},
		{in: "CA-LA", want: "CA-LA"},
		{in: " 48 ", want: "48"},
		{in: "", want: ""},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, NormalizeID(tt.in), "NormalizeID(%q)", tt.in)
	}
}

func TestReadCSV(t *testing.T) {
	input := `location,value,pvalue
06037,12.5,0.03
6001,8.1,0.2
48,NA,
`
	rows, err := ReadCSV(strings.NewReader(input), Columns{})
	require.NoError(t, err)
	require.Len(t, rows, 3)

	assert.Equal(t, "06037", rows[0].ID)
	assert.InDelta(t, 12.5, rows[0].Value, 1e-9)
	require.NotNil(t, rows[0].Hatch)
	assert.InDelta(t, 0.03, *rows[0].Hatch, 1e-9)

	// Integer-typed identifier zero-pads to county width.
	assert.Equal(t, "06001", rows[1].ID)

	// Missing measure becomes NaN; empty hatch cell stays nil.
	assert.Equal(t, "48", rows[2].ID)
	assert.True(t, math.IsNaN(rows[2].Value))
	assert.Nil(t, rows[2].Hatch)
}

func TestReadCSVCustomColumns(t *testing.T) {
	input := `fips,rate,extra
06037,1.5,x
13121,2.5,y
`
	rows, err := ReadCSV(strings.NewReader(input), Columns{ID: "FIPS", Value: "Rate"})
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, "13121", rows[1].ID)
	assert.InDelta(t, 2.5, rows[1].Value, 1e-9)
	assert.Nil(t, rows[1].Hatch)
}

func TestReadCSVErrors(t *testing.T) {
	_, err := ReadCSV(strings.NewReader(""), Columns{})
	assert.Error(t, err)

	_, err = ReadCSV(strings.NewReader("a,b\n1,2\n"), Columns{})
	assert.Error(t, err, "header without the configured columns")

	_, err = ReadCSV(strings.NewReader("location,value\n06037,not-a-number\n"), Columns{})
	assert.Error(t, err)

	_, err = ReadCSV(strings.NewReader("location,value\n"), Columns{})
	assert.Error(t, err, "no data rows")
}

func TestReadXLSX(t *testing.T) {
	path := filepath.Join(t.TempDir(), "input.xlsx")

	f := xlsx.NewFile()
	sheet, err := f.AddSheet("data")
	require.NoError(t, err)
	for _, cells := range [][]string{
		{"location", "value", "pvalue"},
		{"06037", "12.5", "0.03"},
		{"6001", "8.1", ""},
	} {
		row := sheet.AddRow()
		for _, c := range cells {
			row.AddCell().SetString(c)
		}
	}
	require.NoError(t, f.Save(path))

	rows, err := ReadXLSX(path, Columns{}, XLSXOptions{})
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, "06037", rows[0].ID)
	require.NotNil(t, rows[0].Hatch)
	assert.Equal(t, "06001", rows[1].ID)
	assert.Nil(t, rows[1].Hatch)
}

func TestReadXLSXSheetSelection(t *testing.T) {
	path := filepath.Join(t.TempDir(), "input.xlsx")

	f := xlsx.NewFile()
	_, err := f.AddSheet("notes")
	require.NoError(t, err)
	sheet, err := f.AddSheet("rates")
	require.NoError(t, err)
	for _, cells := range [][]string{
		{"location", "value"},
		{"48201", "3.3"},
	} {
		row := sheet.AddRow()
		for _, c := range cells {
			row.AddCell().SetString(c)
		}
	}
	require.NoError(t, f.Save(path))

	rows, err := ReadXLSX(path, Columns{}, XLSXOptions{SheetName: "rates"})
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, "48201", rows[0].ID)

	_, err = ReadXLSX(path, Columns{}, XLSXOptions{SheetName: "missing"})
	assert.Error(t, err)

	// The first sheet is empty.
	_, err = ReadXLSX(path, Columns{}, XLSXOptions{})
	assert.Error(t, err)
}
