package extract

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tealeg/xlsx/v2"
)

func buildXLSX(t *testing.T, sheets map[string][][]string) []byte {
	t.Helper()
	f := xlsx.NewFile()
	for name, rows := range sheets {
		sheet, err := f.AddSheet(name)
		require.NoError(t, err)
		for _, row := range rows {
			r := sheet.AddRow()
			for _, cell := range row {
				r.AddCell().SetString(cell)
			}
		}
	}
	var buf bytes.Buffer
	require.NoError(t, f.Write(&buf))
	return buf.Bytes()
}

func TestParseCSV(t *testing.T) {
	data := []byte("Period,Revenue,Expenses\n2024 Q1,100,80\n2024 Q2,110,85\n")

	doc, err := Parse("financials.csv", data)
	require.NoError(t, err)
	assert.Equal(t, FormatCSV, doc.Format)
	require.Len(t, doc.Sheets, 1)
	assert.Equal(t, "financials.csv", doc.Sheets[0].Name)
	require.Len(t, doc.Sheets[0].Rows, 3)
	assert.Equal(t, []string{"Period", "Revenue", "Expenses"}, doc.Sheets[0].Rows[0])
}

func TestParseCSVSkipsBlankRows(t *testing.T) {
	data := []byte("a,b\n,\n1,2\n")
	doc, err := Parse("x.csv", data)
	require.NoError(t, err)
	assert.Len(t, doc.Sheets[0].Rows, 2)
}

func TestParseXLSX(t *testing.T) {
	data := buildXLSX(t, map[string][][]string{
		"Census": {
			{"Month", "Occupied", "Total"},
			{"Jan", "88", "100"},
		},
	})

	doc, err := Parse("census.xlsx", data)
	require.NoError(t, err)
	assert.Equal(t, FormatXLSX, doc.Format)
	require.Len(t, doc.Sheets, 1)
	assert.Equal(t, "Census", doc.Sheets[0].Name)
	assert.Len(t, doc.Sheets[0].Rows, 2)
}

func TestParseXLSXDropsEmptySheets(t *testing.T) {
	data := buildXLSX(t, map[string][][]string{
		"Data":  {{"a", "b"}},
		"Blank": {},
	})

	doc, err := Parse("wb.xlsx", data)
	require.NoError(t, err)
	require.Len(t, doc.Sheets, 1)
	assert.Equal(t, "Data", doc.Sheets[0].Name)
}

func TestParseEmptyInput(t *testing.T) {
	_, err := Parse("empty.csv", nil)
	assert.Error(t, err)
}

func TestParseCorruptXLSX(t *testing.T) {
	_, err := Parse("bad.xlsx", []byte("PK\x03\x04not really a zip"))
	assert.Error(t, err)
}

func TestParseCorruptPDF(t *testing.T) {
	_, err := Parse("bad.pdf", []byte("%PDF-1.7 truncated"))
	assert.Error(t, err)
}

func TestSheetContent(t *testing.T) {
	tab := ParsedSheet{Rows: [][]string{{"a", "b"}, {"1", "2"}}}
	assert.Equal(t, "a | b\n1 | 2\n", tab.Content())

	text := ParsedSheet{Text: "plain section"}
	assert.Equal(t, "plain section", text.Content())
}
