// Package extract runs the per-document pipeline: parse the raw bytes,
// classify the detected sheets, pull tabular content, and hand it to the AI
// structurer for normalized output.
package extract

import (
	"bytes"
	"encoding/csv"
	"io"
	"strings"

	"github.com/ledongthuc/pdf"
	"github.com/rotisserie/eris"
	"github.com/tealeg/xlsx/v2"
)

// Format identifies a supported document format.
type Format string

const (
	FormatXLSX Format = "xlsx"
	FormatPDF  Format = "pdf"
	FormatCSV  Format = "csv"
)

// ParsedSheet is one sheet (or logical section) of a parsed document. Tabular
// formats fill Rows; PDF text lands in Text.
type ParsedSheet struct {
	Name string
	Rows [][]string
	Text string
}

// ParsedDoc is the format-neutral result of parsing a document.
type ParsedDoc struct {
	Format Format
	Sheets []ParsedSheet
}

var (
	xlsxMagic = []byte("PK\x03\x04")
	pdfMagic  = []byte("%PDF")
)

// Parse sniffs the document format from its leading bytes and parses it into
// sheets. The filename is only used for sheet naming and error context.
func Parse(filename string, data []byte) (*ParsedDoc, error) {
	if len(data) == 0 {
		return nil, eris.Errorf("extract: %s is empty", filename)
	}

	switch {
	case bytes.HasPrefix(data, xlsxMagic):
		return parseXLSX(filename, data)
	case bytes.HasPrefix(data, pdfMagic):
		return parsePDF(filename, data)
	default:
		return parseCSV(filename, data)
	}
}

func parseXLSX(filename string, data []byte) (*ParsedDoc, error) {
	f, err := xlsx.OpenBinary(data)
	if err != nil {
		return nil, eris.Wrapf(err, "extract: open xlsx %s", filename)
	}

	doc := &ParsedDoc{Format: FormatXLSX}
	for _, sheet := range f.Sheets {
		ps := ParsedSheet{Name: sheet.Name}
		for _, row := range sheet.Rows {
			cells := make([]string, len(row.Cells))
			for j, cell := range row.Cells {
				cells[j] = cell.String()
			}
			if emptyRow(cells) {
				continue
			}
			ps.Rows = append(ps.Rows, cells)
		}
		if len(ps.Rows) > 0 {
			doc.Sheets = append(doc.Sheets, ps)
		}
	}
	if len(doc.Sheets) == 0 {
		return nil, eris.Errorf("extract: xlsx %s has no non-empty sheets", filename)
	}
	return doc, nil
}

func parsePDF(filename string, data []byte) (*ParsedDoc, error) {
	r, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, eris.Wrapf(err, "extract: open pdf %s", filename)
	}

	plain, err := r.GetPlainText()
	if err != nil {
		return nil, eris.Wrapf(err, "extract: pdf text %s", filename)
	}
	var buf bytes.Buffer
	if _, err := io.Copy(&buf, plain); err != nil {
		return nil, eris.Wrapf(err, "extract: read pdf text %s", filename)
	}

	text := strings.TrimSpace(buf.String())
	if text == "" {
		return nil, eris.Errorf("extract: pdf %s has no extractable text", filename)
	}

	return &ParsedDoc{
		Format: FormatPDF,
		Sheets: []ParsedSheet{{Name: filename, Text: text}},
	}, nil
}

func parseCSV(filename string, data []byte) (*ParsedDoc, error) {
	r := csv.NewReader(bytes.NewReader(data))
	r.FieldsPerRecord = -1
	r.TrimLeadingSpace = true

	var rows [][]string
	for {
		rec, err := r.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, eris.Wrapf(err, "extract: parse csv %s", filename)
		}
		if emptyRow(rec) {
			continue
		}
		rows = append(rows, rec)
	}
	if len(rows) == 0 {
		return nil, eris.Errorf("extract: csv %s has no rows", filename)
	}

	return &ParsedDoc{
		Format: FormatCSV,
		Sheets: []ParsedSheet{{Name: filename, Rows: rows}},
	}, nil
}

func emptyRow(cells []string) bool {
	for _, c := range cells {
		if strings.TrimSpace(c) != "" {
			return false
		}
	}
	return true
}

// Content renders a sheet as text for the structuring prompt. Tabular sheets
// become pipe-separated lines; PDF sections pass through.
func (s *ParsedSheet) Content() string {
	if s.Text != "" {
		return s.Text
	}
	var b strings.Builder
	for _, row := range s.Rows {
		b.WriteString(strings.Join(row, " | "))
		b.WriteByte('\n')
	}
	return b.String()
}
