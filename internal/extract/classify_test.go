package extract

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/intake-cli/internal/model"
)

func TestClassifyFinancials(t *testing.T) {
	doc := &ParsedDoc{Sheets: []ParsedSheet{{
		Name: "P&L 2024",
		Rows: [][]string{
			{"Line Item", "YTD Actual", "Budget"},
			{"Total Revenue", "1,200,000", "1,150,000"},
			{"Operating Expenses", "900,000", "880,000"},
		},
	}}}

	sheets := Classify(doc)
	require.Len(t, sheets, 1)
	assert.Equal(t, model.SheetFinancials, sheets[0].Type)
	assert.NotEmpty(t, sheets[0].Hints)
	assert.Equal(t, 3, sheets[0].RowCount)
}

func TestClassifyCensus(t *testing.T) {
	doc := &ParsedDoc{Sheets: []ParsedSheet{{
		Name: "Occupancy",
		Rows: [][]string{
			{"Month", "Units Occupied", "Total Beds", "Medicaid", "Private Pay"},
			{"Jan", "88", "100", "20", "60"},
		},
	}}}

	sheets := Classify(doc)
	assert.Equal(t, model.SheetCensus, sheets[0].Type)
}

func TestClassifyRates(t *testing.T) {
	doc := &ParsedDoc{Sheets: []ParsedSheet{{
		Name: "Rate Card",
		Rows: [][]string{
			{"Unit Type", "Care Level", "Monthly Fee"},
			{"Studio", "AL", "4,500"},
			{"One Bedroom", "AL", "5,200"},
		},
	}}}

	sheets := Classify(doc)
	assert.Equal(t, model.SheetRates, sheets[0].Type)
}

func TestClassifyUnknownNeedsTwoHits(t *testing.T) {
	doc := &ParsedDoc{Sheets: []ParsedSheet{{
		Name: "Notes",
		Rows: [][]string{
			{"The facility revenue discussion happens Tuesday"},
		},
	}}}

	sheets := Classify(doc)
	assert.Equal(t, model.SheetUnknown, sheets[0].Type)
	assert.Empty(t, sheets[0].Hints)
}

func TestClassifyPDFText(t *testing.T) {
	doc := &ParsedDoc{Sheets: []ParsedSheet{{
		Name: "offering.pdf",
		Text: "Trailing twelve month net operating income and total revenue summary with operating expense detail",
	}}}

	sheets := Classify(doc)
	assert.Equal(t, model.SheetFinancials, sheets[0].Type)
	assert.Zero(t, sheets[0].RowCount)
}
