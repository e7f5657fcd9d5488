package extract

import (
	"strings"

	"github.com/sells-group/intake-cli/internal/model"
)

// Keyword tables for sheet classification. Matching is scored so that a rent
// roll mentioning "revenue" once does not get tagged as financials.
var (
	financialKeywords = []string{
		"revenue", "income", "expense", "ebitda", "noi", "net operating",
		"p&l", "profit", "loss", "operating", "ytd", "budget", "actual",
	}
	censusKeywords = []string{
		"census", "occupancy", "occupied", "units", "beds", "resident",
		"payer", "medicaid", "medicare", "private pay", "move-in", "move-out",
	}
	rateKeywords = []string{
		"rate", "rent", "pricing", "price", "monthly fee", "care level",
		"studio", "one bedroom", "room rate", "daily rate", "base rent",
	}
)

// Classify tags each parsed sheet with the kind of data it appears to carry
// and collects the keyword hints that drove the decision. Sheets that match
// nothing stay SheetUnknown and are still sent to the structurer.
func Classify(doc *ParsedDoc) []model.Sheet {
	out := make([]model.Sheet, 0, len(doc.Sheets))
	for _, ps := range doc.Sheets {
		sheet := model.Sheet{
			Name:     ps.Name,
			RowCount: len(ps.Rows),
		}
		sheet.Type, sheet.Hints = classifySheet(&ps)
		out = append(out, sheet)
	}
	return out
}

func classifySheet(ps *ParsedSheet) (model.SheetType, []string) {
	sample := classificationSample(ps)

	type score struct {
		t     model.SheetType
		words []string
	}
	scores := []score{
		{model.SheetFinancials, matchKeywords(sample, financialKeywords)},
		{model.SheetCensus, matchKeywords(sample, censusKeywords)},
		{model.SheetRates, matchKeywords(sample, rateKeywords)},
	}

	best := score{t: model.SheetUnknown}
	for _, s := range scores {
		if len(s.words) > len(best.words) {
			best = s
		}
	}
	if len(best.words) < 2 {
		return model.SheetUnknown, nil
	}
	return best.t, best.words
}

// classificationSample assembles the text used for keyword matching: the
// sheet name plus the first rows (or the head of the text for PDFs).
func classificationSample(ps *ParsedSheet) string {
	var b strings.Builder
	b.WriteString(ps.Name)
	b.WriteByte('\n')

	if ps.Text != "" {
		head := ps.Text
		if len(head) > 4096 {
			head = head[:4096]
		}
		b.WriteString(head)
	} else {
		for i, row := range ps.Rows {
			if i >= 10 {
				break
			}
			b.WriteString(strings.Join(row, " "))
			b.WriteByte('\n')
		}
	}
	return strings.ToLower(b.String())
}

func matchKeywords(sample string, keywords []string) []string {
	var hits []string
	for _, kw := range keywords {
		if strings.Contains(sample, kw) {
			hits = append(hits, kw)
		}
	}
	return hits
}
