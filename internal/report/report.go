// Package report renders a human-readable summary of a session's results.
package report

import (
	"fmt"
	"sort"
	"strings"

	"golang.org/x/text/language"
	"golang.org/x/text/message"

	"github.com/sells-group/intake-cli/internal/model"
)

// Format generates an intake report for a session. pending lists the
// clarifications still open; pass nil for terminal sessions with none.
func Format(snap *model.SessionSnapshot, pending []model.Clarification) string {
	var b strings.Builder
	p := message.NewPrinter(language.English)

	fmt.Fprintf(&b, "# Intake Report: %s\n", snap.DealID)
	fmt.Fprintf(&b, "Session: %s\n", snap.ID)
	fmt.Fprintf(&b, "Status: %s\n\n", snap.Status)

	// Summary.
	b.WriteString("## Summary\n")
	fmt.Fprintf(&b, "- Documents: %d queued, %d processed, %d errored\n",
		len(snap.DocumentQueue), snap.Counts.DocumentsProcessed, snap.Counts.DocumentsErrored)
	fmt.Fprintf(&b, "- Financial periods: %d\n", snap.Counts.FinancialPeriods)
	fmt.Fprintf(&b, "- Census periods: %d\n", snap.Counts.CensusPeriods)
	fmt.Fprintf(&b, "- Rate records: %d\n", snap.Counts.RateRecords)
	fmt.Fprintf(&b, "- Pending clarifications: %d\n\n", snap.Counts.PendingClarifications)

	// Per-document results in queue order.
	b.WriteString("## Documents\n")
	for _, doc := range snap.DocumentQueue {
		r, ok := snap.Results[doc.ID]
		if !ok {
			fmt.Fprintf(&b, "- %s: not processed\n", doc.Filename)
			continue
		}
		if r.Failed() {
			fmt.Fprintf(&b, "- %s: ERROR (%s)\n", doc.Filename, r.Err)
			continue
		}
		fmt.Fprintf(&b, "- %s: %d financial, %d census, %d rates [%.0f%% confidence, %dms]\n",
			doc.Filename, len(r.FinancialData), len(r.CensusData), len(r.RateData),
			r.Confidence*100, r.Duration)
		for _, w := range r.Warnings {
			fmt.Fprintf(&b, "  Warning: %s\n", w)
		}
	}
	b.WriteString("\n")

	writeFinancials(&b, p, snap)
	writePending(&b, pending)

	if snap.Error != "" {
		fmt.Fprintf(&b, "## Error\n%s\n", snap.Error)
	}
	return b.String()
}

func writeFinancials(b *strings.Builder, p *message.Printer, snap *model.SessionSnapshot) {
	var periods []model.FinancialPeriod
	ids := make([]string, 0, len(snap.Results))
	for id := range snap.Results {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	for _, id := range ids {
		periods = append(periods, snap.Results[id].FinancialData...)
	}
	if len(periods) == 0 {
		return
	}

	b.WriteString("## Financials\n")
	for _, fp := range periods {
		fmt.Fprintf(b, "- %s: revenue %s, expenses %s, NOI %s\n",
			fp.Period,
			p.Sprintf("$%.0f", fp.Revenue),
			p.Sprintf("$%.0f", fp.Expenses),
			p.Sprintf("$%.0f", fp.NetOperatingIncome),
		)
	}
	b.WriteString("\n")
}

func writePending(b *strings.Builder, pending []model.Clarification) {
	if len(pending) == 0 {
		return
	}
	b.WriteString("## Pending Clarifications\n")
	for _, c := range pending {
		label := c.FieldLabel
		if label == "" {
			label = c.FieldPath
		}
		fmt.Fprintf(b, "- [P%d] %s (%s): extracted %v at %.0f%% confidence\n",
			c.Priority, label, c.Type, c.ExtractedValue, c.ExtractedConfidence*100)
		if c.BenchmarkRange != nil {
			fmt.Fprintf(b, "  Benchmark: %.2f to %.2f\n", c.BenchmarkRange.Low, c.BenchmarkRange.High)
		}
	}
	b.WriteString("\n")
}
