package extract

import (
	"context"
	"fmt"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/intake-cli/internal/docstore"
	"github.com/sells-group/intake-cli/internal/model"
)

// Stage names reported through progress callbacks.
const (
	StageParse     = "parse"
	StageClassify  = "classify"
	StageExtract   = "extract"
	StageStructure = "structure"
)

// ProgressFunc receives stage updates while a document is being processed.
// progress is a fraction of the whole document, 0 to 1.
type ProgressFunc func(stage string, progress float64, message string)

// Extractor runs the per-document pipeline. It is stateless and safe for
// concurrent use across sessions.
type Extractor struct {
	docs     docstore.Store
	analyzer Analyzer
}

// New creates an Extractor over the given document store and analyzer.
func New(docs docstore.Store, analyzer Analyzer) *Extractor {
	return &Extractor{docs: docs, analyzer: analyzer}
}

// ExtractFile processes one document end to end. A non-nil error means the
// document produced no usable data (missing, unparseable, or every sheet
// failed structuring); partial sheet failures degrade into warnings and a
// reduced confidence instead. Returned clarifications are not yet registered;
// the caller owns routing them to the clarification manager.
func (e *Extractor) ExtractFile(ctx context.Context, ref model.DocumentRef, onProgress ProgressFunc) (*model.ExtractionResult, []model.Clarification, error) {
	if onProgress == nil {
		onProgress = func(string, float64, string) {}
	}
	start := time.Now()
	log := zap.L().With(
		zap.String("document_id", ref.ID),
		zap.String("filename", ref.Filename),
	)

	onProgress(StageParse, 0.05, "fetching document")
	data, err := e.docs.GetDocument(ctx, ref)
	if err != nil {
		return nil, nil, eris.Wrapf(err, "extract: fetch document %s", ref.ID)
	}

	doc, err := Parse(ref.Filename, data)
	if err != nil {
		return nil, nil, err
	}
	onProgress(StageParse, 0.2, fmt.Sprintf("parsed %s, %d sheets", doc.Format, len(doc.Sheets)))

	sheets := Classify(doc)
	onProgress(StageClassify, 0.3, "sheets classified")

	result := &model.ExtractionResult{
		DocumentID: ref.ID,
		Filename:   ref.Filename,
		Sheets:     sheets,
	}

	var (
		clarifications []model.Clarification
		confidenceSum  float64
		analyzed       int
	)
	total := len(doc.Sheets)
	for i, ps := range doc.Sheets {
		if ctx.Err() != nil {
			return nil, nil, eris.Wrap(ctx.Err(), "extract: cancelled")
		}

		sheet := sheets[i]
		onProgress(StageExtract, stageProgress(i, total, 0.0),
			fmt.Sprintf("extracting sheet %q", sheet.Name))

		analysis, err := e.analyzer.Analyze(ctx, sheet, ps.Content())
		if err != nil {
			log.Warn("extract: sheet structuring failed",
				zap.String("sheet", sheet.Name),
				zap.Error(err),
			)
			result.Warnings = append(result.Warnings,
				fmt.Sprintf("sheet %q: %s", sheet.Name, eris.Cause(err).Error()))
			continue
		}

		result.FinancialData = append(result.FinancialData, analysis.Financials...)
		result.CensusData = append(result.CensusData, analysis.Census...)
		result.RateData = append(result.RateData, analysis.Rates...)
		clarifications = append(clarifications,
			toClarifications(ref, sheet, total, analysis.Clarifications)...)
		confidenceSum += analysis.Confidence
		analyzed++

		onProgress(StageStructure, stageProgress(i, total, 1.0),
			fmt.Sprintf("sheet %q structured", sheet.Name))
	}

	if analyzed == 0 {
		return nil, nil, eris.Errorf("extract: all %d sheets failed structuring for %s", total, ref.Filename)
	}

	result.Confidence = confidenceSum / float64(analyzed)
	if analyzed < total {
		// Partial failure caps confidence.
		partial := float64(analyzed) / float64(total)
		if result.Confidence > partial {
			result.Confidence = partial
		}
	}
	result.Duration = time.Since(start).Milliseconds()

	log.Info("extract: document complete",
		zap.Int("sheets", total),
		zap.Int("analyzed", analyzed),
		zap.Int("clarifications", len(clarifications)),
		zap.Float64("confidence", result.Confidence),
		zap.Int64("duration_ms", result.Duration),
	)
	return result, clarifications, nil
}

// stageProgress maps per-sheet completion onto the 0.3..1.0 span that follows
// parsing and classification.
func stageProgress(sheetIdx, total int, within float64) float64 {
	span := 0.7 / float64(total)
	return 0.3 + span*(float64(sheetIdx)+within)
}

func toClarifications(ref model.DocumentRef, sheet model.Sheet, totalSheets int, fcs []FieldClarification) []model.Clarification {
	out := make([]model.Clarification, 0, len(fcs))
	for _, fc := range fcs {
		path := fc.FieldPath
		if totalSheets > 1 {
			path = sheet.Name + "." + path
		}
		out = append(out, model.Clarification{
			DocumentID:          ref.ID,
			FieldPath:           path,
			FieldLabel:          fc.Label,
			ExtractedValue:      fc.Value,
			ExtractedConfidence: fc.Confidence,
			Type:                clarificationType(fc.Type),
			Priority:            fc.Priority,
			SuggestedValues:     fc.SuggestedValues,
		})
	}
	return out
}

func clarificationType(s string) model.ClarificationType {
	switch model.ClarificationType(s) {
	case model.ClarificationConflict:
		return model.ClarificationConflict
	case model.ClarificationMissing:
		return model.ClarificationMissing
	default:
		return model.ClarificationLowConfidence
	}
}
