package extract

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/sells-group/intake-cli/internal/model"
	"github.com/sells-group/intake-cli/internal/resilience"
	"github.com/sells-group/intake-cli/pkg/anthropic"
)

// FieldClarification is one ambiguous field flagged by the structurer. The
// session converts these to clarification records scoped to the document.
type FieldClarification struct {
	FieldPath       string  `json:"field_path"`
	Label           string  `json:"label,omitempty"`
	Value           any     `json:"value"`
	Confidence      float64 `json:"confidence"`
	Type            string  `json:"type"`
	Priority        int     `json:"priority"`
	SuggestedValues []any   `json:"suggested_values,omitempty"`
}

// Analysis is the structured output for one sheet.
type Analysis struct {
	Financials     []model.FinancialPeriod `json:"financials,omitempty"`
	Census         []model.CensusPeriod    `json:"census,omitempty"`
	Rates          []model.RateRecord      `json:"rates,omitempty"`
	Clarifications []FieldClarification    `json:"clarifications,omitempty"`
	Confidence     float64                 `json:"confidence"`
}

// Analyzer turns raw sheet content into normalized deal data.
type Analyzer interface {
	Analyze(ctx context.Context, sheet model.Sheet, content string) (*Analysis, error)
}

const structuringSystemPrompt = `You are a data extraction engine for senior-housing and healthcare real estate deal documents. You receive the content of one sheet or section from a deal room document, plus a hint about what kind of data it carries.

Extract every financial period, census/occupancy snapshot, and rate record you can find. Respond with ONLY a JSON object, no prose, in this shape:

{
  "financials": [{"period": "2024 Q1", "start_date": "2024-01-01T00:00:00Z", "end_date": null, "revenue": 0, "expenses": 0, "net_operating_income": 0, "line_items": {"payroll": 0}}],
  "census": [{"period": "Jan 2024", "date": null, "units_total": 0, "units_occupied": 0, "occupancy_pct": 0, "payer_mix": {"private": 0}}],
  "rates": [{"unit_type": "studio", "care_level": "AL", "rate": 0, "effective_date": null}],
  "clarifications": [{"field_path": "financials[0].revenue", "label": "Q1 revenue", "value": 120000, "confidence": 0.4, "type": "low_confidence", "priority": 7, "suggested_values": [120000, 1200000]}],
  "confidence": 0.9
}

Rules:
- Dates are RFC 3339 or null. Omit arrays that do not apply.
- Flag a clarification when a value is ambiguous, conflicts with another cell, or a clearly expected field is missing. type is one of "low_confidence", "conflict", "missing". priority is 1-10 where 9-10 means the deal data is unusable without an answer.
- confidence is your overall confidence in this sheet's extraction, 0 to 1.`

// AnalyzerConfig configures the AI structurer.
type AnalyzerConfig struct {
	Model     string
	MaxTokens int64
	// RateRPS and RateBurst bound request throughput across concurrent sessions.
	RateRPS   float64
	RateBurst int
	Retry     resilience.RetryConfig
	Breaker   *resilience.CircuitBreaker
}

// AnthropicAnalyzer implements Analyzer on the Anthropic messages API. All
// sessions share one analyzer so the rate limit and circuit breaker apply
// process-wide.
type AnthropicAnalyzer struct {
	client  anthropic.Client
	cfg     AnalyzerConfig
	limiter *rate.Limiter
	breaker *resilience.CircuitBreaker
}

// NewAnthropicAnalyzer creates an analyzer with rate limiting, retries, and a
// circuit breaker around the API call.
func NewAnthropicAnalyzer(client anthropic.Client, cfg AnalyzerConfig) *AnthropicAnalyzer {
	if cfg.MaxTokens <= 0 {
		cfg.MaxTokens = 4096
	}
	if cfg.RateRPS <= 0 {
		cfg.RateRPS = 2
	}
	if cfg.RateBurst <= 0 {
		cfg.RateBurst = 4
	}
	if cfg.Retry.MaxAttempts == 0 {
		cfg.Retry = resilience.DefaultRetryConfig()
	}
	breaker := cfg.Breaker
	if breaker == nil {
		breaker = resilience.NewCircuitBreaker(resilience.DefaultCircuitBreakerConfig())
	}
	return &AnthropicAnalyzer{
		client:  client,
		cfg:     cfg,
		limiter: rate.NewLimiter(rate.Limit(cfg.RateRPS), cfg.RateBurst),
		breaker: breaker,
	}
}

// WarmCache sends a primer request so subsequent calls hit the cached system
// prompt. Failures are logged and ignored; warming is an optimization only.
func (a *AnthropicAnalyzer) WarmCache(ctx context.Context) {
	req := anthropic.MessageRequest{
		Model:     a.cfg.Model,
		MaxTokens: 16,
		System:    anthropic.BuildCachedSystemBlocks(structuringSystemPrompt),
		Messages:  []anthropic.Message{{Role: "user", Content: "ready"}},
	}
	retry := a.cfg.Retry
	retry.OnRetry = resilience.RetryLogger("anthropic", "warm_cache")
	err := resilience.Do(ctx, retry, func(ctx context.Context) error {
		_, err := anthropic.PrimerRequest(ctx, a.client, req)
		return err
	})
	if err != nil {
		zap.L().Warn("extract: cache warm failed", zap.Error(err))
	}
}

func (a *AnthropicAnalyzer) Analyze(ctx context.Context, sheet model.Sheet, content string) (*Analysis, error) {
	if err := a.limiter.Wait(ctx); err != nil {
		return nil, eris.Wrap(err, "extract: rate limit wait")
	}

	prompt := buildSheetPrompt(sheet, content)
	req := anthropic.MessageRequest{
		Model:     a.cfg.Model,
		MaxTokens: a.cfg.MaxTokens,
		System:    anthropic.BuildCachedSystemBlocks(structuringSystemPrompt),
		Messages:  []anthropic.Message{{Role: "user", Content: prompt}},
	}

	retry := a.cfg.Retry
	retry.OnRetry = resilience.RetryLogger("anthropic", "analyze")

	start := time.Now()
	resp, err := resilience.DoVal(ctx, retry, func(ctx context.Context) (*anthropic.MessageResponse, error) {
		return resilience.ExecuteVal(ctx, a.breaker, func(ctx context.Context) (*anthropic.MessageResponse, error) {
			return a.client.CreateMessage(ctx, req)
		})
	})
	if err != nil {
		return nil, eris.Wrapf(err, "extract: analyze sheet %s", sheet.Name)
	}

	resp.Usage.LogCost(a.cfg.Model, "structuring")
	zap.L().Debug("extract: sheet analyzed",
		zap.String("sheet", sheet.Name),
		zap.String("type", string(sheet.Type)),
		zap.Duration("duration", time.Since(start)),
	)

	analysis, err := parseAnalysis(responseText(resp))
	if err != nil {
		return nil, eris.Wrapf(err, "extract: parse analysis for sheet %s", sheet.Name)
	}
	return analysis, nil
}

func buildSheetPrompt(sheet model.Sheet, content string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Sheet: %s\nDetected type: %s\n", sheet.Name, sheet.Type)
	if len(sheet.Hints) > 0 {
		fmt.Fprintf(&b, "Hints: %s\n", strings.Join(sheet.Hints, ", "))
	}
	b.WriteString("\nContent:\n")
	b.WriteString(content)
	return b.String()
}

func responseText(resp *anthropic.MessageResponse) string {
	var b strings.Builder
	for _, block := range resp.Content {
		if block.Type == "text" {
			b.WriteString(block.Text)
		}
	}
	return b.String()
}

// parseAnalysis parses the model response, tolerating markdown fences and
// surrounding prose.
func parseAnalysis(text string) (*Analysis, error) {
	cleaned := cleanJSON(text)
	var a Analysis
	if err := json.Unmarshal([]byte(cleaned), &a); err != nil {
		return nil, eris.Wrap(err, "unmarshal analysis")
	}
	if a.Confidence < 0 {
		a.Confidence = 0
	}
	if a.Confidence > 1 {
		a.Confidence = 1
	}
	return &a, nil
}

func cleanJSON(text string) string {
	text = strings.TrimSpace(text)

	// Strip markdown code fences.
	if strings.HasPrefix(text, "```json") {
		text = strings.TrimPrefix(text, "```json")
		if idx := strings.LastIndex(text, "```"); idx >= 0 {
			text = text[:idx]
		}
	} else if strings.HasPrefix(text, "```") {
		text = strings.TrimPrefix(text, "```")
		if idx := strings.LastIndex(text, "```"); idx >= 0 {
			text = text[:idx]
		}
	}

	// Find first { and last }.
	start := strings.Index(text, "{")
	end := strings.LastIndex(text, "}")
	if start >= 0 && end > start {
		text = text[start : end+1]
	}

	return strings.TrimSpace(text)
}
