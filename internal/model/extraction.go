package model

import "time"

// FinancialPeriod holds operating financials for one reporting period.
type FinancialPeriod struct {
	Period             string             `json:"period"`
	StartDate          *time.Time         `json:"start_date,omitempty"`
	EndDate            *time.Time         `json:"end_date,omitempty"`
	Revenue            float64            `json:"revenue"`
	Expenses           float64            `json:"expenses"`
	NetOperatingIncome float64            `json:"net_operating_income"`
	LineItems          map[string]float64 `json:"line_items,omitempty"`
}

// CensusPeriod holds occupancy and payer-mix data for one period.
type CensusPeriod struct {
	Period        string         `json:"period"`
	Date          *time.Time     `json:"date,omitempty"`
	UnitsTotal    int            `json:"units_total"`
	UnitsOccupied int            `json:"units_occupied"`
	OccupancyPct  float64        `json:"occupancy_pct"`
	PayerMix      map[string]int `json:"payer_mix,omitempty"`
}

// RateRecord holds one posted rate for a unit or care type.
type RateRecord struct {
	UnitType      string     `json:"unit_type"`
	CareLevel     string     `json:"care_level,omitempty"`
	Rate          float64    `json:"rate"`
	EffectiveDate *time.Time `json:"effective_date,omitempty"`
}

// SheetType classifies what kind of data a detected sheet carries.
type SheetType string

const (
	SheetFinancials SheetType = "financials"
	SheetCensus     SheetType = "census"
	SheetRates      SheetType = "rates"
	SheetUnknown    SheetType = "unknown"
)

// Sheet describes one sheet (or logical section) detected in a document.
type Sheet struct {
	Name     string    `json:"name"`
	Type     SheetType `json:"type"`
	RowCount int       `json:"row_count"`
	Hints    []string  `json:"hints,omitempty"`
}

// ExtractionResult is the structured output for one document. It is owned by
// the producing session and read-only once appended to the session's results.
type ExtractionResult struct {
	DocumentID    string            `json:"document_id"`
	Filename      string            `json:"filename"`
	FinancialData []FinancialPeriod `json:"financial_data,omitempty"`
	CensusData    []CensusPeriod    `json:"census_data,omitempty"`
	RateData      []RateRecord      `json:"rate_data,omitempty"`
	Sheets        []Sheet           `json:"sheets,omitempty"`
	Confidence    float64           `json:"confidence"`
	Warnings      []string          `json:"warnings,omitempty"`
	Err           string            `json:"error,omitempty"`
	Duration      int64             `json:"duration_ms"`
}

// Failed reports whether the document failed entirely (as opposed to
// degrading into warnings with reduced confidence).
func (r *ExtractionResult) Failed() bool {
	return r.Err != ""
}
