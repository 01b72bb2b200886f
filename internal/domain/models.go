// Package domain holds the entities shared across the pipeline: price bars,
// derived indicator rows, news/financial/sentiment records and per-run results.
// The package is pure data - no I/O and no infrastructure dependencies.
package domain

import "time"

// Market identifies which exchange universe a symbol belongs to.
// It is a closed set: adding a market means adding a constant here and an
// adapter for it, not editing call sites.
type Market string

const (
	MarketUS Market = "us"
	MarketTW Market = "tw"
)

// Valid reports whether the market is one of the known variants.
func (m Market) Valid() bool {
	return m == MarketUS || m == MarketTW
}

// RawPriceRow is a provider-shaped daily price row before normalization.
// All value fields are kept as strings because providers disagree about
// date formats and numeric encodings (TWSE uses comma-grouped numbers and
// ROC-era dates). The normalizer owns the coercion rules.
type RawPriceRow struct {
	Date   string
	Open   string
	High   string
	Low    string
	Close  string
	Volume string
	Source string
}

// PriceBar is one day's normalized OHLCV record for a symbol.
// Date is an ISO 8601 calendar date, unique per (market, symbol).
type PriceBar struct {
	Market Market
	Symbol string
	Date   string
	Open   float64
	High   float64
	Low    float64
	Close  float64
	Volume float64
	Source string
}

// IndicatorRow holds the derived technical indicators for one date.
// Nil means the indicator is undefined at that date (warm-up period).
// Rows are always recomputed from the full PriceBar series and overwritten,
// never mutated independently.
type IndicatorRow struct {
	Market     Market
	Symbol     string
	Date       string
	SMA20      *float64
	SMA50      *float64
	EMA12      *float64
	EMA26      *float64
	RSI14      *float64
	MACD       *float64
	MACDSignal *float64
	MACDHist   *float64
	BBUpper    *float64
	BBMid      *float64
	BBLower    *float64
}

// NewsItem is one news article referencing a symbol.
// (symbol, url) is the dedup key: re-fetching the same article must not
// create a second row.
type NewsItem struct {
	Market      Market
	Symbol      string
	Title       string
	URL         string
	PublishedAt string
	Source      string
}

// FinancialRecord keeps a provider's financial-statement response verbatim.
// RawPayload is opaque JSON retained so parsed fields can be re-derived
// later without re-fetching, even across provider schema drift.
type FinancialRecord struct {
	Market     Market
	Symbol     string
	Period     string
	ReportType string
	RawPayload []byte
	Source     string
	FetchedAt  time.Time
}

// SentimentItem is one social post or forum thread referencing a symbol.
type SentimentItem struct {
	Market     Market
	Symbol     string
	Source     string
	Text       string
	URL        string
	Score      float64
	CapturedAt string
}

// Capability names one of the data-fetch operations an adapter implements.
type Capability string

const (
	CapPrices     Capability = "prices"
	CapNews       Capability = "news"
	CapFinancials Capability = "financials"
	CapSentiment  Capability = "sentiment"
)

// Capabilities lists every capability in report order.
var Capabilities = []Capability{CapPrices, CapNews, CapFinancials, CapSentiment}

// OutcomeStatus classifies how a single capability fetch went.
type OutcomeStatus string

const (
	OutcomeSuccess OutcomeStatus = "success"
	OutcomeEmpty   OutcomeStatus = "empty"
	OutcomeFailed  OutcomeStatus = "failed"
)

// SourceOutcome records the result of one capability fetch for one symbol.
type SourceOutcome struct {
	Status OutcomeStatus
	Source string // provider that produced the data, if any
	Count  int
	Reason string // failure reason, empty on success
}

// SymbolStatus summarizes a whole symbol's pass.
type SymbolStatus string

const (
	// SymbolSuccess - every capability returned data.
	SymbolSuccess SymbolStatus = "success"
	// SymbolPartial - prices persisted but some best-effort source was
	// empty or failed.
	SymbolPartial SymbolStatus = "partial"
	// SymbolFailed - the mandatory price fetch failed; nothing persisted.
	SymbolFailed SymbolStatus = "failed"
)

// Snapshot is the freshest persisted state for a symbol after a run,
// handed to the summarization stage.
type Snapshot struct {
	Date       string
	Close      float64
	Indicators *IndicatorRow
}

// SymbolResult is the per-symbol outcome of one orchestrator pass.
type SymbolResult struct {
	Market   Market
	Symbol   string
	Status   SymbolStatus
	Outcomes map[Capability]SourceOutcome
	Snapshot *Snapshot
}

// Failures returns the capabilities that failed, in report order.
func (r SymbolResult) Failures() []Capability {
	var failed []Capability
	for _, cap := range Capabilities {
		if out, ok := r.Outcomes[cap]; ok && out.Status == OutcomeFailed {
			failed = append(failed, cap)
		}
	}
	return failed
}

// RunReport aggregates a full orchestrator pass. It is ephemeral: produced
// once per run and consumed by the summarization/notification stage, never
// persisted as a first-class record.
type RunReport struct {
	RunID     string
	Market    Market
	StartDate string
	EndDate   string
	StartedAt time.Time
	Duration  time.Duration
	Symbols   []SymbolResult
}

// Counts returns how many symbols ended in each status.
func (r RunReport) Counts() (success, partial, failed int) {
	for _, s := range r.Symbols {
		switch s.Status {
		case SymbolSuccess:
			success++
		case SymbolPartial:
			partial++
		case SymbolFailed:
			failed++
		}
	}
	return success, partial, failed
}

// SymbolMeta carries optional per-symbol lookup hints from the watchlist:
// the external identifier for financial-statement lookups and the search
// query used for news/sentiment.
type SymbolMeta struct {
	Symbol    string `yaml:"symbol"`
	CIK       string `yaml:"cik,omitempty"`
	FinMindID string `yaml:"finmind_id,omitempty"`
	Query     string `yaml:"query,omitempty"`
}

// DataID returns the FinMind stock identifier, which for TW listings is
// the numeric ticker itself unless overridden.
func (m SymbolMeta) DataID() string {
	if m.FinMindID != "" {
		return m.FinMindID
	}
	return m.Symbol
}

// SearchQuery returns the news/sentiment query, defaulting to
// "<symbol> stock" when none is configured.
func (m SymbolMeta) SearchQuery() string {
	if m.Query != "" {
		return m.Query
	}
	return m.Symbol + " stock"
}
