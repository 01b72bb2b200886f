package domain

import "time"

// Direction is a predicted or observed price move.
type Direction string

const (
	DirectionUp   Direction = "up"
	DirectionDown Direction = "down"
	DirectionFlat Direction = "flat"
)

// DirectionOf classifies the move from a reference price to a later price.
func DirectionOf(from, to float64) Direction {
	switch {
	case to > from:
		return DirectionUp
	case to < from:
		return DirectionDown
	default:
		return DirectionFlat
	}
}

// Report is one persisted daily verdict for a symbol: the closing price
// it was issued at plus the generated summary and direction call.
type Report struct {
	Market     Market
	Symbol     string
	ReportDate string
	Price      float64
	Summary    string
	Prediction Direction
	CreatedAt  time.Time
}

// InvestorNet is one investor group's net buy/sell balance in shares.
type InvestorNet struct {
	Name string
	Net  float64
}

// InstitutionalFlow aggregates the latest trading day's institutional
// buy/sell activity for a TW symbol, split by investor group. ByGroup
// preserves the provider's row order.
type InstitutionalFlow struct {
	Symbol   string
	Date     string
	TotalNet float64
	ByGroup  []InvestorNet
}

// AccuracyRecord scores one past report against a later observed close.
type AccuracyRecord struct {
	Market          Market
	Symbol          string
	ReportDate      string
	ReportPrice     float64
	CompareDate     string
	ComparePrice    float64
	Prediction      Direction
	ActualDirection Direction
	Hit             bool
	CreatedAt       time.Time
}
