// Package sources contains one adapter per market, each implementing the
// full capability set (prices, news, financials, sentiment). Adapters
// translate provider-shaped responses into the common entity shapes and
// never leak provider field names past this boundary.
package sources

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/greamown/stockCheck/internal/domain"
	"github.com/greamown/stockCheck/internal/fetch"
)

// Result limits mirroring the original operational behaviour: the pipeline
// keeps only the freshest handful of news/sentiment entries per run.
const (
	maxNewsItems      = 10
	maxSentimentItems = 10
)

// Adapter is the per-market capability set. A nil-slice, nil-error return
// is an explicit "empty" result: the source had nothing (or is not
// configured) and the run continues.
type Adapter interface {
	Market() domain.Market
	FetchPrices(ctx context.Context, meta domain.SymbolMeta, start, end time.Time) ([]domain.RawPriceRow, error)
	FetchNews(ctx context.Context, meta domain.SymbolMeta) ([]domain.NewsItem, error)
	FetchFinancials(ctx context.Context, meta domain.SymbolMeta, start, end time.Time) (*domain.FinancialRecord, error)
	FetchSentiment(ctx context.Context, meta domain.SymbolMeta) ([]domain.SentimentItem, error)
}

// Config carries the credentials and shared clients adapters need.
type Config struct {
	Client       *fetch.Client
	FinMindToken string
	Log          zerolog.Logger
}

// ForMarket returns the adapter for a market. The market set is closed:
// an unknown market is a programming error surfaced at wiring time.
func ForMarket(market domain.Market, cfg Config) (Adapter, error) {
	switch market {
	case domain.MarketUS:
		return NewUSAdapter(cfg), nil
	case domain.MarketTW:
		return NewTWAdapter(cfg), nil
	default:
		return nil, fmt.Errorf("no adapter for market %q", market)
	}
}

func truncateNews(items []domain.NewsItem) []domain.NewsItem {
	if len(items) > maxNewsItems {
		return items[:maxNewsItems]
	}
	return items
}

func truncateSentiment(items []domain.SentimentItem) []domain.SentimentItem {
	if len(items) > maxSentimentItems {
		return items[:maxSentimentItems]
	}
	return items
}
