package sources

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"github.com/greamown/stockCheck/internal/domain"
)

// USAdapter serves the US market: stooq prices with a yahoo fallback,
// Google News headlines, SEC company facts, and reddit sentiment backed
// by stocktwits.
type USAdapter struct {
	stooq      *StooqClient
	yahoo      *YahooClient
	news       *GoogleNewsClient
	sec        *SECClient
	reddit     *RedditClient
	stocktwits *StocktwitsClient
	log        zerolog.Logger
}

func NewUSAdapter(cfg Config) *USAdapter {
	return &USAdapter{
		stooq:      NewStooqClient(cfg.Client),
		yahoo:      NewYahooClient(cfg.Client),
		news:       NewGoogleNewsClient(cfg.Client),
		sec:        NewSECClient(cfg.Client),
		reddit:     NewRedditClient(cfg.Client),
		stocktwits: NewStocktwitsClient(cfg.Client),
		log:        cfg.Log.With().Str("component", "sources").Str("market", "us").Logger(),
	}
}

func (a *USAdapter) Market() domain.Market { return domain.MarketUS }

func (a *USAdapter) FetchPrices(ctx context.Context, meta domain.SymbolMeta, start, end time.Time) ([]domain.RawPriceRow, error) {
	rows, err := a.stooq.DailyPrices(ctx, meta.Symbol)
	if err == nil && len(rows) > 0 {
		return rows, nil
	}
	if err != nil {
		a.log.Warn().Err(err).Str("symbol", meta.Symbol).Msg("stooq failed, trying yahoo")
	}
	return a.yahoo.DailyPrices(ctx, meta.Symbol, start, end)
}

func (a *USAdapter) FetchNews(ctx context.Context, meta domain.SymbolMeta) ([]domain.NewsItem, error) {
	items, err := a.news.Search(ctx, domain.MarketUS, meta)
	if err != nil {
		return nil, err
	}
	return truncateNews(items), nil
}

func (a *USAdapter) FetchFinancials(ctx context.Context, meta domain.SymbolMeta, _, _ time.Time) (*domain.FinancialRecord, error) {
	return a.sec.CompanyFacts(ctx, meta)
}

func (a *USAdapter) FetchSentiment(ctx context.Context, meta domain.SymbolMeta) ([]domain.SentimentItem, error) {
	items, err := a.reddit.Search(ctx, meta)
	if err == nil && len(items) > 0 {
		return truncateSentiment(items), nil
	}
	if err != nil {
		a.log.Warn().Err(err).Str("symbol", meta.Symbol).Msg("reddit failed, trying stocktwits")
	}
	items, err = a.stocktwits.Stream(ctx, meta)
	if err != nil {
		return nil, err
	}
	return truncateSentiment(items), nil
}
