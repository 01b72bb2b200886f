package sources

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"github.com/greamown/stockCheck/internal/domain"
)

// TWAdapter serves the Taiwan market: FinMind prices and financials when
// a token is configured, the exchange month endpoints otherwise, plus
// localized Google News and PTT Stock-board sentiment.
type TWAdapter struct {
	finmind  *FinMindClient
	exchange *ExchangeClient
	news     *GoogleNewsClient
	ptt      *PTTClient
	log      zerolog.Logger
}

func NewTWAdapter(cfg Config) *TWAdapter {
	return &TWAdapter{
		finmind:  NewFinMindClient(cfg.Client, cfg.FinMindToken),
		exchange: NewExchangeClient(cfg.Client, cfg.Log),
		news:     NewGoogleNewsClient(cfg.Client),
		ptt:      NewPTTClient(cfg.Client),
		log:      cfg.Log.With().Str("component", "sources").Str("market", "tw").Logger(),
	}
}

func (a *TWAdapter) Market() domain.Market { return domain.MarketTW }

func (a *TWAdapter) FetchPrices(ctx context.Context, meta domain.SymbolMeta, start, end time.Time) ([]domain.RawPriceRow, error) {
	if a.finmind.Enabled() {
		rows, err := a.finmind.DailyPrices(ctx, meta, start, end)
		if err == nil && len(rows) > 0 {
			return rows, nil
		}
		if err != nil {
			a.log.Warn().Err(err).Str("symbol", meta.Symbol).Msg("finmind failed, trying exchange endpoints")
		}
	}
	return a.exchange.DailyPrices(ctx, meta.Symbol, start, end)
}

func (a *TWAdapter) FetchNews(ctx context.Context, meta domain.SymbolMeta) ([]domain.NewsItem, error) {
	items, err := a.news.Search(ctx, domain.MarketTW, meta)
	if err != nil {
		return nil, err
	}
	return truncateNews(items), nil
}

// FetchFinancials is FinMind-only: without a token TW financials are an
// empty capability, not an error.
func (a *TWAdapter) FetchFinancials(ctx context.Context, meta domain.SymbolMeta, start, end time.Time) (*domain.FinancialRecord, error) {
	if !a.finmind.Enabled() {
		return nil, nil
	}
	return a.finmind.FinancialStatements(ctx, meta, start, end)
}

func (a *TWAdapter) FetchSentiment(ctx context.Context, meta domain.SymbolMeta) ([]domain.SentimentItem, error) {
	items, err := a.ptt.BoardThreads(ctx, meta)
	if err != nil {
		return nil, err
	}
	return truncateSentiment(items), nil
}
