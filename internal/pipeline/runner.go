// Package pipeline orchestrates one end-to-end pass: fan out over the
// watchlist with bounded concurrency, fetch-normalize-compute-persist per
// symbol, and fold the per-symbol outcomes into a run report.
package pipeline

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/greamown/stockCheck/internal/domain"
	"github.com/greamown/stockCheck/internal/indicators"
	"github.com/greamown/stockCheck/internal/normalize"
	"github.com/greamown/stockCheck/internal/sources"
	"github.com/greamown/stockCheck/internal/storage"
)

const defaultWorkers = 4

// Store is the slice of the persistence layer the runner needs.
type Store interface {
	Ping(ctx context.Context) error
	SaveSymbolData(data storage.SymbolData) error
}

// Config tunes one runner instance.
type Config struct {
	Workers int // concurrent symbols, minimum 1
	Days    int // trailing calendar window handed to adapters
}

// Runner executes pipeline passes. Symbols never share mutable state, so
// one failing symbol cannot affect another; the shared fetch client keeps
// the per-source rate guarantees global across workers.
type Runner struct {
	store    Store
	adapters map[domain.Market]sources.Adapter
	cfg      Config
	log      zerolog.Logger
}

func New(store Store, adapters map[domain.Market]sources.Adapter, cfg Config, log zerolog.Logger) *Runner {
	if cfg.Workers <= 0 {
		cfg.Workers = defaultWorkers
	}
	return &Runner{
		store:    store,
		adapters: adapters,
		cfg:      cfg,
		log:      log.With().Str("component", "pipeline").Logger(),
	}
}

// Run processes every watchlist symbol for one market and returns the run
// report. It fails fast when storage is unreachable rather than fetch
// data it cannot persist.
func (r *Runner) Run(ctx context.Context, market domain.Market, symbols []domain.SymbolMeta) (domain.RunReport, error) {
	adapter, ok := r.adapters[market]
	if !ok {
		return domain.RunReport{}, fmt.Errorf("run: no adapter registered for market %q", market)
	}
	if err := r.store.Ping(ctx); err != nil {
		return domain.RunReport{}, fmt.Errorf("run: storage unreachable: %w", err)
	}

	startedAt := time.Now().UTC()
	end := startedAt
	start := end.AddDate(0, 0, -r.cfg.Days)
	report := domain.RunReport{
		RunID:     uuid.NewString(),
		Market:    market,
		StartDate: start.Format("2006-01-02"),
		EndDate:   end.Format("2006-01-02"),
		StartedAt: startedAt,
		Symbols:   make([]domain.SymbolResult, len(symbols)),
	}

	r.log.Info().
		Str("run_id", report.RunID).
		Str("market", string(market)).
		Int("symbols", len(symbols)).
		Int("workers", r.cfg.Workers).
		Str("window", report.StartDate+".."+report.EndDate).
		Msg("run started")

	sem := make(chan struct{}, r.cfg.Workers)
	var wg sync.WaitGroup
	for i, meta := range symbols {
		wg.Add(1)
		go func(i int, meta domain.SymbolMeta) {
			defer wg.Done()
			sem <- struct{}{}
			defer func() { <-sem }()
			report.Symbols[i] = r.processSymbol(ctx, adapter, meta, start, end)
		}(i, meta)
	}
	wg.Wait()

	report.Duration = time.Since(startedAt)
	success, partial, failed := report.Counts()
	r.log.Info().
		Str("run_id", report.RunID).
		Int("success", success).
		Int("partial", partial).
		Int("failed", failed).
		Dur("duration", report.Duration).
		Msg("run finished")
	return report, nil
}

// processSymbol runs the fetch-normalize-compute-persist chain for one
// symbol. Prices are mandatory: without them nothing is persisted and the
// symbol fails. The remaining capabilities are best effort.
func (r *Runner) processSymbol(ctx context.Context, adapter sources.Adapter, meta domain.SymbolMeta, start, end time.Time) domain.SymbolResult {
	market := adapter.Market()
	result := domain.SymbolResult{
		Market:   market,
		Symbol:   meta.Symbol,
		Outcomes: make(map[domain.Capability]domain.SourceOutcome, len(domain.Capabilities)),
	}
	log := r.log.With().Str("market", string(market)).Str("symbol", meta.Symbol).Logger()

	bars, outcome := r.fetchPrices(ctx, adapter, meta, start, end)
	result.Outcomes[domain.CapPrices] = outcome
	if outcome.Status != domain.OutcomeSuccess {
		result.Status = domain.SymbolFailed
		log.Error().Str("reason", outcome.Reason).Msg("price fetch failed, symbol skipped")
		return result
	}

	data := storage.SymbolData{
		Market:     market,
		Symbol:     meta.Symbol,
		Prices:     bars,
		Indicators: indicators.Compute(bars),
	}

	newsOutcome := fetchCapability(ctx, func() (int, string, error) {
		items, err := adapter.FetchNews(ctx, meta)
		data.News = items
		return len(items), itemsSource(items), err
	})
	result.Outcomes[domain.CapNews] = newsOutcome

	finOutcome := fetchCapability(ctx, func() (int, string, error) {
		record, err := adapter.FetchFinancials(ctx, meta, start, end)
		if record == nil {
			return 0, "", err
		}
		data.Financial = record
		return 1, record.Source, err
	})
	result.Outcomes[domain.CapFinancials] = finOutcome

	sentOutcome := fetchCapability(ctx, func() (int, string, error) {
		items, err := adapter.FetchSentiment(ctx, meta)
		data.Sentiment = items
		count := len(items)
		source := ""
		if count > 0 {
			source = items[0].Source
		}
		return count, source, err
	})
	result.Outcomes[domain.CapSentiment] = sentOutcome

	if err := r.store.SaveSymbolData(data); err != nil {
		result.Status = domain.SymbolFailed
		result.Outcomes[domain.CapPrices] = domain.SourceOutcome{
			Status: domain.OutcomeFailed,
			Source: outcome.Source,
			Reason: fmt.Sprintf("persist: %v", err),
		}
		log.Error().Err(err).Msg("persist failed")
		return result
	}

	result.Snapshot = snapshotOf(bars, data.Indicators)
	result.Status = symbolStatus(result.Outcomes)
	log.Info().
		Str("status", string(result.Status)).
		Int("bars", len(bars)).
		Int("news", len(data.News)).
		Int("sentiment", len(data.Sentiment)).
		Msg("symbol done")
	return result
}

func (r *Runner) fetchPrices(ctx context.Context, adapter sources.Adapter, meta domain.SymbolMeta, start, end time.Time) ([]domain.PriceBar, domain.SourceOutcome) {
	raw, err := adapter.FetchPrices(ctx, meta, start, end)
	if err != nil {
		return nil, domain.SourceOutcome{Status: domain.OutcomeFailed, Reason: err.Error()}
	}
	bars := normalize.Prices(adapter.Market(), meta.Symbol, raw)
	bars = normalize.FilterWindow(bars, start.Format("2006-01-02"), end.Format("2006-01-02"))
	if len(bars) == 0 {
		return nil, domain.SourceOutcome{Status: domain.OutcomeFailed, Reason: "no bars in window"}
	}
	return bars, domain.SourceOutcome{
		Status: domain.OutcomeSuccess,
		Source: bars[len(bars)-1].Source,
		Count:  len(bars),
	}
}

// fetchCapability wraps a best-effort fetch into an outcome. A fetch that
// returns nothing is "empty", not a failure.
func fetchCapability(ctx context.Context, fn func() (int, string, error)) domain.SourceOutcome {
	if err := ctx.Err(); err != nil {
		return domain.SourceOutcome{Status: domain.OutcomeFailed, Reason: err.Error()}
	}
	count, source, err := fn()
	if err != nil {
		return domain.SourceOutcome{Status: domain.OutcomeFailed, Source: source, Reason: err.Error()}
	}
	if count == 0 {
		return domain.SourceOutcome{Status: domain.OutcomeEmpty, Source: source}
	}
	return domain.SourceOutcome{Status: domain.OutcomeSuccess, Source: source, Count: count}
}

func itemsSource(items []domain.NewsItem) string {
	if len(items) == 0 {
		return ""
	}
	return items[0].Source
}

func snapshotOf(bars []domain.PriceBar, rows []domain.IndicatorRow) *domain.Snapshot {
	if len(bars) == 0 {
		return nil
	}
	last := bars[len(bars)-1]
	snap := &domain.Snapshot{Date: last.Date, Close: last.Close}
	if len(rows) > 0 {
		row := rows[len(rows)-1]
		snap.Indicators = &row
	}
	return snap
}

func symbolStatus(outcomes map[domain.Capability]domain.SourceOutcome) domain.SymbolStatus {
	for _, cap := range domain.Capabilities {
		if out, ok := outcomes[cap]; ok && out.Status != domain.OutcomeSuccess {
			return domain.SymbolPartial
		}
	}
	return domain.SymbolSuccess
}
