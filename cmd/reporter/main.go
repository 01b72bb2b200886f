package main

import (
	"context"
	"flag"
	"fmt"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/greamown/stockCheck/internal/config"
	"github.com/greamown/stockCheck/internal/domain"
	"github.com/greamown/stockCheck/internal/fetch"
	"github.com/greamown/stockCheck/internal/notify"
	"github.com/greamown/stockCheck/internal/report"
	"github.com/greamown/stockCheck/internal/sources"
	"github.com/greamown/stockCheck/internal/storage"
	"github.com/greamown/stockCheck/internal/summarize"
	"github.com/greamown/stockCheck/pkg/logger"
)

const contextItems = 5

func main() {
	var (
		marketsFlag = flag.String("markets", "us,tw", "comma-separated markets to report on")
		dryRun      = flag.Bool("dry-run", false, "print the brief instead of pushing it")
		pretty      = flag.Bool("pretty", false, "human-readable console logs")
	)
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		bootLog := logger.New(logger.Config{})
		bootLog.Fatal().Err(err).Msg("failed to load configuration")
	}

	log := logger.New(logger.Config{Level: cfg.LogLevel, Pretty: *pretty})
	logger.SetGlobalLogger(log)
	log.Info().Msg("starting daily reporter")

	watchlist, err := config.LoadWatchlist(cfg.WatchlistPath)
	if err != nil {
		log.Fatal().Err(err).Str("path", cfg.WatchlistPath).Msg("failed to load watchlist")
	}
	markets, err := parseMarkets(*marketsFlag)
	if err != nil {
		log.Fatal().Err(err).Msg("invalid -markets flag")
	}

	db, err := storage.Open(storage.Config{Path: cfg.DBPath})
	if err != nil {
		log.Fatal().Err(err).Str("path", cfg.DBPath).Msg("failed to open database")
	}
	defer db.Close()
	if err := db.Migrate(); err != nil {
		log.Fatal().Err(err).Msg("failed to run migrations")
	}
	repo := storage.NewRepository(db.Conn(), log)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	summarizer := summarize.New(ctx, summarize.Config{
		GeminiAPIKey:     cfg.GeminiAPIKey,
		GeminiModel:      cfg.GeminiModel,
		OpenRouterAPIKey: cfg.OpenRouterAPIKey,
		OpenRouterModel:  cfg.OpenRouterModel,
	}, log)
	reporter := report.NewReporter(repo, log)
	notifier := notify.NewLineNotifier(cfg.LineToken, cfg.LineUserID, log)

	client := fetch.New(fetch.Config{
		MaxRetries:   cfg.MaxRetries,
		BackoffBase:  cfg.BackoffBase,
		Timeout:      cfg.HTTPTimeout,
		MinInterval:  cfg.MinInterval,
		MinIntervals: cfg.MinIntervals,
		UserAgent:    cfg.UserAgent,
		Jitter:       true,
	}, log)
	finmind := sources.NewFinMindClient(client, cfg.FinMindToken)

	for _, market := range markets {
		if err := reportMarket(ctx, market, watchlist.Symbols(market), repo, reporter, summarizer, notifier, finmind, *dryRun, log); err != nil {
			log.Fatal().Err(err).Str("market", string(market)).Msg("reporting failed")
		}
	}
}

// reportMarket rebuilds per-symbol context from storage, generates the
// verdicts, persists them, scores past predictions and sends the brief.
func reportMarket(
	ctx context.Context,
	market domain.Market,
	symbols []domain.SymbolMeta,
	repo *storage.Repository,
	reporter *report.Reporter,
	summarizer *summarize.Summarizer,
	notifier *notify.LineNotifier,
	finmind *sources.FinMindClient,
	dryRun bool,
	log zerolog.Logger,
) error {
	now := time.Now().UTC()
	run := domain.RunReport{
		RunID:     uuid.NewString(),
		Market:    market,
		EndDate:   now.Format("2006-01-02"),
		StartedAt: now,
	}
	verdicts := make(map[string]report.Verdict, len(symbols))
	flows := make(map[string]*domain.InstitutionalFlow)

	for _, meta := range symbols {
		res := domain.SymbolResult{
			Market:   market,
			Symbol:   meta.Symbol,
			Outcomes: map[domain.Capability]domain.SourceOutcome{},
		}
		snap, err := repo.LatestSnapshot(market, meta.Symbol)
		if err != nil {
			return fmt.Errorf("snapshot %s: %w", meta.Symbol, err)
		}
		if snap == nil {
			res.Status = domain.SymbolFailed
			res.Outcomes[domain.CapPrices] = domain.SourceOutcome{
				Status: domain.OutcomeFailed, Reason: "no persisted prices",
			}
			run.Symbols = append(run.Symbols, res)
			continue
		}
		res.Status = domain.SymbolSuccess
		res.Snapshot = snap
		res.Outcomes[domain.CapPrices] = domain.SourceOutcome{Status: domain.OutcomeSuccess, Count: 1}

		news, err := repo.RecentNews(market, meta.Symbol, contextItems)
		if err != nil {
			return fmt.Errorf("news %s: %w", meta.Symbol, err)
		}
		sentiment, err := repo.RecentSentiment(market, meta.Symbol, contextItems)
		if err != nil {
			return fmt.Errorf("sentiment %s: %w", meta.Symbol, err)
		}

		// Institutional buy/sell is TW-only and best effort: a FinMind
		// outage must not block the brief.
		if market == domain.MarketTW && finmind.Enabled() {
			flow, err := finmind.InstitutionalFlows(ctx, meta, now)
			if err != nil {
				log.Warn().Err(err).Str("symbol", meta.Symbol).Msg("institutional fetch failed")
			} else if flow != nil {
				flows[meta.Symbol] = flow
			}
		}

		out := summarizer.Summarize(ctx, summarize.Input{
			Market:    market,
			Symbol:    meta.Symbol,
			Snapshot:  snap,
			News:      news,
			Sentiment: sentiment,
		})
		log.Info().
			Str("symbol", meta.Symbol).
			Str("provider", out.Provider).
			Str("prediction", string(out.Prediction)).
			Msg("verdict generated")
		verdicts[meta.Symbol] = report.Verdict{Summary: out.Summary, Prediction: out.Prediction}
		run.Symbols = append(run.Symbols, res)
	}

	if err := reporter.ScorePredictions(market, symbols); err != nil {
		return fmt.Errorf("score predictions: %w", err)
	}
	if err := reporter.RecordVerdicts(run, verdicts); err != nil {
		return fmt.Errorf("record verdicts: %w", err)
	}

	brief := reporter.BuildBrief(run, verdicts, flows)
	if dryRun {
		fmt.Println(brief)
		return nil
	}
	return notifier.Push(ctx, brief)
}

func parseMarkets(raw string) ([]domain.Market, error) {
	var out []domain.Market
	for _, part := range strings.Split(raw, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		market := domain.Market(part)
		if !market.Valid() {
			return nil, fmt.Errorf("unknown market %q", part)
		}
		out = append(out, market)
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("no markets selected")
	}
	return out, nil
}
