package main

import (
	"context"
	"flag"
	"fmt"
	"os/signal"
	"strings"
	"syscall"

	"github.com/greamown/stockCheck/internal/config"
	"github.com/greamown/stockCheck/internal/domain"
	"github.com/greamown/stockCheck/internal/fetch"
	"github.com/greamown/stockCheck/internal/pipeline"
	"github.com/greamown/stockCheck/internal/scheduler"
	"github.com/greamown/stockCheck/internal/sources"
	"github.com/greamown/stockCheck/internal/storage"
	"github.com/greamown/stockCheck/pkg/logger"
)

func main() {
	var (
		marketsFlag = flag.String("markets", "us,tw", "comma-separated markets to process")
		cronSpec    = flag.String("cron", "", "cron schedule; empty runs one pass and exits")
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
	log.Info().Msg("starting market data pipeline")

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

	client := fetch.New(fetch.Config{
		MaxRetries:   cfg.MaxRetries,
		BackoffBase:  cfg.BackoffBase,
		Timeout:      cfg.HTTPTimeout,
		MinInterval:  cfg.MinInterval,
		MinIntervals: cfg.MinIntervals,
		UserAgent:    cfg.UserAgent,
		Jitter:       true,
	}, log)

	adapters := make(map[domain.Market]sources.Adapter, len(markets))
	for _, market := range markets {
		adapter, err := sources.ForMarket(market, sources.Config{
			Client:       client,
			FinMindToken: cfg.FinMindToken,
			Log:          log,
		})
		if err != nil {
			log.Fatal().Err(err).Msg("failed to build source adapter")
		}
		adapters[market] = adapter
	}

	repo := storage.NewRepository(db.Conn(), log)
	runner := pipeline.New(repo, adapters, pipeline.Config{
		Workers: cfg.MaxWorkers,
		Days:    cfg.Days,
	}, log)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	runAll := func(ctx context.Context) error {
		for _, market := range markets {
			if _, err := runner.Run(ctx, market, watchlist.Symbols(market)); err != nil {
				return err
			}
		}
		return nil
	}

	if *cronSpec == "" {
		if err := runAll(ctx); err != nil {
			log.Fatal().Err(err).Msg("pipeline pass failed")
		}
		return
	}

	sched := scheduler.New(ctx, log)
	if err := sched.AddJob(*cronSpec, scheduler.JobFunc{JobName: "pipeline", Fn: runAll}); err != nil {
		log.Fatal().Err(err).Str("cron", *cronSpec).Msg("failed to register schedule")
	}
	sched.Start()
	defer sched.Stop()

	<-ctx.Done()
	log.Info().Msg("shutting down")
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
