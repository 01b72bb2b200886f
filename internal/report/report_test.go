package report

import (
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/greamown/stockCheck/internal/domain"
	"github.com/greamown/stockCheck/internal/storage"
)

func setupReporter(t *testing.T) (*Reporter, *storage.Repository) {
	t.Helper()
	db, err := storage.Open(storage.Config{Path: "file:" + t.Name() + "?mode=memory&cache=shared"})
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	require.NoError(t, db.Migrate())
	repo := storage.NewRepository(db.Conn(), zerolog.Nop())
	return NewReporter(repo, zerolog.Nop()), repo
}

func seedPrices(t *testing.T, repo *storage.Repository, symbol string, bars []domain.PriceBar) {
	t.Helper()
	require.NoError(t, repo.SaveSymbolData(storage.SymbolData{
		Market: domain.MarketUS,
		Symbol: symbol,
		Prices: bars,
	}))
}

func bar(symbol, date string, close float64) domain.PriceBar {
	return domain.PriceBar{
		Market: domain.MarketUS, Symbol: symbol, Date: date,
		Open: close, High: close, Low: close, Close: close,
		Volume: 1000, Source: "test",
	}
}

func runReport(symbols ...domain.SymbolResult) domain.RunReport {
	return domain.RunReport{
		RunID:     "run-1",
		Market:    domain.MarketUS,
		StartDate: "2024-01-01",
		EndDate:   "2024-07-01",
		StartedAt: time.Now().UTC(),
		Symbols:   symbols,
	}
}

func symbolResult(symbol string, close float64, date string) domain.SymbolResult {
	rsi := 61.2
	return domain.SymbolResult{
		Market: domain.MarketUS,
		Symbol: symbol,
		Status: domain.SymbolSuccess,
		Outcomes: map[domain.Capability]domain.SourceOutcome{
			domain.CapPrices: {Status: domain.OutcomeSuccess, Source: "test", Count: 1},
		},
		Snapshot: &domain.Snapshot{
			Date:  date,
			Close: close,
			Indicators: &domain.IndicatorRow{
				Market: domain.MarketUS, Symbol: symbol, Date: date, RSI14: &rsi,
			},
		},
	}
}

func TestRecordVerdictsPersistsReports(t *testing.T) {
	reporter, repo := setupReporter(t)

	run := runReport(symbolResult("AAPL", 186.0, "2024-07-01"))
	err := reporter.RecordVerdicts(run, map[string]Verdict{
		"AAPL": {Summary: "momentum holding", Prediction: domain.DirectionUp},
	})
	require.NoError(t, err)

	rep, err := repo.ReportOnOrBefore(domain.MarketUS, "AAPL", "2024-07-01")
	require.NoError(t, err)
	require.NotNil(t, rep)
	assert.Equal(t, 186.0, rep.Price)
	assert.Equal(t, domain.DirectionUp, rep.Prediction)
	assert.Equal(t, "momentum holding", rep.Summary)
}

func TestRecordVerdictsSkipsSymbolsWithoutSnapshot(t *testing.T) {
	reporter, repo := setupReporter(t)

	run := runReport(domain.SymbolResult{
		Market: domain.MarketUS, Symbol: "BAD", Status: domain.SymbolFailed,
		Outcomes: map[domain.Capability]domain.SourceOutcome{},
	})
	require.NoError(t, reporter.RecordVerdicts(run, map[string]Verdict{
		"BAD": {Summary: "x", Prediction: domain.DirectionUp},
	}))

	rep, err := repo.ReportOnOrBefore(domain.MarketUS, "BAD", "2999-12-31")
	require.NoError(t, err)
	assert.Nil(t, rep)
}

func TestScorePredictionsHitAndMiss(t *testing.T) {
	reporter, repo := setupReporter(t)

	// Freshest close is today; reports sit beyond the lookback horizon.
	today := time.Now().UTC()
	old := today.AddDate(0, 0, -8).Format("2006-01-02")
	seedPrices(t, repo, "AAPL", []domain.PriceBar{
		bar("AAPL", old, 180),
		bar("AAPL", today.Format("2006-01-02"), 186),
	})
	seedPrices(t, repo, "MSFT", []domain.PriceBar{
		bar("MSFT", old, 420),
		bar("MSFT", today.Format("2006-01-02"), 410),
	})
	require.NoError(t, repo.SaveReport(domain.Report{
		Market: domain.MarketUS, Symbol: "AAPL", ReportDate: old,
		Price: 180, Prediction: domain.DirectionUp, CreatedAt: today,
	}))
	require.NoError(t, repo.SaveReport(domain.Report{
		Market: domain.MarketUS, Symbol: "MSFT", ReportDate: old,
		Price: 420, Prediction: domain.DirectionUp, CreatedAt: today,
	}))

	err := reporter.ScorePredictions(domain.MarketUS, []domain.SymbolMeta{{Symbol: "AAPL"}, {Symbol: "MSFT"}})
	require.NoError(t, err)

	aapl, err := repo.AccuracyHistory(domain.MarketUS, "AAPL", 10)
	require.NoError(t, err)
	require.Len(t, aapl, 1)
	assert.True(t, aapl[0].Hit)
	assert.Equal(t, domain.DirectionUp, aapl[0].ActualDirection)
	assert.Equal(t, 180.0, aapl[0].ReportPrice)
	assert.Equal(t, 186.0, aapl[0].ComparePrice)

	msft, err := repo.AccuracyHistory(domain.MarketUS, "MSFT", 10)
	require.NoError(t, err)
	require.Len(t, msft, 1)
	assert.False(t, msft[0].Hit)
	assert.Equal(t, domain.DirectionDown, msft[0].ActualDirection)
}

func TestScorePredictionsSkipsFreshReports(t *testing.T) {
	reporter, repo := setupReporter(t)

	today := time.Now().UTC().Format("2006-01-02")
	seedPrices(t, repo, "AAPL", []domain.PriceBar{bar("AAPL", today, 186)})
	require.NoError(t, repo.SaveReport(domain.Report{
		Market: domain.MarketUS, Symbol: "AAPL", ReportDate: today,
		Price: 186, Prediction: domain.DirectionUp, CreatedAt: time.Now().UTC(),
	}))

	require.NoError(t, reporter.ScorePredictions(domain.MarketUS, []domain.SymbolMeta{{Symbol: "AAPL"}}))

	history, err := repo.AccuracyHistory(domain.MarketUS, "AAPL", 10)
	require.NoError(t, err)
	assert.Empty(t, history, "a report inside the lookback window is not scored")
}

func TestHitRate(t *testing.T) {
	reporter, repo := setupReporter(t)

	now := time.Now().UTC()
	for i, hit := range []bool{true, true, true, false} {
		require.NoError(t, repo.SaveAccuracy(domain.AccuracyRecord{
			Market: domain.MarketUS, Symbol: "AAPL",
			ReportDate:  now.AddDate(0, 0, -7*(i+1)).Format("2006-01-02"),
			ReportPrice: 100, CompareDate: now.Format("2006-01-02"), ComparePrice: 101,
			Prediction: domain.DirectionUp, ActualDirection: domain.DirectionUp,
			Hit: hit, CreatedAt: now,
		}))
	}

	rate, ok, err := reporter.HitRate(domain.MarketUS, "AAPL")
	require.NoError(t, err)
	require.True(t, ok)
	assert.InDelta(t, 0.75, rate, 1e-9)

	_, ok, err = reporter.HitRate(domain.MarketUS, "MSFT")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestBuildBrief(t *testing.T) {
	reporter, repo := setupReporter(t)

	require.NoError(t, repo.SaveSymbolData(storage.SymbolData{
		Market: domain.MarketUS,
		Symbol: "AAPL",
		Prices: []domain.PriceBar{bar("AAPL", "2024-07-01", 186)},
		News: []domain.NewsItem{{
			Market: domain.MarketUS, Symbol: "AAPL", Title: "Apple ships new thing",
			URL: "https://example.com/a", PublishedAt: "2024-07-01T08:00:00Z", Source: "googlenews",
		}},
	}))

	run := runReport(
		symbolResult("AAPL", 186.0, "2024-07-01"),
		domain.SymbolResult{
			Market: domain.MarketUS, Symbol: "BAD", Status: domain.SymbolFailed,
			Outcomes: map[domain.Capability]domain.SourceOutcome{
				domain.CapPrices: {Status: domain.OutcomeFailed, Reason: "provider down"},
			},
		},
	)
	brief := reporter.BuildBrief(run, map[string]Verdict{
		"AAPL": {Summary: "momentum holding", Prediction: domain.DirectionUp},
	}, nil)

	assert.Contains(t, brief, "Daily market brief - 2024-07-01 (US)")
	assert.Contains(t, brief, "1 ok, 0 partial, 1 failed")
	assert.Contains(t, brief, "AAPL @ 186.00 (2024-07-01)")
	assert.Contains(t, brief, "call: up")
	assert.Contains(t, brief, "RSI14 61.2")
	assert.Contains(t, brief, "momentum holding")
	assert.Contains(t, brief, "- Apple ships new thing")
	assert.Contains(t, brief, "BAD: no data (provider down)")
	assert.NotContains(t, brief, "institutional")
}

func TestBuildBriefRendersInstitutionalFlows(t *testing.T) {
	reporter, _ := setupReporter(t)

	run := runReport(symbolResult("2330", 980.0, "2024-07-01"))
	run.Market = domain.MarketTW
	brief := reporter.BuildBrief(run, nil, map[string]*domain.InstitutionalFlow{
		"2330": {
			Symbol:   "2330",
			Date:     "2024-07-01",
			TotalNet: 1500,
			ByGroup: []domain.InvestorNet{
				{Name: "Foreign_Investor", Net: 2000},
				{Name: "Investment_Trust", Net: -500},
			},
		},
	})

	assert.Contains(t, brief, "institutional 2024-07-01: net +1500")
	assert.Contains(t, brief, "Foreign_Investor +2000")
	assert.Contains(t, brief, "Investment_Trust -500")
}
