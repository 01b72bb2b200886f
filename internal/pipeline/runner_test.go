package pipeline

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/greamown/stockCheck/internal/domain"
	"github.com/greamown/stockCheck/internal/sources"
	"github.com/greamown/stockCheck/internal/storage"
)

type fakeAdapter struct {
	market     domain.Market
	prices     func(symbol string) ([]domain.RawPriceRow, error)
	news       func(symbol string) ([]domain.NewsItem, error)
	financials func(symbol string) (*domain.FinancialRecord, error)
	sentiment  func(symbol string) ([]domain.SentimentItem, error)

	inFlight int64
	maxSeen  int64
}

func (f *fakeAdapter) Market() domain.Market { return f.market }

func (f *fakeAdapter) FetchPrices(_ context.Context, meta domain.SymbolMeta, _, _ time.Time) ([]domain.RawPriceRow, error) {
	cur := atomic.AddInt64(&f.inFlight, 1)
	defer atomic.AddInt64(&f.inFlight, -1)
	for {
		max := atomic.LoadInt64(&f.maxSeen)
		if cur <= max || atomic.CompareAndSwapInt64(&f.maxSeen, max, cur) {
			break
		}
	}
	time.Sleep(5 * time.Millisecond)
	if f.prices == nil {
		return recentRows(3), nil
	}
	return f.prices(meta.Symbol)
}

func (f *fakeAdapter) FetchNews(_ context.Context, meta domain.SymbolMeta) ([]domain.NewsItem, error) {
	if f.news == nil {
		return []domain.NewsItem{{Market: f.market, Symbol: meta.Symbol, Title: "t", URL: "https://example.com/" + meta.Symbol, Source: "fake"}}, nil
	}
	return f.news(meta.Symbol)
}

func (f *fakeAdapter) FetchFinancials(_ context.Context, meta domain.SymbolMeta, _, _ time.Time) (*domain.FinancialRecord, error) {
	if f.financials == nil {
		return &domain.FinancialRecord{
			Market: f.market, Symbol: meta.Symbol, Period: "2024-12-31",
			ReportType: "fake", RawPayload: []byte(`{}`), Source: "fake",
		}, nil
	}
	return f.financials(meta.Symbol)
}

func (f *fakeAdapter) FetchSentiment(_ context.Context, meta domain.SymbolMeta) ([]domain.SentimentItem, error) {
	if f.sentiment == nil {
		return []domain.SentimentItem{{Market: f.market, Symbol: meta.Symbol, Text: "x", URL: "https://example.com/s/" + meta.Symbol, Source: "fake"}}, nil
	}
	return f.sentiment(meta.Symbol)
}

// recentRows builds n consecutive daily rows ending today, so they always
// land inside the runner's trailing window.
func recentRows(n int) []domain.RawPriceRow {
	rows := make([]domain.RawPriceRow, n)
	for i := range rows {
		day := time.Now().UTC().AddDate(0, 0, i-n+1)
		rows[i] = domain.RawPriceRow{
			Date:   day.Format("2006-01-02"),
			Open:   "10",
			High:   "11",
			Low:    "9",
			Close:  fmt.Sprintf("%d", 10+i),
			Volume: "1000",
			Source: "fake",
		}
	}
	return rows
}

type fakeStore struct {
	mu      sync.Mutex
	saved   []storage.SymbolData
	pingErr error
	saveErr func(symbol string) error
}

func (s *fakeStore) Ping(context.Context) error { return s.pingErr }

func (s *fakeStore) SaveSymbolData(data storage.SymbolData) error {
	if s.saveErr != nil {
		if err := s.saveErr(data.Symbol); err != nil {
			return err
		}
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.saved = append(s.saved, data)
	return nil
}

func (s *fakeStore) savedSymbols() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, 0, len(s.saved))
	for _, d := range s.saved {
		out = append(out, d.Symbol)
	}
	return out
}

func newTestRunner(adapter *fakeAdapter, store *fakeStore, workers int) *Runner {
	return New(store,
		map[domain.Market]sources.Adapter{adapter.market: adapter},
		Config{Workers: workers, Days: 200},
		zerolog.Nop())
}

func metas(symbols ...string) []domain.SymbolMeta {
	out := make([]domain.SymbolMeta, len(symbols))
	for i, s := range symbols {
		out[i] = domain.SymbolMeta{Symbol: s}
	}
	return out
}

func TestRunAllSymbolsSucceed(t *testing.T) {
	adapter := &fakeAdapter{market: domain.MarketUS}
	store := &fakeStore{}

	report, err := newTestRunner(adapter, store, 2).Run(context.Background(), domain.MarketUS, metas("AAPL", "MSFT"))
	require.NoError(t, err)

	success, partial, failed := report.Counts()
	assert.Equal(t, 2, success)
	assert.Zero(t, partial)
	assert.Zero(t, failed)
	assert.Len(t, store.savedSymbols(), 2)
	assert.NotEmpty(t, report.RunID)

	for _, res := range report.Symbols {
		require.NotNil(t, res.Snapshot)
		assert.Equal(t, time.Now().UTC().Format("2006-01-02"), res.Snapshot.Date)
		assert.Equal(t, domain.OutcomeSuccess, res.Outcomes[domain.CapPrices].Status)
	}
}

func TestRunIsolatesFailingSymbol(t *testing.T) {
	adapter := &fakeAdapter{
		market: domain.MarketUS,
		prices: func(symbol string) ([]domain.RawPriceRow, error) {
			if symbol == "BAD" {
				return nil, errors.New("provider down")
			}
			return recentRows(3), nil
		},
	}
	store := &fakeStore{}

	report, err := newTestRunner(adapter, store, 3).Run(context.Background(), domain.MarketUS,
		metas("AAPL", "MSFT", "BAD", "NVDA", "AMZN"))
	require.NoError(t, err, "a failed symbol does not fail the run")

	success, _, failed := report.Counts()
	assert.Equal(t, 4, success)
	assert.Equal(t, 1, failed)
	assert.ElementsMatch(t, []string{"AAPL", "MSFT", "NVDA", "AMZN"}, store.savedSymbols())

	bad := report.Symbols[2]
	assert.Equal(t, "BAD", bad.Symbol)
	assert.Equal(t, domain.SymbolFailed, bad.Status)
	assert.Contains(t, bad.Outcomes[domain.CapPrices].Reason, "provider down")
	assert.Nil(t, bad.Snapshot)
}

func TestRunMalformedRowsOnlyFailsSymbol(t *testing.T) {
	adapter := &fakeAdapter{
		market: domain.MarketUS,
		prices: func(symbol string) ([]domain.RawPriceRow, error) {
			if symbol == "JUNK" {
				return []domain.RawPriceRow{{Date: "not-a-date", Close: "??"}}, nil
			}
			return recentRows(3), nil
		},
	}
	store := &fakeStore{}

	report, err := newTestRunner(adapter, store, 2).Run(context.Background(), domain.MarketUS, metas("AAPL", "JUNK"))
	require.NoError(t, err)

	junk := report.Symbols[1]
	assert.Equal(t, domain.SymbolFailed, junk.Status)
	assert.Equal(t, "no bars in window", junk.Outcomes[domain.CapPrices].Reason)
	assert.Equal(t, []string{"AAPL"}, store.savedSymbols())
}

func TestRunBestEffortFailureIsPartial(t *testing.T) {
	adapter := &fakeAdapter{
		market: domain.MarketUS,
		news: func(string) ([]domain.NewsItem, error) {
			return nil, errors.New("feed unreachable")
		},
	}
	store := &fakeStore{}

	report, err := newTestRunner(adapter, store, 1).Run(context.Background(), domain.MarketUS, metas("AAPL"))
	require.NoError(t, err)

	res := report.Symbols[0]
	assert.Equal(t, domain.SymbolPartial, res.Status)
	assert.Equal(t, domain.OutcomeFailed, res.Outcomes[domain.CapNews].Status)
	assert.Equal(t, []domain.Capability{domain.CapNews}, res.Failures())
	assert.Len(t, store.savedSymbols(), 1, "prices still persist when news fails")
	require.NotNil(t, res.Snapshot, "snapshot present on partial symbols")
}

func TestRunEmptyCapabilityIsPartialNotFailed(t *testing.T) {
	adapter := &fakeAdapter{
		market:    domain.MarketUS,
		sentiment: func(string) ([]domain.SentimentItem, error) { return nil, nil },
	}
	store := &fakeStore{}

	report, err := newTestRunner(adapter, store, 1).Run(context.Background(), domain.MarketUS, metas("AAPL"))
	require.NoError(t, err)

	res := report.Symbols[0]
	assert.Equal(t, domain.SymbolPartial, res.Status)
	assert.Equal(t, domain.OutcomeEmpty, res.Outcomes[domain.CapSentiment].Status)
	assert.Empty(t, res.Failures())
}

func TestRunPersistFailureMarksSymbolFailed(t *testing.T) {
	adapter := &fakeAdapter{market: domain.MarketUS}
	store := &fakeStore{saveErr: func(symbol string) error {
		if symbol == "AAPL" {
			return errors.New("disk full")
		}
		return nil
	}}

	report, err := newTestRunner(adapter, store, 1).Run(context.Background(), domain.MarketUS, metas("AAPL", "MSFT"))
	require.NoError(t, err)

	assert.Equal(t, domain.SymbolFailed, report.Symbols[0].Status)
	assert.Contains(t, report.Symbols[0].Outcomes[domain.CapPrices].Reason, "disk full")
	assert.Equal(t, domain.SymbolSuccess, report.Symbols[1].Status)
}

func TestRunAbortsWhenStorageUnreachable(t *testing.T) {
	adapter := &fakeAdapter{market: domain.MarketUS}
	store := &fakeStore{pingErr: errors.New("locked")}

	_, err := newTestRunner(adapter, store, 1).Run(context.Background(), domain.MarketUS, metas("AAPL"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "storage unreachable")
	assert.Empty(t, store.savedSymbols())
}

func TestRunUnknownMarket(t *testing.T) {
	adapter := &fakeAdapter{market: domain.MarketUS}
	_, err := newTestRunner(adapter, &fakeStore{}, 1).Run(context.Background(), domain.MarketTW, metas("2330"))
	require.Error(t, err)
}

func TestRunBoundsConcurrency(t *testing.T) {
	adapter := &fakeAdapter{market: domain.MarketUS}
	store := &fakeStore{}

	_, err := newTestRunner(adapter, store, 2).Run(context.Background(), domain.MarketUS,
		metas("A", "B", "C", "D", "E", "F", "G", "H"))
	require.NoError(t, err)
	assert.LessOrEqual(t, atomic.LoadInt64(&adapter.maxSeen), int64(2))
}

func TestRunComputesIndicatorsAlongsidePrices(t *testing.T) {
	adapter := &fakeAdapter{
		market: domain.MarketUS,
		prices: func(string) ([]domain.RawPriceRow, error) { return recentRows(60), nil },
	}
	store := &fakeStore{}

	_, err := newTestRunner(adapter, store, 1).Run(context.Background(), domain.MarketUS, metas("AAPL"))
	require.NoError(t, err)

	require.Len(t, store.saved, 1)
	data := store.saved[0]
	require.Len(t, data.Indicators, 60)
	last := data.Indicators[len(data.Indicators)-1]
	require.NotNil(t, last.SMA20)
	require.NotNil(t, last.SMA50)
	assert.Equal(t, data.Prices[len(data.Prices)-1].Date, last.Date)
}
