package storage

import (
	"fmt"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/greamown/stockCheck/internal/domain"
)

func setupTestDB(t *testing.T) *DB {
	t.Helper()
	db, err := Open(Config{Path: "file:" + t.Name() + "?mode=memory&cache=shared"})
	require.NoError(t, err)
	require.NoError(t, db.Migrate())
	t.Cleanup(func() { db.Close() })
	return db
}

func testBars(n int) []domain.PriceBar {
	bars := make([]domain.PriceBar, n)
	for i := range bars {
		bars[i] = domain.PriceBar{
			Market: domain.MarketUS,
			Symbol: "AAPL",
			Date:   fmt.Sprintf("2024-01-%02d", i+1),
			Open:   100 + float64(i),
			High:   101 + float64(i),
			Low:    99 + float64(i),
			Close:  100.5 + float64(i),
			Volume: 1000,
			Source: "stooq",
		}
	}
	return bars
}

func dumpTable(t *testing.T, db *DB, table string) []string {
	t.Helper()
	rows, err := db.Conn().Query("SELECT * FROM " + table + " ORDER BY 1, 2, 3")
	require.NoError(t, err)
	defer rows.Close()

	cols, err := rows.Columns()
	require.NoError(t, err)

	var dump []string
	for rows.Next() {
		values := make([]any, len(cols))
		ptrs := make([]any, len(cols))
		for i := range values {
			ptrs[i] = &values[i]
		}
		require.NoError(t, rows.Scan(ptrs...))
		dump = append(dump, fmt.Sprint(values...))
	}
	return dump
}

func TestSaveSymbolDataIdempotent(t *testing.T) {
	db := setupTestDB(t)
	repo := NewRepository(db.Conn(), zerolog.Nop())

	v := 1.5
	data := SymbolData{
		Market: domain.MarketUS,
		Symbol: "AAPL",
		Prices: testBars(5),
		Indicators: []domain.IndicatorRow{
			{Market: domain.MarketUS, Symbol: "AAPL", Date: "2024-01-05", SMA20: &v},
		},
	}

	require.NoError(t, repo.SaveSymbolData(data))
	first := dumpTable(t, db, "price_daily")
	firstInd := dumpTable(t, db, "indicators_daily")

	// Replaying the identical run must leave the rows bit-identical.
	require.NoError(t, repo.SaveSymbolData(data))
	assert.Equal(t, first, dumpTable(t, db, "price_daily"))
	assert.Equal(t, firstInd, dumpTable(t, db, "indicators_daily"))
	assert.Len(t, first, 5)
}

func TestUpsertPriceLastWriteWins(t *testing.T) {
	db := setupTestDB(t)
	repo := NewRepository(db.Conn(), zerolog.Nop())

	bars := testBars(1)
	require.NoError(t, repo.SaveSymbolData(SymbolData{Market: domain.MarketUS, Symbol: "AAPL", Prices: bars}))

	bars[0].Close = 222.0
	require.NoError(t, repo.SaveSymbolData(SymbolData{Market: domain.MarketUS, Symbol: "AAPL", Prices: bars}))

	var closePx float64
	var count int
	require.NoError(t, db.Conn().QueryRow(
		"SELECT close FROM price_daily WHERE symbol = 'AAPL' AND date = '2024-01-01'").Scan(&closePx))
	require.NoError(t, db.Conn().QueryRow("SELECT COUNT(*) FROM price_daily").Scan(&count))
	assert.Equal(t, 222.0, closePx)
	assert.Equal(t, 1, count)
}

func TestInsertNewsDeduplicatesByURL(t *testing.T) {
	db := setupTestDB(t)
	repo := NewRepository(db.Conn(), zerolog.Nop())

	news := []domain.NewsItem{
		{Market: domain.MarketUS, Symbol: "AAPL", Title: "first", URL: "https://example.com/a", Source: "google_news"},
	}
	require.NoError(t, repo.SaveSymbolData(SymbolData{Market: domain.MarketUS, Symbol: "AAPL", News: news}))

	// Same URL with a changed title must not duplicate or overwrite.
	news[0].Title = "retitled"
	require.NoError(t, repo.SaveSymbolData(SymbolData{Market: domain.MarketUS, Symbol: "AAPL", News: news}))

	var count int
	var title string
	require.NoError(t, db.Conn().QueryRow("SELECT COUNT(*) FROM news_items").Scan(&count))
	require.NoError(t, db.Conn().QueryRow("SELECT title FROM news_items").Scan(&title))
	assert.Equal(t, 1, count)
	assert.Equal(t, "first", title)
}

func TestNewsWithoutURLSkipped(t *testing.T) {
	db := setupTestDB(t)
	repo := NewRepository(db.Conn(), zerolog.Nop())

	news := []domain.NewsItem{{Market: domain.MarketUS, Symbol: "AAPL", Title: "no link"}}
	require.NoError(t, repo.SaveSymbolData(SymbolData{Market: domain.MarketUS, Symbol: "AAPL", News: news}))

	var count int
	require.NoError(t, db.Conn().QueryRow("SELECT COUNT(*) FROM news_items").Scan(&count))
	assert.Zero(t, count)
}

func TestFinancialRefetchIdenticalPayloadKeepsFetchedAt(t *testing.T) {
	db := setupTestDB(t)
	repo := NewRepository(db.Conn(), zerolog.Nop())

	record := &domain.FinancialRecord{
		Market: domain.MarketUS, Symbol: "AAPL",
		Period: "2023-12-31", ReportType: "companyfacts",
		RawPayload: []byte(`{"facts":{}}`), Source: "sec_edgar",
		FetchedAt: time.Date(2024, 1, 10, 0, 0, 0, 0, time.UTC),
	}
	require.NoError(t, repo.SaveSymbolData(SymbolData{Market: domain.MarketUS, Symbol: "AAPL", Financial: record}))

	// Identical payload refetched later: row unchanged.
	record.FetchedAt = time.Date(2024, 2, 10, 0, 0, 0, 0, time.UTC)
	require.NoError(t, repo.SaveSymbolData(SymbolData{Market: domain.MarketUS, Symbol: "AAPL", Financial: record}))

	var fetchedAt string
	require.NoError(t, db.Conn().QueryRow("SELECT fetched_at FROM financials").Scan(&fetchedAt))
	assert.Equal(t, "2024-01-10T00:00:00Z", fetchedAt)

	// Changed payload for the same period wins.
	record.RawPayload = []byte(`{"facts":{"restated":true}}`)
	require.NoError(t, repo.SaveSymbolData(SymbolData{Market: domain.MarketUS, Symbol: "AAPL", Financial: record}))

	var payload string
	var count int
	require.NoError(t, db.Conn().QueryRow("SELECT raw_payload, fetched_at FROM financials").Scan(&payload, &fetchedAt))
	require.NoError(t, db.Conn().QueryRow("SELECT COUNT(*) FROM financials").Scan(&count))
	assert.Equal(t, `{"facts":{"restated":true}}`, payload)
	assert.Equal(t, "2024-02-10T00:00:00Z", fetchedAt)
	assert.Equal(t, 1, count)
}

func TestTransactionRollsBackWholeSymbol(t *testing.T) {
	db := setupTestDB(t)
	repo := NewRepository(db.Conn(), zerolog.Nop())

	// Dropping the indicators table makes the second write of the
	// transaction fail after prices were already written.
	_, err := db.Conn().Exec("DROP TABLE indicators_daily")
	require.NoError(t, err)

	data := SymbolData{
		Market: domain.MarketUS,
		Symbol: "AAPL",
		Prices: testBars(3),
		Indicators: []domain.IndicatorRow{
			{Market: domain.MarketUS, Symbol: "AAPL", Date: "2024-01-03"},
		},
	}
	require.Error(t, repo.SaveSymbolData(data))

	// The price writes that preceded the failure must not be visible.
	var count int
	require.NoError(t, db.Conn().QueryRow("SELECT COUNT(*) FROM price_daily").Scan(&count))
	assert.Zero(t, count)
}

func TestLatestSnapshot(t *testing.T) {
	db := setupTestDB(t)
	repo := NewRepository(db.Conn(), zerolog.Nop())

	rsi := 61.8
	data := SymbolData{
		Market: domain.MarketUS,
		Symbol: "AAPL",
		Prices: testBars(5),
		Indicators: []domain.IndicatorRow{
			{Market: domain.MarketUS, Symbol: "AAPL", Date: "2024-01-05", RSI14: &rsi},
		},
	}
	require.NoError(t, repo.SaveSymbolData(data))

	snap, err := repo.LatestSnapshot(domain.MarketUS, "AAPL")
	require.NoError(t, err)
	require.NotNil(t, snap)
	assert.Equal(t, "2024-01-05", snap.Date)
	assert.Equal(t, 104.5, snap.Close)
	require.NotNil(t, snap.Indicators)
	require.NotNil(t, snap.Indicators.RSI14)
	assert.Equal(t, 61.8, *snap.Indicators.RSI14)
	assert.Nil(t, snap.Indicators.SMA20)

	missing, err := repo.LatestSnapshot(domain.MarketUS, "NOPE")
	require.NoError(t, err)
	assert.Nil(t, missing)
}

func TestRecentReads(t *testing.T) {
	db := setupTestDB(t)
	repo := NewRepository(db.Conn(), zerolog.Nop())

	data := SymbolData{
		Market: domain.MarketUS,
		Symbol: "AAPL",
		Prices: testBars(10),
		News: []domain.NewsItem{
			{Market: domain.MarketUS, Symbol: "AAPL", Title: "a", URL: "u1", PublishedAt: "2024-01-01T00:00:00Z", Source: "google_news"},
			{Market: domain.MarketUS, Symbol: "AAPL", Title: "b", URL: "u2", PublishedAt: "2024-01-02T00:00:00Z", Source: "google_news"},
		},
		Sentiment: []domain.SentimentItem{
			{Market: domain.MarketUS, Symbol: "AAPL", Source: "reddit", Text: "to the moon", URL: "s1", Score: 12, CapturedAt: "2024-01-02T00:00:00Z"},
		},
	}
	require.NoError(t, repo.SaveSymbolData(data))

	bars, err := repo.RecentPrices(domain.MarketUS, "AAPL", 3)
	require.NoError(t, err)
	require.Len(t, bars, 3)
	assert.Equal(t, "2024-01-10", bars[0].Date)

	news, err := repo.RecentNews(domain.MarketUS, "AAPL", 5)
	require.NoError(t, err)
	require.Len(t, news, 2)
	assert.Equal(t, "b", news[0].Title)

	sentiment, err := repo.RecentSentiment(domain.MarketUS, "AAPL", 5)
	require.NoError(t, err)
	require.Len(t, sentiment, 1)
	assert.Equal(t, "to the moon", sentiment[0].Text)
}
