package storage

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/greamown/stockCheck/internal/domain"
)

// Repository provides idempotent persistence for every entity kind.
type Repository struct {
	db  *sql.DB
	log zerolog.Logger
}

// NewRepository creates a repository over an open database.
func NewRepository(db *sql.DB, log zerolog.Logger) *Repository {
	return &Repository{
		db:  db,
		log: log.With().Str("component", "storage").Logger(),
	}
}

// Ping verifies the backing database is reachable.
func (r *Repository) Ping(ctx context.Context) error {
	return r.db.PingContext(ctx)
}

// SymbolData bundles everything collected for one symbol in one run.
// It is written atomically: either all of it commits or none of it does.
type SymbolData struct {
	Market     domain.Market
	Symbol     string
	Prices     []domain.PriceBar
	Indicators []domain.IndicatorRow
	News       []domain.NewsItem
	Financial  *domain.FinancialRecord
	Sentiment  []domain.SentimentItem
}

// SaveSymbolData persists a symbol's full pass in a single transaction.
func (r *Repository) SaveSymbolData(data SymbolData) error {
	err := WithTransaction(r.db, func(tx *sql.Tx) error {
		if err := upsertPrices(tx, data.Prices); err != nil {
			return fmt.Errorf("prices: %w", err)
		}
		if err := upsertIndicators(tx, data.Indicators); err != nil {
			return fmt.Errorf("indicators: %w", err)
		}
		if err := insertNews(tx, data.News); err != nil {
			return fmt.Errorf("news: %w", err)
		}
		if data.Financial != nil {
			if err := upsertFinancial(tx, *data.Financial); err != nil {
				return fmt.Errorf("financials: %w", err)
			}
		}
		if err := insertSentiment(tx, data.Sentiment); err != nil {
			return fmt.Errorf("sentiment: %w", err)
		}
		return nil
	})
	if err != nil {
		r.log.Error().
			Err(err).
			Str("market", string(data.Market)).
			Str("symbol", data.Symbol).
			Msg("Symbol transaction rolled back")
		return err
	}
	return nil
}

// upsertPrices writes price bars with last-write-wins semantics. Rewriting
// identical values leaves the table bit-identical, which is what makes
// replayed runs no-ops.
func upsertPrices(tx *sql.Tx, bars []domain.PriceBar) error {
	stmt, err := tx.Prepare(`
		INSERT INTO price_daily (market, symbol, date, open, high, low, close, volume, source)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (market, symbol, date) DO UPDATE SET
			open = excluded.open,
			high = excluded.high,
			low = excluded.low,
			close = excluded.close,
			volume = excluded.volume,
			source = excluded.source`)
	if err != nil {
		return err
	}
	defer stmt.Close()

	for _, bar := range bars {
		if _, err := stmt.Exec(
			bar.Market, bar.Symbol, bar.Date,
			bar.Open, bar.High, bar.Low, bar.Close, bar.Volume, bar.Source,
		); err != nil {
			return err
		}
	}
	return nil
}

func upsertIndicators(tx *sql.Tx, rows []domain.IndicatorRow) error {
	stmt, err := tx.Prepare(`
		INSERT INTO indicators_daily
			(market, symbol, date, sma20, sma50, ema12, ema26, rsi14,
			 macd, macd_signal, macd_hist, bb_upper, bb_mid, bb_lower)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (market, symbol, date) DO UPDATE SET
			sma20 = excluded.sma20,
			sma50 = excluded.sma50,
			ema12 = excluded.ema12,
			ema26 = excluded.ema26,
			rsi14 = excluded.rsi14,
			macd = excluded.macd,
			macd_signal = excluded.macd_signal,
			macd_hist = excluded.macd_hist,
			bb_upper = excluded.bb_upper,
			bb_mid = excluded.bb_mid,
			bb_lower = excluded.bb_lower`)
	if err != nil {
		return err
	}
	defer stmt.Close()

	for _, row := range rows {
		if _, err := stmt.Exec(
			row.Market, row.Symbol, row.Date,
			nullable(row.SMA20), nullable(row.SMA50),
			nullable(row.EMA12), nullable(row.EMA26),
			nullable(row.RSI14),
			nullable(row.MACD), nullable(row.MACDSignal), nullable(row.MACDHist),
			nullable(row.BBUpper), nullable(row.BBMid), nullable(row.BBLower),
		); err != nil {
			return err
		}
	}
	return nil
}

// insertNews is append-only: the (symbol, url) dedup key makes re-fetched
// articles no-ops.
func insertNews(tx *sql.Tx, items []domain.NewsItem) error {
	stmt, err := tx.Prepare(`
		INSERT OR IGNORE INTO news_items (market, symbol, title, url, published_at, source, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return err
	}
	defer stmt.Close()

	createdAt := time.Now().UTC().Format(time.RFC3339)
	for _, item := range items {
		if item.URL == "" {
			continue
		}
		if _, err := stmt.Exec(
			item.Market, item.Symbol, item.Title, item.URL,
			item.PublishedAt, item.Source, createdAt,
		); err != nil {
			return err
		}
	}
	return nil
}

// upsertFinancial keeps the raw payload verbatim. The conditional update
// means refetching an identical payload changes nothing, while a changed
// payload (provider restated the period) wins.
func upsertFinancial(tx *sql.Tx, record domain.FinancialRecord) error {
	if len(record.RawPayload) == 0 {
		return nil
	}
	_, err := tx.Exec(`
		INSERT INTO financials (market, symbol, period, report_type, raw_payload, source, fetched_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (market, symbol, report_type, period) DO UPDATE SET
			raw_payload = excluded.raw_payload,
			fetched_at = excluded.fetched_at
		WHERE raw_payload <> excluded.raw_payload`,
		record.Market, record.Symbol, record.Period, record.ReportType,
		string(record.RawPayload), record.Source,
		record.FetchedAt.UTC().Format(time.RFC3339),
	)
	return err
}

func insertSentiment(tx *sql.Tx, items []domain.SentimentItem) error {
	stmt, err := tx.Prepare(`
		INSERT OR IGNORE INTO sentiment_items (market, symbol, source, text, url, score, captured_at, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return err
	}
	defer stmt.Close()

	createdAt := time.Now().UTC().Format(time.RFC3339)
	for _, item := range items {
		if item.URL == "" {
			continue
		}
		if _, err := stmt.Exec(
			item.Market, item.Symbol, item.Source, item.Text, item.URL,
			item.Score, item.CapturedAt, createdAt,
		); err != nil {
			return err
		}
	}
	return nil
}

// LatestSnapshot returns the freshest persisted price and indicator row
// for a symbol, or nil when the symbol has no bars yet.
func (r *Repository) LatestSnapshot(market domain.Market, symbol string) (*domain.Snapshot, error) {
	var snap domain.Snapshot
	err := r.db.QueryRow(`
		SELECT date, close FROM price_daily
		WHERE market = ? AND symbol = ?
		ORDER BY date DESC LIMIT 1`, market, symbol).Scan(&snap.Date, &snap.Close)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	row, err := r.latestIndicators(market, symbol)
	if err != nil {
		return nil, err
	}
	snap.Indicators = row
	return &snap, nil
}

func (r *Repository) latestIndicators(market domain.Market, symbol string) (*domain.IndicatorRow, error) {
	row := domain.IndicatorRow{Market: market, Symbol: symbol}
	var sma20, sma50, ema12, ema26, rsi14 sql.NullFloat64
	var macd, macdSignal, macdHist, bbUpper, bbMid, bbLower sql.NullFloat64

	err := r.db.QueryRow(`
		SELECT date, sma20, sma50, ema12, ema26, rsi14,
		       macd, macd_signal, macd_hist, bb_upper, bb_mid, bb_lower
		FROM indicators_daily
		WHERE market = ? AND symbol = ?
		ORDER BY date DESC LIMIT 1`, market, symbol).Scan(
		&row.Date, &sma20, &sma50, &ema12, &ema26, &rsi14,
		&macd, &macdSignal, &macdHist, &bbUpper, &bbMid, &bbLower,
	)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	row.SMA20 = fromNull(sma20)
	row.SMA50 = fromNull(sma50)
	row.EMA12 = fromNull(ema12)
	row.EMA26 = fromNull(ema26)
	row.RSI14 = fromNull(rsi14)
	row.MACD = fromNull(macd)
	row.MACDSignal = fromNull(macdSignal)
	row.MACDHist = fromNull(macdHist)
	row.BBUpper = fromNull(bbUpper)
	row.BBMid = fromNull(bbMid)
	row.BBLower = fromNull(bbLower)
	return &row, nil
}

// RecentPrices returns up to limit bars for a symbol, newest first.
func (r *Repository) RecentPrices(market domain.Market, symbol string, limit int) ([]domain.PriceBar, error) {
	rows, err := r.db.Query(`
		SELECT date, open, high, low, close, volume, source
		FROM price_daily
		WHERE market = ? AND symbol = ?
		ORDER BY date DESC LIMIT ?`, market, symbol, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var bars []domain.PriceBar
	for rows.Next() {
		bar := domain.PriceBar{Market: market, Symbol: symbol}
		if err := rows.Scan(&bar.Date, &bar.Open, &bar.High, &bar.Low, &bar.Close, &bar.Volume, &bar.Source); err != nil {
			return nil, err
		}
		bars = append(bars, bar)
	}
	return bars, rows.Err()
}

// RecentNews returns up to limit news items for a symbol, newest first.
func (r *Repository) RecentNews(market domain.Market, symbol string, limit int) ([]domain.NewsItem, error) {
	rows, err := r.db.Query(`
		SELECT title, url, published_at, source
		FROM news_items
		WHERE market = ? AND symbol = ?
		ORDER BY published_at DESC LIMIT ?`, market, symbol, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var items []domain.NewsItem
	for rows.Next() {
		item := domain.NewsItem{Market: market, Symbol: symbol}
		if err := rows.Scan(&item.Title, &item.URL, &item.PublishedAt, &item.Source); err != nil {
			return nil, err
		}
		items = append(items, item)
	}
	return items, rows.Err()
}

// RecentSentiment returns up to limit sentiment items, newest first.
func (r *Repository) RecentSentiment(market domain.Market, symbol string, limit int) ([]domain.SentimentItem, error) {
	rows, err := r.db.Query(`
		SELECT source, text, url, score, captured_at
		FROM sentiment_items
		WHERE market = ? AND symbol = ?
		ORDER BY captured_at DESC LIMIT ?`, market, symbol, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var items []domain.SentimentItem
	for rows.Next() {
		item := domain.SentimentItem{Market: market, Symbol: symbol}
		if err := rows.Scan(&item.Source, &item.Text, &item.URL, &item.Score, &item.CapturedAt); err != nil {
			return nil, err
		}
		items = append(items, item)
	}
	return items, rows.Err()
}

func nullable(v *float64) any {
	if v == nil {
		return nil
	}
	return *v
}

func fromNull(v sql.NullFloat64) *float64 {
	if !v.Valid {
		return nil
	}
	f := v.Float64
	return &f
}
