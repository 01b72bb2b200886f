package sources

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"time"

	"github.com/rs/zerolog"

	"github.com/greamown/stockCheck/internal/domain"
	"github.com/greamown/stockCheck/internal/fetch"
)

const (
	twseBaseURL = "https://www.twse.com.tw/exchangeReport/STOCK_DAY"
	tpexBaseURL = "https://www.tpex.org.tw/web/stock/aftertrading/daily_trading_info/st43_result.php"
)

// ExchangeClient walks the TWSE and TPEX month-at-a-time daily-quote
// endpoints. Listed symbols answer on TWSE, OTC symbols on TPEX; each
// month is tried on TWSE first and falls through to TPEX.
type ExchangeClient struct {
	twseURL string
	tpexURL string
	client  *fetch.Client
	log     zerolog.Logger
}

func NewExchangeClient(client *fetch.Client, log zerolog.Logger) *ExchangeClient {
	return &ExchangeClient{
		twseURL: twseBaseURL,
		tpexURL: tpexBaseURL,
		client:  client,
		log:     log.With().Str("component", "twse").Logger(),
	}
}

// DailyPrices concatenates the calendar months covering [start, end].
// A month that fails on both exchanges is logged and skipped: the
// exchanges prune old months on a rolling basis, and one missing month
// must not sink the symbol. Duplicate dates across month boundaries are
// dropped, first occurrence wins.
func (c *ExchangeClient) DailyPrices(ctx context.Context, symbol string, start, end time.Time) ([]domain.RawPriceRow, error) {
	var rows []domain.RawPriceRow
	seen := make(map[string]struct{})
	months := 0
	failed := 0

	for cursor := time.Date(start.Year(), start.Month(), 1, 0, 0, 0, 0, time.UTC); !cursor.After(end); cursor = cursor.AddDate(0, 1, 0) {
		months++
		monthRows, err := c.month(ctx, symbol, cursor)
		if err != nil {
			failed++
			c.log.Warn().Err(err).
				Str("symbol", symbol).
				Str("month", cursor.Format("2006-01")).
				Msg("exchange month unavailable, skipping")
			continue
		}
		for _, row := range monthRows {
			if _, dup := seen[row.Date]; dup {
				continue
			}
			seen[row.Date] = struct{}{}
			rows = append(rows, row)
		}
	}

	if months > 0 && failed == months {
		return nil, fmt.Errorf("exchange prices %s: all %d months failed", symbol, months)
	}
	return rows, nil
}

func (c *ExchangeClient) month(ctx context.Context, symbol string, month time.Time) ([]domain.RawPriceRow, error) {
	rows, twseErr := c.twseMonth(ctx, symbol, month)
	if twseErr == nil {
		return rows, nil
	}
	rows, tpexErr := c.tpexMonth(ctx, symbol, month)
	if tpexErr == nil {
		return rows, nil
	}
	return nil, fmt.Errorf("twse: %v; tpex: %v", twseErr, tpexErr)
}

type twseResponse struct {
	Stat string     `json:"stat"`
	Data [][]string `json:"data"`
}

func (c *ExchangeClient) twseMonth(ctx context.Context, symbol string, month time.Time) ([]domain.RawPriceRow, error) {
	body, err := c.client.Get(ctx, fetch.Request{
		Source: "twse",
		URL:    c.twseURL,
		Params: url.Values{
			"response": {"json"},
			"date":     {month.Format("20060102")},
			"stockNo":  {symbol},
		},
	})
	if err != nil {
		return nil, err
	}
	var resp twseResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("decode: %w", err)
	}
	if resp.Stat != "OK" {
		return nil, fmt.Errorf("stat %q", resp.Stat)
	}
	// Column order: date, shares, value, open, high, low, close, change, count.
	rows := make([]domain.RawPriceRow, 0, len(resp.Data))
	for _, rec := range resp.Data {
		if len(rec) < 7 {
			continue
		}
		rows = append(rows, domain.RawPriceRow{
			Source: "twse",
			Date:   rec[0],
			Open:   rec[3],
			High:   rec[4],
			Low:    rec[5],
			Close:  rec[6],
			Volume: rec[1],
		})
	}
	return rows, nil
}

type tpexResponse struct {
	AaData [][]string `json:"aaData"`
}

func (c *ExchangeClient) tpexMonth(ctx context.Context, symbol string, month time.Time) ([]domain.RawPriceRow, error) {
	body, err := c.client.Get(ctx, fetch.Request{
		Source: "tpex",
		URL:    c.tpexURL,
		Params: url.Values{
			"l":     {"zh-tw"},
			"d":     {fmt.Sprintf("%d/%02d", month.Year()-1911, int(month.Month()))},
			"stkno": {symbol},
		},
	})
	if err != nil {
		return nil, err
	}
	var resp tpexResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("decode: %w", err)
	}
	if len(resp.AaData) == 0 {
		return nil, fmt.Errorf("no rows")
	}
	// Column order: date, shares (thousands), value, open, high, low, close, ...
	rows := make([]domain.RawPriceRow, 0, len(resp.AaData))
	for _, rec := range resp.AaData {
		if len(rec) < 7 {
			continue
		}
		rows = append(rows, domain.RawPriceRow{
			Source: "tpex",
			Date:   rec[0],
			Open:   rec[3],
			High:   rec[4],
			Low:    rec[5],
			Close:  rec[6],
			Volume: rec[1],
		})
	}
	return rows, nil
}
