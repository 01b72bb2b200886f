package sources

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strconv"
	"time"

	"github.com/greamown/stockCheck/internal/domain"
	"github.com/greamown/stockCheck/internal/fetch"
)

const yahooBaseURL = "https://query1.finance.yahoo.com/v8/finance/chart"

// YahooClient reads the unauthenticated chart endpoint. It is the price
// fallback for US symbols when stooq has nothing.
type YahooClient struct {
	baseURL string
	client  *fetch.Client
}

func NewYahooClient(client *fetch.Client) *YahooClient {
	return &YahooClient{baseURL: yahooBaseURL, client: client}
}

type yahooChartResponse struct {
	Chart struct {
		Result []struct {
			Timestamp  []int64 `json:"timestamp"`
			Indicators struct {
				Quote []struct {
					Open   []*float64 `json:"open"`
					High   []*float64 `json:"high"`
					Low    []*float64 `json:"low"`
					Close  []*float64 `json:"close"`
					Volume []*int64   `json:"volume"`
				} `json:"quote"`
			} `json:"indicators"`
		} `json:"result"`
		Error *struct {
			Code        string `json:"code"`
			Description string `json:"description"`
		} `json:"error"`
	} `json:"chart"`
}

// DailyPrices returns daily bars between start and end inclusive. Yahoo
// bounds the window with unix timestamps; period2 is exclusive, so a day
// is added to cover the end date.
func (c *YahooClient) DailyPrices(ctx context.Context, symbol string, start, end time.Time) ([]domain.RawPriceRow, error) {
	body, err := c.client.Get(ctx, fetch.Request{
		Source: "yahoo",
		URL:    fmt.Sprintf("%s/%s", c.baseURL, symbol),
		Params: url.Values{
			"interval": {"1d"},
			"period1":  {strconv.FormatInt(start.Unix(), 10)},
			"period2":  {strconv.FormatInt(end.AddDate(0, 0, 1).Unix(), 10)},
			"events":   {"history"},
		},
	})
	if err != nil {
		return nil, err
	}
	return parseYahooChart(symbol, body)
}

func parseYahooChart(symbol string, body []byte) ([]domain.RawPriceRow, error) {
	var resp yahooChartResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("yahoo %s: decode chart: %w", symbol, err)
	}
	if resp.Chart.Error != nil {
		return nil, fmt.Errorf("yahoo %s: %s: %s", symbol, resp.Chart.Error.Code, resp.Chart.Error.Description)
	}
	if len(resp.Chart.Result) == 0 {
		return nil, nil
	}
	result := resp.Chart.Result[0]
	if len(result.Indicators.Quote) == 0 {
		return nil, nil
	}
	quote := result.Indicators.Quote[0]

	rows := make([]domain.RawPriceRow, 0, len(result.Timestamp))
	for i, ts := range result.Timestamp {
		// Null quote entries are half-days or pre-listing padding.
		if i >= len(quote.Close) || quote.Close[i] == nil {
			continue
		}
		row := domain.RawPriceRow{
			Source: "yahoo",
			Date:   time.Unix(ts, 0).UTC().Format("2006-01-02"),
			Close:  formatQuote(quote.Close[i]),
		}
		if i < len(quote.Open) {
			row.Open = formatQuote(quote.Open[i])
		}
		if i < len(quote.High) {
			row.High = formatQuote(quote.High[i])
		}
		if i < len(quote.Low) {
			row.Low = formatQuote(quote.Low[i])
		}
		if i < len(quote.Volume) && quote.Volume[i] != nil {
			row.Volume = strconv.FormatInt(*quote.Volume[i], 10)
		}
		rows = append(rows, row)
	}
	return rows, nil
}

func formatQuote(v *float64) string {
	if v == nil {
		return ""
	}
	return strconv.FormatFloat(*v, 'f', -1, 64)
}
