package sources

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"net/url"
	"strings"

	"github.com/greamown/stockCheck/internal/domain"
	"github.com/greamown/stockCheck/internal/fetch"
)

const stooqBaseURL = "https://stooq.com/q/d/l/"

// StooqClient fetches daily OHLCV history as CSV. Stooq serves the full
// listed history in one response, so there is no pagination to walk.
type StooqClient struct {
	baseURL string
	client  *fetch.Client
}

func NewStooqClient(client *fetch.Client) *StooqClient {
	return &StooqClient{baseURL: stooqBaseURL, client: client}
}

// DailyPrices returns every daily bar stooq has for the symbol, oldest
// first as served. US tickers are addressed in stooq's lowercase ".us"
// namespace.
func (c *StooqClient) DailyPrices(ctx context.Context, symbol string) ([]domain.RawPriceRow, error) {
	body, err := c.client.Get(ctx, fetch.Request{
		Source: "stooq",
		URL:    c.baseURL,
		Params: url.Values{
			"s": {strings.ToLower(symbol) + ".us"},
			"i": {"d"},
		},
	})
	if err != nil {
		return nil, err
	}
	return parseStooqCSV(symbol, body)
}

func parseStooqCSV(symbol string, body []byte) ([]domain.RawPriceRow, error) {
	reader := csv.NewReader(strings.NewReader(string(body)))
	reader.FieldsPerRecord = -1

	header, err := reader.Read()
	if err != nil {
		return nil, fmt.Errorf("stooq %s: read header: %w", symbol, err)
	}
	if len(header) < 6 || !strings.EqualFold(header[0], "Date") {
		// Stooq answers "No data" (or an HTML error page) with a 200,
		// so a malformed header is how an unknown symbol shows up.
		return nil, fmt.Errorf("stooq %s: unexpected header %q", symbol, strings.Join(header, ","))
	}

	var rows []domain.RawPriceRow
	for {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("stooq %s: read row: %w", symbol, err)
		}
		if len(record) < 6 {
			continue
		}
		rows = append(rows, domain.RawPriceRow{
			Source: "stooq",
			Date:   record[0],
			Open:   record[1],
			High:   record[2],
			Low:    record[3],
			Close:  record[4],
			Volume: record[5],
		})
	}
	return rows, nil
}
