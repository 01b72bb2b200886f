package sources

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/greamown/stockCheck/internal/domain"
	"github.com/greamown/stockCheck/internal/fetch"
)

const finmindBaseURL = "https://api.finmindtrade.com/api/v4/data"

// FinMindClient wraps the FinMind v4 dataset API. It is only consulted
// when a token is configured; the TW adapter falls back to the exchange
// endpoints otherwise.
type FinMindClient struct {
	baseURL string
	token   string
	client  *fetch.Client
}

func NewFinMindClient(client *fetch.Client, token string) *FinMindClient {
	return &FinMindClient{baseURL: finmindBaseURL, token: token, client: client}
}

func (c *FinMindClient) Enabled() bool { return c.token != "" }

type finmindEnvelope struct {
	Msg    string          `json:"msg"`
	Status int             `json:"status"`
	Data   json.RawMessage `json:"data"`
}

func (c *FinMindClient) dataset(ctx context.Context, dataset, dataID string, start, end time.Time) (json.RawMessage, error) {
	body, err := c.client.Get(ctx, fetch.Request{
		Source: "finmind",
		URL:    c.baseURL,
		Params: url.Values{
			"dataset":    {dataset},
			"data_id":    {dataID},
			"start_date": {start.Format("2006-01-02")},
			"end_date":   {end.Format("2006-01-02")},
			"token":      {c.token},
		},
	})
	if err != nil {
		return nil, err
	}
	var env finmindEnvelope
	if err := json.Unmarshal(body, &env); err != nil {
		return nil, fmt.Errorf("finmind %s %s: decode: %w", dataset, dataID, err)
	}
	if env.Status != 200 {
		return nil, fmt.Errorf("finmind %s %s: status %d: %s", dataset, dataID, env.Status, env.Msg)
	}
	return env.Data, nil
}

type finmindPriceRow struct {
	Date   string  `json:"date"`
	Open   float64 `json:"open"`
	Max    float64 `json:"max"`
	Min    float64 `json:"min"`
	Close  float64 `json:"close"`
	Volume int64   `json:"Trading_Volume"`
}

// DailyPrices returns TW daily bars for the window. FinMind identifies
// listings by numeric stock_id, carried on the symbol's watchlist entry.
func (c *FinMindClient) DailyPrices(ctx context.Context, meta domain.SymbolMeta, start, end time.Time) ([]domain.RawPriceRow, error) {
	data, err := c.dataset(ctx, "TaiwanStockPrice", meta.DataID(), start, end)
	if err != nil {
		return nil, err
	}
	var raw []finmindPriceRow
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("finmind prices %s: decode rows: %w", meta.Symbol, err)
	}
	rows := make([]domain.RawPriceRow, 0, len(raw))
	for _, r := range raw {
		rows = append(rows, domain.RawPriceRow{
			Source: "finmind",
			Date:   r.Date,
			Open:   strconv.FormatFloat(r.Open, 'f', -1, 64),
			High:   strconv.FormatFloat(r.Max, 'f', -1, 64),
			Low:    strconv.FormatFloat(r.Min, 'f', -1, 64),
			Close:  strconv.FormatFloat(r.Close, 'f', -1, 64),
			Volume: strconv.FormatInt(r.Volume, 10),
		})
	}
	return rows, nil
}

// FinancialStatements returns the raw statement rows for the window as a
// FinancialRecord. The payload is stored verbatim; only the latest report
// period is lifted out for keying.
func (c *FinMindClient) FinancialStatements(ctx context.Context, meta domain.SymbolMeta, start, end time.Time) (*domain.FinancialRecord, error) {
	data, err := c.dataset(ctx, "TaiwanStockFinancialStatements", meta.DataID(), start, end)
	if err != nil {
		return nil, err
	}
	period := latestFinMindPeriod(data)
	if period == "" {
		return nil, nil
	}
	return &domain.FinancialRecord{
		Market:     domain.MarketTW,
		Symbol:     meta.Symbol,
		Source:     "finmind",
		ReportType: "financial_statements",
		Period:     period,
		RawPayload: data,
		FetchedAt:  time.Now().UTC(),
	}, nil
}

const institutionalLookbackDays = 14

type finmindInstitutionalRow struct {
	Date       string   `json:"date"`
	Name       string   `json:"name"`
	Buy        *float64 `json:"buy"`
	Sell       *float64 `json:"sell"`
	BuyVolume  *float64 `json:"buy_volume"`
	SellVolume *float64 `json:"sell_volume"`
}

// InstitutionalFlows returns the latest trading day's institutional
// buy/sell balance for a TW symbol, aggregated per investor group. The
// query window reaches two weeks back from reportDate so the latest day
// survives weekends and holidays. Returns nil when the window is empty.
func (c *FinMindClient) InstitutionalFlows(ctx context.Context, meta domain.SymbolMeta, reportDate time.Time) (*domain.InstitutionalFlow, error) {
	start := reportDate.AddDate(0, 0, -institutionalLookbackDays)
	data, err := c.dataset(ctx, "TaiwanStockInstitutionalInvestorsBuySell", meta.DataID(), start, reportDate)
	if err != nil {
		return nil, err
	}
	var rows []finmindInstitutionalRow
	if err := json.Unmarshal(data, &rows); err != nil {
		return nil, fmt.Errorf("finmind institutional %s: decode rows: %w", meta.Symbol, err)
	}

	latest := ""
	for _, r := range rows {
		if r.Date > latest {
			latest = r.Date
		}
	}
	if latest == "" {
		return nil, nil
	}

	flow := &domain.InstitutionalFlow{Symbol: meta.Symbol, Date: latest}
	index := make(map[string]int)
	for _, r := range rows {
		if r.Date != latest {
			continue
		}
		// Older FinMind snapshots carry buy_volume/sell_volume instead.
		buy := firstValue(r.Buy, r.BuyVolume)
		sell := firstValue(r.Sell, r.SellVolume)
		if buy == nil || sell == nil {
			continue
		}
		name := strings.TrimSpace(r.Name)
		if name == "" {
			name = "Unknown"
		}
		net := *buy - *sell
		if i, ok := index[name]; ok {
			flow.ByGroup[i].Net += net
		} else {
			index[name] = len(flow.ByGroup)
			flow.ByGroup = append(flow.ByGroup, domain.InvestorNet{Name: name, Net: net})
		}
		flow.TotalNet += net
	}
	return flow, nil
}

func firstValue(values ...*float64) *float64 {
	for _, v := range values {
		if v != nil {
			return v
		}
	}
	return nil
}

func latestFinMindPeriod(data json.RawMessage) string {
	var rows []struct {
		Date string `json:"date"`
	}
	if err := json.Unmarshal(data, &rows); err != nil {
		return ""
	}
	latest := ""
	for _, r := range rows {
		if r.Date > latest {
			latest = r.Date
		}
	}
	return latest
}
