package sources

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/greamown/stockCheck/internal/domain"
	"github.com/greamown/stockCheck/internal/fetch"
)

const secBaseURL = "https://data.sec.gov/api/xbrl/companyfacts"

// SECClient fetches XBRL company facts. Symbols without a CIK mapping in
// the watchlist simply have no US financials capability.
type SECClient struct {
	baseURL string
	client  *fetch.Client
}

func NewSECClient(client *fetch.Client) *SECClient {
	return &SECClient{baseURL: secBaseURL, client: client}
}

// CompanyFacts returns the full facts payload as a FinancialRecord keyed
// by the most recent reported period end. The payload is kept verbatim.
func (c *SECClient) CompanyFacts(ctx context.Context, meta domain.SymbolMeta) (*domain.FinancialRecord, error) {
	if meta.CIK == "" {
		return nil, nil
	}
	cik := fmt.Sprintf("CIK%010s", strings.TrimLeft(meta.CIK, "0"))
	body, err := c.client.Get(ctx, fetch.Request{
		Source: "sec",
		URL:    fmt.Sprintf("%s/%s.json", c.baseURL, cik),
	})
	if err != nil {
		return nil, err
	}
	period := latestFactPeriod(body)
	if period == "" {
		return nil, fmt.Errorf("sec %s: no reported periods in facts", meta.Symbol)
	}
	return &domain.FinancialRecord{
		Market:     domain.MarketUS,
		Symbol:     meta.Symbol,
		Source:     "sec",
		ReportType: "company_facts",
		Period:     period,
		RawPayload: body,
		FetchedAt:  time.Now().UTC(),
	}, nil
}

// latestFactPeriod scans every fact unit for the greatest period end
// date. ISO dates compare lexically, so no time parsing is needed.
func latestFactPeriod(body []byte) string {
	var facts struct {
		Facts map[string]map[string]struct {
			Units map[string][]struct {
				End string `json:"end"`
			} `json:"units"`
		} `json:"facts"`
	}
	if err := json.Unmarshal(body, &facts); err != nil {
		return ""
	}
	latest := ""
	for _, taxonomy := range facts.Facts {
		for _, fact := range taxonomy {
			for _, entries := range fact.Units {
				for _, entry := range entries {
					if entry.End > latest {
						latest = entry.End
					}
				}
			}
		}
	}
	return latest
}
