package sources

import (
	"context"
	"encoding/xml"
	"fmt"
	"net/mail"
	"net/url"
	"time"

	"github.com/greamown/stockCheck/internal/domain"
	"github.com/greamown/stockCheck/internal/fetch"
)

const googleNewsBaseURL = "https://news.google.com/rss/search"

// GoogleNewsClient reads the Google News RSS search feed. Both markets
// share it, differing only in locale.
type GoogleNewsClient struct {
	baseURL string
	client  *fetch.Client
}

func NewGoogleNewsClient(client *fetch.Client) *GoogleNewsClient {
	return &GoogleNewsClient{baseURL: googleNewsBaseURL, client: client}
}

type newsLocale struct {
	hl, gl, ceid string
}

var newsLocales = map[domain.Market]newsLocale{
	domain.MarketUS: {hl: "en-US", gl: "US", ceid: "US:en"},
	domain.MarketTW: {hl: "zh-TW", gl: "TW", ceid: "TW:zh-Hant"},
}

type rssFeed struct {
	Channel struct {
		Items []struct {
			Title   string `xml:"title"`
			Link    string `xml:"link"`
			PubDate string `xml:"pubDate"`
		} `xml:"item"`
	} `xml:"channel"`
}

// Search returns recent headlines for the symbol's configured query.
func (c *GoogleNewsClient) Search(ctx context.Context, market domain.Market, meta domain.SymbolMeta) ([]domain.NewsItem, error) {
	locale, ok := newsLocales[market]
	if !ok {
		return nil, fmt.Errorf("google news: no locale for market %q", market)
	}
	body, err := c.client.Get(ctx, fetch.Request{
		Source: "googlenews",
		URL:    c.baseURL,
		Params: url.Values{
			"q":    {meta.SearchQuery()},
			"hl":   {locale.hl},
			"gl":   {locale.gl},
			"ceid": {locale.ceid},
		},
	})
	if err != nil {
		return nil, err
	}
	return parseNewsFeed(market, meta.Symbol, body)
}

func parseNewsFeed(market domain.Market, symbol string, body []byte) ([]domain.NewsItem, error) {
	var feed rssFeed
	if err := xml.Unmarshal(body, &feed); err != nil {
		return nil, fmt.Errorf("google news %s: decode feed: %w", symbol, err)
	}
	items := make([]domain.NewsItem, 0, len(feed.Channel.Items))
	for _, it := range feed.Channel.Items {
		if it.Link == "" {
			continue
		}
		items = append(items, domain.NewsItem{
			Market:      market,
			Symbol:      symbol,
			Source:      "googlenews",
			Title:       it.Title,
			URL:         it.Link,
			PublishedAt: parsePubDate(it.PubDate),
		})
	}
	return items, nil
}

// parsePubDate normalizes the RFC 822 pubDate to UTC RFC 3339; an
// unparseable date is carried through verbatim rather than dropped.
func parsePubDate(raw string) string {
	if raw == "" {
		return ""
	}
	if t, err := mail.ParseDate(raw); err == nil {
		return t.UTC().Format(time.RFC3339)
	}
	return raw
}
