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

const redditBaseURL = "https://www.reddit.com/r/stocks/search.json"

// RedditClient searches r/stocks through the public listing API. No
// OAuth: the anonymous endpoint is rate limited hard, which the shared
// per-source interval absorbs.
type RedditClient struct {
	baseURL string
	client  *fetch.Client
}

func NewRedditClient(client *fetch.Client) *RedditClient {
	return &RedditClient{baseURL: redditBaseURL, client: client}
}

type redditListing struct {
	Data struct {
		Children []struct {
			Data struct {
				Title      string  `json:"title"`
				Selftext   string  `json:"selftext"`
				Permalink  string  `json:"permalink"`
				Score      float64 `json:"score"`
				CreatedUTC float64 `json:"created_utc"`
			} `json:"data"`
		} `json:"children"`
	} `json:"data"`
}

// Search returns recent posts mentioning the symbol, newest first.
func (c *RedditClient) Search(ctx context.Context, meta domain.SymbolMeta) ([]domain.SentimentItem, error) {
	body, err := c.client.Get(ctx, fetch.Request{
		Source: "reddit",
		URL:    c.baseURL,
		Params: url.Values{
			"q":           {meta.Symbol},
			"restrict_sr": {"1"},
			"sort":        {"new"},
			"t":           {"week"},
			"limit":       {strconv.Itoa(maxSentimentItems)},
		},
	})
	if err != nil {
		return nil, err
	}
	return parseRedditListing(meta.Symbol, body)
}

func parseRedditListing(symbol string, body []byte) ([]domain.SentimentItem, error) {
	var listing redditListing
	if err := json.Unmarshal(body, &listing); err != nil {
		return nil, fmt.Errorf("reddit %s: decode listing: %w", symbol, err)
	}
	items := make([]domain.SentimentItem, 0, len(listing.Data.Children))
	for _, child := range listing.Data.Children {
		post := child.Data
		if post.Permalink == "" {
			continue
		}
		text := post.Title
		if post.Selftext != "" {
			text = text + "\n" + post.Selftext
		}
		items = append(items, domain.SentimentItem{
			Market:     domain.MarketUS,
			Symbol:     symbol,
			Source:     "reddit",
			Text:       text,
			URL:        "https://www.reddit.com" + post.Permalink,
			Score:      post.Score,
			CapturedAt: time.Unix(int64(post.CreatedUTC), 0).UTC().Format(time.RFC3339),
		})
	}
	return items, nil
}
