package sources

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/greamown/stockCheck/internal/domain"
	"github.com/greamown/stockCheck/internal/fetch"
)

const stocktwitsBaseURL = "https://api.stocktwits.com/api/2/streams/symbol"

// StocktwitsClient reads the public per-symbol message stream. It backs
// up reddit for US sentiment.
type StocktwitsClient struct {
	baseURL string
	client  *fetch.Client
}

func NewStocktwitsClient(client *fetch.Client) *StocktwitsClient {
	return &StocktwitsClient{baseURL: stocktwitsBaseURL, client: client}
}

type stocktwitsStream struct {
	Messages []struct {
		ID        int64  `json:"id"`
		Body      string `json:"body"`
		CreatedAt string `json:"created_at"`
		Likes     struct {
			Total float64 `json:"total"`
		} `json:"likes"`
	} `json:"messages"`
}

// Stream returns the newest messages for the symbol.
func (c *StocktwitsClient) Stream(ctx context.Context, meta domain.SymbolMeta) ([]domain.SentimentItem, error) {
	body, err := c.client.Get(ctx, fetch.Request{
		Source: "stocktwits",
		URL:    fmt.Sprintf("%s/%s.json", c.baseURL, meta.Symbol),
	})
	if err != nil {
		return nil, err
	}
	return parseStocktwitsStream(meta.Symbol, body)
}

func parseStocktwitsStream(symbol string, body []byte) ([]domain.SentimentItem, error) {
	var stream stocktwitsStream
	if err := json.Unmarshal(body, &stream); err != nil {
		return nil, fmt.Errorf("stocktwits %s: decode stream: %w", symbol, err)
	}
	items := make([]domain.SentimentItem, 0, len(stream.Messages))
	for _, msg := range stream.Messages {
		if msg.Body == "" {
			continue
		}
		items = append(items, domain.SentimentItem{
			Market:     domain.MarketUS,
			Symbol:     symbol,
			Source:     "stocktwits",
			Text:       msg.Body,
			URL:        fmt.Sprintf("https://stocktwits.com/message/%d", msg.ID),
			Score:      msg.Likes.Total,
			CapturedAt: msg.CreatedAt,
		})
	}
	return items, nil
}
