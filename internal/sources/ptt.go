package sources

import (
	"bytes"
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"

	"github.com/greamown/stockCheck/internal/domain"
	"github.com/greamown/stockCheck/internal/fetch"
)

const pttBaseURL = "https://www.ptt.cc"

// PTTClient scrapes the PTT Stock board index for threads mentioning a
// symbol. PTT gates boards behind an age check satisfied by the over18
// cookie.
type PTTClient struct {
	baseURL string
	client  *fetch.Client
}

func NewPTTClient(client *fetch.Client) *PTTClient {
	return &PTTClient{baseURL: pttBaseURL, client: client}
}

// BoardThreads returns Stock-board threads whose title mentions the
// symbol or its configured query term.
func (c *PTTClient) BoardThreads(ctx context.Context, meta domain.SymbolMeta) ([]domain.SentimentItem, error) {
	body, err := c.client.Get(ctx, fetch.Request{
		Source:  "ptt",
		URL:     c.baseURL + "/bbs/Stock/index.html",
		Cookies: map[string]string{"over18": "1"},
	})
	if err != nil {
		return nil, err
	}
	return c.parseBoard(meta, body)
}

func (c *PTTClient) parseBoard(meta domain.SymbolMeta, body []byte) ([]domain.SentimentItem, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("ptt %s: parse board: %w", meta.Symbol, err)
	}

	needles := []string{strings.ToLower(meta.Symbol)}
	if q := strings.TrimSpace(meta.Query); q != "" {
		needles = append(needles, strings.ToLower(q))
	}
	capturedAt := time.Now().UTC().Format(time.RFC3339)

	var items []domain.SentimentItem
	doc.Find("div.r-ent").Each(func(_ int, ent *goquery.Selection) {
		link := ent.Find("div.title a")
		title := strings.TrimSpace(link.Text())
		href, ok := link.Attr("href")
		if title == "" || !ok {
			return // deleted threads keep the r-ent but lose the anchor
		}
		if !titleMatches(title, needles) {
			return
		}
		items = append(items, domain.SentimentItem{
			Market:     domain.MarketTW,
			Symbol:     meta.Symbol,
			Source:     "ptt",
			Text:       title,
			URL:        c.baseURL + href,
			Score:      parsePushCount(ent.Find("div.nrec").Text()),
			CapturedAt: capturedAt,
		})
	})
	return items, nil
}

func titleMatches(title string, needles []string) bool {
	lower := strings.ToLower(title)
	for _, needle := range needles {
		if strings.Contains(lower, needle) {
			return true
		}
	}
	return false
}

// parsePushCount maps PTT's push marker to a numeric score: "爆" means
// 100 or more pushes, "X" prefixes are net-negative threads.
func parsePushCount(raw string) float64 {
	raw = strings.TrimSpace(raw)
	switch {
	case raw == "":
		return 0
	case raw == "爆":
		return 100
	case strings.HasPrefix(raw, "X"):
		n, _ := strconv.ParseFloat(strings.TrimPrefix(raw, "X"), 64)
		return -n * 10
	}
	n, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return 0
	}
	return n
}
