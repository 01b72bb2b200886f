// Package notify delivers the daily brief over the LINE Messaging API.
package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
	"unicode/utf8"

	"github.com/rs/zerolog"
)

const (
	linePushURL = "https://api.line.me/v2/bot/message/push"

	// LINE rejects text messages above this length; longer briefs are
	// split into consecutive pushes.
	maxMessageLen = 4900

	pushRetries = 3
	pushBackoff = 2 * time.Second
)

// LineNotifier pushes text messages to a single LINE recipient. With no
// credentials configured it becomes a logged no-op so local runs work
// without a channel token.
type LineNotifier struct {
	pushURL string
	token   string
	to      string
	http    *http.Client
	log     zerolog.Logger
}

func NewLineNotifier(token, to string, log zerolog.Logger) *LineNotifier {
	return &LineNotifier{
		pushURL: linePushURL,
		token:   token,
		to:      to,
		http:    &http.Client{Timeout: 15 * time.Second},
		log:     log.With().Str("component", "notify").Logger(),
	}
}

func (n *LineNotifier) Enabled() bool { return n.token != "" && n.to != "" }

type lineMessage struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

type linePushRequest struct {
	To       string        `json:"to"`
	Messages []lineMessage `json:"messages"`
}

// Push sends the text, chunked to the API limit. Without credentials it
// logs the skip and reports success.
func (n *LineNotifier) Push(ctx context.Context, text string) error {
	if !n.Enabled() {
		n.log.Info().Msg("line credentials not configured, skipping push")
		return nil
	}
	for i, chunk := range splitMessage(text, maxMessageLen) {
		if err := n.pushChunk(ctx, chunk); err != nil {
			return fmt.Errorf("push chunk %d: %w", i+1, err)
		}
	}
	n.log.Info().Int("chars", len(text)).Msg("brief pushed")
	return nil
}

func (n *LineNotifier) pushChunk(ctx context.Context, text string) error {
	payload, err := json.Marshal(linePushRequest{
		To:       n.to,
		Messages: []lineMessage{{Type: "text", Text: text}},
	})
	if err != nil {
		return err
	}

	var lastErr error
	for attempt := 1; attempt <= pushRetries+1; attempt++ {
		status, body, err := n.send(ctx, payload)
		if err == nil && status == http.StatusOK {
			return nil
		}
		switch {
		case err != nil:
			lastErr = err
		case status == http.StatusTooManyRequests || status >= 500:
			lastErr = fmt.Errorf("line push status %d: %s", status, body)
		default:
			// 4xx other than 429 will not improve on retry.
			return fmt.Errorf("line push status %d: %s", status, body)
		}
		n.log.Warn().Err(lastErr).Int("attempt", attempt).Msg("line push failed")
		if attempt <= pushRetries {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(pushBackoff * time.Duration(attempt)):
			}
		}
	}
	return lastErr
}

func (n *LineNotifier) send(ctx context.Context, payload []byte) (int, string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.pushURL, bytes.NewReader(payload))
	if err != nil {
		return 0, "", err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+n.token)

	resp, err := n.http.Do(req)
	if err != nil {
		return 0, "", err
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
	return resp.StatusCode, string(body), nil
}

// splitMessage cuts text into chunks of at most limit bytes, preferring
// line boundaries. A window without a newline is cut at the nearest rune
// boundary so multibyte text never splits mid-sequence.
func splitMessage(text string, limit int) []string {
	if len(text) <= limit {
		return []string{text}
	}
	var chunks []string
	for len(text) > limit {
		cut := limit
		if i := lastNewlineBefore(text, limit); i > 0 {
			cut = i
		} else {
			for cut > 0 && !utf8.RuneStart(text[cut]) {
				cut--
			}
			if cut == 0 {
				cut = limit
			}
		}
		chunks = append(chunks, text[:cut])
		text = text[cut:]
		if len(text) > 0 && text[0] == '\n' {
			text = text[1:]
		}
	}
	if len(text) > 0 {
		chunks = append(chunks, text)
	}
	return chunks
}

func lastNewlineBefore(s string, limit int) int {
	for i := limit; i > 0; i-- {
		if s[i-1] == '\n' {
			return i - 1
		}
	}
	return -1
}
