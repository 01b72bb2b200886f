// Package summarize produces the per-symbol daily summary and direction
// call. Generation is tiered: Gemini first, OpenRouter when Gemini is
// unavailable or failing, and a deterministic indicator-based template
// when no model can be reached, so the brief always renders.
package summarize

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/rs/zerolog"

	"github.com/greamown/stockCheck/internal/domain"
)

// Input is everything the generator sees for one symbol.
type Input struct {
	Market    domain.Market
	Symbol    string
	Snapshot  *domain.Snapshot
	News      []domain.NewsItem
	Sentiment []domain.SentimentItem
}

// Output is the structured verdict extracted from the model response.
type Output struct {
	Summary    string           `json:"summary"`
	Prediction domain.Direction `json:"prediction"`
	Provider   string           `json:"-"`
}

// generator is one model backend. Implementations return the raw model
// text; extraction and validation happen here.
type generator interface {
	name() string
	generate(ctx context.Context, prompt string) (string, error)
}

// Config selects and authenticates the model backends. Backends without
// credentials are simply not registered.
type Config struct {
	GeminiAPIKey     string
	GeminiModel      string
	OpenRouterAPIKey string
	OpenRouterModel  string
}

// Summarizer runs the generation tiers in order.
type Summarizer struct {
	generators []generator
	log        zerolog.Logger
}

func New(ctx context.Context, cfg Config, log zerolog.Logger) *Summarizer {
	s := &Summarizer{log: log.With().Str("component", "summarize").Logger()}
	if cfg.GeminiAPIKey != "" {
		gem, err := newGeminiGenerator(ctx, cfg.GeminiAPIKey, cfg.GeminiModel)
		if err != nil {
			s.log.Warn().Err(err).Msg("gemini unavailable, skipping tier")
		} else {
			s.generators = append(s.generators, gem)
		}
	}
	if cfg.OpenRouterAPIKey != "" {
		s.generators = append(s.generators, newOpenRouterGenerator(cfg.OpenRouterAPIKey, cfg.OpenRouterModel))
	}
	return s
}

// Summarize never fails: when every model tier errors out it falls back
// to the indicator template.
func (s *Summarizer) Summarize(ctx context.Context, in Input) Output {
	prompt := buildPrompt(in)
	for _, gen := range s.generators {
		text, err := gen.generate(ctx, prompt)
		if err != nil {
			s.log.Warn().Err(err).
				Str("provider", gen.name()).
				Str("symbol", in.Symbol).
				Msg("generation failed, trying next tier")
			continue
		}
		out, err := parseOutput(text)
		if err != nil {
			s.log.Warn().Err(err).
				Str("provider", gen.name()).
				Str("symbol", in.Symbol).
				Msg("unparseable model output, trying next tier")
			continue
		}
		out.Provider = gen.name()
		return out
	}
	return templateOutput(in)
}

func buildPrompt(in Input) string {
	var b strings.Builder
	fmt.Fprintf(&b, "You are a market analyst. Assess %s (%s market) for the next trading week.\n\n",
		in.Symbol, strings.ToUpper(string(in.Market)))

	if snap := in.Snapshot; snap != nil {
		fmt.Fprintf(&b, "Latest close %.2f on %s.\n", snap.Close, snap.Date)
		if ind := snap.Indicators; ind != nil {
			writeIndicator(&b, "SMA20", ind.SMA20)
			writeIndicator(&b, "SMA50", ind.SMA50)
			writeIndicator(&b, "RSI14", ind.RSI14)
			writeIndicator(&b, "MACD", ind.MACD)
			writeIndicator(&b, "MACD signal", ind.MACDSignal)
			writeIndicator(&b, "Bollinger upper", ind.BBUpper)
			writeIndicator(&b, "Bollinger lower", ind.BBLower)
		}
	}

	if len(in.News) > 0 {
		b.WriteString("\nRecent headlines:\n")
		for _, item := range in.News {
			fmt.Fprintf(&b, "- %s\n", item.Title)
		}
	}
	if len(in.Sentiment) > 0 {
		b.WriteString("\nRecent community posts:\n")
		for _, item := range in.Sentiment {
			fmt.Fprintf(&b, "- %s\n", firstLine(item.Text))
		}
	}

	b.WriteString("\nAnswer with JSON only: " +
		`{"summary": "<2-3 sentences>", "prediction": "up" | "down" | "flat"}`)
	return b.String()
}

func writeIndicator(b *strings.Builder, label string, v *float64) {
	if v != nil {
		fmt.Fprintf(b, "%s: %.3f\n", label, *v)
	}
}

func firstLine(s string) string {
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		s = s[:i]
	}
	return strings.TrimSpace(s)
}

// parseOutput extracts the JSON verdict from model text, tolerating code
// fences and prose around the object.
func parseOutput(text string) (Output, error) {
	start := strings.IndexByte(text, '{')
	end := strings.LastIndexByte(text, '}')
	if start < 0 || end <= start {
		return Output{}, fmt.Errorf("no JSON object in model output")
	}
	var out Output
	if err := json.Unmarshal([]byte(text[start:end+1]), &out); err != nil {
		return Output{}, fmt.Errorf("decode model output: %w", err)
	}
	if strings.TrimSpace(out.Summary) == "" {
		return Output{}, fmt.Errorf("model output missing summary")
	}
	dir, err := normalizeDirection(string(out.Prediction))
	if err != nil {
		return Output{}, err
	}
	out.Prediction = dir
	return out, nil
}

func normalizeDirection(raw string) (domain.Direction, error) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "up", "bullish", "rise":
		return domain.DirectionUp, nil
	case "down", "bearish", "fall":
		return domain.DirectionDown, nil
	case "flat", "neutral", "sideways", "hold":
		return domain.DirectionFlat, nil
	default:
		return "", fmt.Errorf("unrecognized prediction %q", raw)
	}
}

// templateOutput is the no-model fallback: a mechanical read of the
// freshest indicators. MACD histogram sign carries the call, with RSI
// extremes overriding toward reversal.
func templateOutput(in Input) Output {
	out := Output{Provider: "template", Prediction: domain.DirectionFlat}
	if in.Snapshot == nil {
		out.Summary = fmt.Sprintf("%s: no fresh data available.", in.Symbol)
		return out
	}
	snap := in.Snapshot
	out.Summary = fmt.Sprintf("%s closed at %.2f on %s.", in.Symbol, snap.Close, snap.Date)

	ind := snap.Indicators
	if ind == nil {
		return out
	}
	switch {
	case ind.RSI14 != nil && *ind.RSI14 >= 70:
		out.Prediction = domain.DirectionDown
		out.Summary += " RSI in overbought territory."
	case ind.RSI14 != nil && *ind.RSI14 <= 30:
		out.Prediction = domain.DirectionUp
		out.Summary += " RSI in oversold territory."
	case ind.MACDHist != nil && *ind.MACDHist > 0:
		out.Prediction = domain.DirectionUp
		out.Summary += " MACD histogram positive."
	case ind.MACDHist != nil && *ind.MACDHist < 0:
		out.Prediction = domain.DirectionDown
		out.Summary += " MACD histogram negative."
	}
	return out
}
