// Package report turns persisted pipeline state into the daily brief and
// keeps score on past predictions. It reads the pipeline tables and owns
// the reports/accuracy tables; it never mutates price or indicator rows.
package report

import (
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"gonum.org/v1/gonum/stat"

	"github.com/greamown/stockCheck/internal/domain"
	"github.com/greamown/stockCheck/internal/storage"
)

const (
	// accuracyLookbackDays is how far back a prediction must be before it
	// is scored against the current close.
	accuracyLookbackDays = 7
	// accuracyWindow is how many scored predictions feed the hit rate.
	accuracyWindow = 30

	briefNewsItems = 3
)

// Verdict is the generated view of one symbol for today's brief.
type Verdict struct {
	Summary    string
	Prediction domain.Direction
}

// Reporter builds briefs and maintains the prediction score tables.
type Reporter struct {
	repo *storage.Repository
	log  zerolog.Logger
}

func NewReporter(repo *storage.Repository, log zerolog.Logger) *Reporter {
	return &Reporter{
		repo: repo,
		log:  log.With().Str("component", "report").Logger(),
	}
}

// RecordVerdicts persists one report row per symbol that produced a
// snapshot. Symbols without verdicts or snapshots are skipped, not failed.
func (r *Reporter) RecordVerdicts(run domain.RunReport, verdicts map[string]Verdict) error {
	now := time.Now().UTC()
	for _, res := range run.Symbols {
		verdict, ok := verdicts[res.Symbol]
		if !ok || res.Snapshot == nil {
			continue
		}
		rep := domain.Report{
			Market:     res.Market,
			Symbol:     res.Symbol,
			ReportDate: res.Snapshot.Date,
			Price:      res.Snapshot.Close,
			Summary:    verdict.Summary,
			Prediction: verdict.Prediction,
			CreatedAt:  now,
		}
		if err := r.repo.SaveReport(rep); err != nil {
			return fmt.Errorf("record verdict %s/%s: %w", res.Market, res.Symbol, err)
		}
	}
	return nil
}

// ScorePredictions compares each symbol's freshest close against the
// newest report at least accuracyLookbackDays old and upserts the result.
// Symbols without enough history are skipped.
func (r *Reporter) ScorePredictions(market domain.Market, symbols []domain.SymbolMeta) error {
	now := time.Now().UTC()
	for _, meta := range symbols {
		snap, err := r.repo.LatestSnapshot(market, meta.Symbol)
		if err != nil {
			return fmt.Errorf("score %s/%s: snapshot: %w", market, meta.Symbol, err)
		}
		if snap == nil {
			continue
		}
		snapDate, err := time.Parse("2006-01-02", snap.Date)
		if err != nil {
			continue
		}
		cutoff := snapDate.AddDate(0, 0, -accuracyLookbackDays).Format("2006-01-02")
		rep, err := r.repo.ReportOnOrBefore(market, meta.Symbol, cutoff)
		if err != nil {
			return fmt.Errorf("score %s/%s: report lookup: %w", market, meta.Symbol, err)
		}
		if rep == nil {
			continue
		}

		actual := domain.DirectionOf(rep.Price, snap.Close)
		rec := domain.AccuracyRecord{
			Market:          market,
			Symbol:          meta.Symbol,
			ReportDate:      rep.ReportDate,
			ReportPrice:     rep.Price,
			CompareDate:     snap.Date,
			ComparePrice:    snap.Close,
			Prediction:      rep.Prediction,
			ActualDirection: actual,
			Hit:             rep.Prediction == actual,
			CreatedAt:       now,
		}
		if err := r.repo.SaveAccuracy(rec); err != nil {
			return fmt.Errorf("score %s/%s: save: %w", market, meta.Symbol, err)
		}
		r.log.Info().
			Str("symbol", meta.Symbol).
			Str("report_date", rec.ReportDate).
			Str("prediction", string(rec.Prediction)).
			Str("actual", string(actual)).
			Bool("hit", rec.Hit).
			Msg("prediction scored")
	}
	return nil
}

// HitRate returns the share of scored predictions that matched, over the
// newest accuracyWindow records. ok is false when nothing is scored yet.
func (r *Reporter) HitRate(market domain.Market, symbol string) (rate float64, ok bool, err error) {
	history, err := r.repo.AccuracyHistory(market, symbol, accuracyWindow)
	if err != nil || len(history) == 0 {
		return 0, false, err
	}
	hits := make([]float64, len(history))
	for i, rec := range history {
		if rec.Hit {
			hits[i] = 1
		}
	}
	return stat.Mean(hits, nil), true, nil
}

// BuildBrief renders the plain-text daily message for one run. flows maps
// symbols to their institutional buy/sell balance and may be nil for
// markets without institutional reporting.
func (r *Reporter) BuildBrief(run domain.RunReport, verdicts map[string]Verdict, flows map[string]*domain.InstitutionalFlow) string {
	var b strings.Builder
	success, partial, failed := run.Counts()
	fmt.Fprintf(&b, "Daily market brief - %s (%s)\n", run.EndDate, strings.ToUpper(string(run.Market)))
	fmt.Fprintf(&b, "Symbols: %d ok, %d partial, %d failed\n", success, partial, failed)

	for _, res := range run.Symbols {
		b.WriteString("\n")
		r.writeSymbol(&b, res, verdicts[res.Symbol], flows[res.Symbol])
	}
	return b.String()
}

func (r *Reporter) writeSymbol(b *strings.Builder, res domain.SymbolResult, verdict Verdict, flow *domain.InstitutionalFlow) {
	if res.Snapshot == nil {
		reason := ""
		if out, ok := res.Outcomes[domain.CapPrices]; ok {
			reason = out.Reason
		}
		fmt.Fprintf(b, "%s: no data (%s)\n", res.Symbol, reason)
		return
	}
	snap := res.Snapshot
	fmt.Fprintf(b, "%s @ %.2f (%s)", res.Symbol, snap.Close, snap.Date)
	if verdict.Prediction != "" {
		fmt.Fprintf(b, " | call: %s", verdict.Prediction)
	}
	b.WriteString("\n")

	if ind := snap.Indicators; ind != nil {
		parts := make([]string, 0, 4)
		if ind.RSI14 != nil {
			parts = append(parts, fmt.Sprintf("RSI14 %.1f", *ind.RSI14))
		}
		if ind.SMA20 != nil {
			parts = append(parts, fmt.Sprintf("SMA20 %.2f", *ind.SMA20))
		}
		if ind.MACDHist != nil {
			parts = append(parts, fmt.Sprintf("MACD hist %+.3f", *ind.MACDHist))
		}
		if ind.BBUpper != nil && ind.BBLower != nil {
			parts = append(parts, fmt.Sprintf("BB %.2f..%.2f", *ind.BBLower, *ind.BBUpper))
		}
		if len(parts) > 0 {
			fmt.Fprintf(b, "  %s\n", strings.Join(parts, " | "))
		}
	}

	if flow != nil {
		fmt.Fprintf(b, "  institutional %s: net %+.0f", flow.Date, flow.TotalNet)
		if len(flow.ByGroup) > 0 {
			parts := make([]string, 0, len(flow.ByGroup))
			for _, g := range flow.ByGroup {
				parts = append(parts, fmt.Sprintf("%s %+.0f", g.Name, g.Net))
			}
			fmt.Fprintf(b, " (%s)", strings.Join(parts, ", "))
		}
		b.WriteString("\n")
	}

	if verdict.Summary != "" {
		fmt.Fprintf(b, "  %s\n", verdict.Summary)
	}

	if rate, ok, err := r.HitRate(res.Market, res.Symbol); err == nil && ok {
		fmt.Fprintf(b, "  hit rate: %.0f%%\n", rate*100)
	}

	news, err := r.repo.RecentNews(res.Market, res.Symbol, briefNewsItems)
	if err != nil {
		r.log.Warn().Err(err).Str("symbol", res.Symbol).Msg("brief: news lookup failed")
		return
	}
	for _, item := range news {
		fmt.Fprintf(b, "  - %s\n", item.Title)
	}
}
