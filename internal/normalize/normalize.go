// Package normalize turns provider-shaped price rows into a clean,
// strictly ascending PriceBar series. The ordering and uniqueness it
// guarantees are invariants the indicator engine depends on.
package normalize

import (
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/greamown/stockCheck/internal/domain"
)

// dateLayouts are tried in order when parsing provider dates.
var dateLayouts = []string{
	"2006-01-02",
	"2006/01/02",
	"20060102",
	time.RFC3339,
}

// ParseDate parses a heterogeneous provider date into an ISO 8601
// calendar date. ROC-era dates (e.g. "114/01/06" from TWSE) are converted
// by adding 1911 to the year.
func ParseDate(raw string) (string, bool) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return "", false
	}

	// ROC calendar: y/m/d with a 2-3 digit year.
	if parts := strings.Split(s, "/"); len(parts) == 3 && len(parts[0]) <= 3 {
		year, errY := strconv.Atoi(parts[0])
		month, errM := strconv.Atoi(parts[1])
		day, errD := strconv.Atoi(parts[2])
		if errY == nil && errM == nil && errD == nil && year < 1000 {
			t := time.Date(year+1911, time.Month(month), day, 0, 0, 0, 0, time.UTC)
			if int(t.Month()) == month && t.Day() == day {
				return t.Format("2006-01-02"), true
			}
			return "", false
		}
	}

	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.Format("2006-01-02"), true
		}
	}
	return "", false
}

// ParseFloat coerces a provider numeric field. Comma grouping ("1,234,567")
// and surrounding whitespace are tolerated; "--" and empty strings parse
// as zero, matching exchange conventions for no-trade days.
func ParseFloat(raw string) (float64, bool) {
	s := strings.ReplaceAll(strings.TrimSpace(raw), ",", "")
	if s == "" || s == "--" {
		return 0, true
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, false
	}
	// NaN and infinities must never reach persistence.
	if v != v || v > 1e308 || v < -1e308 {
		return 0, false
	}
	return v, true
}

// Prices normalizes raw rows for one symbol: unparseable rows are dropped,
// date collisions keep the most recently fetched value, and the output is
// sorted strictly ascending by date.
func Prices(market domain.Market, symbol string, rows []domain.RawPriceRow) []domain.PriceBar {
	byDate := make(map[string]domain.PriceBar, len(rows))
	for _, row := range rows {
		bar, ok := toBar(market, symbol, row)
		if !ok {
			continue
		}
		// Last write wins within a single normalization pass.
		byDate[bar.Date] = bar
	}

	bars := make([]domain.PriceBar, 0, len(byDate))
	for _, bar := range byDate {
		bars = append(bars, bar)
	}
	sort.Slice(bars, func(i, j int) bool { return bars[i].Date < bars[j].Date })
	return bars
}

// FilterWindow keeps only bars with start <= date <= end. Both bounds are
// ISO dates; string comparison is safe on the normalized format.
func FilterWindow(bars []domain.PriceBar, start, end string) []domain.PriceBar {
	out := make([]domain.PriceBar, 0, len(bars))
	for _, bar := range bars {
		if bar.Date >= start && bar.Date <= end {
			out = append(out, bar)
		}
	}
	return out
}

func toBar(market domain.Market, symbol string, row domain.RawPriceRow) (domain.PriceBar, bool) {
	date, ok := ParseDate(row.Date)
	if !ok {
		return domain.PriceBar{}, false
	}
	open, okO := ParseFloat(row.Open)
	high, okH := ParseFloat(row.High)
	low, okL := ParseFloat(row.Low)
	closePx, okC := ParseFloat(row.Close)
	volume, okV := ParseFloat(row.Volume)
	if !okO || !okH || !okL || !okC || !okV {
		return domain.PriceBar{}, false
	}
	return domain.PriceBar{
		Market: market,
		Symbol: symbol,
		Date:   date,
		Open:   open,
		High:   high,
		Low:    low,
		Close:  closePx,
		Volume: volume,
		Source: row.Source,
	}, true
}
