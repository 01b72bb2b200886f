// Package indicators computes the derived technical-indicator series from
// a normalized price series. Compute is a pure function of its input: no
// I/O, no hidden state, so recomputation is idempotent and every value for
// date D depends only on bars at or before D.
package indicators

import (
	"github.com/markcheno/go-talib"

	"github.com/greamown/stockCheck/internal/domain"
)

// Window lengths. The warm-up index of each indicator is derived from
// these: an indicator is undefined (nil) until enough bars exist.
const (
	smaShortPeriod  = 20
	smaLongPeriod   = 50
	emaFastPeriod   = 12
	emaSlowPeriod   = 26
	rsiPeriod       = 14
	macdSignalSpan  = 9
	bollingerPeriod = 20
	bollingerWidth  = 2.0
)

// Compute derives the full indicator series for an ordered price series.
// The input must be sorted strictly ascending by date (the normalizer's
// invariant); output has one row per input bar.
func Compute(bars []domain.PriceBar) []domain.IndicatorRow {
	n := len(bars)
	if n == 0 {
		return nil
	}

	closes := make([]float64, n)
	for i, bar := range bars {
		closes[i] = bar.Close
	}

	rows := make([]domain.IndicatorRow, n)
	for i, bar := range bars {
		rows[i] = domain.IndicatorRow{Market: bar.Market, Symbol: bar.Symbol, Date: bar.Date}
	}

	fillSeries(rows, sma(closes, smaShortPeriod), smaShortPeriod-1, func(r *domain.IndicatorRow, v *float64) { r.SMA20 = v })
	fillSeries(rows, sma(closes, smaLongPeriod), smaLongPeriod-1, func(r *domain.IndicatorRow, v *float64) { r.SMA50 = v })
	fillSeries(rows, ema(closes, emaFastPeriod), emaFastPeriod-1, func(r *domain.IndicatorRow, v *float64) { r.EMA12 = v })
	fillSeries(rows, ema(closes, emaSlowPeriod), emaSlowPeriod-1, func(r *domain.IndicatorRow, v *float64) { r.EMA26 = v })
	fillSeries(rows, rsi(closes, rsiPeriod), rsiPeriod, func(r *domain.IndicatorRow, v *float64) { r.RSI14 = v })

	macdLine, signalLine, histLine, macdFrom, signalFrom := macd(closes)
	fillSeries(rows, macdLine, macdFrom, func(r *domain.IndicatorRow, v *float64) { r.MACD = v })
	fillSeries(rows, signalLine, signalFrom, func(r *domain.IndicatorRow, v *float64) { r.MACDSignal = v })
	fillSeries(rows, histLine, signalFrom, func(r *domain.IndicatorRow, v *float64) { r.MACDHist = v })

	if n >= bollingerPeriod {
		upper, mid, lower := talib.BBands(closes, bollingerPeriod, bollingerWidth, bollingerWidth, talib.SMA)
		fillSeries(rows, upper, bollingerPeriod-1, func(r *domain.IndicatorRow, v *float64) { r.BBUpper = v })
		fillSeries(rows, mid, bollingerPeriod-1, func(r *domain.IndicatorRow, v *float64) { r.BBMid = v })
		fillSeries(rows, lower, bollingerPeriod-1, func(r *domain.IndicatorRow, v *float64) { r.BBLower = v })
	}

	return rows
}

// fillSeries copies values[i] into rows[i] for every index at or past the
// warm-up index. Earlier indexes stay nil: the value a library reports
// inside the warm-up window is meaningless padding.
func fillSeries(rows []domain.IndicatorRow, values []float64, from int, set func(*domain.IndicatorRow, *float64)) {
	for i := from; i < len(rows) && i < len(values); i++ {
		if isNaN(values[i]) {
			continue
		}
		v := values[i]
		set(&rows[i], &v)
	}
}

func sma(closes []float64, period int) []float64 {
	if len(closes) < period {
		return nil
	}
	return talib.Sma(closes, period)
}

// ema returns the exponential moving average seeded with the SMA of the
// first period closes, then smoothed with alpha = 2/(period+1).
func ema(closes []float64, period int) []float64 {
	if len(closes) < period {
		return nil
	}
	return talib.Ema(closes, period)
}

// rsi computes Wilder's RSI. The first value sits at index period and uses
// the simple mean of the first period gains/losses as seed; later values
// use Wilder smoothing. A zero average loss yields 100 by convention.
func rsi(closes []float64, period int) []float64 {
	if len(closes) <= period {
		return nil
	}

	out := make([]float64, len(closes))
	var avgGain, avgLoss float64
	for i := 1; i <= period; i++ {
		delta := closes[i] - closes[i-1]
		if delta > 0 {
			avgGain += delta
		} else {
			avgLoss -= delta
		}
	}
	avgGain /= float64(period)
	avgLoss /= float64(period)
	out[period] = rsiValue(avgGain, avgLoss)

	for i := period + 1; i < len(closes); i++ {
		delta := closes[i] - closes[i-1]
		gain, loss := 0.0, 0.0
		if delta > 0 {
			gain = delta
		} else {
			loss = -delta
		}
		avgGain = (avgGain*float64(period-1) + gain) / float64(period)
		avgLoss = (avgLoss*float64(period-1) + loss) / float64(period)
		out[i] = rsiValue(avgGain, avgLoss)
	}
	return out
}

func rsiValue(avgGain, avgLoss float64) float64 {
	if avgLoss == 0 {
		return 100
	}
	rs := avgGain / avgLoss
	return 100 - 100/(1+rs)
}

// macd builds MACD = EMA12 - EMA26, its EMA9 signal line and the
// histogram. The signal EMA is seeded from the MACD series itself, so the
// usual seeding rule applies recursively: the first signal value is the
// SMA9 of the first nine MACD values.
func macd(closes []float64) (macdLine, signalLine, histLine []float64, macdFrom, signalFrom int) {
	n := len(closes)
	macdFrom = emaSlowPeriod - 1
	signalFrom = macdFrom + macdSignalSpan - 1
	if n <= macdFrom {
		return nil, nil, nil, macdFrom, signalFrom
	}

	fast := talib.Ema(closes, emaFastPeriod)
	slow := talib.Ema(closes, emaSlowPeriod)
	macdLine = make([]float64, n)
	for i := macdFrom; i < n; i++ {
		macdLine[i] = fast[i] - slow[i]
	}

	if n < signalFrom+1 {
		return macdLine, nil, nil, macdFrom, signalFrom
	}

	signalTail := talib.Ema(macdLine[macdFrom:], macdSignalSpan)
	signalLine = make([]float64, n)
	histLine = make([]float64, n)
	for i := signalFrom; i < n; i++ {
		signalLine[i] = signalTail[i-macdFrom]
		histLine[i] = macdLine[i] - signalLine[i]
	}
	return macdLine, signalLine, histLine, macdFrom, signalFrom
}

func isNaN(f float64) bool {
	return f != f
}
