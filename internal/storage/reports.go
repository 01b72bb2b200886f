package storage

import (
	"database/sql"
	"time"

	"github.com/greamown/stockCheck/internal/domain"
)

// SaveReport upserts the daily verdict for a symbol. Re-running the
// reporter for the same date replaces the row instead of duplicating it.
func (r *Repository) SaveReport(rep domain.Report) error {
	_, err := r.db.Exec(`
		INSERT OR REPLACE INTO reports
			(market, symbol, report_date, price, ai_summary, ai_prediction, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		rep.Market, rep.Symbol, rep.ReportDate, rep.Price,
		rep.Summary, rep.Prediction, rep.CreatedAt.UTC().Format(time.RFC3339))
	return err
}

// ReportOnOrBefore returns the newest report dated at or before cutoff,
// or nil when the symbol has no report history that old.
func (r *Repository) ReportOnOrBefore(market domain.Market, symbol, cutoff string) (*domain.Report, error) {
	var rep domain.Report
	var createdAt string
	err := r.db.QueryRow(`
		SELECT market, symbol, report_date, price, ai_summary, ai_prediction, created_at
		FROM reports
		WHERE market = ? AND symbol = ? AND report_date <= ?
		ORDER BY report_date DESC LIMIT 1`, market, symbol, cutoff).Scan(
		&rep.Market, &rep.Symbol, &rep.ReportDate, &rep.Price,
		&rep.Summary, &rep.Prediction, &createdAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	rep.CreatedAt, _ = time.Parse(time.RFC3339, createdAt)
	return &rep, nil
}

// SaveAccuracy upserts one scored prediction. The report date is the key:
// scoring the same report again refreshes the comparison.
func (r *Repository) SaveAccuracy(rec domain.AccuracyRecord) error {
	hit := 0
	if rec.Hit {
		hit = 1
	}
	_, err := r.db.Exec(`
		INSERT OR REPLACE INTO accuracy
			(market, symbol, report_date, report_price, compare_date, compare_price,
			 ai_prediction, actual_direction, hit, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.Market, rec.Symbol, rec.ReportDate, rec.ReportPrice,
		rec.CompareDate, rec.ComparePrice, rec.Prediction, rec.ActualDirection,
		hit, rec.CreatedAt.UTC().Format(time.RFC3339))
	return err
}

// AccuracyHistory returns the newest scored predictions for a symbol.
func (r *Repository) AccuracyHistory(market domain.Market, symbol string, limit int) ([]domain.AccuracyRecord, error) {
	rows, err := r.db.Query(`
		SELECT report_date, report_price, compare_date, compare_price,
		       ai_prediction, actual_direction, hit
		FROM accuracy
		WHERE market = ? AND symbol = ?
		ORDER BY report_date DESC LIMIT ?`, market, symbol, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.AccuracyRecord
	for rows.Next() {
		rec := domain.AccuracyRecord{Market: market, Symbol: symbol}
		var hit int
		if err := rows.Scan(&rec.ReportDate, &rec.ReportPrice, &rec.CompareDate,
			&rec.ComparePrice, &rec.Prediction, &rec.ActualDirection, &hit); err != nil {
			return nil, err
		}
		rec.Hit = hit == 1
		out = append(out, rec)
	}
	return out, rows.Err()
}
