// Package universe maintains the trading-universe table: for every listed
// symbol it keeps a rolling window of daily open-to-close fractions fetched
// from the exchange.
package universe

import (
	"context"
	"encoding/json"
	"sort"
	"time"

	"github.com/adshao/go-binance/v2"
	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/okorotkov/fleetsync/internal/store"
)

const (
	colSymbol    = "symbol"
	colCloses    = "closes_30d"
	colUpdatedAt = "last_updated_at"

	dateLayout = "2006-01-02"
)

// ClosePoint is one daily open-to-close move, stored as a fraction.
type ClosePoint struct {
	Pct  float64 `json:"pct"`
	Date string  `json:"date"`
}

// Bar is one daily candle.
type Bar struct {
	Date  string
	Open  decimal.Decimal
	Close decimal.Decimal
}

// BarProvider fetches daily bars for a symbol over a time range.
type BarProvider interface {
	DailyBars(ctx context.Context, symbol string, start, end time.Time) ([]Bar, error)
}

// BinanceBars serves daily bars from the Binance klines endpoint.
type BinanceBars struct {
	client *binance.Client
}

func NewBinanceBars(client *binance.Client) *BinanceBars {
	return &BinanceBars{client: client}
}

func (b *BinanceBars) DailyBars(ctx context.Context, symbol string, start, end time.Time) ([]Bar, error) {
	klines, err := b.client.NewKlinesService().
		Symbol(symbol).
		Interval("1d").
		StartTime(start.Unix() * 1000).
		EndTime(end.Unix() * 1000).
		Do(ctx)
	if err != nil {
		return nil, errors.Wrapf(err, "klines %s", symbol)
	}

	bars := make([]Bar, 0, len(klines))
	for _, k := range klines {
		open, err := decimal.NewFromString(k.Open)
		if err != nil {
			continue
		}
		cls, err := decimal.NewFromString(k.Close)
		if err != nil {
			continue
		}
		bars = append(bars, Bar{
			Date:  time.UnixMilli(k.OpenTime).UTC().Format(dateLayout),
			Open:  open,
			Close: cls,
		})
	}
	return bars, nil
}

// Config bounds the updater.
type Config struct {
	Table      string        // universe table name
	WindowDays int           // rolling window length
	Interval   time.Duration // pause between full passes
}

// DefaultConfig keeps a 90-day window refreshed daily.
func DefaultConfig(table string) Config {
	return Config{
		Table:      table,
		WindowDays: 90,
		Interval:   24 * time.Hour,
	}
}

// Updater refreshes the rolling close-fraction series of every symbol in the
// universe table.
type Updater struct {
	table  store.TableAPI
	bars   BarProvider
	cfg    Config
	logger *zap.Logger
	clock  func() time.Time
}

func New(table store.TableAPI, bars BarProvider, cfg Config, logger *zap.Logger) *Updater {
	return &Updater{table: table, bars: bars, cfg: cfg, logger: logger, clock: time.Now}
}

// Run refreshes the universe on the configured interval until the context
// ends. A failed pass is logged and retried on the next tick.
func (u *Updater) Run(ctx context.Context) error {
	for {
		if err := u.UpdateOnce(ctx); err != nil {
			u.logger.Error("universe refresh failed", zap.Error(err))
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(u.cfg.Interval):
		}
	}
}

// UpdateOnce walks every universe row once: fetch fresh bars, merge them into
// the stored series by date, drop entries older than the window, and write
// the series back. Rows whose symbol yields no bars are left untouched.
func (u *Updater) UpdateOnce(ctx context.Context) error {
	header, err := u.table.HeaderRow(ctx, u.cfg.Table)
	if err != nil {
		return errors.Wrap(err, "universe header")
	}
	symbolCol, closesCol, updatedCol := findCol(header, colSymbol), findCol(header, colCloses), findCol(header, colUpdatedAt)
	if symbolCol == 0 || closesCol == 0 || updatedCol == 0 {
		return errors.Errorf("universe table %q is missing required columns", u.cfg.Table)
	}

	rows, err := u.table.Rows(ctx, u.cfg.Table)
	if err != nil {
		return errors.Wrap(err, "universe rows")
	}

	now := u.clock().UTC()
	start := now.AddDate(0, 0, -u.cfg.WindowDays)
	cutoff := start.Format(dateLayout)

	u.logger.Info("refreshing universe",
		zap.String("table", u.cfg.Table),
		zap.Int("instruments", max(0, len(rows)-1)))

	for i := 1; i < len(rows); i++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		row := rows[i]
		symbol := cell(row, symbolCol)
		if symbol == "" {
			continue
		}

		bars, err := u.bars.DailyBars(ctx, symbol, start, now)
		if err != nil {
			u.logger.Warn("bars fetch failed", zap.String("symbol", symbol), zap.Error(err))
			continue
		}
		if len(bars) == 0 {
			u.logger.Warn("no bars in range", zap.String("symbol", symbol))
			continue
		}

		series := decodeSeries(cell(row, closesCol))
		series = mergeBars(series, bars)
		series = prune(series, cutoff)
		sort.Slice(series, func(a, b int) bool { return series[a].Date < series[b].Date })
		if len(series) == 0 {
			continue
		}

		payload, err := json.Marshal(series)
		if err != nil {
			return errors.Wrapf(err, "encode closes for %s", symbol)
		}
		tableRow := i + 1 // rows are 1-based in the table service
		if err := u.table.WriteCell(ctx, u.cfg.Table, tableRow, closesCol, string(payload)); err != nil {
			return errors.Wrapf(err, "write closes for %s", symbol)
		}
		if err := u.table.WriteCell(ctx, u.cfg.Table, tableRow, updatedCol, now.Format(time.RFC3339)); err != nil {
			return errors.Wrapf(err, "write updated-at for %s", symbol)
		}

		u.logger.Info("universe symbol updated",
			zap.String("symbol", symbol),
			zap.Int("days", len(series)))
	}

	return nil
}

// decodeSeries tolerates an empty or malformed stored cell by starting over.
func decodeSeries(raw string) []ClosePoint {
	if raw == "" {
		return nil
	}
	var series []ClosePoint
	if err := json.Unmarshal([]byte(raw), &series); err != nil {
		return nil
	}
	return series
}

// mergeBars appends fractions for dates the series does not hold yet.
func mergeBars(series []ClosePoint, bars []Bar) []ClosePoint {
	seen := make(map[string]struct{}, len(series))
	for _, p := range series {
		seen[p.Date] = struct{}{}
	}
	for _, b := range bars {
		if _, ok := seen[b.Date]; ok {
			continue
		}
		pct := 0.0
		if !b.Open.IsZero() {
			pct, _ = b.Close.Sub(b.Open).Div(b.Open).Float64()
		}
		series = append(series, ClosePoint{Pct: pct, Date: b.Date})
		seen[b.Date] = struct{}{}
	}
	return series
}

func prune(series []ClosePoint, cutoff string) []ClosePoint {
	kept := series[:0]
	for _, p := range series {
		if p.Date >= cutoff {
			kept = append(kept, p)
		}
	}
	return kept
}

func findCol(header []string, name string) int {
	for i, h := range header {
		if h == name {
			return i + 1
		}
	}
	return 0
}

func cell(row []string, col int) string {
	if col-1 < len(row) {
		return row[col-1]
	}
	return ""
}
