package universe

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type tableFake struct {
	grid [][]string
}

func (f *tableFake) Rows(ctx context.Context, table string) ([][]string, error) {
	return f.grid, nil
}

func (f *tableFake) HeaderRow(ctx context.Context, table string) ([]string, error) {
	return f.grid[0], nil
}

func (f *tableFake) ColValues(ctx context.Context, table string, col int) ([]string, error) {
	out := make([]string, 0, len(f.grid))
	for _, row := range f.grid {
		if col-1 < len(row) {
			out = append(out, row[col-1])
		} else {
			out = append(out, "")
		}
	}
	return out, nil
}

func (f *tableFake) ReadCell(ctx context.Context, table string, row, col int) (string, error) {
	return f.grid[row-1][col-1], nil
}

func (f *tableFake) WriteCell(ctx context.Context, table string, row, col int, value string) error {
	f.grid[row-1][col-1] = value
	return nil
}

func (f *tableFake) UpdateRange(ctx context.Context, table string, startRow, startCol int, values [][]string) error {
	return nil
}

func (f *tableFake) Clear(ctx context.Context, table string) error { return nil }

func (f *tableFake) EnsureTable(ctx context.Context, table string, rows, cols int) error {
	return nil
}

type barsFake struct {
	bySymbol map[string][]Bar
	errs     map[string]error
}

func (f *barsFake) DailyBars(ctx context.Context, symbol string, start, end time.Time) ([]Bar, error) {
	if err := f.errs[symbol]; err != nil {
		return nil, err
	}
	return f.bySymbol[symbol], nil
}

func bar(date string, open, cls float64) Bar {
	return Bar{Date: date, Open: decimal.NewFromFloat(open), Close: decimal.NewFromFloat(cls)}
}

func newTestUpdater(grid [][]string, bars *barsFake, now time.Time) (*Updater, *tableFake) {
	table := &tableFake{grid: grid}
	u := New(table, bars, DefaultConfig("trading_universe"), zap.NewNop())
	u.clock = func() time.Time { return now }
	return u, table
}

func TestUpdateOnceMergesAndSorts(t *testing.T) {
	now := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
	stored, _ := json.Marshal([]ClosePoint{{Pct: 0.01, Date: "2026-03-08"}})

	grid := [][]string{
		{"symbol", "closes_30d", "last_updated_at"},
		{"BTCUSDT", string(stored), ""},
	}
	bars := &barsFake{bySymbol: map[string][]Bar{
		"BTCUSDT": {
			bar("2026-03-09", 100, 102), // new, +0.02
			bar("2026-03-08", 100, 50),  // already stored, must not overwrite
			bar("2026-03-07", 200, 190), // new, -0.05
		},
	}}

	u, table := newTestUpdater(grid, bars, now)
	require.NoError(t, u.UpdateOnce(context.Background()))

	var series []ClosePoint
	require.NoError(t, json.Unmarshal([]byte(table.grid[1][1]), &series))
	require.Len(t, series, 3)

	assert.Equal(t, "2026-03-07", series[0].Date)
	assert.Equal(t, "2026-03-08", series[1].Date)
	assert.Equal(t, "2026-03-09", series[2].Date)

	assert.InDelta(t, -0.05, series[0].Pct, 1e-9)
	assert.InDelta(t, 0.01, series[1].Pct, 1e-9, "existing dates keep their stored value")
	assert.InDelta(t, 0.02, series[2].Pct, 1e-9)

	assert.Equal(t, now.Format(time.RFC3339), table.grid[1][2])
}

func TestUpdateOncePrunesOldEntries(t *testing.T) {
	now := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
	stored, _ := json.Marshal([]ClosePoint{
		{Pct: 0.03, Date: "2025-11-01"}, // older than the 90-day window
		{Pct: 0.02, Date: "2026-03-01"},
	})

	grid := [][]string{
		{"symbol", "closes_30d", "last_updated_at"},
		{"ETHUSDT", string(stored), ""},
	}
	bars := &barsFake{bySymbol: map[string][]Bar{
		"ETHUSDT": {bar("2026-03-09", 10, 11)},
	}}

	u, table := newTestUpdater(grid, bars, now)
	require.NoError(t, u.UpdateOnce(context.Background()))

	var series []ClosePoint
	require.NoError(t, json.Unmarshal([]byte(table.grid[1][1]), &series))
	require.Len(t, series, 2)
	assert.Equal(t, "2026-03-01", series[0].Date)
	assert.Equal(t, "2026-03-09", series[1].Date)
}

func TestUpdateOnceSkipsFailedAndEmptySymbols(t *testing.T) {
	now := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
	grid := [][]string{
		{"symbol", "closes_30d", "last_updated_at"},
		{"DOWNUSDT", "", "untouched"},
		{"", "", "untouched"},
		{"NODATAUSDT", "", "untouched"},
	}
	bars := &barsFake{
		bySymbol: map[string][]Bar{},
		errs:     map[string]error{"DOWNUSDT": errors.New("exchange unavailable")},
	}

	u, table := newTestUpdater(grid, bars, now)
	require.NoError(t, u.UpdateOnce(context.Background()))

	for i := 1; i < 4; i++ {
		assert.Equal(t, "untouched", table.grid[i][2], "row %d must not be written", i+1)
	}
}

func TestUpdateOnceMalformedStoredSeriesStartsOver(t *testing.T) {
	now := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
	grid := [][]string{
		{"symbol", "closes_30d", "last_updated_at"},
		{"BTCUSDT", "not json", ""},
	}
	bars := &barsFake{bySymbol: map[string][]Bar{
		"BTCUSDT": {bar("2026-03-09", 100, 101)},
	}}

	u, table := newTestUpdater(grid, bars, now)
	require.NoError(t, u.UpdateOnce(context.Background()))

	var series []ClosePoint
	require.NoError(t, json.Unmarshal([]byte(table.grid[1][1]), &series))
	require.Len(t, series, 1)
	assert.Equal(t, "2026-03-09", series[0].Date)
}

func TestZeroOpenYieldsZeroFraction(t *testing.T) {
	merged := mergeBars(nil, []Bar{{Date: "2026-03-09", Open: decimal.Zero, Close: decimal.NewFromInt(5)}})
	require.Len(t, merged, 1)
	assert.Zero(t, merged[0].Pct)
}
