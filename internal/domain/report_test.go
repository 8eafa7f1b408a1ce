package domain

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

func TestParseAccountStatus(t *testing.T) {
	tests := []struct {
		raw      string
		expected AccountStatus
	}{
		{"", StatusUnset},
		{"  Under Review ", StatusUnderReview},
		{"under review", StatusUnderReview},
		{"SUCCESS", StatusSuccess},
		{"Connected-NoData", StatusConnectedNoData},
		{"Invalid Logins", StatusInvalidLogins},
		{"something else", StatusUnset},
	}
	for _, tc := range tests {
		require.Equal(t, tc.expected, ParseAccountStatus(tc.raw), "raw=%q", tc.raw)
	}
}

func TestAccountStale(t *testing.T) {
	now := time.Date(2025, 9, 10, 12, 0, 0, 0, time.Local)
	threshold := 5 * time.Minute

	tests := []struct {
		name     string
		last     time.Time
		expected bool
	}{
		{"never updated", time.Time{}, true},
		{"just updated", now.Add(-time.Minute), false},
		{"exactly at threshold", now.Add(-threshold), false},
		{"past threshold", now.Add(-threshold - time.Second), true},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			a := Account{LastUpdate: tc.last}
			require.Equal(t, tc.expected, a.Stale(now, threshold))
		})
	}
}

func TestParseRosterTimeMalformed(t *testing.T) {
	require.True(t, ParseRosterTime("").IsZero())
	require.True(t, ParseRosterTime("not-a-date").IsZero())
	require.True(t, ParseRosterTime("2025/09/10 12:00:00").IsZero())

	parsed := ParseRosterTime("2025-09-10 12:00:00")
	require.Equal(t, time.Date(2025, 9, 10, 12, 0, 0, 0, time.Local), parsed)
}

func TestReportRowCells(t *testing.T) {
	open := time.Date(2025, 9, 2, 10, 0, 0, 0, time.Local)
	closeT := time.Date(2025, 9, 3, 15, 30, 0, 0, time.Local)

	t.Run("starting balance row", func(t *testing.T) {
		row := ReportRow{
			Kind:    RowStartingBalance,
			Time:    open,
			Amount:  decimal.NewFromFloat(1000),
			Balance: decimal.NewFromFloat(1000),
		}
		cells := row.Cells(123456)
		require.Len(t, cells, len(ReportHeader))
		require.Equal(t, "123456", cells[0])
		require.Equal(t, StartingBalanceID, cells[1])
		require.Equal(t, Placeholder, cells[2])
		require.Equal(t, "Balance", cells[3])
		require.Equal(t, "1000.00", cells[9])
		require.Equal(t, "1000.00", cells[10])
	})

	t.Run("balance row carries ticket", func(t *testing.T) {
		row := ReportRow{
			Kind:    RowBalance,
			Ticket:  42,
			Time:    open,
			Amount:  decimal.NewFromFloat(500),
			Balance: decimal.NewFromFloat(1500),
		}
		cells := row.Cells(123456)
		require.Equal(t, "BAL-42", cells[1])
		require.Equal(t, "500.00", cells[9])
		require.Equal(t, "1500.00", cells[10])
	})

	t.Run("position row formats prices to 5 decimals", func(t *testing.T) {
		row := ReportRow{
			Kind:    RowPosition,
			Time:    closeT,
			Amount:  decimal.NewFromFloat(-50),
			Balance: decimal.NewFromFloat(1450),
			Position: Position{
				PositionID: 777,
				Symbol:     "EURUSD",
				Side:       SideBuy,
				OpenTime:   open,
				CloseTime:  closeT,
				OpenPrice:  decimal.NewFromFloat(1.1),
				ClosePrice: decimal.NewFromFloat(1.09),
				Volume:     decimal.NewFromFloat(0.5),
				NetProfit:  decimal.NewFromFloat(-50),
			},
		}
		cells := row.Cells(123456)
		require.Equal(t, "777", cells[1])
		require.Equal(t, "EURUSD", cells[2])
		require.Equal(t, "Buy", cells[3])
		require.Equal(t, "0.50", cells[4])
		require.Equal(t, "1.10000", cells[5])
		require.Equal(t, "1.09000", cells[6])
		require.Equal(t, "2025.09.02 10:00:00", cells[7])
		require.Equal(t, "2025.09.03 15:30:00", cells[8])
		require.Equal(t, "-50.00", cells[9])
		require.Equal(t, "1450.00", cells[10])
	})

	t.Run("position with no observed open renders placeholders", func(t *testing.T) {
		row := ReportRow{
			Kind:    RowPosition,
			Time:    closeT,
			Balance: decimal.Zero,
			Position: Position{
				PositionID: 9,
				CloseTime:  closeT,
				ClosePrice: decimal.NewFromFloat(1.2),
			},
		}
		cells := row.Cells(1)
		require.Equal(t, Placeholder, cells[2]) // symbol
		require.Equal(t, "Unknown", cells[3])
		require.Equal(t, Placeholder, cells[4])
		require.Equal(t, Placeholder, cells[5])
		require.Equal(t, Placeholder, cells[7])
	})
}
