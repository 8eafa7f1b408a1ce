package reconstruct

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/okorotkov/fleetsync/internal/domain"
)

var (
	windowStart = time.Date(2025, 9, 1, 0, 0, 0, 0, time.Local)
	nowTS       = time.Date(2025, 9, 30, 0, 0, 0, 0, time.Local)
)

func dec(f float64) decimal.Decimal { return decimal.NewFromFloat(f) }

func balanceDeal(ticket int64, at time.Time, amount float64) domain.RawDeal {
	return domain.RawDeal{
		Ticket: ticket,
		Time:   at,
		Kind:   domain.DealBalance,
		Profit: dec(amount),
	}
}

func positionDeal(ticket, pid int64, at time.Time, kind domain.DealKind, entry domain.DealEntry, price, vol, profit float64) domain.RawDeal {
	return domain.RawDeal{
		Ticket:     ticket,
		PositionID: pid,
		Time:       at,
		Symbol:     "EURUSD",
		Kind:       kind,
		Entry:      entry,
		Price:      dec(price),
		Volume:     dec(vol),
		Profit:     dec(profit),
	}
}

func TestReconstructScenarioFromSpec(t *testing.T) {
	// starting balance 1000, deposit +500 at T1, closed position -50 at T2.
	t1 := windowStart.Add(24 * time.Hour)
	t2 := windowStart.Add(48 * time.Hour)

	deals := []domain.RawDeal{
		balanceDeal(1, windowStart.Add(-30*24*time.Hour), 1000),
		balanceDeal(2, t1, 500),
		positionDeal(3, 77, t1.Add(time.Hour), domain.DealBuy, domain.EntryIn, 1.10000, 0.50, 0),
		positionDeal(4, 77, t2, domain.DealSell, domain.EntryOut, 1.09000, 0.50, -50),
	}

	rows := Reconstruct(deals, windowStart, nowTS)
	require.Len(t, rows, 3)

	require.Equal(t, domain.RowStartingBalance, rows[0].Kind)
	require.Equal(t, "1000", rows[0].Amount.String())
	require.Equal(t, "1000", rows[0].Balance.String())

	require.Equal(t, domain.RowBalance, rows[1].Kind)
	require.Equal(t, "500", rows[1].Amount.String())
	require.Equal(t, "1500", rows[1].Balance.String())

	require.Equal(t, domain.RowPosition, rows[2].Kind)
	require.Equal(t, "-50", rows[2].Amount.String())
	require.Equal(t, "1450", rows[2].Balance.String())
}

func TestReconstructPositionNetProfitInvariant(t *testing.T) {
	// entry, partial exit, final exit: net must be the exact sum.
	t0 := windowStart.Add(time.Hour)
	deals := []domain.RawDeal{
		positionDeal(1, 5, t0, domain.DealBuy, domain.EntryIn, 1.2, 1.0, 0),
		func() domain.RawDeal {
			d := positionDeal(2, 5, t0.Add(time.Hour), domain.DealSell, domain.EntryOut, 1.21, 0.5, 10.5)
			d.Swap = dec(-0.3)
			d.Commission = dec(-0.2)
			return d
		}(),
		func() domain.RawDeal {
			d := positionDeal(3, 5, t0.Add(2*time.Hour), domain.DealSell, domain.EntryOut, 1.22, 0.5, 20)
			d.Swap = dec(-1)
			d.Commission = dec(-0.5)
			return d
		}(),
	}

	rows := Reconstruct(deals, windowStart, nowTS)
	require.Len(t, rows, 2)

	pos := rows[1]
	require.Equal(t, domain.RowPosition, pos.Kind)
	require.Equal(t, "28.5", pos.Position.NetProfit.String()) // 10.5-0.3-0.2+20-1-0.5
	// close attributes come from the latest exit deal
	require.Equal(t, "1.22", pos.Position.ClosePrice.String())
	require.Equal(t, t0.Add(2*time.Hour), pos.Position.CloseTime)
	// open attributes from the earliest entry deal
	require.Equal(t, "1.2", pos.Position.OpenPrice.String())
	require.Equal(t, domain.SideBuy, pos.Position.Side)
}

func TestReconstructOpenPositionsExcluded(t *testing.T) {
	deals := []domain.RawDeal{
		positionDeal(1, 9, windowStart.Add(time.Hour), domain.DealBuy, domain.EntryIn, 1.0, 1.0, 0),
	}

	rows := Reconstruct(deals, windowStart, nowTS)
	require.Len(t, rows, 1, "only the starting balance row")
	require.Equal(t, domain.RowStartingBalance, rows[0].Kind)
}

func TestReconstructIdempotent(t *testing.T) {
	tie := windowStart.Add(5 * time.Hour)
	deals := []domain.RawDeal{
		balanceDeal(1, tie, 100),
		positionDeal(2, 1, windowStart.Add(time.Hour), domain.DealSell, domain.EntryIn, 2.0, 1.0, 0),
		positionDeal(3, 1, tie, domain.DealBuy, domain.EntryOut, 1.9, 1.0, 25),
		balanceDeal(4, tie, -40),
	}

	first := Reconstruct(deals, windowStart, nowTS)
	second := Reconstruct(deals, windowStart, nowTS)
	require.Equal(t, first, second)

	// balance events with the same timestamp as the position close keep
	// input encounter order: both balances precede the position row.
	require.Len(t, first, 4)
	require.Equal(t, domain.RowBalance, first[1].Kind)
	require.Equal(t, domain.RowBalance, first[2].Kind)
	require.Equal(t, domain.RowPosition, first[3].Kind)
}

func TestReconstructRunningBalanceFold(t *testing.T) {
	tie := windowStart.Add(time.Hour)
	deals := []domain.RawDeal{
		balanceDeal(1, windowStart.Add(-time.Hour), 200), // pre-window
		balanceDeal(2, tie, 50),
		positionDeal(3, 2, windowStart.Add(time.Minute), domain.DealBuy, domain.EntryIn, 1.0, 1.0, 0),
		positionDeal(4, 2, tie, domain.DealSell, domain.EntryOut, 1.1, 1.0, 30),
		balanceDeal(5, tie, -10),
	}

	rows := Reconstruct(deals, windowStart, nowTS)
	require.NotEmpty(t, rows)

	total := rows[0].Amount
	for _, r := range rows[1:] {
		total = total.Add(r.Amount)
	}
	last := rows[len(rows)-1]
	require.True(t, last.Balance.Equal(total),
		"last running balance %s != starting + sum of amounts %s", last.Balance, total)
}

func TestReconstructInOutDealCountsForBothRoles(t *testing.T) {
	t0 := windowStart.Add(time.Hour)
	deals := []domain.RawDeal{
		positionDeal(1, 3, t0, domain.DealBuy, domain.EntryIn, 1.0, 1.0, 0),
		positionDeal(2, 3, t0.Add(time.Hour), domain.DealSell, domain.EntryInOut, 1.05, 1.0, 15),
	}

	rows := Reconstruct(deals, windowStart, nowTS)
	require.Len(t, rows, 2)
	pos := rows[1].Position
	require.True(t, pos.Closed())
	require.Equal(t, t0, pos.OpenTime, "earliest in deal wins open attribution")
	require.Equal(t, t0.Add(time.Hour), pos.CloseTime)
	require.Equal(t, "1.05", pos.ClosePrice.String())
}

func TestReconstructDealsOutsideWindowIgnored(t *testing.T) {
	deals := []domain.RawDeal{
		balanceDeal(1, nowTS.Add(time.Hour), 999), // after the window
	}
	rows := Reconstruct(deals, windowStart, nowTS)
	require.Len(t, rows, 1)
	require.True(t, rows[0].Amount.IsZero())
}
