// Package reconstruct turns a raw, unordered terminal deal log into the
// ordered report rows published for an account: closed positions and
// standalone balance adjustments, each with a running account balance.
package reconstruct

import (
	"sort"
	"time"

	"github.com/shopspring/decimal"

	"github.com/okorotkov/fleetsync/internal/domain"
)

// event is one reportable occurrence inside the window. Position events are
// keyed by their close time.
type event struct {
	time    time.Time
	balance *domain.BalanceEvent
	pos     *domain.Position
}

// Reconstruct builds the report rows for one account from every deal since
// the epoch. Deals strictly before windowStart only contribute to the
// starting balance; deals in [windowStart, now) become rows. The result is
// deterministic for a given input ordering: ties on event time keep input
// encounter order.
func Reconstruct(deals []domain.RawDeal, windowStart, now time.Time) []domain.ReportRow {
	starting := decimal.Zero
	var window []domain.RawDeal
	for _, d := range deals {
		switch {
		case d.Time.Before(windowStart):
			starting = starting.Add(d.Net())
		case d.Time.Before(now):
			window = append(window, d)
		}
	}

	var balances []*domain.BalanceEvent
	var positionDeals []domain.RawDeal
	for _, d := range window {
		switch {
		case d.Kind == domain.DealBalance:
			balances = append(balances, &domain.BalanceEvent{
				Ticket: d.Ticket,
				Time:   d.Time,
				Amount: d.Net(),
			})
		case d.PositionID != 0:
			positionDeals = append(positionDeals, d)
		}
	}

	positions := groupPositions(positionDeals)

	// Balance events first, then closed positions in first-encounter
	// order; the stable sort keeps that order for identical timestamps.
	events := make([]event, 0, len(balances)+len(positions))
	for _, b := range balances {
		events = append(events, event{time: b.Time, balance: b})
	}
	for _, p := range positions {
		if !p.Closed() {
			continue
		}
		events = append(events, event{time: p.CloseTime, pos: p})
	}
	sort.SliceStable(events, func(i, j int) bool {
		return events[i].time.Before(events[j].time)
	})

	rows := make([]domain.ReportRow, 0, len(events)+1)
	rows = append(rows, domain.ReportRow{
		Kind:    domain.RowStartingBalance,
		Time:    windowStart,
		Amount:  starting,
		Balance: starting,
	})

	running := starting
	for _, ev := range events {
		if ev.balance != nil {
			running = running.Add(ev.balance.Amount)
			rows = append(rows, domain.ReportRow{
				Kind:    domain.RowBalance,
				Time:    ev.balance.Time,
				Ticket:  ev.balance.Ticket,
				Amount:  ev.balance.Amount,
				Balance: running,
			})
			continue
		}

		running = running.Add(ev.pos.NetProfit)
		rows = append(rows, domain.ReportRow{
			Kind:     domain.RowPosition,
			Time:     ev.pos.CloseTime,
			Amount:   ev.pos.NetProfit,
			Balance:  running,
			Position: *ev.pos,
		})
	}

	return rows
}

// groupPositions folds position-linked deals into one record per
// position-group id, preserving the order in which ids first appear.
func groupPositions(deals []domain.RawDeal) []*domain.Position {
	byID := make(map[int64]*domain.Position)
	var order []int64

	for _, d := range deals {
		rec, ok := byID[d.PositionID]
		if !ok {
			rec = &domain.Position{
				PositionID: d.PositionID,
				Symbol:     d.Symbol,
			}
			byID[d.PositionID] = rec
			order = append(order, d.PositionID)
		}

		rec.NetProfit = rec.NetProfit.Add(d.Net())

		if d.OpensPosition() {
			if rec.OpenTime.IsZero() || d.Time.Before(rec.OpenTime) {
				rec.OpenTime = d.Time
				rec.OpenPrice = d.Price
				rec.Volume = d.Volume
				switch d.Kind {
				case domain.DealBuy:
					rec.Side = domain.SideBuy
				case domain.DealSell:
					rec.Side = domain.SideSell
				default:
					rec.Side = domain.SideUnknown
				}
			}
		}

		if d.ClosesPosition() {
			if rec.CloseTime.IsZero() || d.Time.After(rec.CloseTime) {
				rec.CloseTime = d.Time
				rec.ClosePrice = d.Price
			}
		}
	}

	out := make([]*domain.Position, 0, len(order))
	for _, id := range order {
		out = append(out, byID[id])
	}
	return out
}
