package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// PositionSide is the direction of the opening deal of a position.
type PositionSide int

const (
	SideUnknown PositionSide = iota
	SideBuy
	SideSell
)

func (s PositionSide) String() string {
	switch s {
	case SideBuy:
		return "Buy"
	case SideSell:
		return "Sell"
	default:
		return "Unknown"
	}
}

// Position aggregates every deal sharing one position-group id into a single
// logical trade. Open attributes come from the earliest in/in-out deal, close
// attributes from the latest out/in-out deal; NetProfit sums the net amount
// of every linked deal regardless of role.
type Position struct {
	PositionID int64
	Symbol     string
	Side       PositionSide
	OpenTime   time.Time
	CloseTime  time.Time
	OpenPrice  decimal.Decimal
	ClosePrice decimal.Decimal
	Volume     decimal.Decimal
	NetProfit  decimal.Decimal
}

// Closed reports whether at least one closing deal was observed. Positions
// that never closed are still open and excluded from reports.
func (p Position) Closed() bool {
	return !p.CloseTime.IsZero()
}

// Opened reports whether an opening deal was observed for the group.
func (p Position) Opened() bool {
	return !p.OpenTime.IsZero()
}

// BalanceEvent is a standalone balance-adjustment deal.
type BalanceEvent struct {
	Ticket int64
	Time   time.Time
	Amount decimal.Decimal
}
