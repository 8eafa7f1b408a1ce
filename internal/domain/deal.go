package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// DealKind is the terminal's classification of a ledger entry.
type DealKind int

const (
	DealBuy DealKind = iota
	DealSell
	// DealBalance is a standalone deposit/withdrawal not linked to any
	// position.
	DealBalance
)

// DealEntry marks the role a deal plays in its position's lifecycle.
type DealEntry int

const (
	EntryUnknown DealEntry = iota
	EntryIn
	EntryOut
	// EntryInOut closes one position leg and opens another in a single
	// deal; it counts for both open and close attribution.
	EntryInOut
)

// RawDeal is one immutable ledger entry from the trading terminal's history.
// PositionID is zero when the deal is not position-linked.
type RawDeal struct {
	Ticket     int64
	PositionID int64
	Time       time.Time
	Symbol     string
	Kind       DealKind
	Entry      DealEntry
	Price      decimal.Decimal
	Volume     decimal.Decimal
	Profit     decimal.Decimal
	Swap       decimal.Decimal
	Commission decimal.Decimal
}

// Net returns the signed monetary effect of the deal on the account.
func (d RawDeal) Net() decimal.Decimal {
	return d.Profit.Add(d.Swap).Add(d.Commission)
}

// OpensPosition reports whether the deal contributes open attributes.
func (d RawDeal) OpensPosition() bool {
	return d.Entry == EntryIn || d.Entry == EntryInOut
}

// ClosesPosition reports whether the deal contributes close attributes.
func (d RawDeal) ClosesPosition() bool {
	return d.Entry == EntryOut || d.Entry == EntryInOut
}
