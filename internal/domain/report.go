package domain

import (
	"fmt"
	"strconv"
	"time"

	"github.com/shopspring/decimal"
)

// ReportHeader is the fixed header of every per-account report table.
var ReportHeader = []string{
	"AccountNumber", "PositionID", "Symbol", "Type", "Volume",
	"OpenPrice", "ClosePrice", "OpenTime", "CloseTime",
	"TotalNetProfit", "RunningBalance",
}

const (
	// Placeholder renders a cell whose value was never observed, as
	// opposed to an observed zero.
	Placeholder = "---"
	// StartingBalanceID is the PositionID literal of the synthetic first
	// report row.
	StartingBalanceID = "STARTING_BALANCE"
	// ReportTimeLayout is the timestamp format of report cells.
	ReportTimeLayout = "2006.01.02 15:04:05"
)

// ReportRowKind discriminates the three report row shapes.
type ReportRowKind int

const (
	RowStartingBalance ReportRowKind = iota
	RowBalance
	RowPosition
)

// ReportRow is one line of the published report. Amount is the row's net
// monetary effect; Balance is the running account balance after applying it.
type ReportRow struct {
	Kind    ReportRowKind
	Time    time.Time
	Amount  decimal.Decimal
	Balance decimal.Decimal

	// balance rows only
	Ticket int64

	// position rows only
	Position Position
}

func money(d decimal.Decimal) string  { return d.StringFixed(2) }
func price(d decimal.Decimal) string  { return d.StringFixed(5) }
func volume(d decimal.Decimal) string { return d.StringFixed(2) }

func reportTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.Format(ReportTimeLayout)
}

// Cells renders the row into the fixed report columns for the given login.
func (r ReportRow) Cells(login int64) []string {
	acc := strconv.FormatInt(login, 10)
	switch r.Kind {
	case RowStartingBalance:
		return []string{
			acc, StartingBalanceID, Placeholder, "Balance",
			Placeholder, Placeholder, Placeholder,
			reportTime(r.Time), Placeholder,
			money(r.Amount), money(r.Balance),
		}
	case RowBalance:
		return []string{
			acc, fmt.Sprintf("BAL-%d", r.Ticket), Placeholder, "Balance",
			Placeholder, Placeholder, Placeholder,
			reportTime(r.Time), Placeholder,
			money(r.Amount), money(r.Balance),
		}
	default:
		p := r.Position
		vol, openPrice, openTime := Placeholder, Placeholder, Placeholder
		if p.Opened() {
			vol = volume(p.Volume)
			openPrice = price(p.OpenPrice)
			openTime = reportTime(p.OpenTime)
		}
		symbol := p.Symbol
		if symbol == "" {
			symbol = Placeholder
		}
		return []string{
			acc,
			strconv.FormatInt(p.PositionID, 10),
			symbol,
			p.Side.String(),
			vol,
			openPrice,
			price(p.ClosePrice),
			openTime,
			reportTime(p.CloseTime),
			money(p.NetProfit),
			money(r.Balance),
		}
	}
}
