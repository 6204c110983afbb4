package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// InstrumentSnapshot is the full point-in-time market state for one symbol.
// ChangePercent is null when PreviousClose is zero (newly listed instrument),
// never a division fault.
type InstrumentSnapshot struct {
	Symbol        string              `json:"symbol"`
	CompanyName   string              `json:"companyName"`
	CurrentPrice  decimal.Decimal     `json:"currentPrice"`
	Change        decimal.Decimal     `json:"change"`
	ChangePercent decimal.NullDecimal `json:"changePercent"`
	Volume        int64               `json:"volume"`
	OpenPrice     decimal.Decimal     `json:"openPrice"`
	PreviousClose decimal.Decimal     `json:"previousClose"`
	DayHigh       decimal.Decimal     `json:"dayHigh"`
	DayLow        decimal.Decimal     `json:"dayLow"`
	WeekHigh52    decimal.Decimal     `json:"weekHigh52"`
	WeekLow52     decimal.Decimal     `json:"weekLow52"`
	LastUpdated   time.Time           `json:"lastUpdated"`
	Stale         bool                `json:"stale"`
}

// TickUpdate is a partial, frequent update for one symbol. Nil fields were
// absent from the tick and leave the snapshot's value untouched.
type TickUpdate struct {
	Symbol  string           `json:"symbol"`
	Price   *decimal.Decimal `json:"price,omitempty"`
	Volume  *int64           `json:"volume,omitempty"`
	DayHigh *decimal.Decimal `json:"dayHigh,omitempty"`
	DayLow  *decimal.Decimal `json:"dayLow,omitempty"`
}

// Position is a held quantity of one symbol plus its weighted cost basis.
type Position struct {
	Symbol       string          `json:"symbol"`
	Quantity     int64           `json:"quantity"`
	AveragePrice decimal.Decimal `json:"averagePrice"`
}

type OrderSide string

const (
	OrderSideBuy  OrderSide = "BUY"
	OrderSideSell OrderSide = "SELL"
)

// Order is the immutable record of one settled trade.
type Order struct {
	ID                   string          `json:"id"`
	Symbol               string          `json:"symbol"`
	Side                 OrderSide       `json:"side"`
	Quantity             int64           `json:"quantity"`
	ExecutionPrice       decimal.Decimal `json:"executionPrice"`
	Timestamp            time.Time       `json:"timestamp"`
	ResultingCashBalance decimal.Decimal `json:"resultingCashBalance"`
}

// Valuation is the account summary recomputed on demand from the ledger and
// live registry prices.
type Valuation struct {
	CashBalance    decimal.Decimal `json:"cashBalance"`
	InvestedValue  decimal.Decimal `json:"investedValue"`
	CurrentValue   decimal.Decimal `json:"currentValue"`
	ProfitLoss     decimal.Decimal `json:"profitLoss"`
	PortfolioValue decimal.Decimal `json:"portfolioValue"`
}

// WatchlistEntry pairs a watched symbol with the registry's latest snapshot.
// The snapshot is looked up by symbol at read time; nil means the symbol has
// no market data yet, which is not an error.
type WatchlistEntry struct {
	Symbol   string              `json:"symbol"`
	Snapshot *InstrumentSnapshot `json:"snapshot,omitempty"`
}
