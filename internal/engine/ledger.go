package engine

import (
	"sort"
	"sync"

	"github.com/shopspring/decimal"

	"trading-engine/internal/models"
)

// Ledger owns the cash balance and every Position. All mutators validate
// before writing anything, so a rejected trade leaves the ledger untouched.
type Ledger struct {
	mu       sync.Mutex
	registry *Registry
	cash     decimal.Decimal
	holdings map[string]*models.Position
}

func NewLedger(registry *Registry, initialCash decimal.Decimal) *Ledger {
	return &Ledger{
		registry: registry,
		cash:     initialCash,
		holdings: make(map[string]*models.Position),
	}
}

// ApplyBuy debits quantity*price from cash and folds the purchase into the
// position's weighted average cost. First buy of a symbol creates the
// position at the execution price.
func (l *Ledger) ApplyBuy(symbol string, quantity int64, price decimal.Decimal) error {
	if quantity <= 0 {
		return ErrInvalidQuantity
	}
	cost := price.Mul(decimal.NewFromInt(quantity))

	l.mu.Lock()
	defer l.mu.Unlock()

	if cost.GreaterThan(l.cash) {
		return ErrInsufficientFunds
	}

	pos, ok := l.holdings[symbol]
	if !ok {
		l.holdings[symbol] = &models.Position{
			Symbol:       symbol,
			Quantity:     quantity,
			AveragePrice: price,
		}
	} else {
		oldCost := pos.AveragePrice.Mul(decimal.NewFromInt(pos.Quantity))
		newQuantity := pos.Quantity + quantity
		pos.AveragePrice = oldCost.Add(cost).Div(decimal.NewFromInt(newQuantity))
		pos.Quantity = newQuantity
	}

	l.cash = l.cash.Sub(cost)
	return nil
}

// ApplySell credits quantity*price to cash and reduces the position. The
// average cost of the remaining shares is untouched by a partial sale; a
// position that reaches zero quantity is destroyed.
func (l *Ledger) ApplySell(symbol string, quantity int64, price decimal.Decimal) error {
	if quantity <= 0 {
		return ErrInvalidQuantity
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	pos, ok := l.holdings[symbol]
	if !ok || pos.Quantity < quantity {
		return ErrInsufficientHoldings
	}

	l.cash = l.cash.Add(price.Mul(decimal.NewFromInt(quantity)))
	pos.Quantity -= quantity
	if pos.Quantity == 0 {
		delete(l.holdings, symbol)
	}
	return nil
}

// AddFunds credits a positive amount to the cash balance and returns the new
// balance.
func (l *Ledger) AddFunds(amount decimal.Decimal) (decimal.Decimal, error) {
	if !amount.IsPositive() {
		return decimal.Decimal{}, ErrInvalidAmount
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	l.cash = l.cash.Add(amount)
	return l.cash, nil
}

// CashBalance returns the current cash balance.
func (l *Ledger) CashBalance() decimal.Decimal {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.cash
}

// Holdings returns a copy of every position, ordered by symbol.
func (l *Ledger) Holdings() []models.Position {
	l.mu.Lock()
	defer l.mu.Unlock()

	out := make([]models.Position, 0, len(l.holdings))
	for _, pos := range l.holdings {
		out = append(out, *pos)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Symbol < out[j].Symbol })
	return out
}

// Valuation recomputes the account aggregates from holdings and live registry
// prices. A symbol missing from the registry (should not happen after a
// settled buy) is valued at cost so totals stay complete.
func (l *Ledger) Valuation() models.Valuation {
	l.mu.Lock()
	defer l.mu.Unlock()

	invested := decimal.Zero
	current := decimal.Zero
	for symbol, pos := range l.holdings {
		qty := decimal.NewFromInt(pos.Quantity)
		invested = invested.Add(pos.AveragePrice.Mul(qty))

		price := pos.AveragePrice
		if snap, err := l.registry.Get(symbol); err == nil {
			price = snap.CurrentPrice
		}
		current = current.Add(price.Mul(qty))
	}

	return models.Valuation{
		CashBalance:    l.cash,
		InvestedValue:  invested,
		CurrentValue:   current,
		ProfitLoss:     current.Sub(invested),
		PortfolioValue: l.cash.Add(current),
	}
}
