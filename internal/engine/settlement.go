package engine

import (
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"trading-engine/internal/models"
)

// Settlement applies buy/sell requests atomically against the ledger and
// keeps the append-only order log. A single mutex serializes executions so
// two settlements never interleave their read-modify-write on the account.
type Settlement struct {
	mu       sync.Mutex
	registry *Registry
	ledger   *Ledger
	orders   []models.Order

	onOrderRecorded func(models.Order)
	onLedgerChanged func(models.Valuation)
}

func NewSettlement(registry *Registry, ledger *Ledger) *Settlement {
	return &Settlement{registry: registry, ledger: ledger}
}

// OnOrderRecorded registers the collaborator callback fired after each
// successful settlement. Registration happens during wiring.
func (s *Settlement) OnOrderRecorded(fn func(models.Order)) {
	s.onOrderRecorded = fn
}

// OnLedgerChanged registers the collaborator callback fired with the
// authoritative post-settlement valuation.
func (s *Settlement) OnLedgerChanged(fn func(models.Valuation)) {
	s.onLedgerChanged = fn
}

// Execute fills a market order at the registry price captured when settlement
// begins; the price is held immutable through the ledger mutation. On success
// it appends an immutable Order and returns it together with the
// post-settlement valuation, so callers never need a second round trip. Any
// validation failure leaves ledger and order log unchanged.
func (s *Settlement) Execute(symbol string, side models.OrderSide, quantity int64) (models.Order, models.Valuation, error) {
	if quantity <= 0 {
		return models.Order{}, models.Valuation{}, ErrInvalidQuantity
	}

	s.mu.Lock()

	snap, err := s.registry.Get(symbol)
	if err != nil {
		s.mu.Unlock()
		return models.Order{}, models.Valuation{}, fmt.Errorf("%w: %s", ErrUnknownInstrument, symbol)
	}
	price := snap.CurrentPrice

	switch side {
	case models.OrderSideBuy:
		err = s.ledger.ApplyBuy(symbol, quantity, price)
	case models.OrderSideSell:
		err = s.ledger.ApplySell(symbol, quantity, price)
	default:
		err = fmt.Errorf("invalid order side: %q", side)
	}
	if err != nil {
		s.mu.Unlock()
		return models.Order{}, models.Valuation{}, err
	}

	order := models.Order{
		ID:                   uuid.NewString(),
		Symbol:               symbol,
		Side:                 side,
		Quantity:             quantity,
		ExecutionPrice:       price,
		Timestamp:            time.Now(),
		ResultingCashBalance: s.ledger.CashBalance(),
	}
	s.orders = append(s.orders, order)
	valuation := s.ledger.Valuation()
	s.mu.Unlock()

	if s.onOrderRecorded != nil {
		s.onOrderRecorded(order)
	}
	if s.onLedgerChanged != nil {
		s.onLedgerChanged(valuation)
	}
	return order, valuation, nil
}

// Orders returns a copy of the order history, newest first.
func (s *Settlement) Orders() []models.Order {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]models.Order, len(s.orders))
	for i, order := range s.orders {
		out[len(s.orders)-1-i] = order
	}
	return out
}
