package engine

import (
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"trading-engine/internal/models"
)

var oneHundred = decimal.NewFromInt(100)

// ChangeListener is notified with the affected symbol after every successful
// registry mutation. Listeners run outside the registry lock and may read the
// registry, but must not block.
type ChangeListener func(symbol string)

// Registry owns the lifetime of every InstrumentSnapshot. Snapshots are
// mutated in place by ticks and REST refreshes and are never deleted while the
// registry is live; stale entries are only flagged.
type Registry struct {
	mu        sync.RWMutex
	snapshots map[string]*models.InstrumentSnapshot

	listenerMu sync.RWMutex
	listeners  []ChangeListener
}

func NewRegistry() *Registry {
	return &Registry{snapshots: make(map[string]*models.InstrumentSnapshot)}
}

// OnChange registers a listener for registry mutations. Registration happens
// during wiring, before the feed starts.
func (r *Registry) OnChange(fn ChangeListener) {
	r.listenerMu.Lock()
	r.listeners = append(r.listeners, fn)
	r.listenerMu.Unlock()
}

func (r *Registry) notify(symbol string) {
	r.listenerMu.RLock()
	listeners := r.listeners
	r.listenerMu.RUnlock()
	for _, fn := range listeners {
		fn(symbol)
	}
}

// Upsert inserts or replaces the snapshot for snap.Symbol. Change and
// ChangePercent are recomputed here so the registry never holds values that
// disagree with CurrentPrice and PreviousClose.
func (r *Registry) Upsert(snap models.InstrumentSnapshot) error {
	if snap.Symbol == "" || snap.CurrentPrice.IsNegative() {
		return ErrInvalidSnapshot
	}

	refreshDerived(&snap)
	snap.LastUpdated = time.Now()
	snap.Stale = false

	r.mu.Lock()
	stored := snap
	r.snapshots[snap.Symbol] = &stored
	r.mu.Unlock()

	r.notify(snap.Symbol)
	return nil
}

// ApplyTick merges a partial update into an existing snapshot. Callers must
// seed the symbol with a full snapshot first; ticks for unseeded symbols are
// rejected with ErrUnknownSymbol so the reconciler can buffer them.
func (r *Registry) ApplyTick(symbol string, tick models.TickUpdate) error {
	r.mu.Lock()
	snap, ok := r.snapshots[symbol]
	if !ok {
		r.mu.Unlock()
		return ErrUnknownSymbol
	}

	if tick.Price != nil {
		snap.CurrentPrice = *tick.Price
		refreshDerived(snap)
	}
	if tick.Volume != nil {
		snap.Volume = *tick.Volume
	}
	if tick.DayHigh != nil {
		snap.DayHigh = *tick.DayHigh
	}
	if tick.DayLow != nil {
		snap.DayLow = *tick.DayLow
	}
	snap.LastUpdated = time.Now()
	snap.Stale = false
	r.mu.Unlock()

	r.notify(symbol)
	return nil
}

// Get returns a copy of the snapshot for symbol, or ErrNotFound.
func (r *Registry) Get(symbol string) (models.InstrumentSnapshot, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	snap, ok := r.snapshots[symbol]
	if !ok {
		return models.InstrumentSnapshot{}, ErrNotFound
	}
	return *snap, nil
}

// All returns a copy of every snapshot. Order is not meaningful.
func (r *Registry) All() []models.InstrumentSnapshot {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]models.InstrumentSnapshot, 0, len(r.snapshots))
	for _, snap := range r.snapshots {
		out = append(out, *snap)
	}
	return out
}

// MarkAllStale flags every snapshot after a feed disconnect. Last-known prices
// stay visible; views compare LastUpdated and the flag to surface staleness.
func (r *Registry) MarkAllStale() {
	r.mu.Lock()
	for _, snap := range r.snapshots {
		snap.Stale = true
	}
	r.mu.Unlock()
}

func refreshDerived(s *models.InstrumentSnapshot) {
	s.Change = s.CurrentPrice.Sub(s.PreviousClose)
	if s.PreviousClose.IsZero() {
		// Newly listed instrument: percent change is undefined, not a fault.
		s.ChangePercent = decimal.NullDecimal{}
		return
	}
	s.ChangePercent = decimal.NullDecimal{
		Decimal: s.Change.Div(s.PreviousClose).Mul(oneHundred),
		Valid:   true,
	}
}
