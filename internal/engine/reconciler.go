package engine

import (
	"errors"
	"log/slog"
	"sync"

	"trading-engine/internal/models"
)

type SubscriptionState int

const (
	StateUnsubscribed SubscriptionState = iota
	StateSubscribing
	StateSubscribed
)

func (s SubscriptionState) String() string {
	switch s {
	case StateSubscribing:
		return "SUBSCRIBING"
	case StateSubscribed:
		return "SUBSCRIBED"
	default:
		return "UNSUBSCRIBED"
	}
}

// SubscribeSender delivers subscribe/unsubscribe intents to the upstream feed
// connection. The feed treats a repeated subscribe for the same symbol as a
// no-op, so intents are safe to re-issue on reconnect.
type SubscribeSender interface {
	SendSubscribe(symbol string) error
	SendUnsubscribe(symbol string) error
}

// Reconciler merges asynchronous tick batches into the registry and tracks
// per-symbol subscription state across connects and disconnects. Ticks that
// race ahead of the initial REST snapshot are buffered (bounded, oldest
// dropped) and replayed once the full snapshot lands.
type Reconciler struct {
	registry  *Registry
	sender    SubscribeSender
	bufferCap int

	mu        sync.Mutex
	states    map[string]SubscriptionState
	buffer    []models.TickUpdate
	connected bool
}

func NewReconciler(registry *Registry, sender SubscribeSender, bufferCap int) *Reconciler {
	if bufferCap <= 0 {
		bufferCap = 256
	}
	r := &Reconciler{
		registry:  registry,
		sender:    sender,
		bufferCap: bufferCap,
		states:    make(map[string]SubscriptionState),
	}
	registry.OnChange(r.replayBuffered)
	return r
}

// Subscribe records interest in a symbol and issues the subscribe intent if
// the feed is connected. Subscribing an already-subscribed symbol is a no-op.
func (r *Reconciler) Subscribe(symbol string) error {
	r.mu.Lock()
	if st := r.states[symbol]; st == StateSubscribed {
		r.mu.Unlock()
		return nil
	}
	r.states[symbol] = StateSubscribing
	connected := r.connected
	r.mu.Unlock()

	if !connected {
		// Interest is held; HandleConnect re-issues the intent.
		return nil
	}
	if err := r.sender.SendSubscribe(symbol); err != nil {
		return err
	}

	r.mu.Lock()
	r.states[symbol] = StateSubscribed
	r.mu.Unlock()
	return nil
}

// Unsubscribe drops interest in a symbol. Unsubscribing a symbol that was
// never subscribed is a no-op.
func (r *Reconciler) Unsubscribe(symbol string) error {
	r.mu.Lock()
	if _, ok := r.states[symbol]; !ok {
		r.mu.Unlock()
		return nil
	}
	delete(r.states, symbol)
	connected := r.connected
	r.mu.Unlock()

	if connected {
		return r.sender.SendUnsubscribe(symbol)
	}
	return nil
}

// HandleConnect re-issues subscribe intents for every held symbol interest so
// a reconnect never silently drops a user's active subscriptions.
func (r *Reconciler) HandleConnect() {
	r.mu.Lock()
	r.connected = true
	symbols := make([]string, 0, len(r.states))
	for symbol := range r.states {
		r.states[symbol] = StateSubscribing
		symbols = append(symbols, symbol)
	}
	r.mu.Unlock()

	for _, symbol := range symbols {
		if err := r.sender.SendSubscribe(symbol); err != nil {
			slog.Warn("re-subscribe failed", slog.String("symbol", symbol), slog.Any("error", err))
			continue
		}
		r.mu.Lock()
		if _, ok := r.states[symbol]; ok {
			r.states[symbol] = StateSubscribed
		}
		r.mu.Unlock()
	}
}

// HandleDisconnect moves every symbol to UNSUBSCRIBED and flags registry
// entries stale. No market data is discarded.
func (r *Reconciler) HandleDisconnect() {
	r.mu.Lock()
	r.connected = false
	for symbol := range r.states {
		r.states[symbol] = StateUnsubscribed
	}
	r.mu.Unlock()

	r.registry.MarkAllStale()
}

// HandleTickBatch applies each tick for a subscribed symbol to the registry.
// Ticks for symbols the registry has not been seeded with yet are buffered
// for replay instead of being dropped silently.
func (r *Reconciler) HandleTickBatch(batch []models.TickUpdate) {
	for _, tick := range batch {
		r.mu.Lock()
		st, interested := r.states[tick.Symbol]
		if !interested || st == StateUnsubscribed {
			r.mu.Unlock()
			continue
		}
		if st == StateSubscribing {
			// A tick for the symbol confirms the subscription took effect.
			r.states[tick.Symbol] = StateSubscribed
		}
		r.mu.Unlock()

		if err := r.registry.ApplyTick(tick.Symbol, tick); errors.Is(err, ErrUnknownSymbol) {
			r.bufferTick(tick)
		}
	}
}

// State reports the subscription state for one symbol.
func (r *Reconciler) State(symbol string) SubscriptionState {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.states[symbol]
}

// BufferedTicks reports how many ticks are waiting for their snapshot.
func (r *Reconciler) BufferedTicks() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.buffer)
}

func (r *Reconciler) bufferTick(tick models.TickUpdate) {
	r.mu.Lock()
	r.buffer = append(r.buffer, tick)
	if len(r.buffer) > r.bufferCap {
		dropped := r.buffer[0]
		r.buffer = r.buffer[1:]
		slog.Debug("tick buffer full, dropping oldest", slog.String("symbol", dropped.Symbol))
	}
	r.mu.Unlock()
}

// replayBuffered runs on every registry change: once a full snapshot for a
// symbol arrives, its buffered ticks are applied in arrival order.
func (r *Reconciler) replayBuffered(symbol string) {
	r.mu.Lock()
	if len(r.buffer) == 0 {
		r.mu.Unlock()
		return
	}
	var replay []models.TickUpdate
	kept := r.buffer[:0]
	for _, tick := range r.buffer {
		if tick.Symbol == symbol {
			replay = append(replay, tick)
		} else {
			kept = append(kept, tick)
		}
	}
	r.buffer = kept
	r.mu.Unlock()

	for _, tick := range replay {
		if err := r.registry.ApplyTick(tick.Symbol, tick); err != nil {
			slog.Warn("buffered tick replay failed", slog.String("symbol", tick.Symbol), slog.Any("error", err))
		}
	}
}
