package engine

import (
	"sort"
	"strings"
	"sync"

	"trading-engine/internal/models"
)

// ViewBuilder computes ranked and filtered projections over the registry.
// Rankings are memoized and invalidated by the registry change hook, so a
// burst of reads between ticks sorts at most once. Instruments whose percent
// change is undefined (zero previous close) are excluded from rankings.
type ViewBuilder struct {
	registry *Registry

	mu      sync.Mutex
	gainers []models.InstrumentSnapshot
	losers  []models.InstrumentSnapshot
	valid   bool
}

func NewViewBuilder(registry *Registry) *ViewBuilder {
	v := &ViewBuilder{registry: registry}
	registry.OnChange(func(string) { v.Invalidate() })
	return v
}

// Invalidate drops the memoized rankings. Called by the registry hook after
// every upsert or tick.
func (v *ViewBuilder) Invalidate() {
	v.mu.Lock()
	v.valid = false
	v.mu.Unlock()
}

// TopGainers returns the n instruments with the highest percent change,
// ties broken by symbol ascending. n = 0 returns an empty slice.
func (v *ViewBuilder) TopGainers(n int) []models.InstrumentSnapshot {
	gainers, _ := v.rankings()
	return firstN(gainers, n)
}

// TopLosers returns the n instruments with the lowest percent change,
// ties broken by symbol ascending.
func (v *ViewBuilder) TopLosers(n int) []models.InstrumentSnapshot {
	_, losers := v.rankings()
	return firstN(losers, n)
}

// TopMovers returns both rankings from one consistent memoized pass.
func (v *ViewBuilder) TopMovers(n int) (gainers, losers []models.InstrumentSnapshot) {
	g, l := v.rankings()
	return firstN(g, n), firstN(l, n)
}

// Search matches query case-insensitively against symbol or company name.
// Results are ordered by symbol for stable output.
func (v *ViewBuilder) Search(query string) []models.InstrumentSnapshot {
	q := strings.ToLower(query)
	var out []models.InstrumentSnapshot
	for _, snap := range v.registry.All() {
		if strings.Contains(strings.ToLower(snap.Symbol), q) ||
			strings.Contains(strings.ToLower(snap.CompanyName), q) {
			out = append(out, snap)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Symbol < out[j].Symbol })
	return out
}

// EnrichWatchlist resolves each watched symbol against the registry at read
// time. Symbols without market data yet get a placeholder entry, never an
// error.
func (v *ViewBuilder) EnrichWatchlist(symbols []string) []models.WatchlistEntry {
	entries := make([]models.WatchlistEntry, 0, len(symbols))
	for _, symbol := range symbols {
		entry := models.WatchlistEntry{Symbol: symbol}
		if snap, err := v.registry.Get(symbol); err == nil {
			entry.Snapshot = &snap
		}
		entries = append(entries, entry)
	}
	return entries
}

func (v *ViewBuilder) rankings() (gainers, losers []models.InstrumentSnapshot) {
	v.mu.Lock()
	defer v.mu.Unlock()

	if !v.valid {
		ranked := make([]models.InstrumentSnapshot, 0)
		for _, snap := range v.registry.All() {
			if snap.ChangePercent.Valid {
				ranked = append(ranked, snap)
			}
		}

		v.gainers = make([]models.InstrumentSnapshot, len(ranked))
		copy(v.gainers, ranked)
		sort.Slice(v.gainers, func(i, j int) bool {
			a, b := v.gainers[i], v.gainers[j]
			if !a.ChangePercent.Decimal.Equal(b.ChangePercent.Decimal) {
				return a.ChangePercent.Decimal.GreaterThan(b.ChangePercent.Decimal)
			}
			return a.Symbol < b.Symbol
		})

		v.losers = make([]models.InstrumentSnapshot, len(ranked))
		copy(v.losers, ranked)
		sort.Slice(v.losers, func(i, j int) bool {
			a, b := v.losers[i], v.losers[j]
			if !a.ChangePercent.Decimal.Equal(b.ChangePercent.Decimal) {
				return a.ChangePercent.Decimal.LessThan(b.ChangePercent.Decimal)
			}
			return a.Symbol < b.Symbol
		})

		v.valid = true
	}

	return v.gainers, v.losers
}

func firstN(snaps []models.InstrumentSnapshot, n int) []models.InstrumentSnapshot {
	if n < 0 {
		n = 0
	}
	if n > len(snaps) {
		n = len(snaps)
	}
	out := make([]models.InstrumentSnapshot, n)
	copy(out, snaps[:n])
	return out
}
