package handlers_test

import (
	"context"
	"encoding/json"
	"net/http"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"trading-engine/internal/engine"
	"trading-engine/internal/handlers"
	"trading-engine/internal/models"
)

// noopSender satisfies engine.SubscribeSender for handler tests.
type noopSender struct{}

func (noopSender) SendSubscribe(string) error   { return nil }
func (noopSender) SendUnsubscribe(string) error { return nil }

// mockFetcher is the InstrumentFetcher used for lazy registry seeding.
type mockFetcher struct {
	FetchInstrumentFunc func(ctx context.Context, symbol string) (models.InstrumentSnapshot, error)
}

func (m *mockFetcher) FetchInstrument(ctx context.Context, symbol string) (models.InstrumentSnapshot, error) {
	if m.FetchInstrumentFunc != nil {
		return m.FetchInstrumentFunc(ctx, symbol)
	}
	return models.InstrumentSnapshot{}, engine.ErrNotFound
}

// memWatchlist is an in-memory WatchlistRepository.
type memWatchlist struct {
	symbols []string
}

func (m *memWatchlist) Add(_ context.Context, symbol string) error {
	for _, s := range m.symbols {
		if s == symbol {
			return nil
		}
	}
	m.symbols = append(m.symbols, symbol)
	return nil
}

func (m *memWatchlist) Remove(_ context.Context, symbol string) error {
	kept := m.symbols[:0]
	for _, s := range m.symbols {
		if s != symbol {
			kept = append(kept, s)
		}
	}
	m.symbols = kept
	return nil
}

func (m *memWatchlist) Symbols(context.Context) ([]string, error) {
	return m.symbols, nil
}

type marketFixture struct {
	router     *gin.Engine
	registry   *engine.Registry
	reconciler *engine.Reconciler
	fetcher    *mockFetcher
	watchlist  *memWatchlist
}

func newMarketFixture(t *testing.T) *marketFixture {
	t.Helper()
	gin.SetMode(gin.TestMode)

	registry := engine.NewRegistry()
	views := engine.NewViewBuilder(registry)
	reconciler := engine.NewReconciler(registry, noopSender{}, 8)
	reconciler.HandleConnect()
	fetcher := &mockFetcher{}
	watchlist := &memWatchlist{}

	handler := handlers.NewMarketHandler(registry, views, reconciler, fetcher, watchlist)

	router := gin.New()
	market := router.Group("/api/market")
	{
		market.GET("/stocks", handler.GetAllStocks)
		market.GET("/stocks/:symbol", handler.GetStock)
		market.GET("/top-gainers", handler.GetTopGainers)
		market.GET("/top-losers", handler.GetTopLosers)
		market.GET("/top-movers", handler.GetTopMovers)
		market.GET("/search", handler.Search)
		market.GET("/watchlist", handler.GetWatchlist)
		market.POST("/watchlist", handler.AddToWatchlist)
		market.DELETE("/watchlist/:symbol", handler.RemoveFromWatchlist)
	}
	return &marketFixture{
		router:     router,
		registry:   registry,
		reconciler: reconciler,
		fetcher:    fetcher,
		watchlist:  watchlist,
	}
}

func (f *marketFixture) seed(t *testing.T, symbol, price, previousClose string) {
	t.Helper()
	require.NoError(t, f.registry.Upsert(models.InstrumentSnapshot{
		Symbol:        symbol,
		CompanyName:   symbol + " Inc.",
		CurrentPrice:  decimal.RequireFromString(price),
		PreviousClose: decimal.RequireFromString(previousClose),
	}))
}

func TestMarketHandler_GetAllStocks(t *testing.T) {
	f := newMarketFixture(t)
	f.seed(t, "MSFT", "300", "290")
	f.seed(t, "AAPL", "100", "90")

	w := doJSON(f.router, http.MethodGet, "/api/market/stocks", "")
	require.Equal(t, http.StatusOK, w.Code)

	var snaps []models.InstrumentSnapshot
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &snaps))
	require.Len(t, snaps, 2)
	assert.Equal(t, "AAPL", snaps[0].Symbol, "stocks are ordered by symbol")
	assert.Equal(t, "MSFT", snaps[1].Symbol)
}

func TestMarketHandler_GetStock_LazySeed(t *testing.T) {
	f := newMarketFixture(t)
	f.fetcher.FetchInstrumentFunc = func(_ context.Context, symbol string) (models.InstrumentSnapshot, error) {
		return models.InstrumentSnapshot{
			Symbol:        symbol,
			CompanyName:   "Netflix Inc.",
			CurrentPrice:  decimal.NewFromInt(500),
			PreviousClose: decimal.NewFromInt(480),
		}, nil
	}

	w := doJSON(f.router, http.MethodGet, "/api/market/stocks/nflx", "")
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var snap models.InstrumentSnapshot
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &snap))
	assert.Equal(t, "NFLX", snap.Symbol)

	// The symbol is now registered and subscribed for live ticks.
	_, err := f.registry.Get("NFLX")
	assert.NoError(t, err)
	assert.Equal(t, engine.StateSubscribed, f.reconciler.State("NFLX"))
}

func TestMarketHandler_GetStock_NotFound(t *testing.T) {
	f := newMarketFixture(t)

	w := doJSON(f.router, http.MethodGet, "/api/market/stocks/GHOST", "")
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestMarketHandler_TopMovers(t *testing.T) {
	f := newMarketFixture(t)
	f.seed(t, "TSLA", "220", "200") // +10%
	f.seed(t, "AAPL", "105", "100") // +5%
	f.seed(t, "AMZN", "92", "100")  // -8%

	w := doJSON(f.router, http.MethodGet, "/api/market/top-movers?limit=1", "")
	require.Equal(t, http.StatusOK, w.Code)

	var resp struct {
		Gainers []models.InstrumentSnapshot `json:"gainers"`
		Losers  []models.InstrumentSnapshot `json:"losers"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	require.Len(t, resp.Gainers, 1)
	require.Len(t, resp.Losers, 1)
	assert.Equal(t, "TSLA", resp.Gainers[0].Symbol)
	assert.Equal(t, "AMZN", resp.Losers[0].Symbol)
}

func TestMarketHandler_Search(t *testing.T) {
	f := newMarketFixture(t)
	f.seed(t, "AAPL", "100", "90")

	w := doJSON(f.router, http.MethodGet, "/api/market/search?q=aap", "")
	require.Equal(t, http.StatusOK, w.Code)
	var snaps []models.InstrumentSnapshot
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &snaps))
	require.Len(t, snaps, 1)
	assert.Equal(t, "AAPL", snaps[0].Symbol)

	// Blank query returns an empty list, not the whole market.
	w = doJSON(f.router, http.MethodGet, "/api/market/search?q=", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, "[]", w.Body.String())
}

func TestMarketHandler_Watchlist(t *testing.T) {
	f := newMarketFixture(t)
	f.seed(t, "AAPL", "100", "90")

	w := doJSON(f.router, http.MethodPost, "/api/market/watchlist", `{"symbol":"aapl"}`)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	w = doJSON(f.router, http.MethodPost, "/api/market/watchlist", `{"symbol":"NODATA"}`)
	require.Equal(t, http.StatusOK, w.Code)

	assert.Equal(t, engine.StateSubscribed, f.reconciler.State("AAPL"))

	w = doJSON(f.router, http.MethodGet, "/api/market/watchlist", "")
	require.Equal(t, http.StatusOK, w.Code)

	var entries []models.WatchlistEntry
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &entries))
	require.Len(t, entries, 2)
	require.NotNil(t, entries[0].Snapshot)
	assert.Equal(t, "AAPL", entries[0].Snapshot.Symbol)
	assert.Nil(t, entries[1].Snapshot, "watched symbol without market data gets a placeholder")

	w = doJSON(f.router, http.MethodDelete, "/api/market/watchlist/AAPL", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, engine.StateUnsubscribed, f.reconciler.State("AAPL"))

	symbols, err := f.watchlist.Symbols(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"NODATA"}, symbols)
}

func TestMarketHandler_AddToWatchlist_BadRequest(t *testing.T) {
	f := newMarketFixture(t)

	w := doJSON(f.router, http.MethodPost, "/api/market/watchlist", `{}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}
