package handlers

import (
	"context"
	"log/slog"
	"net/http"
	"sort"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"trading-engine/internal/engine"
	"trading-engine/internal/models"
)

const defaultMoversLimit = 10

// InstrumentFetcher seeds the registry for symbols it has not seen yet.
// Implemented by services.MarketDataService.
type InstrumentFetcher interface {
	FetchInstrument(ctx context.Context, symbol string) (models.InstrumentSnapshot, error)
}

// WatchlistRepository is the durable watched-symbol set. Implemented by
// storage.WatchlistStore.
type WatchlistRepository interface {
	Add(ctx context.Context, symbol string) error
	Remove(ctx context.Context, symbol string) error
	Symbols(ctx context.Context) ([]string, error)
}

type MarketHandler struct {
	registry      *engine.Registry
	views         *engine.ViewBuilder
	reconciler    *engine.Reconciler
	marketService InstrumentFetcher
	watchlist     WatchlistRepository
}

func NewMarketHandler(
	registry *engine.Registry,
	views *engine.ViewBuilder,
	reconciler *engine.Reconciler,
	marketService InstrumentFetcher,
	watchlist WatchlistRepository,
) *MarketHandler {
	return &MarketHandler{
		registry:      registry,
		views:         views,
		reconciler:    reconciler,
		marketService: marketService,
		watchlist:     watchlist,
	}
}

// GetAllStocks returns every registry snapshot, ordered by symbol.
func (h *MarketHandler) GetAllStocks(c *gin.Context) {
	snaps := h.registry.All()
	sort.Slice(snaps, func(i, j int) bool { return snaps[i].Symbol < snaps[j].Symbol })
	c.JSON(http.StatusOK, snaps)
}

// GetStock returns one snapshot. A symbol the registry has not seen yet is
// seeded lazily from the quotes API, then subscribed so ticks keep it fresh.
func (h *MarketHandler) GetStock(c *gin.Context) {
	symbol := strings.ToUpper(c.Param("symbol"))

	snap, err := h.registry.Get(symbol)
	if err != nil {
		fetched, fetchErr := h.marketService.FetchInstrument(c.Request.Context(), symbol)
		if fetchErr != nil {
			respondError(c, engine.ErrNotFound)
			return
		}
		if err := h.registry.Upsert(fetched); err != nil {
			respondError(c, err)
			return
		}
		snap, _ = h.registry.Get(symbol)
	}

	if err := h.reconciler.Subscribe(symbol); err != nil {
		slog.Warn("subscribe failed", slog.String("symbol", symbol), slog.Any("error", err))
	}
	c.JSON(http.StatusOK, snap)
}

func (h *MarketHandler) GetTopGainers(c *gin.Context) {
	c.JSON(http.StatusOK, h.views.TopGainers(limitParam(c)))
}

func (h *MarketHandler) GetTopLosers(c *gin.Context) {
	c.JSON(http.StatusOK, h.views.TopLosers(limitParam(c)))
}

func (h *MarketHandler) GetTopMovers(c *gin.Context) {
	gainers, losers := h.views.TopMovers(limitParam(c))
	c.JSON(http.StatusOK, gin.H{"gainers": gainers, "losers": losers})
}

// Search matches the query against symbol or company name.
func (h *MarketHandler) Search(c *gin.Context) {
	query := c.Query("q")
	if strings.TrimSpace(query) == "" {
		c.JSON(http.StatusOK, []models.InstrumentSnapshot{})
		return
	}
	results := h.views.Search(query)
	if results == nil {
		results = []models.InstrumentSnapshot{}
	}
	c.JSON(http.StatusOK, results)
}

// GetWatchlist returns watched symbols enriched with live snapshots. Symbols
// without market data yet appear as placeholders, not errors.
func (h *MarketHandler) GetWatchlist(c *gin.Context) {
	symbols, err := h.watchlist.Symbols(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load watchlist: " + err.Error()})
		return
	}
	c.JSON(http.StatusOK, h.views.EnrichWatchlist(symbols))
}

type addWatchlistRequest struct {
	Symbol string `json:"symbol" binding:"required"`
}

func (h *MarketHandler) AddToWatchlist(c *gin.Context) {
	var req addWatchlistRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request: " + err.Error()})
		return
	}
	symbol := strings.ToUpper(req.Symbol)

	if err := h.watchlist.Add(c.Request.Context(), symbol); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to add to watchlist: " + err.Error()})
		return
	}
	if err := h.reconciler.Subscribe(symbol); err != nil {
		slog.Warn("subscribe failed", slog.String("symbol", symbol), slog.Any("error", err))
	}
	c.JSON(http.StatusOK, gin.H{"message": "added to watchlist", "symbol": symbol})
}

func (h *MarketHandler) RemoveFromWatchlist(c *gin.Context) {
	symbol := strings.ToUpper(c.Param("symbol"))

	if err := h.watchlist.Remove(c.Request.Context(), symbol); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to remove from watchlist: " + err.Error()})
		return
	}
	if err := h.reconciler.Unsubscribe(symbol); err != nil {
		slog.Warn("unsubscribe failed", slog.String("symbol", symbol), slog.Any("error", err))
	}
	c.JSON(http.StatusOK, gin.H{"message": "removed from watchlist", "symbol": symbol})
}

func limitParam(c *gin.Context) int {
	limit, err := strconv.Atoi(c.DefaultQuery("limit", strconv.Itoa(defaultMoversLimit)))
	if err != nil || limit < 0 {
		return defaultMoversLimit
	}
	return limit
}
