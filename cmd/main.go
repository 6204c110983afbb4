package main

import (
	"context"
	"log"
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/shopspring/decimal"

	"trading-engine/config"
	"trading-engine/internal/engine"
	"trading-engine/internal/handlers"
	"trading-engine/internal/models"
	"trading-engine/internal/scheduler"
	"trading-engine/internal/services"
	"trading-engine/internal/storage"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true // Allow all origins in development
	},
}

func main() {
	cfg := config.MustLoad()
	setupLogger(cfg)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	initialCash, err := decimal.NewFromString(cfg.InitialCash)
	if err != nil {
		log.Fatalf("invalid INITIAL_CASH_BALANCE: %s", err)
	}

	mongoClient, err := config.ConnectDB(cfg)
	if err != nil {
		log.Fatalf("mongo connect failed: %s", err)
	}
	defer config.DisconnectDB(mongoClient)

	orderArchive := storage.NewOrderArchive(mongoClient, cfg.Mongo.Database)
	watchlistStore := storage.NewWatchlistStore(mongoClient, cfg.Mongo.Database)

	// Engine core. The view builder registers its invalidation hook first so
	// later registry listeners always observe fresh rankings.
	registry := engine.NewRegistry()
	views := engine.NewViewBuilder(registry)
	ledger := engine.NewLedger(registry, initialCash)
	settlement := engine.NewSettlement(registry, ledger)

	marketService := services.NewMarketDataService(cfg)
	feed := services.NewFeedClient(cfg)
	reconciler := engine.NewReconciler(registry, feed, cfg.Feed.TickBufferSize)
	feed.Bind(reconciler)

	hub := services.NewHub()
	go hub.Run()

	// Outbound collaborator events.
	registry.OnChange(func(symbol string) {
		if snap, err := registry.Get(symbol); err == nil {
			hub.BroadcastMarketUpdate([]models.InstrumentSnapshot{snap})
		}
		gainers, losers := views.TopMovers(cfg.GainersPageSize)
		hub.BroadcastViews(gainers, losers)
	})
	settlement.OnOrderRecorded(func(order models.Order) {
		hub.BroadcastOrder(order)
		archiveCtx, archiveCancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer archiveCancel()
		if err := orderArchive.Record(archiveCtx, order); err != nil {
			slog.Error("order archive write failed", slog.Any("error", err))
		}
	})
	settlement.OnLedgerChanged(hub.BroadcastValuation)

	// Seed the registry and restore watchlist subscriptions before the feed
	// starts delivering ticks.
	seedCtx, seedCancel := context.WithTimeout(ctx, 30*time.Second)
	if err := marketService.RefreshRegistry(seedCtx, registry); err != nil {
		slog.Error("initial registry seed failed", slog.Any("error", err))
	}
	seedCancel()

	if symbols, err := watchlistStore.Symbols(ctx); err == nil {
		for _, symbol := range symbols {
			if err := reconciler.Subscribe(symbol); err != nil {
				slog.Warn("watchlist subscribe failed", slog.String("symbol", symbol), slog.Any("error", err))
			}
		}
	} else {
		slog.Warn("watchlist restore failed", slog.Any("error", err))
	}

	go feed.Run(ctx)

	sched := scheduler.New()
	sched.NewIntervalJob("refresh snapshots", func(ctx context.Context) error {
		return marketService.RefreshRegistry(ctx, registry)
	}, cfg.Jobs.SnapshotRefreshInterval, false)
	sched.Start()
	defer sched.Stop()

	marketHandler := handlers.NewMarketHandler(registry, views, reconciler, marketService, watchlistStore)
	tradingHandler := handlers.NewTradingHandler(ledger, settlement)

	router := gin.Default()

	// CORS middleware
	router.Use(func(c *gin.Context) {
		c.Writer.Header().Set("Access-Control-Allow-Origin", "*")
		c.Writer.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		c.Writer.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")

		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(204)
			return
		}

		c.Next()
	})

	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status":        "OK",
			"feedAvailable": feed.Available(),
			"instruments":   len(registry.All()),
		})
	})

	// Market data routes
	market := router.Group("/api/market")
	{
		market.GET("/stocks", marketHandler.GetAllStocks)
		market.GET("/stocks/:symbol", marketHandler.GetStock)
		market.GET("/top-gainers", marketHandler.GetTopGainers)
		market.GET("/top-losers", marketHandler.GetTopLosers)
		market.GET("/top-movers", marketHandler.GetTopMovers)
		market.GET("/search", marketHandler.Search)
		market.GET("/watchlist", marketHandler.GetWatchlist)
		market.POST("/watchlist", marketHandler.AddToWatchlist)
		market.DELETE("/watchlist/:symbol", marketHandler.RemoveFromWatchlist)
	}

	// Trading routes
	demat := router.Group("/api/demat")
	{
		demat.GET("", tradingHandler.GetAccount)
		demat.POST("/buy", tradingHandler.Buy)
		demat.POST("/sell", tradingHandler.Sell)
		demat.GET("/orders", tradingHandler.GetOrders)
		demat.GET("/holdings", tradingHandler.GetHoldings)
		demat.POST("/add-funds", tradingHandler.AddFunds)
	}

	// WebSocket endpoint for UI clients
	router.GET("/ws", func(c *gin.Context) {
		conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
		if err != nil {
			slog.Warn("websocket upgrade failed", slog.Any("error", err))
			return
		}

		client := hub.RegisterClient(conn)
		go client.WritePump()
		go client.ReadPump()
	})

	slog.Info("trading engine listening", slog.String("port", cfg.Port))
	if err := router.Run(":" + cfg.Port); err != nil {
		log.Fatalf("server error: %s", err)
	}
}

func setupLogger(cfg *config.Config) {
	var logLevel slog.Level

	switch cfg.LogLevel {
	case "debug":
		logLevel = slog.LevelDebug
	case "info":
		logLevel = slog.LevelInfo
	case "warning":
		logLevel = slog.LevelWarn
	case "error":
		logLevel = slog.LevelError
	default:
		logLevel = slog.LevelInfo
	}

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: logLevel}))
	slog.SetDefault(logger)
}
