package services_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"trading-engine/config"
	"trading-engine/internal/engine"
	"trading-engine/internal/models"
	"trading-engine/internal/services"
)

func feedConfig(url string, attempts int) *config.Config {
	cfg := &config.Config{}
	cfg.Feed.URL = url
	cfg.Feed.ReconnectDelay = 10 * time.Millisecond
	cfg.Feed.ReconnectAttempts = attempts
	cfg.Feed.TickBufferSize = 8
	return cfg
}

func TestFeedClient_DeliversTicks(t *testing.T) {
	upgrader := websocket.Upgrader{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		require.NoError(t, err)
		defer conn.Close()

		// The client re-issues the held subscribe intent on connect.
		var cmd struct {
			Command string `json:"command"`
			Symbol  string `json:"symbol"`
		}
		require.NoError(t, conn.ReadJSON(&cmd))
		require.Equal(t, "subscribeToStock", cmd.Command)
		require.Equal(t, "AAPL", cmd.Symbol)

		batch, _ := json.Marshal(map[string]any{
			"type": "marketUpdate",
			"data": []map[string]any{{"symbol": "AAPL", "price": "123.45"}},
		})
		require.NoError(t, conn.WriteMessage(websocket.TextMessage, batch))

		// Hold the connection open until the test finishes.
		conn.ReadMessage()
	}))
	t.Cleanup(srv.Close)

	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http")
	cfg := feedConfig(wsURL, 3)

	registry := engine.NewRegistry()
	require.NoError(t, registry.Upsert(models.InstrumentSnapshot{
		Symbol:        "AAPL",
		CurrentPrice:  decimal.NewFromInt(100),
		PreviousClose: decimal.NewFromInt(100),
	}))

	feed := services.NewFeedClient(cfg)
	reconciler := engine.NewReconciler(registry, feed, cfg.Feed.TickBufferSize)
	feed.Bind(reconciler)

	// Interest registered before the feed connects must survive the connect.
	require.NoError(t, reconciler.Subscribe("AAPL"))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go feed.Run(ctx)

	require.Eventually(t, func() bool {
		snap, err := registry.Get("AAPL")
		return err == nil && snap.CurrentPrice.Equal(decimal.RequireFromString("123.45"))
	}, 2*time.Second, 10*time.Millisecond, "tick batch must reach the registry")

	assert.Equal(t, engine.StateSubscribed, reconciler.State("AAPL"))
	assert.True(t, feed.Available())
}

func TestFeedClient_ReconnectBudgetExhausted(t *testing.T) {
	// Nothing listens on this address; every dial fails fast.
	cfg := feedConfig("ws://127.0.0.1:1", 2)

	registry := engine.NewRegistry()
	feed := services.NewFeedClient(cfg)
	reconciler := engine.NewReconciler(registry, feed, cfg.Feed.TickBufferSize)
	feed.Bind(reconciler)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go feed.Run(ctx)

	require.Eventually(t, func() bool {
		return !feed.Available()
	}, 2*time.Second, 10*time.Millisecond, "capped retries must surface a persistent unavailable state")

	assert.ErrorIs(t, feed.SendSubscribe("AAPL"), engine.ErrFeedUnavailable)
}
