package services

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"trading-engine/config"
	"trading-engine/internal/engine"
	"trading-engine/internal/models"
)

// feedCommand is the outbound subscribe/unsubscribe intent.
type feedCommand struct {
	Command string `json:"command"`
	Symbol  string `json:"symbol"`
}

// feedMessage is the inbound envelope; marketUpdate carries a tick batch.
type feedMessage struct {
	Type string              `json:"type"`
	Data []models.TickUpdate `json:"data"`
}

// FeedClient maintains the websocket connection to the upstream tick feed and
// drives the reconciler's connection lifecycle. Reconnection uses a fixed
// delay and capped attempts; once the cap is hit the client surfaces a
// persistent feed-unavailable state instead of retrying forever.
type FeedClient struct {
	url         string
	delay       time.Duration
	maxAttempts int

	mu          sync.Mutex
	conn        *websocket.Conn
	unavailable bool

	reconciler *engine.Reconciler
}

func NewFeedClient(cfg *config.Config) *FeedClient {
	return &FeedClient{
		url:         cfg.Feed.URL,
		delay:       cfg.Feed.ReconnectDelay,
		maxAttempts: cfg.Feed.ReconnectAttempts,
	}
}

// Bind attaches the reconciler. The reconciler needs the client as its
// SubscribeSender, so it is constructed after the client and bound here
// before Run starts.
func (f *FeedClient) Bind(reconciler *engine.Reconciler) {
	f.reconciler = reconciler
}

// SendSubscribe implements engine.SubscribeSender.
func (f *FeedClient) SendSubscribe(symbol string) error {
	return f.send(feedCommand{Command: "subscribeToStock", Symbol: symbol})
}

// SendUnsubscribe implements engine.SubscribeSender.
func (f *FeedClient) SendUnsubscribe(symbol string) error {
	return f.send(feedCommand{Command: "unsubscribeFromStock", Symbol: symbol})
}

func (f *FeedClient) send(cmd feedCommand) error {
	f.mu.Lock()
	conn := f.conn
	f.mu.Unlock()

	if conn == nil {
		return engine.ErrFeedUnavailable
	}
	return conn.WriteJSON(cmd)
}

// Available reports whether the feed is serving live data. False after the
// reconnect budget is exhausted; views then show last-known stale prices.
func (f *FeedClient) Available() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return !f.unavailable
}

// Run connects and reads tick batches until ctx is cancelled or the reconnect
// budget runs out. Intended to run in its own goroutine.
func (f *FeedClient) Run(ctx context.Context) {
	attempts := 0
	for {
		if ctx.Err() != nil {
			return
		}

		conn, _, err := websocket.DefaultDialer.DialContext(ctx, f.url, nil)
		if err != nil {
			attempts++
			slog.Warn("feed dial failed",
				slog.String("url", f.url),
				slog.Int("attempt", attempts),
				slog.Any("error", err))
			if attempts >= f.maxAttempts {
				f.markUnavailable()
				return
			}
			select {
			case <-time.After(f.delay):
			case <-ctx.Done():
				return
			}
			continue
		}

		attempts = 0
		f.setConn(conn)
		slog.Info("feed connected", slog.String("url", f.url))
		f.reconciler.HandleConnect()

		f.readLoop(ctx, conn)

		f.setConn(nil)
		f.reconciler.HandleDisconnect()
		slog.Warn("feed disconnected")

		select {
		case <-time.After(f.delay):
		case <-ctx.Done():
			return
		}
	}
}

func (f *FeedClient) readLoop(ctx context.Context, conn *websocket.Conn) {
	defer conn.Close()

	go func() {
		<-ctx.Done()
		conn.Close()
	}()

	for {
		_, raw, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				slog.Warn("feed read error", slog.Any("error", err))
			}
			return
		}

		var msg feedMessage
		if err := json.Unmarshal(raw, &msg); err != nil {
			slog.Warn("malformed feed message", slog.Any("error", err))
			continue
		}
		if msg.Type != "marketUpdate" {
			continue
		}
		f.reconciler.HandleTickBatch(msg.Data)
	}
}

func (f *FeedClient) setConn(conn *websocket.Conn) {
	f.mu.Lock()
	f.conn = conn
	if conn != nil {
		f.unavailable = false
	}
	f.mu.Unlock()
}

func (f *FeedClient) markUnavailable() {
	f.mu.Lock()
	f.unavailable = true
	f.mu.Unlock()
	slog.Error("feed unavailable: reconnect attempts exhausted",
		slog.Int("attempts", f.maxAttempts))
}
