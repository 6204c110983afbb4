package services

import (
	"encoding/json"
	"log/slog"
	"time"

	"github.com/gorilla/websocket"

	"trading-engine/internal/models"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 512
)

// Event is the envelope pushed to UI clients after each engine state
// transition.
type Event struct {
	Type string `json:"type"`
	Data any    `json:"data"`
}

type moversPayload struct {
	Gainers []models.InstrumentSnapshot `json:"gainers"`
	Losers  []models.InstrumentSnapshot `json:"losers"`
}

// Hub fans engine events out to connected websocket clients.
type Hub struct {
	clients    map[*HubClient]bool
	broadcast  chan Event
	register   chan *HubClient
	unregister chan *HubClient
}

type HubClient struct {
	hub  *Hub
	conn *websocket.Conn
	send chan []byte
}

func NewHub() *Hub {
	return &Hub{
		clients:    make(map[*HubClient]bool),
		broadcast:  make(chan Event, 64),
		register:   make(chan *HubClient),
		unregister: make(chan *HubClient),
	}
}

func (h *Hub) Run() {
	for {
		select {
		case client := <-h.register:
			h.clients[client] = true
			slog.Info("ws client connected", slog.Int("clients", len(h.clients)))

		case client := <-h.unregister:
			if _, ok := h.clients[client]; ok {
				delete(h.clients, client)
				close(client.send)
				slog.Info("ws client disconnected", slog.Int("clients", len(h.clients)))
			}

		case event := <-h.broadcast:
			message, err := json.Marshal(event)
			if err != nil {
				slog.Error("marshal hub event", slog.Any("error", err))
				continue
			}

			for client := range h.clients {
				select {
				case client.send <- message:
				default:
					// Slow consumer; drop it rather than stall the hub.
					close(client.send)
					delete(h.clients, client)
				}
			}
		}
	}
}

// BroadcastMarketUpdate pushes a refreshed snapshot to all clients.
func (h *Hub) BroadcastMarketUpdate(snaps []models.InstrumentSnapshot) {
	h.broadcast <- Event{Type: "marketUpdate", Data: snaps}
}

// BroadcastViews pushes recomputed gainer/loser rankings.
func (h *Hub) BroadcastViews(gainers, losers []models.InstrumentSnapshot) {
	h.broadcast <- Event{Type: "viewsChanged", Data: moversPayload{Gainers: gainers, Losers: losers}}
}

// BroadcastValuation pushes the post-settlement account valuation.
func (h *Hub) BroadcastValuation(v models.Valuation) {
	h.broadcast <- Event{Type: "ledgerChanged", Data: v}
}

// BroadcastOrder pushes a newly recorded order.
func (h *Hub) BroadcastOrder(o models.Order) {
	h.broadcast <- Event{Type: "orderRecorded", Data: o}
}

func (h *Hub) RegisterClient(conn *websocket.Conn) *HubClient {
	client := &HubClient{
		hub:  h,
		conn: conn,
		send: make(chan []byte, 256),
	}
	h.register <- client
	return client
}

func (c *HubClient) ReadPump() {
	defer func() {
		c.hub.unregister <- c
		c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				slog.Warn("ws read error", slog.Any("error", err))
			}
			break
		}
	}
}

func (c *HubClient) WritePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}

			w, err := c.conn.NextWriter(websocket.TextMessage)
			if err != nil {
				return
			}
			w.Write(message)

			if err := w.Close(); err != nil {
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
