package handlers

import (
	"context"
	"encoding/json"
	"strings"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/fundraising-token/backend/internal/events"
	"github.com/gofiber/contrib/websocket"
	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// WSHub streams ledger events to websocket clients. A client may pass
// ?account=0x... to receive only events about that account plus the
// ledger-wide ones (goal achieved, owner withdrawal, time-lock).
type WSHub struct {
	subscriber  events.Subscriber
	log         *zap.Logger
	mu          sync.RWMutex
	connections map[uuid.UUID]*wsClient
}

// wsWriteTimeout bounds one write; a client that cannot keep up is dropped.
const wsWriteTimeout = 5 * time.Second

type wsClient struct {
	conn    *websocket.Conn
	account string // empty = everything
	mu      sync.Mutex
}

func NewWSHub(subscriber events.Subscriber, log *zap.Logger) *WSHub {
	return &WSHub{
		subscriber:  subscriber,
		log:         log,
		connections: make(map[uuid.UUID]*wsClient),
	}
}

func (h *WSHub) Start(ctx context.Context) error {
	return h.subscriber.Subscribe(ctx, events.ChannelLedger, func(event events.Event) {
		h.broadcast(event)
	})
}

func (h *WSHub) broadcast(event events.Event) {
	data, err := json.Marshal(event)
	if err != nil {
		return
	}

	h.mu.RLock()
	defer h.mu.RUnlock()

	for id, cl := range h.connections {
		if !cl.wants(event) {
			continue
		}
		cl.mu.Lock()
		_ = cl.conn.SetWriteDeadline(time.Now().Add(wsWriteTimeout))
		err := cl.conn.WriteMessage(websocket.TextMessage, data)
		cl.mu.Unlock()
		if err != nil {
			h.log.Debug("dropping slow websocket client", zap.String("id", id.String()), zap.Error(err))
			// read loop в HandleWS завершится и удалит клиента
			_ = cl.conn.Close()
		}
	}
}

func (cl *wsClient) wants(event events.Event) bool {
	if cl.account == "" {
		return true
	}
	switch event.Type {
	case events.EventGoalAchieved, events.EventCollectedFundsWithdrawnByOwner, events.EventTimeLockOpened:
		return true
	}
	acc, _ := event.Payload["account"].(string)
	return strings.EqualFold(acc, cl.account)
}

// WSUpgradeMiddleware checks for websocket upgrade
func WSUpgradeMiddleware() fiber.Handler {
	return func(c *fiber.Ctx) error {
		if websocket.IsWebSocketUpgrade(c) {
			return c.Next()
		}
		return fiber.ErrUpgradeRequired
	}
}

func (h *WSHub) HandleWS(conn *websocket.Conn) {
	cl := &wsClient{conn: conn}
	if acc := conn.Query("account"); acc != "" {
		if !common.IsHexAddress(acc) {
			_ = conn.WriteMessage(websocket.TextMessage, []byte(`{"error":"invalid account"}`))
			conn.Close()
			return
		}
		cl.account = common.HexToAddress(acc).Hex()
	}

	id := uuid.New()
	h.mu.Lock()
	h.connections[id] = cl
	h.mu.Unlock()

	defer func() {
		h.mu.Lock()
		delete(h.connections, id)
		h.mu.Unlock()
		conn.Close()
	}()

	// Read loop (keep alive / pings)
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			break
		}
	}
}

// Clients returns the number of connected websocket clients.
func (h *WSHub) Clients() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.connections)
}
