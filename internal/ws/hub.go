package ws

import (
	"encoding/json"
	"log"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/evetabi/buyback/internal/domain"
	"github.com/gorilla/websocket"
)

// ──────────────────────────────────────────────────────────────────────────────
// Tunables
// ──────────────────────────────────────────────────────────────────────────────

const (
	writeDeadline  = 10 * time.Second
	pingInterval   = 30 * time.Second
	pongWait       = 35 * time.Second // must be > pingInterval
	maxMessageSize = 512              // bytes; clients only send pongs
	sendBufferSize = 256              // messages in each client send channel
)

// ──────────────────────────────────────────────────────────────────────────────
// Client
// ──────────────────────────────────────────────────────────────────────────────

// Client represents one connected WebSocket endpoint.
type Client struct {
	hub     *Hub
	conn    *websocket.Conn
	send    chan []byte // buffered outbound message queue
	address string      // lowercased wallet address filter; "" = firehose
}

// ──────────────────────────────────────────────────────────────────────────────
// Hub
// ──────────────────────────────────────────────────────────────────────────────

// envelope pairs a serialized message with its address filter: "" fans out to
// everyone, otherwise it reaches the owner's clients plus firehose listeners.
type envelope struct {
	address string
	data    []byte
}

// Hub maintains the set of active clients and routes session/trade push
// messages. Run() must be called in a dedicated goroutine before ServeWs is
// used.
type Hub struct {
	// Registered clients and their concurrency guard.
	mu      sync.RWMutex
	clients map[*Client]bool

	// channels consumed by Run()
	broadcast  chan envelope
	register   chan *Client
	unregister chan *Client

	// upgrader is safe for concurrent use after construction.
	upgrader websocket.Upgrader
}

// NewHub creates a Hub ready to be started with Run().
func NewHub(allowedOrigins []string) *Hub {
	return &Hub{
		clients:    make(map[*Client]bool),
		broadcast:  make(chan envelope, 512),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *http.Request) bool {
				if len(allowedOrigins) == 0 {
					return true // dev mode: allow all
				}
				origin := r.Header.Get("Origin")
				for _, o := range allowedOrigins {
					if o == "*" || o == origin {
						return true
					}
				}
				return false
			},
		},
	}
}

// ──────────────────────────────────────────────────────────────────────────────
// Run — hub event loop
// ──────────────────────────────────────────────────────────────────────────────

// Run processes registration, unregistration, and broadcast events
// sequentially. Call it once as a goroutine.
func (h *Hub) Run() {
	for {
		select {
		case client := <-h.register:
			h.mu.Lock()
			h.clients[client] = true
			h.mu.Unlock()

		case client := <-h.unregister:
			h.mu.Lock()
			if _, ok := h.clients[client]; ok {
				delete(h.clients, client)
				close(client.send)
			}
			h.mu.Unlock()

		case env := <-h.broadcast:
			h.mu.RLock()
			for client := range h.clients {
				if env.address != "" && client.address != "" && client.address != env.address {
					continue
				}
				select {
				case client.send <- env.data:
				default:
					// Client's buffer full — drop the message for this client.
					// The writePump will detect a stalled connection separately.
				}
			}
			h.mu.RUnlock()
		}
	}
}

// ConnectedCount returns the current number of connected clients.
func (h *Hub) ConnectedCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// ──────────────────────────────────────────────────────────────────────────────
// ServeWs — HTTP → WebSocket upgrade
// ──────────────────────────────────────────────────────────────────────────────

// ServeWs upgrades an HTTP request to a WebSocket connection and starts the
// read/write pumps. Clients pass ?address=0x... to receive only updates for
// sessions owned by that wallet; without it every session update is
// delivered (dashboard mode).
func (h *Hub) ServeWs(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("ws.ServeWs: upgrade failed: %v", err)
		return
	}

	var address string
	if a := r.URL.Query().Get("address"); a != "" && common.IsHexAddress(a) {
		address = strings.ToLower(common.HexToAddress(a).Hex())
	}

	client := &Client{
		hub:     h,
		conn:    conn,
		send:    make(chan []byte, sendBufferSize),
		address: address,
	}
	h.register <- client

	go client.writePump()
	go client.readPump()
}

// ──────────────────────────────────────────────────────────────────────────────
// Client pumps
// ──────────────────────────────────────────────────────────────────────────────

// writePump drains the client's send channel and writes messages to the
// WebSocket connection. It also sends ping frames every pingInterval.
func (c *Client) writePump() {
	ticker := time.NewTicker(pingInterval)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeDeadline))
			if !ok {
				// Hub closed the channel.
				_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}

		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeDeadline))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// readPump reads frames from the WebSocket connection. Only pong messages
// are handled (they reset the read deadline). All other inbound messages are
// discarded — this is a server-push-only protocol. When the connection drops
// the client is unregistered.
func (c *Client) readPump() {
	defer func() {
		c.hub.unregister <- c
		c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, _, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err,
				websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				log.Printf("ws.readPump: unexpected close: %v", err)
			}
			return
		}
		// All inbound messages are silently dropped; server is push-only.
	}
}

// ──────────────────────────────────────────────────────────────────────────────
// Broadcast helpers — implement service.Broadcaster
// ──────────────────────────────────────────────────────────────────────────────

// BroadcastSessionUpdate pushes the session's state to its owner's clients.
func (h *Hub) BroadcastSessionUpdate(s *domain.TWAPSession) {
	h.push(s.UserAddress, SessionUpdateMessage{
		Type:      MsgTypeSessionUpdate,
		Session:   s,
		Timestamp: time.Now().UTC(),
	})
}

// BroadcastTradeExecuted pushes a trade outcome with the session progress it
// produced. A completing trade additionally emits session_completed.
func (h *Hub) BroadcastTradeExecuted(s *domain.TWAPSession, t *domain.TradeRecord) {
	now := time.Now().UTC()
	h.push(s.UserAddress, TradeExecutedMessage{
		Type:              MsgTypeTradeExecuted,
		SessionID:         s.ID,
		Trade:             t,
		SessionStatus:     s.Status,
		TradesCompleted:   s.TradesCompleted,
		NumTrades:         s.NumTrades,
		TotalMoveReceived: s.TotalMoveReceived,
		Timestamp:         now,
	})

	if s.Status == domain.StatusCompleted {
		h.push(s.UserAddress, SessionCompletedMessage{
			Type:              MsgTypeSessionCompleted,
			SessionID:         s.ID,
			TotalAmount:       s.TotalAmount,
			TotalMoveReceived: s.TotalMoveReceived,
			TradesCompleted:   s.TradesCompleted,
			Timestamp:         now,
		})
	}
}

// push is the common marshalling path.
func (h *Hub) push(address string, v interface{}) {
	data, err := json.Marshal(v)
	if err != nil {
		log.Printf("ws.Hub: marshal error: %v", err)
		return
	}
	select {
	case h.broadcast <- envelope{address: strings.ToLower(address), data: data}:
	default:
		log.Printf("ws.Hub: broadcast channel full, message dropped")
	}
}

// SendError writes an error message directly to one client's send channel.
func (h *Hub) SendError(client *Client, code, message string) {
	data, err := json.Marshal(ErrorMessage{
		Type:    MsgTypeError,
		Code:    code,
		Message: message,
	})
	if err != nil {
		return
	}
	select {
	case client.send <- data:
	default:
	}
}
