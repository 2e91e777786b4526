package handlers

import (
	"encoding/json"
	"net/http"
	"net/url"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"
)

// getAllowedOrigins returns the list of allowed origins for WebSocket connections
func getAllowedOrigins() []string {
	origins := os.Getenv("ALLOWED_ORIGINS")
	if origins == "" {
		// Development defaults
		return []string{
			"http://localhost:3000",
			"http://localhost:4200",
			"http://localhost:5173",
			"http://127.0.0.1:3000",
			"http://127.0.0.1:4200",
			"http://127.0.0.1:5173",
		}
	}
	return strings.Split(origins, ",")
}

// isOriginAllowed checks if the origin is in the allowed list
func isOriginAllowed(origin string) bool {
	if origin == "" {
		// Same-origin requests carry no Origin header
		return true
	}

	parsedOrigin, err := url.Parse(origin)
	if err != nil {
		return false
	}
	normalizedOrigin := parsedOrigin.Scheme + "://" + parsedOrigin.Host

	for _, allowed := range getAllowedOrigins() {
		allowed = strings.TrimSpace(allowed)
		if normalizedOrigin == allowed {
			return true
		}
		if strings.HasPrefix(allowed, "*.") {
			suffix := allowed[1:]
			if strings.HasSuffix(parsedOrigin.Host, suffix) {
				return true
			}
		}
	}

	if os.Getenv("SC_ENV") != "production" {
		LogWarn("websocket connection from non-allowed origin", "origin", origin)
		return true
	}

	LogWarn("rejected websocket connection", "origin", origin)
	return false
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return isOriginAllowed(r.Header.Get("Origin"))
	},
}

// Event represents a change notification pushed to a user's live
// connections.
type Event struct {
	Type      string `json:"type"`     // e.g. "file.uploaded", "folder.deleted", "share.expiring"
	ItemType  string `json:"itemType"` // "file" or "folder"
	ItemID    string `json:"itemId"`
	Timestamp int64  `json:"timestamp"`
}

// wsClient represents an authenticated WebSocket connection
type wsClient struct {
	conn   *websocket.Conn
	send   chan []byte
	userID string
}

// EventHub maintains active connections grouped by user and delivers
// events only to that user's own connections.
type EventHub struct {
	clients    map[string]map[*wsClient]bool
	broadcast  chan userEvent
	register   chan *wsClient
	unregister chan *wsClient
	mu         sync.RWMutex
}

type userEvent struct {
	userID string
	event  Event
}

// NewEventHub creates and starts an event hub
func NewEventHub() *EventHub {
	hub := &EventHub{
		clients:    make(map[string]map[*wsClient]bool),
		broadcast:  make(chan userEvent, 100),
		register:   make(chan *wsClient),
		unregister: make(chan *wsClient),
	}
	go hub.run()
	return hub
}

func (h *EventHub) run() {
	for {
		select {
		case client := <-h.register:
			h.mu.Lock()
			if h.clients[client.userID] == nil {
				h.clients[client.userID] = make(map[*wsClient]bool)
			}
			h.clients[client.userID][client] = true
			h.mu.Unlock()
			LogInfo("websocket client connected", "user_id", client.userID)

		case client := <-h.unregister:
			h.mu.Lock()
			if conns, ok := h.clients[client.userID]; ok {
				if _, ok := conns[client]; ok {
					delete(conns, client)
					close(client.send)
					if len(conns) == 0 {
						delete(h.clients, client.userID)
					}
					LogInfo("websocket client disconnected", "user_id", client.userID)
				}
			}
			h.mu.Unlock()

		case ue := <-h.broadcast:
			data := mustMarshal(ue.event)
			h.mu.RLock()
			for client := range h.clients[ue.userID] {
				select {
				case client.send <- data:
				default:
					// Client buffer full, skip
				}
			}
			h.mu.RUnlock()
		}
	}
}

func mustMarshal(v interface{}) []byte {
	data, err := json.Marshal(v)
	if err != nil {
		return []byte("{}")
	}
	return data
}

// Broadcast queues an event for delivery to a user's connections
func (h *EventHub) Broadcast(userID string, event Event) {
	event.Timestamp = time.Now().Unix()
	select {
	case h.broadcast <- userEvent{userID: userID, event: event}:
	default:
		LogWarn("broadcast channel full, dropping event", "user_id", userID, "type", event.Type)
	}
}

// HandleWebSocket upgrades an authenticated connection. Browsers can't
// set the Authorization header on WebSocket requests, so the session
// token arrives as a query parameter.
func (h *Handler) HandleWebSocket(c echo.Context) error {
	claims, err := RequireClaims(c)
	if err != nil {
		return err
	}

	conn, err := upgrader.Upgrade(c.Response(), c.Request(), nil)
	if err != nil {
		LogError("websocket upgrade failed", err, "user_id", claims.UserID)
		return err
	}

	client := &wsClient{
		conn:   conn,
		send:   make(chan []byte, 256),
		userID: claims.UserID,
	}

	h.hub.register <- client

	go client.writePump()
	go client.readPump(h.hub)

	return nil
}

func (c *wsClient) readPump(hub *EventHub) {
	defer func() {
		hub.unregister <- c
		c.conn.Close()
	}()

	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				LogWarn("websocket read error", "user_id", c.userID, "error", err.Error())
			}
			break
		}
		// Inbound messages are ignored; the stream is server-to-client.
	}
}

func (c *wsClient) writePump() {
	defer c.conn.Close()

	for {
		message, ok := <-c.send
		if !ok {
			c.conn.WriteMessage(websocket.CloseMessage, []byte{})
			return
		}

		if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
			return
		}
	}
}
