package api

import (
	"encoding/json"
	"log"
	"net/http"
	"sync"
	"time"

	"ipnft-bridge/internal/bridge"

	"github.com/gorilla/websocket"
)

// --- WebSocket Hub ---

type Hub struct {
	clients    map[*Client]bool
	broadcast  chan []byte
	register   chan *Client
	unregister chan *Client
	mutex      sync.Mutex
}

type Client struct {
	hub  *Hub
	conn *websocket.Conn
	send chan []byte
}

var hub = &Hub{
	broadcast:  make(chan []byte),
	register:   make(chan *Client),
	unregister: make(chan *Client),
	clients:    make(map[*Client]bool),
}

func (h *Hub) run() {
	for {
		select {
		case client := <-h.register:
			h.mutex.Lock()
			h.clients[client] = true
			h.mutex.Unlock()
		case client := <-h.unregister:
			h.mutex.Lock()
			if _, ok := h.clients[client]; ok {
				delete(h.clients, client)
				close(client.send)
			}
			h.mutex.Unlock()
		case message := <-h.broadcast:
			h.mutex.Lock()
			for client := range h.clients {
				select {
				case client.send <- message:
				default:
					close(client.send)
					delete(h.clients, client)
				}
			}
			h.mutex.Unlock()
		}
	}
}

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
}

// handleStream upgrades to a websocket and streams every audit entry the
// engine records from this point on. Gated by the same JWT middleware as
// the rest of /system.
func (s *Server) handleStream(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Println("bridge stream upgrade error:", err)
		return
	}

	client := &Client{
		hub:  hub,
		conn: conn,
		send: make(chan []byte, 256),
	}

	hub.register <- client

	go func() {
		defer func() {
			hub.unregister <- client
			conn.Close()
		}()
		for {
			message, ok := <-client.send
			if !ok {
				conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			w, err := conn.NextWriter(websocket.TextMessage)
			if err != nil {
				return
			}
			w.Write(message)
			w.Close()
		}
	}()

	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			break
		}
	}
}

// auditStreamMessage is the wire shape pushed to /system/stream clients.
type auditStreamMessage struct {
	Type       string    `json:"type"`
	OccurredAt time.Time `json:"occurred_at"`
	Reason     string    `json:"reason"`
	Kind       string    `json:"kind,omitempty"`
	OpCount    int       `json:"op_count"`
}

// BroadcastAuditEntry fans one audit entry out to every connected
// /system/stream client. Wired as AppState.OnAudit so the engine itself
// stays free of any transport dependency.
func BroadcastAuditEntry(entry bridge.AuditEntry) {
	msg := auditStreamMessage{
		Type:       "audit_entry",
		OccurredAt: time.Now(),
		Reason:     entry.Reason,
		Kind:       entry.Kind,
		OpCount:    len(entry.Operations),
	}
	data, err := json.Marshal(msg)
	if err != nil {
		return
	}
	select {
	case hub.broadcast <- data:
	default:
	}
}

func init() {
	go hub.run()
}
