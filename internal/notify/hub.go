package notify

import (
	"encoding/json"
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = (pongWait * 9) / 10
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// Hub pushes notifications to connected dashboard clients, keyed by user
// id. A user reconnecting displaces their previous connection. Everything
// sent through the hub also goes to the fallback, so nothing is lost when
// nobody is connected.
type Hub struct {
	fallback LogNotifier
	mu       sync.RWMutex
	clients  map[string]*client
}

type client struct {
	conn *websocket.Conn
	send chan []byte
	done chan struct{}
	once sync.Once
}

// shutdown asks the write pump to finish. The send channel is never
// closed; a displaced client may still be referenced by a concurrent
// Notify, so the pump alone owns the connection's lifecycle.
func (c *client) shutdown() {
	c.once.Do(func() { close(c.done) })
}

// NewHub creates the notification hub.
func NewHub() *Hub {
	return &Hub{clients: map[string]*client{}}
}

// Notify implements Notifier.
func (h *Hub) Notify(userID, title, body string, metadata map[string]interface{}) {
	h.fallback.Notify(userID, title, body, metadata)

	h.mu.RLock()
	c, ok := h.clients[userID]
	h.mu.RUnlock()
	if !ok {
		return
	}

	msg, err := json.Marshal(Notification{UserID: userID, Title: title, Body: body, Metadata: metadata})
	if err != nil {
		return
	}
	select {
	case <-c.done:
		// client displaced or disconnecting; the fallback already has it
	case c.send <- msg:
	default:
		// buffer full or client stalled; the fallback already has it
	}
}

// Subscribe upgrades the request and registers the connection for the
// given user until it closes.
func (h *Hub) Subscribe(w http.ResponseWriter, r *http.Request, userID string) error {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		return err
	}

	c := &client{conn: conn, send: make(chan []byte, 16), done: make(chan struct{})}
	h.mu.Lock()
	if old, ok := h.clients[userID]; ok {
		old.shutdown()
	}
	h.clients[userID] = c
	h.mu.Unlock()
	log.Printf("📡 dashboard connected: %s", userID)

	go c.writePump()
	go h.readPump(c, userID)
	return nil
}

func (h *Hub) readPump(c *client, userID string) {
	defer func() {
		h.mu.Lock()
		if h.clients[userID] == c {
			delete(h.clients, userID)
		}
		h.mu.Unlock()
		c.shutdown()
		c.conn.Close()
		log.Printf("📴 dashboard disconnected: %s", userID)
	}()
	c.conn.SetReadLimit(4096)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})
	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			return
		}
	}
}

func (c *client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()
	for {
		select {
		case <-c.done:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			c.conn.WriteMessage(websocket.CloseMessage, []byte{})
			return
		case msg := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
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
