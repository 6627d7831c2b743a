package server

import (
	"encoding/json"
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/dsaito/agentboard/internal/bus"
	"github.com/dsaito/agentboard/internal/model"
	"github.com/dsaito/agentboard/internal/session"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = (pongWait * 9) / 10

	maxFrameSize = 4096

	// Client-bound queue. A connection that cannot drain it is
	// closed rather than backpressuring the bus.
	clientQueueSize = 256
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// The API is already world-readable on its bind address.
	CheckOrigin: func(*http.Request) bool { return true },
}

// wsClient is one WebSocket connection with its session
// subscription set.
type wsClient struct {
	conn *websocket.Conn
	send chan any

	mu   sync.Mutex
	subs map[string]struct{}

	closeOnce sync.Once
}

func newWSClient(conn *websocket.Conn) *wsClient {
	return &wsClient{
		conn: conn,
		send: make(chan any, clientQueueSize),
		subs: make(map[string]struct{}),
	}
}

// handleWebSocket upgrades the connection, replays the current
// session list, and then fans bus events out until the client goes
// away.
func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("ws: upgrade: %v", err)
		return
	}

	client := newWSClient(conn)
	sub := s.bus.Subscribe()

	client.enqueue(model.NewSessionsInit(s.registry.Sessions()))

	go client.writePump()
	routeDone := make(chan struct{})
	go func() {
		defer close(routeDone)
		client.route(sub)
	}()

	client.readPump(s.registry)

	// Reader is gone: detach from the bus, let the router drain,
	// then stop the writer.
	s.bus.Unsubscribe(sub)
	<-routeDone
	close(client.send)
	client.closeConn()
}

// enqueue hands v to the writer without blocking. A full queue
// means the client stopped draining; drop the connection.
func (c *wsClient) enqueue(v any) {
	select {
	case c.send <- v:
	default:
		log.Printf("ws: client queue full, closing connection")
		c.closeConn()
	}
}

func (c *wsClient) closeConn() {
	c.closeOnce.Do(func() { c.conn.Close() })
}

func (c *wsClient) subscribed(sessionID string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok := c.subs[sessionID]
	return ok
}

// route forwards bus events to the writer. Broadcast events pass
// through; messages are filtered by the subscription set.
func (c *wsClient) route(sub *bus.Subscriber) {
	broadcast, messages := sub.Broadcast, sub.Messages
	for broadcast != nil || messages != nil {
		select {
		case ev, ok := <-broadcast:
			if !ok {
				broadcast = nil
				continue
			}
			c.enqueue(ev)

		case ev, ok := <-messages:
			if !ok {
				messages = nil
				continue
			}
			if nm, isMsg := ev.(model.NewMessage); isMsg &&
				c.subscribed(nm.SessionID) {
				c.enqueue(ev)
			}
		}
	}
}

// readPump consumes client control frames until the connection
// drops. Malformed frames are ignored; the connection stays open.
func (c *wsClient) readPump(registry *session.Registry) {
	c.conn.SetReadLimit(maxFrameSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err,
				websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				log.Printf("ws: read: %v", err)
			}
			return
		}

		var ev model.ClientEvent
		if err := json.Unmarshal(data, &ev); err != nil {
			continue
		}
		switch ev.Type {
		case model.ClientSubscribe:
			if ev.SessionID == "" {
				continue
			}
			c.mu.Lock()
			c.subs[ev.SessionID] = struct{}{}
			c.mu.Unlock()
			// Replay the retained window so the client starts with
			// history. An unknown or empty session sends nothing.
			if msgs, ok := registry.Messages(ev.SessionID); ok && len(msgs) > 0 {
				c.enqueue(model.NewMessagesInit(ev.SessionID, msgs))
			}

		case model.ClientUnsubscribe:
			c.mu.Lock()
			delete(c.subs, ev.SessionID)
			c.mu.Unlock()
		}
	}
}

// writePump serializes all writes to the connection and keeps it
// alive with pings.
func (c *wsClient) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.closeConn()
	}()

	for {
		select {
		case v, ok := <-c.send:
			if !ok {
				c.conn.WriteControl(websocket.CloseMessage,
					websocket.FormatCloseMessage(
						websocket.CloseNormalClosure, ""),
					time.Now().Add(writeWait))
				return
			}
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteJSON(v); err != nil {
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(
				websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
