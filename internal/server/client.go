package server

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// WebSocket upgrader
var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
}

// Client represents a connected WebSocket client
type Client struct {
	conn   *websocket.Conn
	engine *Engine
	send   chan Message
	done   chan struct{}

	// One run at a time per connection
	mu        sync.Mutex
	runCancel context.CancelFunc
}

func newClient(conn *websocket.Conn, engine *Engine) *Client {
	return &Client{
		conn:   conn,
		engine: engine,
		send:   make(chan Message, 256),
		done:   make(chan struct{}),
	}
}

// SendMessage queues a message, waiting while the buffer is full.
// Messages are dropped once the connection is gone.
func (c *Client) SendMessage(msg Message) {
	select {
	case c.send <- msg:
	case <-c.done:
	}
}

func (c *Client) SendLog(message, level string) {
	c.SendMessage(NewLogMessage(message, level))
}

func (c *Client) SendError(message string, err error) {
	c.SendMessage(NewErrorMessage(message, err))
}

func (c *Client) writePump() {
	ticker := time.NewTicker(30 * time.Second)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case msg := <-c.send:
			if err := c.conn.WriteJSON(msg); err != nil {
				log.Printf("[ERROR] Error writing message: %v", err)
				return
			}

		case <-ticker.C:
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}

		case <-c.done:
			c.conn.WriteMessage(websocket.CloseMessage, []byte{})
			return
		}
	}
}

func (c *Client) readPump() {
	defer func() {
		close(c.done)
		c.mu.Lock()
		if c.runCancel != nil {
			c.runCancel()
		}
		c.mu.Unlock()
		c.conn.Close()
	}()

	for {
		var msg Message
		if err := c.conn.ReadJSON(&msg); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				log.Printf("[WARN] WebSocket error: %v", err)
			}
			return
		}

		switch msg.Type {
		case TypeLabel:
			c.handleLabel(msg)
		case TypePing:
			c.SendMessage(Message{Type: TypePong})
		default:
			c.SendError(fmt.Sprintf("Unknown message type: %s", msg.Type), nil)
		}
	}
}

func (c *Client) handleLabel(msg Message) {
	payload, err := ParseLabelPayload(msg)
	if err != nil {
		c.SendError("Failed to parse label request", err)
		return
	}
	req, err := NewRequest(payload.Format, payload.Hash, payload.Options)
	if err != nil {
		c.SendError("Invalid label request", err)
		return
	}

	c.mu.Lock()
	if c.runCancel != nil {
		c.mu.Unlock()
		c.SendError("Labeling already in progress", nil)
		return
	}
	ctx, cancel := context.WithCancel(context.Background())
	c.runCancel = cancel
	c.mu.Unlock()

	go func() {
		defer func() {
			cancel()
			c.mu.Lock()
			c.runCancel = nil
			c.mu.Unlock()
		}()

		session := NewSession(c.engine, c)
		if _, err := session.Run(ctx, req, strings.NewReader(payload.Records)); err != nil {
			if errors.Is(err, context.Canceled) {
				c.SendLog("Labeling cancelled", "warning")
			} else {
				c.SendError("Labeling failed", err)
			}
			return
		}
		c.SendMessage(NewCompleteMessage(true, "Labeling complete"))
	}()
}

func serveWs(engine *Engine, w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("[ERROR] Failed to upgrade connection: %v", err)
		return
	}

	client := newClient(conn, engine)

	go client.writePump()
	go client.readPump()
}
