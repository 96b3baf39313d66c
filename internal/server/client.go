package server

import (
	"bytes"
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 64 * 1024
)

var (
	newline = []byte{'\n'}
	space   = []byte{' '}
)

// Client is one websocket connection. Every client streams the user's
// conversation list; opening a conversation additionally streams that
// conversation's messages, with at most one open conversation per client.
type Client struct {
	hub  *Hub
	conn *websocket.Conn
	send chan []byte

	userID   uuid.UUID
	clientID string

	ctx    context.Context
	cancel context.CancelFunc

	mu         sync.Mutex
	openCancel context.CancelFunc

	// sendMu serializes sends on the send channel with its close, so a feed
	// snapshot arriving during teardown is dropped instead of hitting a
	// closed channel.
	sendMu sync.Mutex
	closed bool
}

// ClientMessage is one inbound frame.
type ClientMessage struct {
	Type           string    `json:"type"`
	ConversationID uuid.UUID `json:"conversation_id,omitempty"`
}

type serverFrame struct {
	Type  string      `json:"type"`
	Stale bool        `json:"stale,omitempty"`
	Data  interface{} `json:"data"`
}

func NewClient(hub *Hub, conn *websocket.Conn, userID uuid.UUID, clientID string) *Client {
	ctx, cancel := context.WithCancel(context.Background())
	return &Client{
		hub:      hub,
		conn:     conn,
		send:     make(chan []byte, 256),
		userID:   userID,
		clientID: clientID,
		ctx:      ctx,
		cancel:   cancel,
	}
}

func (c *Client) close() {
	c.cancel()
	c.sendMu.Lock()
	if !c.closed {
		c.closed = true
		close(c.send)
	}
	c.sendMu.Unlock()
	c.conn.Close()
}

// startConversationFeed streams the user's conversation list for the life of
// the connection.
func (c *Client) startConversationFeed() {
	feed, err := c.hub.feeds.ConversationList(c.ctx, c.userID)
	if err != nil {
		if c.hub.log != nil {
			c.hub.log.Errorf("conversation feed failed for user %s: %v", c.userID, err)
		}
		return
	}
	go func() {
		defer feed.Close()
		for update := range feed.Updates() {
			c.enqueue(serverFrame{Type: "conversations", Stale: update.Stale, Data: update.Conversations})
		}
	}()
}

func (c *Client) handleOpen(conversationID uuid.UUID) {
	if err := c.hub.presence.MarkConversationOpen(c.ctx, c.userID, conversationID); err != nil {
		if c.hub.log != nil {
			c.hub.log.Warnf("mark open failed user=%s conversation=%s: %v", c.userID, conversationID, err)
		}
		c.enqueue(serverFrame{Type: "error", Data: "cannot open conversation"})
		return
	}

	feedCtx, feedCancel := context.WithCancel(c.ctx)
	feed, err := c.hub.feeds.Messages(feedCtx, conversationID, c.userID)
	if err != nil {
		feedCancel()
		if c.hub.log != nil {
			c.hub.log.Warnf("message feed failed user=%s conversation=%s: %v", c.userID, conversationID, err)
		}
		c.enqueue(serverFrame{Type: "error", Data: "cannot open conversation"})
		return
	}

	c.swapOpenFeed(feedCancel)

	go func() {
		defer feed.Close()
		for update := range feed.Updates() {
			c.enqueue(serverFrame{Type: "messages", Stale: update.Stale, Data: update.Messages})
		}
	}()
}

func (c *Client) handleClose() {
	c.swapOpenFeed(nil)
}

// swapOpenFeed cancels the previous open-conversation feed, if any, and
// installs the new cancel func.
func (c *Client) swapOpenFeed(cancel context.CancelFunc) {
	c.mu.Lock()
	prev := c.openCancel
	c.openCancel = cancel
	c.mu.Unlock()
	if prev != nil {
		prev()
	}
}

func (c *Client) enqueue(frame serverFrame) {
	data, err := json.Marshal(frame)
	if err != nil {
		return
	}
	c.sendMu.Lock()
	defer c.sendMu.Unlock()
	if c.closed {
		return
	}
	select {
	case c.send <- data:
	default:
		if c.hub.log != nil {
			c.hub.log.Warnf("client send buffer full user=%s client=%s", c.userID, c.clientID)
		}
	}
}

func (c *Client) readPump() {
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
		_, message, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				if c.hub.log != nil {
					c.hub.log.Errorf("websocket unexpected close user=%s: %v", c.userID, err)
				}
			}
			break
		}

		message = bytes.TrimSpace(bytes.Replace(message, newline, space, -1))
		if err := c.handleMessage(message); err != nil {
			if c.hub.log != nil {
				c.hub.log.Errorf("websocket handle message failed user=%s: %v", c.userID, err)
			}
		}
	}
}

func (c *Client) handleMessage(message []byte) error {
	var msg ClientMessage
	if err := json.Unmarshal(message, &msg); err != nil {
		return err
	}

	switch msg.Type {
	case "open":
		c.handleOpen(msg.ConversationID)
	case "close":
		c.handleClose()
	case "ping":
		c.enqueue(serverFrame{Type: "pong"})
	default:
		if c.hub.log != nil {
			c.hub.log.Warnf("unknown message type %q user=%s", msg.Type, c.userID)
		}
	}
	return nil
}

func (c *Client) writePump() {
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

			n := len(c.send)
			for i := 0; i < n; i++ {
				w.Write(newline)
				w.Write(<-c.send)
			}

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
