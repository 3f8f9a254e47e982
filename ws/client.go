package ws

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

const (
	// writeWait bounds a single socket write.
	writeWait = 10 * time.Second

	// pongWait is how long a connection may stay silent: three missed
	// 30s heartbeats.
	pongWait = 90 * time.Second

	// maxMessageSize caps inbound frames. Message bodies go over HTTP.
	maxMessageSize = 4096

	// sendBufferSize is the per-connection outbound queue. A full queue
	// means the client is too slow and gets disconnected.
	sendBufferSize = 256
)

// Client is one WebSocket connection. ReadPump and WritePump run on separate
// goroutines because gorilla/websocket allows one concurrent reader and one
// concurrent writer.
type Client struct {
	hub    *Hub
	conn   *websocket.Conn
	userID string
	send   chan []byte
	mu     sync.Mutex // guards conn writes
}

// ReadPump reads inbound events until the connection fails, then unregisters
// the client.
func (c *Client) ReadPump() {
	defer func() {
		c.hub.unregister <- c
		c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	if err := c.conn.SetReadDeadline(time.Now().Add(pongWait)); err != nil {
		c.hub.log.Warnw("failed to set read deadline", "user_id", c.userID, "error", err)
		return
	}

	for {
		_, raw, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.hub.log.Infow("unexpected close", "user_id", c.userID, "error", err)
			}
			return
		}

		var event inboundEvent
		if err := json.Unmarshal(raw, &event); err != nil {
			c.hub.log.Debugw("invalid frame", "user_id", c.userID, "error", err)
			continue
		}

		if event.Op == OpHeartbeat {
			if err := c.conn.SetReadDeadline(time.Now().Add(pongWait)); err != nil {
				return
			}
		}
		c.handleEvent(event)
	}
}

// inboundEvent keeps the payload raw so each op decodes its own shape.
type inboundEvent struct {
	Op   string          `json:"op"`
	Data json.RawMessage `json:"d"`
}

func (c *Client) handleEvent(event inboundEvent) {
	switch event.Op {
	case OpHeartbeat:
		c.hub.sendToClient(c, Event{Op: OpHeartbeatAck})

	case OpTyping:
		var data TypingData
		if err := json.Unmarshal(event.Data, &data); err != nil || data.ChatID == "" {
			return
		}
		if c.hub.onTyping != nil {
			go c.hub.onTyping(c.userID, data.ChatID)
		}

	case OpAckDelivered, OpAckRead:
		var data AckData
		if err := json.Unmarshal(event.Data, &data); err != nil || data.ChatID == "" || data.MessageID <= 0 {
			c.hub.log.Debugw("invalid ack", "user_id", c.userID, "op", event.Op)
			return
		}
		cb := c.hub.onAckDelivered
		if event.Op == OpAckRead {
			cb = c.hub.onAckRead
		}
		if cb != nil {
			go cb(c.userID, data.ChatID, data.MessageID)
		}

	default:
		c.hub.log.Debugw("unknown op", "user_id", c.userID, "op", event.Op)
	}
}

// WritePump writes queued frames to the socket until the hub closes the
// send channel.
func (c *Client) WritePump() {
	defer c.conn.Close()

	for message := range c.send {
		if err := c.writeMessage(websocket.TextMessage, message); err != nil {
			return
		}
	}
	_ = c.writeMessage(websocket.CloseMessage, nil)
}

func (c *Client) writeMessage(messageType int, data []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
		return err
	}
	return c.conn.WriteMessage(messageType, data)
}
