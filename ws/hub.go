package ws

import (
	"encoding/json"
	"sync"
	"sync/atomic"

	"go.uber.org/zap"

	"github.com/akinalp/messenger/pkg/metrics"
)

// EventPublisher is what services use to push events to connected users.
// Services depend on this interface rather than on *Hub so they can be
// tested with a recording fake.
type EventPublisher interface {
	BroadcastToUser(userID string, event Event)
	BroadcastToUsers(userIDs []string, event Event)
	BroadcastToUsersExcept(userIDs []string, excludeUserID string, event Event)
	IsOnline(userID string) bool
}

// Hub owns every connection. Register/unregister go through channels drained
// by Run; broadcasts take the read lock and enqueue on each client's buffered
// send channel. A client whose buffer is full is dropped.
type Hub struct {
	// userID → set of connections (tabs, devices).
	clients map[string]map[*Client]bool
	mu      sync.RWMutex

	register   chan *Client
	unregister chan *Client

	seq atomic.Int64

	log *zap.SugaredLogger

	// Callbacks wired in main. They run on their own goroutine so they may
	// call back into the hub without holding its lock.
	onUserFirstConnect      func(userID string)
	onUserFullyDisconnected func(userID string)
	onTyping                func(userID, chatID string)
	onAckDelivered          func(userID, chatID string, messageID int64)
	onAckRead               func(userID, chatID string, messageID int64)
}

// NewHub creates an empty hub. Start it with `go hub.Run()`.
func NewHub() *Hub {
	return &Hub{
		clients:    make(map[string]map[*Client]bool),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		log:        zap.S().Named("ws"),
	}
}

// OnUserFirstConnect is called when a user goes from zero to one connection.
func (h *Hub) OnUserFirstConnect(fn func(userID string)) { h.onUserFirstConnect = fn }

// OnUserFullyDisconnected is called when a user's last connection closes.
func (h *Hub) OnUserFullyDisconnected(fn func(userID string)) { h.onUserFullyDisconnected = fn }

// OnTyping is called for every inbound typing event.
func (h *Hub) OnTyping(fn func(userID, chatID string)) { h.onTyping = fn }

// OnAckDelivered is called for every inbound ack_delivered event.
func (h *Hub) OnAckDelivered(fn func(userID, chatID string, messageID int64)) { h.onAckDelivered = fn }

// OnAckRead is called for every inbound ack_read event.
func (h *Hub) OnAckRead(fn func(userID, chatID string, messageID int64)) { h.onAckRead = fn }

// Run is the hub's event loop.
func (h *Hub) Run() {
	for {
		select {
		case client := <-h.register:
			h.addClient(client)

		case client := <-h.unregister:
			h.removeClient(client)
		}
	}
}

func (h *Hub) addClient(client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	first := false
	if _, ok := h.clients[client.userID]; !ok {
		h.clients[client.userID] = make(map[*Client]bool)
		first = true
	}
	h.clients[client.userID][client] = true
	metrics.ActiveConnections.Inc()

	h.log.Infow("client connected", "user_id", client.userID, "connections", len(h.clients[client.userID]))

	if first && h.onUserFirstConnect != nil {
		go h.onUserFirstConnect(client.userID)
	}
}

func (h *Hub) removeClient(client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	clients, ok := h.clients[client.userID]
	if !ok {
		return
	}
	if _, exists := clients[client]; !exists {
		return
	}

	delete(clients, client)
	close(client.send)
	metrics.ActiveConnections.Dec()

	if len(clients) > 0 {
		h.log.Infow("client disconnected", "user_id", client.userID, "remaining", len(clients))
		return
	}

	delete(h.clients, client.userID)
	h.log.Infow("user fully disconnected", "user_id", client.userID)
	if h.onUserFullyDisconnected != nil {
		go h.onUserFullyDisconnected(client.userID)
	}
}

// encode stamps the next sequence number and serializes the event.
func (h *Hub) encode(event Event) ([]byte, bool) {
	event.Seq = h.seq.Add(1)
	data, err := json.Marshal(event)
	if err != nil {
		h.log.Errorw("failed to marshal event", "op", event.Op, "error", err)
		return nil, false
	}
	return data, true
}

// enqueue must be called with at least the read lock held.
func (h *Hub) enqueue(userID string, data []byte) {
	for client := range h.clients[userID] {
		select {
		case client.send <- data:
		default:
			h.log.Warnw("send buffer full, dropping connection", "user_id", userID)
			go func(c *Client) { h.unregister <- c }(client)
		}
	}
}

// BroadcastToUser sends an event to every connection of one user.
func (h *Hub) BroadcastToUser(userID string, event Event) {
	data, ok := h.encode(event)
	if !ok {
		return
	}

	h.mu.RLock()
	defer h.mu.RUnlock()
	h.enqueue(userID, data)
}

// BroadcastToUsers sends an event to every connection of the given users.
// Duplicate ids receive the event once.
func (h *Hub) BroadcastToUsers(userIDs []string, event Event) {
	h.BroadcastToUsersExcept(userIDs, "", event)
}

// BroadcastToUsersExcept is BroadcastToUsers without excludeUserID, e.g. so
// a typing user does not get their own typing_start.
func (h *Hub) BroadcastToUsersExcept(userIDs []string, excludeUserID string, event Event) {
	if len(userIDs) == 0 {
		return
	}
	data, ok := h.encode(event)
	if !ok {
		return
	}

	h.mu.RLock()
	defer h.mu.RUnlock()

	seen := make(map[string]bool, len(userIDs))
	for _, userID := range userIDs {
		if userID == excludeUserID || seen[userID] {
			continue
		}
		seen[userID] = true
		h.enqueue(userID, data)
	}
}

// sendToClient queues an event for a single connection, e.g. a heartbeat_ack.
// It is a no-op once the client has been removed and its channel closed.
func (h *Hub) sendToClient(client *Client, event Event) {
	data, ok := h.encode(event)
	if !ok {
		return
	}

	h.mu.RLock()
	defer h.mu.RUnlock()

	if !h.clients[client.userID][client] {
		return
	}
	select {
	case client.send <- data:
	default:
		go func() { h.unregister <- client }()
	}
}

// IsOnline reports whether the user has at least one open connection.
func (h *Hub) IsOnline(userID string) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients[userID]) > 0
}

// GetOnlineUserIDs returns the ids of every connected user.
func (h *Hub) GetOnlineUserIDs() []string {
	h.mu.RLock()
	defer h.mu.RUnlock()

	ids := make([]string, 0, len(h.clients))
	for userID := range h.clients {
		ids = append(ids, userID)
	}
	return ids
}

// Shutdown closes every connection's send channel (graceful shutdown).
func (h *Hub) Shutdown() {
	h.mu.Lock()
	defer h.mu.Unlock()

	n := 0
	for _, clients := range h.clients {
		for client := range clients {
			close(client.send)
			n++
		}
	}
	metrics.ActiveConnections.Sub(float64(n))
	h.clients = make(map[string]map[*Client]bool)
	h.log.Infow("hub shut down", "closed", n)
}
