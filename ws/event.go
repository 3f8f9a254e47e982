// Package ws is the real-time gateway of the messenger.
//
// A Hub tracks every open WebSocket connection, grouped by user (a user can
// have several tabs or devices open). Services never talk to connections
// directly: they depend on EventPublisher and push events to user ids.
//
// Event flow:
//  1. A client sends a message over HTTP and the service stores it.
//  2. The service calls BroadcastToUsers with the chat's member ids.
//  3. The hub serializes the event once and queues it on each connection.
//  4. Each client's WritePump writes the queued frames to its socket.
//
// Inbound socket events (typing, delivery/read acks) are handed to callbacks
// registered by main, so this package does not import services.
package ws

import "github.com/akinalp/messenger/models"

// Event is the frame exchanged over the socket in both directions.
//
// Seq is set on outbound events from a single counter so clients can notice
// gaps (seq 5 followed by seq 7 means one event was dropped).
type Event struct {
	Op   string `json:"op"`
	Data any    `json:"d,omitempty"`
	Seq  int64  `json:"seq,omitempty"`
}

// Client → server operations.
const (
	OpHeartbeat    = "heartbeat"     // sent every 30s; keeps the connection alive
	OpTyping       = "typing"        // {chat_id}
	OpAckDelivered = "ack_delivered" // {chat_id, message_id}
	OpAckRead      = "ack_read"      // {chat_id, message_id}
)

// Server → client operations.
const (
	OpReady             = "ready"
	OpHeartbeatAck      = "heartbeat_ack"
	OpMessageCreate     = "message_create"
	OpMessageUpdate     = "message_update"
	OpMessageDelete     = "message_delete"
	OpMessagesDelivered = "messages_delivered"
	OpMessagesRead      = "messages_read"
	OpReactionUpdate    = "reaction_update"
	OpTypingStart       = "typing_start"
	OpChatCreate        = "chat_create"
	OpMemberJoin        = "member_join"
	OpMemberLeave       = "member_leave"
	OpTicketUpdate      = "ticket_update"
)

// TypingData is the payload of an inbound typing event.
type TypingData struct {
	ChatID string `json:"chat_id"`
}

// AckData is the payload of ack_delivered and ack_read.
type AckData struct {
	ChatID    string `json:"chat_id"`
	MessageID int64  `json:"message_id"`
}

// ReadyData is sent once right after the upgrade.
type ReadyData struct {
	UserID string `json:"user_id"`
}

// StatusUpdateData is the payload of messages_delivered / messages_read, sent
// to the author of the listed messages. UserID is the member whose cursor moved.
type StatusUpdateData struct {
	ChatID     string  `json:"chat_id"`
	UserID     string  `json:"user_id"`
	MessageIDs []int64 `json:"message_ids"`
	Status     string  `json:"status"`
}

// MessageDeleteData is the payload of message_delete.
type MessageDeleteData struct {
	ID     int64  `json:"id"`
	ChatID string `json:"chat_id"`
}

// ReactionUpdateData carries the full reaction list of a message after a change.
type ReactionUpdateData struct {
	MessageID int64                  `json:"message_id"`
	ChatID    string                 `json:"chat_id"`
	Reactions []models.ReactionGroup `json:"reactions"`
}
