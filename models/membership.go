package models

import "time"

// MemberRole is the role of a user inside one chat.
type MemberRole string

const (
	MemberRoleMember MemberRole = "member"
	MemberRoleOwner  MemberRole = "owner"
)

// ChatMembership links a user to a chat and carries the two per-member cursors.
//
// Cursors are message ids: everything up to LastReceivedMessageID has reached
// the user's client, everything up to LastReadMessageID has been seen. Both
// are nil until the first advance, never move backwards, and
// LastRead <= LastReceived always holds.
type ChatMembership struct {
	ChatID                string     `json:"chat_id"`
	UserID                string     `json:"user_id"`
	Role                  MemberRole `json:"role"`
	LastReadMessageID     *int64     `json:"last_read_message_id"`
	LastReceivedMessageID *int64     `json:"last_received_message_id"`
	JoinedAt              time.Time  `json:"joined_at"`
}

// MemberEvent is the payload of member_join / member_leave.
type MemberEvent struct {
	ChatID string `json:"chat_id"`
	UserID string `json:"user_id"`
}
