package models

import (
	"fmt"
	"strings"
	"time"
	"unicode/utf8"
)

// ChatType groups chats for unread aggregation.
type ChatType string

const (
	ChatPrivate ChatType = "private"
	ChatGroup   ChatType = "group"
	ChatSupport ChatType = "support"
)

const (
	MaxChatTitleLength = 100
	MaxGroupMembers    = 256
)

// Chat is a conversation. Private chats have exactly two members, support
// chats belong to a ticket.
type Chat struct {
	ID        string    `json:"id"`
	Type      ChatType  `json:"type"`
	Title     string    `json:"title"`
	CreatedBy string    `json:"created_by"`
	CreatedAt time.Time `json:"created_at"`
}

// ChatSummary is a chat as listed for one user: the chat, its members, the
// newest visible message and the user's unread count.
type ChatSummary struct {
	Chat
	Members       []string `json:"members"`
	LastMessageID *int64   `json:"last_message_id"`
	LastMessage   *Message `json:"last_message,omitempty"`
	UnreadCount   int      `json:"unread_count"`
}

// CreateChatRequest is the body of POST /api/chats.
// Type "private" needs exactly one entry in MemberIDs (the other user).
type CreateChatRequest struct {
	Type      ChatType `json:"type"`
	Title     string   `json:"title"`
	MemberIDs []string `json:"member_ids"`
}

// Validate normalizes the member list and checks it against the chat type.
func (r *CreateChatRequest) Validate() error {
	r.Title = strings.TrimSpace(r.Title)
	r.MemberIDs = dedupe(r.MemberIDs)

	switch r.Type {
	case ChatPrivate:
		if len(r.MemberIDs) != 1 {
			return fmt.Errorf("a private chat needs exactly one other member")
		}
	case ChatGroup:
		if r.Title == "" {
			return fmt.Errorf("group title is required")
		}
		if utf8.RuneCountInString(r.Title) > MaxChatTitleLength {
			return fmt.Errorf("group title must be at most %d characters", MaxChatTitleLength)
		}
		if len(r.MemberIDs) > MaxGroupMembers {
			return fmt.Errorf("a group can have at most %d members", MaxGroupMembers)
		}
	case ChatSupport:
		return fmt.Errorf("support chats are opened through tickets")
	default:
		return fmt.Errorf("unknown chat type %q", r.Type)
	}
	return nil
}

// AddMemberRequest is the body of POST /api/chats/{chatId}/members.
type AddMemberRequest struct {
	UserID string `json:"user_id"`
}

// Validate checks the user id.
func (r *AddMemberRequest) Validate() error {
	r.UserID = strings.TrimSpace(r.UserID)
	if r.UserID == "" {
		return fmt.Errorf("user_id is required")
	}
	return nil
}

// TypingEvent is the payload of typing_start.
type TypingEvent struct {
	ChatID string `json:"chat_id"`
	UserID string `json:"user_id"`
}

func dedupe(ids []string) []string {
	seen := make(map[string]bool, len(ids))
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		id = strings.TrimSpace(id)
		if id == "" || seen[id] {
			continue
		}
		seen[id] = true
		out = append(out, id)
	}
	return out
}
