package models

import "fmt"

// MarkRequest is the body of the delivered/read endpoints and of the
// ack_delivered / ack_read socket events.
type MarkRequest struct {
	ChatID    string `json:"chat_id"`
	MessageID int64  `json:"message_id"`
}

// Validate checks the cursor target.
func (r *MarkRequest) Validate() error {
	if r.MessageID <= 0 {
		return fmt.Errorf("message_id is required")
	}
	return nil
}

// ChatUnread is the unread count of one chat together with the grouping data
// the summary is broken down by. TicketStatus is set for support chats only.
type ChatUnread struct {
	ChatID       string        `json:"chat_id"`
	ChatType     ChatType      `json:"chat_type"`
	TicketStatus *TicketStatus `json:"ticket_status,omitempty"`
	UnreadCount  int           `json:"unread_count"`
}

// UnreadSummary aggregates a user's unread messages.
//
// Total and ByChatType exclude closed tickets. ByTicketStatus counts unread
// messages of support chats per ticket status, closed included, so the UI can
// still show them.
type UnreadSummary struct {
	Total          int                  `json:"total"`
	ByChatType     map[ChatType]int     `json:"by_chat_type"`
	ByTicketStatus map[TicketStatus]int `json:"by_ticket_status"`
	Chats          []ChatUnread         `json:"chats"`
}

// NewUnreadSummary folds per-chat counts into a summary.
func NewUnreadSummary(chats []ChatUnread) UnreadSummary {
	s := UnreadSummary{
		ByChatType:     make(map[ChatType]int),
		ByTicketStatus: make(map[TicketStatus]int),
		Chats:          chats,
	}
	if s.Chats == nil {
		s.Chats = []ChatUnread{}
	}

	for _, c := range chats {
		if c.TicketStatus != nil {
			s.ByTicketStatus[*c.TicketStatus] += c.UnreadCount
			if *c.TicketStatus == TicketClosed {
				continue
			}
		}
		s.ByChatType[c.ChatType] += c.UnreadCount
		s.Total += c.UnreadCount
	}
	return s
}
