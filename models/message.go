package models

import (
	"fmt"
	"strings"
	"time"
	"unicode/utf8"
)

// DeliveryStatus is the lifecycle of a message: SENT, then DELIVERED once a
// recipient's client has received it, then READ once a recipient has seen it.
// A status only ever moves forward.
type DeliveryStatus string

const (
	StatusSent      DeliveryStatus = "SENT"
	StatusDelivered DeliveryStatus = "DELIVERED"
	StatusRead      DeliveryStatus = "READ"
)

// Rank orders statuses so that transitions can be compared: SENT < DELIVERED < READ.
func (s DeliveryStatus) Rank() int {
	switch s {
	case StatusSent:
		return 1
	case StatusDelivered:
		return 2
	case StatusRead:
		return 3
	default:
		return 0
	}
}

const (
	MaxMessageTextLength = 4000
	MaxAttachments       = 10
	DefaultMessageLimit  = 50
	MaxMessageLimit      = 100
)

// Attachment references a file already uploaded to the cabinet's file storage.
// The messenger stores the reference only.
type Attachment struct {
	URL      string `json:"url"`
	Filename string `json:"filename"`
	MimeType string `json:"mime_type,omitempty"`
	Size     int64  `json:"size,omitempty"`
}

// MessageContent is the serialized body of a message (the "content" column).
type MessageContent struct {
	Text        string       `json:"text"`
	Attachments []Attachment `json:"attachments"`
}

// Message is a row of the messages table.
//
// SenderID is nil for system messages (ticket status changes and similar).
// ReferencedMessage and Reactions are filled by the service layer from batch
// queries; the repository leaves them empty.
type Message struct {
	ID                int64             `json:"id"`
	ChatID            string            `json:"chat_id"`
	SenderID          *string           `json:"sender_id"`
	Content           MessageContent    `json:"content"`
	Status            DeliveryStatus    `json:"delivery_status"`
	ReplyToID         *int64            `json:"reply_to_id"`
	ReferencedMessage *MessageReference `json:"referenced_message,omitempty"`
	Reactions         []ReactionGroup   `json:"reactions"`
	CreatedAt         time.Time         `json:"created_at"`
	UpdatedAt         *time.Time        `json:"updated_at"`
	DeletedAt         *time.Time        `json:"deleted_at,omitempty"`
}

// IsSystem reports whether the message has no human sender.
func (m *Message) IsSystem() bool {
	return m.SenderID == nil
}

// IsDeleted reports whether the message was soft-deleted.
func (m *Message) IsDeleted() bool {
	return m.DeletedAt != nil
}

// SentBy reports whether userID authored the message.
func (m *Message) SentBy(userID string) bool {
	return m.SenderID != nil && *m.SenderID == userID
}

// MessageReference is the preview of a replied-to message. A deleted target
// keeps its id but loses its content.
type MessageReference struct {
	ID       int64           `json:"id"`
	SenderID *string         `json:"sender_id"`
	Content  *MessageContent `json:"content"`
	Deleted  bool            `json:"deleted"`
}

// MessageCursor selects a page of a chat's history. BeforeID pages backwards
// (newest first), AfterID pages forwards (oldest first); with neither set the
// newest page is returned.
type MessageCursor struct {
	BeforeID int64
	AfterID  int64
	Limit    int
}

// Normalize clamps Limit into [1, MaxMessageLimit] and rejects conflicting cursors.
func (c *MessageCursor) Normalize() error {
	if c.BeforeID < 0 || c.AfterID < 0 {
		return fmt.Errorf("cursor ids must be positive")
	}
	if c.BeforeID > 0 && c.AfterID > 0 {
		return fmt.Errorf("before and after are mutually exclusive")
	}
	if c.Limit <= 0 {
		c.Limit = DefaultMessageLimit
	}
	if c.Limit > MaxMessageLimit {
		c.Limit = MaxMessageLimit
	}
	return nil
}

// MessagePage is one page of history. HasMore tells whether another page
// exists in the paging direction.
type MessagePage struct {
	Messages []Message `json:"messages"`
	HasMore  bool      `json:"has_more"`
}

// StatusChange is one message moved to a new delivery status. SenderID is
// the author to notify (nil for system messages, which nobody is told about).
type StatusChange struct {
	MessageID int64
	SenderID  *string
}

// SendMessageRequest is the body of POST /api/chats/{chatId}/messages.
type SendMessageRequest struct {
	Text        string       `json:"text"`
	Attachments []Attachment `json:"attachments"`
	ReplyToID   *int64       `json:"reply_to_id"`
}

// Validate trims the text and checks that the message carries something.
func (r *SendMessageRequest) Validate() error {
	r.Text = strings.TrimSpace(r.Text)
	if err := validateText(r.Text, len(r.Attachments) > 0); err != nil {
		return err
	}
	return validateAttachments(r.Attachments)
}

// Content returns the storable body of the request.
func (r *SendMessageRequest) Content() MessageContent {
	attachments := r.Attachments
	if attachments == nil {
		attachments = []Attachment{}
	}
	return MessageContent{Text: r.Text, Attachments: attachments}
}

// EditMessageRequest is the body of PATCH /api/messages/{messageId}.
// Attachments are kept as they were when the field is omitted.
type EditMessageRequest struct {
	Text        string        `json:"text"`
	Attachments *[]Attachment `json:"attachments"`
}

// Validate checks the edit against the attachments the message will end up with.
func (r *EditMessageRequest) Validate(current []Attachment) error {
	r.Text = strings.TrimSpace(r.Text)
	attachments := current
	if r.Attachments != nil {
		attachments = *r.Attachments
	}
	if err := validateText(r.Text, len(attachments) > 0); err != nil {
		return err
	}
	return validateAttachments(attachments)
}

// Apply returns the content produced by applying the edit to current.
func (r *EditMessageRequest) Apply(current MessageContent) MessageContent {
	next := MessageContent{Text: r.Text, Attachments: current.Attachments}
	if r.Attachments != nil {
		next.Attachments = *r.Attachments
	}
	if next.Attachments == nil {
		next.Attachments = []Attachment{}
	}
	return next
}

func validateText(text string, hasAttachments bool) error {
	n := utf8.RuneCountInString(text)
	if n == 0 && !hasAttachments {
		return fmt.Errorf("message text or at least one attachment is required")
	}
	if n > MaxMessageTextLength {
		return fmt.Errorf("message text must be at most %d characters", MaxMessageTextLength)
	}
	return nil
}

func validateAttachments(attachments []Attachment) error {
	if len(attachments) > MaxAttachments {
		return fmt.Errorf("at most %d attachments are allowed", MaxAttachments)
	}
	for _, a := range attachments {
		if strings.TrimSpace(a.URL) == "" || strings.TrimSpace(a.Filename) == "" {
			return fmt.Errorf("attachment url and filename are required")
		}
		if a.Size < 0 {
			return fmt.Errorf("attachment size must not be negative")
		}
	}
	return nil
}
