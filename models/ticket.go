package models

import (
	"fmt"
	"strings"
	"time"
	"unicode/utf8"
)

// TicketStatus is the support workflow state of a ticket.
type TicketStatus string

const (
	TicketNew        TicketStatus = "new"
	TicketInProgress TicketStatus = "in_progress"
	TicketResolved   TicketStatus = "resolved"
	TicketClosed     TicketStatus = "closed"
)

const MaxTicketSubjectLength = 200

// Valid reports whether s is a known status.
func (s TicketStatus) Valid() bool {
	switch s {
	case TicketNew, TicketInProgress, TicketResolved, TicketClosed:
		return true
	}
	return false
}

// CanTransitionTo allows any change except leaving closed for anything other
// than in_progress (a reopen).
func (s TicketStatus) CanTransitionTo(next TicketStatus) bool {
	if !next.Valid() || s == next {
		return false
	}
	if s == TicketClosed {
		return next == TicketInProgress
	}
	return true
}

// Ticket is a support request. Its conversation lives in a support chat.
type Ticket struct {
	ID        string       `json:"id"`
	ChatID    string       `json:"chat_id"`
	AuthorID  string       `json:"author_id"`
	Subject   string       `json:"subject"`
	Status    TicketStatus `json:"status"`
	CreatedAt time.Time    `json:"created_at"`
	UpdatedAt time.Time    `json:"updated_at"`
}

// TicketFilter narrows ticket listings. Empty fields match everything.
type TicketFilter struct {
	AuthorID string
	Status   TicketStatus
}

// OpenTicketRequest is the body of POST /api/tickets.
type OpenTicketRequest struct {
	Subject string `json:"subject"`
	Text    string `json:"text"`
}

// Validate trims and bounds the subject and the first message.
func (r *OpenTicketRequest) Validate() error {
	r.Subject = strings.TrimSpace(r.Subject)
	r.Text = strings.TrimSpace(r.Text)

	n := utf8.RuneCountInString(r.Subject)
	if n == 0 {
		return fmt.Errorf("subject is required")
	}
	if n > MaxTicketSubjectLength {
		return fmt.Errorf("subject must be at most %d characters", MaxTicketSubjectLength)
	}
	return validateText(r.Text, false)
}

// UpdateTicketRequest is the body of PATCH /api/tickets/{ticketId}.
type UpdateTicketRequest struct {
	Status TicketStatus `json:"status"`
}

// Validate checks the target status.
func (r *UpdateTicketRequest) Validate() error {
	if !r.Status.Valid() {
		return fmt.Errorf("unknown ticket status %q", r.Status)
	}
	return nil
}
