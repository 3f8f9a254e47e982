package models

import (
	"fmt"
	"strings"
	"time"
	"unicode/utf8"
)

// MaxEmojiLength bounds the emoji string in runes. Compound emoji (flags,
// skin tones, ZWJ sequences) span several runes.
const MaxEmojiLength = 32

// UserReaction is one emoji a user put on a message. The primary key
// (message_id, user_id, emoji) lets a user add several distinct emoji but
// never the same one twice.
type UserReaction struct {
	MessageID int64     `json:"message_id"`
	UserID    string    `json:"user_id"`
	Emoji     string    `json:"emoji"`
	CreatedAt time.Time `json:"created_at"`
}

// ReactionGroup aggregates one emoji on a message, e.g. 👍 3 [u1, u2, u3].
type ReactionGroup struct {
	Emoji string   `json:"emoji"`
	Count int      `json:"count"`
	Users []string `json:"users"`
}

// ReactionRequest is the body of POST /api/messages/{messageId}/reactions.
type ReactionRequest struct {
	Emoji string `json:"emoji"`
}

// Validate trims the emoji and checks its length.
func (r *ReactionRequest) Validate() error {
	r.Emoji = strings.TrimSpace(r.Emoji)
	n := utf8.RuneCountInString(r.Emoji)
	if n == 0 {
		return fmt.Errorf("emoji is required")
	}
	if n > MaxEmojiLength {
		return fmt.Errorf("emoji must be at most %d characters", MaxEmojiLength)
	}
	return nil
}
