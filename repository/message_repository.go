package repository

import (
	"context"
	"time"

	"github.com/akinalp/messenger/models"
)

// MessageRepository is the message store: history, delivery status and the
// per-member cursors that drive unread counts.
//
// Message ids come from an AUTOINCREMENT column, so they grow with insertion
// order and double as pagination and read cursors.
//
// Create also moves the sender's cursors to the new message (a sender never
// has unread messages of their own) and returns the earlier messages of
// others that became READ as a result.
//
// MarkDelivered/MarkRead clamp upToID to the newest message of the chat,
// advance the member's cursor (never backwards) and move messages authored by
// others up to that id to the new status. They return the messages whose
// status actually changed so their senders can be notified.
type MessageRepository interface {
	Create(ctx context.Context, msg *models.Message) ([]models.StatusChange, error)
	GetByID(ctx context.Context, id int64) (*models.Message, error)
	GetByIDs(ctx context.Context, ids []int64) (map[int64]*models.Message, error)
	List(ctx context.Context, chatID string, cursor models.MessageCursor) ([]models.Message, error)
	UpdateContent(ctx context.Context, id int64, content models.MessageContent) (time.Time, error)
	SoftDelete(ctx context.Context, id int64) error

	MarkDelivered(ctx context.Context, chatID, userID string, upToID int64) ([]models.StatusChange, error)
	MarkRead(ctx context.Context, chatID, userID string, upToID int64) ([]models.StatusChange, error)
	MarkAllDelivered(ctx context.Context, userID string) (map[string][]models.StatusChange, error)

	CountUnread(ctx context.Context, chatID, userID string) (int, error)
	UnreadByChat(ctx context.Context, userID string) ([]models.ChatUnread, error)

	PurgeDeleted(ctx context.Context, olderThan time.Time) (int64, error)
}
