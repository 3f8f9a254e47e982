package repository

import (
	"context"

	"github.com/akinalp/messenger/models"
)

// ChatRepository stores chats.
//
// Create inserts the chat and its memberships in one transaction: the creator
// (chat.CreatedBy) becomes owner, memberIDs become members. A second private
// chat between the same two users fails with pkg.ErrAlreadyExists.
//
// ListForUser returns every chat of the user with its member ids, newest
// visible message id and the user's unread count, most recent activity first.
type ChatRepository interface {
	Create(ctx context.Context, chat *models.Chat, memberIDs []string) error
	GetByID(ctx context.Context, id string) (*models.Chat, error)
	FindPrivate(ctx context.Context, userA, userB string) (*models.Chat, error)
	ListForUser(ctx context.Context, userID string) ([]models.ChatSummary, error)
}
