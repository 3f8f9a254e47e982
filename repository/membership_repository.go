package repository

import (
	"context"

	"github.com/akinalp/messenger/models"
)

// MembershipRepository stores chat memberships and their cursors. Cursors
// are only moved by MessageRepository.
type MembershipRepository interface {
	Get(ctx context.Context, chatID, userID string) (*models.ChatMembership, error)
	ListByChat(ctx context.Context, chatID string) ([]models.ChatMembership, error)
	ListUserIDs(ctx context.Context, chatID string) ([]string, error)
	Add(ctx context.Context, m *models.ChatMembership) error
	Remove(ctx context.Context, chatID, userID string) error
}
