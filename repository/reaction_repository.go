package repository

import (
	"context"

	"github.com/akinalp/messenger/models"
)

// ReactionRepository stores emoji reactions.
//
// Add fails with pkg.ErrAlreadyExists when the user already put that emoji on
// the message, Remove with pkg.ErrNotFound when there is nothing to remove.
//
// The Get methods return groups ({emoji, count, users}) ordered by the first
// time each emoji was used. GetByMessageIDs avoids one query per message when
// a page of history is loaded; messages without reactions are absent from the map.
type ReactionRepository interface {
	Add(ctx context.Context, reaction *models.UserReaction) error
	Remove(ctx context.Context, messageID int64, userID, emoji string) error
	GetByMessageID(ctx context.Context, messageID int64) ([]models.ReactionGroup, error)
	GetByMessageIDs(ctx context.Context, messageIDs []int64) (map[int64][]models.ReactionGroup, error)
}
