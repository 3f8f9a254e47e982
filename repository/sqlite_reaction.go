package repository

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/akinalp/messenger/database"
	"github.com/akinalp/messenger/models"
	"github.com/akinalp/messenger/pkg"
)

// userSeparator joins user ids inside GROUP_CONCAT. The ASCII unit separator
// cannot appear in a user id, unlike a comma.
const userSeparator = "\x1f"

// sqliteReactionRepo is the SQLite implementation of ReactionRepository.
type sqliteReactionRepo struct {
	db database.TxQuerier
}

// NewSQLiteReactionRepo is the constructor; it returns the interface.
func NewSQLiteReactionRepo(db database.TxQuerier) ReactionRepository {
	return &sqliteReactionRepo{db: db}
}

// Add relies on the (message_id, user_id, emoji) primary key: INSERT OR IGNORE
// affects no row when the reaction already exists, which is atomic without a
// preceding SELECT.
func (r *sqliteReactionRepo) Add(ctx context.Context, reaction *models.UserReaction) error {
	reaction.CreatedAt = now()

	result, err := r.db.ExecContext(ctx, `
		INSERT OR IGNORE INTO user_reactions (message_id, user_id, emoji, created_at)
		VALUES (?, ?, ?, ?)`,
		reaction.MessageID, reaction.UserID, reaction.Emoji, reaction.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("add reaction: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("add reaction rows affected: %w", err)
	}
	if affected == 0 {
		return pkg.ErrAlreadyExists
	}
	return nil
}

func (r *sqliteReactionRepo) Remove(ctx context.Context, messageID int64, userID, emoji string) error {
	result, err := r.db.ExecContext(ctx,
		`DELETE FROM user_reactions WHERE message_id = ? AND user_id = ? AND emoji = ?`,
		messageID, userID, emoji,
	)
	if err != nil {
		return fmt.Errorf("remove reaction: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("remove reaction rows affected: %w", err)
	}
	if affected == 0 {
		return pkg.ErrNotFound
	}
	return nil
}

// GetByMessageID groups the reactions of one message. Users inside a group
// are listed in the order they reacted.
func (r *sqliteReactionRepo) GetByMessageID(ctx context.Context, messageID int64) ([]models.ReactionGroup, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT emoji, COUNT(*), GROUP_CONCAT(user_id, char(31))
		FROM (
			SELECT emoji, user_id, created_at FROM user_reactions
			WHERE message_id = ?
			ORDER BY created_at, user_id
		)
		GROUP BY emoji
		ORDER BY MIN(created_at), emoji`, messageID)
	if err != nil {
		return nil, fmt.Errorf("get reactions by message: %w", err)
	}
	defer rows.Close()

	return scanReactionGroups(rows)
}

func (r *sqliteReactionRepo) GetByMessageIDs(ctx context.Context, messageIDs []int64) (map[int64][]models.ReactionGroup, error) {
	result := make(map[int64][]models.ReactionGroup)
	if len(messageIDs) == 0 {
		return result, nil
	}

	query := fmt.Sprintf(`
		SELECT message_id, emoji, COUNT(*), GROUP_CONCAT(user_id, char(31))
		FROM (
			SELECT message_id, emoji, user_id, created_at FROM user_reactions
			WHERE message_id IN (%s)
			ORDER BY created_at, user_id
		)
		GROUP BY message_id, emoji
		ORDER BY message_id, MIN(created_at), emoji`, placeholders(len(messageIDs)))

	rows, err := r.db.QueryContext(ctx, query, int64Args(messageIDs)...)
	if err != nil {
		return nil, fmt.Errorf("get reactions by message ids: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var messageID int64
		var g models.ReactionGroup
		var users string
		if err := rows.Scan(&messageID, &g.Emoji, &g.Count, &users); err != nil {
			return nil, fmt.Errorf("scan reaction group: %w", err)
		}
		g.Users = strings.Split(users, userSeparator)
		result[messageID] = append(result[messageID], g)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate reaction rows: %w", err)
	}

	return result, nil
}

func scanReactionGroups(rows *sql.Rows) ([]models.ReactionGroup, error) {
	groups := []models.ReactionGroup{}
	for rows.Next() {
		var g models.ReactionGroup
		var users string
		if err := rows.Scan(&g.Emoji, &g.Count, &users); err != nil {
			return nil, fmt.Errorf("scan reaction group: %w", err)
		}
		g.Users = strings.Split(users, userSeparator)
		groups = append(groups, g)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate reaction rows: %w", err)
	}
	return groups, nil
}
