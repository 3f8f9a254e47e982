package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/akinalp/messenger/database"
	"github.com/akinalp/messenger/models"
	"github.com/akinalp/messenger/pkg"
)

const chatColumns = `c.id, c.type, c.title, c.created_by, c.created_at`

// sqliteChatRepo is the SQLite implementation of ChatRepository.
type sqliteChatRepo struct {
	db *sql.DB
}

// NewSQLiteChatRepo is the constructor; it returns the interface.
func NewSQLiteChatRepo(db *sql.DB) ChatRepository {
	return &sqliteChatRepo{db: db}
}

// privateKey orders the pair so (a, b) and (b, a) map to the same chat.
func privateKey(a, b string) string {
	if a > b {
		a, b = b, a
	}
	return a + ":" + b
}

func (r *sqliteChatRepo) Create(ctx context.Context, chat *models.Chat, memberIDs []string) error {
	return database.WithTx(ctx, r.db, func(tx *sql.Tx) error {
		return insertChat(ctx, tx, chat, memberIDs)
	})
}

// insertChat writes the chat row and its memberships. It fills chat.ID and
// chat.CreatedAt.
func insertChat(ctx context.Context, tx *sql.Tx, chat *models.Chat, memberIDs []string) error {
	if chat.ID == "" {
		chat.ID = uuid.New().String()
	}
	chat.CreatedAt = now()

	var key any
	if chat.Type == models.ChatPrivate {
		if len(memberIDs) != 1 {
			return fmt.Errorf("%w: private chat needs exactly one other member", pkg.ErrBadRequest)
		}
		key = privateKey(chat.CreatedBy, memberIDs[0])
	}

	_, err := tx.ExecContext(ctx, `
		INSERT INTO chats (id, type, title, private_key, created_by, created_at)
		VALUES (?, ?, ?, ?, ?, ?)`,
		chat.ID, chat.Type, chat.Title, key, chat.CreatedBy, chat.CreatedAt,
	)
	if err != nil {
		if strings.Contains(err.Error(), "UNIQUE constraint failed") {
			return pkg.ErrAlreadyExists
		}
		return fmt.Errorf("failed to insert chat: %w", err)
	}

	if _, err := tx.ExecContext(ctx, `
		INSERT INTO chat_memberships (chat_id, user_id, role, joined_at)
		VALUES (?, ?, ?, ?)`,
		chat.ID, chat.CreatedBy, models.MemberRoleOwner, chat.CreatedAt,
	); err != nil {
		return fmt.Errorf("failed to insert owner membership: %w", err)
	}

	for _, userID := range memberIDs {
		if userID == chat.CreatedBy {
			continue
		}
		if _, err := tx.ExecContext(ctx, `
			INSERT OR IGNORE INTO chat_memberships (chat_id, user_id, role, joined_at)
			VALUES (?, ?, ?, ?)`,
			chat.ID, userID, models.MemberRoleMember, chat.CreatedAt,
		); err != nil {
			return fmt.Errorf("failed to insert membership: %w", err)
		}
	}

	return nil
}

func (r *sqliteChatRepo) GetByID(ctx context.Context, id string) (*models.Chat, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+chatColumns+` FROM chats c WHERE c.id = ?`, id)

	chat, err := scanChat(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, pkg.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get chat by id: %w", err)
	}
	return chat, nil
}

func (r *sqliteChatRepo) FindPrivate(ctx context.Context, userA, userB string) (*models.Chat, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+chatColumns+` FROM chats c WHERE c.private_key = ?`, privateKey(userA, userB))

	chat, err := scanChat(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, pkg.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find private chat: %w", err)
	}
	return chat, nil
}

func (r *sqliteChatRepo) ListForUser(ctx context.Context, userID string) ([]models.ChatSummary, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT `+chatColumns+`,
		       (SELECT MAX(m.id) FROM messages m
		        WHERE m.chat_id = c.id AND m.deleted_at IS NULL) AS last_message_id,
		       (SELECT COUNT(*) FROM messages m
		        WHERE m.chat_id = c.id AND m.deleted_at IS NULL
		          AND m.id > COALESCE(cm.last_read_message_id, 0)
		          AND (m.sender_id IS NULL OR m.sender_id != cm.user_id)) AS unread_count
		FROM chat_memberships cm
		JOIN chats c ON c.id = cm.chat_id
		WHERE cm.user_id = ?
		ORDER BY COALESCE(last_message_id, 0) DESC, c.created_at DESC`, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list chats: %w", err)
	}
	defer rows.Close()

	summaries := []models.ChatSummary{}
	index := make(map[string]int)
	for rows.Next() {
		var s models.ChatSummary
		var lastID sql.NullInt64
		if err := rows.Scan(
			&s.ID, &s.Type, &s.Title, &s.CreatedBy, &s.CreatedAt,
			&lastID, &s.UnreadCount,
		); err != nil {
			return nil, fmt.Errorf("failed to scan chat row: %w", err)
		}
		s.LastMessageID = nullInt64Ptr(lastID)
		s.Members = []string{}
		index[s.ID] = len(summaries)
		summaries = append(summaries, s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating chat rows: %w", err)
	}
	rows.Close()

	if len(summaries) == 0 {
		return summaries, nil
	}

	ids := make([]any, 0, len(summaries))
	for _, s := range summaries {
		ids = append(ids, s.ID)
	}

	memberRows, err := r.db.QueryContext(ctx, fmt.Sprintf(`
		SELECT chat_id, user_id FROM chat_memberships
		WHERE chat_id IN (%s)
		ORDER BY joined_at, user_id`, placeholders(len(ids))), ids...)
	if err != nil {
		return nil, fmt.Errorf("failed to list chat members: %w", err)
	}
	defer memberRows.Close()

	for memberRows.Next() {
		var chatID, memberID string
		if err := memberRows.Scan(&chatID, &memberID); err != nil {
			return nil, fmt.Errorf("failed to scan chat member: %w", err)
		}
		i := index[chatID]
		summaries[i].Members = append(summaries[i].Members, memberID)
	}
	if err := memberRows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating chat members: %w", err)
	}

	return summaries, nil
}

func scanChat(s rowScanner) (*models.Chat, error) {
	var c models.Chat
	if err := s.Scan(&c.ID, &c.Type, &c.Title, &c.CreatedBy, &c.CreatedAt); err != nil {
		return nil, err
	}
	return &c, nil
}
