package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/akinalp/messenger/database"
	"github.com/akinalp/messenger/models"
	"github.com/akinalp/messenger/pkg"
)

const membershipColumns = `chat_id, user_id, role, last_read_message_id, last_received_message_id, joined_at`

// sqliteMembershipRepo is the SQLite implementation of MembershipRepository.
type sqliteMembershipRepo struct {
	db database.TxQuerier
}

// NewSQLiteMembershipRepo is the constructor; it returns the interface.
func NewSQLiteMembershipRepo(db database.TxQuerier) MembershipRepository {
	return &sqliteMembershipRepo{db: db}
}

func (r *sqliteMembershipRepo) Get(ctx context.Context, chatID, userID string) (*models.ChatMembership, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+membershipColumns+` FROM chat_memberships WHERE chat_id = ? AND user_id = ?`,
		chatID, userID)

	m, err := scanMembership(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, pkg.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get membership: %w", err)
	}
	return m, nil
}

func (r *sqliteMembershipRepo) ListByChat(ctx context.Context, chatID string) ([]models.ChatMembership, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+membershipColumns+` FROM chat_memberships WHERE chat_id = ? ORDER BY joined_at, user_id`,
		chatID)
	if err != nil {
		return nil, fmt.Errorf("failed to list memberships: %w", err)
	}
	defer rows.Close()

	members := []models.ChatMembership{}
	for rows.Next() {
		m, err := scanMembership(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan membership: %w", err)
		}
		members = append(members, *m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating memberships: %w", err)
	}
	return members, nil
}

// ListUserIDs returns only the member ids; used to fan out events.
func (r *sqliteMembershipRepo) ListUserIDs(ctx context.Context, chatID string) ([]string, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT user_id FROM chat_memberships WHERE chat_id = ? ORDER BY joined_at, user_id`, chatID)
	if err != nil {
		return nil, fmt.Errorf("failed to list member ids: %w", err)
	}
	defer rows.Close()

	ids := []string{}
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan member id: %w", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating member ids: %w", err)
	}
	return ids, nil
}

// Add inserts a membership with empty cursors.
func (r *sqliteMembershipRepo) Add(ctx context.Context, m *models.ChatMembership) error {
	if m.Role == "" {
		m.Role = models.MemberRoleMember
	}
	m.JoinedAt = now()
	m.LastReadMessageID = nil
	m.LastReceivedMessageID = nil

	result, err := r.db.ExecContext(ctx, `
		INSERT OR IGNORE INTO chat_memberships (chat_id, user_id, role, joined_at)
		VALUES (?, ?, ?, ?)`,
		m.ChatID, m.UserID, m.Role, m.JoinedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to add membership: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check rows affected: %w", err)
	}
	if affected == 0 {
		return pkg.ErrAlreadyExists
	}
	return nil
}

func (r *sqliteMembershipRepo) Remove(ctx context.Context, chatID, userID string) error {
	result, err := r.db.ExecContext(ctx,
		`DELETE FROM chat_memberships WHERE chat_id = ? AND user_id = ?`, chatID, userID)
	if err != nil {
		return fmt.Errorf("failed to remove membership: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check rows affected: %w", err)
	}
	if affected == 0 {
		return pkg.ErrNotFound
	}
	return nil
}

func scanMembership(s rowScanner) (*models.ChatMembership, error) {
	var m models.ChatMembership
	var lastRead, lastReceived sql.NullInt64
	if err := s.Scan(&m.ChatID, &m.UserID, &m.Role, &lastRead, &lastReceived, &m.JoinedAt); err != nil {
		return nil, err
	}
	m.LastReadMessageID = nullInt64Ptr(lastRead)
	m.LastReceivedMessageID = nullInt64Ptr(lastReceived)
	return &m, nil
}
