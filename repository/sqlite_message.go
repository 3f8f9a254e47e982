package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/akinalp/messenger/database"
	"github.com/akinalp/messenger/models"
	"github.com/akinalp/messenger/pkg"
	"github.com/akinalp/messenger/pkg/crypto"
)

const messageColumns = `m.id, m.chat_id, m.sender_id, m.content, m.delivery_status,
	m.reply_to_id, m.created_at, m.updated_at, m.deleted_at`

// sqliteMessageRepo is the SQLite implementation of MessageRepository.
// Content is stored as JSON, sealed by the configured Sealer.
type sqliteMessageRepo struct {
	db     *sql.DB
	sealer crypto.Sealer
}

// NewSQLiteMessageRepo is the constructor; it returns the interface.
func NewSQLiteMessageRepo(db *sql.DB, sealer crypto.Sealer) MessageRepository {
	return &sqliteMessageRepo{db: db, sealer: sealer}
}

// Create inserts msg with status SENT. In the same transaction the sender's
// cursors move to the new message and every earlier message from others in
// the chat becomes READ: a user who writes has seen what came before.
// System messages (nil SenderID) touch no cursor.
//
// The returned changes are the messages of others that became READ.
func (r *sqliteMessageRepo) Create(ctx context.Context, msg *models.Message) ([]models.StatusChange, error) {
	stored, err := r.encode(msg.Content)
	if err != nil {
		return nil, err
	}

	ts := now()
	var id int64
	var changes []models.StatusChange

	err = database.WithTx(ctx, r.db, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx, `
			INSERT INTO messages (chat_id, sender_id, content, delivery_status, reply_to_id, created_at)
			VALUES (?, ?, ?, ?, ?, ?)`,
			msg.ChatID, msg.SenderID, stored, models.StatusSent, msg.ReplyToID, ts,
		)
		if err != nil {
			return fmt.Errorf("failed to insert message: %w", err)
		}

		id, err = res.LastInsertId()
		if err != nil {
			return fmt.Errorf("failed to read message id: %w", err)
		}

		if msg.SenderID == nil {
			return nil
		}

		if _, err := advanceCursors(ctx, tx, msg.ChatID, *msg.SenderID, id, true); err != nil {
			return err
		}

		changes, err = markStatus(ctx, tx, msg.ChatID, *msg.SenderID, id-1, models.StatusRead)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create message: %w", err)
	}

	msg.ID = id
	msg.Status = models.StatusSent
	msg.CreatedAt = ts
	msg.UpdatedAt = nil
	msg.DeletedAt = nil
	if msg.Reactions == nil {
		msg.Reactions = []models.ReactionGroup{}
	}
	return changes, nil
}

// GetByID returns the message even when it is soft-deleted; callers decide
// whether a deleted message is visible.
func (r *sqliteMessageRepo) GetByID(ctx context.Context, id int64) (*models.Message, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+messageColumns+` FROM messages m WHERE m.id = ?`, id)

	msg, err := r.scanMessage(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, pkg.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get message by id: %w", err)
	}
	return msg, nil
}

// GetByIDs batch-loads messages, soft-deleted ones included. Missing ids are
// absent from the map.
func (r *sqliteMessageRepo) GetByIDs(ctx context.Context, ids []int64) (map[int64]*models.Message, error) {
	result := make(map[int64]*models.Message, len(ids))
	if len(ids) == 0 {
		return result, nil
	}

	query := fmt.Sprintf(`SELECT `+messageColumns+` FROM messages m WHERE m.id IN (%s)`, placeholders(len(ids)))

	rows, err := r.db.QueryContext(ctx, query, int64Args(ids)...)
	if err != nil {
		return nil, fmt.Errorf("failed to get messages by ids: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		msg, err := r.scanMessage(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan message row: %w", err)
		}
		result[msg.ID] = msg
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating message rows: %w", err)
	}

	return result, nil
}

// List returns up to cursor.Limit visible messages of a chat.
//
// BeforeID pages backwards and AfterID forwards; the first page is the newest.
// Backward and first pages come newest first, forward pages oldest first.
func (r *sqliteMessageRepo) List(ctx context.Context, chatID string, cursor models.MessageCursor) ([]models.Message, error) {
	var query string
	var args []any

	switch {
	case cursor.AfterID > 0:
		query = `SELECT ` + messageColumns + ` FROM messages m
			WHERE m.chat_id = ? AND m.deleted_at IS NULL AND m.id > ?
			ORDER BY m.id ASC LIMIT ?`
		args = []any{chatID, cursor.AfterID, cursor.Limit}
	case cursor.BeforeID > 0:
		query = `SELECT ` + messageColumns + ` FROM messages m
			WHERE m.chat_id = ? AND m.deleted_at IS NULL AND m.id < ?
			ORDER BY m.id DESC LIMIT ?`
		args = []any{chatID, cursor.BeforeID, cursor.Limit}
	default:
		query = `SELECT ` + messageColumns + ` FROM messages m
			WHERE m.chat_id = ? AND m.deleted_at IS NULL
			ORDER BY m.id DESC LIMIT ?`
		args = []any{chatID, cursor.Limit}
	}

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list messages: %w", err)
	}
	defer rows.Close()

	messages := make([]models.Message, 0, cursor.Limit)
	for rows.Next() {
		msg, err := r.scanMessage(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan message row: %w", err)
		}
		messages = append(messages, *msg)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating message rows: %w", err)
	}

	return messages, nil
}

// UpdateContent replaces the body of a visible message and stamps updated_at.
func (r *sqliteMessageRepo) UpdateContent(ctx context.Context, id int64, content models.MessageContent) (time.Time, error) {
	stored, err := r.encode(content)
	if err != nil {
		return time.Time{}, err
	}

	ts := now()
	result, err := r.db.ExecContext(ctx,
		`UPDATE messages SET content = ?, updated_at = ? WHERE id = ? AND deleted_at IS NULL`,
		stored, ts, id,
	)
	if err != nil {
		return time.Time{}, fmt.Errorf("failed to update message: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return time.Time{}, fmt.Errorf("failed to check rows affected: %w", err)
	}
	if affected == 0 {
		return time.Time{}, pkg.ErrNotFound
	}

	return ts, nil
}

// SoftDelete hides the message. The row stays so replies keep their preview
// until retention purges it.
func (r *sqliteMessageRepo) SoftDelete(ctx context.Context, id int64) error {
	result, err := r.db.ExecContext(ctx,
		`UPDATE messages SET deleted_at = ? WHERE id = ? AND deleted_at IS NULL`, now(), id)
	if err != nil {
		return fmt.Errorf("failed to delete message: %w", err)
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

func (r *sqliteMessageRepo) MarkDelivered(ctx context.Context, chatID, userID string, upToID int64) ([]models.StatusChange, error) {
	return r.mark(ctx, chatID, userID, upToID, models.StatusDelivered)
}

func (r *sqliteMessageRepo) MarkRead(ctx context.Context, chatID, userID string, upToID int64) ([]models.StatusChange, error) {
	return r.mark(ctx, chatID, userID, upToID, models.StatusRead)
}

// mark runs one cursor advance in a transaction:
//  1. the member must exist (pkg.ErrNotFound otherwise),
//  2. upToID is clamped to the newest message of the chat not above it,
//  3. the cursor moves forward (read also moves received),
//  4. statuses of others' messages up to the clamped id move forward.
func (r *sqliteMessageRepo) mark(ctx context.Context, chatID, userID string, upToID int64, target models.DeliveryStatus) ([]models.StatusChange, error) {
	if upToID <= 0 {
		return nil, fmt.Errorf("%w: message id must be positive", pkg.ErrBadRequest)
	}

	var changes []models.StatusChange
	err := database.WithTx(ctx, r.db, func(tx *sql.Tx) error {
		var one int
		err := tx.QueryRowContext(ctx,
			`SELECT 1 FROM chat_memberships WHERE chat_id = ? AND user_id = ?`, chatID, userID,
		).Scan(&one)
		if errors.Is(err, sql.ErrNoRows) {
			return pkg.ErrNotFound
		}
		if err != nil {
			return fmt.Errorf("failed to check membership: %w", err)
		}

		var clamped int64
		if err := tx.QueryRowContext(ctx,
			`SELECT COALESCE(MAX(id), 0) FROM messages WHERE chat_id = ? AND id <= ?`, chatID, upToID,
		).Scan(&clamped); err != nil {
			return fmt.Errorf("failed to clamp cursor: %w", err)
		}
		if clamped == 0 {
			return nil
		}

		if _, err := advanceCursors(ctx, tx, chatID, userID, clamped, target == models.StatusRead); err != nil {
			return err
		}

		changes, err = markStatus(ctx, tx, chatID, userID, clamped, target)
		return err
	})
	if err != nil {
		return nil, err
	}
	return changes, nil
}

// MarkAllDelivered delivers everything in every chat of the user. It runs
// when the user's first connection comes up.
func (r *sqliteMessageRepo) MarkAllDelivered(ctx context.Context, userID string) (map[string][]models.StatusChange, error) {
	result := make(map[string][]models.StatusChange)

	err := database.WithTx(ctx, r.db, func(tx *sql.Tx) error {
		rows, err := tx.QueryContext(ctx, `
			SELECT cm.chat_id,
			       (SELECT COALESCE(MAX(m.id), 0) FROM messages m WHERE m.chat_id = cm.chat_id)
			FROM chat_memberships cm
			WHERE cm.user_id = ?`, userID)
		if err != nil {
			return fmt.Errorf("failed to list member chats: %w", err)
		}

		type target struct {
			chatID string
			latest int64
		}
		var targets []target
		for rows.Next() {
			var t target
			if err := rows.Scan(&t.chatID, &t.latest); err != nil {
				rows.Close()
				return fmt.Errorf("failed to scan member chat: %w", err)
			}
			if t.latest > 0 {
				targets = append(targets, t)
			}
		}
		if err := rows.Err(); err != nil {
			rows.Close()
			return fmt.Errorf("error iterating member chats: %w", err)
		}
		rows.Close()

		for _, t := range targets {
			if _, err := advanceCursors(ctx, tx, t.chatID, userID, t.latest, false); err != nil {
				return err
			}
			changes, err := markStatus(ctx, tx, t.chatID, userID, t.latest, models.StatusDelivered)
			if err != nil {
				return err
			}
			if len(changes) > 0 {
				result[t.chatID] = changes
			}
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to mark all delivered: %w", err)
	}

	return result, nil
}

// CountUnread counts visible messages after the member's read cursor that
// the member did not send. System messages count. Non-members get 0.
func (r *sqliteMessageRepo) CountUnread(ctx context.Context, chatID, userID string) (int, error) {
	var count int
	err := r.db.QueryRowContext(ctx, `
		SELECT COUNT(m.id)
		FROM chat_memberships cm
		JOIN messages m ON m.chat_id = cm.chat_id
		WHERE cm.chat_id = ? AND cm.user_id = ?
		  AND m.deleted_at IS NULL
		  AND m.id > COALESCE(cm.last_read_message_id, 0)
		  AND (m.sender_id IS NULL OR m.sender_id != cm.user_id)`,
		chatID, userID,
	).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count unread messages: %w", err)
	}
	return count, nil
}

// UnreadByChat returns the unread count of every chat of the user that has
// any, newest activity first, with the chat type and ticket status attached.
func (r *sqliteMessageRepo) UnreadByChat(ctx context.Context, userID string) ([]models.ChatUnread, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT c.id, c.type, t.status, COUNT(m.id)
		FROM chat_memberships cm
		JOIN chats c ON c.id = cm.chat_id
		LEFT JOIN tickets t ON t.chat_id = c.id
		JOIN messages m ON m.chat_id = cm.chat_id
		     AND m.deleted_at IS NULL
		     AND m.id > COALESCE(cm.last_read_message_id, 0)
		     AND (m.sender_id IS NULL OR m.sender_id != cm.user_id)
		WHERE cm.user_id = ?
		GROUP BY c.id, c.type, t.status
		ORDER BY MAX(m.id) DESC`, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to get unread counts: %w", err)
	}
	defer rows.Close()

	unreads := []models.ChatUnread{}
	for rows.Next() {
		var u models.ChatUnread
		var ticketStatus sql.NullString
		if err := rows.Scan(&u.ChatID, &u.ChatType, &ticketStatus, &u.UnreadCount); err != nil {
			return nil, fmt.Errorf("failed to scan unread info: %w", err)
		}
		if ticketStatus.Valid {
			status := models.TicketStatus(ticketStatus.String)
			u.TicketStatus = &status
		}
		unreads = append(unreads, u)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating unread rows: %w", err)
	}

	return unreads, nil
}

// PurgeDeleted removes messages soft-deleted before olderThan. Replies that
// pointed at them lose their reply_to_id (ON DELETE SET NULL).
func (r *sqliteMessageRepo) PurgeDeleted(ctx context.Context, olderThan time.Time) (int64, error) {
	result, err := r.db.ExecContext(ctx,
		`DELETE FROM messages WHERE deleted_at IS NOT NULL AND deleted_at < ?`, olderThan.UTC())
	if err != nil {
		return 0, fmt.Errorf("failed to purge deleted messages: %w", err)
	}

	n, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to check rows affected: %w", err)
	}
	return n, nil
}

// advanceCursors moves the member's received cursor (and the read cursor when
// read is set) up to id, never backwards. It reports whether the member row
// exists.
func advanceCursors(ctx context.Context, q database.TxQuerier, chatID, userID string, id int64, read bool) (bool, error) {
	query := `
		UPDATE chat_memberships
		SET last_received_message_id = MAX(COALESCE(last_received_message_id, 0), ?)
		WHERE chat_id = ? AND user_id = ?`
	args := []any{id, chatID, userID}

	if read {
		query = `
			UPDATE chat_memberships
			SET last_received_message_id = MAX(COALESCE(last_received_message_id, 0), ?),
			    last_read_message_id = MAX(COALESCE(last_read_message_id, 0), ?)
			WHERE chat_id = ? AND user_id = ?`
		args = []any{id, id, chatID, userID}
	}

	result, err := q.ExecContext(ctx, query, args...)
	if err != nil {
		return false, fmt.Errorf("failed to advance cursors: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to check rows affected: %w", err)
	}
	return affected > 0, nil
}

// markStatus moves visible messages of the chat up to upToID, not sent by
// userID, to target. Only lower statuses are touched, so nothing downgrades.
// The result is ordered by message id.
func markStatus(ctx context.Context, q database.TxQuerier, chatID, userID string, upToID int64, target models.DeliveryStatus) ([]models.StatusChange, error) {
	if upToID <= 0 {
		return nil, nil
	}

	var from []any
	for _, st := range []models.DeliveryStatus{models.StatusSent, models.StatusDelivered} {
		if st.Rank() < target.Rank() {
			from = append(from, st)
		}
	}
	if len(from) == 0 {
		return nil, nil
	}

	query := fmt.Sprintf(`
		UPDATE messages SET delivery_status = ?
		WHERE chat_id = ? AND id <= ?
		  AND delivery_status IN (%s)
		  AND deleted_at IS NULL
		  AND (sender_id IS NULL OR sender_id != ?)
		RETURNING id, sender_id`, placeholders(len(from)))

	args := append([]any{target, chatID, upToID}, from...)
	args = append(args, userID)

	rows, err := q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to update delivery status: %w", err)
	}
	defer rows.Close()

	var changes []models.StatusChange
	for rows.Next() {
		var c models.StatusChange
		var sender sql.NullString
		if err := rows.Scan(&c.MessageID, &sender); err != nil {
			return nil, fmt.Errorf("failed to scan status change: %w", err)
		}
		c.SenderID = nullStringPtr(sender)
		changes = append(changes, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating status changes: %w", err)
	}

	sort.Slice(changes, func(i, j int) bool { return changes[i].MessageID < changes[j].MessageID })
	return changes, nil
}

func (r *sqliteMessageRepo) scanMessage(s rowScanner) (*models.Message, error) {
	var (
		msg     models.Message
		sender  sql.NullString
		stored  string
		status  string
		replyTo sql.NullInt64
		updated sql.NullTime
		deleted sql.NullTime
	)

	if err := s.Scan(
		&msg.ID, &msg.ChatID, &sender, &stored, &status,
		&replyTo, &msg.CreatedAt, &updated, &deleted,
	); err != nil {
		return nil, err
	}

	content, err := r.decode(stored)
	if err != nil {
		return nil, fmt.Errorf("message %d: %w", msg.ID, err)
	}

	msg.SenderID = nullStringPtr(sender)
	msg.Content = content
	msg.Status = models.DeliveryStatus(status)
	msg.ReplyToID = nullInt64Ptr(replyTo)
	msg.UpdatedAt = nullTimePtr(updated)
	msg.DeletedAt = nullTimePtr(deleted)
	msg.Reactions = []models.ReactionGroup{}
	return &msg, nil
}

func (r *sqliteMessageRepo) encode(content models.MessageContent) (string, error) {
	if content.Attachments == nil {
		content.Attachments = []models.Attachment{}
	}
	raw, err := json.Marshal(content)
	if err != nil {
		return "", fmt.Errorf("failed to encode message content: %w", err)
	}
	stored, err := r.sealer.Seal(raw)
	if err != nil {
		return "", fmt.Errorf("failed to seal message content: %w", err)
	}
	return stored, nil
}

func (r *sqliteMessageRepo) decode(stored string) (models.MessageContent, error) {
	var content models.MessageContent
	raw, err := r.sealer.Open(stored)
	if err != nil {
		return content, fmt.Errorf("failed to open message content: %w", err)
	}
	if err := json.Unmarshal(raw, &content); err != nil {
		return content, fmt.Errorf("failed to decode message content: %w", err)
	}
	if content.Attachments == nil {
		content.Attachments = []models.Attachment{}
	}
	return content, nil
}
