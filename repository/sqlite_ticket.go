package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/akinalp/messenger/database"
	"github.com/akinalp/messenger/models"
	"github.com/akinalp/messenger/pkg"
)

const ticketColumns = `id, chat_id, author_id, subject, status, created_at, updated_at`

// sqliteTicketRepo is the SQLite implementation of TicketRepository.
type sqliteTicketRepo struct {
	db *sql.DB
}

// NewSQLiteTicketRepo is the constructor; it returns the interface.
func NewSQLiteTicketRepo(db *sql.DB) TicketRepository {
	return &sqliteTicketRepo{db: db}
}

func (r *sqliteTicketRepo) Create(ctx context.Context, chat *models.Chat, ticket *models.Ticket) error {
	chat.Type = models.ChatSupport
	chat.CreatedBy = ticket.AuthorID

	return database.WithTx(ctx, r.db, func(tx *sql.Tx) error {
		if err := insertChat(ctx, tx, chat, nil); err != nil {
			return err
		}

		if ticket.ID == "" {
			ticket.ID = uuid.New().String()
		}
		ticket.ChatID = chat.ID
		ticket.Status = models.TicketNew
		ticket.CreatedAt = chat.CreatedAt
		ticket.UpdatedAt = chat.CreatedAt

		if _, err := tx.ExecContext(ctx, `
			INSERT INTO tickets (`+ticketColumns+`)
			VALUES (?, ?, ?, ?, ?, ?, ?)`,
			ticket.ID, ticket.ChatID, ticket.AuthorID, ticket.Subject, ticket.Status,
			ticket.CreatedAt, ticket.UpdatedAt,
		); err != nil {
			return fmt.Errorf("failed to insert ticket: %w", err)
		}
		return nil
	})
}

func (r *sqliteTicketRepo) GetByID(ctx context.Context, id string) (*models.Ticket, error) {
	return r.getOne(ctx, `SELECT `+ticketColumns+` FROM tickets WHERE id = ?`, id)
}

func (r *sqliteTicketRepo) GetByChatID(ctx context.Context, chatID string) (*models.Ticket, error) {
	return r.getOne(ctx, `SELECT `+ticketColumns+` FROM tickets WHERE chat_id = ?`, chatID)
}

func (r *sqliteTicketRepo) getOne(ctx context.Context, query string, arg string) (*models.Ticket, error) {
	t, err := scanTicket(r.db.QueryRowContext(ctx, query, arg))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, pkg.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get ticket: %w", err)
	}
	return t, nil
}

// List returns tickets matching filter, most recently updated first.
func (r *sqliteTicketRepo) List(ctx context.Context, filter models.TicketFilter) ([]models.Ticket, error) {
	var where []string
	var args []any

	if filter.AuthorID != "" {
		where = append(where, "author_id = ?")
		args = append(args, filter.AuthorID)
	}
	if filter.Status != "" {
		where = append(where, "status = ?")
		args = append(args, filter.Status)
	}

	query := `SELECT ` + ticketColumns + ` FROM tickets`
	if len(where) > 0 {
		query += ` WHERE ` + strings.Join(where, " AND ")
	}
	query += ` ORDER BY updated_at DESC, id`

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list tickets: %w", err)
	}
	defer rows.Close()

	tickets := []models.Ticket{}
	for rows.Next() {
		t, err := scanTicket(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan ticket: %w", err)
		}
		tickets = append(tickets, *t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating tickets: %w", err)
	}
	return tickets, nil
}

func (r *sqliteTicketRepo) UpdateStatus(ctx context.Context, id string, from, to models.TicketStatus) (time.Time, error) {
	ts := now()
	result, err := r.db.ExecContext(ctx,
		`UPDATE tickets SET status = ?, updated_at = ? WHERE id = ? AND status = ?`,
		to, ts, id, from,
	)
	if err != nil {
		return time.Time{}, fmt.Errorf("failed to update ticket status: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return time.Time{}, fmt.Errorf("failed to check rows affected: %w", err)
	}
	if affected == 0 {
		return time.Time{}, fmt.Errorf("%w: ticket status changed concurrently", pkg.ErrAlreadyExists)
	}
	return ts, nil
}

// Delete removes the ticket's support chat; the ticket, memberships and
// messages go with it through ON DELETE CASCADE.
func (r *sqliteTicketRepo) Delete(ctx context.Context, id string) error {
	result, err := r.db.ExecContext(ctx,
		`DELETE FROM chats WHERE id = (SELECT chat_id FROM tickets WHERE id = ?)`, id,
	)
	if err != nil {
		return fmt.Errorf("failed to delete ticket: %w", err)
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

func scanTicket(s rowScanner) (*models.Ticket, error) {
	var t models.Ticket
	if err := s.Scan(&t.ID, &t.ChatID, &t.AuthorID, &t.Subject, &t.Status, &t.CreatedAt, &t.UpdatedAt); err != nil {
		return nil, err
	}
	return &t, nil
}
