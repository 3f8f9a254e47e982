package repository

import (
	"context"
	"time"

	"github.com/akinalp/messenger/models"
)

// TicketRepository stores support tickets.
//
// Create inserts the support chat (with the author as owner) and the ticket
// in one transaction. UpdateStatus is a compare-and-set on the current status:
// it fails with pkg.ErrAlreadyExists when someone else changed it first.
// Delete drops the ticket together with its support chat.
type TicketRepository interface {
	Create(ctx context.Context, chat *models.Chat, ticket *models.Ticket) error
	GetByID(ctx context.Context, id string) (*models.Ticket, error)
	GetByChatID(ctx context.Context, chatID string) (*models.Ticket, error)
	List(ctx context.Context, filter models.TicketFilter) ([]models.Ticket, error)
	UpdateStatus(ctx context.Context, id string, from, to models.TicketStatus) (time.Time, error)
	Delete(ctx context.Context, id string) error
}
