package services

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/akinalp/messenger/events"
	"github.com/akinalp/messenger/models"
	"github.com/akinalp/messenger/pkg"
	"github.com/akinalp/messenger/pkg/metrics"
	"github.com/akinalp/messenger/repository"
	"github.com/akinalp/messenger/ws"
)

// eventTicketOpen is only published to the event sink; clients learn about
// new tickets through chat_create.
const eventTicketOpen = "ticket_open"

// TicketService runs the support workflow. Every ticket owns a support chat;
// staff work tickets by changing their status, which is announced in the
// chat as a system message.
type TicketService interface {
	Open(ctx context.Context, user *models.User, req *models.OpenTicketRequest) (*models.Ticket, error)
	List(ctx context.Context, user *models.User, status models.TicketStatus) ([]models.Ticket, error)
	Get(ctx context.Context, user *models.User, ticketID string) (*models.Ticket, error)
	UpdateStatus(ctx context.Context, user *models.User, ticketID string, req *models.UpdateTicketRequest) (*models.Ticket, error)
}

type ticketService struct {
	ticketRepo repository.TicketRepository
	memberRepo repository.MembershipRepository
	access     accessChecker
	messages   MessageService
	hub        ws.EventPublisher
	sink       events.Sink
	log        *zap.SugaredLogger
}

func NewTicketService(
	ticketRepo repository.TicketRepository,
	chatRepo repository.ChatRepository,
	memberRepo repository.MembershipRepository,
	messages MessageService,
	hub ws.EventPublisher,
	sink events.Sink,
) TicketService {
	return &ticketService{
		ticketRepo: ticketRepo,
		memberRepo: memberRepo,
		access:     accessChecker{chatRepo: chatRepo, memberRepo: memberRepo},
		messages:   messages,
		hub:        hub,
		sink:       sink,
		log:        zap.S().Named("tickets"),
	}
}

// Open creates the support chat, the ticket and the first message. When the
// first message cannot be posted the ticket and its chat are removed again,
// so a retry never leaves a duplicate behind.
func (s *ticketService) Open(ctx context.Context, user *models.User, req *models.OpenTicketRequest) (*models.Ticket, error) {
	if err := req.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %s", pkg.ErrBadRequest, err.Error())
	}

	chat := &models.Chat{Title: req.Subject}
	ticket := &models.Ticket{AuthorID: user.ID, Subject: req.Subject}
	if err := s.ticketRepo.Create(ctx, chat, ticket); err != nil {
		return nil, err
	}

	s.hub.BroadcastToUser(user.ID, ws.Event{Op: ws.OpChatCreate, Data: chat})

	if _, err := s.messages.Send(ctx, user, chat.ID, &models.SendMessageRequest{Text: req.Text}); err != nil {
		s.discard(ctx, ticket)
		return nil, fmt.Errorf("failed to post first ticket message: %w", err)
	}
	s.publish(eventTicketOpen, ticket)
	s.log.Infow("ticket opened", "ticket_id", ticket.ID, "author_id", user.ID)
	return ticket, nil
}

// List returns every ticket to staff and only their own to everyone else.
func (s *ticketService) List(ctx context.Context, user *models.User, status models.TicketStatus) ([]models.Ticket, error) {
	if status != "" && !status.Valid() {
		return nil, fmt.Errorf("%w: unknown ticket status %q", pkg.ErrBadRequest, status)
	}

	filter := models.TicketFilter{Status: status}
	if !user.Role.IsStaff() {
		filter.AuthorID = user.ID
	}
	return s.ticketRepo.List(ctx, filter)
}

func (s *ticketService) Get(ctx context.Context, user *models.User, ticketID string) (*models.Ticket, error) {
	ticket, err := s.ticketRepo.GetByID(ctx, ticketID)
	if err != nil {
		return nil, err
	}
	if ticket.AuthorID != user.ID && !user.Role.IsStaff() {
		return nil, fmt.Errorf("%w: not your ticket", pkg.ErrForbidden)
	}
	return ticket, nil
}

// UpdateStatus moves a ticket to a new status (staff only). The acting staff
// user joins the support chat, the change is posted there as a system
// message and members get ticket_update.
func (s *ticketService) UpdateStatus(ctx context.Context, user *models.User, ticketID string, req *models.UpdateTicketRequest) (*models.Ticket, error) {
	if !user.Role.IsStaff() {
		return nil, fmt.Errorf("%w: only support staff can change ticket status", pkg.ErrForbidden)
	}
	if err := req.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %s", pkg.ErrBadRequest, err.Error())
	}

	ticket, err := s.ticketRepo.GetByID(ctx, ticketID)
	if err != nil {
		return nil, err
	}
	if !ticket.Status.CanTransitionTo(req.Status) {
		return nil, fmt.Errorf("%w: cannot move ticket from %s to %s", pkg.ErrBadRequest, ticket.Status, req.Status)
	}

	from := ticket.Status
	updatedAt, err := s.ticketRepo.UpdateStatus(ctx, ticket.ID, from, req.Status)
	if err != nil {
		return nil, err
	}
	ticket.Status = req.Status
	ticket.UpdatedAt = updatedAt
	metrics.TicketStatusChanges.WithLabelValues(string(req.Status)).Inc()

	joined, err := s.access.join(ctx, ticket.ChatID, user.ID)
	if err != nil {
		return nil, err
	}

	members, err := s.memberRepo.ListUserIDs(ctx, ticket.ChatID)
	if err != nil {
		return nil, err
	}
	if joined {
		s.hub.BroadcastToUsers(members, ws.Event{
			Op:   ws.OpMemberJoin,
			Data: models.MemberEvent{ChatID: ticket.ChatID, UserID: user.ID},
		})
	}

	text := fmt.Sprintf("Ticket status changed from %s to %s", from, req.Status)
	if _, err := s.messages.PostSystemMessage(ctx, ticket.ChatID, text); err != nil {
		return nil, err
	}

	s.hub.BroadcastToUsers(members, ws.Event{Op: ws.OpTicketUpdate, Data: ticket})
	s.publish(ws.OpTicketUpdate, ticket)
	s.log.Infow("ticket status changed",
		"ticket_id", ticket.ID, "from", from, "to", req.Status, "by", user.ID)

	return ticket, nil
}

// discard rolls back a ticket whose first message failed and tells the
// author's sessions to drop the chat they were just sent.
func (s *ticketService) discard(ctx context.Context, ticket *models.Ticket) {
	if err := s.ticketRepo.Delete(context.WithoutCancel(ctx), ticket.ID); err != nil {
		s.log.Errorw("failed to discard ticket", "ticket_id", ticket.ID, "error", err)
		return
	}
	s.hub.BroadcastToUser(ticket.AuthorID, ws.Event{
		Op:   ws.OpMemberLeave,
		Data: models.MemberEvent{ChatID: ticket.ChatID, UserID: ticket.AuthorID},
	})
	s.log.Warnw("ticket discarded", "ticket_id", ticket.ID, "author_id", ticket.AuthorID)
}

func (s *ticketService) publish(op string, ticket *models.Ticket) {
	env := events.Envelope{
		Op:                op,
		ChatID:            ticket.ChatID,
		Data:              *ticket,
		Recipients:        []string{ticket.AuthorID},
		OfflineRecipients: []string{},
	}
	if !s.hub.IsOnline(ticket.AuthorID) {
		env.OfflineRecipients = append(env.OfflineRecipients, ticket.AuthorID)
	}

	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), publishTimeout)
		defer cancel()
		if err := s.sink.Publish(ctx, env); err != nil {
			s.log.Warnw("event not published", "op", op, "ticket_id", ticket.ID, "error", err)
		}
	}()
}
