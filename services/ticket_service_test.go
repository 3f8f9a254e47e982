package services

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/akinalp/messenger/models"
	"github.com/akinalp/messenger/pkg"
	"github.com/akinalp/messenger/ws"
)

func TestOpenTicket(t *testing.T) {
	e := newTestEnv(t)
	ctx := context.Background()

	ticket, err := e.tickets.Open(ctx, alice, &models.OpenTicketRequest{Subject: " Payout ", Text: "Where is my payout?"})
	require.NoError(t, err)
	assert.Equal(t, "Payout", ticket.Subject)
	assert.Equal(t, models.TicketNew, ticket.Status)

	page, err := e.messages.List(ctx, alice, ticket.ChatID, models.MessageCursor{})
	require.NoError(t, err)
	require.Len(t, page.Messages, 1)
	assert.Equal(t, "Where is my payout?", page.Messages[0].Content.Text)

	// staff can read the queue without being members
	page, err = e.messages.List(ctx, support, ticket.ChatID, models.MessageCursor{})
	require.NoError(t, err)
	assert.Len(t, page.Messages, 1)

	_, err = e.messages.List(ctx, bob, ticket.ChatID, models.MessageCursor{})
	assert.ErrorIs(t, err, pkg.ErrForbidden)

	require.Eventually(t, func() bool {
		for _, env := range e.sink.envelopes() {
			if env.Op == eventTicketOpen {
				return true
			}
		}
		return false
	}, time.Second, 10*time.Millisecond)

	_, err = e.tickets.Open(ctx, alice, &models.OpenTicketRequest{Subject: "", Text: "x"})
	assert.ErrorIs(t, err, pkg.ErrBadRequest)
}

type failingMessages struct {
	MessageService
	err error
}

func (f failingMessages) Send(context.Context, *models.User, string, *models.SendMessageRequest) (*models.Message, error) {
	return nil, f.err
}

func TestOpenTicket_FirstMessageFailureLeavesNoTicket(t *testing.T) {
	e := newTestEnv(t)
	ctx := context.Background()
	tickets := NewTicketService(e.ticketRepo, e.chatRepo, e.memberRepo, failingMessages{err: errors.New("disk full")}, e.hub, e.sink)

	_, err := tickets.Open(ctx, alice, &models.OpenTicketRequest{Subject: "Payout", Text: "Where is my payout?"})
	require.Error(t, err)

	mine, err := e.ticketRepo.List(ctx, models.TicketFilter{AuthorID: alice.ID})
	require.NoError(t, err)
	assert.Empty(t, mine)

	created := e.hub.to(alice.ID, ws.OpChatCreate)
	require.Len(t, created, 1)
	chat, ok := created[0].Data.(*models.Chat)
	require.True(t, ok)
	_, err = e.chatRepo.GetByID(ctx, chat.ID)
	assert.ErrorIs(t, err, pkg.ErrNotFound)

	left := e.hub.to(alice.ID, ws.OpMemberLeave)
	require.Len(t, left, 1)
	assert.Equal(t, models.MemberEvent{ChatID: chat.ID, UserID: alice.ID}, left[0].Data)

	ticket, err := e.tickets.Open(ctx, alice, &models.OpenTicketRequest{Subject: "Payout", Text: "Where is my payout?"})
	require.NoError(t, err)
	mine, err = e.ticketRepo.List(ctx, models.TicketFilter{AuthorID: alice.ID})
	require.NoError(t, err)
	require.Len(t, mine, 1, "retry creates exactly one ticket")
	assert.Equal(t, ticket.ID, mine[0].ID)
}

func TestListAndGetTickets(t *testing.T) {
	e := newTestEnv(t)
	ctx := context.Background()

	mine, err := e.tickets.Open(ctx, alice, &models.OpenTicketRequest{Subject: "a", Text: "a"})
	require.NoError(t, err)
	_, err = e.tickets.Open(ctx, bob, &models.OpenTicketRequest{Subject: "b", Text: "b"})
	require.NoError(t, err)

	own, err := e.tickets.List(ctx, alice, "")
	require.NoError(t, err)
	require.Len(t, own, 1)
	assert.Equal(t, mine.ID, own[0].ID)

	all, err := e.tickets.List(ctx, support, "")
	require.NoError(t, err)
	assert.Len(t, all, 2)

	_, err = e.tickets.List(ctx, support, "bogus")
	assert.ErrorIs(t, err, pkg.ErrBadRequest)

	_, err = e.tickets.Get(ctx, bob, mine.ID)
	assert.ErrorIs(t, err, pkg.ErrForbidden)
	got, err := e.tickets.Get(ctx, support, mine.ID)
	require.NoError(t, err)
	assert.Equal(t, mine.ChatID, got.ChatID)
}

func TestUpdateTicketStatus(t *testing.T) {
	e := newTestEnv(t)
	ctx := context.Background()

	ticket, err := e.tickets.Open(ctx, alice, &models.OpenTicketRequest{Subject: "help", Text: "please"})
	require.NoError(t, err)

	_, err = e.tickets.UpdateStatus(ctx, alice, ticket.ID, &models.UpdateTicketRequest{Status: models.TicketResolved})
	assert.ErrorIs(t, err, pkg.ErrForbidden)

	updated, err := e.tickets.UpdateStatus(ctx, support, ticket.ID, &models.UpdateTicketRequest{Status: models.TicketInProgress})
	require.NoError(t, err)
	assert.Equal(t, models.TicketInProgress, updated.Status)

	// the acting staff user joined and a system message was posted
	members, err := e.memberRepo.ListUserIDs(ctx, ticket.ChatID)
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"alice", "sam"}, members)

	page, err := e.messages.List(ctx, alice, ticket.ChatID, models.MessageCursor{})
	require.NoError(t, err)
	require.Len(t, page.Messages, 2)
	assert.True(t, page.Messages[1].IsSystem())
	assert.Contains(t, page.Messages[1].Content.Text, "in_progress")

	assert.Len(t, e.hub.to("alice", ws.OpTicketUpdate), 1)
	assert.Len(t, e.hub.to("alice", ws.OpMemberJoin), 1)

	_, err = e.tickets.UpdateStatus(ctx, support, ticket.ID, &models.UpdateTicketRequest{Status: models.TicketClosed})
	require.NoError(t, err)

	// closed only reopens to in_progress
	_, err = e.tickets.UpdateStatus(ctx, support, ticket.ID, &models.UpdateTicketRequest{Status: models.TicketResolved})
	assert.ErrorIs(t, err, pkg.ErrBadRequest)
	_, err = e.tickets.UpdateStatus(ctx, support, ticket.ID, &models.UpdateTicketRequest{Status: models.TicketInProgress})
	require.NoError(t, err)

	_, err = e.tickets.UpdateStatus(ctx, support, ticket.ID, &models.UpdateTicketRequest{Status: "done"})
	assert.ErrorIs(t, err, pkg.ErrBadRequest)
}
