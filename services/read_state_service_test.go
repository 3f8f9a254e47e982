package services

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/akinalp/messenger/models"
	"github.com/akinalp/messenger/pkg"
	"github.com/akinalp/messenger/ws"
)

func TestMarkDeliveredThenRead(t *testing.T) {
	e := newTestEnv(t)
	ctx := context.Background()
	chatID := e.group(t, alice, "bob")

	m1 := e.send(t, alice, chatID, "one")
	m2 := e.send(t, alice, chatID, "two")
	e.hub.reset()

	require.NoError(t, e.readState.MarkDelivered(ctx, "bob", &models.MarkRequest{ChatID: chatID, MessageID: m2.ID}))
	assert.Equal(t, models.StatusDelivered, e.status(t, m1.ID))
	assert.Equal(t, models.StatusDelivered, e.status(t, m2.ID))

	delivered := e.hub.to("alice", ws.OpMessagesDelivered)
	require.Len(t, delivered, 1)
	assert.Equal(t, []int64{m1.ID, m2.ID}, delivered[0].Data.(ws.StatusUpdateData).MessageIDs)

	// delivering again changes nothing and notifies nobody
	require.NoError(t, e.readState.MarkDelivered(ctx, "bob", &models.MarkRequest{ChatID: chatID, MessageID: m2.ID}))
	assert.Len(t, e.hub.to("alice", ws.OpMessagesDelivered), 1)

	require.NoError(t, e.readState.MarkRead(ctx, "bob", &models.MarkRequest{ChatID: chatID, MessageID: m1.ID}))
	assert.Equal(t, models.StatusRead, e.status(t, m1.ID))
	assert.Equal(t, models.StatusDelivered, e.status(t, m2.ID))

	n, err := e.readState.UnreadCount(ctx, "bob", chatID)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	// a read never goes back to delivered
	require.NoError(t, e.readState.MarkDelivered(ctx, "bob", &models.MarkRequest{ChatID: chatID, MessageID: m1.ID}))
	assert.Equal(t, models.StatusRead, e.status(t, m1.ID))
}

func TestMark_Errors(t *testing.T) {
	e := newTestEnv(t)
	ctx := context.Background()
	chatID := e.group(t, alice, "bob")
	e.send(t, alice, chatID, "one")

	err := e.readState.MarkRead(ctx, "bob", &models.MarkRequest{ChatID: chatID})
	assert.ErrorIs(t, err, pkg.ErrBadRequest)

	err = e.readState.MarkRead(ctx, "carol", &models.MarkRequest{ChatID: chatID, MessageID: 1})
	assert.ErrorIs(t, err, pkg.ErrForbidden)

	_, err = e.readState.UnreadCount(ctx, "carol", chatID)
	assert.ErrorIs(t, err, pkg.ErrForbidden)
}

func TestMarkAllDelivered(t *testing.T) {
	e := newTestEnv(t)
	ctx := context.Background()
	first := e.group(t, alice, "bob")
	second := e.group(t, carol, "bob")

	m1 := e.send(t, alice, first, "a")
	m2 := e.send(t, carol, second, "b")
	e.hub.reset()

	require.NoError(t, e.readState.MarkAllDelivered(ctx, "bob"))

	assert.Equal(t, models.StatusDelivered, e.status(t, m1.ID))
	assert.Equal(t, models.StatusDelivered, e.status(t, m2.ID))
	assert.Len(t, e.hub.to("alice", ws.OpMessagesDelivered), 1)
	assert.Len(t, e.hub.to("carol", ws.OpMessagesDelivered), 1)
}

func TestUnreadSummary(t *testing.T) {
	e := newTestEnv(t)
	ctx := context.Background()

	groupID := e.group(t, alice, "bob")
	e.send(t, alice, groupID, "g1")
	e.send(t, alice, groupID, "g2")

	ticket, err := e.tickets.Open(ctx, alice, &models.OpenTicketRequest{Subject: "help", Text: "broken"})
	require.NoError(t, err)
	_, err = e.messages.Send(ctx, support, ticket.ChatID, &models.SendMessageRequest{Text: "looking"})
	require.NoError(t, err)

	summary, err := e.readState.UnreadSummary(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, 1, summary.Total)
	assert.Equal(t, 1, summary.ByChatType[models.ChatSupport])
	assert.Equal(t, 1, summary.ByTicketStatus[models.TicketNew])

	bobSummary, err := e.readState.UnreadSummary(ctx, "bob")
	require.NoError(t, err)
	assert.Equal(t, 2, bobSummary.Total)
	assert.Equal(t, 2, bobSummary.ByChatType[models.ChatGroup])

	// closing the ticket removes it from the total but keeps the breakdown
	_, err = e.tickets.UpdateStatus(ctx, support, ticket.ID, &models.UpdateTicketRequest{Status: models.TicketClosed})
	require.NoError(t, err)

	summary, err = e.readState.UnreadSummary(ctx, "alice")
	require.NoError(t, err)
	assert.Zero(t, summary.Total)
	assert.Equal(t, 2, summary.ByTicketStatus[models.TicketClosed])

	// reading invalidates the cached summary
	page, err := e.messages.List(ctx, bob, groupID, models.MessageCursor{})
	require.NoError(t, err)
	last := page.Messages[len(page.Messages)-1].ID
	require.NoError(t, e.readState.MarkRead(ctx, "bob", &models.MarkRequest{ChatID: groupID, MessageID: last}))

	bobSummary, err = e.readState.UnreadSummary(ctx, "bob")
	require.NoError(t, err)
	assert.Zero(t, bobSummary.Total)
}
