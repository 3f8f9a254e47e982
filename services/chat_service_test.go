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

func TestCreatePrivate_GetOrCreate(t *testing.T) {
	e := newTestEnv(t)
	ctx := context.Background()

	first, created, err := e.chats.CreatePrivate(ctx, alice, "bob")
	require.NoError(t, err)
	assert.True(t, created)
	assert.Equal(t, models.ChatPrivate, first.Type)
	assert.ElementsMatch(t, []string{"alice", "bob"}, first.Members)
	assert.Len(t, e.hub.to("bob", ws.OpChatCreate), 1)

	again, created, err := e.chats.CreatePrivate(ctx, bob, "alice")
	require.NoError(t, err)
	assert.False(t, created)
	assert.Equal(t, first.ID, again.ID)

	_, _, err = e.chats.CreatePrivate(ctx, alice, "alice")
	assert.ErrorIs(t, err, pkg.ErrBadRequest)
}

func TestCreate_Dispatch(t *testing.T) {
	e := newTestEnv(t)
	ctx := context.Background()

	group, created, err := e.chats.Create(ctx, alice, &models.CreateChatRequest{
		Type:      models.ChatGroup,
		Title:     "Deals",
		MemberIDs: []string{"bob", "alice", "bob", "carol"},
	})
	require.NoError(t, err)
	assert.True(t, created)
	assert.Equal(t, "Deals", group.Title)
	assert.ElementsMatch(t, []string{"alice", "bob", "carol"}, group.Members)

	_, _, err = e.chats.Create(ctx, alice, &models.CreateChatRequest{Type: models.ChatSupport})
	assert.ErrorIs(t, err, pkg.ErrBadRequest)

	_, _, err = e.chats.Create(ctx, alice, &models.CreateChatRequest{Type: models.ChatPrivate, MemberIDs: []string{"bob", "carol"}})
	assert.ErrorIs(t, err, pkg.ErrBadRequest)
}

func TestGetAndList(t *testing.T) {
	e := newTestEnv(t)
	ctx := context.Background()

	quiet := e.group(t, alice, "bob")
	busy := e.group(t, alice, "bob")
	e.send(t, alice, busy, "first")
	last := e.send(t, alice, busy, "second")

	chats, err := e.chats.List(ctx, bob)
	require.NoError(t, err)
	require.Len(t, chats, 2)
	assert.Equal(t, busy, chats[0].ID)
	require.NotNil(t, chats[0].LastMessage)
	assert.Equal(t, last.ID, chats[0].LastMessage.ID)
	assert.Equal(t, 2, chats[0].UnreadCount)
	assert.Equal(t, quiet, chats[1].ID)
	assert.Nil(t, chats[1].LastMessage)

	summary, err := e.chats.Get(ctx, bob, busy)
	require.NoError(t, err)
	assert.Equal(t, 2, summary.UnreadCount)
	require.NotNil(t, summary.LastMessage)
	assert.Equal(t, "second", summary.LastMessage.Content.Text)

	_, err = e.chats.Get(ctx, carol, busy)
	assert.ErrorIs(t, err, pkg.ErrForbidden)
}

func TestMembers(t *testing.T) {
	e := newTestEnv(t)
	ctx := context.Background()
	chatID := e.group(t, alice, "bob")

	err := e.chats.AddMember(ctx, bob, chatID, &models.AddMemberRequest{UserID: "carol"})
	assert.ErrorIs(t, err, pkg.ErrForbidden)

	require.NoError(t, e.chats.AddMember(ctx, alice, chatID, &models.AddMemberRequest{UserID: "carol"}))
	assert.Len(t, e.hub.to("bob", ws.OpMemberJoin), 1)
	assert.Len(t, e.hub.to("carol", ws.OpChatCreate), 1)

	err = e.chats.AddMember(ctx, alice, chatID, &models.AddMemberRequest{UserID: "carol"})
	assert.ErrorIs(t, err, pkg.ErrAlreadyExists)

	// members may only remove themselves
	assert.ErrorIs(t, e.chats.RemoveMember(ctx, bob, chatID, "carol"), pkg.ErrForbidden)
	require.NoError(t, e.chats.RemoveMember(ctx, bob, chatID, "bob"))
	assert.Len(t, e.hub.to("bob", ws.OpMemberLeave), 1)

	require.NoError(t, e.chats.RemoveMember(ctx, alice, chatID, "carol"))
	_, err = e.chats.Get(ctx, carol, chatID)
	assert.ErrorIs(t, err, pkg.ErrForbidden)

	private, _, err := e.chats.CreatePrivate(ctx, alice, "bob")
	require.NoError(t, err)
	err = e.chats.AddMember(ctx, alice, private.ID, &models.AddMemberRequest{UserID: "carol"})
	assert.ErrorIs(t, err, pkg.ErrForbidden)
	assert.ErrorIs(t, e.chats.RemoveMember(ctx, alice, private.ID, "bob"), pkg.ErrForbidden)
}

func TestBroadcastTyping(t *testing.T) {
	e := newTestEnv(t)
	ctx := context.Background()
	chatID := e.group(t, alice, "bob")

	require.NoError(t, e.chats.BroadcastTyping(ctx, "alice", chatID))
	assert.Len(t, e.hub.to("bob", ws.OpTypingStart), 1)
	assert.Empty(t, e.hub.to("alice", ws.OpTypingStart))

	assert.ErrorIs(t, e.chats.BroadcastTyping(ctx, "carol", chatID), pkg.ErrForbidden)
}
