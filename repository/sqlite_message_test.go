package repository

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/akinalp/messenger/models"
	"github.com/akinalp/messenger/pkg"
)

func TestCreate_AssignsIncreasingIDsAndSealsContent(t *testing.T) {
	s := newTestStores(t)
	chat := s.groupChat(t, "alice", "bob")

	m1 := s.send(t, chat.ID, "alice", "first")
	m2 := s.send(t, chat.ID, "bob", "second")

	assert.Greater(t, m2.ID, m1.ID)
	assert.Equal(t, models.StatusSent, m1.Status)
	assert.False(t, m1.CreatedAt.IsZero())

	var stored string
	require.NoError(t, s.db.QueryRow("SELECT content FROM messages WHERE id = ?", m1.ID).Scan(&stored))
	assert.True(t, strings.HasPrefix(stored, "enc:v1:"))
	assert.NotContains(t, stored, "first")

	got, err := s.messages.GetByID(context.Background(), m1.ID)
	require.NoError(t, err)
	assert.Equal(t, "first", got.Content.Text)
	assert.NotNil(t, got.Content.Attachments)
	assert.True(t, got.SentBy("alice"))
}

func TestCreate_AdvancesSenderCursors(t *testing.T) {
	s := newTestStores(t)
	ctx := context.Background()
	chat := s.groupChat(t, "alice", "bob")

	fromBob := s.send(t, chat.ID, "bob", "hi")
	reply := &models.Message{ChatID: chat.ID, SenderID: strPtr("alice"), Content: models.MessageContent{Text: "hey"}}
	changes, err := s.messages.Create(ctx, reply)
	require.NoError(t, err)

	require.Len(t, changes, 1)
	assert.Equal(t, fromBob.ID, changes[0].MessageID)
	assert.Equal(t, "bob", *changes[0].SenderID)
	assert.Equal(t, models.StatusRead, s.status(t, fromBob.ID))

	m, err := s.members.Get(ctx, chat.ID, "alice")
	require.NoError(t, err)
	assert.Equal(t, reply.ID, *m.LastReadMessageID)
	assert.Equal(t, reply.ID, *m.LastReceivedMessageID)

	n, err := s.messages.CountUnread(ctx, chat.ID, "alice")
	require.NoError(t, err)
	assert.Equal(t, 0, n)
}

func TestCreate_SystemMessageTouchesNoCursor(t *testing.T) {
	s := newTestStores(t)
	ctx := context.Background()
	chat := s.groupChat(t, "alice")

	sys := s.send(t, chat.ID, "", "ticket closed")
	assert.True(t, sys.IsSystem())

	m, err := s.members.Get(ctx, chat.ID, "alice")
	require.NoError(t, err)
	assert.Nil(t, m.LastReadMessageID)

	n, err := s.messages.CountUnread(ctx, chat.ID, "alice")
	require.NoError(t, err)
	assert.Equal(t, 1, n, "system messages count as unread")
}

func TestList_Pagination(t *testing.T) {
	s := newTestStores(t)
	ctx := context.Background()
	chat := s.groupChat(t, "alice", "bob")

	var ids []int64
	for i := 0; i < 5; i++ {
		ids = append(ids, s.send(t, chat.ID, "alice", "m").ID)
	}
	require.NoError(t, s.messages.SoftDelete(ctx, ids[2]))

	newest, err := s.messages.List(ctx, chat.ID, models.MessageCursor{Limit: 2})
	require.NoError(t, err)
	assert.Equal(t, []int64{ids[4], ids[3]}, messageIDs(newest))

	older, err := s.messages.List(ctx, chat.ID, models.MessageCursor{BeforeID: ids[3], Limit: 10})
	require.NoError(t, err)
	assert.Equal(t, []int64{ids[1], ids[0]}, messageIDs(older), "deleted message is skipped")

	newer, err := s.messages.List(ctx, chat.ID, models.MessageCursor{AfterID: ids[0], Limit: 2})
	require.NoError(t, err)
	assert.Equal(t, []int64{ids[1], ids[3]}, messageIDs(newer))

	other := s.groupChat(t, "carol")
	empty, err := s.messages.List(ctx, other.ID, models.MessageCursor{Limit: 10})
	require.NoError(t, err)
	assert.Empty(t, empty)
}

func TestGetByIDs_IncludesDeleted(t *testing.T) {
	s := newTestStores(t)
	ctx := context.Background()
	chat := s.groupChat(t, "alice")

	a := s.send(t, chat.ID, "alice", "a")
	b := s.send(t, chat.ID, "alice", "b")
	require.NoError(t, s.messages.SoftDelete(ctx, b.ID))

	got, err := s.messages.GetByIDs(ctx, []int64{a.ID, b.ID, 9999})
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.True(t, got[b.ID].IsDeleted())
	assert.False(t, got[a.ID].IsDeleted())
}

func TestUpdateContentAndSoftDelete(t *testing.T) {
	s := newTestStores(t)
	ctx := context.Background()
	chat := s.groupChat(t, "alice")
	msg := s.send(t, chat.ID, "alice", "draft")

	updatedAt, err := s.messages.UpdateContent(ctx, msg.ID, models.MessageContent{Text: "final"})
	require.NoError(t, err)

	got, err := s.messages.GetByID(ctx, msg.ID)
	require.NoError(t, err)
	assert.Equal(t, "final", got.Content.Text)
	require.NotNil(t, got.UpdatedAt)
	assert.WithinDuration(t, updatedAt, *got.UpdatedAt, time.Millisecond)

	require.NoError(t, s.messages.SoftDelete(ctx, msg.ID))
	assert.ErrorIs(t, s.messages.SoftDelete(ctx, msg.ID), pkg.ErrNotFound)

	_, err = s.messages.UpdateContent(ctx, msg.ID, models.MessageContent{Text: "again"})
	assert.ErrorIs(t, err, pkg.ErrNotFound)

	_, err = s.messages.GetByID(ctx, 424242)
	assert.ErrorIs(t, err, pkg.ErrNotFound)
}

func TestMarkDelivered(t *testing.T) {
	s := newTestStores(t)
	ctx := context.Background()
	chat := s.groupChat(t, "alice", "bob")

	a1 := s.send(t, chat.ID, "alice", "1")
	a2 := s.send(t, chat.ID, "alice", "2")
	a3 := s.send(t, chat.ID, "alice", "3")

	changes, err := s.messages.MarkDelivered(ctx, chat.ID, "bob", a2.ID)
	require.NoError(t, err)
	assert.Equal(t, []int64{a1.ID, a2.ID}, changeIDs(changes))
	assert.Equal(t, "alice", *changes[0].SenderID)
	assert.Equal(t, models.StatusDelivered, s.status(t, a2.ID))
	assert.Equal(t, models.StatusSent, s.status(t, a3.ID))

	m, err := s.members.Get(ctx, chat.ID, "bob")
	require.NoError(t, err)
	assert.Equal(t, a2.ID, *m.LastReceivedMessageID)
	assert.Nil(t, m.LastReadMessageID)

	again, err := s.messages.MarkDelivered(ctx, chat.ID, "bob", a2.ID)
	require.NoError(t, err)
	assert.Empty(t, again, "repeated mark changes nothing")

	backwards, err := s.messages.MarkDelivered(ctx, chat.ID, "bob", a1.ID)
	require.NoError(t, err)
	assert.Empty(t, backwards)
	m, err = s.members.Get(ctx, chat.ID, "bob")
	require.NoError(t, err)
	assert.Equal(t, a2.ID, *m.LastReceivedMessageID, "cursor never moves backwards")
}

func TestMarkDelivered_DoesNotTouchOwnMessages(t *testing.T) {
	s := newTestStores(t)
	ctx := context.Background()
	chat := s.groupChat(t, "alice", "bob")

	own := s.send(t, chat.ID, "alice", "mine")

	changes, err := s.messages.MarkDelivered(ctx, chat.ID, "alice", own.ID)
	require.NoError(t, err)
	assert.Empty(t, changes)
	assert.Equal(t, models.StatusSent, s.status(t, own.ID))
}

func TestMarkDelivered_ClampsPastNewest(t *testing.T) {
	s := newTestStores(t)
	ctx := context.Background()
	chat := s.groupChat(t, "alice", "bob")
	other := s.groupChat(t, "alice", "bob")

	a1 := s.send(t, chat.ID, "alice", "1")
	foreign := s.send(t, other.ID, "alice", "elsewhere")

	changes, err := s.messages.MarkDelivered(ctx, chat.ID, "bob", foreign.ID+100)
	require.NoError(t, err)
	assert.Equal(t, []int64{a1.ID}, changeIDs(changes))

	m, err := s.members.Get(ctx, chat.ID, "bob")
	require.NoError(t, err)
	assert.Equal(t, a1.ID, *m.LastReceivedMessageID, "cursor is clamped to the chat's newest message")
	assert.Equal(t, models.StatusSent, s.status(t, foreign.ID), "other chats are untouched")
}

func TestMarkDelivered_EmptyChatAndNonMember(t *testing.T) {
	s := newTestStores(t)
	ctx := context.Background()
	chat := s.groupChat(t, "alice", "bob")

	changes, err := s.messages.MarkDelivered(ctx, chat.ID, "bob", 10)
	require.NoError(t, err)
	assert.Empty(t, changes)

	_, err = s.messages.MarkDelivered(ctx, chat.ID, "mallory", 10)
	assert.ErrorIs(t, err, pkg.ErrNotFound)

	_, err = s.messages.MarkDelivered(ctx, chat.ID, "bob", 0)
	assert.ErrorIs(t, err, pkg.ErrBadRequest)
}

func TestMarkRead_AdvancesBothCursorsAndSkipsDelivered(t *testing.T) {
	s := newTestStores(t)
	ctx := context.Background()
	chat := s.groupChat(t, "alice", "bob")

	a1 := s.send(t, chat.ID, "alice", "1")
	a2 := s.send(t, chat.ID, "alice", "2")
	a3 := s.send(t, chat.ID, "alice", "3")

	_, err := s.messages.MarkDelivered(ctx, chat.ID, "bob", a1.ID)
	require.NoError(t, err)

	changes, err := s.messages.MarkRead(ctx, chat.ID, "bob", a2.ID)
	require.NoError(t, err)
	assert.Equal(t, []int64{a1.ID, a2.ID}, changeIDs(changes), "SENT jumps straight to READ")
	assert.Equal(t, models.StatusRead, s.status(t, a1.ID))
	assert.Equal(t, models.StatusRead, s.status(t, a2.ID))
	assert.Equal(t, models.StatusSent, s.status(t, a3.ID))

	m, err := s.members.Get(ctx, chat.ID, "bob")
	require.NoError(t, err)
	assert.Equal(t, a2.ID, *m.LastReadMessageID)
	assert.Equal(t, a2.ID, *m.LastReceivedMessageID)

	n, err := s.messages.CountUnread(ctx, chat.ID, "bob")
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	delivered, err := s.messages.MarkDelivered(ctx, chat.ID, "bob", a2.ID)
	require.NoError(t, err)
	assert.Empty(t, delivered, "READ never downgrades")
	assert.Equal(t, models.StatusRead, s.status(t, a2.ID))
}

func TestMarkRead_ReadNeverExceedsReceived(t *testing.T) {
	s := newTestStores(t)
	ctx := context.Background()
	chat := s.groupChat(t, "alice", "bob")

	a1 := s.send(t, chat.ID, "alice", "1")
	a2 := s.send(t, chat.ID, "alice", "2")

	_, err := s.messages.MarkDelivered(ctx, chat.ID, "bob", a2.ID)
	require.NoError(t, err)
	_, err = s.messages.MarkRead(ctx, chat.ID, "bob", a1.ID)
	require.NoError(t, err)

	m, err := s.members.Get(ctx, chat.ID, "bob")
	require.NoError(t, err)
	assert.Equal(t, a1.ID, *m.LastReadMessageID)
	assert.Equal(t, a2.ID, *m.LastReceivedMessageID)
	assert.LessOrEqual(t, *m.LastReadMessageID, *m.LastReceivedMessageID)
}

func TestMarkAllDelivered(t *testing.T) {
	s := newTestStores(t)
	ctx := context.Background()
	c1 := s.groupChat(t, "alice", "bob")
	c2 := s.groupChat(t, "carol", "bob")
	c3 := s.groupChat(t, "bob")

	a := s.send(t, c1.ID, "alice", "a")
	c := s.send(t, c2.ID, "carol", "c")
	s.send(t, c3.ID, "bob", "own")

	changes, err := s.messages.MarkAllDelivered(ctx, "bob")
	require.NoError(t, err)
	assert.Len(t, changes, 2)
	assert.Equal(t, []int64{a.ID}, changeIDs(changes[c1.ID]))
	assert.Equal(t, []int64{c.ID}, changeIDs(changes[c2.ID]))

	again, err := s.messages.MarkAllDelivered(ctx, "bob")
	require.NoError(t, err)
	assert.Empty(t, again)
}

func TestCountUnread_IgnoresDeletedAndOwn(t *testing.T) {
	s := newTestStores(t)
	ctx := context.Background()
	chat := s.groupChat(t, "alice", "bob")

	s.send(t, chat.ID, "alice", "1")
	gone := s.send(t, chat.ID, "alice", "2")
	s.send(t, chat.ID, "alice", "3")
	require.NoError(t, s.messages.SoftDelete(ctx, gone.ID))

	n, err := s.messages.CountUnread(ctx, chat.ID, "bob")
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	n, err = s.messages.CountUnread(ctx, chat.ID, "stranger")
	require.NoError(t, err)
	assert.Equal(t, 0, n)
}

func TestUnreadByChat(t *testing.T) {
	s := newTestStores(t)
	ctx := context.Background()

	group := s.groupChat(t, "alice", "bob")
	quiet := s.groupChat(t, "alice", "bob")
	_ = quiet

	ticketChat := &models.Chat{Title: "help"}
	ticket := &models.Ticket{AuthorID: "bob", Subject: "help"}
	require.NoError(t, s.tickets.Create(ctx, ticketChat, ticket))

	s.send(t, group.ID, "alice", "1")
	s.send(t, group.ID, "alice", "2")
	s.send(t, ticketChat.ID, "", "ticket opened")

	unread, err := s.messages.UnreadByChat(ctx, "bob")
	require.NoError(t, err)
	require.Len(t, unread, 2)

	assert.Equal(t, ticketChat.ID, unread[0].ChatID, "most recent activity first")
	assert.Equal(t, models.ChatSupport, unread[0].ChatType)
	require.NotNil(t, unread[0].TicketStatus)
	assert.Equal(t, models.TicketNew, *unread[0].TicketStatus)
	assert.Equal(t, 1, unread[0].UnreadCount)

	assert.Equal(t, group.ID, unread[1].ChatID)
	assert.Nil(t, unread[1].TicketStatus)
	assert.Equal(t, 2, unread[1].UnreadCount)
}

func TestPurgeDeleted(t *testing.T) {
	s := newTestStores(t)
	ctx := context.Background()
	chat := s.groupChat(t, "alice")

	target := s.send(t, chat.ID, "alice", "target")
	keep := s.send(t, chat.ID, "alice", "keep")
	reply := &models.Message{ChatID: chat.ID, SenderID: strPtr("alice"), ReplyToID: &target.ID, Content: models.MessageContent{Text: "re"}}
	_, err := s.messages.Create(ctx, reply)
	require.NoError(t, err)

	require.NoError(t, s.messages.SoftDelete(ctx, target.ID))

	n, err := s.messages.PurgeDeleted(ctx, time.Now().Add(-time.Hour))
	require.NoError(t, err)
	assert.Equal(t, int64(0), n, "recently deleted rows are kept")

	n, err = s.messages.PurgeDeleted(ctx, time.Now().Add(time.Minute))
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	_, err = s.messages.GetByID(ctx, target.ID)
	assert.ErrorIs(t, err, pkg.ErrNotFound)
	_, err = s.messages.GetByID(ctx, keep.ID)
	assert.NoError(t, err)

	got, err := s.messages.GetByID(ctx, reply.ID)
	require.NoError(t, err)
	assert.Nil(t, got.ReplyToID)
}

func TestPlaintextRowsStayReadable(t *testing.T) {
	s := newTestStores(t)
	chat := s.groupChat(t, "alice")

	_, err := s.db.Exec(
		`INSERT INTO messages (chat_id, sender_id, content, created_at) VALUES (?, 'alice', '{"text":"legacy"}', ?)`,
		chat.ID, time.Now().UTC())
	require.NoError(t, err)

	msgs, err := s.messages.List(context.Background(), chat.ID, models.MessageCursor{Limit: 10})
	require.NoError(t, err)
	require.Len(t, msgs, 1)
	assert.Equal(t, "legacy", msgs[0].Content.Text)
}

func messageIDs(msgs []models.Message) []int64 {
	ids := make([]int64, len(msgs))
	for i, m := range msgs {
		ids[i] = m.ID
	}
	return ids
}

func changeIDs(changes []models.StatusChange) []int64 {
	ids := make([]int64, len(changes))
	for i, c := range changes {
		ids[i] = c.MessageID
	}
	return ids
}

func strPtr(s string) *string {
	return &s
}

func TestMarkStatus_OnlyRaisesLowerStatuses(t *testing.T) {
	s := newTestStores(t)
	ctx := context.Background()
	chat := s.groupChat(t, "alice", "bob")

	a1 := s.send(t, chat.ID, "alice", "1")
	a2 := s.send(t, chat.ID, "alice", "2")

	none, err := markStatus(ctx, s.db, chat.ID, "bob", a2.ID, models.StatusSent)
	require.NoError(t, err)
	assert.Empty(t, none, "nothing ranks below SENT")

	read, err := markStatus(ctx, s.db, chat.ID, "bob", a1.ID, models.StatusRead)
	require.NoError(t, err)
	assert.Equal(t, []int64{a1.ID}, changeIDs(read))

	delivered, err := markStatus(ctx, s.db, chat.ID, "bob", a2.ID, models.StatusDelivered)
	require.NoError(t, err)
	assert.Equal(t, []int64{a2.ID}, changeIDs(delivered))
	assert.Equal(t, models.StatusRead, s.status(t, a1.ID))
	assert.Equal(t, models.StatusDelivered, s.status(t, a2.ID))
}
