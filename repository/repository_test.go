package repository

import (
	"context"
	"database/sql"
	"io/fs"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/akinalp/messenger/database"
	"github.com/akinalp/messenger/models"
	"github.com/akinalp/messenger/pkg/crypto"
)

type testStores struct {
	db        *sql.DB
	messages  MessageRepository
	chats     ChatRepository
	members   MembershipRepository
	reactions ReactionRepository
	tickets   TicketRepository
}

func newTestStores(t *testing.T) *testStores {
	t.Helper()

	migrations, err := fs.Sub(database.EmbeddedMigrations, "migrations")
	require.NoError(t, err)

	db, err := database.New(filepath.Join(t.TempDir(), "messenger.db"), migrations)
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	sealer, err := crypto.NewSealer(make([]byte, 32))
	require.NoError(t, err)

	return &testStores{
		db:        db.Conn,
		messages:  NewSQLiteMessageRepo(db.Conn, sealer),
		chats:     NewSQLiteChatRepo(db.Conn),
		members:   NewSQLiteMembershipRepo(db.Conn),
		reactions: NewSQLiteReactionRepo(db.Conn),
		tickets:   NewSQLiteTicketRepo(db.Conn),
	}
}

func (s *testStores) groupChat(t *testing.T, owner string, members ...string) *models.Chat {
	t.Helper()
	chat := &models.Chat{Type: models.ChatGroup, Title: "team", CreatedBy: owner}
	require.NoError(t, s.chats.Create(context.Background(), chat, members))
	return chat
}

func (s *testStores) send(t *testing.T, chatID, sender, text string) *models.Message {
	t.Helper()
	msg := &models.Message{ChatID: chatID, Content: models.MessageContent{Text: text}}
	if sender != "" {
		msg.SenderID = &sender
	}
	_, err := s.messages.Create(context.Background(), msg)
	require.NoError(t, err)
	return msg
}

func (s *testStores) status(t *testing.T, id int64) models.DeliveryStatus {
	t.Helper()
	msg, err := s.messages.GetByID(context.Background(), id)
	require.NoError(t, err)
	return msg.Status
}
