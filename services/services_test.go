package services

import (
	"context"
	"io/fs"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/akinalp/messenger/database"
	"github.com/akinalp/messenger/events"
	"github.com/akinalp/messenger/models"
	"github.com/akinalp/messenger/pkg/cache"
	"github.com/akinalp/messenger/pkg/crypto"
	"github.com/akinalp/messenger/repository"
	"github.com/akinalp/messenger/ws"
)

// sentEvent is one event recorded by fakePublisher.
type sentEvent struct {
	UserID string
	Event  ws.Event
}

// fakePublisher records every event per recipient.
type fakePublisher struct {
	mu     sync.Mutex
	events []sentEvent
	online map[string]bool
}

func newFakePublisher(online ...string) *fakePublisher {
	p := &fakePublisher{online: make(map[string]bool)}
	for _, id := range online {
		p.online[id] = true
	}
	return p
}

func (p *fakePublisher) BroadcastToUser(userID string, event ws.Event) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, sentEvent{UserID: userID, Event: event})
}

func (p *fakePublisher) BroadcastToUsers(userIDs []string, event ws.Event) {
	p.BroadcastToUsersExcept(userIDs, "", event)
}

func (p *fakePublisher) BroadcastToUsersExcept(userIDs []string, excludeUserID string, event ws.Event) {
	for _, id := range userIDs {
		if id != excludeUserID {
			p.BroadcastToUser(id, event)
		}
	}
}

func (p *fakePublisher) IsOnline(userID string) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.online[userID]
}

// to returns the events of one op received by userID.
func (p *fakePublisher) to(userID, op string) []ws.Event {
	p.mu.Lock()
	defer p.mu.Unlock()
	var out []ws.Event
	for _, e := range p.events {
		if e.UserID == userID && e.Event.Op == op {
			out = append(out, e.Event)
		}
	}
	return out
}

func (p *fakePublisher) reset() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = nil
}

// recordingSink collects published envelopes.
type recordingSink struct {
	mu  sync.Mutex
	got []events.Envelope
}

func (s *recordingSink) Publish(_ context.Context, env events.Envelope) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.got = append(s.got, env)
	return nil
}

func (s *recordingSink) Close() error { return nil }

func (s *recordingSink) envelopes() []events.Envelope {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]events.Envelope(nil), s.got...)
}

type testEnv struct {
	messageRepo repository.MessageRepository
	chatRepo    repository.ChatRepository
	memberRepo  repository.MembershipRepository
	ticketRepo  repository.TicketRepository

	hub    *fakePublisher
	sink   *recordingSink
	unread cache.UnreadCache

	chats     ChatService
	messages  MessageService
	readState ReadStateService
	reactions ReactionService
	tickets   TicketService
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	migrations, err := fs.Sub(database.EmbeddedMigrations, "migrations")
	require.NoError(t, err)
	db, err := database.New(filepath.Join(t.TempDir(), "messenger.db"), migrations)
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	sealer, err := crypto.NewSealer(nil)
	require.NoError(t, err)

	e := &testEnv{
		messageRepo: repository.NewSQLiteMessageRepo(db.Conn, sealer),
		chatRepo:    repository.NewSQLiteChatRepo(db.Conn),
		memberRepo:  repository.NewSQLiteMembershipRepo(db.Conn),
		ticketRepo:  repository.NewSQLiteTicketRepo(db.Conn),
		hub:         newFakePublisher(),
		sink:        &recordingSink{},
		unread:      cache.NewMemoryUnreadCache(time.Minute),
	}
	t.Cleanup(func() { e.unread.Close() })

	reactionRepo := repository.NewSQLiteReactionRepo(db.Conn)

	e.chats = NewChatService(e.chatRepo, e.memberRepo, e.messageRepo, reactionRepo, e.unread, e.hub)
	e.messages = NewMessageService(e.messageRepo, e.chatRepo, e.memberRepo, reactionRepo, e.unread, e.hub, e.sink)
	e.readState = NewReadStateService(e.messageRepo, e.chatRepo, e.memberRepo, e.unread, e.hub)
	e.reactions = NewReactionService(reactionRepo, e.messageRepo, e.chatRepo, e.memberRepo, e.hub)
	e.tickets = NewTicketService(e.ticketRepo, e.chatRepo, e.memberRepo, e.messages, e.hub, e.sink)
	return e
}

func user(id string, role models.Role) *models.User {
	return &models.User{ID: id, Role: role}
}

var (
	alice   = user("alice", models.RoleClient)
	bob     = user("bob", models.RoleAgent)
	carol   = user("carol", models.RoleRepresentative)
	support = user("sam", models.RoleSupport)
)

func (e *testEnv) group(t *testing.T, owner *models.User, members ...string) string {
	t.Helper()
	summary, err := e.chats.CreateGroup(context.Background(), owner, "team", members)
	require.NoError(t, err)
	return summary.ID
}

func (e *testEnv) send(t *testing.T, u *models.User, chatID, text string) *models.Message {
	t.Helper()
	msg, err := e.messages.Send(context.Background(), u, chatID, &models.SendMessageRequest{Text: text})
	require.NoError(t, err)
	return msg
}

func (e *testEnv) status(t *testing.T, id int64) models.DeliveryStatus {
	t.Helper()
	msg, err := e.messageRepo.GetByID(context.Background(), id)
	require.NoError(t, err)
	return msg.Status
}
