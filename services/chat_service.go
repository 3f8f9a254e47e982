package services

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/akinalp/messenger/models"
	"github.com/akinalp/messenger/pkg"
	"github.com/akinalp/messenger/pkg/cache"
	"github.com/akinalp/messenger/repository"
	"github.com/akinalp/messenger/ws"
)

// ChatService manages chats and their members.
//
// Private chats are unique per pair of users: CreatePrivate returns the
// existing chat when there is one (created=false). Support chats are only
// created through TicketService.
type ChatService interface {
	Create(ctx context.Context, user *models.User, req *models.CreateChatRequest) (*models.ChatSummary, bool, error)
	CreatePrivate(ctx context.Context, user *models.User, otherID string) (*models.ChatSummary, bool, error)
	CreateGroup(ctx context.Context, user *models.User, title string, memberIDs []string) (*models.ChatSummary, error)
	Get(ctx context.Context, user *models.User, chatID string) (*models.ChatSummary, error)
	List(ctx context.Context, user *models.User) ([]models.ChatSummary, error)
	AddMember(ctx context.Context, user *models.User, chatID string, req *models.AddMemberRequest) error
	RemoveMember(ctx context.Context, user *models.User, chatID, targetID string) error
	BroadcastTyping(ctx context.Context, userID, chatID string) error
}

type chatService struct {
	chatRepo    repository.ChatRepository
	memberRepo  repository.MembershipRepository
	messageRepo repository.MessageRepository
	access      accessChecker
	decorator   messageDecorator
	unread      cache.UnreadCache
	hub         ws.EventPublisher
	log         *zap.SugaredLogger
}

func NewChatService(
	chatRepo repository.ChatRepository,
	memberRepo repository.MembershipRepository,
	messageRepo repository.MessageRepository,
	reactionRepo repository.ReactionRepository,
	unread cache.UnreadCache,
	hub ws.EventPublisher,
) ChatService {
	return &chatService{
		chatRepo:    chatRepo,
		memberRepo:  memberRepo,
		messageRepo: messageRepo,
		access:      accessChecker{chatRepo: chatRepo, memberRepo: memberRepo},
		decorator:   messageDecorator{messageRepo: messageRepo, reactionRepo: reactionRepo},
		unread:      unread,
		hub:         hub,
		log:         zap.S().Named("chats"),
	}
}

// Create dispatches POST /api/chats on the requested type.
func (s *chatService) Create(ctx context.Context, user *models.User, req *models.CreateChatRequest) (*models.ChatSummary, bool, error) {
	if err := req.Validate(); err != nil {
		return nil, false, fmt.Errorf("%w: %s", pkg.ErrBadRequest, err.Error())
	}

	if req.Type == models.ChatPrivate {
		return s.CreatePrivate(ctx, user, req.MemberIDs[0])
	}
	summary, err := s.CreateGroup(ctx, user, req.Title, req.MemberIDs)
	return summary, err == nil, err
}

func (s *chatService) CreatePrivate(ctx context.Context, user *models.User, otherID string) (*models.ChatSummary, bool, error) {
	if otherID == "" || otherID == user.ID {
		return nil, false, fmt.Errorf("%w: a private chat needs another user", pkg.ErrBadRequest)
	}

	existing, err := s.chatRepo.FindPrivate(ctx, user.ID, otherID)
	if err == nil {
		summary, err := s.summarize(ctx, user, existing)
		return summary, false, err
	}
	if !errors.Is(err, pkg.ErrNotFound) {
		return nil, false, err
	}

	chat := &models.Chat{Type: models.ChatPrivate, CreatedBy: user.ID}
	err = s.chatRepo.Create(ctx, chat, []string{otherID})
	if errors.Is(err, pkg.ErrAlreadyExists) {
		// Lost a race with the other user opening the same chat.
		existing, err := s.chatRepo.FindPrivate(ctx, user.ID, otherID)
		if err != nil {
			return nil, false, err
		}
		summary, err := s.summarize(ctx, user, existing)
		return summary, false, err
	}
	if err != nil {
		return nil, false, err
	}

	summary, err := s.announce(ctx, user, chat)
	return summary, true, err
}

func (s *chatService) CreateGroup(ctx context.Context, user *models.User, title string, memberIDs []string) (*models.ChatSummary, error) {
	others := make([]string, 0, len(memberIDs))
	for _, id := range memberIDs {
		if id != user.ID {
			others = append(others, id)
		}
	}

	chat := &models.Chat{Type: models.ChatGroup, Title: title, CreatedBy: user.ID}
	if err := s.chatRepo.Create(ctx, chat, others); err != nil {
		return nil, err
	}

	return s.announce(ctx, user, chat)
}

// announce sends chat_create to every member of a new chat.
func (s *chatService) announce(ctx context.Context, user *models.User, chat *models.Chat) (*models.ChatSummary, error) {
	summary, err := s.summarize(ctx, user, chat)
	if err != nil {
		return nil, err
	}

	s.hub.BroadcastToUsers(summary.Members, ws.Event{Op: ws.OpChatCreate, Data: summary.Chat})
	s.log.Infow("chat created", "chat_id", chat.ID, "type", chat.Type, "members", len(summary.Members))
	return summary, nil
}

func (s *chatService) Get(ctx context.Context, user *models.User, chatID string) (*models.ChatSummary, error) {
	access, err := s.access.resolve(ctx, user, chatID)
	if err != nil {
		return nil, err
	}
	return s.summarize(ctx, user, access.Chat)
}

// summarize builds the ChatSummary of one chat as seen by user.
func (s *chatService) summarize(ctx context.Context, user *models.User, chat *models.Chat) (*models.ChatSummary, error) {
	members, err := s.memberRepo.ListUserIDs(ctx, chat.ID)
	if err != nil {
		return nil, err
	}

	summary := &models.ChatSummary{Chat: *chat, Members: members}

	latest, err := s.messageRepo.List(ctx, chat.ID, models.MessageCursor{Limit: 1})
	if err != nil {
		return nil, err
	}
	if len(latest) == 1 {
		if err := s.decorator.decorate(ctx, latest); err != nil {
			return nil, err
		}
		summary.LastMessageID = &latest[0].ID
		summary.LastMessage = &latest[0]
	}

	summary.UnreadCount, err = s.messageRepo.CountUnread(ctx, chat.ID, user.ID)
	if err != nil {
		return nil, err
	}
	return summary, nil
}

// List returns the user's chats, most recent activity first, with their
// newest message attached.
func (s *chatService) List(ctx context.Context, user *models.User) ([]models.ChatSummary, error) {
	chats, err := s.chatRepo.ListForUser(ctx, user.ID)
	if err != nil {
		return nil, err
	}

	lastIDs := make([]int64, 0, len(chats))
	for _, c := range chats {
		if c.LastMessageID != nil {
			lastIDs = append(lastIDs, *c.LastMessageID)
		}
	}
	if len(lastIDs) == 0 {
		return chats, nil
	}

	byID, err := s.messageRepo.GetByIDs(ctx, lastIDs)
	if err != nil {
		return nil, err
	}

	last := make([]models.Message, 0, len(byID))
	for _, id := range lastIDs {
		if m, ok := byID[id]; ok {
			last = append(last, *m)
		}
	}
	if err := s.decorator.decorate(ctx, last); err != nil {
		return nil, err
	}

	index := make(map[int64]int, len(last))
	for i := range last {
		index[last[i].ID] = i
	}
	for i := range chats {
		if chats[i].LastMessageID == nil {
			continue
		}
		if j, ok := index[*chats[i].LastMessageID]; ok {
			chats[i].LastMessage = &last[j]
		}
	}
	return chats, nil
}

// AddMember adds a user to a group (owner or staff) or a support chat (staff).
// Private chats never change members.
func (s *chatService) AddMember(ctx context.Context, user *models.User, chatID string, req *models.AddMemberRequest) error {
	if err := req.Validate(); err != nil {
		return fmt.Errorf("%w: %s", pkg.ErrBadRequest, err.Error())
	}

	access, err := s.access.resolve(ctx, user, chatID)
	if err != nil {
		return err
	}

	switch access.Chat.Type {
	case models.ChatPrivate:
		return fmt.Errorf("%w: private chats have fixed members", pkg.ErrForbidden)
	case models.ChatSupport:
		if !user.Role.IsStaff() {
			return fmt.Errorf("%w: only staff can add members to a support chat", pkg.ErrForbidden)
		}
	case models.ChatGroup:
		if !access.isOwner() && !user.Role.IsStaff() {
			return fmt.Errorf("%w: only the owner can add members", pkg.ErrForbidden)
		}
		members, err := s.memberRepo.ListUserIDs(ctx, chatID)
		if err != nil {
			return err
		}
		if len(members) >= models.MaxGroupMembers {
			return fmt.Errorf("%w: a group can have at most %d members", pkg.ErrBadRequest, models.MaxGroupMembers)
		}
	}

	if err := s.memberRepo.Add(ctx, &models.ChatMembership{
		ChatID: chatID,
		UserID: req.UserID,
		Role:   models.MemberRoleMember,
	}); err != nil {
		return err
	}

	members, err := s.memberRepo.ListUserIDs(ctx, chatID)
	if err != nil {
		return err
	}
	s.hub.BroadcastToUser(req.UserID, ws.Event{Op: ws.OpChatCreate, Data: access.Chat})
	s.hub.BroadcastToUsers(members, ws.Event{
		Op:   ws.OpMemberJoin,
		Data: models.MemberEvent{ChatID: chatID, UserID: req.UserID},
	})
	s.unread.Invalidate(ctx, req.UserID)
	return nil
}

// RemoveMember lets a member leave, and lets the owner or staff remove others.
func (s *chatService) RemoveMember(ctx context.Context, user *models.User, chatID, targetID string) error {
	access, err := s.access.resolve(ctx, user, chatID)
	if err != nil {
		return err
	}
	if access.Chat.Type == models.ChatPrivate {
		return fmt.Errorf("%w: private chats have fixed members", pkg.ErrForbidden)
	}

	self := targetID == user.ID
	if !self && !access.isOwner() && !user.Role.IsStaff() {
		return fmt.Errorf("%w: only the owner can remove members", pkg.ErrForbidden)
	}

	members, err := s.memberRepo.ListUserIDs(ctx, chatID)
	if err != nil {
		return err
	}
	if err := s.memberRepo.Remove(ctx, chatID, targetID); err != nil {
		return err
	}

	s.hub.BroadcastToUsers(members, ws.Event{
		Op:   ws.OpMemberLeave,
		Data: models.MemberEvent{ChatID: chatID, UserID: targetID},
	})
	s.unread.Invalidate(ctx, targetID)
	return nil
}

// BroadcastTyping relays a typing indicator to the other members.
func (s *chatService) BroadcastTyping(ctx context.Context, userID, chatID string) error {
	if _, err := s.access.requireMember(ctx, chatID, userID); err != nil {
		return err
	}

	members, err := s.memberRepo.ListUserIDs(ctx, chatID)
	if err != nil {
		return err
	}
	s.hub.BroadcastToUsersExcept(members, userID, ws.Event{
		Op:   ws.OpTypingStart,
		Data: models.TypingEvent{ChatID: chatID, UserID: userID},
	})
	return nil
}
