package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/akinalp/messenger/events"
	"github.com/akinalp/messenger/models"
	"github.com/akinalp/messenger/pkg"
	"github.com/akinalp/messenger/pkg/cache"
	"github.com/akinalp/messenger/pkg/metrics"
	"github.com/akinalp/messenger/repository"
	"github.com/akinalp/messenger/ws"
)

const publishTimeout = 5 * time.Second

// MessageService is the message history of chats: listing, sending, editing
// and deleting, plus system messages posted by other services.
type MessageService interface {
	List(ctx context.Context, user *models.User, chatID string, cursor models.MessageCursor) (*models.MessagePage, error)
	Send(ctx context.Context, user *models.User, chatID string, req *models.SendMessageRequest) (*models.Message, error)
	Edit(ctx context.Context, user *models.User, messageID int64, req *models.EditMessageRequest) (*models.Message, error)
	Delete(ctx context.Context, user *models.User, messageID int64) error
	PostSystemMessage(ctx context.Context, chatID, text string) (*models.Message, error)
}

type messageService struct {
	messageRepo repository.MessageRepository
	memberRepo  repository.MembershipRepository
	access      accessChecker
	decorator   messageDecorator
	unread      cache.UnreadCache
	hub         ws.EventPublisher
	sink        events.Sink
	log         *zap.SugaredLogger
}

func NewMessageService(
	messageRepo repository.MessageRepository,
	chatRepo repository.ChatRepository,
	memberRepo repository.MembershipRepository,
	reactionRepo repository.ReactionRepository,
	unread cache.UnreadCache,
	hub ws.EventPublisher,
	sink events.Sink,
) MessageService {
	return &messageService{
		messageRepo: messageRepo,
		memberRepo:  memberRepo,
		access:      accessChecker{chatRepo: chatRepo, memberRepo: memberRepo},
		decorator:   messageDecorator{messageRepo: messageRepo, reactionRepo: reactionRepo},
		unread:      unread,
		hub:         hub,
		sink:        sink,
		log:         zap.S().Named("messages"),
	}
}

// List returns one page of a chat's history in ascending id order.
//
// limit+1 rows are fetched: the extra row only signals that another page
// exists in the paging direction.
func (s *messageService) List(ctx context.Context, user *models.User, chatID string, cursor models.MessageCursor) (*models.MessagePage, error) {
	if err := cursor.Normalize(); err != nil {
		return nil, fmt.Errorf("%w: %s", pkg.ErrBadRequest, err.Error())
	}
	if _, err := s.access.resolve(ctx, user, chatID); err != nil {
		return nil, err
	}

	limit := cursor.Limit
	cursor.Limit = limit + 1
	messages, err := s.messageRepo.List(ctx, chatID, cursor)
	if err != nil {
		return nil, err
	}

	hasMore := len(messages) > limit
	if hasMore {
		messages = messages[:limit]
	}

	// Backward pages come newest first.
	if cursor.AfterID == 0 {
		for i, j := 0, len(messages)-1; i < j; i, j = i+1, j-1 {
			messages[i], messages[j] = messages[j], messages[i]
		}
	}

	if err := s.decorator.decorate(ctx, messages); err != nil {
		return nil, err
	}

	return &models.MessagePage{Messages: messages, HasMore: hasMore}, nil
}

// Send stores a message from user and fans it out to the chat.
//
// Staff writing into a support chat they are not part of join it first.
func (s *messageService) Send(ctx context.Context, user *models.User, chatID string, req *models.SendMessageRequest) (*models.Message, error) {
	if err := req.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %s", pkg.ErrBadRequest, err.Error())
	}

	access, err := s.access.resolve(ctx, user, chatID)
	if err != nil {
		return nil, err
	}
	joined := false
	if access.Membership == nil {
		if joined, err = s.access.join(ctx, chatID, user.ID); err != nil {
			return nil, err
		}
	}

	if req.ReplyToID != nil {
		target, err := s.messageRepo.GetByID(ctx, *req.ReplyToID)
		if errors.Is(err, pkg.ErrNotFound) || (err == nil && target.ChatID != chatID) {
			return nil, fmt.Errorf("%w: replied message not found in this chat", pkg.ErrBadRequest)
		}
		if err != nil {
			return nil, err
		}
		if target.IsDeleted() {
			return nil, fmt.Errorf("%w: cannot reply to a deleted message", pkg.ErrBadRequest)
		}
	}

	senderID := user.ID
	msg := &models.Message{
		ChatID:    chatID,
		SenderID:  &senderID,
		Content:   req.Content(),
		ReplyToID: req.ReplyToID,
	}

	readChanges, err := s.messageRepo.Create(ctx, msg)
	if err != nil {
		return nil, err
	}
	metrics.MessagesCreated.WithLabelValues(string(access.Chat.Type), "user").Inc()

	if err := s.decorator.decorateOne(ctx, msg); err != nil {
		return nil, err
	}

	memberIDs, err := s.memberRepo.ListUserIDs(ctx, chatID)
	if err != nil {
		return nil, err
	}

	if joined {
		s.hub.BroadcastToUsers(memberIDs, ws.Event{
			Op:   ws.OpMemberJoin,
			Data: models.MemberEvent{ChatID: chatID, UserID: user.ID},
		})
	}
	s.hub.BroadcastToUsers(memberIDs, ws.Event{Op: ws.OpMessageCreate, Data: msg})
	s.unread.Invalidate(ctx, memberIDs...)
	notifyStatusChanges(s.hub, chatID, user.ID, models.StatusRead, readChanges)
	s.publish(ws.OpMessageCreate, chatID, user.ID, memberIDs, msg)

	return msg, nil
}

// Edit replaces the text (and optionally the attachments) of the caller's own
// message. Deleted and system messages cannot be edited.
func (s *messageService) Edit(ctx context.Context, user *models.User, messageID int64, req *models.EditMessageRequest) (*models.Message, error) {
	msg, err := s.messageRepo.GetByID(ctx, messageID)
	if err != nil {
		return nil, err
	}
	if msg.IsDeleted() {
		return nil, pkg.ErrNotFound
	}
	if msg.IsSystem() || !msg.SentBy(user.ID) {
		return nil, fmt.Errorf("%w: you can only edit your own messages", pkg.ErrForbidden)
	}
	if _, err := s.access.requireMember(ctx, msg.ChatID, user.ID); err != nil {
		return nil, err
	}

	if err := req.Validate(msg.Content.Attachments); err != nil {
		return nil, fmt.Errorf("%w: %s", pkg.ErrBadRequest, err.Error())
	}

	content := req.Apply(msg.Content)
	updatedAt, err := s.messageRepo.UpdateContent(ctx, messageID, content)
	if err != nil {
		return nil, err
	}
	msg.Content = content
	msg.UpdatedAt = &updatedAt

	if err := s.decorator.decorateOne(ctx, msg); err != nil {
		return nil, err
	}

	memberIDs, err := s.memberRepo.ListUserIDs(ctx, msg.ChatID)
	if err != nil {
		return nil, err
	}
	s.hub.BroadcastToUsers(memberIDs, ws.Event{Op: ws.OpMessageUpdate, Data: msg})

	return msg, nil
}

// Delete soft-deletes a message. Authors delete their own messages; staff
// delete anyone's, system messages included.
func (s *messageService) Delete(ctx context.Context, user *models.User, messageID int64) error {
	msg, err := s.messageRepo.GetByID(ctx, messageID)
	if err != nil {
		return err
	}
	if msg.IsDeleted() {
		return pkg.ErrNotFound
	}

	if !user.Role.IsStaff() {
		if !msg.SentBy(user.ID) {
			return fmt.Errorf("%w: you can only delete your own messages", pkg.ErrForbidden)
		}
		if _, err := s.access.requireMember(ctx, msg.ChatID, user.ID); err != nil {
			return err
		}
	}

	if err := s.messageRepo.SoftDelete(ctx, messageID); err != nil {
		return err
	}

	memberIDs, err := s.memberRepo.ListUserIDs(ctx, msg.ChatID)
	if err != nil {
		return err
	}
	s.hub.BroadcastToUsers(memberIDs, ws.Event{
		Op:   ws.OpMessageDelete,
		Data: ws.MessageDeleteData{ID: messageID, ChatID: msg.ChatID},
	})
	s.unread.Invalidate(ctx, memberIDs...)

	return nil
}

// PostSystemMessage stores a message without a sender. It counts as unread
// for every member and moves nobody's cursor.
func (s *messageService) PostSystemMessage(ctx context.Context, chatID, text string) (*models.Message, error) {
	chat, err := s.access.chatRepo.GetByID(ctx, chatID)
	if err != nil {
		return nil, err
	}

	msg := &models.Message{
		ChatID:  chatID,
		Content: models.MessageContent{Text: text, Attachments: []models.Attachment{}},
	}
	if _, err := s.messageRepo.Create(ctx, msg); err != nil {
		return nil, err
	}
	metrics.MessagesCreated.WithLabelValues(string(chat.Type), "system").Inc()

	memberIDs, err := s.memberRepo.ListUserIDs(ctx, chatID)
	if err != nil {
		return nil, err
	}
	s.hub.BroadcastToUsers(memberIDs, ws.Event{Op: ws.OpMessageCreate, Data: msg})
	s.unread.Invalidate(ctx, memberIDs...)
	s.publish(ws.OpMessageCreate, chatID, "", memberIDs, msg)

	return msg, nil
}

// publish hands the event to the sink in the background. Members other than
// the author are recipients; the ones without a socket are flagged offline.
func (s *messageService) publish(op, chatID, authorID string, memberIDs []string, data any) {
	env := buildEnvelope(s.hub, op, chatID, authorID, memberIDs, data)
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), publishTimeout)
		defer cancel()
		if err := s.sink.Publish(ctx, env); err != nil {
			s.log.Warnw("event not published", "op", op, "chat_id", chatID, "error", err)
		}
	}()
}

func buildEnvelope(hub ws.EventPublisher, op, chatID, authorID string, memberIDs []string, data any) events.Envelope {
	env := events.Envelope{
		Op:                op,
		ChatID:            chatID,
		Data:              data,
		Recipients:        []string{},
		OfflineRecipients: []string{},
		At:                time.Now().UTC(),
	}
	for _, id := range memberIDs {
		if id == authorID {
			continue
		}
		env.Recipients = append(env.Recipients, id)
		if !hub.IsOnline(id) {
			env.OfflineRecipients = append(env.OfflineRecipients, id)
		}
	}
	return env
}

// messageDecorator fills the parts of a message the repository leaves empty:
// the reply preview and the grouped reactions. Both are batch-loaded so a
// page costs two extra queries regardless of its size.
type messageDecorator struct {
	messageRepo  repository.MessageRepository
	reactionRepo repository.ReactionRepository
}

func (d messageDecorator) decorateOne(ctx context.Context, msg *models.Message) error {
	page := []models.Message{*msg}
	if err := d.decorate(ctx, page); err != nil {
		return err
	}
	*msg = page[0]
	return nil
}

func (d messageDecorator) decorate(ctx context.Context, messages []models.Message) error {
	if len(messages) == 0 {
		return nil
	}

	ids := make([]int64, 0, len(messages))
	replyIDs := make([]int64, 0)
	for _, m := range messages {
		ids = append(ids, m.ID)
		if m.ReplyToID != nil {
			replyIDs = append(replyIDs, *m.ReplyToID)
		}
	}

	targets, err := d.messageRepo.GetByIDs(ctx, replyIDs)
	if err != nil {
		return fmt.Errorf("failed to load replied messages: %w", err)
	}

	reactions, err := d.reactionRepo.GetByMessageIDs(ctx, ids)
	if err != nil {
		return fmt.Errorf("failed to load reactions: %w", err)
	}

	for i := range messages {
		m := &messages[i]

		m.Reactions = reactions[m.ID]
		if m.Reactions == nil {
			m.Reactions = []models.ReactionGroup{}
		}
		if m.Content.Attachments == nil {
			m.Content.Attachments = []models.Attachment{}
		}

		m.ReferencedMessage = nil
		if m.ReplyToID == nil {
			continue
		}
		if target, ok := targets[*m.ReplyToID]; ok {
			m.ReferencedMessage = previewOf(target)
		}
	}
	return nil
}

// previewOf builds a reply preview. A deleted target keeps its id and author
// but not its content.
func previewOf(target *models.Message) *models.MessageReference {
	ref := &models.MessageReference{ID: target.ID, SenderID: target.SenderID}
	if target.IsDeleted() {
		ref.Deleted = true
		return ref
	}
	content := target.Content
	ref.Content = &content
	return ref
}
