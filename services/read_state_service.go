package services

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"go.uber.org/zap"

	"github.com/akinalp/messenger/models"
	"github.com/akinalp/messenger/pkg"
	"github.com/akinalp/messenger/pkg/cache"
	"github.com/akinalp/messenger/pkg/metrics"
	"github.com/akinalp/messenger/repository"
	"github.com/akinalp/messenger/ws"
)

// ReadStateService moves the per-member delivery and read cursors and
// answers unread queries.
//
// Every cursor move reports the messages whose status changed; their authors
// are told through messages_delivered / messages_read.
type ReadStateService interface {
	MarkDelivered(ctx context.Context, userID string, req *models.MarkRequest) error
	MarkRead(ctx context.Context, userID string, req *models.MarkRequest) error
	MarkAllDelivered(ctx context.Context, userID string) error
	UnreadCount(ctx context.Context, userID, chatID string) (int, error)
	UnreadSummary(ctx context.Context, userID string) (*models.UnreadSummary, error)
}

type readStateService struct {
	messageRepo repository.MessageRepository
	access      accessChecker
	unread      cache.UnreadCache
	hub         ws.EventPublisher
	log         *zap.SugaredLogger
}

func NewReadStateService(
	messageRepo repository.MessageRepository,
	chatRepo repository.ChatRepository,
	memberRepo repository.MembershipRepository,
	unread cache.UnreadCache,
	hub ws.EventPublisher,
) ReadStateService {
	return &readStateService{
		messageRepo: messageRepo,
		access:      accessChecker{chatRepo: chatRepo, memberRepo: memberRepo},
		unread:      unread,
		hub:         hub,
		log:         zap.S().Named("read_state"),
	}
}

func (s *readStateService) MarkDelivered(ctx context.Context, userID string, req *models.MarkRequest) error {
	return s.mark(ctx, userID, req, models.StatusDelivered)
}

func (s *readStateService) MarkRead(ctx context.Context, userID string, req *models.MarkRequest) error {
	return s.mark(ctx, userID, req, models.StatusRead)
}

func (s *readStateService) mark(ctx context.Context, userID string, req *models.MarkRequest, status models.DeliveryStatus) error {
	if err := req.Validate(); err != nil {
		return fmt.Errorf("%w: %s", pkg.ErrBadRequest, err.Error())
	}

	var (
		changes []models.StatusChange
		err     error
	)
	if status == models.StatusRead {
		changes, err = s.messageRepo.MarkRead(ctx, req.ChatID, userID, req.MessageID)
	} else {
		changes, err = s.messageRepo.MarkDelivered(ctx, req.ChatID, userID, req.MessageID)
	}
	if errors.Is(err, pkg.ErrNotFound) {
		return fmt.Errorf("%w: not a member of this chat", pkg.ErrForbidden)
	}
	if err != nil {
		return err
	}

	if status == models.StatusRead {
		s.unread.Invalidate(ctx, userID)
	}
	notifyStatusChanges(s.hub, req.ChatID, userID, status, changes)
	return nil
}

// MarkAllDelivered runs when a user's first socket connects: everything sent
// to them while they were offline is now on their device.
func (s *readStateService) MarkAllDelivered(ctx context.Context, userID string) error {
	byChat, err := s.messageRepo.MarkAllDelivered(ctx, userID)
	if err != nil {
		return err
	}

	n := 0
	for chatID, changes := range byChat {
		notifyStatusChanges(s.hub, chatID, userID, models.StatusDelivered, changes)
		n += len(changes)
	}
	if n > 0 {
		s.log.Debugw("delivered pending messages", "user_id", userID, "chats", len(byChat), "messages", n)
	}
	return nil
}

func (s *readStateService) UnreadCount(ctx context.Context, userID, chatID string) (int, error) {
	if _, err := s.access.requireMember(ctx, chatID, userID); err != nil {
		return 0, err
	}
	return s.messageRepo.CountUnread(ctx, chatID, userID)
}

// UnreadSummary is served from the unread cache; writers invalidate it.
func (s *readStateService) UnreadSummary(ctx context.Context, userID string) (*models.UnreadSummary, error) {
	if cached, ok := s.unread.Get(ctx, userID); ok {
		return cached, nil
	}

	chats, err := s.messageRepo.UnreadByChat(ctx, userID)
	if err != nil {
		return nil, err
	}

	summary := models.NewUnreadSummary(chats)
	s.unread.Set(ctx, userID, &summary)
	return &summary, nil
}

// notifyStatusChanges tells each author which of their messages moved to
// status because of userID's cursor. System messages have no author and are
// skipped.
func notifyStatusChanges(hub ws.EventPublisher, chatID, userID string, status models.DeliveryStatus, changes []models.StatusChange) {
	if len(changes) == 0 {
		return
	}
	metrics.StatusTransitions.WithLabelValues(string(status)).Add(float64(len(changes)))

	bySender := make(map[string][]int64)
	for _, c := range changes {
		if c.SenderID == nil {
			continue
		}
		bySender[*c.SenderID] = append(bySender[*c.SenderID], c.MessageID)
	}

	op := ws.OpMessagesDelivered
	if status == models.StatusRead {
		op = ws.OpMessagesRead
	}

	for senderID, ids := range bySender {
		sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
		hub.BroadcastToUser(senderID, ws.Event{
			Op: op,
			Data: ws.StatusUpdateData{
				ChatID:     chatID,
				UserID:     userID,
				MessageIDs: ids,
				Status:     string(status),
			},
		})
	}
}
