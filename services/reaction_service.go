package services

import (
	"context"
	"fmt"

	"github.com/akinalp/messenger/models"
	"github.com/akinalp/messenger/pkg"
	"github.com/akinalp/messenger/pkg/metrics"
	"github.com/akinalp/messenger/repository"
	"github.com/akinalp/messenger/ws"
)

// ReactionService adds and removes emoji reactions. After every change the
// full grouped list of the message goes out as reaction_update, so clients
// replace rather than patch their state.
type ReactionService interface {
	Add(ctx context.Context, userID string, messageID int64, req *models.ReactionRequest) ([]models.ReactionGroup, error)
	Remove(ctx context.Context, userID string, messageID int64, emoji string) ([]models.ReactionGroup, error)
}

type reactionService struct {
	reactionRepo repository.ReactionRepository
	messageRepo  repository.MessageRepository
	memberRepo   repository.MembershipRepository
	access       accessChecker
	hub          ws.EventPublisher
}

func NewReactionService(
	reactionRepo repository.ReactionRepository,
	messageRepo repository.MessageRepository,
	chatRepo repository.ChatRepository,
	memberRepo repository.MembershipRepository,
	hub ws.EventPublisher,
) ReactionService {
	return &reactionService{
		reactionRepo: reactionRepo,
		messageRepo:  messageRepo,
		memberRepo:   memberRepo,
		access:       accessChecker{chatRepo: chatRepo, memberRepo: memberRepo},
		hub:          hub,
	}
}

func (s *reactionService) Add(ctx context.Context, userID string, messageID int64, req *models.ReactionRequest) ([]models.ReactionGroup, error) {
	if err := req.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %s", pkg.ErrBadRequest, err.Error())
	}

	msg, err := s.visibleMessage(ctx, userID, messageID)
	if err != nil {
		return nil, err
	}

	if err := s.reactionRepo.Add(ctx, &models.UserReaction{
		MessageID: messageID,
		UserID:    userID,
		Emoji:     req.Emoji,
	}); err != nil {
		return nil, err
	}
	metrics.Reactions.WithLabelValues("add").Inc()

	return s.broadcast(ctx, msg)
}

func (s *reactionService) Remove(ctx context.Context, userID string, messageID int64, emoji string) ([]models.ReactionGroup, error) {
	req := models.ReactionRequest{Emoji: emoji}
	if err := req.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %s", pkg.ErrBadRequest, err.Error())
	}

	msg, err := s.visibleMessage(ctx, userID, messageID)
	if err != nil {
		return nil, err
	}

	if err := s.reactionRepo.Remove(ctx, messageID, userID, req.Emoji); err != nil {
		return nil, err
	}
	metrics.Reactions.WithLabelValues("remove").Inc()

	return s.broadcast(ctx, msg)
}

// visibleMessage loads a non-deleted message of a chat the user belongs to.
func (s *reactionService) visibleMessage(ctx context.Context, userID string, messageID int64) (*models.Message, error) {
	msg, err := s.messageRepo.GetByID(ctx, messageID)
	if err != nil {
		return nil, err
	}
	if msg.IsDeleted() {
		return nil, pkg.ErrNotFound
	}
	if _, err := s.access.requireMember(ctx, msg.ChatID, userID); err != nil {
		return nil, err
	}
	return msg, nil
}

func (s *reactionService) broadcast(ctx context.Context, msg *models.Message) ([]models.ReactionGroup, error) {
	reactions, err := s.reactionRepo.GetByMessageID(ctx, msg.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to get reactions: %w", err)
	}

	members, err := s.memberRepo.ListUserIDs(ctx, msg.ChatID)
	if err != nil {
		return nil, err
	}
	s.hub.BroadcastToUsers(members, ws.Event{
		Op: ws.OpReactionUpdate,
		Data: ws.ReactionUpdateData{
			MessageID: msg.ID,
			ChatID:    msg.ChatID,
			Reactions: reactions,
		},
	})
	return reactions, nil
}
