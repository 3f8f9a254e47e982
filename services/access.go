package services

import (
	"context"
	"errors"
	"fmt"

	"github.com/akinalp/messenger/models"
	"github.com/akinalp/messenger/pkg"
	"github.com/akinalp/messenger/repository"
)

// chatAccess resolves what a user may do in a chat.
//
// Members have full access. Staff who are not members may still read support
// chats (they pick up tickets from the queue); Membership is nil for them.
type chatAccess struct {
	Chat       *models.Chat
	Membership *models.ChatMembership
}

func (a *chatAccess) isOwner() bool {
	return a.Membership != nil && a.Membership.Role == models.MemberRoleOwner
}

type accessChecker struct {
	chatRepo   repository.ChatRepository
	memberRepo repository.MembershipRepository
}

// resolve returns the chat and the caller's membership. A chat the caller
// cannot see is reported as pkg.ErrForbidden, an unknown chat as pkg.ErrNotFound.
func (c accessChecker) resolve(ctx context.Context, user *models.User, chatID string) (*chatAccess, error) {
	chat, err := c.chatRepo.GetByID(ctx, chatID)
	if err != nil {
		return nil, err
	}

	membership, err := c.memberRepo.Get(ctx, chatID, user.ID)
	if err == nil {
		return &chatAccess{Chat: chat, Membership: membership}, nil
	}
	if !errors.Is(err, pkg.ErrNotFound) {
		return nil, err
	}

	if chat.Type == models.ChatSupport && user.Role.IsStaff() {
		return &chatAccess{Chat: chat}, nil
	}
	return nil, fmt.Errorf("%w: not a member of this chat", pkg.ErrForbidden)
}

// requireMember is resolve for operations that need a membership row.
func (c accessChecker) requireMember(ctx context.Context, chatID, userID string) (*models.ChatMembership, error) {
	membership, err := c.memberRepo.Get(ctx, chatID, userID)
	if errors.Is(err, pkg.ErrNotFound) {
		return nil, fmt.Errorf("%w: not a member of this chat", pkg.ErrForbidden)
	}
	return membership, err
}

// join adds a staff user to a support chat they act in. Already being a
// member is not an error; the bool reports whether a row was added.
func (c accessChecker) join(ctx context.Context, chatID, userID string) (bool, error) {
	err := c.memberRepo.Add(ctx, &models.ChatMembership{
		ChatID: chatID,
		UserID: userID,
		Role:   models.MemberRoleMember,
	})
	if errors.Is(err, pkg.ErrAlreadyExists) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to join chat: %w", err)
	}
	return true, nil
}
