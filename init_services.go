// Package main: service layer setup.
//
// Order matters in one place only: TicketService posts its first message
// and status-change notices through MessageService, so Message is built first.
package main

import (
	"github.com/akinalp/messenger/config"
	"github.com/akinalp/messenger/events"
	"github.com/akinalp/messenger/pkg/cache"
	"github.com/akinalp/messenger/pkg/ratelimit"
	"github.com/akinalp/messenger/services"
	"github.com/akinalp/messenger/ws"
)

// Services holds every service instance.
type Services struct {
	Auth      services.AuthService
	Chat      services.ChatService
	Message   services.MessageService
	ReadState services.ReadStateService
	Reaction  services.ReactionService
	Ticket    services.TicketService
	Retention services.RetentionService
}

// RateLimiters holds the rate limiter instances.
type RateLimiters struct {
	Message *ratelimit.MessageRateLimiter
}

func initServices(
	repos *Repositories,
	hub ws.EventPublisher,
	unread cache.UnreadCache,
	sink events.Sink,
	cfg *config.Config,
) (*Services, *RateLimiters) {
	messageService := services.NewMessageService(
		repos.Message, repos.Chat, repos.Membership, repos.Reaction, unread, hub, sink,
	)

	svcs := &Services{
		Auth:    services.NewAuthService(cfg.JWT.Secret, cfg.JWT.AccessTokenExpiry),
		Chat:    services.NewChatService(repos.Chat, repos.Membership, repos.Message, repos.Reaction, unread, hub),
		Message: messageService,
		ReadState: services.NewReadStateService(
			repos.Message, repos.Chat, repos.Membership, unread, hub,
		),
		Reaction: services.NewReactionService(
			repos.Reaction, repos.Message, repos.Chat, repos.Membership, hub,
		),
		Ticket: services.NewTicketService(
			repos.Ticket, repos.Chat, repos.Membership, messageService, hub, sink,
		),
		Retention: services.NewRetentionService(repos.Message, cfg.Retention.Cron, cfg.Retention.Days),
	}

	limiters := &RateLimiters{
		Message: ratelimit.NewMessageRateLimiter(cfg.RateLimit.MessagesPerSecond, cfg.RateLimit.Burst),
	}

	return svcs, limiters
}
