// Package main: handler layer setup.
package main

import (
	"github.com/akinalp/messenger/config"
	"github.com/akinalp/messenger/handlers"
	"github.com/akinalp/messenger/ws"
)

// Handlers holds every HTTP handler instance.
type Handlers struct {
	Health    *handlers.HealthHandler
	Chat      *handlers.ChatHandler
	Message   *handlers.MessageHandler
	ReadState *handlers.ReadStateHandler
	Reaction  *handlers.ReactionHandler
	Ticket    *handlers.TicketHandler
	WS        *ws.Handler
}

func initHandlers(
	svcs *Services,
	limiters *RateLimiters,
	hub *ws.Hub,
	db handlers.Pinger,
	cfg *config.Config,
) *Handlers {
	return &Handlers{
		Health:    handlers.NewHealthHandler(db, hub),
		Chat:      handlers.NewChatHandler(svcs.Chat),
		Message:   handlers.NewMessageHandler(svcs.Message, limiters.Message),
		ReadState: handlers.NewReadStateHandler(svcs.ReadState),
		Reaction:  handlers.NewReactionHandler(svcs.Reaction),
		Ticket:    handlers.NewTicketHandler(svcs.Ticket, limiters.Message),
		WS:        ws.NewHandler(hub, svcs.Auth, cfg.CORS.AllowedOrigins),
	}
}
