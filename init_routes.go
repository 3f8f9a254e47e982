// Package main: HTTP route registration.
//
// Every /api route except health requires a bearer token. The websocket
// endpoint authenticates through its ?token= query parameter instead,
// since browsers cannot set headers on an upgrade request.
package main

import (
	"net/http"

	"github.com/akinalp/messenger/middleware"
	"github.com/akinalp/messenger/pkg/metrics"
	"github.com/akinalp/messenger/services"
)

// initRoutes binds every endpoint to mux.
func initRoutes(mux *http.ServeMux, h *Handlers, authService services.AuthService) {
	authMw := middleware.NewAuthMiddleware(authService)

	auth := func(handler http.HandlerFunc) http.Handler {
		return authMw.Require(http.HandlerFunc(handler))
	}

	// Public
	mux.HandleFunc("GET /api/health", h.Health.Check)
	mux.Handle("GET /metrics", metrics.Handler())

	// Chats
	mux.Handle("GET /api/chats", auth(h.Chat.List))
	mux.Handle("POST /api/chats", auth(h.Chat.Create))
	mux.Handle("GET /api/chats/{chatId}", auth(h.Chat.Get))
	mux.Handle("POST /api/chats/{chatId}/members", auth(h.Chat.AddMember))
	mux.Handle("DELETE /api/chats/{chatId}/members/{userId}", auth(h.Chat.RemoveMember))

	// Messages
	mux.Handle("GET /api/chats/{chatId}/messages", auth(h.Message.List))
	mux.Handle("POST /api/chats/{chatId}/messages", auth(h.Message.Send))
	mux.Handle("PATCH /api/messages/{messageId}", auth(h.Message.Edit))
	mux.Handle("DELETE /api/messages/{messageId}", auth(h.Message.Delete))

	// Delivery and read state
	mux.Handle("POST /api/chats/{chatId}/delivered", auth(h.ReadState.MarkDelivered))
	mux.Handle("POST /api/chats/{chatId}/read", auth(h.ReadState.MarkRead))
	mux.Handle("GET /api/chats/{chatId}/unread", auth(h.ReadState.ChatUnread))
	mux.Handle("GET /api/unread", auth(h.ReadState.Summary))

	// Reactions
	mux.Handle("POST /api/messages/{messageId}/reactions", auth(h.Reaction.Add))
	mux.Handle("DELETE /api/messages/{messageId}/reactions", auth(h.Reaction.Remove))

	// Tickets
	mux.Handle("POST /api/tickets", auth(h.Ticket.Open))
	mux.Handle("GET /api/tickets", auth(h.Ticket.List))
	mux.Handle("GET /api/tickets/{ticketId}", auth(h.Ticket.Get))
	mux.Handle("PATCH /api/tickets/{ticketId}", auth(h.Ticket.UpdateStatus))

	// WebSocket
	mux.HandleFunc("GET /ws", h.WS.HandleConnection)
}
