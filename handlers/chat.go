package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/akinalp/messenger/models"
	"github.com/akinalp/messenger/pkg"
	"github.com/akinalp/messenger/services"
)

// ChatHandler serves chat and membership endpoints.
type ChatHandler struct {
	chatService services.ChatService
}

// NewChatHandler, constructor.
func NewChatHandler(chatService services.ChatService) *ChatHandler {
	return &ChatHandler{chatService: chatService}
}

// List godoc
// GET /api/chats
//
// Chats of the caller, most recent activity first, each with its last
// message and unread count.
func (h *ChatHandler) List(w http.ResponseWriter, r *http.Request) {
	user, ok := requireUser(w, r)
	if !ok {
		return
	}

	chats, err := h.chatService.List(r.Context(), user)
	if err != nil {
		pkg.Error(w, err)
		return
	}

	pkg.JSON(w, http.StatusOK, chats)
}

// Create godoc
// POST /api/chats
//
// Body: { "type": "private|group", "title": "...", "member_ids": [...] }
//
// A private chat is get-or-create: 201 when it was created, 200 when the
// pair already had one.
func (h *ChatHandler) Create(w http.ResponseWriter, r *http.Request) {
	user, ok := requireUser(w, r)
	if !ok {
		return
	}

	var req models.CreateChatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		pkg.ErrorWithMessage(w, http.StatusBadRequest, "invalid request body")
		return
	}

	chat, created, err := h.chatService.Create(r.Context(), user, &req)
	if err != nil {
		pkg.Error(w, err)
		return
	}

	status := http.StatusOK
	if created {
		status = http.StatusCreated
	}
	pkg.JSON(w, status, chat)
}

// Get godoc
// GET /api/chats/{chatId}
func (h *ChatHandler) Get(w http.ResponseWriter, r *http.Request) {
	user, ok := requireUser(w, r)
	if !ok {
		return
	}

	chat, err := h.chatService.Get(r.Context(), user, r.PathValue("chatId"))
	if err != nil {
		pkg.Error(w, err)
		return
	}

	pkg.JSON(w, http.StatusOK, chat)
}

// AddMember godoc
// POST /api/chats/{chatId}/members
//
// Body: { "user_id": "..." }
func (h *ChatHandler) AddMember(w http.ResponseWriter, r *http.Request) {
	user, ok := requireUser(w, r)
	if !ok {
		return
	}

	var req models.AddMemberRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		pkg.ErrorWithMessage(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if err := h.chatService.AddMember(r.Context(), user, r.PathValue("chatId"), &req); err != nil {
		pkg.Error(w, err)
		return
	}

	pkg.JSON(w, http.StatusOK, map[string]string{"message": "member added"})
}

// RemoveMember godoc
// DELETE /api/chats/{chatId}/members/{userId}
//
// Members may remove themselves. Group owners and staff may remove anyone.
func (h *ChatHandler) RemoveMember(w http.ResponseWriter, r *http.Request) {
	user, ok := requireUser(w, r)
	if !ok {
		return
	}

	if err := h.chatService.RemoveMember(r.Context(), user, r.PathValue("chatId"), r.PathValue("userId")); err != nil {
		pkg.Error(w, err)
		return
	}

	pkg.JSON(w, http.StatusOK, map[string]string{"message": "member removed"})
}
