package handlers

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/akinalp/messenger/models"
	"github.com/akinalp/messenger/pkg"
	"github.com/akinalp/messenger/services"
)

// ReadStateHandler serves the delivery/read cursors and unread counters.
type ReadStateHandler struct {
	readStateService services.ReadStateService
}

// NewReadStateHandler, constructor.
func NewReadStateHandler(readStateService services.ReadStateService) *ReadStateHandler {
	return &ReadStateHandler{readStateService: readStateService}
}

// MarkDelivered godoc
// POST /api/chats/{chatId}/delivered
//
// Body: { "message_id": 42 }. Everything up to that message from other
// members becomes at least delivered.
func (h *ReadStateHandler) MarkDelivered(w http.ResponseWriter, r *http.Request) {
	h.mark(w, r, h.readStateService.MarkDelivered)
}

// MarkRead godoc
// POST /api/chats/{chatId}/read
//
// Body: { "message_id": 42 }
func (h *ReadStateHandler) MarkRead(w http.ResponseWriter, r *http.Request) {
	h.mark(w, r, h.readStateService.MarkRead)
}

type markFunc func(ctx context.Context, userID string, req *models.MarkRequest) error

func (h *ReadStateHandler) mark(w http.ResponseWriter, r *http.Request, fn markFunc) {
	user, ok := requireUser(w, r)
	if !ok {
		return
	}

	var req models.MarkRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		pkg.ErrorWithMessage(w, http.StatusBadRequest, "invalid request body")
		return
	}
	req.ChatID = r.PathValue("chatId")

	if err := fn(r.Context(), user.ID, &req); err != nil {
		pkg.Error(w, err)
		return
	}

	pkg.JSON(w, http.StatusOK, map[string]string{"message": "ok"})
}

// ChatUnread godoc
// GET /api/chats/{chatId}/unread
func (h *ReadStateHandler) ChatUnread(w http.ResponseWriter, r *http.Request) {
	user, ok := requireUser(w, r)
	if !ok {
		return
	}

	chatID := r.PathValue("chatId")
	count, err := h.readStateService.UnreadCount(r.Context(), user.ID, chatID)
	if err != nil {
		pkg.Error(w, err)
		return
	}

	pkg.JSON(w, http.StatusOK, map[string]any{
		"chat_id":      chatID,
		"unread_count": count,
	})
}

// Summary godoc
// GET /api/unread
//
// Unread totals of the caller across all chats, broken down by chat type
// and ticket status.
func (h *ReadStateHandler) Summary(w http.ResponseWriter, r *http.Request) {
	user, ok := requireUser(w, r)
	if !ok {
		return
	}

	summary, err := h.readStateService.UnreadSummary(r.Context(), user.ID)
	if err != nil {
		pkg.Error(w, err)
		return
	}

	pkg.JSON(w, http.StatusOK, summary)
}
