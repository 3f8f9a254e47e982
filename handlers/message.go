package handlers

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"

	"github.com/akinalp/messenger/models"
	"github.com/akinalp/messenger/pkg"
	"github.com/akinalp/messenger/pkg/metrics"
	"github.com/akinalp/messenger/pkg/ratelimit"
	"github.com/akinalp/messenger/services"
)

// MessageHandler serves message history and the send/edit/delete endpoints.
type MessageHandler struct {
	messageService services.MessageService
	limiter        *ratelimit.MessageRateLimiter
}

// NewMessageHandler, constructor. limiter throttles Send per user.
func NewMessageHandler(messageService services.MessageService, limiter *ratelimit.MessageRateLimiter) *MessageHandler {
	return &MessageHandler{
		messageService: messageService,
		limiter:        limiter,
	}
}

// List godoc
// GET /api/chats/{chatId}/messages?before=&after=&limit=
//
// Without a cursor the newest page is returned. before pages backwards,
// after pages forwards. Messages always come oldest first.
func (h *MessageHandler) List(w http.ResponseWriter, r *http.Request) {
	user, ok := requireUser(w, r)
	if !ok {
		return
	}

	cursor, err := parseCursor(r)
	if err != nil {
		pkg.ErrorWithMessage(w, http.StatusBadRequest, err.Error())
		return
	}

	page, err := h.messageService.List(r.Context(), user, r.PathValue("chatId"), cursor)
	if err != nil {
		pkg.Error(w, err)
		return
	}

	pkg.JSON(w, http.StatusOK, page)
}

// Send godoc
// POST /api/chats/{chatId}/messages
//
// Body: { "text": "...", "attachments": [...], "reply_to_id": 42 }
//
// Answers 429 with Retry-After when the caller sends too fast.
func (h *MessageHandler) Send(w http.ResponseWriter, r *http.Request) {
	user, ok := requireUser(w, r)
	if !ok {
		return
	}

	if allowed, retryAfter := h.limiter.Allow(user.ID); !allowed {
		metrics.RateLimited.Inc()
		w.Header().Set("Retry-After", strconv.Itoa(retryAfter))
		pkg.ErrorWithMessage(w, http.StatusTooManyRequests, "you are sending messages too fast")
		return
	}

	var req models.SendMessageRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		pkg.ErrorWithMessage(w, http.StatusBadRequest, "invalid request body")
		return
	}

	message, err := h.messageService.Send(r.Context(), user, r.PathValue("chatId"), &req)
	if err != nil {
		pkg.Error(w, err)
		return
	}

	pkg.JSON(w, http.StatusCreated, message)
}

// Edit godoc
// PATCH /api/messages/{messageId}
//
// Body: { "text": "...", "attachments": [...] }. Omitting attachments keeps them.
func (h *MessageHandler) Edit(w http.ResponseWriter, r *http.Request) {
	user, ok := requireUser(w, r)
	if !ok {
		return
	}
	messageID, ok := messageIDParam(w, r)
	if !ok {
		return
	}

	var req models.EditMessageRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		pkg.ErrorWithMessage(w, http.StatusBadRequest, "invalid request body")
		return
	}

	message, err := h.messageService.Edit(r.Context(), user, messageID, &req)
	if err != nil {
		pkg.Error(w, err)
		return
	}

	pkg.JSON(w, http.StatusOK, message)
}

// Delete godoc
// DELETE /api/messages/{messageId}
func (h *MessageHandler) Delete(w http.ResponseWriter, r *http.Request) {
	user, ok := requireUser(w, r)
	if !ok {
		return
	}
	messageID, ok := messageIDParam(w, r)
	if !ok {
		return
	}

	if err := h.messageService.Delete(r.Context(), user, messageID); err != nil {
		pkg.Error(w, err)
		return
	}

	pkg.JSON(w, http.StatusOK, map[string]string{"message": "message deleted"})
}

func parseCursor(r *http.Request) (models.MessageCursor, error) {
	var cursor models.MessageCursor
	q := r.URL.Query()

	if raw := q.Get("before"); raw != "" {
		v, err := strconv.ParseInt(raw, 10, 64)
		if err != nil || v <= 0 {
			return cursor, fmt.Errorf("invalid before parameter")
		}
		cursor.BeforeID = v
	}
	if raw := q.Get("after"); raw != "" {
		v, err := strconv.ParseInt(raw, 10, 64)
		if err != nil || v <= 0 {
			return cursor, fmt.Errorf("invalid after parameter")
		}
		cursor.AfterID = v
	}
	if raw := q.Get("limit"); raw != "" {
		v, err := strconv.Atoi(raw)
		if err != nil || v <= 0 {
			return cursor, fmt.Errorf("invalid limit parameter")
		}
		cursor.Limit = v
	}
	return cursor, nil
}
