package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/akinalp/messenger/models"
	"github.com/akinalp/messenger/pkg"
	"github.com/akinalp/messenger/services"
)

// ReactionHandler serves emoji reactions on messages.
type ReactionHandler struct {
	reactionService services.ReactionService
}

// NewReactionHandler, constructor.
func NewReactionHandler(reactionService services.ReactionService) *ReactionHandler {
	return &ReactionHandler{reactionService: reactionService}
}

// Add godoc
// POST /api/messages/{messageId}/reactions
//
// Body: { "emoji": "👍" }. The emoji travels in the body to avoid URL
// encoding trouble. Returns the message's reaction groups.
func (h *ReactionHandler) Add(w http.ResponseWriter, r *http.Request) {
	user, ok := requireUser(w, r)
	if !ok {
		return
	}
	messageID, ok := messageIDParam(w, r)
	if !ok {
		return
	}

	var req models.ReactionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		pkg.ErrorWithMessage(w, http.StatusBadRequest, "invalid request body")
		return
	}

	groups, err := h.reactionService.Add(r.Context(), user.ID, messageID, &req)
	if err != nil {
		pkg.Error(w, err)
		return
	}

	pkg.JSON(w, http.StatusOK, groups)
}

// Remove godoc
// DELETE /api/messages/{messageId}/reactions?emoji=
func (h *ReactionHandler) Remove(w http.ResponseWriter, r *http.Request) {
	user, ok := requireUser(w, r)
	if !ok {
		return
	}
	messageID, ok := messageIDParam(w, r)
	if !ok {
		return
	}

	emoji := r.URL.Query().Get("emoji")
	if emoji == "" {
		pkg.ErrorWithMessage(w, http.StatusBadRequest, "emoji query parameter is required")
		return
	}

	groups, err := h.reactionService.Remove(r.Context(), user.ID, messageID, emoji)
	if err != nil {
		pkg.Error(w, err)
		return
	}

	pkg.JSON(w, http.StatusOK, groups)
}
