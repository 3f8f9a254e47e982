package handlers

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/akinalp/messenger/models"
	"github.com/akinalp/messenger/pkg"
	"github.com/akinalp/messenger/pkg/metrics"
	"github.com/akinalp/messenger/pkg/ratelimit"
	"github.com/akinalp/messenger/services"
)

// TicketHandler serves support tickets.
type TicketHandler struct {
	ticketService services.TicketService
	limiter       *ratelimit.MessageRateLimiter
}

// NewTicketHandler, constructor. Opening a ticket posts a message, so it
// draws from the same per-user limiter as MessageHandler.Send.
func NewTicketHandler(ticketService services.TicketService, limiter *ratelimit.MessageRateLimiter) *TicketHandler {
	return &TicketHandler{
		ticketService: ticketService,
		limiter:       limiter,
	}
}

// Open godoc
// POST /api/tickets
//
// Body: { "subject": "...", "text": "..." }. Opens the ticket together
// with its support chat and posts text as the first message.
//
// Answers 429 with Retry-After when the caller sends too fast.
func (h *TicketHandler) Open(w http.ResponseWriter, r *http.Request) {
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

	var req models.OpenTicketRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		pkg.ErrorWithMessage(w, http.StatusBadRequest, "invalid request body")
		return
	}

	ticket, err := h.ticketService.Open(r.Context(), user, &req)
	if err != nil {
		pkg.Error(w, err)
		return
	}

	pkg.JSON(w, http.StatusCreated, ticket)
}

// List godoc
// GET /api/tickets?status=
//
// Staff see every ticket, everyone else only their own.
func (h *TicketHandler) List(w http.ResponseWriter, r *http.Request) {
	user, ok := requireUser(w, r)
	if !ok {
		return
	}

	status := models.TicketStatus(r.URL.Query().Get("status"))
	tickets, err := h.ticketService.List(r.Context(), user, status)
	if err != nil {
		pkg.Error(w, err)
		return
	}

	pkg.JSON(w, http.StatusOK, tickets)
}

// Get godoc
// GET /api/tickets/{ticketId}
func (h *TicketHandler) Get(w http.ResponseWriter, r *http.Request) {
	user, ok := requireUser(w, r)
	if !ok {
		return
	}

	ticket, err := h.ticketService.Get(r.Context(), user, r.PathValue("ticketId"))
	if err != nil {
		pkg.Error(w, err)
		return
	}

	pkg.JSON(w, http.StatusOK, ticket)
}

// UpdateStatus godoc
// PATCH /api/tickets/{ticketId}
//
// Body: { "status": "in_progress" }. Staff only.
func (h *TicketHandler) UpdateStatus(w http.ResponseWriter, r *http.Request) {
	user, ok := requireUser(w, r)
	if !ok {
		return
	}

	var req models.UpdateTicketRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		pkg.ErrorWithMessage(w, http.StatusBadRequest, "invalid request body")
		return
	}

	ticket, err := h.ticketService.UpdateStatus(r.Context(), user, r.PathValue("ticketId"), &req)
	if err != nil {
		pkg.Error(w, err)
		return
	}

	pkg.JSON(w, http.StatusOK, ticket)
}
