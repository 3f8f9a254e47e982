package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/akinalp/messenger/pkg"
)

// Pinger is satisfied by *sql.DB.
type Pinger interface {
	PingContext(ctx context.Context) error
}

// Presence is satisfied by *ws.Hub.
type Presence interface {
	GetOnlineUserIDs() []string
}

// HealthHandler reports liveness, database reachability and how many users
// hold a gateway connection.
type HealthHandler struct {
	db       Pinger
	presence Presence
}

// NewHealthHandler, constructor.
func NewHealthHandler(db Pinger, presence Presence) *HealthHandler {
	return &HealthHandler{db: db, presence: presence}
}

type healthResponse struct {
	Status      string `json:"status"`
	Service     string `json:"service"`
	OnlineUsers int    `json:"online_users"`
}

// Check godoc
// GET /api/health
//
// 200 when the database answers within two seconds, 503 otherwise.
func (h *HealthHandler) Check(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	if err := h.db.PingContext(ctx); err != nil {
		pkg.ErrorWithMessage(w, http.StatusServiceUnavailable, "database unavailable")
		return
	}

	pkg.JSON(w, http.StatusOK, healthResponse{
		Status:      "ok",
		Service:     "messenger",
		OnlineUsers: len(h.presence.GetOnlineUserIDs()),
	})
}
