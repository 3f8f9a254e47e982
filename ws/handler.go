package ws

import (
	"net/http"
	"strings"

	"github.com/gorilla/websocket"

	"github.com/akinalp/messenger/models"
)

// TokenValidator is the part of the auth service the gateway needs. Declaring
// it here keeps ws free of a services import (services already import ws).
type TokenValidator interface {
	ValidateAccessToken(tokenString string) (*models.TokenClaims, error)
}

// Handler upgrades authenticated HTTP requests to WebSocket connections.
type Handler struct {
	hub            *Hub
	tokenValidator TokenValidator
	upgrader       websocket.Upgrader
}

// NewHandler creates the gateway handler. An empty allowedOrigins accepts
// any origin (development).
func NewHandler(hub *Hub, tokenValidator TokenValidator, allowedOrigins []string) *Handler {
	return &Handler{
		hub:            hub,
		tokenValidator: tokenValidator,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     originChecker(allowedOrigins),
		},
	}
}

func originChecker(allowed []string) func(r *http.Request) bool {
	if len(allowed) == 0 {
		return func(*http.Request) bool { return true }
	}
	set := make(map[string]bool, len(allowed))
	for _, o := range allowed {
		set[strings.TrimRight(o, "/")] = true
	}
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		return origin == "" || set[origin]
	}
}

// HandleConnection serves GET /ws?token=JWT.
//
// Browsers cannot set headers on a WebSocket handshake, so the access token
// travels in the query string instead of the Authorization header.
func (h *Handler) HandleConnection(w http.ResponseWriter, r *http.Request) {
	token := r.URL.Query().Get("token")
	if token == "" {
		http.Error(w, "missing token", http.StatusUnauthorized)
		return
	}

	claims, err := h.tokenValidator.ValidateAccessToken(token)
	if err != nil {
		http.Error(w, "invalid token", http.StatusUnauthorized)
		return
	}
	userID := claims.Subject

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.hub.log.Warnw("upgrade failed", "user_id", userID, "error", err)
		return
	}

	client := &Client{
		hub:    h.hub,
		conn:   conn,
		userID: userID,
		send:   make(chan []byte, sendBufferSize),
	}

	// ready is queued before registration so it is always the first frame.
	if data, ok := h.hub.encode(Event{Op: OpReady, Data: ReadyData{UserID: userID}}); ok {
		client.send <- data
	}
	h.hub.register <- client

	// ReadPump blocks until the connection closes, which keeps the HTTP
	// handler alive for the lifetime of the socket.
	go client.WritePump()
	client.ReadPump()
}
