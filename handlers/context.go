// Package handlers is the HTTP layer. Handlers are thin: they parse the
// request, call a service and write the response. Business rules live in
// the services package.
package handlers

import (
	"net/http"
	"strconv"

	"github.com/akinalp/messenger/models"
	"github.com/akinalp/messenger/pkg"
)

// contextKey is a private type so context values set here cannot collide
// with keys from other packages.
type contextKey string

// UserContextKey holds the authenticated *models.User. AuthMiddleware sets it.
const UserContextKey contextKey = "user"

// requireUser returns the caller or writes 401.
func requireUser(w http.ResponseWriter, r *http.Request) (*models.User, bool) {
	user, ok := r.Context().Value(UserContextKey).(*models.User)
	if !ok {
		pkg.ErrorWithMessage(w, http.StatusUnauthorized, "user not found in context")
		return nil, false
	}
	return user, true
}

// messageIDParam parses the {messageId} path segment or writes 400.
func messageIDParam(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(r.PathValue("messageId"), 10, 64)
	if err != nil || id <= 0 {
		pkg.ErrorWithMessage(w, http.StatusBadRequest, "invalid message id")
		return 0, false
	}
	return id, true
}
