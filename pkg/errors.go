// Package pkg holds utilities shared by every layer of the messenger.
// This file defines the domain-level sentinel errors.
//
// Services return (or wrap) these values and the HTTP layer maps them to
// status codes, so comparisons go through errors.Is rather than strings:
//
//	if errors.Is(err, pkg.ErrNotFound) { ... }
package pkg

import "errors"

var (
	ErrNotFound        = errors.New("not found")
	ErrUnauthorized    = errors.New("unauthorized")
	ErrForbidden       = errors.New("forbidden")
	ErrAlreadyExists   = errors.New("already exists")
	ErrBadRequest      = errors.New("bad request")
	ErrTooManyRequests = errors.New("too many requests")
	ErrInternal        = errors.New("internal error")
)
