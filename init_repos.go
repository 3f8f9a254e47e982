// Package main wires the messenger together. This file builds the
// repository layer.
package main

import (
	"database/sql"

	"github.com/akinalp/messenger/pkg/crypto"
	"github.com/akinalp/messenger/repository"
)

// Repositories holds every repository instance.
type Repositories struct {
	Chat       repository.ChatRepository
	Membership repository.MembershipRepository
	Message    repository.MessageRepository
	Reaction   repository.ReactionRepository
	Ticket     repository.TicketRepository
}

// initRepositories builds the SQLite repositories. Message content goes
// through sealer on its way in and out of the database.
func initRepositories(db *sql.DB, sealer crypto.Sealer) *Repositories {
	return &Repositories{
		Chat:       repository.NewSQLiteChatRepo(db),
		Membership: repository.NewSQLiteMembershipRepo(db),
		Message:    repository.NewSQLiteMessageRepo(db, sealer),
		Reaction:   repository.NewSQLiteReactionRepo(db),
		Ticket:     repository.NewSQLiteTicketRepo(db),
	}
}
