// Package events publishes the messenger's domain events to the cabinet
// back-office, which uses them to notify users who are offline (push, email).
package events

import (
	"context"
	"time"
)

// Envelope is one outbound event. Recipients are every member the event
// concerns except its author; OfflineRecipients is the subset with no open
// socket at publish time, i.e. the users the back-office should notify.
type Envelope struct {
	Op                string    `json:"op"`
	ChatID            string    `json:"chat_id"`
	Data              any       `json:"data"`
	Recipients        []string  `json:"recipients"`
	OfflineRecipients []string  `json:"offline_recipients"`
	At                time.Time `json:"at"`
}

// Sink accepts domain events. Callers treat failures as non-fatal.
type Sink interface {
	Publish(ctx context.Context, env Envelope) error
	Close() error
}

// NopSink drops every event. Used when no brokers are configured.
type NopSink struct{}

func (NopSink) Publish(context.Context, Envelope) error { return nil }
func (NopSink) Close() error                           { return nil }
