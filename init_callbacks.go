// Package main: websocket hub callbacks.
//
// The hub lives in the ws package and knows nothing about services. Its
// callbacks are bound here, and the hub runs each of them on its own
// goroutine.
package main

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/akinalp/messenger/models"
	"github.com/akinalp/messenger/ws"
)

const callbackTimeout = 10 * time.Second

// registerHubCallbacks binds connection and client events to services.
func registerHubCallbacks(hub *ws.Hub, svcs *Services) {
	log := zap.S().Named("ws")

	// a user coming online has received everything sent while they were away
	hub.OnUserFirstConnect(func(userID string) {
		ctx, cancel := context.WithTimeout(context.Background(), callbackTimeout)
		defer cancel()

		if err := svcs.ReadState.MarkAllDelivered(ctx, userID); err != nil {
			log.Warnw("mark all delivered failed", "user_id", userID, "error", err)
		}
	})

	hub.OnUserFullyDisconnected(func(userID string) {
		log.Debugw("user offline", "user_id", userID)
	})

	hub.OnTyping(func(userID, chatID string) {
		ctx, cancel := context.WithTimeout(context.Background(), callbackTimeout)
		defer cancel()

		if err := svcs.Chat.BroadcastTyping(ctx, userID, chatID); err != nil {
			log.Debugw("typing rejected", "user_id", userID, "chat_id", chatID, "error", err)
		}
	})

	hub.OnAckDelivered(func(userID, chatID string, messageID int64) {
		ctx, cancel := context.WithTimeout(context.Background(), callbackTimeout)
		defer cancel()

		req := &models.MarkRequest{ChatID: chatID, MessageID: messageID}
		if err := svcs.ReadState.MarkDelivered(ctx, userID, req); err != nil {
			log.Warnw("ack delivered failed", "user_id", userID, "chat_id", chatID, "message_id", messageID, "error", err)
		}
	})

	hub.OnAckRead(func(userID, chatID string, messageID int64) {
		ctx, cancel := context.WithTimeout(context.Background(), callbackTimeout)
		defer cancel()

		req := &models.MarkRequest{ChatID: chatID, MessageID: messageID}
		if err := svcs.ReadState.MarkRead(ctx, userID, req); err != nil {
			log.Warnw("ack read failed", "user_id", userID, "chat_id", chatID, "message_id", messageID, "error", err)
		}
	})
}
