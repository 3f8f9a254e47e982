package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/akinalp/messenger/models"
)

const unreadKeyPrefix = "messenger:unread:"

type redisUnreadCache struct {
	cli *redis.Client
	ttl time.Duration
	log *zap.SugaredLogger
}

// RedisOptions configures the Redis connection.
type RedisOptions struct {
	Addr     string
	Password string
	DB       int
}

// NewRedisUnreadCache connects to Redis and verifies the connection.
// Summaries are stored as JSON under messenger:unread:<userID> with a TTL.
func NewRedisUnreadCache(ctx context.Context, opts RedisOptions, ttl time.Duration) (UnreadCache, error) {
	cli := redis.NewClient(&redis.Options{Addr: opts.Addr, Password: opts.Password, DB: opts.DB})

	pingCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	if err := cli.Ping(pingCtx).Err(); err != nil {
		cli.Close()
		return nil, fmt.Errorf("redis ping %s: %w", opts.Addr, err)
	}

	return &redisUnreadCache{cli: cli, ttl: ttl, log: zap.S().Named("cache")}, nil
}

func unreadKey(userID string) string {
	return unreadKeyPrefix + userID
}

func (c *redisUnreadCache) Get(ctx context.Context, userID string) (*models.UnreadSummary, bool) {
	raw, err := c.cli.Get(ctx, unreadKey(userID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false
	}
	if err != nil {
		c.log.Warnw("redis get failed", "user_id", userID, "error", err)
		return nil, false
	}

	var s models.UnreadSummary
	if err := json.Unmarshal(raw, &s); err != nil {
		c.log.Warnw("corrupt unread summary in redis", "user_id", userID, "error", err)
		return nil, false
	}
	return &s, true
}

func (c *redisUnreadCache) Set(ctx context.Context, userID string, summary *models.UnreadSummary) {
	raw, err := json.Marshal(summary)
	if err != nil {
		c.log.Warnw("failed to encode unread summary", "user_id", userID, "error", err)
		return
	}
	if err := c.cli.Set(ctx, unreadKey(userID), raw, c.ttl).Err(); err != nil {
		c.log.Warnw("redis set failed", "user_id", userID, "error", err)
	}
}

func (c *redisUnreadCache) Invalidate(ctx context.Context, userIDs ...string) {
	if len(userIDs) == 0 {
		return
	}
	keys := make([]string, len(userIDs))
	for i, id := range userIDs {
		keys[i] = unreadKey(id)
	}
	if err := c.cli.Del(ctx, keys...).Err(); err != nil {
		c.log.Warnw("redis del failed", "users", len(userIDs), "error", err)
	}
}

func (c *redisUnreadCache) Close() error {
	return c.cli.Close()
}
