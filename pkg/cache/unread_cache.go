package cache

import (
	"context"
	"time"

	"github.com/akinalp/messenger/models"
)

// UnreadCache stores each user's unread summary between changes. A miss is
// never an error: callers recompute from the database.
type UnreadCache interface {
	Get(ctx context.Context, userID string) (*models.UnreadSummary, bool)
	Set(ctx context.Context, userID string, summary *models.UnreadSummary)
	Invalidate(ctx context.Context, userIDs ...string)
	Close() error
}

type memoryUnreadCache struct {
	ttl *TTLCache[string, models.UnreadSummary]
}

// NewMemoryUnreadCache keeps summaries in process memory. Suitable for a
// single instance; use the Redis cache when several instances share the database.
func NewMemoryUnreadCache(ttl time.Duration) UnreadCache {
	return &memoryUnreadCache{ttl: New[string, models.UnreadSummary](ttl, 5*time.Minute)}
}

func (c *memoryUnreadCache) Get(_ context.Context, userID string) (*models.UnreadSummary, bool) {
	s, ok := c.ttl.Get(userID)
	if !ok {
		return nil, false
	}
	return &s, true
}

func (c *memoryUnreadCache) Set(_ context.Context, userID string, summary *models.UnreadSummary) {
	c.ttl.Set(userID, *summary)
}

func (c *memoryUnreadCache) Invalidate(_ context.Context, userIDs ...string) {
	for _, id := range userIDs {
		c.ttl.Delete(id)
	}
}

func (c *memoryUnreadCache) Close() error {
	c.ttl.Close()
	return nil
}
