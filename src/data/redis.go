package data

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// MustRedis connects to Redis from a URL, fatally on bad config.
func MustRedis(url string) *redis.Client {
	opt, err := redis.ParseURL(url)
	if err != nil {
		log.Fatalf("redis: %v", err)
	}
	return redis.NewClient(opt)
}

const tradeCountPrefix = "agentfleet:trades:"

// RedisTradeCounter keeps the executed-trade count per agent per UTC day.
// Keys expire shortly after midnight so the cap resets without a sweeper.
type RedisTradeCounter struct {
	rdb *redis.Client
	now func() time.Time
}

// NewRedisTradeCounter wraps a connected client.
func NewRedisTradeCounter(rdb *redis.Client) *RedisTradeCounter {
	return &RedisTradeCounter{rdb: rdb, now: time.Now}
}

func (c *RedisTradeCounter) key(agentID string) string {
	return tradeCountPrefix + agentID + ":" + c.now().UTC().Format("2006-01-02")
}

func (c *RedisTradeCounter) ExecutedToday(ctx context.Context, agentID string) (int, error) {
	n, err := c.rdb.Get(ctx, c.key(agentID)).Int()
	if err == redis.Nil {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("data: trade counter read: %w", err)
	}
	return n, nil
}

func (c *RedisTradeCounter) RecordExecuted(ctx context.Context, agentID string) error {
	key := c.key(agentID)
	pipe := c.rdb.TxPipeline()
	pipe.Incr(ctx, key)
	// 26h TTL covers the rest of the UTC day plus slack; the date in the key
	// does the actual reset.
	pipe.Expire(ctx, key, 26*time.Hour)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("data: trade counter incr: %w", err)
	}
	return nil
}

// MemoryTradeCounter is the fallback when Redis is not configured. Counts
// reset when the UTC date changes.
type MemoryTradeCounter struct {
	mu     sync.Mutex
	day    string
	counts map[string]int
	now    func() time.Time
}

func NewMemoryTradeCounter() *MemoryTradeCounter {
	return &MemoryTradeCounter{counts: make(map[string]int), now: time.Now}
}

func (c *MemoryTradeCounter) roll() {
	day := c.now().UTC().Format("2006-01-02")
	if day != c.day {
		c.day = day
		c.counts = make(map[string]int)
	}
}

func (c *MemoryTradeCounter) ExecutedToday(_ context.Context, agentID string) (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.roll()
	return c.counts[agentID], nil
}

func (c *MemoryTradeCounter) RecordExecuted(_ context.Context, agentID string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.roll()
	c.counts[agentID]++
	return nil
}
