// Package progress mirrors job progress to Redis so processes other than the
// one running a job can read it.
package progress

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/JonMunkholm/bulkimport/internal/core"
)

// DefaultTTL is how long a snapshot outlives its last update.
const DefaultTTL = 24 * time.Hour

// NewRedisClient parses redisURL and verifies connectivity.
func NewRedisClient(ctx context.Context, redisURL string) (*redis.Client, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("redis.ParseURL: %w", err)
	}

	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("redis ping failed: %w", err)
	}
	return client, nil
}

// RedisPublisher stores the latest snapshot per job and announces it on a
// per-job channel.
type RedisPublisher struct {
	rdb    redis.Cmdable
	prefix string
	ttl    time.Duration
}

// NewRedisPublisher creates a publisher writing keys under prefix.
func NewRedisPublisher(rdb redis.Cmdable, prefix string, ttl time.Duration) *RedisPublisher {
	if prefix == "" {
		prefix = "bulkimport"
	}
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &RedisPublisher{rdb: rdb, prefix: prefix, ttl: ttl}
}

// Key is where the latest snapshot of jobID lives.
func (p *RedisPublisher) Key(jobID string) string {
	return fmt.Sprintf("%s:job:%s", p.prefix, jobID)
}

// Channel is where snapshots of jobID are published.
func (p *RedisPublisher) Channel(jobID string) string {
	return fmt.Sprintf("%s:job:%s:progress", p.prefix, jobID)
}

// Publish implements core.ProgressPublisher.
func (p *RedisPublisher) Publish(ctx context.Context, snap core.Progress) error {
	data, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("marshal progress: %w", err)
	}

	pipe := p.rdb.TxPipeline()
	pipe.Set(ctx, p.Key(snap.JobID), data, p.ttl)
	pipe.Publish(ctx, p.Channel(snap.JobID), data)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("publish progress: %w", err)
	}
	return nil
}

// Latest returns the stored snapshot of jobID, if any.
func (p *RedisPublisher) Latest(ctx context.Context, jobID string) (core.Progress, bool, error) {
	data, err := p.rdb.Get(ctx, p.Key(jobID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return core.Progress{}, false, nil
	}
	if err != nil {
		return core.Progress{}, false, fmt.Errorf("get progress: %w", err)
	}

	var snap core.Progress
	if err := json.Unmarshal(data, &snap); err != nil {
		return core.Progress{}, false, fmt.Errorf("decode progress: %w", err)
	}
	return snap, true, nil
}
