package progress

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/JonMunkholm/bulkimport/internal/core"
)

func TestRedisPublisher_Keys(t *testing.T) {
	p := NewRedisPublisher(nil, "", 0)

	if got, want := p.Key("abc"), "bulkimport:job:abc"; got != want {
		t.Errorf("Key() = %q, want %q", got, want)
	}
	if got, want := p.Channel("abc"), "bulkimport:job:abc:progress"; got != want {
		t.Errorf("Channel() = %q, want %q", got, want)
	}
	if p.ttl != DefaultTTL {
		t.Errorf("ttl = %v, want %v", p.ttl, DefaultTTL)
	}
}

// An unreachable server surfaces as an error, which the service only logs.
func TestRedisPublisher_UnreachableServer(t *testing.T) {
	rdb := redis.NewClient(&redis.Options{
		Addr:        "127.0.0.1:1",
		DialTimeout: 50 * time.Millisecond,
		MaxRetries:  -1,
	})
	defer rdb.Close()

	p := NewRedisPublisher(rdb, "test", time.Minute)
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	if err := p.Publish(ctx, core.Progress{JobID: "abc", TotalRows: 1}); err == nil {
		t.Error("Publish() to unreachable server should fail")
	}
	if _, _, err := p.Latest(ctx, "abc"); err == nil || errors.Is(err, redis.Nil) {
		t.Errorf("Latest() error = %v, want a connection error", err)
	}
}
