package core

// breaker.go wraps a ContentStore in a circuit breaker.
//
// Only ErrStoreUnavailable and deadline expiry count as failures; constraint
// violations and other row-level errors pass through untouched. Once
// the breaker trips, every call returns ErrCircuitOpen, which the job loop
// treats as an infrastructure failure and fails the job instead of burning
// through the remaining rows.

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/sony/gobreaker"
)

// ErrCircuitOpen is returned while the content store breaker is open.
var ErrCircuitOpen = errors.New("content store circuit open")

// BreakerSettings configures BreakerStore.
type BreakerSettings struct {
	MaxRequests  uint32
	Interval     time.Duration
	Timeout      time.Duration
	MinRequests  uint32
	FailureRatio float64
}

// DefaultBreakerSettings trips after 5 requests with at least 60% failures.
func DefaultBreakerSettings() BreakerSettings {
	return BreakerSettings{
		MaxRequests:  1,
		Interval:     30 * time.Second,
		Timeout:      10 * time.Second,
		MinRequests:  5,
		FailureRatio: 0.6,
	}
}

// BreakerStore is a ContentStore guarded by a circuit breaker.
type BreakerStore struct {
	next ContentStore
	cb   *gobreaker.CircuitBreaker
}

// NewBreakerStore wraps next.
func NewBreakerStore(name string, next ContentStore, s BreakerSettings) *BreakerStore {
	cb := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        name,
		MaxRequests: s.MaxRequests,
		Interval:    s.Interval,
		Timeout:     s.Timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			failureRatio := float64(counts.TotalFailures) / float64(counts.Requests)
			return counts.Requests >= s.MinRequests && failureRatio >= s.FailureRatio
		},
		IsSuccessful: func(err error) bool {
			return !isStoreOutage(err)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			slog.Warn("content store breaker state change",
				"breaker", name,
				"from", from.String(),
				"to", to.String(),
			)
		},
	})
	return &BreakerStore{next: next, cb: cb}
}

// isStoreOutage reports whether err says the store itself is unreachable.
func isStoreOutage(err error) bool {
	return errors.Is(err, ErrStoreUnavailable) || errors.Is(err, context.DeadlineExceeded)
}

// State returns the breaker state name (closed, half-open, open).
func (b *BreakerStore) State() string {
	return b.cb.State().String()
}

func (b *BreakerStore) FindBySlug(ctx context.Context, collection, slug string) (string, bool, error) {
	var found bool
	id, err := b.run(func() (string, error) {
		id, ok, err := b.next.FindBySlug(ctx, collection, slug)
		found = ok
		return id, err
	})
	return id, found, err
}

func (b *BreakerStore) InsertDraft(ctx context.Context, collection string, record ContentRecord) (string, error) {
	return b.run(func() (string, error) {
		return b.next.InsertDraft(ctx, collection, record)
	})
}

func (b *BreakerStore) LookupBySlugField(ctx context.Context, collection, field, value string) (string, bool, error) {
	var found bool
	id, err := b.run(func() (string, error) {
		id, ok, err := b.next.LookupBySlugField(ctx, collection, field, value)
		found = ok
		return id, err
	})
	return id, found, err
}

func (b *BreakerStore) run(fn func() (string, error)) (string, error) {
	out, err := b.cb.Execute(func() (interface{}, error) {
		return fn()
	})
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return "", fmt.Errorf("%w: %v", ErrCircuitOpen, err)
	}
	id, _ := out.(string)
	return id, err
}
