package service

import (
	"context"
	"sync"
	"time"

	"civic-governance-backend/model"
)

// Authorizer answers role predicates against the role registry.
type Authorizer interface {
	IsAdmin(ctx context.Context, account string) (bool, error)
	IsPoliticalActor(ctx context.Context, account string) (bool, error)
	IsCitizen(ctx context.Context, account string) (bool, error)
	// PoliticalActorCredit returns the per-cycle scheduling allowance granted
	// with the role, zero when the registry recorded none.
	PoliticalActorCredit(ctx context.Context, account string) (uint64, error)
	CountCitizens(ctx context.Context) (uint64, error)
}

// Clock 时间源
type Clock interface {
	Now() time.Time
}

// SystemClock reads the wall clock.
type SystemClock struct{}

func (SystemClock) Now() time.Time { return time.Now() }

// Locker serializes every state-changing ledger operation.
type Locker interface {
	WithLock(ctx context.Context, name string, fn func() error) error
}

// LocalLocker 单进程部署使用的互斥锁
type LocalLocker struct {
	mu sync.Mutex
}

func (l *LocalLocker) WithLock(ctx context.Context, _ string, fn func() error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	return fn()
}

// EventPublisher receives committed ledger events.
type EventPublisher interface {
	Publish(event model.Event)
}

// Publishers fans an event out to every publisher.
type Publishers []EventPublisher

func (p Publishers) Publish(event model.Event) {
	for _, pub := range p {
		if pub != nil {
			pub.Publish(event)
		}
	}
}

type nopPublisher struct{}

func (nopPublisher) Publish(model.Event) {}

// KeyFilter is a probabilistic set of known voting keys. Contains may return
// false positives but never false negatives.
type KeyFilter interface {
	Add(ctx context.Context, item string) error
	Contains(ctx context.Context, item string) (bool, error)
}

// ReadCache is a read-through cache for immutable read models.
type ReadCache interface {
	GetWithCache(ctx context.Context, key string, ttl time.Duration, dest interface{}, loader func() (interface{}, error)) error
	Invalidate(ctx context.Context, keys ...string) error
}

// GrantPublisher hands a role-grant intent to the registry side.
type GrantPublisher interface {
	PublishGrant(ctx context.Context, intent model.GrantIntent) error
}

// GrantNotifier is poked after a transaction committed new grant intents.
type GrantNotifier interface {
	Notify()
}
