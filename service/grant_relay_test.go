package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"civic-governance-backend/model"
)

type flakyGrantPublisher struct {
	mu        sync.Mutex
	failFor   map[string]bool
	published []model.GrantIntent
}

func (p *flakyGrantPublisher) PublishGrant(_ context.Context, intent model.GrantIntent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.failFor[intent.Account] {
		return errors.New("broker unavailable")
	}
	p.published = append(p.published, intent)
	return nil
}

func (p *flakyGrantPublisher) count() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.published)
}

func queueGrant(t *testing.T, env *testEnv, id, account string) {
	t.Helper()
	require.NoError(t, env.repo.CreateGrantIntent(context.Background(), &model.GrantIntent{
		ID:        id,
		Account:   account,
		Role:      model.RoleCitizen,
		Status:    model.GrantPending,
		CreatedAt: t0,
	}))
}

func TestGrantRelayRunOnce(t *testing.T) {
	env := setupTestEnv(t)
	ctx := context.Background()
	queueGrant(t, env, "g1", "alice")
	queueGrant(t, env, "g2", "bob")

	pub := &flakyGrantPublisher{failFor: map[string]bool{"bob": true}}
	relay := NewGrantRelay(env.repo, pub, zerolog.Nop(), time.Hour, 2)

	n, err := relay.RunOnce(ctx)
	assert.Error(t, err)
	assert.Equal(t, 1, n)

	pending, err := env.repo.ListGrantIntents(ctx, model.GrantPending, 10)
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, "bob", pending[0].Account)
	assert.Equal(t, 1, pending[0].RetryCount)

	// 超过重试次数后标记为失败
	_, err = relay.RunOnce(ctx)
	assert.Error(t, err)
	failed, err := env.repo.CountGrantIntents(ctx, model.GrantFailed)
	require.NoError(t, err)
	assert.Equal(t, int64(1), failed)

	n, err = relay.RunOnce(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)
	assert.Equal(t, 1, pub.count())
}

func TestGrantRelayWakesOnNotify(t *testing.T) {
	env := setupTestEnv(t)
	queueGrant(t, env, "g1", "alice")

	pub := &flakyGrantPublisher{failFor: map[string]bool{}}
	relay := NewGrantRelay(env.repo, pub, zerolog.Nop(), time.Hour, 3)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	relay.Start(ctx)
	relay.Notify()
	relay.Notify()

	assert.Eventually(t, func() bool { return pub.count() == 1 }, 2*time.Second, 10*time.Millisecond)
}
