package mq

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"civic-governance-backend/model"
)

func TestParseMode(t *testing.T) {
	m, err := ParseMode(" Redis ")
	require.NoError(t, err)
	assert.Equal(t, ModeRedis, m)

	m, err = ParseMode("")
	require.NoError(t, err)
	assert.Equal(t, ModeDirect, m)

	_, err = ParseMode("kafka")
	assert.Error(t, err)
}

func TestGrantMessageDecodeRejectsMalformed(t *testing.T) {
	intent := model.GrantIntent{ID: "id-1", Account: "alice", Role: model.RoleCitizen}
	body, err := encodeGrant(newGrantMessage(intent))
	require.NoError(t, err)

	msg, err := decodeGrant(body)
	require.NoError(t, err)
	assert.Equal(t, "id-1", msg.MessageID)
	assert.Equal(t, intent.Account, msg.Intent.Account)

	_, err = decodeGrant([]byte(`{"message_id":"x","intent":{"account":"a","role":"KING"}}`))
	assert.Error(t, err)
	_, err = decodeGrant([]byte(`not json`))
	assert.Error(t, err)
}

func TestDirectAdapterRetriesApply(t *testing.T) {
	var calls int32
	apply := func(ctx context.Context, intent model.GrantIntent) error {
		if atomic.AddInt32(&calls, 1) < 3 {
			return errors.New("registry busy")
		}
		return nil
	}

	adapter, err := NewMQAdapter(Config{Mode: ModeDirect, RetryAttempts: 3}, nil, apply, zerolog.Nop())
	require.NoError(t, err)
	require.NoError(t, adapter.StartConsumer())

	err = adapter.PublishGrant(context.Background(), model.GrantIntent{ID: "g", Account: "a", Role: model.RoleCitizen})
	require.NoError(t, err)
	assert.Equal(t, int32(3), atomic.LoadInt32(&calls))

	_, err = adapter.RetryDeadLetters(context.Background())
	assert.Error(t, err)
	assert.Equal(t, "direct", adapter.QueueStats(context.Background())["type"])
	assert.NoError(t, adapter.Close())
}

func TestDirectAdapterGivesUp(t *testing.T) {
	apply := func(ctx context.Context, intent model.GrantIntent) error {
		return errors.New("registry down")
	}
	adapter, err := NewMQAdapter(Config{Mode: ModeDirect, RetryAttempts: 1}, nil, apply, zerolog.Nop())
	require.NoError(t, err)

	err = adapter.PublishGrant(context.Background(), model.GrantIntent{ID: "g", Account: "a", Role: model.RoleCitizen})
	assert.EqualError(t, err, "registry down")
}

func TestRedisModeNeedsClient(t *testing.T) {
	_, err := NewMQAdapter(Config{Mode: ModeRedis}, nil, func(context.Context, model.GrantIntent) error { return nil }, zerolog.Nop())
	assert.Error(t, err)
}
