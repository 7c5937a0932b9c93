package mq

import (
	"context"
	"encoding/json"
	"time"

	"github.com/pkg/errors"

	"civic-governance-backend/model"
)

// GrantMessage 角色授权消息。MessageID 与发件箱行 ID 相同，用于幂等处理
type GrantMessage struct {
	MessageID string            `json:"message_id"`
	Intent    model.GrantIntent `json:"intent"`
	Timestamp int64             `json:"timestamp"`
}

// Handler applies one consumed grant.
type Handler func(ctx context.Context, intent model.GrantIntent) error

func newGrantMessage(intent model.GrantIntent) GrantMessage {
	return GrantMessage{MessageID: intent.ID, Intent: intent, Timestamp: time.Now().Unix()}
}

func encodeGrant(msg GrantMessage) ([]byte, error) {
	body, err := json.Marshal(msg)
	return body, errors.Wrap(err, "序列化授权消息失败")
}

func decodeGrant(body []byte) (GrantMessage, error) {
	var msg GrantMessage
	if err := json.Unmarshal(body, &msg); err != nil {
		return msg, errors.Wrap(err, "解析授权消息失败")
	}
	if msg.MessageID == "" || msg.Intent.Account == "" || !msg.Intent.Role.Valid() {
		return msg, errors.Errorf("malformed grant message %q", msg.MessageID)
	}
	return msg, nil
}
