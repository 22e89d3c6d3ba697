package notification

import (
	"context"
	"encoding/json"
	"fmt"
)

// DefaultChannel 事件发布的 redis 频道
const DefaultChannel = "paper:events"

var _ Notifier = (*RedisNotifier)(nil)

// RedisNotifier 以 JSON 发布事件
type RedisNotifier struct {
	pub     Publisher
	channel string
}

func NewRedisNotifier(pub Publisher, channel string) *RedisNotifier {
	if channel == "" {
		channel = DefaultChannel
	}
	return &RedisNotifier{pub: pub, channel: channel}
}

func (n *RedisNotifier) Notify(ctx context.Context, event Event) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal event %s: %w", event.Type, err)
	}
	return n.pub.Publish(ctx, n.channel, payload)
}
