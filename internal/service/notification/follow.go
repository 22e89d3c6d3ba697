package notification

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
)

// Subscriber 消息订阅, redis.EventBus 满足
type Subscriber interface {
	Subscribe(ctx context.Context, channel string) (<-chan []byte, error)
}

// Follow 订阅 channel 并把收到的事件交给 n, 直到 ctx 结束或订阅关闭.
// 无法解析的消息跳过
func Follow(ctx context.Context, sub Subscriber, channel string, n Notifier) error {
	if channel == "" {
		channel = DefaultChannel
	}
	msgs, err := sub.Subscribe(ctx, channel)
	if err != nil {
		return fmt.Errorf("follow %s: %w", channel, err)
	}
	for payload := range msgs {
		var event Event
		if err := json.Unmarshal(payload, &event); err != nil {
			slog.Warn("skip malformed event", "channel", channel, "error", err)
			continue
		}
		if err := n.Notify(ctx, event); err != nil {
			slog.Warn("handle followed event", "type", event.Type, "error", err)
		}
	}
	return nil
}
