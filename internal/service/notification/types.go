package notification

import (
	"context"
	"time"
)

type EventType string

const (
	EventTradeExecuted   EventType = "trade_executed"
	EventOrderExecuted   EventType = "order_executed"
	EventOrderCancelled  EventType = "order_cancelled"
	EventFeedUnavailable EventType = "feed_unavailable"
	EventTradingToggled  EventType = "trading_toggled"
)

// Event 引擎对外发出的事件
type Event struct {
	Type      EventType      `json:"type"`
	Symbol    string         `json:"symbol,omitempty"`
	Message   string         `json:"message"`
	Data      map[string]any `json:"data,omitempty"`
	Timestamp time.Time      `json:"timestamp"`
}

type Notifier interface {
	Notify(ctx context.Context, event Event) error
}

// Publisher 消息发布, redis.EventBus 满足
type Publisher interface {
	Publish(ctx context.Context, channel string, payload []byte) error
}
