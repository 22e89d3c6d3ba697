package notification

import (
	"context"
	"log/slog"
)

var _ Notifier = (*LogNotifier)(nil)

// LogNotifier 把事件写入日志
type LogNotifier struct {
	logger *slog.Logger
}

func NewLogNotifier(logger *slog.Logger) *LogNotifier {
	if logger == nil {
		logger = slog.Default()
	}
	return &LogNotifier{logger: logger.With("component", "notification")}
}

func (n *LogNotifier) Notify(ctx context.Context, event Event) error {
	level := slog.LevelInfo
	if event.Type == EventFeedUnavailable {
		level = slog.LevelError
	}
	args := []any{"type", event.Type, "symbol", event.Symbol}
	for k, v := range event.Data {
		args = append(args, k, v)
	}
	n.logger.Log(ctx, level, event.Message, args...)
	return nil
}
