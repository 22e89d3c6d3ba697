package notification

import (
	"context"
	"errors"
)

// Multi 依次通知所有 Notifier, 单个失败不影响其他
type Multi []Notifier

func (m Multi) Notify(ctx context.Context, event Event) error {
	var errs []error
	for _, n := range m {
		if err := n.Notify(ctx, event); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
