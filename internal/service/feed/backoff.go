package feed

import (
	"context"
	"math"
	"time"

	"github.com/jpillora/backoff"
)

// Backoff 重连退避: base × 2^attempt, 超过 MaxAttempts 后不再重连
type Backoff struct {
	Base        time.Duration
	MaxAttempts int
}

func (b Backoff) delays() *backoff.Backoff {
	return &backoff.Backoff{
		Min:    b.Base,
		Max:    b.Base * time.Duration(math.Pow(2, float64(max(b.MaxAttempts, 1)))),
		Factor: 2,
	}
}

// Delay 第 attempt 次重连前的等待时长, attempt 从 0 开始
func (b Backoff) Delay(attempt int) time.Duration {
	return b.delays().ForAttempt(float64(attempt))
}

// Exhausted 是否已用完重连次数
func (b Backoff) Exhausted(attempt int) bool {
	return attempt >= b.MaxAttempts
}

// WaitFunc 等待 d 或 ctx 结束
type WaitFunc func(ctx context.Context, d time.Duration) error

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
