package schedule

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"
)

// Runner 按固定间隔执行 Task. 上一次执行未结束时本次跳过, 不排队.
type Runner struct {
	task     Task
	interval time.Duration
	logger   *slog.Logger

	running atomic.Bool
	runs    atomic.Uint64
	skipped atomic.Uint64

	stopOnce sync.Once
	stop     chan struct{}
}

func NewRunner(task Task, interval time.Duration) *Runner {
	return &Runner{
		task:     task,
		interval: interval,
		logger:   slog.With("component", "schedule", "task", task.Name()),
		stop:     make(chan struct{}),
	}
}

// Run 阻塞直到 ctx 结束或 Stop, 返回前等待进行中的执行结束
func (r *Runner) Run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	var wg sync.WaitGroup
	defer wg.Wait()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-r.stop:
			return nil
		case <-ticker.C:
		}
		if !r.running.CompareAndSwap(false, true) {
			r.skipped.Add(1)
			r.logger.Warn("previous run still in progress, skip tick")
			continue
		}
		wg.Add(1)
		go func() {
			defer wg.Done()
			defer r.running.Store(false)
			r.fire(ctx)
		}()
	}
}

func (r *Runner) fire(ctx context.Context) {
	r.runs.Add(1)
	start := time.Now()
	if err := r.task.Run(ctx); err != nil {
		r.logger.Error("task run failed", "error", err, "elapsed", time.Since(start))
		return
	}
	r.logger.Debug("task run finished", "elapsed", time.Since(start))
}

// Stop 幂等
func (r *Runner) Stop() {
	r.stopOnce.Do(func() {
		close(r.stop)
	})
}

// Runs 已开始的执行次数
func (r *Runner) Runs() uint64 {
	return r.runs.Load()
}

// Skipped 因重叠被跳过的次数
func (r *Runner) Skipped() uint64 {
	return r.skipped.Load()
}
