package schedule

import "context"

type Task interface {
	Run(ctx context.Context) error
	Name() string
}

// TaskFunc 用函数实现 Task
type TaskFunc struct {
	TaskName string
	Fn       func(ctx context.Context) error
}

func (t TaskFunc) Run(ctx context.Context) error {
	return t.Fn(ctx)
}

func (t TaskFunc) Name() string {
	return t.TaskName
}
