package worker

import (
	"context"
	"sync"
)

// Scheduler 执行不阻塞响应的后台任务，例如 navigation 成功后的 fallback 写入。
// 测试可注入自定义实现以确定性地等待任务完成。
type Scheduler interface {
	Go(task func(context.Context))
}

// SchedulerFunc 将函数适配为 Scheduler。
type SchedulerFunc func(task func(context.Context))

// Go 实现 Scheduler。
func (f SchedulerFunc) Go(task func(context.Context)) {
	f(task)
}

// TrackedScheduler 在独立 goroutine 中运行任务并记录数量，Wait 可等待全部结束。
// 任务使用与请求无关的 context，客户端断开不会取消写入；进程退出时未完成的任务被放弃。
type TrackedScheduler struct {
	wg sync.WaitGroup
}

// Go 实现 Scheduler。
func (s *TrackedScheduler) Go(task func(context.Context)) {
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		task(context.Background())
	}()
}

// Wait 等待所有已调度任务结束，ctx 结束时提前返回 ctx.Err()。
func (s *TrackedScheduler) Wait(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// InlineScheduler 同步执行任务，适合测试。
var InlineScheduler Scheduler = SchedulerFunc(func(task func(context.Context)) {
	task(context.Background())
})
