package worker

import (
	"context"
	"errors"
	"sync/atomic"
)

// Clients 由持有客户端的一方实现，Activate 结束前调用 Claim 立即接管范围内的全部页面。
type Clients interface {
	Claim(w *Worker)
}

// Registration 代表一个拦截范围，同一时刻只有一个激活的 Worker 处理该范围内的请求。
type Registration struct {
	scope  string
	active atomic.Pointer[Worker]
}

// NewRegistration 创建空的注册项。
func NewRegistration(scope string) *Registration {
	return &Registration{scope: scope}
}

// Scope 返回拦截范围。
func (r *Registration) Scope() string {
	return r.scope
}

// Active 返回当前控制范围内客户端的 Worker，尚未激活时为 nil。
func (r *Registration) Active() *Worker {
	return r.active.Load()
}

// Claim 实现 Clients：原子替换激活的 Worker，旧实例转为 redundant。
// 已在旧实例上进行中的请求继续由旧实例完成。
func (r *Registration) Claim(w *Worker) {
	prev := r.active.Swap(w)
	if prev != nil && prev != w {
		prev.setState(StateRedundant)
	}
}

// Update 安装新 Worker，并跳过等待立即激活。install 失败时保留旧 Worker。
// activate 的清理错误会返回，但新 Worker 仍然完成接管。
func (r *Registration) Update(ctx context.Context, next *Worker) error {
	if next == nil {
		return errors.New("worker is required")
	}
	if next.cfg.Scope != r.scope {
		return errors.New("worker scope does not match registration")
	}
	next.mu.Lock()
	next.clients = r
	next.mu.Unlock()

	if err := next.Dispatch(ctx, Event{Kind: EventInstall}).Wait(ctx); err != nil {
		return err
	}
	_, err := next.Dispatch(ctx, Event{Kind: EventActivate}).Result(ctx)
	return err
}
