package worker

import (
	"context"
	"fmt"
)

// EventKind 标记事件类型。
type EventKind string

const (
	EventInstall  EventKind = "install"
	EventActivate EventKind = "activate"
	EventFetch    EventKind = "fetch"
)

// Event 是投递给 Worker 的事件；仅 EventFetch 携带 Request。
type Event struct {
	Kind    EventKind
	Request *Request
}

// Pending 是事件处理中的异步结果，宿主必须等待其完成后才能认为事件已处理。
type Pending struct {
	done   chan struct{}
	result *Result
	err    error
}

// Done 在处理结束时关闭。
func (p *Pending) Done() <-chan struct{} {
	return p.done
}

// Wait 等待处理结束并返回处理错误；ctx 先结束时返回 ctx.Err()。
func (p *Pending) Wait(ctx context.Context) error {
	_, err := p.Result(ctx)
	return err
}

// Result 等待处理结束并返回结果。install/activate 事件的结果为 nil。
func (p *Pending) Result(ctx context.Context) (*Result, error) {
	select {
	case <-p.done:
		return p.result, p.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Dispatch 在独立 goroutine 中处理事件并立即返回 Pending。
func (w *Worker) Dispatch(ctx context.Context, ev Event) *Pending {
	p := &Pending{done: make(chan struct{})}
	go func() {
		defer close(p.done)
		switch ev.Kind {
		case EventInstall:
			p.err = w.Install(ctx)
		case EventActivate:
			p.err = w.Activate(ctx)
		case EventFetch:
			p.result, p.err = w.Fetch(ctx, ev.Request)
		default:
			p.err = fmt.Errorf("unknown event kind: %q", ev.Kind)
		}
	}()
	return p
}
