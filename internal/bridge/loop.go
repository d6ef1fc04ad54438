package bridge

import (
	"context"
	"sync"

	"go.uber.org/zap"

	"github.com/lk2023060901/capture-bridge-go/pkg/log"
	"github.com/lk2023060901/capture-bridge-go/pkg/util/merr"
)

// eventLoop 是桥接核心唯一的执行上下文。
//
// 页面消息、设备层事件以及设备层回调的后续处理都投递到这里，按投递顺序逐个执行，
// 因此注册表与会话状态只有一个写者。队列不设上限，执行中的任务可以继续投递而不会阻塞自身。
type eventLoop struct {
	mu      sync.Mutex
	queue   []func()
	stopped bool
	wake    chan struct{}
	done    chan struct{}
}

func newEventLoop() *eventLoop {
	return &eventLoop{
		wake: make(chan struct{}, 1),
		done: make(chan struct{}),
	}
}

// Post 投递一个任务，循环已停止时返回 false。
func (l *eventLoop) Post(fn func()) bool {
	l.mu.Lock()
	if l.stopped {
		l.mu.Unlock()
		return false
	}
	l.queue = append(l.queue, fn)
	l.mu.Unlock()

	select {
	case l.wake <- struct{}{}:
	default:
	}
	return true
}

// Do 投递任务并等待其执行完毕。不能在循环自身的任务中调用。
func (l *eventLoop) Do(ctx context.Context, fn func()) error {
	finished := make(chan struct{})
	if !l.Post(func() {
		defer close(finished)
		fn()
	}) {
		return merr.WrapErrServiceStopped("event loop")
	}
	select {
	case <-finished:
		return nil
	case <-l.done:
		return merr.WrapErrServiceStopped("event loop")
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Flush 等待队列清空，包括执行过程中新投递的任务。
func (l *eventLoop) Flush(ctx context.Context) error {
	for {
		idle := false
		if err := l.Do(ctx, func() { idle = l.pending() == 0 }); err != nil {
			return err
		}
		if idle {
			return nil
		}
	}
}

func (l *eventLoop) pending() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.queue)
}

// Run 执行任务直到 ctx 结束或 Stop 被调用，退出前丢弃剩余任务。
func (l *eventLoop) Run(ctx context.Context) {
	defer close(l.done)
	for {
		select {
		case <-ctx.Done():
			l.Stop()
			return
		case <-l.wake:
		}

		for {
			l.mu.Lock()
			if l.stopped {
				l.mu.Unlock()
				return
			}
			if len(l.queue) == 0 {
				l.mu.Unlock()
				break
			}
			fn := l.queue[0]
			l.queue[0] = nil
			l.queue = l.queue[1:]
			l.mu.Unlock()

			fn()
		}
	}
}

// Stop 停止接收新任务并唤醒 Run 退出。
func (l *eventLoop) Stop() {
	l.mu.Lock()
	l.stopped = true
	dropped := len(l.queue)
	l.queue = nil
	l.mu.Unlock()

	if dropped > 0 {
		log.Warn("event loop stopped with pending tasks", zap.Int("dropped", dropped))
	}
	select {
	case l.wake <- struct{}{}:
	default:
	}
}

// Done 在 Run 返回后关闭。
func (l *eventLoop) Done() <-chan struct{} {
	return l.done
}
