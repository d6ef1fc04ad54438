package bridge

import (
	"slices"
	"sync"

	"github.com/samber/lo"
)

// Topic 是一类宿主通知的订阅列表，宿主只订阅自己关心的通知。
type Topic[T any] struct {
	mu   sync.RWMutex
	next int
	subs map[int]func(T)
}

// Subscribe 注册回调，返回的函数用于取消订阅，可重复调用。
func (t *Topic[T]) Subscribe(fn func(T)) (unsubscribe func()) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.subs == nil {
		t.subs = make(map[int]func(T))
	}
	id := t.next
	t.next++
	t.subs[id] = fn
	return func() {
		t.mu.Lock()
		defer t.mu.Unlock()
		delete(t.subs, id)
	}
}

// Publish 按订阅顺序调用所有回调，回调在锁外执行。
func (t *Topic[T]) Publish(v T) {
	t.mu.RLock()
	ids := lo.Keys(t.subs)
	slices.Sort(ids)
	fns := lo.Map(ids, func(id int, _ int) func(T) { return t.subs[id] })
	t.mu.RUnlock()

	for _, fn := range fns {
		fn(v)
	}
}

func (t *Topic[T]) Len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.subs)
}
