package device

import (
	"sync"
	"sync/atomic"

	"github.com/cornelk/hashmap"
)

// ----------------------------
// Subscription
// ----------------------------

// Subscription is a scoped listener registration. Release removes the listener;
// it is safe to call more than once and on a nil Subscription.
type Subscription struct {
	once    sync.Once
	release func()
}

// Release removes the listener. Only the first call has an effect.
func (s *Subscription) Release() {
	if s == nil {
		return
	}
	s.once.Do(func() {
		if s.release != nil {
			s.release()
		}
	})
}

// ----------------------------
// Listeners
// ----------------------------

// Listeners is a registry of callbacks for one event kind. Add and Emit may be called
// from any goroutine; a listener released during Emit is not called afterwards.
type Listeners[T any] struct {
	seq atomic.Uint64
	fns *hashmap.Map[uint64, *listener[T]]
	mu  sync.Mutex
}

type listener[T any] struct {
	fn     func(T)
	active atomic.Bool
}

func (l *Listeners[T]) lazyInit() *hashmap.Map[uint64, *listener[T]] {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.fns == nil {
		l.fns = hashmap.New[uint64, *listener[T]]()
	}
	return l.fns
}

// Add registers fn and returns the Subscription that removes it.
func (l *Listeners[T]) Add(fn func(T)) *Subscription {
	fns := l.lazyInit()
	id := l.seq.Add(1)
	entry := &listener[T]{fn: fn}
	entry.active.Store(true)
	fns.Set(id, entry)

	return &Subscription{release: func() {
		entry.active.Store(false)
		fns.Del(id)
	}}
}

// Emit calls every registered listener with v.
func (l *Listeners[T]) Emit(v T) {
	fns := l.lazyInit()
	fns.Range(func(_ uint64, entry *listener[T]) bool {
		if entry.active.Load() {
			entry.fn(v)
		}
		return true
	})
}

// Len returns the number of registered listeners.
func (l *Listeners[T]) Len() int {
	return l.lazyInit().Len()
}
