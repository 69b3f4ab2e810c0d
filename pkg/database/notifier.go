package database

import (
	"context"
	"sync"
)

// subscriber coalesces pending changes per key so a slow reader never
// blocks writers and never loses the newest change for a key.
type subscriber struct {
	mu      sync.Mutex
	pending map[string]Change
	order   []string
	wake    chan struct{}
	out     chan Change
}

func newSubscriber() *subscriber {
	return &subscriber{
		pending: make(map[string]Change),
		wake:    make(chan struct{}, 1),
		out:     make(chan Change),
	}
}

func (s *subscriber) offer(c Change) {
	s.mu.Lock()
	prev, ok := s.pending[c.Key]
	if !ok {
		s.order = append(s.order, c.Key)
	}
	if !ok || c.Version >= prev.Version {
		s.pending[c.Key] = c
	}
	s.mu.Unlock()

	select {
	case s.wake <- struct{}{}:
	default:
	}
}

func (s *subscriber) next() (Change, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.order) == 0 {
		return Change{}, false
	}
	key := s.order[0]
	s.order = s.order[1:]
	c := s.pending[key]
	delete(s.pending, key)
	return c, true
}

func (s *subscriber) run(ctx context.Context, done func()) {
	defer func() {
		if done != nil {
			done()
		}
		close(s.out)
	}()
	for {
		select {
		case <-ctx.Done():
			return
		case <-s.wake:
		}
		for {
			c, ok := s.next()
			if !ok {
				break
			}
			select {
			case s.out <- c:
			case <-ctx.Done():
				return
			}
		}
	}
}

// notifier fans changes out to every in-process watcher of one backend.
type notifier struct {
	mu   sync.RWMutex
	subs map[*subscriber]struct{}
}

func newNotifier() *notifier {
	return &notifier{subs: make(map[*subscriber]struct{})}
}

func (n *notifier) watch(ctx context.Context) <-chan Change {
	s := newSubscriber()
	n.mu.Lock()
	n.subs[s] = struct{}{}
	n.mu.Unlock()

	go s.run(ctx, func() {
		n.mu.Lock()
		delete(n.subs, s)
		n.mu.Unlock()
	})
	return s.out
}

func (n *notifier) publish(c Change) {
	n.mu.RLock()
	defer n.mu.RUnlock()
	for s := range n.subs {
		s.offer(c)
	}
}
