package memory

import (
	"context"
	"errors"
	"sync"

	"molluscadb/pkg/domain"
)

// ErrStoreClosed is returned when subscribing to a closed store.
var ErrStoreClosed = errors.New("memory: store closed")

// subscription delivers collection snapshots on its own goroutine. Pending
// snapshots coalesce: a slow consumer only ever sees the latest version.
type subscription struct {
	store      *Store
	id         uint64
	collection Collection
	fn         func(domain.Snapshot)

	mu        sync.Mutex
	pending   *domain.Snapshot
	delivered bool
	last      uint64

	wake   chan struct{}
	done   chan struct{}
	exited chan struct{}
	once   sync.Once
}

// Subscribe registers fn for snapshots of collection. The current content is
// delivered first, then one snapshot per committed change. The subscription
// ends when Close is called, the store closes, or ctx is cancelled. fn must
// not call Close on its own subscription.
func (s *Store) Subscribe(ctx context.Context, collection Collection, fn func(domain.Snapshot)) (domain.Subscription, error) {
	if !collection.Valid() {
		return nil, errors.New("memory: unknown collection " + string(collection))
	}
	if fn == nil {
		return nil, errors.New("memory: nil subscriber")
	}
	if ctx == nil {
		ctx = context.Background()
	}
	sub := &subscription{
		store:      s,
		collection: collection,
		fn:         fn,
		wake:       make(chan struct{}, 1),
		done:       make(chan struct{}),
		exited:     make(chan struct{}),
	}

	s.subsMu.Lock()
	if s.closed {
		s.subsMu.Unlock()
		return nil, ErrStoreClosed
	}
	s.nextSub++
	sub.id = s.nextSub
	s.subs[sub.id] = sub
	s.subsMu.Unlock()

	s.mu.RLock()
	initial := s.snapshotLocked(collection)
	s.mu.RUnlock()
	sub.offer(initial)

	go sub.run(ctx)
	return sub, nil
}

func (s *Store) publish(snapshots []domain.Snapshot) {
	if len(snapshots) == 0 {
		return
	}
	s.subsMu.Lock()
	subs := make([]*subscription, 0, len(s.subs))
	for _, sub := range s.subs {
		subs = append(subs, sub)
	}
	s.subsMu.Unlock()
	for _, snap := range snapshots {
		for _, sub := range subs {
			if sub.collection == snap.Collection {
				sub.offer(snap)
			}
		}
	}
}

func (s *Store) unsubscribe(id uint64) {
	s.subsMu.Lock()
	delete(s.subs, id)
	s.subsMu.Unlock()
}

func (sub *subscription) offer(snap domain.Snapshot) {
	sub.mu.Lock()
	if sub.pending == nil || snap.Version >= sub.pending.Version {
		sub.pending = &snap
	}
	sub.mu.Unlock()
	select {
	case sub.wake <- struct{}{}:
	default:
	}
}

func (sub *subscription) run(ctx context.Context) {
	defer close(sub.exited)
	for {
		select {
		case <-sub.done:
			return
		case <-ctx.Done():
			sub.store.unsubscribe(sub.id)
			return
		case <-sub.wake:
		}
		sub.mu.Lock()
		next := sub.pending
		sub.pending = nil
		stale := next == nil || (sub.delivered && next.Version <= sub.last)
		if !stale {
			sub.delivered = true
			sub.last = next.Version
		}
		sub.mu.Unlock()
		if stale {
			continue
		}
		select {
		case <-sub.done:
			return
		default:
		}
		sub.fn(*next)
	}
}

// Close stops delivery and waits for an in-flight callback to return.
func (sub *subscription) Close() error {
	sub.once.Do(func() {
		sub.store.unsubscribe(sub.id)
		close(sub.done)
	})
	<-sub.exited
	return nil
}
