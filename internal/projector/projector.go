// Package projector turns collection snapshots into ordered record lists and
// keeps a consumer's list replaced on every push.
package projector

import (
	"context"
	"errors"
	"sync"

	"molluscadb/pkg/domain"
)

// Order selects the list order produced from a snapshot.
type Order int

const (
	// StoreOrder keeps store iteration order (creation order).
	StoreOrder Order = iota
	// NewestFirst reverses store order.
	NewestFirst
)

// ParseOrder maps "newest" to NewestFirst; anything else is StoreOrder.
func ParseOrder(s string) Order {
	if s == "newest" {
		return NewestFirst
	}
	return StoreOrder
}

// Project flattens a snapshot into records carrying their keys. Entries are
// neither deduplicated nor sorted beyond the requested order, and the
// snapshot itself is left untouched.
func Project(snapshot domain.Snapshot, order Order) []domain.Record {
	out := make([]domain.Record, len(snapshot.Entries))
	for i, entry := range snapshot.Entries {
		idx := i
		if order == NewestFirst {
			idx = len(snapshot.Entries) - 1 - i
		}
		out[idx] = entry.Clone()
	}
	return out
}

// Source is the subscribe half of the collection store.
type Source interface {
	Subscribe(ctx context.Context, collection domain.Collection, fn func(domain.Snapshot)) (domain.Subscription, error)
}

// Applied is invoked with the complete replacement list after each snapshot.
type Applied func(collection domain.Collection, version uint64, records []domain.Record)

// Follower holds the latest projected list of one collection.
type Follower struct {
	collection domain.Collection
	order      Order

	mu      sync.RWMutex
	records []domain.Record
	version uint64
	ready   bool

	sub domain.Subscription
}

// Follow subscribes to collection and replaces the follower's list on every
// push, then calls onApplied (which may be nil). Close releases the
// subscription.
func Follow(ctx context.Context, src Source, collection domain.Collection, order Order, onApplied Applied) (*Follower, error) {
	if src == nil {
		return nil, errors.New("projector: nil source")
	}
	f := &Follower{collection: collection, order: order}
	sub, err := src.Subscribe(ctx, collection, func(snap domain.Snapshot) {
		records := Project(snap, order)
		f.mu.Lock()
		f.records = records
		f.version = snap.Version
		f.ready = true
		f.mu.Unlock()
		if onApplied != nil {
			onApplied(collection, snap.Version, Project(snap, order))
		}
	})
	if err != nil {
		return nil, err
	}
	f.sub = sub
	return f, nil
}

// Collection returns the followed collection.
func (f *Follower) Collection() domain.Collection { return f.collection }

// Records returns a copy of the latest list.
func (f *Follower) Records() []domain.Record {
	f.mu.RLock()
	defer f.mu.RUnlock()
	out := make([]domain.Record, len(f.records))
	for i, r := range f.records {
		out[i] = r.Clone()
	}
	return out
}

// Version returns the version of the latest applied snapshot and whether any
// snapshot has been applied yet.
func (f *Follower) Version() (uint64, bool) {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.version, f.ready
}

// Close releases the subscription.
func (f *Follower) Close() error {
	if f.sub == nil {
		return nil
	}
	return f.sub.Close()
}
