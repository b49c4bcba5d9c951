package domain

import "context"

// Transaction exposes the write operations a persistence implementation must
// support within an atomic scope.
type Transaction interface {
	Snapshot() TransactionView
	Get(collection Collection, key string) (Record, bool)
	List(collection Collection) []Record
	Create(collection Collection, doc Document) (Record, error)
	Update(collection Collection, key string, fields Document) (Record, error)
	Replace(collection Collection, key string, doc Document) (Record, error)
	Delete(collection Collection, key string) error
}

// TransactionView provides read-only access to snapshot data.
type TransactionView interface {
	RuleView
}

// Snapshot is the full content of one collection at a point in time. Entries
// are in store iteration order (ascending key, which is creation order).
type Snapshot struct {
	Collection Collection
	Version    uint64
	Entries    []Record
}

// Subscription is a live collection subscription. Close releases it; no
// snapshot is delivered after Close returns.
type Subscription interface {
	Close() error
}

// PersistentStore is the collection store boundary consumed by higher layers.
type PersistentStore interface {
	RunInTransaction(ctx context.Context, fn func(Transaction) error) (Result, error)
	View(ctx context.Context, fn func(TransactionView) error) error
	Subscribe(ctx context.Context, collection Collection, fn func(Snapshot)) (Subscription, error)
	Get(collection Collection, key string) (Record, bool)
	List(collection Collection) []Record
	Close() error
}
