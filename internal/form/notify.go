package form

import (
	"sync"
	"time"

	"molluscadb/pkg/domain"

	"github.com/google/uuid"
)

// Level grades a notification.
type Level string

const (
	LevelSuccess Level = "success"
	LevelError   Level = "error"
)

// Notification is a transient user-visible message.
type Notification struct {
	ID         string            `json:"id"`
	Level      Level             `json:"level"`
	Message    string            `json:"message"`
	Collection domain.Collection `json:"collection,omitempty"`
	Key        string            `json:"key,omitempty"`
	At         time.Time         `json:"at"`
}

// Notifier receives notifications.
type Notifier interface {
	Notify(Notification)
}

// Inbox keeps the most recent notifications until they are drained.
type Inbox struct {
	mu    sync.Mutex
	items []Notification
	limit int
	now   func() time.Time
}

// NewInbox returns an inbox holding at most limit notifications.
func NewInbox(limit int) *Inbox {
	if limit <= 0 {
		limit = 50
	}
	return &Inbox{limit: limit, now: func() time.Time { return time.Now().UTC() }}
}

// Notify queues n, dropping the oldest entry when full.
func (b *Inbox) Notify(n Notification) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if n.ID == "" {
		n.ID = uuid.NewString()
	}
	if n.At.IsZero() {
		n.At = b.now()
	}
	b.items = append(b.items, n)
	if len(b.items) > b.limit {
		b.items = b.items[len(b.items)-b.limit:]
	}
}

// Drain returns and clears the queued notifications.
func (b *Inbox) Drain() []Notification {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := b.items
	b.items = nil
	return out
}
