// Package changefeed announces collection changes on an MQTT broker so that
// other lab tools can refresh without polling.
package changefeed

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	"molluscadb/internal/core"
	"molluscadb/pkg/domain"
)

// Publisher delivers a payload to a topic.
type Publisher interface {
	Publish(topic string, payload []byte) error
	Close()
}

// Subscriber is the store surface the feed follows. Version reports the
// collection's current commit counter.
type Subscriber interface {
	Subscribe(ctx context.Context, c core.Collection, fn func(core.Snapshot)) (core.Subscription, error)
	Version(c core.Collection) uint64
}

// PublishRecorder counts publish attempts.
type PublishRecorder interface {
	RecordPublish(collection string, success bool)
}

// Event is the JSON body published per change.
type Event struct {
	Collection core.Collection `json:"collection"`
	Version    uint64          `json:"version"`
	Records    int             `json:"records"`
	At         time.Time       `json:"at"`
}

// Feed publishes one Event per snapshot newer than the collection's version
// when the feed started.
type Feed struct {
	pub     Publisher
	prefix  string
	logger  core.Logger
	clock   core.Clock
	metrics PublishRecorder

	mu       sync.Mutex
	baseline map[core.Collection]uint64
	subs     []core.Subscription
}

// Option configures a Feed.
type Option func(*Feed)

// WithPublishRecorder sets the publish metrics sink.
func WithPublishRecorder(r PublishRecorder) Option {
	return func(f *Feed) { f.metrics = r }
}

// WithClock overrides the event timestamp source.
func WithClock(c core.Clock) Option {
	return func(f *Feed) { f.clock = c }
}

// Start subscribes to every collection and publishes under prefix.
func Start(ctx context.Context, src Subscriber, pub Publisher, prefix string, logger core.Logger, opts ...Option) (*Feed, error) {
	f := &Feed{
		pub:      pub,
		prefix:   strings.TrimSuffix(prefix, "/"),
		logger:   logger,
		clock:    core.ClockFunc(func() time.Time { return time.Now().UTC() }),
		baseline: make(map[core.Collection]uint64),
	}
	for _, opt := range opts {
		opt(f)
	}
	for _, c := range domain.Collections() {
		f.mu.Lock()
		f.baseline[c] = src.Version(c)
		f.mu.Unlock()
		sub, err := src.Subscribe(ctx, c, f.handle)
		if err != nil {
			f.release()
			return nil, fmt.Errorf("change feed: %w", err)
		}
		f.mu.Lock()
		f.subs = append(f.subs, sub)
		f.mu.Unlock()
	}
	return f, nil
}

// Topic returns the topic used for c.
func (f *Feed) Topic(c core.Collection) string {
	if f.prefix == "" {
		return string(c)
	}
	return f.prefix + "/" + string(c)
}

func (f *Feed) handle(snap core.Snapshot) {
	f.mu.Lock()
	known := snap.Version <= f.baseline[snap.Collection]
	f.mu.Unlock()
	if known {
		return
	}
	payload, err := json.Marshal(Event{
		Collection: snap.Collection,
		Version:    snap.Version,
		Records:    len(snap.Entries),
		At:         f.clock.Now(),
	})
	if err != nil {
		f.logger.Error("encode change event", "collection", snap.Collection, "error", err)
		return
	}
	err = f.pub.Publish(f.Topic(snap.Collection), payload)
	if f.metrics != nil {
		f.metrics.RecordPublish(string(snap.Collection), err == nil)
	}
	if err != nil {
		f.logger.Warn("publish change event", "collection", snap.Collection, "error", err)
	}
}

// Close releases the subscriptions and the publisher.
func (f *Feed) Close() {
	f.release()
	f.pub.Close()
}

func (f *Feed) release() {
	f.mu.Lock()
	subs := f.subs
	f.subs = nil
	f.mu.Unlock()
	for _, sub := range subs {
		_ = sub.Close()
	}
}
