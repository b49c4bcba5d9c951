package changefeed

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"sync"
	"testing"
	"time"

	"molluscadb/internal/core"
	"molluscadb/pkg/domain"
)

type message struct {
	topic   string
	payload []byte
}

type fakePublisher struct {
	mu     sync.Mutex
	msgs   []message
	fail   bool
	closed bool
}

func (p *fakePublisher) Publish(topic string, payload []byte) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.fail {
		return errors.New("broker down")
	}
	p.msgs = append(p.msgs, message{topic: topic, payload: payload})
	return nil
}

func (p *fakePublisher) Close() {
	p.mu.Lock()
	p.closed = true
	p.mu.Unlock()
}

func (p *fakePublisher) messages() []message {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]message(nil), p.msgs...)
}

type publishCounter struct {
	mu      sync.Mutex
	success int
	failure int
}

func (c *publishCounter) RecordPublish(_ string, ok bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if ok {
		c.success++
	} else {
		c.failure++
	}
}

func (c *publishCounter) counts() (int, int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.success, c.failure
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("condition not met before deadline")
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestFeedPublishesChangesOnly(t *testing.T) {
	svc := core.NewInMemoryService(core.NewRulesEngine())
	pub := &fakePublisher{}
	counter := &publishCounter{}
	at := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	feed, err := Start(context.Background(), svc, pub, "lab/molluscadb/", slog.New(slog.DiscardHandler),
		WithPublishRecorder(counter),
		WithClock(core.ClockFunc(func() time.Time { return at })))
	if err != nil {
		t.Fatalf("start: %v", err)
	}

	time.Sleep(50 * time.Millisecond)
	if len(pub.messages()) != 0 {
		t.Fatalf("initial snapshots must not publish")
	}

	if _, _, err := svc.Create(context.Background(), domain.CollectionPrimers, domain.Document{"name": "ITS1"}); err != nil {
		t.Fatalf("create: %v", err)
	}
	waitFor(t, func() bool { return len(pub.messages()) == 1 })
	msg := pub.messages()[0]
	if msg.topic != "lab/molluscadb/primers" {
		t.Fatalf("unexpected topic %s", msg.topic)
	}
	var ev Event
	if err := json.Unmarshal(msg.payload, &ev); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if ev.Collection != domain.CollectionPrimers || ev.Records != 1 || !ev.At.Equal(at) || ev.Version == 0 {
		t.Fatalf("unexpected event %+v", ev)
	}
	if ok, _ := counter.counts(); ok != 1 {
		t.Fatalf("expected one recorded publish, got %d", ok)
	}

	feed.Close()
	pub.mu.Lock()
	closed := pub.closed
	pub.mu.Unlock()
	if !closed {
		t.Fatalf("expected publisher closed")
	}
}

// commitOnSubscribe lands one primer commit after the feed has read the
// primers version but before its subscription exists.
type commitOnSubscribe struct {
	*core.Service
	once sync.Once
}

func (s *commitOnSubscribe) Subscribe(ctx context.Context, c core.Collection, fn func(core.Snapshot)) (core.Subscription, error) {
	if c == domain.CollectionPrimers {
		var err error
		s.once.Do(func() {
			_, _, err = s.Create(ctx, c, domain.Document{"name": "LCO1490"})
		})
		if err != nil {
			return nil, err
		}
	}
	return s.Service.Subscribe(ctx, c, fn)
}

func TestFeedPublishesCommitRacingStart(t *testing.T) {
	svc := core.NewInMemoryService(core.NewRulesEngine())
	if _, _, err := svc.Create(context.Background(), domain.CollectionPrimers, domain.Document{"name": "ITS1"}); err != nil {
		t.Fatalf("seed: %v", err)
	}
	pub := &fakePublisher{}
	feed, err := Start(context.Background(), &commitOnSubscribe{Service: svc}, pub, "lab", slog.New(slog.DiscardHandler))
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	defer feed.Close()

	waitFor(t, func() bool { return len(pub.messages()) == 1 })
	var ev Event
	if err := json.Unmarshal(pub.messages()[0].payload, &ev); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if ev.Collection != domain.CollectionPrimers || ev.Records != 2 {
		t.Fatalf("unexpected event %+v", ev)
	}
	time.Sleep(50 * time.Millisecond)
	if n := len(pub.messages()); n != 1 {
		t.Fatalf("expected only the racing commit to publish, got %d messages", n)
	}
}

func TestFeedRecordsFailedPublish(t *testing.T) {
	svc := core.NewInMemoryService(core.NewRulesEngine())
	pub := &fakePublisher{fail: true}
	counter := &publishCounter{}
	feed, err := Start(context.Background(), svc, pub, "", slog.New(slog.DiscardHandler), WithPublishRecorder(counter))
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	defer feed.Close()
	if feed.Topic(domain.CollectionStorage) != "storage" {
		t.Fatalf("unexpected bare topic %s", feed.Topic(domain.CollectionStorage))
	}
	time.Sleep(50 * time.Millisecond)
	if _, _, err := svc.Create(context.Background(), domain.CollectionStorage, domain.Document{"box": "B1"}); err != nil {
		t.Fatalf("create: %v", err)
	}
	waitFor(t, func() bool { _, failed := counter.counts(); return failed == 1 })
}

func TestDialMQTTRequiresBroker(t *testing.T) {
	if _, err := DialMQTT(MQTTConfig{}, slog.New(slog.DiscardHandler)); err == nil {
		t.Fatalf("expected missing broker error")
	}
}
