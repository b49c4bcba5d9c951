package core

import (
	"context"
	"encoding/json"
	"expvar"
	"fmt"
	"io"
	"sync"
	"sync/atomic"
	"time"
)

var expvarSeq atomic.Uint64

// ExpvarRecorder publishes per-operation counters under one expvar map:
// "<op>.ok", "<op>.failed" and "<op>.ms" (cumulative milliseconds).
type ExpvarRecorder struct {
	name string
	vars *expvar.Map
}

// NewExpvarRecorder publishes a recorder under name, or under a generated
// unique name when name is empty. expvar names are process-global.
func NewExpvarRecorder(name string) *ExpvarRecorder {
	if name == "" {
		name = fmt.Sprintf("molluscadb_operations_%d", expvarSeq.Add(1))
	}
	return &ExpvarRecorder{name: name, vars: expvar.NewMap(name)}
}

// Name returns the published expvar name.
func (r *ExpvarRecorder) Name() string { return r.name }

// Observe implements MetricsRecorder.
func (r *ExpvarRecorder) Observe(_ context.Context, operation string, success bool, duration time.Duration) {
	if operation == "" {
		return
	}
	outcome := ".failed"
	if success {
		outcome = ".ok"
	}
	r.vars.Add(operation+outcome, 1)
	r.vars.AddFloat(operation+".ms", float64(duration)/float64(time.Millisecond))
}

// Count returns the ok or failed counter of an operation.
func (r *ExpvarRecorder) Count(operation string, success bool) int64 {
	key := operation + ".failed"
	if success {
		key = operation + ".ok"
	}
	if v, ok := r.vars.Get(key).(*expvar.Int); ok {
		return v.Value()
	}
	return 0
}

type multiRecorder []MetricsRecorder

func (m multiRecorder) Observe(ctx context.Context, operation string, success bool, duration time.Duration) {
	for _, r := range m {
		r.Observe(ctx, operation, success, duration)
	}
}

// MultiRecorder fans every observation out to recs. Nil entries are skipped.
func MultiRecorder(recs ...MetricsRecorder) MetricsRecorder {
	out := make(multiRecorder, 0, len(recs))
	for _, r := range recs {
		if r != nil {
			out = append(out, r)
		}
	}
	return out
}

// Span is one finished operation as written by LineTracer.
type Span struct {
	Operation string    `json:"operation"`
	Actor     string    `json:"actor,omitempty"`
	OK        bool      `json:"ok"`
	Error     string    `json:"error,omitempty"`
	Started   time.Time `json:"started"`
	Millis    float64   `json:"ms"`
}

// LineTracer writes one JSON line per finished span.
type LineTracer struct {
	mu  sync.Mutex
	enc *json.Encoder
	now func() time.Time
}

// NewLineTracer returns a tracer encoding spans to w.
func NewLineTracer(w io.Writer) *LineTracer {
	return &LineTracer{enc: json.NewEncoder(w), now: nowUTC}
}

// Start implements Tracer.
func (t *LineTracer) Start(ctx context.Context, operation string) (context.Context, TraceSpan) {
	return ctx, &lineSpan{
		tracer: t,
		span:   Span{Operation: operation, Actor: ActorFromContext(ctx), Started: t.now()},
	}
}

type lineSpan struct {
	tracer *LineTracer
	span   Span
	once   sync.Once
}

func (s *lineSpan) End(err error) {
	s.once.Do(func() {
		s.span.OK = err == nil
		if err != nil {
			s.span.Error = err.Error()
		}
		s.span.Millis = float64(s.tracer.now().Sub(s.span.Started)) / float64(time.Millisecond)
		s.tracer.mu.Lock()
		_ = s.tracer.enc.Encode(s.span)
		s.tracer.mu.Unlock()
	})
}

// AuditLog keeps the most recent audit entries in a ring.
type AuditLog struct {
	mu    sync.Mutex
	ring  []AuditEntry
	next  int
	count int
}

// NewAuditLog returns a log holding at most size entries (minimum 1).
func NewAuditLog(size int) *AuditLog {
	if size < 1 {
		size = 1
	}
	return &AuditLog{ring: make([]AuditEntry, size)}
}

// Record implements AuditRecorder.
func (l *AuditLog) Record(_ context.Context, entry AuditEntry) {
	l.mu.Lock()
	l.ring[l.next] = entry
	l.next = (l.next + 1) % len(l.ring)
	if l.count < len(l.ring) {
		l.count++
	}
	l.mu.Unlock()
}

// Recent returns up to limit entries, newest first. A non-empty actor keeps
// only that actor's entries; limit <= 0 means all retained entries.
func (l *AuditLog) Recent(limit int, actor string) []AuditEntry {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]AuditEntry, 0, l.count)
	for i := 1; i <= l.count; i++ {
		e := l.ring[(l.next-i+len(l.ring))%len(l.ring)]
		if actor != "" && e.Actor != actor {
			continue
		}
		out = append(out, e)
		if limit > 0 && len(out) == limit {
			break
		}
	}
	return out
}
