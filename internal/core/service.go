package core

import (
	"context"
	"errors"
	"fmt"

	"molluscadb/internal/infra/persistence/memory"
)

// Service exposes transactional document operations over a collection store.
// It is the single store client handed to every other package.
type Service struct {
	store   PersistentStore
	logger  Logger
	clock   Clock
	audit   AuditRecorder
	metrics MetricsRecorder
	tracer  Tracer
}

type serviceOptions struct {
	logger       Logger
	clock        Clock
	audit        AuditRecorder
	metrics      MetricsRecorder
	tracer       Tracer
	rules        []Rule
	defaultRules bool
}

// Option configures a Service.
type Option func(*serviceOptions)

// WithLogger sets the structured logger.
func WithLogger(logger Logger) Option {
	return func(o *serviceOptions) {
		if logger != nil {
			o.logger = logger
		}
	}
}

// WithClock overrides the service clock.
func WithClock(clock Clock) Option {
	return func(o *serviceOptions) {
		if clock != nil {
			o.clock = clock
		}
	}
}

// WithAuditRecorder sets the audit sink.
func WithAuditRecorder(rec AuditRecorder) Option {
	return func(o *serviceOptions) {
		if rec != nil {
			o.audit = rec
		}
	}
}

// WithMetricsRecorder sets the metrics sink.
func WithMetricsRecorder(rec MetricsRecorder) Option {
	return func(o *serviceOptions) {
		if rec != nil {
			o.metrics = rec
		}
	}
}

// WithTracer sets the tracer.
func WithTracer(tracer Tracer) Option {
	return func(o *serviceOptions) {
		if tracer != nil {
			o.tracer = tracer
		}
	}
}

// WithRule registers an additional rule on the store's engine.
func WithRule(rule Rule) Option {
	return func(o *serviceOptions) {
		if rule != nil {
			o.rules = append(o.rules, rule)
		}
	}
}

// WithDefaultRules registers DefaultRules on the store's engine.
func WithDefaultRules() Option {
	return func(o *serviceOptions) {
		o.defaultRules = true
	}
}

type engineProvider interface {
	RulesEngine() *RulesEngine
}

// NewService constructs a service backed by the supplied store.
func NewService(store PersistentStore, opts ...Option) *Service {
	o := serviceOptions{
		logger:  noopLogger{},
		clock:   ClockFunc(nowUTC),
		audit:   noopAuditRecorder{},
		metrics: noopMetricsRecorder{},
		tracer:  noopTracer{},
	}
	for _, opt := range opts {
		opt(&o)
	}
	rules := o.rules
	if o.defaultRules {
		rules = append(DefaultRules(), rules...)
	}
	if len(rules) > 0 {
		if p, ok := store.(engineProvider); ok && p.RulesEngine() != nil {
			for _, rule := range rules {
				p.RulesEngine().Register(rule)
			}
		} else {
			o.logger.Warn("store does not expose a rules engine; rules ignored", "count", len(rules))
		}
	}
	return &Service{
		store:   store,
		logger:  o.logger,
		clock:   o.clock,
		audit:   o.audit,
		metrics: o.metrics,
		tracer:  o.tracer,
	}
}

// NewInMemoryService creates a service and in-memory store with the given rules engine.
func NewInMemoryService(engine *RulesEngine, opts ...Option) *Service {
	return NewService(memory.NewStore(engine), opts...)
}

// Store returns the underlying storage implementation.
func (s *Service) Store() PersistentStore {
	return s.store
}

// Logger returns the configured logger.
func (s *Service) Logger() Logger {
	return s.logger
}

// Clock returns the service clock.
func (s *Service) Clock() Clock {
	return s.clock
}

// Close releases the underlying store.
func (s *Service) Close() error {
	return s.store.Close()
}

// Create inserts doc into collection under a store-generated key.
func (s *Service) Create(ctx context.Context, c Collection, doc Document) (Record, Result, error) {
	if err := checkCollection(c); err != nil {
		return Record{}, Result{}, err
	}
	var created Record
	res, err := s.run(ctx, "create", c, func() string { return created.Key }, func(tx Transaction) error {
		var err error
		created, err = tx.Create(c, doc)
		return err
	})
	return created, res, err
}

// Update merges fields into an existing record. Only the named fields change.
func (s *Service) Update(ctx context.Context, c Collection, key string, fields Document) (Record, Result, error) {
	if err := checkCollection(c); err != nil {
		return Record{}, Result{}, err
	}
	var updated Record
	res, err := s.run(ctx, "update", c, func() string { return key }, func(tx Transaction) error {
		var err error
		updated, err = tx.Update(c, key, fields)
		return err
	})
	return updated, res, err
}

// Replace overwrites the document stored under key.
func (s *Service) Replace(ctx context.Context, c Collection, key string, doc Document) (Record, Result, error) {
	if err := checkCollection(c); err != nil {
		return Record{}, Result{}, err
	}
	var replaced Record
	res, err := s.run(ctx, "replace", c, func() string { return key }, func(tx Transaction) error {
		var err error
		replaced, err = tx.Replace(c, key, doc)
		return err
	})
	return replaced, res, err
}

// Delete removes the record stored under key.
func (s *Service) Delete(ctx context.Context, c Collection, key string) (Result, error) {
	if err := checkCollection(c); err != nil {
		return Result{}, err
	}
	return s.run(ctx, "delete", c, func() string { return key }, func(tx Transaction) error {
		return tx.Delete(c, key)
	})
}

// Get returns one record.
func (s *Service) Get(c Collection, key string) (Record, bool) {
	return s.store.Get(c, key)
}

// List returns every record of a collection in store order.
func (s *Service) List(c Collection) []Record {
	return s.store.List(c)
}

type versioned interface {
	Version(c Collection) uint64
}

// Version returns the commit counter of collection, or 0 when the store does
// not track one. Snapshots carry the same counter.
func (s *Service) Version(c Collection) uint64 {
	if v, ok := s.store.(versioned); ok {
		return v.Version(c)
	}
	return 0
}

// Subscribe registers fn for live snapshots of collection.
func (s *Service) Subscribe(ctx context.Context, c Collection, fn func(Snapshot)) (Subscription, error) {
	if err := checkCollection(c); err != nil {
		return nil, err
	}
	sub, err := s.store.Subscribe(ctx, c, fn)
	if err != nil {
		s.logger.Error("subscribe failed", "collection", c, "error", err)
		return nil, fmt.Errorf("subscribe %s: %w", c, err)
	}
	s.logger.Debug("subscribed", "collection", c)
	return sub, nil
}

// RunInTransaction runs fn as one atomic store transaction under the given
// operation name, with the same tracing, metrics, audit and logging as the
// single-record operations.
func (s *Service) RunInTransaction(ctx context.Context, operation string, c Collection, fn func(Transaction) error) (Result, error) {
	return s.run(ctx, operation, c, nil, fn)
}

func (s *Service) run(ctx context.Context, verb string, c Collection, entityID func() string, fn func(Transaction) error) (Result, error) {
	op := verb
	if c != "" && (verb == "create" || verb == "update" || verb == "replace" || verb == "delete") {
		op = verb + "_" + string(c)
	}
	ctx, span := s.tracer.Start(ctx, op)
	started := s.clock.Now()
	res, err := s.store.RunInTransaction(ctx, fn)
	ended := s.clock.Now()
	span.End(err)
	s.metrics.Observe(ctx, op, err == nil, ended.Sub(started))

	entry := AuditEntry{
		Operation:  op,
		Status:     AuditStatusSuccess,
		Collection: c,
		Actor:      ActorFromContext(ctx),
		Violations: len(res.Violations),
		Timestamp:  ended,
	}
	if entityID != nil {
		entry.EntityID = entityID()
	}
	if err != nil {
		entry.Status = AuditStatusError
		entry.Error = err.Error()
	}
	s.audit.Record(ctx, entry)

	for _, v := range res.Violations {
		switch v.Severity {
		case SeverityLog:
			s.logger.Info("rule violation", "operation", op, "rule", v.Rule, "key", v.Key, "message", v.Message)
		default:
			s.logger.Warn("rule violation", "operation", op, "rule", v.Rule, "severity", v.Severity, "key", v.Key, "message", v.Message)
		}
	}
	if err != nil {
		var notFound ErrNotFound
		if errors.As(err, &notFound) {
			s.logger.Warn("operation failed", "operation", op, "error", err)
		} else {
			s.logger.Error("operation failed", "operation", op, "error", err)
		}
		return res, err
	}
	s.logger.Debug("operation committed", "operation", op, "entity", entry.EntityID, "duration", ended.Sub(started))
	return res, nil
}

func checkCollection(c Collection) error {
	if !c.Valid() {
		return fmt.Errorf("unknown collection %q", c)
	}
	return nil
}
