// Package memory provides an in-memory implementation of the collection
// store used for tests, ephemeral environments, and as the transactional core
// of the SQL-backed stores.
package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"molluscadb/pkg/domain"

	"github.com/google/uuid"
)

// Compile-time contract assertion ensuring memory.Store adheres to the domain persistence interface.
var _ domain.PersistentStore = (*Store)(nil)

type (
	// Collection aliases domain.Collection.
	Collection = domain.Collection
	// Document aliases domain.Document.
	Document = domain.Document
	// Record aliases domain.Record.
	Record = domain.Record
	// Change aliases domain.Change captured in transactions.
	Change = domain.Change
	// Result aliases domain.Result summarizing rule evaluation.
	Result = domain.Result
	// RulesEngine aliases domain.RulesEngine used to evaluate rules.
	RulesEngine = domain.RulesEngine
	// Transaction aliases domain.Transaction representing a mutable unit of work.
	Transaction = domain.Transaction
	// TransactionView aliases domain.TransactionView providing read-only state.
	TransactionView = domain.TransactionView
)

type memoryState struct {
	collections map[Collection]map[string]Document
}

// Snapshot captures a point-in-time clone of every collection, keyed by
// collection then record key. It is the unit persisted by the SQL stores.
// Seq is the store-wide commit count the snapshot reflects; a snapshot with a
// lower Seq than one already persisted is stale.
type Snapshot struct {
	Collections map[Collection]map[string]Document `json:"collections"`
	Seq         uint64                             `json:"-"`
}

func newMemoryState() memoryState {
	state := memoryState{collections: make(map[Collection]map[string]Document)}
	for _, c := range domain.Collections() {
		state.collections[c] = make(map[string]Document)
	}
	return state
}

func (s memoryState) clone() memoryState {
	out := memoryState{collections: make(map[Collection]map[string]Document, len(s.collections))}
	for c, docs := range s.collections {
		cp := make(map[string]Document, len(docs))
		for k, v := range docs {
			cp[k] = v.Clone()
		}
		out.collections[c] = cp
	}
	return out
}

func (s memoryState) records(c Collection) []Record {
	docs := s.collections[c]
	keys := make([]string, 0, len(docs))
	for k := range docs {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	out := make([]Record, 0, len(keys))
	for _, k := range keys {
		out = append(out, Record{Key: k, Document: docs[k].Clone()})
	}
	return out
}

func snapshotFromMemoryState(state memoryState, seq uint64) Snapshot {
	return Snapshot{Collections: state.clone().collections, Seq: seq}
}

func memoryStateFromSnapshot(s Snapshot) memoryState {
	state := newMemoryState()
	for c, docs := range s.Collections {
		if !c.Valid() {
			continue
		}
		for k, v := range docs {
			state.collections[c][k] = v.Clone().Normalize()
		}
	}
	return state
}

// CommitHook observes the full store state after each successful commit.
// Hooks of concurrent commits may run in any order; use Snapshot.Seq to
// discard stale states. A hook error is returned to the caller of
// RunInTransaction; the in-memory commit is not rolled back.
type CommitHook func(ctx context.Context, snapshot Snapshot) error

// Option configures a Store.
type Option func(*Store)

// WithCommitHook registers a hook invoked after each successful commit.
func WithCommitHook(hook CommitHook) Option {
	return func(s *Store) {
		if hook != nil {
			s.hooks = append(s.hooks, hook)
		}
	}
}

// WithClock overrides the clock used to stamp transactions.
func WithClock(now func() time.Time) Option {
	return func(s *Store) {
		if now != nil {
			s.nowFn = now
		}
	}
}

// WithKeyFunc overrides record key generation.
func WithKeyFunc(fn func() string) Option {
	return func(s *Store) {
		if fn != nil {
			s.newKey = fn
		}
	}
}

// Store provides an in-memory transactional store of schema-less collections.
type Store struct {
	mu       sync.RWMutex
	state    memoryState
	versions map[Collection]uint64
	commits  uint64
	engine   *RulesEngine
	nowFn    func() time.Time
	newKey   func() string
	hooks    []CommitHook

	subsMu  sync.Mutex
	subs    map[uint64]*subscription
	nextSub uint64
	closed  bool
}

// NewStore constructs an in-memory store backed by the provided rules engine.
func NewStore(engine *RulesEngine, opts ...Option) *Store {
	if engine == nil {
		engine = domain.NewRulesEngine()
	}
	s := &Store{
		state:    newMemoryState(),
		versions: make(map[Collection]uint64),
		engine:   engine,
		nowFn:    func() time.Time { return time.Now().UTC() },
		newKey:   newRecordKey,
		subs:     make(map[uint64]*subscription),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// newRecordKey returns a UUIDv7 string. Version 7 keys sort by creation time,
// which gives collections a stable insertion order.
func newRecordKey() string {
	return uuid.Must(uuid.NewV7()).String()
}

// ExportState clones the current store state for external persistence.
func (s *Store) ExportState() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return snapshotFromMemoryState(s.state, s.commits)
}

// ImportState replaces the store state with the provided snapshot and pushes
// the new content to subscribers.
func (s *Store) ImportState(snapshot Snapshot) {
	s.mu.Lock()
	s.state = memoryStateFromSnapshot(snapshot)
	s.commits++
	pushes := make([]domain.Snapshot, 0, len(s.state.collections))
	for _, c := range domain.Collections() {
		s.versions[c]++
		pushes = append(pushes, s.snapshotLocked(c))
	}
	s.mu.Unlock()
	s.publish(pushes)
}

// RulesEngine exposes the currently configured engine.
func (s *Store) RulesEngine() *RulesEngine {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.engine
}

// NowFunc returns the time provider used by the in-memory store.
func (s *Store) NowFunc() func() time.Time {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.nowFn
}

// Version returns the commit counter for a collection.
func (s *Store) Version(c Collection) uint64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.versions[c]
}

func (s *Store) snapshotLocked(c Collection) domain.Snapshot {
	return domain.Snapshot{Collection: c, Version: s.versions[c], Entries: s.state.records(c)}
}

// transaction represents a mutation set applied to a private copy of the store state.
type transaction struct {
	store   *Store
	state   memoryState
	changes []Change
	now     time.Time
}

// transactionView exposes a read-only snapshot of the transactional state to rules.
type transactionView struct {
	state *memoryState
}

func newTransactionView(state *memoryState) TransactionView {
	return transactionView{state: state}
}

func (v transactionView) List(c Collection) []Record {
	return v.state.records(c)
}

func (v transactionView) Find(c Collection, key string) (Record, bool) {
	doc, ok := v.state.collections[c][key]
	if !ok {
		return Record{}, false
	}
	return Record{Key: key, Document: doc.Clone()}, true
}

// RunInTransaction executes fn within a transactional copy of the store state.
// Blocking rule violations discard the copy. Subscribers of every touched
// collection receive a fresh snapshot after commit.
func (s *Store) RunInTransaction(ctx context.Context, fn func(tx Transaction) error) (Result, error) {
	s.mu.Lock()
	tx := &transaction{
		store: s,
		state: s.state.clone(),
		now:   s.nowFn(),
	}

	if err := fn(tx); err != nil {
		s.mu.Unlock()
		return Result{}, err
	}

	var result Result
	if s.engine != nil {
		view := newTransactionView(&tx.state)
		res, err := s.engine.Evaluate(ctx, view, tx.changes)
		if err != nil {
			s.mu.Unlock()
			return Result{}, err
		}
		result = res
		if res.HasBlocking() {
			s.mu.Unlock()
			return res, domain.RuleViolationError{Result: res}
		}
	}

	s.state = tx.state
	touched := tx.touched()
	pushes := make([]domain.Snapshot, 0, len(touched))
	for _, c := range touched {
		s.versions[c]++
		pushes = append(pushes, s.snapshotLocked(c))
	}
	var exported Snapshot
	if len(touched) > 0 {
		s.commits++
		if len(s.hooks) > 0 {
			exported = snapshotFromMemoryState(s.state, s.commits)
		}
	}
	hooks := s.hooks
	s.mu.Unlock()

	var hookErr error
	if len(touched) > 0 {
		for _, hook := range hooks {
			if err := hook(ctx, exported); err != nil {
				hookErr = fmt.Errorf("commit hook: %w", err)
				break
			}
		}
	}
	s.publish(pushes)
	return result, hookErr
}

// View executes fn against a read-only snapshot of the store state.
func (s *Store) View(_ context.Context, fn func(TransactionView) error) error {
	s.mu.RLock()
	snapshot := s.state.clone()
	s.mu.RUnlock()
	return fn(newTransactionView(&snapshot))
}

// Get returns a single record outside a transaction.
func (s *Store) Get(c Collection, key string) (Record, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	doc, ok := s.state.collections[c][key]
	if !ok {
		return Record{}, false
	}
	return Record{Key: key, Document: doc.Clone()}, true
}

// List returns every record of a collection in key order.
func (s *Store) List(c Collection) []Record {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state.records(c)
}

// Close releases every live subscription. Further subscriptions fail.
func (s *Store) Close() error {
	s.subsMu.Lock()
	s.closed = true
	subs := make([]*subscription, 0, len(s.subs))
	for _, sub := range s.subs {
		subs = append(subs, sub)
	}
	s.subsMu.Unlock()
	for _, sub := range subs {
		_ = sub.Close()
	}
	return nil
}

func (tx *transaction) recordChange(change Change) {
	tx.changes = append(tx.changes, change)
}

func (tx *transaction) touched() []Collection {
	seen := make(map[Collection]bool)
	var out []Collection
	for _, ch := range tx.changes {
		if seen[ch.Collection] {
			continue
		}
		seen[ch.Collection] = true
		out = append(out, ch.Collection)
	}
	return out
}

func (tx *transaction) bucket(c Collection) (map[string]Document, error) {
	docs, ok := tx.state.collections[c]
	if !ok {
		return nil, fmt.Errorf("unknown collection %q", c)
	}
	return docs, nil
}

// Snapshot returns a read-only view over the transactional state.
func (tx *transaction) Snapshot() TransactionView {
	return newTransactionView(&tx.state)
}

// Get looks up a record within the transaction scope.
func (tx *transaction) Get(c Collection, key string) (Record, bool) {
	return transactionView{state: &tx.state}.Find(c, key)
}

// List returns the collection records within the transaction scope.
func (tx *transaction) List(c Collection) []Record {
	return tx.state.records(c)
}

// Create stores a new record under a freshly generated key.
func (tx *transaction) Create(c Collection, doc Document) (Record, error) {
	docs, err := tx.bucket(c)
	if err != nil {
		return Record{}, err
	}
	key := tx.store.newKey()
	if _, exists := docs[key]; exists {
		return Record{}, fmt.Errorf("%s %q already exists", c, key)
	}
	stored := doc.Clone()
	if stored == nil {
		stored = Document{}
	}
	stored.Normalize()
	docs[key] = stored
	tx.recordChange(Change{Collection: c, Action: domain.ActionCreate, Key: key, Fields: stored.Fields(), After: stored.Clone()})
	return Record{Key: key, Document: stored.Clone()}, nil
}

// Update merges fields into an existing record. A nil value removes the field.
func (tx *transaction) Update(c Collection, key string, fields Document) (Record, error) {
	docs, err := tx.bucket(c)
	if err != nil {
		return Record{}, err
	}
	current, ok := docs[key]
	if !ok {
		return Record{}, domain.ErrNotFound{Collection: c, Key: key}
	}
	before := current.Clone()
	next := current.Clone()
	for field, value := range fields.Clone() {
		if value == nil {
			delete(next, field)
			continue
		}
		next[field] = value
	}
	next.Normalize()
	docs[key] = next
	tx.recordChange(Change{Collection: c, Action: domain.ActionUpdate, Key: key, Fields: fields.Fields(), Before: before, After: next.Clone()})
	return Record{Key: key, Document: next.Clone()}, nil
}

// Replace overwrites the whole document of an existing record.
func (tx *transaction) Replace(c Collection, key string, doc Document) (Record, error) {
	docs, err := tx.bucket(c)
	if err != nil {
		return Record{}, err
	}
	current, ok := docs[key]
	if !ok {
		return Record{}, domain.ErrNotFound{Collection: c, Key: key}
	}
	next := doc.Clone()
	if next == nil {
		next = Document{}
	}
	next.Normalize()
	docs[key] = next
	tx.recordChange(Change{Collection: c, Action: domain.ActionReplace, Key: key, Fields: next.Fields(), Before: current.Clone(), After: next.Clone()})
	return Record{Key: key, Document: next.Clone()}, nil
}

// Delete removes a record from the transaction state.
func (tx *transaction) Delete(c Collection, key string) error {
	docs, err := tx.bucket(c)
	if err != nil {
		return err
	}
	current, ok := docs[key]
	if !ok {
		return domain.ErrNotFound{Collection: c, Key: key}
	}
	delete(docs, key)
	tx.recordChange(Change{Collection: c, Action: domain.ActionDelete, Key: key, Before: current})
	return nil
}
