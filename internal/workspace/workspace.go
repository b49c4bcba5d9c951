// Package workspace holds the live state of one signed-in identity: it
// follows every collection, recomputes the lookup join on each snapshot and
// feeds the grids and forms that edits flow through.
package workspace

import (
	"context"
	"errors"
	"fmt"
	"io"
	"slices"
	"sync"

	"molluscadb/internal/core"
	"molluscadb/internal/form"
	"molluscadb/internal/grid"
	"molluscadb/internal/grouplink"
	"molluscadb/internal/lookup"
	"molluscadb/internal/projector"
	"molluscadb/pkg/domain"
)

// ErrUnknownView is returned for a view name with no grid.
var ErrUnknownView = errors.New("workspace: unknown view")

// ErrClosed is returned after Close.
var ErrClosed = errors.New("workspace: closed")

type versioner interface {
	Version(domain.Collection) uint64
}

// Workspace is safe for concurrent use. Grid and form access is serialized.
type Workspace struct {
	identity string
	svc      *core.Service
	logger   core.Logger
	inbox    *form.Inbox
	linker   *grouplink.Linker

	mu        sync.Mutex
	closed    bool
	lists     map[domain.Collection][]domain.Record
	grids     map[string]*grid.Grid
	forms     map[domain.Collection]*form.Form
	followers []*projector.Follower
	tick      chan struct{}
	cancel    context.CancelFunc
}

// Open builds the grids and forms of identity and starts following every
// collection. The workspace lives until Close, independent of ctx.
func Open(ctx context.Context, svc *core.Service, identity string) (*Workspace, error) {
	w := &Workspace{
		identity: identity,
		svc:      svc,
		logger:   svc.Logger(),
		inbox:    form.NewInbox(50),
		linker:   grouplink.New(svc),
		lists:    make(map[domain.Collection][]domain.Record),
		grids:    make(map[string]*grid.Grid),
		forms:    make(map[domain.Collection]*form.Form),
		tick:     make(chan struct{}),
	}
	writer := &notifyingWriter{svc: svc, inbox: w.inbox}
	for _, view := range grid.Views() {
		g := grid.New(view, writer)
		g.SetCascade(w.localityTemplate)
		w.grids[view.Name] = g
	}
	for _, c := range domain.Collections() {
		schema, _ := form.SchemaFor(c)
		w.forms[c] = form.New(schema, svc, w.inbox)
	}

	followCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	w.cancel = cancel
	for _, c := range domain.Collections() {
		f, err := projector.Follow(followCtx, svc, c, projector.StoreOrder, w.apply)
		if err != nil {
			_ = w.Close()
			return nil, fmt.Errorf("follow %s: %w", c, err)
		}
		w.mu.Lock()
		w.followers = append(w.followers, f)
		w.mu.Unlock()
	}
	w.logger.Debug("workspace opened", "identity", identity)
	return w, nil
}

// Identity returns the signed-in identity owning the workspace.
func (w *Workspace) Identity() string { return w.identity }

// Close releases every subscription. It is safe to call twice.
func (w *Workspace) Close() error {
	w.mu.Lock()
	if w.closed {
		w.mu.Unlock()
		return nil
	}
	w.closed = true
	followers := w.followers
	w.followers = nil
	w.mu.Unlock()

	var errs []error
	for _, f := range followers {
		if err := f.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	if w.cancel != nil {
		w.cancel()
	}
	w.logger.Debug("workspace closed", "identity", w.identity)
	return errors.Join(errs...)
}

// apply receives every projected snapshot.
func (w *Workspace) apply(c domain.Collection, _ uint64, records []domain.Record) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return
	}
	w.lists[c] = records
	if f := w.forms[c]; f != nil {
		f.SetRecords(records)
	}
	if c == domain.CollectionLocations {
		w.forms[domain.CollectionExtractions].SetLocalities(records)
	}
	for _, g := range w.grids {
		if dependsOn(g.View(), c) {
			w.refresh(g)
		}
	}
	close(w.tick)
	w.tick = make(chan struct{})
}

func dependsOn(v grid.View, c domain.Collection) bool {
	if v.Collection == c {
		return true
	}
	return v.Joined && (c == domain.CollectionStorage || c == domain.CollectionLocations)
}

func (w *Workspace) refresh(g *grid.Grid) {
	view := g.View()
	rows := w.lists[view.Collection]
	if view.Joined {
		storage := w.lists[domain.CollectionStorage]
		rows = lookup.Join(rows, storage, w.lists[domain.CollectionLocations], lookup.Options{})
		_ = g.SetOptions(grid.ColumnBox, gridOptions(lookup.BoxOptions(storage)))
		_ = g.SetOptions(grid.ColumnLocalityCode, gridOptions(lookup.LocalityCodeOptions(w.lists[domain.CollectionLocations])))
	}
	if view.NewestFirst {
		rows = slices.Clone(rows)
		slices.Reverse(rows)
	}
	g.SetRows(rows)
}

func gridOptions(opts []lookup.Option) []grid.Option {
	out := make([]grid.Option, len(opts))
	for i, o := range opts {
		out[i] = grid.Option{Value: o.Value, Label: o.Label}
	}
	return out
}

// localityTemplate is the cascade source of locality code columns. It runs
// under w.mu from grid edits.
func (w *Workspace) localityTemplate(code string) (domain.Document, bool) {
	loc, ok := lookup.FindTemplate(w.lists[domain.CollectionLocations], code)
	if !ok {
		return nil, false
	}
	return loc.TemplateFields(), true
}

// Sync waits until every collection snapshot the store has committed so far
// has been applied.
func (w *Workspace) Sync(ctx context.Context) error {
	v, _ := w.svc.Store().(versioner)
	for {
		w.mu.Lock()
		if w.closed {
			w.mu.Unlock()
			return ErrClosed
		}
		synced := true
		for _, f := range w.followers {
			got, ready := f.Version()
			if !ready || (v != nil && got < v.Version(f.Collection())) {
				synced = false
				break
			}
		}
		tick := w.tick
		w.mu.Unlock()
		if synced {
			return nil
		}
		select {
		case <-tick:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// Records returns the latest list of a collection in store order.
func (w *Workspace) Records(c domain.Collection) []domain.Record {
	w.mu.Lock()
	defer w.mu.Unlock()
	out := make([]domain.Record, len(w.lists[c]))
	for i, r := range w.lists[c] {
		out[i] = r.Clone()
	}
	return out
}

// Grid runs fn with exclusive access to a view's grid.
func (w *Workspace) Grid(name string, fn func(*grid.Grid) error) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return ErrClosed
	}
	g, ok := w.grids[name]
	if !ok {
		return fmt.Errorf("%w %q", ErrUnknownView, name)
	}
	return fn(g)
}

// Form runs fn with exclusive access to a collection's form.
func (w *Workspace) Form(c domain.Collection, fn func(*form.Form) error) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return ErrClosed
	}
	f, ok := w.forms[c]
	if !ok {
		return fmt.Errorf("unknown collection %q", c)
	}
	return fn(f)
}

// Export writes the view's CSV export and returns its file name and row count.
func (w *Workspace) Export(name string, out io.Writer) (string, int, error) {
	var file string
	var rows int
	err := w.Grid(name, func(g *grid.Grid) error {
		var err error
		file = g.FileName()
		rows, err = g.Export(out)
		return err
	})
	return file, rows, err
}

// Notifications drains the pending notifications.
func (w *Workspace) Notifications() []form.Notification {
	return w.inbox.Drain()
}

// Notify queues a notification for the identity.
func (w *Workspace) Notify(n form.Notification) {
	w.inbox.Notify(n)
}
