package workspace

import (
	"context"

	"molluscadb/internal/core"
	"molluscadb/internal/form"
	"molluscadb/internal/grouplink"
	"molluscadb/pkg/domain"
)

// notifyingWriter issues grid writes and notifies after each successful one.
type notifyingWriter struct {
	svc   *core.Service
	inbox *form.Inbox
}

func (n *notifyingWriter) Update(ctx context.Context, c domain.Collection, key string, fields domain.Document) (domain.Record, domain.Result, error) {
	rec, res, err := n.svc.Update(ctx, c, key, fields)
	if err != nil {
		return rec, res, err
	}
	n.inbox.Notify(form.Notification{
		Level:      form.LevelSuccess,
		Message:    "Updated " + string(c) + " " + key,
		Collection: c,
		Key:        key,
	})
	return rec, res, nil
}

// Members returns the other records of key's isolate code group.
func (w *Workspace) Members(key string) ([]domain.Record, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	a, all, err := w.extraction(key)
	if err != nil {
		return nil, err
	}
	return grouplink.Members(a, all), nil
}

// Candidates returns the records that could join key's group.
func (w *Workspace) Candidates(key string) ([]domain.Record, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	a, all, err := w.extraction(key)
	if err != nil {
		return nil, err
	}
	return grouplink.Candidates(a, all), nil
}

func (w *Workspace) extraction(key string) (domain.Record, []domain.Record, error) {
	all := w.lists[domain.CollectionExtractions]
	for _, r := range all {
		if r.Key == key {
			return r, all, nil
		}
	}
	return domain.Record{}, nil, domain.ErrNotFound{Collection: domain.CollectionExtractions, Key: key}
}

// Link adds member to key's group.
func (w *Workspace) Link(ctx context.Context, key, member string) (grouplink.Outcome, error) {
	out, err := w.linker.Link(ctx, key, member)
	if err != nil {
		return out, err
	}
	w.inbox.Notify(form.Notification{
		Level:      form.LevelSuccess,
		Message:    "Linked group of " + key,
		Collection: domain.CollectionExtractions,
		Key:        key,
	})
	return out, nil
}

// Unlink removes member from key's group.
func (w *Workspace) Unlink(ctx context.Context, key, member string) (grouplink.Outcome, error) {
	out, err := w.linker.Unlink(ctx, key, member)
	if err != nil {
		return out, err
	}
	w.inbox.Notify(form.Notification{
		Level:      form.LevelSuccess,
		Message:    "Removed " + member + " from group",
		Collection: domain.CollectionExtractions,
		Key:        key,
	})
	return out, nil
}

// Delete removes a record. Extractions leave their group first.
func (w *Workspace) Delete(ctx context.Context, c domain.Collection, key string) (domain.Result, error) {
	var res domain.Result
	var err error
	if c == domain.CollectionExtractions {
		var out grouplink.Outcome
		out, err = w.linker.DeleteExtraction(ctx, key)
		res = out.Result
	} else {
		res, err = w.svc.Delete(ctx, c, key)
	}
	if err != nil {
		return res, err
	}
	w.inbox.Notify(form.Notification{
		Level:      form.LevelSuccess,
		Message:    "Deleted " + string(c) + " " + key,
		Collection: c,
		Key:        key,
	})
	return res, nil
}

// Update merges fields into a record outside any grid.
func (w *Workspace) Update(ctx context.Context, c domain.Collection, key string, fields domain.Document) (domain.Record, domain.Result, error) {
	writer := &notifyingWriter{svc: w.svc, inbox: w.inbox}
	return writer.Update(ctx, c, key, fields)
}

// Replace overwrites a record's whole document.
func (w *Workspace) Replace(ctx context.Context, c domain.Collection, key string, doc domain.Document) (domain.Record, domain.Result, error) {
	rec, res, err := w.svc.Replace(ctx, c, key, doc)
	if err != nil {
		return rec, res, err
	}
	w.inbox.Notify(form.Notification{
		Level:      form.LevelSuccess,
		Message:    "Replaced " + string(c) + " " + key,
		Collection: c,
		Key:        key,
	})
	return rec, res, nil
}
