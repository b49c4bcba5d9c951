package blob

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"path"
	"strings"
	"time"
)

const (
	archivePrefix = "exports"
	csvType       = "text/csv"
	stampLayout   = "20060102T150405Z"
)

// Archive keeps a copy of every CSV export under
// exports/<view>/<timestamp>-<file>.
type Archive struct {
	store Store
	now   func() time.Time
}

// NewArchive wraps store. A nil now uses the wall clock.
func NewArchive(store Store, now func() time.Time) *Archive {
	if now == nil {
		now = func() time.Time { return time.Now().UTC() }
	}
	return &Archive{store: store, now: now}
}

// Store returns the backing store.
func (a *Archive) Store() Store { return a.store }

// Save stores data for view. Same-second exports get a numeric suffix.
func (a *Archive) Save(ctx context.Context, view, file string, data []byte, metadata map[string]string) (Object, error) {
	if view == "" || file == "" {
		return Object{}, errors.New("archive: view and file required")
	}
	stamp := a.now().UTC().Format(stampLayout)
	base := path.Join(archivePrefix, view, stamp+"-"+path.Base(file))
	key := base
	for attempt := 2; ; attempt++ {
		obj, err := a.store.Put(ctx, key, bytes.NewReader(data), PutOptions{ContentType: csvType, Metadata: metadata})
		if err == nil {
			return obj, nil
		}
		if !errors.Is(err, ErrExists) || attempt > 100 {
			return Object{}, fmt.Errorf("archive %s: %w", view, err)
		}
		ext := path.Ext(base)
		key = fmt.Sprintf("%s-%d%s", strings.TrimSuffix(base, ext), attempt, ext)
	}
}

// List returns archived exports, all views when view is empty.
func (a *Archive) List(ctx context.Context, view string) ([]Object, error) {
	prefix := archivePrefix + "/"
	if view != "" {
		prefix += view + "/"
	}
	return a.store.List(ctx, prefix)
}

// Open streams an archived export.
func (a *Archive) Open(ctx context.Context, key string) (Object, io.ReadCloser, error) {
	if !strings.HasPrefix(key, archivePrefix+"/") {
		return Object{}, nil, fmt.Errorf("%w: %s", ErrNotFound, key)
	}
	return a.store.Get(ctx, key)
}
