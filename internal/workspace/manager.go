package workspace

import (
	"context"
	"errors"
	"sync"

	"molluscadb/internal/core"
)

// Manager keeps one workspace per signed-in identity.
type Manager struct {
	svc     *core.Service
	onCount func(int)

	mu     sync.Mutex
	spaces map[string]*Workspace
}

// NewManager returns a manager opening workspaces over svc. onCount, when not
// nil, receives the number of open workspaces after every change.
func NewManager(svc *core.Service, onCount func(int)) *Manager {
	return &Manager{svc: svc, onCount: onCount, spaces: make(map[string]*Workspace)}
}

// Get returns the workspace of identity, opening it on first use.
func (m *Manager) Get(ctx context.Context, identity string) (*Workspace, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if ws, ok := m.spaces[identity]; ok {
		return ws, nil
	}
	ws, err := Open(ctx, m.svc, identity)
	if err != nil {
		return nil, err
	}
	m.spaces[identity] = ws
	m.report()
	return ws, nil
}

// Release closes and forgets the workspace of identity.
func (m *Manager) Release(identity string) error {
	m.mu.Lock()
	ws, ok := m.spaces[identity]
	delete(m.spaces, identity)
	m.report()
	m.mu.Unlock()
	if !ok {
		return nil
	}
	return ws.Close()
}

// Close releases every workspace.
func (m *Manager) Close() error {
	m.mu.Lock()
	spaces := m.spaces
	m.spaces = make(map[string]*Workspace)
	m.report()
	m.mu.Unlock()
	var errs []error
	for _, ws := range spaces {
		if err := ws.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Len returns the number of open workspaces.
func (m *Manager) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.spaces)
}

func (m *Manager) report() {
	if m.onCount != nil {
		m.onCount(len(m.spaces))
	}
}
