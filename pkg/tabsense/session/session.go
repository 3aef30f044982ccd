// Package session keeps uploaded tables between pipeline stages for the
// HTTP API. A session holds the latest table version; stages replace it.
package session

import (
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/cognicore/tabsense/pkg/tabsense/csvio"
	"github.com/cognicore/tabsense/pkg/tabsense/internalerr"
	"github.com/cognicore/tabsense/pkg/tabsense/table"
)

// Info describes a session without its table.
type Info struct {
	ID        string          `json:"id"`
	Name      string          `json:"name,omitempty"`
	Columns   []string        `json:"columns"`
	Rows      int             `json:"rows"`
	Warnings  []csvio.Warning `json:"warnings,omitempty"`
	CreatedAt time.Time       `json:"createdAt"`
	UpdatedAt time.Time       `json:"updatedAt"`
}

type entry struct {
	// mu serialises stages on one session so concurrent updates are not lost.
	mu sync.Mutex

	id        string
	name      string
	warnings  []csvio.Warning
	createdAt time.Time

	state     sync.Mutex // guards tbl and updatedAt
	tbl       *table.Table
	updatedAt time.Time
}

// Registry is an in-memory set of sessions, safe for concurrent use.
type Registry struct {
	mu       sync.RWMutex
	sessions map[string]*entry
	now      func() time.Time
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{sessions: make(map[string]*entry), now: time.Now}
}

// Create stores a new table and returns its session.
func (r *Registry) Create(name string, tbl *table.Table, warnings []csvio.Warning) (Info, error) {
	if tbl == nil {
		return Info{}, fmt.Errorf("%w: nil table", internalerr.ErrInvalidConfig)
	}
	now := r.now()
	e := &entry{
		id:        ulid.Make().String(),
		name:      name,
		warnings:  append([]csvio.Warning(nil), warnings...),
		createdAt: now,
		tbl:       tbl,
		updatedAt: now,
	}
	r.mu.Lock()
	r.sessions[e.id] = e
	r.mu.Unlock()
	return e.info(), nil
}

// Get returns the session's current table. Tables are immutable, so the
// caller may read it freely.
func (r *Registry) Get(id string) (*table.Table, Info, error) {
	e, err := r.lookup(id)
	if err != nil {
		return nil, Info{}, err
	}
	e.state.Lock()
	defer e.state.Unlock()
	return e.tbl, e.infoLocked(), nil
}

// Update runs fn on the current table and stores the table it returns.
// Updates on one session run one at a time; reads are not blocked. When fn
// fails the session is unchanged.
func (r *Registry) Update(id string, fn func(*table.Table) (*table.Table, error)) (Info, error) {
	e, err := r.lookup(id)
	if err != nil {
		return Info{}, err
	}
	e.mu.Lock()
	defer e.mu.Unlock()

	e.state.Lock()
	current := e.tbl
	e.state.Unlock()

	next, err := fn(current)
	if err != nil {
		return Info{}, err
	}
	if next == nil {
		return Info{}, fmt.Errorf("%w: stage returned no table", internalerr.ErrInvalidConfig)
	}

	e.state.Lock()
	e.tbl = next
	e.updatedAt = r.now()
	info := e.infoLocked()
	e.state.Unlock()
	return info, nil
}

// Delete removes a session.
func (r *Registry) Delete(id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.sessions[id]; !ok {
		return fmt.Errorf("session %q: %w", id, internalerr.ErrNotFound)
	}
	delete(r.sessions, id)
	return nil
}

// List returns every session, oldest first.
func (r *Registry) List() []Info {
	r.mu.RLock()
	out := make([]Info, 0, len(r.sessions))
	for _, e := range r.sessions {
		out = append(out, e.info())
	}
	r.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Prune removes sessions not updated within ttl and returns how many
// were removed.
func (r *Registry) Prune(ttl time.Duration) int {
	cutoff := r.now().Add(-ttl)
	r.mu.Lock()
	defer r.mu.Unlock()
	removed := 0
	for id, e := range r.sessions {
		e.state.Lock()
		stale := e.updatedAt.Before(cutoff)
		e.state.Unlock()
		if stale {
			delete(r.sessions, id)
			removed++
		}
	}
	return removed
}

// Len returns the number of live sessions.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sessions)
}

func (r *Registry) lookup(id string) (*entry, error) {
	r.mu.RLock()
	e, ok := r.sessions[id]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("session %q: %w", id, internalerr.ErrNotFound)
	}
	return e, nil
}

func (e *entry) info() Info {
	e.state.Lock()
	defer e.state.Unlock()
	return e.infoLocked()
}

func (e *entry) infoLocked() Info {
	return Info{
		ID:        e.id,
		Name:      e.name,
		Columns:   e.tbl.Columns(),
		Rows:      e.tbl.Len(),
		Warnings:  e.warnings,
		CreatedAt: e.createdAt,
		UpdatedAt: e.updatedAt,
	}
}
