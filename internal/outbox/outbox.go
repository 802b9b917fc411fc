// Package outbox keeps terminal session writes that the data source has not
// acknowledged yet, so a finished workout survives a restart. It also holds
// a draft of each owner's open session for restoring without the data source.
package outbox

import (
	"alcyxob/session-tracker/internal/domain"
	"context"
	"errors"
	"sort"
	"sync"
	"time"
)

var (
	ErrInvalidEntry = errors.New("outbox entry requires a session id and a terminal status")
	ErrInvalidDraft = errors.New("session draft requires a session id, an owner and an open status")
)

// Entry is one unsynced session.
type Entry struct {
	Session     domain.Session
	Attempts    int
	LastError   string
	QueuedAt    time.Time
	NextAttempt time.Time
}

// Draft is the last local copy of an owner's open session.
type Draft struct {
	Session domain.Session
	// Carry is running time below a whole second held over a pause.
	Carry   time.Duration
	SavedAt time.Time
}

// Store persists entries keyed by session id. Put replaces an existing entry.
// Drafts are keyed by owner; SaveDraft replaces the owner's previous draft
// and LoadDraft returns nil when there is none.
type Store interface {
	Put(ctx context.Context, entry Entry) error
	List(ctx context.Context) ([]Entry, error)
	Delete(ctx context.Context, sessionID string) error

	SaveDraft(ctx context.Context, draft Draft) error
	LoadDraft(ctx context.Context, ownerID string) (*Draft, error)
	ClearDraft(ctx context.Context, ownerID string) error

	Close() error
}

func validate(e *Entry) error {
	if e.Session.ID == "" || !e.Session.Status.IsTerminal() {
		return ErrInvalidEntry
	}
	if e.QueuedAt.IsZero() {
		e.QueuedAt = time.Now().UTC()
	}
	return nil
}

func validateDraft(d *Draft) error {
	if d.Session.ID == "" || d.Session.OwnerID == "" || !d.Session.Status.IsOpen() {
		return ErrInvalidDraft
	}
	if d.SavedAt.IsZero() {
		d.SavedAt = time.Now().UTC()
	}
	return nil
}

// Memory is a Store that does not survive the process.
type Memory struct {
	mu      sync.Mutex
	entries map[string]Entry
	drafts  map[string]Draft
}

func NewMemory() *Memory {
	return &Memory{entries: map[string]Entry{}, drafts: map[string]Draft{}}
}

func (m *Memory) Put(_ context.Context, entry Entry) error {
	if err := validate(&entry); err != nil {
		return err
	}
	entry.Session = *entry.Session.Clone()
	m.mu.Lock()
	if existing, ok := m.entries[entry.Session.ID]; ok {
		entry.QueuedAt = existing.QueuedAt
	}
	m.entries[entry.Session.ID] = entry
	m.mu.Unlock()
	return nil
}

func (m *Memory) List(context.Context) ([]Entry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Entry, 0, len(m.entries))
	for _, e := range m.entries {
		e.Session = *e.Session.Clone()
		out = append(out, e)
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].QueuedAt.Equal(out[j].QueuedAt) {
			return out[i].QueuedAt.Before(out[j].QueuedAt)
		}
		return out[i].Session.ID < out[j].Session.ID
	})
	return out, nil
}

func (m *Memory) Delete(_ context.Context, sessionID string) error {
	m.mu.Lock()
	delete(m.entries, sessionID)
	m.mu.Unlock()
	return nil
}

func (m *Memory) SaveDraft(_ context.Context, draft Draft) error {
	if err := validateDraft(&draft); err != nil {
		return err
	}
	draft.Session = *draft.Session.Clone()
	m.mu.Lock()
	m.drafts[draft.Session.OwnerID] = draft
	m.mu.Unlock()
	return nil
}

func (m *Memory) LoadDraft(_ context.Context, ownerID string) (*Draft, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	d, ok := m.drafts[ownerID]
	if !ok {
		return nil, nil
	}
	d.Session = *d.Session.Clone()
	return &d, nil
}

func (m *Memory) ClearDraft(_ context.Context, ownerID string) error {
	m.mu.Lock()
	delete(m.drafts, ownerID)
	m.mu.Unlock()
	return nil
}

func (m *Memory) Close() error { return nil }
