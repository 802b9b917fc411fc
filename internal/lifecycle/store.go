// Package lifecycle owns the current session of one actor. The Controller
// applies lifecycle operations optimistically and reconciles them with the
// data source; the Store publishes the resulting state to every surface.
package lifecycle

import (
	"alcyxob/session-tracker/internal/domain"
	"alcyxob/session-tracker/internal/recovery"
	"sort"
	"sync"
	"time"
)

// State is a snapshot of the controller's view. Snapshots never share memory
// with the store.
type State struct {
	Current         *domain.Session
	History         []domain.Session // newest first
	Analytics       *domain.Analytics
	AnalyticsOrigin recovery.Origin
	// Pending maps in-flight actions to their reconciliation token.
	Pending   map[domain.Action]string
	Unsynced  []string
	LastError string
	Version   uint64

	// base is the last analytics fetched from the data source. Shared
	// between snapshots, never mutated.
	base *analyticsBase
	// carry is the running time below a whole second held by a paused session.
	carry time.Duration
}

// analyticsBase pairs fetched analytics with the status each session had
// when they were computed.
type analyticsBase struct {
	analytics domain.Analytics
	known     map[string]domain.SessionStatus
}

// InFlight reports whether action is awaiting the data source.
func (s State) InFlight(action domain.Action) bool {
	_, ok := s.Pending[action]
	return ok
}

// IsUnsynced reports whether the session with id has a local change the data
// source has not acknowledged.
func (s State) IsUnsynced(id string) bool {
	for _, u := range s.Unsynced {
		if u == id {
			return true
		}
	}
	return false
}

func (s State) clone() State {
	out := s
	out.Current = s.Current.Clone()
	if s.History != nil {
		out.History = make([]domain.Session, len(s.History))
		for i := range s.History {
			out.History[i] = *s.History[i].Clone()
		}
	}
	if s.Analytics != nil {
		a := *s.Analytics
		a.FavoriteExercises = append([]string(nil), s.Analytics.FavoriteExercises...)
		a.WeeklyProgress = append([]domain.WeeklyProgress(nil), s.Analytics.WeeklyProgress...)
		out.Analytics = &a
	}
	out.Pending = make(map[domain.Action]string, len(s.Pending))
	for k, v := range s.Pending {
		out.Pending[k] = v
	}
	out.Unsynced = append([]string(nil), s.Unsynced...)
	return out
}

// Store is the observable holder of State.
type Store struct {
	mu        sync.RWMutex
	state     State
	listeners map[int]func(State)
	nextID    int
}

func NewStore() *Store {
	return &Store{
		state:     State{Pending: map[domain.Action]string{}},
		listeners: map[int]func(State){},
	}
}

// Snapshot returns a deep copy of the current state.
func (s *Store) Snapshot() State {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state.clone()
}

// Subscribe registers fn to receive a snapshot after every update. The
// returned func unsubscribes.
func (s *Store) Subscribe(fn func(State)) func() {
	s.mu.Lock()
	id := s.nextID
	s.nextID++
	s.listeners[id] = fn
	s.mu.Unlock()
	return func() {
		s.mu.Lock()
		delete(s.listeners, id)
		s.mu.Unlock()
	}
}

// update applies fn under the write lock and notifies listeners. fn returns
// false to skip publishing.
func (s *Store) update(fn func(st *State) bool) {
	s.mu.Lock()
	if !fn(&s.state) {
		s.mu.Unlock()
		return
	}
	s.state.Version++
	snap := s.state.clone()
	fns := make([]func(State), 0, len(s.listeners))
	for _, l := range s.listeners {
		fns = append(fns, l)
	}
	s.mu.Unlock()
	for _, fn := range fns {
		fn(snap.clone())
	}
}

// upsertHistory inserts or replaces s in history, newest first, trimmed to limit.
func upsertHistory(history []domain.Session, s *domain.Session, limit int) []domain.Session {
	out := make([]domain.Session, 0, len(history)+1)
	out = append(out, *s.Clone())
	for i := range history {
		if history[i].ID != s.ID {
			out = append(out, history[i])
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].StartTime.After(out[j].StartTime)
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out
}

func addUnsynced(ids []string, id string) []string {
	for _, u := range ids {
		if u == id {
			return ids
		}
	}
	return append(ids, id)
}

func removeUnsynced(ids []string, id string) []string {
	out := ids[:0:0]
	for _, u := range ids {
		if u != id {
			out = append(out, u)
		}
	}
	return out
}
