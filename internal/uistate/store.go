// Package uistate holds the small shared state any view may read or write
// without prop threading: the selected symbol, the active tab and the
// session snapshot. Last writer wins; nothing here is persisted.
package uistate

import (
	"sync"

	"github.com/quantboard/dashboard-client/internal/api"
)

// Snapshot is a consistent copy of the store.
type Snapshot struct {
	SelectedSymbol string
	ActiveTab      string
	User           *api.User
}

// Store is the shared mutable record. Safe for concurrent use.
type Store struct {
	mu             sync.RWMutex
	selectedSymbol string
	activeTab      string
	user           *api.User

	subs      map[int]func(Snapshot)
	nextSubID int
}

// New creates an empty store.
func New() *Store {
	return &Store{subs: make(map[int]func(Snapshot))}
}

// SetSelectedSymbol records the symbol the user is looking at.
func (s *Store) SetSelectedSymbol(symbol string) {
	s.mu.Lock()
	s.selectedSymbol = symbol
	notify := s.publishLocked()
	s.mu.Unlock()
	notify()
}

// SelectedSymbol returns the current symbol.
func (s *Store) SelectedSymbol() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.selectedSymbol
}

// SetActiveTab records the open tab.
func (s *Store) SetActiveTab(tab string) {
	s.mu.Lock()
	s.activeTab = tab
	notify := s.publishLocked()
	s.mu.Unlock()
	notify()
}

// ActiveTab returns the open tab.
func (s *Store) ActiveTab() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.activeTab
}

// SetUser records the session snapshot. The session client writes this on
// login and clears it on logout.
func (s *Store) SetUser(user *api.User) {
	s.mu.Lock()
	s.user = user
	notify := s.publishLocked()
	s.mu.Unlock()
	notify()
}

// User returns the session snapshot, or nil when signed out.
func (s *Store) User() *api.User {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.user
}

// Snapshot returns a consistent copy of all fields.
func (s *Store) Snapshot() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.snapshotLocked()
}

// Subscribe registers fn for every change and returns its unsubscribe
// function.
func (s *Store) Subscribe(fn func(Snapshot)) func() {
	s.mu.Lock()
	id := s.nextSubID
	s.nextSubID++
	s.subs[id] = fn
	s.mu.Unlock()

	return func() {
		s.mu.Lock()
		delete(s.subs, id)
		s.mu.Unlock()
	}
}

// Reset clears all fields, as a full reload would.
func (s *Store) Reset() {
	s.mu.Lock()
	s.selectedSymbol = ""
	s.activeTab = ""
	s.user = nil
	notify := s.publishLocked()
	s.mu.Unlock()
	notify()
}

func (s *Store) snapshotLocked() Snapshot {
	return Snapshot{
		SelectedSymbol: s.selectedSymbol,
		ActiveTab:      s.activeTab,
		User:           s.user,
	}
}

func (s *Store) publishLocked() func() {
	if len(s.subs) == 0 {
		return func() {}
	}
	subs := make([]func(Snapshot), 0, len(s.subs))
	for _, fn := range s.subs {
		subs = append(subs, fn)
	}
	snap := s.snapshotLocked()
	return func() {
		for _, fn := range subs {
			fn(snap)
		}
	}
}
