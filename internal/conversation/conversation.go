// Package conversation tracks per-user dialog state.
//
// Each user owns one State guarded by a per-user lock, so two deliveries
// from the same user can never interleave their mode transitions.
package conversation

import "sync"

// Mode is the user's current dialog mode.
type Mode int

const (
	// ModeIdle: links are transferred without minting a share.
	ModeIdle Mode = iota
	// ModeTransferShare: the next transferred link also gets a fresh
	// share link; reverts to ModeIdle after that transfer.
	ModeTransferShare
	// ModeSearch: free text runs a drive search.
	ModeSearch
	// ModeAwaitingBanInput: the next message is parsed as banned
	// keywords; consumed by exactly one message.
	ModeAwaitingBanInput
)

func (m Mode) String() string {
	switch m {
	case ModeTransferShare:
		return "transfer_share"
	case ModeSearch:
		return "search"
	case ModeAwaitingBanInput:
		return "awaiting_ban_input"
	default:
		return "idle"
	}
}

// Item is one cached search result row.
type Item struct {
	FID  string
	Name string
	Path string
	Dir  bool
	Size int64
}

// SearchResults caches the user's last search for pagination and
// index selection.
type SearchResults struct {
	Keyword     string
	Items       []Item
	FileCount   int
	FolderCount int
	Page        int // 1-based
}

// State is one user's dialog state.
type State struct {
	Mode    Mode
	Results *SearchResults
}

// HasResults reports whether a cached search result set exists.
func (s *State) HasResults() bool {
	return s.Results != nil && len(s.Results.Items) > 0
}

// Store holds per-user states. The zero value is not usable; call NewStore.
type Store struct {
	mu    sync.Mutex
	users map[string]*userState
}

type userState struct {
	mu    sync.Mutex
	state State
}

// NewStore creates an empty store.
func NewStore() *Store {
	return &Store{users: make(map[string]*userState)}
}

func (s *Store) user(userID string) *userState {
	s.mu.Lock()
	defer s.mu.Unlock()

	u, ok := s.users[userID]
	if !ok {
		u = &userState{}
		s.users[userID] = u
	}
	return u
}

// Do runs fn with exclusive access to the user's state. Handling for one
// user is fully serialized; other users proceed in parallel.
func (s *Store) Do(userID string, fn func(st *State)) {
	u := s.user(userID)
	u.mu.Lock()
	defer u.mu.Unlock()
	fn(&u.state)
}

// Snapshot returns a copy of the user's state, for logging and tests.
func (s *Store) Snapshot(userID string) State {
	var out State
	s.Do(userID, func(st *State) { out = *st })
	return out
}
