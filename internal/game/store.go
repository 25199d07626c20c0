// internal/game/store.go
package game

import "sync"

// Store manages the active per-room sessions in memory only. Safe for
// concurrent use; one session per room at most.
type Store struct {
	mu    sync.Mutex
	games map[string]*TriviaGame
}

func NewStore() *Store {
	return &Store{
		games: make(map[string]*TriviaGame),
	}
}

// Add registers a session for its room. Returns false if the room already
// has one, in which case the new session is rejected.
func (s *Store) Add(g *TriviaGame) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.games[g.RoomID]; exists {
		return false
	}
	s.games[g.RoomID] = g
	return true
}

// Get retrieves the session for a room if one exists.
func (s *Store) Get(roomID string) (*TriviaGame, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	g, ok := s.games[roomID]
	return g, ok
}

// Delete removes a room's session from memory.
func (s *Store) Delete(roomID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.games, roomID)
}
