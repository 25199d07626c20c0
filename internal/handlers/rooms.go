// internal/handlers/rooms.go
package handlers

import (
	"encoding/json"
	"net/http"
)

// RoomsHandler serves the public room listing over plain HTTP, for clients
// that want to browse before opening a websocket.
func (s *Server) RoomsHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(s.Registry.PublicRooms()); err != nil {
		s.Logger.Warnf("Failed to encode room list: %v", err)
	}
}
