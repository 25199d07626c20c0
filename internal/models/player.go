package models

import "github.com/google/uuid"

// Player is one room member. Nicknames are unique per room, case-insensitively.
type Player struct {
	ID       uuid.UUID `json:"id"`
	Nickname string    `json:"nickname"`
	Score    int       `json:"score"`
	IsHost   bool      `json:"isHost"`
}

// PlayerRef is a lightweight id+nickname pair used inside game events
// (buzzed player, current picker) where the full Player is not needed.
type PlayerRef struct {
	ID       uuid.UUID `json:"id"`
	Nickname string    `json:"nickname"`
}
