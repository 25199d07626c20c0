package models

import (
	"time"

	"github.com/google/uuid"
)

// GameMode selects how each round's secret answer is sourced.
type GameMode string

const (
	// GameModeStandard pulls a random topic from the topic pool each round.
	GameModeStandard GameMode = "standard"
	// GameModeCustom rotates through the players, letting each pick the answer.
	GameModeCustom GameMode = "custom"
)

// RoomState is the coarse lifecycle of a room.
type RoomState string

const (
	RoomStateLobby    RoomState = "lobby"
	RoomStatePlaying  RoomState = "playing"
	RoomStateFinished RoomState = "finished"
)

// RoomSettings are host-tunable knobs, applied to every round of a game.
type RoomSettings struct {
	WrongAnswerPenalty int      `json:"wrongAnswerPenalty"` // always <= 0
	IsPublic           bool     `json:"isPublic"`
	GameMode           GameMode `json:"gameMode"`
}

// SettingsPatch carries a partial settings update; nil fields are left untouched.
type SettingsPatch struct {
	WrongAnswerPenalty *int      `json:"wrongAnswerPenalty,omitempty"`
	IsPublic           *bool     `json:"isPublic,omitempty"`
	GameMode           *GameMode `json:"gameMode,omitempty"`
}

// Room holds membership, settings and score state for one trivia room.
// Exactly one player has IsHost set while the room is non-empty.
type Room struct {
	ID        string       `json:"id"`
	Name      string       `json:"name"`
	HostID    uuid.UUID    `json:"hostId"`
	Players   []Player     `json:"players"`
	Settings  RoomSettings `json:"settings"`
	State     RoomState    `json:"state"`
	CreatedAt time.Time    `json:"createdAt"`
}

// RoomSummary is the public listing entry for a room in the lobby state.
type RoomSummary struct {
	ID           string `json:"id"`
	Name         string `json:"name"`
	PlayerCount  int    `json:"playerCount"`
	HostNickname string `json:"hostNickname"`
}
