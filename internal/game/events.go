// internal/game/events.go
package game

import "github.com/google/uuid"

// GameEventType is an enum-like type for broadcasting game transitions.
type GameEventType string

const (
	EventGameStarted     GameEventType = "game_started"     // carries the game mode
	EventLoading         GameEventType = "loading"          // round load in flight
	EventPickingPhase    GameEventType = "picking_phase"    // custom mode: waiting on the picker
	EventPickerError     GameEventType = "picker_error"     // direct to the picker; no auto retry
	EventPickerScored    GameEventType = "picker_scored"    // custom mode round resolution
	EventQuestionReady   GameEventType = "question_ready"   // clues generated, revealing begins
	EventClueRevealed    GameEventType = "clue_revealed"    // next clue + current point value
	EventPlayerBuzzed    GameEventType = "player_buzzed"    // buzz accepted, answer window armed
	EventAnswerResult    GameEventType = "answer_result"    // graded answer, either direction
	EventAnswerTimeout   GameEventType = "answer_timeout"   // answer window elapsed
	EventResumeRevealing GameEventType = "resume_revealing" // others may buzz again
	EventQuestionSkipped GameEventType = "question_skipped" // host advanced with no correct answer
	EventGameEnded       GameEventType = "game_ended"       // final standings
	EventGameError       GameEventType = "game_error"       // recoverable load failure, retry pending
)

// GameEvent is the broadcast envelope for everything the engine emits.
type GameEvent struct {
	Type    GameEventType          `json:"type"`
	Payload map[string]interface{} `json:"payload,omitempty"`
}

// BroadcastFunc delivers an event to every player in the game's room.
type BroadcastFunc func(ev GameEvent)

// BroadcastToPlayerFunc delivers an event to a single player.
type BroadcastToPlayerFunc func(playerID uuid.UUID, ev GameEvent)
