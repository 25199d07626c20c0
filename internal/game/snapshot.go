// internal/game/snapshot.go
package game

import (
	"github.com/ddebettencourt/kwizniac-infinite/internal/models"
)

// Snapshot carries everything a late joiner needs to render the live round:
// phase, revealed clues, current point value, buzz state and picker.
type Snapshot struct {
	RoomID            string            `json:"roomId"`
	GameMode          models.GameMode   `json:"gameMode"`
	Phase             Phase             `json:"phase"`
	QuestionNumber    int               `json:"questionNumber"`
	IsLoadingQuestion bool              `json:"isLoadingQuestion"`
	RevealedClues     []models.Clue     `json:"revealedClues"`
	TotalClues        int               `json:"totalClues"`
	CurrentPoints     int               `json:"currentPoints"`
	Obscurity         *int              `json:"obscurity,omitempty"`
	BuzzedPlayer      *models.PlayerRef `json:"buzzedPlayer,omitempty"`
	TimerEnd          int64             `json:"timerEnd,omitempty"` // unix millis, zero if no pending answer window
	CurrentPicker     *models.PlayerRef `json:"currentPicker,omitempty"`
}

// CurrentSnapshot captures the session state for a mid-game sync.
func (g *TriviaGame) CurrentSnapshot() Snapshot {
	g.Mu.Lock()
	defer g.Mu.Unlock()

	snap := Snapshot{
		RoomID:            g.RoomID,
		GameMode:          g.Mode,
		Phase:             g.Phase,
		QuestionNumber:    g.QuestionNumber,
		IsLoadingQuestion: g.IsLoadingQuestion,
		RevealedClues:     append([]models.Clue(nil), g.RevealedClues...),
	}

	if g.CurrentQuestion != nil {
		snap.TotalClues = len(g.CurrentQuestion.Clues)
		obscurity := g.CurrentQuestion.Obscurity
		snap.Obscurity = &obscurity
		// The value at stake for the next correct answer. Before the first
		// reveal the full 10 points are still on the table.
		k := len(g.RevealedClues)
		if k == 0 {
			k = 1
		}
		snap.CurrentPoints = CluePointValue(k)
	}
	if g.BuzzedPlayer != nil {
		buzzed := *g.BuzzedPlayer
		snap.BuzzedPlayer = &buzzed
		if !g.AnswerDeadline.IsZero() {
			snap.TimerEnd = g.AnswerDeadline.UnixMilli()
		}
	}
	if g.CurrentPicker != nil {
		picker := *g.CurrentPicker
		snap.CurrentPicker = &picker
	}
	return snap
}
