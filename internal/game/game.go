// internal/game/game.go
package game

import (
	"context"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"

	"github.com/ddebettencourt/kwizniac-infinite/internal/models"
	"github.com/ddebettencourt/kwizniac-infinite/internal/room"
)

// Phase is the named state of one room's game state machine.
type Phase string

const (
	PhaseLoading   Phase = "loading"
	PhasePicking   Phase = "picking" // custom mode only
	PhaseRevealing Phase = "revealing"
	PhaseBuzzing   Phase = "buzzing"
	PhaseAnswered  Phase = "answered"
)

// TopicSource supplies a random non-repeating topic string for standard mode.
type TopicSource interface {
	NextTopic(ctx context.Context) (string, error)
}

// ClueSource turns a topic into ten ordered clues plus a 0-10 obscurity score.
type ClueSource interface {
	Clues(ctx context.Context, topic string) ([]models.Clue, int, error)
}

// Grader judges a player's answer against the secret answer, leniently.
type Grader interface {
	IsCorrect(ctx context.Context, expected, given string) bool
}

// OnGameEndFunc receives the final standings once a game is torn down.
type OnGameEndFunc func(roomID string, roundsPlayed int, standings []models.Player)

const oracleCallTimeout = 90 * time.Second

// TriviaGame holds the entire per-room session state in memory. Handlers for
// the same game serialize on Mu; the oracle calls are the only operations
// that run outside the lock, and their completions re-validate the captured
// generation before touching state (the staleness guard).
type TriviaGame struct {
	RoomID string
	Mode   models.GameMode

	Mu sync.Mutex

	Phase             Phase
	QuestionNumber    int
	CurrentQuestion   *models.RoundQuestion
	RevealedClues     []models.Clue
	BuzzedPlayer      *models.PlayerRef
	AnswerDeadline    time.Time
	IsLoadingQuestion bool

	// Custom mode round-robin picker cursor. Indexes into the room's current
	// player list by position, so membership churn can shift whose turn it is.
	PickerIndex       int
	CurrentPicker     *models.PlayerRef
	RoundPointsEarned []int
	WrongGuessCount   int

	// generation increments on every round entry and on teardown. Every async
	// completion and deferred timer captures it and compares under the lock
	// before acting; a mismatch means the result is stale and is dropped.
	generation uint64
	over       bool

	answerTimer *time.Timer

	Registry *room.Registry
	Topics   TopicSource
	Clues    ClueSource
	Grader   Grader

	// Timings, overridable in tests.
	StartDelay   time.Duration // custom mode: pause before the first picking phase
	AdvanceDelay time.Duration // pause between rounds
	RetryDelay   time.Duration // pause before retrying a failed standard-mode load
	AnswerWindow time.Duration // time the buzzed player has to answer

	// BroadcastFn sends an event to every player in the room. If nil, no
	// broadcast is done.
	BroadcastFn BroadcastFunc

	// BroadcastToPlayerFn sends an event to a single specific player.
	BroadcastToPlayerFn BroadcastToPlayerFunc

	// OnGameEnd is invoked after the final standings broadcast.
	OnGameEnd OnGameEndFunc
}

// NewTriviaGame builds a fresh session for a room. The caller wires the
// broadcast functions and oracles before Start.
func NewTriviaGame(roomID string, mode models.GameMode, registry *room.Registry) *TriviaGame {
	return &TriviaGame{
		RoomID:       roomID,
		Mode:         mode,
		Phase:        PhaseLoading,
		Registry:     registry,
		StartDelay:   500 * time.Millisecond,
		AdvanceDelay: 2 * time.Second,
		RetryDelay:   3 * time.Second,
		AnswerWindow: 15 * time.Second,
	}
}

func (g *TriviaGame) broadcast(ev GameEvent) {
	if g.BroadcastFn != nil {
		g.BroadcastFn(ev)
	}
}

func (g *TriviaGame) broadcastToPlayer(playerID uuid.UUID, ev GameEvent) {
	if g.BroadcastToPlayerFn != nil {
		g.BroadcastToPlayerFn(playerID, ev)
	}
}

// Start marks the room as playing and kicks off the first round: an immediate
// load in standard mode, or a short pause then the picking phase in custom
// mode so clients can switch views first.
func (g *TriviaGame) Start() {
	g.Registry.SetState(g.RoomID, models.RoomStatePlaying)

	g.Mu.Lock()
	gen := g.generation
	g.broadcast(GameEvent{Type: EventGameStarted, Payload: map[string]interface{}{
		"gameMode": g.Mode,
	}})
	g.Mu.Unlock()

	log.Infof("[%s] game started (mode=%s)", g.RoomID, g.Mode)

	if g.Mode == models.GameModeCustom {
		time.AfterFunc(g.StartDelay, func() {
			g.Mu.Lock()
			stale := g.over || g.generation != gen
			g.Mu.Unlock()
			if !stale {
				g.BeginPickingPhase()
			}
		})
		return
	}
	g.LoadNextQuestion()
}

// resetRoundLocked clears all per-round trackers. Caller holds Mu.
func (g *TriviaGame) resetRoundLocked() {
	g.CurrentQuestion = nil
	g.RevealedClues = nil
	g.BuzzedPlayer = nil
	g.CurrentPicker = nil
	g.RoundPointsEarned = nil
	g.WrongGuessCount = 0
	g.stopAnswerTimerLocked()
}

// stopAnswerTimerLocked cancels a pending answer timeout. Every exit path
// from the buzzing phase runs through here. Caller holds Mu.
func (g *TriviaGame) stopAnswerTimerLocked() {
	if g.answerTimer != nil {
		g.answerTimer.Stop()
		g.answerTimer = nil
	}
	g.AnswerDeadline = time.Time{}
}

// LoadNextQuestion starts a standard-mode round: pick a topic, generate
// clues, then open revealing. A no-op while a load is already in flight.
func (g *TriviaGame) LoadNextQuestion() {
	g.Mu.Lock()
	if g.over || g.IsLoadingQuestion {
		g.Mu.Unlock()
		return
	}
	g.IsLoadingQuestion = true
	g.Phase = PhaseLoading
	g.QuestionNumber++
	g.generation++
	g.resetRoundLocked()

	gen := g.generation
	num := g.QuestionNumber
	g.broadcast(GameEvent{Type: EventLoading, Payload: map[string]interface{}{
		"questionNumber": num,
	}})
	g.Mu.Unlock()

	log.Infof("[%s] loading question #%d", g.RoomID, num)
	go g.fetchQuestion(gen, num, "", nil)
}

// BeginPickingPhase starts a custom-mode round by selecting the picker at the
// cursor position in the room's current player list.
func (g *TriviaGame) BeginPickingPhase() {
	g.Mu.Lock()
	defer g.Mu.Unlock()
	if g.over {
		return
	}
	rm, ok := g.Registry.Snapshot(g.RoomID)
	if !ok || len(rm.Players) == 0 {
		return
	}

	g.QuestionNumber++
	g.generation++
	g.resetRoundLocked()
	g.IsLoadingQuestion = false
	g.Phase = PhasePicking

	picker := rm.Players[g.PickerIndex%len(rm.Players)]
	g.CurrentPicker = &models.PlayerRef{ID: picker.ID, Nickname: picker.Nickname}

	log.Infof("[%s] question #%d: picker is %s", g.RoomID, g.QuestionNumber, picker.Nickname)

	g.broadcast(GameEvent{Type: EventPickingPhase, Payload: map[string]interface{}{
		"questionNumber": g.QuestionNumber,
		"picker":         *g.CurrentPicker,
	}})
}

// HandlePickerSubmit accepts the picker's secret answer and loads clues for
// it. Submissions from anyone but the current picker, outside the picking
// phase, or shorter than two characters are dropped silently.
func (g *TriviaGame) HandlePickerSubmit(playerID uuid.UUID, answer string) {
	g.Mu.Lock()
	if g.over || g.Phase != PhasePicking {
		g.Mu.Unlock()
		return
	}
	if g.CurrentPicker == nil || g.CurrentPicker.ID != playerID {
		g.Mu.Unlock()
		return
	}
	topic := strings.TrimSpace(answer)
	if utf8.RuneCountInString(topic) < 2 {
		g.Mu.Unlock()
		return
	}

	g.IsLoadingQuestion = true
	g.Phase = PhaseLoading

	gen := g.generation
	num := g.QuestionNumber
	picker := *g.CurrentPicker
	g.broadcast(GameEvent{Type: EventLoading, Payload: map[string]interface{}{
		"questionNumber": num,
		"picker":         picker,
	}})
	g.Mu.Unlock()

	log.Infof("[%s] question #%d: picker chose %q", g.RoomID, num, topic)
	go g.fetchQuestion(gen, num, topic, &picker)
}

// fetchQuestion performs the suspending oracle calls for one round. pickedTopic
// is empty in standard mode; picker is non-nil in custom mode. The captured
// generation guards against the round having moved on during the calls.
func (g *TriviaGame) fetchQuestion(gen uint64, num int, pickedTopic string, picker *models.PlayerRef) {
	ctx, cancel := context.WithTimeout(context.Background(), oracleCallTimeout)
	defer cancel()

	topic := pickedTopic
	var err error
	if topic == "" {
		topic, err = g.Topics.NextTopic(ctx)
	}

	var clues []models.Clue
	var obscurity int
	if err == nil {
		clues, obscurity, err = g.Clues.Clues(ctx, topic)
	}

	g.Mu.Lock()
	defer g.Mu.Unlock()

	if g.over || g.generation != gen {
		log.Infof("[%s] question #%d: stale result, discarding", g.RoomID, num)
		return
	}

	if err != nil {
		log.Warnf("[%s] question #%d: load failed: %v", g.RoomID, num, err)
		g.IsLoadingQuestion = false

		if picker != nil {
			// Custom mode: hand the round back to the picker, no auto retry.
			g.Phase = PhasePicking
			g.CurrentPicker = picker
			g.broadcastToPlayer(picker.ID, GameEvent{Type: EventPickerError, Payload: map[string]interface{}{
				"message": "Failed to generate clues for that answer. Try something else!",
			}})
			return
		}

		g.broadcast(GameEvent{Type: EventGameError, Payload: map[string]interface{}{
			"message": "Failed to generate question. Retrying...",
		}})
		g.scheduleRetryLocked(gen, num)
		return
	}

	g.CurrentQuestion = &models.RoundQuestion{
		Answer:    topic,
		Clues:     clues,
		Obscurity: obscurity,
		PickedBy:  picker,
	}
	g.Phase = PhaseRevealing
	g.IsLoadingQuestion = false

	payload := map[string]interface{}{
		"questionNumber": num,
		"totalClues":     len(clues),
		"obscurity":      obscurity,
	}
	if picker != nil {
		payload["picker"] = *picker
	}
	g.broadcast(GameEvent{Type: EventQuestionReady, Payload: payload})

	log.Infof("[%s] question #%d ready (obscurity %d/10)", g.RoomID, num, obscurity)
}

// scheduleRetryLocked re-attempts the same standard-mode round after a delay.
// Retries are unbounded; the generation and phase re-check stops them once
// the room has moved on or been torn down. Caller holds Mu.
func (g *TriviaGame) scheduleRetryLocked(gen uint64, num int) {
	time.AfterFunc(g.RetryDelay, func() {
		g.Mu.Lock()
		if g.over || g.generation != gen || g.Phase != PhaseLoading || g.IsLoadingQuestion {
			g.Mu.Unlock()
			return
		}
		g.IsLoadingQuestion = true
		g.broadcast(GameEvent{Type: EventLoading, Payload: map[string]interface{}{
			"questionNumber": num,
		}})
		g.Mu.Unlock()

		log.Infof("[%s] retrying question #%d", g.RoomID, num)
		go g.fetchQuestion(gen, num, "", nil)
	})
}

// RevealNextClue appends the next clue, hardest to easiest, and announces it
// with the round's current point value. Past ten clues it is a no-op. Host
// permission is enforced by the transport layer.
func (g *TriviaGame) RevealNextClue() {
	g.Mu.Lock()
	defer g.Mu.Unlock()
	if g.over || g.Phase != PhaseRevealing || g.CurrentQuestion == nil {
		return
	}
	idx := len(g.RevealedClues)
	if idx >= len(g.CurrentQuestion.Clues) {
		return
	}

	clue := g.CurrentQuestion.Clues[idx]
	g.RevealedClues = append(g.RevealedClues, clue)

	g.broadcast(GameEvent{Type: EventClueRevealed, Payload: map[string]interface{}{
		"clue":          clue,
		"cluesRevealed": len(g.RevealedClues),
		"currentPoints": CluePointValue(len(g.RevealedClues)),
	}})
}

// HandleBuzz claims the answering right for a player. Only one buzz can be
// pending at a time; in custom mode the picker's buzz is always rejected.
func (g *TriviaGame) HandleBuzz(playerID uuid.UUID, nickname string) {
	g.Mu.Lock()
	defer g.Mu.Unlock()
	if g.over || g.Phase != PhaseRevealing || g.BuzzedPlayer != nil {
		return
	}
	if g.Mode == models.GameModeCustom && g.CurrentPicker != nil && g.CurrentPicker.ID == playerID {
		return
	}

	g.Phase = PhaseBuzzing
	g.BuzzedPlayer = &models.PlayerRef{ID: playerID, Nickname: nickname}
	g.AnswerDeadline = time.Now().Add(g.AnswerWindow)

	gen := g.generation
	g.answerTimer = time.AfterFunc(g.AnswerWindow, func() {
		g.handleAnswerTimeout(gen)
	})

	g.broadcast(GameEvent{Type: EventPlayerBuzzed, Payload: map[string]interface{}{
		"playerId": playerID,
		"nickname": nickname,
		"timerEnd": g.AnswerDeadline.UnixMilli(),
	}})
}

// HandleAnswer grades the buzzed player's answer. Correct answers lock in the
// point value of the latest revealed clue; wrong ones apply the room's flat
// penalty and reopen revealing without any extra decay.
func (g *TriviaGame) HandleAnswer(playerID uuid.UUID, answer string) {
	g.Mu.Lock()
	if g.over || g.Phase != PhaseBuzzing || g.BuzzedPlayer == nil || g.BuzzedPlayer.ID != playerID {
		g.Mu.Unlock()
		return
	}
	g.stopAnswerTimerLocked()

	gen := g.generation
	points := CluePointValue(len(g.RevealedClues))
	expected := g.CurrentQuestion.Answer
	guesser := *g.BuzzedPlayer
	g.Mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), oracleCallTimeout)
	correct := g.Grader.IsCorrect(ctx, expected, answer)
	cancel()

	g.Mu.Lock()
	defer g.Mu.Unlock()

	// The room may have been advanced or torn down while grading ran.
	if g.over || g.generation != gen || g.Phase != PhaseBuzzing ||
		g.BuzzedPlayer == nil || g.BuzzedPlayer.ID != playerID {
		return
	}

	if correct {
		g.Registry.AdjustScore(g.RoomID, playerID, points)
		g.RoundPointsEarned = append(g.RoundPointsEarned, points)
		g.Phase = PhaseAnswered

		g.broadcast(GameEvent{Type: EventAnswerResult, Payload: map[string]interface{}{
			"playerId":      playerID,
			"nickname":      guesser.Nickname,
			"answer":        answer,
			"correctAnswer": expected,
			"isCorrect":     true,
			"pointsAwarded": points,
			"players":       g.roomPlayers(),
		}})

		log.Infof("[%s] %s answered correctly for %d points", g.RoomID, guesser.Nickname, points)

		if g.Mode == models.GameModeCustom {
			g.resolvePickerScoreLocked(false)
		}
		return
	}

	penalty := g.wrongAnswerPenalty()
	g.Registry.AdjustScore(g.RoomID, playerID, penalty)
	g.WrongGuessCount++
	g.BuzzedPlayer = nil
	g.Phase = PhaseRevealing

	g.broadcast(GameEvent{Type: EventAnswerResult, Payload: map[string]interface{}{
		"playerId":      playerID,
		"nickname":      guesser.Nickname,
		"answer":        answer,
		"isCorrect":     false,
		"pointsAwarded": penalty,
		"players":       g.roomPlayers(),
	}})
	g.broadcast(GameEvent{Type: EventResumeRevealing})
}

// handleAnswerTimeout fires when the answer window elapses: same treatment as
// a wrong answer, minus the grading call.
func (g *TriviaGame) handleAnswerTimeout(gen uint64) {
	g.Mu.Lock()
	defer g.Mu.Unlock()
	if g.over || g.generation != gen || g.Phase != PhaseBuzzing || g.BuzzedPlayer == nil {
		return
	}

	timedOut := *g.BuzzedPlayer
	penalty := g.wrongAnswerPenalty()
	g.Registry.AdjustScore(g.RoomID, timedOut.ID, penalty)
	g.WrongGuessCount++
	g.BuzzedPlayer = nil
	g.answerTimer = nil
	g.AnswerDeadline = time.Time{}
	g.Phase = PhaseRevealing

	g.broadcast(GameEvent{Type: EventAnswerTimeout, Payload: map[string]interface{}{
		"playerId":      timedOut.ID,
		"nickname":      timedOut.Nickname,
		"pointsAwarded": penalty,
		"players":       g.roomPlayers(),
	}})
	g.broadcast(GameEvent{Type: EventResumeRevealing})

	log.Infof("[%s] %s ran out of time to answer", g.RoomID, timedOut.Nickname)
}

// resolvePickerScoreLocked awards the custom-mode picker once per round. A
// skipped round always yields exactly zero. Caller holds Mu.
func (g *TriviaGame) resolvePickerScoreLocked(skipped bool) {
	if g.CurrentPicker == nil || g.CurrentQuestion == nil {
		return
	}
	picker := *g.CurrentPicker
	obscurity := g.CurrentQuestion.Obscurity

	payload := map[string]interface{}{
		"pickerId":        picker.ID,
		"pickerNickname":  picker.Nickname,
		"obscurity":       obscurity,
		"wrongGuessCount": g.WrongGuessCount,
	}

	if skipped {
		payload["pickerPoints"] = 0
		payload["skipped"] = true
		payload["players"] = g.roomPlayers()
		g.broadcast(GameEvent{Type: EventPickerScored, Payload: payload})
		return
	}

	points, avg := PickerScore(obscurity, g.RoundPointsEarned, g.WrongGuessCount)
	g.Registry.AdjustScore(g.RoomID, picker.ID, points)

	payload["avgPointsEarned"] = avg
	payload["pickerPoints"] = points
	payload["players"] = g.roomPlayers()
	g.broadcast(GameEvent{Type: EventPickerScored, Payload: payload})

	log.Infof("[%s] picker %s scored %d (obscurity=%d avg=%.1f wrong=%d)",
		g.RoomID, picker.Nickname, points, obscurity, avg, g.WrongGuessCount)
}

// NextQuestion advances to the next round on the host's request. If the
// current question went unanswered, its answer is revealed first, and in
// custom mode the picker is scored zero with a skip flag. The next round
// begins after a short delay, re-checked for staleness.
func (g *TriviaGame) NextQuestion() {
	g.Mu.Lock()
	if g.over || g.IsLoadingQuestion {
		g.Mu.Unlock()
		return
	}

	if g.Phase == PhaseRevealing && g.CurrentQuestion != nil {
		g.broadcast(GameEvent{Type: EventQuestionSkipped, Payload: map[string]interface{}{
			"correctAnswer": g.CurrentQuestion.Answer,
		}})
		if g.Mode == models.GameModeCustom {
			g.resolvePickerScoreLocked(true)
		}
	}

	if g.Mode == models.GameModeCustom {
		g.PickerIndex++
	}
	gen := g.generation
	g.Mu.Unlock()

	time.AfterFunc(g.AdvanceDelay, func() {
		g.Mu.Lock()
		stale := g.over || g.generation != gen
		g.Mu.Unlock()
		if stale {
			return
		}
		if g.Mode == models.GameModeCustom {
			g.BeginPickingPhase()
		} else {
			g.LoadNextQuestion()
		}
	})
}

// EndGame finishes the game: final standings are broadcast sorted by
// descending score, the room is marked finished, and the session becomes
// inert. The OnGameEnd callback removes it from the store.
func (g *TriviaGame) EndGame() {
	g.Mu.Lock()
	if g.over {
		g.Mu.Unlock()
		return
	}
	g.over = true
	g.generation++
	g.stopAnswerTimerLocked()
	rounds := g.QuestionNumber
	g.Mu.Unlock()

	g.Registry.SetState(g.RoomID, models.RoomStateFinished)
	standings := g.Registry.Standings(g.RoomID)

	g.broadcast(GameEvent{Type: EventGameEnded, Payload: map[string]interface{}{
		"players": standings,
	}})

	log.Infof("[%s] game ended after %d rounds", g.RoomID, rounds)

	if g.OnGameEnd != nil {
		g.OnGameEnd(g.RoomID, rounds, standings)
	}
}

// Teardown makes the session inert without a score reveal, used when the
// room itself is destroyed mid-game.
func (g *TriviaGame) Teardown() {
	g.Mu.Lock()
	defer g.Mu.Unlock()
	if g.over {
		return
	}
	g.over = true
	g.generation++
	g.stopAnswerTimerLocked()
}

// wrongAnswerPenalty reads the room's configured penalty (always <= 0).
func (g *TriviaGame) wrongAnswerPenalty() int {
	rm, ok := g.Registry.Snapshot(g.RoomID)
	if !ok {
		return 0
	}
	return rm.Settings.WrongAnswerPenalty
}

// roomPlayers returns the room's current player list for event payloads.
func (g *TriviaGame) roomPlayers() []models.Player {
	rm, ok := g.Registry.Snapshot(g.RoomID)
	if !ok {
		return nil
	}
	return rm.Players
}
