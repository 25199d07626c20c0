// internal/game/game_test.go
package game

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ddebettencourt/kwizniac-infinite/internal/models"
	"github.com/ddebettencourt/kwizniac-infinite/internal/room"
)

// mockBroadcaster collects events instead of sending them over WS.
type mockBroadcaster struct {
	mu           sync.Mutex
	allEvents    []GameEvent
	playerEvents map[uuid.UUID][]GameEvent
}

func newMockBroadcaster() *mockBroadcaster {
	return &mockBroadcaster{
		playerEvents: make(map[uuid.UUID][]GameEvent),
	}
}

func (mb *mockBroadcaster) broadcastFn(ev GameEvent) {
	mb.mu.Lock()
	defer mb.mu.Unlock()
	mb.allEvents = append(mb.allEvents, ev)
}

func (mb *mockBroadcaster) broadcastToPlayerFn(playerID uuid.UUID, ev GameEvent) {
	mb.mu.Lock()
	defer mb.mu.Unlock()
	mb.playerEvents[playerID] = append(mb.playerEvents[playerID], ev)
}

func (mb *mockBroadcaster) eventsOfType(t GameEventType) []GameEvent {
	mb.mu.Lock()
	defer mb.mu.Unlock()
	var out []GameEvent
	for _, ev := range mb.allEvents {
		if ev.Type == t {
			out = append(out, ev)
		}
	}
	return out
}

func (mb *mockBroadcaster) lastEventOfType(t GameEventType) *GameEvent {
	evs := mb.eventsOfType(t)
	if len(evs) == 0 {
		return nil
	}
	return &evs[len(evs)-1]
}

func (mb *mockBroadcaster) lastPlayerEvent(playerID uuid.UUID) *GameEvent {
	mb.mu.Lock()
	defer mb.mu.Unlock()
	events := mb.playerEvents[playerID]
	if len(events) == 0 {
		return nil
	}
	return &events[len(events)-1]
}

// stubTopics always serves from a fixed list.
type stubTopics struct {
	mu     sync.Mutex
	topics []string
	idx    int
}

func (s *stubTopics) NextTopic(ctx context.Context) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	topic := s.topics[s.idx%len(s.topics)]
	s.idx++
	return topic, nil
}

// stubClues generates a deterministic 10-clue ladder, optionally failing the
// first N calls or delaying each one.
type stubClues struct {
	mu        sync.Mutex
	failures  int
	calls     int
	obscurity int
	delay     time.Duration
}

func (s *stubClues) Clues(ctx context.Context, topic string) ([]models.Clue, int, error) {
	if s.delay > 0 {
		select {
		case <-time.After(s.delay):
		case <-ctx.Done():
			return nil, 0, ctx.Err()
		}
	}

	s.mu.Lock()
	s.calls++
	fail := s.failures > 0
	if fail {
		s.failures--
	}
	obscurity := s.obscurity
	s.mu.Unlock()

	if fail {
		return nil, 0, errors.New("clue generation unavailable")
	}
	clues := make([]models.Clue, 0, 10)
	for n := 10; n >= 1; n-- {
		clues = append(clues, models.Clue{Number: n, Text: fmt.Sprintf("clue %d about %s", n, topic)})
	}
	return clues, obscurity, nil
}

func (s *stubClues) callCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls
}

// stubGrader is the strict fallback grader: trimmed case-insensitive match.
type stubGrader struct{}

func (stubGrader) IsCorrect(ctx context.Context, expected, given string) bool {
	return strings.EqualFold(strings.TrimSpace(expected), strings.TrimSpace(given))
}

// setupTestGame builds a room with players, a wired session, and fast timings.
func setupTestGame(t *testing.T, numPlayers int, mode models.GameMode) (*TriviaGame, []models.Player, *mockBroadcaster, *stubClues) {
	t.Helper()

	reg := room.NewRegistry()
	rm := reg.CreateRoom("Test Room", uuid.New(), "player1", &models.SettingsPatch{GameMode: &mode})
	for i := 2; i <= numPlayers; i++ {
		_, err := reg.JoinRoom(rm.ID, uuid.New(), fmt.Sprintf("player%d", i))
		require.NoError(t, err)
	}
	full, ok := reg.Snapshot(rm.ID)
	require.True(t, ok)

	g := NewTriviaGame(rm.ID, mode, reg)
	mb := newMockBroadcaster()
	g.BroadcastFn = mb.broadcastFn
	g.BroadcastToPlayerFn = mb.broadcastToPlayerFn
	sc := &stubClues{obscurity: 4}
	g.Topics = &stubTopics{topics: []string{"The Moon"}}
	g.Clues = sc
	g.Grader = stubGrader{}
	g.StartDelay = 5 * time.Millisecond
	g.AdvanceDelay = 10 * time.Millisecond
	g.RetryDelay = 10 * time.Millisecond
	g.AnswerWindow = 80 * time.Millisecond

	return g, full.Players, mb, sc
}

func waitForPhase(t *testing.T, g *TriviaGame, want Phase) {
	t.Helper()
	require.Eventually(t, func() bool {
		g.Mu.Lock()
		defer g.Mu.Unlock()
		return g.Phase == want && !g.IsLoadingQuestion
	}, 2*time.Second, 2*time.Millisecond)
}

func currentPhase(g *TriviaGame) Phase {
	g.Mu.Lock()
	defer g.Mu.Unlock()
	return g.Phase
}

func playerScore(t *testing.T, g *TriviaGame, playerID uuid.UUID) int {
	t.Helper()
	p, ok := g.Registry.Player(g.RoomID, playerID)
	require.True(t, ok)
	return p.Score
}

func TestStartStandardModeLoadsFirstQuestion(t *testing.T) {
	g, _, mb, _ := setupTestGame(t, 2, models.GameModeStandard)
	g.Start()
	waitForPhase(t, g, PhaseRevealing)

	g.Mu.Lock()
	require.NotNil(t, g.CurrentQuestion)
	assert.Equal(t, "The Moon", g.CurrentQuestion.Answer)
	assert.Equal(t, 1, g.QuestionNumber)
	assert.Empty(t, g.RevealedClues)
	g.Mu.Unlock()

	require.NotNil(t, mb.lastEventOfType(EventGameStarted))
	require.NotNil(t, mb.lastEventOfType(EventLoading))
	ready := mb.lastEventOfType(EventQuestionReady)
	require.NotNil(t, ready)
	assert.Equal(t, 10, ready.Payload["totalClues"])
}

func TestRevealClueSequenceAndPointDecay(t *testing.T) {
	g, _, mb, _ := setupTestGame(t, 2, models.GameModeStandard)
	g.Start()
	waitForPhase(t, g, PhaseRevealing)

	for i := 1; i <= 10; i++ {
		g.RevealNextClue()
		ev := mb.lastEventOfType(EventClueRevealed)
		require.NotNil(t, ev)
		assert.Equal(t, i, ev.Payload["cluesRevealed"])
		assert.Equal(t, 11-i, ev.Payload["currentPoints"])
		clue := ev.Payload["clue"].(models.Clue)
		assert.Equal(t, 11-i, clue.Number, "clues must come out hardest first")
	}

	// Past ten clues the reveal is a no-op.
	g.RevealNextClue()
	g.Mu.Lock()
	assert.Len(t, g.RevealedClues, 10)
	g.Mu.Unlock()
	assert.Len(t, mb.eventsOfType(EventClueRevealed), 10)
}

func TestOnlyOneBuzzAtATime(t *testing.T) {
	g, players, mb, _ := setupTestGame(t, 3, models.GameModeStandard)
	g.Start()
	waitForPhase(t, g, PhaseRevealing)
	g.RevealNextClue()

	g.HandleBuzz(players[1].ID, players[1].Nickname)
	g.HandleBuzz(players[2].ID, players[2].Nickname)

	g.Mu.Lock()
	require.NotNil(t, g.BuzzedPlayer)
	assert.Equal(t, players[1].ID, g.BuzzedPlayer.ID)
	assert.Equal(t, PhaseBuzzing, g.Phase)
	g.Mu.Unlock()

	assert.Len(t, mb.eventsOfType(EventPlayerBuzzed), 1)
}

func TestCorrectAnswerAwardsDecayedPoints(t *testing.T) {
	g, players, mb, _ := setupTestGame(t, 2, models.GameModeStandard)
	g.Start()
	waitForPhase(t, g, PhaseRevealing)

	for i := 0; i < 3; i++ {
		g.RevealNextClue()
	}
	guesser := players[1]
	g.HandleBuzz(guesser.ID, guesser.Nickname)
	g.HandleAnswer(guesser.ID, "the moon")

	assert.Equal(t, 8, playerScore(t, g, guesser.ID))
	assert.Equal(t, PhaseAnswered, currentPhase(g))

	ev := mb.lastEventOfType(EventAnswerResult)
	require.NotNil(t, ev)
	assert.Equal(t, true, ev.Payload["isCorrect"])
	assert.Equal(t, 8, ev.Payload["pointsAwarded"])
	assert.Equal(t, "The Moon", ev.Payload["correctAnswer"])
}

func TestWrongAnswerAppliesPenaltyAndReopensBuzzing(t *testing.T) {
	g, players, mb, _ := setupTestGame(t, 2, models.GameModeStandard)
	g.Start()
	waitForPhase(t, g, PhaseRevealing)
	g.RevealNextClue()

	guesser := players[1]
	g.HandleBuzz(guesser.ID, guesser.Nickname)
	g.HandleAnswer(guesser.ID, "Mars")

	assert.Equal(t, -3, playerScore(t, g, guesser.ID), "default wrong answer penalty")
	assert.Equal(t, PhaseRevealing, currentPhase(g))

	g.Mu.Lock()
	assert.Nil(t, g.BuzzedPlayer)
	assert.Equal(t, 1, g.WrongGuessCount)
	g.Mu.Unlock()

	ev := mb.lastEventOfType(EventAnswerResult)
	require.NotNil(t, ev)
	assert.Equal(t, false, ev.Payload["isCorrect"])
	require.NotNil(t, mb.lastEventOfType(EventResumeRevealing))

	// Same player may buzz again; no extra decay was applied.
	g.HandleBuzz(guesser.ID, guesser.Nickname)
	g.HandleAnswer(guesser.ID, "The Moon")
	assert.Equal(t, -3+10, playerScore(t, g, guesser.ID))
}

func TestAnswerTimeoutTreatedAsWrongAnswer(t *testing.T) {
	g, players, mb, _ := setupTestGame(t, 2, models.GameModeStandard)
	g.Start()
	waitForPhase(t, g, PhaseRevealing)
	g.RevealNextClue()

	guesser := players[1]
	g.HandleBuzz(guesser.ID, guesser.Nickname)
	waitForPhase(t, g, PhaseRevealing)

	assert.Equal(t, -3, playerScore(t, g, guesser.ID))
	g.Mu.Lock()
	assert.Nil(t, g.BuzzedPlayer)
	g.Mu.Unlock()
	require.NotNil(t, mb.lastEventOfType(EventAnswerTimeout))
	require.NotNil(t, mb.lastEventOfType(EventResumeRevealing))
}

func TestLateAnswerAfterTimeoutIsDropped(t *testing.T) {
	g, players, mb, _ := setupTestGame(t, 2, models.GameModeStandard)
	g.Start()
	waitForPhase(t, g, PhaseRevealing)
	g.RevealNextClue()

	guesser := players[1]
	g.HandleBuzz(guesser.ID, guesser.Nickname)
	waitForPhase(t, g, PhaseRevealing)

	g.HandleAnswer(guesser.ID, "The Moon")
	assert.Equal(t, -3, playerScore(t, g, guesser.ID), "late answer must not score")
	assert.Nil(t, mb.lastEventOfType(EventAnswerResult))
}

func TestLoadGuardBlocksConcurrentLoads(t *testing.T) {
	g, _, mb, sc := setupTestGame(t, 2, models.GameModeStandard)
	sc.delay = 40 * time.Millisecond

	g.Start()

	// The first load is still in flight: further load or advance calls for
	// the same room must have no effect.
	g.LoadNextQuestion()
	g.LoadNextQuestion()
	g.NextQuestion()

	waitForPhase(t, g, PhaseRevealing)
	assert.Equal(t, 1, sc.callCount(), "only one oracle call may be in flight per room")
	g.Mu.Lock()
	assert.Equal(t, 1, g.QuestionNumber)
	g.Mu.Unlock()
	assert.Len(t, mb.eventsOfType(EventLoading), 1)
	assert.Len(t, mb.eventsOfType(EventQuestionReady), 1)
}

func TestStandardLoadFailureRetries(t *testing.T) {
	g, _, mb, sc := setupTestGame(t, 2, models.GameModeStandard)
	sc.failures = 1

	g.Start()
	waitForPhase(t, g, PhaseRevealing)

	require.NotNil(t, mb.lastEventOfType(EventGameError))
	assert.Equal(t, 2, sc.callCount())
	g.Mu.Lock()
	assert.Equal(t, 1, g.QuestionNumber, "retry must not advance the round")
	g.Mu.Unlock()
}

func TestStaleClueResultDiscardedAfterEndGame(t *testing.T) {
	g, _, mb, sc := setupTestGame(t, 2, models.GameModeStandard)
	sc.delay = 50 * time.Millisecond

	g.Start()
	time.Sleep(10 * time.Millisecond)
	g.EndGame()

	time.Sleep(100 * time.Millisecond)
	g.Mu.Lock()
	assert.Nil(t, g.CurrentQuestion, "in-flight load must not resurrect an ended game")
	g.Mu.Unlock()
	assert.Nil(t, mb.lastEventOfType(EventQuestionReady))
}

func TestCustomModeStartEntersPickingPhase(t *testing.T) {
	g, players, mb, _ := setupTestGame(t, 3, models.GameModeCustom)
	g.Start()
	waitForPhase(t, g, PhasePicking)

	ev := mb.lastEventOfType(EventPickingPhase)
	require.NotNil(t, ev)
	picker := ev.Payload["picker"].(models.PlayerRef)
	assert.Equal(t, players[0].ID, picker.ID, "first picker is the first player")
}

func TestPickerSubmitValidation(t *testing.T) {
	g, players, _, sc := setupTestGame(t, 3, models.GameModeCustom)
	g.Start()
	waitForPhase(t, g, PhasePicking)

	// Not the picker's submission, and a too-short answer, are both dropped.
	g.HandlePickerSubmit(players[1].ID, "Saturn")
	g.HandlePickerSubmit(players[0].ID, " x ")
	assert.Equal(t, PhasePicking, currentPhase(g))
	assert.Equal(t, 0, sc.callCount())

	g.HandlePickerSubmit(players[0].ID, "Saturn")
	waitForPhase(t, g, PhaseRevealing)
	g.Mu.Lock()
	assert.Equal(t, "Saturn", g.CurrentQuestion.Answer)
	require.NotNil(t, g.CurrentQuestion.PickedBy)
	assert.Equal(t, players[0].ID, g.CurrentQuestion.PickedBy.ID)
	g.Mu.Unlock()
}

func TestPickerCannotBuzzOnOwnQuestion(t *testing.T) {
	g, players, mb, _ := setupTestGame(t, 3, models.GameModeCustom)
	g.Start()
	waitForPhase(t, g, PhasePicking)
	g.HandlePickerSubmit(players[0].ID, "Saturn")
	waitForPhase(t, g, PhaseRevealing)
	g.RevealNextClue()

	g.HandleBuzz(players[0].ID, players[0].Nickname)
	assert.Equal(t, PhaseRevealing, currentPhase(g))
	assert.Empty(t, mb.eventsOfType(EventPlayerBuzzed))

	g.HandleBuzz(players[1].ID, players[1].Nickname)
	assert.Equal(t, PhaseBuzzing, currentPhase(g))
}

func TestPickerScoredAfterCorrectGuess(t *testing.T) {
	g, players, mb, _ := setupTestGame(t, 3, models.GameModeCustom)
	g.Start()
	waitForPhase(t, g, PhasePicking)
	g.HandlePickerSubmit(players[0].ID, "Saturn")
	waitForPhase(t, g, PhaseRevealing)

	for i := 0; i < 3; i++ {
		g.RevealNextClue()
	}
	g.HandleBuzz(players[1].ID, players[1].Nickname)
	g.HandleAnswer(players[1].ID, "saturn")

	// Guesser earned 8, so avg=8: base (10-4)*(10-8)/10 = 1.2, rounds to 1.
	assert.Equal(t, 1, playerScore(t, g, players[0].ID))
	ev := mb.lastEventOfType(EventPickerScored)
	require.NotNil(t, ev)
	assert.Equal(t, 1, ev.Payload["pickerPoints"])
	assert.Equal(t, 4, ev.Payload["obscurity"])
}

func TestSkippedQuestionRevealsAnswerAndScoresPickerZero(t *testing.T) {
	g, players, mb, _ := setupTestGame(t, 3, models.GameModeCustom)
	g.Start()
	waitForPhase(t, g, PhasePicking)
	g.HandlePickerSubmit(players[0].ID, "Saturn")
	waitForPhase(t, g, PhaseRevealing)
	g.RevealNextClue()

	g.NextQuestion()

	skipped := mb.lastEventOfType(EventQuestionSkipped)
	require.NotNil(t, skipped)
	assert.Equal(t, "Saturn", skipped.Payload["correctAnswer"])

	scored := mb.lastEventOfType(EventPickerScored)
	require.NotNil(t, scored)
	assert.Equal(t, 0, scored.Payload["pickerPoints"])
	assert.Equal(t, true, scored.Payload["skipped"])
	assert.Equal(t, 0, playerScore(t, g, players[0].ID))

	// The picker role rotates to the next player for the following round.
	waitForPhase(t, g, PhasePicking)
	ev := mb.lastEventOfType(EventPickingPhase)
	require.NotNil(t, ev)
	picker := ev.Payload["picker"].(models.PlayerRef)
	assert.Equal(t, players[1].ID, picker.ID)
}

func TestPickerErrorReturnsRoundToPicker(t *testing.T) {
	g, players, mb, sc := setupTestGame(t, 3, models.GameModeCustom)
	sc.failures = 1

	g.Start()
	waitForPhase(t, g, PhasePicking)
	g.HandlePickerSubmit(players[0].ID, "Zzyzx")
	waitForPhase(t, g, PhasePicking)

	ev := mb.lastPlayerEvent(players[0].ID)
	require.NotNil(t, ev)
	assert.Equal(t, EventPickerError, ev.Type)

	// The picker can try again with a different answer.
	g.HandlePickerSubmit(players[0].ID, "Saturn")
	waitForPhase(t, g, PhaseRevealing)
}

func TestEndGameBroadcastsStandingsAndFinishesRoom(t *testing.T) {
	g, players, mb, _ := setupTestGame(t, 3, models.GameModeStandard)
	g.Registry.AdjustScore(g.RoomID, players[1].ID, 12)
	g.Registry.AdjustScore(g.RoomID, players[2].ID, 5)

	var endedRoom string
	var endedStandings []models.Player
	g.OnGameEnd = func(roomID string, roundsPlayed int, standings []models.Player) {
		endedRoom = roomID
		endedStandings = standings
	}

	g.Start()
	waitForPhase(t, g, PhaseRevealing)
	g.EndGame()

	ev := mb.lastEventOfType(EventGameEnded)
	require.NotNil(t, ev)
	standings := ev.Payload["players"].([]models.Player)
	require.Len(t, standings, 3)
	assert.Equal(t, players[1].ID, standings[0].ID, "standings sorted by descending score")

	rm, ok := g.Registry.Snapshot(g.RoomID)
	require.True(t, ok)
	assert.Equal(t, models.RoomStateFinished, rm.State)
	assert.Equal(t, g.RoomID, endedRoom)
	assert.Len(t, endedStandings, 3)

	// A second EndGame is a no-op.
	g.EndGame()
	assert.Len(t, mb.eventsOfType(EventGameEnded), 1)
}

func TestNextQuestionAdvancesStandardRound(t *testing.T) {
	g, _, mb, _ := setupTestGame(t, 2, models.GameModeStandard)
	g.Start()
	waitForPhase(t, g, PhaseRevealing)

	g.NextQuestion()
	require.Eventually(t, func() bool {
		g.Mu.Lock()
		defer g.Mu.Unlock()
		return g.QuestionNumber == 2 && g.Phase == PhaseRevealing && !g.IsLoadingQuestion
	}, 2*time.Second, 2*time.Millisecond)

	assert.GreaterOrEqual(t, len(mb.eventsOfType(EventQuestionReady)), 2)
}

func TestSnapshotReflectsLiveRound(t *testing.T) {
	g, players, _, _ := setupTestGame(t, 2, models.GameModeStandard)
	g.Start()
	waitForPhase(t, g, PhaseRevealing)

	snap := g.CurrentSnapshot()
	assert.Equal(t, PhaseRevealing, snap.Phase)
	assert.Equal(t, 10, snap.TotalClues)
	assert.Equal(t, 10, snap.CurrentPoints, "full value before the first reveal")

	g.RevealNextClue()
	g.RevealNextClue()
	g.HandleBuzz(players[1].ID, players[1].Nickname)

	snap = g.CurrentSnapshot()
	assert.Equal(t, PhaseBuzzing, snap.Phase)
	assert.Len(t, snap.RevealedClues, 2)
	assert.Equal(t, 9, snap.CurrentPoints)
	require.NotNil(t, snap.BuzzedPlayer)
	assert.Equal(t, players[1].ID, snap.BuzzedPlayer.ID)
	assert.NotZero(t, snap.TimerEnd)
}
