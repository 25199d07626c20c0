// internal/trivia/clues.go
package trivia

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"sort"
	"strings"

	"github.com/ddebettencourt/kwizniac-infinite/internal/models"
)

const cluePromptTemplate = `You are writing clues for a trivia game. The answer is: "%s"

Generate exactly 10 clues about this answer, numbered 10 down to 1. Clue 10 is
the hardest (extremely obscure, known only to experts) and clue 1 is the
easiest (nearly gives the answer away). Each clue must be a single sentence
and must never contain the answer itself or an obvious part of it.

Also rate how obscure the answer itself is on a 0-10 scale, where 0 means
everyone has heard of it and 10 means almost nobody has.

Respond with ONLY a JSON object in this exact shape, no other text:
{"clues": [{"number": 10, "text": "..."}, ..., {"number": 1, "text": "..."}], "answerDifficulty": 5}`

// ClueService generates the 10-clue ladder for a topic via the completion
// API. There is no offline fallback: without generated clues a round cannot
// run, so failures surface to the session's retry path.
type ClueService struct {
	client *anthropicClient
	model  string
}

// NewClueService reads ANTHROPIC_API_KEY and ANTHROPIC_CLUE_MODEL from the
// environment.
func NewClueService() *ClueService {
	model := os.Getenv("ANTHROPIC_CLUE_MODEL")
	if model == "" {
		model = defaultClueModel
	}
	return &ClueService{
		client: newAnthropicClient(os.Getenv("ANTHROPIC_API_KEY")),
		model:  model,
	}
}

// Clues returns the clue ladder ordered hardest first (number 10 down to 1)
// along with the answer's obscurity rating.
func (s *ClueService) Clues(ctx context.Context, topic string) ([]models.Clue, int, error) {
	if s.client == nil {
		return nil, 0, fmt.Errorf("clue generation unavailable: no API key configured")
	}

	reply, err := s.client.complete(ctx, s.model, 2048, fmt.Sprintf(cluePromptTemplate, topic))
	if err != nil {
		return nil, 0, fmt.Errorf("clue generation for %q failed: %w", topic, err)
	}

	raw, err := extractJSONObject(reply)
	if err != nil {
		return nil, 0, fmt.Errorf("clue response for %q was malformed: %w", topic, err)
	}

	var parsed struct {
		Clues []struct {
			Number int    `json:"number"`
			Text   string `json:"text"`
		} `json:"clues"`
		AnswerDifficulty int `json:"answerDifficulty"`
	}
	if err := json.Unmarshal([]byte(raw), &parsed); err != nil {
		return nil, 0, fmt.Errorf("failed to parse clue JSON for %q: %w", topic, err)
	}
	if len(parsed.Clues) != 10 {
		return nil, 0, fmt.Errorf("expected 10 clues for %q, got %d", topic, len(parsed.Clues))
	}

	clues := make([]models.Clue, 0, len(parsed.Clues))
	for _, c := range parsed.Clues {
		text := strings.TrimSpace(c.Text)
		if text == "" {
			return nil, 0, fmt.Errorf("clue %d for %q is empty", c.Number, topic)
		}
		clues = append(clues, models.Clue{Number: c.Number, Text: text})
	}
	// Hardest first regardless of the order the model emitted them in.
	sort.Slice(clues, func(i, j int) bool { return clues[i].Number > clues[j].Number })
	for i, c := range clues {
		if c.Number != 10-i {
			return nil, 0, fmt.Errorf("clue numbering for %q is not 10 through 1", topic)
		}
	}

	obscurity := parsed.AnswerDifficulty
	if obscurity < 0 {
		obscurity = 0
	} else if obscurity > 10 {
		obscurity = 10
	}
	return clues, obscurity, nil
}
