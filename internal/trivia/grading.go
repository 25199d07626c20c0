// internal/trivia/grading.go
package trivia

import (
	"context"
	"fmt"
	"os"
	"strings"

	log "github.com/sirupsen/logrus"
)

const gradePromptTemplate = `You are grading a trivia answer. The correct answer is: "%s"
The player answered: "%s"

Accept the answer if it clearly refers to the same thing: minor misspellings,
missing articles, abbreviations, or a person's surname alone are all fine.
Reject it if it names something different or is too vague to tell.

Respond with exactly one word: CORRECT or INCORRECT.`

// GradeService judges player answers leniently via the completion API, with
// a strict string-match fallback when the API is unconfigured or errors out.
type GradeService struct {
	client *anthropicClient
	model  string
}

// NewGradeService reads ANTHROPIC_API_KEY and ANTHROPIC_GRADE_MODEL from the
// environment.
func NewGradeService() *GradeService {
	model := os.Getenv("ANTHROPIC_GRADE_MODEL")
	if model == "" {
		model = defaultGradeModel
	}
	return &GradeService{
		client: newAnthropicClient(os.Getenv("ANTHROPIC_API_KEY")),
		model:  model,
	}
}

// IsCorrect reports whether the given answer should count as correct.
func (s *GradeService) IsCorrect(ctx context.Context, expected, given string) bool {
	if s.client == nil {
		return fallbackMatch(expected, given)
	}

	reply, err := s.client.complete(ctx, s.model, 16, fmt.Sprintf(gradePromptTemplate, expected, given))
	if err != nil {
		log.Warnf("answer grading failed, using exact match: %v", err)
		return fallbackMatch(expected, given)
	}

	verdict := strings.ToUpper(strings.TrimSpace(reply))
	if strings.Contains(verdict, "INCORRECT") {
		return false
	}
	return strings.Contains(verdict, "CORRECT")
}

// fallbackMatch is the deterministic grader: case-insensitive comparison of
// the trimmed strings.
func fallbackMatch(expected, given string) bool {
	return strings.EqualFold(strings.TrimSpace(expected), strings.TrimSpace(given))
}
