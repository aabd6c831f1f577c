package questiontypes

import (
	"fmt"

	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

// ChoiceCount is the fixed number of answer choices per question.
const ChoiceCount = 4

// Choice is one selectable answer of a question.
type Choice struct {
	ID      string `json:"id"`
	Text    string `json:"text"`
	Correct bool   `json:"correct"`
}

// Question is one quiz question with exactly four choices, exactly one of
// which is correct. Anything else is a content error and is treated as fatal
// by the duel engine, never silently degraded.
type Question struct {
	bun.BaseModel `bun:"table:questions,alias:q"`

	ID       uuid.UUID `bun:"id,pk,type:uuid" json:"id"`
	Text     string    `bun:"text,notnull" json:"text"`
	Category string    `bun:"category,nullzero" json:"category,omitempty"`
	Choices  []Choice  `bun:"choices,type:jsonb" json:"choices"`
}

// Validate checks the four-choices / one-correct content invariant.
func (q *Question) Validate() error {
	if len(q.Choices) != ChoiceCount {
		return fmt.Errorf("question %s has %d choices, want %d", q.ID, len(q.Choices), ChoiceCount)
	}
	correct := 0
	for _, c := range q.Choices {
		if c.Correct {
			correct++
		}
	}
	if correct != 1 {
		return fmt.Errorf("question %s has %d correct choices, want 1", q.ID, correct)
	}
	return nil
}

// CorrectChoiceID returns the id of the single correct choice. Call Validate
// first; on malformed content this returns the empty string.
func (q *Question) CorrectChoiceID() string {
	for _, c := range q.Choices {
		if c.Correct {
			return c.ID
		}
	}
	return ""
}
