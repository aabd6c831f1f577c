package questiontypes

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
)

func validQuestion() Question {
	return Question{
		ID:   uuid.New(),
		Text: "Which planet is known as the red planet?",
		Choices: []Choice{
			{ID: "a", Text: "Mars", Correct: true},
			{ID: "b", Text: "Venus"},
			{ID: "c", Text: "Jupiter"},
			{ID: "d", Text: "Mercury"},
		},
	}
}

func TestQuestionValidate(t *testing.T) {
	t.Run("valid", func(t *testing.T) {
		q := validQuestion()
		assert.NoError(t, q.Validate())
	})

	t.Run("wrong choice count", func(t *testing.T) {
		q := validQuestion()
		q.Choices = q.Choices[:3]
		assert.Error(t, q.Validate())
	})

	t.Run("no correct choice", func(t *testing.T) {
		q := validQuestion()
		q.Choices[0].Correct = false
		assert.Error(t, q.Validate())
	})

	t.Run("multiple correct choices", func(t *testing.T) {
		q := validQuestion()
		q.Choices[1].Correct = true
		assert.Error(t, q.Validate())
	})
}

func TestCorrectChoiceID(t *testing.T) {
	q := validQuestion()
	assert.Equal(t, "a", q.CorrectChoiceID())

	q.Choices[0].Correct = false
	assert.Equal(t, "", q.CorrectChoiceID())
}
