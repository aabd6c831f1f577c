package questiondb

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/uptrace/bun"

	dueltypes "github.com/quizwars/duelsvc/app/modules/duel/domain/types"
	questiontypes "github.com/quizwars/duelsvc/app/modules/question/domain/types"
)

// QuestionDBImpl selects random questions from the question bank using bun.
// It enforces the content invariant on every question it hands out.
type QuestionDBImpl struct {
	DB *bun.DB
}

// SelectQuestions returns count random questions, optionally filtered by
// category. Returns ErrInsufficientContent when the bank cannot satisfy the
// request; malformed content is a hard error.
func (db *QuestionDBImpl) SelectQuestions(ctx context.Context, category *string, count int) ([]questiontypes.Question, error) {
	var questions []questiontypes.Question
	q := db.DB.NewSelect().
		Model(&questions).
		OrderExpr("RANDOM()").
		Limit(count)
	if category != nil {
		q = q.Where("category = ?", *category)
	}
	if err := q.Scan(ctx); err != nil {
		return nil, fmt.Errorf("failed to select questions: %w", err)
	}
	if len(questions) < count {
		slog.WarnContext(ctx, "Question bank cannot satisfy request",
			slog.Int("want", count),
			slog.Int("got", len(questions)),
		)
		return nil, fmt.Errorf("%w: want %d, have %d", dueltypes.ErrInsufficientContent, count, len(questions))
	}
	for i := range questions {
		if err := questions[i].Validate(); err != nil {
			return nil, fmt.Errorf("invalid question content: %w", err)
		}
	}
	return questions, nil
}
