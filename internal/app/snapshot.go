package app

import (
	"context"
	"fmt"

	"golang.org/x/sync/singleflight"

	"quiz-attempt-service/internal/domain"
)

// SnapshotBuilder freezes a quiz's live questions into its shared snapshot.
type SnapshotBuilder struct {
	bank    QuestionBank
	quizzes QuizRepository
	newID   func() string
	sf      singleflight.Group
}

func NewSnapshotBuilder(bank QuestionBank, quizzes QuizRepository, newID func() string) *SnapshotBuilder {
	return &SnapshotBuilder{bank: bank, quizzes: quizzes, newID: newID}
}

// BuildSnapshot is a no-op for quizzes that already carry a snapshot. Otherwise it copies the
// live questions once and persists them; every attempt of the quiz is graded against that copy.
func (b *SnapshotBuilder) BuildSnapshot(ctx context.Context, quiz domain.Quiz) (domain.Quiz, error) {
	if quiz.HasSnapshot() {
		return quiz, nil
	}

	result, err, _ := b.sf.Do(quiz.ID, func() (interface{}, error) {
		questions, err := b.bank.ListQuestions(ctx, quiz.ID)
		if err != nil {
			return domain.Quiz{}, fmt.Errorf("load question bank: %w", err)
		}
		if len(questions) == 0 {
			return domain.Quiz{}, fmt.Errorf("quiz %s has no questions: %w", quiz.ID, domain.ErrInvalidSnapshot)
		}

		snapshot := make([]domain.QuestionSnapshot, 0, len(questions))
		for _, q := range questions {
			s, err := snapshotOf(q, b.newID())
			if err != nil {
				return domain.Quiz{}, err
			}
			snapshot = append(snapshot, s)
		}
		return b.quizzes.SaveSnapshot(ctx, quiz.ID, snapshot)
	})
	if err != nil {
		return domain.Quiz{}, err
	}
	return result.(domain.Quiz), nil
}

func snapshotOf(q domain.Question, id string) (domain.QuestionSnapshot, error) {
	points := q.Points
	if points == 0 {
		points = 1
	}
	options := make([]string, len(q.Options))
	copy(options, q.Options)

	qt := q.Type
	if qt == "" {
		qt = domain.QuestionSingleSelect
		if q.CorrectOptions.Ones() > 1 {
			qt = domain.QuestionMultiSelect
		}
	}

	s := domain.QuestionSnapshot{
		ID:             id,
		SourceID:       q.ID,
		Text:           q.Text,
		Type:           qt,
		Options:        options,
		CorrectOptions: q.CorrectOptions.Clone(),
		Points:         points,
	}
	if err := s.Validate(); err != nil {
		return domain.QuestionSnapshot{}, fmt.Errorf("question %s: %w", q.ID, err)
	}
	return s, nil
}
