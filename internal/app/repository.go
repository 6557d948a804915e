package app

import (
	"context"
	"time"

	"quiz-attempt-service/internal/domain"
)

// QuizRepository stores quizzes and their shared question snapshot.
type QuizRepository interface {
	GetQuiz(ctx context.Context, quizID string) (domain.Quiz, error)
	// SaveSnapshot stores questions only if the quiz has no snapshot yet and returns the stored quiz.
	// Concurrent callers all observe the first writer's snapshot.
	SaveSnapshot(ctx context.Context, quizID string, questions []domain.QuestionSnapshot) (domain.Quiz, error)
	// ReviseSnapshot replaces an existing snapshot (instructor regrade corrections).
	ReviseSnapshot(ctx context.Context, quizID string, questions []domain.QuestionSnapshot) (domain.Quiz, error)
}

// QuestionBank is the live question catalog, read once per quiz when the snapshot is built.
type QuestionBank interface {
	ListQuestions(ctx context.Context, quizID string) ([]domain.Question, error)
}

// Mutation edits an attempt in place and reports whether the result must be written.
// Returning an error aborts the update without writing.
type Mutation func(a *domain.Attempt) (bool, error)

// AttemptRepository persists attempts. Update calls for one attempt are serialized by the store,
// so a Mutation always sees the latest committed state.
type AttemptRepository interface {
	// Create stores a unless an attempt for (QuizID, StudentID) exists, in which case the existing
	// attempt is returned with created=false.
	Create(ctx context.Context, a domain.Attempt) (stored domain.Attempt, created bool, err error)
	Get(ctx context.Context, attemptID string) (domain.Attempt, error)
	FindByQuizStudent(ctx context.Context, quizID, studentID string) (domain.Attempt, error)
	// Update applies fn atomically. On a mutation error the current attempt is returned with the error.
	Update(ctx context.Context, attemptID string, fn Mutation) (domain.Attempt, error)
	// ListInProgress returns up to limit in-progress attempts positioned after the cursor, ordered
	// by (StartedAt, ID); limit <= 0 means all.
	ListInProgress(ctx context.Context, after Cursor, limit int) ([]domain.Attempt, error)
	ListByQuiz(ctx context.Context, quizID string) ([]domain.Attempt, error)
}

// Cursor marks a position in the (StartedAt, ID) ordering of attempts. The zero Cursor precedes
// every attempt.
type Cursor struct {
	StartedAt time.Time
	ID        string
}

// CursorAt returns the position of a.
func CursorAt(a domain.Attempt) Cursor {
	return Cursor{StartedAt: a.StartedAt, ID: a.ID}
}

// Precedes reports whether a sorts strictly after c.
func (c Cursor) Precedes(a domain.Attempt) bool {
	if !a.StartedAt.Equal(c.StartedAt) {
		return a.StartedAt.After(c.StartedAt)
	}
	return a.ID > c.ID
}
