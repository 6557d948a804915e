package memory

import (
	"context"
	"sync"

	"quiz-attempt-service/internal/app"
	"quiz-attempt-service/internal/domain"
)

// QuizStore is an in-memory app.QuizRepository.
type QuizStore struct {
	mu      sync.RWMutex
	quizzes map[string]domain.Quiz
}

var _ app.QuizRepository = (*QuizStore)(nil)

func NewQuizStore(quizzes ...domain.Quiz) *QuizStore {
	s := &QuizStore{quizzes: make(map[string]domain.Quiz, len(quizzes))}
	for _, q := range quizzes {
		s.quizzes[q.ID] = cloneQuiz(q)
	}
	return s
}

// Put inserts or replaces a quiz.
func (s *QuizStore) Put(quiz domain.Quiz) {
	s.mu.Lock()
	s.quizzes[quiz.ID] = cloneQuiz(quiz)
	s.mu.Unlock()
}

func (s *QuizStore) GetQuiz(_ context.Context, quizID string) (domain.Quiz, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	quiz, ok := s.quizzes[quizID]
	if !ok {
		return domain.Quiz{}, domain.ErrQuizNotFound
	}
	return cloneQuiz(quiz), nil
}

func (s *QuizStore) SaveSnapshot(_ context.Context, quizID string, questions []domain.QuestionSnapshot) (domain.Quiz, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	quiz, ok := s.quizzes[quizID]
	if !ok {
		return domain.Quiz{}, domain.ErrQuizNotFound
	}
	if !quiz.HasSnapshot() {
		quiz.SnapshotQuestions = cloneQuestions(questions)
		s.quizzes[quizID] = quiz
	}
	return cloneQuiz(quiz), nil
}

func (s *QuizStore) ReviseSnapshot(_ context.Context, quizID string, questions []domain.QuestionSnapshot) (domain.Quiz, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	quiz, ok := s.quizzes[quizID]
	if !ok {
		return domain.Quiz{}, domain.ErrQuizNotFound
	}
	quiz.SnapshotQuestions = cloneQuestions(questions)
	s.quizzes[quizID] = quiz
	return cloneQuiz(quiz), nil
}

func cloneQuiz(q domain.Quiz) domain.Quiz {
	q.SnapshotQuestions = cloneQuestions(q.SnapshotQuestions)
	return q
}

func cloneQuestions(in []domain.QuestionSnapshot) []domain.QuestionSnapshot {
	if in == nil {
		return nil
	}
	out := make([]domain.QuestionSnapshot, len(in))
	for i, q := range in {
		q.Options = append([]string(nil), q.Options...)
		q.CorrectOptions = q.CorrectOptions.Clone()
		out[i] = q
	}
	return out
}

// StaticQuestionBank is a question bank backed by a map (useful for tests/demos).
type StaticQuestionBank struct {
	mu        sync.RWMutex
	questions map[string][]domain.Question
}

var _ app.QuestionBank = (*StaticQuestionBank)(nil)

func NewStaticQuestionBank(questions map[string][]domain.Question) *StaticQuestionBank {
	if questions == nil {
		questions = make(map[string][]domain.Question)
	}
	return &StaticQuestionBank{questions: questions}
}

// Set replaces the live questions of a quiz.
func (b *StaticQuestionBank) Set(quizID string, questions []domain.Question) {
	b.mu.Lock()
	b.questions[quizID] = questions
	b.mu.Unlock()
}

func (b *StaticQuestionBank) ListQuestions(_ context.Context, quizID string) ([]domain.Question, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	questions, ok := b.questions[quizID]
	if !ok {
		return nil, domain.ErrQuizNotFound
	}
	out := make([]domain.Question, len(questions))
	for i, q := range questions {
		q.Options = append([]string(nil), q.Options...)
		q.CorrectOptions = q.CorrectOptions.Clone()
		out[i] = q
	}
	return out, nil
}
