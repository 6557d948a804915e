package memory

import (
	"context"
	"sort"
	"sync"

	"quiz-attempt-service/internal/app"
	"quiz-attempt-service/internal/domain"
)

// AttemptStore is an in-memory implementation of app.AttemptRepository.
// Updates are serialized per attempt; different attempts never wait on each other.
type AttemptStore struct {
	mu       sync.RWMutex
	attempts map[string]*attemptRecord
	byPair   map[pairKey]string
}

type attemptRecord struct {
	mu      sync.Mutex
	attempt domain.Attempt
}

type pairKey struct {
	quizID    string
	studentID string
}

var _ app.AttemptRepository = (*AttemptStore)(nil)

func NewAttemptStore() *AttemptStore {
	return &AttemptStore{
		attempts: make(map[string]*attemptRecord),
		byPair:   make(map[pairKey]string),
	}
}

func (s *AttemptStore) Create(_ context.Context, a domain.Attempt) (domain.Attempt, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := pairKey{quizID: a.QuizID, studentID: a.StudentID}
	if id, ok := s.byPair[key]; ok {
		return s.attempts[id].read(), false, nil
	}
	if a.Answers == nil {
		a.Answers = map[string]domain.AnswerEntry{}
	}
	s.attempts[a.ID] = &attemptRecord{attempt: a.Clone()}
	s.byPair[key] = a.ID
	return a.Clone(), true, nil
}

func (s *AttemptStore) Get(_ context.Context, attemptID string) (domain.Attempt, error) {
	rec, ok := s.record(attemptID)
	if !ok {
		return domain.Attempt{}, domain.ErrAttemptNotFound
	}
	return rec.read(), nil
}

func (s *AttemptStore) FindByQuizStudent(_ context.Context, quizID, studentID string) (domain.Attempt, error) {
	s.mu.RLock()
	id, ok := s.byPair[pairKey{quizID: quizID, studentID: studentID}]
	var rec *attemptRecord
	if ok {
		rec = s.attempts[id]
	}
	s.mu.RUnlock()
	if rec == nil {
		return domain.Attempt{}, domain.ErrAttemptNotFound
	}
	return rec.read(), nil
}

func (s *AttemptStore) Update(_ context.Context, attemptID string, fn app.Mutation) (domain.Attempt, error) {
	rec, ok := s.record(attemptID)
	if !ok {
		return domain.Attempt{}, domain.ErrAttemptNotFound
	}

	rec.mu.Lock()
	defer rec.mu.Unlock()

	working := rec.attempt.Clone()
	write, err := fn(&working)
	if err != nil {
		return rec.attempt.Clone(), err
	}
	if write {
		rec.attempt = working.Clone()
	}
	return rec.attempt.Clone(), nil
}

func (s *AttemptStore) ListInProgress(_ context.Context, after app.Cursor, limit int) ([]domain.Attempt, error) {
	out := s.filter(func(a domain.Attempt) bool {
		return a.Status == domain.StatusInProgress && after.Precedes(a)
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *AttemptStore) ListByQuiz(_ context.Context, quizID string) ([]domain.Attempt, error) {
	return s.filter(func(a domain.Attempt) bool { return a.QuizID == quizID }), nil
}

func (s *AttemptStore) filter(keep func(domain.Attempt) bool) []domain.Attempt {
	s.mu.RLock()
	records := make([]*attemptRecord, 0, len(s.attempts))
	for _, rec := range s.attempts {
		records = append(records, rec)
	}
	s.mu.RUnlock()

	out := make([]domain.Attempt, 0, len(records))
	for _, rec := range records {
		if a := rec.read(); keep(a) {
			out = append(out, a)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].StartedAt.Equal(out[j].StartedAt) {
			return out[i].StartedAt.Before(out[j].StartedAt)
		}
		return out[i].ID < out[j].ID
	})
	return out
}

func (s *AttemptStore) record(attemptID string) (*attemptRecord, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rec, ok := s.attempts[attemptID]
	return rec, ok
}

func (r *attemptRecord) read() domain.Attempt {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.attempt.Clone()
}
