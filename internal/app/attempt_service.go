package app

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"golang.org/x/crypto/bcrypt"
	"golang.org/x/sync/errgroup"

	"quiz-attempt-service/internal/domain"
	"quiz-attempt-service/internal/scoring"
)

// AttemptService contains the quiz-attempt use cases.
type AttemptService struct {
	quizzes   QuizRepository
	attempts  AttemptRepository
	snapshots *SnapshotBuilder
	scorer    scoring.Scorer
	clock     Clock
	log       logrus.FieldLogger
	newID     func() string

	regradeConcurrency int
	sweepBatch         int
}

// Option customizes an AttemptService.
type Option func(*AttemptService)

func WithClock(c Clock) Option { return func(s *AttemptService) { s.clock = c } }

func WithScorer(sc scoring.Scorer) Option { return func(s *AttemptService) { s.scorer = sc } }

func WithLogger(l logrus.FieldLogger) Option { return func(s *AttemptService) { s.log = l } }

// WithRegradeConcurrency bounds how many attempts RegradeQuiz rescores at once.
func WithRegradeConcurrency(n int) Option {
	return func(s *AttemptService) {
		if n > 0 {
			s.regradeConcurrency = n
		}
	}
}

// WithSweepBatch bounds how many in-progress attempts one sweep loads per page.
func WithSweepBatch(n int) Option { return func(s *AttemptService) { s.sweepBatch = n } }

func NewAttemptService(quizzes QuizRepository, bank QuestionBank, attempts AttemptRepository, opts ...Option) *AttemptService {
	s := &AttemptService{
		quizzes:            quizzes,
		attempts:           attempts,
		scorer:             scoring.Engine{},
		clock:              SystemClock,
		log:                logrus.StandardLogger(),
		newID:              uuid.NewString,
		regradeConcurrency: 4,
	}
	for _, opt := range opts {
		opt(s)
	}
	s.snapshots = NewSnapshotBuilder(bank, quizzes, s.newID)
	return s
}

// Enroll admits a student into a quiz. Re-entering returns the existing attempt without checking
// the password again; a banned student can never re-enroll. Outside the window every call fails
// with ErrWindowClosed, after finalizing the student's attempt if the deadline has passed.
func (s *AttemptService) Enroll(ctx context.Context, caller domain.Caller, quizID, password string) (domain.Attempt, error) {
	if caller.ID == "" {
		return domain.Attempt{}, domain.ErrForbidden
	}
	quiz, err := s.quizzes.GetQuiz(ctx, quizID)
	if err != nil {
		return domain.Attempt{}, err
	}
	if !quiz.Published {
		return domain.Attempt{}, domain.ErrQuizNotFound
	}

	now := s.clock.Now()
	if !quiz.Open(now) {
		if quiz.Expired(now) {
			if err := s.closeExpired(ctx, quiz, caller.ID); err != nil {
				return domain.Attempt{}, err
			}
		}
		return domain.Attempt{}, domain.ErrWindowClosed
	}

	existing, err := s.attempts.FindByQuizStudent(ctx, quizID, caller.ID)
	switch {
	case err == nil:
		return s.resume(ctx, existing, quiz)
	case !errors.Is(err, domain.ErrNotFound):
		return domain.Attempt{}, err
	}

	if err := checkPassword(quiz.PasswordHash, password); err != nil {
		return domain.Attempt{}, err
	}

	if _, err := s.snapshots.BuildSnapshot(ctx, quiz); err != nil {
		return domain.Attempt{}, err
	}

	stored, created, err := s.attempts.Create(ctx, domain.Attempt{
		ID:        s.newID(),
		QuizID:    quizID,
		StudentID: caller.ID,
		Status:    domain.StatusInProgress,
		StartedAt: now,
		Answers:   map[string]domain.AnswerEntry{},
	})
	if err != nil {
		return domain.Attempt{}, fmt.Errorf("create attempt: %w", err)
	}
	if !created {
		return s.resume(ctx, stored, quiz)
	}

	s.log.WithFields(logrus.Fields{
		"attempt_id": stored.ID,
		"quiz_id":    quizID,
		"student_id": caller.ID,
	}).Info("attempt started")
	return stored, nil
}

// closeExpired force-submits the student's attempt on a quiz whose window has closed, if one is
// still in progress.
func (s *AttemptService) closeExpired(ctx context.Context, quiz domain.Quiz, studentID string) error {
	a, err := s.attempts.FindByQuizStudent(ctx, quiz.ID, studentID)
	if errors.Is(err, domain.ErrNotFound) {
		return nil
	}
	if err != nil {
		return err
	}
	_, err = s.enforceDeadline(ctx, a, quiz)
	return err
}

func (s *AttemptService) resume(ctx context.Context, a domain.Attempt, quiz domain.Quiz) (domain.Attempt, error) {
	if a.Status == domain.StatusAbandoned {
		return domain.Attempt{}, domain.ErrBanned
	}
	return s.enforceDeadline(ctx, a, quiz)
}

func checkPassword(hash, password string) error {
	if hash == "" {
		return nil
	}
	err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(password))
	switch {
	case err == nil:
		return nil
	case errors.Is(err, bcrypt.ErrMismatchedHashAndPassword):
		return domain.ErrUnauthorized
	default:
		return fmt.Errorf("verify quiz password: %w", err)
	}
}

// AutoSave replaces the saved answer for one question. Sending the same vector twice writes nothing.
// Once the attempt has left IN_PROGRESS, or the deadline has passed, every call fails with
// ErrInvalidState before the answer is looked at.
func (s *AttemptService) AutoSave(ctx context.Context, caller domain.Caller, attemptID, questionID string, answer domain.Vector) (domain.Attempt, error) {
	_, quiz, err := s.load(ctx, caller, attemptID, false)
	if err != nil {
		return domain.Attempt{}, err
	}

	var expired bool
	updated, err := s.attempts.Update(ctx, attemptID, func(a *domain.Attempt) (bool, error) {
		switch a.Status {
		case domain.StatusInProgress:
		case domain.StatusSubmitted, domain.StatusAbandoned:
			return false, domain.ErrInvalidState
		default:
			return false, fmt.Errorf("%w: status %q", domain.ErrInvalidState, a.Status)
		}

		now := s.clock.Now()
		if quiz.Expired(now) {
			s.finalize(a, quiz, now)
			expired = true
			return true, nil
		}
		question, ok := quiz.Question(questionID)
		if !ok || question.IsDeleted {
			return false, fmt.Errorf("%w: unknown question %q", domain.ErrInvalidAnswer, questionID)
		}
		if !answer.Valid(len(question.Options)) {
			return false, fmt.Errorf("%w: expected %d entries of 0 or 1", domain.ErrInvalidAnswer, len(question.Options))
		}
		if prev, ok := a.Answers[questionID]; ok && prev.Answer.Equal(answer) {
			return false, nil
		}
		if a.Answers == nil {
			a.Answers = map[string]domain.AnswerEntry{}
		}
		a.Answers[questionID] = domain.AnswerEntry{QuestionID: questionID, Answer: answer.Clone()}
		return true, nil
	})
	if err != nil {
		return updated, err
	}
	if expired {
		s.logFinalized(updated, "deadline")
		return updated, domain.ErrInvalidState
	}
	return updated, nil
}

// Submit grades and finalizes an in-progress attempt. Submitting twice returns the stored result.
func (s *AttemptService) Submit(ctx context.Context, caller domain.Caller, attemptID string) (domain.Attempt, error) {
	_, quiz, err := s.load(ctx, caller, attemptID, false)
	if err != nil {
		return domain.Attempt{}, err
	}

	var submitted bool
	updated, err := s.attempts.Update(ctx, attemptID, func(a *domain.Attempt) (bool, error) {
		switch a.Status {
		case domain.StatusInProgress:
			s.finalize(a, quiz, s.clock.Now())
			submitted = true
			return true, nil
		case domain.StatusSubmitted:
			return false, nil
		case domain.StatusAbandoned:
			return false, domain.ErrBanned
		}
		return false, fmt.Errorf("%w: status %q", domain.ErrInvalidState, a.Status)
	})
	if err != nil {
		return updated, err
	}
	if submitted {
		s.logFinalized(updated, "submit")
	}
	return updated, nil
}

// Ban disqualifies an in-progress attempt without scoring it. There is no way back.
func (s *AttemptService) Ban(ctx context.Context, caller domain.Caller, attemptID string) (domain.Attempt, error) {
	if !caller.IsInstructor() {
		return domain.Attempt{}, domain.ErrForbidden
	}
	_, quiz, err := s.load(ctx, caller, attemptID, true)
	if err != nil {
		return domain.Attempt{}, err
	}

	var expired bool
	updated, err := s.attempts.Update(ctx, attemptID, func(a *domain.Attempt) (bool, error) {
		switch a.Status {
		case domain.StatusInProgress:
			now := s.clock.Now()
			if quiz.Expired(now) {
				s.finalize(a, quiz, now)
				expired = true
				return true, nil
			}
			a.Status = domain.StatusAbandoned
			a.BannedAt = &now
			return true, nil
		case domain.StatusSubmitted, domain.StatusAbandoned:
			return false, domain.ErrAlreadyTerminal
		}
		return false, fmt.Errorf("%w: status %q", domain.ErrInvalidState, a.Status)
	})
	if err != nil {
		return updated, err
	}
	if expired {
		s.logFinalized(updated, "deadline")
		return updated, domain.ErrAlreadyTerminal
	}

	s.log.WithFields(logrus.Fields{
		"attempt_id": updated.ID,
		"quiz_id":    updated.QuizID,
		"student_id": updated.StudentID,
		"banned_by":  caller.ID,
	}).Warn("attempt banned")
	return updated, nil
}

// Regrade rescores a submitted attempt against the quiz's current snapshot.
// Status and SubmittedAt never change.
func (s *AttemptService) Regrade(ctx context.Context, caller domain.Caller, attemptID string) (domain.Attempt, error) {
	if !caller.IsInstructor() {
		return domain.Attempt{}, domain.ErrForbidden
	}
	_, quiz, err := s.load(ctx, caller, attemptID, true)
	if err != nil {
		return domain.Attempt{}, err
	}
	return s.regrade(ctx, attemptID, quiz)
}

func (s *AttemptService) regrade(ctx context.Context, attemptID string, quiz domain.Quiz) (domain.Attempt, error) {
	return s.attempts.Update(ctx, attemptID, func(a *domain.Attempt) (bool, error) {
		switch a.Status {
		case domain.StatusSubmitted:
			s.scorer.Score(quiz.SnapshotQuestions, a.Answers).Apply(a)
			return true, nil
		case domain.StatusInProgress:
			now := s.clock.Now()
			if quiz.Expired(now) {
				s.finalize(a, quiz, now)
				return true, nil
			}
			return false, domain.ErrInvalidState
		case domain.StatusAbandoned:
			return false, domain.ErrBanned
		}
		return false, fmt.Errorf("%w: status %q", domain.ErrInvalidState, a.Status)
	})
}

// RegradeSummary reports the outcome of RegradeQuiz.
type RegradeSummary struct {
	QuizID   string `json:"quizId"`
	Regraded int    `json:"regraded"`
	Skipped  int    `json:"skipped"`
}

// RegradeQuiz rescores every submitted attempt of a quiz, typically after ReviseQuestion.
func (s *AttemptService) RegradeQuiz(ctx context.Context, caller domain.Caller, quizID string) (RegradeSummary, error) {
	if !caller.IsInstructor() {
		return RegradeSummary{}, domain.ErrForbidden
	}
	quiz, err := s.quizzes.GetQuiz(ctx, quizID)
	if err != nil {
		return RegradeSummary{}, err
	}
	attempts, err := s.attempts.ListByQuiz(ctx, quizID)
	if err != nil {
		return RegradeSummary{}, err
	}

	summary := RegradeSummary{QuizID: quizID}
	var mu sync.Mutex
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.regradeConcurrency)
	for _, a := range attempts {
		if a.Status != domain.StatusSubmitted {
			summary.Skipped++
			continue
		}
		attemptID := a.ID
		g.Go(func() error {
			_, err := s.regrade(gctx, attemptID, quiz)
			if err != nil {
				return fmt.Errorf("regrade attempt %s: %w", attemptID, err)
			}
			mu.Lock()
			summary.Regraded++
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return summary, err
	}

	s.log.WithFields(logrus.Fields{
		"quiz_id":  quizID,
		"regraded": summary.Regraded,
		"skipped":  summary.Skipped,
	}).Info("quiz regraded")
	return summary, nil
}

// QuestionRevision edits a snapshot question. Nil fields are left unchanged.
type QuestionRevision struct {
	CorrectOptions domain.Vector `json:"correctOptions,omitempty"`
	Points         *float64      `json:"points,omitempty"`
	IsDeleted      *bool         `json:"isDeleted,omitempty"`
}

// ReviseQuestion corrects a snapshot question. Existing grades change only when regraded.
func (s *AttemptService) ReviseQuestion(ctx context.Context, caller domain.Caller, quizID, questionID string, rev QuestionRevision) (domain.Quiz, error) {
	if !caller.IsInstructor() {
		return domain.Quiz{}, domain.ErrForbidden
	}
	quiz, err := s.quizzes.GetQuiz(ctx, quizID)
	if err != nil {
		return domain.Quiz{}, err
	}

	questions := make([]domain.QuestionSnapshot, len(quiz.SnapshotQuestions))
	copy(questions, quiz.SnapshotQuestions)
	idx := -1
	for i := range questions {
		if questions[i].ID == questionID {
			idx = i
			break
		}
	}
	if idx < 0 {
		return domain.Quiz{}, domain.ErrQuestionNotFound
	}

	q := questions[idx]
	if rev.CorrectOptions != nil {
		q.CorrectOptions = rev.CorrectOptions.Clone()
	}
	if rev.Points != nil {
		q.Points = *rev.Points
	}
	if rev.IsDeleted != nil {
		q.IsDeleted = *rev.IsDeleted
	}
	if err := q.Validate(); err != nil {
		return domain.Quiz{}, fmt.Errorf("question %s: %w", questionID, err)
	}
	questions[idx] = q

	updated, err := s.quizzes.ReviseSnapshot(ctx, quizID, questions)
	if err != nil {
		return domain.Quiz{}, err
	}
	s.log.WithFields(logrus.Fields{
		"quiz_id":     quizID,
		"question_id": questionID,
		"revised_by":  caller.ID,
	}).Info("snapshot question revised")
	return updated, nil
}

// GetAttempt returns an attempt to its owner or an instructor, finalizing it first if the
// quiz window has closed.
func (s *AttemptService) GetAttempt(ctx context.Context, caller domain.Caller, attemptID string) (domain.Attempt, error) {
	a, quiz, err := s.load(ctx, caller, attemptID, true)
	if err != nil {
		return domain.Attempt{}, err
	}
	return s.enforceDeadline(ctx, a, quiz)
}

// PaperQuestion is a snapshot question without its answer key.
type PaperQuestion struct {
	ID      string              `json:"id"`
	Text    string              `json:"text"`
	Type    domain.QuestionType `json:"type"`
	Options []string            `json:"options"`
	Points  float64             `json:"points"`
}

// Paper is what a student sees while taking the quiz.
type Paper struct {
	Attempt   domain.Attempt  `json:"attempt"`
	Title     string          `json:"title"`
	Deadline  time.Time       `json:"deadline"`
	Questions []PaperQuestion `json:"questions"`
}

// GetPaper returns the attempt together with the questions it is answered against.
func (s *AttemptService) GetPaper(ctx context.Context, caller domain.Caller, attemptID string) (Paper, error) {
	a, quiz, err := s.load(ctx, caller, attemptID, true)
	if err != nil {
		return Paper{}, err
	}
	a, err = s.enforceDeadline(ctx, a, quiz)
	if err != nil {
		return Paper{}, err
	}

	paper := Paper{
		Attempt:   a,
		Title:     quiz.Title,
		Deadline:  quiz.EndTime,
		Questions: make([]PaperQuestion, 0, len(quiz.SnapshotQuestions)),
	}
	for _, q := range quiz.SnapshotQuestions {
		if q.IsDeleted {
			continue
		}
		paper.Questions = append(paper.Questions, PaperQuestion{
			ID:      q.ID,
			Text:    q.Text,
			Type:    q.Type,
			Options: q.Options,
			Points:  q.Points,
		})
	}
	return paper, nil
}

// load fetches the attempt and its quiz and checks that the caller may see it.
func (s *AttemptService) load(ctx context.Context, caller domain.Caller, attemptID string, instructorAllowed bool) (domain.Attempt, domain.Quiz, error) {
	a, err := s.attempts.Get(ctx, attemptID)
	if err != nil {
		return domain.Attempt{}, domain.Quiz{}, err
	}
	owner := caller.ID != "" && a.StudentID == caller.ID
	if !owner && !(instructorAllowed && caller.IsInstructor()) {
		return domain.Attempt{}, domain.Quiz{}, domain.ErrForbidden
	}
	quiz, err := s.quizzes.GetQuiz(ctx, a.QuizID)
	if err != nil {
		return domain.Attempt{}, domain.Quiz{}, err
	}
	return a, quiz, nil
}

// finalize grades a and moves it to SUBMITTED. Callers hold the store's update for a.
func (s *AttemptService) finalize(a *domain.Attempt, quiz domain.Quiz, now time.Time) {
	s.scorer.Score(quiz.SnapshotQuestions, a.Answers).Apply(a)
	a.Status = domain.StatusSubmitted
	a.SubmittedAt = &now
}

func (s *AttemptService) logFinalized(a domain.Attempt, reason string) {
	s.log.WithFields(logrus.Fields{
		"attempt_id":       a.ID,
		"quiz_id":          a.QuizID,
		"student_id":       a.StudentID,
		"total_score":      a.TotalScore,
		"score_percentage": a.ScorePercentage,
		"reason":           reason,
	}).Info("attempt submitted")
}
