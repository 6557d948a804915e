package app

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"quiz-attempt-service/internal/domain"
)

// enforceDeadline force-submits an in-progress attempt whose quiz window has closed.
// Attempts that are terminal or still within the window are returned unchanged.
func (s *AttemptService) enforceDeadline(ctx context.Context, a domain.Attempt, quiz domain.Quiz) (domain.Attempt, error) {
	if a.Status != domain.StatusInProgress || !quiz.Expired(s.clock.Now()) {
		return a, nil
	}
	updated, _, err := s.finalizeExpired(ctx, a.ID, quiz)
	return updated, err
}

// finalizeExpired submits the attempt if it is still in progress and past the deadline.
// applied is false when another writer finalized it first.
func (s *AttemptService) finalizeExpired(ctx context.Context, attemptID string, quiz domain.Quiz) (domain.Attempt, bool, error) {
	var applied bool
	updated, err := s.attempts.Update(ctx, attemptID, func(a *domain.Attempt) (bool, error) {
		if a.Status != domain.StatusInProgress {
			return false, nil
		}
		now := s.clock.Now()
		if !quiz.Expired(now) {
			return false, nil
		}
		s.finalize(a, quiz, now)
		applied = true
		return true, nil
	})
	if err != nil {
		return updated, false, err
	}
	if applied {
		s.logFinalized(updated, "deadline")
	}
	return updated, applied, nil
}

// SweepExpired finalizes in-progress attempts whose quiz has ended. It pages through every
// in-progress attempt, sweepBatch at a time, so attempts of quizzes that are still open never hide
// expired ones. It returns how many attempts this pass finalized; attempts finalized concurrently
// by clients are not counted.
func (s *AttemptService) SweepExpired(ctx context.Context) (int, error) {
	quizzes := make(map[string]domain.Quiz)
	var (
		errs      []error
		cursor    Cursor
		finalized int
	)
	for {
		page, err := s.attempts.ListInProgress(ctx, cursor, s.sweepBatch)
		if err != nil {
			errs = append(errs, fmt.Errorf("list in-progress attempts: %w", err))
			break
		}
		for _, a := range page {
			if err := ctx.Err(); err != nil {
				return finalized, errors.Join(append(errs, err)...)
			}
			quiz, ok := quizzes[a.QuizID]
			if !ok {
				quiz, err = s.quizzes.GetQuiz(ctx, a.QuizID)
				if err != nil {
					errs = append(errs, fmt.Errorf("load quiz %s: %w", a.QuizID, err))
					continue
				}
				quizzes[a.QuizID] = quiz
			}
			if !quiz.Expired(s.clock.Now()) {
				continue
			}
			_, applied, err := s.finalizeExpired(ctx, a.ID, quiz)
			if err != nil {
				errs = append(errs, fmt.Errorf("finalize attempt %s: %w", a.ID, err))
				continue
			}
			if applied {
				finalized++
			}
		}
		if s.sweepBatch <= 0 || len(page) < s.sweepBatch {
			break
		}
		cursor = CursorAt(page[len(page)-1])
	}
	return finalized, errors.Join(errs...)
}

// Sweeper periodically finalizes attempts that no client revisits after the deadline.
type Sweeper struct {
	service  *AttemptService
	interval time.Duration
	log      logrus.FieldLogger
}

func NewSweeper(service *AttemptService, interval time.Duration, log logrus.FieldLogger) *Sweeper {
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &Sweeper{service: service, interval: interval, log: log}
}

// Run sweeps every interval until ctx is canceled.
func (w *Sweeper) Run(ctx context.Context) error {
	if w.interval <= 0 {
		w.log.Info("deadline sweeper disabled")
		<-ctx.Done()
		return nil
	}

	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()
	w.log.WithField("interval", w.interval.String()).Info("deadline sweeper started")

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			n, err := w.service.SweepExpired(ctx)
			if err != nil && ctx.Err() == nil {
				w.log.WithError(err).Error("deadline sweep failed")
			}
			if n > 0 {
				w.log.WithField("finalized", n).Info("deadline sweep finalized attempts")
			}
		}
	}
}
