package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"

	"github.com/redis/go-redis/v9"

	"quiz-attempt-service/internal/app"
	"quiz-attempt-service/internal/domain"
)

const maxTxRetries = 16

var errContention = errors.New("redis: too many concurrent writers")

// AttemptStore keeps attempts in Redis so several service replicas can share them.
// Layout:
//
//	attempt:{id}                              JSON attempt
//	attempt:quiz:{quizID}:student:{studentID}  attempt id (one attempt per pair)
//	attempts:in_progress                       set of attempt ids still writable
//	quiz:{quizID}:attempts                     set of attempt ids per quiz
//
// Writes use WATCH/MULTI so a Mutation always runs against the latest committed value.
type AttemptStore struct {
	client *redis.Client
}

var _ app.AttemptRepository = (*AttemptStore)(nil)

func NewAttemptStore(client *redis.Client) *AttemptStore {
	return &AttemptStore{client: client}
}

func (s *AttemptStore) Create(ctx context.Context, a domain.Attempt) (domain.Attempt, bool, error) {
	if a.Answers == nil {
		a.Answers = map[string]domain.AnswerEntry{}
	}
	payload, err := json.Marshal(a)
	if err != nil {
		return domain.Attempt{}, false, fmt.Errorf("encode attempt: %w", err)
	}
	pair := pairKey(a.QuizID, a.StudentID)

	var (
		stored  domain.Attempt
		created bool
	)
	txf := func(tx *redis.Tx) error {
		existingID, err := tx.Get(ctx, pair).Result()
		switch {
		case err == nil:
			stored, err = s.get(ctx, tx, existingID)
			created = false
			return err
		case !errors.Is(err, redis.Nil):
			return err
		}

		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, attemptKey(a.ID), payload, 0)
			pipe.Set(ctx, pair, a.ID, 0)
			pipe.SAdd(ctx, quizAttemptsKey(a.QuizID), a.ID)
			if a.Status == domain.StatusInProgress {
				pipe.SAdd(ctx, inProgressKey, a.ID)
			}
			return nil
		})
		if err == nil {
			stored, created = a.Clone(), true
		}
		return err
	}

	if err := s.retry(ctx, txf, pair); err != nil {
		return domain.Attempt{}, false, err
	}
	return stored, created, nil
}

func (s *AttemptStore) Get(ctx context.Context, attemptID string) (domain.Attempt, error) {
	return s.get(ctx, s.client, attemptID)
}

func (s *AttemptStore) FindByQuizStudent(ctx context.Context, quizID, studentID string) (domain.Attempt, error) {
	id, err := s.client.Get(ctx, pairKey(quizID, studentID)).Result()
	if errors.Is(err, redis.Nil) {
		return domain.Attempt{}, domain.ErrAttemptNotFound
	}
	if err != nil {
		return domain.Attempt{}, err
	}
	return s.get(ctx, s.client, id)
}

func (s *AttemptStore) Update(ctx context.Context, attemptID string, fn app.Mutation) (domain.Attempt, error) {
	key := attemptKey(attemptID)
	var (
		result   domain.Attempt
		abortErr error
	)
	txf := func(tx *redis.Tx) error {
		current, err := s.get(ctx, tx, attemptID)
		if err != nil {
			return err
		}
		working := current.Clone()
		write, err := fn(&working)
		if err != nil {
			result, abortErr = current, err
			return nil
		}
		if !write {
			result, abortErr = current, nil
			return nil
		}

		payload, err := json.Marshal(working)
		if err != nil {
			return fmt.Errorf("encode attempt: %w", err)
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, key, payload, 0)
			if working.Status != domain.StatusInProgress {
				pipe.SRem(ctx, inProgressKey, attemptID)
			}
			return nil
		})
		if err == nil {
			result, abortErr = working, nil
		}
		return err
	}

	if err := s.retry(ctx, txf, key); err != nil {
		return domain.Attempt{}, err
	}
	return result, abortErr
}

func (s *AttemptStore) ListInProgress(ctx context.Context, after app.Cursor, limit int) ([]domain.Attempt, error) {
	ids, err := s.client.SMembers(ctx, inProgressKey).Result()
	if err != nil {
		return nil, err
	}
	attempts, err := s.getMany(ctx, ids)
	if err != nil {
		return nil, err
	}
	out := attempts[:0]
	for _, a := range attempts {
		if a.Status == domain.StatusInProgress && after.Precedes(a) {
			out = append(out, a)
		}
	}
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *AttemptStore) ListByQuiz(ctx context.Context, quizID string) ([]domain.Attempt, error) {
	ids, err := s.client.SMembers(ctx, quizAttemptsKey(quizID)).Result()
	if err != nil {
		return nil, err
	}
	return s.getMany(ctx, ids)
}

// retry runs txf under WATCH until it commits without a conflicting write.
func (s *AttemptStore) retry(ctx context.Context, txf func(*redis.Tx) error, keys ...string) error {
	for i := 0; i < maxTxRetries; i++ {
		err := s.client.Watch(ctx, txf, keys...)
		if !errors.Is(err, redis.TxFailedErr) {
			return err
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
	}
	return errContention
}

func (s *AttemptStore) get(ctx context.Context, c getter, attemptID string) (domain.Attempt, error) {
	raw, err := c.Get(ctx, attemptKey(attemptID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return domain.Attempt{}, domain.ErrAttemptNotFound
	}
	if err != nil {
		return domain.Attempt{}, err
	}
	return decodeAttempt(raw)
}

func (s *AttemptStore) getMany(ctx context.Context, ids []string) ([]domain.Attempt, error) {
	if len(ids) == 0 {
		return []domain.Attempt{}, nil
	}
	keys := make([]string, len(ids))
	for i, id := range ids {
		keys[i] = attemptKey(id)
	}
	values, err := s.client.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, err
	}

	out := make([]domain.Attempt, 0, len(values))
	for _, v := range values {
		raw, ok := v.(string)
		if !ok {
			continue
		}
		a, err := decodeAttempt([]byte(raw))
		if err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].StartedAt.Equal(out[j].StartedAt) {
			return out[i].StartedAt.Before(out[j].StartedAt)
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

func decodeAttempt(raw []byte) (domain.Attempt, error) {
	var a domain.Attempt
	if err := json.Unmarshal(raw, &a); err != nil {
		return domain.Attempt{}, fmt.Errorf("decode attempt: %w", err)
	}
	if a.Answers == nil {
		a.Answers = map[string]domain.AnswerEntry{}
	}
	return a, nil
}

// getter is satisfied by both *redis.Client and *redis.Tx.
type getter interface {
	Get(ctx context.Context, key string) *redis.StringCmd
}

const inProgressKey = "attempts:in_progress"

func attemptKey(id string) string {
	return "attempt:" + id
}

func pairKey(quizID, studentID string) string {
	return "attempt:quiz:" + quizID + ":student:" + studentID
}

func quizAttemptsKey(quizID string) string {
	return "quiz:" + quizID + ":attempts"
}
