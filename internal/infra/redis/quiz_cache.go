package redis

import (
	"context"
	"encoding/json"
	"math/rand"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/singleflight"

	"quiz-attempt-service/internal/app"
	"quiz-attempt-service/internal/domain"
)

// QuizCache caches quizzes (window, password hash and snapshot) in Redis as JSON under quiz:{id}
// and falls back to the backing repository on a miss. Snapshot writes go to the backing
// repository first and then drop the cached copy, so every replica reloads it.
type QuizCache struct {
	client  *redis.Client
	backing app.QuizRepository
	ttl     time.Duration
	sf      singleflight.Group

	mu  sync.Mutex
	rnd *rand.Rand
}

var _ app.QuizRepository = (*QuizCache)(nil)

func NewQuizCache(client *redis.Client, backing app.QuizRepository, ttl time.Duration) *QuizCache {
	return &QuizCache{
		client:  client,
		backing: backing,
		ttl:     ttl,
		rnd:     rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

// cachedQuiz carries the password hash, which domain.Quiz never serializes.
type cachedQuiz struct {
	domain.Quiz
	PasswordHash string `json:"passwordHash"`
}

func (c *QuizCache) GetQuiz(ctx context.Context, quizID string) (domain.Quiz, error) {
	if quiz, ok := c.lookup(ctx, quizID); ok {
		return quiz, nil
	}

	result, err, _ := c.sf.Do(quizID, func() (interface{}, error) {
		// Re-check cache in case another goroutine filled it.
		if quiz, ok := c.lookup(ctx, quizID); ok {
			return quiz, nil
		}
		quiz, err := c.backing.GetQuiz(ctx, quizID)
		if err != nil {
			return domain.Quiz{}, err
		}
		c.store(ctx, quiz)
		return quiz, nil
	})
	if err != nil {
		return domain.Quiz{}, err
	}
	return result.(domain.Quiz), nil
}

func (c *QuizCache) SaveSnapshot(ctx context.Context, quizID string, questions []domain.QuestionSnapshot) (domain.Quiz, error) {
	quiz, err := c.backing.SaveSnapshot(ctx, quizID, questions)
	c.Invalidate(ctx, quizID)
	return quiz, err
}

func (c *QuizCache) ReviseSnapshot(ctx context.Context, quizID string, questions []domain.QuestionSnapshot) (domain.Quiz, error) {
	quiz, err := c.backing.ReviseSnapshot(ctx, quizID, questions)
	c.Invalidate(ctx, quizID)
	return quiz, err
}

// Invalidate drops the cached copy of a quiz. Failures are ignored; the entry still expires.
func (c *QuizCache) Invalidate(ctx context.Context, quizID string) {
	_ = c.client.Del(ctx, quizKey(quizID)).Err()
}

func (c *QuizCache) lookup(ctx context.Context, quizID string) (domain.Quiz, bool) {
	raw, err := c.client.Get(ctx, quizKey(quizID)).Bytes()
	if err != nil {
		return domain.Quiz{}, false
	}
	var cached cachedQuiz
	if err := json.Unmarshal(raw, &cached); err != nil {
		return domain.Quiz{}, false
	}
	quiz := cached.Quiz
	quiz.PasswordHash = cached.PasswordHash
	return quiz, true
}

// store is best-effort; a failed write only costs another backing read.
func (c *QuizCache) store(ctx context.Context, quiz domain.Quiz) {
	payload, err := json.Marshal(cachedQuiz{Quiz: quiz, PasswordHash: quiz.PasswordHash})
	if err != nil {
		return
	}
	_ = c.client.Set(ctx, quizKey(quiz.ID), payload, c.ttlWithJitter()).Err()
}

func (c *QuizCache) ttlWithJitter() time.Duration {
	if c.ttl <= 0 {
		return 0
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	jitterMax := int64(c.ttl) / 10
	return c.ttl + time.Duration(c.rnd.Int63n(jitterMax+1))
}

func quizKey(quizID string) string {
	return "quiz:" + quizID
}
