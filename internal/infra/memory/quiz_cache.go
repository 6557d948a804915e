package memory

import (
	"context"
	"math/rand"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"quiz-attempt-service/internal/app"
	"quiz-attempt-service/internal/domain"
)

// QuizCache caches quizzes with TTL in front of a slower app.QuizRepository.
// Snapshot writes go straight to the backing repository and refresh the cached copy.
type QuizCache struct {
	backing app.QuizRepository
	ttl     time.Duration
	clock   func() time.Time
	sf      singleflight.Group

	mu    sync.RWMutex
	rnd   *rand.Rand
	cache map[string]cachedQuiz
}

type cachedQuiz struct {
	quiz      domain.Quiz
	expiresAt time.Time
}

var _ app.QuizRepository = (*QuizCache)(nil)

func NewQuizCache(backing app.QuizRepository, ttl time.Duration) *QuizCache {
	return &QuizCache{
		backing: backing,
		ttl:     ttl,
		clock:   time.Now,
		rnd:     rand.New(rand.NewSource(time.Now().UnixNano())),
		cache:   make(map[string]cachedQuiz),
	}
}

func (c *QuizCache) GetQuiz(ctx context.Context, quizID string) (domain.Quiz, error) {
	if quiz, ok := c.lookup(quizID); ok {
		return quiz, nil
	}

	result, err, _ := c.sf.Do(quizID, func() (interface{}, error) {
		if quiz, ok := c.lookup(quizID); ok {
			return quiz, nil
		}
		quiz, err := c.backing.GetQuiz(ctx, quizID)
		if err != nil {
			return domain.Quiz{}, err
		}
		c.store(quiz)
		return quiz, nil
	})
	if err != nil {
		return domain.Quiz{}, err
	}
	return result.(domain.Quiz), nil
}

func (c *QuizCache) SaveSnapshot(ctx context.Context, quizID string, questions []domain.QuestionSnapshot) (domain.Quiz, error) {
	quiz, err := c.backing.SaveSnapshot(ctx, quizID, questions)
	if err != nil {
		c.Invalidate(quizID)
		return domain.Quiz{}, err
	}
	c.store(quiz)
	return quiz, nil
}

func (c *QuizCache) ReviseSnapshot(ctx context.Context, quizID string, questions []domain.QuestionSnapshot) (domain.Quiz, error) {
	quiz, err := c.backing.ReviseSnapshot(ctx, quizID, questions)
	if err != nil {
		c.Invalidate(quizID)
		return domain.Quiz{}, err
	}
	c.store(quiz)
	return quiz, nil
}

// Invalidate drops a cached quiz.
func (c *QuizCache) Invalidate(quizID string) {
	c.mu.Lock()
	delete(c.cache, quizID)
	c.mu.Unlock()
}

func (c *QuizCache) lookup(quizID string) (domain.Quiz, bool) {
	now := c.clock()
	c.mu.RLock()
	defer c.mu.RUnlock()
	entry, ok := c.cache[quizID]
	if !ok || !entry.expiresAt.After(now) {
		return domain.Quiz{}, false
	}
	return entry.quiz, true
}

func (c *QuizCache) store(quiz domain.Quiz) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.cache[quiz.ID] = cachedQuiz{
		quiz:      quiz,
		expiresAt: c.clock().Add(c.ttlWithJitterLocked()),
	}
}

func (c *QuizCache) ttlWithJitterLocked() time.Duration {
	if c.ttl <= 0 {
		return 0
	}
	// add up to 10% jitter to spread expirations
	jitterMax := int64(c.ttl) / 10
	return c.ttl + time.Duration(c.rnd.Int63n(jitterMax+1))
}
