package cli

import (
	"context"
	"time"

	"github.com/jackc/pgx/v4/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"

	"quiz-attempt-service/internal/app"
	"quiz-attempt-service/internal/config"
	"quiz-attempt-service/internal/domain"
	"quiz-attempt-service/internal/infra/memory"
	pgstore "quiz-attempt-service/internal/infra/postgres"
	redisstore "quiz-attempt-service/internal/infra/redis"
)

// backend bundles the stores selected by config:
// Postgres holds quizzes, questions and attempts when configured; otherwise a seeded in-memory
// catalog is used. Redis, when configured, caches quizzes and holds attempts unless Postgres does.
type backend struct {
	quizzes  app.QuizRepository
	bank     app.QuestionBank
	attempts app.AttemptRepository
	closers  []func()
}

func (b *backend) Close() {
	for i := len(b.closers) - 1; i >= 0; i-- {
		b.closers[i]()
	}
}

func openBackend(ctx context.Context, cfg config.Config, log logrus.FieldLogger) (*backend, error) {
	b := &backend{}

	var redisClient *redis.Client
	if cfg.Redis.Addr != "" {
		redisClient = redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		b.closers = append(b.closers, func() { _ = redisClient.Close() })
	}

	var source app.QuizRepository
	if cfg.Postgres.URL != "" {
		pool, err := pgxpool.Connect(ctx, cfg.Postgres.URL)
		if err != nil {
			b.Close()
			return nil, err
		}
		b.closers = append(b.closers, pool.Close)
		source = pgstore.NewQuizRepository(pool)
		b.bank = pgstore.NewQuestionBank(pool)
		b.attempts = pgstore.NewAttemptStore(pool)
		log.Info("using postgres for quizzes and attempts")
	} else {
		quizzes, bank := sampleCatalog(time.Now())
		source, b.bank = quizzes, bank
		log.Warn("postgres not configured; serving the in-memory sample catalog")
	}

	quizTTL := config.TTLDuration(cfg.Quiz.TTL, 10*time.Minute)
	if redisClient != nil {
		b.quizzes = redisstore.NewQuizCache(redisClient, source, quizTTL)
		if b.attempts == nil {
			b.attempts = redisstore.NewAttemptStore(redisClient)
			log.Info("using redis for attempts")
		}
	} else {
		b.quizzes = memory.NewQuizCache(source, quizTTL)
	}
	if b.attempts == nil {
		b.attempts = memory.NewAttemptStore()
	}
	return b, nil
}

func newService(b *backend, cfg config.Config, log logrus.FieldLogger) *app.AttemptService {
	return app.NewAttemptService(b.quizzes, b.bank, b.attempts,
		app.WithLogger(log),
		app.WithSweepBatch(cfg.Deadline.Batch),
		app.WithRegradeConcurrency(cfg.Regrade.Concurrency),
	)
}

// sampleCatalog provides one open quiz for local runs without a database.
func sampleCatalog(now time.Time) (*memory.QuizStore, *memory.StaticQuestionBank) {
	quizzes := memory.NewQuizStore(domain.Quiz{
		ID:        "quiz-1",
		Title:     "Sample quiz",
		Published: true,
		StartTime: now.Add(-time.Minute),
		EndTime:   now.Add(24 * time.Hour),
	})
	bank := memory.NewStaticQuestionBank(map[string][]domain.Question{
		"quiz-1": {
			{
				ID:             "q1",
				Text:           "What is 2 + 2?",
				Options:        []string{"3", "4", "5"},
				CorrectOptions: domain.Vector{0, 1, 0},
				Points:         1,
			},
			{
				ID:             "q2",
				Text:           "Which of these are even?",
				Options:        []string{"2", "3", "4"},
				CorrectOptions: domain.Vector{1, 0, 1},
				Points:         2,
			},
		},
	})
	return quizzes, bank
}
