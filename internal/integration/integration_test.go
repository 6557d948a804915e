package integration

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/jackc/pgx/v4/pgxpool"
	goredis "github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
	tc "github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/pgdialect"
	"github.com/uptrace/bun/driver/pgdriver"
	"github.com/uptrace/bun/migrate"
	"golang.org/x/crypto/bcrypt"

	"quiz-attempt-service/internal/app"
	"quiz-attempt-service/internal/domain"
	pgstore "quiz-attempt-service/internal/infra/postgres"
	pgmigrations "quiz-attempt-service/internal/infra/postgres/migrations"
	infraredis "quiz-attempt-service/internal/infra/redis"
)

var (
	student    = domain.Caller{ID: "u1", Role: domain.RoleStudent}
	instructor = domain.Caller{ID: "t1", Role: domain.RoleInstructor}
)

func TestAttemptLifecyclePostgres(t *testing.T) {
	ctx := context.Background()
	requireDocker(t)

	pgURL, pgCleanup := startPostgres(t, ctx)
	defer pgCleanup()
	migrateDB(t, ctx, pgURL)

	pool, err := pgxpool.Connect(ctx, pgURL)
	if err != nil {
		t.Fatalf("connect pg: %v", err)
	}
	defer pool.Close()

	clock := app.NewManualClock(time.Now().UTC().Truncate(time.Second))
	quizzes := pgstore.NewQuizRepository(pool)
	bank := pgstore.NewQuestionBank(pool)
	seedQuiz(t, ctx, quizzes, bank, clock.Now())

	service := newService(quizzes, bank, pgstore.NewAttemptStore(pool), clock)
	runLifecycle(t, ctx, service, clock)
}

func TestAttemptLifecycleRedis(t *testing.T) {
	ctx := context.Background()
	requireDocker(t)

	pgURL, pgCleanup := startPostgres(t, ctx)
	defer pgCleanup()
	redisURL, redisCleanup := startRedis(t, ctx)
	defer redisCleanup()
	migrateDB(t, ctx, pgURL)

	pool, err := pgxpool.Connect(ctx, pgURL)
	if err != nil {
		t.Fatalf("connect pg: %v", err)
	}
	defer pool.Close()

	redisClient, err := redisClientFromURL(redisURL)
	if err != nil {
		t.Fatalf("redis client: %v", err)
	}
	defer redisClient.Close()

	clock := app.NewManualClock(time.Now().UTC().Truncate(time.Second))
	source := pgstore.NewQuizRepository(pool)
	bank := pgstore.NewQuestionBank(pool)
	seedQuiz(t, ctx, source, bank, clock.Now())

	quizzes := infraredis.NewQuizCache(redisClient, source, 5*time.Minute)
	service := newService(quizzes, bank, infraredis.NewAttemptStore(redisClient), clock)
	runLifecycle(t, ctx, service, clock)
}

// runLifecycle drives enrollment, concurrent auto-saves, submission and a deadline sweep.
func runLifecycle(t *testing.T, ctx context.Context, service *app.AttemptService, clock *app.ManualClock) {
	t.Helper()

	if _, err := service.Enroll(ctx, student, "quiz-1", "wrong"); !errors.Is(err, domain.ErrUnauthorized) {
		t.Fatalf("expected unauthorized, got %v", err)
	}

	var (
		wg  sync.WaitGroup
		ids = make([]string, 4)
	)
	for i := range ids {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			a, err := service.Enroll(ctx, student, "quiz-1", "secret")
			if err != nil {
				t.Errorf("enroll: %v", err)
				return
			}
			ids[i] = a.ID
		}(i)
	}
	wg.Wait()
	for _, id := range ids {
		if id != ids[0] {
			t.Fatalf("expected a single attempt, got %v", ids)
		}
	}
	attemptID := ids[0]

	paper, err := service.GetPaper(ctx, student, attemptID)
	if err != nil {
		t.Fatalf("paper: %v", err)
	}
	if len(paper.Questions) != 2 {
		t.Fatalf("expected 2 questions, got %d", len(paper.Questions))
	}
	q1, q2 := paper.Questions[0].ID, paper.Questions[1].ID

	for i := 0; i < 5; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			if _, err := service.AutoSave(ctx, student, attemptID, q1, domain.Vector{0, 1, 0}); err != nil {
				t.Errorf("autosave q1: %v", err)
			}
		}()
		go func() {
			defer wg.Done()
			if _, err := service.AutoSave(ctx, student, attemptID, q2, domain.Vector{1, 0, 0}); err != nil {
				t.Errorf("autosave q2: %v", err)
			}
		}()
	}
	wg.Wait()

	submitted, err := service.Submit(ctx, student, attemptID)
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	if submitted.Status != domain.StatusSubmitted || submitted.TotalScore != 1 || submitted.TotalQuizScore != 3 {
		t.Fatalf("unexpected submission %+v", submitted)
	}
	if _, err := service.Ban(ctx, instructor, attemptID); !errors.Is(err, domain.ErrAlreadyTerminal) {
		t.Fatalf("expected already terminal, got %v", err)
	}

	late := domain.Caller{ID: "u2", Role: domain.RoleStudent}
	if _, err := service.Enroll(ctx, late, "quiz-1", "secret"); err != nil {
		t.Fatalf("enroll u2: %v", err)
	}
	clock.Advance(2 * time.Hour)
	n, err := service.SweepExpired(ctx)
	if err != nil {
		t.Fatalf("sweep: %v", err)
	}
	if n != 1 {
		t.Fatalf("expected 1 swept attempt, got %d", n)
	}
}

func newService(quizzes app.QuizRepository, bank app.QuestionBank, attempts app.AttemptRepository, clock app.Clock) *app.AttemptService {
	log := logrus.New()
	log.SetOutput(io.Discard)
	return app.NewAttemptService(quizzes, bank, attempts, app.WithClock(clock), app.WithLogger(log))
}

func seedQuiz(t *testing.T, ctx context.Context, quizzes *pgstore.QuizRepository, bank *pgstore.QuestionBank, now time.Time) {
	t.Helper()
	hash, err := bcrypt.GenerateFromPassword([]byte("secret"), bcrypt.MinCost)
	if err != nil {
		t.Fatalf("hash: %v", err)
	}
	if err := quizzes.InsertQuiz(ctx, domain.Quiz{
		ID:           "quiz-1",
		Title:        "Arithmetic",
		Published:    true,
		StartTime:    now.Add(-time.Minute),
		EndTime:      now.Add(time.Hour),
		PasswordHash: string(hash),
	}); err != nil {
		t.Fatalf("insert quiz: %v", err)
	}
	questions := []domain.Question{
		{ID: "q1", Text: "What is 2 + 2?", Options: []string{"3", "4", "5"}, CorrectOptions: domain.Vector{0, 1, 0}, Points: 1},
		{ID: "q2", Text: "Which are even?", Options: []string{"2", "3", "4"}, CorrectOptions: domain.Vector{1, 0, 1}, Points: 2},
	}
	for i, q := range questions {
		if err := bank.InsertQuestion(ctx, "quiz-1", i, q); err != nil {
			t.Fatalf("insert question: %v", err)
		}
	}
}

func migrateDB(t *testing.T, ctx context.Context, dsn string) {
	t.Helper()
	sqldb := sql.OpenDB(pgdriver.NewConnector(pgdriver.WithDSN(dsn)))
	db := bun.NewDB(sqldb, pgdialect.New())
	defer db.Close()

	migrator := migrate.NewMigrator(db, pgmigrations.Migrations)
	if err := migrator.Init(ctx); err != nil {
		t.Fatalf("migrator init: %v", err)
	}
	if _, err := migrator.Migrate(ctx); err != nil {
		t.Fatalf("migrate: %v", err)
	}
}

func startPostgres(t *testing.T, ctx context.Context) (string, func()) {
	t.Helper()
	req := tc.ContainerRequest{
		Image:        "postgres:15-alpine",
		Env:          map[string]string{"POSTGRES_USER": "quiz", "POSTGRES_PASSWORD": "quizpass", "POSTGRES_DB": "quizdb"},
		ExposedPorts: []string{"5432/tcp"},
		WaitingFor: wait.ForLog("database system is ready to accept connections").
			WithOccurrence(2).WithStartupTimeout(60 * time.Second),
	}
	container, err := tc.GenericContainer(ctx, tc.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	if err != nil {
		if strings.Contains(err.Error(), "Cannot connect to the Docker daemon") {
			t.Skipf("docker not available: %v", err)
		}
		t.Fatalf("start postgres: %v", err)
	}
	host, err := container.Host(ctx)
	if err != nil {
		t.Fatalf("host: %v", err)
	}
	port, err := container.MappedPort(ctx, "5432/tcp")
	if err != nil {
		t.Fatalf("port: %v", err)
	}
	dsn := fmt.Sprintf("postgres://quiz:quizpass@%s:%s/quizdb?sslmode=disable", host, port.Port())
	return dsn, func() {
		_ = container.Terminate(ctx)
	}
}

func startRedis(t *testing.T, ctx context.Context) (string, func()) {
	t.Helper()
	req := tc.ContainerRequest{
		Image:        "redis:7-alpine",
		ExposedPorts: []string{"6379/tcp"},
		WaitingFor:   wait.ForListeningPort("6379/tcp").WithStartupTimeout(30 * time.Second),
	}
	container, err := tc.GenericContainer(ctx, tc.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	if err != nil {
		if strings.Contains(err.Error(), "Cannot connect to the Docker daemon") {
			t.Skipf("docker not available: %v", err)
		}
		t.Fatalf("start redis: %v", err)
	}
	host, err := container.Host(ctx)
	if err != nil {
		t.Fatalf("redis host: %v", err)
	}
	port, err := container.MappedPort(ctx, "6379/tcp")
	if err != nil {
		t.Fatalf("redis port: %v", err)
	}
	url := fmt.Sprintf("redis://%s:%s", host, port.Port())
	return url, func() {
		_ = container.Terminate(ctx)
	}
}

func redisClientFromURL(url string) (*goredis.Client, error) {
	opts, err := goredis.ParseURL(url)
	if err != nil {
		return nil, err
	}
	return goredis.NewClient(opts), nil
}

func requireDocker(t *testing.T) {
	t.Helper()
	if _, err := tc.NewDockerProvider(); err != nil {
		t.Skipf("docker not available: %v", err)
	}
}
