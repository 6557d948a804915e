package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v4"
	"github.com/jackc/pgx/v4/pgxpool"

	"quiz-attempt-service/internal/app"
	"quiz-attempt-service/internal/domain"
)

// QuizRepository reads quizzes from Postgres. The shared snapshot lives in the JSONB
// column quizzes.snapshot, NULL until the first enrollment builds it.
type QuizRepository struct {
	pool *pgxpool.Pool
}

var _ app.QuizRepository = (*QuizRepository)(nil)

func NewQuizRepository(pool *pgxpool.Pool) *QuizRepository {
	return &QuizRepository{pool: pool}
}

const selectQuiz = `SELECT id, title, published, start_time, end_time, password_hash, snapshot
FROM quizzes WHERE id = $1`

func (r *QuizRepository) GetQuiz(ctx context.Context, quizID string) (domain.Quiz, error) {
	var (
		quiz domain.Quiz
		raw  []byte
	)
	err := r.pool.QueryRow(ctx, selectQuiz, quizID).Scan(
		&quiz.ID, &quiz.Title, &quiz.Published, &quiz.StartTime, &quiz.EndTime, &quiz.PasswordHash, &raw,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.Quiz{}, domain.ErrQuizNotFound
	}
	if err != nil {
		return domain.Quiz{}, fmt.Errorf("load quiz: %w", err)
	}
	if len(raw) > 0 {
		if err := json.Unmarshal(raw, &quiz.SnapshotQuestions); err != nil {
			return domain.Quiz{}, fmt.Errorf("unmarshal snapshot: %w", err)
		}
	}
	return quiz, nil
}

// SaveSnapshot only fills an empty snapshot column, so the first committed writer wins.
func (r *QuizRepository) SaveSnapshot(ctx context.Context, quizID string, questions []domain.QuestionSnapshot) (domain.Quiz, error) {
	payload, err := json.Marshal(questions)
	if err != nil {
		return domain.Quiz{}, fmt.Errorf("marshal snapshot: %w", err)
	}
	_, err = r.pool.Exec(ctx, `UPDATE quizzes SET snapshot = $2 WHERE id = $1 AND snapshot IS NULL`, quizID, string(payload))
	if err != nil {
		return domain.Quiz{}, fmt.Errorf("save snapshot: %w", err)
	}
	return r.GetQuiz(ctx, quizID)
}

func (r *QuizRepository) ReviseSnapshot(ctx context.Context, quizID string, questions []domain.QuestionSnapshot) (domain.Quiz, error) {
	payload, err := json.Marshal(questions)
	if err != nil {
		return domain.Quiz{}, fmt.Errorf("marshal snapshot: %w", err)
	}
	tag, err := r.pool.Exec(ctx, `UPDATE quizzes SET snapshot = $2 WHERE id = $1`, quizID, string(payload))
	if err != nil {
		return domain.Quiz{}, fmt.Errorf("revise snapshot: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.Quiz{}, domain.ErrQuizNotFound
	}
	return r.GetQuiz(ctx, quizID)
}

// InsertQuiz creates or replaces a quiz row without touching its snapshot.
func (r *QuizRepository) InsertQuiz(ctx context.Context, quiz domain.Quiz) error {
	_, err := r.pool.Exec(ctx, `INSERT INTO quizzes (id, title, published, start_time, end_time, password_hash)
VALUES ($1, $2, $3, $4, $5, $6)
ON CONFLICT (id) DO UPDATE SET title = EXCLUDED.title, published = EXCLUDED.published,
	start_time = EXCLUDED.start_time, end_time = EXCLUDED.end_time, password_hash = EXCLUDED.password_hash`,
		quiz.ID, quiz.Title, quiz.Published, quiz.StartTime, quiz.EndTime, quiz.PasswordHash)
	if err != nil {
		return fmt.Errorf("insert quiz: %w", err)
	}
	return nil
}
