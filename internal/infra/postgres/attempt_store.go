package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v4"
	"github.com/jackc/pgx/v4/pgxpool"

	"quiz-attempt-service/internal/app"
	"quiz-attempt-service/internal/domain"
)

// AttemptStore persists attempts in quiz_attempts. Uniqueness per (quiz, student) is a table
// constraint and Update serializes writers with SELECT ... FOR UPDATE.
type AttemptStore struct {
	pool *pgxpool.Pool
}

var _ app.AttemptRepository = (*AttemptStore)(nil)

func NewAttemptStore(pool *pgxpool.Pool) *AttemptStore {
	return &AttemptStore{pool: pool}
}

const attemptColumns = `id, quiz_id, student_id, status, started_at, submitted_at, banned_at,
answers, total_score, total_quiz_score, score_percentage`

func (s *AttemptStore) Create(ctx context.Context, a domain.Attempt) (domain.Attempt, bool, error) {
	answers, err := encodeAnswers(a.Answers)
	if err != nil {
		return domain.Attempt{}, false, err
	}
	tag, err := s.pool.Exec(ctx, `INSERT INTO quiz_attempts (`+attemptColumns+`)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
ON CONFLICT (quiz_id, student_id) DO NOTHING`,
		a.ID, a.QuizID, a.StudentID, string(a.Status), a.StartedAt, a.SubmittedAt, a.BannedAt,
		answers, a.TotalScore, a.TotalQuizScore, a.ScorePercentage)
	if err != nil {
		return domain.Attempt{}, false, fmt.Errorf("insert attempt: %w", err)
	}
	if tag.RowsAffected() == 1 {
		if a.Answers == nil {
			a.Answers = map[string]domain.AnswerEntry{}
		}
		return a.Clone(), true, nil
	}
	existing, err := s.FindByQuizStudent(ctx, a.QuizID, a.StudentID)
	if err != nil {
		return domain.Attempt{}, false, err
	}
	return existing, false, nil
}

func (s *AttemptStore) Get(ctx context.Context, attemptID string) (domain.Attempt, error) {
	return scanAttempt(s.pool.QueryRow(ctx, `SELECT `+attemptColumns+` FROM quiz_attempts WHERE id = $1`, attemptID))
}

func (s *AttemptStore) FindByQuizStudent(ctx context.Context, quizID, studentID string) (domain.Attempt, error) {
	return scanAttempt(s.pool.QueryRow(ctx,
		`SELECT `+attemptColumns+` FROM quiz_attempts WHERE quiz_id = $1 AND student_id = $2`, quizID, studentID))
}

func (s *AttemptStore) Update(ctx context.Context, attemptID string, fn app.Mutation) (domain.Attempt, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return domain.Attempt{}, fmt.Errorf("begin: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	current, err := scanAttempt(tx.QueryRow(ctx,
		`SELECT `+attemptColumns+` FROM quiz_attempts WHERE id = $1 FOR UPDATE`, attemptID))
	if err != nil {
		return domain.Attempt{}, err
	}

	working := current.Clone()
	write, err := fn(&working)
	if err != nil {
		return current, err
	}
	if !write {
		return current, nil
	}

	answers, err := encodeAnswers(working.Answers)
	if err != nil {
		return domain.Attempt{}, err
	}
	_, err = tx.Exec(ctx, `UPDATE quiz_attempts SET status = $2, submitted_at = $3, banned_at = $4,
answers = $5, total_score = $6, total_quiz_score = $7, score_percentage = $8 WHERE id = $1`,
		attemptID, string(working.Status), working.SubmittedAt, working.BannedAt,
		answers, working.TotalScore, working.TotalQuizScore, working.ScorePercentage)
	if err != nil {
		return domain.Attempt{}, fmt.Errorf("update attempt: %w", err)
	}
	if err := tx.Commit(ctx); err != nil {
		return domain.Attempt{}, fmt.Errorf("commit: %w", err)
	}
	return working, nil
}

func (s *AttemptStore) ListInProgress(ctx context.Context, after app.Cursor, limit int) ([]domain.Attempt, error) {
	query := `SELECT ` + attemptColumns + ` FROM quiz_attempts
WHERE status = $1 AND (started_at, id) > ($2, $3) ORDER BY started_at, id`
	args := []interface{}{string(domain.StatusInProgress), after.StartedAt, after.ID}
	if limit > 0 {
		query += ` LIMIT $4`
		args = append(args, limit)
	}
	return s.list(ctx, query, args...)
}

func (s *AttemptStore) ListByQuiz(ctx context.Context, quizID string) ([]domain.Attempt, error) {
	return s.list(ctx, `SELECT `+attemptColumns+` FROM quiz_attempts WHERE quiz_id = $1 ORDER BY started_at, id`, quizID)
}

func (s *AttemptStore) list(ctx context.Context, query string, args ...interface{}) ([]domain.Attempt, error) {
	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list attempts: %w", err)
	}
	defer rows.Close()

	out := []domain.Attempt{}
	for rows.Next() {
		a, err := scanAttempt(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list attempts: %w", err)
	}
	return out, nil
}

func scanAttempt(row pgx.Row) (domain.Attempt, error) {
	var (
		a         domain.Attempt
		status    string
		submitted *time.Time
		banned    *time.Time
		answers   []byte
	)
	err := row.Scan(&a.ID, &a.QuizID, &a.StudentID, &status, &a.StartedAt, &submitted, &banned,
		&answers, &a.TotalScore, &a.TotalQuizScore, &a.ScorePercentage)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.Attempt{}, domain.ErrAttemptNotFound
	}
	if err != nil {
		return domain.Attempt{}, fmt.Errorf("scan attempt: %w", err)
	}

	a.Status, err = domain.ParseStatus(status)
	if err != nil {
		return domain.Attempt{}, err
	}
	a.SubmittedAt, a.BannedAt = submitted, banned
	a.Answers = map[string]domain.AnswerEntry{}
	if len(answers) > 0 {
		if err := json.Unmarshal(answers, &a.Answers); err != nil {
			return domain.Attempt{}, fmt.Errorf("unmarshal answers: %w", err)
		}
	}
	return a, nil
}

func encodeAnswers(answers map[string]domain.AnswerEntry) (string, error) {
	if answers == nil {
		return "{}", nil
	}
	payload, err := json.Marshal(answers)
	if err != nil {
		return "", fmt.Errorf("marshal answers: %w", err)
	}
	return string(payload), nil
}
