package postgres

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jackc/pgx/v4/pgxpool"

	"quiz-attempt-service/internal/app"
	"quiz-attempt-service/internal/domain"
)

// QuestionBank loads the live questions of a quiz from the questions table.
type QuestionBank struct {
	pool *pgxpool.Pool
}

var _ app.QuestionBank = (*QuestionBank)(nil)

func NewQuestionBank(pool *pgxpool.Pool) *QuestionBank {
	return &QuestionBank{pool: pool}
}

func (b *QuestionBank) ListQuestions(ctx context.Context, quizID string) ([]domain.Question, error) {
	rows, err := b.pool.Query(ctx, `SELECT id, text, type, options, correct_options, points
FROM questions WHERE quiz_id = $1 ORDER BY position, id`, quizID)
	if err != nil {
		return nil, fmt.Errorf("list questions: %w", err)
	}
	defer rows.Close()

	var questions []domain.Question
	for rows.Next() {
		var (
			q       domain.Question
			qt      string
			correct []byte
		)
		if err := rows.Scan(&q.ID, &q.Text, &qt, &q.Options, &correct, &q.Points); err != nil {
			return nil, fmt.Errorf("scan question: %w", err)
		}
		if err := json.Unmarshal(correct, &q.CorrectOptions); err != nil {
			return nil, fmt.Errorf("question %s: unmarshal correct options: %w", q.ID, err)
		}
		q.Type = domain.QuestionType(qt)
		questions = append(questions, q)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list questions: %w", err)
	}
	return questions, nil
}

// InsertQuestion appends a question to the bank at the given position.
func (b *QuestionBank) InsertQuestion(ctx context.Context, quizID string, position int, q domain.Question) error {
	correct, err := json.Marshal(q.CorrectOptions)
	if err != nil {
		return fmt.Errorf("marshal correct options: %w", err)
	}
	_, err = b.pool.Exec(ctx, `INSERT INTO questions (id, quiz_id, position, text, type, options, correct_options, points)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		q.ID, quizID, position, q.Text, string(q.Type), q.Options, string(correct), q.Points)
	if err != nil {
		return fmt.Errorf("insert question: %w", err)
	}
	return nil
}
