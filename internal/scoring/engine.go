// Package scoring grades attempts against a quiz snapshot.
package scoring

import "quiz-attempt-service/internal/domain"

// Scale is the upper bound of ScorePercentage.
const Scale = 10

// Result is the graded view of one attempt.
type Result struct {
	Answers         map[string]domain.AnswerEntry
	TotalScore      float64
	TotalQuizScore  float64
	ScorePercentage float64
}

// Apply copies the derived fields onto an attempt. Status and timestamps are untouched.
func (r Result) Apply(a *domain.Attempt) {
	a.Answers = r.Answers
	a.TotalScore = r.TotalScore
	a.TotalQuizScore = r.TotalQuizScore
	a.ScorePercentage = r.ScorePercentage
}

// Scorer grades a set of answers against snapshot questions.
type Scorer interface {
	Score(questions []domain.QuestionSnapshot, answers map[string]domain.AnswerEntry) Result
}

// Engine is the default all-or-nothing Scorer.
type Engine struct{}

// Score marks a question correct only when the stored vector equals CorrectOptions exactly.
// Unanswered questions count as all-zero vectors and deleted questions are ignored.
// The input map is never mutated.
func (Engine) Score(questions []domain.QuestionSnapshot, answers map[string]domain.AnswerEntry) Result {
	return Score(questions, answers)
}

// Score is the pure function behind Engine.
func Score(questions []domain.QuestionSnapshot, answers map[string]domain.AnswerEntry) Result {
	graded := make(map[string]domain.AnswerEntry, len(answers))
	for id, entry := range answers {
		graded[id] = domain.AnswerEntry{
			QuestionID: entry.QuestionID,
			Answer:     entry.Answer.Clone(),
		}
	}

	var total, possible float64
	for _, q := range questions {
		if q.IsDeleted {
			continue
		}
		points := q.Points
		if points <= 0 {
			points = 1
		}
		possible += points

		entry, ok := graded[q.ID]
		if !ok {
			continue
		}
		if entry.Answer.Equal(q.CorrectOptions) {
			entry.Correct = true
			entry.PointsEarned = points
			total += points
		}
		graded[q.ID] = entry
	}

	return Result{
		Answers:         graded,
		TotalScore:      total,
		TotalQuizScore:  possible,
		ScorePercentage: percentage(total, possible),
	}
}

func percentage(total, possible float64) float64 {
	if possible == 0 {
		return 0
	}
	return total / possible * Scale
}
