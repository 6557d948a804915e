package domain

import "time"

// QuestionType describes how a question is answered.
type QuestionType string

const (
	QuestionSingleSelect QuestionType = "single_select"
	QuestionMultiSelect  QuestionType = "multi_select"
	QuestionOther        QuestionType = "other"
)

// Vector is a 0/1 selection vector over a question's options.
type Vector []int

// Equal reports element-wise equality. Vectors of different length are never equal.
func (v Vector) Equal(other Vector) bool {
	if len(v) != len(other) {
		return false
	}
	for i := range v {
		if v[i] != other[i] {
			return false
		}
	}
	return true
}

// Valid reports whether v has exactly n entries, each 0 or 1.
func (v Vector) Valid(n int) bool {
	if len(v) != n {
		return false
	}
	for _, bit := range v {
		if bit != 0 && bit != 1 {
			return false
		}
	}
	return true
}

// Ones counts selected entries.
func (v Vector) Ones() int {
	n := 0
	for _, bit := range v {
		if bit == 1 {
			n++
		}
	}
	return n
}

func (v Vector) Clone() Vector {
	if v == nil {
		return nil
	}
	out := make(Vector, len(v))
	copy(out, v)
	return out
}

// Question is a live question-bank row. It is only read when a quiz snapshot is built.
type Question struct {
	ID             string       `json:"id"`
	Text           string       `json:"text"`
	Type           QuestionType `json:"type"`
	Options        []string     `json:"options"`
	CorrectOptions Vector       `json:"correctOptions"`
	Points         float64      `json:"points"` // defaults to 1 if zero
}

// QuestionSnapshot is the frozen copy of a question that attempts are graded against.
type QuestionSnapshot struct {
	ID             string       `json:"id"`
	SourceID       string       `json:"sourceId,omitempty"`
	Text           string       `json:"text"`
	Type           QuestionType `json:"type"`
	Options        []string     `json:"options"`
	CorrectOptions Vector       `json:"correctOptions"`
	Points         float64      `json:"points"`
	IsDeleted      bool         `json:"isDeleted"`
}

// Validate checks the snapshot invariants.
func (q QuestionSnapshot) Validate() error {
	if len(q.Options) == 0 {
		return ErrInvalidSnapshot
	}
	if !q.CorrectOptions.Valid(len(q.Options)) || q.CorrectOptions.Ones() == 0 {
		return ErrInvalidSnapshot
	}
	if q.Points <= 0 {
		return ErrInvalidSnapshot
	}
	return nil
}

// Quiz is the attempt window plus the shared question snapshot.
type Quiz struct {
	ID                string             `json:"id"`
	Title             string             `json:"title"`
	Published         bool               `json:"published"`
	StartTime         time.Time          `json:"startTime"`
	EndTime           time.Time          `json:"endTime"`
	PasswordHash      string             `json:"-"`
	SnapshotQuestions []QuestionSnapshot `json:"snapshotQuestions,omitempty"`
}

// HasSnapshot reports whether the snapshot has already been built.
func (q Quiz) HasSnapshot() bool {
	return len(q.SnapshotQuestions) > 0
}

// Question finds a snapshot question by id.
func (q Quiz) Question(id string) (QuestionSnapshot, bool) {
	for _, question := range q.SnapshotQuestions {
		if question.ID == id {
			return question, true
		}
	}
	return QuestionSnapshot{}, false
}

// Open reports whether now falls in [StartTime, EndTime).
func (q Quiz) Open(now time.Time) bool {
	return !now.Before(q.StartTime) && now.Before(q.EndTime)
}

// Expired reports whether the attempt window has closed.
func (q Quiz) Expired(now time.Time) bool {
	return !now.Before(q.EndTime)
}

// AnswerEntry is a student's saved selection for one question.
// Correct and PointsEarned are written only by scoring.
type AnswerEntry struct {
	QuestionID   string  `json:"questionId"`
	Answer       Vector  `json:"answer"`
	Correct      bool    `json:"correct"`
	PointsEarned float64 `json:"pointsEarned"`
}

// Attempt is one student's run at one quiz.
type Attempt struct {
	ID              string                 `json:"id"`
	QuizID          string                 `json:"quizId"`
	StudentID       string                 `json:"studentId"`
	Status          AttemptStatus          `json:"status"`
	StartedAt       time.Time              `json:"startedAt"`
	SubmittedAt     *time.Time             `json:"submittedAt,omitempty"`
	BannedAt        *time.Time             `json:"bannedAt,omitempty"`
	Answers         map[string]AnswerEntry `json:"answers"`
	TotalScore      float64                `json:"totalScore"`
	TotalQuizScore  float64                `json:"totalQuizScore"`
	ScorePercentage float64                `json:"scorePercentage"`
}

// Clone returns a deep copy so stores never share the answers map with callers.
func (a Attempt) Clone() Attempt {
	out := a
	if a.SubmittedAt != nil {
		t := *a.SubmittedAt
		out.SubmittedAt = &t
	}
	if a.BannedAt != nil {
		t := *a.BannedAt
		out.BannedAt = &t
	}
	out.Answers = make(map[string]AnswerEntry, len(a.Answers))
	for id, entry := range a.Answers {
		entry.Answer = entry.Answer.Clone()
		out.Answers[id] = entry
	}
	return out
}

// Role is the caller's role as asserted by the identity middleware.
type Role string

const (
	RoleStudent    Role = "student"
	RoleInstructor Role = "instructor"
)

// Caller is the authenticated identity behind a request.
type Caller struct {
	ID   string `json:"id"`
	Role Role   `json:"role"`
}

func (c Caller) IsInstructor() bool {
	return c.Role == RoleInstructor
}
