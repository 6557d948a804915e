package domain

import (
	"errors"
	"fmt"
	"testing"
	"time"
)

func TestVectorValid(t *testing.T) {
	cases := []struct {
		v    Vector
		n    int
		want bool
	}{
		{Vector{1, 0}, 2, true},
		{Vector{0, 0}, 2, true},
		{Vector{1}, 2, false},
		{Vector{1, 2}, 2, false},
		{Vector{-1, 0}, 2, false},
		{nil, 0, true},
	}
	for _, tc := range cases {
		if got := tc.v.Valid(tc.n); got != tc.want {
			t.Fatalf("Valid(%v, %d) = %v, want %v", tc.v, tc.n, got, tc.want)
		}
	}
}

func TestQuizWindow(t *testing.T) {
	start := time.Date(2024, 11, 22, 9, 0, 0, 0, time.UTC)
	q := Quiz{StartTime: start, EndTime: start.Add(time.Hour)}

	if q.Open(start.Add(-time.Nanosecond)) || !q.Open(start) || q.Open(start.Add(time.Hour)) {
		t.Fatalf("window must be [start, end)")
	}
	if q.Expired(start.Add(time.Hour-time.Nanosecond)) || !q.Expired(start.Add(time.Hour)) {
		t.Fatalf("expiry must start at end")
	}
}

func TestStatus(t *testing.T) {
	if StatusInProgress.Terminal() || !StatusSubmitted.Terminal() || !StatusAbandoned.Terminal() {
		t.Fatalf("unexpected terminal flags")
	}
	if !AttemptStatus("PAUSED").Terminal() {
		t.Fatalf("unknown states must not be writable")
	}
	if _, err := ParseStatus("PAUSED"); err == nil {
		t.Fatalf("expected parse error")
	}
	if s, err := ParseStatus("SUBMITTED"); err != nil || s != StatusSubmitted {
		t.Fatalf("parse: %v %v", s, err)
	}
}

func TestKindOf(t *testing.T) {
	cases := []struct {
		err  error
		want Kind
	}{
		{fmt.Errorf("wrap: %w", ErrBanned), KindBanned},
		{ErrAttemptNotFound, KindNotFound},
		{fmt.Errorf("%w: bad", ErrInvalidAnswer), KindInvalidAnswer},
		{errors.New("connection reset"), KindInternal},
		{nil, ""},
	}
	for _, tc := range cases {
		if got := KindOf(tc.err); got != tc.want {
			t.Fatalf("KindOf(%v) = %s, want %s", tc.err, got, tc.want)
		}
	}
	if !KindBanned.Terminal() || KindInvalidAnswer.Terminal() {
		t.Fatalf("unexpected terminal kinds")
	}
}

func TestSnapshotValidate(t *testing.T) {
	good := QuestionSnapshot{Options: []string{"a", "b"}, CorrectOptions: Vector{0, 1}, Points: 1}
	if err := good.Validate(); err != nil {
		t.Fatalf("validate: %v", err)
	}
	bad := good
	bad.CorrectOptions = Vector{0, 0}
	if !errors.Is(bad.Validate(), ErrInvalidSnapshot) {
		t.Fatalf("expected no-correct-option rejected")
	}
}

func TestAttemptCloneIsDeep(t *testing.T) {
	now := time.Now()
	a := Attempt{SubmittedAt: &now, Answers: map[string]AnswerEntry{"q": {Answer: Vector{1}}}}
	c := a.Clone()
	c.Answers["q"].Answer[0] = 0
	*c.SubmittedAt = now.Add(time.Hour)
	if a.Answers["q"].Answer[0] != 1 || !a.SubmittedAt.Equal(now) {
		t.Fatalf("clone shares state with original")
	}
}
