package http

import (
	"net/http"
	"testing"
	"time"

	"quiz-attempt-service/internal/app"
	"quiz-attempt-service/internal/domain"
)

type errorResponse struct {
	Error struct {
		Kind    string `json:"kind"`
		Message string `json:"message"`
	} `json:"error"`
}

func TestAttemptLifecycleOverHTTP(t *testing.T) {
	s := newTestServer(t)

	var attempt domain.Attempt
	if code := s.do(t, &student, http.MethodPost, "/api/quizzes/quiz-1/enroll", map[string]string{}, &attempt); code != http.StatusOK {
		t.Fatalf("enroll: status %d", code)
	}
	if attempt.Status != domain.StatusInProgress {
		t.Fatalf("expected in progress, got %s", attempt.Status)
	}

	var paper app.Paper
	if code := s.do(t, &student, http.MethodGet, "/api/attempts/"+attempt.ID+"/paper", nil, &paper); code != http.StatusOK {
		t.Fatalf("paper: status %d", code)
	}
	if len(paper.Questions) != 1 {
		t.Fatalf("expected one question, got %+v", paper.Questions)
	}
	qid := paper.Questions[0].ID

	var saved domain.Attempt
	code := s.do(t, &student, http.MethodPut, "/api/attempts/"+attempt.ID+"/answers/"+qid, map[string]interface{}{"answer": []int{1, 0}}, &saved)
	if code != http.StatusOK {
		t.Fatalf("autosave: status %d", code)
	}
	if !saved.Answers[qid].Answer.Equal(domain.Vector{1, 0}) {
		t.Fatalf("expected saved answer, got %+v", saved.Answers)
	}

	var submitted domain.Attempt
	if code := s.do(t, &student, http.MethodPost, "/api/attempts/"+attempt.ID+"/submit", nil, &submitted); code != http.StatusOK {
		t.Fatalf("submit: status %d", code)
	}
	if submitted.Status != domain.StatusSubmitted || submitted.ScorePercentage != 10 {
		t.Fatalf("unexpected submission %+v", submitted)
	}

	var e errorResponse
	code = s.do(t, &student, http.MethodPut, "/api/attempts/"+attempt.ID+"/answers/"+qid, map[string]interface{}{"answer": []int{0, 1}}, &e)
	if code != http.StatusConflict || e.Error.Kind != string(domain.KindInvalidState) {
		t.Fatalf("expected 409 InvalidState, got %d %+v", code, e)
	}
}

func TestErrorMapping(t *testing.T) {
	s := newTestServer(t)

	var attempt domain.Attempt
	s.do(t, &student, http.MethodPost, "/api/quizzes/quiz-1/enroll", nil, &attempt)

	cases := []struct {
		name   string
		caller *domain.Caller
		method string
		path   string
		body   interface{}
		status int
		kind   domain.Kind
	}{
		{"missing token", nil, http.MethodGet, "/api/attempts/" + attempt.ID, nil, http.StatusUnauthorized, domain.KindUnauthorized},
		{"unknown attempt", &student, http.MethodGet, "/api/attempts/nope", nil, http.StatusNotFound, domain.KindNotFound},
		{"other student", &other, http.MethodGet, "/api/attempts/" + attempt.ID, nil, http.StatusForbidden, domain.KindForbidden},
		{"student ban", &student, http.MethodPost, "/api/attempts/" + attempt.ID + "/ban", nil, http.StatusForbidden, domain.KindForbidden},
		{"bad vector", &student, http.MethodPut, "/api/attempts/" + attempt.ID + "/answers/nope", map[string]interface{}{"answer": []int{1}}, http.StatusUnprocessableEntity, domain.KindInvalidAnswer},
		{"regrade in progress", &instructor, http.MethodPost, "/api/attempts/" + attempt.ID + "/regrade", nil, http.StatusConflict, domain.KindInvalidState},
	}
	for _, tc := range cases {
		var e errorResponse
		code := s.do(t, tc.caller, tc.method, tc.path, tc.body, &e)
		if code != tc.status || e.Error.Kind != string(tc.kind) {
			t.Fatalf("%s: expected %d %s, got %d %+v", tc.name, tc.status, tc.kind, code, e)
		}
	}
}

func TestBanThenWindowClosed(t *testing.T) {
	s := newTestServer(t)

	var attempt domain.Attempt
	s.do(t, &student, http.MethodPost, "/api/quizzes/quiz-1/enroll", nil, &attempt)

	var banned domain.Attempt
	if code := s.do(t, &instructor, http.MethodPost, "/api/attempts/"+attempt.ID+"/ban", nil, &banned); code != http.StatusOK {
		t.Fatalf("ban: status %d", code)
	}
	if banned.Status != domain.StatusAbandoned {
		t.Fatalf("expected abandoned, got %s", banned.Status)
	}

	var e errorResponse
	if code := s.do(t, &student, http.MethodPost, "/api/quizzes/quiz-1/enroll", nil, &e); code != http.StatusForbidden || e.Error.Kind != string(domain.KindBanned) {
		t.Fatalf("expected 403 Banned, got %d %+v", code, e)
	}

	s.clock.Advance(2 * time.Hour)
	if code := s.do(t, &other, http.MethodPost, "/api/quizzes/quiz-1/enroll", nil, &e); code != http.StatusForbidden || e.Error.Kind != string(domain.KindWindowClosed) {
		t.Fatalf("expected 403 WindowClosed, got %d %+v", code, e)
	}
}

func TestReviseAndRegradeQuiz(t *testing.T) {
	s := newTestServer(t)

	var attempt domain.Attempt
	s.do(t, &student, http.MethodPost, "/api/quizzes/quiz-1/enroll", nil, &attempt)
	var paper app.Paper
	s.do(t, &student, http.MethodGet, "/api/attempts/"+attempt.ID+"/paper", nil, &paper)
	qid := paper.Questions[0].ID
	s.do(t, &student, http.MethodPut, "/api/attempts/"+attempt.ID+"/answers/"+qid, map[string]interface{}{"answer": []int{0, 1}}, nil)
	s.do(t, &student, http.MethodPost, "/api/attempts/"+attempt.ID+"/submit", nil, nil)

	var e errorResponse
	if code := s.do(t, &student, http.MethodPatch, "/api/quizzes/quiz-1/questions/"+qid, map[string]interface{}{"correctOptions": []int{0, 1}}, &e); code != http.StatusForbidden {
		t.Fatalf("expected students unable to revise, got %d", code)
	}

	var revised domain.QuestionSnapshot
	if code := s.do(t, &instructor, http.MethodPatch, "/api/quizzes/quiz-1/questions/"+qid, map[string]interface{}{"correctOptions": []int{0, 1}}, &revised); code != http.StatusOK {
		t.Fatalf("revise: status %d", code)
	}
	if !revised.CorrectOptions.Equal(domain.Vector{0, 1}) {
		t.Fatalf("unexpected revision %+v", revised)
	}

	var summary app.RegradeSummary
	if code := s.do(t, &instructor, http.MethodPost, "/api/quizzes/quiz-1/regrade", nil, &summary); code != http.StatusOK {
		t.Fatalf("regrade quiz: status %d", code)
	}
	if summary.Regraded != 1 {
		t.Fatalf("unexpected summary %+v", summary)
	}

	var regraded domain.Attempt
	s.do(t, &instructor, http.MethodGet, "/api/attempts/"+attempt.ID, nil, &regraded)
	if regraded.TotalScore != 1 {
		t.Fatalf("expected regraded score 1, got %v", regraded.TotalScore)
	}
}

func TestAuthenticatorRejectsBadTokens(t *testing.T) {
	auth := NewAuthenticator("secret")
	tok, err := auth.Issue(domain.Caller{ID: "u1", Role: "admin"}, time.Hour)
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	if _, err := auth.Parse(tok); domain.KindOf(err) != domain.KindUnauthorized {
		t.Fatalf("expected unknown role rejected, got %v", err)
	}

	expired, _ := auth.Issue(student, -time.Minute)
	if _, err := auth.Parse(expired); domain.KindOf(err) != domain.KindUnauthorized {
		t.Fatalf("expected expired token rejected, got %v", err)
	}

	forged, _ := NewAuthenticator("other").Issue(student, time.Hour)
	if _, err := auth.Parse(forged); domain.KindOf(err) != domain.KindUnauthorized {
		t.Fatalf("expected forged token rejected, got %v", err)
	}

	good, _ := auth.Issue(instructor, time.Hour)
	caller, err := auth.Parse(good)
	if err != nil || caller != instructor {
		t.Fatalf("expected %+v, got %+v %v", instructor, caller, err)
	}
}
