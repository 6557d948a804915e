package http

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/sirupsen/logrus"

	"quiz-attempt-service/internal/app"
	"quiz-attempt-service/internal/domain"
	"quiz-attempt-service/internal/infra/memory"
)

var (
	quizStart  = time.Date(2024, 11, 22, 9, 0, 0, 0, time.UTC)
	student    = domain.Caller{ID: "u1", Role: domain.RoleStudent}
	other      = domain.Caller{ID: "u2", Role: domain.RoleStudent}
	instructor = domain.Caller{ID: "t1", Role: domain.RoleInstructor}
)

type testServer struct {
	*httptest.Server
	auth  *Authenticator
	clock *app.ManualClock
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	quizzes := memory.NewQuizStore(domain.Quiz{
		ID:        "quiz-1",
		Title:     "Arithmetic",
		Published: true,
		StartTime: quizStart,
		EndTime:   quizStart.Add(time.Hour),
	})
	bank := memory.NewStaticQuestionBank(map[string][]domain.Question{
		"quiz-1": {
			{ID: "b1", Text: "2 + 2?", Options: []string{"4", "5"}, CorrectOptions: domain.Vector{1, 0}, Points: 1},
		},
	})
	clock := app.NewManualClock(quizStart)
	log := logrus.New()
	log.SetOutput(io.Discard)

	service := app.NewAttemptService(quizzes, bank, memory.NewAttemptStore(),
		app.WithClock(clock),
		app.WithLogger(log),
	)
	auth := NewAuthenticator("test-secret")
	server := httptest.NewServer(NewRouter(service, auth, log))
	t.Cleanup(server.Close)
	return &testServer{Server: server, auth: auth, clock: clock}
}

func (s *testServer) token(t *testing.T, caller domain.Caller) string {
	t.Helper()
	tok, err := s.auth.Issue(caller, time.Hour)
	if err != nil {
		t.Fatalf("issue token: %v", err)
	}
	return tok
}

// do sends a request as caller and decodes the JSON response into out when out is non-nil.
func (s *testServer) do(t *testing.T, caller *domain.Caller, method, path string, body, out interface{}) int {
	t.Helper()
	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal body: %v", err)
		}
		reader = bytes.NewReader(raw)
	}
	req, err := http.NewRequest(method, s.URL+path, reader)
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	if caller != nil {
		req.Header.Set("Authorization", "Bearer "+s.token(t, *caller))
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("%s %s: %v", method, path, err)
	}
	defer resp.Body.Close()
	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			t.Fatalf("decode %s %s: %v", method, path, err)
		}
	}
	return resp.StatusCode
}
