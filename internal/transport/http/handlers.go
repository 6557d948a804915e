package http

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"

	"quiz-attempt-service/internal/app"
	"quiz-attempt-service/internal/domain"
)

// Handler exposes the attempt use cases as JSON endpoints.
type Handler struct {
	service *app.AttemptService
}

func NewHandler(service *app.AttemptService) *Handler {
	return &Handler{service: service}
}

type enrollRequest struct {
	Password string `json:"password"`
}

type answerRequest struct {
	Answer domain.Vector `json:"answer"`
}

func (h *Handler) Enroll(w http.ResponseWriter, r *http.Request) {
	var req enrollRequest
	if !decodeOptional(w, r, &req) {
		return
	}
	h.respond(w, r, http.StatusOK, func(caller domain.Caller) (interface{}, error) {
		return h.service.Enroll(r.Context(), caller, chi.URLParam(r, "quizID"), req.Password)
	})
}

func (h *Handler) GetAttempt(w http.ResponseWriter, r *http.Request) {
	h.respond(w, r, http.StatusOK, func(caller domain.Caller) (interface{}, error) {
		return h.service.GetAttempt(r.Context(), caller, chi.URLParam(r, "attemptID"))
	})
}

func (h *Handler) GetPaper(w http.ResponseWriter, r *http.Request) {
	h.respond(w, r, http.StatusOK, func(caller domain.Caller) (interface{}, error) {
		return h.service.GetPaper(r.Context(), caller, chi.URLParam(r, "attemptID"))
	})
}

func (h *Handler) AutoSave(w http.ResponseWriter, r *http.Request) {
	var req answerRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, r, fmt.Errorf("%w: bad json", domain.ErrInvalidAnswer))
		return
	}
	h.respond(w, r, http.StatusOK, func(caller domain.Caller) (interface{}, error) {
		return h.service.AutoSave(r.Context(), caller, chi.URLParam(r, "attemptID"), chi.URLParam(r, "questionID"), req.Answer)
	})
}

func (h *Handler) Submit(w http.ResponseWriter, r *http.Request) {
	h.respond(w, r, http.StatusOK, func(caller domain.Caller) (interface{}, error) {
		return h.service.Submit(r.Context(), caller, chi.URLParam(r, "attemptID"))
	})
}

func (h *Handler) Ban(w http.ResponseWriter, r *http.Request) {
	h.respond(w, r, http.StatusOK, func(caller domain.Caller) (interface{}, error) {
		return h.service.Ban(r.Context(), caller, chi.URLParam(r, "attemptID"))
	})
}

func (h *Handler) Regrade(w http.ResponseWriter, r *http.Request) {
	h.respond(w, r, http.StatusOK, func(caller domain.Caller) (interface{}, error) {
		return h.service.Regrade(r.Context(), caller, chi.URLParam(r, "attemptID"))
	})
}

func (h *Handler) RegradeQuiz(w http.ResponseWriter, r *http.Request) {
	h.respond(w, r, http.StatusOK, func(caller domain.Caller) (interface{}, error) {
		return h.service.RegradeQuiz(r.Context(), caller, chi.URLParam(r, "quizID"))
	})
}

func (h *Handler) ReviseQuestion(w http.ResponseWriter, r *http.Request) {
	var rev app.QuestionRevision
	if err := json.NewDecoder(r.Body).Decode(&rev); err != nil {
		writeError(w, r, fmt.Errorf("%w: bad json", domain.ErrInvalidSnapshot))
		return
	}
	h.respond(w, r, http.StatusOK, func(caller domain.Caller) (interface{}, error) {
		quiz, err := h.service.ReviseQuestion(r.Context(), caller, chi.URLParam(r, "quizID"), chi.URLParam(r, "questionID"), rev)
		if err != nil {
			return nil, err
		}
		q, _ := quiz.Question(chi.URLParam(r, "questionID"))
		return q, nil
	})
}

func (h *Handler) respond(w http.ResponseWriter, r *http.Request, status int, call func(domain.Caller) (interface{}, error)) {
	caller, err := CallerFrom(r.Context())
	if err != nil {
		writeError(w, r, fmt.Errorf("%w: %v", domain.ErrUnauthorized, err))
		return
	}
	out, err := call(caller)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, status, out)
}

// decodeOptional accepts an empty body.
func decodeOptional(w http.ResponseWriter, r *http.Request, v interface{}) bool {
	if r.Body == nil || r.ContentLength == 0 {
		return true
	}
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody{Error: errorDetail{Kind: "BadRequest", Message: "bad json"}})
		return false
	}
	return true
}
