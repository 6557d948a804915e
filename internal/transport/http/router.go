package http

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/sirupsen/logrus"

	"quiz-attempt-service/internal/app"
)

// NewRouter wires the REST API, the websocket channel and the health check.
func NewRouter(service *app.AttemptService, auth *Authenticator, log logrus.FieldLogger) http.Handler {
	if log == nil {
		log = logrus.StandardLogger()
	}
	h := NewHandler(service)
	ws := NewWSHandler(service)

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(requestLogger(log))
	r.Use(middleware.Recoverer)

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("ok"))
	})

	r.Route("/api", func(r chi.Router) {
		r.Use(auth.Middleware)

		r.Post("/quizzes/{quizID}/enroll", h.Enroll)
		r.Post("/quizzes/{quizID}/regrade", h.RegradeQuiz)
		r.Patch("/quizzes/{quizID}/questions/{questionID}", h.ReviseQuestion)

		r.Route("/attempts/{attemptID}", func(r chi.Router) {
			r.Get("/", h.GetAttempt)
			r.Get("/paper", h.GetPaper)
			r.Put("/answers/{questionID}", h.AutoSave)
			r.Post("/submit", h.Submit)
			r.Post("/ban", h.Ban)
			r.Post("/regrade", h.Regrade)
			r.Get("/ws", ws.ServeWS)
		})
	})
	return r
}

func requestLogger(log logrus.FieldLogger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			entry := log.WithFields(logrus.Fields{
				"request_id": middleware.GetReqID(r.Context()),
				"method":     r.Method,
				"path":       r.URL.Path,
			})
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			next.ServeHTTP(ww, r.WithContext(context.WithValue(r.Context(), loggerKey{}, logrus.FieldLogger(entry))))
			entry.WithFields(logrus.Fields{
				"status":   ww.Status(),
				"duration": time.Since(start).String(),
			}).Debug("request served")
		})
	}
}
