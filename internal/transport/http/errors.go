package http

import (
	"encoding/json"
	"net/http"

	"github.com/sirupsen/logrus"

	"quiz-attempt-service/internal/domain"
)

type errorBody struct {
	Error errorDetail `json:"error"`
}

type errorDetail struct {
	Kind    domain.Kind `json:"kind"`
	Message string      `json:"message"`
}

// StatusOf maps an error kind onto an HTTP status code.
func StatusOf(kind domain.Kind) int {
	switch kind {
	case domain.KindNotFound:
		return http.StatusNotFound
	case domain.KindUnauthorized:
		return http.StatusUnauthorized
	case domain.KindForbidden, domain.KindWindowClosed, domain.KindBanned:
		return http.StatusForbidden
	case domain.KindInvalidState, domain.KindAlreadyTerminal:
		return http.StatusConflict
	case domain.KindInvalidAnswer, domain.KindInvalidSnapshot:
		return http.StatusUnprocessableEntity
	}
	return http.StatusInternalServerError
}

func writeError(w http.ResponseWriter, r *http.Request, err error) {
	kind := domain.KindOf(err)
	msg := err.Error()
	if kind == domain.KindInternal {
		logger(r).WithError(err).Error("request failed")
		msg = "internal error"
	}
	writeJSON(w, StatusOf(kind), errorBody{Error: errorDetail{Kind: kind, Message: msg}})
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

type loggerKey struct{}

func logger(r *http.Request) logrus.FieldLogger {
	if l, ok := r.Context().Value(loggerKey{}).(logrus.FieldLogger); ok {
		return l
	}
	return logrus.StandardLogger()
}
