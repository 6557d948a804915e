package http

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"

	"quiz-attempt-service/internal/app"
	"quiz-attempt-service/internal/domain"
)

// WSHandler streams auto-saves for one attempt over a websocket.
type WSHandler struct {
	service  *app.AttemptService
	upgrader websocket.Upgrader
}

func NewWSHandler(service *app.AttemptService) *WSHandler {
	return &WSHandler{
		service: service,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
	}
}

type inboundMessage struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

type answerPayload struct {
	QuestionID string        `json:"questionId"`
	Answer     domain.Vector `json:"answer"`
}

type savedPayload struct {
	QuestionID string        `json:"questionId"`
	Answer     domain.Vector `json:"answer"`
	Status     string        `json:"status"`
}

type outboundMessage[T any] struct {
	Type    string `json:"type"`
	Payload T      `json:"payload"`
}

// ServeWS upgrades the request and serves answer and submit messages until the client leaves or
// the attempt becomes terminal.
func (h *WSHandler) ServeWS(w http.ResponseWriter, r *http.Request) {
	caller, err := CallerFrom(r.Context())
	if err != nil {
		writeError(w, r, domain.ErrUnauthorized)
		return
	}
	attemptID := chi.URLParam(r, "attemptID")
	log := logger(r).WithField("attempt_id", attemptID)

	attempt, err := h.service.GetAttempt(r.Context(), caller, attemptID)
	if err != nil {
		writeError(w, r, err)
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.WithError(err).Warn("ws upgrade failed")
		return
	}
	defer conn.Close()

	out := newOutbox(16)

	// Single writer: gorilla connections do not support concurrent writes.
	go func() {
		defer close(out.done)
		for msg := range out.queue {
			if err := conn.WriteJSON(msg); err != nil {
				log.WithError(err).Debug("ws write error")
				return
			}
		}
	}()

	open := out.send(outboundMessage[any]{Type: "attempt", Payload: attempt})
	for open {
		var inbound inboundMessage
		if err := conn.ReadJSON(&inbound); err != nil {
			break
		}
		switch inbound.Type {
		case "answer":
			var payload answerPayload
			if err := json.Unmarshal(inbound.Payload, &payload); err != nil {
				open = out.send(errorMessage(domain.KindInvalidAnswer, "invalid answer payload"))
				continue
			}
			updated, err := h.service.AutoSave(r.Context(), caller, attemptID, payload.QuestionID, payload.Answer)
			if err != nil {
				open = h.fail(r, out, caller, attemptID, err)
				continue
			}
			open = out.send(outboundMessage[any]{Type: "saved", Payload: savedPayload{
				QuestionID: payload.QuestionID,
				Answer:     payload.Answer,
				Status:     string(updated.Status),
			}})
		case "submit":
			updated, err := h.service.Submit(r.Context(), caller, attemptID)
			if err != nil {
				open = h.fail(r, out, caller, attemptID, err)
				continue
			}
			open = out.send(outboundMessage[any]{Type: "attempt", Payload: updated})
		default:
			open = out.send(errorMessage("", "unsupported message type"))
		}
	}

	close(out.queue)
	<-out.done
	if err := conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")); err != nil {
		log.WithError(err).Debug("ws close failed")
	}
}

// fail reports err to the client. Errors that end the attempt are followed by its current
// state, and the connection is closed. It returns false when the session should end.
func (h *WSHandler) fail(r *http.Request, out *outbox, caller domain.Caller, attemptID string, err error) bool {
	kind := domain.KindOf(err)
	msg := err.Error()
	if kind == domain.KindInternal {
		logger(r).WithError(err).Error("ws request failed")
		msg = "internal error"
	}
	if !out.send(errorMessage(kind, msg)) {
		return false
	}
	if !kind.Terminal() {
		return true
	}
	if current, err := h.service.GetAttempt(r.Context(), caller, attemptID); err == nil {
		out.send(outboundMessage[any]{Type: "attempt", Payload: current})
	}
	return false
}

// outbox queues messages for the connection's writer goroutine. done is closed when the writer
// stops, after which sends are dropped instead of blocking.
type outbox struct {
	queue chan outboundMessage[any]
	done  chan struct{}
}

func newOutbox(size int) *outbox {
	return &outbox{queue: make(chan outboundMessage[any], size), done: make(chan struct{})}
}

// send reports whether msg was queued.
func (o *outbox) send(msg outboundMessage[any]) bool {
	select {
	case <-o.done:
		return false
	default:
	}
	select {
	case o.queue <- msg:
		return true
	case <-o.done:
		return false
	}
}

func errorMessage(kind domain.Kind, msg string) outboundMessage[any] {
	return outboundMessage[any]{Type: "error", Payload: errorDetail{Kind: kind, Message: msg}}
}
