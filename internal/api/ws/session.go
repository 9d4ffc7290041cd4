package ws

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"github.com/examind/quiz-portal/internal/bank"
	"github.com/examind/quiz-portal/internal/proctor"
	"github.com/examind/quiz-portal/internal/quiz"
	"github.com/examind/quiz-portal/internal/rbac"
)

const helloTimeout = 10 * time.Second

// SessionConfig is the proctoring policy every quiz session runs under.
type SessionConfig struct {
	RequireFullscreen bool
	GraceSeconds      int
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 4096,
	// CORS is enforced on the HTTP surface; token auth gates this route.
	CheckOrigin: func(*http.Request) bool { return true },
}

// QuizSessionHandler runs one student's quiz over a websocket. The
// whole session lives and dies with the connection: questions stream
// down, answers and proctoring events stream up, and the result is
// persisted on submit.
func QuizSessionHandler(store bank.Store, cfg SessionConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		user := quiz.Identity{
			ID:          rbac.SubjectFromContext(r.Context()),
			DisplayName: rbac.NameFromContext(r.Context()),
		}
		if user.ID == "" {
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}

		wsc, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer wsc.Close()
		c := &conn{ws: wsc}

		// First frame must be the hello with the page's fullscreen
		// capability. It is resolved once here, never re-probed.
		hello, err := readHello(wsc)
		if err != nil {
			_ = c.send(ServerMessage{Type: MessageTypeError, Text: "expected hello"})
			return
		}
		d := newDisplay(c, hello.FullscreenSupported)

		ev := &sessionEvents{c: c}
		runner := quiz.NewRunner(quiz.Config{
			Source:  store,
			Results: store,
			User:    user,
			Events:  ev,
		})
		ev.sessionID = runner.SessionID()

		guard := proctor.New(d,
			proctor.WithEventLog(store, runner.SessionID(), user.ID))
		defer guard.Deactivate()

		needFS := cfg.RequireFullscreen && hello.FullscreenSupported
		runner.BindGuard(guard, needFS, proctor.FullscreenPolicy{
			GraceSeconds: cfg.GraceSeconds,
			OnCountdown: func(secondsLeft int) {
				_ = c.send(ServerMessage{Type: MessageTypeGrace, Seconds: secondsLeft})
			},
		})
		if cfg.RequireFullscreen && !hello.FullscreenSupported {
			d.Warn("Fullscreen is not available in this browser. The quiz will continue, but all activity is still monitored.")
		}

		if err := runner.LoadQuestions(r.Context()); err != nil {
			_ = c.send(ServerMessage{Type: MessageTypeError, Text: err.Error()})
			return
		}
		if runner.State() == quiz.StateEmpty {
			_ = c.send(ServerMessage{Type: MessageTypeEmpty, SessionID: runner.SessionID()})
			return
		}
		if needFS {
			_ = guard.EnterFullscreen(r.Context())
		}

		readLoop(r.Context(), wsc, c, runner, guard, d)

		// Mid-session disconnect: the page is gone, so record it and
		// salvage what was answered. The request context is about to
		// die with the handler.
		if runner.State() == quiz.StateActive {
			guard.ReportEvent(proctor.EventPageUnload, "connection closed mid-session")
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := runner.Submit(ctx); err != nil {
				log.Printf("ws session %s: salvage submit: %v", runner.SessionID(), err)
			}
		}
	}
}

func readHello(wsc *websocket.Conn) (ClientMessage, error) {
	_ = wsc.SetReadDeadline(time.Now().Add(helloTimeout))
	defer wsc.SetReadDeadline(time.Time{})

	var msg ClientMessage
	_, raw, err := wsc.ReadMessage()
	if err != nil {
		return msg, err
	}
	if err := json.Unmarshal(raw, &msg); err != nil {
		return msg, err
	}
	if msg.Type != MessageTypeHello {
		return msg, errors.New("first frame must be hello")
	}
	return msg, nil
}

func readLoop(ctx context.Context, wsc *websocket.Conn, c *conn, runner *quiz.Runner, guard *proctor.Guard, d *display) {
	for {
		_, raw, err := wsc.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				log.Printf("ws session %s: read: %v", runner.SessionID(), err)
			}
			return
		}
		var msg ClientMessage
		if err := json.Unmarshal(raw, &msg); err != nil {
			_ = c.send(ServerMessage{Type: MessageTypeError, Text: "bad json"})
			continue
		}

		switch msg.Type {
		case MessageTypeSelectOption:
			if err := runner.SelectOption(msg.Option); err != nil {
				_ = c.send(ServerMessage{Type: MessageTypeError, Text: err.Error()})
			}
		case MessageTypeAdvance:
			if err := runner.Advance(ctx); err != nil {
				_ = c.send(ServerMessage{Type: MessageTypeError, Text: err.Error()})
			}
		case MessageTypeSubmit:
			if err := runner.Submit(ctx); err != nil {
				_ = c.send(ServerMessage{Type: MessageTypeError, Text: err.Error()})
			}
		case MessageTypeProctorEvent:
			t, ok := proctor.ParseEventType(msg.Event)
			if !ok {
				_ = c.send(ServerMessage{Type: MessageTypeError, Text: "unknown event: " + msg.Event})
				continue
			}
			guard.ReportEvent(t, msg.Detail)
		case MessageTypeFullscreenChanged:
			d.setActive(msg.Active)
			guard.FullscreenChanged(msg.Active)
		default:
			_ = c.send(ServerMessage{Type: MessageTypeError, Text: "unknown message type"})
		}

		if runner.State() == quiz.StateSubmitted {
			return
		}
	}
}

// sessionEvents fans runner notifications out to the page.
type sessionEvents struct {
	c         *conn
	sessionID string
}

func (e *sessionEvents) QuestionStarted(index, total int, q quiz.Question, remainingSec int) {
	sq := q.Student()
	_ = e.c.send(ServerMessage{
		Type:            MessageTypeQuestion,
		SessionID:       e.sessionID,
		QuestionIdx:     index,
		QuestionsAmount: total,
		Prompt:          sq.Prompt,
		Options:         sq.Options,
		ImageURL:        sq.ImageURL,
		Seconds:         remainingSec,
	})
}

func (e *sessionEvents) Tick(remainingSec int) {
	_ = e.c.send(ServerMessage{Type: MessageTypeTick, Seconds: remainingSec})
}

func (e *sessionEvents) TimerPaused() {
	_ = e.c.send(ServerMessage{Type: MessageTypeTimerPaused})
}

func (e *sessionEvents) TimerResumed() {
	_ = e.c.send(ServerMessage{Type: MessageTypeTimerResumed})
}

func (e *sessionEvents) Submitted(res quiz.Result) {
	_ = e.c.send(ServerMessage{Type: MessageTypeSubmitted, SessionID: e.sessionID, Result: &res})
}

func (e *sessionEvents) SubmitFailed(err error) {
	_ = e.c.send(ServerMessage{Type: MessageTypeSubmitFailed, Text: err.Error()})
}
