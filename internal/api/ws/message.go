package ws

import (
	"encoding/json"
	"log"
	"time"

	"github.com/examind/quiz-portal/internal/quiz"
)

type MessageType string

const (
	// client -> server
	MessageTypeHello             = MessageType("hello")
	MessageTypeSelectOption      = MessageType("select_option")
	MessageTypeAdvance           = MessageType("advance")
	MessageTypeSubmit            = MessageType("submit")
	MessageTypeProctorEvent      = MessageType("proctor_event")
	MessageTypeFullscreenChanged = MessageType("fullscreen_changed")

	// server -> client
	MessageTypeQuestion        = MessageType("question")
	MessageTypeTick            = MessageType("tick")
	MessageTypeTimerPaused     = MessageType("timer_paused")
	MessageTypeTimerResumed    = MessageType("timer_resumed")
	MessageTypeWarning         = MessageType("warning")
	MessageTypeGrace           = MessageType("grace_countdown")
	MessageTypeEnterFullscreen = MessageType("enter_fullscreen")
	MessageTypeExitFullscreen  = MessageType("exit_fullscreen")
	MessageTypeEmpty           = MessageType("empty")
	MessageTypeSubmitted       = MessageType("submitted")
	MessageTypeSubmitFailed    = MessageType("submit_failed")
	MessageTypeError           = MessageType("error")
)

// ClientMessage is everything a quiz page can send us.
type ClientMessage struct {
	Type MessageType `json:"type"`

	// MessageTypeHello. The page resolves its fullscreen API once at
	// load time and tells us whether any variant is available.
	FullscreenSupported bool `json:"fullscreenSupported,omitempty"`

	// MessageTypeSelectOption
	Option int `json:"option"`

	// MessageTypeProctorEvent
	Event  string `json:"event,omitempty"`
	Detail string `json:"detail,omitempty"`

	// MessageTypeFullscreenChanged
	Active bool `json:"active,omitempty"`

	Timestamp time.Time `json:"timestamp,omitempty"`
}

// ServerMessage is the single envelope for every frame we push.
type ServerMessage struct {
	Type MessageType `json:"type"`

	SessionID string `json:"sessionId,omitempty"`

	// MessageTypeQuestion
	QuestionIdx     int      `json:"questionIdx"`
	QuestionsAmount int      `json:"questionsAmount,omitempty"`
	Prompt          string   `json:"prompt,omitempty"`
	Options         []string `json:"options,omitempty"`
	ImageURL        string   `json:"imageUrl,omitempty"`

	// MessageTypeQuestion, MessageTypeTick, MessageTypeGrace. Zero is
	// meaningful here, so no omitempty.
	Seconds int `json:"seconds"`

	// MessageTypeWarning, MessageTypeError, MessageTypeSubmitFailed
	Text string `json:"text,omitempty"`

	// MessageTypeSubmitted
	Result *quiz.Result `json:"result,omitempty"`
}

func (m *ServerMessage) Bytes() []byte {
	b, err := json.Marshal(m)
	if err != nil {
		log.Printf("failed to marshal ServerMessage: %v", err)
	}
	return b
}
