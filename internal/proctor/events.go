package proctor

import (
	"context"
	"time"
)

type EventType string

const (
	EventTabSwitch      EventType = "tab_switch"
	EventWindowBlur     EventType = "window_blur"
	EventRightClick     EventType = "right_click"
	EventKeyBlocked     EventType = "key_blocked"
	EventFullscreenExit EventType = "fullscreen_exit"
	EventPageUnload     EventType = "page_unload"
)

// severity 1-5, low to critical
var eventSeverity = map[EventType]int{
	EventTabSwitch:      3,
	EventWindowBlur:     2,
	EventRightClick:     1,
	EventKeyBlocked:     2,
	EventFullscreenExit: 4,
	EventPageUnload:     3,
}

// ParseEventType maps a wire string onto a known event type.
func ParseEventType(s string) (EventType, bool) {
	t := EventType(s)
	_, ok := eventSeverity[t]
	return t, ok
}

func (t EventType) Severity() int {
	if s, ok := eventSeverity[t]; ok {
		return s
	}
	return 1
}

// Violation reports whether the event counts against the escalating
// warning policy. Fullscreen exits are handled by the grace-period
// state machine instead, and unload prompts are informational.
func (t EventType) Violation() bool {
	switch t {
	case EventTabSwitch, EventWindowBlur, EventRightClick, EventKeyBlocked:
		return true
	}
	return false
}

// EventRecord is the persisted audit entry for one monitored action.
type EventRecord struct {
	SessionID string    `json:"session_id"`
	UserID    string    `json:"user_id"`
	Type      EventType `json:"type"`
	Severity  int       `json:"severity"`
	Detail    string    `json:"detail,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// EventLog receives every monitored event for after-the-fact review.
type EventLog interface {
	SaveEvent(ctx context.Context, ev EventRecord) error
}
