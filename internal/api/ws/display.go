package ws

import (
	"context"
	"sync"

	"github.com/gorilla/websocket"

	"github.com/examind/quiz-portal/internal/proctor"
)

// conn serializes writes to one websocket connection. gorilla permits a
// single concurrent writer, and timer goroutines push frames too.
type conn struct {
	mu sync.Mutex
	ws *websocket.Conn
}

func (c *conn) send(m ServerMessage) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.ws.WriteMessage(websocket.TextMessage, m.Bytes())
}

// display bridges proctor.Display onto the browser at the far end of
// the socket. The page resolves its fullscreen capability once during
// the hello handshake; we never re-probe.
type display struct {
	c         *conn
	supported bool

	mu     sync.Mutex
	active bool // last state the page reported
}

func newDisplay(c *conn, supported bool) *display {
	return &display{c: c, supported: supported}
}

func (d *display) EnterFullscreen(context.Context) error {
	if !d.supported {
		return proctor.ErrFullscreenUnsupported
	}
	return d.c.send(ServerMessage{Type: MessageTypeEnterFullscreen})
}

func (d *display) ExitFullscreen(context.Context) error {
	if !d.supported {
		return proctor.ErrFullscreenUnsupported
	}
	return d.c.send(ServerMessage{Type: MessageTypeExitFullscreen})
}

func (d *display) IsFullscreen() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.active
}

func (d *display) Warn(text string) {
	_ = d.c.send(ServerMessage{Type: MessageTypeWarning, Text: text})
}

// setActive records the state the page just reported.
func (d *display) setActive(active bool) {
	d.mu.Lock()
	d.active = active
	d.mu.Unlock()
}
