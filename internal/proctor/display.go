package proctor

import (
	"context"
	"errors"
)

// ErrFullscreenUnsupported is returned by EnterFullscreen/ExitFullscreen
// when the host environment has no fullscreen capability. The quiz flow
// offers the user a choice to retry or continue without fullscreen, so
// this must reach the caller rather than being swallowed.
var ErrFullscreenUnsupported = errors.New("fullscreen not supported")

// Display is the host environment surface the guard drives: fullscreen
// request/release/query plus a blocking warning dialog. In production it
// is backed by the browser on the far end of the session's websocket;
// capability is resolved once at connect time, not re-probed per call.
type Display interface {
	EnterFullscreen(ctx context.Context) error
	ExitFullscreen(ctx context.Context) error
	IsFullscreen() bool
	Warn(message string)
}

// NopDisplay is a Display with no fullscreen capability and no dialog.
// Useful for reduced-integrity sessions and tests.
type NopDisplay struct{}

func (NopDisplay) EnterFullscreen(context.Context) error { return ErrFullscreenUnsupported }
func (NopDisplay) ExitFullscreen(context.Context) error  { return ErrFullscreenUnsupported }
func (NopDisplay) IsFullscreen() bool                    { return false }
func (NopDisplay) Warn(string)                           {}
