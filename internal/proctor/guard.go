// Package proctor enforces exam integrity for a single quiz session:
// an escalating-warning policy over monitored browser events, and a
// mandatory-fullscreen policy with a bounded grace period after exit.
package proctor

import (
	"context"
	"log"
	"sync"
	"time"
)

const warningMessage = "Navigating away from the quiz is not allowed. " +
	"Your next attempt will result in automatic submission."

const defaultGraceSeconds = 10

// Phase is the state of the fullscreen sub-policy.
type Phase int

const (
	PhaseInFullscreen Phase = iota
	PhaseExitedGrace
	PhaseExpired // terminal: grace ran out, session is being auto-submitted
)

// FullscreenPolicy configures the fullscreen-exit grace period. All
// callbacks are optional and are invoked without the guard's lock held,
// so they may call back into the guard (including Deactivate).
type FullscreenPolicy struct {
	OnExit      func()
	OnReturn    func()
	OnTimeout   func()
	OnCountdown func(remaining int) // once per second while outside fullscreen
	PauseTimer  func()
	ResumeTimer func()

	GraceSeconds int // 0 means defaultGraceSeconds
}

// Guard owns one session's security state. Construct one per session;
// it is not shared between sessions.
type Guard struct {
	mu      sync.Mutex
	clock   Clock
	display Display

	events    EventLog // optional
	sessionID string
	userID    string

	active             bool
	fullscreenRequired bool
	warned             bool
	onViolation        func()

	policy        FullscreenPolicy
	wasFullscreen bool

	phase        Phase
	graceLeft    int
	graceTimer   Timer
	graceGen     uint64
	timeoutFired bool
}

type Option func(*Guard)

func WithClock(c Clock) Option { return func(g *Guard) { g.clock = c } }

// WithEventLog persists every monitored event for later review.
func WithEventLog(store EventLog, sessionID, userID string) Option {
	return func(g *Guard) {
		g.events = store
		g.sessionID = sessionID
		g.userID = userID
	}
}

func New(display Display, opts ...Option) *Guard {
	g := &Guard{
		clock:   SystemClock(),
		display: display,
		phase:   PhaseInFullscreen,
	}
	for _, o := range opts {
		o(g)
	}
	return g
}

// Activate arms the guard. onSecondViolation is invoked on the second
// and every subsequent violation; the first only produces a warning.
// Callers must not Activate twice without an intervening Deactivate.
func (g *Guard) Activate(onSecondViolation func(), fullscreenRequired bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.active = true
	g.onViolation = onSecondViolation
	g.fullscreenRequired = fullscreenRequired
	if fullscreenRequired {
		g.wasFullscreen = g.display.IsFullscreen()
	}
}

// SetupFullscreen configures the grace-period policy. Must be called
// before fullscreen exits can be handled meaningfully.
func (g *Guard) SetupFullscreen(p FullscreenPolicy) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if p.GraceSeconds <= 0 {
		p.GraceSeconds = defaultGraceSeconds
	}
	g.policy = p
}

// ReportEvent feeds one monitored action into the guard: it is logged,
// and if it counts as a violation the escalating-warning policy runs.
func (g *Guard) ReportEvent(ev EventType, detail string) {
	g.mu.Lock()
	if !g.active {
		g.mu.Unlock()
		return
	}
	rec := EventRecord{
		SessionID: g.sessionID,
		UserID:    g.userID,
		Type:      ev,
		Severity:  ev.Severity(),
		Detail:    detail,
		CreatedAt: g.clock.Now(),
	}
	store := g.events

	var warn bool
	var violated func()
	if ev.Violation() {
		if !g.warned {
			g.warned = true
			warn = true
		} else {
			violated = g.onViolation
		}
	}
	g.mu.Unlock()

	if store != nil {
		if err := store.SaveEvent(context.Background(), rec); err != nil {
			log.Printf("proctor: save event %s: %v", ev, err)
		}
	}
	if warn {
		g.display.Warn(warningMessage)
	}
	if violated != nil {
		violated()
	}
}

// FullscreenChanged is fed the host's fullscreen-change notifications.
func (g *Guard) FullscreenChanged(active bool) {
	g.mu.Lock()
	if !g.active || !g.fullscreenRequired || g.phase == PhaseExpired {
		g.mu.Unlock()
		return
	}

	var post []func()
	if active {
		g.wasFullscreen = true
		g.cancelGraceLocked()
		g.phase = PhaseInFullscreen
		if cb := g.policy.OnReturn; cb != nil {
			post = append(post, cb)
		}
		if cb := g.policy.ResumeTimer; cb != nil {
			post = append(post, cb)
		}
	} else {
		if !g.wasFullscreen {
			// Never were fullscreen: nothing to enforce.
			g.mu.Unlock()
			return
		}
		g.wasFullscreen = false
		if cb := g.policy.OnExit; cb != nil {
			post = append(post, cb)
		}
		if cb := g.policy.PauseTimer; cb != nil {
			post = append(post, cb)
		}
		post = append(post, g.startGraceLocked())
	}
	g.mu.Unlock()

	for _, f := range post {
		f()
	}
	if !active {
		g.ReportEvent(EventFullscreenExit, "")
	}
}

// startGraceLocked arms the exit countdown and returns the callback that
// pushes the initial remaining value to the display.
func (g *Guard) startGraceLocked() func() {
	g.cancelGraceLocked()
	g.phase = PhaseExitedGrace
	g.graceLeft = g.policy.GraceSeconds
	g.timeoutFired = false
	g.graceGen++
	gen := g.graceGen
	g.graceTimer = g.clock.AfterFunc(time.Second, func() { g.graceTick(gen) })

	left := g.graceLeft
	cb := g.policy.OnCountdown
	return func() {
		if cb != nil {
			cb(left)
		}
	}
}

func (g *Guard) graceTick(gen uint64) {
	g.mu.Lock()
	if !g.active || gen != g.graceGen || g.phase != PhaseExitedGrace {
		g.mu.Unlock()
		return
	}
	g.graceLeft--
	left := g.graceLeft

	var fire bool
	var returned []func()
	if left <= 0 {
		g.graceTimer = nil
		if g.display.IsFullscreen() {
			// Returned without the change notification reaching us;
			// treat it as a return rather than expiring, including the
			// return hooks that un-pause the quiz.
			g.wasFullscreen = true
			g.phase = PhaseInFullscreen
			if cb := g.policy.OnReturn; cb != nil {
				returned = append(returned, cb)
			}
			if cb := g.policy.ResumeTimer; cb != nil {
				returned = append(returned, cb)
			}
		} else if !g.timeoutFired {
			// The fired flag is the single source of truth here: no
			// second timer exists to race this path.
			g.timeoutFired = true
			g.phase = PhaseExpired
			fire = true
		}
	} else {
		g.graceTimer = g.clock.AfterFunc(time.Second, func() { g.graceTick(gen) })
	}
	countdown := g.policy.OnCountdown
	timeout := g.policy.OnTimeout
	g.mu.Unlock()

	if countdown != nil {
		countdown(left)
	}
	for _, f := range returned {
		f()
	}
	if fire && timeout != nil {
		timeout()
	}
}

func (g *Guard) cancelGraceLocked() {
	g.graceGen++
	if g.graceTimer != nil {
		g.graceTimer.Stop()
		g.graceTimer = nil
	}
}

// EnterFullscreen requests fullscreen from the host environment.
func (g *Guard) EnterFullscreen(ctx context.Context) error {
	if err := g.display.EnterFullscreen(ctx); err != nil {
		return err
	}
	g.mu.Lock()
	g.wasFullscreen = true
	g.mu.Unlock()
	return nil
}

// ExitFullscreen releases fullscreen on the host environment.
func (g *Guard) ExitFullscreen(ctx context.Context) error {
	g.mu.Lock()
	g.wasFullscreen = false
	g.mu.Unlock()
	return g.display.ExitFullscreen(ctx)
}

// InFullscreen reports whether the host currently claims fullscreen.
func (g *Guard) InFullscreen() bool { return g.display.IsFullscreen() }

// Phase exposes the fullscreen sub-policy state.
func (g *Guard) Phase() Phase {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.phase
}

// Deactivate disarms the guard and resets all state. Safe to call when
// never activated, repeatedly, and from within the guard's own
// callbacks.
func (g *Guard) Deactivate() {
	g.mu.Lock()
	g.active = false
	g.warned = false
	g.onViolation = nil
	g.policy = FullscreenPolicy{}
	g.fullscreenRequired = false
	g.wasFullscreen = false
	g.timeoutFired = false
	g.phase = PhaseInFullscreen
	g.cancelGraceLocked()
	g.mu.Unlock()
}
