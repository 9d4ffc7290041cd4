package proctor_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/examind/quiz-portal/internal/proctor"
)

/* ---------------- fakes ---------------- */

type fakeTimer struct {
	when    time.Time
	f       func()
	stopped bool
}

func (t *fakeTimer) Stop() bool {
	was := t.stopped
	t.stopped = true
	return !was
}

// fakeClock fires AfterFunc callbacks synchronously from Advance, in
// deadline order, so timer chains (callbacks that re-arm) unwind fully.
type fakeClock struct {
	mu     sync.Mutex
	now    time.Time
	timers []*fakeTimer
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) AfterFunc(d time.Duration, f func()) proctor.Timer {
	c.mu.Lock()
	defer c.mu.Unlock()
	t := &fakeTimer{when: c.now.Add(d), f: f}
	c.timers = append(c.timers, t)
	return t
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	end := c.now.Add(d)
	for {
		var next *fakeTimer
		for _, t := range c.timers {
			if t.stopped || t.when.After(end) {
				continue
			}
			if next == nil || t.when.Before(next.when) {
				next = t
			}
		}
		if next == nil {
			break
		}
		next.stopped = true
		c.now = next.when
		c.mu.Unlock()
		next.f()
		c.mu.Lock()
	}
	c.now = end
	c.mu.Unlock()
}

type fakeDisplay struct {
	mu         sync.Mutex
	fullscreen bool
	warnings   []string
}

func (d *fakeDisplay) EnterFullscreen(context.Context) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.fullscreen = true
	return nil
}

func (d *fakeDisplay) ExitFullscreen(context.Context) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.fullscreen = false
	return nil
}

func (d *fakeDisplay) IsFullscreen() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.fullscreen
}

func (d *fakeDisplay) Warn(msg string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.warnings = append(d.warnings, msg)
}

func (d *fakeDisplay) warnCount() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.warnings)
}

func (d *fakeDisplay) setFullscreen(v bool) {
	d.mu.Lock()
	d.fullscreen = v
	d.mu.Unlock()
}

type fakeEventLog struct {
	mu   sync.Mutex
	evs  []proctor.EventRecord
	fail error
}

func (l *fakeEventLog) SaveEvent(_ context.Context, ev proctor.EventRecord) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.fail != nil {
		return l.fail
	}
	l.evs = append(l.evs, ev)
	return nil
}

func (l *fakeEventLog) records() []proctor.EventRecord {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]proctor.EventRecord(nil), l.evs...)
}

/* ---------------- tests ---------------- */

func TestFirstViolationWarnsThenEveryFurtherOneEscalates(t *testing.T) {
	d := &fakeDisplay{}
	g := proctor.New(d, proctor.WithClock(newFakeClock()))

	violations := 0
	g.Activate(func() { violations++ }, false)

	g.ReportEvent(proctor.EventTabSwitch, "")
	if got := d.warnCount(); got != 1 {
		t.Fatalf("warnings after first violation = %d, want 1", got)
	}
	if violations != 0 {
		t.Fatalf("violations after first event = %d, want 0", violations)
	}

	g.ReportEvent(proctor.EventWindowBlur, "")
	g.ReportEvent(proctor.EventRightClick, "")
	if violations != 2 {
		t.Fatalf("violations = %d, want 2", violations)
	}
	if got := d.warnCount(); got != 1 {
		t.Fatalf("warnings = %d, want still 1", got)
	}
}

func TestNonViolationEventsAreLoggedButDoNotEscalate(t *testing.T) {
	d := &fakeDisplay{}
	lg := &fakeEventLog{}
	g := proctor.New(d,
		proctor.WithClock(newFakeClock()),
		proctor.WithEventLog(lg, "sess-1", "u1"))

	violations := 0
	g.Activate(func() { violations++ }, false)

	g.ReportEvent(proctor.EventPageUnload, "beforeunload")
	g.ReportEvent(proctor.EventPageUnload, "beforeunload")

	if violations != 0 || d.warnCount() != 0 {
		t.Fatalf("page_unload must not trigger the warning policy")
	}
	recs := lg.records()
	if len(recs) != 2 {
		t.Fatalf("logged %d events, want 2", len(recs))
	}
	if recs[0].SessionID != "sess-1" || recs[0].UserID != "u1" {
		t.Fatalf("record identity = %q/%q", recs[0].SessionID, recs[0].UserID)
	}
	if recs[0].Severity != proctor.EventPageUnload.Severity() {
		t.Fatalf("severity = %d", recs[0].Severity)
	}
}

func TestInactiveGuardIgnoresEvents(t *testing.T) {
	d := &fakeDisplay{}
	g := proctor.New(d, proctor.WithClock(newFakeClock()))

	g.ReportEvent(proctor.EventTabSwitch, "")
	if d.warnCount() != 0 {
		t.Fatalf("inactive guard must not warn")
	}
}

func graceGuard(t *testing.T) (*proctor.Guard, *fakeClock, *fakeDisplay, *graceLog) {
	t.Helper()
	clk := newFakeClock()
	d := &fakeDisplay{fullscreen: true}
	g := proctor.New(d, proctor.WithClock(clk))

	lg := &graceLog{}
	g.SetupFullscreen(proctor.FullscreenPolicy{
		OnExit:       func() { lg.exits++ },
		OnReturn:     func() { lg.returns++ },
		OnTimeout:    func() { lg.timeouts++ },
		OnCountdown:  func(left int) { lg.countdown = append(lg.countdown, left) },
		PauseTimer:   func() { lg.pauses++ },
		ResumeTimer:  func() { lg.resumes++ },
		GraceSeconds: 5,
	})
	g.Activate(func() {}, true)
	return g, clk, d, lg
}

type graceLog struct {
	exits, returns, timeouts int
	pauses, resumes          int
	countdown                []int
}

func TestFullscreenExitStartsGraceAndReturnCancelsIt(t *testing.T) {
	g, clk, d, lg := graceGuard(t)

	d.setFullscreen(false)
	g.FullscreenChanged(false)
	if lg.exits != 1 || lg.pauses != 1 {
		t.Fatalf("exit hooks: exits=%d pauses=%d", lg.exits, lg.pauses)
	}
	if got := g.Phase(); got != proctor.PhaseExitedGrace {
		t.Fatalf("phase = %v, want grace", got)
	}

	clk.Advance(2 * time.Second)
	wantCountdown := []int{5, 4, 3}
	if !equalInts(lg.countdown, wantCountdown) {
		t.Fatalf("countdown = %v, want %v", lg.countdown, wantCountdown)
	}

	d.setFullscreen(true)
	g.FullscreenChanged(true)
	if lg.returns != 1 || lg.resumes != 1 {
		t.Fatalf("return hooks: returns=%d resumes=%d", lg.returns, lg.resumes)
	}
	if got := g.Phase(); got != proctor.PhaseInFullscreen {
		t.Fatalf("phase = %v, want in-fullscreen", got)
	}

	clk.Advance(10 * time.Second)
	if lg.timeouts != 0 {
		t.Fatalf("timeout fired after return")
	}
	if !equalInts(lg.countdown, wantCountdown) {
		t.Fatalf("countdown kept ticking after return: %v", lg.countdown)
	}
}

func TestGraceTimeoutFiresExactlyOnce(t *testing.T) {
	g, clk, d, lg := graceGuard(t)

	d.setFullscreen(false)
	g.FullscreenChanged(false)

	clk.Advance(5 * time.Second)
	if lg.timeouts != 1 {
		t.Fatalf("timeouts = %d, want 1", lg.timeouts)
	}
	if got := g.Phase(); got != proctor.PhaseExpired {
		t.Fatalf("phase = %v, want expired", got)
	}
	want := []int{5, 4, 3, 2, 1, 0}
	if !equalInts(lg.countdown, want) {
		t.Fatalf("countdown = %v, want %v", lg.countdown, want)
	}

	// Nothing further can re-fire it.
	clk.Advance(30 * time.Second)
	g.FullscreenChanged(true)
	g.FullscreenChanged(false)
	clk.Advance(30 * time.Second)
	if lg.timeouts != 1 {
		t.Fatalf("timeouts = %d after expiry, want still 1", lg.timeouts)
	}
}

func TestGraceRecoversWhenDisplayRegainedSilently(t *testing.T) {
	g, clk, d, lg := graceGuard(t)

	d.setFullscreen(false)
	g.FullscreenChanged(false)
	clk.Advance(3 * time.Second)

	// Fullscreen came back but the change notification was lost.
	d.setFullscreen(true)
	clk.Advance(2 * time.Second)

	if lg.timeouts != 0 {
		t.Fatalf("timeout fired even though fullscreen was regained")
	}
	if got := g.Phase(); got != proctor.PhaseInFullscreen {
		t.Fatalf("phase = %v, want in-fullscreen", got)
	}

	// A silent return is still a return: the quiz timer paused on exit
	// must come back, exactly as if the notification had arrived.
	if lg.returns != 1 || lg.resumes != 1 {
		t.Fatalf("return hooks after silent recovery: returns=%d resumes=%d", lg.returns, lg.resumes)
	}
	if lg.pauses != 1 {
		t.Fatalf("pauses = %d, want 1", lg.pauses)
	}

	// And a later exit starts a fresh grace window from that state.
	d.setFullscreen(false)
	g.FullscreenChanged(false)
	clk.Advance(5 * time.Second)
	if lg.timeouts != 1 {
		t.Fatalf("timeouts after second exit = %d, want 1", lg.timeouts)
	}
}

func TestNeverFullscreenExitIsIgnored(t *testing.T) {
	clk := newFakeClock()
	d := &fakeDisplay{} // never entered fullscreen
	g := proctor.New(d, proctor.WithClock(clk))
	fired := 0
	g.SetupFullscreen(proctor.FullscreenPolicy{
		OnTimeout:    func() { fired++ },
		GraceSeconds: 2,
	})
	g.Activate(func() {}, true)

	g.FullscreenChanged(false)
	clk.Advance(10 * time.Second)
	if fired != 0 {
		t.Fatalf("grace ran for a session that never was fullscreen")
	}
}

func TestDeactivateIsReentrantAndIdempotent(t *testing.T) {
	clk := newFakeClock()
	d := &fakeDisplay{fullscreen: true}
	g := proctor.New(d, proctor.WithClock(clk))

	// Deactivate before ever activating must not panic.
	g.Deactivate()

	timeouts := 0
	g.SetupFullscreen(proctor.FullscreenPolicy{
		OnTimeout: func() {
			timeouts++
			g.Deactivate() // from within the guard's own callback
		},
		GraceSeconds: 1,
	})
	g.Activate(func() {}, true)

	d.setFullscreen(false)
	g.FullscreenChanged(false)
	clk.Advance(time.Second)
	if timeouts != 1 {
		t.Fatalf("timeouts = %d, want 1", timeouts)
	}

	g.Deactivate()
	g.Deactivate()

	// Disarmed guard warns nobody.
	g.ReportEvent(proctor.EventTabSwitch, "")
	if d.warnCount() != 0 {
		t.Fatalf("deactivated guard warned")
	}
}

func equalInts(a, b []int) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
