// Package quiz drives a single test-taker through an ordered,
// time-boxed sequence of questions exactly once, recording answers and
// producing a final score. Integrity enforcement is delegated to a
// proctor.Guard bound to the session.
package quiz

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/examind/quiz-portal/internal/proctor"
)

var (
	// ErrDataUnavailable covers question-load and result-persistence
	// failures. Recovered locally with a retry, never fatal.
	ErrDataUnavailable = errors.New("data unavailable")

	// ErrUnauthenticated means no current user at session start or
	// submission time. Fatal to quiz start.
	ErrUnauthenticated = errors.New("not authenticated")

	ErrNoActiveQuestion = errors.New("no active question")
	ErrBadOption        = errors.New("option index out of range")
)

// QuestionSource is the external question bank, read once per session.
type QuestionSource interface {
	FetchQuestions(ctx context.Context) ([]Question, error)
}

// ResultSink appends one result document per submitted session.
type ResultSink interface {
	SaveResult(ctx context.Context, res Result) error
}

type State int

const (
	StateIdle State = iota
	StateLoading
	StateEmpty // bank returned zero questions: valid, distinct from loading
	StateActive
	StateSubmitting
	StateSubmitted
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateLoading:
		return "loading"
	case StateEmpty:
		return "empty"
	case StateActive:
		return "active"
	case StateSubmitting:
		return "submitting"
	case StateSubmitted:
		return "submitted"
	}
	return "unknown"
}

// Events receives session notifications. Callbacks run without the
// runner's lock held. All methods must be non-blocking.
type Events interface {
	QuestionStarted(index, total int, q Question, remainingSec int)
	Tick(remainingSec int)
	TimerPaused()
	TimerResumed()
	Submitted(res Result)
	SubmitFailed(err error)
}

type NopEvents struct{}

func (NopEvents) QuestionStarted(int, int, Question, int) {}
func (NopEvents) Tick(int)                                {}
func (NopEvents) TimerPaused()                            {}
func (NopEvents) TimerResumed()                           {}
func (NopEvents) Submitted(Result)                        {}
func (NopEvents) SubmitFailed(error)                      {}

// Config wires a Runner's collaborators. Source and Results are
// required; everything else has a sensible default.
type Config struct {
	Source  QuestionSource
	Results ResultSink
	Guard   *proctor.Guard // optional
	User    Identity

	Clock   proctor.Clock
	Events  Events
	Shuffle func([]Question) // per-session permutation
	NewID   func() string
}

// Runner owns one quiz session. Runtime-only: session state is never
// persisted mid-flight.
type Runner struct {
	mu      sync.Mutex
	clock   proctor.Clock
	source  QuestionSource
	results ResultSink
	guard   *proctor.Guard
	user    Identity
	events  Events
	shuffle func([]Question)
	newID   func() string

	// ctx is session-scoped: timer-driven advances and guard-driven
	// submissions run under it because they have no caller to supply one.
	ctx context.Context

	sessionID string
	state     State
	questions []Question
	index     int
	selected  int
	remaining int
	paused    bool
	answers   []AnswerRecord

	submitting bool
	result     Result

	timerGen uint64
	timer    proctor.Timer
}

func NewRunner(cfg Config) *Runner {
	r := &Runner{
		clock:     cfg.Clock,
		source:    cfg.Source,
		results:   cfg.Results,
		guard:     cfg.Guard,
		user:      cfg.User,
		events:    cfg.Events,
		shuffle:   cfg.Shuffle,
		newID:     cfg.NewID,
		sessionID: uuid.NewString(),
		state:     StateIdle,
		selected:  NoSelection,
	}
	if r.clock == nil {
		r.clock = proctor.SystemClock()
	}
	if r.events == nil {
		r.events = NopEvents{}
	}
	if r.shuffle == nil {
		rng := rand.New(rand.NewSource(time.Now().UnixNano()))
		r.shuffle = func(qs []Question) {
			rng.Shuffle(len(qs), func(i, j int) { qs[i], qs[j] = qs[j], qs[i] })
		}
	}
	if r.newID == nil {
		r.newID = uuid.NewString
	}
	return r
}

func (r *Runner) SessionID() string { return r.sessionID }

func (r *Runner) State() State {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.state
}

// LoadQuestions fetches the question set, applies a fresh shuffle, and
// starts the first question's countdown. An empty bank is not an error:
// the runner lands in StateEmpty.
func (r *Runner) LoadQuestions(ctx context.Context) error {
	r.mu.Lock()
	if r.state != StateIdle {
		r.mu.Unlock()
		return fmt.Errorf("load questions: session already %s", r.state)
	}
	if r.user.ID == "" {
		r.mu.Unlock()
		return ErrUnauthenticated
	}
	r.state = StateLoading
	r.ctx = ctx
	r.mu.Unlock()

	qs, err := r.source.FetchQuestions(ctx)

	r.mu.Lock()
	if err != nil {
		r.state = StateIdle // caller may retry
		r.mu.Unlock()
		return fmt.Errorf("%w: fetch questions: %v", ErrDataUnavailable, err)
	}
	if len(qs) == 0 {
		r.state = StateEmpty
		r.mu.Unlock()
		return nil
	}
	r.questions = append([]Question(nil), qs...)
	r.shuffle(r.questions)
	r.index = 0
	r.selected = NoSelection
	r.answers = nil
	r.state = StateActive
	post := r.startQuestionLocked()
	r.mu.Unlock()

	post()
	return nil
}

// SelectOption records the tentative selection for the active question.
// Overwrite-safe until Advance finalizes it.
func (r *Runner) SelectOption(i int) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.state != StateActive || r.index >= len(r.questions) {
		return ErrNoActiveQuestion
	}
	if i < 0 || i >= len(r.questions[r.index].Options) {
		return ErrBadOption
	}
	r.selected = i
	return nil
}

// Advance finalizes the active question with whatever is selected (or
// the no-selection sentinel) and moves forward; on the last question it
// triggers submission. The sole way to leave a question.
func (r *Runner) Advance(ctx context.Context) error {
	r.mu.Lock()
	post := r.advanceLocked()
	r.mu.Unlock()
	if post == nil {
		return ErrNoActiveQuestion
	}
	return post(ctx)
}

// advanceLocked returns nil when there is nothing to advance, otherwise
// a follow-up to run after the lock is released (next-question
// notification, or the submission of the finished session).
func (r *Runner) advanceLocked() func(context.Context) error {
	if r.state != StateActive || r.index >= len(r.questions) {
		return nil
	}
	q := r.questions[r.index]
	rec := AnswerRecord{
		QuestionID:   q.ID,
		Prompt:       q.Prompt,
		Selected:     r.selected,
		SelectedText: "No selection",
		CorrectText:  q.Options[q.CorrectIndex],
		Correct:      r.selected == q.CorrectIndex,
		MaxPoints:    q.Points,
	}
	if r.selected != NoSelection {
		rec.SelectedText = q.Options[r.selected]
	}
	if rec.Correct {
		rec.Points = q.Points
	}
	r.answers = append(r.answers, rec)
	r.stopTimerLocked()
	r.index++
	r.selected = NoSelection

	if r.index < len(r.questions) {
		post := r.startQuestionLocked()
		return func(context.Context) error {
			post()
			return nil
		}
	}
	return func(ctx context.Context) error { return r.Submit(ctx) }
}

// startQuestionLocked resets the countdown for the question at r.index
// and returns the started notification to fire outside the lock.
func (r *Runner) startQuestionLocked() func() {
	q := r.questions[r.index]
	r.remaining = q.TimeLimitSec
	r.scheduleTickLocked()

	idx, total, rem := r.index, len(r.questions), r.remaining
	return func() { r.events.QuestionStarted(idx, total, q, rem) }
}

func (r *Runner) scheduleTickLocked() {
	r.timerGen++
	gen := r.timerGen
	r.timer = r.clock.AfterFunc(time.Second, func() { r.tick(gen) })
}

func (r *Runner) stopTimerLocked() {
	r.timerGen++
	if r.timer != nil {
		r.timer.Stop()
		r.timer = nil
	}
}

func (r *Runner) tick(gen uint64) {
	r.mu.Lock()
	if gen != r.timerGen || r.state != StateActive || r.paused {
		r.mu.Unlock()
		return
	}
	r.remaining--
	rem := r.remaining
	var post func(context.Context) error
	if rem <= 0 {
		// Timer expiry is equivalent to clicking "next" with the
		// current selection standing.
		post = r.advanceLocked()
	} else {
		r.timer = r.clock.AfterFunc(time.Second, func() { r.tick(gen) })
	}
	ctx := r.ctx
	r.mu.Unlock()

	r.events.Tick(rem)
	if post != nil {
		_ = post(ctx)
	}
}

// PauseTimer freezes the active countdown in place. Driven by the
// guard while a fullscreen violation is pending.
func (r *Runner) PauseTimer() {
	r.mu.Lock()
	if r.paused || r.state != StateActive {
		r.mu.Unlock()
		return
	}
	r.paused = true
	r.stopTimerLocked()
	r.mu.Unlock()
	r.events.TimerPaused()
}

// ResumeTimer restarts the countdown exactly where it left off.
func (r *Runner) ResumeTimer() {
	r.mu.Lock()
	if !r.paused || r.state != StateActive {
		r.mu.Unlock()
		return
	}
	r.paused = false
	r.scheduleTickLocked()
	r.mu.Unlock()
	r.events.TimerResumed()
}

// Submit computes the final score and persists the result document.
// Idempotent: a call while a submission is pending, or after one
// succeeded, is a silent no-op. A persistence failure keeps the answer
// log so the caller can retry without re-answering.
func (r *Runner) Submit(ctx context.Context) error {
	r.mu.Lock()
	if r.submitting || r.state == StateSubmitted {
		r.mu.Unlock()
		return nil
	}
	switch r.state {
	case StateActive, StateSubmitting:
	default:
		r.mu.Unlock()
		return fmt.Errorf("submit: no session in progress")
	}
	if r.user.ID == "" {
		r.mu.Unlock()
		return ErrUnauthenticated
	}
	r.submitting = true
	r.state = StateSubmitting
	r.stopTimerLocked()
	res := r.buildResultLocked()
	r.mu.Unlock()

	err := r.results.SaveResult(ctx, res)

	r.mu.Lock()
	if err != nil {
		r.submitting = false // retry allowed; answers survive
		r.mu.Unlock()
		r.events.SubmitFailed(err)
		return fmt.Errorf("%w: save result: %v", ErrDataUnavailable, err)
	}
	r.state = StateSubmitted
	r.result = res
	r.mu.Unlock()

	if g := r.guard; g != nil {
		g.Deactivate()
		if g.InFullscreen() {
			_ = g.ExitFullscreen(ctx)
		}
	}
	r.events.Submitted(res)
	return nil
}

func (r *Runner) buildResultLocked() Result {
	sum := Summary{TotalCount: len(r.questions)}
	for _, a := range r.answers {
		sum.TotalPoints += a.Points
		sum.MaxPoints += a.MaxPoints
		if a.Correct {
			sum.CorrectCount++
		}
	}
	if sum.MaxPoints > 0 {
		sum.Percentage = float64(sum.TotalPoints) / float64(sum.MaxPoints) * 100
	}
	return Result{
		ID:          r.newID(),
		UserID:      r.user.ID,
		UserName:    r.user.DisplayName,
		Answers:     append([]AnswerRecord(nil), r.answers...),
		Summary:     sum,
		CompletedAt: r.clock.Now(),
	}
}

// BindGuard wires the guard into this session and activates it: its
// pause/resume signals drive the question countdown, and both the
// grace-period timeout and the second-violation callback force
// submission of whatever has been answered so far. The caller's
// OnExit/OnReturn/OnCountdown hooks (for the warning overlay) are
// preserved.
func (r *Runner) BindGuard(g *proctor.Guard, fullscreenRequired bool, policy proctor.FullscreenPolicy) {
	r.mu.Lock()
	r.guard = g
	r.mu.Unlock()

	forceSubmit := func() {
		r.mu.Lock()
		ctx := r.ctx
		r.mu.Unlock()
		if ctx == nil {
			ctx = context.Background()
		}
		_ = r.Submit(ctx)
	}
	policy.OnTimeout = forceSubmit
	policy.PauseTimer = r.PauseTimer
	policy.ResumeTimer = r.ResumeTimer
	g.SetupFullscreen(policy)
	g.Activate(forceSubmit, fullscreenRequired)
}

// Accessors used by the transport layer and tests.

func (r *Runner) CurrentIndex() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.index
}

func (r *Runner) QuestionCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.questions)
}

func (r *Runner) CurrentQuestion() (Question, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.state != StateActive || r.index >= len(r.questions) {
		return Question{}, false
	}
	return r.questions[r.index], true
}

func (r *Runner) Remaining() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.remaining
}

func (r *Runner) Paused() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.paused
}

func (r *Runner) Answers() []AnswerRecord {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]AnswerRecord(nil), r.answers...)
}

// LastResult returns the persisted result once submission succeeded.
func (r *Runner) LastResult() (Result, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.state != StateSubmitted {
		return Result{}, false
	}
	return r.result, true
}
