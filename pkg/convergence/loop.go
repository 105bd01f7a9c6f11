package convergence

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// Phase is the position of a loop run in its lifecycle
type Phase int

const (
	PhasePolling Phase = iota
	PhaseSettling
	PhaseDone
	PhaseTimedOut
)

func (p Phase) String() string {
	switch p {
	case PhasePolling:
		return "polling"
	case PhaseSettling:
		return "settling"
	case PhaseDone:
		return "done"
	case PhaseTimedOut:
		return "timed_out"
	default:
		return fmt.Sprintf("phase(%d)", int(p))
	}
}

// Terminal reports whether no further transition can happen
func (p Phase) Terminal() bool {
	return p == PhaseDone || p == PhaseTimedOut
}

// Reason explains why a run stopped
type Reason int

const (
	ReasonReachedExpectedCount Reason = iota
	ReasonHeightExhausted
	ReasonTimedOut
	ReasonCancelled
)

func (r Reason) String() string {
	switch r {
	case ReasonReachedExpectedCount:
		return "reached_expected_count"
	case ReasonHeightExhausted:
		return "height_exhausted"
	case ReasonTimedOut:
		return "timed_out"
	case ReasonCancelled:
		return "cancelled"
	default:
		return fmt.Sprintf("reason(%d)", int(r))
	}
}

// Probe reads page metrics. Every call may fail transiently and must return
// once ctx is done.
type Probe interface {
	DocumentHeight(ctx context.Context) (int, error)
	ScrollOffset(ctx context.Context) (int, error)
	MatchedCount(ctx context.Context) (int, error)
	// LoadedCount is how many matched elements have finished loading
	LoadedCount(ctx context.Context) (int, error)
}

// Driver scrolls the page
type Driver interface {
	ScrollBy(ctx context.Context, px int) error
}

// Config parameterizes one run. It is copied into the run and never mutated.
type Config struct {
	PollInterval  time.Duration
	ScrollStep    int
	MaxDuration   time.Duration
	SettleDelay   time.Duration
	ExpectedCount int

	// MaxProbeFailures is how many consecutive failed ticks are tolerated
	// before the run gives up as timed out.
	MaxProbeFailures int

	// ProbeTimeout bounds each probe or driver call. Calls are always cut
	// off at the run deadline; zero means that deadline is the only bound.
	ProbeTimeout time.Duration
}

// DefaultMaxProbeFailures is used when Config.MaxProbeFailures is zero
const DefaultMaxProbeFailures = 3

// Validate checks the config
func (c Config) Validate() error {
	var errs []error
	if c.PollInterval <= 0 {
		errs = append(errs, errors.New("poll interval must be positive"))
	}
	if c.ScrollStep <= 0 {
		errs = append(errs, errors.New("scroll step must be positive"))
	}
	if c.MaxDuration <= 0 {
		errs = append(errs, errors.New("max duration must be positive"))
	}
	if c.SettleDelay < 0 {
		errs = append(errs, errors.New("settle delay cannot be negative"))
	}
	if c.ExpectedCount < 0 {
		errs = append(errs, errors.New("expected count cannot be negative"))
	}
	if c.MaxProbeFailures < 0 {
		errs = append(errs, errors.New("max probe failures cannot be negative"))
	}
	if c.ProbeTimeout < 0 {
		errs = append(errs, errors.New("probe timeout cannot be negative"))
	}
	return errors.Join(errs...)
}

// State is the mutable state of one run
type State struct {
	TotalScrolled       int
	Elapsed             time.Duration
	LastDocumentHeight  int
	ScrollOffset        int
	MatchedCount        int
	LoadedCount         int
	Phase               Phase
	Ticks               int
	ConsecutiveFailures int
	LastError           error
}

// Outcome is the result of a run. Completed is false for timeouts and
// cancellation; the final state is still usable as a partial result.
type Outcome struct {
	Completed bool
	Reason    Reason
	State     State
}

// Loop drives a probe and a driver until the page converges
type Loop struct {
	cfg    Config
	probe  Probe
	driver Driver
	clock  Clock
	onTick func(State)

	state State
	start time.Time
}

// Option customizes a Loop
type Option func(*Loop)

// WithClock injects the time source
func WithClock(c Clock) Option {
	return func(l *Loop) { l.clock = c }
}

// WithTickObserver registers fn to receive a copy of the state after every tick
// and phase change
func WithTickObserver(fn func(State)) Option {
	return func(l *Loop) { l.onTick = fn }
}

// New creates a loop for a single run
func New(cfg Config, probe Probe, driver Driver, opts ...Option) (*Loop, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid loop config: %w", err)
	}
	if cfg.MaxProbeFailures == 0 {
		cfg.MaxProbeFailures = DefaultMaxProbeFailures
	}
	l := &Loop{
		cfg:    cfg,
		probe:  probe,
		driver: driver,
		clock:  SystemClock{},
	}
	for _, opt := range opts {
		opt(l)
	}
	l.reset()
	return l, nil
}

// Run is a convenience wrapper around New and Loop.Run
func Run(ctx context.Context, cfg Config, probe Probe, driver Driver, opts ...Option) (Outcome, error) {
	l, err := New(cfg, probe, driver, opts...)
	if err != nil {
		return Outcome{}, err
	}
	return l.Run(ctx), nil
}

// Run polls until a terminal phase is reached or ctx is cancelled.
// It always returns; the worst case is MaxDuration plus one poll interval
// plus SettleDelay, however slow the probe is.
func (l *Loop) Run(ctx context.Context) Outcome {
	l.reset()

	// Nothing to scroll for when the page is already complete.
	if l.cfg.ExpectedCount > 0 {
		if matched, err := l.matchedCount(ctx, l.pollLimit()); err == nil {
			l.state.MatchedCount = matched
			if matched >= l.cfg.ExpectedCount {
				return l.finish(PhaseDone, ReasonReachedExpectedCount)
			}
		}
	}

	for {
		if ctx.Err() != nil {
			return l.cancelled()
		}
		select {
		case <-ctx.Done():
			return l.cancelled()
		case <-l.clock.After(l.cfg.PollInterval):
		}
		if out, done := l.Tick(ctx); done {
			return out
		}
	}
}

// Tick performs one poll: measure, scroll, count, then decide. It returns
// true once the run has reached a terminal phase.
func (l *Loop) Tick(ctx context.Context) (Outcome, bool) {
	if ctx.Err() != nil {
		return l.cancelled(), true
	}
	l.advanceElapsed()
	l.state.Ticks++

	// Past the deadline the page is not touched again.
	if l.state.Elapsed >= l.cfg.MaxDuration {
		return l.settleThenTimeout(ctx), true
	}

	if err := l.measure(ctx); err != nil {
		return l.probeFailed(ctx, err)
	}
	l.advanceElapsed()
	l.state.ConsecutiveFailures = 0
	l.state.LastError = nil
	l.notify()

	switch {
	case l.cfg.ExpectedCount > 0 && l.state.MatchedCount >= l.cfg.ExpectedCount:
		return l.finish(PhaseDone, ReasonReachedExpectedCount), true
	case l.state.Elapsed >= l.cfg.MaxDuration:
		return l.settleThenTimeout(ctx), true
	case l.state.TotalScrolled >= l.state.LastDocumentHeight:
		return l.settleAtBottom(ctx)
	}
	return Outcome{State: l.state}, false
}

// measure reads the height, scrolls, then reads offset and counts. Metrics
// are only recorded once every read has succeeded.
func (l *Loop) measure(ctx context.Context) error {
	limit := l.pollLimit()
	height, err := l.documentHeight(ctx, limit)
	if err != nil {
		return err
	}
	if err := l.scrollBy(ctx, l.cfg.ScrollStep, limit); err != nil {
		return err
	}
	l.state.TotalScrolled += l.cfg.ScrollStep
	l.state.LastDocumentHeight = height

	offset, err := l.call(ctx, limit, l.probe.ScrollOffset)
	if err != nil {
		return err
	}
	matched, err := l.matchedCount(ctx, limit)
	if err != nil {
		return err
	}
	loaded, err := l.call(ctx, limit, l.probe.LoadedCount)
	if err != nil {
		return err
	}
	l.state.ScrollOffset = offset
	l.state.MatchedCount = matched
	l.state.LoadedCount = loaded
	return nil
}

func (l *Loop) reset() {
	l.state = State{Phase: PhasePolling}
	l.start = l.clock.Now()
}

// State returns a copy of the current state
func (l *Loop) State() State {
	return l.state
}

func (l *Loop) probeFailed(ctx context.Context, err error) (Outcome, bool) {
	if ctx.Err() != nil {
		return l.cancelled(), true
	}
	l.state.ConsecutiveFailures++
	l.state.LastError = err
	l.notify()
	if l.state.ConsecutiveFailures > l.cfg.MaxProbeFailures {
		return l.finish(PhaseTimedOut, ReasonTimedOut), true
	}
	if l.state.Elapsed >= l.cfg.MaxDuration {
		return l.finish(PhaseTimedOut, ReasonTimedOut), true
	}
	return Outcome{State: l.state}, false
}

func (l *Loop) settleThenTimeout(ctx context.Context) Outcome {
	if !l.settle(ctx) {
		return l.cancelled()
	}
	return l.finish(PhaseTimedOut, ReasonTimedOut)
}

// settleAtBottom waits for lazy content, then re-measures. Growth resumes
// polling unless the deadline has passed in the meantime.
func (l *Loop) settleAtBottom(ctx context.Context) (Outcome, bool) {
	if !l.settle(ctx) {
		return l.cancelled(), true
	}

	limit := l.pollLimit() + l.cfg.SettleDelay
	if l.cfg.ExpectedCount > 0 {
		if matched, err := l.matchedCount(ctx, limit); err == nil {
			l.state.MatchedCount = matched
			if matched >= l.cfg.ExpectedCount {
				return l.finish(PhaseDone, ReasonReachedExpectedCount), true
			}
		}
	}

	height, err := l.documentHeight(ctx, limit)
	if err != nil || height <= l.state.LastDocumentHeight {
		return l.finish(PhaseDone, ReasonHeightExhausted), true
	}
	l.state.LastDocumentHeight = height
	if l.state.Elapsed >= l.cfg.MaxDuration {
		return l.finish(PhaseTimedOut, ReasonTimedOut), true
	}
	l.state.Phase = PhasePolling
	l.notify()
	return Outcome{State: l.state}, false
}

// settle enters the settling phase and waits SettleDelay. It returns false
// if ctx was cancelled during the wait.
func (l *Loop) settle(ctx context.Context) bool {
	l.state.Phase = PhaseSettling
	l.notify()
	if l.cfg.SettleDelay > 0 {
		select {
		case <-ctx.Done():
			return false
		case <-l.clock.After(l.cfg.SettleDelay):
		}
	}
	l.advanceElapsed()
	return ctx.Err() == nil
}

func (l *Loop) finish(phase Phase, reason Reason) Outcome {
	l.advanceElapsed()
	l.state.Phase = phase
	l.notify()
	return Outcome{
		Completed: phase == PhaseDone,
		Reason:    reason,
		State:     l.state,
	}
}

func (l *Loop) cancelled() Outcome {
	l.advanceElapsed()
	if !l.state.Phase.Terminal() {
		l.state.Phase = PhaseTimedOut
	}
	l.notify()
	return Outcome{Reason: ReasonCancelled, State: l.state}
}

// advanceElapsed keeps Elapsed monotonic even if the clock steps backwards
func (l *Loop) advanceElapsed() {
	if e := l.clock.Now().Sub(l.start); e > l.state.Elapsed {
		l.state.Elapsed = e
	}
}

func (l *Loop) notify() {
	if l.onTick != nil {
		l.onTick(l.state)
	}
}

// pollLimit is the elapsed time by which calls made while polling must
// have returned
func (l *Loop) pollLimit() time.Duration {
	return l.cfg.MaxDuration + l.cfg.PollInterval
}

// callCtx bounds one call by ProbeTimeout and by what is left until limit
func (l *Loop) callCtx(ctx context.Context, limit time.Duration) (context.Context, context.CancelFunc) {
	l.advanceElapsed()
	budget := limit - l.state.Elapsed
	if l.cfg.ProbeTimeout > 0 && l.cfg.ProbeTimeout < budget {
		budget = l.cfg.ProbeTimeout
	}
	return context.WithTimeout(ctx, budget)
}

func (l *Loop) call(ctx context.Context, limit time.Duration, fn func(context.Context) (int, error)) (int, error) {
	cctx, cancel := l.callCtx(ctx, limit)
	defer cancel()
	return fn(cctx)
}

func (l *Loop) documentHeight(ctx context.Context, limit time.Duration) (int, error) {
	return l.call(ctx, limit, l.probe.DocumentHeight)
}

func (l *Loop) matchedCount(ctx context.Context, limit time.Duration) (int, error) {
	return l.call(ctx, limit, l.probe.MatchedCount)
}

func (l *Loop) scrollBy(ctx context.Context, px int, limit time.Duration) error {
	cctx, cancel := l.callCtx(ctx, limit)
	defer cancel()
	return l.driver.ScrollBy(cctx, px)
}
