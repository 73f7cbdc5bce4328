package readiness

import (
	"context"
	"log/slog"
	"time"
)

// Trigger is the idempotent external action assumed to cause eventual
// progress, e.g. re-opening the target file through the editor UI. It must
// tolerate being fired while the UI state is unknown.
type Trigger interface {
	Fire(ctx context.Context) error
}

// TriggerFunc adapts a function to the Trigger interface.
type TriggerFunc func(ctx context.Context) error

// Fire implements Trigger.
func (f TriggerFunc) Fire(ctx context.Context) error { return f(ctx) }

// Config holds the poller's timing parameters. Zero values fall back to the
// defaults below.
type Config struct {
	// Interval between polls.
	Interval time.Duration

	// GracePeriod is how long the poller waits before the one-shot stall
	// recovery (re-firing the trigger) becomes eligible.
	GracePeriod time.Duration

	// IndexingExtension is the extra wait granted past the timeout when the
	// indexing phase is observed but not yet complete.
	IndexingExtension time.Duration

	// OptimisticExtension is the shorter extra wait granted when the worker
	// pool is up but no indexing markers ever appeared; after it, readiness
	// is assumed rather than confirmed.
	OptimisticExtension time.Duration

	// Markers is the log phrasing contract used to derive Status.
	Markers Markers
}

// DefaultConfig returns the production timing parameters.
func DefaultConfig() Config {
	return Config{
		Interval:            5 * time.Second,
		GracePeriod:         30 * time.Second,
		IndexingExtension:   60 * time.Second,
		OptimisticExtension: 30 * time.Second,
		Markers:             DefaultMarkers(),
	}
}

func (c Config) withDefaults() Config {
	def := DefaultConfig()
	if c.Interval <= 0 {
		c.Interval = def.Interval
	}
	if c.GracePeriod <= 0 {
		c.GracePeriod = def.GracePeriod
	}
	if c.IndexingExtension <= 0 {
		c.IndexingExtension = def.IndexingExtension
	}
	if c.OptimisticExtension <= 0 {
		c.OptimisticExtension = def.OptimisticExtension
	}
	if c.Markers.UnitCount == nil {
		c.Markers = def.Markers
	}
	return c
}

// PollOutcome is the terminal result of a poll session.
type PollOutcome struct {
	// Ready reports whether the index was (or is assumed) complete.
	Ready bool

	// Elapsed is the total wall time the session consumed.
	Elapsed time.Duration
}

// Poller watches a SignalSource and decides when the background indexing task
// has completed. A Poller is reusable; each Poll call owns its own session
// state, so concurrent sessions do not share retry flags or timers.
type Poller struct {
	source  SignalSource
	trigger Trigger
	cfg     Config
	clock   Clock
	logger  *slog.Logger

	// onTransition, when set, observes every de-duplicated status change.
	onTransition func(Status)
}

// Option configures a Poller.
type Option func(*Poller)

// WithConfig overrides the timing parameters.
func WithConfig(cfg Config) Option {
	return func(p *Poller) { p.cfg = cfg.withDefaults() }
}

// WithClock injects a clock, used by tests to drive virtual time.
func WithClock(clock Clock) Option {
	return func(p *Poller) { p.clock = clock }
}

// WithLogger sets the logger for transition and recovery observations.
func WithLogger(logger *slog.Logger) Option {
	return func(p *Poller) { p.logger = logger }
}

// WithTransitionFunc registers a callback invoked on every status transition.
func WithTransitionFunc(fn func(Status)) Option {
	return func(p *Poller) { p.onTransition = fn }
}

// New creates a Poller over the given source and trigger.
func New(source SignalSource, trigger Trigger, opts ...Option) *Poller {
	p := &Poller{
		source:  source,
		trigger: trigger,
		cfg:     DefaultConfig(),
		clock:   SystemClock(),
		logger:  slog.Default(),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// session is the mutable per-call state. Created at poll start, discarded at
// the terminal outcome; the single-retry flag lives here and nowhere else.
type session struct {
	start            time.Time
	timeout          time.Duration
	retried          bool
	lastLoggedStatus string
}

// Poll runs the readiness loop until the index completes, the timeout (plus
// at most one bounded escalation wait) expires, or ctx is cancelled. It never
// returns an error: missing logs, missing markers, and malformed counts all
// degrade to not-ready, and a cancelled context terminates the session with
// Ready=false.
func (p *Poller) Poll(ctx context.Context, timeout time.Duration) PollOutcome {
	sess := &session{
		start:   p.clock.Now(),
		timeout: timeout,
	}

	for p.clock.Now().Sub(sess.start) < sess.timeout {
		if ctx.Err() != nil {
			return p.outcome(sess, false)
		}

		p.clock.Sleep(p.cfg.Interval)
		status := p.observe(sess)

		if status.IndexDone {
			p.logger.Info("index build complete", "files", status.UnitCount)
			return p.outcome(sess, true)
		}

		p.maybeRecoverStall(ctx, sess, status)
	}

	return p.escalate(ctx, sess)
}

// observe reads the signal, derives the status, and logs the transition when
// the rendered status differs from the last one logged. De-duplication only;
// correctness never depends on lastLoggedStatus.
func (p *Poller) observe(sess *session) Status {
	status := p.cfg.Markers.Derive(p.source.Read())

	if rendered := status.String(); rendered != sess.lastLoggedStatus {
		sess.lastLoggedStatus = rendered
		p.logger.Info("index status changed",
			"status", rendered,
			"elapsed", p.clock.Now().Sub(sess.start).Round(time.Second))
		if p.onTransition != nil {
			p.onTransition(status)
		}
	}

	return status
}

// maybeRecoverStall re-fires the trigger once per session when the worker
// pool came up but the indexing phase never started past the grace period.
// The likely cause is that the triggering action (opening a document)
// silently failed; firing it again is the only recovery available. This is a
// heuristic, not a guaranteed-correct recovery.
func (p *Poller) maybeRecoverStall(ctx context.Context, sess *session, status Status) {
	if sess.retried || !status.BackgroundReady || status.Indexing {
		return
	}
	if p.clock.Now().Sub(sess.start) <= p.cfg.GracePeriod {
		return
	}

	sess.retried = true
	p.logger.Warn("workers ready but indexing never started, re-firing trigger")
	if err := p.trigger.Fire(ctx); err != nil {
		// Best effort: a failed re-fire leaves us no worse off than before.
		p.logger.Warn("trigger re-fire failed", "error", err)
	}
}

// escalate performs the bounded one-shot extension after the main timeout.
func (p *Poller) escalate(ctx context.Context, sess *session) PollOutcome {
	status := p.cfg.Markers.Derive(p.source.Read())

	switch {
	case status.IndexDone:
		return p.outcome(sess, true)

	case status.Indexing:
		// Indexing is observably in progress; grant the longer extension
		// and accept whatever the log says afterwards.
		p.logger.Info("timeout reached while indexing, extending wait",
			"extension", p.cfg.IndexingExtension)
		p.sleepUnlessCancelled(ctx, p.cfg.IndexingExtension)
		final := p.cfg.Markers.Derive(p.source.Read())
		return p.outcome(sess, final.IndexDone)

	case status.BackgroundReady:
		// Workers are up but no indexing markers ever appeared. Indexing may
		// be happening without observable output; wait briefly and assume
		// readiness. This is a deliberate heuristic fallback, not a
		// confirmed signal.
		p.logger.Warn("timeout reached with workers ready, assuming unobserved indexing",
			"extension", p.cfg.OptimisticExtension)
		p.sleepUnlessCancelled(ctx, p.cfg.OptimisticExtension)
		return p.outcome(sess, true)

	default:
		p.logger.Warn("timeout reached before the engine made progress",
			"status", status.String())
		return p.outcome(sess, false)
	}
}

func (p *Poller) sleepUnlessCancelled(ctx context.Context, d time.Duration) {
	if ctx.Err() == nil {
		p.clock.Sleep(d)
	}
}

func (p *Poller) outcome(sess *session, ready bool) PollOutcome {
	return PollOutcome{
		Ready:   ready,
		Elapsed: p.clock.Now().Sub(sess.start),
	}
}
