package script

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/charmbracelet/log"
	"github.com/dustin/go-humanize"
	"github.com/muesli/reflow/truncate"
	"github.com/orderdesk/ttlcache/internal/cache"
	"github.com/sahilm/fuzzy"
	"golang.org/x/time/rate"
)

// ErrExpectationFailed is returned by Run when at least one expect op failed.
var ErrExpectationFailed = errors.New("expectation failed")

const maxValueWidth = 48

// Runner executes script ops against a fresh store whose clock only moves on
// advance. Periodic sweeps are replayed synchronously at each interval
// boundary the clock crosses, so output is deterministic.
type Runner struct {
	store   *cache.Store[string]
	sweeper *cache.Sweeper
	clock   *clock.Mock
	start   time.Time

	nextSweep time.Time

	out     io.Writer
	limiter *rate.Limiter
	logger  *log.Logger
}

// RunnerOption configures a Runner.
type RunnerOption func(*Runner)

// WithPace limits execution to opsPerSecond. Zero or less disables pacing.
func WithPace(opsPerSecond float64) RunnerOption {
	return func(r *Runner) {
		if opsPerSecond > 0 {
			r.limiter = rate.NewLimiter(rate.Limit(opsPerSecond), 1)
		}
	}
}

// WithLogger sets the runner's logger.
func WithLogger(l *log.Logger) RunnerOption {
	return func(r *Runner) {
		if l != nil {
			r.logger = l
		}
	}
}

// Result summarizes a run.
type Result struct {
	Ops      int
	Errors   int      // ops the store rejected
	Failures []string // failed expect ops, formatted for display
}

// NewRunner creates a runner that writes one line per op to out.
func NewRunner(cfg *cache.Config, out io.Writer, opts ...RunnerOption) (*Runner, error) {
	if cfg == nil {
		cfg = cache.DefaultConfig()
	}

	r := &Runner{
		clock:  clock.NewMock(),
		out:    out,
		logger: log.Default(),
	}
	for _, opt := range opts {
		opt(r)
	}

	store, err := cache.New[string](cfg, cache.WithClock(r.clock), cache.WithLogger(r.logger))
	if err != nil {
		return nil, fmt.Errorf("unable to create store: %w", err)
	}
	r.store = store
	r.start = r.clock.Now()

	if cfg.CleanupInterval > 0 {
		r.sweeper = cache.NewSweeper(store, cfg.CleanupInterval, cache.WithClock(r.clock), cache.WithLogger(r.logger))
		r.nextSweep = r.start.Add(cfg.CleanupInterval)
	}

	return r, nil
}

// Store exposes the underlying store.
func (r *Runner) Store() *cache.Store[string] {
	return r.store
}

// Elapsed returns how far the simulated clock has moved.
func (r *Runner) Elapsed() time.Duration {
	return r.clock.Now().Sub(r.start)
}

// Run executes ops in order. It stops early only if ctx is cancelled or the
// output cannot be written.
func (r *Runner) Run(ctx context.Context, ops []Op) (*Result, error) {
	res := &Result{}

	for _, op := range ops {
		if r.limiter != nil {
			if err := r.limiter.Wait(ctx); err != nil {
				return res, err
			}
		}
		if err := ctx.Err(); err != nil {
			return res, err
		}

		line, err := r.apply(op, res)
		res.Ops++
		if _, werr := fmt.Fprintln(r.out, line); werr != nil {
			return res, fmt.Errorf("unable to write output: %w", werr)
		}
		if err != nil {
			res.Errors++
			r.logger.Debug("Script op rejected", "line", op.Line, "op", op.Kind, "err", err)
		}
	}

	if len(res.Failures) > 0 {
		return res, fmt.Errorf("%w: %d of %d", ErrExpectationFailed, len(res.Failures), res.Ops)
	}
	return res, nil
}

func (r *Runner) apply(op Op, res *Result) (string, error) {
	switch op.Kind {
	case OpSet:
		if !op.HasTTL {
			r.store.Set(op.Key, op.Value)
			return fmt.Sprintf("set %s = %s", op.Key, quote(op.Value)), nil
		}
		if err := r.store.SetWithTTL(op.Key, op.Value, op.TTL); err != nil {
			return fmt.Sprintf("set %s -> error: %v", op.Key, err), err
		}
		return fmt.Sprintf("set %s = %s ttl=%s", op.Key, quote(op.Value), op.TTL), nil

	case OpGet:
		v, ok := r.store.Get(op.Key)
		if !ok {
			return fmt.Sprintf("get %s -> %s", op.Key, AbsentValue), nil
		}
		return fmt.Sprintf("get %s -> %s", op.Key, quote(v)), nil

	case OpDelete:
		if r.store.Delete(op.Key) {
			return fmt.Sprintf("del %s -> deleted", op.Key), nil
		}
		return fmt.Sprintf("del %s -> not found", op.Key), nil

	case OpClear:
		r.store.Clear()
		return "clear -> ok", nil

	case OpCleanup:
		return fmt.Sprintf("cleanup -> removed %d", r.store.Cleanup()), nil

	case OpAdvance:
		swept := r.advance(op.Duration)
		return fmt.Sprintf("advance %s -> t=+%s (swept %d)", op.Duration, r.Elapsed(), swept), nil

	case OpStats:
		return "stats -> " + formatStats(r.store.Stats()), nil

	case OpKeys:
		return "keys -> " + r.keys(op.Pattern), nil

	case OpExpect:
		v, ok := r.store.Get(op.Key)
		got := AbsentValue
		if ok {
			got = v
		}
		if got == op.Value {
			return fmt.Sprintf("expect %s = %s -> ok", op.Key, quote(op.Value)), nil
		}
		failure := fmt.Sprintf("line %d: expect %s = %s, got %s", op.Line, op.Key, quote(op.Value), quote(got))
		res.Failures = append(res.Failures, failure)
		return fmt.Sprintf("expect %s = %s -> FAIL (got %s)", op.Key, quote(op.Value), quote(got)), nil
	}

	return "", fmt.Errorf("unhandled op %s", op.Kind)
}

// advance moves the clock by d. Nothing is written while the clock moves,
// so sweeping once at the last interval boundary crossed removes the same
// entries as sweeping at every boundary. It returns the number swept.
func (r *Runner) advance(d time.Duration) int {
	target := r.clock.Now().Add(d)
	swept := 0

	if r.sweeper != nil && !r.nextSweep.After(target) {
		interval := r.sweeper.Interval()
		last := r.nextSweep.Add(target.Sub(r.nextSweep) / interval * interval)

		r.clock.Add(last.Sub(r.clock.Now()))
		swept = r.sweeper.RunOnce()
		r.nextSweep = last.Add(interval)
	}

	r.clock.Add(target.Sub(r.clock.Now()))
	return swept
}

func (r *Runner) keys(pattern string) string {
	now := r.clock.Now()
	var metas []cache.EntryMeta
	for _, m := range r.store.Snapshot() {
		if !m.Expired {
			metas = append(metas, m)
		}
	}

	if pattern != "" {
		names := make([]string, len(metas))
		for i, m := range metas {
			names[i] = m.Key
		}
		matches := fuzzy.Find(pattern, names)
		filtered := make([]cache.EntryMeta, 0, len(matches))
		for _, match := range matches {
			filtered = append(filtered, metas[match.Index])
		}
		metas = filtered
	}

	if len(metas) == 0 {
		return "[none]"
	}

	parts := make([]string, 0, len(metas))
	for _, m := range metas {
		parts = append(parts, fmt.Sprintf("%s (set %s)", m.Key, humanize.RelTime(m.InsertedAt, now, "ago", "from now")))
	}
	return strings.Join(parts, ", ")
}

func formatStats(s cache.Stats) string {
	return fmt.Sprintf("size=%d/%d hits=%s misses=%s evictions=%s expirations=%s hit_rate=%s%%",
		s.Size, s.MaxSize,
		humanize.Comma(s.Hits),
		humanize.Comma(s.Misses),
		humanize.Comma(s.Evictions),
		humanize.Comma(s.Expirations),
		humanize.FtoaWithDigits(s.HitRate*100, 1),
	)
}

func quote(v string) string {
	if v == AbsentValue {
		return v
	}
	return fmt.Sprintf("%q", truncate.StringWithTail(v, maxValueWidth, "…"))
}
