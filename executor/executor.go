// Package executor runs one logical network operation at a time with
// retry-with-backoff on transient failures, user cancellation, and an
// observable state that always reflects the live sequence.
//
//	exec := executor.New[generation.Response](fetch.NewJSONCaller[generation.Response](client))
//	defer exec.Close()
//
//	states, unsubscribe := exec.Subscribe()
//	defer unsubscribe()
//
//	result := exec.Execute(ctx, generation.Path,
//	    executor.WithMethod(http.MethodPost),
//	    executor.WithBody(req),
//	    executor.WithMaxRetries(3))
//
// Each Execute starts a new sequence and cancels the previous one, which
// never reaches Succeeded or Failed. Abort cancels the live sequence and
// stops its backoff timer. A sequence publishes state only while it is
// the live one, so late responses of aborted or superseded sequences are
// dropped.
package executor

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/amp-labs/restyle/channels"
	"github.com/amp-labs/restyle/fetch"
	"github.com/amp-labs/restyle/future"
	"github.com/amp-labs/restyle/logger"
	"github.com/amp-labs/restyle/optional"
	"github.com/amp-labs/restyle/retry"
	"go.uber.org/atomic"
)

const backoffFactor = 2.0

// Caller performs one attempt. It must honour ctx: when ctx ends the call
// should return promptly.
type Caller[T any] interface {
	Call(ctx context.Context, req fetch.Request) (T, error)
}

// CallerFunc adapts a function to Caller.
type CallerFunc[T any] func(ctx context.Context, req fetch.Request) (T, error)

func (f CallerFunc[T]) Call(ctx context.Context, req fetch.Request) (T, error) {
	return f(ctx, req)
}

// sequence is one Execute: its cancellable context and identity.
type sequence struct {
	id     uint64
	ctx    context.Context //nolint:containedctx
	cancel context.CancelCauseFunc
	start  time.Time
}

// Executor is safe for concurrent use. The zero value is not usable; call
// New.
type Executor[T any] struct {
	name     string
	caller   Caller[T]
	defaults []CallOption

	ids  atomic.Uint64
	subs *channels.Broadcaster[State[T]]

	mut    sync.Mutex
	state  State[T]
	live   *sequence
	closed bool

	stopLifecycle func() bool
}

// New creates an idle Executor around caller.
func New[T any](caller Caller[T], opts ...Option) *Executor[T] {
	cfg := &config{name: "default"}

	for _, opt := range opts {
		opt(cfg)
	}

	exec := &Executor[T]{
		name:     cfg.name,
		caller:   caller,
		defaults: cfg.defaults,
		subs:     channels.NewBroadcaster[State[T]](),
		state:    State[T]{Status: StatusIdle},
	}

	if cfg.lifecycle != nil {
		exec.stopLifecycle = context.AfterFunc(cfg.lifecycle, func() {
			_ = exec.Close()
		})
	}

	return exec
}

// Execute runs a sequence against target and blocks until it ends. The
// returned outcome matches the terminal status published for the
// sequence. A sequence that is aborted, superseded or whose ctx ends
// returns OutcomeAborted.
func (e *Executor[T]) Execute(ctx context.Context, target string, opts ...CallOption) Result[T] {
	cfg := newCallConfig(e.defaults, opts)

	seq, err := e.begin(ctx)
	if err != nil {
		return Result[T]{Outcome: OutcomeAborted, Err: err}
	}

	return e.run(seq, target, cfg)
}

// ExecuteAsync starts Execute on a new goroutine. The sequence is live by
// the time ExecuteAsync returns, so an Abort right after it always applies
// to this sequence.
func (e *Executor[T]) ExecuteAsync(ctx context.Context, target string, opts ...CallOption) *future.Future[Result[T]] {
	cfg := newCallConfig(e.defaults, opts)

	seq, err := e.begin(ctx)
	if err != nil {
		fut, promise := future.New[Result[T]]()
		promise.Success(Result[T]{Outcome: OutcomeAborted, Err: err})

		return fut
	}

	return future.Go(func() (Result[T], error) {
		return e.run(seq, target, cfg), nil
	})
}

// begin installs a new live sequence, cancelling any previous one, and
// publishes its first Loading state.
func (e *Executor[T]) begin(ctx context.Context) (*sequence, error) {
	e.mut.Lock()
	defer e.mut.Unlock()

	if e.closed {
		return nil, ErrClosed
	}

	if e.live != nil {
		e.live.cancel(ErrSuperseded)
		e.live = nil

		liveSequences.WithLabelValues(e.name).Dec()
	}

	seqCtx, cancel := context.WithCancelCause(ctx)

	seq := &sequence{
		id:     e.ids.Inc(),
		ctx:    seqCtx,
		cancel: cancel,
		start:  time.Now(),
	}

	e.live = seq

	liveSequences.WithLabelValues(e.name).Inc()

	e.setLocked(State[T]{Status: StatusLoading, Sequence: seq.id})

	return seq, nil
}

func (e *Executor[T]) run(seq *sequence, target string, cfg *callConfig) Result[T] {
	attempts := cfg.attempts()

	ctx, span := startSequenceSpan(seq.ctx, e.name, seq.id, target, attempts)
	ctx = logger.With(ctx, "executor", e.name, "sequence", seq.id)

	var (
		lastErr error
		data    T
		made    int
	)

	req, err := cfg.request(target)
	if err != nil {
		lastErr = retry.Abort(err)
	} else {
		data, err = retry.DoValue(ctx,
			func(ctx context.Context) (T, error) {
				made++

				out, err := e.caller.Call(ctx, req)
				lastErr = err

				e.countAttempt(seq, err)

				return out, err
			},
			retry.WithAttempts(retry.Attempts(attempts)), //nolint:gosec
			retry.WithBackoff(retry.ExpBackoff{
				Base:   cfg.delayBase,
				Max:    cfg.delayMax,
				Factor: backoffFactor,
			}),
			retry.WithJitter(cfg.jitter),
			retry.WithOnAttempt(func(_ context.Context, attempt uint) {
				recordAttempt(span, attempt)

				if attempt == 0 {
					return
				}

				e.publish(seq, State[T]{
					Status:     StatusLoading,
					RetryCount: int(attempt), //nolint:gosec
					Sequence:   seq.id,
				})
			}),
			retry.WithOnRetry(func(ctx context.Context, event retry.RetryEvent) {
				info := &ErrorInfo{
					Kind:     classify(seq, event.Err),
					Attempts: int(event.Attempt), //nolint:gosec
					Err:      event.Err,
				}
				info.Last = info.Kind

				logger.Get(ctx).Info("attempt failed, retrying",
					"attempt", event.Attempt,
					"max_attempts", attempts,
					"kind", info.Kind.String(),
					"delay", event.Delay,
					"error", event.Err)

				retryDelay.WithLabelValues(e.name).Observe(event.Delay.Seconds())
				recordRetry(span, info, event.Delay.Seconds())

				e.publish(seq, State[T]{
					Status:     StatusRetrying,
					Error:      info,
					RetryCount: int(event.Attempt), //nolint:gosec
					Sequence:   seq.id,
				})
			}),
		)
	}

	result, final := e.outcome(seq, data, err, lastErr, made)
	result = e.finish(seq, result, final)

	sequencesTotal.WithLabelValues(e.name, result.Outcome.String()).Inc()
	sequenceDuration.WithLabelValues(e.name, result.Outcome.String()).Observe(time.Since(seq.start).Seconds())
	endSequenceSpan(span, result.Outcome, result.Err)

	switch result.Outcome {
	case OutcomeSucceeded:
		logger.Get(ctx).Debug("request succeeded", "attempts", made)
	case OutcomeFailed:
		logger.Get(ctx).Warn("request failed", "attempts", made, "error", result.Err)
	case OutcomeAborted:
		logger.Get(ctx).Debug("request aborted", "cause", result.Err)
	}

	return result
}

// outcome turns the retry loop's return into a Result and the terminal
// State to publish for it.
func (e *Executor[T]) outcome(seq *sequence, data T, err, lastErr error, made int) (Result[T], State[T]) {
	if seq.ctx.Err() != nil {
		return e.aborted(seq, context.Cause(seq.ctx))
	}

	if err == nil {
		return Result[T]{Outcome: OutcomeSucceeded, Data: data}, State[T]{
			Data:     optional.Some(data),
			Status:   StatusSucceeded,
			Sequence: seq.id,
		}
	}

	info := &ErrorInfo{
		Kind:     KindExhaustedRetries,
		Attempts: made,
		Err:      err,
		Last:     classify(seq, err),
	}

	if retry.IsPermanent(lastErr) {
		info.Kind = KindPermanent
		info.Last = KindPermanent
	}

	return Result[T]{Outcome: OutcomeFailed, Err: info}, State[T]{
		Status:     StatusFailed,
		Error:      info,
		RetryCount: max(made-1, 0),
		Sequence:   seq.id,
	}
}

// classify is Classify for an attempt of seq. A cancellation error seen
// while seq is still live came from the caller rather than from Abort, so
// it counts as a transport failure.
func classify(seq *sequence, err error) ErrorKind {
	kind := Classify(err)
	if kind == KindCancelled && seq.ctx.Err() == nil {
		return KindTransientTransport
	}

	return kind
}

func (e *Executor[T]) aborted(seq *sequence, cause error) (Result[T], State[T]) {
	return Result[T]{Outcome: OutcomeAborted, Err: cause}, State[T]{
		Status:   StatusAborted,
		Sequence: seq.id,
	}
}

// finish publishes the terminal state if seq is still live. Abort, Close
// or a newer Execute may have taken over in the meantime; cancellation
// wins, so the result then becomes Aborted and nothing is published.
func (e *Executor[T]) finish(seq *sequence, result Result[T], final State[T]) Result[T] {
	e.mut.Lock()
	defer e.mut.Unlock()

	defer seq.cancel(nil)

	if e.live != seq {
		cause := context.Cause(seq.ctx)
		if cause == nil {
			cause = ErrAborted
		}

		return Result[T]{Outcome: OutcomeAborted, Err: cause}
	}

	if seq.ctx.Err() != nil && final.Status != StatusAborted {
		result, final = e.aborted(seq, context.Cause(seq.ctx))
	}

	final.RetryCount = retryCountFor(final, e.state)

	e.live = nil

	liveSequences.WithLabelValues(e.name).Dec()

	e.setLocked(final)

	return result
}

// retryCountFor keeps the retry count of an aborted sequence as it was last
// seen. Other terminal states carry their own.
func retryCountFor[T any](final, current State[T]) int {
	if final.Status == StatusAborted {
		return current.RetryCount
	}

	return final.RetryCount
}

// Abort cancels the live sequence and publishes Aborted before returning.
// The pending backoff timer, if any, is stopped and no further attempt is
// made. Abort is a no-op when nothing is in flight.
func (e *Executor[T]) Abort() {
	e.abort(ErrAborted)
}

func (e *Executor[T]) abort(cause error) {
	e.mut.Lock()
	defer e.mut.Unlock()

	e.abortLocked(cause)
}

func (e *Executor[T]) abortLocked(cause error) {
	seq := e.live
	if seq == nil {
		return
	}

	seq.cancel(cause)
	e.live = nil

	liveSequences.WithLabelValues(e.name).Dec()

	e.setLocked(State[T]{
		Status:     StatusAborted,
		RetryCount: e.state.RetryCount,
		Sequence:   seq.id,
	})
}

// Close aborts the live sequence and ends every subscription. Execute
// calls made afterwards return OutcomeAborted with ErrClosed. Close is
// idempotent and always returns nil.
func (e *Executor[T]) Close() error {
	e.mut.Lock()

	if e.closed {
		e.mut.Unlock()

		return nil
	}

	e.abortLocked(ErrClosed)
	e.closed = true
	e.mut.Unlock()

	if e.stopLifecycle != nil {
		e.stopLifecycle()
	}

	e.subs.Close()

	return nil
}

// State returns the current snapshot.
func (e *Executor[T]) State() State[T] {
	e.mut.Lock()
	defer e.mut.Unlock()

	return e.state
}

// Subscribe returns every snapshot published from now on, in order. The
// channel is unbounded, so a slow reader never holds up the executor. Call
// the returned function to stop receiving; the channel closes on Close.
func (e *Executor[T]) Subscribe() (<-chan State[T], func()) {
	return e.subs.Subscribe()
}

func (e *Executor[T]) publish(seq *sequence, state State[T]) {
	e.mut.Lock()
	defer e.mut.Unlock()

	if e.live != seq || seq.ctx.Err() != nil {
		return
	}

	e.setLocked(state)
}

func (e *Executor[T]) setLocked(state State[T]) {
	e.state = state
	e.subs.Publish(state)
}

func (e *Executor[T]) countAttempt(seq *sequence, err error) {
	result := "success"

	switch {
	case seq.ctx.Err() != nil:
		result = KindCancelled.String()
	case err != nil:
		result = classify(seq, err).String()
	}

	attemptsTotal.WithLabelValues(e.name, result).Inc()
}

// IsAborted reports whether err is one of the cancellation causes an
// executor produces.
func IsAborted(err error) bool {
	return errors.Is(err, ErrAborted) || errors.Is(err, ErrSuperseded) || errors.Is(err, ErrClosed)
}
