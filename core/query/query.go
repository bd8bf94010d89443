package query

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/pkg/errors"

	"github.com/trezcool/collegium/core"
)

// State is the observable state of a Query.
type State[T any] struct {
	Data    *T
	Err     error
	Loading bool
}

type (
	// Observer is notified of every completed fetch. outcome is "ok", "error" or "cancelled".
	Observer interface {
		ObserveQuery(table, outcome string, took time.Duration)
	}

	Option func(*settings)

	settings struct {
		logger   core.Logger
		observer Observer
	}
)

func WithLogger(logger core.Logger) Option {
	return func(s *settings) { s.logger = logger }
}

func WithObserver(o Observer) Option {
	return func(s *settings) { s.observer = o }
}

// Query runs Options against a Source and keeps the last result. T is the decoded result:
// a slice of rows, or a single row when Options.Single is set.
//
// Every fetch gets a sequence number and its own context. Starting a fetch cancels the one in flight,
// and a fetch that is no longer the latest never updates the state.
//
// Listeners are called one at a time, in the order the state changed. Changes made while listeners
// run (from a listener or another goroutine) are delivered once the current delivery returns, and
// may be coalesced into the latest state.
type Query[T any] struct {
	src Source
	settings

	mu        sync.Mutex
	parent    context.Context
	opts      Options
	state     State[T]
	seq       uint64
	cancel    context.CancelFunc
	closed    bool
	listeners []func(State[T])

	version    uint64 // bumped on every state change
	delivered  uint64 // last version handed to the listeners
	delivering bool

	inflight sync.WaitGroup
}

// New returns a Query for opts. No fetch happens until Start.
func New[T any](src Source, opts Options, options ...Option) *Query[T] {
	q := &Query[T]{
		src:    src,
		parent: context.Background(),
		opts:   opts,
		// loading until the first fetch resolves, unless there will be none
		state: State[T]{Loading: opts.IsEnabled()},
	}
	for _, opt := range options {
		opt(&q.settings)
	}
	if q.logger == nil {
		q.logger = nopLogger{}
	}
	return q
}

// OnChange registers fn to be called with the new state after every state change.
func (q *Query[T]) OnChange(fn func(State[T])) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.listeners = append(q.listeners, fn)
}

// Start fetches in the background if the query is enabled.
// ctx is the parent of this fetch and of the fetches triggered by SetOptions.
func (q *Query[T]) Start(ctx context.Context) {
	q.mu.Lock()
	q.parent = ctx
	enabled := q.opts.IsEnabled()
	q.mu.Unlock()

	if enabled {
		q.fetchAsync()
	}
}

// State returns the current state.
func (q *Query[T]) State() State[T] {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.state
}

func (q *Query[T]) Options() Options {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.opts
}

// SetOptions replaces the options. If they changed, a new background fetch supersedes the one in flight.
// Disabling the query cancels the fetch in flight and clears the loading flag.
func (q *Query[T]) SetOptions(opts Options) {
	q.mu.Lock()
	if q.closed || q.opts.Equal(opts) {
		q.mu.Unlock()
		return
	}
	q.opts = opts
	if opts.IsEnabled() {
		q.mu.Unlock()
		q.fetchAsync()
		return
	}

	q.seq++ // anything in flight is now stale
	if q.cancel != nil {
		q.cancel()
		q.cancel = nil
	}
	q.state.Loading = false
	q.version++
	q.mu.Unlock()
	q.dispatch()
}

// Refetch runs the query again, even if disabled, and waits for the result.
// The state is updated as for any other fetch; the result is also returned to the caller.
func (q *Query[T]) Refetch(ctx context.Context) (*T, error) {
	fctx, seq, opts, ok := q.begin(ctx)
	if !ok {
		return nil, errors.New("query is closed")
	}
	defer q.inflight.Done()

	data, err := q.run(fctx, opts)
	q.finish(seq, data, err)
	return data, err
}

// Close cancels the fetch in flight. The state is no longer updated afterwards.
func (q *Query[T]) Close() {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.closed = true
	if q.cancel != nil {
		q.cancel()
		q.cancel = nil
	}
}

// Wait blocks until no fetch is in flight.
func (q *Query[T]) Wait() {
	q.inflight.Wait()
}

func (q *Query[T]) fetchAsync() {
	ctx, seq, opts, ok := q.begin(q.parent)
	if !ok {
		return
	}
	go func() {
		defer q.inflight.Done()
		data, err := q.run(ctx, opts)
		q.finish(seq, data, err)
	}()
}

// begin cancels the fetch in flight and registers a new one.
func (q *Query[T]) begin(parent context.Context) (context.Context, uint64, Options, bool) {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return nil, 0, Options{}, false
	}
	if q.cancel != nil {
		q.cancel()
	}
	ctx, cancel := context.WithCancel(parent)
	q.seq++
	q.cancel = cancel
	q.inflight.Add(1)

	q.state.Loading = true
	q.version++
	seq, opts := q.seq, q.opts
	q.mu.Unlock()

	q.dispatch()
	return ctx, seq, opts, true
}

// finish stores the result of fetch seq, unless a newer fetch started since.
func (q *Query[T]) finish(seq uint64, data *T, err error) {
	q.mu.Lock()
	if q.closed || seq != q.seq {
		q.mu.Unlock()
		return
	}
	q.cancel()
	q.cancel = nil
	if err != nil {
		// keep the last data, as the previous fetch left it
		q.state.Err = err
	} else {
		q.state.Data = data
		q.state.Err = nil
	}
	q.state.Loading = false
	q.version++
	q.mu.Unlock()

	q.dispatch()
}

// dispatch hands the state to the listeners until they have seen the latest version.
// A call made while another dispatch runs returns at once; the running one picks the change up.
func (q *Query[T]) dispatch() {
	q.mu.Lock()
	if q.delivering {
		q.mu.Unlock()
		return
	}
	q.delivering = true
	for q.delivered < q.version {
		q.delivered = q.version
		state, listeners := q.state, q.listeners
		q.mu.Unlock()
		notify(listeners, state)
		q.mu.Lock()
	}
	q.delivering = false
	q.mu.Unlock()
}

func (q *Query[T]) run(ctx context.Context, opts Options) (*T, error) {
	for _, f := range opts.Filters {
		if !f.Operator.Known() {
			q.logger.Debug(fmt.Sprintf("skipping filter on %q: unknown operator %q", f.Column, f.Operator))
		}
	}

	start := time.Now()
	b := Build(q.src, opts)
	var raw []byte
	var err error
	if opts.Single {
		raw, err = b.Single(ctx)
	} else {
		raw, err = b.Execute(ctx)
	}

	var data *T
	if err == nil {
		var v T
		if err = json.Unmarshal(raw, &v); err != nil {
			err = errors.Wrap(err, fmt.Sprintf("decoding %s rows", opts.Table))
		} else {
			data = &v
		}
	}

	outcome := "ok"
	switch {
	case err == nil:
	case ctx.Err() != nil:
		outcome = "cancelled"
	default:
		outcome = "error"
		q.logger.Error("Error fetching data", err, map[string]interface{}{"table": opts.Table})
	}
	if q.observer != nil {
		q.observer.ObserveQuery(opts.Table, outcome, time.Since(start))
	}
	return data, err
}

func notify[T any](listeners []func(State[T]), state State[T]) {
	for _, fn := range listeners {
		fn(state)
	}
}

type nopLogger struct{}

func (nopLogger) Debug(string, ...interface{}) {}
func (nopLogger) Info(string, ...interface{})  {}
func (nopLogger) Warn(string, ...interface{})  {}
func (nopLogger) Error(string, ...interface{}) {}
func (nopLogger) Fatal(string, ...interface{}) {}
