package core

import (
	"context"
	"fmt"
	"reflect"
	"sync"
	"sync/atomic"

	"github.com/rs/zerolog"
)

// MailboxState represents the current state of a Mailbox consume loop.
type MailboxState int32

const (
	// MailboxIdle means Run has not been called yet
	MailboxIdle MailboxState = iota

	// MailboxRunning means the consume loop is folding requests
	MailboxRunning

	// MailboxStopping means the loop has exited and is waiting for
	// detached invoke tasks to unwind
	MailboxStopping

	// MailboxStopped means the mailbox has fully shut down
	MailboxStopped
)

// String returns the string representation of MailboxState.
func (s MailboxState) String() string {
	switch s {
	case MailboxIdle:
		return "idle"
	case MailboxRunning:
		return "running"
	case MailboxStopping:
		return "stopping"
	case MailboxStopped:
		return "stopped"
	default:
		return "unknown"
	}
}

// Options contains configuration options for creating a Mailbox.
type Options struct {
	// Name is a human-readable name used in errors and log entries
	Name string

	// Size sets the capacity of the request queue
	Size int

	// Logger receives failures of fire-and-forget invoke operations
	Logger zerolog.Logger
}

// DefaultOptions returns sensible default options.
func DefaultOptions() Options {
	return Options{
		Name:   "mailbox",
		Size:   256,
		Logger: zerolog.Nop(),
	}
}

// Stats contains runtime statistics for a Mailbox.
type Stats struct {
	// Name of the mailbox
	Name string

	// Current consume-loop state
	State MailboxState

	// Total requests folded
	Processed uint64

	// Requests currently queued
	Pending int
}

// request is one unit of work dequeued by the consume loop.
type request[S any] interface {
	process(ctx context.Context, m *Mailbox[S], state S) (S, error)
}

// mutateRequest replaces the state with the operation's result.
type mutateRequest[S any] struct {
	apply func(ctx context.Context, state S) (S, error)
}

func (r mutateRequest[S]) process(ctx context.Context, _ *Mailbox[S], state S) (S, error) {
	next, err := r.apply(ctx, state)
	if err != nil {
		return state, fmt.Errorf("mutate operation failed: %w", err)
	}
	if isNil(next) {
		return state, ErrNilState
	}
	return next, nil
}

// invokeRequest runs the operation against a snapshot in a detached
// goroutine. The state flows through unchanged.
type invokeRequest[S any] struct {
	run func(ctx context.Context, snapshot S)
}

func (r invokeRequest[S]) process(ctx context.Context, m *Mailbox[S], state S) (S, error) {
	m.invokes.Add(1)
	go func() {
		defer m.invokes.Done()
		r.run(ctx, state)
	}()
	return state, nil
}

// Mailbox owns one state value of type S and serializes every mutation of it.
// Enqueue operations are non-blocking and safe for any number of concurrent
// producers; exactly one Run loop consumes.
type Mailbox[S any] struct {
	opts  Options
	queue chan request[S]

	state     int32 // MailboxState
	processed uint64

	// Detached invoke tasks still in flight
	invokes sync.WaitGroup
}

// NewMailbox creates a new Mailbox instance.
func NewMailbox[S any](opts Options) *Mailbox[S] {
	def := DefaultOptions()
	if opts.Name == "" {
		opts.Name = def.Name
	}
	if opts.Size <= 0 {
		opts.Size = def.Size
	}

	return &Mailbox[S]{
		opts:  opts,
		queue: make(chan request[S], opts.Size),
	}
}

// Run folds requests over the state, seeded by initial, until ctx is
// canceled. Only one Run per mailbox is permitted. Cancellation is a clean
// exit: the undrained remainder of the queue is discarded without error.
// A failed mutate operation or a nil replacement state aborts the fold and
// is returned to the caller.
func (m *Mailbox[S]) Run(ctx context.Context, initial S) error {
	if !atomic.CompareAndSwapInt32(&m.state, int32(MailboxIdle), int32(MailboxRunning)) {
		return fmt.Errorf("mailbox %s: %w", m.opts.Name, ErrAlreadyRunning)
	}

	// Detached invoke tasks get their own context so every exit path can
	// cancel and then wait them out.
	ictx, cancel := context.WithCancel(ctx)
	defer func() {
		atomic.StoreInt32(&m.state, int32(MailboxStopping))
		cancel()
		m.invokes.Wait()
		atomic.StoreInt32(&m.state, int32(MailboxStopped))
	}()

	state := initial
	for {
		// Cancellation wins over queued work: once ctx is done, the
		// remainder of the queue is discarded, never folded.
		select {
		case <-ctx.Done():
			return nil
		default:
		}

		select {
		case <-ctx.Done():
			return nil
		case req := <-m.queue:
			next, err := req.process(ictx, m, state)
			if err != nil {
				return fmt.Errorf("mailbox %s: %w", m.opts.Name, err)
			}
			state = next
			atomic.AddUint64(&m.processed, 1)
		}
	}
}

// enqueue pushes a request without blocking.
func (m *Mailbox[S]) enqueue(req request[S]) error {
	switch MailboxState(atomic.LoadInt32(&m.state)) {
	case MailboxStopping, MailboxStopped:
		return fmt.Errorf("mailbox %s: %w", m.opts.Name, ErrMailboxClosed)
	}

	select {
	case m.queue <- req:
		return nil
	default:
		return fmt.Errorf("mailbox %s: %w", m.opts.Name, ErrMailboxFull)
	}
}

// Mutate schedules op to replace the whole state. The caller observes no
// result; a failure of op is fatal to the consume loop.
func (m *Mailbox[S]) Mutate(op func(ctx context.Context, state S) (S, error)) error {
	return m.enqueue(mutateRequest[S]{apply: op})
}

// Invoke schedules op to run against a read-only snapshot, fire-and-forget.
// A failure of op is isolated to its own task and logged.
func (m *Mailbox[S]) Invoke(op func(ctx context.Context, snapshot S) error) error {
	return m.enqueue(invokeRequest[S]{run: func(ctx context.Context, snapshot S) {
		if err := op(ctx, snapshot); err != nil {
			m.opts.Logger.Error().
				Err(err).
				Str("mailbox", m.opts.Name).
				Msg("invoke operation failed")
		}
	}})
}

// Go runs fn as a detached task tracked by this mailbox: Run does not return
// until fn has. It must be called from inside an invoke operation (or another
// tracked task), where the tracked count is known to be nonzero; calling it
// after Run has begun its shutdown wait is a race.
func (m *Mailbox[S]) Go(fn func()) {
	m.invokes.Add(1)
	go func() {
		defer m.invokes.Done()
		fn()
	}()
}

// InvokeSync schedules op against a read-only snapshot and returns a wait
// handle. The handle resolves exactly once, with op's result or its error,
// after the consume loop has scheduled the invocation.
func InvokeSync[S, R any](m *Mailbox[S], op func(ctx context.Context, snapshot S) (R, error)) (*Reply[R], error) {
	reply := newReply[R]()

	err := m.enqueue(invokeRequest[S]{run: func(ctx context.Context, snapshot S) {
		reply.resolve(op(ctx, snapshot))
	}})
	if err != nil {
		return nil, err
	}

	return reply, nil
}

// State returns the current consume-loop state.
func (m *Mailbox[S]) State() MailboxState {
	return MailboxState(atomic.LoadInt32(&m.state))
}

// Stats returns current runtime statistics for this Mailbox.
func (m *Mailbox[S]) Stats() Stats {
	return Stats{
		Name:      m.opts.Name,
		State:     m.State(),
		Processed: atomic.LoadUint64(&m.processed),
		Pending:   len(m.queue),
	}
}

// isNil reports whether v boxes a nil value of a nilable kind.
func isNil(v any) bool {
	if v == nil {
		return true
	}

	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Ptr, reflect.Map, reflect.Slice, reflect.Chan, reflect.Func, reflect.Interface:
		return rv.IsNil()
	default:
		return false
	}
}
