// Package runtime orchestrates the lifecycle of a stagekit application: it
// builds the backend and the initial state, runs the mailbox, dispatcher and
// render ticker as sibling goroutines, and tears everything down on the first
// stop cause (quit occurrence, OS signal, sibling failure, or context
// cancellation).
package runtime

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"sync/atomic"
	"syscall"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/stagekit/stagekit/app"
	"github.com/stagekit/stagekit/backend"
	"github.com/stagekit/stagekit/config"
	"github.com/stagekit/stagekit/core"
	"github.com/stagekit/stagekit/dispatch"
	"github.com/stagekit/stagekit/logging"
	"github.com/stagekit/stagekit/render"
)

// State represents the runtime lifecycle state
type State int32

const (
	// StateIdle means Run has not been called yet
	StateIdle State = iota

	// StateStarting means the backend and initial state are being built
	StateStarting

	// StateRunning means all sibling loops are live
	StateRunning

	// StateStopping means a stop cause fired and loops are draining
	StateStopping

	// StateStopped means Run has returned
	StateStopped
)

// String returns the string representation of the state
func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateStarting:
		return "starting"
	case StateRunning:
		return "running"
	case StateStopping:
		return "stopping"
	case StateStopped:
		return "stopped"
	default:
		return "unknown"
	}
}

// ErrRuntimeStarted is returned when Run is called more than once.
var ErrRuntimeStarted = errors.New("runtime already started")

// SetupFunc prepares the initial application state before the mailbox starts
// consuming. It typically registers custom event keys and inserts the first
// elements and listeners. The system event keys are registered before setup
// runs.
type SetupFunc func(ctx context.Context, a app.Application, logger zerolog.Logger) (app.Application, error)

// Options configures a Runtime.
type Options struct {
	// Config supplies runtime tunables. Nil falls back to the defaults.
	Config *config.Config

	// Logger is the root logger. Component loggers derive from it.
	Logger zerolog.Logger

	// Setup prepares the initial application state. Optional.
	Setup SetupFunc

	// Watcher, when set, is started with the runtime; every configuration
	// change posts a reload occurrence into the event stream.
	Watcher *config.Watcher

	// Signals lists the OS signals that raise the stop signal. Defaults to
	// SIGINT and SIGTERM.
	Signals []os.Signal
}

// Runtime owns one application's lifecycle.
type Runtime struct {
	cfg     *config.Config
	logger  zerolog.Logger
	setup   SetupFunc
	watcher *config.Watcher
	signals []os.Signal

	stop    *core.Signal
	mailbox *app.Mailbox
	state   int32
}

// New creates a runtime from the given options.
func New(opts Options) *Runtime {
	cfg := opts.Config
	if cfg == nil {
		cfg = config.DefaultConfig()
	}
	signals := opts.Signals
	if len(signals) == 0 {
		signals = []os.Signal{syscall.SIGINT, syscall.SIGTERM}
	}

	return &Runtime{
		cfg:     cfg,
		logger:  opts.Logger,
		setup:   opts.Setup,
		watcher: opts.Watcher,
		signals: signals,
		stop:    core.NewSignal(),
	}
}

// Run builds the application and blocks until it has fully stopped. A clean
// shutdown (quit occurrence, OS signal, or context cancellation) returns nil;
// a sibling failure returns its error after the remaining siblings have
// drained.
func (r *Runtime) Run(ctx context.Context) error {
	if !atomic.CompareAndSwapInt32(&r.state, int32(StateIdle), int32(StateStarting)) {
		return ErrRuntimeStarted
	}
	defer atomic.StoreInt32(&r.state, int32(StateStopped))

	r.logger.Info().
		Str("app", r.cfg.App.Name).
		Str("backend", r.cfg.Runtime.Backend).
		Int("frame_rate", r.cfg.Runtime.FrameRate).
		Msg("runtime starting")

	b, err := backend.New(backend.Kind(r.cfg.Runtime.Backend))
	if err != nil {
		return fmt.Errorf("failed to create backend: %w", err)
	}
	defer b.Close()

	initial := app.New(b, r.stop)
	initial, err = app.RegisterSystemEvents(initial)
	if err != nil {
		return fmt.Errorf("failed to register system events: %w", err)
	}
	if r.setup != nil {
		initial, err = r.setup(ctx, initial, r.logger)
		if err != nil {
			return fmt.Errorf("setup failed: %w", err)
		}
	}

	r.mailbox = core.NewMailbox[app.Application](core.Options{
		Name:   r.cfg.App.Name,
		Size:   r.cfg.Runtime.MailboxSize,
		Logger: logging.For(r.logger, "mailbox"),
	})

	dispatcher := dispatch.New(r.mailbox, b.Events(), dispatch.Options{
		PollInterval: r.cfg.Runtime.PollInterval(),
		Logger:       logging.For(r.logger, "dispatch"),
	})
	ticker := render.New(r.mailbox, r.cfg.Runtime.FrameRate, r.cfg.Runtime.Margin(),
		logging.For(r.logger, "render"))

	if r.watcher != nil {
		r.watcher.OnConfigChange(func(oldCfg, newCfg *config.Config) {
			if err := app.PostEvent(r.mailbox, app.KeyConfigReload, nil); err != nil {
				r.logger.Warn().Err(err).Msg("failed to post config reload")
			}
		})
		if err := r.watcher.Start(); err != nil {
			return fmt.Errorf("failed to start config watcher: %w", err)
		}
		defer r.watcher.Stop()
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, r.signals...)
	defer signal.Stop(sigCh)

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	g, gctx := errgroup.WithContext(runCtx)

	g.Go(func() error {
		return r.mailbox.Run(gctx, initial)
	})
	g.Go(func() error {
		return dispatcher.Run(gctx)
	})
	g.Go(func() error {
		return ticker.Run(gctx)
	})

	// Stop watcher: the first cause wins, then every sibling is cancelled.
	g.Go(func() error {
		select {
		case sig := <-sigCh:
			r.logger.Info().Str("signal", sig.String()).Msg("stop signal received")
			r.stop.Raise()
		case <-r.stop.Done():
			r.logger.Info().Msg("stop requested")
		case <-gctx.Done():
		}
		atomic.StoreInt32(&r.state, int32(StateStopping))
		cancel()
		return nil
	})

	atomic.StoreInt32(&r.state, int32(StateRunning))
	r.logger.Info().Msg("runtime running")

	err = g.Wait()
	if err != nil && !errors.Is(err, context.Canceled) {
		r.logger.Error().Err(err).Msg("runtime stopped with error")
		return err
	}

	r.logger.Info().Msg("runtime stopped")
	return nil
}

// Stop requests a shutdown. Safe to call from any goroutine, any number of
// times, including before Run.
func (r *Runtime) Stop() {
	r.stop.Raise()
}

// StopSignal returns the shared shutdown signal.
func (r *Runtime) StopSignal() *core.Signal {
	return r.stop
}

// Mailbox returns the application mailbox. Nil until Run has built it.
func (r *Runtime) Mailbox() *app.Mailbox {
	return r.mailbox
}

// State returns the current lifecycle state.
func (r *Runtime) State() State {
	return State(atomic.LoadInt32(&r.state))
}
