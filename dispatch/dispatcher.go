// Package dispatch translates raw backend occurrences into listener fan-out.
// The dispatcher drains the event source once per poll cycle, classifies each
// occurrence, and routes it to the matching listener chains through invoke
// requests on the mailbox. Listeners run as detached tasks; a dispatch step
// is complete once its tasks are scheduled, never waiting for them to finish.
package dispatch

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"github.com/stagekit/stagekit/app"
	"github.com/stagekit/stagekit/backend"
	"github.com/stagekit/stagekit/core"
)

// DefaultPollInterval is how often the event source is drained when no
// interval is configured.
const DefaultPollInterval = 10 * time.Millisecond

// Options configures a Dispatcher.
type Options struct {
	// PollInterval is the cadence of the drain loop
	PollInterval time.Duration

	// Logger receives listener failures and panics
	Logger zerolog.Logger
}

// Dispatcher owns the poll loop for one event source.
type Dispatcher struct {
	mailbox  *app.Mailbox
	source   backend.EventSource
	logger   zerolog.Logger
	interval time.Duration
}

// New creates a Dispatcher over the given mailbox and event source.
func New(mb *app.Mailbox, source backend.EventSource, opts Options) *Dispatcher {
	interval := opts.PollInterval
	if interval <= 0 {
		interval = DefaultPollInterval
	}

	return &Dispatcher{
		mailbox:  mb,
		source:   source,
		logger:   opts.Logger,
		interval: interval,
	}
}

// Run polls the event source until ctx is canceled. Cancellation is a clean
// exit. Listener tasks are tracked by the mailbox, so the mailbox's Run is
// the call that outlives them, not this one.
func (d *Dispatcher) Run(ctx context.Context) error {
	// Announce startup to interested listeners.
	if err := app.PostEvent(d.mailbox, app.KeyInit, nil); err != nil {
		if ctx.Err() != nil {
			return nil
		}
		return err
	}

	ticker := time.NewTicker(d.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if err := d.poll(ctx); err != nil {
				if ctx.Err() != nil {
					return nil
				}
				return err
			}
		}
	}
}

// poll drains one batch of occurrences, routes each, then posts a refresh
// occurrence and waits for its scheduling acknowledgment. The refresh
// barrier rate-limits registry bookkeeping to once per cycle.
func (d *Dispatcher) poll(ctx context.Context) error {
	for _, ev := range d.source.Drain() {
		ev := ev

		var err error
		switch {
		case ev.Type == backend.EventQuit:
			err = core.InvokeField(d.mailbox, app.StopLens, func(ctx context.Context, stop *core.Signal) error {
				stop.Raise()
				return nil
			})

		case ev.Type == backend.EventPointerDown:
			err = d.mailbox.Invoke(func(ctx context.Context, a app.Application) error {
				d.dispatchPointer(ctx, a, ev)
				return nil
			})

		case ev.Target != nil:
			target := app.ElementTarget(*ev.Target)
			err = d.mailbox.Invoke(func(ctx context.Context, a app.Application) error {
				d.dispatchToTarget(ctx, a, ev, &target)
				return nil
			})

		default:
			err = d.mailbox.Invoke(func(ctx context.Context, a app.Application) error {
				d.dispatchToTarget(ctx, a, ev, nil)
				return nil
			})
		}
		if err != nil {
			return err
		}
	}

	reply, err := core.InvokeSync(d.mailbox, func(ctx context.Context, a app.Application) (struct{}, error) {
		return struct{}{}, a.PostKey(app.KeyRefresh, nil)
	})
	if err != nil {
		return err
	}

	_, err = reply.Wait(ctx)
	return err
}

// dispatchPointer fans a pointer occurrence out to the wildcard chain and to
// every element whose bounds contain the pointer position.
func (d *Dispatcher) dispatchPointer(ctx context.Context, a app.Application, ev backend.Event) {
	d.fanOut(ctx, a, ev, app.Wildcard())

	for _, target := range a.Listeners.Targets(ev.Type) {
		id, ok := target.ElementID()
		if !ok {
			continue
		}
		elem, ok := a.Elements.Get(id)
		if !ok {
			continue
		}
		if elem.HitTest(ev.Pos) {
			d.fanOut(ctx, a, ev, target)
		}
	}
}

// dispatchToTarget routes a custom or system occurrence. An explicit target
// addresses only that chain; without one, every chain registered for the
// type fires, wildcard included.
func (d *Dispatcher) dispatchToTarget(ctx context.Context, a app.Application, ev backend.Event, target *app.Target) {
	if target != nil {
		d.fanOut(ctx, a, ev, *target)
		return
	}

	for _, t := range a.Listeners.Targets(ev.Type) {
		d.fanOut(ctx, a, ev, t)
	}
}

// fanOut schedules every listener in the (event type, target) chain as a
// detached task. Failures and panics stay local to the listener. Tasks spawn
// through the mailbox's tracked set: fanOut always runs inside an invoke
// operation, so the mailbox cannot finish shutting down while a listener it
// scheduled is still live.
func (d *Dispatcher) fanOut(ctx context.Context, a app.Application, ev backend.Event, target app.Target) {
	view := app.TargetView{App: a}
	if id, ok := target.ElementID(); ok {
		elem, found := a.Elements.Get(id)
		if !found {
			// Stale chain for a removed element.
			return
		}
		view.Element = &elem
	}

	for _, l := range a.Listeners.ListenersFor(ev.Type, target) {
		l := l
		d.mailbox.Go(func() {
			defer func() {
				if r := recover(); r != nil {
					d.logger.Error().
						Interface("panic", r).
						Int32("event_type", int32(ev.Type)).
						Msg("listener panicked")
				}
			}()

			if err := l.Fn(ctx, ev, view, d.mailbox, d.logger); err != nil {
				d.logger.Error().
					Err(err).
					Int32("event_type", int32(ev.Type)).
					Msg("listener failed")
			}
		})
	}
}
