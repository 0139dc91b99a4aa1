package app

import (
	"fmt"
	"image"
	"maps"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/stagekit/stagekit/backend"
	"github.com/stagekit/stagekit/core"
)

// Mailbox is the request queue carrying Application state.
type Mailbox = core.Mailbox[Application]

// EventKey names an application-level event kind. Keys are translated to
// opaque backend tags through RegisterEvent.
type EventKey string

// System event keys, registered once at startup by RegisterSystemEvents.
const (
	KeyInit         EventKey = "init"
	KeyExit         EventKey = "exit"
	KeyRefresh      EventKey = "refresh"
	KeyFrameNext    EventKey = "frame_next"
	KeyConfigReload EventKey = "config_reload"
)

var systemKeys = []EventKey{KeyInit, KeyExit, KeyRefresh, KeyFrameNext, KeyConfigReload}

// EventTypes is the key-to-tag table held in the application state.
type EventTypes map[EventKey]backend.EventType

// Application is the single shared state value owned by the mailbox consume
// loop. Every consumer gets it as an immutable snapshot; all mutation flows
// through MutateRequests that build a new value.
type Application struct {
	// Surface, Clock and Source are the presentation backend collaborators
	Surface backend.Surface
	Clock   backend.Clock
	Source  backend.EventSource

	// Stop is the shared shutdown signal
	Stop *core.Signal

	// Start is the moment the application state was created
	Start time.Time

	// EventTypes maps event keys to backend tags
	EventTypes EventTypes

	// Listeners is the event registry
	Listeners Registry

	// Elements is the addressable element collection
	Elements Elements

	// Data carries free-form application payload
	Data map[string]any

	// Redraw accumulates regions needing a flush on the next render tick
	Redraw *RedrawQueue
}

// New creates the initial application state over a backend.
func New(b backend.Backend, stop *core.Signal) Application {
	return Application{
		Surface:    b.Surface(),
		Clock:      b.Clock(),
		Source:     b.Events(),
		Stop:       stop,
		Start:      time.Now(),
		EventTypes: EventTypes{},
		Listeners:  Registry{},
		Elements:   Elements{},
		Data:       map[string]any{},
		Redraw:     NewRedrawQueue(),
	}
}

// RegisterEvent allocates a backend tag for key. Registration is idempotent
// per key within one table chain: an already-registered key returns the table
// unchanged.
func RegisterEvent(types EventTypes, source backend.EventSource, key EventKey) (EventTypes, error) {
	if _, ok := types[key]; ok {
		return types, nil
	}

	tag, err := source.NewEventType()
	if err != nil {
		return nil, fmt.Errorf("failed to register event %q: %w", key, err)
	}

	next := maps.Clone(types)
	if next == nil {
		next = EventTypes{}
	}
	next[key] = tag
	return next, nil
}

// RegisterSystemEvents registers every system event key. Applications call
// it from their setup hook before anything posts system occurrences.
func RegisterSystemEvents(a Application) (Application, error) {
	types := a.EventTypes
	for _, key := range systemKeys {
		next, err := RegisterEvent(types, a.Source, key)
		if err != nil {
			return a, err
		}
		types = next
	}
	a.EventTypes = types
	return a, nil
}

// KeyFor resolves the event key registered for a backend tag.
func (a Application) KeyFor(tag backend.EventType) (EventKey, bool) {
	for key, t := range a.EventTypes {
		if t == tag {
			return key, true
		}
	}
	return "", false
}

// PostKey posts an occurrence for a registered event key, optionally
// addressed to one element.
func (a Application) PostKey(key EventKey, target *uuid.UUID) error {
	tag, ok := a.EventTypes[key]
	if !ok {
		return fmt.Errorf("event key %q is not registered", key)
	}
	return a.Source.Post(backend.Event{Type: tag, Target: target})
}

// Lenses for the fields mutate requests may target in isolation. Setters
// copy the state value, so every mutation yields a fresh Application.
var (
	EventTypesLens = core.Lens[Application, EventTypes]{
		Get: func(a Application) EventTypes { return a.EventTypes },
		Set: func(a Application, v EventTypes) Application { a.EventTypes = v; return a },
	}

	ListenersLens = core.Lens[Application, Registry]{
		Get: func(a Application) Registry { return a.Listeners },
		Set: func(a Application, v Registry) Application { a.Listeners = v; return a },
	}

	ElementsLens = core.Lens[Application, Elements]{
		Get: func(a Application) Elements { return a.Elements },
		Set: func(a Application, v Elements) Application { a.Elements = v; return a },
	}

	DataLens = core.Lens[Application, map[string]any]{
		Get: func(a Application) map[string]any { return a.Data },
		Set: func(a Application, v map[string]any) Application { a.Data = v; return a },
	}

	RedrawLens = core.Lens[Application, *RedrawQueue]{
		Get: func(a Application) *RedrawQueue { return a.Redraw },
		Set: func(a Application, v *RedrawQueue) Application { a.Redraw = v; return a },
	}

	StopLens = core.Lens[Application, *core.Signal]{
		Get: func(a Application) *core.Signal { return a.Stop },
		Set: func(a Application, v *core.Signal) Application { a.Stop = v; return a },
	}
)

// RedrawQueue accumulates dirty regions between render ticks. Unlike the
// rest of the state it is a shared handle, not a copied value: listeners
// push from their own goroutines, so access is locked.
type RedrawQueue struct {
	mu      sync.Mutex
	regions []image.Rectangle
}

// NewRedrawQueue creates an empty redraw queue.
func NewRedrawQueue() *RedrawQueue {
	return &RedrawQueue{}
}

// Push queues one region for the next flush.
func (q *RedrawQueue) Push(r image.Rectangle) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.regions = append(q.regions, r)
}

// Drain returns everything queued since the last drain and empties the
// queue.
func (q *RedrawQueue) Drain() []image.Rectangle {
	q.mu.Lock()
	defer q.mu.Unlock()

	out := q.regions
	q.regions = nil
	return out
}

// Len reports the number of queued regions.
func (q *RedrawQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.regions)
}
