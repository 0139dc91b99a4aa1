package app

import (
	"context"
	"maps"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/stagekit/stagekit/backend"
)

// Target addresses a listener chain: either the whole application (wildcard)
// or one specific element. There is no third case.
type Target struct {
	elem bool
	id   uuid.UUID
}

// Wildcard returns the target meaning "the whole application".
func Wildcard() Target {
	return Target{}
}

// ElementTarget returns the target addressing one element by identity.
func ElementTarget(id uuid.UUID) Target {
	return Target{elem: true, id: id}
}

// IsWildcard reports whether the target is the wildcard.
func (t Target) IsWildcard() bool {
	return !t.elem
}

// ElementID returns the addressed element identity, if any.
func (t Target) ElementID() (uuid.UUID, bool) {
	return t.id, t.elem
}

// TargetView is the snapshot handed to a listener: the whole application,
// plus the addressed element when the listener was element-scoped.
type TargetView struct {
	App Application

	// Element is nil for wildcard listeners
	Element *Element
}

// ListenerFunc is the callback shape every listener must have. It runs as a
// detached task; its error is logged, never fatal. Results travel back only
// through requests the listener itself enqueues on the mailbox.
type ListenerFunc func(ctx context.Context, ev backend.Event, view TargetView, mb *Mailbox, logger zerolog.Logger) error

// Listener is one registered callback.
type Listener struct {
	EventType backend.EventType
	Fn        ListenerFunc
}

// Registry maps event type to target to the ordered listener chain for that
// pair. Insertion order within a chain is dispatch order. All methods are
// copy-on-write: the receiver is never mutated.
type Registry map[backend.EventType]map[Target][]Listener

// AddListener appends a callback to the chain for (eventType, target).
func (r Registry) AddListener(target Target, eventType backend.EventType, fn ListenerFunc) Registry {
	next := maps.Clone(r)
	if next == nil {
		next = Registry{}
	}

	chains := maps.Clone(next[eventType])
	if chains == nil {
		chains = map[Target][]Listener{}
	}

	chain := chains[target]
	grown := make([]Listener, len(chain), len(chain)+1)
	copy(grown, chain)
	chains[target] = append(grown, Listener{EventType: eventType, Fn: fn})

	next[eventType] = chains
	return next
}

// RemoveListenersFor drops the element's chains from every event type.
// Removing a never-registered element returns the registry unchanged.
func (r Registry) RemoveListenersFor(id uuid.UUID) Registry {
	target := ElementTarget(id)

	touched := false
	for _, chains := range r {
		if _, ok := chains[target]; ok {
			touched = true
			break
		}
	}
	if !touched {
		return r
	}

	next := maps.Clone(r)
	for eventType, chains := range next {
		if _, ok := chains[target]; !ok {
			continue
		}
		trimmed := maps.Clone(chains)
		delete(trimmed, target)
		next[eventType] = trimmed
	}
	return next
}

// ListenersFor returns the ordered chain for (eventType, target). The
// returned slice must be treated as read-only.
func (r Registry) ListenersFor(eventType backend.EventType, target Target) []Listener {
	return r[eventType][target]
}

// Targets returns every target with a chain for the event type, wildcard
// included.
func (r Registry) Targets(eventType backend.EventType) []Target {
	chains := r[eventType]
	if len(chains) == 0 {
		return nil
	}

	targets := make([]Target, 0, len(chains))
	for t := range chains {
		targets = append(targets, t)
	}
	return targets
}
