package app

import (
	"context"
	"fmt"
	"maps"

	"github.com/google/uuid"

	"github.com/stagekit/stagekit/backend"
	"github.com/stagekit/stagekit/core"
)

// Verb-first producer facade. Each of these enqueues the corresponding
// request on the mailbox and returns as soon as it is queued; the mutation
// itself happens when the consume loop reaches the request.

// Binding pairs an event type with its callback, for batch registration.
type Binding struct {
	EventType backend.EventType
	Fn        ListenerFunc
}

// AddEventListener registers fn for eventType against target. A nil target
// means the wildcard: the listener fires for the whole application rather
// than any specific element.
func AddEventListener(mb *Mailbox, target *Element, eventType backend.EventType, fn ListenerFunc) error {
	key := Wildcard()
	if target != nil {
		key = ElementTarget(target.ID)
	}

	return core.MutateField(mb, ListenersLens, func(ctx context.Context, r Registry) (Registry, error) {
		return r.AddListener(key, eventType, fn), nil
	})
}

// AddEventListeners registers several bindings against one target in a
// single mutate request, preserving binding order.
func AddEventListeners(mb *Mailbox, target *Element, bindings ...Binding) error {
	key := Wildcard()
	if target != nil {
		key = ElementTarget(target.ID)
	}

	return core.MutateField(mb, ListenersLens, func(ctx context.Context, r Registry) (Registry, error) {
		for _, b := range bindings {
			r = r.AddListener(key, b.EventType, b.Fn)
		}
		return r, nil
	})
}

// AddElement inserts a new element into the collection.
func AddElement(mb *Mailbox, e Element) error {
	return core.MutateField(mb, ElementsLens, func(ctx context.Context, m Elements) (Elements, error) {
		return m.Insert(e)
	})
}

// UpdateElement replaces the stored value for an existing element identity.
func UpdateElement(mb *Mailbox, e Element) error {
	return core.MutateField(mb, ElementsLens, func(ctx context.Context, m Elements) (Elements, error) {
		return m.Update(e)
	})
}

// RemoveElement drops the element and every listener registered against it.
// Two requests, applied in FIFO order.
func RemoveElement(mb *Mailbox, e Element) error {
	err := core.MutateField(mb, ElementsLens, func(ctx context.Context, m Elements) (Elements, error) {
		return m.Remove(e), nil
	})
	if err != nil {
		return err
	}

	return core.MutateField(mb, ListenersLens, func(ctx context.Context, r Registry) (Registry, error) {
		return r.RemoveListenersFor(e.ID), nil
	})
}

// QueueRedraw marks the element's bounds dirty for the next render tick.
// Elements without bounds queue nothing.
func QueueRedraw(mb *Mailbox, e Element) error {
	return core.InvokeField(mb, RedrawLens, func(ctx context.Context, q *RedrawQueue) error {
		if e.Bounds != nil {
			q.Push(*e.Bounds)
		}
		return nil
	})
}

// SetData stores one entry in the free-form data map.
func SetData(mb *Mailbox, key string, value any) error {
	return core.MutateField(mb, DataLens, func(ctx context.Context, m map[string]any) (map[string]any, error) {
		next := maps.Clone(m)
		if next == nil {
			next = map[string]any{}
		}
		next[key] = value
		return next, nil
	})
}

// GetData reads one entry from the free-form data map.
func GetData(ctx context.Context, mb *Mailbox, key string) (any, bool, error) {
	type entry struct {
		value any
		ok    bool
	}

	reply, err := core.InvokeFieldSync(mb, DataLens, func(ctx context.Context, m map[string]any) (entry, error) {
		v, ok := m[key]
		return entry{value: v, ok: ok}, nil
	})
	if err != nil {
		return nil, false, err
	}

	e, err := reply.Wait(ctx)
	if err != nil {
		return nil, false, err
	}
	return e.value, e.ok, nil
}

// EventTypeFor resolves the backend tag registered for key.
func EventTypeFor(ctx context.Context, mb *Mailbox, key EventKey) (backend.EventType, error) {
	reply, err := core.InvokeFieldSync(mb, EventTypesLens, func(ctx context.Context, types EventTypes) (backend.EventType, error) {
		tag, ok := types[key]
		if !ok {
			return backend.EventNone, fmt.Errorf("event key %q is not registered", key)
		}
		return tag, nil
	})
	if err != nil {
		return backend.EventNone, err
	}
	return reply.Wait(ctx)
}

// RegisterEventKey allocates a backend tag for key in the state's event
// table. Idempotent per key.
func RegisterEventKey(mb *Mailbox, key EventKey) error {
	return mb.Mutate(func(ctx context.Context, a Application) (Application, error) {
		types, err := RegisterEvent(a.EventTypes, a.Source, key)
		if err != nil {
			return a, err
		}
		a.EventTypes = types
		return a, nil
	})
}

// PostEvent posts an occurrence for a registered key, optionally targeted.
func PostEvent(mb *Mailbox, key EventKey, target *uuid.UUID) error {
	return mb.Invoke(func(ctx context.Context, a Application) error {
		return a.PostKey(key, target)
	})
}
