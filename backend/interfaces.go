// Package backend defines the collaboration contract between the runtime and
// a presentation backend. The runtime never draws anything itself: it hands
// the backend batches of redraw regions, asks it for clock ticks, and drains
// the occurrences the backend (or the application, through Post) has queued.
package backend

import (
	"image"

	"github.com/google/uuid"
)

// EventType is an opaque tag identifying one kind of occurrence.
type EventType int32

// Reserved event types. Backends deliver these for their corresponding raw
// occurrences; everything at FirstUserEvent and above is allocated through
// EventSource.NewEventType.
const (
	// EventNone is the zero tag and never matches a registered listener
	EventNone EventType = iota

	// EventQuit asks the runtime to shut down
	EventQuit

	// EventPointerDown is a pointer-button press carrying a position
	EventPointerDown
)

// FirstUserEvent is the lowest tag NewEventType may hand out.
const FirstUserEvent EventType = 0x8000

// Event is one occurrence drained from an EventSource.
type Event struct {
	// Type is the occurrence's tag
	Type EventType

	// Target optionally addresses a specific element
	Target *uuid.UUID

	// Pos is the pointer position for pointer-class events
	Pos image.Point

	// Data carries optional application payload
	Data map[string]any
}

// Surface receives batches of regions that need redrawing.
type Surface interface {
	// Update flushes one batch of dirty regions to the presentation layer.
	// An empty batch is a valid no-op frame.
	Update(regions []image.Rectangle) error
}

// Clock tracks frame pacing for the render-tick producer.
type Clock interface {
	// Tick marks the completion of one frame.
	Tick()

	// FPS reports the recent frame rate.
	FPS() float64
}

// EventSource allocates event-type tags and queues occurrences.
type EventSource interface {
	// NewEventType allocates a fresh opaque tag, unique for the lifetime
	// of this source.
	NewEventType() (EventType, error)

	// Post queues an occurrence for a later Drain.
	Post(ev Event) error

	// Drain returns all pending occurrences in arrival order and clears
	// the queue. It never blocks.
	Drain() []Event
}

// Backend bundles the three collaborator surfaces.
type Backend interface {
	Surface() Surface
	Clock() Clock
	Events() EventSource

	// Close releases backend resources. The backend must not be used
	// afterwards.
	Close() error
}
