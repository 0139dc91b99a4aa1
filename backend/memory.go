package backend

import (
	"fmt"
	"image"
	"sync"
	"time"
)

// MemoryBackend is an in-process backend. It records every flushed batch,
// counts clock ticks, and keeps posted occurrences in a FIFO queue. It serves
// headless runs and tests; a real presentation layer replaces it by
// implementing the same interfaces.
type MemoryBackend struct {
	surface *memorySurface
	clock   *memoryClock
	events  *memoryEvents

	mu     sync.Mutex
	closed bool
}

// NewMemoryBackend creates a ready-to-use in-memory backend.
func NewMemoryBackend() *MemoryBackend {
	return &MemoryBackend{
		surface: &memorySurface{},
		clock:   &memoryClock{},
		events:  &memoryEvents{nextType: FirstUserEvent},
	}
}

// Surface returns the recording surface.
func (b *MemoryBackend) Surface() Surface { return b.surface }

// Clock returns the tick-counting clock.
func (b *MemoryBackend) Clock() Clock { return b.clock }

// Events returns the in-memory event source.
func (b *MemoryBackend) Events() EventSource { return b.events }

// Close marks the backend closed. Further posts fail.
func (b *MemoryBackend) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return fmt.Errorf("memory backend already closed")
	}
	b.closed = true
	b.events.close()
	return nil
}

// Batches returns a copy of every batch flushed so far, in order.
func (b *MemoryBackend) Batches() [][]image.Rectangle {
	return b.surface.batches()
}

// Ticks returns the number of clock ticks recorded so far.
func (b *MemoryBackend) Ticks() uint64 {
	return b.clock.ticks()
}

// memorySurface records flushed batches.
type memorySurface struct {
	mu      sync.Mutex
	flushed [][]image.Rectangle
}

func (s *memorySurface) Update(regions []image.Rectangle) error {
	batch := make([]image.Rectangle, len(regions))
	copy(batch, regions)

	s.mu.Lock()
	defer s.mu.Unlock()
	s.flushed = append(s.flushed, batch)
	return nil
}

func (s *memorySurface) batches() [][]image.Rectangle {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([][]image.Rectangle, len(s.flushed))
	copy(out, s.flushed)
	return out
}

// memoryClock derives FPS from a smoothed inter-tick interval.
type memoryClock struct {
	mu    sync.Mutex
	last  time.Time
	avg   time.Duration
	count uint64
}

func (c *memoryClock) Tick() {
	now := time.Now()

	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.last.IsZero() {
		interval := now.Sub(c.last)
		if c.avg == 0 {
			c.avg = interval
		} else {
			c.avg = (c.avg*7 + interval) / 8
		}
	}
	c.last = now
	c.count++
}

func (c *memoryClock) FPS() float64 {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.avg <= 0 {
		return 0
	}
	return float64(time.Second) / float64(c.avg)
}

func (c *memoryClock) ticks() uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.count
}

// memoryEvents is a FIFO occurrence queue with a monotonically increasing
// type allocator.
type memoryEvents struct {
	mu       sync.Mutex
	queue    []Event
	nextType EventType
	closed   bool
}

func (e *memoryEvents) NewEventType() (EventType, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.closed {
		return EventNone, fmt.Errorf("event source is closed")
	}

	t := e.nextType
	e.nextType++
	return t, nil
}

func (e *memoryEvents) Post(ev Event) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.closed {
		return fmt.Errorf("event source is closed")
	}
	if ev.Type == EventNone {
		return fmt.Errorf("cannot post an event without a type")
	}

	e.queue = append(e.queue, ev)
	return nil
}

func (e *memoryEvents) Drain() []Event {
	e.mu.Lock()
	defer e.mu.Unlock()

	out := e.queue
	e.queue = nil
	return out
}

func (e *memoryEvents) close() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.closed = true
	e.queue = nil
}
