package core

import "sync"

// Signal is a one-shot, level-triggered event used as the shared stop signal
// between the orchestrator and its sibling tasks. Raising it is idempotent
// and safe from any goroutine.
type Signal struct {
	once sync.Once
	ch   chan struct{}
}

// NewSignal creates an unraised Signal.
func NewSignal() *Signal {
	return &Signal{ch: make(chan struct{})}
}

// Raise marks the signal. Subsequent calls are no-ops.
func (s *Signal) Raise() {
	s.once.Do(func() { close(s.ch) })
}

// Raised reports whether the signal has been raised.
func (s *Signal) Raised() bool {
	select {
	case <-s.ch:
		return true
	default:
		return false
	}
}

// Done returns a channel that is closed once the signal is raised.
func (s *Signal) Done() <-chan struct{} {
	return s.ch
}
