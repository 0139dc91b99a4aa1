// Package backend provides factory functions for creating backends
package backend

import "fmt"

// Kind selects a backend implementation.
type Kind string

const (
	// KindMemory is the in-process backend used by tests and headless runs
	KindMemory Kind = "memory"
)

// New creates a backend of the given kind.
func New(kind Kind) (Backend, error) {
	switch kind {
	case KindMemory:
		return NewMemoryBackend(), nil
	default:
		return nil, fmt.Errorf("unsupported backend kind: %s", kind)
	}
}
