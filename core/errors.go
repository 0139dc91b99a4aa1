// Package core provides error definitions for the mailbox runtime
package core

import "errors"

// Contract violations. These abort the consume loop rather than continue
// with undefined state.
var (
	ErrNilState = errors.New("mutate operation produced a nil state")
)

// Mailbox lifecycle errors
var (
	ErrMailboxFull    = errors.New("mailbox is full")
	ErrMailboxClosed  = errors.New("mailbox is shut down")
	ErrAlreadyRunning = errors.New("mailbox consume loop already started")
)
