// Package app defines the shared application state folded by the mailbox:
// the element collection, the event-listener registry, the event-key table
// and the redraw queue. Every operation on these values is copy-on-write; a
// state value handed out as a snapshot is never mutated afterwards.
package app
