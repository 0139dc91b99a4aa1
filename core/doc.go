// Package core implements the single-writer mailbox that serializes all
// mutation of one shared application state value. Producers enqueue requests
// from any goroutine; a single consume loop folds them over the state in FIFO
// order. Mutate requests replace the state, invoke requests observe a
// snapshot from a detached goroutine and never change it.
package core
