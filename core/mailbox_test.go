package core

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"
)

// startMailbox runs the consume loop in the background and returns the
// mailbox, a cancel func and a channel carrying Run's result.
func startMailbox[S any](t *testing.T, initial S) (*Mailbox[S], context.CancelFunc, chan error) {
	t.Helper()

	mb := NewMailbox[S](DefaultOptions())
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan error, 1)
	go func() {
		done <- mb.Run(ctx, initial)
	}()

	return mb, cancel, done
}

// readState fetches the current state through an InvokeSync round trip.
func readState[S any](t *testing.T, mb *Mailbox[S]) S {
	t.Helper()

	reply, err := InvokeSync(mb, func(ctx context.Context, snapshot S) (S, error) {
		return snapshot, nil
	})
	if err != nil {
		t.Fatalf("Failed to enqueue read: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	state, err := reply.Wait(ctx)
	if err != nil {
		t.Fatalf("Failed to read state: %v", err)
	}
	return state
}

func TestMailboxSerialization(t *testing.T) {
	mb, cancel, done := startMailbox(t, []int{})
	defer cancel()

	// Enqueue order is arrival order; the fold must apply in exactly
	// this order no matter how many invokes interleave.
	const n = 100
	for i := 0; i < n; i++ {
		i := i
		err := mb.Mutate(func(ctx context.Context, state []int) ([]int, error) {
			next := make([]int, len(state), len(state)+1)
			copy(next, state)
			return append(next, i), nil
		})
		if err != nil {
			t.Fatalf("Failed to enqueue mutate %d: %v", i, err)
		}

		if i%3 == 0 {
			err := mb.Invoke(func(ctx context.Context, snapshot []int) error {
				return nil
			})
			if err != nil {
				t.Fatalf("Failed to enqueue invoke: %v", err)
			}
		}
	}

	state := readState(t, mb)
	if len(state) != n {
		t.Fatalf("Expected %d entries, got %d", n, len(state))
	}
	for i, v := range state {
		if v != i {
			t.Errorf("Expected state[%d] = %d, got %d", i, i, v)
		}
	}

	cancel()
	if err := <-done; err != nil {
		t.Errorf("Run returned error on cancellation: %v", err)
	}
}

func TestMailboxConcurrentProducers(t *testing.T) {
	mb, cancel, _ := startMailbox(t, map[int]bool{})
	defer cancel()

	const producers = 20
	var wg sync.WaitGroup
	for i := 0; i < producers; i++ {
		i := i
		wg.Add(1)
		go func() {
			defer wg.Done()
			err := mb.Mutate(func(ctx context.Context, state map[int]bool) (map[int]bool, error) {
				next := make(map[int]bool, len(state)+1)
				for k, v := range state {
					next[k] = v
				}
				next[i] = true
				return next, nil
			})
			if err != nil {
				t.Errorf("Producer %d failed to enqueue: %v", i, err)
			}
		}()
	}
	wg.Wait()

	state := readState(t, mb)
	if len(state) != producers {
		t.Fatalf("Expected %d entries, got %d", producers, len(state))
	}
	for i := 0; i < producers; i++ {
		if !state[i] {
			t.Errorf("Missing entry from producer %d", i)
		}
	}
}

func TestInvokeIsolation(t *testing.T) {
	mb, cancel, _ := startMailbox(t, 42)
	defer cancel()

	before := readState(t, mb)

	err := mb.Invoke(func(ctx context.Context, snapshot int) error {
		// Local work; must not affect the folded state.
		_ = snapshot * 2
		return nil
	})
	if err != nil {
		t.Fatalf("Failed to enqueue invoke: %v", err)
	}

	after := readState(t, mb)
	if before != after {
		t.Errorf("Invoke changed state: before %d, after %d", before, after)
	}
}

func TestReplyResolvesOnce(t *testing.T) {
	mb, cancel, _ := startMailbox(t, "hello")
	defer cancel()

	reply, err := InvokeSync(mb, func(ctx context.Context, snapshot string) (string, error) {
		return snapshot + " world", nil
	})
	if err != nil {
		t.Fatalf("Failed to enqueue invoke: %v", err)
	}

	ctx, waitCancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer waitCancel()

	first, err := reply.Wait(ctx)
	if err != nil {
		t.Fatalf("First wait failed: %v", err)
	}
	second, err := reply.Wait(ctx)
	if err != nil {
		t.Fatalf("Second wait failed: %v", err)
	}

	if first != "hello world" || second != first {
		t.Errorf("Expected identical results, got %q and %q", first, second)
	}
}

func TestMutateNilStateFails(t *testing.T) {
	mb, cancel, done := startMailbox(t, map[string]int{"a": 1})
	defer cancel()

	err := mb.Mutate(func(ctx context.Context, state map[string]int) (map[string]int, error) {
		return nil, nil
	})
	if err != nil {
		t.Fatalf("Failed to enqueue mutate: %v", err)
	}

	select {
	case err := <-done:
		if !errors.Is(err, ErrNilState) {
			t.Errorf("Expected ErrNilState, got %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Consume loop did not fail on nil state")
	}
}

func TestMutateFailureStopsFold(t *testing.T) {
	mb, cancel, done := startMailbox(t, 0)
	defer cancel()

	opErr := errors.New("boom")
	err := mb.Mutate(func(ctx context.Context, state int) (int, error) {
		return 0, opErr
	})
	if err != nil {
		t.Fatalf("Failed to enqueue mutate: %v", err)
	}

	select {
	case err := <-done:
		if !errors.Is(err, opErr) {
			t.Errorf("Expected wrapped op error, got %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Consume loop did not surface the mutate failure")
	}

	if state := mb.State(); state != MailboxStopped {
		t.Errorf("Expected state %s after failure, got %s", MailboxStopped, state)
	}
}

func TestInvokeFailureResolvesReply(t *testing.T) {
	mb, cancel, _ := startMailbox(t, 0)
	defer cancel()

	opErr := errors.New("invoke failed")
	reply, err := InvokeSync(mb, func(ctx context.Context, snapshot int) (int, error) {
		return 0, opErr
	})
	if err != nil {
		t.Fatalf("Failed to enqueue invoke: %v", err)
	}

	ctx, waitCancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer waitCancel()

	if _, err := reply.Wait(ctx); !errors.Is(err, opErr) {
		t.Errorf("Expected invoke error through reply, got %v", err)
	}

	// The failure stays local to the invoke task.
	if got := readState(t, mb); got != 0 {
		t.Errorf("Expected state 0 after failed invoke, got %d", got)
	}
}

type fifoState struct {
	elements map[string]bool
}

func TestFIFOInterleavingDeterministic(t *testing.T) {
	mb, cancel, _ := startMailbox(t, fifoState{elements: map[string]bool{}})
	defer cancel()

	// Invoke enqueued before the mutate must not observe the element;
	// invoke enqueued after must. Determined by queue position, not timing.
	beforeReply, err := InvokeSync(mb, func(ctx context.Context, s fifoState) (bool, error) {
		return s.elements["E"], nil
	})
	if err != nil {
		t.Fatalf("Failed to enqueue pre-invoke: %v", err)
	}

	err = mb.Mutate(func(ctx context.Context, s fifoState) (fifoState, error) {
		next := make(map[string]bool, len(s.elements)+1)
		for k, v := range s.elements {
			next[k] = v
		}
		next["E"] = true
		return fifoState{elements: next}, nil
	})
	if err != nil {
		t.Fatalf("Failed to enqueue mutate: %v", err)
	}

	afterReply, err := InvokeSync(mb, func(ctx context.Context, s fifoState) (bool, error) {
		return s.elements["E"], nil
	})
	if err != nil {
		t.Fatalf("Failed to enqueue post-invoke: %v", err)
	}

	ctx, waitCancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer waitCancel()

	if seen, _ := beforeReply.Wait(ctx); seen {
		t.Error("Invoke enqueued before the mutate observed the element")
	}
	if seen, _ := afterReply.Wait(ctx); !seen {
		t.Error("Invoke enqueued after the mutate did not observe the element")
	}
}

func TestCancellationDiscardsRemainder(t *testing.T) {
	mb := NewMailbox[int](DefaultOptions())
	ctx, cancel := context.WithCancel(context.Background())

	// Queue up work before the loop ever starts, then cancel immediately.
	for i := 0; i < 10; i++ {
		if err := mb.Mutate(func(ctx context.Context, state int) (int, error) {
			return state + 1, nil
		}); err != nil {
			t.Fatalf("Failed to enqueue mutate: %v", err)
		}
	}
	cancel()

	if err := mb.Run(ctx, 0); err != nil {
		t.Errorf("Run returned error on cancellation: %v", err)
	}

	if state := mb.State(); state != MailboxStopped {
		t.Errorf("Expected state %s, got %s", MailboxStopped, state)
	}

	// Cancellation discards the remainder; none of the queued requests may
	// have been folded.
	if n := mb.Stats().Processed; n != 0 {
		t.Errorf("Expected 0 requests folded after pre-cancelled Run, got %d", n)
	}

	if err := mb.Mutate(func(ctx context.Context, state int) (int, error) {
		return state, nil
	}); !errors.Is(err, ErrMailboxClosed) {
		t.Errorf("Expected ErrMailboxClosed after shutdown, got %v", err)
	}
}

func TestTrackedTasksBlockRunReturn(t *testing.T) {
	mb, cancel, done := startMailbox(t, 0)

	started := make(chan struct{})
	release := make(chan struct{})

	// A task spawned from inside an invoke holds the mailbox open.
	err := mb.Invoke(func(ctx context.Context, snapshot int) error {
		mb.Go(func() {
			close(started)
			<-release
		})
		return nil
	})
	if err != nil {
		t.Fatalf("Failed to enqueue invoke: %v", err)
	}

	select {
	case <-started:
	case <-time.After(2 * time.Second):
		t.Fatal("Tracked task never started")
	}

	cancel()
	select {
	case <-done:
		t.Fatal("Run returned with a tracked task still running")
	case <-time.After(50 * time.Millisecond):
	}

	close(release)
	select {
	case err := <-done:
		if err != nil {
			t.Errorf("Run returned error: %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return after the tracked task unwound")
	}

	if state := mb.State(); state != MailboxStopped {
		t.Errorf("Expected state %s, got %s", MailboxStopped, state)
	}
}

func TestRunOnlyOnce(t *testing.T) {
	mb, cancel, done := startMailbox(t, 0)
	defer cancel()

	// Give the first loop a moment to claim the mailbox.
	deadline := time.Now().Add(2 * time.Second)
	for mb.State() != MailboxRunning {
		if time.Now().After(deadline) {
			t.Fatal("Consume loop never started")
		}
		time.Sleep(time.Millisecond)
	}

	if err := mb.Run(context.Background(), 0); !errors.Is(err, ErrAlreadyRunning) {
		t.Errorf("Expected ErrAlreadyRunning, got %v", err)
	}

	cancel()
	<-done
}

func TestMailboxFull(t *testing.T) {
	opts := DefaultOptions()
	opts.Size = 1
	mb := NewMailbox[int](opts)

	noop := func(ctx context.Context, state int) (int, error) { return state, nil }

	if err := mb.Mutate(noop); err != nil {
		t.Fatalf("First enqueue failed: %v", err)
	}
	if err := mb.Mutate(noop); !errors.Is(err, ErrMailboxFull) {
		t.Errorf("Expected ErrMailboxFull, got %v", err)
	}
}

func TestMailboxStats(t *testing.T) {
	mb, cancel, _ := startMailbox(t, 0)
	defer cancel()

	for i := 0; i < 5; i++ {
		if err := mb.Mutate(func(ctx context.Context, state int) (int, error) {
			return state + 1, nil
		}); err != nil {
			t.Fatalf("Failed to enqueue mutate: %v", err)
		}
	}

	if got := readState(t, mb); got != 5 {
		t.Fatalf("Expected state 5, got %d", got)
	}

	stats := mb.Stats()
	if stats.State != MailboxRunning {
		t.Errorf("Expected state %s, got %s", MailboxRunning, stats.State)
	}
	// 5 mutates plus the readState round trip.
	if stats.Processed < 6 {
		t.Errorf("Expected at least 6 processed requests, got %d", stats.Processed)
	}
}

type lensState struct {
	counter int
	tags    map[string]string
}

var tagsLens = Lens[lensState, map[string]string]{
	Get: func(s lensState) map[string]string { return s.tags },
	Set: func(s lensState, tags map[string]string) lensState {
		s.tags = tags
		return s
	},
}

func TestMutateField(t *testing.T) {
	mb, cancel, _ := startMailbox(t, lensState{counter: 7, tags: map[string]string{}})
	defer cancel()

	err := MutateField(mb, tagsLens, func(ctx context.Context, tags map[string]string) (map[string]string, error) {
		next := make(map[string]string, len(tags)+1)
		for k, v := range tags {
			next[k] = v
		}
		next["name"] = "stagekit"
		return next, nil
	})
	if err != nil {
		t.Fatalf("Failed to enqueue field mutate: %v", err)
	}

	state := readState(t, mb)
	if state.tags["name"] != "stagekit" {
		t.Errorf("Expected tag to be set, got %v", state.tags)
	}
	if state.counter != 7 {
		t.Errorf("Field mutate touched an unrelated field: counter = %d", state.counter)
	}
}

func TestMutateFieldNilFails(t *testing.T) {
	mb, cancel, done := startMailbox(t, lensState{tags: map[string]string{}})
	defer cancel()

	err := MutateField(mb, tagsLens, func(ctx context.Context, tags map[string]string) (map[string]string, error) {
		return nil, nil
	})
	if err != nil {
		t.Fatalf("Failed to enqueue field mutate: %v", err)
	}

	select {
	case err := <-done:
		if !errors.Is(err, ErrNilState) {
			t.Errorf("Expected ErrNilState, got %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Consume loop did not fail on nil field replacement")
	}
}

func TestInvokeFieldSync(t *testing.T) {
	mb, cancel, _ := startMailbox(t, lensState{tags: map[string]string{"k": "v"}})
	defer cancel()

	reply, err := InvokeFieldSync(mb, tagsLens, func(ctx context.Context, tags map[string]string) (string, error) {
		return fmt.Sprintf("%d tags", len(tags)), nil
	})
	if err != nil {
		t.Fatalf("Failed to enqueue field invoke: %v", err)
	}

	ctx, waitCancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer waitCancel()

	got, err := reply.Wait(ctx)
	if err != nil {
		t.Fatalf("Failed to wait for reply: %v", err)
	}
	if got != "1 tags" {
		t.Errorf("Expected '1 tags', got %q", got)
	}
}
