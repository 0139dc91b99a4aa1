package core

import "context"

// Lens is an explicit getter/setter pair for one field of the state. It is
// the typed alternative to addressing fields by name: each field the
// application wants to mutate in isolation declares exactly one Lens, and the
// setter is responsible for returning a new state value rather than mutating
// the old one in place.
type Lens[S, F any] struct {
	Get func(S) F
	Set func(S, F) S
}

// MutateField schedules op against the lensed field and replaces that field
// with op's result. A nil replacement is a contract violation, same as for
// whole-state mutation.
func MutateField[S, F any](m *Mailbox[S], lens Lens[S, F], op func(ctx context.Context, field F) (F, error)) error {
	return m.Mutate(func(ctx context.Context, state S) (S, error) {
		next, err := op(ctx, lens.Get(state))
		if err != nil {
			return state, err
		}
		if isNil(next) {
			return state, ErrNilState
		}
		return lens.Set(state, next), nil
	})
}

// InvokeField schedules op against a read-only snapshot of the lensed field,
// fire-and-forget.
func InvokeField[S, F any](m *Mailbox[S], lens Lens[S, F], op func(ctx context.Context, field F) error) error {
	return m.Invoke(func(ctx context.Context, snapshot S) error {
		return op(ctx, lens.Get(snapshot))
	})
}

// InvokeFieldSync schedules op against a read-only snapshot of the lensed
// field and returns a wait handle for its result.
func InvokeFieldSync[S, F, R any](m *Mailbox[S], lens Lens[S, F], op func(ctx context.Context, field F) (R, error)) (*Reply[R], error) {
	return InvokeSync(m, func(ctx context.Context, snapshot S) (R, error) {
		return op(ctx, lens.Get(snapshot))
	})
}
