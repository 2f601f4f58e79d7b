package reago

// Listener is anything that can be told one of its dependencies changed.
// A host runtime implements this for whatever unit it re-renders: a
// component, a session, a terminal view.
type Listener interface {
	// Notify tells the listener that a cell it depends on was written.
	// No payload is carried: the listener re-reads the values it needs.
	Notify()

	// ID returns a unique identifier for this listener.
	// Used to deduplicate repeated subscriptions of the same listener.
	ID() uint64
}

// Binder is the external subscription primitive supplied by a host runtime.
// When a Binder is installed (WithBinder or the WithModelBinder option),
// every cell resolved by Watch or Pick is routed through Bind exactly once
// per resolution pass.
//
// Bind receives three callbacks: subscribe registers a change callback on
// the cell and returns an idempotent unsubscribe handle; snapshot returns
// the cell's current value; initial returns the value the cell was
// constructed with, a stable default for hosts that render concurrently.
// Bind returns the value the resolution should report for the cell,
// normally snapshot().
type Binder interface {
	Bind(subscribe func(onChange func()) (unsubscribe func()), snapshot, initial func() any) any
}

// BinderFunc adapts a plain function to the Binder interface.
type BinderFunc func(subscribe func(onChange func()) (unsubscribe func()), snapshot, initial func() any) any

// Bind implements Binder.
func (f BinderFunc) Bind(subscribe func(onChange func()) (unsubscribe func()), snapshot, initial func() any) any {
	return f(subscribe, snapshot, initial)
}
