package reago

import (
	"runtime"
	"sync"
)

// trackingContext holds the reactive call context for one goroutine: which
// listener should be registered on resolved cells, and which Binder (if any)
// resolution should route subscriptions through.
type trackingContext struct {
	// currentListener is the listener registered on every cell a Watch or
	// Pick call resolves. nil means resolution reads without subscribing.
	currentListener Listener

	// currentBinder overrides the model-level binder for the duration of a
	// WithBinder call.
	currentBinder Binder
}

// trackingContexts stores per-goroutine tracking contexts.
var trackingContexts sync.Map

// getGoroutineID extracts the current goroutine's ID from the runtime stack
// header ("goroutine <id> ..."). Implementation detail, not exposed.
func getGoroutineID() uint64 {
	var buf [64]byte
	n := runtime.Stack(buf[:], false)

	var id uint64
	for i := 10; i < n; i++ { // skip "goroutine "
		if buf[i] == ' ' {
			break
		}
		id = id*10 + uint64(buf[i]-'0')
	}
	return id
}

// getTrackingContext returns the tracking context for the current goroutine,
// creating one if needed.
func getTrackingContext() *trackingContext {
	gid := getGoroutineID()

	if ctx, ok := trackingContexts.Load(gid); ok {
		return ctx.(*trackingContext)
	}

	ctx := &trackingContext{}
	trackingContexts.Store(gid, ctx)
	return ctx
}

// getCurrentListener returns the listener for the current goroutine, or nil
// if no tracking is active.
func getCurrentListener() Listener {
	return getTrackingContext().currentListener
}

// setCurrentListener installs l and returns the previous listener so it can
// be restored.
func setCurrentListener(l Listener) Listener {
	ctx := getTrackingContext()
	old := ctx.currentListener
	ctx.currentListener = l
	return old
}

// getCurrentBinder returns the binder for the current goroutine, or nil.
func getCurrentBinder() Binder {
	return getTrackingContext().currentBinder
}

// setCurrentBinder installs b and returns the previous binder.
func setCurrentBinder(b Binder) Binder {
	ctx := getTrackingContext()
	old := ctx.currentBinder
	ctx.currentBinder = b
	return old
}

// WithListener runs fn with l as the current listener. Every cell resolved
// by Watch or Pick inside fn subscribes l.
//
// Example:
//
//	reago.WithListener(component, func() {
//	    values, err = m.Watch("count")
//	})
func WithListener(l Listener, fn func()) {
	old := setCurrentListener(l)
	defer setCurrentListener(old)
	fn()
}

// WithBinder runs fn with b as the external subscription primitive. Every
// cell resolved inside fn is routed through b.Bind.
func WithBinder(b Binder, fn func()) {
	old := setCurrentBinder(b)
	defer setCurrentBinder(old)
	fn()
}

// Untracked runs fn with no listener and no binder, so reads inside it
// create no subscriptions.
func Untracked(fn func()) {
	oldL := setCurrentListener(nil)
	oldB := setCurrentBinder(nil)
	defer func() {
		setCurrentListener(oldL)
		setCurrentBinder(oldB)
	}()
	fn()
}
