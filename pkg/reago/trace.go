package reago

import (
	"fmt"
	"reflect"
	"runtime"
	"time"
)

// Selector computes a value from the model's view. Pick infers its
// dependency set by running it once against a recording view and noting
// every key it reads.
//
// The inferred set is cached per selector identity and never invalidated:
// a selector is assumed to read the same keys on every invocation. A
// selector whose reads are conditional (reads "b" only when "a" is truthy)
// is only tracked for the branch its first trial execution took; later
// branch changes are invisible to the subscription system. Give such
// selectors distinct identities with Named, or read every branch's keys
// unconditionally.
type Selector func(view *View) any

// NamedSelector pairs a Selector with an explicit identity. Use it when
// function identity is not stable enough: distinct closures created from
// the same function literal share one runtime code pointer, so they share
// one memoized dependency set unless named apart.
type NamedSelector struct {
	Name string
	Fn   Selector
}

// Named builds a NamedSelector.
func Named(name string, fn Selector) NamedSelector {
	return NamedSelector{Name: name, Fn: fn}
}

// selectorIdentity derives a stable memo key for fn from its runtime code
// pointer, with the function name attached for diagnostics.
func selectorIdentity(fn Selector) string {
	pc := reflect.ValueOf(fn).Pointer()
	if f := runtime.FuncForPC(pc); f != nil {
		return fmt.Sprintf("%s@%#x", f.Name(), pc)
	}
	return fmt.Sprintf("selector@%#x", pc)
}

// traceSelector resolves a function selector: on a memo hit it subscribes
// the previously recorded keys without touching a recording view; otherwise
// it performs the trial execution, memoizes the deduplicated dependency
// set, and subscribes it. Either way the selector then runs once against
// the live view for the returned value; the trial pass's return value is
// discarded, only its read pattern matters.
func (m *Model) traceSelector(r *resolution, identity string, fn Selector) (any, error) {
	m.memoMu.Lock()
	keys, hit := m.memo[identity]
	m.memoMu.Unlock()

	if hit {
		m.observer.MemoHit(identity)
		if err := m.subscribeKeys(r, keys); err != nil {
			return nil, err
		}
		return m.runSelector(identity, fn)
	}

	start := time.Now()
	keys, err := m.trialExecute(identity, fn)
	if err != nil {
		return nil, err
	}

	m.memoMu.Lock()
	if existing, ok := m.memo[identity]; ok {
		// Lost a race with a concurrent first trace of the same selector.
		// Both produced the same set; keep the one already published.
		keys = existing
	} else {
		m.memo[identity] = keys
	}
	m.memoMu.Unlock()

	m.observer.SelectorTraced(identity, keys, time.Since(start))

	if err := m.subscribeKeys(r, keys); err != nil {
		return nil, err
	}
	return m.runSelector(identity, fn)
}

// trialExecute runs fn once against a recording view and returns the
// deduplicated keys it read, in first-read order. The recording view makes
// the run side-effect free: writes are swallowed and method calls are
// no-op stand-ins. Unknown keys surface as UnknownKeyError; any other
// failure is wrapped as a DependencyTraceError naming the selector.
func (m *Model) trialExecute(identity string, fn Selector) (keys []string, err error) {
	rec := &recorder{}
	view := &View{model: m, rec: rec}

	defer func() {
		if r := recover(); r != nil {
			if uke, ok := r.(*UnknownKeyError); ok {
				err = uke
				return
			}
			err = &DependencyTraceError{Selector: identity, Err: panicError(r)}
		}
	}()

	_ = fn(view)
	return dedupKeys(rec.keys), nil
}

// runSelector invokes fn against the live view and returns its result.
// Typed registry errors raised through the view surface as errors; any
// other panic is the selector's own bug and propagates.
func (m *Model) runSelector(identity string, fn Selector) (result any, err error) {
	defer func() {
		if r := recover(); r != nil {
			switch e := r.(type) {
			case *UnknownKeyError:
				err = e
			case *ReadOnlyError:
				err = e
			case *InvalidArgumentError:
				err = e
			default:
				panic(r)
			}
		}
	}()

	return fn(m.view), nil
}

// dedupKeys removes duplicates preserving first-read order.
func dedupKeys(keys []string) []string {
	if len(keys) < 2 {
		return keys
	}
	seen := make(map[string]struct{}, len(keys))
	out := keys[:0]
	for _, k := range keys {
		if _, ok := seen[k]; ok {
			continue
		}
		seen[k] = struct{}{}
		out = append(out, k)
	}
	return out
}

// panicError converts a recovered panic value into an error.
func panicError(r any) error {
	if err, ok := r.(error); ok {
		return err
	}
	return fmt.Errorf("selector panicked: %v", r)
}

// TracedKeys returns the memoized dependency set for a selector, or nil if
// it has not been traced yet. Diagnostic surface; the returned slice must
// not be mutated.
func (m *Model) TracedKeys(selector any) []string {
	var identity string
	switch s := selector.(type) {
	case NamedSelector:
		identity = s.Name
	case Selector:
		identity = selectorIdentity(s)
	case func(*View) any:
		identity = selectorIdentity(s)
	case string:
		identity = s
	default:
		return nil
	}

	m.memoMu.Lock()
	defer m.memoMu.Unlock()
	return m.memo[identity]
}
