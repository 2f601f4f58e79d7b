// Package reago provides a dependency-tracked reactive state container.
//
// A Model wraps a record of named values and methods. Every value entry
// becomes an observable Cell; methods are bound to the model's live View.
// Consumers either declare their dependencies explicitly with Watch, or have
// them inferred with Pick, which traces which keys a selector function reads
// during a trial execution against a recording view.
//
// # Core Types
//
// Model is the container:
//
//	m, err := reago.New(reago.Record{
//	    "count": 0,
//	    "step":  1,
//	    "bump": reago.Method(func(v *reago.View, _ ...any) any {
//	        v.Set("count", v.Get("count").(int)+v.Get("step").(int))
//	        return nil
//	    }),
//	})
//
// Watch subscribes the calling context to named cells:
//
//	values, err := m.Watch("count", "step")
//
// Pick resolves a selection of any shape, inferring dependencies for
// function selectors:
//
//	total, err := m.Pick(reago.Selector(func(v *reago.View) any {
//	    return v.Get("count").(int) * v.Get("step").(int)
//	}))
//
// The inferred dependency set of a selector is memoized by selector
// identity, so repeated Pick calls with the same selector skip the trial
// execution entirely.
//
// # Subscription
//
// Resolution registers the current tracking-context listener (see
// WithListener) on every resolved cell, or routes through an installed
// Binder so a host runtime can tie cell changes to its own re-render
// scheduling. Writes through Model.Set notify listeners synchronously, in
// the same call, with no payload: listeners re-read whatever they need.
package reago
