package reago

import "time"

// Observer receives observability callbacks from a Model. It is a hook for
// metrics and tracing backends; it is not part of the correctness contract
// and must not mutate the model from inside a callback.
type Observer interface {
	// CellWritten fires after a Set wrote a cell, before fan-out.
	CellWritten(key string)

	// ListenersNotified fires after a write's synchronous fan-out, with the
	// number of callbacks that ran.
	ListenersNotified(key string, count int)

	// SelectorTraced fires after a trial execution recorded a selector's
	// dependency set.
	SelectorTraced(selector string, keys []string, d time.Duration)

	// MemoHit fires when a resolution reused a memoized dependency set
	// instead of tracing.
	MemoHit(selector string)
}

// nopObserver is installed when no Observer option is given.
type nopObserver struct{}

func (nopObserver) CellWritten(string)                             {}
func (nopObserver) ListenersNotified(string, int)                  {}
func (nopObserver) SelectorTraced(string, []string, time.Duration) {}
func (nopObserver) MemoHit(string)                                 {}

// multiObserver fans callbacks out to several observers.
type multiObserver []Observer

func (m multiObserver) CellWritten(key string) {
	for _, o := range m {
		o.CellWritten(key)
	}
}

func (m multiObserver) ListenersNotified(key string, count int) {
	for _, o := range m {
		o.ListenersNotified(key, count)
	}
}

func (m multiObserver) SelectorTraced(selector string, keys []string, d time.Duration) {
	for _, o := range m {
		o.SelectorTraced(selector, keys, d)
	}
}

func (m multiObserver) MemoHit(selector string) {
	for _, o := range m {
		o.MemoHit(selector)
	}
}

// MultiObserver combines observers into one that forwards every callback to
// each, in order.
func MultiObserver(observers ...Observer) Observer {
	return multiObserver(observers)
}
