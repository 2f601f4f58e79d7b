package reago

import (
	"fmt"
	"sort"
)

// resolution tracks the subscriptions one Watch or Pick call creates, so a
// failing call can roll back and leave no partial subscription behind.
type resolution struct {
	undo []func()
}

func (r *resolution) rollback() {
	for i := len(r.undo) - 1; i >= 0; i-- {
		r.undo[i]()
	}
	r.undo = nil
}

// Pick resolves a selection against the registry, registers the calling
// context on every cell the selection actually depends on, and returns the
// resolved value(s) in the same shape as the input:
//
//   - a key string resolves to that cell's value, or the bound method for
//     method-backed keys (methods participate in no subscription);
//   - a Selector or NamedSelector resolves to its result, with the
//     dependency set inferred by trial execution (see Selector);
//   - a []any resolves element-wise to a slice of equal length;
//   - a map[string]any resolves value-wise to a map with the same keys.
//
// Unknown keys are fatal to the whole call: the error surfaces and any
// subscriptions the call had already created are rolled back. Any other
// selection shape is an InvalidArgumentError.
func (m *Model) Pick(selection any) (any, error) {
	r := &resolution{}
	result, err := m.resolveSelection(r, selection)
	if err != nil {
		r.rollback()
		return nil, err
	}
	return result, nil
}

func (m *Model) resolveSelection(r *resolution, selection any) (any, error) {
	switch sel := selection.(type) {
	case string:
		return m.resolveKey(r, sel)

	case Selector:
		if sel == nil {
			return nil, &InvalidArgumentError{Reason: "selector must be non-nil"}
		}
		return m.traceSelector(r, selectorIdentity(sel), sel)

	case func(*View) any:
		if sel == nil {
			return nil, &InvalidArgumentError{Reason: "selector must be non-nil"}
		}
		return m.traceSelector(r, selectorIdentity(sel), sel)

	case NamedSelector:
		if sel.Fn == nil {
			return nil, &InvalidArgumentError{Reason: fmt.Sprintf("named selector %q has nil function", sel.Name)}
		}
		if sel.Name == "" {
			return nil, &InvalidArgumentError{Reason: "named selector needs a non-empty name"}
		}
		return m.traceSelector(r, sel.Name, sel.Fn)

	case []any:
		return m.resolveSequence(r, sel)

	case []string:
		seq := make([]any, len(sel))
		for i, s := range sel {
			seq[i] = s
		}
		return m.resolveSequence(r, seq)

	case map[string]any:
		return m.resolveMapping(r, sel)

	case nil:
		return nil, &InvalidArgumentError{Reason: "selection must be non-nil"}

	default:
		return nil, &InvalidArgumentError{Reason: fmt.Sprintf("unsupported selection type %T", selection)}
	}
}

// resolveKey resolves a single key string: method-backed keys return the
// bound method with no subscription, cell-backed keys subscribe the calling
// context and return the current value.
func (m *Model) resolveKey(r *resolution, key string) (any, error) {
	if method, ok := m.methods[key]; ok {
		return method, nil
	}
	return m.subscribeCell(r, key)
}

// resolveSequence resolves each element in order, returning a sequence of
// equal length. An empty sequence is legal and creates no subscriptions.
func (m *Model) resolveSequence(r *resolution, selections []any) (any, error) {
	out := make([]any, len(selections))
	for i, sel := range selections {
		value, err := m.resolveSelection(r, sel)
		if err != nil {
			return nil, err
		}
		out[i] = value
	}
	return out, nil
}

// resolveMapping resolves each entry, returning a mapping with the same
// output keys. Entries resolve in sorted output-key order so failures are
// deterministic.
func (m *Model) resolveMapping(r *resolution, selections map[string]any) (any, error) {
	outKeys := make([]string, 0, len(selections))
	for k := range selections {
		outKeys = append(outKeys, k)
	}
	sort.Strings(outKeys)

	out := make(map[string]any, len(selections))
	for _, k := range outKeys {
		value, err := m.resolveSelection(r, selections[k])
		if err != nil {
			return nil, err
		}
		out[k] = value
	}
	return out, nil
}

// Watch is the explicit-dependency path: it subscribes the calling context
// to the named cells and returns their current values keyed by name. With
// no arguments it watches every cell in the registry. Method-backed keys
// resolve to the bound method with no subscription, matching Pick's string
// selectors.
func (m *Model) Watch(keys ...string) (map[string]any, error) {
	if len(keys) == 0 {
		keys = m.cellKeys
	}

	r := &resolution{}
	out := make(map[string]any, len(keys))
	for _, key := range keys {
		if method, ok := m.methods[key]; ok {
			out[key] = method
			continue
		}
		value, err := m.subscribeCell(r, key)
		if err != nil {
			r.rollback()
			return nil, err
		}
		out[key] = value
	}
	return out, nil
}

// ResolveAll is the loosely-typed watch entry point for hosts that accept
// an arbitrary argument: nil watches every cell; a []string or a []any
// holding only strings watches the named cells; anything else is an
// InvalidArgumentError.
func (m *Model) ResolveAll(watchKeys any) (map[string]any, error) {
	switch keys := watchKeys.(type) {
	case nil:
		return m.Watch()
	case []string:
		return m.Watch(keys...)
	case []any:
		named := make([]string, len(keys))
		for i, k := range keys {
			s, ok := k.(string)
			if !ok {
				return nil, &InvalidArgumentError{
					Reason: fmt.Sprintf("watch keys must be strings, element %d is %T", i, k),
				}
			}
			named[i] = s
		}
		return m.Watch(named...)
	default:
		return nil, &InvalidArgumentError{
			Reason: fmt.Sprintf("watch keys must be an ordered sequence of strings, got %T", watchKeys),
		}
	}
}

// subscribeCell registers the calling context on key's cell and returns the
// value the resolution should report. When an external Binder is installed
// the subscription is routed through it; otherwise the current
// tracking-context listener (if any) is registered directly.
func (m *Model) subscribeCell(r *resolution, key string) (any, error) {
	cell, err := m.cell(key)
	if err != nil {
		return nil, err
	}

	binder := m.effectiveBinder()
	if binder == nil {
		if l := getCurrentListener(); l != nil {
			if unsub, fresh := cell.subscribeListener(l); fresh {
				r.undo = append(r.undo, unsub)
			}
		}
		return cell.Value(), nil
	}

	subscribe := func(onChange func()) func() {
		unsub := cell.subscribe(onChange)
		r.undo = append(r.undo, unsub)
		return unsub
	}
	return binder.Bind(subscribe, cell.Value, cell.Initial), nil
}

// subscribeKeys subscribes the calling context to each key, discarding the
// values. Used when replaying a memoized dependency set.
func (m *Model) subscribeKeys(r *resolution, keys []string) error {
	for _, key := range keys {
		if _, err := m.subscribeCell(r, key); err != nil {
			return err
		}
	}
	return nil
}
