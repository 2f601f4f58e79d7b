package reago

import (
	"fmt"
	"log/slog"
	"reflect"
	"sort"
	"sync"
)

// Record is the initial record a Model wraps: property name to either a
// plain value or a Method.
type Record map[string]any

// Method is a function entry in a Record. It receives the model's live
// view, so self-references inside the method resolve against cells and
// sibling methods rather than the raw record.
type Method func(view *View, args ...any) any

// BoundMethod is a Method bound to its model's live view.
type BoundMethod func(args ...any) any

// Model is the reactive container. It is structurally frozen after New:
// no keys can be added or removed, only existing cell values change, via
// Set. All methods are safe for use from a single logical thread of
// control; concurrent writers must serialize themselves.
type Model struct {
	cells   map[string]*Cell
	methods map[string]BoundMethod

	// cellKeys is the sorted list of cell-backed keys, fixed at
	// construction. Watch with no arguments resolves these in order.
	cellKeys []string

	// view is the live bound view shared by methods and selectors.
	view *View

	// memo caches traced dependency sets by selector identity. Append-only:
	// entries are never invalidated. A race between two first-time traces
	// of the same selector just produces the same set twice.
	memoMu sync.Mutex
	memo   map[string][]string

	binder   Binder
	observer Observer
	logger   *slog.Logger
	debug    bool
}

// New constructs a Model from an initial record. Every non-function entry
// becomes a Cell seeded with the entry's value; function entries must be
// Methods and are bound to the live view with no cell behind them. The
// returned model is structurally immutable.
//
// CreateModel is an alias for New.
func New(record Record, opts ...Option) (*Model, error) {
	if record == nil {
		return nil, &ConfigurationError{Reason: "initial record must be a non-nil map"}
	}

	m := &Model{
		cells:    make(map[string]*Cell, len(record)),
		methods:  make(map[string]BoundMethod),
		memo:     make(map[string][]string),
		observer: nopObserver{},
		logger:   slog.Default().With("component", "reago"),
	}
	m.view = &View{model: m}

	for _, opt := range opts {
		opt(m)
	}

	for key, value := range record {
		if key == "" {
			return nil, &ConfigurationError{Reason: "record keys must be non-empty strings"}
		}

		if value != nil && reflect.TypeOf(value).Kind() == reflect.Func {
			var fn Method
			switch f := value.(type) {
			case Method:
				fn = f
			case func(*View, ...any) any:
				fn = f
			default:
				return nil, &ConfigurationError{
					Reason: fmt.Sprintf("entry %q: function entries must be reago.Method, got %T", key, value),
				}
			}
			boundView := m.view
			m.methods[key] = func(args ...any) any {
				return fn(boundView, args...)
			}
			continue
		}

		m.cells[key] = newCell(key, value)
		m.cellKeys = append(m.cellKeys, key)
	}

	sort.Strings(m.cellKeys)
	return m, nil
}

// CreateModel constructs a Model from an initial record. See New.
func CreateModel(record Record, opts ...Option) (*Model, error) {
	return New(record, opts...)
}

// View returns the live bound view: methods and current cell values, with
// no subscription created. Escape hatch for reading or writing outside any
// tracked context.
func (m *Model) View() *View {
	return m.view
}

// Keys returns the cell-backed keys in sorted order.
func (m *Model) Keys() []string {
	keys := make([]string, len(m.cellKeys))
	copy(keys, m.cellKeys)
	return keys
}

// Has reports whether key was part of the initial record, cell- or
// method-backed.
func (m *Model) Has(key string) bool {
	if _, ok := m.cells[key]; ok {
		return true
	}
	_, ok := m.methods[key]
	return ok
}

// IsMethod reports whether key is backed by a method.
func (m *Model) IsMethod(key string) bool {
	_, ok := m.methods[key]
	return ok
}

// Get returns the current cell value or the bound method for key, with no
// subscription created.
func (m *Model) Get(key string) (any, error) {
	if cell, ok := m.cells[key]; ok {
		return cell.Value(), nil
	}
	if method, ok := m.methods[key]; ok {
		return method, nil
	}
	return nil, &UnknownKeyError{Key: key}
}

// Set writes a cell's value and synchronously notifies every listener
// currently registered on it, in the same call, with no payload. Listeners
// re-read the values they need: this is a "something changed, re-check"
// signal, not a data-carrying event.
func (m *Model) Set(key string, value any) error {
	cell, ok := m.cells[key]
	if !ok {
		if _, isMethod := m.methods[key]; isMethod {
			return &ReadOnlyError{Key: key}
		}
		return &UnknownKeyError{Key: key}
	}

	cell.set(value)
	m.debugLog(key, value)
	m.observer.CellWritten(key)

	count := cell.notify()
	m.observer.ListenersNotified(key, count)
	return nil
}

// Subscribe registers listener on key's cell and returns an idempotent
// unsubscribe handle.
func (m *Model) Subscribe(key string, listener func()) (func(), error) {
	cell, ok := m.cells[key]
	if !ok {
		return nil, &UnknownKeyError{Key: key}
	}
	if listener == nil {
		return nil, &InvalidArgumentError{Reason: "listener must be non-nil"}
	}
	return cell.subscribe(listener), nil
}

// Snapshot returns the current value of every cell. No subscription is
// created.
func (m *Model) Snapshot() map[string]any {
	snap := make(map[string]any, len(m.cellKeys))
	for _, key := range m.cellKeys {
		snap[key] = m.cells[key].Value()
	}
	return snap
}

// Call invokes the method behind key with args.
func (m *Model) Call(key string, args ...any) (any, error) {
	method, ok := m.methods[key]
	if !ok {
		if _, isCell := m.cells[key]; isCell {
			return nil, &InvalidArgumentError{Reason: fmt.Sprintf("entry %q is not a method", key)}
		}
		return nil, &UnknownKeyError{Key: key}
	}
	return method(args...), nil
}

// cell returns the Cell behind key, or an UnknownKeyError/nil pair.
func (m *Model) cell(key string) (*Cell, error) {
	cell, ok := m.cells[key]
	if !ok {
		return nil, &UnknownKeyError{Key: key}
	}
	return cell, nil
}

// debugLog emits a human-readable record of a cell write when debug mode is
// on. Observability only, not part of the correctness contract.
func (m *Model) debugLog(key string, value any) {
	if !m.debug {
		return
	}
	m.logger.Info("cell changed", "key", key, "value", value)
}

// effectiveBinder returns the binder resolution should route through: the
// goroutine-local one if installed, else the model's.
func (m *Model) effectiveBinder() Binder {
	if b := getCurrentBinder(); b != nil {
		return b
	}
	return m.binder
}
