package reago

import (
	"testing"
)

// fakeHost imitates a host runtime's subscription primitive: it records
// every Bind call, registers the onChange callback, and keeps the
// unsubscribe handles the way a render pass would.
type fakeHost struct {
	binds    int
	initials []any
	unsubs   []func()
	changes  int
}

func (h *fakeHost) Bind(subscribe func(onChange func()) (unsubscribe func()), snapshot, initial func() any) any {
	h.binds++
	h.initials = append(h.initials, initial())
	h.unsubs = append(h.unsubs, subscribe(func() { h.changes++ }))
	return snapshot()
}

func (h *fakeHost) detach() {
	for _, unsub := range h.unsubs {
		unsub()
	}
	h.unsubs = nil
}

func TestBinderReceivesAllThreeCallbacks(t *testing.T) {
	m, err := New(Record{"count": 10})
	if err != nil {
		t.Fatal(err)
	}
	m.Set("count", 11)

	host := &fakeHost{}
	var values map[string]any
	WithBinder(host, func() {
		values, err = m.Watch("count")
	})
	if err != nil {
		t.Fatal(err)
	}

	if host.binds != 1 {
		t.Fatalf("expected 1 bind per tracked key, got %d", host.binds)
	}
	// snapshot feeds the resolved value, initial stays at construction time.
	if values["count"] != 11 {
		t.Errorf("expected snapshot value 11, got %v", values["count"])
	}
	if host.initials[0] != 10 {
		t.Errorf("expected initial value 10, got %v", host.initials[0])
	}

	// onChange is wired to the registry's subscribe.
	m.Set("count", 12)
	if host.changes != 1 {
		t.Errorf("expected 1 change callback, got %d", host.changes)
	}

	// Detaching through the returned handles stops notifications.
	host.detach()
	m.Set("count", 13)
	if host.changes != 1 {
		t.Errorf("detached host still notified, got %d", host.changes)
	}
}

func TestBinderOncePerTrackedKeyPerPass(t *testing.T) {
	m, err := New(Record{"a": 1, "b": 2, "c": 3})
	if err != nil {
		t.Fatal(err)
	}

	host := &fakeHost{}
	WithBinder(host, func() {
		_, err = m.Pick(Selector(func(v *View) any {
			return v.Int("a") + v.Int("b")
		}))
	})
	if err != nil {
		t.Fatal(err)
	}
	if host.binds != 2 {
		t.Errorf("expected a bind per inferred dependency, got %d", host.binds)
	}

	// A second pass re-binds, as a host re-render would.
	WithBinder(host, func() {
		_, err = m.Pick(Selector(func(v *View) any {
			return v.Int("a") + v.Int("b")
		}))
	})
	if err != nil {
		t.Fatal(err)
	}
	if host.binds != 4 {
		t.Errorf("expected re-bind on second pass, got %d", host.binds)
	}
}

func TestModelBinderOption(t *testing.T) {
	host := &fakeHost{}
	m, err := New(Record{"a": 1}, WithModelBinder(host))
	if err != nil {
		t.Fatal(err)
	}

	if _, err := m.Watch("a"); err != nil {
		t.Fatal(err)
	}
	if host.binds != 1 {
		t.Errorf("model binder not used, got %d binds", host.binds)
	}

	// A goroutine-local binder takes precedence.
	local := &fakeHost{}
	WithBinder(local, func() {
		_, err = m.Watch("a")
	})
	if err != nil {
		t.Fatal(err)
	}
	if local.binds != 1 || host.binds != 1 {
		t.Errorf("local binder must shadow model binder: local=%d model=%d", local.binds, host.binds)
	}
}

func TestBinderRollbackOnFailure(t *testing.T) {
	m, err := New(Record{"a": 1})
	if err != nil {
		t.Fatal(err)
	}

	host := &fakeHost{}
	WithBinder(host, func() {
		_, err = m.Watch("a", "nope")
	})
	if err == nil {
		t.Fatal("expected error")
	}

	// The bind for "a" succeeded but its subscription was rolled back.
	m.Set("a", 2)
	if host.changes != 0 {
		t.Errorf("rolled-back subscription still fired, got %d", host.changes)
	}
}

func TestPickMethodStringBypassesBinder(t *testing.T) {
	m := newTestModel(t)

	host := &fakeHost{}
	var err error
	WithBinder(host, func() {
		_, err = m.Pick("greet")
	})
	if err != nil {
		t.Fatal(err)
	}
	if host.binds != 0 {
		t.Errorf("method-backed selections must not bind, got %d", host.binds)
	}
}
