package reago

import (
	"sync"
	"testing"
)

func TestWithListenerRestoresPrevious(t *testing.T) {
	outer := newTestListener()
	inner := newTestListener()

	WithListener(outer, func() {
		if getCurrentListener() != outer {
			t.Error("outer listener not installed")
		}
		WithListener(inner, func() {
			if getCurrentListener() != inner {
				t.Error("inner listener not installed")
			}
		})
		if getCurrentListener() != outer {
			t.Error("outer listener not restored")
		}
	})

	if getCurrentListener() != nil {
		t.Error("listener leaked out of WithListener")
	}
}

func TestTrackingContextIsPerGoroutine(t *testing.T) {
	m, err := New(Record{"a": 1})
	if err != nil {
		t.Fatal(err)
	}

	main := newTestListener()
	other := newTestListener()

	WithListener(main, func() {
		var wg sync.WaitGroup
		wg.Add(1)
		go func() {
			defer wg.Done()
			// A fresh goroutine starts with no listener; subscriptions here
			// go to the listener it installs itself, not main's.
			if getCurrentListener() != nil {
				t.Error("listener leaked across goroutines")
			}
			WithListener(other, func() {
				if _, err := m.Watch("a"); err != nil {
					t.Error(err)
				}
			})
		}()
		wg.Wait()
	})

	m.Set("a", 2)
	if main.notifyCount() != 0 {
		t.Errorf("main listener notified without subscribing, got %d", main.notifyCount())
	}
	if other.notifyCount() != 1 {
		t.Errorf("goroutine listener expected 1 notification, got %d", other.notifyCount())
	}
}

func TestConcurrentFirstTraceTolerated(t *testing.T) {
	m, err := New(Record{"a": 1})
	if err != nil {
		t.Fatal(err)
	}

	sel := Named("racy", func(v *View) any { return v.Int("a") })

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := m.Pick(sel); err != nil {
				t.Error(err)
			}
		}()
	}
	wg.Wait()

	keys := m.TracedKeys("racy")
	if len(keys) != 1 || keys[0] != "a" {
		t.Errorf("expected dependency set [a] after racing traces, got %v", keys)
	}
}
