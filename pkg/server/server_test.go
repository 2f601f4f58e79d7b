package server

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/reago-dev/reago/pkg/reago"
)

func newTestServer(t *testing.T) (*Server, *reago.Model) {
	t.Helper()
	m, err := reago.New(reago.Record{
		"count": 0,
		"name":  "a",
		"bump": reago.Method(func(v *reago.View, _ ...any) any {
			v.Set("count", v.Int("count")+1)
			return v.Get("count")
		}),
	})
	if err != nil {
		t.Fatal(err)
	}
	return New(m), m
}

func doJSON(t *testing.T, handler http.Handler, method, path string, body any) (*httptest.ResponseRecorder, map[string]any) {
	t.Helper()

	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatal(err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	var decoded map[string]any
	if rec.Body.Len() > 0 {
		if err := json.Unmarshal(rec.Body.Bytes(), &decoded); err != nil {
			t.Fatalf("invalid JSON response %q: %v", rec.Body.String(), err)
		}
	}
	return rec, decoded
}

func TestStateSnapshot(t *testing.T) {
	srv, m := newTestServer(t)
	m.Set("count", 7)

	rec, body := doJSON(t, srv.Handler(), http.MethodGet, "/api/state", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if body["count"] != float64(7) || body["name"] != "a" {
		t.Errorf("unexpected snapshot: %v", body)
	}
	if _, ok := body["bump"]; ok {
		t.Error("methods must not appear in the snapshot")
	}
}

func TestGetKey(t *testing.T) {
	srv, _ := newTestServer(t)

	rec, body := doJSON(t, srv.Handler(), http.MethodGet, "/api/state/name", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if body["value"] != "a" {
		t.Errorf("expected value a, got %v", body["value"])
	}

	rec, _ = doJSON(t, srv.Handler(), http.MethodGet, "/api/state/nope", nil)
	if rec.Code != http.StatusNotFound {
		t.Errorf("unknown key: expected 404, got %d", rec.Code)
	}

	rec, _ = doJSON(t, srv.Handler(), http.MethodGet, "/api/state/bump", nil)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("method entry: expected 400, got %d", rec.Code)
	}
}

func TestSetKey(t *testing.T) {
	srv, m := newTestServer(t)

	fired := 0
	if _, err := m.Subscribe("count", func() { fired++ }); err != nil {
		t.Fatal(err)
	}

	rec, _ := doJSON(t, srv.Handler(), http.MethodPut, "/api/state/count", map[string]any{"value": 5})
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if v, _ := m.Get("count"); v != float64(5) {
		t.Errorf("expected 5, got %v", v)
	}
	if fired != 1 {
		t.Errorf("expected synchronous notification before response, got %d", fired)
	}

	rec, _ = doJSON(t, srv.Handler(), http.MethodPut, "/api/state/nope", map[string]any{"value": 1})
	if rec.Code != http.StatusNotFound {
		t.Errorf("unknown key: expected 404, got %d", rec.Code)
	}

	rec, _ = doJSON(t, srv.Handler(), http.MethodPut, "/api/state/bump", map[string]any{"value": 1})
	if rec.Code != http.StatusForbidden {
		t.Errorf("method entry: expected 403, got %d", rec.Code)
	}
}

func TestCall(t *testing.T) {
	srv, m := newTestServer(t)

	rec, body := doJSON(t, srv.Handler(), http.MethodPost, "/api/call/bump", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if body["result"] != float64(1) {
		t.Errorf("expected result 1, got %v", body["result"])
	}
	if v, _ := m.Get("count"); v != 1 {
		t.Errorf("expected count 1 after call, got %v", v)
	}

	rec, _ = doJSON(t, srv.Handler(), http.MethodPost, "/api/call/count", nil)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("cell entry: expected 400, got %d", rec.Code)
	}

	rec, _ = doJSON(t, srv.Handler(), http.MethodPost, "/api/call/nope", nil)
	if rec.Code != http.StatusNotFound {
		t.Errorf("unknown key: expected 404, got %d", rec.Code)
	}
}

func TestHealthz(t *testing.T) {
	srv, _ := newTestServer(t)
	rec, _ := doJSON(t, srv.Handler(), http.MethodGet, "/healthz", nil)
	if rec.Code != http.StatusOK {
		t.Errorf("expected 200, got %d", rec.Code)
	}
}

func TestMetricsRoute(t *testing.T) {
	m, err := reago.New(reago.Record{"a": 1})
	if err != nil {
		t.Fatal(err)
	}

	srv := New(m, WithMetrics(true))
	rec, _ := doJSON(t, srv.Handler(), http.MethodGet, "/metrics", nil)
	if rec.Code != http.StatusOK {
		t.Errorf("expected 200 from /metrics, got %d", rec.Code)
	}

	// Disabled by default.
	srv = New(m)
	rec, _ = doJSON(t, srv.Handler(), http.MethodGet, "/metrics", nil)
	if rec.Code != http.StatusNotFound {
		t.Errorf("expected 404 without metrics, got %d", rec.Code)
	}
}
