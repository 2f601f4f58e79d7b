package server

import (
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
)

func dialLive(t *testing.T, srv *Server) (*websocket.Conn, func()) {
	t.Helper()

	ts := httptest.NewServer(srv.Handler())
	url := "ws" + strings.TrimPrefix(ts.URL, "http") + "/live"

	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		ts.Close()
		t.Fatalf("dial: %v", err)
	}
	return conn, func() {
		conn.Close()
		ts.Close()
	}
}

func readMessage(t *testing.T, conn *websocket.Conn) serverMessage {
	t.Helper()
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var msg serverMessage
	if err := conn.ReadJSON(&msg); err != nil {
		t.Fatalf("read: %v", err)
	}
	return msg
}

func TestLiveWatchAndChange(t *testing.T) {
	srv, m := newTestServer(t)
	conn, cleanup := dialLive(t, srv)
	defer cleanup()

	if err := conn.WriteJSON(clientMessage{Op: "watch", Keys: []string{"count"}}); err != nil {
		t.Fatal(err)
	}

	// The watch ack carries both the snapshot and the stable initial value.
	msg := readMessage(t, conn)
	if msg.Op != "watched" || msg.Key != "count" {
		t.Fatalf("expected watched ack for count, got %+v", msg)
	}
	if msg.Value != float64(0) || msg.Initial != float64(0) {
		t.Errorf("unexpected ack values: %+v", msg)
	}

	// A write pushes a change with the fresh snapshot.
	if err := m.Set("count", 5); err != nil {
		t.Fatal(err)
	}
	msg = readMessage(t, conn)
	if msg.Op != "change" || msg.Key != "count" || msg.Value != float64(5) {
		t.Fatalf("expected change push, got %+v", msg)
	}
}

func TestLiveSetThroughSocket(t *testing.T) {
	srv, _ := newTestServer(t)
	conn, cleanup := dialLive(t, srv)
	defer cleanup()

	if err := conn.WriteJSON(clientMessage{Op: "watch", Keys: []string{"name"}}); err != nil {
		t.Fatal(err)
	}
	_ = readMessage(t, conn) // watched ack

	if err := conn.WriteJSON(clientMessage{Op: "set", Key: "name", Value: "b"}); err != nil {
		t.Fatal(err)
	}

	msg := readMessage(t, conn)
	if msg.Op != "change" || msg.Key != "name" || msg.Value != "b" {
		t.Fatalf("expected change push for own write, got %+v", msg)
	}
}

func TestLiveUnwatchedCellDoesNotPush(t *testing.T) {
	srv, m := newTestServer(t)
	conn, cleanup := dialLive(t, srv)
	defer cleanup()

	if err := conn.WriteJSON(clientMessage{Op: "watch", Keys: []string{"count"}}); err != nil {
		t.Fatal(err)
	}
	_ = readMessage(t, conn) // watched ack

	// Write to an unwatched cell, then to the watched one. The first push
	// to arrive must be for the watched cell only.
	m.Set("name", "z")
	m.Set("count", 1)

	msg := readMessage(t, conn)
	if msg.Key != "count" {
		t.Fatalf("unwatched cell pushed: %+v", msg)
	}
}

func TestLiveWatchUnknownKey(t *testing.T) {
	srv, _ := newTestServer(t)
	conn, cleanup := dialLive(t, srv)
	defer cleanup()

	if err := conn.WriteJSON(clientMessage{Op: "watch", Keys: []string{"nope"}}); err != nil {
		t.Fatal(err)
	}

	msg := readMessage(t, conn)
	if msg.Op != "error" || !strings.Contains(msg.Error, "unknown key") {
		t.Fatalf("expected unknown key error, got %+v", msg)
	}
}

func TestLiveCall(t *testing.T) {
	srv, _ := newTestServer(t)
	conn, cleanup := dialLive(t, srv)
	defer cleanup()

	if err := conn.WriteJSON(clientMessage{Op: "watch", Keys: []string{"count"}}); err != nil {
		t.Fatal(err)
	}
	_ = readMessage(t, conn) // watched ack

	if err := conn.WriteJSON(clientMessage{Op: "call", Key: "bump"}); err != nil {
		t.Fatal(err)
	}

	msg := readMessage(t, conn)
	if msg.Op != "change" || msg.Value != float64(1) {
		t.Fatalf("expected change from method write, got %+v", msg)
	}
}

func TestLiveUnwatchStopsPushes(t *testing.T) {
	srv, m := newTestServer(t)
	conn, cleanup := dialLive(t, srv)
	defer cleanup()

	if err := conn.WriteJSON(clientMessage{Op: "watch", Keys: []string{"count", "name"}}); err != nil {
		t.Fatal(err)
	}
	_ = readMessage(t, conn) // watched count
	_ = readMessage(t, conn) // watched name

	if err := conn.WriteJSON(clientMessage{Op: "unwatch", Keys: []string{"count"}}); err != nil {
		t.Fatal(err)
	}

	if msg := readMessage(t, conn); msg.Op != "unwatched" {
		t.Fatalf("expected unwatched ack, got %+v", msg)
	}

	m.Set("count", 9)
	m.Set("name", "q")

	msg := readMessage(t, conn)
	if msg.Key != "name" {
		t.Fatalf("expected only the still-watched cell to push, got %+v", msg)
	}
}
