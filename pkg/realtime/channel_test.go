package realtime

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/Schachte/gchat-api-reverse-engineer-sub003/pkg/auth"
	"github.com/Schachte/gchat-api-reverse-engineer-sub003/pkg/wire"
)

func newTestSession(t *testing.T) *auth.Manager {
	t.Helper()
	session, err := auth.NewManager(map[string]string{
		"SID": "a", "HSID": "b", "SSID": "c", "OSID": "d", "COMPASS": "e",
		"SAPISID": "secret",
	}, &auth.Config{CacheDir: t.TempDir()})
	if err != nil {
		t.Fatalf("NewManager() error = %v", err)
	}
	return session
}

// newStreamServer runs a websocket endpoint that forwards every inbound
// JSON frame to the returned channel and exposes the live connection.
func newStreamServer(t *testing.T) (url string, inbound chan map[string]any, conns chan *websocket.Conn) {
	t.Helper()
	inbound = make(chan map[string]any, 16)
	conns = make(chan *websocket.Conn, 4)
	upgrader := websocket.Upgrader{CheckOrigin: func(*http.Request) bool { return true }}

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		conns <- conn
		go func() {
			for {
				var frame map[string]any
				if err := conn.ReadJSON(&frame); err != nil {
					return
				}
				inbound <- frame
			}
		}()
	}))
	t.Cleanup(server.Close)
	return "ws" + strings.TrimPrefix(server.URL, "http"), inbound, conns
}

func waitEvent(t *testing.T, events chan Event, name string) Event {
	t.Helper()
	deadline := time.After(2 * time.Second)
	for {
		select {
		case event := <-events:
			if event.Name == name {
				return event
			}
		case <-deadline:
			t.Fatalf("timed out waiting for %q event", name)
		}
	}
}

func recordEvents(c *Channel, names ...string) chan Event {
	events := make(chan Event, 32)
	for _, name := range names {
		name := name
		c.On(name, func(e Event) { events <- e })
	}
	return events
}

func TestConnectLifecycle(t *testing.T) {
	url, _, _ := newStreamServer(t)
	c := NewChannel(newTestSession(t), &Config{URL: url})
	events := recordEvents(c, EventConnect, EventDisconnect)

	if err := c.Connect(context.Background()); err != nil {
		t.Fatalf("Connect() error = %v", err)
	}
	waitEvent(t, events, EventConnect)
	if !c.IsConnected() {
		t.Error("IsConnected() = false after connect")
	}

	c.Disconnect()
	waitEvent(t, events, EventDisconnect)
	if c.State() != StateDisconnected {
		t.Errorf("State() = %v, want disconnected", c.State())
	}

	// Idempotent: a second disconnect emits nothing.
	c.Disconnect()
	select {
	case event := <-events:
		t.Errorf("unexpected event %q after repeated disconnect", event.Name)
	case <-time.After(100 * time.Millisecond):
	}
}

func TestConnectFailureLeavesDisconnected(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "no upgrade here", http.StatusBadRequest)
	}))
	defer server.Close()

	c := NewChannel(newTestSession(t), &Config{
		URL: "ws" + strings.TrimPrefix(server.URL, "http"),
	})
	events := recordEvents(c, EventError)

	if err := c.Connect(context.Background()); err == nil {
		t.Fatal("Connect() should fail against a non-websocket endpoint")
	}
	waitEvent(t, events, EventError)
	if c.State() != StateDisconnected {
		t.Errorf("State() = %v, want disconnected after failed connect", c.State())
	}

	// No self-retry: reconnecting is the caller's move, and it must be
	// possible immediately.
	if c.State() != StateDisconnected {
		t.Error("channel must be reconnectable after a failed connect")
	}
}

func TestSubscribeQueuedUntilConnected(t *testing.T) {
	url, inbound, _ := newStreamServer(t)
	c := NewChannel(newTestSession(t), &Config{URL: url})

	conversations := []wire.Conversation{
		{ID: "space-1", Kind: wire.KindSpace},
		{ID: "dm-1", Kind: wire.KindDM},
	}
	if err := c.SubscribeToAll(conversations); err != nil {
		t.Fatalf("SubscribeToAll() before connect error = %v", err)
	}

	if err := c.Connect(context.Background()); err != nil {
		t.Fatalf("Connect() error = %v", err)
	}
	defer c.Disconnect()

	select {
	case frame := <-inbound:
		groups, ok := frame["2"].([]any)
		if !ok || len(groups) != 2 {
			t.Errorf("subscription frame groups = %v, want 2 entries", frame["2"])
		}
	case <-time.After(2 * time.Second):
		t.Fatal("queued subscription was not flushed on connect")
	}
}

func TestSubscribeDeduplicates(t *testing.T) {
	url, inbound, _ := newStreamServer(t)
	c := NewChannel(newTestSession(t), &Config{URL: url})
	if err := c.Connect(context.Background()); err != nil {
		t.Fatalf("Connect() error = %v", err)
	}
	defer c.Disconnect()

	conversations := []wire.Conversation{{ID: "space-1", Kind: wire.KindSpace}}
	if err := c.SubscribeToAll(conversations); err != nil {
		t.Fatal(err)
	}
	if err := c.SubscribeToAll(conversations); err != nil {
		t.Fatal(err)
	}
	// The ping acts as an ordering fence: everything the duplicate
	// subscribe would have sent must arrive before it.
	if err := c.SendPing(); err != nil {
		t.Fatal(err)
	}

	subscriptions := 0
	for {
		select {
		case frame := <-inbound:
			if _, isPing := frame["3"]; isPing {
				if subscriptions != 1 {
					t.Errorf("subscription frames = %d, want 1", subscriptions)
				}
				return
			}
			subscriptions++
		case <-time.After(2 * time.Second):
			t.Fatal("ping frame never arrived")
		}
	}
}

func TestFrameDispatch(t *testing.T) {
	url, _, conns := newStreamServer(t)
	c := NewChannel(newTestSession(t), &Config{URL: url})
	events := recordEvents(c, EventMessage, EventTyping, EventUserStatus)

	if err := c.Connect(context.Background()); err != nil {
		t.Fatalf("Connect() error = %v", err)
	}
	defer c.Disconnect()
	conn := <-conns

	frames := []string{
		`[1, [["space-1"]], ["payload"]]`,
		`[5, [["space-1"]], ["metadata"]]`,
		`[2, [["space-1"]], []]`,
	}
	for _, frame := range frames {
		if err := conn.WriteMessage(websocket.TextMessage, []byte(frame)); err != nil {
			t.Fatal(err)
		}
	}

	message := waitEvent(t, events, EventMessage)
	if message.Frame.GroupID != "space-1" {
		t.Errorf("message GroupID = %q, want space-1", message.Frame.GroupID)
	}
	// The typing frame arriving after the group-change frame proves the
	// latter was consumed internally, not dispatched.
	typing := waitEvent(t, events, EventTyping)
	if typing.Frame.Type != wire.FrameTyping {
		t.Errorf("typing frame type = %d", typing.Frame.Type)
	}
	if _, ok := c.GroupState("space-1"); !ok {
		t.Error("group-change frame should be recorded internally")
	}
}

func TestSendPingWhileDisconnected(t *testing.T) {
	c := NewChannel(newTestSession(t), &Config{URL: "ws://127.0.0.1:0"})
	events := recordEvents(c, EventError)

	err := c.SendPing()
	if !errors.Is(err, ErrNotConnected) {
		t.Fatalf("SendPing() error = %v, want ErrNotConnected", err)
	}
	event := waitEvent(t, events, EventError)
	if !errors.Is(event.Err, ErrNotConnected) {
		t.Errorf("error event carries %v, want ErrNotConnected", event.Err)
	}
}

func TestUnexpectedDropEmitsDisconnect(t *testing.T) {
	url, _, conns := newStreamServer(t)
	c := NewChannel(newTestSession(t), &Config{URL: url})
	events := recordEvents(c, EventError, EventDisconnect)

	if err := c.Connect(context.Background()); err != nil {
		t.Fatalf("Connect() error = %v", err)
	}
	conn := <-conns
	conn.Close()

	waitEvent(t, events, EventError)
	waitEvent(t, events, EventDisconnect)
	if c.State() != StateDisconnected {
		t.Errorf("State() = %v, want disconnected after drop", c.State())
	}
}
