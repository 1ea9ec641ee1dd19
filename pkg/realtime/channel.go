package realtime

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"sync"

	"github.com/gorilla/websocket"

	"github.com/Schachte/gchat-api-reverse-engineer-sub003/pkg/auth"
	"github.com/Schachte/gchat-api-reverse-engineer-sub003/pkg/wire"
)

// ErrNotConnected reports a send attempted while the stream is down.
var ErrNotConnected = errors.New("realtime channel not connected")

// Channel states.
type State int

const (
	StateDisconnected State = iota
	StateConnecting
	StateConnected
)

func (s State) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	default:
		return "disconnected"
	}
}

// Event names for On subscriptions. Group-change frames are consumed
// internally and never rebroadcast.
const (
	EventConnect     = "connect"
	EventDisconnect  = "disconnect"
	EventMessage     = "message"
	EventTyping      = "typing"
	EventReadReceipt = "readReceipt"
	EventUserStatus  = "userStatus"
	EventError       = "error"
)

// Event is one delivery to a registered handler. Frame is set for
// stream-frame events, Err for error events.
type Event struct {
	Name  string
	Frame *wire.StreamFrame
	Err   error
}

// Handler receives channel events.
type Handler func(Event)

// Config holds realtime channel configuration.
type Config struct {
	URL       string // websocket endpoint, ws:// or wss://
	Origin    string
	UserAgent string
	Dialer    *websocket.Dialer
}

// DefaultConfig returns the default channel configuration.
func DefaultConfig() *Config {
	return &Config{
		URL:       "wss://chat.google.com/u/0/webchannel/events",
		Origin:    auth.DefaultOrigin,
		UserAgent: auth.DefaultUserAgent,
	}
}

// Channel is a persistent push stream. It does not self-schedule pings
// and does not retry a failed connect; both are caller concerns, so
// ping cadence can be coupled to a presence-refresh cadence and
// reconnect policy stays in one place.
type Channel struct {
	config  *Config
	session *auth.Manager

	mu            sync.Mutex
	state         State
	conn          *websocket.Conn
	subscribed    map[string]bool
	pending       []wire.Conversation
	handlers      map[string]map[int]Handler
	nextHandlerID int

	// Internal bookkeeping from group-change frames: conversation id to
	// the latest change frame seen for it.
	groupState map[string]wire.Node
}

// NewChannel creates a disconnected channel on top of a session manager.
func NewChannel(session *auth.Manager, config *Config) *Channel {
	if config == nil {
		config = DefaultConfig()
	}
	if config.Origin == "" {
		config.Origin = auth.DefaultOrigin
	}
	if config.UserAgent == "" {
		config.UserAgent = auth.DefaultUserAgent
	}
	return &Channel{
		config:     config,
		session:    session,
		subscribed: make(map[string]bool),
		handlers:   make(map[string]map[int]Handler),
		groupState: make(map[string]wire.Node),
	}
}

// State returns the current connection state.
func (c *Channel) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// IsConnected reports whether the stream is live.
func (c *Channel) IsConnected() bool {
	return c.State() == StateConnected
}

// On registers a handler for an event name and returns its unsubscribe
// function.
func (c *Channel) On(event string, handler Handler) func() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.handlers[event] == nil {
		c.handlers[event] = make(map[int]Handler)
	}
	id := c.nextHandlerID
	c.nextHandlerID++
	c.handlers[event][id] = handler

	return func() {
		c.mu.Lock()
		defer c.mu.Unlock()
		delete(c.handlers[event], id)
	}
}

// emit delivers an event to every handler registered for its name.
// Handlers run without the channel lock held.
func (c *Channel) emit(event Event) {
	c.mu.Lock()
	targets := make([]Handler, 0, len(c.handlers[event.Name]))
	for _, h := range c.handlers[event.Name] {
		targets = append(targets, h)
	}
	c.mu.Unlock()

	for _, h := range targets {
		h(event)
	}
}

// Connect opens the stream. A failure emits an error event and leaves
// the channel disconnected; the caller decides whether to call Connect
// again.
func (c *Channel) Connect(ctx context.Context) error {
	c.mu.Lock()
	if c.state != StateDisconnected {
		c.mu.Unlock()
		return fmt.Errorf("connect while %s", c.state)
	}
	c.state = StateConnecting
	c.mu.Unlock()

	dialer := c.config.Dialer
	if dialer == nil {
		dialer = websocket.DefaultDialer
	}
	header := http.Header{}
	header.Set("Cookie", c.session.CookieHeader())
	header.Set("User-Agent", c.config.UserAgent)
	header.Set("Origin", c.config.Origin)

	conn, resp, err := dialer.DialContext(ctx, c.config.URL, header)
	if resp != nil && resp.Body != nil {
		resp.Body.Close()
	}
	if err != nil {
		c.mu.Lock()
		c.state = StateDisconnected
		c.mu.Unlock()
		err = fmt.Errorf("stream connect: %w", err)
		c.emit(Event{Name: EventError, Err: err})
		return err
	}

	c.mu.Lock()
	c.conn = conn
	c.state = StateConnected
	pending := c.pending
	c.pending = nil
	c.mu.Unlock()

	c.emit(Event{Name: EventConnect})
	go c.readLoop(conn)

	if len(pending) > 0 {
		if err := c.SubscribeToAll(pending); err != nil {
			c.emit(Event{Name: EventError, Err: err})
		}
	}
	return nil
}

// SubscribeToAll subscribes the stream to the given conversations.
// While disconnected the set is queued and flushed on connect. Already
// subscribed conversations are skipped with a log line rather than
// re-sent.
func (c *Channel) SubscribeToAll(conversations []wire.Conversation) error {
	c.mu.Lock()
	if c.state != StateConnected {
		for _, conversation := range conversations {
			c.pending = append(c.pending, conversation)
		}
		c.mu.Unlock()
		return nil
	}

	fresh := make([]wire.Conversation, 0, len(conversations))
	for _, conversation := range conversations {
		if c.subscribed[conversation.ID] {
			log.Printf("⚠️  Already subscribed to %s, skipping", conversation.ID)
			continue
		}
		c.subscribed[conversation.ID] = true
		fresh = append(fresh, conversation)
	}
	conn := c.conn
	c.mu.Unlock()

	if len(fresh) == 0 {
		return nil
	}
	if err := conn.WriteJSON(wire.EncodeStreamSubscribe(fresh)); err != nil {
		err = fmt.Errorf("sending subscription frame: %w", err)
		c.emit(Event{Name: EventError, Err: err})
		return err
	}
	return nil
}

// SendPing sends one application-level keep-alive. Callers drive this on
// their own interval. A ping while disconnected is reported through the
// error event as well as the return value.
func (c *Channel) SendPing() error {
	c.mu.Lock()
	conn := c.conn
	connected := c.state == StateConnected
	c.mu.Unlock()

	if !connected {
		c.emit(Event{Name: EventError, Err: ErrNotConnected})
		return ErrNotConnected
	}
	if err := conn.WriteJSON(wire.EncodeStreamPing()); err != nil {
		err = fmt.Errorf("sending ping: %w", err)
		c.emit(Event{Name: EventError, Err: err})
		return err
	}
	return nil
}

// Disconnect closes the stream. Safe to call repeatedly; only the first
// call emits the disconnect event.
func (c *Channel) Disconnect() {
	c.mu.Lock()
	if c.state == StateDisconnected {
		c.mu.Unlock()
		return
	}
	conn := c.conn
	c.conn = nil
	c.state = StateDisconnected
	c.subscribed = make(map[string]bool)
	c.mu.Unlock()

	if conn != nil {
		conn.Close()
	}
	c.emit(Event{Name: EventDisconnect})
}

// readLoop pumps incoming frames until the connection drops. An
// unexpected drop emits error then disconnect; an explicit Disconnect
// already emitted disconnect, so the loop just exits.
func (c *Channel) readLoop(conn *websocket.Conn) {
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			c.mu.Lock()
			expected := c.conn != conn
			if !expected {
				c.conn = nil
				c.state = StateDisconnected
				c.subscribed = make(map[string]bool)
			}
			c.mu.Unlock()

			if !expected {
				c.emit(Event{Name: EventError, Err: fmt.Errorf("stream dropped: %w", err)})
				c.emit(Event{Name: EventDisconnect})
			}
			return
		}
		c.dispatch(data)
	}
}

// dispatch decodes one push frame and routes it by its type
// discriminator.
func (c *Channel) dispatch(data []byte) {
	frame, err := wire.DecodeStreamFrame(data)
	if err != nil {
		c.emit(Event{Name: EventError, Err: err})
		return
	}

	switch frame.Type {
	case wire.FrameMessage:
		c.emit(Event{Name: EventMessage, Frame: frame})
	case wire.FrameTyping:
		c.emit(Event{Name: EventTyping, Frame: frame})
	case wire.FrameReadReceipt:
		c.emit(Event{Name: EventReadReceipt, Frame: frame})
	case wire.FrameUserStatus:
		c.emit(Event{Name: EventUserStatus, Frame: frame})
	case wire.FrameGroupChanged:
		// Conversation metadata, not user content. Recorded for internal
		// state only, never rebroadcast.
		c.mu.Lock()
		c.groupState[frame.GroupID] = frame.Body
		c.mu.Unlock()
	default:
		log.Printf("⚠️  Unknown stream frame type %d, dropping", frame.Type)
	}
}

// GroupState returns the latest group-change payload recorded for a
// conversation, if any.
func (c *Channel) GroupState(conversationID string) (wire.Node, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	node, ok := c.groupState[conversationID]
	return node, ok
}
