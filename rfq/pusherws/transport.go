// Package pusherws implements the rfq.Transport interface over a websocket
// speaking the Pusher channel protocol, which the solver network's
// private-channel naming follows.
package pusherws

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	orderhub "github.com/orderhub-labs/orderhub-go"
	"github.com/orderhub-labs/orderhub-go/rfq"
)

const (
	// DefaultConnectTimeout bounds how long Dial waits for the connection
	// to be established by the server.
	DefaultConnectTimeout = 10 * time.Second

	eventConnectionEstablished = "pusher:connection_established"
	eventSubscribe             = "pusher:subscribe"
	eventUnsubscribe           = "pusher:unsubscribe"
	eventPing                  = "pusher:ping"
	eventPong                  = "pusher:pong"
)

// Authorizer produces the auth token for a private channel subscription.
// The authentication handshake itself is external to this SDK.
type Authorizer func(socketID, channelName string) (string, error)

// wireMessage is the Pusher protocol frame.
type wireMessage struct {
	Event   string          `json:"event"`
	Channel string          `json:"channel,omitempty"`
	Data    json.RawMessage `json:"data,omitempty"`
}

// Transport is an rfq.Transport over a single websocket connection.
type Transport struct {
	authorizer     Authorizer
	dialer         *websocket.Dialer
	connectTimeout time.Duration

	conn    *websocket.Conn
	writeMu sync.Mutex

	mu       sync.Mutex
	channels map[string]*channel
	socketID string

	established chan struct{}
	done        chan struct{}
	closeOnce   sync.Once
}

// Option configures a Transport.
type Option func(*Transport)

// WithAuthorizer sets the private-channel authorizer.
func WithAuthorizer(a Authorizer) Option {
	return func(t *Transport) {
		t.authorizer = a
	}
}

// WithDialer sets a custom websocket dialer.
func WithDialer(d *websocket.Dialer) Option {
	return func(t *Transport) {
		t.dialer = d
	}
}

// WithConnectTimeout overrides the connection establishment timeout.
func WithConnectTimeout(d time.Duration) Option {
	return func(t *Transport) {
		if d > 0 {
			t.connectTimeout = d
		}
	}
}

// Dial connects to the pub/sub endpoint and waits for the server to
// establish the connection.
func Dial(ctx context.Context, endpoint string, opts ...Option) (*Transport, error) {
	t := &Transport{
		dialer:         websocket.DefaultDialer,
		connectTimeout: DefaultConnectTimeout,
		channels:       make(map[string]*channel),
		established:    make(chan struct{}),
		done:           make(chan struct{}),
	}
	for _, opt := range opts {
		opt(t)
	}

	conn, _, err := t.dialer.DialContext(ctx, endpoint, nil)
	if err != nil {
		return nil, orderhub.NewError(orderhub.ErrCodeTransport, "failed to connect to "+endpoint, err)
	}
	t.conn = conn

	go t.readLoop()

	timer := time.NewTimer(t.connectTimeout)
	defer timer.Stop()
	select {
	case <-t.established:
		return t, nil
	case <-t.done:
		t.Close()
		return nil, orderhub.NewError(orderhub.ErrCodeTransport, "connection closed before establishment", orderhub.ErrSubscriptionFailed)
	case <-timer.C:
		t.Close()
		return nil, orderhub.NewError(orderhub.ErrCodeTransport, "connection establishment timed out", orderhub.ErrSubscriptionFailed)
	case <-ctx.Done():
		t.Close()
		return nil, ctx.Err()
	}
}

// Subscribe implements rfq.Transport. The subscription outcome arrives
// asynchronously on the returned channel handle.
func (t *Transport) Subscribe(channelName string) (rfq.Channel, error) {
	t.mu.Lock()
	ch, ok := t.channels[channelName]
	if !ok {
		ch = newChannel(t, channelName)
		t.channels[channelName] = ch
	}
	socketID := t.socketID
	t.mu.Unlock()
	if ok {
		return ch, nil
	}

	auth := ""
	if strings.HasPrefix(channelName, "private-") && t.authorizer != nil {
		a, err := t.authorizer(socketID, channelName)
		if err != nil {
			t.mu.Lock()
			delete(t.channels, channelName)
			t.mu.Unlock()
			return nil, orderhub.NewError(orderhub.ErrCodeTransport, "channel authorization failed for "+channelName, err)
		}
		auth = a
	}

	payload, err := json.Marshal(map[string]string{
		"channel": channelName,
		"auth":    auth,
	})
	if err != nil {
		return nil, err
	}
	if err := t.send(wireMessage{Event: eventSubscribe, Data: payload}); err != nil {
		t.mu.Lock()
		delete(t.channels, channelName)
		t.mu.Unlock()
		return nil, err
	}

	return ch, nil
}

// Unsubscribe implements rfq.Transport.
func (t *Transport) Unsubscribe(channelName string) {
	t.mu.Lock()
	_, ok := t.channels[channelName]
	delete(t.channels, channelName)
	t.mu.Unlock()
	if !ok {
		return
	}

	payload, _ := json.Marshal(map[string]string{"channel": channelName})
	// Best effort: the connection may already be gone.
	_ = t.send(wireMessage{Event: eventUnsubscribe, Data: payload})
}

// Close implements rfq.Transport. Idempotent.
func (t *Transport) Close() error {
	var err error
	t.closeOnce.Do(func() {
		close(t.done)
		err = t.conn.Close()
	})
	return err
}

func (t *Transport) send(msg wireMessage) error {
	select {
	case <-t.done:
		return orderhub.NewError(orderhub.ErrCodeTransport, "connection closed", orderhub.ErrClosed)
	default:
	}

	t.writeMu.Lock()
	defer t.writeMu.Unlock()
	if err := t.conn.WriteJSON(msg); err != nil {
		return orderhub.NewError(orderhub.ErrCodeTransport, "failed to send "+msg.Event, err)
	}
	return nil
}

func (t *Transport) readLoop() {
	for {
		_, raw, err := t.conn.ReadMessage()
		if err != nil {
			t.Close()
			return
		}

		var msg wireMessage
		if err := json.Unmarshal(raw, &msg); err != nil {
			continue
		}
		data := unwrapData(msg.Data)

		switch msg.Event {
		case eventConnectionEstablished:
			var info struct {
				SocketID string `json:"socket_id"`
			}
			_ = json.Unmarshal(data, &info)

			t.mu.Lock()
			first := t.socketID == ""
			t.socketID = info.SocketID
			t.mu.Unlock()
			if first {
				close(t.established)
			}
		case eventPing:
			_ = t.send(wireMessage{Event: eventPong})
		default:
			// The server reports subscription outcomes under the
			// pusher_internal prefix; surface them under the public one.
			event := strings.Replace(msg.Event, "pusher_internal:", "pusher:", 1)

			t.mu.Lock()
			ch := t.channels[msg.Channel]
			t.mu.Unlock()
			if ch != nil {
				ch.dispatch(event, data)
			}
		}
	}
}

// unwrapData unpacks the double-encoded data field the Pusher protocol uses
// for event payloads: a JSON string containing JSON.
func unwrapData(data json.RawMessage) json.RawMessage {
	if len(data) == 0 || data[0] != '"' {
		return data
	}
	var inner string
	if err := json.Unmarshal(data, &inner); err != nil {
		return data
	}
	return json.RawMessage(inner)
}

// channel is the handle for one subscribed channel. It records the
// subscription outcome so handlers bound after confirmation still observe
// it.
type channel struct {
	transport *Transport
	name      string

	mu       sync.Mutex
	bindings map[string]map[int]rfq.Handler
	nextID   int

	outcomeEvent string
	outcomeData  json.RawMessage
}

func newChannel(t *Transport, name string) *channel {
	return &channel{
		transport: t,
		name:      name,
		bindings:  make(map[string]map[int]rfq.Handler),
	}
}

// Name implements rfq.Channel.
func (ch *channel) Name() string {
	return ch.name
}

// Bind implements rfq.Channel.
func (ch *channel) Bind(event string, h rfq.Handler) func() {
	ch.mu.Lock()
	id := ch.nextID
	ch.nextID++
	if ch.bindings[event] == nil {
		ch.bindings[event] = make(map[int]rfq.Handler)
	}
	ch.bindings[event][id] = h

	var replay json.RawMessage
	doReplay := event == ch.outcomeEvent && ch.outcomeEvent != ""
	if doReplay {
		replay = ch.outcomeData
	}
	ch.mu.Unlock()

	if doReplay {
		h(replay)
	}

	return func() {
		ch.mu.Lock()
		defer ch.mu.Unlock()
		delete(ch.bindings[event], id)
	}
}

// Publish implements rfq.Channel by sending a client event.
func (ch *channel) Publish(event string, payload any) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return orderhub.NewError(orderhub.ErrCodeValidation, fmt.Sprintf("failed to encode %s payload", event), err)
	}
	return ch.transport.send(wireMessage{Event: event, Channel: ch.name, Data: data})
}

func (ch *channel) dispatch(event string, data json.RawMessage) {
	ch.mu.Lock()
	if event == rfq.EventSubscriptionSucceeded || event == rfq.EventSubscriptionError {
		ch.outcomeEvent = event
		ch.outcomeData = data
	}
	handlers := make([]rfq.Handler, 0, len(ch.bindings[event]))
	for _, h := range ch.bindings[event] {
		handlers = append(handlers, h)
	}
	ch.mu.Unlock()

	for _, h := range handlers {
		h(data)
	}
}
