package rfq

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	orderhub "github.com/orderhub-labs/orderhub-go"
)

type mockChannel struct {
	name string

	mu       sync.Mutex
	handlers map[string]map[int]Handler
	nextID   int
	unbinds  map[string]int

	outcomeEvent string
	outcomeData  json.RawMessage

	publish func(event string, payload any) error
}

func newMockChannel(name string) *mockChannel {
	return &mockChannel{
		name:     name,
		handlers: make(map[string]map[int]Handler),
		unbinds:  make(map[string]int),
	}
}

func (m *mockChannel) Name() string { return m.name }

func (m *mockChannel) Bind(event string, h Handler) func() {
	m.mu.Lock()
	id := m.nextID
	m.nextID++
	if m.handlers[event] == nil {
		m.handlers[event] = make(map[int]Handler)
	}
	m.handlers[event][id] = h

	replay := event == m.outcomeEvent && m.outcomeEvent != ""
	data := m.outcomeData
	m.mu.Unlock()

	if replay {
		h(data)
	}

	return func() {
		m.mu.Lock()
		defer m.mu.Unlock()
		if _, ok := m.handlers[event][id]; ok {
			delete(m.handlers[event], id)
			m.unbinds[event]++
		}
	}
}

func (m *mockChannel) Publish(event string, payload any) error {
	if m.publish != nil {
		return m.publish(event, payload)
	}
	return nil
}

func (m *mockChannel) emit(event string, data json.RawMessage) {
	m.mu.Lock()
	if event == EventSubscriptionSucceeded || event == EventSubscriptionError {
		m.outcomeEvent = event
		m.outcomeData = data
	}
	snapshot := make([]Handler, 0, len(m.handlers[event]))
	for _, h := range m.handlers[event] {
		snapshot = append(snapshot, h)
	}
	m.mu.Unlock()

	for _, h := range snapshot {
		h(data)
	}
}

func (m *mockChannel) unbindCount(event string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.unbinds[event]
}

type mockTransport struct {
	mu             sync.Mutex
	channels       map[string]*mockChannel
	subscribeCalls map[string]int
	unsubscribed   []string
	closeCalls     int

	autoConfirm  bool
	confirmDelay time.Duration

	// onRequest is invoked when a client-rfq.request is published on the
	// broadcast channel.
	onRequest func(payload any)
}

func newMockTransport() *mockTransport {
	return &mockTransport{
		channels:       make(map[string]*mockChannel),
		subscribeCalls: make(map[string]int),
		autoConfirm:    true,
	}
}

func (t *mockTransport) channel(name string) *mockChannel {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.channels[name]
}

func (t *mockTransport) Subscribe(name string) (Channel, error) {
	t.mu.Lock()
	t.subscribeCalls[name]++
	ch, ok := t.channels[name]
	if !ok {
		ch = newMockChannel(name)
		if name == BroadcastChannel {
			ch.publish = func(event string, payload any) error {
				if event == EventRequest && t.onRequest != nil {
					t.onRequest(payload)
				}
				return nil
			}
		}
		t.channels[name] = ch
	}
	autoConfirm, delay := t.autoConfirm, t.confirmDelay
	t.mu.Unlock()

	if autoConfirm {
		if delay > 0 {
			time.AfterFunc(delay, func() {
				ch.emit(EventSubscriptionSucceeded, nil)
			})
		} else {
			ch.emit(EventSubscriptionSucceeded, nil)
		}
	}
	return ch, nil
}

func (t *mockTransport) Unsubscribe(name string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.unsubscribed = append(t.unsubscribed, name)
	delete(t.channels, name)
}

func (t *mockTransport) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.closeCalls++
	return nil
}

func (t *mockTransport) subscribeCount(name string) int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.subscribeCalls[name]
}

func testRequest() *orderhub.QuoteRequest {
	return &orderhub.QuoteRequest{
		From: orderhub.NetworkTokens{
			Network: "ethereum",
			Tokens:  []orderhub.TokenAmount{{Address: "0xaaa", Amount: "0001000000"}},
		},
		To: orderhub.NetworkTokens{
			Network: "base",
			Tokens:  []orderhub.TokenAmount{{Address: "0xbbb", Amount: "990000"}},
		},
	}
}

func TestRequestQuote_ResolvesWithQuote(t *testing.T) {
	transport := newMockTransport()
	quotePayload := json.RawMessage(`[{"id":"q1","receiveAmount":"990000","tag":"BEST_RETURN","route":{"id":"r1","name":"direct"}}]`)

	var published *orderhub.QuoteRequest
	transport.onRequest = func(payload any) {
		published = payload.(*orderhub.QuoteRequest)
		reply := transport.channel(ChannelPrefix + published.Bucket)
		if reply == nil {
			t.Errorf("no reply channel for bucket %q", published.Bucket)
			return
		}
		reply.emit(EventQuote, quotePayload)
	}

	client := NewClient(transport)
	res, err := client.RequestQuote(context.Background(), testRequest(), nil)
	if err != nil {
		t.Fatalf("RequestQuote failed: %v", err)
	}

	if published == nil {
		t.Fatal("request was never published")
	}
	if res.Bucket != published.Bucket {
		t.Errorf("result bucket = %q, published bucket = %q", res.Bucket, published.Bucket)
	}
	if string(res.Raw) != string(quotePayload) {
		t.Errorf("raw payload = %s, want %s", res.Raw, quotePayload)
	}
	if len(res.Options) != 1 || res.Options[0].ID != "q1" {
		t.Errorf("decoded options = %+v", res.Options)
	}
	if res.Options[0].Tag != orderhub.QuoteTagBestReturn {
		t.Errorf("tag = %q, want %q", res.Options[0].Tag, orderhub.QuoteTagBestReturn)
	}

	// Amounts are reduced to canonical strings before publishing.
	if got := published.From.Tokens[0].Amount; got != "1000000" {
		t.Errorf("normalized input amount = %q, want %q", got, "1000000")
	}
}

func TestRequestQuote_Timeout(t *testing.T) {
	transport := newMockTransport()
	client := NewClient(transport)

	req := testRequest()
	req.Bucket = "quiet-bucket"

	start := time.Now()
	_, err := client.RequestQuote(context.Background(), req, &RequestOptions{Timeout: 50 * time.Millisecond})
	elapsed := time.Since(start)

	if !errors.Is(err, orderhub.ErrTimeout) {
		t.Fatalf("expected timeout error, got %v", err)
	}
	if elapsed > time.Second {
		t.Errorf("timeout took %s, want around 50ms", elapsed)
	}

	reply := transport.channel(ChannelPrefix + "quiet-bucket")
	for _, event := range []string{EventStatus, EventQuote, EventError} {
		if got := reply.unbindCount(event); got != 1 {
			t.Errorf("unbind count for %s = %d, want 1", event, got)
		}
	}
}

func TestRequestQuote_FailedStatusRejects(t *testing.T) {
	transport := newMockTransport()
	transport.onRequest = func(payload any) {
		bucket := payload.(*orderhub.QuoteRequest).Bucket
		transport.channel(ChannelPrefix+bucket).emit(EventStatus, json.RawMessage(`{"stage":"FAILED","note":"no route found"}`))
	}

	var stages []string
	client := NewClient(transport)
	_, err := client.RequestQuote(context.Background(), testRequest(), &RequestOptions{
		OnStatus: func(st StatusUpdate) { stages = append(stages, st.Stage) },
	})

	if !errors.Is(err, orderhub.ErrQuoteRejected) {
		t.Fatalf("expected rejection, got %v", err)
	}
	if !strings.Contains(err.Error(), "no route found") {
		t.Errorf("error should carry the status note, got %q", err.Error())
	}
	if len(stages) != 1 || stages[0] != "FAILED" {
		t.Errorf("status callback saw %v", stages)
	}
}

func TestRequestQuote_NonTerminalStatusForwarded(t *testing.T) {
	transport := newMockTransport()
	transport.onRequest = func(payload any) {
		bucket := payload.(*orderhub.QuoteRequest).Bucket
		reply := transport.channel(ChannelPrefix + bucket)
		reply.emit(EventStatus, json.RawMessage(`{"stage":"matching","note":"searching solvers"}`))
		reply.emit(EventQuote, json.RawMessage(`[]`))
	}

	var stages []string
	client := NewClient(transport)
	_, err := client.RequestQuote(context.Background(), testRequest(), &RequestOptions{
		OnStatus: func(st StatusUpdate) { stages = append(stages, st.Stage) },
	})
	if err != nil {
		t.Fatalf("RequestQuote failed: %v", err)
	}
	if len(stages) != 1 || stages[0] != "matching" {
		t.Errorf("status callback saw %v", stages)
	}
}

func TestRequestQuote_ErrorEventRejects(t *testing.T) {
	transport := newMockTransport()
	transport.onRequest = func(payload any) {
		bucket := payload.(*orderhub.QuoteRequest).Bucket
		transport.channel(ChannelPrefix+bucket).emit(EventError, json.RawMessage(`"solver exploded"`))
	}

	var forwarded error
	client := NewClient(transport)
	_, err := client.RequestQuote(context.Background(), testRequest(), &RequestOptions{
		OnError: func(e error) { forwarded = e },
	})

	if !errors.Is(err, orderhub.ErrQuoteRejected) {
		t.Fatalf("expected rejection, got %v", err)
	}
	if forwarded == nil {
		t.Error("error callback was not invoked")
	}
}

func TestRequestQuote_InvalidAmountRejectedBeforePublish(t *testing.T) {
	transport := newMockTransport()
	published := false
	transport.onRequest = func(any) { published = true }

	client := NewClient(transport)
	req := testRequest()
	req.From.Tokens[0].Amount = "1.5e9"

	_, err := client.RequestQuote(context.Background(), req, nil)
	if !errors.Is(err, orderhub.ErrInvalidAmount) {
		t.Fatalf("expected validation error, got %v", err)
	}
	if published {
		t.Error("malformed request must not be published")
	}
}

func TestChannelMemoization_SingleSubscribePerName(t *testing.T) {
	transport := newMockTransport()
	transport.confirmDelay = 20 * time.Millisecond
	transport.onRequest = func(payload any) {
		bucket := payload.(*orderhub.QuoteRequest).Bucket
		transport.channel(ChannelPrefix+bucket).emit(EventQuote, json.RawMessage(`[]`))
	}

	client := NewClient(transport)

	var wg sync.WaitGroup
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			req := testRequest()
			req.Bucket = "shared"
			if _, err := client.RequestQuote(context.Background(), req, nil); err != nil {
				t.Errorf("request %d failed: %v", n, err)
			}
		}(i)
	}
	wg.Wait()

	if got := transport.subscribeCount(BroadcastChannel); got != 1 {
		t.Errorf("broadcast subscribed %d times, want 1", got)
	}
	if got := transport.subscribeCount(ChannelPrefix + "shared"); got != 1 {
		t.Errorf("reply channel subscribed %d times, want 1", got)
	}
}

func TestChannelAcquisition_ConfirmationTimeoutClearsBookkeeping(t *testing.T) {
	transport := newMockTransport()
	transport.autoConfirm = false

	client := NewClient(transport, WithSubscribeTimeout(30*time.Millisecond))
	req := testRequest()
	req.Bucket = "stuck"

	_, err := client.RequestQuote(context.Background(), req, nil)
	if !errors.Is(err, orderhub.ErrSubscriptionFailed) {
		t.Fatalf("expected subscription failure, got %v", err)
	}

	transport.mu.Lock()
	unsubscribed := append([]string(nil), transport.unsubscribed...)
	transport.mu.Unlock()
	found := false
	for _, name := range unsubscribed {
		if name == ChannelPrefix+"stuck" {
			found = true
		}
	}
	if !found {
		t.Error("failed channel was not unsubscribed")
	}

	// A later attempt gets a clean subscription.
	transport.mu.Lock()
	transport.autoConfirm = true
	transport.mu.Unlock()
	transport.onRequest = func(payload any) {
		bucket := payload.(*orderhub.QuoteRequest).Bucket
		transport.channel(ChannelPrefix+bucket).emit(EventQuote, json.RawMessage(`[]`))
	}
	if _, err := client.RequestQuote(context.Background(), req, nil); err != nil {
		t.Fatalf("retry after failed acquisition: %v", err)
	}
	if got := transport.subscribeCount(ChannelPrefix + "stuck"); got != 2 {
		t.Errorf("reply channel subscribed %d times, want 2", got)
	}
}

func TestSubscriptionErrorEventRejectsAcquisition(t *testing.T) {
	transport := newMockTransport()
	transport.autoConfirm = false

	client := NewClient(transport, WithSubscribeTimeout(time.Second))

	done := make(chan error, 1)
	go func() {
		req := testRequest()
		req.Bucket = "denied"
		_, err := client.RequestQuote(context.Background(), req, nil)
		done <- err
	}()

	// Wait for the subscription attempt, then reject it.
	deadline := time.Now().Add(time.Second)
	for transport.channel(ChannelPrefix+"denied") == nil {
		if time.Now().After(deadline) {
			t.Fatal("subscription never attempted")
		}
		time.Sleep(time.Millisecond)
	}
	transport.channel(ChannelPrefix+"denied").emit(EventSubscriptionError, json.RawMessage(`"forbidden"`))

	err := <-done
	if !errors.Is(err, orderhub.ErrSubscriptionFailed) {
		t.Fatalf("expected subscription failure, got %v", err)
	}
	if !strings.Contains(err.Error(), "forbidden") {
		t.Errorf("error should carry the rejection detail, got %q", err.Error())
	}
}

func TestOnBucket_AttachAndDetach(t *testing.T) {
	transport := newMockTransport()
	client := NewClient(transport)

	quotes := make(chan json.RawMessage, 2)
	unsubscribe := client.OnBucket("watched", BucketHandlers{
		OnQuote: func(data json.RawMessage) { quotes <- data },
	})

	// The attach is asynchronous; wait for the handler to land.
	deadline := time.Now().Add(time.Second)
	for {
		if ch := transport.channel(ChannelPrefix + "watched"); ch != nil {
			ch.mu.Lock()
			bound := len(ch.handlers[EventQuote]) > 0
			ch.mu.Unlock()
			if bound {
				break
			}
		}
		if time.Now().After(deadline) {
			t.Fatal("OnBucket never attached")
		}
		time.Sleep(time.Millisecond)
	}

	transport.channel(ChannelPrefix+"watched").emit(EventQuote, json.RawMessage(`[{"id":"q9"}]`))
	select {
	case data := <-quotes:
		if !strings.Contains(string(data), "q9") {
			t.Errorf("unexpected payload %s", data)
		}
	case <-time.After(time.Second):
		t.Fatal("quote handler never fired")
	}

	unsubscribe()
	transport.channel(ChannelPrefix+"watched").emit(EventQuote, json.RawMessage(`[{"id":"q10"}]`))
	select {
	case data := <-quotes:
		t.Errorf("handler fired after unsubscribe: %s", data)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestDisconnect_Idempotent(t *testing.T) {
	transport := newMockTransport()
	transport.onRequest = func(payload any) {
		bucket := payload.(*orderhub.QuoteRequest).Bucket
		transport.channel(ChannelPrefix+bucket).emit(EventQuote, json.RawMessage(`[]`))
	}

	client := NewClient(transport)
	if _, err := client.RequestQuote(context.Background(), testRequest(), nil); err != nil {
		t.Fatalf("RequestQuote failed: %v", err)
	}

	if err := client.Disconnect(); err != nil {
		t.Fatalf("Disconnect failed: %v", err)
	}
	if err := client.Disconnect(); err != nil {
		t.Fatalf("second Disconnect failed: %v", err)
	}

	transport.mu.Lock()
	closeCalls := transport.closeCalls
	unsubscribed := len(transport.unsubscribed)
	transport.mu.Unlock()
	if closeCalls != 1 {
		t.Errorf("transport closed %d times, want 1", closeCalls)
	}
	if unsubscribed != 2 {
		t.Errorf("unsubscribed %d channels, want 2", unsubscribed)
	}

	if _, err := client.RequestQuote(context.Background(), testRequest(), nil); !errors.Is(err, orderhub.ErrClosed) {
		t.Errorf("expected closed error after disconnect, got %v", err)
	}
}

func TestNewBucket_RandomAndWellFormed(t *testing.T) {
	seen := make(map[string]bool)
	for i := 0; i < 100; i++ {
		b := NewBucket()
		if len(b) != 32 {
			t.Fatalf("bucket length = %d, want 32 hex chars", len(b))
		}
		if seen[b] {
			t.Fatalf("duplicate bucket %q", b)
		}
		seen[b] = true
	}
}
