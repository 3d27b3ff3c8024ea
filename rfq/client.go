package rfq

import (
	"context"
	"encoding/json"
	"fmt"
	"math/big"
	"strings"
	"sync"
	"time"

	orderhub "github.com/orderhub-labs/orderhub-go"
)

const (
	// DefaultTimeout bounds how long RequestQuote waits for a terminal event.
	DefaultTimeout = 30 * time.Second

	// DefaultSubscribeTimeout bounds how long a channel subscription may take
	// to confirm.
	DefaultSubscribeTimeout = 5 * time.Second
)

// StatusUpdate is a progress report from the solver network. A stage of
// "failed" (case-insensitive) terminates the request with the note as the
// error message.
type StatusUpdate struct {
	Stage string `json:"stage"`
	Note  string `json:"note"`
}

// StatusHandler receives solver status updates.
type StatusHandler func(StatusUpdate)

// ErrorHandler receives solver and channel errors.
type ErrorHandler func(error)

// RequestOptions tune a single RequestQuote call.
type RequestOptions struct {
	// Bucket overrides the correlation id. When empty, the payload's bucket
	// is used, and failing that a fresh random one is generated.
	Bucket string

	// Timeout overrides the client-wide reply timeout for this call.
	Timeout time.Duration

	// OnStatus, when set, receives every status event before terminal
	// handling.
	OnStatus StatusHandler

	// OnError, when set, receives the solver error before the call rejects.
	OnError ErrorHandler
}

// QuoteResult is the terminal payload of a successful quote request.
type QuoteResult struct {
	// Bucket is the correlation id the request was published under.
	Bucket string

	// Options holds the decoded solver quotes when the payload parses as
	// such; Raw always carries the payload untouched.
	Options []orderhub.QuoteOption
	Raw     json.RawMessage
}

// BucketHandlers are the passive listeners OnBucket attaches to a reply
// channel. Nil handlers are not bound.
type BucketHandlers struct {
	OnStatus StatusHandler
	OnQuote  func(json.RawMessage)
	OnError  ErrorHandler
}

// channelEntry memoizes one channel subscription. ready is closed once the
// attempt settles; every waiter observes the shared outcome.
type channelEntry struct {
	ready chan struct{}
	ch    Channel
	err   error
}

// Client implements the one-shot request/reply exchange and passive bucket
// listening over an injected pub/sub transport. Each client owns its own
// channel bookkeeping; Disconnect tears everything down.
type Client struct {
	transport        Transport
	timeout          time.Duration
	subscribeTimeout time.Duration

	mu       sync.Mutex
	channels map[string]*channelEntry
	closed   bool
}

// ClientOption configures a Client.
type ClientOption func(*Client)

// WithTimeout sets the client-wide reply timeout.
func WithTimeout(d time.Duration) ClientOption {
	return func(c *Client) {
		if d > 0 {
			c.timeout = d
		}
	}
}

// WithSubscribeTimeout sets the subscription confirmation timeout.
func WithSubscribeTimeout(d time.Duration) ClientOption {
	return func(c *Client) {
		if d > 0 {
			c.subscribeTimeout = d
		}
	}
}

// NewClient creates an RFQ client on top of the given transport.
func NewClient(transport Transport, opts ...ClientOption) *Client {
	c := &Client{
		transport:        transport,
		timeout:          DefaultTimeout,
		subscribeTimeout: DefaultSubscribeTimeout,
		channels:         make(map[string]*channelEntry),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// channel returns the memoized handle for name, subscribing on first use.
// Concurrent callers share a single subscription attempt and its outcome.
// A failed attempt is cleared from the bookkeeping and unsubscribed so a
// later call can retry cleanly.
func (c *Client) channel(name string) (Channel, error) {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil, orderhub.NewError(orderhub.ErrCodeTransport, "client is disconnected", orderhub.ErrClosed)
	}
	if e, ok := c.channels[name]; ok {
		c.mu.Unlock()
		<-e.ready
		return e.ch, e.err
	}
	e := &channelEntry{ready: make(chan struct{})}
	c.channels[name] = e
	c.mu.Unlock()

	ch, err := c.subscribe(name)
	if err != nil {
		e.err = err

		c.mu.Lock()
		delete(c.channels, name)
		c.mu.Unlock()
		c.transport.Unsubscribe(name)

		close(e.ready)
		return nil, err
	}

	e.ch = ch
	close(e.ready)
	return ch, nil
}

// subscribe performs one subscription attempt and waits for its
// confirmation.
func (c *Client) subscribe(name string) (Channel, error) {
	ch, err := c.transport.Subscribe(name)
	if err != nil {
		return nil, orderhub.NewError(orderhub.ErrCodeTransport, "subscription failed for "+name, err)
	}

	confirmed := make(chan error, 1)
	unbindOK := ch.Bind(EventSubscriptionSucceeded, func(json.RawMessage) {
		select {
		case confirmed <- nil:
		default:
		}
	})
	defer unbindOK()

	unbindErr := ch.Bind(EventSubscriptionError, func(data json.RawMessage) {
		err := orderhub.NewError(orderhub.ErrCodeTransport,
			"subscription rejected for "+name+": "+strings.TrimSpace(string(data)), orderhub.ErrSubscriptionFailed)
		select {
		case confirmed <- err:
		default:
		}
	})
	defer unbindErr()

	timer := time.NewTimer(c.subscribeTimeout)
	defer timer.Stop()

	select {
	case err := <-confirmed:
		if err != nil {
			return nil, err
		}
		return ch, nil
	case <-timer.C:
		return nil, orderhub.NewError(orderhub.ErrCodeTransport,
			"subscription confirmation timed out for "+name, orderhub.ErrSubscriptionFailed)
	}
}

// RequestQuote publishes a normalized quote request on the broadcast channel
// and waits for the first terminal event on the bucket's reply channel: a
// quote resolves the call, a solver error or failed status rejects it, and
// the timeout rejects it when nothing arrives. Listeners and the timer are
// released exactly once whichever way the call terminates.
func (c *Client) RequestQuote(ctx context.Context, req *orderhub.QuoteRequest, opts *RequestOptions) (*QuoteResult, error) {
	if opts == nil {
		opts = &RequestOptions{}
	}

	bucket := opts.Bucket
	if bucket == "" {
		bucket = req.Bucket
	}
	if bucket == "" {
		bucket = NewBucket()
	}

	reply, err := c.channel(ChannelPrefix + bucket)
	if err != nil {
		return nil, err
	}
	broadcast, err := c.channel(BroadcastChannel)
	if err != nil {
		return nil, err
	}

	normalized, err := normalizeRequest(req, bucket)
	if err != nil {
		return nil, err
	}

	type outcome struct {
		res *QuoteResult
		err error
	}
	result := make(chan outcome, 1)
	settle := func(o outcome) {
		select {
		case result <- o:
		default:
		}
	}

	unbindStatus := reply.Bind(EventStatus, func(data json.RawMessage) {
		var st StatusUpdate
		if err := json.Unmarshal(data, &st); err != nil {
			return
		}
		if opts.OnStatus != nil {
			opts.OnStatus(st)
		}
		if strings.EqualFold(st.Stage, "failed") {
			settle(outcome{err: orderhub.NewError(orderhub.ErrCodeProtocol,
				"solver reported failure: "+st.Note, orderhub.ErrQuoteRejected)})
		}
	})
	unbindError := reply.Bind(EventError, func(data json.RawMessage) {
		err := orderhub.NewError(orderhub.ErrCodeProtocol,
			"solver error: "+strings.TrimSpace(string(data)), orderhub.ErrQuoteRejected)
		if opts.OnError != nil {
			opts.OnError(err)
		}
		settle(outcome{err: err})
	})
	unbindQuote := reply.Bind(EventQuote, func(data json.RawMessage) {
		res := &QuoteResult{
			Bucket: bucket,
			Raw:    append(json.RawMessage(nil), data...),
		}
		var options []orderhub.QuoteOption
		if err := json.Unmarshal(data, &options); err == nil {
			res.Options = options
		}
		settle(outcome{res: res})
	})

	var cleanupOnce sync.Once
	cleanup := func() {
		cleanupOnce.Do(func() {
			unbindStatus()
			unbindError()
			unbindQuote()
		})
	}
	defer cleanup()

	if err := broadcast.Publish(EventRequest, normalized); err != nil {
		return nil, orderhub.NewError(orderhub.ErrCodeTransport, "failed to publish quote request", err)
	}

	timeout := c.timeout
	if opts.Timeout > 0 {
		timeout = opts.Timeout
	}
	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case o := <-result:
		return o.res, o.err
	case <-timer.C:
		return nil, orderhub.NewError(orderhub.ErrCodeTimeout,
			fmt.Sprintf("no quote within %s for bucket %s", timeout, bucket), orderhub.ErrTimeout)
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// OnBucket passively attaches handlers to a bucket's reply channel with no
// publish side effect. It is safe to call before the channel subscription
// confirms: the attach is deferred until the channel is ready. The returned
// function detaches all handlers.
func (c *Client) OnBucket(bucket string, h BucketHandlers) func() {
	var mu sync.Mutex
	var unbinds []func()
	cancelled := false

	go func() {
		ch, err := c.channel(ChannelPrefix + bucket)
		if err != nil {
			if h.OnError != nil {
				h.OnError(err)
			}
			return
		}

		mu.Lock()
		defer mu.Unlock()
		if cancelled {
			return
		}
		if h.OnStatus != nil {
			unbinds = append(unbinds, ch.Bind(EventStatus, func(data json.RawMessage) {
				var st StatusUpdate
				if err := json.Unmarshal(data, &st); err != nil {
					return
				}
				h.OnStatus(st)
			}))
		}
		if h.OnQuote != nil {
			unbinds = append(unbinds, ch.Bind(EventQuote, func(data json.RawMessage) {
				h.OnQuote(append(json.RawMessage(nil), data...))
			}))
		}
		if h.OnError != nil {
			unbinds = append(unbinds, ch.Bind(EventError, func(data json.RawMessage) {
				h.OnError(orderhub.NewError(orderhub.ErrCodeProtocol,
					"solver error: "+strings.TrimSpace(string(data)), orderhub.ErrQuoteRejected))
			}))
		}
	}()

	return func() {
		mu.Lock()
		defer mu.Unlock()
		cancelled = true
		for _, unbind := range unbinds {
			unbind()
		}
		unbinds = nil
	}
}

// Disconnect unsubscribes every channel this client ever subscribed to,
// clears the bookkeeping and closes the transport. Idempotent.
func (c *Client) Disconnect() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	names := make([]string, 0, len(c.channels))
	for name := range c.channels {
		names = append(names, name)
	}
	c.channels = make(map[string]*channelEntry)
	c.mu.Unlock()

	for _, name := range names {
		c.transport.Unsubscribe(name)
	}
	return c.transport.Close()
}

// normalizeRequest rewrites the request with the resolved bucket and every
// token amount reduced to its canonical decimal string.
func normalizeRequest(req *orderhub.QuoteRequest, bucket string) (*orderhub.QuoteRequest, error) {
	from, err := normalizeLeg(req.From)
	if err != nil {
		return nil, err
	}
	to, err := normalizeLeg(req.To)
	if err != nil {
		return nil, err
	}
	return &orderhub.QuoteRequest{
		Bucket: bucket,
		From:   from,
		To:     to,
	}, nil
}

func normalizeLeg(leg orderhub.NetworkTokens) (orderhub.NetworkTokens, error) {
	out := orderhub.NetworkTokens{
		Network: leg.Network,
		Tokens:  make([]orderhub.TokenAmount, len(leg.Tokens)),
	}
	for i, t := range leg.Tokens {
		amount, ok := new(big.Int).SetString(strings.TrimSpace(t.Amount), 10)
		if !ok || amount.Sign() < 0 {
			return orderhub.NetworkTokens{}, orderhub.NewError(orderhub.ErrCodeValidation,
				"invalid token amount "+t.Amount, orderhub.ErrInvalidAmount)
		}
		out.Tokens[i] = orderhub.TokenAmount{
			Address: t.Address,
			Amount:  amount.String(),
		}
	}
	return out, nil
}
