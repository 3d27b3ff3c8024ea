// Package rfq implements the request-for-quote protocol over a
// publish-subscribe transport. A request is published on the shared
// broadcast channel and solvers reply on a private per-bucket channel.
package rfq

import "encoding/json"

// Channel and event naming conventions of the solver network.
const (
	// ChannelPrefix prefixes every private reply channel name; the bucket
	// follows it.
	ChannelPrefix = "private-rfq."

	// BroadcastChannel is the shared channel quote requests are published on.
	BroadcastChannel = "private-rfq.broadcast"

	EventRequest = "client-rfq.request"
	EventStatus  = "client-rfq.status"
	EventQuote   = "client-rfq.quote"
	EventError   = "client-rfq.error"

	// Transport-level subscription outcome events, delivered on the channel
	// handle itself.
	EventSubscriptionSucceeded = "pusher:subscription_succeeded"
	EventSubscriptionError     = "pusher:subscription_error"
)

// Handler receives the raw payload of a channel event.
type Handler func(data json.RawMessage)

// Channel is a handle on a single pub/sub channel.
//
// Implementations must deliver the subscription outcome events
// (EventSubscriptionSucceeded / EventSubscriptionError) to handlers bound
// after the outcome has already arrived, so binding never races the
// confirmation.
type Channel interface {
	// Name returns the channel name.
	Name() string

	// Bind registers a handler for an event and returns a function that
	// removes exactly that registration.
	Bind(event string, h Handler) (unbind func())

	// Publish sends a client event on the channel.
	Publish(event string, payload any) error
}

// Transport is the pub/sub capability the RFQ client is built on.
type Transport interface {
	// Subscribe initiates a subscription and returns the channel handle.
	// Confirmation arrives asynchronously on the handle.
	Subscribe(channelName string) (Channel, error)

	// Unsubscribe tears down any subscription for the named channel.
	Unsubscribe(channelName string)

	// Close tears down the underlying connection.
	Close() error
}
