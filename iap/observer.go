package iap

import (
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/canopy-apps/iap-client/event"
)

// ObserveTransactions returns an unbounded stream of transaction events fed
// by the client's shared update subscription. Every call gets its own
// independently consumable stream; none of them opens a second subscription.
//
// The channel is closed when the client is closed. A consumer that stops
// reading is evicted after StreamTimeout instead of stalling the feed.
func (c *Client) ObserveTransactions() <-chan TransactionEvent {
	c.streamsMu.Lock()
	defer c.streamsMu.Unlock()

	if c.closed {
		ch := make(chan TransactionEvent)
		close(ch)
		return ch
	}

	s := event.NewBufferedStream[TransactionEvent](uuid.NewString(), StreamBufferSize)
	c.streams[s.ID()] = s

	return s.Channel()
}

// pumpUpdates is the single consumer of the storefront's update feed. It
// runs until the subscription context is cancelled and the storefront closes
// the channel.
func (c *Client) pumpUpdates(updates <-chan VerificationResult) {
	defer close(c.pumpDone)

	for res := range updates {
		c.broadcast(translateUpdate(res))
	}
}

func (c *Client) broadcast(evt TransactionEvent) {
	c.streamsMu.Lock()
	streams := make([]*event.BufferedStream[TransactionEvent], 0, len(c.streams))
	for _, s := range c.streams {
		streams = append(streams, s)
	}
	c.streamsMu.Unlock()

	// Single pump goroutine, sequential notify: emission order is preserved
	// per stream.
	for _, s := range streams {
		if err := s.Notify(evt, StreamTimeout); err != nil {
			c.log.Debug("Evicting transaction event stream",
				zap.String("stream_id", s.ID()),
				zap.Error(err),
			)
			c.dropStream(s)
		}
	}
}

func (c *Client) dropStream(s *event.BufferedStream[TransactionEvent]) {
	c.streamsMu.Lock()
	if existing, ok := c.streams[s.ID()]; ok && existing == s {
		delete(c.streams, s.ID())
	}
	c.streamsMu.Unlock()

	s.Close()
}

func translateUpdate(res VerificationResult) TransactionEvent {
	switch {
	case !res.Verified():
		return TransactionEvent{Type: EventVerificationFailed, Transaction: res.Transaction, Err: res.Err}
	case res.Transaction.Revoked():
		return TransactionEvent{Type: EventRemoved, Transaction: res.Transaction}
	default:
		return TransactionEvent{Type: EventUpdated, Transaction: res.Transaction}
	}
}
