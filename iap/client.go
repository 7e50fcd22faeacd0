package iap

import (
	"context"
	"net/url"
	"sync"
	"time"

	"github.com/ReneKroon/ttlcache"
	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/canopy-apps/iap-client/event"
)

const (
	// StreamBufferSize is deliberately 1: a single-item handoff keeps memory
	// bounded and keeps removed events causally after their updated events.
	StreamBufferSize = 1
	StreamTimeout    = time.Second

	ProductCacheTTL = 5 * time.Minute
)

// Client wraps a Storefront with product loading, purchasing, entitlement
// restore, live transaction observation, and exactly-once consumable
// delivery backed by a DeliveryStore.
//
// A Client owns one subscription to the storefront's update feed for its
// whole lifetime; Close tears it down.
type Client struct {
	log        *zap.Logger
	front      Storefront
	deliveries DeliveryStore

	products *ttlcache.Cache

	cancel    context.CancelFunc
	pumpDone  chan struct{}
	closeOnce sync.Once

	streamsMu sync.Mutex
	streams   map[string]*event.BufferedStream[TransactionEvent]
	closed    bool
}

func NewClient(log *zap.Logger, front Storefront, deliveries DeliveryStore) (*Client, error) {
	ctx, cancel := context.WithCancel(context.Background())

	// A single long-lived subscription, shared by every ObserveTransactions
	// call. Opening one per call would double-count events.
	updates, err := front.Updates(ctx)
	if err != nil {
		cancel()
		return nil, errors.Wrap(err, "subscribing to storefront updates")
	}

	products := ttlcache.NewCache()
	products.SetTTL(ProductCacheTTL)

	c := &Client{
		log:        log,
		front:      front,
		deliveries: deliveries,
		products:   products,
		cancel:     cancel,
		pumpDone:   make(chan struct{}),
		streams:    make(map[string]*event.BufferedStream[TransactionEvent]),
	}

	go c.pumpUpdates(updates)

	return c, nil
}

// Close cancels the update subscription, waits for in-flight event
// production to stop, and terminates every observation stream. Safe to call
// more than once.
func (c *Client) Close() {
	c.closeOnce.Do(func() {
		c.cancel()
		<-c.pumpDone

		c.streamsMu.Lock()
		c.closed = true
		streams := make([]*event.BufferedStream[TransactionEvent], 0, len(c.streams))
		for _, s := range c.streams {
			streams = append(streams, s)
		}
		c.streams = nil
		c.streamsMu.Unlock()

		for _, s := range streams {
			s.Close()
		}

		c.log.Debug("IAP client closed")
	})
}

func (c *Client) CanMakePayments() bool {
	return c.front.CanMakePayments()
}

func (c *Client) ReceiptURL() *url.URL {
	return c.front.ReceiptURL()
}

// RequestReview asks the storefront to show its review prompt. Storefronts
// without a UI surface don't implement ReviewRequester and the call is a
// logged no-op rather than an error.
func (c *Client) RequestReview(ctx context.Context) {
	rr, ok := c.front.(ReviewRequester)
	if !ok {
		c.log.Debug("Storefront has no review surface, ignoring review request")
		return
	}
	rr.RequestReview(ctx)
}

// LoadProducts resolves catalog entries for the given ids, memoizing per id.
// Ids the storefront doesn't know are omitted from the result. A fetch
// failure is reported as a *FetchProductsError carrying the requested set.
func (c *Client) LoadProducts(ctx context.Context, ids []string) ([]Product, error) {
	// Ids form a set; dedupe but keep first-seen order for the result.
	seen := make(map[string]struct{}, len(ids))
	ordered := make([]string, 0, len(ids))
	for _, id := range ids {
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		ordered = append(ordered, id)
	}

	found := make(map[string]Product, len(ordered))
	var missing []string
	for _, id := range ordered {
		if cached, ok := c.products.Get(id); ok {
			found[id] = cached.(Product)
		} else {
			missing = append(missing, id)
		}
	}

	if len(missing) > 0 {
		fetched, err := c.front.Products(ctx, missing)
		if err != nil {
			return nil, &FetchProductsError{ProductIDs: ordered, Cause: err}
		}
		for _, p := range fetched {
			c.products.Set(p.ID, p)
			found[p.ID] = p
		}
	}

	out := make([]Product, 0, len(found))
	for _, id := range ordered {
		if p, ok := found[id]; ok {
			out = append(out, p)
		}
	}
	return out, nil
}

// Purchase runs the storefront purchase flow for a product and returns the
// verified transaction. Failures are *PurchaseError values except for
// catalog fetch problems, which surface as *FetchProductsError.
func (c *Client) Purchase(ctx context.Context, productID string) (Transaction, error) {
	products, err := c.LoadProducts(ctx, []string{productID})
	if err != nil {
		return Transaction{}, err
	}
	if len(products) == 0 {
		return Transaction{}, &PurchaseError{Code: PurchaseErrorProductNotFound, ProductID: productID}
	}

	result, err := c.front.Purchase(ctx, productID)
	if err != nil {
		// Keep the closed taxonomy: transport-level failures surface under
		// the catch-all code with the cause attached.
		return Transaction{}, &PurchaseError{Code: PurchaseErrorUnknown, ProductID: productID, Cause: err}
	}

	switch result.Outcome {
	case PurchaseOutcomeSuccess:
		if !result.Verification.Verified() {
			// Never treat an unverifiable transaction as a success.
			return Transaction{}, &PurchaseError{
				Code:      PurchaseErrorUnverified,
				ProductID: productID,
				Cause:     result.Verification.Err,
			}
		}
		tx := result.Verification.Transaction
		c.log.Info("Purchase completed",
			zap.Uint64("transaction_id", tx.ID),
			zap.String("product_id", tx.ProductID),
		)
		return tx, nil

	case PurchaseOutcomeUserCancelled:
		return Transaction{}, &PurchaseError{Code: PurchaseErrorUserCancelled, ProductID: productID}

	case PurchaseOutcomePending:
		return Transaction{}, &PurchaseError{Code: PurchaseErrorPending, ProductID: productID}

	default:
		// Forward-compatibility catch-all: an outcome added by a newer
		// storefront must not silently look like success.
		return Transaction{}, &PurchaseError{Code: PurchaseErrorUnknown, ProductID: productID}
	}
}
