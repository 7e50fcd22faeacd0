// Package memory provides in-memory implementations of the iap seams: a
// DeliveryStore backed by a map and a scenario-driven Storefront for tests,
// demos, and platforms without a real purchase framework.
package memory

import (
	"context"
	"net/url"
	"sync"
	"time"

	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"golang.org/x/text/currency"
	"golang.org/x/text/language"
	"golang.org/x/text/message"

	"github.com/canopy-apps/iap-client/iap"
)

const updateBufferSize = 16

// Storefront is an in-memory iap.Storefront. Scenarios are composed from
// options: a product catalog, a starting entitlement set, and scripted
// purchase outcomes per product id. Successful unscripted purchases mint a
// fresh transaction, add it to the entitlement set, and emit it on every
// open update feed, which is enough to exercise the full client surface.
type Storefront struct {
	mu sync.Mutex

	products     map[string]iap.Product
	productsErr  error
	entitlements []iap.VerificationResult

	purchaseResults map[string]iap.PurchaseResult
	purchaseErrs    map[string]error

	finished map[uint64]bool
	nextID   uint64

	subs    map[int]chan iap.VerificationResult
	nextSub int

	paymentsAllowed bool
	receiptURL      *url.URL
	reviewRequests  int
}

type Option func(*Storefront)

func WithProducts(products ...iap.Product) Option {
	return func(s *Storefront) {
		for _, p := range products {
			s.products[p.ID] = p
		}
	}
}

// WithProductsError makes every catalog fetch fail, simulating a network or
// storefront outage.
func WithProductsError(err error) Option {
	return func(s *Storefront) {
		s.productsErr = err
	}
}

func WithEntitlements(results ...iap.VerificationResult) Option {
	return func(s *Storefront) {
		s.entitlements = append(s.entitlements, results...)
	}
}

// WithPurchaseResult scripts the outcome of purchasing a product id.
func WithPurchaseResult(productID string, result iap.PurchaseResult) Option {
	return func(s *Storefront) {
		s.purchaseResults[productID] = result
	}
}

// WithPurchaseError makes purchasing a product id fail outright.
func WithPurchaseError(productID string, err error) Option {
	return func(s *Storefront) {
		s.purchaseErrs[productID] = err
	}
}

func WithPaymentsDisabled() Option {
	return func(s *Storefront) {
		s.paymentsAllowed = false
	}
}

func WithReceiptURL(u *url.URL) Option {
	return func(s *Storefront) {
		s.receiptURL = u
	}
}

func NewStorefront(opts ...Option) *Storefront {
	s := &Storefront{
		products:        map[string]iap.Product{},
		purchaseResults: map[string]iap.PurchaseResult{},
		purchaseErrs:    map[string]error{},
		finished:        map[uint64]bool{},
		subs:            map[int]chan iap.VerificationResult{},
		paymentsAllowed: true,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Storefront) Products(ctx context.Context, ids []string) ([]iap.Product, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.productsErr != nil {
		return nil, s.productsErr
	}

	var out []iap.Product
	for _, id := range ids {
		if p, ok := s.products[id]; ok {
			out = append(out, p)
		}
	}
	return out, nil
}

func (s *Storefront) Purchase(ctx context.Context, productID string) (iap.PurchaseResult, error) {
	s.mu.Lock()

	if err, ok := s.purchaseErrs[productID]; ok {
		s.mu.Unlock()
		return iap.PurchaseResult{}, err
	}
	if result, ok := s.purchaseResults[productID]; ok {
		s.mu.Unlock()
		return result, nil
	}

	product, ok := s.products[productID]
	if !ok {
		s.mu.Unlock()
		return iap.PurchaseResult{}, errors.Errorf("unknown product %q", productID)
	}

	tx := s.mintLocked(product)
	verification := iap.Verified(tx)
	s.entitlements = append(s.entitlements, verification)
	s.mu.Unlock()

	s.EmitUpdate(verification)

	return iap.PurchaseResult{
		Outcome:      iap.PurchaseOutcomeSuccess,
		Verification: verification,
	}, nil
}

func (s *Storefront) mintLocked(product iap.Product) iap.Transaction {
	s.nextID++
	now := time.Now()
	return iap.Transaction{
		ID:                s.nextID,
		ProductID:         product.ID,
		ProductType:       product.Type,
		PurchaseDate:      &now,
		PurchasedQuantity: 1,
	}
}

func (s *Storefront) CurrentEntitlements(ctx context.Context) ([]iap.VerificationResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	snapshot := make([]iap.VerificationResult, len(s.entitlements))
	copy(snapshot, s.entitlements)
	return snapshot, nil
}

func (s *Storefront) Updates(ctx context.Context) (<-chan iap.VerificationResult, error) {
	s.mu.Lock()
	id := s.nextSub
	s.nextSub++
	ch := make(chan iap.VerificationResult, updateBufferSize)
	s.subs[id] = ch
	s.mu.Unlock()

	go func() {
		<-ctx.Done()
		s.mu.Lock()
		delete(s.subs, id)
		s.mu.Unlock()
		close(ch)
	}()

	return ch, nil
}

// EmitUpdate pushes a verification result onto every open update feed, in
// the same order for all of them.
func (s *Storefront) EmitUpdate(res iap.VerificationResult) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, ch := range s.subs {
		select {
		case ch <- res:
		default:
			// Feed buffer is full; the subscriber stopped reading.
		}
	}
}

func (s *Storefront) Finish(ctx context.Context, txID uint64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.finished[txID] = true

	remaining := s.entitlements[:0]
	for _, res := range s.entitlements {
		if res.Transaction.ID != txID {
			remaining = append(remaining, res)
		}
	}
	s.entitlements = remaining

	return nil
}

// Finished reports whether Finish was called for the transaction id.
func (s *Storefront) Finished(txID uint64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.finished[txID]
}

func (s *Storefront) CanMakePayments() bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.paymentsAllowed
}

func (s *Storefront) ReceiptURL() *url.URL {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.receiptURL
}

func (s *Storefront) RequestReview(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.reviewRequests++
}

// ReviewRequests returns how many times RequestReview was invoked.
func (s *Storefront) ReviewRequests() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.reviewRequests
}

// FormatDisplayPrice renders an exact decimal price as a locale-formatted
// string, e.g. "$4.99" for USD in English. Unknown currency codes fall back
// to the bare decimal.
func FormatDisplayPrice(price decimal.Decimal, currencyCode string, lang language.Tag) string {
	unit, err := currency.ParseISO(currencyCode)
	if err != nil {
		return price.String()
	}

	amount, _ := price.Float64()
	return message.NewPrinter(lang).Sprintf("%v", currency.Symbol(unit.Amount(amount)))
}
