package iap

import (
	"context"
	"net/url"
)

type PurchaseOutcome uint8

const (
	PurchaseOutcomeUnknown PurchaseOutcome = iota
	PurchaseOutcomeSuccess
	PurchaseOutcomeUserCancelled
	PurchaseOutcomePending
)

// PurchaseResult is the storefront's answer to a purchase request.
// Verification is meaningful only when Outcome is PurchaseOutcomeSuccess.
type PurchaseResult struct {
	Outcome      PurchaseOutcome
	Verification VerificationResult
}

// Storefront is the seam to the underlying platform in-app-purchase
// framework. Cryptographic receipt verification happens behind this
// interface; callers only ever see its verified/unverified outcome.
type Storefront interface {
	// Products fetches catalog entries for the given ids. Unknown ids are
	// omitted from the result rather than treated as an error.
	Products(ctx context.Context, ids []string) ([]Product, error)

	// Purchase runs the platform purchase flow for a product.
	Purchase(ctx context.Context, productID string) (PurchaseResult, error)

	// CurrentEntitlements returns a snapshot of the entitlements the
	// storefront currently considers active, including unfinished
	// consumables. This is a point-in-time read, not a live feed.
	CurrentEntitlements(ctx context.Context) ([]VerificationResult, error)

	// Updates opens the storefront's live verification feed. The returned
	// channel carries purchases, renewals and revocations as they happen and
	// is closed when ctx is cancelled. Each call opens a fresh feed; callers
	// that need fan-out must multiplex a single subscription themselves.
	Updates(ctx context.Context) (<-chan VerificationResult, error)

	// Finish acknowledges a transaction as fully processed. Idempotent on
	// the storefront side; finishing an already-finished id succeeds.
	Finish(ctx context.Context, txID uint64) error

	// CanMakePayments reports whether the user is allowed to purchase at all
	// (parental controls, MDM policy).
	CanMakePayments() bool

	// ReceiptURL returns the location of the local purchase receipt, or nil
	// where the platform has none.
	ReceiptURL() *url.URL
}

// ReviewRequester is implemented by storefronts that have a UI surface for
// soliciting an app review. Headless storefronts simply don't implement it
// and Client.RequestReview degrades to a logged no-op.
type ReviewRequester interface {
	RequestReview(ctx context.Context)
}
