package iap

import (
	"errors"
	"fmt"
	"strings"
)

// FetchProductsError reports a failed catalog fetch. It carries the full
// requested id set so callers can disambiguate "doesn't exist" from
// "transient error" and retry precisely.
type FetchProductsError struct {
	ProductIDs []string
	Cause      error
}

func (e *FetchProductsError) Error() string {
	return fmt.Sprintf(
		"failed to fetch products [%s]: %v; check network connectivity and that the product ids are registered with the storefront",
		strings.Join(e.ProductIDs, ", "), e.Cause,
	)
}

func (e *FetchProductsError) Unwrap() error {
	return e.Cause
}

type PurchaseErrorCode uint8

const (
	PurchaseErrorUnknown PurchaseErrorCode = iota
	PurchaseErrorProductNotFound
	PurchaseErrorUserCancelled
	PurchaseErrorPending
	PurchaseErrorUnverified
)

func (c PurchaseErrorCode) String() string {
	switch c {
	case PurchaseErrorProductNotFound:
		return "product_not_found"
	case PurchaseErrorUserCancelled:
		return "user_cancelled"
	case PurchaseErrorPending:
		return "pending"
	case PurchaseErrorUnverified:
		return "unverified"
	default:
		return "unknown"
	}
}

// PurchaseError is the closed failure set for Purchase. Code is always one of
// the PurchaseError* constants; ProductID is the id the caller asked for.
type PurchaseError struct {
	Code      PurchaseErrorCode
	ProductID string
	Cause     error
}

func (e *PurchaseError) Error() string {
	switch e.Code {
	case PurchaseErrorProductNotFound:
		return fmt.Sprintf("product %q not found; check that the id is registered with the storefront", e.ProductID)
	case PurchaseErrorUserCancelled:
		// Expected user action, not a fault. No recovery suggestion.
		return fmt.Sprintf("purchase of %q was cancelled by the user", e.ProductID)
	case PurchaseErrorPending:
		return fmt.Sprintf("purchase of %q is pending approval; check back later", e.ProductID)
	case PurchaseErrorUnverified:
		return fmt.Sprintf("purchase of %q produced a transaction that failed verification: %v", e.ProductID, e.Cause)
	default:
		if e.Cause != nil {
			return fmt.Sprintf("purchase of %q failed: %v; treat as failed and re-check entitlements", e.ProductID, e.Cause)
		}
		return fmt.Sprintf("purchase of %q finished with an unrecognized result; treat as failed and re-check entitlements", e.ProductID)
	}
}

func (e *PurchaseError) Unwrap() error {
	return e.Cause
}

// IsUserCancelled reports whether err is a purchase cancellation, which most
// callers treat as a quiet non-event rather than a failure.
func IsUserCancelled(err error) bool {
	var pe *PurchaseError
	return errors.As(err, &pe) && pe.Code == PurchaseErrorUserCancelled
}
