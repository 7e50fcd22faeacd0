package iap

import (
	"time"

	"github.com/shopspring/decimal"
)

type ProductType uint8

const (
	ProductTypeUnknown ProductType = iota
	ProductTypeConsumable
	ProductTypeNonConsumable
	ProductTypeAutoRenewable
	ProductTypeNonRenewing
)

func (t ProductType) String() string {
	switch t {
	case ProductTypeConsumable:
		return "consumable"
	case ProductTypeNonConsumable:
		return "non_consumable"
	case ProductTypeAutoRenewable:
		return "auto_renewable"
	case ProductTypeNonRenewing:
		return "non_renewing"
	default:
		return "unknown"
	}
}

// Transaction is one purchase event as reported by the storefront. The ID is
// assigned by the storefront and never changes for the life of the record.
type Transaction struct {
	ID          uint64
	ProductID   string
	ProductType ProductType

	PurchaseDate   *time.Time
	ExpirationDate *time.Time

	// PurchasedQuantity is zero for placeholder transactions that have no
	// backing storefront record; use Quantity() when reading.
	PurchasedQuantity int

	// RevocationDate is set when the storefront later invalidated the
	// transaction (refund, family sharing revocation).
	RevocationDate *time.Time
}

// Quantity returns the purchased quantity, defaulting to 1 so placeholder
// transactions stay safe to consume.
func (t Transaction) Quantity() int {
	if t.PurchasedQuantity <= 0 {
		return 1
	}
	return t.PurchasedQuantity
}

func (t Transaction) Revoked() bool {
	return t.RevocationDate != nil
}

// Product is a read-only catalog entry. Price is an exact decimal; currency
// math on floats is how money gets lost.
type Product struct {
	ID           string
	DisplayName  string
	Description  string
	Price        decimal.Decimal
	DisplayPrice string
	Type         ProductType
}

// VerificationResult is the storefront's attestation for one transaction.
// A nil Err means the transaction is verified.
type VerificationResult struct {
	Transaction Transaction
	Err         error
}

func Verified(tx Transaction) VerificationResult {
	return VerificationResult{Transaction: tx}
}

func Unverified(tx Transaction, err error) VerificationResult {
	return VerificationResult{Transaction: tx, Err: err}
}

func (r VerificationResult) Verified() bool {
	return r.Err == nil
}

type EventType uint8

const (
	EventUpdated EventType = iota
	EventRemoved
	EventVerificationFailed
)

func (t EventType) String() string {
	switch t {
	case EventUpdated:
		return "updated"
	case EventRemoved:
		return "removed"
	case EventVerificationFailed:
		return "verification_failed"
	default:
		return "unknown"
	}
}

// TransactionEvent is one item on the live observation stream. Err is set
// only for EventVerificationFailed, in which case Transaction holds whatever
// the storefront could still decode (possibly a placeholder).
type TransactionEvent struct {
	Type        EventType
	Transaction Transaction
	Err         error
}
