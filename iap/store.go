package iap

import (
	"context"
	"strconv"
)

// deliveryKeyPrefix namespaces delivery flags away from any other state the
// backing store happens to hold.
const deliveryKeyPrefix = "iap.delivered."

// DeliveryKey returns the namespaced persistence key for a transaction id.
func DeliveryKey(txID uint64) string {
	return deliveryKeyPrefix + strconv.FormatUint(txID, 10)
}

// DeliveryStore is the durable ledger of consumable transactions that have
// already been handed to the application. Records are write-once: once a
// transaction id is marked delivered it stays delivered forever.
//
// Implementations must persist MarkDelivered before returning, and must be
// safe for concurrent use; the startup catch-up scan and the live observer
// can race on the same transaction id when the storefront redelivers it.
type DeliveryStore interface {
	// IsDelivered reports whether the transaction id has been delivered.
	IsDelivered(ctx context.Context, txID uint64) (bool, error)

	// MarkDelivered records the transaction id as delivered. Marking an id
	// that is already delivered is a no-op that still succeeds.
	MarkDelivered(ctx context.Context, txID uint64) error
}
