package iap

import (
	"context"

	"github.com/pkg/errors"

	"go.uber.org/zap"
)

// DeliverFunc hands one consumable transaction to the application. It may
// fail; a failed delivery is retried on the next call to
// ProcessUnfinishedConsumables.
type DeliverFunc func(ctx context.Context, tx Transaction) error

// ProcessUnfinishedConsumables walks the current entitlement snapshot and,
// for every verified consumable not yet recorded in the delivery store,
// invokes deliver at most once, then records the delivery, then finishes the
// transaction with the storefront.
//
// The ordering is load-bearing: the delivery record is committed before the
// storefront finish, so a crash between the two leaves the transaction in
// the next entitlement scan where the record check skips it. The reverse
// order would make a second delivery possible after a crash.
//
// Callback errors never abort the scan and never propagate out; each failed
// transaction simply stays eligible for the next run. Retry cadence belongs
// to the caller, typically once per app launch.
func (c *Client) ProcessUnfinishedConsumables(ctx context.Context, deliver DeliverFunc) error {
	results, err := c.front.CurrentEntitlements(ctx)
	if err != nil {
		return errors.Wrap(err, "scanning entitlements")
	}

	for _, res := range results {
		if !res.Verified() {
			continue
		}
		tx := res.Transaction
		if tx.ProductType != ProductTypeConsumable {
			continue
		}

		log := c.log.With(
			zap.Uint64("transaction_id", tx.ID),
			zap.String("product_id", tx.ProductID),
		)

		delivered, err := c.deliveries.IsDelivered(ctx, tx.ID)
		if err != nil {
			// Without a readable ledger we cannot rule out a prior delivery,
			// so skip rather than risk a duplicate.
			log.Warn("Failed to check delivery record, skipping transaction", zap.Error(err))
			continue
		}
		if delivered {
			log.Debug("Consumable already delivered, skipping")
			continue
		}

		if err := deliver(ctx, tx); err != nil {
			log.Warn("Delivery callback failed, transaction stays eligible for retry", zap.Error(err))
			continue
		}

		if err := c.deliveries.MarkDelivered(ctx, tx.ID); err != nil {
			// The application has the goods but the record didn't stick.
			// Leave the transaction unfinished; the next run re-delivers.
			log.Error("Failed to record delivery, not finishing transaction", zap.Error(err))
			continue
		}

		if err := c.front.Finish(ctx, tx.ID); err != nil {
			// The record is durable, so the redelivered transaction is
			// skipped next run. Finishing again is safe.
			log.Warn("Failed to finish transaction with storefront", zap.Error(err))
			continue
		}

		log.Info("Consumable delivered and finished")
	}

	return nil
}
