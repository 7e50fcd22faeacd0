package iap

import (
	"context"
	"time"

	"github.com/pkg/errors"
)

// RestorePurchases scans the storefront's current entitlements and returns
// the verified transactions. Entries that fail verification are silently
// omitted; they surface only as events on the observation stream.
func (c *Client) RestorePurchases(ctx context.Context) ([]Transaction, error) {
	results, err := c.front.CurrentEntitlements(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "scanning entitlements")
	}

	var restored []Transaction
	for _, res := range results {
		if res.Verified() {
			restored = append(restored, res.Transaction)
		}
	}
	return restored, nil
}

// LatestTransaction returns the verified entitlement with the greatest
// expiration date, or nil when no verified entitlement exists. A missing
// expiration counts as the earliest possible instant, so a one-off purchase
// never outranks a subscription that has any expiration at all. Exact ties
// go to the transaction encountered first in the scan.
func (c *Client) LatestTransaction(ctx context.Context) (*Transaction, error) {
	results, err := c.front.CurrentEntitlements(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "scanning entitlements")
	}

	var (
		latest    *Transaction
		latestExp time.Time
	)
	for _, res := range results {
		if !res.Verified() {
			continue
		}

		var exp time.Time
		if res.Transaction.ExpirationDate != nil {
			exp = *res.Transaction.ExpirationDate
		}

		if latest == nil || exp.After(latestExp) {
			tx := res.Transaction
			latest = &tx
			latestExp = exp
		}
	}
	return latest, nil
}
