// Package tests holds the DeliveryStore conformance suite shared by every
// backend implementation.
package tests

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/canopy-apps/iap-client/iap"
)

func RunDeliveryStoreTests(t *testing.T, s iap.DeliveryStore, teardown func()) {
	for _, tf := range []func(t *testing.T, s iap.DeliveryStore){
		testDeliveryStore_RoundTrip,
		testDeliveryStore_MarkIsIdempotent,
		testDeliveryStore_IndependentIDs,
		testDeliveryStore_ConcurrentMarks,
	} {
		tf(t, s)
		teardown()
	}
}

func testDeliveryStore_RoundTrip(t *testing.T, s iap.DeliveryStore) {
	ctx := context.Background()

	delivered, err := s.IsDelivered(ctx, 42)
	require.NoError(t, err)
	require.False(t, delivered)

	require.NoError(t, s.MarkDelivered(ctx, 42))

	delivered, err = s.IsDelivered(ctx, 42)
	require.NoError(t, err)
	require.True(t, delivered)
}

func testDeliveryStore_MarkIsIdempotent(t *testing.T, s iap.DeliveryStore) {
	ctx := context.Background()

	require.NoError(t, s.MarkDelivered(ctx, 7))
	require.NoError(t, s.MarkDelivered(ctx, 7))

	delivered, err := s.IsDelivered(ctx, 7)
	require.NoError(t, err)
	require.True(t, delivered)
}

func testDeliveryStore_IndependentIDs(t *testing.T, s iap.DeliveryStore) {
	ctx := context.Background()

	require.NoError(t, s.MarkDelivered(ctx, 1))

	delivered, err := s.IsDelivered(ctx, 2)
	require.NoError(t, err)
	require.False(t, delivered)
}

// The startup catch-up scan and the live observer can in principle race on
// the same transaction id; concurrent marks must all succeed.
func testDeliveryStore_ConcurrentMarks(t *testing.T, s iap.DeliveryStore) {
	ctx := context.Background()

	var wg sync.WaitGroup
	errs := make(chan error, 16)
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			errs <- s.MarkDelivered(ctx, 99)
		}()
	}
	wg.Wait()
	close(errs)

	for err := range errs {
		require.NoError(t, err)
	}

	delivered, err := s.IsDelivered(ctx, 99)
	require.NoError(t, err)
	require.True(t, delivered)
}
