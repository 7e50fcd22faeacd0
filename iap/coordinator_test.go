package iap_test

import (
	"context"
	"sync"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/canopy-apps/iap-client/iap"
	"github.com/canopy-apps/iap-client/iap/memory"
)

// recordingDeliverer counts callback invocations per transaction id and can
// be scripted to fail specific ids.
type recordingDeliverer struct {
	mu       sync.Mutex
	calls    map[uint64]int
	failures map[uint64]error
}

func newRecordingDeliverer() *recordingDeliverer {
	return &recordingDeliverer{
		calls:    map[uint64]int{},
		failures: map[uint64]error{},
	}
}

func (d *recordingDeliverer) failWith(txID uint64, err error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.failures[txID] = err
}

func (d *recordingDeliverer) deliver(ctx context.Context, tx iap.Transaction) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.calls[tx.ID]++
	return d.failures[tx.ID]
}

func (d *recordingDeliverer) callCount(txID uint64) int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.calls[txID]
}

func consumableTx(id uint64, productID string) iap.Transaction {
	return iap.Transaction{
		ID:                id,
		ProductID:         productID,
		ProductType:       iap.ProductTypeConsumable,
		PurchasedQuantity: 1,
	}
}

func TestCoordinator_DeliversEachConsumableOnce(t *testing.T) {
	front := memory.NewStorefront(memory.WithEntitlements(
		iap.Verified(consumableTx(1, "com.example.coins")),
		iap.Verified(consumableTx(2, "com.example.coins")),
	))
	client, deliveries := newTestClient(t, front)
	deliverer := newRecordingDeliverer()

	require.NoError(t, client.ProcessUnfinishedConsumables(context.Background(), deliverer.deliver))

	require.Equal(t, 1, deliverer.callCount(1))
	require.Equal(t, 1, deliverer.callCount(2))

	for _, id := range []uint64{1, 2} {
		delivered, err := deliveries.IsDelivered(context.Background(), id)
		require.NoError(t, err)
		require.True(t, delivered)
		require.True(t, front.Finished(id))
	}

	// The storefront dropped the finished transactions from its snapshot, so
	// a second run finds nothing to do.
	require.NoError(t, client.ProcessUnfinishedConsumables(context.Background(), deliverer.deliver))
	require.Equal(t, 1, deliverer.callCount(1))
	require.Equal(t, 1, deliverer.callCount(2))
}

func TestCoordinator_SkipsAlreadyDelivered(t *testing.T) {
	front := memory.NewStorefront(memory.WithEntitlements(
		iap.Verified(consumableTx(1, "com.example.coins")),
	))
	client, deliveries := newTestClient(t, front)
	deliverer := newRecordingDeliverer()

	// Simulates a crash after the ledger commit but before the storefront
	// finish: the record exists, the entitlement still shows up.
	require.NoError(t, deliveries.MarkDelivered(context.Background(), 1))

	require.NoError(t, client.ProcessUnfinishedConsumables(context.Background(), deliverer.deliver))
	require.Equal(t, 0, deliverer.callCount(1))
}

func TestCoordinator_IgnoresNonConsumablesAndUnverified(t *testing.T) {
	sub := iap.Transaction{ID: 3, ProductID: "com.example.plus", ProductType: iap.ProductTypeAutoRenewable}
	front := memory.NewStorefront(memory.WithEntitlements(
		iap.Verified(sub),
		iap.Unverified(consumableTx(4, "com.example.coins"), errors.New("bad signature")),
		iap.Verified(consumableTx(5, "com.example.coins")),
	))
	client, _ := newTestClient(t, front)
	deliverer := newRecordingDeliverer()

	require.NoError(t, client.ProcessUnfinishedConsumables(context.Background(), deliverer.deliver))

	require.Equal(t, 0, deliverer.callCount(3))
	require.Equal(t, 0, deliverer.callCount(4))
	require.Equal(t, 1, deliverer.callCount(5))
}

func TestCoordinator_CallbackFailureIsLocalAndRetriable(t *testing.T) {
	front := memory.NewStorefront(memory.WithEntitlements(
		iap.Verified(consumableTx(1, "com.example.coins")),
		iap.Verified(consumableTx(2, "com.example.coins")),
		iap.Verified(consumableTx(3, "com.example.coins")),
	))
	client, deliveries := newTestClient(t, front)
	deliverer := newRecordingDeliverer()
	deliverer.failWith(2, errors.New("application not ready"))

	require.NoError(t, client.ProcessUnfinishedConsumables(context.Background(), deliverer.deliver))

	// The failure on 2 did not abort 3.
	require.Equal(t, 1, deliverer.callCount(1))
	require.Equal(t, 1, deliverer.callCount(3))

	delivered, err := deliveries.IsDelivered(context.Background(), 2)
	require.NoError(t, err)
	require.False(t, delivered)
	require.False(t, front.Finished(2))

	// Next run retries only the failed transaction.
	deliverer.failWith(2, nil)
	require.NoError(t, client.ProcessUnfinishedConsumables(context.Background(), deliverer.deliver))
	require.Equal(t, 2, deliverer.callCount(2))
	require.Equal(t, 1, deliverer.callCount(1))
	require.True(t, front.Finished(2))
}

// markFailingStore fails MarkDelivered while passing reads through, to prove
// that the storefront finish never happens before the ledger commit.
type markFailingStore struct {
	iap.DeliveryStore
}

func (s *markFailingStore) MarkDelivered(ctx context.Context, txID uint64) error {
	return errors.New("disk full")
}

func TestCoordinator_LedgerCommitPrecedesFinish(t *testing.T) {
	front := memory.NewStorefront(memory.WithEntitlements(
		iap.Verified(consumableTx(1, "com.example.coins")),
	))

	client, err := iap.NewClient(
		zaptest.NewLogger(t),
		front,
		&markFailingStore{DeliveryStore: memory.NewDeliveryStore()},
	)
	require.NoError(t, err)
	t.Cleanup(client.Close)

	deliverer := newRecordingDeliverer()
	require.NoError(t, client.ProcessUnfinishedConsumables(context.Background(), deliverer.deliver))

	require.Equal(t, 1, deliverer.callCount(1))
	require.False(t, front.Finished(1))
}

func TestCoordinator_ScanFailurePropagates(t *testing.T) {
	scanErr := errors.New("entitlement service down")
	failing := &entitlementFailingStorefront{Storefront: memory.NewStorefront(), err: scanErr}

	failingClient, err := iap.NewClient(zaptest.NewLogger(t), failing, memory.NewDeliveryStore())
	require.NoError(t, err)
	t.Cleanup(failingClient.Close)

	err = failingClient.ProcessUnfinishedConsumables(context.Background(), newRecordingDeliverer().deliver)
	require.ErrorIs(t, err, scanErr)
}

type entitlementFailingStorefront struct {
	iap.Storefront
	err error
}

func (s *entitlementFailingStorefront) CurrentEntitlements(ctx context.Context) ([]iap.VerificationResult, error) {
	return nil, s.err
}
