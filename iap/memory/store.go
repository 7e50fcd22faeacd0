package memory

import (
	"context"
	"sync"

	"github.com/canopy-apps/iap-client/iap"
)

type DeliveryStore struct {
	mu        sync.RWMutex
	delivered map[string]bool
}

func NewDeliveryStore() iap.DeliveryStore {
	return &DeliveryStore{
		delivered: map[string]bool{},
	}
}

func (s *DeliveryStore) reset() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.delivered = make(map[string]bool)
}

func (s *DeliveryStore) IsDelivered(ctx context.Context, txID uint64) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.delivered[iap.DeliveryKey(txID)], nil
}

func (s *DeliveryStore) MarkDelivered(ctx context.Context, txID uint64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.delivered[iap.DeliveryKey(txID)] = true
	return nil
}
