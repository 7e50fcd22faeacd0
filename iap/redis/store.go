// Package redis implements iap.DeliveryStore on Redis. Delivery flags are
// plain keys with no expiry: once delivered, always delivered.
package redis

import (
	"context"

	"github.com/pkg/errors"
	"github.com/redis/go-redis/v9"

	"github.com/canopy-apps/iap-client/iap"
)

type store struct {
	client *redis.Client
}

func NewDeliveryStore(client *redis.Client) iap.DeliveryStore {
	return &store{
		client: client,
	}
}

func (s *store) reset() {
	if err := s.client.FlushDB(context.Background()).Err(); err != nil {
		panic(err)
	}
}

func (s *store) IsDelivered(ctx context.Context, txID uint64) (bool, error) {
	n, err := s.client.Exists(ctx, iap.DeliveryKey(txID)).Result()
	if err != nil {
		return false, errors.Wrap(err, "checking delivery flag")
	}
	return n > 0, nil
}

func (s *store) MarkDelivered(ctx context.Context, txID uint64) error {
	// SET is naturally idempotent; re-marking just rewrites the same flag.
	if err := s.client.Set(ctx, iap.DeliveryKey(txID), "1", 0).Err(); err != nil {
		return errors.Wrap(err, "writing delivery flag")
	}
	return nil
}
