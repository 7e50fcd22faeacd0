package testutil

import (
	"context"
	"fmt"

	"github.com/ory/dockertest/v3"
	"github.com/pkg/errors"
	"github.com/redis/go-redis/v9"
)

// StartRedis boots a throwaway redis container and returns its address plus
// a cleanup function.
func StartRedis(pool *dockertest.Pool) (string, func(), error) {
	resource, err := pool.Run("redis", "7", nil)
	if err != nil {
		return "", nil, errors.Wrap(err, "starting redis container")
	}

	addr := fmt.Sprintf("localhost:%s", resource.GetPort("6379/tcp"))

	err = pool.Retry(func() error {
		client := redis.NewClient(&redis.Options{Addr: addr})
		defer client.Close()
		return client.Ping(context.Background()).Err()
	})
	if err != nil {
		_ = pool.Purge(resource)
		return "", nil, errors.Wrap(err, "waiting for redis")
	}

	closeFn := func() {
		_ = pool.Purge(resource)
	}
	return addr, closeFn, nil
}
