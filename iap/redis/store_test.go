//go:build integration

package redis

import (
	"os"
	"testing"

	"github.com/ory/dockertest/v3"
	goredis "github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"

	"github.com/canopy-apps/iap-client/iap/tests"
	"github.com/canopy-apps/iap-client/testutil"
)

var redisAddr string

func TestMain(m *testing.M) {
	log := logrus.StandardLogger()

	testPool, err := dockertest.NewPool("")
	if err != nil {
		log.WithError(err).Error("Error creating docker pool")
		os.Exit(1)
	}

	var closeRedis func()
	redisAddr, closeRedis, err = testutil.StartRedis(testPool)
	if err != nil {
		log.WithError(err).Error("Error starting redis image")
		os.Exit(1)
	}

	code := m.Run()
	closeRedis()
	os.Exit(code)
}

func TestDelivery_RedisStore(t *testing.T) {
	client := goredis.NewClient(&goredis.Options{Addr: redisAddr})
	defer client.Close()

	testStore := NewDeliveryStore(client)
	teardown := func() {
		testStore.(*store).reset()
	}
	tests.RunDeliveryStoreTests(t, testStore, teardown)
}
