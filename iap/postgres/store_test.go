//go:build integration

package postgres

import (
	"database/sql"
	"os"
	"testing"

	"github.com/ory/dockertest/v3"
	"github.com/sirupsen/logrus"

	"github.com/canopy-apps/iap-client/iap/tests"
	"github.com/canopy-apps/iap-client/testutil"

	_ "github.com/jackc/pgx/v4/stdlib"
)

var databaseURL string

func TestMain(m *testing.M) {
	log := logrus.StandardLogger()

	testPool, err := dockertest.NewPool("")
	if err != nil {
		log.WithError(err).Error("Error creating docker pool")
		os.Exit(1)
	}

	var closeDB func()
	databaseURL, closeDB, err = testutil.StartPostgresDB(testPool)
	if err != nil {
		log.WithError(err).Error("Error starting postgres image")
		os.Exit(1)
	}

	code := m.Run()
	closeDB()
	os.Exit(code)
}

func TestDelivery_PostgresStore(t *testing.T) {
	db, err := sql.Open("pgx", databaseURL)
	if err != nil {
		t.Fatalf("error opening database: %v", err)
	}
	defer db.Close()

	if _, err := db.Exec(Schema); err != nil {
		t.Fatalf("error applying schema: %v", err)
	}

	testStore := NewDeliveryStore(db)
	teardown := func() {
		testStore.(*store).reset()
	}
	tests.RunDeliveryStoreTests(t, testStore, teardown)
}
