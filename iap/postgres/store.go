// Package postgres implements iap.DeliveryStore on PostgreSQL. A delivery
// is one row keyed by the namespaced delivery key; the insert is committed
// before MarkDelivered returns, which is what makes the ledger-then-finish
// ordering in the coordinator crash-safe.
package postgres

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/jackc/pgconn"
	"github.com/jackc/pgerrcode"
	"github.com/jmoiron/sqlx"

	"github.com/canopy-apps/iap-client/iap"
)

const deliveriesTable = "iap_deliveries"

// Schema creates the deliveries table. Rows are write-once and never
// migrated, so this is the whole schema.
const Schema = `
CREATE TABLE IF NOT EXISTS ` + deliveriesTable + ` (
	"key"         TEXT PRIMARY KEY,
	"deliveredAt" TIMESTAMPTZ NOT NULL
);`

type store struct {
	db *sqlx.DB
}

func NewDeliveryStore(db *sql.DB) iap.DeliveryStore {
	return &store{
		db: sqlx.NewDb(db, "pgx"),
	}
}

func (s *store) reset() {
	_, err := s.db.ExecContext(context.Background(), `DELETE FROM `+deliveriesTable)
	if err != nil {
		panic(err)
	}
}

func (s *store) IsDelivered(ctx context.Context, txID uint64) (bool, error) {
	var exists bool
	query := `SELECT EXISTS(SELECT 1 FROM ` + deliveriesTable + ` WHERE "key" = $1)`
	err := s.db.GetContext(ctx, &exists, query, iap.DeliveryKey(txID))
	if err != nil {
		return false, err
	}
	return exists, nil
}

func (s *store) MarkDelivered(ctx context.Context, txID uint64) error {
	query := `INSERT INTO ` + deliveriesTable + ` ("key", "deliveredAt") VALUES ($1, $2)`
	_, err := s.db.ExecContext(ctx, query, iap.DeliveryKey(txID), time.Now())
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == pgerrcode.UniqueViolation {
			// Already marked; success by contract.
			return nil
		}
		return err
	}
	return nil
}
