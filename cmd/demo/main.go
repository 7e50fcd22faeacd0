// Demo wires the client against the in-memory storefront and walks the full
// purchase/delivery cycle. Set REDIS_ADDR (optionally via a .env file) to
// back the delivery ledger with redis instead of memory.
package main

import (
	"context"
	"log"
	"os"

	"github.com/joho/godotenv"
	goredis "github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"golang.org/x/text/language"

	"github.com/canopy-apps/iap-client/iap"
	"github.com/canopy-apps/iap-client/iap/memory"
	"github.com/canopy-apps/iap-client/iap/redis"
)

func main() {
	_ = godotenv.Load()

	logger, err := zap.NewDevelopment()
	if err != nil {
		log.Fatal("Failed to create logger:", err)
	}
	defer func() { _ = logger.Sync() }()

	deliveries := memory.NewDeliveryStore()
	if addr := os.Getenv("REDIS_ADDR"); addr != "" {
		client := goredis.NewClient(&goredis.Options{Addr: addr})
		defer client.Close()
		deliveries = redis.NewDeliveryStore(client)
		logger.Info("Using redis delivery ledger", zap.String("addr", addr))
	}

	coinsPrice := decimal.RequireFromString("0.99")
	front := memory.NewStorefront(memory.WithProducts(iap.Product{
		ID:           "com.example.coins.100",
		DisplayName:  "100 Coins",
		Description:  "A pile of coins",
		Price:        coinsPrice,
		DisplayPrice: memory.FormatDisplayPrice(coinsPrice, "USD", language.English),
		Type:         iap.ProductTypeConsumable,
	}))

	client, err := iap.NewClient(logger, front, deliveries)
	if err != nil {
		logger.Fatal("Failed to create client", zap.Error(err))
	}
	defer client.Close()

	ctx := context.Background()

	events := client.ObserveTransactions()
	go func() {
		for evt := range events {
			logger.Info("Transaction event",
				zap.String("type", evt.Type.String()),
				zap.Uint64("transaction_id", evt.Transaction.ID),
			)
		}
	}()

	products, err := client.LoadProducts(ctx, []string{"com.example.coins.100"})
	if err != nil {
		logger.Fatal("Failed to load products", zap.Error(err))
	}
	for _, p := range products {
		logger.Info("Loaded product", zap.String("id", p.ID), zap.String("price", p.DisplayPrice))
	}

	tx, err := client.Purchase(ctx, "com.example.coins.100")
	if err != nil {
		logger.Fatal("Purchase failed", zap.Error(err))
	}
	logger.Info("Purchased", zap.Uint64("transaction_id", tx.ID))

	err = client.ProcessUnfinishedConsumables(ctx, func(ctx context.Context, tx iap.Transaction) error {
		logger.Info("Delivering consumable",
			zap.Uint64("transaction_id", tx.ID),
			zap.Int("quantity", tx.Quantity()),
		)
		return nil
	})
	if err != nil {
		logger.Fatal("Failed to process unfinished consumables", zap.Error(err))
	}

	restored, err := client.RestorePurchases(ctx)
	if err != nil {
		logger.Fatal("Restore failed", zap.Error(err))
	}
	logger.Info("Restore complete", zap.Int("transactions", len(restored)))
}
