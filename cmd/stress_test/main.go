package main

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	_ "github.com/go-sql-driver/mysql"
	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"

	"github.com/rl1809/stock-sync/internal/adapter/storage"
	"github.com/rl1809/stock-sync/internal/config"
	"github.com/rl1809/stock-sync/internal/core/domain"
	"github.com/rl1809/stock-sync/internal/core/service"
	"github.com/rl1809/stock-sync/internal/logging"
)

const (
	productID     = int64(990001)
	initialStock  = 1000
	totalRequests = 200
	perRequest    = 3
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		logrus.WithError(err).Fatal("invalid configuration")
	}
	logging.Init(logrus.WarnLevel)
	ctx := context.Background()

	db, err := sqlx.Open("mysql", cfg.MySQLDSN)
	if err != nil {
		logrus.WithError(err).Fatal("failed to open mysql")
	}
	defer db.Close()
	if err := db.PingContext(ctx); err != nil {
		logrus.WithError(err).Fatal("failed to connect mysql")
	}

	rdb := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr, Password: cfg.RedisPassword, DB: cfg.RedisDB})
	if err := rdb.Ping(ctx).Err(); err != nil {
		logrus.WithError(err).Fatal("failed to connect redis")
	}
	defer rdb.Close()

	mysqlAdapter := storage.NewMySQLAdapter(db)
	if err := mysqlAdapter.MigrateSchema(ctx); err != nil {
		logrus.WithError(err).Fatal("failed to migrate schema")
	}
	svc := service.NewStockService(mysqlAdapter, storage.NewRedisAdapter(rdb))

	// Clear previous test data
	rdb.Del(ctx, domain.StockKey(productID))
	if _, err := svc.SetStock(ctx, productID, initialStock); err != nil {
		logrus.WithError(err).Fatal("failed to set stock")
	}

	var successCount atomic.Int32
	var failCount atomic.Int32

	// Spawn concurrent orders, alternating check-out and check-in
	var wg sync.WaitGroup
	start := time.Now()

	for i := 0; i < totalRequests; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()

			op := domain.Decrement
			if n%4 == 0 {
				op = domain.Increment
			}
			items := []domain.Item{domain.OrderItem{ProductID: productID, Quantity: perRequest}}
			if _, err := svc.ApplyOrder(ctx, uuid.NewString(), items, op); err != nil {
				failCount.Add(1)
				return
			}
			successCount.Add(1)
		}(i)
	}

	wg.Wait()
	elapsed := time.Since(start)

	var storeQty int64
	if err := db.GetContext(ctx, &storeQty, `SELECT quantity FROM stocks WHERE product_id = ?`, productID); err != nil {
		logrus.WithError(err).Fatal("failed to read store quantity")
	}
	cacheQty, _ := rdb.HGet(ctx, domain.StockKey(productID), domain.FieldQuantity).Int64()

	increments := int64((totalRequests + 3) / 4)
	expected := int64(initialStock) + perRequest*increments - perRequest*(totalRequests-increments)

	fmt.Println("========== STRESS TEST RESULTS ==========")
	fmt.Printf("Initial Stock:    %d\n", initialStock)
	fmt.Printf("Total Requests:   %d\n", totalRequests)
	fmt.Printf("Successful:       %d\n", successCount.Load())
	fmt.Printf("Failed:           %d\n", failCount.Load())
	fmt.Printf("Duration:         %v\n", elapsed)
	fmt.Printf("Store Quantity:   %d\n", storeQty)
	fmt.Printf("Cache Quantity:   %d\n", cacheQty)
	fmt.Println("==========================================")

	if failCount.Load() == 0 && storeQty == expected {
		fmt.Printf("PASS: store quantity is %d\n", expected)
	} else {
		fmt.Printf("FAIL: expected store quantity %d with no failures\n", expected)
	}

	if cacheQty == storeQty {
		fmt.Println("PASS: cache matches store of record")
	} else {
		fmt.Printf("FAIL: cache %d differs from store %d\n", cacheQty, storeQty)
	}
}
