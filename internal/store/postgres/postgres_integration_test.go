package postgres

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"vendepos/backend/internal/domain"
	"vendepos/backend/internal/store"
)

func TestConcurrentCommitSaleAgainstPostgres(t *testing.T) {
	databaseURL := os.Getenv("VENDEPOS_TEST_DATABASE_URL")
	if databaseURL == "" {
		t.Skip("set VENDEPOS_TEST_DATABASE_URL to run postgres integration test")
	}

	ctx := context.Background()
	s, err := New(ctx, databaseURL)
	require.NoError(t, err)
	t.Cleanup(func() {
		_ = s.Close()
	})
	require.NoError(t, s.Migrate(ctx))

	stamp := time.Now().UnixNano()
	code := fmt.Sprintf("IT-%d", stamp)
	product, err := s.CreateProduct(ctx, domain.Product{
		Name:      "Remera integracion",
		Code:      code,
		BuyPrice:  decimal.NewFromInt(40),
		SellPrice: decimal.NewFromInt(80),
		Category:  "remeras",
		Stock:     5,
	})
	require.NoError(t, err)

	t.Cleanup(func() {
		_, _ = s.db.ExecContext(ctx, `DELETE FROM sale_items WHERE product_id = $1`, product.ID)
		_, _ = s.db.ExecContext(ctx, `DELETE FROM sales WHERE idempotency_key LIKE $1`, fmt.Sprintf("it-%d-%%", stamp))
		_, _ = s.db.ExecContext(ctx, `DELETE FROM products WHERE id = $1`, product.ID)
	})

	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		successes int
		shortages int
	)
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, err := s.CommitSale(ctx, domain.Sale{
				IdempotencyKey: fmt.Sprintf("it-%d-%d", stamp, i),
				Items: []domain.SaleItem{{
					ProductID:    product.ID,
					Name:         product.Name,
					Code:         product.Code,
					Quantity:     3,
					UnitPrice:    product.SellPrice,
					UnitCost:     product.BuyPrice,
					LineSubtotal: product.SellPrice.Mul(decimal.NewFromInt(3)),
				}},
				Subtotal:      decimal.NewFromInt(240),
				Total:         decimal.NewFromInt(240),
				DiscountType:  domain.DiscountPercentage,
				DiscountValue: decimal.RequireFromString("12.3457"),
				PaymentMethod: domain.PaymentCash,
				SellerID:      "it-seller",
				SellerName:    "Integration",
			})
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				successes++
			case errors.Is(err, store.ErrInsufficientStock):
				shortages++
			default:
				t.Errorf("unexpected commit error: %v", err)
			}
		}(i)
	}
	wg.Wait()

	assert.Equal(t, 1, successes)
	assert.Equal(t, 1, shortages)

	got, err := s.GetProduct(ctx, product.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, got.Stock)
	require.NotNil(t, got.LastSoldAt)

	for i := 0; i < 2; i++ {
		sale, err := s.FindSaleByIdempotency(ctx, fmt.Sprintf("it-%d-%d", stamp, i))
		if errors.Is(err, store.ErrNotFound) {
			continue
		}
		require.NoError(t, err)
		assert.True(t, sale.DiscountValue.Equal(decimal.RequireFromString("12.3457")), "discount value %s", sale.DiscountValue)
	}
}
