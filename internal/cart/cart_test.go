package cart

import (
	"errors"
	"math/rand"
	"strconv"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"vendepos/backend/internal/domain"
)

func product(id string, price int64) domain.Product {
	return domain.Product{ID: id, Name: "Product " + id, Code: "C-" + id, SellPrice: decimal.NewFromInt(price)}
}

func TestAddItemRejectsOutOfStock(t *testing.T) {
	c := New()
	err := c.AddItem(product("p1", 100), 0)
	assert.ErrorIs(t, err, ErrNoStock)
	assert.True(t, c.IsEmpty())
}

func TestAddItemTwiceWithStockOneFails(t *testing.T) {
	c := New()
	require.NoError(t, c.AddItem(product("p1", 100), 1))

	err := c.AddItem(product("p1", 100), 1)
	assert.ErrorIs(t, err, ErrInsufficientStock)
	assert.Equal(t, 1, c.Items()[0].Quantity)
}

func TestAddItemIncrementsExisting(t *testing.T) {
	c := New()
	require.NoError(t, c.AddItem(product("p1", 100), 5))
	require.NoError(t, c.AddItem(product("p2", 50), 5))
	require.NoError(t, c.AddItem(product("p1", 100), 5))

	items := c.Items()
	require.Len(t, items, 2)
	assert.Equal(t, "p1", items[0].ProductID)
	assert.Equal(t, 2, items[0].Quantity)
	assert.Equal(t, "p2", items[1].ProductID)
}

func TestUpdateQuantity(t *testing.T) {
	c := New()
	require.NoError(t, c.AddItem(product("p1", 100), 5))

	require.NoError(t, c.UpdateQuantity("p1", 4, 5))
	assert.Equal(t, 4, c.Items()[0].Quantity)

	assert.ErrorIs(t, c.UpdateQuantity("p1", 6, 5), ErrInsufficientStock)
	assert.Equal(t, 4, c.Items()[0].Quantity)

	assert.ErrorIs(t, c.UpdateQuantity("missing", 1, 5), ErrItemNotFound)

	require.NoError(t, c.UpdateQuantity("p1", 0, 5))
	assert.True(t, c.IsEmpty())
}

func TestRemoveItemAndClear(t *testing.T) {
	c := New()
	require.NoError(t, c.AddItem(product("p1", 100), 5))
	require.NoError(t, c.AddItem(product("p2", 100), 5))

	c.RemoveItem("p1")
	c.RemoveItem("unknown")
	require.Len(t, c.Items(), 1)

	c.Form.CustomerName = "Ana"
	c.Form.DiscountValue = decimal.NewFromInt(10)
	c.Form.IsExchange = true
	c.Clear()

	assert.True(t, c.IsEmpty())
	assert.Empty(t, c.Form.CustomerName)
	assert.True(t, c.Form.DiscountValue.IsZero())
	assert.False(t, c.Form.IsExchange)
	assert.Equal(t, domain.PaymentCash, c.Form.PaymentMethod)
}

func TestTotalsWithPercentageDiscount(t *testing.T) {
	c := New()
	require.NoError(t, c.AddItem(product("p1", 500), 10))
	require.NoError(t, c.UpdateQuantity("p1", 2, 10))
	c.Form.DiscountValue = decimal.NewFromInt(10)
	c.Form.DiscountIsPercentage = true

	totals := c.Totals()
	assert.True(t, totals.Subtotal.Equal(decimal.NewFromInt(1000)))
	assert.True(t, totals.DiscountAmount.Equal(decimal.NewFromInt(100)))
	assert.True(t, totals.Total.Equal(decimal.NewFromInt(900)))
}

func TestSubtotalMatchesLineSumUnderRandomMutations(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	c := New()
	stock := map[string]int{}
	prices := map[string]decimal.Decimal{}
	for i := 0; i < 6; i++ {
		id := "p" + strconv.Itoa(i)
		stock[id] = rng.Intn(4)
		prices[id] = decimal.New(rng.Int63n(100_000), -2)
	}

	for step := 0; step < 300; step++ {
		id := "p" + strconv.Itoa(rng.Intn(6))
		switch rng.Intn(3) {
		case 0:
			err := c.AddItem(domain.Product{ID: id, SellPrice: prices[id]}, stock[id])
			if err != nil {
				assert.True(t, errors.Is(err, ErrNoStock) || errors.Is(err, ErrInsufficientStock))
			}
		case 1:
			_ = c.UpdateQuantity(id, rng.Intn(5)-1, stock[id])
		case 2:
			c.RemoveItem(id)
		}

		want := decimal.Zero
		for _, item := range c.Items() {
			assert.Positive(t, item.Quantity)
			assert.LessOrEqual(t, item.Quantity, stock[item.ProductID])
			want = want.Add(item.UnitPrice.Mul(decimal.NewFromInt(int64(item.Quantity))))
		}
		assert.True(t, c.Subtotal().Equal(want), "step %d: subtotal %s want %s", step, c.Subtotal(), want)
	}
}

func TestRegistryIsolatesSellers(t *testing.T) {
	r := NewRegistry()
	_, err := r.Update("seller-a", func(c *Cart) error {
		return c.AddItem(product("p1", 100), 3)
	})
	require.NoError(t, err)

	assert.Len(t, r.Get("seller-a").Items, 1)
	assert.Empty(t, r.Get("seller-b").Items)

	snap, err := r.Update("seller-a", func(c *Cart) error {
		return c.AddItem(product("p1", 100), 1)
	})
	assert.ErrorIs(t, err, ErrInsufficientStock)
	assert.Equal(t, 1, snap.Items[0].Quantity)

	r.Drop("seller-a")
	assert.Empty(t, r.Get("seller-a").Items)
}
