package stats

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"vendepos/backend/internal/domain"
)

func dec(v string) decimal.Decimal {
	return decimal.RequireFromString(v)
}

func TestResolveRange(t *testing.T) {
	loc := time.UTC
	// Wednesday.
	now := time.Date(2026, time.March, 18, 15, 30, 0, 0, loc)

	tests := []struct {
		period    string
		wantStart time.Time
		wantEnd   time.Time
	}{
		{PeriodToday, time.Date(2026, 3, 18, 0, 0, 0, 0, loc), time.Date(2026, 3, 19, 0, 0, 0, 0, loc)},
		{"", time.Date(2026, 3, 18, 0, 0, 0, 0, loc), time.Date(2026, 3, 19, 0, 0, 0, 0, loc)},
		{PeriodWeek, time.Date(2026, 3, 15, 0, 0, 0, 0, loc), time.Date(2026, 3, 22, 0, 0, 0, 0, loc)},
		{PeriodMonth, time.Date(2026, 3, 1, 0, 0, 0, 0, loc), time.Date(2026, 4, 1, 0, 0, 0, 0, loc)},
		{PeriodYear, time.Date(2026, 1, 1, 0, 0, 0, 0, loc), time.Date(2027, 1, 1, 0, 0, 0, 0, loc)},
	}

	for _, tt := range tests {
		t.Run("period "+tt.period, func(t *testing.T) {
			rng, ok, err := ResolveRange(tt.period, now, loc, "", "")
			require.NoError(t, err)
			require.True(t, ok)
			assert.True(t, rng.Start.Equal(tt.wantStart), "start %s", rng.Start)
			assert.True(t, rng.End.Equal(tt.wantEnd), "end %s", rng.End)
		})
	}
}

func TestResolveRangeWeekOnSunday(t *testing.T) {
	now := time.Date(2026, time.March, 15, 8, 0, 0, 0, time.UTC)
	rng, ok, err := ResolveRange(PeriodWeek, now, time.UTC, "", "")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, time.Sunday, rng.Start.Weekday())
	assert.Equal(t, 15, rng.Start.Day())
}

func TestResolveRangeUsesLocation(t *testing.T) {
	loc := time.FixedZone("ART", -3*60*60)
	// 01:00 UTC is still the previous evening in Buenos Aires.
	now := time.Date(2026, time.March, 18, 1, 0, 0, 0, time.UTC)

	rng, ok, err := ResolveRange(PeriodToday, now, loc, "", "")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, 17, rng.Start.Day())
	assert.Equal(t, loc, rng.Start.Location())
}

func TestResolveRangeCustom(t *testing.T) {
	now := time.Now()

	rng, ok, err := ResolveRange(PeriodCustom, now, time.UTC, "2026-02-01", "2026-02-10")
	require.NoError(t, err)
	require.True(t, ok)
	assert.True(t, rng.Start.Equal(time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC)))
	assert.True(t, rng.End.Equal(time.Date(2026, 2, 11, 0, 0, 0, 0, time.UTC)))

	_, ok, err = ResolveRange(PeriodCustom, now, time.UTC, "2026-02-01", "")
	require.NoError(t, err)
	assert.False(t, ok)

	_, _, err = ResolveRange(PeriodCustom, now, time.UTC, "2026-02-10", "2026-02-01")
	assert.ErrorIs(t, err, ErrInvalidRange)

	_, _, err = ResolveRange(PeriodCustom, now, time.UTC, "02/01/2026", "2026-02-10")
	assert.ErrorIs(t, err, ErrInvalidRange)

	_, _, err = ResolveRange("decade", now, time.UTC, "", "")
	assert.ErrorIs(t, err, ErrUnknownPeriod)
}

func TestComputeWeekScenario(t *testing.T) {
	now := time.Date(2026, time.March, 18, 12, 0, 0, 0, time.UTC)
	rng, ok, err := ResolveRange(PeriodWeek, now, time.UTC, "", "")
	require.NoError(t, err)
	require.True(t, ok)

	sales := []domain.Sale{
		{ID: "s1", Total: dec("900"), PaymentMethod: domain.PaymentCash, CreatedAt: now},
		{ID: "s2", Total: dec("300"), PaymentMethod: domain.PaymentDebit, CreatedAt: now.Add(-24 * time.Hour)},
	}

	m := Compute(rng, sales, nil, Options{})
	assert.Equal(t, 2, m.TotalSales)
	assert.True(t, m.TotalRevenue.Equal(dec("1200")))
	assert.True(t, m.AverageTicket.Equal(dec("600")))
	require.Len(t, m.SalesByDay, 2)
	assert.Equal(t, "2026-03-17", m.SalesByDay[0].Date)
	assert.Equal(t, "2026-03-18", m.SalesByDay[1].Date)
}

func TestComputeEmpty(t *testing.T) {
	m := Compute(Range{Loc: time.UTC}, nil, nil, Options{})
	assert.Zero(t, m.TotalSales)
	assert.True(t, m.AverageTicket.IsZero())
	assert.Empty(t, m.SalesByDay)
	assert.Empty(t, m.TopProducts)
	assert.Empty(t, m.PaymentMethods)
}

func TestComputeProfitAndInventory(t *testing.T) {
	products := []domain.Product{
		{ID: "p1", BuyPrice: dec("60"), SellPrice: dec("100"), Stock: 10},
		{ID: "p2", BuyPrice: dec("20"), SellPrice: dec("50"), Stock: 3},
		{ID: "p3", BuyPrice: dec("0"), SellPrice: dec("10"), Stock: 5},
	}
	sales := []domain.Sale{
		{
			Total: dec("250"),
			Items: []domain.SaleItem{
				// Snapshot cost wins over the current buy price.
				{ProductID: "p1", Name: "Shirt", Quantity: 2, UnitPrice: dec("100"), UnitCost: dec("50")},
				// No snapshot, current buy price used.
				{ProductID: "p2", Name: "Socks", Quantity: 1, UnitPrice: dec("50")},
			},
		},
		{
			Total: dec("40"),
			Items: []domain.SaleItem{
				// Product deleted from catalog.
				{ProductID: "gone", Name: "Old", Quantity: 4, UnitPrice: dec("10")},
				// No buy price on the product.
				{ProductID: "p3", Name: "Sticker", Quantity: 1, UnitPrice: dec("10")},
			},
		},
	}

	m := Compute(Range{Loc: time.UTC}, sales, products, Options{})
	// (100-50)*2 + (50-20)*1
	assert.True(t, m.TotalProfit.Equal(dec("130")), "profit %s", m.TotalProfit)
	assert.Equal(t, 3, m.TotalProducts)
	assert.Equal(t, 2, m.LowStockProducts)
	assert.True(t, m.TotalAssets.Equal(dec("1200")), "assets %s", m.TotalAssets)
	assert.True(t, m.TotalInvested.Equal(dec("660")), "invested %s", m.TotalInvested)

	m = Compute(Range{Loc: time.UTC}, sales, products, Options{LowStockThreshold: 2})
	assert.Zero(t, m.LowStockProducts)
}

func TestComputeProfitSkipsMissingProductEvenWithCapturedCost(t *testing.T) {
	products := []domain.Product{
		{ID: "p1", BuyPrice: dec("0"), SellPrice: dec("30"), Stock: 10},
	}
	sales := []domain.Sale{{
		Total: dec("70"),
		Items: []domain.SaleItem{
			{ProductID: "gone", Name: "Old", Quantity: 4, UnitPrice: dec("10"), UnitCost: dec("5")},
			// Captured cost still counts when the product has no buy price today.
			{ProductID: "p1", Name: "Cap", Quantity: 1, UnitPrice: dec("30"), UnitCost: dec("12")},
		},
	}}

	m := Compute(Range{Loc: time.UTC}, sales, products, Options{})
	assert.True(t, m.TotalProfit.Equal(dec("18")), "profit %s", m.TotalProfit)

	m = Compute(Range{Loc: time.UTC}, sales, nil, Options{})
	assert.True(t, m.TotalProfit.IsZero(), "profit %s", m.TotalProfit)
}

func TestComputeBreakdowns(t *testing.T) {
	mk := func(method domain.PaymentMethod, total string, items ...domain.SaleItem) domain.Sale {
		return domain.Sale{PaymentMethod: method, Total: dec(total), Items: items}
	}
	item := func(id string, qty int, price string) domain.SaleItem {
		return domain.SaleItem{ProductID: id, Name: id, Quantity: qty, UnitPrice: dec(price)}
	}

	sales := []domain.Sale{
		mk("", "10", item("a", 1, "10")),
		mk(domain.PaymentCash, "20", item("b", 2, "10")),
		mk(domain.PaymentCredit, "30", item("c", 3, "10")),
		mk(domain.PaymentTransfer, "40", item("d", 4, "10")),
		mk(domain.PaymentTransfer, "50", item("e", 5, "10")),
		mk(domain.PaymentCash, "60", item("f", 6, "10"), item("a", 1, "10")),
	}

	m := Compute(Range{Loc: time.UTC}, sales, nil, Options{})

	require.Len(t, m.TopProducts, 5)
	assert.Equal(t, []string{"f", "e", "d", "c", "a"}, []string{
		m.TopProducts[0].ProductID, m.TopProducts[1].ProductID, m.TopProducts[2].ProductID,
		m.TopProducts[3].ProductID, m.TopProducts[4].ProductID,
	})
	assert.Equal(t, 2, m.TopProducts[4].Quantity)

	require.Len(t, m.PaymentMethods, 3)
	assert.Equal(t, domain.PaymentCash, m.PaymentMethods[0].Method)
	assert.Equal(t, 3, m.PaymentMethods[0].Count)
	assert.True(t, m.PaymentMethods[0].Revenue.Equal(dec("90")))
	assert.Equal(t, domain.PaymentTransfer, m.PaymentMethods[1].Method)
	assert.Equal(t, domain.PaymentCredit, m.PaymentMethods[2].Method)
}

func TestComputeIsIdempotent(t *testing.T) {
	now := time.Date(2026, time.March, 18, 12, 0, 0, 0, time.UTC)
	products := []domain.Product{{ID: "p1", BuyPrice: dec("5"), SellPrice: dec("9"), Stock: 7}}
	sales := []domain.Sale{
		{Total: dec("18"), PaymentMethod: domain.PaymentDebit, CreatedAt: now, Items: []domain.SaleItem{
			{ProductID: "p1", Name: "Cap", Quantity: 2, UnitPrice: dec("9")},
		}},
	}
	rng := Range{Period: PeriodToday, Loc: time.UTC}

	first := Compute(rng, sales, products, Options{})
	second := Compute(rng, sales, products, Options{})
	assert.Equal(t, first, second)
}
