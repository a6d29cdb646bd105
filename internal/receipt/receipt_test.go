package receipt

import (
	"bytes"
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"vendepos/backend/internal/domain"
)

func sampleSale() domain.Sale {
	return domain.Sale{
		ID: "sale-1",
		Items: []domain.SaleItem{
			{ProductID: "p1", Name: "Remera", Code: "REM-01", Quantity: 2, UnitPrice: decimal.NewFromInt(500), LineSubtotal: decimal.NewFromInt(1000)},
		},
		Subtotal:       decimal.NewFromInt(1000),
		DiscountAmount: decimal.NewFromInt(100),
		DiscountType:   domain.DiscountPercentage,
		DiscountValue:  decimal.NewFromInt(10),
		Total:          decimal.NewFromInt(900),
		PaymentMethod:  domain.PaymentDebit,
		CustomerName:   "Lucia",
		SellerName:     "Caja 1",
		CreatedAt:      time.Date(2026, time.March, 18, 10, 5, 0, 0, time.UTC),
	}
}

func TestRender(t *testing.T) {
	doc := Render(sampleSale(), "Tienda Sur")

	assert.Equal(t, "receipt-sale-1.bin", doc.FileName)
	assert.Contains(t, doc.Text, "Tienda Sur")
	assert.Contains(t, doc.Text, "Sale: sale-1")
	assert.Contains(t, doc.Text, "Customer: Lucia")
	assert.Contains(t, doc.Text, "Remera (REM-01)")
	assert.Contains(t, doc.Text, "Discount 10%")
	assert.Contains(t, doc.Text, "-100.00")
	assert.Contains(t, doc.Text, "900.00")
	assert.NotContains(t, doc.Text, "EXCHANGE")
	assert.Equal(t, strings.Join(doc.Lines, "\n"), doc.Text)

	require.True(t, bytes.HasPrefix(doc.EscPos, []byte{0x1b, 0x40}))
	assert.True(t, bytes.HasSuffix(doc.EscPos, []byte{0x1d, 0x56, 0x41, 0x10}))
}

func TestRenderIsStable(t *testing.T) {
	sale := sampleSale()
	sale.IsExchange = true
	sale.DiscountAmount = decimal.Zero

	first := Render(sale, "")
	second := Render(sale, "")
	assert.Equal(t, first, second)
	assert.Contains(t, first.Text, defaultName)
	assert.Contains(t, first.Text, "EXCHANGE")
	assert.NotContains(t, first.Text, "Discount")
}
