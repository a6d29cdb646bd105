// Package cart holds the in-progress sale: the line items a seller has picked
// and the sale-form fields that travel with them until checkout.
package cart

import (
	"errors"
	"strings"

	"github.com/shopspring/decimal"

	"vendepos/backend/internal/domain"
	"vendepos/backend/internal/pricing"
)

var (
	ErrNoStock           = errors.New("no stock")
	ErrInsufficientStock = errors.New("insufficient stock")
	ErrItemNotFound      = errors.New("item not in cart")
	ErrInvalidProduct    = errors.New("invalid product")
)

type LineItem struct {
	ProductID string          `json:"product_id"`
	Name      string          `json:"name"`
	Code      string          `json:"code"`
	UnitPrice decimal.Decimal `json:"unit_price"`
	Quantity  int             `json:"quantity"`
}

func (l LineItem) Subtotal() decimal.Decimal {
	return pricing.LineSubtotal(l.UnitPrice, l.Quantity)
}

// Form is the sale-form state that is reset together with the cart.
type Form struct {
	CustomerName         string               `json:"customer_name"`
	DiscountValue        decimal.Decimal      `json:"discount_value"`
	DiscountIsPercentage bool                 `json:"discount_is_percentage"`
	IsExchange           bool                 `json:"is_exchange"`
	PaymentMethod        domain.PaymentMethod `json:"payment_method"`
}

func defaultForm() Form {
	return Form{DiscountIsPercentage: true, PaymentMethod: domain.PaymentCash}
}

type Totals struct {
	Subtotal       decimal.Decimal `json:"subtotal"`
	DiscountAmount decimal.Decimal `json:"discount_amount"`
	Total          decimal.Decimal `json:"total"`
}

// Cart keeps line items in insertion order, one per product. It is not safe
// for concurrent use; Registry serializes access per seller.
type Cart struct {
	items []LineItem
	Form  Form
}

func New() *Cart {
	return &Cart{Form: defaultForm()}
}

func (c *Cart) indexOf(productID string) int {
	for i := range c.items {
		if c.items[i].ProductID == productID {
			return i
		}
	}
	return -1
}

func (c *Cart) AddItem(product domain.Product, catalogStock int) error {
	if strings.TrimSpace(product.ID) == "" {
		return ErrInvalidProduct
	}
	if catalogStock <= 0 {
		return ErrNoStock
	}

	if i := c.indexOf(product.ID); i >= 0 {
		if c.items[i].Quantity+1 > catalogStock {
			return ErrInsufficientStock
		}
		c.items[i].Quantity++
		return nil
	}

	c.items = append(c.items, LineItem{
		ProductID: product.ID,
		Name:      product.Name,
		Code:      product.Code,
		UnitPrice: product.SellPrice,
		Quantity:  1,
	})
	return nil
}

// UpdateQuantity removes the item when qty <= 0.
func (c *Cart) UpdateQuantity(productID string, qty int, catalogStock int) error {
	i := c.indexOf(productID)
	if i < 0 {
		return ErrItemNotFound
	}
	if qty <= 0 {
		c.items = append(c.items[:i], c.items[i+1:]...)
		return nil
	}
	if qty > catalogStock {
		return ErrInsufficientStock
	}
	c.items[i].Quantity = qty
	return nil
}

func (c *Cart) RemoveItem(productID string) {
	if i := c.indexOf(productID); i >= 0 {
		c.items = append(c.items[:i], c.items[i+1:]...)
	}
}

func (c *Cart) Clear() {
	c.items = nil
	c.Form = defaultForm()
}

func (c *Cart) Items() []LineItem {
	out := make([]LineItem, len(c.items))
	copy(out, c.items)
	return out
}

func (c *Cart) Len() int {
	return len(c.items)
}

func (c *Cart) IsEmpty() bool {
	return len(c.items) == 0
}

func (c *Cart) Subtotal() decimal.Decimal {
	subtotal := decimal.Zero
	for _, item := range c.items {
		subtotal = subtotal.Add(item.Subtotal())
	}
	return subtotal
}

func (c *Cart) Totals() Totals {
	subtotal := c.Subtotal()
	discount := pricing.ApplyDiscount(subtotal, c.Form.DiscountValue, c.Form.DiscountIsPercentage)
	return Totals{
		Subtotal:       subtotal,
		DiscountAmount: discount.Amount,
		Total:          discount.FinalTotal,
	}
}

// Lines converts the cart into checkout lines.
func (c *Cart) Lines() []domain.CheckoutLine {
	lines := make([]domain.CheckoutLine, 0, len(c.items))
	for _, item := range c.items {
		lines = append(lines, domain.CheckoutLine{ProductID: item.ProductID, Quantity: item.Quantity})
	}
	return lines
}

type Snapshot struct {
	Items  []LineItem `json:"items"`
	Form   Form       `json:"form"`
	Totals Totals     `json:"totals"`
}

func (c *Cart) Snapshot() Snapshot {
	return Snapshot{Items: c.Items(), Form: c.Form, Totals: c.Totals()}
}
