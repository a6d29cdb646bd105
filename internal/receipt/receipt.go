// Package receipt renders a persisted sale for printing.
package receipt

import (
	"fmt"
	"strings"

	"vendepos/backend/internal/domain"
)

const (
	width       = 32
	timeLayout  = "2006-01-02 15:04"
	defaultName = "VendePOS"
)

var (
	escInit = []byte{0x1b, 0x40}
	// Partial cut after feeding 16 lines.
	escCut = []byte{0x1d, 0x56, 0x41, 0x10}
)

type Document struct {
	Lines    []string
	Text     string
	EscPos   []byte
	FileName string
}

func Render(sale domain.Sale, storeName string) Document {
	storeName = strings.TrimSpace(storeName)
	if storeName == "" {
		storeName = defaultName
	}
	rule := strings.Repeat("=", width)
	thin := strings.Repeat("-", width)

	lines := []string{
		center(storeName),
		rule,
		"Sale: " + sale.ID,
		"Date: " + sale.CreatedAt.Format(timeLayout),
		"Seller: " + sale.SellerName,
	}
	if sale.CustomerName != "" {
		lines = append(lines, "Customer: "+sale.CustomerName)
	}
	if sale.IsExchange {
		lines = append(lines, "** EXCHANGE **")
	}
	lines = append(lines, thin)

	for _, item := range sale.Items {
		lines = append(lines, fmt.Sprintf("%s (%s)", item.Name, item.Code))
		lines = append(lines, columns(fmt.Sprintf("  %d x %s", item.Quantity, item.UnitPrice.StringFixed(2)), item.LineSubtotal.StringFixed(2)))
	}

	lines = append(lines, thin, columns("Subtotal", sale.Subtotal.StringFixed(2)))
	if sale.DiscountAmount.IsPositive() {
		label := "Discount"
		if sale.DiscountType == domain.DiscountPercentage {
			label = fmt.Sprintf("Discount %s%%", sale.DiscountValue.String())
		}
		lines = append(lines, columns(label, "-"+sale.DiscountAmount.StringFixed(2)))
	}
	lines = append(lines,
		columns("TOTAL", sale.Total.StringFixed(2)),
		columns("Payment", string(sale.PaymentMethod)),
		rule,
		center("Thank you for your purchase"),
		"",
	)

	escpos := append([]byte{}, escInit...)
	for _, line := range lines {
		escpos = append(escpos, line...)
		escpos = append(escpos, '\n')
	}
	escpos = append(escpos, escCut...)

	return Document{
		Lines:    lines,
		Text:     strings.Join(lines, "\n"),
		EscPos:   escpos,
		FileName: fmt.Sprintf("receipt-%s.bin", sale.ID),
	}
}

func columns(left, right string) string {
	gap := width - len(left) - len(right)
	if gap < 1 {
		gap = 1
	}
	return left + strings.Repeat(" ", gap) + right
}

func center(s string) string {
	pad := (width - len(s)) / 2
	if pad <= 0 {
		return s
	}
	return strings.Repeat(" ", pad) + s
}
