// Package pricing holds the money math shared by the cart, checkout and catalog:
// profit percentage, discount application and line subtotals. All results are
// rounded to two decimal places.
package pricing

import "github.com/shopspring/decimal"

var hundred = decimal.NewFromInt(100)

type Discount struct {
	Amount     decimal.Decimal `json:"discount_amount"`
	FinalTotal decimal.Decimal `json:"final_total"`
}

func Round2(d decimal.Decimal) decimal.Decimal {
	return d.Round(2)
}

// ProfitPercentage returns the markup of sell over buy as a percentage of buy.
// Non-positive prices yield zero.
func ProfitPercentage(buy, sell decimal.Decimal) decimal.Decimal {
	if !buy.IsPositive() || !sell.IsPositive() {
		return decimal.Zero
	}
	return Round2(sell.Sub(buy).Div(buy).Mul(hundred))
}

// ApplyDiscount never fails: non-positive input means no discount, and the
// amount is clamped to the total.
func ApplyDiscount(total, value decimal.Decimal, isPercentage bool) Discount {
	if !total.IsPositive() || !value.IsPositive() {
		return Discount{Amount: decimal.Zero, FinalTotal: Round2(total)}
	}

	amount := value
	if isPercentage {
		amount = total.Mul(value).Div(hundred)
	}
	if amount.GreaterThan(total) {
		amount = total
	}

	amount = Round2(amount)
	return Discount{
		Amount:     amount,
		FinalTotal: Round2(total.Sub(amount)),
	}
}

func LineSubtotal(unitPrice decimal.Decimal, qty int) decimal.Decimal {
	return Round2(unitPrice.Mul(decimal.NewFromInt(int64(qty))))
}
