// Package stats reduces persisted sales and the current catalog into the
// dashboard metrics. Everything here is pure: same inputs, same Metrics.
package stats

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"vendepos/backend/internal/domain"
	"vendepos/backend/internal/pricing"
)

const (
	PeriodToday  = "today"
	PeriodWeek   = "week"
	PeriodMonth  = "month"
	PeriodYear   = "year"
	PeriodCustom = "custom"

	DefaultLowStockThreshold = 5
	topProductsLimit         = 5
	dateLayout               = "2006-01-02"
)

var (
	ErrUnknownPeriod = errors.New("unknown statistics period")
	ErrInvalidRange  = errors.New("invalid statistics range")
)

// Range is a half-open interval [Start, End).
type Range struct {
	Period string
	Start  time.Time
	End    time.Time
	Loc    *time.Location
}

func (r Range) Key() string {
	return fmt.Sprintf("%s:%d:%d", r.Period, r.Start.Unix(), r.End.Unix())
}

func startOfDay(t time.Time, loc *time.Location) time.Time {
	t = t.In(loc)
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, loc)
}

// ResolveRange turns a named period into concrete local boundaries. A custom
// period with either bound unset is not an error: ok is false and the caller
// renders an empty state.
func ResolveRange(period string, now time.Time, loc *time.Location, customStart, customEnd string) (Range, bool, error) {
	if loc == nil {
		loc = time.Local
	}
	period = strings.ToLower(strings.TrimSpace(period))
	if period == "" {
		period = PeriodToday
	}

	today := startOfDay(now, loc)
	rng := Range{Period: period, Loc: loc}

	switch period {
	case PeriodToday:
		rng.Start = today
		rng.End = today.AddDate(0, 0, 1)
	case PeriodWeek:
		rng.Start = today.AddDate(0, 0, -int(today.Weekday()))
		rng.End = rng.Start.AddDate(0, 0, 7)
	case PeriodMonth:
		rng.Start = time.Date(today.Year(), today.Month(), 1, 0, 0, 0, 0, loc)
		rng.End = rng.Start.AddDate(0, 1, 0)
	case PeriodYear:
		rng.Start = time.Date(today.Year(), time.January, 1, 0, 0, 0, 0, loc)
		rng.End = rng.Start.AddDate(1, 0, 0)
	case PeriodCustom:
		customStart = strings.TrimSpace(customStart)
		customEnd = strings.TrimSpace(customEnd)
		if customStart == "" || customEnd == "" {
			return rng, false, nil
		}
		start, err := time.ParseInLocation(dateLayout, customStart, loc)
		if err != nil {
			return Range{}, false, fmt.Errorf("%w: start %q", ErrInvalidRange, customStart)
		}
		end, err := time.ParseInLocation(dateLayout, customEnd, loc)
		if err != nil {
			return Range{}, false, fmt.Errorf("%w: end %q", ErrInvalidRange, customEnd)
		}
		if end.Before(start) {
			return Range{}, false, fmt.Errorf("%w: end before start", ErrInvalidRange)
		}
		rng.Start = start
		rng.End = end.AddDate(0, 0, 1)
	default:
		return Range{}, false, fmt.Errorf("%w: %q", ErrUnknownPeriod, period)
	}
	return rng, true, nil
}

type Options struct {
	LowStockThreshold int
}

// Compute builds Metrics for the sales inside rng. Inventory figures always
// describe the catalog as given, regardless of the range.
func Compute(rng Range, sales []domain.Sale, products []domain.Product, opts Options) domain.Metrics {
	loc := rng.Loc
	if loc == nil {
		loc = time.Local
	}
	threshold := opts.LowStockThreshold
	if threshold <= 0 {
		threshold = DefaultLowStockThreshold
	}

	catalog := make(map[string]domain.Product, len(products))
	for _, product := range products {
		catalog[product.ID] = product
	}

	m := domain.Metrics{
		TotalRevenue:  decimal.Zero,
		TotalProfit:   decimal.Zero,
		AverageTicket: decimal.Zero,
		TotalAssets:   decimal.Zero,
		TotalInvested: decimal.Zero,
	}

	byDay := map[string]*domain.DailySales{}
	byProduct := map[string]*domain.TopProduct{}
	byMethod := map[domain.PaymentMethod]*domain.PaymentBreakdown{}

	for _, sale := range sales {
		m.TotalSales++
		m.TotalRevenue = m.TotalRevenue.Add(sale.Total)

		day := sale.CreatedAt.In(loc).Format(dateLayout)
		ds, ok := byDay[day]
		if !ok {
			ds = &domain.DailySales{Date: day, Revenue: decimal.Zero}
			byDay[day] = ds
		}
		ds.SalesCount++
		ds.Revenue = ds.Revenue.Add(sale.Total)

		method := sale.PaymentMethod
		if method == "" {
			method = domain.PaymentCash
		}
		pb, ok := byMethod[method]
		if !ok {
			pb = &domain.PaymentBreakdown{Method: method, Revenue: decimal.Zero}
			byMethod[method] = pb
		}
		pb.Count++
		pb.Revenue = pb.Revenue.Add(sale.Total)

		for _, item := range sale.Items {
			m.TotalProfit = m.TotalProfit.Add(itemProfit(item, catalog))

			tp, ok := byProduct[item.ProductID]
			if !ok {
				tp = &domain.TopProduct{ProductID: item.ProductID, Name: item.Name, Revenue: decimal.Zero}
				byProduct[item.ProductID] = tp
			}
			tp.Quantity += item.Quantity
			tp.Revenue = tp.Revenue.Add(pricing.LineSubtotal(item.UnitPrice, item.Quantity))
		}
	}

	if m.TotalSales > 0 {
		m.AverageTicket = pricing.Round2(m.TotalRevenue.Div(decimal.NewFromInt(int64(m.TotalSales))))
	}
	m.TotalRevenue = pricing.Round2(m.TotalRevenue)
	m.TotalProfit = pricing.Round2(m.TotalProfit)

	for _, product := range products {
		m.TotalProducts++
		if product.Stock <= threshold {
			m.LowStockProducts++
		}
		stock := decimal.NewFromInt(int64(product.Stock))
		m.TotalAssets = m.TotalAssets.Add(product.SellPrice.Mul(stock))
		m.TotalInvested = m.TotalInvested.Add(product.BuyPrice.Mul(stock))
	}
	m.TotalAssets = pricing.Round2(m.TotalAssets)
	m.TotalInvested = pricing.Round2(m.TotalInvested)

	m.SalesByDay = make([]domain.DailySales, 0, len(byDay))
	for _, ds := range byDay {
		m.SalesByDay = append(m.SalesByDay, *ds)
	}
	sort.Slice(m.SalesByDay, func(i, j int) bool {
		return m.SalesByDay[i].Date < m.SalesByDay[j].Date
	})

	m.TopProducts = make([]domain.TopProduct, 0, len(byProduct))
	for _, tp := range byProduct {
		m.TopProducts = append(m.TopProducts, *tp)
	}
	sort.Slice(m.TopProducts, func(i, j int) bool {
		a, b := m.TopProducts[i], m.TopProducts[j]
		if a.Quantity != b.Quantity {
			return a.Quantity > b.Quantity
		}
		if !a.Revenue.Equal(b.Revenue) {
			return a.Revenue.GreaterThan(b.Revenue)
		}
		return a.ProductID < b.ProductID
	})
	if len(m.TopProducts) > topProductsLimit {
		m.TopProducts = m.TopProducts[:topProductsLimit]
	}

	m.PaymentMethods = make([]domain.PaymentBreakdown, 0, len(byMethod))
	for _, pb := range byMethod {
		m.PaymentMethods = append(m.PaymentMethods, *pb)
	}
	sort.Slice(m.PaymentMethods, func(i, j int) bool {
		a, b := m.PaymentMethods[i], m.PaymentMethods[j]
		if a.Count != b.Count {
			return a.Count > b.Count
		}
		return a.Method < b.Method
	})

	return m
}

// itemProfit prefers the cost captured at sale time and falls back to the
// product's current buy price. Items whose product is gone contribute
// nothing, whatever cost they carry.
func itemProfit(item domain.SaleItem, catalog map[string]domain.Product) decimal.Decimal {
	product, ok := catalog[item.ProductID]
	if !ok {
		return decimal.Zero
	}
	cost := item.UnitCost
	if !cost.IsPositive() {
		if !product.BuyPrice.IsPositive() {
			return decimal.Zero
		}
		cost = product.BuyPrice
	}
	return item.UnitPrice.Sub(cost).Mul(decimal.NewFromInt(int64(item.Quantity)))
}
