package service

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"vendepos/backend/internal/config"
	"vendepos/backend/internal/domain"
	"vendepos/backend/internal/pricing"
	"vendepos/backend/internal/receipt"
	"vendepos/backend/internal/store"
)

type CheckoutState int

const (
	StateIdle CheckoutState = iota
	StateValidating
	StatePersisting
	StateUpdatingStock
	StateCompleted
)

func (st CheckoutState) String() string {
	switch st {
	case StateIdle:
		return "idle"
	case StateValidating:
		return "validating"
	case StatePersisting:
		return "persisting"
	case StateUpdatingStock:
		return "updating_stock"
	case StateCompleted:
		return "completed"
	default:
		return "unknown"
	}
}

const (
	archiveTimeout     = 5 * time.Second
	discountValueScale = 4
)

// checkoutRun tracks one pass through the checkout state machine.
type checkoutRun struct {
	logger *zap.Logger
	state  CheckoutState
}

func (r *checkoutRun) to(next CheckoutState) {
	r.logger.Debug("checkout transition", zap.Stringer("from", r.state), zap.Stringer("to", next))
	r.state = next
}

// fail returns the machine to idle and hands err back.
func (r *checkoutRun) fail(err error) error {
	r.logger.Debug("checkout failed", zap.Stringer("state", r.state), zap.Error(err))
	r.state = StateIdle
	return err
}

// Checkout validates the request against the current catalog, records the
// sale and applies its stock decrements according to the configured policy.
func (s *Service) Checkout(ctx context.Context, req domain.CheckoutRequest) (domain.CheckoutResponse, error) {
	principal, err := s.authorize(ctx, domain.CapCheckout)
	if err != nil {
		return domain.CheckoutResponse{}, err
	}

	run := &checkoutRun{
		logger: s.logger.With(zap.String("seller", principal.Username), zap.String("idempotency_key", req.IdempotencyKey)),
		state:  StateIdle,
	}
	run.to(StateValidating)

	lines := normalizeLines(req.Items)
	if len(lines) == 0 {
		return domain.CheckoutResponse{}, run.fail(invalid("cart is empty"))
	}
	if req.PaymentMethod == "" {
		req.PaymentMethod = domain.PaymentCash
	}
	if !req.PaymentMethod.Valid() {
		return domain.CheckoutResponse{}, run.fail(invalid("unsupported payment method %q", req.PaymentMethod))
	}
	if req.DiscountValue.IsNegative() {
		return domain.CheckoutResponse{}, run.fail(invalid("discount must not be negative"))
	}
	// Stored with this scale; the amount must come from the stored value.
	req.DiscountValue = req.DiscountValue.Round(discountValueScale)

	if req.IdempotencyKey != "" {
		existing, err := s.repo.FindSaleByIdempotency(ctx, req.IdempotencyKey)
		if err == nil {
			run.to(StateCompleted)
			return s.checkoutResponse(existing, true), nil
		}
		if !errors.Is(err, store.ErrNotFound) {
			return domain.CheckoutResponse{}, run.fail(storeErr("find sale", err))
		}
	}

	ids := make([]string, 0, len(lines))
	for _, line := range lines {
		ids = append(ids, line.ProductID)
	}
	products, err := s.repo.GetProductsByIDs(ctx, ids)
	if err != nil {
		return domain.CheckoutResponse{}, run.fail(storeErr("load products", err))
	}

	items := make([]domain.SaleItem, 0, len(lines))
	subtotal := decimal.Zero
	for _, line := range lines {
		product, ok := products[line.ProductID]
		if !ok {
			return domain.CheckoutResponse{}, run.fail(invalid("product %s does not exist", line.ProductID))
		}
		if line.Quantity > product.Stock {
			return domain.CheckoutResponse{}, run.fail(invalid("only %d of %s in stock", product.Stock, product.Code))
		}
		lineSubtotal := pricing.LineSubtotal(product.SellPrice, line.Quantity)
		subtotal = subtotal.Add(lineSubtotal)
		items = append(items, domain.SaleItem{
			ProductID:    product.ID,
			Name:         product.Name,
			Code:         product.Code,
			Quantity:     line.Quantity,
			UnitPrice:    product.SellPrice,
			UnitCost:     product.BuyPrice,
			LineSubtotal: lineSubtotal,
		})
	}

	discount := pricing.ApplyDiscount(subtotal, req.DiscountValue, req.DiscountIsPercentage)
	if !discount.FinalTotal.IsPositive() {
		return domain.CheckoutResponse{}, run.fail(invalid("total must be greater than zero"))
	}

	discountType := domain.DiscountFixed
	if req.DiscountIsPercentage {
		discountType = domain.DiscountPercentage
	}
	sale := domain.Sale{
		ID:             uuid.NewString(),
		IdempotencyKey: req.IdempotencyKey,
		Items:          items,
		Subtotal:       pricing.Round2(subtotal),
		DiscountAmount: discount.Amount,
		DiscountType:   discountType,
		DiscountValue:  req.DiscountValue,
		Total:          discount.FinalTotal,
		PaymentMethod:  req.PaymentMethod,
		CustomerName:   req.CustomerName,
		IsExchange:     req.IsExchange,
		SellerID:       principal.ID,
		SellerName:     principal.DisplayName,
		Status:         domain.SaleStatusCompleted,
		CreatedAt:      s.now().UTC(),
	}
	if sale.SellerName == "" {
		sale.SellerName = principal.Username
	}

	run.to(StatePersisting)
	var saved *domain.Sale
	if s.stockPolicy == config.StockPolicyLegacy {
		saved, err = s.persistLegacy(ctx, run, sale)
	} else {
		saved, err = s.persistAtomic(ctx, run, sale)
	}
	if err != nil {
		var dup *duplicateSale
		if errors.As(err, &dup) {
			run.to(StateCompleted)
			return s.checkoutResponse(dup.sale, true), nil
		}
		return domain.CheckoutResponse{}, run.fail(err)
	}
	run.to(StateCompleted)

	s.logger.Info("sale completed",
		zap.String("sale_id", saved.ID),
		zap.String("seller", principal.Username),
		zap.String("total", saved.Total.StringFixed(2)),
		zap.Int("lines", len(saved.Items)),
		zap.String("policy", s.stockPolicy),
	)
	resp := s.checkoutResponse(saved, false)
	s.afterSale(ctx, *saved)
	return resp, nil
}

// duplicateSale signals that a concurrent request with the same idempotency
// key won the insert.
type duplicateSale struct {
	sale *domain.Sale
}

func (d *duplicateSale) Error() string {
	return "duplicate sale " + d.sale.ID
}

func (s *Service) resolveDuplicate(ctx context.Context, key string, cause error) error {
	existing, err := s.repo.FindSaleByIdempotency(ctx, key)
	if err != nil {
		return storeErr("find sale", cause)
	}
	return &duplicateSale{sale: existing}
}

func (s *Service) persistAtomic(ctx context.Context, run *checkoutRun, sale domain.Sale) (*domain.Sale, error) {
	saved, err := s.repo.CommitSale(ctx, sale)
	switch {
	case err == nil:
	case errors.Is(err, store.ErrConflict) && sale.IdempotencyKey != "":
		return nil, s.resolveDuplicate(ctx, sale.IdempotencyKey, err)
	case errors.Is(err, store.ErrNotFound):
		return nil, invalid("a product in the cart no longer exists")
	default:
		return nil, storeErr("commit sale", err)
	}
	// Stock was decremented inside the same transaction.
	run.to(StateUpdatingStock)
	return saved, nil
}

// persistLegacy records the sale, then fans out one stock adjustment per item
// and waits for all of them. A failed adjustment leaves the sale in place.
func (s *Service) persistLegacy(ctx context.Context, run *checkoutRun, sale domain.Sale) (*domain.Sale, error) {
	saved, err := s.repo.CreateSale(ctx, sale)
	if err != nil {
		if errors.Is(err, store.ErrConflict) && sale.IdempotencyKey != "" {
			return nil, s.resolveDuplicate(ctx, sale.IdempotencyKey, err)
		}
		return nil, storeErr("create sale", err)
	}

	run.to(StateUpdatingStock)
	var (
		g      errgroup.Group
		mu     sync.Mutex
		failed []string
	)
	for _, d := range saved.StockDecrements() {
		d := d
		g.Go(func() error {
			if err := s.repo.AdjustStock(ctx, d.ProductID, -d.Quantity, saved.CreatedAt); err != nil {
				mu.Lock()
				failed = append(failed, d.ProductID)
				mu.Unlock()
				return err
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		s.logger.Error("stock update failed after sale was recorded",
			zap.String("sale_id", saved.ID),
			zap.Strings("product_ids", failed),
			zap.Error(err),
		)
		// The sale is recorded, so reports and the receipt archive must see it.
		s.afterSale(ctx, *saved)
		return nil, &PartialStockUpdateError{SaleID: saved.ID, Failed: failed}
	}
	return saved, nil
}

// afterSale runs the best-effort steps that follow a recorded sale. None of
// them can fail the checkout.
func (s *Service) afterSale(ctx context.Context, sale domain.Sale) {
	s.invalidateStats(ctx)

	doc := s.renderReceipt(sale)
	archiveCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), archiveTimeout)
	defer cancel()
	if err := s.archive.Put(archiveCtx, "sales/"+doc.FileName, "application/octet-stream", doc.EscPos); err != nil {
		s.logger.Warn("receipt archive failed", zap.String("sale_id", sale.ID), zap.Error(err))
	}
}

func (s *Service) renderReceipt(sale domain.Sale) receipt.Document {
	sale.CreatedAt = sale.CreatedAt.In(s.loc)
	return receipt.Render(sale, s.storeName)
}

func (s *Service) checkoutResponse(sale *domain.Sale, duplicate bool) domain.CheckoutResponse {
	itemCount := 0
	for _, item := range sale.Items {
		itemCount += item.Quantity
	}
	return domain.CheckoutResponse{
		SaleID:    sale.ID,
		Status:    sale.Status,
		Subtotal:  sale.Subtotal,
		Discount:  sale.DiscountAmount,
		Total:     sale.Total,
		ItemCount: itemCount,
		Duplicate: duplicate,
		State:     StateCompleted.String(),
		Receipt:   s.renderReceipt(*sale).Text,
		CreatedAt: sale.CreatedAt.Format(time.RFC3339),
	}
}

// normalizeLines merges repeated products and drops empty lines, keeping the
// order in which products first appear.
func normalizeLines(lines []domain.CheckoutLine) []domain.CheckoutLine {
	index := make(map[string]int, len(lines))
	out := make([]domain.CheckoutLine, 0, len(lines))
	for _, line := range lines {
		if line.ProductID == "" || line.Quantity < 1 {
			continue
		}
		if i, ok := index[line.ProductID]; ok {
			out[i].Quantity += line.Quantity
			continue
		}
		index[line.ProductID] = len(out)
		out = append(out, line)
	}
	return out
}
