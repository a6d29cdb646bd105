package service

import (
	"context"
	"strings"

	"go.uber.org/zap"

	"vendepos/backend/internal/cart"
	"vendepos/backend/internal/domain"
)

// Session carts live in the service's registry, one per seller. Stock checks
// use the catalog value at the time of each mutation; checkout re-validates.

func (s *Service) Cart(ctx context.Context) (cart.Snapshot, error) {
	principal, err := s.authorize(ctx, domain.CapCheckout)
	if err != nil {
		return cart.Snapshot{}, err
	}
	return s.carts.Get(principal.ID), nil
}

func (s *Service) AddToCart(ctx context.Context, productID string) (cart.Snapshot, error) {
	principal, err := s.authorize(ctx, domain.CapCheckout)
	if err != nil {
		return cart.Snapshot{}, err
	}
	product, err := s.repo.GetProduct(ctx, strings.TrimSpace(productID))
	if err != nil {
		return cart.Snapshot{}, storeErr("get product", err)
	}
	return s.carts.Update(principal.ID, func(c *cart.Cart) error {
		return c.AddItem(*product, product.Stock)
	})
}

// UpdateCartItem sets a line's quantity. Zero or less removes the line
// without consulting the catalog.
func (s *Service) UpdateCartItem(ctx context.Context, productID string, qty int) (cart.Snapshot, error) {
	principal, err := s.authorize(ctx, domain.CapCheckout)
	if err != nil {
		return cart.Snapshot{}, err
	}
	productID = strings.TrimSpace(productID)

	stock := 0
	if qty > 0 {
		product, err := s.repo.GetProduct(ctx, productID)
		if err != nil {
			return cart.Snapshot{}, storeErr("get product", err)
		}
		stock = product.Stock
	}
	return s.carts.Update(principal.ID, func(c *cart.Cart) error {
		return c.UpdateQuantity(productID, qty, stock)
	})
}

func (s *Service) RemoveCartItem(ctx context.Context, productID string) (cart.Snapshot, error) {
	principal, err := s.authorize(ctx, domain.CapCheckout)
	if err != nil {
		return cart.Snapshot{}, err
	}
	return s.carts.Update(principal.ID, func(c *cart.Cart) error {
		c.RemoveItem(strings.TrimSpace(productID))
		return nil
	})
}

func (s *Service) UpdateCartForm(ctx context.Context, req domain.CartFormUpdate) (cart.Snapshot, error) {
	principal, err := s.authorize(ctx, domain.CapCheckout)
	if err != nil {
		return cart.Snapshot{}, err
	}
	if req.DiscountValue != nil && req.DiscountValue.IsNegative() {
		return cart.Snapshot{}, invalid("discount must not be negative")
	}
	if req.PaymentMethod != nil && !req.PaymentMethod.Valid() {
		return cart.Snapshot{}, invalid("unsupported payment method %q", *req.PaymentMethod)
	}

	return s.carts.Update(principal.ID, func(c *cart.Cart) error {
		if req.CustomerName != nil {
			c.Form.CustomerName = strings.TrimSpace(*req.CustomerName)
		}
		if req.DiscountValue != nil {
			c.Form.DiscountValue = *req.DiscountValue
		}
		if req.DiscountIsPercentage != nil {
			c.Form.DiscountIsPercentage = *req.DiscountIsPercentage
		}
		if req.IsExchange != nil {
			c.Form.IsExchange = *req.IsExchange
		}
		if req.PaymentMethod != nil {
			c.Form.PaymentMethod = *req.PaymentMethod
		}
		return nil
	})
}

func (s *Service) ClearCart(ctx context.Context) (cart.Snapshot, error) {
	principal, err := s.authorize(ctx, domain.CapCheckout)
	if err != nil {
		return cart.Snapshot{}, err
	}
	return s.carts.Update(principal.ID, func(c *cart.Cart) error {
		c.Clear()
		return nil
	})
}

// CheckoutCart checks out the caller's session cart. The cart is cleared
// only when a sale was recorded; on any failure it is left for a retry.
func (s *Service) CheckoutCart(ctx context.Context, req domain.CartCheckoutRequest) (domain.CheckoutResponse, error) {
	principal, err := s.authorize(ctx, domain.CapCheckout)
	if err != nil {
		return domain.CheckoutResponse{}, err
	}

	var lines []domain.CheckoutLine
	snap, _ := s.carts.Update(principal.ID, func(c *cart.Cart) error {
		lines = c.Lines()
		return nil
	})

	resp, err := s.Checkout(ctx, domain.CheckoutRequest{
		IdempotencyKey:       strings.TrimSpace(req.IdempotencyKey),
		Items:                lines,
		PaymentMethod:        snap.Form.PaymentMethod,
		CustomerName:         snap.Form.CustomerName,
		DiscountValue:        snap.Form.DiscountValue,
		DiscountIsPercentage: snap.Form.DiscountIsPercentage,
		IsExchange:           snap.Form.IsExchange,
	})
	if err != nil {
		return domain.CheckoutResponse{}, err
	}

	s.carts.Drop(principal.ID)
	s.logger.Debug("session cart cleared", zap.String("seller", principal.Username), zap.String("sale_id", resp.SaleID))
	return resp, nil
}
