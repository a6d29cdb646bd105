package service

import (
	"context"
	"errors"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"vendepos/backend/internal/domain"
	"vendepos/backend/internal/pricing"
	"vendepos/backend/internal/store"
)

const minCodeLength = 3

type ProductQuery struct {
	Category string
	Search   string
	LowStock bool
}

func (s *Service) ListProducts(ctx context.Context, query ProductQuery) ([]domain.Product, error) {
	if _, err := s.authorize(ctx, domain.CapViewCatalog); err != nil {
		return nil, err
	}

	filter := domain.ProductFilter{
		Category: strings.TrimSpace(query.Category),
		Search:   strings.TrimSpace(query.Search),
	}
	if query.LowStock {
		threshold := s.lowStock
		filter.MaxStock = &threshold
	}

	products, err := s.repo.ListProducts(ctx, filter)
	if err != nil {
		return nil, storeErr("list products", err)
	}
	return products, nil
}

func (s *Service) GetProduct(ctx context.Context, id string) (domain.Product, error) {
	if _, err := s.authorize(ctx, domain.CapViewCatalog); err != nil {
		return domain.Product{}, err
	}
	product, err := s.repo.GetProduct(ctx, strings.TrimSpace(id))
	if err != nil {
		return domain.Product{}, storeErr("get product", err)
	}
	return *product, nil
}

func (s *Service) CreateProduct(ctx context.Context, req domain.ProductCreateRequest) (domain.Product, error) {
	principal, err := s.authorize(ctx, domain.CapManageCatalog)
	if err != nil {
		return domain.Product{}, err
	}

	now := s.now().UTC()
	product := domain.Product{
		ID:         uuid.NewString(),
		Name:       strings.TrimSpace(req.Name),
		Code:       strings.ToUpper(strings.TrimSpace(req.Code)),
		BuyPrice:   req.BuyPrice,
		SellPrice:  req.SellPrice,
		Category:   strings.TrimSpace(req.Category),
		Tags:       normalizeList(req.Tags),
		Sizes:      normalizeList(req.Sizes),
		Stock:      req.Stock,
		SupplierID: strings.TrimSpace(req.SupplierID),
		ImageRefs:  normalizeList(req.ImageRefs),
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	if err := s.validateProduct(ctx, product); err != nil {
		return domain.Product{}, err
	}
	product.ProfitPercentage = pricing.ProfitPercentage(product.BuyPrice, product.SellPrice)

	created, err := s.repo.CreateProduct(ctx, product)
	if err != nil {
		return domain.Product{}, storeErr("create product", err)
	}

	s.logger.Info("product created",
		zap.String("product_id", created.ID),
		zap.String("code", created.Code),
		zap.Int("stock", created.Stock),
		zap.String("by", principal.Username),
	)
	s.invalidateStats(ctx)
	return *created, nil
}

func (s *Service) UpdateProduct(ctx context.Context, id string, req domain.ProductUpdateRequest) (domain.Product, error) {
	principal, err := s.authorize(ctx, domain.CapManageCatalog)
	if err != nil {
		return domain.Product{}, err
	}

	existing, err := s.repo.GetProduct(ctx, strings.TrimSpace(id))
	if err != nil {
		return domain.Product{}, storeErr("get product", err)
	}

	updated := *existing
	if req.Name != nil {
		updated.Name = strings.TrimSpace(*req.Name)
	}
	if req.Code != nil {
		updated.Code = strings.ToUpper(strings.TrimSpace(*req.Code))
	}
	if req.BuyPrice != nil {
		updated.BuyPrice = *req.BuyPrice
	}
	if req.SellPrice != nil {
		updated.SellPrice = *req.SellPrice
	}
	if req.Category != nil {
		updated.Category = strings.TrimSpace(*req.Category)
	}
	if req.Tags != nil {
		updated.Tags = normalizeList(req.Tags)
	}
	if req.Sizes != nil {
		updated.Sizes = normalizeList(req.Sizes)
	}
	if req.Stock != nil {
		updated.Stock = *req.Stock
	}
	if req.SupplierID != nil {
		updated.SupplierID = strings.TrimSpace(*req.SupplierID)
	}
	if req.ImageRefs != nil {
		updated.ImageRefs = normalizeList(req.ImageRefs)
	}
	if err := s.validateProduct(ctx, updated); err != nil {
		return domain.Product{}, err
	}
	updated.ProfitPercentage = pricing.ProfitPercentage(updated.BuyPrice, updated.SellPrice)
	updated.UpdatedAt = s.now().UTC()

	saved, err := s.repo.UpdateProduct(ctx, updated)
	if err != nil {
		return domain.Product{}, storeErr("update product", err)
	}

	s.logger.Info("product updated",
		zap.String("product_id", saved.ID),
		zap.String("code", saved.Code),
		zap.String("by", principal.Username),
	)
	s.invalidateStats(ctx)
	return *saved, nil
}

func (s *Service) validateProduct(ctx context.Context, p domain.Product) error {
	if p.Name == "" {
		return invalid("name is required")
	}
	if len([]rune(p.Code)) < minCodeLength {
		return invalid("code must be at least %d characters", minCodeLength)
	}
	if p.BuyPrice.IsNegative() || p.SellPrice.IsNegative() {
		return invalid("prices must not be negative")
	}
	if !p.SellPrice.GreaterThan(p.BuyPrice) {
		return invalid("sell price must be greater than buy price")
	}
	if p.Stock < 0 {
		return invalid("stock must not be negative")
	}
	if p.SupplierID != "" {
		if _, err := s.repo.GetSupplier(ctx, p.SupplierID); err != nil {
			if errors.Is(err, store.ErrNotFound) {
				return invalid("supplier %s does not exist", p.SupplierID)
			}
			return storeErr("get supplier", err)
		}
	}
	return nil
}

func (s *Service) CreateSupplier(ctx context.Context, req domain.SupplierCreateRequest) (domain.Supplier, error) {
	principal, err := s.authorize(ctx, domain.CapManageSuppliers)
	if err != nil {
		return domain.Supplier{}, err
	}

	supplier := domain.Supplier{
		ID:        uuid.NewString(),
		Name:      strings.TrimSpace(req.Name),
		Phone:     strings.TrimSpace(req.Phone),
		Email:     strings.TrimSpace(req.Email),
		Notes:     strings.TrimSpace(req.Notes),
		CreatedAt: s.now().UTC(),
	}
	if supplier.Name == "" {
		return domain.Supplier{}, invalid("supplier name is required")
	}

	saved, err := s.repo.CreateSupplier(ctx, supplier)
	if err != nil {
		return domain.Supplier{}, storeErr("create supplier", err)
	}

	s.logger.Info("supplier created", zap.String("supplier_id", saved.ID), zap.String("by", principal.Username))
	return *saved, nil
}

func (s *Service) ListSuppliers(ctx context.Context) ([]domain.Supplier, error) {
	if _, err := s.authorize(ctx, domain.CapViewCatalog); err != nil {
		return nil, err
	}
	suppliers, err := s.repo.ListSuppliers(ctx)
	if err != nil {
		return nil, storeErr("list suppliers", err)
	}
	return suppliers, nil
}

func normalizeList(values []string) []string {
	out := make([]string, 0, len(values))
	seen := make(map[string]struct{}, len(values))
	for _, v := range values {
		v = strings.TrimSpace(v)
		if v == "" {
			continue
		}
		if _, dup := seen[v]; dup {
			continue
		}
		seen[v] = struct{}{}
		out = append(out, v)
	}
	return out
}
