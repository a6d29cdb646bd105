package store

import (
	"context"
	"errors"
	"time"

	"vendepos/backend/internal/domain"
)

var (
	ErrNotFound          = errors.New("not found")
	ErrInsufficientStock = errors.New("insufficient stock")
	ErrInvalid           = errors.New("invalid record")
	ErrConflict          = errors.New("conflict")
)

type CatalogStore interface {
	ListProducts(ctx context.Context, filter domain.ProductFilter) ([]domain.Product, error)
	GetProduct(ctx context.Context, id string) (*domain.Product, error)
	GetProductsByIDs(ctx context.Context, ids []string) (map[string]domain.Product, error)
	CreateProduct(ctx context.Context, product domain.Product) (*domain.Product, error)
	UpdateProduct(ctx context.Context, product domain.Product) (*domain.Product, error)
	// AdjustStock adds delta to the product's stock without a floor check.
	// A negative delta also stamps LastSoldAt with at.
	AdjustStock(ctx context.Context, id string, delta int, at time.Time) error
	ListSuppliers(ctx context.Context) ([]domain.Supplier, error)
	GetSupplier(ctx context.Context, id string) (*domain.Supplier, error)
	CreateSupplier(ctx context.Context, supplier domain.Supplier) (*domain.Supplier, error)
}

type SalesStore interface {
	// CreateSale writes the sale record only. Stock is left untouched.
	CreateSale(ctx context.Context, sale domain.Sale) (*domain.Sale, error)
	// CommitSale writes the sale and applies its stock decrements atomically.
	// It fails with ErrInsufficientStock, writing nothing, when any product
	// lacks stock at commit time.
	CommitSale(ctx context.Context, sale domain.Sale) (*domain.Sale, error)
	FindSaleByID(ctx context.Context, id string) (*domain.Sale, error)
	FindSaleByIdempotency(ctx context.Context, key string) (*domain.Sale, error)
	// QuerySales returns sales created in [start, end), newest first.
	QuerySales(ctx context.Context, start time.Time, end time.Time) ([]domain.Sale, error)
}

type UserStore interface {
	CreateUser(ctx context.Context, user domain.UserAccount) error
	GetUserByUsername(ctx context.Context, username string) (*domain.UserAccount, error)
	ListUsers(ctx context.Context) ([]domain.UserAccount, error)
}

type Repository interface {
	CatalogStore
	SalesStore
	UserStore
}
