package memory

import (
	"context"
	"fmt"
	"os"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"vendepos/backend/internal/domain"
	"vendepos/backend/internal/pricing"
	"vendepos/backend/internal/store"
)

type Store struct {
	mu              sync.RWMutex
	products        map[string]domain.Product
	suppliers       map[string]domain.Supplier
	salesByID       map[string]*domain.Sale
	salesByIdem     map[string]*domain.Sale
	usersByUsername map[string]domain.UserAccount
}

func New() *Store {
	return &Store{
		products:        make(map[string]domain.Product),
		suppliers:       make(map[string]domain.Supplier),
		salesByID:       make(map[string]*domain.Sale),
		salesByIdem:     make(map[string]*domain.Sale),
		usersByUsername: make(map[string]domain.UserAccount),
	}
}

// NewSeeded returns a store with a demo catalog and two accounts. Passwords
// come from SEED_ADMIN_PASSWORD and SEED_SELLER_PASSWORD, with dev defaults
// when unset. Only used when DATABASE_URL is empty.
func NewSeeded(logger *zap.Logger) (*Store, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := New()
	now := time.Now().UTC()

	suppliers := []domain.Supplier{
		{ID: uuid.NewString(), Name: "Textil Norte", Phone: "+54 11 4000-1000", Email: "ventas@textilnorte.example", CreatedAt: now},
		{ID: uuid.NewString(), Name: "Accesorios del Sur", Phone: "+54 11 4000-2000", CreatedAt: now},
	}
	for _, sup := range suppliers {
		s.suppliers[sup.ID] = sup
	}

	seed := []struct {
		name, code, category string
		buy, sell            int64
		stock                int
		sizes                []string
		supplier             int
	}{
		{"Remera lisa", "REM-001", "remeras", 4500, 9000, 40, []string{"S", "M", "L", "XL"}, 0},
		{"Remera estampada", "REM-002", "remeras", 5200, 11000, 25, []string{"S", "M", "L"}, 0},
		{"Jean recto", "JEA-001", "pantalones", 12000, 24000, 18, []string{"38", "40", "42", "44"}, 0},
		{"Buzo canguro", "BUZ-001", "abrigos", 15000, 29000, 12, []string{"M", "L", "XL"}, 0},
		{"Campera rompeviento", "CAM-001", "abrigos", 22000, 42000, 4, []string{"M", "L"}, 0},
		{"Medias pack x3", "MED-001", "accesorios", 1800, 3900, 60, nil, 1},
		{"Gorra", "GOR-001", "accesorios", 3000, 7500, 3, nil, 1},
		{"Cinturon cuero", "CIN-001", "accesorios", 6000, 13500, 9, []string{"90", "100"}, 1},
	}
	for _, p := range seed {
		buy, sell := decimal.NewFromInt(p.buy), decimal.NewFromInt(p.sell)
		product := domain.Product{
			ID:               uuid.NewString(),
			Name:             p.name,
			Code:             p.code,
			BuyPrice:         buy,
			SellPrice:        sell,
			ProfitPercentage: pricing.ProfitPercentage(buy, sell),
			Category:         p.category,
			Tags:             []string{p.category},
			Sizes:            p.sizes,
			Stock:            p.stock,
			SupplierID:       suppliers[p.supplier].ID,
			ImageRefs:        []string{},
			CreatedAt:        now,
			UpdatedAt:        now,
		}
		s.products[product.ID] = product
	}

	adminPwd := envOr("SEED_ADMIN_PASSWORD", "admin123")
	sellerPwd := envOr("SEED_SELLER_PASSWORD", "seller123")
	if os.Getenv("SEED_ADMIN_PASSWORD") == "" || os.Getenv("SEED_SELLER_PASSWORD") == "" {
		logger.Warn("memory store is using default dev credentials; set SEED_ADMIN_PASSWORD and SEED_SELLER_PASSWORD to override")
	}
	for _, u := range []struct {
		username, display, password string
		role                        domain.Role
	}{
		{"admin", "Administrador", adminPwd, domain.RoleAdmin},
		{"vendedor", "Vendedor", sellerPwd, domain.RoleSeller},
	} {
		hash, err := bcrypt.GenerateFromPassword([]byte(u.password), bcrypt.DefaultCost)
		if err != nil {
			return nil, fmt.Errorf("hash seed password for %s: %w", u.username, err)
		}
		s.usersByUsername[u.username] = domain.UserAccount{
			ID:           uuid.NewString(),
			Username:     u.username,
			DisplayName:  u.display,
			PasswordHash: string(hash),
			Role:         u.role,
			Active:       true,
			CreatedAt:    now,
		}
	}
	return s, nil
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func (s *Store) ListProducts(_ context.Context, filter domain.ProductFilter) ([]domain.Product, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	category := strings.TrimSpace(filter.Category)
	search := strings.ToLower(strings.TrimSpace(filter.Search))

	products := make([]domain.Product, 0, len(s.products))
	for _, p := range s.products {
		if category != "" && !strings.EqualFold(p.Category, category) {
			continue
		}
		if search != "" && !strings.Contains(strings.ToLower(p.Name), search) && !strings.Contains(strings.ToLower(p.Code), search) {
			continue
		}
		if filter.MaxStock != nil && p.Stock > *filter.MaxStock {
			continue
		}
		products = append(products, cloneProduct(p))
	}

	slices.SortFunc(products, func(a, b domain.Product) int {
		if c := strings.Compare(a.Name, b.Name); c != 0 {
			return c
		}
		return strings.Compare(a.ID, b.ID)
	})
	return products, nil
}

func (s *Store) GetProduct(_ context.Context, id string) (*domain.Product, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	product, ok := s.products[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	dup := cloneProduct(product)
	return &dup, nil
}

func (s *Store) GetProductsByIDs(_ context.Context, ids []string) (map[string]domain.Product, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make(map[string]domain.Product, len(ids))
	for _, id := range ids {
		if p, ok := s.products[id]; ok {
			out[id] = cloneProduct(p)
		}
	}
	return out, nil
}

func (s *Store) codeTaken(code string, exceptID string) bool {
	for _, p := range s.products {
		if p.ID != exceptID && strings.EqualFold(p.Code, code) {
			return true
		}
	}
	return false
}

func (s *Store) CreateProduct(_ context.Context, product domain.Product) (*domain.Product, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if product.Name == "" || product.Code == "" {
		return nil, store.ErrInvalid
	}
	if product.ID == "" {
		product.ID = uuid.NewString()
	}
	if _, exists := s.products[product.ID]; exists {
		return nil, store.ErrConflict
	}
	if s.codeTaken(product.Code, "") {
		return nil, store.ErrConflict
	}

	s.products[product.ID] = cloneProduct(product)
	created := cloneProduct(product)
	return &created, nil
}

func (s *Store) UpdateProduct(_ context.Context, product domain.Product) (*domain.Product, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if product.ID == "" || product.Name == "" || product.Code == "" {
		return nil, store.ErrInvalid
	}
	if _, exists := s.products[product.ID]; !exists {
		return nil, store.ErrNotFound
	}
	if s.codeTaken(product.Code, product.ID) {
		return nil, store.ErrConflict
	}

	s.products[product.ID] = cloneProduct(product)
	updated := cloneProduct(product)
	return &updated, nil
}

func (s *Store) AdjustStock(_ context.Context, id string, delta int, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	product, ok := s.products[id]
	if !ok {
		return store.ErrNotFound
	}
	product.Stock += delta
	product.UpdatedAt = at
	if delta < 0 {
		stamp := at
		product.LastSoldAt = &stamp
	}
	s.products[id] = product
	return nil
}

func (s *Store) ListSuppliers(_ context.Context) ([]domain.Supplier, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	suppliers := make([]domain.Supplier, 0, len(s.suppliers))
	for _, sup := range s.suppliers {
		suppliers = append(suppliers, sup)
	}
	slices.SortFunc(suppliers, func(a, b domain.Supplier) int {
		return strings.Compare(a.Name, b.Name)
	})
	return suppliers, nil
}

func (s *Store) GetSupplier(_ context.Context, id string) (*domain.Supplier, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	sup, ok := s.suppliers[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	return &sup, nil
}

func (s *Store) CreateSupplier(_ context.Context, supplier domain.Supplier) (*domain.Supplier, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if strings.TrimSpace(supplier.Name) == "" {
		return nil, store.ErrInvalid
	}
	if supplier.ID == "" {
		supplier.ID = uuid.NewString()
	}
	if _, exists := s.suppliers[supplier.ID]; exists {
		return nil, store.ErrConflict
	}
	if supplier.CreatedAt.IsZero() {
		supplier.CreatedAt = time.Now().UTC()
	}
	s.suppliers[supplier.ID] = supplier
	return &supplier, nil
}

func (s *Store) FindSaleByID(_ context.Context, id string) (*domain.Sale, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	sale, ok := s.salesByID[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	return cloneSale(sale), nil
}

func (s *Store) FindSaleByIdempotency(_ context.Context, key string) (*domain.Sale, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	sale, ok := s.salesByIdem[key]
	if !ok || key == "" {
		return nil, store.ErrNotFound
	}
	return cloneSale(sale), nil
}

// prepareSale must be called with the write lock held.
func (s *Store) prepareSale(sale *domain.Sale) error {
	if len(sale.Items) == 0 {
		return store.ErrInvalid
	}
	if sale.IdempotencyKey != "" {
		if _, exists := s.salesByIdem[sale.IdempotencyKey]; exists {
			return store.ErrConflict
		}
	}
	if sale.ID == "" {
		sale.ID = uuid.NewString()
	}
	if _, exists := s.salesByID[sale.ID]; exists {
		return store.ErrConflict
	}
	if sale.CreatedAt.IsZero() {
		sale.CreatedAt = time.Now().UTC()
	}
	if sale.Status == "" {
		sale.Status = domain.SaleStatusCompleted
	}
	return nil
}

func (s *Store) insertSale(sale domain.Sale) *domain.Sale {
	stored := cloneSale(&sale)
	s.salesByID[stored.ID] = stored
	if stored.IdempotencyKey != "" {
		s.salesByIdem[stored.IdempotencyKey] = stored
	}
	return cloneSale(stored)
}

func (s *Store) CreateSale(_ context.Context, sale domain.Sale) (*domain.Sale, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.prepareSale(&sale); err != nil {
		return nil, err
	}
	return s.insertSale(sale), nil
}

func (s *Store) CommitSale(_ context.Context, sale domain.Sale) (*domain.Sale, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.prepareSale(&sale); err != nil {
		return nil, err
	}

	need := map[string]int{}
	for _, d := range sale.StockDecrements() {
		if d.Quantity < 1 {
			return nil, store.ErrInvalid
		}
		need[d.ProductID] += d.Quantity
	}
	for id, qty := range need {
		product, ok := s.products[id]
		if !ok {
			return nil, fmt.Errorf("product %s: %w", id, store.ErrNotFound)
		}
		if product.Stock < qty {
			return nil, fmt.Errorf("product %s: %w", id, store.ErrInsufficientStock)
		}
	}

	for id, qty := range need {
		product := s.products[id]
		product.Stock -= qty
		stamp := sale.CreatedAt
		product.LastSoldAt = &stamp
		product.UpdatedAt = sale.CreatedAt
		s.products[id] = product
	}
	return s.insertSale(sale), nil
}

func (s *Store) QuerySales(_ context.Context, start time.Time, end time.Time) ([]domain.Sale, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	sales := make([]domain.Sale, 0, 32)
	for _, sale := range s.salesByID {
		if sale.CreatedAt.Before(start) || !sale.CreatedAt.Before(end) {
			continue
		}
		sales = append(sales, *cloneSale(sale))
	}
	slices.SortFunc(sales, func(a, b domain.Sale) int {
		if c := b.CreatedAt.Compare(a.CreatedAt); c != 0 {
			return c
		}
		return strings.Compare(b.ID, a.ID)
	})
	return sales, nil
}

func (s *Store) CreateUser(_ context.Context, user domain.UserAccount) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	username := strings.ToLower(strings.TrimSpace(user.Username))
	if username == "" || strings.TrimSpace(user.PasswordHash) == "" || !user.Role.Valid() {
		return store.ErrInvalid
	}
	if _, exists := s.usersByUsername[username]; exists {
		return store.ErrConflict
	}
	user.Username = username
	if user.ID == "" {
		user.ID = uuid.NewString()
	}
	if user.CreatedAt.IsZero() {
		user.CreatedAt = time.Now().UTC()
	}
	s.usersByUsername[username] = user
	return nil
}

func (s *Store) GetUserByUsername(_ context.Context, username string) (*domain.UserAccount, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	user, ok := s.usersByUsername[strings.ToLower(strings.TrimSpace(username))]
	if !ok {
		return nil, store.ErrNotFound
	}
	return &user, nil
}

func (s *Store) ListUsers(_ context.Context) ([]domain.UserAccount, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	users := make([]domain.UserAccount, 0, len(s.usersByUsername))
	for _, user := range s.usersByUsername {
		users = append(users, user)
	}
	slices.SortFunc(users, func(a, b domain.UserAccount) int {
		return strings.Compare(a.Username, b.Username)
	})
	return users, nil
}

func cloneProduct(p domain.Product) domain.Product {
	p.Tags = slices.Clone(p.Tags)
	p.Sizes = slices.Clone(p.Sizes)
	p.ImageRefs = slices.Clone(p.ImageRefs)
	if p.LastSoldAt != nil {
		stamp := *p.LastSoldAt
		p.LastSoldAt = &stamp
	}
	return p
}

func cloneSale(src *domain.Sale) *domain.Sale {
	if src == nil {
		return nil
	}
	dup := *src
	dup.Items = slices.Clone(src.Items)
	return &dup
}
