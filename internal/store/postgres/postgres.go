package postgres

import (
	"context"
	"database/sql"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
	_ "github.com/jackc/pgx/v5/stdlib"

	"vendepos/backend/internal/domain"
	"vendepos/backend/internal/store"
)

//go:embed schema.sql
var schema string

const productColumns = `id, name, code, buy_price, sell_price, profit_percentage, category,
	tags, sizes, stock, COALESCE(supplier_id,''), image_refs, last_sold_at, created_at, updated_at`

const saleColumns = `id, COALESCE(idempotency_key,''), subtotal, discount_amount, discount_type,
	discount_value, total, payment_method, customer_name, is_exchange, seller_id, seller_name,
	status, created_at`

type Store struct {
	db *sql.DB
}

func New(ctx context.Context, databaseURL string) (*Store, error) {
	db, err := sql.Open("pgx", databaseURL)
	if err != nil {
		return nil, err
	}

	db.SetMaxIdleConns(8)
	db.SetMaxOpenConns(30)
	db.SetConnMaxLifetime(30 * time.Minute)

	pingCtx, cancel := context.WithTimeout(ctx, 6*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, err
	}

	return &Store{db: db}, nil
}

// NewWithDB wraps an existing handle. Used with sqlmock in tests.
func NewWithDB(db *sql.DB) *Store {
	return &Store{db: db}
}

func (s *Store) Close() error {
	return s.db.Close()
}

// Migrate creates missing tables. Statements are idempotent.
func (s *Store) Migrate(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("apply schema: %w", err)
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanProduct(row rowScanner) (domain.Product, error) {
	var (
		p                      domain.Product
		tags, sizes, imageRefs []byte
		lastSold               sql.NullTime
	)
	err := row.Scan(&p.ID, &p.Name, &p.Code, &p.BuyPrice, &p.SellPrice, &p.ProfitPercentage, &p.Category,
		&tags, &sizes, &p.Stock, &p.SupplierID, &imageRefs, &lastSold, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		return domain.Product{}, err
	}
	if p.Tags, err = decodeList(tags); err != nil {
		return domain.Product{}, err
	}
	if p.Sizes, err = decodeList(sizes); err != nil {
		return domain.Product{}, err
	}
	if p.ImageRefs, err = decodeList(imageRefs); err != nil {
		return domain.Product{}, err
	}
	if lastSold.Valid {
		at := lastSold.Time.UTC()
		p.LastSoldAt = &at
	}
	p.CreatedAt = p.CreatedAt.UTC()
	p.UpdatedAt = p.UpdatedAt.UTC()
	return p, nil
}

func (s *Store) ListProducts(ctx context.Context, filter domain.ProductFilter) ([]domain.Product, error) {
	conds := make([]string, 0, 3)
	args := make([]any, 0, 3)
	if category := strings.TrimSpace(filter.Category); category != "" {
		args = append(args, category)
		conds = append(conds, fmt.Sprintf("lower(category) = lower($%d)", len(args)))
	}
	if search := strings.TrimSpace(filter.Search); search != "" {
		args = append(args, "%"+search+"%")
		conds = append(conds, fmt.Sprintf("(name ILIKE $%d OR code ILIKE $%d)", len(args), len(args)))
	}
	if filter.MaxStock != nil {
		args = append(args, *filter.MaxStock)
		conds = append(conds, fmt.Sprintf("stock <= $%d", len(args)))
	}

	query := "SELECT " + productColumns + " FROM products"
	if len(conds) > 0 {
		query += " WHERE " + strings.Join(conds, " AND ")
	}
	query += " ORDER BY name, id"

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	products := make([]domain.Product, 0, 64)
	for rows.Next() {
		p, err := scanProduct(rows)
		if err != nil {
			return nil, err
		}
		products = append(products, p)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return products, nil
}

func (s *Store) GetProduct(ctx context.Context, id string) (*domain.Product, error) {
	row := s.db.QueryRowContext(ctx, "SELECT "+productColumns+" FROM products WHERE id = $1", id)
	p, err := scanProduct(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	return &p, nil
}

func (s *Store) GetProductsByIDs(ctx context.Context, ids []string) (map[string]domain.Product, error) {
	result := make(map[string]domain.Product, len(ids))
	if len(ids) == 0 {
		return result, nil
	}

	rows, err := s.db.QueryContext(ctx, "SELECT "+productColumns+" FROM products WHERE id = ANY($1)", ids)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	for rows.Next() {
		p, err := scanProduct(rows)
		if err != nil {
			return nil, err
		}
		result[p.ID] = p
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}

func (s *Store) CreateProduct(ctx context.Context, product domain.Product) (*domain.Product, error) {
	if product.Name == "" || product.Code == "" {
		return nil, store.ErrInvalid
	}
	if product.ID == "" {
		product.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	if product.CreatedAt.IsZero() {
		product.CreatedAt = now
	}
	if product.UpdatedAt.IsZero() {
		product.UpdatedAt = now
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO products (id, name, code, buy_price, sell_price, profit_percentage, category,
			tags, sizes, stock, supplier_id, image_refs, last_sold_at, created_at, updated_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15)
	`, product.ID, product.Name, product.Code, product.BuyPrice, product.SellPrice, product.ProfitPercentage,
		product.Category, encodeList(product.Tags), encodeList(product.Sizes), product.Stock,
		nullIfEmpty(product.SupplierID), encodeList(product.ImageRefs), nullTime(product.LastSoldAt),
		product.CreatedAt, product.UpdatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, store.ErrConflict
		}
		return nil, err
	}

	created := product
	return &created, nil
}

func (s *Store) UpdateProduct(ctx context.Context, product domain.Product) (*domain.Product, error) {
	if product.ID == "" || product.Name == "" || product.Code == "" {
		return nil, store.ErrInvalid
	}
	if product.UpdatedAt.IsZero() {
		product.UpdatedAt = time.Now().UTC()
	}

	res, err := s.db.ExecContext(ctx, `
		UPDATE products
		SET name = $2, code = $3, buy_price = $4, sell_price = $5, profit_percentage = $6,
			category = $7, tags = $8, sizes = $9, stock = $10, supplier_id = $11,
			image_refs = $12, updated_at = $13
		WHERE id = $1
	`, product.ID, product.Name, product.Code, product.BuyPrice, product.SellPrice, product.ProfitPercentage,
		product.Category, encodeList(product.Tags), encodeList(product.Sizes), product.Stock,
		nullIfEmpty(product.SupplierID), encodeList(product.ImageRefs), product.UpdatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, store.ErrConflict
		}
		return nil, err
	}
	if affected, err := res.RowsAffected(); err == nil && affected == 0 {
		return nil, store.ErrNotFound
	}

	updated := product
	return &updated, nil
}

func (s *Store) AdjustStock(ctx context.Context, id string, delta int, at time.Time) error {
	var lastSold *time.Time
	if delta < 0 {
		lastSold = &at
	}
	res, err := s.db.ExecContext(ctx, `
		UPDATE products
		SET stock = stock + $1, last_sold_at = COALESCE($2, last_sold_at), updated_at = $3
		WHERE id = $4
	`, delta, nullTime(lastSold), at, id)
	if err != nil {
		return err
	}
	if affected, err := res.RowsAffected(); err == nil && affected == 0 {
		return store.ErrNotFound
	}
	return nil
}

func (s *Store) ListSuppliers(ctx context.Context) ([]domain.Supplier, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, name, phone, email, notes, created_at
		FROM suppliers
		ORDER BY name
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	suppliers := make([]domain.Supplier, 0, 16)
	for rows.Next() {
		var sup domain.Supplier
		if err := rows.Scan(&sup.ID, &sup.Name, &sup.Phone, &sup.Email, &sup.Notes, &sup.CreatedAt); err != nil {
			return nil, err
		}
		sup.CreatedAt = sup.CreatedAt.UTC()
		suppliers = append(suppliers, sup)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return suppliers, nil
}

func (s *Store) GetSupplier(ctx context.Context, id string) (*domain.Supplier, error) {
	var sup domain.Supplier
	err := s.db.QueryRowContext(ctx, `
		SELECT id, name, phone, email, notes, created_at
		FROM suppliers
		WHERE id = $1
	`, id).Scan(&sup.ID, &sup.Name, &sup.Phone, &sup.Email, &sup.Notes, &sup.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	sup.CreatedAt = sup.CreatedAt.UTC()
	return &sup, nil
}

func (s *Store) CreateSupplier(ctx context.Context, supplier domain.Supplier) (*domain.Supplier, error) {
	if strings.TrimSpace(supplier.Name) == "" {
		return nil, store.ErrInvalid
	}
	if supplier.ID == "" {
		supplier.ID = uuid.NewString()
	}
	if supplier.CreatedAt.IsZero() {
		supplier.CreatedAt = time.Now().UTC()
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO suppliers (id, name, phone, email, notes, created_at)
		VALUES ($1,$2,$3,$4,$5,$6)
	`, supplier.ID, supplier.Name, supplier.Phone, supplier.Email, supplier.Notes, supplier.CreatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, store.ErrConflict
		}
		return nil, err
	}
	return &supplier, nil
}

func (s *Store) FindSaleByID(ctx context.Context, id string) (*domain.Sale, error) {
	return s.findSale(ctx, "id", id)
}

func (s *Store) FindSaleByIdempotency(ctx context.Context, key string) (*domain.Sale, error) {
	if key == "" {
		return nil, store.ErrNotFound
	}
	return s.findSale(ctx, "idempotency_key", key)
}

func scanSale(row rowScanner) (domain.Sale, error) {
	var sale domain.Sale
	err := row.Scan(&sale.ID, &sale.IdempotencyKey, &sale.Subtotal, &sale.DiscountAmount, &sale.DiscountType,
		&sale.DiscountValue, &sale.Total, &sale.PaymentMethod, &sale.CustomerName, &sale.IsExchange,
		&sale.SellerID, &sale.SellerName, &sale.Status, &sale.CreatedAt)
	if err != nil {
		return domain.Sale{}, err
	}
	sale.CreatedAt = sale.CreatedAt.UTC()
	return sale, nil
}

func (s *Store) findSale(ctx context.Context, column string, value string) (*domain.Sale, error) {
	if column != "id" && column != "idempotency_key" {
		return nil, fmt.Errorf("unsupported lookup column")
	}

	row := s.db.QueryRowContext(ctx, fmt.Sprintf("SELECT %s FROM sales WHERE %s = $1", saleColumns, column), value)
	sale, err := scanSale(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT sale_id, product_id, name, code, quantity, unit_price, unit_cost, line_subtotal
		FROM sale_items
		WHERE sale_id = $1
		ORDER BY position ASC
	`, sale.ID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	items, err := scanSaleItems(rows)
	if err != nil {
		return nil, err
	}
	sale.Items = items[sale.ID]
	return &sale, nil
}

func scanSaleItems(rows *sql.Rows) (map[string][]domain.SaleItem, error) {
	bySale := make(map[string][]domain.SaleItem)
	for rows.Next() {
		var (
			saleID string
			item   domain.SaleItem
		)
		if err := rows.Scan(&saleID, &item.ProductID, &item.Name, &item.Code, &item.Quantity,
			&item.UnitPrice, &item.UnitCost, &item.LineSubtotal); err != nil {
			return nil, err
		}
		bySale[saleID] = append(bySale[saleID], item)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return bySale, nil
}

func prepareSale(sale *domain.Sale) error {
	if len(sale.Items) == 0 {
		return store.ErrInvalid
	}
	if sale.ID == "" {
		sale.ID = uuid.NewString()
	}
	if sale.CreatedAt.IsZero() {
		sale.CreatedAt = time.Now().UTC()
	}
	if sale.Status == "" {
		sale.Status = domain.SaleStatusCompleted
	}
	return nil
}

type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

func insertSale(ctx context.Context, db execer, sale domain.Sale) error {
	_, err := db.ExecContext(ctx, `
		INSERT INTO sales (id, idempotency_key, subtotal, discount_amount, discount_type, discount_value,
			total, payment_method, customer_name, is_exchange, seller_id, seller_name, status, created_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14)
	`, sale.ID, nullIfEmpty(sale.IdempotencyKey), sale.Subtotal, sale.DiscountAmount, string(sale.DiscountType),
		sale.DiscountValue, sale.Total, string(sale.PaymentMethod), sale.CustomerName, sale.IsExchange,
		sale.SellerID, sale.SellerName, sale.Status, sale.CreatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return store.ErrConflict
		}
		return err
	}

	for i, item := range sale.Items {
		_, err := db.ExecContext(ctx, `
			INSERT INTO sale_items (sale_id, position, product_id, name, code, quantity, unit_price, unit_cost, line_subtotal)
			VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)
		`, sale.ID, i, item.ProductID, item.Name, item.Code, item.Quantity, item.UnitPrice, item.UnitCost, item.LineSubtotal)
		if err != nil {
			return err
		}
	}
	return nil
}

// CreateSale writes the sale and its items in one transaction without
// touching stock.
func (s *Store) CreateSale(ctx context.Context, sale domain.Sale) (*domain.Sale, error) {
	if err := prepareSale(&sale); err != nil {
		return nil, err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback() }()

	if err := insertSale(ctx, tx, sale); err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, err
	}
	return &sale, nil
}

// CommitSale locks every affected product row in ID order, re-checks stock
// against the locked values, then writes the sale and decrements stock. Any
// failure rolls the whole transaction back.
func (s *Store) CommitSale(ctx context.Context, sale domain.Sale) (*domain.Sale, error) {
	if err := prepareSale(&sale); err != nil {
		return nil, err
	}

	need := make(map[string]int, len(sale.Items))
	for _, d := range sale.StockDecrements() {
		if d.Quantity < 1 {
			return nil, store.ErrInvalid
		}
		need[d.ProductID] += d.Quantity
	}
	ids := make([]string, 0, len(need))
	for id := range need {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelReadCommitted})
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback() }()

	for _, id := range ids {
		var stock int
		err := tx.QueryRowContext(ctx, `SELECT stock FROM products WHERE id = $1 FOR UPDATE`, id).Scan(&stock)
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return nil, fmt.Errorf("product %s: %w", id, store.ErrNotFound)
			}
			return nil, err
		}
		if stock < need[id] {
			return nil, fmt.Errorf("product %s: %w", id, store.ErrInsufficientStock)
		}
	}

	if err := insertSale(ctx, tx, sale); err != nil {
		return nil, err
	}

	for _, id := range ids {
		_, err := tx.ExecContext(ctx, `
			UPDATE products
			SET stock = stock - $1, last_sold_at = $2, updated_at = $2
			WHERE id = $3
		`, need[id], sale.CreatedAt, id)
		if err != nil {
			return nil, err
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, err
	}
	return &sale, nil
}

func (s *Store) QuerySales(ctx context.Context, start time.Time, end time.Time) ([]domain.Sale, error) {
	rows, err := s.db.QueryContext(ctx, fmt.Sprintf(`
		SELECT %s
		FROM sales
		WHERE created_at >= $1 AND created_at < $2
		ORDER BY created_at DESC, id DESC
	`, saleColumns), start, end)
	if err != nil {
		return nil, err
	}
	sales := make([]domain.Sale, 0, 64)
	for rows.Next() {
		sale, err := scanSale(rows)
		if err != nil {
			_ = rows.Close()
			return nil, err
		}
		sales = append(sales, sale)
	}
	if err := rows.Err(); err != nil {
		_ = rows.Close()
		return nil, err
	}
	_ = rows.Close()
	if len(sales) == 0 {
		return sales, nil
	}

	itemRows, err := s.db.QueryContext(ctx, `
		SELECT si.sale_id, si.product_id, si.name, si.code, si.quantity, si.unit_price, si.unit_cost, si.line_subtotal
		FROM sale_items si
		JOIN sales s ON s.id = si.sale_id
		WHERE s.created_at >= $1 AND s.created_at < $2
		ORDER BY si.sale_id, si.position
	`, start, end)
	if err != nil {
		return nil, err
	}
	defer itemRows.Close()

	items, err := scanSaleItems(itemRows)
	if err != nil {
		return nil, err
	}
	for i := range sales {
		sales[i].Items = items[sales[i].ID]
	}
	return sales, nil
}

func (s *Store) CreateUser(ctx context.Context, user domain.UserAccount) error {
	username := strings.ToLower(strings.TrimSpace(user.Username))
	if username == "" || strings.TrimSpace(user.PasswordHash) == "" || !user.Role.Valid() {
		return store.ErrInvalid
	}
	if user.ID == "" {
		user.ID = uuid.NewString()
	}
	if user.CreatedAt.IsZero() {
		user.CreatedAt = time.Now().UTC()
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO users (id, username, display_name, password_hash, role, active, created_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7)
	`, user.ID, username, user.DisplayName, user.PasswordHash, string(user.Role), user.Active, user.CreatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return store.ErrConflict
		}
		return err
	}
	return nil
}

func (s *Store) GetUserByUsername(ctx context.Context, username string) (*domain.UserAccount, error) {
	var user domain.UserAccount
	err := s.db.QueryRowContext(ctx, `
		SELECT id, username, display_name, password_hash, role, active, created_at
		FROM users
		WHERE username = $1
	`, strings.ToLower(strings.TrimSpace(username))).Scan(
		&user.ID, &user.Username, &user.DisplayName, &user.PasswordHash, &user.Role, &user.Active, &user.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	user.CreatedAt = user.CreatedAt.UTC()
	return &user, nil
}

func (s *Store) ListUsers(ctx context.Context) ([]domain.UserAccount, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, username, display_name, password_hash, role, active, created_at
		FROM users
		ORDER BY username
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	users := make([]domain.UserAccount, 0, 8)
	for rows.Next() {
		var user domain.UserAccount
		if err := rows.Scan(&user.ID, &user.Username, &user.DisplayName, &user.PasswordHash, &user.Role, &user.Active, &user.CreatedAt); err != nil {
			return nil, err
		}
		user.CreatedAt = user.CreatedAt.UTC()
		users = append(users, user)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return users, nil
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23505"
	}
	return false
}

func encodeList(values []string) string {
	if values == nil {
		values = []string{}
	}
	raw, err := json.Marshal(values)
	if err != nil {
		return "[]"
	}
	return string(raw)
}

func decodeList(raw []byte) ([]string, error) {
	out := []string{}
	if len(raw) == 0 {
		return out, nil
	}
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, fmt.Errorf("decode list column: %w", err)
	}
	return out, nil
}

func nullIfEmpty(val string) any {
	if val == "" {
		return nil
	}
	return val
}

func nullTime(val *time.Time) any {
	if val == nil {
		return nil
	}
	return *val
}
