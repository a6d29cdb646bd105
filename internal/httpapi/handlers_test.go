package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"vendepos/backend/internal/cart"
	"vendepos/backend/internal/domain"
	"vendepos/backend/internal/service"
	"vendepos/backend/internal/store/memory"
)

type testEnv struct {
	api     *API
	handler http.Handler
	repo    *memory.Store
	csrf    string
}

// newTestAPI builds a full API with an in-memory store, real AuthManager and
// real Service so handler tests exercise the complete request path.
func newTestAPI(t *testing.T) *testEnv {
	t.Helper()

	repo := memory.New()
	seedUser(t, repo, "admin", "admin-pass", domain.RoleAdmin, true)
	seedUser(t, repo, "vendedor", "seller-pass", domain.RoleSeller, true)

	logger := zaptest.NewLogger(t)
	svc := service.New(repo, service.WithLogger(logger), service.WithStoreName("Tienda Test"))
	api := New(svc, newTestAuth(t, repo), "*", logger)

	env := &testEnv{api: api, handler: api.Handler(), repo: repo}
	env.csrf = fetchCSRFToken(t, env.handler)
	return env
}

func (e *testEnv) seedProduct(t *testing.T, code string, sell int64, stock int) domain.Product {
	t.Helper()
	p, err := e.repo.CreateProduct(context.Background(), domain.Product{
		Name:      "Producto " + code,
		Code:      code,
		BuyPrice:  decimal.NewFromInt(sell / 2),
		SellPrice: decimal.NewFromInt(sell),
		Category:  "general",
		Stock:     stock,
	})
	require.NoError(t, err)
	return *p
}

func (e *testEnv) do(t *testing.T, method string, path string, token string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, reader)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	req.Header.Set("X-CSRF-Token", e.csrf)
	rec := httptest.NewRecorder()
	e.handler.ServeHTTP(rec, req)
	return rec
}

func (e *testEnv) login(t *testing.T, username string, password string) string {
	t.Helper()
	rec := e.do(t, http.MethodPost, "/api/v1/auth/login", "", domain.LoginRequest{Username: username, Password: password})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var resp domain.LoginResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	require.NotEmpty(t, resp.AccessToken)
	return resp.AccessToken
}

func decodeBody[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var out T
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&out), rec.Body.String())
	return out
}

func TestHandleHealth(t *testing.T) {
	env := newTestAPI(t)

	rec := env.do(t, http.MethodGet, "/healthz", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	body := decodeBody[map[string]any](t, rec)
	assert.Equal(t, true, body["ok"])
	assert.Equal(t, "atomic", body["stock_policy"])
}

func TestHandleLoginInvalidCredentials(t *testing.T) {
	env := newTestAPI(t)

	rec := env.do(t, http.MethodPost, "/api/v1/auth/login", "", domain.LoginRequest{Username: "admin", Password: "nope"})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestHandleMe(t *testing.T) {
	env := newTestAPI(t)
	token := env.login(t, "vendedor", "seller-pass")

	rec := env.do(t, http.MethodGet, "/api/v1/auth/me", token, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	body := decodeBody[map[string]any](t, rec)
	assert.Equal(t, "vendedor", body["username"])
	assert.Equal(t, "seller", body["role"])
}

func TestProductsRequireAuth(t *testing.T) {
	env := newTestAPI(t)

	rec := env.do(t, http.MethodGet, "/api/v1/products", "", nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = env.do(t, http.MethodGet, "/api/v1/products", "garbage", nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestProductCatalogEndpoints(t *testing.T) {
	env := newTestAPI(t)
	adminToken := env.login(t, "admin", "admin-pass")
	sellerToken := env.login(t, "vendedor", "seller-pass")

	create := domain.ProductCreateRequest{
		Name:      "Remera",
		Code:      "rem-100",
		BuyPrice:  decimal.NewFromInt(100),
		SellPrice: decimal.NewFromInt(180),
		Stock:     4,
	}
	rec := env.do(t, http.MethodPost, "/api/v1/products", sellerToken, create)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = env.do(t, http.MethodPost, "/api/v1/products", adminToken, create)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	created := decodeBody[map[string]domain.Product](t, rec)["product"]
	assert.Equal(t, "REM-100", created.Code)

	rec = env.do(t, http.MethodPost, "/api/v1/products", adminToken, create)
	assert.Equal(t, http.StatusConflict, rec.Code)

	bad := create
	bad.Code = "OTR-100"
	bad.SellPrice = decimal.NewFromInt(50)
	rec = env.do(t, http.MethodPost, "/api/v1/products", adminToken, bad)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = env.do(t, http.MethodGet, "/api/v1/products?q=rem", sellerToken, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	listed := decodeBody[map[string][]domain.Product](t, rec)["products"]
	require.Len(t, listed, 1)

	stock := 9
	rec = env.do(t, http.MethodPatch, "/api/v1/products/"+created.ID, adminToken, domain.ProductUpdateRequest{Stock: &stock})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, 9, decodeBody[map[string]domain.Product](t, rec)["product"].Stock)

	rec = env.do(t, http.MethodGet, "/api/v1/products/missing", sellerToken, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestSuppliersEndpoint(t *testing.T) {
	env := newTestAPI(t)
	adminToken := env.login(t, "admin", "admin-pass")

	rec := env.do(t, http.MethodPost, "/api/v1/suppliers", adminToken, domain.SupplierCreateRequest{Name: "Textil Norte"})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	rec = env.do(t, http.MethodGet, "/api/v1/suppliers", adminToken, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, decodeBody[map[string][]domain.Supplier](t, rec)["suppliers"], 1)
}

func TestSessionCartFlowOverHTTP(t *testing.T) {
	env := newTestAPI(t)
	p := env.seedProduct(t, "JEA-100", 500, 5)
	token := env.login(t, "vendedor", "seller-pass")

	rec := env.do(t, http.MethodPost, "/api/v1/cart/items", token, domain.CartItemRequest{ProductID: p.ID})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec = env.do(t, http.MethodPatch, "/api/v1/cart/items/"+p.ID, token, domain.CartQuantityRequest{Quantity: 2})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	snap := decodeBody[map[string]cart.Snapshot](t, rec)["cart"]
	assert.True(t, snap.Totals.Subtotal.Equal(decimal.NewFromInt(1000)))

	rec = env.do(t, http.MethodPatch, "/api/v1/cart/items/"+p.ID, token, domain.CartQuantityRequest{Quantity: 6})
	assert.Equal(t, http.StatusConflict, rec.Code)

	discount := decimal.NewFromInt(10)
	rec = env.do(t, http.MethodPatch, "/api/v1/cart/form", token, domain.CartFormUpdate{DiscountValue: &discount})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	snap = decodeBody[map[string]cart.Snapshot](t, rec)["cart"]
	assert.True(t, snap.Totals.Total.Equal(decimal.NewFromInt(900)))

	rec = env.do(t, http.MethodPost, "/api/v1/cart/checkout", token, domain.CartCheckoutRequest{IdempotencyKey: "http-cart-1"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	resp := decodeBody[domain.CheckoutResponse](t, rec)
	assert.True(t, resp.Total.Equal(decimal.NewFromInt(900)))
	assert.Equal(t, "completed", resp.State)
	assert.NotEmpty(t, resp.Receipt)

	stored, err := env.repo.GetProduct(context.Background(), p.ID)
	require.NoError(t, err)
	assert.Equal(t, 3, stored.Stock)

	rec = env.do(t, http.MethodGet, "/api/v1/cart", token, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Empty(t, decodeBody[map[string]cart.Snapshot](t, rec)["cart"].Items)

	rec = env.do(t, http.MethodGet, "/api/v1/sales/"+resp.SaleID, token, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, resp.SaleID, decodeBody[map[string]domain.Sale](t, rec)["sale"].ID)

	rec = env.do(t, http.MethodGet, "/api/v1/sales/"+resp.SaleID+"/receipt", token, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.NotEmpty(t, decodeBody[domain.ReceiptResponse](t, rec).EscposBase64)
}

func TestCartItemRemovalAndClear(t *testing.T) {
	env := newTestAPI(t)
	a := env.seedProduct(t, "AAA-100", 100, 5)
	b := env.seedProduct(t, "BBB-100", 100, 5)
	token := env.login(t, "vendedor", "seller-pass")

	for _, id := range []string{a.ID, b.ID} {
		rec := env.do(t, http.MethodPost, "/api/v1/cart/items", token, domain.CartItemRequest{ProductID: id})
		require.Equal(t, http.StatusOK, rec.Code)
	}

	rec := env.do(t, http.MethodDelete, "/api/v1/cart/items/"+a.ID, token, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, decodeBody[map[string]cart.Snapshot](t, rec)["cart"].Items, 1)

	rec = env.do(t, http.MethodDelete, "/api/v1/cart/items/"+a.ID, token, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = env.do(t, http.MethodPost, "/api/v1/cart/clear", token, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Empty(t, decodeBody[map[string]cart.Snapshot](t, rec)["cart"].Items)

	rec = env.do(t, http.MethodPost, "/api/v1/cart/checkout", token, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestDirectCheckoutIsIdempotent(t *testing.T) {
	env := newTestAPI(t)
	p := env.seedProduct(t, "GOR-100", 300, 2)
	token := env.login(t, "vendedor", "seller-pass")

	req := domain.CheckoutRequest{
		IdempotencyKey: "direct-1",
		Items:          []domain.CheckoutLine{{ProductID: p.ID, Quantity: 1}},
		PaymentMethod:  domain.PaymentTransfer,
	}
	rec := env.do(t, http.MethodPost, "/api/v1/checkout", token, req)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	first := decodeBody[domain.CheckoutResponse](t, rec)
	assert.False(t, first.Duplicate)

	rec = env.do(t, http.MethodPost, "/api/v1/checkout", token, req)
	require.Equal(t, http.StatusOK, rec.Code)
	second := decodeBody[domain.CheckoutResponse](t, rec)
	assert.True(t, second.Duplicate)
	assert.Equal(t, first.SaleID, second.SaleID)

	stored, err := env.repo.GetProduct(context.Background(), p.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, stored.Stock)

	req.IdempotencyKey = "direct-2"
	req.Items[0].Quantity = 5
	rec = env.do(t, http.MethodPost, "/api/v1/checkout", token, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestStatisticsRequiresAdmin(t *testing.T) {
	env := newTestAPI(t)
	sellerToken := env.login(t, "vendedor", "seller-pass")
	adminToken := env.login(t, "admin", "admin-pass")

	rec := env.do(t, http.MethodGet, "/api/v1/statistics?range=week", sellerToken, nil)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = env.do(t, http.MethodGet, "/api/v1/statistics?range=week", adminToken, nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	report := decodeBody[domain.StatisticsReport](t, rec)
	assert.Equal(t, "week", report.Period)
	require.NotNil(t, report.Metrics)

	rec = env.do(t, http.MethodGet, "/api/v1/statistics?range=custom&start=2026-03-01", adminToken, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, decodeBody[domain.StatisticsReport](t, rec).Empty)

	rec = env.do(t, http.MethodGet, "/api/v1/statistics?range=decade", adminToken, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestSalesListingRejectsHalfRange(t *testing.T) {
	env := newTestAPI(t)
	token := env.login(t, "vendedor", "seller-pass")

	rec := env.do(t, http.MethodGet, "/api/v1/sales", token, nil)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = env.do(t, http.MethodGet, "/api/v1/sales?from=2026-03-01", token, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestUsersEndpoint(t *testing.T) {
	env := newTestAPI(t)
	adminToken := env.login(t, "admin", "admin-pass")
	sellerToken := env.login(t, "vendedor", "seller-pass")

	create := domain.UserCreateRequest{Username: "caja2", Password: "caja-segura"}
	rec := env.do(t, http.MethodPost, "/api/v1/users", sellerToken, create)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = env.do(t, http.MethodPost, "/api/v1/users", adminToken, create)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	assert.Equal(t, "caja2", decodeBody[map[string]domain.UserView](t, rec)["user"].Username)

	rec = env.do(t, http.MethodPost, "/api/v1/users", adminToken, create)
	assert.Equal(t, http.StatusConflict, rec.Code)

	rec = env.do(t, http.MethodGet, "/api/v1/users", adminToken, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	users := decodeBody[map[string][]domain.UserView](t, rec)["users"]
	assert.Len(t, users, 3)

	env.login(t, "caja2", "caja-segura")
}
