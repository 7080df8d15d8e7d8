package httpapi

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"tokosakti/backend/internal/cache"
	"tokosakti/backend/internal/domain"
	"tokosakti/backend/internal/service"
	"tokosakti/backend/internal/store/memory"
)

func newTestServer(t *testing.T) (*httptest.Server, *memory.Store) {
	t.Helper()
	repo := memory.New()
	for _, u := range []domain.UserAccount{
		{Username: "admin", Password: "rahasia-admin", Role: "admin", Active: true},
		{Username: "kasir1", Password: "rahasia-kasir", Role: "cashier", Active: true},
	} {
		if err := repo.CreateUser(context.Background(), u); err != nil {
			t.Fatalf("seed user: %v", err)
		}
	}

	logger := logrus.New()
	logger.SetLevel(logrus.PanicLevel)
	svc := service.New(repo, cache.NoopLowStockCache{}, logger, time.Second)
	auth := NewAuthManager("test-secret-0123456789-0123456789", time.Hour, repo)
	api := New(svc, auth, "http://localhost:5173", logger)

	server := httptest.NewServer(api.Handler())
	t.Cleanup(server.Close)
	return server, repo
}

func seedTestProduct(repo *memory.Store, stock int) domain.Product {
	return repo.PutProduct(domain.Product{
		SKU:           "SKU-1",
		Name:          "Kopi Bubuk",
		UnitPrice:     decimal.RequireFromString("100"),
		TaxRate:       decimal.RequireFromString("10"),
		StockQuantity: stock,
		MinStockLevel: 5,
		Active:        true,
	})
}

func doJSON(t *testing.T, method, url, token, body string) (*http.Response, map[string]any) {
	t.Helper()
	var reader *strings.Reader
	if body == "" {
		reader = strings.NewReader("")
	} else {
		reader = strings.NewReader(body)
	}
	req, err := http.NewRequest(method, url, reader)
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("%s %s: %v", method, url, err)
	}
	defer resp.Body.Close()

	var payload map[string]any
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		payload = nil
	}
	return resp, payload
}

func loginAs(t *testing.T, baseURL, username, password string) string {
	t.Helper()
	resp, payload := doJSON(t, http.MethodPost, baseURL+"/api/v1/auth/login", "",
		fmt.Sprintf(`{"username":%q,"password":%q}`, username, password))
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("login status = %d", resp.StatusCode)
	}
	token, _ := payload["access_token"].(string)
	if token == "" {
		t.Fatalf("login returned no token")
	}
	return token
}

func TestSaleLifecycleOverHTTP(t *testing.T) {
	server, repo := newTestServer(t)
	p := seedTestProduct(repo, 10)
	token := loginAs(t, server.URL, "kasir1", "rahasia-kasir")

	resp, payload := doJSON(t, http.MethodPost, server.URL+"/api/v1/sales", token,
		fmt.Sprintf(`{"items":[{"product_id":%d,"quantity":3}]}`, p.ID))
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("create status = %d, payload %v", resp.StatusCode, payload)
	}
	sale, _ := payload["sale"].(map[string]any)
	if sale == nil {
		t.Fatalf("missing sale envelope: %v", payload)
	}
	if sale["total_amount"] != "330" {
		t.Fatalf("total_amount = %v, want 330", sale["total_amount"])
	}
	saleID := int64(sale["id"].(float64))

	resp, payload = doJSON(t, http.MethodGet, fmt.Sprintf("%s/api/v1/sales/%d", server.URL, saleID), "", "")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("get status = %d", resp.StatusCode)
	}
	sale, _ = payload["sale"].(map[string]any)
	if sale["payment_status"] != "pending" {
		t.Fatalf("payment_status = %v, want pending", sale["payment_status"])
	}

	resp, payload = doJSON(t, http.MethodPost, server.URL+"/api/v1/sales/payments", token,
		fmt.Sprintf(`{"sale_id":%d,"payment_method":"cash","amount":"330"}`, saleID))
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("payment status = %d, payload %v", resp.StatusCode, payload)
	}

	resp, payload = doJSON(t, http.MethodGet, fmt.Sprintf("%s/api/v1/sales/%d/payments", server.URL, saleID), "", "")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("list payments status = %d", resp.StatusCode)
	}
	if payments, _ := payload["payments"].([]any); len(payments) != 1 {
		t.Fatalf("payments = %v", payload)
	}

	resp, payload = doJSON(t, http.MethodDelete, fmt.Sprintf("%s/api/v1/sales/%d", server.URL, saleID), token, "")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("cancel status = %d, payload %v", resp.StatusCode, payload)
	}
	sale, _ = payload["sale"].(map[string]any)
	if sale["payment_status"] != "cancelled" {
		t.Fatalf("payment_status = %v, want cancelled", sale["payment_status"])
	}

	after, _ := repo.GetProduct(context.Background(), p.ID)
	if after.StockQuantity != 10 {
		t.Fatalf("stock = %d, want restored 10", after.StockQuantity)
	}
}

func TestCreateSaleRequiresToken(t *testing.T) {
	server, repo := newTestServer(t)
	p := seedTestProduct(repo, 10)

	resp, _ := doJSON(t, http.MethodPost, server.URL+"/api/v1/sales", "",
		fmt.Sprintf(`{"items":[{"product_id":%d,"quantity":1}]}`, p.ID))
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401", resp.StatusCode)
	}

	resp, _ = doJSON(t, http.MethodPost, server.URL+"/api/v1/sales", "not-a-token",
		fmt.Sprintf(`{"items":[{"product_id":%d,"quantity":1}]}`, p.ID))
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("garbage token status = %d, want 401", resp.StatusCode)
	}
}

func TestValidationErrorShape(t *testing.T) {
	server, _ := newTestServer(t)
	token := loginAs(t, server.URL, "kasir1", "rahasia-kasir")

	resp, payload := doJSON(t, http.MethodPost, server.URL+"/api/v1/sales", token, `{"items":[]}`)
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", resp.StatusCode)
	}
	if payload["error"] != "validation failed" {
		t.Fatalf("error = %v", payload["error"])
	}
	fields, _ := payload["fields"].([]any)
	if len(fields) == 0 {
		t.Fatalf("expected field errors, got %v", payload)
	}
}

func TestGetUnknownSaleReturns404(t *testing.T) {
	server, _ := newTestServer(t)

	resp, _ := doJSON(t, http.MethodGet, server.URL+"/api/v1/sales/424242", "", "")
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", resp.StatusCode)
	}
}

func TestInventoryEndpoints(t *testing.T) {
	server, repo := newTestServer(t)
	p := seedTestProduct(repo, 20)
	token := loginAs(t, server.URL, "kasir1", "rahasia-kasir")

	resp, payload := doJSON(t, http.MethodPost, server.URL+"/api/v1/inventory/transactions", token,
		fmt.Sprintf(`{"product_id":%d,"transaction_type":"adjustment","quantity":15}`, p.ID))
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("create status = %d, payload %v", resp.StatusCode, payload)
	}
	tx, _ := payload["transaction"].(map[string]any)
	if tx == nil {
		t.Fatalf("missing transaction envelope: %v", payload)
	}
	txID := int64(tx["id"].(float64))

	after, _ := repo.GetProduct(context.Background(), p.ID)
	if after.StockQuantity != 15 {
		t.Fatalf("stock = %d, want 15", after.StockQuantity)
	}

	resp, payload = doJSON(t, http.MethodGet,
		fmt.Sprintf("%s/api/v1/inventory/transactions?productId=%d", server.URL, p.ID), "", "")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("list status = %d", resp.StatusCode)
	}
	if txs, _ := payload["transactions"].([]any); len(txs) != 1 {
		t.Fatalf("transactions = %v", payload)
	}

	resp, _ = doJSON(t, http.MethodDelete,
		fmt.Sprintf("%s/api/v1/inventory/transactions/%d", server.URL, txID), token, "")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("delete status = %d", resp.StatusCode)
	}
	after, _ = repo.GetProduct(context.Background(), p.ID)
	if after.StockQuantity != 0 {
		t.Fatalf("stock after replay = %d, want 0", after.StockQuantity)
	}
}

func TestLowStockEndpoint(t *testing.T) {
	server, repo := newTestServer(t)
	seedTestProduct(repo, 2)

	resp, payload := doJSON(t, http.MethodGet, server.URL+"/api/v1/inventory/low-stock", "", "")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	if products, _ := payload["products"].([]any); len(products) != 1 {
		t.Fatalf("products = %v", payload)
	}

	resp, _ = doJSON(t, http.MethodGet, server.URL+"/api/v1/inventory/low-stock?threshold=abc", "", "")
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("bad threshold status = %d, want 400", resp.StatusCode)
	}
}

func TestAdminOnlyEndpoints(t *testing.T) {
	server, _ := newTestServer(t)
	cashier := loginAs(t, server.URL, "kasir1", "rahasia-kasir")
	admin := loginAs(t, server.URL, "admin", "rahasia-admin")

	resp, _ := doJSON(t, http.MethodGet, server.URL+"/api/v1/reports/sales-summary", cashier, "")
	if resp.StatusCode != http.StatusForbidden {
		t.Fatalf("cashier summary status = %d, want 403", resp.StatusCode)
	}

	resp, payload := doJSON(t, http.MethodGet, server.URL+"/api/v1/reports/sales-summary", admin, "")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("admin summary status = %d", resp.StatusCode)
	}
	if _, ok := payload["summary"]; !ok {
		t.Fatalf("missing summary envelope: %v", payload)
	}

	resp, payload = doJSON(t, http.MethodGet, server.URL+"/api/v1/audit-logs", admin, "")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("audit logs status = %d", resp.StatusCode)
	}
	if _, ok := payload["logs"]; !ok {
		t.Fatalf("missing logs envelope: %v", payload)
	}
}

func TestMethodNotAllowed(t *testing.T) {
	server, _ := newTestServer(t)

	resp, _ := doJSON(t, http.MethodPut, server.URL+"/api/v1/sales", "", "")
	if resp.StatusCode != http.StatusMethodNotAllowed {
		t.Fatalf("status = %d, want 405", resp.StatusCode)
	}
}

func TestRejectsUnknownJSONFields(t *testing.T) {
	server, _ := newTestServer(t)
	token := loginAs(t, server.URL, "kasir1", "rahasia-kasir")

	resp, _ := doJSON(t, http.MethodPost, server.URL+"/api/v1/sales", token,
		`{"items":[{"product_id":1,"quantity":1}],"surprise":true}`)
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", resp.StatusCode)
	}
}

func TestCORSPreflight(t *testing.T) {
	server, _ := newTestServer(t)

	req, err := http.NewRequest(http.MethodOptions, server.URL+"/api/v1/sales", nil)
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("options: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusNoContent {
		t.Fatalf("status = %d, want 204", resp.StatusCode)
	}
	if got := resp.Header.Get("Access-Control-Allow-Origin"); got != "http://localhost:5173" {
		t.Fatalf("allow origin = %q", got)
	}
}
