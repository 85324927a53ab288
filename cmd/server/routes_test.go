package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"math"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"storefront-api/internal/config"
	"storefront-api/internal/models"
)

type memFetcher map[string]string

func (m memFetcher) Fetch(_ context.Context, u string) ([]byte, error) {
	payload, ok := m[u]
	if !ok {
		return nil, fmt.Errorf("%w: %s", models.ErrFetchFailure, u)
	}
	return []byte(payload), nil
}

func testCatalogFetcher() memFetcher {
	var products strings.Builder
	products.WriteString("id,name,price,image,brandId,categoryId,subCategoryId,quantity,status\n")
	products.WriteString("p1,Arij Agarbatti,45,\"a.jpg,b.jpg\",b1,c1,s1,100g,a\n")
	products.WriteString("p2,Camphor Tablets,280,c.jpg,b2,c1,s2,50 tabs,a\n")
	for i := 1; i <= 31; i++ {
		fmt.Fprintf(&products, "f%02d,Floor Cleaner %02d,%d,f.jpg,b1,c2,s3,1L,a\n", i, i, 100+i)
	}

	return memFetcher{
		"mem://products":      products.String(),
		"mem://brands":        "id,brandName\nb1,Cycle\nb2,Zed Black\n",
		"mem://categories":    `[{"id":"c1","categoryName":"Pooja"},{"id":"c2","categoryName":"Home Care"}]`,
		"mem://subcategories": "id,name,categoryId\ns1,Sticks,c1\ns2,Tablets,c1\ns3,Cleaners,c2\n",
	}
}

func testConfig() *config.Config {
	return &config.Config{
		App:    config.AppConfig{Name: "storefront-api", Version: "test", Environment: "test"},
		Server: config.ServerConfig{Port: "0"},
		Sources: config.SourcesConfig{
			ProductsURL:      "mem://products",
			BrandsURL:        "mem://brands",
			CategoriesURL:    "mem://categories",
			SubCategoriesURL: "mem://subcategories",
			Format:           "auto",
			Fetcher:          "http",
			Timeout:          5 * time.Second,
		},
		Search:    config.SearchConfig{ItemsPerPage: 16, MinScore: math.MinInt32, Locale: "en-IN"},
		Checkout:  config.CheckoutConfig{Phone: "919876543210", URLTemplate: "https://wa.me/{phone}?text={text}", Currency: "INR", Locale: "en-IN"},
		Session:   config.SessionConfig{CookieName: "session_id", TTL: time.Hour},
		RateLimit: config.RateLimitConfig{PerSecond: 1000, Burst: 1000},
		Logging:   config.LoggingConfig{Level: "error", Format: "text"},
	}
}

type client struct {
	t       *testing.T
	router  *gin.Engine
	session string
}

func (c *client) do(method, path string, body any) *httptest.ResponseRecorder {
	c.t.Helper()

	var reader *bytes.Reader
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(c.t, err)
		reader = bytes.NewReader(data)
	} else {
		reader = bytes.NewReader(nil)
	}

	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	if c.session != "" {
		req.Header.Set(sessionHeader, c.session)
	}

	w := httptest.NewRecorder()
	c.router.ServeHTTP(w, req)
	if id := w.Header().Get(sessionHeader); id != "" {
		c.session = id
	}
	return w
}

func decode[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var out T
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out), w.Body.String())
	return out
}

func newTestServer(t *testing.T, cfg *config.Config, load bool) (*server, *client) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	srv, err := newServer(cfg, testCatalogFetcher(), nil)
	require.NoError(t, err)
	if load {
		_, err := srv.catalog.Load(context.Background(), false)
		require.NoError(t, err)
	}
	return srv, &client{t: t, router: srv.routes()}
}

func TestCatalogUnavailableUntilReload(t *testing.T) {
	_, c := newTestServer(t, testConfig(), false)

	w := c.do(http.MethodGet, "/api/products", nil)
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	errResp := decode[models.ErrorResponse](t, w)
	assert.Equal(t, "catalog_unavailable", errResp.Error)
	assert.NotEmpty(t, errResp.Retry)

	w = c.do(http.MethodPost, "/api/catalog/reload", nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	stats := decode[models.LoadStats](t, w)
	assert.Equal(t, "ready", stats.Status)
	assert.Equal(t, 33, stats.Products)

	w = c.do(http.MethodGet, "/api/products", nil)
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestReloadFailureIsServiceUnavailable(t *testing.T) {
	cfg := testConfig()
	cfg.Sources.BrandsURL = "mem://missing"
	_, c := newTestServer(t, cfg, false)

	w := c.do(http.MethodPost, "/api/catalog/reload", nil)
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	assert.Contains(t, decode[models.ErrorResponse](t, w).Details, "brands")

	w = c.do(http.MethodGet, "/health", nil)
	assert.Equal(t, "failed", decode[map[string]any](t, w)["catalog"])
}

func TestBrowseFlow(t *testing.T) {
	_, c := newTestServer(t, testConfig(), true)

	w := c.do(http.MethodGet, "/api/products", nil)
	require.Equal(t, http.StatusOK, w.Code)
	require.NotEmpty(t, c.session)

	page := decode[models.PageResponse](t, w)
	assert.Len(t, page.Products, 16)
	assert.Equal(t, 3, page.TotalPages)
	assert.Equal(t, 33, page.Pagination.TotalItems)
	assert.Equal(t, []int{1, 2, 3}, page.PageNumbers)
	assert.Equal(t, "Cycle", page.Products[0].BrandName)
	assert.Equal(t, []string{"a.jpg", "b.jpg"}, page.Products[0].Images)

	w = c.do(http.MethodPut, "/api/page", gin.H{"page": 4})
	page = decode[models.PageResponse](t, w)
	assert.Equal(t, 3, page.Pagination.CurrentPage)
	assert.Len(t, page.Products, 1)

	w = c.do(http.MethodPut, "/api/filters", models.FilterState{CategoryID: "c1", SortBy: models.SortPriceDesc})
	require.Equal(t, http.StatusOK, w.Code)
	page = decode[models.PageResponse](t, w)
	assert.Equal(t, 1, page.Pagination.CurrentPage)
	require.Len(t, page.Products, 2)
	assert.Equal(t, "p2", page.Products[0].ID)
	assert.Equal(t, 1, page.TotalPages)

	w = c.do(http.MethodGet, "/api/subcategories", nil)
	subs := decode[struct {
		CategoryID    string               `json:"categoryId"`
		SubCategories []models.SubCategory `json:"subcategories"`
	}](t, w)
	assert.Equal(t, "c1", subs.CategoryID)
	assert.Len(t, subs.SubCategories, 2)

	w = c.do(http.MethodPut, "/api/filters", models.FilterState{CategoryID: "c2", SubCategoryID: "s1", SearchQuery: "cleaner 1"})
	page = decode[models.PageResponse](t, w)
	assert.Empty(t, page.Filters.SubCategoryID)
	assert.Equal(t, 10, page.Pagination.TotalItems)

	w = c.do(http.MethodDelete, "/api/filters", nil)
	page = decode[models.PageResponse](t, w)
	assert.Equal(t, models.FilterState{SearchQuery: "cleaner 1"}, page.Filters)

	w = c.do(http.MethodPut, "/api/filters", gin.H{"sortBy": "rating"})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = c.do(http.MethodGet, "/api/products/p1", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	w = c.do(http.MethodGet, "/api/products/nope", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestSessionsAreIsolated(t *testing.T) {
	srv, alice := newTestServer(t, testConfig(), true)
	bob := &client{t: t, router: alice.router}

	alice.do(http.MethodPut, "/api/filters", models.FilterState{CategoryID: "c1"})
	bob.do(http.MethodGet, "/api/products", nil)
	require.NotEqual(t, alice.session, bob.session)

	page := decode[models.PageResponse](t, bob.do(http.MethodGet, "/api/products", nil))
	assert.Equal(t, 33, page.Pagination.TotalItems)
	assert.Equal(t, 2, srv.sessions.Len())
}

func TestSessionCookie(t *testing.T) {
	_, c := newTestServer(t, testConfig(), true)

	w := c.do(http.MethodGet, "/api/cart", nil)
	cookies := w.Result().Cookies()
	require.Len(t, cookies, 1)
	assert.Equal(t, "session_id", cookies[0].Name)
	assert.Equal(t, c.session, cookies[0].Value)

	req := httptest.NewRequest(http.MethodGet, "/api/cart", nil)
	req.AddCookie(cookies[0])
	w = httptest.NewRecorder()
	c.router.ServeHTTP(w, req)
	assert.Equal(t, c.session, w.Header().Get(sessionHeader))
	assert.Empty(t, w.Result().Cookies(), "existing sessions are not re-issued")
}

func TestCartAndCheckoutFlow(t *testing.T) {
	_, c := newTestServer(t, testConfig(), true)

	w := c.do(http.MethodPost, "/api/checkout", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = c.do(http.MethodPost, "/api/cart/items/nope", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)

	c.do(http.MethodPost, "/api/cart/items/p1", nil)
	c.do(http.MethodPost, "/api/cart/items/p1", nil)
	c.do(http.MethodPost, "/api/cart/items/p1", nil)
	w = c.do(http.MethodPost, "/api/cart/items/p1/decrement", nil)
	cart := decode[models.CartResponse](t, w)
	require.Len(t, cart.Items, 1)
	assert.Equal(t, 2, cart.Items[0].Quantity)

	w = c.do(http.MethodPost, "/api/cart/items/p2", nil)
	cart = decode[models.CartResponse](t, w)
	assert.Equal(t, 3, cart.CartItemCount)
	assert.Equal(t, 370.0, cart.CartTotal)
	assert.Contains(t, cart.FormattedTotal, "370.00")
	assert.Equal(t, "a.jpg", cart.Items[0].Image)

	w = c.do(http.MethodPost, "/api/checkout", nil)
	require.Equal(t, http.StatusOK, w.Code)
	checkout := decode[models.CheckoutResponse](t, w)
	assert.Equal(t, 370.0, checkout.Total)
	assert.Equal(t, "2 × ₹45 = ₹90 - Arij Agarbatti\n1 × ₹280 = ₹280 - Camphor Tablets", checkout.Summary)

	prefix := "https://wa.me/919876543210?text="
	require.True(t, strings.HasPrefix(checkout.URL, prefix))
	text, err := url.QueryUnescape(strings.TrimPrefix(checkout.URL, prefix))
	require.NoError(t, err)
	assert.Equal(t, checkout.Message, text)

	w = c.do(http.MethodPut, "/api/cart/items/p2", gin.H{"quantity": 0})
	cart = decode[models.CartResponse](t, w)
	assert.Equal(t, 3, cart.CartItemCount, "quantity below 1 is ignored")

	w = c.do(http.MethodPut, "/api/cart/items/p2", gin.H{"quantity": 4})
	cart = decode[models.CartResponse](t, w)
	assert.Equal(t, 6, cart.CartItemCount)

	w = c.do(http.MethodPut, "/api/cart/items/p2", gin.H{})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = c.do(http.MethodDelete, "/api/cart/items/p2", nil)
	cart = decode[models.CartResponse](t, w)
	assert.Equal(t, 2, cart.CartItemCount)
	assert.Equal(t, 90.0, cart.CartTotal)

	w = c.do(http.MethodDelete, "/api/cart", nil)
	cart = decode[models.CartResponse](t, w)
	assert.Empty(t, cart.Items)
	assert.Zero(t, cart.CartTotal)
}

func TestRateLimit(t *testing.T) {
	cfg := testConfig()
	cfg.RateLimit = config.RateLimitConfig{PerSecond: 0.001, Burst: 1}
	_, c := newTestServer(t, cfg, true)

	assert.Equal(t, http.StatusOK, c.do(http.MethodGet, "/health", nil).Code)
	w := c.do(http.MethodGet, "/health", nil)
	assert.Equal(t, http.StatusTooManyRequests, w.Code)
	assert.Equal(t, "rate_limit_exceeded", decode[map[string]any](t, w)["error"])
}

func TestOperationalEndpoints(t *testing.T) {
	_, c := newTestServer(t, testConfig(), true)

	w := c.do(http.MethodGet, "/health", nil)
	health := decode[map[string]any](t, w)
	assert.Equal(t, "ready", health["catalog"])
	assert.Equal(t, "redis unavailable", health["cache"])

	assert.Equal(t, http.StatusServiceUnavailable, c.do(http.MethodGet, "/cache/stats", nil).Code)
	assert.Equal(t, http.StatusServiceUnavailable, c.do(http.MethodDelete, "/cache/flush", nil).Code)
	assert.Equal(t, http.StatusOK, c.do(http.MethodGet, "/rate-limit/status", nil).Code)

	w = c.do(http.MethodGet, "/api/catalog", nil)
	catalog := decode[map[string]any](t, w)
	assert.Len(t, catalog["brands"], 2)
	assert.Len(t, catalog["subcategories"], 3)

	w = c.do(http.MethodOptions, "/api/products", nil)
	assert.Equal(t, http.StatusNoContent, w.Code)
}
