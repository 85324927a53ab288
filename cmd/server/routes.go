package main

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/samber/lo"
	log "github.com/sirupsen/logrus"
	"storefront-api/internal/config"
	"storefront-api/internal/models"
	"storefront-api/internal/services"
	"storefront-api/pkg/cache"
	"storefront-api/pkg/logger"
	"storefront-api/pkg/utils"
)

type server struct {
	cfg        *config.Config
	catalog    *services.CatalogService
	engine     *services.BrowseEngine
	sessions   *services.SessionStore
	serializer *services.Serializer
	formatter  *utils.CurrencyFormatter
	cache      *cache.RedisCache
	limiters   *rateLimiters
}

type pageRequest struct {
	Page *int `json:"page" binding:"required"`
}

type quantityRequest struct {
	Quantity *int `json:"quantity" binding:"required"`
}

func (s *server) routes() *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(corsMiddleware())
	r.Use(requestIDMiddleware())
	r.Use(logger.Middleware())
	r.Use(s.limiters.middleware())

	r.GET("/health", s.health)
	r.GET("/rate-limit/status", s.rateLimitStatus)
	r.GET("/cache/stats", s.cacheStats)
	r.DELETE("/cache/flush", s.cacheFlush)

	api := r.Group("/api")
	api.GET("/info", s.info)
	api.GET("/catalog", s.getCatalog)
	api.POST("/catalog/reload", s.reloadCatalog)

	shop := api.Group("")
	shop.Use(sessionMiddleware(s.sessions, s.cfg.Session.CookieName, s.cfg.Session.TTL, s.cfg.IsProduction()))
	shop.GET("/products", s.listProducts)
	shop.GET("/products/:id", s.getProduct)
	shop.PUT("/filters", s.applyFilter)
	shop.DELETE("/filters", s.clearFilters)
	shop.PUT("/page", s.changePage)
	shop.GET("/subcategories", s.subCategories)
	shop.GET("/cart", s.getCart)
	shop.DELETE("/cart", s.clearCart)
	shop.POST("/cart/items/:id", s.addToCart)
	shop.DELETE("/cart/items/:id", s.removeFromCart)
	shop.PUT("/cart/items/:id", s.setQuantity)
	shop.POST("/cart/items/:id/decrement", s.decrementCart)
	shop.POST("/checkout", s.checkout)

	return r
}

func (s *server) health(c *gin.Context) {
	health := gin.H{
		"status":  "healthy",
		"service": s.cfg.App.Name,
		"version": s.cfg.App.Version,
		"catalog": s.catalog.Stats().Status,
	}

	if s.cache.IsAvailable() {
		health["cache"] = "redis connected"
	} else {
		health["cache"] = "redis unavailable"
	}

	c.JSON(http.StatusOK, health)
}

func (s *server) info(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"name":        s.cfg.App.Name,
		"version":     s.cfg.App.Version,
		"description": "Storefront catalog browsing, cart and messaging checkout",
		"features":    []string{"Catalog ingestion", "Filtering", "Sorting", "Pagination", "Search", "Cart", "Checkout handoff"},
		"search_mode": lo.Ternary(s.engine.Fuzzy(), "fuzzy", "substring"),
		"currency":    s.formatter.Code(),
		"locale":      s.formatter.Locale().String(),
		"endpoints": map[string]string{
			"GET /api/products":        "Current page for the session's filters",
			"PUT /api/filters":         "Replace filters and return to page 1",
			"PUT /api/page":            "Move to a page",
			"GET /api/cart":            "Cart lines and totals",
			"POST /api/checkout":       "Order summary and messaging URL",
			"POST /api/catalog/reload": "Reload the catalog from its sources",
			"GET /health":              "Health check",
			"GET /cache/stats":         "Cache statistics",
		},
	})
}

func (s *server) rateLimitStatus(c *gin.Context) {
	ip := c.ClientIP()
	limiter := s.limiters.get(ip)

	c.JSON(http.StatusOK, gin.H{
		"ip":               ip,
		"limit_per_second": limiter.Limit(),
		"burst_capacity":   limiter.Burst(),
		"tokens_available": limiter.Tokens(),
		"next_token_at":    time.Now().Add(time.Duration(float64(time.Second) / float64(limiter.Limit()))),
	})
}

func (s *server) cacheStats(c *gin.Context) {
	if !s.cache.IsAvailable() {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "cache not available"})
		return
	}

	ctx := c.Request.Context()
	keys := s.cache.GetAllKeys(ctx)
	keyDetails := make([]gin.H, 0, len(keys))
	for _, key := range keys {
		ttl := s.cache.GetKeyTTL(ctx, key)
		keyDetails = append(keyDetails, gin.H{
			"key":         key,
			"ttl_seconds": int(ttl.Seconds()),
			"expires_in":  ttl.String(),
		})
	}

	c.JSON(http.StatusOK, gin.H{
		"cache_stats": s.cache.GetStats(ctx),
		"cache_keys":  keyDetails,
	})
}

func (s *server) cacheFlush(c *gin.Context) {
	if !s.cache.IsAvailable() {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "cache not available"})
		return
	}

	deleted, err := s.cache.FlushCache(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":   "failed to flush cache",
			"details": err.Error(),
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"message":      "cache flushed successfully",
		"keys_deleted": deleted,
		"timestamp":    time.Now().Format(time.RFC3339),
	})
}

func (s *server) getCatalog(c *gin.Context) {
	snap, ok := s.snapshot(c)
	if !ok {
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"brands":        snap.Lookups.Brands,
		"categories":    snap.Lookups.Categories,
		"subcategories": snap.Lookups.SubCategories,
		"stats":         s.catalog.Stats(),
	})
}

func (s *server) reloadCatalog(c *gin.Context) {
	if _, err := s.catalog.Load(c.Request.Context(), true); err != nil {
		s.catalogUnavailable(c, err)
		return
	}
	c.JSON(http.StatusOK, s.catalog.Stats())
}

func (s *server) listProducts(c *gin.Context) {
	snap, ok := s.snapshot(c)
	if !ok {
		return
	}

	startTime := time.Now()
	var resp models.PageResponse
	currentSession(c).Do(func(browse *models.BrowseState, _ *services.Cart) {
		resp = s.page(snap, browse)
	})
	resp.Duration = time.Since(startTime).String()

	c.JSON(http.StatusOK, resp)
}

func (s *server) getProduct(c *gin.Context) {
	snap, ok := s.snapshot(c)
	if !ok {
		return
	}

	p, found := snap.Product(c.Param("id"))
	if !found {
		notFound(c, c.Param("id"))
		return
	}
	c.JSON(http.StatusOK, p)
}

func (s *server) applyFilter(c *gin.Context) {
	snap, ok := s.snapshot(c)
	if !ok {
		return
	}

	var next models.FilterState
	if err := c.ShouldBindJSON(&next); err != nil {
		badRequest(c, "invalid_filters", err)
		return
	}
	if !next.SortBy.Valid() {
		badRequest(c, "invalid_sort", errors.New("sortBy must be one of price-asc, price-desc, name-asc, name-desc"))
		return
	}

	var resp models.PageResponse
	currentSession(c).Do(func(browse *models.BrowseState, _ *services.Cart) {
		*browse = services.ApplyFilter(*browse, next, snap.Lookups)
		resp = s.page(snap, browse)
	})
	c.JSON(http.StatusOK, resp)
}

func (s *server) clearFilters(c *gin.Context) {
	snap, ok := s.snapshot(c)
	if !ok {
		return
	}

	var resp models.PageResponse
	currentSession(c).Do(func(browse *models.BrowseState, _ *services.Cart) {
		*browse = services.ClearFilters(*browse)
		resp = s.page(snap, browse)
	})
	c.JSON(http.StatusOK, resp)
}

func (s *server) changePage(c *gin.Context) {
	snap, ok := s.snapshot(c)
	if !ok {
		return
	}

	var req pageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "invalid_page", err)
		return
	}

	var resp models.PageResponse
	currentSession(c).Do(func(browse *models.BrowseState, _ *services.Cart) {
		// refresh the item count so the clamp uses the current catalog
		*browse, _ = s.engine.View(snap.Products, *browse)
		*browse = services.ChangePage(*browse, *req.Page)
		resp = s.page(snap, browse)
	})
	c.JSON(http.StatusOK, resp)
}

func (s *server) subCategories(c *gin.Context) {
	snap, ok := s.snapshot(c)
	if !ok {
		return
	}

	categoryID, set := c.GetQuery("categoryId")
	if !set {
		currentSession(c).Do(func(browse *models.BrowseState, _ *services.Cart) {
			categoryID = browse.Filters.CategoryID
		})
	}

	c.JSON(http.StatusOK, gin.H{
		"categoryId":    categoryID,
		"subcategories": services.SubCategoriesFor(snap.Lookups, categoryID),
	})
}

func (s *server) getCart(c *gin.Context) {
	s.respondCart(c, nil)
}

func (s *server) clearCart(c *gin.Context) {
	s.respondCart(c, func(cart *services.Cart) { cart.Clear() })
}

func (s *server) addToCart(c *gin.Context) {
	snap, ok := s.snapshot(c)
	if !ok {
		return
	}

	id := c.Param("id")
	if _, found := snap.Product(id); !found {
		notFound(c, id)
		return
	}
	s.respondCart(c, func(cart *services.Cart) { cart.Add(id) })
}

func (s *server) removeFromCart(c *gin.Context) {
	id := c.Param("id")
	s.respondCart(c, func(cart *services.Cart) { cart.Remove(id) })
}

func (s *server) setQuantity(c *gin.Context) {
	var req quantityRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "invalid_quantity", err)
		return
	}

	id := c.Param("id")
	s.respondCart(c, func(cart *services.Cart) { cart.SetQuantity(id, *req.Quantity) })
}

func (s *server) decrementCart(c *gin.Context) {
	id := c.Param("id")
	s.respondCart(c, func(cart *services.Cart) { cart.Decrement(id) })
}

func (s *server) checkout(c *gin.Context) {
	snap, ok := s.snapshot(c)
	if !ok {
		return
	}

	var lines []services.ResolvedLine
	currentSession(c).Do(func(_ *models.BrowseState, cart *services.Cart) {
		lines = cart.Resolve(snap)
	})

	if !lo.SomeBy(lines, func(l services.ResolvedLine) bool { return l.Available }) {
		c.JSON(http.StatusBadRequest, models.ErrorResponse{
			Error:   "empty_cart",
			Code:    http.StatusBadRequest,
			Message: "Cart has no items available for checkout",
		})
		return
	}

	resp := s.serializer.Checkout(lines)
	log.WithFields(log.Fields{
		"session_id": c.GetString("session_id"),
		"lines":      len(lines),
		"total":      resp.FormattedTotal,
	}).Info("Checkout prepared")

	c.JSON(http.StatusOK, resp)
}

// respondCart applies mutate (if any) and renders the cart against the
// current catalog.
func (s *server) respondCart(c *gin.Context, mutate func(cart *services.Cart)) {
	snap, ok := s.snapshot(c)
	if !ok {
		return
	}

	var resp models.CartResponse
	currentSession(c).Do(func(_ *models.BrowseState, cart *services.Cart) {
		if mutate != nil {
			mutate(cart)
		}
		resp = s.cartResponse(snap, cart)
	})
	c.JSON(http.StatusOK, resp)
}

func (s *server) cartResponse(snap *services.Snapshot, cart *services.Cart) models.CartResponse {
	lines := cart.Resolve(snap)
	total := services.SumLines(lines)

	items := lo.Map(lines, func(l services.ResolvedLine, _ int) models.CartItemResponse {
		item := models.CartItemResponse{
			ProductID: l.ProductID,
			Quantity:  l.Quantity,
			Available: l.Available,
			UnitPrice: l.UnitPrice.InexactFloat64(),
			LineTotal: l.LineTotal.InexactFloat64(),
		}
		if l.Available {
			item.Name = l.Product.Name
			item.CategoryName = l.Product.CategoryName
			item.Image = lo.FirstOrEmpty(l.Product.Images)
		}
		return item
	})

	return models.CartResponse{
		Items:          items,
		CartItemCount:  cart.TotalItemCount(),
		CartTotal:      total.InexactFloat64(),
		FormattedTotal: s.formatter.Format(total.InexactFloat64()),
	}
}

// page renders the session's current page and stores the refreshed state.
func (s *server) page(snap *services.Snapshot, browse *models.BrowseState) models.PageResponse {
	state, products := s.engine.View(snap.Products, *browse)
	*browse = state
	totalPages := services.TotalPages(state.Pagination.TotalItems, state.Pagination.ItemsPerPage)

	return models.PageResponse{
		Products:    products,
		TotalPages:  totalPages,
		PageNumbers: services.PageNumbers(state.Pagination.CurrentPage, totalPages),
		Filters:     state.Filters,
		Pagination:  state.Pagination,
	}
}

func (s *server) snapshot(c *gin.Context) (*services.Snapshot, bool) {
	snap, err := s.catalog.Snapshot()
	if err != nil {
		s.catalogUnavailable(c, err)
		return nil, false
	}
	return snap, true
}

func (s *server) catalogUnavailable(c *gin.Context, err error) {
	c.Header("Retry-After", "30")
	c.JSON(http.StatusServiceUnavailable, models.ErrorResponse{
		Error:   "catalog_unavailable",
		Code:    http.StatusServiceUnavailable,
		Message: "The product catalog could not be loaded",
		Details: err.Error(),
		Retry:   "POST /api/catalog/reload",
	})
}

func badRequest(c *gin.Context, code string, err error) {
	c.JSON(http.StatusBadRequest, models.ErrorResponse{
		Error:   code,
		Code:    http.StatusBadRequest,
		Message: err.Error(),
	})
}

func notFound(c *gin.Context, id string) {
	c.JSON(http.StatusNotFound, models.ErrorResponse{
		Error:   "product_not_found",
		Code:    http.StatusNotFound,
		Message: "No product with id " + id,
	})
}
