package models

import (
	"errors"
	"time"
)

var (
	ErrFetchFailure       = errors.New("fetch failure")
	ErrParseFailure       = errors.New("parse failure")
	ErrCatalogUnavailable = errors.New("catalog unavailable")
)

const (
	UnknownBrand       = "Unknown"
	UnknownCategory    = "Unknown"
	UnknownSubCategory = "N/A"
	DefaultQuantity    = "N/A"
)

// RawRow is one ingested record keyed by column name. Values are unvalidated.
type RawRow map[string]string

type Brand struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

type Category struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

type SubCategory struct {
	ID         string `json:"id"`
	Name       string `json:"name"`
	CategoryID string `json:"categoryId"`
}

type Product struct {
	ID            string  `json:"id"`
	Name          string  `json:"name"`
	Price         float64 `json:"price"`
	ImageField    string  `json:"image"`
	BrandID       string  `json:"brandId"`
	CategoryID    string  `json:"categoryId"`
	SubCategoryID string  `json:"subCategoryId"`
	QuantityLabel string  `json:"quantity"`
	Description   string  `json:"description,omitempty"`
}

type EnhancedProduct struct {
	Product
	BrandName       string   `json:"brandName"`
	CategoryName    string   `json:"categoryName"`
	SubCategoryName string   `json:"subCategoryName"`
	Images          []string `json:"images"`
}

type SortOption string

const (
	SortNone      SortOption = ""
	SortPriceAsc  SortOption = "price-asc"
	SortPriceDesc SortOption = "price-desc"
	SortNameAsc   SortOption = "name-asc"
	SortNameDesc  SortOption = "name-desc"
)

func (s SortOption) Valid() bool {
	switch s {
	case SortNone, SortPriceAsc, SortPriceDesc, SortNameAsc, SortNameDesc:
		return true
	}
	return false
}

// FilterState holds the shopper's active criteria. An empty string means the
// criterion is not set.
type FilterState struct {
	CategoryID    string     `json:"categoryId"`
	SubCategoryID string     `json:"subCategoryId"`
	BrandID       string     `json:"brandId"`
	SearchQuery   string     `json:"searchQuery"`
	SortBy        SortOption `json:"sortBy"`
}

func (f FilterState) HasActiveFilters() bool {
	return f.CategoryID != "" || f.SubCategoryID != "" || f.BrandID != "" || f.SortBy != SortNone
}

type PaginationState struct {
	CurrentPage  int `json:"currentPage"`
	ItemsPerPage int `json:"itemsPerPage"`
	TotalItems   int `json:"totalItems"`
}

type BrowseState struct {
	Filters    FilterState     `json:"filters"`
	Pagination PaginationState `json:"pagination"`
}

type CartLine struct {
	ProductID string `json:"productId"`
	Quantity  int    `json:"quantity"`
}

type PageResponse struct {
	Products    []EnhancedProduct `json:"paginatedProducts"`
	TotalPages  int               `json:"totalPages"`
	PageNumbers []int             `json:"pageNumbers"`
	Filters     FilterState       `json:"filters"`
	Pagination  PaginationState   `json:"pagination"`
	Duration    string            `json:"duration"`
}

type CartItemResponse struct {
	ProductID    string  `json:"productId"`
	Name         string  `json:"name,omitempty"`
	CategoryName string  `json:"categoryName,omitempty"`
	Image        string  `json:"image,omitempty"`
	Quantity     int     `json:"quantity"`
	UnitPrice    float64 `json:"unitPrice"`
	LineTotal    float64 `json:"lineTotal"`
	Available    bool    `json:"available"`
}

type CartResponse struct {
	Items          []CartItemResponse `json:"items"`
	CartItemCount  int                `json:"cartItemCount"`
	CartTotal      float64            `json:"cartTotal"`
	FormattedTotal string             `json:"formattedTotal"`
}

type CheckoutResponse struct {
	Summary        string  `json:"summary"`
	Message        string  `json:"message"`
	Total          float64 `json:"total"`
	FormattedTotal string  `json:"formattedTotal"`
	URL            string  `json:"url"`
}

type LoadStats struct {
	Status        string         `json:"status"`
	LoadedAt      time.Time      `json:"loaded_at,omitempty"`
	Duration      string         `json:"duration,omitempty"`
	Products      int            `json:"products"`
	Brands        int            `json:"brands"`
	Categories    int            `json:"categories"`
	SubCategories int            `json:"subcategories"`
	RowsSkipped   map[string]int `json:"rows_skipped,omitempty"`
	OrphanedRefs  map[string]int `json:"orphaned_refs,omitempty"`
	CachedSources []string       `json:"cached_sources,omitempty"`
	LastError     string         `json:"last_error,omitempty"`
}

type ErrorResponse struct {
	Error   string `json:"error"`
	Code    int    `json:"code"`
	Message string `json:"message"`
	Details string `json:"details,omitempty"`
	Retry   string `json:"retry,omitempty"`
}
