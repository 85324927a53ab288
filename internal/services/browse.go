package services

import (
	"cmp"
	"fmt"
	"slices"
	"strings"

	"github.com/samber/lo"
	"golang.org/x/text/collate"
	"golang.org/x/text/language"
	"storefront-api/internal/models"
)

// PageEllipsis marks a gap in the page number window.
const PageEllipsis = 0

// BrowseEngine runs the filter → sort → paginate pipeline over a catalog
// snapshot. It holds no per-session state.
type BrowseEngine struct {
	matcher *Matcher
	locale  language.Tag
}

// NewBrowseEngine returns an engine that matches search text by substring, or
// by relevance score when fuzzy is set.
func NewBrowseEngine(fuzzy bool, minScore int, locale string) (*BrowseEngine, error) {
	tag, err := language.Parse(locale)
	if err != nil {
		return nil, fmt.Errorf("invalid sort locale %q: %w", locale, err)
	}

	engine := &BrowseEngine{locale: tag}
	if fuzzy {
		engine.matcher = NewMatcher(minScore)
	}
	return engine, nil
}

func (e *BrowseEngine) Fuzzy() bool {
	return e.matcher != nil
}

// Filter keeps products matching every active criterion. Fuzzy mode orders the
// result by descending relevance; otherwise input order is kept.
func (e *BrowseEngine) Filter(products []models.EnhancedProduct, filters models.FilterState) []models.EnhancedProduct {
	filtered := lo.Filter(products, func(p models.EnhancedProduct, _ int) bool {
		if filters.CategoryID != "" && p.CategoryID != filters.CategoryID {
			return false
		}
		if filters.SubCategoryID != "" && p.SubCategoryID != filters.SubCategoryID {
			return false
		}
		if filters.BrandID != "" && p.BrandID != filters.BrandID {
			return false
		}
		return true
	})

	query := strings.TrimSpace(filters.SearchQuery)
	if query == "" {
		return filtered
	}

	if e.matcher == nil {
		needle := strings.ToLower(query)
		return lo.Filter(filtered, func(p models.EnhancedProduct, _ int) bool {
			return strings.Contains(strings.ToLower(p.Name), needle)
		})
	}

	type scored struct {
		product models.EnhancedProduct
		score   int
	}
	ranked := make([]scored, 0, len(filtered))
	for _, p := range filtered {
		if score, ok := e.matcher.Score(query, p.Name); ok {
			ranked = append(ranked, scored{product: p, score: score})
		}
	}
	slices.SortStableFunc(ranked, func(a, b scored) int {
		return cmp.Compare(b.score, a.score)
	})

	return lo.Map(ranked, func(s scored, _ int) models.EnhancedProduct { return s.product })
}

// Sort returns a sorted copy. Equal keys keep their relative order and an empty
// option keeps the input order.
func (e *BrowseEngine) Sort(products []models.EnhancedProduct, sortBy models.SortOption) []models.EnhancedProduct {
	sorted := slices.Clone(products)
	if sorted == nil {
		sorted = []models.EnhancedProduct{}
	}

	switch sortBy {
	case models.SortPriceAsc:
		slices.SortStableFunc(sorted, func(a, b models.EnhancedProduct) int {
			return cmp.Compare(a.Price, b.Price)
		})
	case models.SortPriceDesc:
		slices.SortStableFunc(sorted, func(a, b models.EnhancedProduct) int {
			return cmp.Compare(b.Price, a.Price)
		})
	case models.SortNameAsc, models.SortNameDesc:
		// a Collator is not safe for concurrent use
		collator := collate.New(e.locale)
		dir := 1
		if sortBy == models.SortNameDesc {
			dir = -1
		}
		slices.SortStableFunc(sorted, func(a, b models.EnhancedProduct) int {
			return dir * collator.CompareString(a.Name, b.Name)
		})
	}

	return sorted
}

// View runs the full pipeline for a browse state. The returned state carries
// the filtered item count and a page clamped to the available range.
func (e *BrowseEngine) View(products []models.EnhancedProduct, state models.BrowseState) (models.BrowseState, []models.EnhancedProduct) {
	sorted := e.Sort(e.Filter(products, state.Filters), state.Filters.SortBy)

	state.Pagination.TotalItems = len(sorted)
	state = ChangePage(state, state.Pagination.CurrentPage)

	return state, Paginate(sorted, state.Pagination)
}

// Paginate returns the window for the current page. Out of range pages yield an
// empty slice.
func Paginate(products []models.EnhancedProduct, pagination models.PaginationState) []models.EnhancedProduct {
	if pagination.ItemsPerPage <= 0 || pagination.CurrentPage < 1 {
		return []models.EnhancedProduct{}
	}

	start := (pagination.CurrentPage - 1) * pagination.ItemsPerPage
	if start >= len(products) {
		return []models.EnhancedProduct{}
	}
	end := min(start+pagination.ItemsPerPage, len(products))

	return products[start:end]
}

// TotalPages is ceil(totalItems/itemsPerPage), never less than 1.
func TotalPages(totalItems, itemsPerPage int) int {
	if itemsPerPage <= 0 || totalItems <= 0 {
		return 1
	}
	return (totalItems + itemsPerPage - 1) / itemsPerPage
}

// NewBrowseState is the state of a fresh session.
func NewBrowseState(itemsPerPage int) models.BrowseState {
	return models.BrowseState{
		Pagination: models.PaginationState{
			CurrentPage:  1,
			ItemsPerPage: itemsPerPage,
		},
	}
}

// ApplyFilter replaces the filters and resets to the first page. A subcategory
// that does not belong to the selected category is dropped, so changing the
// category clears it unless the caller picked one from the new category.
func ApplyFilter(state models.BrowseState, next models.FilterState, lookups *Lookups) models.BrowseState {
	categoryChanged := next.CategoryID != state.Filters.CategoryID
	if next.SubCategoryID != "" && (categoryChanged || next.CategoryID != "") {
		sub, ok := lookups.SubCategory(next.SubCategoryID)
		if !ok || sub.CategoryID != next.CategoryID {
			next.SubCategoryID = ""
		}
	}

	state.Filters = next
	state.Pagination.CurrentPage = 1
	return state
}

// ClearFilters drops category, subcategory, brand and sort but keeps the
// search text.
func ClearFilters(state models.BrowseState) models.BrowseState {
	return ApplyFilter(state, models.FilterState{SearchQuery: state.Filters.SearchQuery}, nil)
}

// ChangePage moves to page, clamped to [1, TotalPages].
func ChangePage(state models.BrowseState, page int) models.BrowseState {
	total := TotalPages(state.Pagination.TotalItems, state.Pagination.ItemsPerPage)
	state.Pagination.CurrentPage = max(1, min(page, total))
	return state
}

// PageNumbers lists the page buttons to render: first, last, and the pages
// around current, with PageEllipsis for gaps. A single page needs no controls.
func PageNumbers(current, total int) []int {
	if total <= 1 {
		return []int{}
	}

	pages := []int{1}
	start := max(2, current-1)
	end := min(total-1, current+1)

	if start > 2 {
		pages = append(pages, PageEllipsis)
	}
	for i := start; i <= end; i++ {
		pages = append(pages, i)
	}
	if end < total-1 {
		pages = append(pages, PageEllipsis)
	}

	return append(pages, total)
}

// SubCategoriesFor lists the subcategories of a category, or all of them when
// categoryID is empty.
func SubCategoriesFor(lookups *Lookups, categoryID string) []models.SubCategory {
	if lookups == nil {
		return []models.SubCategory{}
	}
	return lo.Filter(lookups.SubCategories, func(s models.SubCategory, _ int) bool {
		return categoryID == "" || s.CategoryID == categoryID
	})
}
