package services

import (
	"strings"

	"github.com/samber/lo"
	"storefront-api/internal/models"
	"storefront-api/pkg/utils"
)

// Orphan reference kinds reported by Normalize and BuildLookups.
const (
	OrphanBrand               = "brand"
	OrphanCategory            = "category"
	OrphanSubCategory         = "subcategory"
	OrphanSubCategoryCategory = "subcategory_category"
)

// Lookups are the id → entity tables built once per catalog load. The slices
// keep source order for listing, the maps serve resolution.
type Lookups struct {
	Brands        []models.Brand
	Categories    []models.Category
	SubCategories []models.SubCategory

	brandByID       map[string]models.Brand
	categoryByID    map[string]models.Category
	subCategoryByID map[string]models.SubCategory
}

// BuildLookups converts the brand, category and subcategory rows into lookup
// tables. Rows without an id are ignored and the first row wins on duplicate ids.
// The returned map counts subcategories whose category does not exist.
func BuildLookups(brandRows, categoryRows, subCategoryRows []models.RawRow) (*Lookups, map[string]int) {
	brands := lo.UniqBy(lo.FilterMap(brandRows, func(row models.RawRow, _ int) (models.Brand, bool) {
		b := models.Brand{ID: field(row, "id"), Name: field(row, "name")}
		return b, b.ID != ""
	}), func(b models.Brand) string { return b.ID })

	categories := lo.UniqBy(lo.FilterMap(categoryRows, func(row models.RawRow, _ int) (models.Category, bool) {
		c := models.Category{ID: field(row, "id"), Name: field(row, "name")}
		return c, c.ID != ""
	}), func(c models.Category) string { return c.ID })

	subCategories := lo.UniqBy(lo.FilterMap(subCategoryRows, func(row models.RawRow, _ int) (models.SubCategory, bool) {
		s := models.SubCategory{
			ID:         field(row, "id"),
			Name:       field(row, "name"),
			CategoryID: field(row, "categoryId", "category_id", "categoryID"),
		}
		return s, s.ID != ""
	}), func(s models.SubCategory) string { return s.ID })

	l := &Lookups{
		Brands:          brands,
		Categories:      categories,
		SubCategories:   subCategories,
		brandByID:       lo.KeyBy(brands, func(b models.Brand) string { return b.ID }),
		categoryByID:    lo.KeyBy(categories, func(c models.Category) string { return c.ID }),
		subCategoryByID: lo.KeyBy(subCategories, func(s models.SubCategory) string { return s.ID }),
	}

	orphans := map[string]int{}
	for _, s := range subCategories {
		if _, ok := l.categoryByID[s.CategoryID]; !ok {
			orphans[OrphanSubCategoryCategory]++
		}
	}

	return l, orphans
}

func (l *Lookups) Brand(id string) (models.Brand, bool) {
	if l == nil {
		return models.Brand{}, false
	}
	b, ok := l.brandByID[id]
	return b, ok
}

func (l *Lookups) Category(id string) (models.Category, bool) {
	if l == nil {
		return models.Category{}, false
	}
	c, ok := l.categoryByID[id]
	return c, ok
}

func (l *Lookups) SubCategory(id string) (models.SubCategory, bool) {
	if l == nil {
		return models.SubCategory{}, false
	}
	s, ok := l.subCategoryByID[id]
	return s, ok
}

// Normalize joins product rows against the lookups. References that do not
// resolve get sentinel names and are counted in the returned orphan map.
// Output order follows input order.
func Normalize(productRows []models.RawRow, lookups *Lookups) ([]models.EnhancedProduct, map[string]int) {
	products := make([]models.EnhancedProduct, 0, len(productRows))
	orphans := map[string]int{}
	seen := make(map[string]struct{}, len(productRows))

	for _, row := range productRows {
		product := models.Product{
			ID:            field(row, "id"),
			Name:          field(row, "name"),
			Price:         utils.ParsePrice(row["price"]),
			ImageField:    field(row, "image", "images", "imageUrl"),
			BrandID:       field(row, "brandId", "brand_id", "brandID"),
			CategoryID:    field(row, "categoryId", "category_id", "categoryID"),
			SubCategoryID: field(row, "subCategoryId", "subcategoryId", "sub_category_id", "subCategoryID"),
			QuantityLabel: field(row, "quantity"),
			Description:   field(row, "description"),
		}
		if product.ID == "" || product.Name == "" {
			continue
		}
		if _, dup := seen[product.ID]; dup {
			continue
		}
		seen[product.ID] = struct{}{}

		if product.QuantityLabel == "" {
			product.QuantityLabel = models.DefaultQuantity
		}

		enhanced := models.EnhancedProduct{
			Product:         product,
			BrandName:       models.UnknownBrand,
			CategoryName:    models.UnknownCategory,
			SubCategoryName: models.UnknownSubCategory,
			Images:          DecodeImages(product.ImageField),
		}

		if b, ok := lookups.Brand(product.BrandID); ok && b.Name != "" {
			enhanced.BrandName = b.Name
		} else {
			orphans[OrphanBrand]++
		}
		if c, ok := lookups.Category(product.CategoryID); ok && c.Name != "" {
			enhanced.CategoryName = c.Name
		} else {
			orphans[OrphanCategory]++
		}
		if s, ok := lookups.SubCategory(product.SubCategoryID); ok && s.Name != "" {
			enhanced.SubCategoryName = s.Name
		} else {
			orphans[OrphanSubCategory]++
		}

		products = append(products, enhanced)
	}

	return products, orphans
}

// field returns the first non-empty trimmed value among the given columns.
func field(row models.RawRow, keys ...string) string {
	for _, k := range keys {
		if v := strings.TrimSpace(row[k]); v != "" {
			return v
		}
	}
	return ""
}
