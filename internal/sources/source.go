package sources

import (
	"bytes"
	"context"
	"fmt"
	"strings"

	log "github.com/sirupsen/logrus"
	"storefront-api/internal/models"
)

type Kind string

const (
	Products      Kind = "products"
	Brands        Kind = "brands"
	Categories    Kind = "categories"
	SubCategories Kind = "subcategories"
)

// Kinds lists every source a catalog load needs, in load order.
var Kinds = []Kind{Products, Brands, Categories, SubCategories}

// Fetcher retrieves the raw payload behind a source URL.
type Fetcher interface {
	Fetch(ctx context.Context, url string) ([]byte, error)
}

// Parser turns one payload into rows. Implementations are keyed by payload shape.
type Parser interface {
	Parse(payload []byte) ([]models.RawRow, error)
}

type Source struct {
	Kind Kind
	URL  string
}

// Result is the outcome of decoding one source payload.
type Result struct {
	Kind     Kind
	Rows     []models.RawRow
	Skipped  int
	Inactive int
}

var requiredFields = map[Kind][]string{
	Products:      {"id", "name"},
	Brands:        {"id", "name"},
	Categories:    {"id", "name"},
	SubCategories: {"id", "name"},
}

var nameAliases = map[Kind][]string{
	Brands:     {"brandName", "brand_name"},
	Categories: {"categoryName", "category_name"},
}

// ParserFor returns the parser for a payload format. "auto" sniffs the payload.
func ParserFor(format string, payload []byte) (Parser, error) {
	if format == "" || format == "auto" {
		format = Sniff(payload)
	}

	switch format {
	case "csv":
		return CSVParser{}, nil
	case "json":
		return JSONParser{}, nil
	case "html":
		return HTMLTableParser{}, nil
	default:
		return nil, fmt.Errorf("unsupported source format: %s", format)
	}
}

// Sniff guesses the payload shape from its first non-blank byte.
func Sniff(payload []byte) string {
	trimmed := bytes.TrimSpace(bytes.TrimPrefix(payload, utf8BOM))
	if len(trimmed) == 0 {
		return "csv"
	}
	switch trimmed[0] {
	case '[', '{':
		return "json"
	case '<':
		return "html"
	default:
		return "csv"
	}
}

// Decode parses a payload and keeps only rows that carry the fields the source
// kind requires. A payload that cannot be interpreted at all yields no rows and
// an error wrapping models.ErrParseFailure.
func Decode(kind Kind, format string, payload []byte) (Result, error) {
	result := Result{Kind: kind, Rows: []models.RawRow{}}

	parser, err := ParserFor(format, payload)
	if err != nil {
		return result, fmt.Errorf("%s: %w: %v", kind, models.ErrParseFailure, err)
	}

	rows, err := parser.Parse(payload)
	if err != nil {
		return result, fmt.Errorf("%s: %w: %v", kind, models.ErrParseFailure, err)
	}

	for i, row := range rows {
		row = canonicalize(kind, row)
		if missing := missingField(kind, row); missing != "" {
			result.Skipped++
			log.Debugf("%s row %d skipped: missing %s", kind, i+1, missing)
			continue
		}
		if kind == Products && !isActive(row) {
			result.Inactive++
			continue
		}
		result.Rows = append(result.Rows, row)
	}

	return result, nil
}

func canonicalize(kind Kind, row models.RawRow) models.RawRow {
	out := make(models.RawRow, len(row))
	for k, v := range row {
		out[strings.TrimSpace(k)] = strings.TrimSpace(v)
	}

	if out["id"] == "" && out["_id"] != "" {
		out["id"] = out["_id"]
	}
	if out["name"] == "" {
		for _, alias := range nameAliases[kind] {
			if out[alias] != "" {
				out["name"] = out[alias]
				break
			}
		}
	}
	return out
}

func missingField(kind Kind, row models.RawRow) string {
	for _, field := range requiredFields[kind] {
		if row[field] == "" {
			return field
		}
	}
	return ""
}

// isActive keeps rows without a status column; rows with one must be active.
func isActive(row models.RawRow) bool {
	status, ok := row["status"]
	if !ok {
		return true
	}
	switch strings.ToLower(status) {
	case "a", "active":
		return true
	}
	return false
}
