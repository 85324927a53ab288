package services

import (
	"encoding/json"
	"fmt"
	"strings"
)

// DecodeImages turns a free-form image field into an ordered list of URLs. The
// field may be a JSON array, a JSON scalar, a comma separated list, or a single
// URL. Empty pieces are dropped.
func DecodeImages(field string) []string {
	images := []string{}

	raw := strings.TrimSpace(field)
	if raw == "" {
		return images
	}

	if doc, ok := decodeJSON(raw); ok {
		switch v := doc.(type) {
		case []any:
			return flattenImages(images, v)
		case nil:
			return images
		case string:
			return appendImage(images, v)
		case json.Number:
			return appendImage(images, v.String())
		case map[string]any:
			return append(images, raw)
		default:
			return appendImage(images, fmt.Sprint(v))
		}
	}

	if strings.Contains(raw, ",") {
		for _, piece := range strings.Split(raw, ",") {
			images = appendImage(images, piece)
		}
		return images
	}

	return append(images, raw)
}

func flattenImages(images []string, items []any) []string {
	for _, item := range items {
		switch v := item.(type) {
		case []any:
			images = flattenImages(images, v)
		case string:
			for _, piece := range strings.Split(v, ",") {
				images = appendImage(images, piece)
			}
		case json.Number:
			images = appendImage(images, v.String())
		case nil, map[string]any:
		default:
			images = appendImage(images, fmt.Sprint(v))
		}
	}
	return images
}

// decodeJSON reports whether raw is exactly one JSON value. Numbers keep
// their literal text.
func decodeJSON(raw string) (any, bool) {
	decoder := json.NewDecoder(strings.NewReader(raw))
	decoder.UseNumber()

	var doc any
	if err := decoder.Decode(&doc); err != nil {
		return nil, false
	}
	if strings.TrimSpace(raw[decoder.InputOffset():]) != "" {
		return nil, false
	}
	return doc, true
}

func appendImage(images []string, piece string) []string {
	if piece = strings.TrimSpace(piece); piece != "" {
		images = append(images, piece)
	}
	return images
}
