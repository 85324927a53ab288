package sources

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"

	"storefront-api/internal/models"
)

var envelopeKeys = []string{"records", "data", "items", "rows"}

// JSONParser reads an array of objects, either bare or wrapped in an envelope
// object such as {"records": [...]}.
type JSONParser struct{}

func (JSONParser) Parse(payload []byte) ([]models.RawRow, error) {
	decoder := json.NewDecoder(bytes.NewReader(bytes.TrimPrefix(payload, utf8BOM)))
	decoder.UseNumber()

	var doc any
	if err := decoder.Decode(&doc); err != nil {
		return nil, fmt.Errorf("decode json: %w", err)
	}

	items, err := recordArray(doc)
	if err != nil {
		return nil, err
	}

	rows := make([]models.RawRow, 0, len(items))
	for _, item := range items {
		obj, ok := item.(map[string]any)
		if !ok {
			rows = append(rows, models.RawRow{})
			continue
		}
		row := make(models.RawRow, len(obj))
		for k, v := range obj {
			row[k] = stringify(v)
		}
		rows = append(rows, row)
	}

	return rows, nil
}

func recordArray(doc any) ([]any, error) {
	switch v := doc.(type) {
	case []any:
		return v, nil
	case map[string]any:
		for _, key := range envelopeKeys {
			if items, ok := v[key].([]any); ok {
				return items, nil
			}
		}
		return nil, fmt.Errorf("json object has no record array (looked for %v)", envelopeKeys)
	default:
		return nil, fmt.Errorf("json document is not an array or object")
	}
}

func stringify(v any) string {
	switch val := v.(type) {
	case nil:
		return ""
	case string:
		return val
	case json.Number:
		return val.String()
	case bool:
		return strconv.FormatBool(val)
	case map[string]any:
		for _, key := range []string{"id", "_id"} {
			if id, ok := val[key]; ok {
				return stringify(id)
			}
		}
	}

	data, err := json.Marshal(v)
	if err != nil {
		return ""
	}
	return string(data)
}
