package sources

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"storefront-api/internal/models"
)

// HTMLTableParser reads the first table on a page, such as a published
// spreadsheet. The first row with content is the header.
type HTMLTableParser struct{}

func (HTMLTableParser) Parse(payload []byte) ([]models.RawRow, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("parse html: %w", err)
	}

	table := doc.Find("table").First()
	if table.Length() == 0 {
		return nil, fmt.Errorf("no table found in html payload")
	}

	var header []string
	rows := make([]models.RawRow, 0)

	table.Find("tr").Each(func(_ int, tr *goquery.Selection) {
		cells := rowCells(tr)
		if len(cells) == 0 || isRuler(cells) {
			return
		}

		if header == nil {
			header = cells
			return
		}

		row := make(models.RawRow, len(header))
		for i, column := range header {
			if column == "" {
				continue
			}
			if i < len(cells) {
				row[column] = cells[i]
			} else {
				row[column] = ""
			}
		}
		rows = append(rows, row)
	})

	return rows, nil
}

// rowCells prefers td cells so a leading row-number th is ignored.
func rowCells(tr *goquery.Selection) []string {
	sel := tr.Find("td")
	if sel.Length() == 0 {
		sel = tr.Find("th")
	}

	cells := make([]string, 0, sel.Length())
	sel.Each(func(_ int, cell *goquery.Selection) {
		cells = append(cells, strings.TrimSpace(cell.Text()))
	})

	for _, c := range cells {
		if c != "" {
			return cells
		}
	}
	return nil
}

// isRuler reports a spreadsheet column-letter row (A, B, C, ...).
func isRuler(cells []string) bool {
	next := 0
	for _, c := range cells {
		if c == "" {
			continue
		}
		if c != columnName(next) {
			return false
		}
		next++
	}
	return next > 0
}

func columnName(i int) string {
	if i < 26 {
		return string(rune('A' + i))
	}
	return string(rune('A'+i/26-1)) + string(rune('A'+i%26))
}
