// Package extract turns rendered page markup into market records.
package extract

import (
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/quotewatch/quotewatchd/internal/market"
)

// Config controls table extraction.
type Config struct {
	// RowSelector is the CSS selector matching one record row.
	RowSelector string
	// MaxRecords caps the number of records per call; 0 means unbounded.
	MaxRecords int
}

// TableExtractor reads record rows out of markup using a CSS selector.
// It is pure: no IO, no shared state, and it never returns an error —
// markup it cannot read yields an empty slice.
type TableExtractor struct {
	cfg Config
}

// New returns a TableExtractor for the given selector and cap.
func New(cfg Config) *TableExtractor {
	return &TableExtractor{cfg: cfg}
}

// Extract parses markup and returns the records found, in document order.
func (e *TableExtractor) Extract(markup string) []market.Record {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(markup))
	if err != nil {
		return nil
	}

	var records []market.Record
	doc.Find(e.cfg.RowSelector).EachWithBreak(func(_ int, row *goquery.Selection) bool {
		if rec, ok := recordFromRow(row); ok {
			records = append(records, rec)
		}
		return e.cfg.MaxRecords == 0 || len(records) < e.cfg.MaxRecords
	})
	return records
}

// recordFromRow splits a row's text into cells and maps the first three onto
// a record. Rows with fewer than three non-empty cells are skipped.
func recordFromRow(row *goquery.Selection) (market.Record, bool) {
	var cells []string
	for _, part := range strings.Split(rowText(row), "\n") {
		part = strings.TrimSpace(part)
		if part != "" {
			cells = append(cells, part)
		}
	}
	if len(cells) < 3 {
		return market.Record{}, false
	}
	return market.Record{
		Pair:      cells[0],
		Price:     cells[1],
		Change24h: cells[2],
	}, true
}

// rowText flattens a row to text with one line per descendant text node, so
// cell boundaries survive regardless of the row's element structure.
func rowText(row *goquery.Selection) string {
	var b strings.Builder
	row.Contents().Each(func(_ int, node *goquery.Selection) {
		appendNodeText(&b, node)
	})
	return b.String()
}

func appendNodeText(b *strings.Builder, node *goquery.Selection) {
	if goquery.NodeName(node) == "#text" {
		text := strings.TrimSpace(node.Text())
		if text != "" {
			b.WriteString(text)
			b.WriteByte('\n')
		}
		return
	}
	node.Contents().Each(func(_ int, child *goquery.Selection) {
		appendNodeText(b, child)
	})
}
