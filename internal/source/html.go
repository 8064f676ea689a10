package source

import (
	"fmt"
	"io"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// ReadHTML reads the first <table> of an HTML document. The first row with
// any th/td cells is the header.
func ReadHTML(r io.Reader, opts Options) (RowSet, error) {
	doc, err := goquery.NewDocumentFromReader(r)
	if err != nil {
		return RowSet{}, fmt.Errorf("parse html: %w", err)
	}

	table := doc.Find("table").First()
	if table.Length() == 0 {
		return RowSet{}, fmt.Errorf("no <table> found")
	}

	var records [][]string
	table.Find("tr").Each(func(_ int, tr *goquery.Selection) {
		var rec []string
		tr.Find("th, td").Each(func(_ int, cell *goquery.Selection) {
			rec = append(rec, strings.Join(strings.Fields(cell.Text()), " "))
		})
		if len(rec) > 0 {
			records = append(records, rec)
		}
	})
	return build(records, nil, opts)
}
