package source

import (
	"bufio"
	"encoding/csv"
	"fmt"
	"io"
	"strings"
)

// ReadCSV reads a delimited export with a header line.
//
// Quirks handled:
//   - a UTF-8 BOM before the first header
//   - ';' separators (Excel in pt-BR locales), sniffed from the header line
//     unless opts.Comma is set
//   - ragged records (FieldsPerRecord = -1)
func ReadCSV(r io.Reader, opts Options) (RowSet, error) {
	br := bufio.NewReader(r)

	comma := opts.Comma
	if comma == 0 {
		comma = sniffComma(br)
	}

	cr := csv.NewReader(br)
	cr.Comma = comma
	cr.FieldsPerRecord = -1
	cr.LazyQuotes = true

	var (
		records [][]string
		lines   []int
	)
	for {
		rec, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return RowSet{}, fmt.Errorf("csv read: %w", err)
		}
		// encoding/csv skips blank lines; keep the real line for reporting.
		line, _ := cr.FieldPos(0)
		records = append(records, rec)
		lines = append(lines, line)
	}
	return build(records, lines, opts)
}

func sniffComma(br *bufio.Reader) rune {
	peek, _ := br.Peek(4096)
	first := string(peek)
	if i := strings.IndexAny(first, "\r\n"); i >= 0 {
		first = first[:i]
	}
	if strings.Count(first, ";") > strings.Count(first, ",") {
		return ';'
	}
	return ','
}
