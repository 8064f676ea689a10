// Package source reads the customer spreadsheet into an in-memory RowSet.
//
// Supported inputs:
//   - .xlsx / .xlsm workbooks (excelize)
//   - .csv / .txt files (comma or semicolon separated)
//   - HTML tables, including the ".xls" files many billing systems export
//     that are really HTML
//   - any of the above under an s3://bucket/key URI
//
// Headers are matched to the canonical column names in Columns. Cells are
// trimmed; empty cells become nil. Values are otherwise left raw: converting
// them is the job of package normalize.
package source

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
)

// ErrSourceRead means the spreadsheet could not be fetched or parsed.
var ErrSourceRead = errors.New("source: read failed")

// Row is one spreadsheet record, positionally aligned with RowSet.Columns.
type Row struct {
	V    []any
	Line int // 1-based line in the sheet (the header is line 1)
}

// RowSet is the whole sheet, aligned to Columns.
type RowSet struct {
	Columns []string
	Rows    []Row

	// Unmapped lists source headers that matched no canonical column.
	Unmapped []string
}

// Index returns the position of column in rs.Columns, or -1.
func (rs RowSet) Index(column string) int {
	for i, c := range rs.Columns {
		if c == column {
			return i
		}
	}
	return -1
}

// Get returns the value of column in row, or nil when the column is absent.
func (rs RowSet) Get(row Row, column string) any {
	i := rs.Index(column)
	if i < 0 || i >= len(row.V) {
		return nil
	}
	return row.V[i]
}

// Options tunes how a source is read.
type Options struct {
	// Sheet selects the workbook sheet; empty means the first one.
	Sheet string

	// Comma forces the CSV separator; 0 sniffs ',' vs ';' from the header line.
	Comma rune

	// HeaderMap adds exact header -> column mappings on top of the built-in
	// Portuguese header map.
	HeaderMap map[string]string

	// S3 configures the client used for s3:// URIs.
	S3 S3Options
}

type format int

const (
	formatUnknown format = iota
	formatXLSX
	formatCSV
	formatHTML
)

// Open reads path (a local file or an s3:// URI) into a RowSet.
//
// The format is chosen from the content when it is recognizable (zip magic
// for xlsx, a leading '<' for HTML) and from the extension otherwise.
// Every failure is reported wrapped in ErrSourceRead.
func Open(ctx context.Context, path string, opts Options) (RowSet, error) {
	data, err := load(ctx, path, opts)
	if err != nil {
		return RowSet{}, fmt.Errorf("%w: %s: %w", ErrSourceRead, path, err)
	}

	var rs RowSet
	switch detect(path, data) {
	case formatXLSX:
		rs, err = ReadXLSX(bytes.NewReader(data), opts)
	case formatHTML:
		rs, err = ReadHTML(bytes.NewReader(data), opts)
	case formatCSV:
		rs, err = ReadCSV(bytes.NewReader(data), opts)
	default:
		err = fmt.Errorf("unsupported file type %q", filepath.Ext(path))
	}
	if err != nil {
		if errors.Is(err, ErrSourceRead) {
			return RowSet{}, err
		}
		return RowSet{}, fmt.Errorf("%w: %s: %w", ErrSourceRead, path, err)
	}
	return rs, nil
}

func load(ctx context.Context, path string, opts Options) ([]byte, error) {
	if strings.HasPrefix(path, "s3://") {
		return fetchS3(ctx, path, opts.S3)
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return io.ReadAll(f)
}

var zipMagic = []byte("PK\x03\x04")

func detect(path string, data []byte) format {
	if bytes.HasPrefix(data, zipMagic) {
		return formatXLSX
	}
	head := bytes.TrimLeft(bytes.TrimPrefix(data, []byte("\uFEFF")), " \t\r\n")
	if bytes.HasPrefix(head, []byte("<")) {
		return formatHTML
	}

	switch strings.ToLower(filepath.Ext(path)) {
	case ".xlsx", ".xlsm":
		return formatXLSX
	case ".html", ".htm":
		return formatHTML
	case ".csv", ".txt":
		return formatCSV
	}
	return formatUnknown
}

// build aligns raw records (header first) to Columns.
//
// lines holds the source line of each record; nil means record i sits on
// line i+1. Trailing cells beyond the header and missing trailing cells are
// tolerated; the latter read as nil.
func build(records [][]string, lines []int, opts Options) (RowSet, error) {
	if len(records) == 0 {
		return RowSet{}, fmt.Errorf("empty sheet: no header row")
	}

	cols := append([]string(nil), Columns...)
	colIx := make([]int, len(cols))
	for i := range colIx {
		colIx[i] = -1
	}

	srcToIdx := make(map[string]int, len(records[0]))
	var unmapped []string
	for i, h := range records[0] {
		if i == 0 {
			h = strings.TrimPrefix(h, "\uFEFF")
		}
		name, ok := canonicalHeader(h, opts.HeaderMap)
		if !ok {
			if strings.TrimSpace(h) != "" {
				unmapped = append(unmapped, strings.TrimSpace(h))
			}
			continue
		}
		if _, dup := srcToIdx[name]; !dup {
			srcToIdx[name] = i
		}
	}
	matched := 0
	for t, target := range cols {
		if si, ok := srcToIdx[target]; ok {
			colIx[t] = si
			matched++
		}
	}
	if matched == 0 {
		return RowSet{}, fmt.Errorf("header matches no known column: %q", records[0])
	}

	rs := RowSet{Columns: cols, Unmapped: unmapped}
	for n, rec := range records[1:] {
		if blank(rec) {
			continue
		}
		line := n + 2
		if lines != nil {
			line = lines[n+1]
		}
		row := Row{V: make([]any, len(cols)), Line: line}
		for t := range cols {
			si := colIx[t]
			if si < 0 || si >= len(rec) {
				continue
			}
			if v := strings.TrimSpace(rec[si]); v != "" {
				row.V[t] = v
			}
		}
		rs.Rows = append(rs.Rows, row)
	}
	return rs, nil
}

func blank(rec []string) bool {
	for _, v := range rec {
		if strings.TrimSpace(v) != "" {
			return false
		}
	}
	return true
}
