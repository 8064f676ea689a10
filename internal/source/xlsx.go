package source

import (
	"fmt"
	"io"

	"github.com/xuri/excelize/v2"
)

// ReadXLSX reads one sheet of a workbook.
//
// Cells are read raw (RawCellValue): dates come back as Excel serial numbers
// and numbers without display formatting, so a CPF formatted as a number keeps
// all its digits. normalize.Date understands the serials.
func ReadXLSX(r io.Reader, opts Options) (RowSet, error) {
	f, err := excelize.OpenReader(r, excelize.Options{RawCellValue: true})
	if err != nil {
		return RowSet{}, fmt.Errorf("open workbook: %w", err)
	}
	defer func() { _ = f.Close() }()

	sheet := opts.Sheet
	if sheet == "" {
		sheets := f.GetSheetList()
		if len(sheets) == 0 {
			return RowSet{}, fmt.Errorf("workbook has no sheets")
		}
		sheet = sheets[0]
	}

	records, err := f.GetRows(sheet, excelize.Options{RawCellValue: true})
	if err != nil {
		return RowSet{}, fmt.Errorf("read sheet %q: %w", sheet, err)
	}
	return build(records, nil, opts)
}
