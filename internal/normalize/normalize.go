// Package normalize turns raw spreadsheet cell values into the canonical forms
// stored in the database.
//
// Every function here is total: it never fails and never panics, falling back to
// a fixed sentinel when the input is missing or unparseable. Inputs are typed
// as any because cells arrive as strings (CSV, HTML, raw XLSX), numbers,
// booleans or time.Time depending on the reader.
package normalize

import (
	"fmt"
	"strconv"
	"strings"
	"time"
	"unicode"

	"github.com/shopspring/decimal"
	"github.com/xuri/excelize/v2"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"
	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

const (
	// DefaultState is used when the state cell is empty.
	DefaultState = "DF"

	// UnknownPostalCode is the sentinel for postal codes without exactly 8 digits.
	UnknownPostalCode = "00000-000"

	// NotInformed fills missing street, neighborhood and city.
	NotInformed = "Não informado"

	// NoNumber fills a missing street number.
	NoNumber = "S/N"

	// MaxNumberLen is the width of contract.number.
	MaxNumberLen = 15
)

var truthy = map[string]struct{}{
	"sim": {}, "s": {}, "true": {}, "t": {}, "1": {}, "yes": {}, "y": {},
}

// Text renders a cell as a trimmed string. nil renders as "".
//
// Whole floats render without a fractional part so numeric cells holding
// documents, phones or postal codes ("11122233344" read back as 1.1122233344e10)
// keep their digits.
func Text(raw any) string {
	switch v := raw.(type) {
	case nil:
		return ""
	case string:
		return strings.TrimSpace(v)
	case []byte:
		return strings.TrimSpace(string(v))
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	case float32:
		return strconv.FormatFloat(float64(v), 'f', -1, 32)
	case int:
		return strconv.Itoa(v)
	case int64:
		return strconv.FormatInt(v, 10)
	case bool:
		return strconv.FormatBool(v)
	case time.Time:
		return v.Format("2006-01-02")
	case decimal.Decimal:
		return v.String()
	case interface{ String() string }:
		return strings.TrimSpace(v.String())
	default:
		return strings.TrimSpace(fmt.Sprint(v))
	}
}

func digits(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for i := 0; i < len(s); i++ {
		if c := s[i]; c >= '0' && c <= '9' {
			b.WriteByte(c)
		}
	}
	return b.String()
}

// Document canonicalizes a CPF/CNPJ.
//
//   - 11 digits: XXX.XXX.XXX-XX
//   - 14 digits: XX.XXX.XXX/XXXX-XX
//   - 10 or 13 digits: left-padded with one zero first, since numeric cells
//     drop the leading zero of a CPF/CNPJ
//   - any other digit count: the digits alone
//   - no digits at all: ("", false); the row has no usable client key
//
// Document is idempotent and ignores separators, so "111.222.333-44" and
// " 11122233344" produce the same key.
func Document(raw any) (string, bool) {
	d := digits(Text(raw))
	switch len(d) {
	case 10, 13:
		d = "0" + d
	}
	switch len(d) {
	case 0:
		return "", false
	case 11:
		return d[0:3] + "." + d[3:6] + "." + d[6:9] + "-" + d[9:11], true
	case 14:
		return d[0:2] + "." + d[2:5] + "." + d[5:8] + "/" + d[8:12] + "-" + d[12:14], true
	default:
		return d, true
	}
}

// State returns a 2-letter uppercase state code.
//
// A full state name is matched first title-cased, then accent and case folded
// ("sao paulo", "SÃO PAULO" and "São Paulo" all give "SP"). Anything else
// yields its first two characters uppercased when both are letters. Missing
// input, or input that does not start with two letters, gives DefaultState.
func State(raw any) string {
	s := strings.Join(strings.Fields(Text(raw)), " ")
	if s == "" {
		return DefaultState
	}

	title := cases.Title(language.BrazilianPortuguese).String(strings.ToLower(s))
	if code, ok := statesByTitle[title]; ok {
		return code
	}
	if code, ok := statesByFold[FoldKey(s)]; ok {
		return code
	}

	r := []rune(s)
	if len(r) < 2 || !unicode.IsLetter(r[0]) || !unicode.IsLetter(r[1]) {
		return DefaultState
	}
	return strings.ToUpper(string(r[:2]))
}

// PostalCode formats 8 digits as NNNNN-NNN; anything else is UnknownPostalCode.
func PostalCode(raw any) string {
	d := digits(Text(raw))
	if len(d) != 8 {
		return UnknownPostalCode
	}
	return d[:5] + "-" + d[5:]
}

// Bool reports whether raw is one of the truthy tokens (sim, s, true, t, 1,
// yes, y), case-insensitively. Native bools pass through.
func Bool(raw any) bool {
	if b, ok := raw.(bool); ok {
		return b
	}
	_, ok := truthy[strings.ToLower(Text(raw))]
	return ok
}

// Default returns Text(raw), or fallback when that is empty.
func Default(raw any, fallback string) string {
	if s := Text(raw); s != "" {
		return s
	}
	return fallback
}

// Truncate cuts s to at most n runes.
func Truncate(s string, n int) string {
	if n < 0 {
		return ""
	}
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}

// Street, Number, Neighborhood and City apply the address defaults.
func Street(raw any) string       { return Default(raw, NotInformed) }
func Neighborhood(raw any) string { return Default(raw, NotInformed) }
func City(raw any) string         { return Default(raw, NotInformed) }
func Number(raw any) string       { return Truncate(Default(raw, NoNumber), MaxNumberLen) }

var dateLayouts = []string{
	"02/01/2006",
	"2006-01-02",
	"02/01/2006 15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02T15:04:05Z07:00",
	"02-01-2006",
	"02.01.2006",
}

// Excel serial day numbers for 1900-01-01 .. 9999-12-31.
const (
	minExcelSerial = 1
	maxExcelSerial = 2958465
)

// Date parses dd/mm/yyyy, ISO dates and Excel serial day numbers.
// The result is a UTC date with no time of day.
func Date(raw any) (time.Time, bool) {
	if t, ok := raw.(time.Time); ok {
		if t.IsZero() {
			return time.Time{}, false
		}
		return dateOnly(t), true
	}

	s := Text(raw)
	if s == "" {
		return time.Time{}, false
	}
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return dateOnly(t), true
		}
	}

	if f, err := strconv.ParseFloat(s, 64); err == nil && f >= minExcelSerial && f <= maxExcelSerial {
		if t, err := excelize.ExcelDateToTime(f, false); err == nil {
			return dateOnly(t), true
		}
	}
	return time.Time{}, false
}

func dateOnly(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

// Int parses an integer cell ("10", "10.0", 10.0).
func Int(raw any) (int, bool) {
	s := Text(raw)
	if s == "" {
		return 0, false
	}
	if n, err := strconv.Atoi(s); err == nil {
		return n, true
	}
	f, err := strconv.ParseFloat(strings.Replace(s, ",", ".", 1), 64)
	if err != nil || f != float64(int(f)) {
		return 0, false
	}
	return int(f), true
}

// Money parses a price cell: "R$ 1.234,56", "1234.56", "50" or a number.
// A comma marks the Brazilian format, where dots group thousands.
func Money(raw any) (decimal.Decimal, bool) {
	switch v := raw.(type) {
	case float64:
		return decimal.NewFromFloat(v), true
	case decimal.Decimal:
		return v, true
	}

	s := Text(raw)
	s = strings.TrimPrefix(strings.ToUpper(s), "R$")
	s = strings.ReplaceAll(strings.TrimSpace(s), " ", "")
	if s == "" {
		return decimal.Decimal{}, false
	}
	if strings.Contains(s, ",") {
		s = strings.ReplaceAll(s, ".", "")
		s = strings.Replace(s, ",", ".", 1)
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Decimal{}, false
	}
	return d, true
}

// FoldKey lowercases s, strips diacritics and collapses whitespace.
// It is the matching key for state names and spreadsheet headers.
func FoldKey(s string) string {
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	folded, _, err := transform.String(t, s)
	if err != nil {
		folded = s
	}
	return strings.Join(strings.Fields(strings.ToLower(folded)), " ")
}
