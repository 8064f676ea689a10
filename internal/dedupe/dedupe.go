// Package dedupe implements snapshot-then-filter deduplication for tables whose
// composite business key is not enforced by the store (contract, contact).
//
// The existing-key snapshot is read once before the write. Nothing re-checks
// the store afterwards, so a concurrent writer inserting the same key between
// the snapshot and the write produces a duplicate. Imports are single-run by
// contract; this package does not try to be race-safe.
package dedupe

import (
	"fmt"
	"strings"

	"tsmximport/internal/storage"
)

const (
	sep     = "\x1f"
	nullKey = "\x00"
)

// Key returns the canonical composite key of values.
//
// Each value is canonicalized with storage.NormalizeKey, so int64(5), 5 and
// "5 " produce the same component. nil is encoded as a NUL byte so a missing
// value differs from an empty string.
func Key(values ...any) string {
	var b strings.Builder
	b.Grow(len(values) * 12)
	for i, v := range values {
		if i > 0 {
			b.WriteString(sep)
		}
		if v == nil {
			b.WriteString(nullKey)
			continue
		}
		b.WriteString(storage.NormalizeKey(v))
	}
	return b.String()
}

// KeySet is a set of composite keys built with Key.
type KeySet map[string]struct{}

// KeySetFromRows builds the existing-key snapshot from rows already projected
// to the key columns (as returned by storage.Store.SelectRows).
func KeySetFromRows(rows [][]any) KeySet {
	out := make(KeySet, len(rows))
	for _, r := range rows {
		out[Key(r...)] = struct{}{}
	}
	return out
}

func (s KeySet) Has(k string) bool {
	_, ok := s[k]
	return ok
}

func (s KeySet) Add(k string) { s[k] = struct{}{} }

// Filter keeps the rows of set whose key (over keyColumns) is neither in
// existing nor already seen earlier in set. The first occurrence of a key
// wins, and row order is preserved.
//
// Guarantees: the result is a subset of set, and no kept row's key is in
// existing. existing is not modified.
//
// Errors:
//   - keyColumns is empty, or names a column that set does not have.
func Filter(set storage.RecordSet, keyColumns []string, existing KeySet) (storage.RecordSet, int, error) {
	if len(keyColumns) == 0 {
		return storage.RecordSet{}, 0, fmt.Errorf("dedupe: no key columns")
	}
	keyIdx := make([]int, len(keyColumns))
	for i, c := range keyColumns {
		ix := set.Index(c)
		if ix < 0 {
			return storage.RecordSet{}, 0, fmt.Errorf("dedupe: key column %q not in record set %v", c, set.Columns)
		}
		keyIdx[i] = ix
	}

	kept := storage.RecordSet{Columns: set.Columns, Rows: make([][]any, 0, len(set.Rows))}
	seen := make(KeySet, len(set.Rows))
	removed := 0

	vals := make([]any, len(keyIdx))
	for _, row := range set.Rows {
		for i, ix := range keyIdx {
			vals[i] = row[ix]
		}
		k := Key(vals...)
		if existing.Has(k) || seen.Has(k) {
			removed++
			continue
		}
		seen.Add(k)
		kept.Rows = append(kept.Rows, row)
	}
	return kept, removed, nil
}
