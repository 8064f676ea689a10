package storage

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// NormalizeKey converts a key value to a canonical string form, suitable for
// in-memory lookup maps and composite-key snapshots (e.g. "111.222.333-44" or "42").
//
// Backends must not assume a particular underlying type for keys: the same id
// may come back as int64 from Postgres, int64 or []byte from SQLite, or be bound
// as int by the mapper. This helper keeps all of them comparable.
func NormalizeKey(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return strings.TrimSpace(t)
	case []byte:
		return strings.TrimSpace(string(t))
	case int64:
		return strconv.FormatInt(t, 10)
	case int:
		return strconv.Itoa(t)
	case int32:
		return strconv.FormatInt(int64(t), 10)
	case bool:
		if t {
			return "true"
		}
		return "false"
	case time.Time:
		return t.UTC().Format("2006-01-02")
	default:
		return strings.TrimSpace(fmt.Sprint(v))
	}
}
