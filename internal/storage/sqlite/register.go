package sqlite

import "tsmximport/internal/storage"

func init() {
	storage.Register("sqlite", New)
}
