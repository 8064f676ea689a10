package postgres

import "tsmximport/internal/storage"

func init() {
	// registers the backend factory
	storage.Register("postgres", New)
}
