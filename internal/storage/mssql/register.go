package mssql

import "tsmximport/internal/storage"

func init() {
	storage.Register("sqlserver", New)
}
