// Package all registers every storage backend. Import it for side effects.
package all

import (
	_ "tsmximport/internal/storage/mssql"
	_ "tsmximport/internal/storage/postgres"
	_ "tsmximport/internal/storage/sqlite"
)
