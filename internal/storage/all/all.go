// Package all registers every storage backend with the storage factory.
// Configuration selects which one to use, but the binary carries all of them.
package all

import (
	_ "sparkify/internal/storage/mssql"
	_ "sparkify/internal/storage/postgres"
	_ "sparkify/internal/storage/sqlite"
)
