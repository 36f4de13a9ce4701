package postgres

import "sparkify/internal/storage"

func init() {
	// registers the postgres gateway factory
	storage.Register("postgres", Open)
}
