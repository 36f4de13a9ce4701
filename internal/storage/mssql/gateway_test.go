package mssql

import (
	"context"
	"fmt"
	"strings"
	"testing"

	"sparkify/internal/storage"
)

func TestDefaultStatements_UseOrdinalPlaceholders(t *testing.T) {
	// SQL Server has no ON CONFLICT; every statement that the other backends
	// express as an upsert must be guarded here, and no statement may carry
	// Postgres ($n) or SQLite (?) placeholders.
	t.Parallel()

	s := DefaultStatements()
	if err := s.Validate(); err != nil {
		t.Fatalf("Validate: %v", err)
	}

	tests := []struct {
		name   storage.StatementName
		params int
		guard  string
	}{
		{storage.SongInsert, 5, "IF NOT EXISTS"},
		{storage.ArtistInsert, 5, "IF NOT EXISTS"},
		{storage.TimeInsert, 7, "IF NOT EXISTS"},
		{storage.UserInsert, 5, "MERGE users"},
		{storage.SongSelect, 3, "TOP 1"},
		{storage.SongPlayInsert, 8, "INSERT INTO songplays"},
	}

	for _, tt := range tests {
		q, err := s.Text(tt.name)
		if err != nil {
			t.Fatalf("Text(%s): %v", tt.name, err)
		}
		if !strings.Contains(q, tt.guard) {
			t.Fatalf("%s missing %q:\n%s", tt.name, tt.guard, q)
		}
		if strings.Contains(q, "$1") || strings.Contains(q, "?") {
			t.Fatalf("%s uses a foreign placeholder style:\n%s", tt.name, q)
		}
		for i := 1; i <= tt.params; i++ {
			if !strings.Contains(q, fmt.Sprintf("@p%d", i)) {
				t.Fatalf("%s missing @p%d:\n%s", tt.name, i, q)
			}
		}
		if strings.Contains(q, fmt.Sprintf("@p%d", tt.params+1)) {
			t.Fatalf("%s has more than %d parameters:\n%s", tt.name, tt.params, q)
		}
	}
}

func TestOpen_RejectsNonSQLServerDSN(t *testing.T) {
	t.Parallel()

	_, err := Open(context.Background(), storage.Config{Kind: "mssql", DSN: "host=localhost"})
	if err == nil || !strings.Contains(err.Error(), "sqlserver://") {
		t.Fatalf("expected scheme error, got %v", err)
	}
}
