package postgres

import (
	"fmt"
	"strings"
	"testing"

	"sparkify/internal/storage"
)

func TestDefaultStatements_DialectShape(t *testing.T) {
	t.Parallel()

	s := DefaultStatements()
	if err := s.Validate(); err != nil {
		t.Fatalf("Validate: %v", err)
	}

	tests := []struct {
		name     storage.StatementName
		params   int
		contains string
	}{
		{storage.SongInsert, 5, "ON CONFLICT (song_id) DO NOTHING"},
		{storage.ArtistInsert, 5, "ON CONFLICT (artist_id) DO NOTHING"},
		{storage.TimeInsert, 7, "ON CONFLICT (start_time) DO NOTHING"},
		{storage.UserInsert, 5, "DO UPDATE SET level = EXCLUDED.level"},
		{storage.SongSelect, 3, "JOIN artists"},
		{storage.SongPlayInsert, 8, "INSERT INTO songplays"},
	}

	for _, tt := range tests {
		t.Run(string(tt.name), func(t *testing.T) {
			q, err := s.Text(tt.name)
			if err != nil {
				t.Fatalf("Text: %v", err)
			}
			if !strings.Contains(q, tt.contains) {
				t.Fatalf("%s missing %q:\n%s", tt.name, tt.contains, q)
			}
			last := fmt.Sprintf("$%d", tt.params)
			next := fmt.Sprintf("$%d", tt.params+1)
			if !strings.Contains(q, last) || strings.Contains(q, next) {
				t.Fatalf("%s: expected exactly %d placeholders:\n%s", tt.name, tt.params, q)
			}
			if strings.Contains(q, "?") {
				t.Fatalf("%s uses sqlite placeholders:\n%s", tt.name, q)
			}
		})
	}
}
