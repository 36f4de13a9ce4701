package storage

import (
	"errors"
	"fmt"
	"io/fs"
	"path"
	"strings"
)

// StatementName identifies one of the parameterized statements the loader runs.
type StatementName string

const (
	SongInsert     StatementName = "song_table_insert"
	ArtistInsert   StatementName = "artist_table_insert"
	TimeInsert     StatementName = "time_table_insert"
	UserInsert     StatementName = "user_table_insert"
	SongSelect     StatementName = "song_select"
	SongPlayInsert StatementName = "songplay_table_insert"
)

// StatementNames lists every statement a complete Statements value must carry.
var StatementNames = []StatementName{
	SongInsert,
	ArtistInsert,
	TimeInsert,
	UserInsert,
	SongSelect,
	SongPlayInsert,
}

// Statements is the SQL text for each named statement, in the placeholder
// dialect of one backend. The schema owner decides upsert behaviour here
// (ON CONFLICT, OR IGNORE, MERGE); the loader only binds arguments.
//
// Argument order per statement:
//
//	song_table_insert:     song_id, title, artist_id, year, duration
//	artist_table_insert:   artist_id, name, location, latitude, longitude
//	time_table_insert:     start_time, hour, day, week, month, year, weekday
//	user_table_insert:     user_id, first_name, last_name, gender, level
//	song_select:           title, artist name, duration -> (song_id, artist_id)
//	songplay_table_insert: start_time, user_id, level, song_id, artist_id, session_id, location, user_agent
type Statements struct {
	SongInsert     string `json:"song_table_insert" yaml:"song_table_insert"`
	ArtistInsert   string `json:"artist_table_insert" yaml:"artist_table_insert"`
	TimeInsert     string `json:"time_table_insert" yaml:"time_table_insert"`
	UserInsert     string `json:"user_table_insert" yaml:"user_table_insert"`
	SongSelect     string `json:"song_select" yaml:"song_select"`
	SongPlayInsert string `json:"songplay_table_insert" yaml:"songplay_table_insert"`
}

func (s *Statements) field(name StatementName) *string {
	switch name {
	case SongInsert:
		return &s.SongInsert
	case ArtistInsert:
		return &s.ArtistInsert
	case TimeInsert:
		return &s.TimeInsert
	case UserInsert:
		return &s.UserInsert
	case SongSelect:
		return &s.SongSelect
	case SongPlayInsert:
		return &s.SongPlayInsert
	default:
		return nil
	}
}

// Text returns the SQL for name.
func (s Statements) Text(name StatementName) (string, error) {
	p := s.field(name)
	if p == nil {
		return "", fmt.Errorf("storage: unknown statement %q", name)
	}
	if strings.TrimSpace(*p) == "" {
		return "", fmt.Errorf("storage: statement %q is empty", name)
	}
	return *p, nil
}

// IsZero reports whether no statement text is set.
func (s Statements) IsZero() bool {
	return s == Statements{}
}

// Validate returns an error naming the first missing statement.
func (s Statements) Validate() error {
	for _, n := range StatementNames {
		if _, err := s.Text(n); err != nil {
			return err
		}
	}
	return nil
}

// Override returns s with every non-empty statement in o replacing its
// counterpart. Backends use it to layer user-supplied SQL over their defaults.
func (s Statements) Override(o Statements) Statements {
	out := s
	for _, n := range StatementNames {
		if v := *o.field(n); strings.TrimSpace(v) != "" {
			*out.field(n) = v
		}
	}
	return out
}

// LoadStatements reads "<dir>/<name>.sql" from fsys for every statement name.
// Backends call it on their embedded query directory.
func LoadStatements(fsys fs.FS, dir string) (Statements, error) {
	var s Statements
	for _, n := range StatementNames {
		b, err := fs.ReadFile(fsys, path.Join(dir, string(n)+".sql"))
		if err != nil {
			return Statements{}, fmt.Errorf("storage: load statement %s: %w", n, err)
		}
		*s.field(n) = strings.TrimSpace(string(b))
	}
	return s, s.Validate()
}

// LoadStatementOverrides reads whichever "<dir>/<name>.sql" files exist in
// fsys. Missing files leave that statement empty, so the result is meant to be
// passed to Override on a backend's defaults.
func LoadStatementOverrides(fsys fs.FS, dir string) (Statements, error) {
	var s Statements
	for _, n := range StatementNames {
		b, err := fs.ReadFile(fsys, path.Join(dir, string(n)+".sql"))
		if errors.Is(err, fs.ErrNotExist) {
			continue
		}
		if err != nil {
			return Statements{}, fmt.Errorf("storage: load statement %s: %w", n, err)
		}
		*s.field(n) = strings.TrimSpace(string(b))
	}
	return s, nil
}
