package transform

import (
	"context"
	"errors"
	"time"

	"sparkify/internal/records"
	"sparkify/internal/storage"
)

// SongRow is one row of the songs table.
type SongRow struct {
	SongID   string
	Title    string
	ArtistID string
	Year     int64
	Duration float64
}

// Args returns the song_table_insert arguments.
func (r SongRow) Args() []any {
	return []any{r.SongID, r.Title, r.ArtistID, r.Year, r.Duration}
}

// ArtistRow is one row of the artists table.
type ArtistRow struct {
	ArtistID  string
	Name      string
	Location  string
	Latitude  records.NullFloat
	Longitude records.NullFloat
}

// Args returns the artist_table_insert arguments. Missing coordinates bind as NULL.
func (r ArtistRow) Args() []any {
	return []any{r.ArtistID, r.Name, r.Location, r.Latitude.Value(), r.Longitude.Value()}
}

// TimeRow is one row of the time table.
type TimeRow records.TimeParts

// Args returns the time_table_insert arguments.
func (r TimeRow) Args() []any {
	return []any{r.StartTime, r.Hour, r.Day, r.Week, r.Month, r.Year, r.Weekday}
}

// UserRow is one row of the users table.
type UserRow struct {
	UserID    string
	FirstName string
	LastName  string
	Gender    string
	Level     string
}

// Args returns the user_table_insert arguments.
func (r UserRow) Args() []any {
	return []any{r.UserID, r.FirstName, r.LastName, r.Gender, r.Level}
}

// SongPlayRow is one row of the songplays table. SongID and ArtistID are nil
// when the play did not match a known song.
type SongPlayRow struct {
	StartTime time.Time
	UserID    string
	Level     string
	SongID    *string
	ArtistID  *string
	SessionID int64
	Location  string
	UserAgent string
}

// Matched reports whether the play resolved to a song.
func (r SongPlayRow) Matched() bool { return r.SongID != nil }

// Args returns the songplay_table_insert arguments.
func (r SongPlayRow) Args() []any {
	return []any{r.StartTime, r.UserID, r.Level, nullString(r.SongID), nullString(r.ArtistID), r.SessionID, r.Location, r.UserAgent}
}

func nullString(p *string) any {
	if p == nil {
		return nil
	}
	return *p
}

// ---- per-table sequences ----

// SongRows projects one song row per record, in input order. Titles are
// stored NFC-normalized (see storage.NormalizeText) so they compare equal to
// the normalized lookup text; surrounding whitespace is kept as given.
func SongRows(songs []records.Song) []SongRow {
	out := make([]SongRow, 0, len(songs))
	for _, s := range songs {
		out = append(out, SongRow{
			SongID:   s.SongID,
			Title:    storage.NormalizeText(s.Title),
			ArtistID: s.ArtistID,
			Year:     int64(s.Year),
			Duration: float64(s.Duration),
		})
	}
	return out
}

// ArtistRows projects one artist row per record, in input order. Repeated
// artist_ids are kept; the insert statement ignores conflicts. Names are
// stored NFC-normalized, like song titles.
func ArtistRows(songs []records.Song) []ArtistRow {
	out := make([]ArtistRow, 0, len(songs))
	for _, s := range songs {
		out = append(out, ArtistRow{
			ArtistID:  s.ArtistID,
			Name:      storage.NormalizeText(s.ArtistName),
			Location:  s.ArtistLocation,
			Latitude:  s.ArtistLatitude,
			Longitude: s.ArtistLongitude,
		})
	}
	return out
}

// SongPlays keeps only NextSong events, preserving order.
func SongPlays(events []records.Event) []records.Event {
	out := make([]records.Event, 0, len(events))
	for _, e := range events {
		if e.IsNextSong() {
			out = append(out, e)
		}
	}
	return out
}

// TimeRows derives one time row per event. Equal timestamps yield equal rows.
func TimeRows(events []records.Event) []TimeRow {
	out := make([]TimeRow, 0, len(events))
	for _, e := range events {
		out = append(out, TimeRow(records.BreakDown(int64(e.TS))))
	}
	return out
}

// UserRows projects one user row per event. A user seen several times
// appears several times; the last row carries the level that wins.
func UserRows(events []records.Event) []UserRow {
	out := make([]UserRow, 0, len(events))
	for _, e := range events {
		out = append(out, UserRow{
			UserID:    string(e.UserID),
			FirstName: e.FirstName,
			LastName:  e.LastName,
			Gender:    e.Gender,
			Level:     e.Level,
		})
	}
	return out
}

// Lookup resolves a played song to its ids. ok is false when nothing matches.
type Lookup func(ctx context.Context, title, artist string, duration float64) (songID, artistID string, ok bool, err error)

// GatewayLookup runs song_select on gw.
func GatewayLookup(gw storage.Gateway) Lookup {
	return func(ctx context.Context, title, artist string, duration float64) (string, string, bool, error) {
		var songID, artistID string
		err := gw.QueryRow(ctx, storage.SongSelect, title, artist, duration).Scan(&songID, &artistID)
		if errors.Is(err, storage.ErrNoRows) {
			return "", "", false, nil
		}
		if err != nil {
			return "", "", false, err
		}
		return songID, artistID, true, nil
	}
}

// SongPlayRows builds one song-play row per event. Events without a song,
// artist or length skip the lookup and stay unmatched; they are never dropped.
func SongPlayRows(ctx context.Context, events []records.Event, lookup Lookup) ([]SongPlayRow, error) {
	out := make([]SongPlayRow, 0, len(events))
	for _, e := range events {
		row := SongPlayRow{
			StartTime: records.FromMillis(int64(e.TS)),
			UserID:    string(e.UserID),
			Level:     e.Level,
			SessionID: int64(e.SessionID),
			Location:  e.Location,
			UserAgent: e.UserAgent,
		}
		if e.Song != nil && e.Artist != nil && e.Length.Valid {
			songID, artistID, ok, err := lookup(ctx, storage.NormalizeText(*e.Song), storage.NormalizeText(*e.Artist), e.Length.Float64)
			if err != nil {
				return nil, err
			}
			if ok {
				row.SongID, row.ArtistID = &songID, &artistID
			}
		}
		out = append(out, row)
	}
	return out, nil
}
