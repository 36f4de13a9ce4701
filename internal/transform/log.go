package transform

import (
	"context"
	"fmt"

	"sparkify/internal/metrics"
	"sparkify/internal/records"
	"sparkify/internal/storage"
)

// LogFile loads event-log files. Only NextSong events produce rows: one time
// row, one user row and one song-play row each.
type LogFile struct {
	// Lookup overrides the song_select lookup. Nil means GatewayLookup(gw).
	Lookup Lookup
}

// Name implements Transformer.
func (LogFile) Name() string { return "log" }

// Transform implements Transformer.
//
// Statements run table by table: every time row, then every user row, then
// every song-play row, so a user's last event in the file sets their level.
//
// Errors:
//   - *LineError for an undecodable line, or a NextSong event with no ts or
//     userId. Non-NextSong events are not validated.
//   - lookup and statement errors, wrapped with the table they targeted.
func (l LogFile) Transform(ctx context.Context, gw storage.Gateway, path string) (Stats, error) {
	recs, err := readRecords[records.Event](ctx, path)
	if err != nil {
		return Stats{}, err
	}

	all := make([]records.Event, 0, len(recs))
	for _, r := range recs {
		if r.rec.IsNextSong() {
			if err := r.rec.Validate(); err != nil {
				return Stats{}, &LineError{Path: path, Line: r.line, Err: err}
			}
		}
		all = append(all, r.rec)
	}

	plays := SongPlays(all)
	st := Stats{Records: len(all), Skipped: len(all) - len(plays)}
	metrics.AddRecords(metrics.KindSkippedEvent, st.Skipped)
	if len(plays) == 0 {
		return st, nil
	}

	for _, row := range TimeRows(plays) {
		if err := gw.Exec(ctx, storage.TimeInsert, row.Args()...); err != nil {
			return st, fmt.Errorf("%s: insert time: %w", path, err)
		}
		st.Times++
	}

	for _, row := range UserRows(plays) {
		if err := gw.Exec(ctx, storage.UserInsert, row.Args()...); err != nil {
			return st, fmt.Errorf("%s: insert user %s: %w", path, row.UserID, err)
		}
		st.Users++
	}

	lookup := l.Lookup
	if lookup == nil {
		lookup = GatewayLookup(gw)
	}
	playRows, err := SongPlayRows(ctx, plays, lookup)
	if err != nil {
		return st, fmt.Errorf("%s: song lookup: %w", path, err)
	}
	for _, row := range playRows {
		if err := gw.Exec(ctx, storage.SongPlayInsert, row.Args()...); err != nil {
			return st, fmt.Errorf("%s: insert songplay: %w", path, err)
		}
		st.SongPlays++
		if row.Matched() {
			st.Matched++
		}
	}

	metrics.AddRecords(metrics.KindTime, st.Times)
	metrics.AddRecords(metrics.KindUser, st.Users)
	metrics.AddRecords(metrics.KindSongPlay, st.SongPlays)
	metrics.AddRecords(metrics.KindSongPlayMatched, st.Matched)
	return st, nil
}

var _ Transformer = LogFile{}
