package transform

import (
	"context"
	"fmt"

	"sparkify/internal/metrics"
	"sparkify/internal/records"
	"sparkify/internal/storage"
)

// SongFile loads song-metadata files: one song row and one artist row per
// record.
type SongFile struct{}

// Name implements Transformer.
func (SongFile) Name() string { return "song" }

// Transform implements Transformer.
//
// Errors:
//   - *LineError for an undecodable line or a record without song_id or
//     artist_id. Nothing is executed for that file.
//   - statement errors, wrapped with the table they targeted.
func (SongFile) Transform(ctx context.Context, gw storage.Gateway, path string) (Stats, error) {
	recs, err := readRecords[records.Song](ctx, path)
	if err != nil {
		return Stats{}, err
	}

	songs := make([]records.Song, 0, len(recs))
	for _, r := range recs {
		if err := r.rec.Validate(); err != nil {
			return Stats{}, &LineError{Path: path, Line: r.line, Err: err}
		}
		songs = append(songs, r.rec)
	}

	st := Stats{Records: len(songs)}
	songRows, artistRows := SongRows(songs), ArtistRows(songs)
	for i := range songRows {
		if err := gw.Exec(ctx, storage.SongInsert, songRows[i].Args()...); err != nil {
			return st, fmt.Errorf("%s: insert song %s: %w", path, songRows[i].SongID, err)
		}
		st.Songs++
		if err := gw.Exec(ctx, storage.ArtistInsert, artistRows[i].Args()...); err != nil {
			return st, fmt.Errorf("%s: insert artist %s: %w", path, artistRows[i].ArtistID, err)
		}
		st.Artists++
	}

	metrics.AddRecords(metrics.KindSong, st.Songs)
	metrics.AddRecords(metrics.KindArtist, st.Artists)
	return st, nil
}

var _ Transformer = SongFile{}
