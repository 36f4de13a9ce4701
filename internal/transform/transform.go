// Package transform turns one input file into rows and submits them through a
// storage.Gateway.
//
// Both variants share one shape: decode every line into a typed record,
// derive per-table row sequences, then execute the named statements in order.
// Nothing is committed here; the batch driver owns transaction boundaries.
package transform

import (
	"context"
	"errors"
	"fmt"

	"sparkify/internal/records"
	"sparkify/internal/storage"
)

// Transformer is a line-oriented file transformer.
type Transformer interface {
	// Name identifies the pass ("song", "log") in logs and metric labels.
	Name() string

	// Transform loads the file at path through gw. On error the gateway's
	// open transaction holds a partial file and must be rolled back.
	Transform(ctx context.Context, gw storage.Gateway, path string) (Stats, error)
}

// Stats counts what one or more files produced.
type Stats struct {
	Records   int // decoded lines
	Songs     int
	Artists   int
	Times     int
	Users     int
	SongPlays int
	Matched   int // song plays that resolved a song_id/artist_id
	Skipped   int // events discarded because page != NextSong
}

// Add accumulates o into s.
func (s *Stats) Add(o Stats) {
	s.Records += o.Records
	s.Songs += o.Songs
	s.Artists += o.Artists
	s.Times += o.Times
	s.Users += o.Users
	s.SongPlays += o.SongPlays
	s.Matched += o.Matched
	s.Skipped += o.Skipped
}

// LineError reports a line of an input file that could not be decoded or is
// missing a required field.
type LineError struct {
	Path string
	Line int // 1-based
	Err  error
}

func (e *LineError) Error() string {
	return fmt.Sprintf("%s:%d: %v", e.Path, e.Line, e.Err)
}

func (e *LineError) Unwrap() error { return e.Err }

// numbered is a decoded record together with its source line.
type numbered[T any] struct {
	line int
	rec  T
}

// readRecords decodes every line of path, converting decode failures into a
// *LineError that names the file.
func readRecords[T any](ctx context.Context, path string) ([]numbered[T], error) {
	var out []numbered[T]
	err := records.DecodeFile(ctx, path, func(line int, rec T) error {
		out = append(out, numbered[T]{line: line, rec: rec})
		return nil
	})
	var le *records.LineError
	if errors.As(err, &le) {
		return nil, &LineError{Path: path, Line: le.Line, Err: le.Err}
	}
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	return out, nil
}
