// Package records defines the typed shapes of the two input files and decodes
// them line by line.
package records

import (
	"errors"
	"fmt"
	"strings"
)

// ErrMissingField marks a record that lacks a value the loader cannot do without.
var ErrMissingField = errors.New("missing required field")

// NextSongPage is the page value of a song-play event. Every other page
// (Home, Login, Logout, Settings, ...) is navigation and is discarded.
const NextSongPage = "NextSong"

// Song is one line of a song-metadata file.
type Song struct {
	NumSongs        Int       `json:"num_songs"`
	ArtistID        string    `json:"artist_id"`
	ArtistLatitude  NullFloat `json:"artist_latitude"`
	ArtistLongitude NullFloat `json:"artist_longitude"`
	ArtistLocation  string    `json:"artist_location"`
	ArtistName      string    `json:"artist_name"`
	SongID          string    `json:"song_id"`
	Title           string    `json:"title"`
	Duration        Float     `json:"duration"`
	Year            Int       `json:"year"`
}

// Validate checks that both natural keys are present.
func (s Song) Validate() error {
	if strings.TrimSpace(s.SongID) == "" {
		return fmt.Errorf("%w: song_id", ErrMissingField)
	}
	if strings.TrimSpace(s.ArtistID) == "" {
		return fmt.Errorf("%w: artist_id", ErrMissingField)
	}
	return nil
}

// Event is one line of an application event log.
type Event struct {
	Artist        *string   `json:"artist"`
	Auth          string    `json:"auth"`
	FirstName     string    `json:"firstName"`
	Gender        string    `json:"gender"`
	ItemInSession Int       `json:"itemInSession"`
	LastName      string    `json:"lastName"`
	Length        NullFloat `json:"length"`
	Level         string    `json:"level"`
	Location      string    `json:"location"`
	Method        string    `json:"method"`
	Page          string    `json:"page"`
	Registration  NullFloat `json:"registration"`
	SessionID     Int       `json:"sessionId"`
	Song          *string   `json:"song"`
	Status        Int       `json:"status"`
	TS            Int       `json:"ts"`
	UserAgent     string    `json:"userAgent"`
	UserID        Text      `json:"userId"`
}

// IsNextSong reports whether the event is a song play.
func (e Event) IsNextSong() bool {
	return e.Page == NextSongPage
}

// Validate checks the fields every song-play row is keyed on.
func (e Event) Validate() error {
	if e.TS <= 0 {
		return fmt.Errorf("%w: ts", ErrMissingField)
	}
	if strings.TrimSpace(string(e.UserID)) == "" {
		return fmt.Errorf("%w: userId", ErrMissingField)
	}
	return nil
}
