// Package probe samples the song and log trees and reports what a load would
// do, without opening a database.
//
// The probe package is responsible for:
//   - Discovering input files the same way the loader does
//   - Decoding and validating a bounded number of files per tree
//   - Resolving song plays against an in-memory catalog of the sampled songs
//
// Design constraints:
//   - Per-file failures are collected as issues and never stop the probe.
//     Only an unreadable root is an error.
//   - The catalog is built from sampled song files only, so match counts are a
//     lower bound when -max-files limits the song tree.
package probe

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"time"

	"sparkify/internal/discover"
	"sparkify/internal/records"
	"sparkify/internal/storage"
	"sparkify/internal/transform"
)

// DefaultMaxIssues bounds Report.Issues when Options.MaxIssues is zero.
const DefaultMaxIssues = 20

// Options control which trees are sampled and how much.
type Options struct {
	// SongRoot and LogRoot are the input trees. An empty root is skipped.
	SongRoot string
	LogRoot  string

	// Pattern filters file base names. Empty means discover.DefaultPattern.
	Pattern string

	// MaxFiles caps the files read per tree, in discovery order. 0 = all.
	MaxFiles int

	// MaxIssues caps Report.Issues. 0 = DefaultMaxIssues; negative = unlimited.
	MaxIssues int
}

// Issue is one problem found in an input file.
type Issue struct {
	Path    string `json:"path"`
	Line    int    `json:"line,omitempty"`
	Message string `json:"message"`
}

// SongReport summarizes the song tree.
type SongReport struct {
	Root         string `json:"root"`
	Files        int    `json:"files"`
	Sampled      int    `json:"sampled"`
	FailedFiles  int    `json:"failed_files"`
	Records      int    `json:"records"`
	Songs        int    `json:"distinct_songs"`
	Artists      int    `json:"distinct_artists"`
	DuplicateIDs int    `json:"duplicate_song_ids"`
}

// LogReport summarizes the log tree.
type LogReport struct {
	Root        string         `json:"root"`
	Files       int            `json:"files"`
	Sampled     int            `json:"sampled"`
	FailedFiles int            `json:"failed_files"`
	Events      int            `json:"events"`
	SongPlays   int            `json:"songplays"`
	Matched     int            `json:"songplays_matched"`
	Users       int            `json:"distinct_users"`
	Pages       map[string]int `json:"pages"`
	Levels      map[string]int `json:"levels"`
	First       *time.Time     `json:"first_play,omitempty"`
	Last        *time.Time     `json:"last_play,omitempty"`
}

// Report is the result of a probe run.
type Report struct {
	Songs         SongReport `json:"songs"`
	Logs          LogReport  `json:"logs"`
	Issues        []Issue    `json:"issues"`
	DroppedIssues int        `json:"dropped_issues,omitempty"`
}

// Run samples both trees. Songs are read first so the log pass can resolve
// plays against them.
//
// Errors:
//   - discovery failures (missing root, bad pattern).
//   - ctx cancellation.
func Run(ctx context.Context, opts Options) (Report, error) {
	p := &prober{opts: opts, catalog: make(map[catalogKey]songRef)}
	if p.opts.Pattern == "" {
		p.opts.Pattern = discover.DefaultPattern
	}
	if p.opts.MaxIssues == 0 {
		p.opts.MaxIssues = DefaultMaxIssues
	}

	rep := Report{
		Songs: SongReport{Root: opts.SongRoot},
		Logs:  LogReport{Root: opts.LogRoot, Pages: map[string]int{}, Levels: map[string]int{}},
	}

	if opts.SongRoot != "" {
		if err := p.songs(ctx, &rep); err != nil {
			return rep, err
		}
	}
	if opts.LogRoot != "" {
		if err := p.logs(ctx, &rep); err != nil {
			return rep, err
		}
	}
	if rep.Issues == nil {
		rep.Issues = []Issue{}
	}
	return rep, nil
}

type catalogKey struct {
	title, artist string
	duration      float64
}

type songRef struct {
	songID, artistID string
}

type prober struct {
	opts    Options
	catalog map[catalogKey]songRef
}

// Lookup resolves plays against the sampled songs the way song_select does:
// exact title, artist name and duration.
func (p *prober) Lookup(_ context.Context, title, artist string, duration float64) (string, string, bool, error) {
	ref, ok := p.catalog[catalogKey{title: title, artist: artist, duration: duration}]
	return ref.songID, ref.artistID, ok, nil
}

func (p *prober) files(root string) (all int, sample []string, err error) {
	files, err := discover.Files(root, p.opts.Pattern)
	if err != nil {
		return 0, nil, fmt.Errorf("probe: %w", err)
	}
	sample = files
	if p.opts.MaxFiles > 0 && len(sample) > p.opts.MaxFiles {
		sample = sample[:p.opts.MaxFiles]
	}
	return len(files), sample, nil
}

func (p *prober) songs(ctx context.Context, rep *Report) error {
	total, files, err := p.files(p.opts.SongRoot)
	if err != nil {
		return err
	}
	sr := &rep.Songs
	sr.Files = total

	songIDs := map[string]struct{}{}
	artistIDs := map[string]struct{}{}

	for _, path := range files {
		if err := ctx.Err(); err != nil {
			return err
		}
		sr.Sampled++

		var recs []records.Song
		err := records.DecodeFile(ctx, path, func(line int, s records.Song) error {
			if err := s.Validate(); err != nil {
				return &records.LineError{Line: line, Err: err}
			}
			recs = append(recs, s)
			return nil
		})
		if err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				return err
			}
			sr.FailedFiles++
			p.issue(rep, path, err)
			continue
		}

		for _, s := range recs {
			sr.Records++
			if _, seen := songIDs[s.SongID]; seen {
				sr.DuplicateIDs++
			}
			songIDs[s.SongID] = struct{}{}
			artistIDs[s.ArtistID] = struct{}{}

			key := catalogKey{
				title:    storage.NormalizeText(s.Title),
				artist:   storage.NormalizeText(s.ArtistName),
				duration: float64(s.Duration),
			}
			if _, ok := p.catalog[key]; !ok {
				p.catalog[key] = songRef{songID: s.SongID, artistID: s.ArtistID}
			}
		}
	}

	sr.Songs = len(songIDs)
	sr.Artists = len(artistIDs)
	return nil
}

func (p *prober) logs(ctx context.Context, rep *Report) error {
	total, files, err := p.files(p.opts.LogRoot)
	if err != nil {
		return err
	}
	lr := &rep.Logs
	lr.Files = total

	users := map[string]struct{}{}

	for _, path := range files {
		if err := ctx.Err(); err != nil {
			return err
		}
		lr.Sampled++

		var events []records.Event
		err := records.DecodeFile(ctx, path, func(line int, e records.Event) error {
			if e.IsNextSong() {
				if err := e.Validate(); err != nil {
					return &records.LineError{Line: line, Err: err}
				}
			}
			events = append(events, e)
			return nil
		})
		if err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				return err
			}
			lr.FailedFiles++
			p.issue(rep, path, err)
			continue
		}

		lr.Events += len(events)
		for _, e := range events {
			lr.Pages[pageName(e.Page)]++
		}

		plays := transform.SongPlays(events)
		rows, err := transform.SongPlayRows(ctx, plays, p.Lookup)
		if err != nil {
			return err
		}
		lr.SongPlays += len(rows)
		for i, row := range rows {
			if row.Matched() {
				lr.Matched++
			}
			lr.Levels[plays[i].Level]++
			users[row.UserID] = struct{}{}

			ts := row.StartTime
			if lr.First == nil || ts.Before(*lr.First) {
				lr.First = &ts
			}
			if lr.Last == nil || ts.After(*lr.Last) {
				lr.Last = &ts
			}
		}
	}

	lr.Users = len(users)
	return nil
}

func (p *prober) issue(rep *Report, path string, err error) {
	if p.opts.MaxIssues > 0 && len(rep.Issues) >= p.opts.MaxIssues {
		rep.DroppedIssues++
		return
	}
	iss := Issue{Path: path, Message: err.Error()}
	var le *records.LineError
	if errors.As(err, &le) {
		iss.Line = le.Line
		iss.Message = le.Err.Error()
	}
	rep.Issues = append(rep.Issues, iss)
}

func pageName(p string) string {
	if p == "" {
		return "(none)"
	}
	return p
}

// SortedCounts returns the keys of m ordered by descending count, then name.
func SortedCounts(m map[string]int) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		if m[keys[i]] != m[keys[j]] {
			return m[keys[i]] > m[keys[j]]
		}
		return keys[i] < keys[j]
	})
	return keys
}

// MatchRate is Matched/SongPlays as a percentage string, "n/a" with no plays.
func (l LogReport) MatchRate() string {
	if l.SongPlays == 0 {
		return "n/a"
	}
	return strconv.FormatFloat(100*float64(l.Matched)/float64(l.SongPlays), 'f', 1, 64) + "%"
}
