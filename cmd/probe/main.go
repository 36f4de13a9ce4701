// Command probe samples the song and log trees and reports what a load would
// do, without connecting to a database.
//
// It decodes and validates input files exactly as cmd/etl would, then resolves
// song plays against the sampled songs in memory. Use it to check a new data
// drop before loading it, or to estimate how many plays will match.
//
// Output modes
//
//   - Default mode: prints the report as JSON to stdout.
//   - Report mode (-report): prints a human-readable summary to stdout.
//
// Roots default to the loader configuration (-config, then environment), so
// probe and etl agree on what they read. -songs and -logs override them.
//
// Exit codes: 0 ok, 1 probe failure (or issues found with -strict),
// 2 usage or configuration error.
package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/goccy/go-json"
	"go.uber.org/zap"

	"sparkify/internal/config"
	"sparkify/internal/logging"
	"sparkify/internal/probe"
)

func main() {
	var (
		// flagConfig supplies the default roots and pattern. A missing file
		// means environment and built-in defaults.
		flagConfig = flag.String("config", "config.yaml", "optional loader config used for default roots")

		// flagSongs and flagLogs override the configured roots. Pass "-" to
		// skip a tree.
		flagSongs = flag.String("songs", "", "song tree root (default: data.song_root)")
		flagLogs  = flag.String("logs", "", "log tree root (default: data.log_root)")

		flagPattern   = flag.String("pattern", "", "file name glob (default: data.pattern)")
		flagMaxFiles  = flag.Int("max-files", 0, "files to sample per tree; 0 reads every file")
		flagMaxIssues = flag.Int("max-issues", probe.DefaultMaxIssues, "issues to keep; -1 keeps all")

		flagReport = flag.Bool("report", false, "print a text summary instead of JSON")
		flagPretty = flag.Bool("pretty", true, "pretty-print JSON output")
		flagStrict = flag.Bool("strict", false, "exit 1 when any issue is found")
	)
	flag.Parse()

	if flag.NArg() != 0 {
		fmt.Fprintf(os.Stderr, "unexpected arguments: %v\n", flag.Args())
		flag.Usage()
		os.Exit(2)
	}
	if *flagMaxFiles < 0 {
		fmt.Fprintln(os.Stderr, "-max-files must be >= 0")
		os.Exit(2)
	}

	cfg, err := config.Load(*flagConfig)
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config: %v\n", err)
		os.Exit(2)
	}

	logger, err := logging.New(cfg.Log.Level)
	if err != nil {
		fmt.Fprintf(os.Stderr, "init logger: %v\n", err)
		os.Exit(2)
	}
	defer func() { _ = logger.Sync() }()

	opts := probe.Options{
		SongRoot:  pick(*flagSongs, cfg.Data.SongRoot),
		LogRoot:   pick(*flagLogs, cfg.Data.LogRoot),
		Pattern:   pick(*flagPattern, cfg.Data.Pattern),
		MaxFiles:  *flagMaxFiles,
		MaxIssues: *flagMaxIssues,
	}

	// Sampling is local file I/O; a stuck filesystem should fail, not hang.
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Minute)
	defer cancel()

	rep, err := probe.Run(ctx, opts)
	if err != nil {
		fail(logger, "sampling failed", err)
	}

	if *flagReport {
		writeReport(os.Stdout, rep)
	} else {
		enc := json.NewEncoder(os.Stdout)
		if *flagPretty {
			enc.SetIndent("", "  ")
		}
		if err := enc.Encode(rep); err != nil {
			fail(logger, "encode report failed", err)
		}
	}

	if *flagStrict && len(rep.Issues)+rep.DroppedIssues > 0 {
		os.Exit(1)
	}
}

// fail logs err and exits 1. os.Exit skips deferred calls, so the logger is
// synced here.
func fail(logger *zap.Logger, msg string, err error) {
	logger.Error(msg, zap.Error(err))
	_ = logger.Sync()
	os.Exit(1)
}

// pick returns flagValue unless it is empty; "-" means "skip".
func pick(flagValue, configured string) string {
	switch v := strings.TrimSpace(flagValue); v {
	case "":
		return configured
	case "-":
		return ""
	default:
		return v
	}
}

func writeReport(w io.Writer, rep probe.Report) {
	s, l := rep.Songs, rep.Logs

	if s.Root != "" {
		fmt.Fprintf(w, "songs: %s\n", s.Root)
		fmt.Fprintf(w, "  files: %d (sampled %d, failed %d)\n", s.Files, s.Sampled, s.FailedFiles)
		fmt.Fprintf(w, "  records: %d, distinct songs: %d, distinct artists: %d, duplicate song ids: %d\n",
			s.Records, s.Songs, s.Artists, s.DuplicateIDs)
	}

	if l.Root != "" {
		fmt.Fprintf(w, "logs: %s\n", l.Root)
		fmt.Fprintf(w, "  files: %d (sampled %d, failed %d)\n", l.Files, l.Sampled, l.FailedFiles)
		fmt.Fprintf(w, "  events: %d, song plays: %d, matched: %d (%s), distinct users: %d\n",
			l.Events, l.SongPlays, l.Matched, l.MatchRate(), l.Users)
		if l.First != nil && l.Last != nil {
			fmt.Fprintf(w, "  plays from %s to %s\n", l.First.Format(time.RFC3339), l.Last.Format(time.RFC3339))
		}
		if len(l.Pages) > 0 {
			parts := make([]string, 0, len(l.Pages))
			for _, p := range probe.SortedCounts(l.Pages) {
				parts = append(parts, fmt.Sprintf("%s=%d", p, l.Pages[p]))
			}
			fmt.Fprintf(w, "  pages: %s\n", strings.Join(parts, " "))
		}
		if len(l.Levels) > 0 {
			parts := make([]string, 0, len(l.Levels))
			for _, lv := range probe.SortedCounts(l.Levels) {
				parts = append(parts, fmt.Sprintf("%s=%d", lv, l.Levels[lv]))
			}
			fmt.Fprintf(w, "  levels: %s\n", strings.Join(parts, " "))
		}
	}

	if len(rep.Issues) == 0 {
		fmt.Fprintln(w, "issues: none")
		return
	}
	fmt.Fprintf(w, "issues: %d\n", len(rep.Issues)+rep.DroppedIssues)
	for _, iss := range rep.Issues {
		if iss.Line > 0 {
			fmt.Fprintf(w, "  %s:%d: %s\n", iss.Path, iss.Line, iss.Message)
		} else {
			fmt.Fprintf(w, "  %s: %s\n", iss.Path, iss.Message)
		}
	}
	if rep.DroppedIssues > 0 {
		fmt.Fprintf(w, "  ... %d more\n", rep.DroppedIssues)
	}
}
