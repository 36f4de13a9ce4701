// Package batch runs one transformer over every input file under a root,
// committing after each file.
package batch

import (
	"context"
	"fmt"
	"io"
	"time"

	"go.uber.org/zap"

	"sparkify/internal/discover"
	"sparkify/internal/metrics"
	"sparkify/internal/storage"
	"sparkify/internal/transform"
)

// Driver applies a transformer to files in discovery order.
//
// Atomicity is per file: each file's statements commit together, and a
// failure leaves every earlier file committed.
type Driver struct {
	gw      storage.Gateway
	out     io.Writer
	log     *zap.Logger
	pattern string
	now     func() time.Time
}

// Option configures a Driver.
type Option func(*Driver)

// WithLogger sets the structured logger. Default: zap.NewNop().
func WithLogger(l *zap.Logger) Option {
	return func(d *Driver) {
		if l != nil {
			d.log = l
		}
	}
}

// WithPattern sets the file-name glob. Default: discover.DefaultPattern.
func WithPattern(p string) Option {
	return func(d *Driver) {
		if p != "" {
			d.pattern = p
		}
	}
}

// New returns a Driver that executes through gw and writes progress lines to
// out.
func New(gw storage.Gateway, out io.Writer, opts ...Option) *Driver {
	d := &Driver{
		gw:      gw,
		out:     out,
		log:     zap.NewNop(),
		pattern: discover.DefaultPattern,
		now:     time.Now,
	}
	for _, o := range opts {
		o(d)
	}
	return d
}

// Summary describes one pass.
type Summary struct {
	Pass      string
	Root      string
	Files     int // discovered
	Processed int // committed
	Stats     transform.Stats
	Elapsed   time.Duration
}

// Run discovers files under root and loads each with t.
//
// Output (stdout contract):
//
//	N files found in ROOT
//	1/N files processed.
//	...
//
// Errors:
//   - discovery errors (missing root) before anything is printed.
//   - the first transform or commit error. The failing file's open
//     transaction is rolled back before returning; no later file is touched.
//   - ctx cancellation between files.
func (d *Driver) Run(ctx context.Context, root string, t transform.Transformer) (Summary, error) {
	start := d.now()
	sum := Summary{Pass: t.Name(), Root: root}
	log := d.log.With(zap.String("pass", sum.Pass), zap.String("root", root))

	files, err := discover.Files(root, d.pattern)
	if err != nil {
		return sum, fmt.Errorf("batch: %s pass: %w", sum.Pass, err)
	}
	sum.Files = len(files)
	fmt.Fprintf(d.out, "%d files found in %s\n", len(files), root)
	log.Debug("files discovered", zap.Int("files", len(files)))

	for i, path := range files {
		if err := ctx.Err(); err != nil {
			return d.finish(log, sum, start, err)
		}

		fileStart := d.now()
		st, err := t.Transform(ctx, d.gw, path)
		if err == nil {
			if cerr := d.gw.Commit(ctx); cerr != nil {
				err = fmt.Errorf("commit %s: %w", path, cerr)
			}
		}
		d.recordFile(sum.Pass, fileStart, err)
		if err != nil {
			if rerr := d.gw.Rollback(ctx); rerr != nil {
				log.Warn("rollback failed", zap.String("file", path), zap.Error(rerr))
			}
			log.Error("file failed", zap.String("file", path), zap.Int("index", i+1), zap.Error(err))
			return d.finish(log, sum, start, err)
		}

		sum.Processed++
		sum.Stats.Add(st)
		fmt.Fprintf(d.out, "%d/%d files processed.\n", i+1, len(files))
		log.Debug("file committed",
			zap.String("file", path),
			zap.Int("records", st.Records),
			zap.Duration("elapsed", d.now().Sub(fileStart)),
		)
	}

	return d.finish(log, sum, start, nil)
}

func (d *Driver) recordFile(pass string, start time.Time, err error) {
	metrics.IncCounter(metrics.FilesTotal, 1, metrics.Labels{"pass": pass, "status": metrics.Status(err)})
	metrics.RecordStep(pass+"_file", d.now().Sub(start), err)
}

func (d *Driver) finish(log *zap.Logger, sum Summary, start time.Time, err error) (Summary, error) {
	sum.Elapsed = d.now().Sub(start)
	metrics.RecordStep(sum.Pass+"_pass", sum.Elapsed, err)

	fields := []zap.Field{
		zap.Int("files", sum.Files),
		zap.Int("processed", sum.Processed),
		zap.Int("records", sum.Stats.Records),
		zap.Int("songs", sum.Stats.Songs),
		zap.Int("artists", sum.Stats.Artists),
		zap.Int("times", sum.Stats.Times),
		zap.Int("users", sum.Stats.Users),
		zap.Int("songplays", sum.Stats.SongPlays),
		zap.Int("songplays_matched", sum.Stats.Matched),
		zap.Int("events_skipped", sum.Stats.Skipped),
		zap.Duration("elapsed", sum.Elapsed),
	}
	if err != nil {
		log.Error("pass aborted", append(fields, zap.Error(err))...)
		return sum, fmt.Errorf("batch: %s pass: %w", sum.Pass, err)
	}
	log.Info("pass complete", fields...)
	return sum, nil
}
