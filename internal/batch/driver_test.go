package batch

import (
	"bytes"
	"context"
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"sparkify/internal/metrics"
	"sparkify/internal/storage"
	"sparkify/internal/testhelpers"
	"sparkify/internal/transform"
)

func writeTree(t *testing.T, files map[string]string) string {
	t.Helper()
	root := t.TempDir()
	for rel, body := range files {
		p := filepath.Join(root, rel)
		require.NoError(t, os.MkdirAll(filepath.Dir(p), 0o755))
		require.NoError(t, os.WriteFile(p, []byte(body), 0o644))
	}
	return root
}

func song(id, artist string) string {
	return `{"song_id":"` + id + `","title":"t-` + id + `","artist_id":"` + artist + `","artist_name":"n-` + artist + `","year":2000,"duration":100.5}` + "\n"
}

func TestRun_SongPassCommitsEveryFileAndPrintsProgress(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	db := testhelpers.NewSQLite(t)
	root := writeTree(t, map[string]string{
		"A/A/A/TRAAA.json": song("S1", "A1"),
		"A/A/B/TRAAB.json": song("S2", "A1") + song("S3", "A2"),
		"A/A/B/readme.md":  "not json",
	})

	var out bytes.Buffer
	sum, err := New(db.Gateway, &out).Run(ctx, root, transform.SongFile{})
	require.NoError(t, err)

	require.Equal(t, "2 files found in "+root+"\n1/2 files processed.\n2/2 files processed.\n", out.String())
	require.Equal(t, 2, sum.Files)
	require.Equal(t, 2, sum.Processed)
	require.Equal(t, 3, sum.Stats.Songs)
	require.Equal(t, "song", sum.Pass)

	require.Equal(t, 3, db.Count(t, "songs"))
	require.Equal(t, 2, db.Count(t, "artists"))
}

func TestRun_FailureKeepsEarlierCommitsAndRollsBackCurrent(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	db := testhelpers.NewSQLite(t)
	root := writeTree(t, map[string]string{
		"a.json": song("S1", "A1"),
		"b.json": song("S2", "A2") + `{"song_id": broken` + "\n",
		"c.json": song("S3", "A3"),
	})

	var out bytes.Buffer
	sum, err := New(db.Gateway, &out).Run(ctx, root, transform.SongFile{})
	require.Error(t, err)

	var le *transform.LineError
	require.True(t, errors.As(err, &le), "err=%v", err)
	require.Equal(t, filepath.Join(root, "b.json"), le.Path)
	require.Equal(t, 2, le.Line)
	require.Contains(t, err.Error(), "song pass")

	require.Equal(t, "3 files found in "+root+"\n1/3 files processed.\n", out.String())
	require.Equal(t, 1, sum.Processed)

	require.Equal(t, 1, db.Count(t, "songs"))
	var id string
	require.NoError(t, db.DB.QueryRow(`SELECT song_id FROM songs`).Scan(&id))
	require.Equal(t, "S1", id)
}

func TestRun_MissingRootFailsBeforeOutput(t *testing.T) {
	t.Parallel()

	var out bytes.Buffer
	_, err := New(&fakeGateway{}, &out).Run(context.Background(), filepath.Join(t.TempDir(), "nope"), transform.SongFile{})
	require.ErrorIs(t, err, fs.ErrNotExist)
	require.Empty(t, out.String())
}

func TestRun_EmptyTree(t *testing.T) {
	t.Parallel()

	root := t.TempDir()
	var out bytes.Buffer
	sum, err := New(&fakeGateway{}, &out).Run(context.Background(), root, transform.LogFile{})
	require.NoError(t, err)
	require.Equal(t, "0 files found in "+root+"\n", out.String())
	require.Zero(t, sum.Files)
}

// ---- fakes ----

type fakeGateway struct {
	mu        sync.Mutex
	commits   int
	rollbacks int
	commitErr error
}

func (g *fakeGateway) Exec(context.Context, storage.StatementName, ...any) error { return nil }
func (g *fakeGateway) QueryRow(context.Context, storage.StatementName, ...any) storage.Row {
	return nil
}
func (g *fakeGateway) Commit(context.Context) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.commits++
	return g.commitErr
}
func (g *fakeGateway) Rollback(context.Context) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.rollbacks++
	return nil
}
func (g *fakeGateway) Close() error { return nil }

type fakeTransformer struct {
	seen   []string
	failOn string
	err    error
}

func (f *fakeTransformer) Name() string { return "fake" }
func (f *fakeTransformer) Transform(_ context.Context, _ storage.Gateway, path string) (transform.Stats, error) {
	f.seen = append(f.seen, filepath.Base(path))
	if filepath.Base(path) == f.failOn {
		return transform.Stats{}, f.err
	}
	return transform.Stats{Records: 1}, nil
}

func TestRun_CommitErrorStopsAndRollsBack(t *testing.T) {
	t.Parallel()

	boom := errors.New("disk full")
	gw := &fakeGateway{commitErr: boom}
	root := writeTree(t, map[string]string{"a.json": "", "b.json": ""})
	ft := &fakeTransformer{}

	_, err := New(gw, &bytes.Buffer{}).Run(context.Background(), root, ft)
	require.ErrorIs(t, err, boom)
	require.Contains(t, err.Error(), "commit "+filepath.Join(root, "a.json"))
	require.Equal(t, []string{"a.json"}, ft.seen)
	require.Equal(t, 1, gw.commits)
	require.Equal(t, 1, gw.rollbacks)
}

func TestRun_TransformErrorSkipsCommit(t *testing.T) {
	t.Parallel()

	boom := errors.New("bad row")
	gw := &fakeGateway{}
	root := writeTree(t, map[string]string{"a.json": "", "b.json": "", "c.json": ""})
	ft := &fakeTransformer{failOn: "b.json", err: boom}

	core, logs := observer.New(zap.InfoLevel)
	sum, err := New(gw, &bytes.Buffer{}, WithLogger(zap.New(core))).Run(context.Background(), root, ft)
	require.ErrorIs(t, err, boom)
	require.Equal(t, []string{"a.json", "b.json"}, ft.seen)
	require.Equal(t, 1, gw.commits)
	require.Equal(t, 1, gw.rollbacks)
	require.Equal(t, 1, sum.Stats.Records)

	require.Equal(t, 1, logs.FilterMessage("file failed").Len())
	require.Equal(t, 1, logs.FilterMessage("pass aborted").Len())
}

func TestRun_CancelledContextStopsBetweenFiles(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	gw := &fakeGateway{}
	root := writeTree(t, map[string]string{"a.json": ""})
	ft := &fakeTransformer{}

	_, err := New(gw, &bytes.Buffer{}).Run(ctx, root, ft)
	require.ErrorIs(t, err, context.Canceled)
	require.Empty(t, ft.seen)
}

func TestRun_PatternOption(t *testing.T) {
	t.Parallel()

	root := writeTree(t, map[string]string{"a.json": "", "b.ndjson": ""})
	ft := &fakeTransformer{}
	_, err := New(&fakeGateway{}, &bytes.Buffer{}, WithPattern("*.ndjson")).Run(context.Background(), root, ft)
	require.NoError(t, err)
	require.Equal(t, []string{"b.ndjson"}, ft.seen)
}

// ---- metrics ----

type countingBackend struct {
	mu    sync.Mutex
	files map[string]float64
	steps map[string]int
	secs  map[string]float64
}

func (c *countingBackend) IncCounter(name string, delta float64, l metrics.Labels) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if name == metrics.FilesTotal {
		c.files[l["pass"]+"/"+l["status"]] += delta
	}
}

func (c *countingBackend) ObserveHistogram(name string, v float64, l metrics.Labels) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if name == metrics.StepDuration {
		c.steps[l["step"]+"/"+l["status"]]++
		if c.secs != nil {
			c.secs[l["step"]] += v
		}
	}
}

func (c *countingBackend) Flush() error { return nil }

// Not parallel: installs a process-wide metrics backend.
func TestRun_RecordsFileMetrics(t *testing.T) {
	cb := &countingBackend{files: map[string]float64{}, steps: map[string]int{}}
	metrics.SetBackend(cb)
	t.Cleanup(func() { metrics.SetBackend(nil) })

	root := writeTree(t, map[string]string{"a.json": "", "b.json": ""})
	ft := &fakeTransformer{failOn: "b.json", err: errors.New("x")}
	_, err := New(&fakeGateway{}, &bytes.Buffer{}).Run(context.Background(), root, ft)
	require.Error(t, err)

	require.Equal(t, 1.0, cb.files["fake/ok"])
	require.Equal(t, 1.0, cb.files["fake/error"])
	require.Equal(t, 1, cb.steps["fake_file/ok"])
	require.Equal(t, 1, cb.steps["fake_file/error"])
	require.Equal(t, 1, cb.steps["fake_pass/error"])
}

// Not parallel: installs a process-wide metrics backend.
func TestRun_StepDurationsUseDriverClock(t *testing.T) {
	cb := &countingBackend{files: map[string]float64{}, steps: map[string]int{}, secs: map[string]float64{}}
	metrics.SetBackend(cb)
	t.Cleanup(func() { metrics.SetBackend(nil) })

	// Every read of the clock advances it by one second.
	clock := time.Unix(1541106106, 0)
	d := New(&fakeGateway{}, &bytes.Buffer{})
	d.now = func() time.Time {
		clock = clock.Add(time.Second)
		return clock
	}

	root := writeTree(t, map[string]string{"a.json": ""})
	_, err := d.Run(context.Background(), root, &fakeTransformer{})
	require.NoError(t, err)

	// Reads: pass start, file start, file end, debug elapsed, pass end.
	require.Equal(t, 1.0, cb.secs["fake_file"])
	require.Equal(t, 4.0, cb.secs["fake_pass"])
}
