package discover

import (
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"reflect"
	"testing"
)

func writeFile(t *testing.T, path string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, []byte("{}\n"), 0o644); err != nil {
		t.Fatal(err)
	}
}

func TestFiles_RecursiveAbsoluteWalkOrder(t *testing.T) {
	t.Parallel()

	root := t.TempDir()
	for _, rel := range []string{
		"A/B/C/TRABCEI128F424C983.json",
		"A/A/A/TRAAAAW128F429D538.json",
		"A/A/B/TRAABCL128F4286650.json",
		"A/A/A/notes.txt",
		"top.json",
		"A/A/A/TRAAAAW128F429D538.json.bak",
	} {
		writeFile(t, filepath.Join(root, rel))
	}
	if err := os.MkdirAll(filepath.Join(root, "dir.json"), 0o755); err != nil {
		t.Fatal(err)
	}

	got, err := Files(root, "*.json")
	if err != nil {
		t.Fatalf("Files: %v", err)
	}
	want := []string{
		filepath.Join(root, "A/A/A/TRAAAAW128F429D538.json"),
		filepath.Join(root, "A/A/B/TRAABCL128F4286650.json"),
		filepath.Join(root, "A/B/C/TRABCEI128F424C983.json"),
		filepath.Join(root, "top.json"),
	}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("Files()=%v\nwant %v", got, want)
	}
	for _, p := range got {
		if !filepath.IsAbs(p) {
			t.Fatalf("path %q is not absolute", p)
		}
	}
}

func TestFiles_RelativeRootBecomesAbsolute(t *testing.T) {
	root := t.TempDir()
	writeFile(t, filepath.Join(root, "log_data", "2018-11-01-events.json"))

	wd, err := os.Getwd()
	if err != nil {
		t.Fatal(err)
	}
	if err := os.Chdir(root); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = os.Chdir(wd) })

	got, err := Files("log_data", "")
	if err != nil {
		t.Fatalf("Files: %v", err)
	}
	if len(got) != 1 || !filepath.IsAbs(got[0]) || filepath.Base(got[0]) != "2018-11-01-events.json" {
		t.Fatalf("Files()=%v", got)
	}
}

func TestFiles_SymlinkedRoot(t *testing.T) {
	t.Parallel()

	base := t.TempDir()
	writeFile(t, filepath.Join(base, "real", "A", "x.json"))
	writeFile(t, filepath.Join(base, "real", "B", "y.json"))
	link := filepath.Join(base, "song_data")
	if err := os.Symlink(filepath.Join(base, "real"), link); err != nil {
		t.Skipf("symlinks unavailable: %v", err)
	}

	got, err := Files(link, "*.json")
	if err != nil {
		t.Fatalf("Files: %v", err)
	}
	want := []string{
		filepath.Join(link, "A", "x.json"),
		filepath.Join(link, "B", "y.json"),
	}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("Files()=%v\nwant %v", got, want)
	}

	// A link to a file is still not a valid root.
	fileLink := filepath.Join(base, "one.json")
	if err := os.Symlink(filepath.Join(base, "real", "A", "x.json"), fileLink); err != nil {
		t.Fatal(err)
	}
	if _, err := Files(fileLink, "*.json"); err == nil {
		t.Fatalf("file symlink root: want error")
	}
}

func TestFiles_Errors(t *testing.T) {
	t.Parallel()

	root := t.TempDir()

	_, err := Files(filepath.Join(root, "missing"), "*.json")
	if !errors.Is(err, fs.ErrNotExist) {
		t.Fatalf("missing root: err=%v, want fs.ErrNotExist", err)
	}

	file := filepath.Join(root, "song.json")
	writeFile(t, file)
	if _, err := Files(file, "*.json"); err == nil {
		t.Fatalf("file root: want error")
	}

	if _, err := Files(root, "["); !errors.Is(err, filepath.ErrBadPattern) {
		t.Fatalf("bad pattern: err=%v", err)
	}
}

func TestFiles_EmptyTree(t *testing.T) {
	t.Parallel()

	got, err := Files(t.TempDir(), "*.json")
	if err != nil {
		t.Fatalf("Files: %v", err)
	}
	if len(got) != 0 {
		t.Fatalf("Files()=%v, want empty", got)
	}
}
