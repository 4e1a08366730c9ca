package archive

import (
	"archive/tar"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"io"
	"os"
	"path/filepath"
	"slices"
	"testing"
	"time"

	"github.com/klauspost/compress/gzip"

	"github.com/pithecene-io/hoist/apierr"
	"github.com/pithecene-io/hoist/types"
)

// writeTree creates files under root from a rel-path → content map.
func writeTree(t *testing.T, root string, files map[string]string) {
	t.Helper()
	for rel, content := range files {
		p := filepath.Join(root, filepath.FromSlash(rel))
		if err := os.MkdirAll(filepath.Dir(p), 0o755); err != nil {
			t.Fatal(err)
		}
		if err := os.WriteFile(p, []byte(content), 0o644); err != nil {
			t.Fatal(err)
		}
	}
}

// readEntries returns entry names and the metadata record of the archive.
func readEntries(t *testing.T, path string) ([]string, types.ArchiveMetadata) {
	t.Helper()
	f, err := os.Open(path)
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()

	gz, err := gzip.NewReader(f)
	if err != nil {
		t.Fatalf("gzip: %v", err)
	}
	tr := tar.NewReader(gz)

	var names []string
	var meta types.ArchiveMetadata
	for {
		hdr, err := tr.Next()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			t.Fatalf("tar: %v", err)
		}
		names = append(names, hdr.Name)
		if hdr.Name == MetaFileName {
			if err := json.NewDecoder(tr).Decode(&meta); err != nil {
				t.Fatalf("decode meta: %v", err)
			}
		}
	}
	return names, meta
}

func TestBuild_ExcludesDenyList(t *testing.T) {
	src := t.TempDir()
	writeTree(t, src, map[string]string{
		"package.json":               `{"name":"app"}`,
		"src/index.js":               "console.log(1)",
		"node_modules/left-pad/x.js": "module.exports = 1",
		"web/node_modules/y/y.js":    "nested cache",
		".git/HEAD":                  "ref: refs/heads/main",
		".hoist/journal":             "state",
		"old-deploy" + Suffix:        "previous archive",
		"dist/app.log":               "excluded by config",
		"README.md":                  "# app",
	})

	b := NewBuilder(Options{OutputDir: t.TempDir(), Excludes: []string{"*.log"}})
	a, err := b.Build(t.Context(), src)
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}
	t.Cleanup(func() { _ = Remove(a) })

	names, meta := readEntries(t, a.Path)
	if names[0] != MetaFileName {
		t.Errorf("first entry = %q, want %q", names[0], MetaFileName)
	}
	if meta.HoistVersion != types.Version {
		t.Errorf("meta version = %q", meta.HoistVersion)
	}

	for _, want := range []string{"package.json", "src/", "src/index.js", "README.md", "dist/"} {
		if !slices.Contains(names, want) {
			t.Errorf("missing entry %q in %v", want, names)
		}
	}
	for _, banned := range []string{"node_modules/", "node_modules/left-pad/x.js", "web/node_modules/", ".git/HEAD", ".hoist/journal", "old-deploy" + Suffix, "dist/app.log"} {
		if slices.Contains(names, banned) {
			t.Errorf("excluded entry %q was packed", banned)
		}
	}
	if a.Files != 3 {
		t.Errorf("Files = %d, want 3", a.Files)
	}
	if !slices.IsSorted(names[1:]) {
		t.Errorf("entries not in lexical order: %v", names)
	}
}

func TestBuild_Deterministic(t *testing.T) {
	src := t.TempDir()
	writeTree(t, src, map[string]string{
		"a.txt":     "alpha",
		"b/c.txt":   "charlie",
		"b/d/e.txt": "echo",
	})

	b := NewBuilder(Options{OutputDir: t.TempDir(), Toolchain: map[string]string{"node": "v22.1.0"}})
	first, err := b.Build(t.Context(), src)
	if err != nil {
		t.Fatal(err)
	}
	// Touch mtimes between builds; output must not change.
	touched := time.Now().Add(-time.Hour)
	if err := os.Chtimes(filepath.Join(src, "a.txt"), touched, touched); err != nil {
		t.Fatal(err)
	}
	second, err := b.Build(t.Context(), src)
	if err != nil {
		t.Fatal(err)
	}

	if first.Path == second.Path {
		t.Fatal("each build should write a new file")
	}
	if first.Checksum != second.Checksum {
		t.Errorf("checksums differ: %s vs %s", first.Checksum, second.Checksum)
	}
	if first.SizeBytes != second.SizeBytes {
		t.Errorf("sizes differ: %d vs %d", first.SizeBytes, second.SizeBytes)
	}
}

func TestBuild_ChecksumCoversCompressedBytes(t *testing.T) {
	src := t.TempDir()
	writeTree(t, src, map[string]string{"index.html": "<h1>hi</h1>"})

	a, err := NewBuilder(Options{OutputDir: t.TempDir()}).Build(t.Context(), src)
	if err != nil {
		t.Fatal(err)
	}

	raw, err := os.ReadFile(a.Path)
	if err != nil {
		t.Fatal(err)
	}
	sum := sha256.Sum256(raw)
	if want := "sha256:" + hex.EncodeToString(sum[:]); a.Checksum != want {
		t.Errorf("Checksum = %s, want %s", a.Checksum, want)
	}
	if a.SizeBytes != int64(len(raw)) {
		t.Errorf("SizeBytes = %d, want %d", a.SizeBytes, len(raw))
	}
	if !filepath.IsAbs(a.Path) {
		t.Errorf("Path %q is not absolute", a.Path)
	}
}

func TestBuild_MissingSource(t *testing.T) {
	out := t.TempDir()
	_, err := NewBuilder(Options{OutputDir: out}).Build(t.Context(), filepath.Join(t.TempDir(), "nope"))
	if err == nil {
		t.Fatal("expected error")
	}
	var e *apierr.Error
	if !errors.As(err, &e) || e.Context != apierr.ContextFilesystem {
		t.Errorf("expected filesystem error, got %v", err)
	}

	left, _ := os.ReadDir(out)
	if len(left) != 0 {
		t.Errorf("output dir should be empty, has %d entries", len(left))
	}
}

func TestBuild_SourceIsFile(t *testing.T) {
	file := filepath.Join(t.TempDir(), "file.txt")
	writeTree(t, filepath.Dir(file), map[string]string{"file.txt": "x"})

	_, err := NewBuilder(Options{OutputDir: t.TempDir()}).Build(t.Context(), file)
	var e *apierr.Error
	if !errors.As(err, &e) || e.Context != apierr.ContextValidation {
		t.Errorf("expected validation error, got %v", err)
	}
}

func TestBuild_CanceledContextRemovesOutput(t *testing.T) {
	src := t.TempDir()
	writeTree(t, src, map[string]string{"a.txt": "a"})
	out := t.TempDir()

	ctx, cancel := context.WithCancel(t.Context())
	cancel()

	if _, err := NewBuilder(Options{OutputDir: out}).Build(ctx, src); !errors.Is(err, context.Canceled) {
		t.Errorf("expected context.Canceled, got %v", err)
	}
	left, _ := os.ReadDir(out)
	if len(left) != 0 {
		t.Errorf("partial output left behind: %d entries", len(left))
	}
}

func TestExcluded(t *testing.T) {
	b := NewBuilder(Options{Excludes: []string{"build/cache", "*.tmp", " /coverage/ "}})

	tests := []struct {
		rel   string
		isDir bool
		want  bool
	}{
		{"node_modules", true, true},
		{"packages/a/node_modules", true, true},
		{".git", true, true},
		{".svn", true, true},
		{".hg", true, true},
		{".hoist", true, true},
		{"x" + Suffix, false, true},
		{"build/cache", true, true},
		{"build/out", true, false},
		{"notes.tmp", false, true},
		{"coverage", true, true},
		{"src/main.go", false, false},
		{".github", true, false},
		{MetaFileName, false, true},
	}
	for _, tt := range tests {
		if got := b.Excluded(tt.rel, tt.isDir); got != tt.want {
			t.Errorf("Excluded(%q) = %v, want %v", tt.rel, got, tt.want)
		}
	}
}
