// Package archive packs a project directory into a deterministic,
// gzip-compressed tar file and checksums the result.
//
// Identical inputs produce byte-identical archives: entries are written in
// lexical order with normalized headers (zero mtime, root ownership, fixed
// modes) and the embedded metadata record carries no timestamps.
package archive

import (
	"archive/tar"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"runtime"
	"strings"
	"time"

	"github.com/klauspost/compress/gzip"

	"github.com/pithecene-io/hoist/apierr"
	"github.com/pithecene-io/hoist/iox"
	"github.com/pithecene-io/hoist/log"
	"github.com/pithecene-io/hoist/types"
)

// Suffix is the file suffix of every archive this package produces.
// Files with this suffix are never packed, so a previous archive left in
// the project tree cannot end up inside the next one.
const Suffix = ".hoist.tar.gz"

// MetaFileName is the name of the metadata entry written first in every archive.
const MetaFileName = ".hoist-meta.json"

// DefaultExcludes is the fixed deny-list: dependency caches, version-control
// metadata and hoist's own local state directory.
var DefaultExcludes = []string{
	"node_modules",
	".git",
	".hg",
	".svn",
	".hoist",
}

// Options configures a Builder.
type Options struct {
	// Excludes are extra glob patterns (path.Match syntax) matched against
	// each entry's base name and its slash-separated relative path. A
	// pattern equal to a directory's relative path excludes the subtree.
	Excludes []string
	// OutputDir is where the archive is written (default os.TempDir()).
	OutputDir string
	// Toolchain holds probed tool versions embedded in the metadata record.
	Toolchain map[string]string
	// Logger receives debug output. Nil means no logging.
	Logger *log.Logger
}

// Builder produces LocalArchives.
type Builder struct {
	opts     Options
	excludes []string
	logger   *log.Logger
}

// NewBuilder creates a Builder.
func NewBuilder(opts Options) *Builder {
	logger := opts.Logger
	if logger == nil {
		logger = log.Nop()
	}
	excludes := make([]string, 0, len(DefaultExcludes)+len(opts.Excludes))
	excludes = append(excludes, DefaultExcludes...)
	for _, p := range opts.Excludes {
		if p = strings.Trim(filepath.ToSlash(strings.TrimSpace(p)), "/"); p != "" {
			excludes = append(excludes, p)
		}
	}
	return &Builder{opts: opts, excludes: excludes, logger: logger}
}

// Excluded reports whether the entry at the slash-separated relative path
// rel is on the deny-list.
func (b *Builder) Excluded(rel string, isDir bool) bool {
	base := path.Base(rel)
	if rel == MetaFileName {
		return true
	}
	if !isDir && strings.HasSuffix(base, Suffix) {
		return true
	}
	for _, pattern := range b.excludes {
		if pattern == rel || pattern == base {
			return true
		}
		if ok, _ := path.Match(pattern, base); ok {
			return true
		}
		if ok, _ := path.Match(pattern, rel); ok {
			return true
		}
	}
	return false
}

// Metadata returns the record embedded in archives built by b.
func (b *Builder) Metadata() types.ArchiveMetadata {
	return types.ArchiveMetadata{
		HoistVersion: types.Version,
		OS:           runtime.GOOS,
		Arch:         runtime.GOARCH,
		Toolchain:    b.opts.Toolchain,
	}
}

// Build packs srcDir into a new archive file and returns its descriptor.
//
// A missing or unreadable source directory fails before anything is
// written. Any failure after the output file is created removes it.
func (b *Builder) Build(ctx context.Context, srcDir string) (*types.LocalArchive, error) {
	root, err := filepath.Abs(srcDir)
	if err != nil {
		return nil, apierr.Filesystem("resolve", srcDir, err)
	}
	info, err := os.Stat(root)
	if err != nil {
		return nil, apierr.Filesystem("read project directory", root, err)
	}
	if !info.IsDir() {
		return nil, apierr.Validation(fmt.Sprintf("%s is not a directory", root),
			"pass the project root with --dir")
	}

	entries, err := b.collect(ctx, root)
	if err != nil {
		return nil, err
	}

	outDir := b.opts.OutputDir
	if outDir == "" {
		outDir = os.TempDir()
	}
	if err := os.MkdirAll(outDir, 0o755); err != nil {
		return nil, apierr.Filesystem("create output directory", outDir, err)
	}
	f, err := os.CreateTemp(outDir, "hoist-*"+Suffix)
	if err != nil {
		return nil, apierr.Filesystem("create archive", outDir, err)
	}
	outPath := f.Name()

	files, writeErr := b.write(ctx, f, root, entries)
	closeErr := f.Close()
	if err := errors.Join(writeErr, closeErr); err != nil {
		_ = iox.RemoveIfExists(outPath)
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return nil, err
		}
		return nil, apierr.Filesystem("write archive", outPath, err)
	}

	sum, size, err := Checksum(outPath)
	if err != nil {
		_ = iox.RemoveIfExists(outPath)
		return nil, apierr.Filesystem("checksum archive", outPath, err)
	}

	b.logger.Debug("archive built", map[string]any{
		"path":     outPath,
		"files":    files,
		"bytes":    size,
		"checksum": sum,
	})

	return &types.LocalArchive{
		Path:      outPath,
		SizeBytes: size,
		Checksum:  sum,
		Files:     files,
	}, nil
}

// entry is one walked path, relative to the root in slash form.
type entry struct {
	rel  string
	abs  string
	info fs.FileInfo
}

// collect walks root in lexical order, pruning excluded subtrees.
func (b *Builder) collect(ctx context.Context, root string) ([]entry, error) {
	var entries []entry
	err := filepath.WalkDir(root, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return apierr.Filesystem("read", p, err)
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		if p == root {
			return nil
		}
		rel, err := filepath.Rel(root, p)
		if err != nil {
			return apierr.Filesystem("resolve", p, err)
		}
		rel = filepath.ToSlash(rel)
		if b.Excluded(rel, d.IsDir()) {
			if d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		info, err := d.Info()
		if err != nil {
			return apierr.Filesystem("stat", p, err)
		}
		mode := info.Mode()
		if !mode.IsDir() && !mode.IsRegular() && mode&fs.ModeSymlink == 0 {
			// sockets, devices and pipes have no meaning remotely
			return nil
		}
		entries = append(entries, entry{rel: rel, abs: p, info: info})
		return nil
	})
	if err != nil {
		return nil, err
	}
	return entries, nil
}

// write streams the metadata record and every entry into w.
// Returns the number of regular files written.
func (b *Builder) write(ctx context.Context, w io.Writer, root string, entries []entry) (int, error) {
	gz, err := gzip.NewWriterLevel(w, gzip.BestSpeed)
	if err != nil {
		return 0, err
	}
	tw := tar.NewWriter(gz)

	meta, err := json.MarshalIndent(b.Metadata(), "", "  ")
	if err != nil {
		return 0, fmt.Errorf("marshal metadata: %w", err)
	}
	if err := tw.WriteHeader(normalizedHeader(MetaFileName, tar.TypeReg, 0o644, int64(len(meta)), "")); err != nil {
		return 0, err
	}
	if _, err := tw.Write(meta); err != nil {
		return 0, err
	}

	files := 0
	for _, e := range entries {
		if err := ctx.Err(); err != nil {
			return files, err
		}
		if err := writeEntry(tw, root, e); err != nil {
			return files, err
		}
		if e.info.Mode().IsRegular() {
			files++
		}
	}

	if err := tw.Close(); err != nil {
		return files, err
	}
	return files, gz.Close()
}

func writeEntry(tw *tar.Writer, root string, e entry) error {
	mode := e.info.Mode()
	switch {
	case mode.IsDir():
		return tw.WriteHeader(normalizedHeader(e.rel+"/", tar.TypeDir, 0o755, 0, ""))

	case mode&fs.ModeSymlink != 0:
		target, err := os.Readlink(e.abs)
		if err != nil {
			return err
		}
		if filepath.IsAbs(target) {
			if rel, err := filepath.Rel(root, target); err == nil && !strings.HasPrefix(rel, "..") {
				target = rel
			}
		}
		return tw.WriteHeader(normalizedHeader(e.rel, tar.TypeSymlink, 0o777, 0, filepath.ToSlash(target)))

	default:
		perm := int64(0o644)
		if mode.Perm()&0o111 != 0 {
			perm = 0o755
		}
		f, err := os.Open(e.abs)
		if err != nil {
			return err
		}
		defer iox.DiscardClose(f)

		if err := tw.WriteHeader(normalizedHeader(e.rel, tar.TypeReg, perm, e.info.Size(), "")); err != nil {
			return err
		}
		n, err := io.Copy(tw, f)
		if err != nil {
			return err
		}
		if n != e.info.Size() {
			return fmt.Errorf("%s changed size while archiving", e.rel)
		}
		return nil
	}
}

// normalizedHeader builds a header that carries no host-specific data.
func normalizedHeader(name string, typ byte, mode, size int64, link string) *tar.Header {
	return &tar.Header{
		Typeflag: typ,
		Name:     name,
		Linkname: link,
		Mode:     mode,
		Size:     size,
		ModTime:  time.Unix(0, 0),
	}
}

// Checksum returns "sha256:<hex>" and the size of the file at path.
func Checksum(path string) (string, int64, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", 0, err
	}
	defer iox.DiscardClose(f)

	h := sha256.New()
	n, err := io.Copy(h, f)
	if err != nil {
		return "", 0, err
	}
	return types.ChecksumAlgorithm + ":" + hex.EncodeToString(h.Sum(nil)), n, nil
}

// Remove deletes the archive file. Failures are returned for logging only.
func Remove(a *types.LocalArchive) error {
	if a == nil {
		return nil
	}
	return iox.RemoveIfExists(a.Path)
}
