package scanning

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"sync/atomic"

	"github.com/spf13/afero"
	"golang.org/x/sync/errgroup"

	"github.com/zombor/leakscan/internal/fingerprint"
)

// ErrRootUnreadable is returned when the directory to scan is missing,
// is not a directory, or cannot be listed
var ErrRootUnreadable = errors.New("root directory is missing or unreadable")

// DefaultExtensions are the image extensions scanned when none are configured
var DefaultExtensions = []string{"png", "jpg", "jpeg", "bmp", "gif", "webp"}

// ProgressFunc is called after each candidate file has been processed.
// It may be called from several goroutines at once.
type ProgressFunc func(label string, done, total int)

// Cache memoises fingerprints of unchanged files between runs. The variant
// names the hash kind and decode options that produced a fingerprint; entries
// of one variant are never returned for another.
type Cache interface {
	// Lookup returns the cached fingerprint when size and modification time still match
	Lookup(variant, path string, info os.FileInfo) (fingerprint.Fingerprint, bool, error)
	// Store records the fingerprint computed for path
	Store(variant, path string, info os.FileInfo, fp fingerprint.Fingerprint) error
}

// Options configures a Scanner
type Options struct {
	// Extensions recognised as images, case-insensitive, with or without the dot
	Extensions []string
	// Workers bounds concurrent fingerprinting; values below 1 select runtime.NumCPU()
	Workers int
	// AutoOrient applies EXIF orientation before hashing
	AutoOrient bool
	// Cache is optional
	Cache Cache
	// Progress is optional
	Progress ProgressFunc
}

// Skipped describes a file that could not be fingerprinted
type Skipped struct {
	Path string
	Err  error
}

// Result holds the outcome of scanning one directory
type Result struct {
	Root       string
	Index      *Index
	Candidates int
	Skipped    []Skipped
	CacheHits  int
}

// Scanner walks a directory tree and fingerprints every recognised image
type Scanner struct {
	fs         afero.Fs
	hasher     fingerprint.Hasher
	extensions map[string]struct{}
	workers    int
	decode     fingerprint.DecodeOptions
	variant    string
	cache      Cache
	progress   ProgressFunc
}

// NewScanner creates a Scanner reading from fs
func NewScanner(fs afero.Fs, hasher fingerprint.Hasher, opts Options) *Scanner {
	exts := opts.Extensions
	if len(exts) == 0 {
		exts = DefaultExtensions
	}
	extensions := make(map[string]struct{}, len(exts))
	for _, ext := range exts {
		extensions[normalizeExtension(ext)] = struct{}{}
	}

	workers := opts.Workers
	if workers < 1 {
		workers = runtime.NumCPU()
	}

	decode := fingerprint.DecodeOptions{AutoOrient: opts.AutoOrient}
	return &Scanner{
		fs:         fs,
		hasher:     hasher,
		extensions: extensions,
		workers:    workers,
		decode:     decode,
		variant:    decode.Variant(hasher.Kind()),
		cache:      opts.Cache,
		progress:   opts.Progress,
	}
}

// normalizeExtension lowercases ext and strips the leading dot
func normalizeExtension(ext string) string {
	return strings.TrimPrefix(strings.ToLower(strings.TrimSpace(ext)), ".")
}

// IsImageFile checks if path has one of the recognised extensions
func (s *Scanner) IsImageFile(path string) bool {
	_, ok := s.extensions[normalizeExtension(filepath.Ext(path))]
	return ok
}

// outcome is the per-file result of fingerprinting
type outcome struct {
	fp     fingerprint.Fingerprint
	cached bool
	err    error
}

// Scan fingerprints every image below root. Only a missing or unreadable
// root is an error; files that fail to decode are logged and skipped.
// The label identifies the directory in logs and progress updates.
func (s *Scanner) Scan(ctx context.Context, label, root string) (*Result, error) {
	info, err := s.fs.Stat(root)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrRootUnreadable, root, err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("%w: %s is not a directory", ErrRootUnreadable, root)
	}

	walkRoot, err := s.resolveRoot(root)
	if err != nil {
		return nil, err
	}
	paths, err := s.collect(root, walkRoot)
	if err != nil {
		return nil, err
	}

	slog.Info("Processing images", "set", label, "dir", root, "count", len(paths))

	outcomes := make([]outcome, len(paths))
	var done atomic.Int64

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.workers)
	for i, path := range paths {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			outcomes[i] = s.fingerprintFile(path)
			n := done.Add(1)
			if s.progress != nil {
				s.progress(label, int(n), len(paths))
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("scanning %s: %w", root, err)
	}

	// Assemble in walk order so the index doesn't depend on worker scheduling
	result := &Result{
		Root:       root,
		Index:      NewIndex(s.hasher.Kind()),
		Candidates: len(paths),
	}
	for i, path := range paths {
		o := outcomes[i]
		if o.err != nil {
			slog.Warn("Skipping image", "set", label, "path", path, "error", o.err)
			result.Skipped = append(result.Skipped, Skipped{Path: path, Err: o.err})
			continue
		}
		if o.cached {
			result.CacheHits++
		}
		result.Index.Add(o.fp, path)
	}

	slog.Info("Scan complete",
		"set", label,
		"dir", root,
		"fingerprinted", result.Index.Images(),
		"distinct", result.Index.Len(),
		"skipped", len(result.Skipped),
		"cache_hits", result.CacheHits,
	)

	return result, nil
}

// maxLinkHops bounds the symlink chain followed when resolving a root
const maxLinkHops = 40

// resolveRoot follows symlinks on root itself so the walk descends into the
// directory they point at. Links below the root are not followed. Filesystems
// without symlink support return root unchanged.
func (s *Scanner) resolveRoot(root string) (string, error) {
	lstater, ok := s.fs.(afero.Lstater)
	if !ok {
		return root, nil
	}
	reader, ok := s.fs.(afero.LinkReader)
	if !ok {
		return root, nil
	}

	resolved := root
	for range maxLinkHops {
		info, lstatCalled, err := lstater.LstatIfPossible(resolved)
		if err != nil {
			return "", fmt.Errorf("%w: %s: %v", ErrRootUnreadable, root, err)
		}
		if !lstatCalled || info.Mode()&os.ModeSymlink == 0 {
			return resolved, nil
		}
		target, err := reader.ReadlinkIfPossible(resolved)
		if err != nil {
			return "", fmt.Errorf("%w: %s: %v", ErrRootUnreadable, root, err)
		}
		if !filepath.IsAbs(target) {
			target = filepath.Join(filepath.Dir(resolved), target)
		}
		resolved = target
	}
	return "", fmt.Errorf("%w: %s: too many levels of symbolic links", ErrRootUnreadable, root)
}

// collect walks walkRoot and returns the recognised image paths in lexical
// order. Paths are reported under root, which differs from walkRoot when
// root is a symlink.
func (s *Scanner) collect(root, walkRoot string) ([]string, error) {
	var paths []string
	err := afero.Walk(s.fs, walkRoot, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			if path == walkRoot {
				return fmt.Errorf("%w: %s: %v", ErrRootUnreadable, root, err)
			}
			slog.Warn("Skipping unreadable path", "path", path, "error", err)
			return nil
		}
		if info.IsDir() {
			return nil
		}
		if !s.IsImageFile(path) {
			return nil
		}
		if walkRoot != root {
			rel, err := filepath.Rel(walkRoot, path)
			if err != nil {
				return fmt.Errorf("relocating %s under %s: %w", path, root, err)
			}
			path = filepath.Join(root, rel)
		}
		paths = append(paths, path)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return paths, nil
}

// fingerprintFile computes (or loads from cache) the fingerprint of one file
func (s *Scanner) fingerprintFile(path string) outcome {
	info, err := s.fs.Stat(path)
	if err != nil {
		return outcome{err: fmt.Errorf("stat file: %w", err)}
	}

	if s.cache != nil {
		fp, ok, err := s.cache.Lookup(s.variant, path, info)
		if err != nil {
			slog.Warn("Fingerprint cache lookup failed", "path", path, "error", err)
		} else if ok {
			return outcome{fp: fp, cached: true}
		}
	}

	f, err := s.fs.Open(path)
	if err != nil {
		return outcome{err: fmt.Errorf("opening file: %w", err)}
	}
	defer f.Close()

	img, err := fingerprint.Decode(f, filepath.Ext(path), s.decode)
	if err != nil {
		return outcome{err: err}
	}

	fp, err := s.hasher.Hash(img)
	if err != nil {
		return outcome{err: fmt.Errorf("hashing image: %w", err)}
	}

	if s.cache != nil {
		if err := s.cache.Store(s.variant, path, info, fp); err != nil {
			slog.Warn("Fingerprint cache store failed", "path", path, "error", err)
		}
	}

	return outcome{fp: fp}
}
