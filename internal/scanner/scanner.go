package scanner

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"golang.org/x/sync/errgroup"

	rverrors "github.com/Aman-CERP/refvec/internal/errors"
)

// Scanner lists eligible documents in a single directory. Subdirectories
// are never descended into: documents must sit directly in the root.
type Scanner struct {
	extensions  map[string]bool
	mode        FingerprintMode
	concurrency int
}

// Option configures a Scanner.
type Option func(*Scanner)

// WithExtensions sets the accepted extensions (case-insensitive, with or
// without the leading dot).
func WithExtensions(exts ...string) Option {
	return func(s *Scanner) {
		s.extensions = make(map[string]bool, len(exts))
		for _, ext := range exts {
			ext = strings.ToLower(strings.TrimSpace(ext))
			if ext == "" {
				continue
			}
			if !strings.HasPrefix(ext, ".") {
				ext = "." + ext
			}
			s.extensions[ext] = true
		}
	}
}

// WithFingerprintMode selects content hashing or size+mtime.
func WithFingerprintMode(mode FingerprintMode) Option {
	return func(s *Scanner) {
		s.mode = mode
	}
}

// WithConcurrency bounds how many files are fingerprinted at once.
func WithConcurrency(n int) Option {
	return func(s *Scanner) {
		if n > 0 {
			s.concurrency = n
		}
	}
}

// New creates a Scanner. Defaults: DefaultExtensions, content
// fingerprints, 4 concurrent hashers.
func New(opts ...Option) *Scanner {
	s := &Scanner{
		mode:        FingerprintContent,
		concurrency: 4,
	}
	WithExtensions(DefaultExtensions...)(s)
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Accepts reports whether name has an accepted extension and is not hidden.
func (s *Scanner) Accepts(name string) bool {
	if strings.HasPrefix(name, ".") {
		return false
	}
	return s.extensions[strings.ToLower(filepath.Ext(name))]
}

// Scan returns the eligible files directly inside root, sorted by path.
// A missing or non-directory root is a configuration error, never an
// empty result. Scan has no side effects.
func (s *Scanner) Scan(ctx context.Context, root string) ([]SourceFile, error) {
	absRoot, err := CheckRoot(root)
	if err != nil {
		return nil, err
	}

	entries, err := os.ReadDir(absRoot)
	if err != nil {
		return nil, rverrors.New(rverrors.ErrCodeFilePermission,
			fmt.Sprintf("failed to read reference directory %s", absRoot), err)
	}

	var candidates []string
	for _, entry := range entries {
		if entry.IsDir() || !s.Accepts(entry.Name()) {
			continue
		}
		candidates = append(candidates, filepath.Join(absRoot, entry.Name()))
	}

	files := make([]SourceFile, len(candidates))
	keep := make([]bool, len(candidates))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.concurrency)
	for i, path := range candidates {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			f, ok, err := s.inspect(path)
			if err != nil {
				// A file vanishing mid-scan is simply not part of this
				// snapshot.
				slog.Debug("scan_file_vanished", slog.String("path", path), slog.String("error", err.Error()))
				return nil
			}
			if f.Err != nil {
				slog.Warn("scan_file_unreadable", slog.String("path", path), slog.String("error", f.Err.Error()))
			}
			files[i], keep[i] = f, ok
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	out := files[:0]
	for i := range files {
		if keep[i] {
			out = append(out, files[i])
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Path < out[j].Path })

	slog.Debug("scan_complete", slog.String("root", absRoot), slog.Int("files", len(out)))
	return out, nil
}

// CheckRoot returns the absolute form of root, or a configuration error
// when it is missing or not a directory.
func CheckRoot(root string) (string, error) {
	absRoot, err := filepath.Abs(root)
	if err != nil {
		return "", rverrors.ConfigurationError(fmt.Sprintf("invalid reference path %q", root), err)
	}

	info, err := os.Stat(absRoot)
	if err != nil {
		return "", rverrors.New(rverrors.ErrCodeDirectoryMissing,
			fmt.Sprintf("reference directory not found: %s", absRoot), err).
			WithSuggestion("create the directory or point --path at an existing one")
	}
	if !info.IsDir() {
		return "", rverrors.New(rverrors.ErrCodeDirectoryMissing,
			fmt.Sprintf("reference path is not a directory: %s", absRoot), nil)
	}
	return absRoot, nil
}

// inspect stats path (following symlinks) and fingerprints it. ok is
// false for anything that is not a regular file. Only a file that no
// longer exists is an error; any other failure is kept in SourceFile.Err.
func (s *Scanner) inspect(path string) (SourceFile, bool, error) {
	info, err := os.Stat(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return SourceFile{}, false, err
		}
		return SourceFile{Path: path, Name: filepath.Base(path), Err: err}, true, nil
	}
	if !info.Mode().IsRegular() {
		return SourceFile{}, false, nil
	}

	f := SourceFile{
		Path:    path,
		Name:    filepath.Base(path),
		Size:    info.Size(),
		ModTime: info.ModTime(),
	}

	switch s.mode {
	case FingerprintStat:
		f.Fingerprint = statFingerprint(info.Size(), info.ModTime().UnixNano())
	default:
		fp, err := ContentFingerprint(path)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return SourceFile{}, false, err
			}
			f.Err = err
			return f, true, nil
		}
		f.Fingerprint = fp
	}
	return f, true, nil
}

// ContentFingerprint returns "sha256:<hex>" of the file's bytes.
func ContentFingerprint(path string) (string, error) {
	file, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer file.Close()

	h := sha256.New()
	if _, err := io.Copy(h, file); err != nil {
		return "", fmt.Errorf("failed to hash %s: %w", path, err)
	}
	return "sha256:" + hex.EncodeToString(h.Sum(nil)), nil
}

func statFingerprint(size, mtimeNano int64) string {
	return fmt.Sprintf("stat:%d-%d", size, mtimeNano)
}
