package infrastructure

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"github.com/rs/zerolog"

	"paladin/internal/domain"
)

// ErrPartialCopy marks a copy that finished but skipped some entries.
var ErrPartialCopy = errors.New("partial copy")

// Copier copies the tree under src into dst, skipping top-level entries of
// src named in exclude. A result wrapping ErrPartialCopy means the copy ran to
// the end; any other error means it did not run.
type Copier interface {
	Copy(ctx context.Context, src, dst string, exclude []string) error
}

// SnapshotStore keeps named copies of the protected root under <root>/.snapshots.
type SnapshotStore struct {
	copier Copier
	logger zerolog.Logger
}

// NewSnapshotStore creates a store using copier, or a NativeCopier when nil.
func NewSnapshotStore(copier Copier, logger zerolog.Logger) *SnapshotStore {
	if copier == nil {
		copier = NativeCopier{}
	}
	return &SnapshotStore{
		copier: copier,
		logger: logger.With().Str("component", "snapshot").Logger(),
	}
}

// Dir returns where snapshot name of path lives.
func Dir(path, name string) string {
	return filepath.Join(path, domain.SnapshotDirName, name)
}

func validateSnapshotName(name string) error {
	if name == "" || name == "." || name == ".." || strings.ContainsAny(name, `/\`) {
		return fmt.Errorf("%w: %q", domain.ErrInvalidSnapshot, name)
	}
	return nil
}

// Create copies path into snapshot name and returns the snapshot id. If the
// snapshot already exists nothing is copied.
func (s *SnapshotStore) Create(ctx context.Context, path, name string) (string, error) {
	if err := validateSnapshotName(name); err != nil {
		return "", err
	}

	dir := Dir(path, name)
	if _, err := os.Stat(dir); err == nil {
		s.logger.Info().Str("snapshot", name).Msg("snapshot already exists, keeping it")
		return name, nil
	}

	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", fmt.Errorf("failed to create snapshot directory: %w", err)
	}

	s.logger.Info().Str("snapshot", name).Str("path", path).Msg("creating snapshot")
	if err := s.copier.Copy(ctx, path, dir, []string{domain.SnapshotDirName}); err != nil {
		if !errors.Is(err, ErrPartialCopy) {
			// leave no half-made snapshot behind to be mistaken for a baseline
			_ = os.RemoveAll(dir)
			return "", fmt.Errorf("failed to create snapshot %s: %w", name, err)
		}
		s.logger.Warn().Err(err).Str("snapshot", name).Msg("snapshot created with skipped entries")
	}

	s.logger.Info().Str("snapshot", name).Msg("snapshot created")
	return name, nil
}

// Restore purges the top-level files of path and copies snapshot name back
// over it. Subdirectories are not purged.
func (s *SnapshotStore) Restore(ctx context.Context, path, name string) error {
	if err := validateSnapshotName(name); err != nil {
		return err
	}

	dir := Dir(path, name)
	info, err := os.Stat(dir)
	if err != nil || !info.IsDir() {
		return fmt.Errorf("%w: %s", domain.ErrSnapshotNotFound, name)
	}

	removed, err := purgeTopLevelFiles(path, s.logger)
	if err != nil {
		return fmt.Errorf("failed to purge %s: %w", path, err)
	}
	s.logger.Info().Int("removed", removed).Str("path", path).Msg("purged top-level files")

	if err := s.copier.Copy(ctx, dir, path, []string{domain.SnapshotDirName}); err != nil {
		if !errors.Is(err, ErrPartialCopy) {
			return fmt.Errorf("failed to restore snapshot %s: %w", name, err)
		}
		s.logger.Warn().Err(err).Str("snapshot", name).Msg("restore skipped some entries")
	}

	s.logger.Info().Str("snapshot", name).Str("path", path).Msg("snapshot restored")
	return nil
}

func purgeTopLevelFiles(path string, logger zerolog.Logger) (int, error) {
	entries, err := os.ReadDir(path)
	if err != nil {
		return 0, err
	}

	removed := 0
	for _, entry := range entries {
		if !entry.Type().IsRegular() {
			continue
		}
		full := filepath.Join(path, entry.Name())
		if err := os.Remove(full); err != nil {
			logger.Warn().Err(err).Str("file", full).Msg("failed to remove file")
			continue
		}
		removed++
	}
	return removed, nil
}

// NativeCopier copies in-process, keeping permissions, modification times and symlinks.
type NativeCopier struct{}

// Copy implements Copier.
func (NativeCopier) Copy(ctx context.Context, src, dst string, exclude []string) error {
	rootInfo, err := os.Stat(src)
	if err != nil {
		return err
	}
	if !rootInfo.IsDir() {
		return fmt.Errorf("%s is not a directory", src)
	}
	if err := os.MkdirAll(dst, rootInfo.Mode().Perm()); err != nil {
		return err
	}

	var skipped []error
	walkErr := filepath.WalkDir(src, func(p string, d fs.DirEntry, err error) error {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		if err != nil {
			if p == src {
				return err
			}
			skipped = append(skipped, err)
			if d != nil && d.IsDir() {
				return fs.SkipDir
			}
			return nil
		}

		rel, err := filepath.Rel(src, p)
		if err != nil {
			skipped = append(skipped, err)
			return nil
		}
		if rel == "." {
			return nil
		}
		if isExcluded(rel, exclude) {
			if d.IsDir() {
				return fs.SkipDir
			}
			return nil
		}

		target := filepath.Join(dst, rel)
		if err := copyEntry(p, target, d); err != nil {
			skipped = append(skipped, fmt.Errorf("%s: %w", rel, err))
			if d.IsDir() {
				return fs.SkipDir
			}
		}
		return nil
	})
	if walkErr != nil {
		return walkErr
	}

	if len(skipped) > 0 {
		return fmt.Errorf("%w: %d entries skipped: %w", ErrPartialCopy, len(skipped), errors.Join(skipped...))
	}
	return nil
}

func isExcluded(rel string, exclude []string) bool {
	first := strings.SplitN(filepath.ToSlash(rel), "/", 2)[0]
	for _, name := range exclude {
		if first == name {
			return true
		}
	}
	return false
}

func copyEntry(src, dst string, d fs.DirEntry) error {
	info, err := d.Info()
	if err != nil {
		return err
	}

	switch {
	case d.IsDir():
		// a symlink planted where a directory belongs must not be followed
		if fi, err := os.Lstat(dst); err == nil && fi.Mode()&fs.ModeSymlink != 0 {
			if err := os.Remove(dst); err != nil {
				return err
			}
		}
		return os.MkdirAll(dst, info.Mode().Perm())
	case d.Type()&fs.ModeSymlink != 0:
		link, err := os.Readlink(src)
		if err != nil {
			return err
		}
		_ = os.Remove(dst)
		return os.Symlink(link, dst)
	case d.Type().IsRegular():
		return copyFile(src, dst, info)
	default:
		// sockets, devices and pipes are not part of a restorable tree
		return nil
	}
}

func copyFile(src, dst string, info fs.FileInfo) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	// a read-only file left at dst must not block the copy
	_ = os.Remove(dst)

	out, err := os.OpenFile(dst, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, info.Mode().Perm())
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return err
	}
	if err := out.Close(); err != nil {
		return err
	}
	return os.Chtimes(dst, info.ModTime(), info.ModTime())
}

// RsyncCopier shells out to rsync -a.
type RsyncCopier struct {
	Runner CommandRunner
	Binary string
}

// NewRsyncCopier returns a copier running the rsync binary through runner.
func NewRsyncCopier(runner CommandRunner) *RsyncCopier {
	if runner == nil {
		runner = ExecRunner{}
	}
	return &RsyncCopier{Runner: runner, Binary: "rsync"}
}

// Copy implements Copier. rsync exit codes 23 and 24 (partial transfer) are
// reported as ErrPartialCopy.
func (r *RsyncCopier) Copy(ctx context.Context, src, dst string, exclude []string) error {
	args := []string{"-a"}
	for _, name := range exclude {
		args = append(args, "--exclude="+name)
	}
	// trailing separators copy the contents, not the directory itself
	args = append(args, filepath.Clean(src)+string(filepath.Separator), filepath.Clean(dst)+string(filepath.Separator))

	out, err := r.Runner.Run(ctx, r.Binary, args...)
	if err == nil {
		return nil
	}

	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		if code := exitErr.ExitCode(); code == 23 || code == 24 {
			return fmt.Errorf("%w: rsync exit %d: %s", ErrPartialCopy, code, strings.TrimSpace(string(out)))
		}
	}
	return fmt.Errorf("rsync failed: %w: %s", err, strings.TrimSpace(string(out)))
}
