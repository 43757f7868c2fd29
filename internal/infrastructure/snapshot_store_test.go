package infrastructure

import (
	"context"
	"errors"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"testing"

	"github.com/rs/zerolog"

	"paladin/internal/domain"
)

func writeTree(t *testing.T, root string, files map[string]string) {
	t.Helper()
	for rel, content := range files {
		path := filepath.Join(root, rel)
		if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
			t.Fatalf("MkdirAll failed: %v", err)
		}
		if err := os.WriteFile(path, []byte(content), 0644); err != nil {
			t.Fatalf("WriteFile failed: %v", err)
		}
	}
}

func readFile(t *testing.T, path string) string {
	t.Helper()
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("ReadFile(%s) failed: %v", path, err)
	}
	return string(data)
}

func TestSnapshotStore_CreateIsIdempotent(t *testing.T) {
	root := t.TempDir()
	writeTree(t, root, map[string]string{
		"report.txt":     "quarterly numbers",
		"sub/notes.md":   "meeting notes",
		"sub/deep/a.bin": "abc",
	})

	store := NewSnapshotStore(nil, zerolog.Nop())
	ctx := context.Background()

	id, err := store.Create(ctx, root, "base_safe_state")
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	if id != "base_safe_state" {
		t.Errorf("id = %q, expected base_safe_state", id)
	}

	snapDir := Dir(root, "base_safe_state")
	if got := readFile(t, filepath.Join(snapDir, "sub", "deep", "a.bin")); got != "abc" {
		t.Errorf("snapshot content = %q, expected abc", got)
	}
	if _, err := os.Stat(filepath.Join(snapDir, domain.SnapshotDirName)); !os.IsNotExist(err) {
		t.Error("snapshot must not contain the snapshot subtree")
	}

	// change the live tree; a second create must not refresh the snapshot
	writeTree(t, root, map[string]string{"report.txt": "encrypted garbage"})
	if _, err := store.Create(ctx, root, "base_safe_state"); err != nil {
		t.Fatalf("second Create failed: %v", err)
	}
	if got := readFile(t, filepath.Join(snapDir, "report.txt")); got != "quarterly numbers" {
		t.Errorf("snapshot was overwritten: %q", got)
	}
}

func TestSnapshotStore_Restore(t *testing.T) {
	root := t.TempDir()
	writeTree(t, root, map[string]string{
		"report.txt":   "quarterly numbers",
		"sub/notes.md": "meeting notes",
	})

	store := NewSnapshotStore(nil, zerolog.Nop())
	ctx := context.Background()
	if _, err := store.Create(ctx, root, "base_safe_state"); err != nil {
		t.Fatalf("Create failed: %v", err)
	}

	// simulate an attack
	writeTree(t, root, map[string]string{
		"report.txt.locked":   "xxxxxxxx",
		"README_RANSOM.txt":   "pay up",
		"sub/notes.md":        "garbage",
		"sub/notes.md.locked": "yyyy",
	})
	if err := os.Remove(filepath.Join(root, "report.txt")); err != nil {
		t.Fatalf("Remove failed: %v", err)
	}

	if err := store.Restore(ctx, root, "base_safe_state"); err != nil {
		t.Fatalf("Restore failed: %v", err)
	}

	if got := readFile(t, filepath.Join(root, "report.txt")); got != "quarterly numbers" {
		t.Errorf("report.txt = %q after restore", got)
	}
	if got := readFile(t, filepath.Join(root, "sub", "notes.md")); got != "meeting notes" {
		t.Errorf("sub/notes.md = %q after restore", got)
	}
	for _, gone := range []string{"report.txt.locked", "README_RANSOM.txt"} {
		if _, err := os.Stat(filepath.Join(root, gone)); !os.IsNotExist(err) {
			t.Errorf("%s survived the top-level purge", gone)
		}
	}
	// the purge is shallow: extra files in subdirectories stay
	if _, err := os.Stat(filepath.Join(root, "sub", "notes.md.locked")); err != nil {
		t.Errorf("nested extra file should survive the shallow purge: %v", err)
	}
	if _, err := os.Stat(Dir(root, "base_safe_state")); err != nil {
		t.Errorf("snapshot removed by restore: %v", err)
	}
}

func TestSnapshotStore_RestoreReplacesSymlinkedDirectory(t *testing.T) {
	root := t.TempDir()
	outside := t.TempDir()
	writeTree(t, root, map[string]string{"sub/notes.md": "meeting notes"})

	store := NewSnapshotStore(nil, zerolog.Nop())
	ctx := context.Background()
	if _, err := store.Create(ctx, root, "base_safe_state"); err != nil {
		t.Fatalf("Create failed: %v", err)
	}

	if err := os.RemoveAll(filepath.Join(root, "sub")); err != nil {
		t.Fatal(err)
	}
	if err := os.Symlink(outside, filepath.Join(root, "sub")); err != nil {
		t.Skipf("symlinks unavailable: %v", err)
	}

	if err := store.Restore(ctx, root, "base_safe_state"); err != nil {
		t.Fatalf("Restore failed: %v", err)
	}

	info, err := os.Lstat(filepath.Join(root, "sub"))
	if err != nil {
		t.Fatalf("Lstat failed: %v", err)
	}
	if info.Mode()&os.ModeSymlink != 0 || !info.IsDir() {
		t.Errorf("sub mode = %v, expected a real directory", info.Mode())
	}
	if got := readFile(t, filepath.Join(root, "sub", "notes.md")); got != "meeting notes" {
		t.Errorf("sub/notes.md = %q after restore", got)
	}
	if _, err := os.Stat(filepath.Join(outside, "notes.md")); !os.IsNotExist(err) {
		t.Errorf("restore wrote through the symlink: %v", err)
	}
}

func TestSnapshotStore_RestoreMissingSnapshot(t *testing.T) {
	root := t.TempDir()
	writeTree(t, root, map[string]string{"keep.txt": "data"})

	store := NewSnapshotStore(nil, zerolog.Nop())
	err := store.Restore(context.Background(), root, "never_created")
	if !errors.Is(err, domain.ErrSnapshotNotFound) {
		t.Fatalf("Restore error = %v, expected ErrSnapshotNotFound", err)
	}
	if got := readFile(t, filepath.Join(root, "keep.txt")); got != "data" {
		t.Error("files purged although the snapshot is missing")
	}
}

func TestSnapshotStore_InvalidName(t *testing.T) {
	store := NewSnapshotStore(nil, zerolog.Nop())
	for _, name := range []string{"", ".", "..", "a/b", `a\b`} {
		if _, err := store.Create(context.Background(), t.TempDir(), name); !errors.Is(err, domain.ErrInvalidSnapshot) {
			t.Errorf("Create(%q) error = %v, expected ErrInvalidSnapshot", name, err)
		}
	}
}

type failingCopier struct {
	err error
}

func (c failingCopier) Copy(ctx context.Context, src, dst string, exclude []string) error {
	return c.err
}

func TestSnapshotStore_CopierFailures(t *testing.T) {
	ctx := context.Background()

	t.Run("Hard failure removes the half-made snapshot", func(t *testing.T) {
		root := t.TempDir()
		store := NewSnapshotStore(failingCopier{err: errors.New("disk on fire")}, zerolog.Nop())
		if _, err := store.Create(ctx, root, "s"); err == nil {
			t.Fatal("expected Create to fail")
		}
		if _, err := os.Stat(Dir(root, "s")); !os.IsNotExist(err) {
			t.Error("half-made snapshot left behind")
		}
	})

	t.Run("Partial copy still completes", func(t *testing.T) {
		root := t.TempDir()
		store := NewSnapshotStore(failingCopier{err: ErrPartialCopy}, zerolog.Nop())
		if _, err := store.Create(ctx, root, "s"); err != nil {
			t.Fatalf("Create failed: %v", err)
		}
		if err := store.Restore(ctx, root, "s"); err != nil {
			t.Fatalf("Restore failed: %v", err)
		}
	})
}

func TestNativeCopier_PreservesModeAndSymlinks(t *testing.T) {
	src := t.TempDir()
	dst := t.TempDir()

	writeTree(t, src, map[string]string{"run.sh": "#!/bin/sh\n", "skip/me.txt": "no"})
	if err := os.Chmod(filepath.Join(src, "run.sh"), 0750); err != nil {
		t.Fatalf("Chmod failed: %v", err)
	}
	if err := os.Symlink("run.sh", filepath.Join(src, "link.sh")); err != nil {
		t.Skipf("symlinks unsupported: %v", err)
	}

	if err := (NativeCopier{}).Copy(context.Background(), src, dst, []string{"skip"}); err != nil {
		t.Fatalf("Copy failed: %v", err)
	}

	info, err := os.Stat(filepath.Join(dst, "run.sh"))
	if err != nil {
		t.Fatalf("Stat failed: %v", err)
	}
	if info.Mode().Perm() != 0750 {
		t.Errorf("mode = %v, expected 0750", info.Mode().Perm())
	}
	if link, err := os.Readlink(filepath.Join(dst, "link.sh")); err != nil || link != "run.sh" {
		t.Errorf("symlink = %q, %v", link, err)
	}
	if _, err := os.Stat(filepath.Join(dst, "skip")); !os.IsNotExist(err) {
		t.Error("excluded directory was copied")
	}
}

func TestRsyncCopier_Arguments(t *testing.T) {
	runner := &fakeRunner{}
	copier := NewRsyncCopier(runner)

	if err := copier.Copy(context.Background(), "/srv/data", "/srv/data/.snapshots/base", []string{domain.SnapshotDirName}); err != nil {
		t.Fatalf("Copy failed: %v", err)
	}

	if len(runner.calls) != 1 {
		t.Fatalf("calls = %d, expected 1", len(runner.calls))
	}
	got := strings.Join(runner.calls[0], " ")
	sep := string(filepath.Separator)
	expected := "rsync -a --exclude=.snapshots " +
		filepath.Clean("/srv/data") + sep + " " + filepath.Clean("/srv/data/.snapshots/base") + sep
	if got != expected {
		t.Errorf("command = %q, expected %q", got, expected)
	}
}

func TestRsyncCopier_PartialTransfer(t *testing.T) {
	if _, err := exec.LookPath("sh"); err != nil {
		t.Skip("sh not available")
	}

	// a real *exec.ExitError with status 23
	exitErr := exec.Command("sh", "-c", "exit 23").Run()
	copier := NewRsyncCopier(&fakeRunner{err: exitErr, out: []byte("some files vanished")})

	err := copier.Copy(context.Background(), "/a", "/b", nil)
	if !errors.Is(err, ErrPartialCopy) {
		t.Errorf("error = %v, expected ErrPartialCopy", err)
	}

	copier = NewRsyncCopier(&fakeRunner{err: errors.New("exec: rsync not found")})
	err = copier.Copy(context.Background(), "/a", "/b", nil)
	if err == nil || errors.Is(err, ErrPartialCopy) {
		t.Errorf("error = %v, expected a hard failure", err)
	}
}
